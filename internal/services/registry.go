// Package services tracks the services a supervisor is asked to run and the
// state each one was last put in.
package services

import (
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/danmuck/supctl/internal/pkgs"
)

var (
	ErrServiceExists   = errors.New("services: service already loaded")
	ErrServiceNotFound = errors.New("services: service not loaded")
)

type State string

const (
	StateUp   State = "up"
	StateDown State = "down"
)

// Service is one loaded service.
type Service struct {
	Ident      pkgs.Ident
	State      State
	Desired    State
	Pid        uint32
	Since      time.Time
	DefaultCfg []byte
}

// Elapsed is the time spent in the current state.
func (s Service) Elapsed(now time.Time) time.Duration {
	if s.Since.IsZero() || now.Before(s.Since) {
		return 0
	}
	return now.Sub(s.Since)
}

// Registry stores services by package name (origin/name).
type Registry struct {
	mu    sync.RWMutex
	repo  map[string]*Service
	clock func() time.Time
}

func NewRegistry() *Registry {
	return &Registry{
		repo:  make(map[string]*Service),
		clock: time.Now,
	}
}

func key(id pkgs.Ident) string {
	return id.Origin + "/" + id.Name
}

// Load adds a service in the down state.
func (r *Registry) Load(id pkgs.Ident, defaultCfg []byte) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	k := key(id)
	if _, ok := r.repo[k]; ok {
		return fmt.Errorf("%w: %s", ErrServiceExists, k)
	}
	r.repo[k] = &Service{
		Ident:      id,
		State:      StateDown,
		Desired:    StateDown,
		Since:      r.clock(),
		DefaultCfg: defaultCfg,
	}
	return nil
}

// Get returns a snapshot of the service matching id.
func (r *Registry) Get(id pkgs.Ident) (Service, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.repo[key(id)]
	if !ok || !id.Satisfies(s.Ident) {
		return Service{}, false
	}
	return *s, true
}

// All returns snapshots ordered by ident.
func (r *Registry) All() []Service {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Service, 0, len(r.repo))
	for _, s := range r.repo {
		out = append(out, *s)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].Ident.String() < out[j].Ident.String()
	})
	return out
}

// SetDesired records the requested state. It reports false when the service
// was already in that state.
func (r *Registry) SetDesired(id pkgs.Ident, state State) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.repo[key(id)]
	if !ok || !id.Satisfies(s.Ident) {
		return false, fmt.Errorf("%w: %s", ErrServiceNotFound, id)
	}
	if s.Desired == state && s.State == state {
		return false, nil
	}
	s.Desired = state
	s.State = state
	s.Since = r.clock()
	return true, nil
}
