// Package pkgs names installable packages and orders their releases.
package pkgs

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

var (
	ErrInvalidIdent       = errors.New("pkgs: invalid package ident")
	ErrNotFullyQualified  = errors.New("pkgs: ident is not fully qualified")
	ErrInvalidChannelName = errors.New("pkgs: invalid channel name")
)

// Ident is origin/name[/version[/release]].
type Ident struct {
	Origin  string
	Name    string
	Version string
	Release string
}

func ParseIdent(s string) (Ident, error) {
	parts := strings.Split(strings.TrimSpace(s), "/")
	if len(parts) < 2 || len(parts) > 4 {
		return Ident{}, fmt.Errorf("%w: %q", ErrInvalidIdent, s)
	}
	for _, p := range parts {
		if p == "" || p == "." || p == ".." {
			return Ident{}, fmt.Errorf("%w: %q", ErrInvalidIdent, s)
		}
	}
	id := Ident{Origin: parts[0], Name: parts[1]}
	if len(parts) > 2 {
		id.Version = parts[2]
	}
	if len(parts) > 3 {
		id.Release = parts[3]
	}
	return id, nil
}

// MustParseIdent is ParseIdent for constants.
func MustParseIdent(s string) Ident {
	id, err := ParseIdent(s)
	if err != nil {
		panic(err)
	}
	return id
}

func (i Ident) String() string {
	var b strings.Builder
	b.WriteString(i.Origin)
	b.WriteByte('/')
	b.WriteString(i.Name)
	if i.Version != "" {
		b.WriteByte('/')
		b.WriteString(i.Version)
		if i.Release != "" {
			b.WriteByte('/')
			b.WriteString(i.Release)
		}
	}
	return b.String()
}

func (i Ident) FullyQualified() bool {
	return i.Origin != "" && i.Name != "" && i.Version != "" && i.Release != ""
}

// SamePackage reports whether i and o name the same origin and package.
func (i Ident) SamePackage(o Ident) bool {
	return i.Origin == o.Origin && i.Name == o.Name
}

// Satisfies reports whether o matches every component i specifies.
func (i Ident) Satisfies(o Ident) bool {
	if !i.SamePackage(o) {
		return false
	}
	if i.Version != "" && i.Version != o.Version {
		return false
	}
	return i.Release == "" || i.Release == o.Release
}

// Less orders releases of the same package. Idents of different packages, or
// without a version, are unordered and Less reports false.
func (i Ident) Less(o Ident) bool {
	c, ok := i.Compare(o)
	return ok && c < 0
}

// Compare returns the ordering of i against o and whether one is defined.
func (i Ident) Compare(o Ident) (int, bool) {
	if !i.SamePackage(o) || i.Version == "" || o.Version == "" {
		return 0, false
	}
	if c := CompareVersions(i.Version, o.Version); c != 0 {
		return c, true
	}
	return compareSegment(i.Release, o.Release), true
}

// CompareVersions compares dotted versions segment by segment, numerically
// when both segments are numbers. A version that is a prefix of another sorts first.
func CompareVersions(a, b string) int {
	as, bs := strings.Split(a, "."), strings.Split(b, ".")
	for k := 0; k < len(as) && k < len(bs); k++ {
		if c := compareSegment(as[k], bs[k]); c != 0 {
			return c
		}
	}
	switch {
	case len(as) < len(bs):
		return -1
	case len(as) > len(bs):
		return 1
	}
	return 0
}

func compareSegment(a, b string) int {
	an, aerr := strconv.ParseUint(a, 10, 64)
	bn, berr := strconv.ParseUint(b, 10, 64)
	switch {
	case aerr == nil && berr == nil:
		switch {
		case an < bn:
			return -1
		case an > bn:
			return 1
		}
		return 0
	case aerr == nil:
		return 1
	case berr == nil:
		return -1
	}
	return strings.Compare(a, b)
}
