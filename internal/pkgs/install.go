package pkgs

import (
	"fmt"
	"strings"
)

const (
	DefaultChannel Channel = "stable"
	EnvChannel             = "SUPCTL_DEPOT_CHANNEL"
)

// Channel names a release channel in the depot.
type Channel string

func ParseChannel(s string) (Channel, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return DefaultChannel, nil
	}
	if strings.ContainsAny(s, "/ \t") {
		return "", fmt.Errorf("%w: %q", ErrInvalidChannelName, s)
	}
	return Channel(s), nil
}

func (c Channel) String() string { return string(c) }

// InstallSource is what to install: a package ident, possibly partial.
type InstallSource struct {
	Ident Ident
}

func ParseInstallSource(s string) (InstallSource, error) {
	id, err := ParseIdent(s)
	if err != nil {
		return InstallSource{}, err
	}
	return InstallSource{Ident: id}, nil
}

func (s InstallSource) String() string { return s.Ident.String() }

// Install is a package present on disk.
type Install struct {
	Ident Ident
	Path  string
}

func (i Install) String() string {
	return fmt.Sprintf("%s (%s)", i.Ident, i.Path)
}
