package scaffold

import (
	"regexp"
	"strings"

	"github.com/Masterminds/semver/v3"

	hosterrors "github.com/wippyai/wasm-host/errors"
)

var namePattern = regexp.MustCompile(`^[a-zA-Z0-9][a-zA-Z0-9_-]*$`)

// InterfaceAtRelease names an interface (or project) pinned to a release,
// written "name@release", e.g. "keyvalue@v0.2.0".
type InterfaceAtRelease struct {
	Name    string
	Release string
	Version *semver.Version
}

// String renders the "name@release" form.
func (r InterfaceAtRelease) String() string {
	return r.Name + "@" + r.Release
}

// Dir is the directory name a fetched interface is stored under.
func (r InterfaceAtRelease) Dir() string {
	return r.Name + "_" + r.Release
}

// ParseInterfaceAtRelease parses "name@release". The release must be a
// semantic version; a leading "v" is kept as written.
func ParseInterfaceAtRelease(s string) (InterfaceAtRelease, error) {
	name, release, ok := strings.Cut(strings.TrimSpace(s), "@")
	if !ok || name == "" || release == "" {
		return InterfaceAtRelease{}, hosterrors.New(hosterrors.PhaseConfig, hosterrors.KindInvalidInput).
			Value(s).
			Detail("expected name@release, got %q", s).
			Build()
	}
	if !namePattern.MatchString(name) {
		return InterfaceAtRelease{}, hosterrors.New(hosterrors.PhaseConfig, hosterrors.KindInvalidInput).
			Value(name).
			Detail("invalid name %q", name).
			Build()
	}
	v, err := semver.StrictNewVersion(strings.TrimPrefix(release, "v"))
	if err != nil {
		return InterfaceAtRelease{}, hosterrors.New(hosterrors.PhaseConfig, hosterrors.KindInvalidInput).
			Value(release).
			Cause(err).
			Detail("invalid release %q", release).
			Build()
	}
	return InterfaceAtRelease{Name: name, Release: release, Version: v}, nil
}
