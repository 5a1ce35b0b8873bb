// Package version parses crate versions and picks the highest candidate that
// satisfies a requirement. Ordering follows semantic versioning precedence via
// golang.org/x/mod/semver; crate versions are written without the leading "v"
// that package expects, so the conversion happens here and nowhere else.
package version

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"golang.org/x/mod/semver"
)

// ErrInvalidVersion is wrapped by every ParseError.
var ErrInvalidVersion = errors.New("invalid semantic version")

// ParseError reports a version string that is not MAJOR.MINOR.PATCH with
// optional pre-release and build suffixes.
type ParseError struct {
	Value string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("%s %q: expected MAJOR.MINOR.PATCH", ErrInvalidVersion, e.Value)
}

func (e *ParseError) Unwrap() error { return ErrInvalidVersion }

// Version is a validated semantic version, stored without a "v" prefix.
type Version string

// Parse validates s as a full semantic version. Shorthands like "1" or "1.2"
// are rejected.
func Parse(s string) (Version, error) {
	s = strings.TrimSpace(s)
	v := "v" + s
	if !semver.IsValid(v) {
		return "", &ParseError{Value: s}
	}
	withoutBuild, _, _ := strings.Cut(v, "+")
	if semver.Canonical(v) != withoutBuild {
		return "", &ParseError{Value: s}
	}
	return Version(s), nil
}

// MustParse is Parse for constants in tests and defaults.
func MustParse(s string) Version {
	v, err := Parse(s)
	if err != nil {
		panic(err)
	}
	return v
}

func (v Version) String() string { return string(v) }

// Compare returns -1, 0 or +1. Build metadata is ignored.
func (v Version) Compare(other Version) int {
	return semver.Compare(v.semver(), other.semver())
}

// Prerelease returns the pre-release suffix including the leading '-', or "".
func (v Version) Prerelease() string {
	return semver.Prerelease(v.semver())
}

func (v Version) semver() string { return "v" + string(v) }

// core returns the MAJOR.MINOR.PATCH triple.
func (v Version) core() (major, minor, patch int) {
	c := strings.TrimPrefix(semver.Canonical(v.semver()), "v")
	c, _, _ = strings.Cut(c, "-")
	parts := strings.SplitN(c, ".", 3)
	if len(parts) != 3 {
		return 0, 0, 0
	}
	major, _ = strconv.Atoi(parts[0])
	minor, _ = strconv.Atoi(parts[1])
	patch, _ = strconv.Atoi(parts[2])
	return major, minor, patch
}
