package config

import (
	"strings"

	"golang.org/x/mod/semver"
)

// IsNewerVersion reports whether version a is newer than version b.
// Versions that are not valid semver never compare as newer.
func IsNewerVersion(a, b string) bool {
	ca, cb := canonicalVersion(a), canonicalVersion(b)
	if !semver.IsValid(ca) || !semver.IsValid(cb) {
		return false
	}
	// semver.Compare returns 1 if ca > cb
	return semver.Compare(ca, cb) > 0
}

// normalizeVersion returns a version string without the "v" prefix.
func normalizeVersion(v string) string {
	return strings.TrimPrefix(strings.TrimSpace(v), "v")
}

// canonicalVersion returns the version in canonical semver format.
func canonicalVersion(v string) string {
	v = strings.TrimSpace(v)
	if v == "" {
		return ""
	}
	if !strings.HasPrefix(v, "v") {
		v = "v" + v
	}
	return v
}

// isReleaseVersion reports whether v is a full vMAJOR.MINOR.PATCH version,
// optionally with a prerelease suffix. Development builds ("dev") are not.
func isReleaseVersion(v string) bool {
	return semver.IsValid(v) && v == semver.Canonical(v)
}
