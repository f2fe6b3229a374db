// Copyright (c) 2026 Keymaster Team
// Keymaster - SSH key management system
// This source code is licensed under the MIT license found in the LICENSE file.

// Package buildvars holds values stamped in at link time.
package buildvars

// Version is set with
// `-ldflags "-X github.com/toeirei/keymaster-hub/buildvars.Version=v1.2.3"`.
// Development builds leave it empty.
var Version string

// VersionOrDefault returns Version, or def for unstamped builds.
func VersionOrDefault(def string) string {
	if Version != "" {
		return Version
	}
	return def
}
