package ub

import "github.com/kolkov/ubcheck/internal/ub/loader"

// Version information for the checker.
const (
	// Version is the current version of the checker runtime.
	Version = "0.1.0"

	// VersionMajor is the major version number.
	VersionMajor = 0

	// VersionMinor is the minor version number.
	VersionMinor = 1

	// VersionPatch is the patch version number.
	VersionPatch = 0
)

// FormatVersion is the newest program description format this build
// understands.
const FormatVersion = loader.FormatVersion

// Info provides runtime information about the checker.
type Info struct {
	// Version is the runtime version string.
	Version string

	// FormatVersion is the supported program description format.
	FormatVersion string

	// Discipline is the aliasing discipline enforced on pointers.
	Discipline string
}

// GetInfo returns information about the checker runtime.
func GetInfo() Info {
	return Info{
		Version:       Version,
		FormatVersion: FormatVersion,
		Discipline:    "per-allocation permission trees",
	}
}
