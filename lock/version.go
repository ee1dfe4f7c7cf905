package lock

import (
	"golang.org/x/mod/semver"

	internal "github.com/kolkov/syncore/internal/lock/api"
)

// Version information for the synchronization core.
const (
	// Version is the current version of the runtime.
	Version = "0.3.0"

	// VersionMajor is the major version number.
	VersionMajor = 0

	// VersionMinor is the minor version number.
	VersionMinor = 3

	// VersionPatch is the patch version number.
	VersionPatch = 0
)

// Info describes the runtime.
type Info struct {
	// Version is the runtime version string.
	Version string

	// WakeOrder is the order in which blocked threads are woken.
	WakeOrder string

	// OwnerTracking reports whether acquisition sites are recorded.
	OwnerTracking bool
}

// GetInfo returns information about the runtime.
//
// Example:
//
//	info := lock.GetInfo()
//	fmt.Printf("syncore %s (%s wake order)\n", info.Version, info.WakeOrder)
func GetInfo() Info {
	return Info{
		Version:       Version,
		WakeOrder:     "FIFO",
		OwnerTracking: internal.Config().TrackOwners,
	}
}

// Compatible reports whether this runtime satisfies a caller that needs at
// least version required ("v0.2.0" or "0.2.0") within the same major
// version. Invalid versions are never satisfied.
func Compatible(required string) bool {
	if len(required) > 0 && required[0] != 'v' {
		required = "v" + required
	}
	if !semver.IsValid(required) {
		return false
	}
	current := "v" + Version
	return semver.Major(required) == semver.Major(current) && semver.Compare(current, required) >= 0
}
