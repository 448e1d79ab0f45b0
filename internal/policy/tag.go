// Package policy decides whether a caller may read an entry.
//
// Each entry carries a Tag naming the authentication it requires. The
// platform Authenticator reports which factors the caller proved, and Policy
// compares them against the tag. A denial ends the call; re-prompting is up
// to the caller.
package policy

import "fmt"

// Tag is the access requirement attached to an entry at creation.
type Tag string

const (
	TagNone                Tag = "none"
	TagDeviceUnlock        Tag = "device-unlock"
	TagBiometric           Tag = "biometric"
	TagBiometricOrPasscode Tag = "biometric-or-passcode"
)

// Tags lists every valid tag, weakest first.
var Tags = []Tag{TagNone, TagDeviceUnlock, TagBiometric, TagBiometricOrPasscode}

// Valid reports whether t is a known tag.
func (t Tag) Valid() bool {
	for _, v := range Tags {
		if t == v {
			return true
		}
	}
	return false
}

// ParseTag converts a user-supplied string to a Tag.
func ParseTag(s string) (Tag, error) {
	t := Tag(s)
	if !t.Valid() {
		return "", fmt.Errorf("unknown policy %q (want one of %v)", s, Tags)
	}
	return t, nil
}

// Factors are the authentication facts a caller proved for one request.
type Factors struct {
	DeviceUnlocked bool
	Biometric      bool
	Passcode       bool
}

// Satisfies reports whether the factors meet tag.
func (f Factors) Satisfies(t Tag) bool {
	switch t {
	case TagNone:
		return true
	case TagDeviceUnlock:
		return f.DeviceUnlocked
	case TagBiometric:
		return f.Biometric
	case TagBiometricOrPasscode:
		return f.Biometric || f.Passcode
	}
	return false
}

// NeedsPasscode reports whether a passcode can satisfy t.
func (t Tag) NeedsPasscode() bool {
	return t == TagBiometricOrPasscode
}

// missing describes why f does not satisfy t.
func (f Factors) missing(t Tag) string {
	switch t {
	case TagDeviceUnlock:
		return "device is locked"
	case TagBiometric:
		return "biometric authentication required"
	case TagBiometricOrPasscode:
		return "biometric or passcode authentication required"
	}
	return "unsatisfied policy " + string(t)
}
