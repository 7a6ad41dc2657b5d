package model

import "time"

// Client is an anonymous client identity. It knows nothing about the mobile
// number it may be bound to; CredentialFingerprint is empty until a challenge
// has been requested for it.
type Client struct {
	ID                    string
	CredentialFingerprint string
	Verified              bool
	CreatedAt             time.Time
	ModifiedAt            time.Time
}

// Bound reports whether a mobile number and password have been attached.
func (c Client) Bound() bool {
	return c.CredentialFingerprint != ""
}

// DeviceType identifies the platform a client device runs on.
type DeviceType string

const (
	DeviceAndroid DeviceType = "android"
	DeviceIOS     DeviceType = "ios"
	DeviceUnknown DeviceType = "unknown"
)

// ParseDeviceType normalises free-form input, defaulting to DeviceUnknown.
func ParseDeviceType(v string) DeviceType {
	switch DeviceType(v) {
	case DeviceAndroid, DeviceIOS:
		return DeviceType(v)
	default:
		return DeviceUnknown
	}
}

// Device is a credential a client uses to authenticate requests. Only a
// salted hash of the device secret is stored.
type Device struct {
	ID         string
	ClientID   string
	Type       DeviceType
	SecretHash string
	Enabled    bool
	CreatedAt  time.Time
	ModifiedAt time.Time
}
