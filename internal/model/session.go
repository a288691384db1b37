package model

import "time"

// StaleFraction is the share of a bundle's TTL after which the session
// manager refreshes proactively instead of waiting for hard expiry. This
// bounds the chance that an in-flight downstream call observes a dead token.
const StaleFraction = 0.8

// SessionBundle is the credential set produced by one portal login: an opaque
// bearer token, the cookie string the portal expects alongside it, and the
// portal-side identity of the user. Exactly one live bundle exists per
// process; it is replaced wholesale on refresh, never mutated.
type SessionBundle struct {
	Token      string
	Cookie     string
	Identity   string
	ObtainedAt time.Time
	TTL        time.Duration
}

// Age returns the elapsed time since the bundle was obtained.
func (b *SessionBundle) Age() time.Duration {
	return time.Since(b.ObtainedAt)
}

// Expired reports whether the bundle's age has reached its TTL.
func (b *SessionBundle) Expired() bool {
	return b.Age() >= b.TTL
}

// Stale reports whether the bundle has crossed the proactive-refresh
// threshold (StaleFraction of its TTL) without being hard-expired yet.
func (b *SessionBundle) Stale() bool {
	return b.Age() >= time.Duration(StaleFraction*float64(b.TTL))
}
