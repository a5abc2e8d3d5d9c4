// Package passkey configures WebAuthn passkey support.
//
// It models relying party identity and ceremony timing so device-bound
// credentials can replace shared secrets at the auth boundary.
package passkey
