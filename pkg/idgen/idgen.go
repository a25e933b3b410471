// Package idgen mints the short identifiers and generated secrets the
// provisioner needs: 12-hex-character server/snapshot ids, and URL-safe
// secrets for auto-generated game passwords.
package idgen

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"

	"github.com/sethvargo/go-password/password"
)

// ShortID returns a random 12-hex-character identifier, unique enough
// across the fleet that collisions are not a practical concern (48 bits of
// entropy).
func ShortID() (string, error) {
	b := make([]byte, 6)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("idgen: read random bytes: %w", err)
	}
	return hex.EncodeToString(b), nil
}

// MustShortID is ShortID but panics on entropy-source failure, which in
// practice never happens on any supported platform; it exists so callers
// that can't usefully recover from a broken CSPRNG don't have to thread the
// error through.
func MustShortID() string {
	id, err := ShortID()
	if err != nil {
		panic(err)
	}
	return id
}

// secretLength is the character length fed to password.Generate; spec.md
// requires at least 16 bytes of entropy for auto-generated password_keys
// and rcon passwords.
const secretLength = 24

// GenerateSecret mints a cryptographically secure, URL-safe token suitable
// for an auto-generated password_keys or rcon_password value.
func GenerateSecret() (string, error) {
	// letters plus 6 digits, symbols disabled: these values are dropped directly into shell
	// command lines and container environment variables, and the games that
	// consume them often don't escape config values themselves.
	return password.Generate(secretLength, 6, 0, false, false)
}
