package app

import (
	"path/filepath"

	"cipherlink/internal/store"
)

// DefaultOneTimePreKeys is how many one-time pre-keys keygen creates when
// Config.OneTimePreKeys is zero.
const DefaultOneTimePreKeys = 20

// Config holds runtime wiring options for building the app.
type Config struct {
	Home           string // data directory, e.g. $HOME/.cipherlink
	Passphrase     string // unlocks the key and session stores
	OneTimePreKeys int    // batch size for keygen and replenish
	Scrypt         store.ScryptParams
}

func (c Config) sessionsDir() string { return filepath.Join(c.Home, "sessions") }
func (c Config) peersDir() string    { return filepath.Join(c.Home, "peers") }

func (c Config) oneTimePreKeys() int {
	if c.OneTimePreKeys <= 0 {
		return DefaultOneTimePreKeys
	}
	return c.OneTimePreKeys
}
