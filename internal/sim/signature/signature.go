// Package signature remembers the last rendered signature per observer so unchanged
// observations skip the UI write.
package signature

import (
	"crypto/sha256"
	"encoding/hex"

	"voxelhud.ai/internal/sim/host"
)

// Key is the property holding the digest of the last rendered signature.
const Key = "hud:sig"

// Store keeps one digest per observer in the observer's own property store, so it survives
// reconnects without growing with the signature length.
type Store struct{}

func New() *Store { return &Store{} }

func Digest(sig string) string {
	sum := sha256.Sum256([]byte(sig))
	return hex.EncodeToString(sum[:])
}

// Changed reports whether sig differs from the remembered one.
func (s *Store) Changed(o host.Observer, sig string) bool {
	last, ok := host.GetString(o.Properties(), Key)
	return !ok || last != Digest(sig)
}

func (s *Store) Remember(o host.Observer, sig string) error {
	return o.Properties().Set(Key, host.String(Digest(sig)))
}

// Forget makes the next observation render regardless of its signature.
func (s *Store) Forget(o host.Observer) error {
	return o.Properties().Delete(Key)
}
