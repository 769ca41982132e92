package crypto

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"time"

	"github.com/patrickmn/go-cache"
)

// KeyCache memoizes DeriveKey. Entries are keyed on a digest of the secret
// material, so replaced material never hits a stale key.
type KeyCache struct {
	entries *cache.Cache
}

// NewKeyCache returns a cache whose entries expire after ttl.
func NewKeyCache(ttl time.Duration) *KeyCache {
	return &KeyCache{entries: cache.New(ttl, 2*ttl)}
}

// Derive returns the cached key for (passphrase, salt), deriving it on a miss.
// A nil cache always derives.
func (c *KeyCache) Derive(passphrase, salt string) ([]byte, error) {
	if c == nil {
		return DeriveKey(passphrase, salt)
	}

	id := materialID(passphrase, salt)
	if v, ok := c.entries.Get(id); ok {
		return bytes.Clone(v.([]byte)), nil
	}

	key, err := DeriveKey(passphrase, salt)
	if err != nil {
		return nil, err
	}
	c.entries.SetDefault(id, bytes.Clone(key))
	return key, nil
}

// Invalidate drops every cached key.
func (c *KeyCache) Invalidate() {
	if c != nil {
		c.entries.Flush()
	}
}

// Len reports the number of cached keys.
func (c *KeyCache) Len() int {
	if c == nil {
		return 0
	}
	return c.entries.ItemCount()
}

func materialID(passphrase, salt string) string {
	sum := sha256.Sum256([]byte(passphrase + "\x00" + salt))
	return hex.EncodeToString(sum[:])
}
