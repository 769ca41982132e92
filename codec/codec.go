// Package codec decides how a stored note field is read back and makes sure
// every write uses the current encrypted form.
//
// Rows written before encryption was introduced hold plain text. Those
// fields are recognised by failing the packed-field format check and are
// passed through untouched. A field that looks encrypted but cannot be
// decrypted is logged and returned raw, so one damaged row never hides the
// rest of the dataset.
package codec

import (
	"log/slog"

	"datavault/crypto"
)

// Kind classifies a stored field.
type Kind int

const (
	// LegacyPlaintext is a field that does not parse as a packed field.
	LegacyPlaintext Kind = iota
	// Encrypted is a field of the form base64(16-byte iv):base64(ciphertext).
	Encrypted
)

func (k Kind) String() string {
	if k == Encrypted {
		return "encrypted"
	}
	return "legacy-plaintext"
}

// Classify inspects a stored value without decrypting it.
func Classify(field string) Kind {
	if _, _, err := crypto.Unpack(field); err != nil {
		return LegacyPlaintext
	}
	return Encrypted
}

// Codec encodes and decodes note fields.
type Codec struct {
	logger *slog.Logger
}

// New returns a Codec that reports degraded fields to logger.
func New(logger *slog.Logger) *Codec {
	if logger == nil {
		logger = slog.Default()
	}
	return &Codec{logger: logger}
}

// Decode returns the plaintext of field. Legacy values and values that fail
// to decrypt come back unchanged; the latter are logged as decrypt_failed.
func (c *Codec) Decode(field string, key []byte) string {
	text, ok := c.TryDecode(field, key)
	if !ok {
		return field
	}
	return text
}

// TryDecode is Decode that also reports whether the value was usable:
// ok is false only when an encrypted-looking value failed to decrypt.
func (c *Codec) TryDecode(field string, key []byte) (string, bool) {
	if Classify(field) == LegacyPlaintext {
		return field, true
	}
	text, err := crypto.DecryptField(field, key)
	if err != nil {
		c.logger.Warn("stored field could not be decrypted, returning raw value",
			"event", "decrypt_failed",
			"error", err)
		return field, false
	}
	return text, true
}

// Encode always produces the encrypted form.
func (c *Codec) Encode(field string, key []byte) (string, error) {
	return crypto.EncryptField(field, key)
}
