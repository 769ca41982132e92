package crypto

import (
	"bytes"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"strings"
	"unicode/utf8"

	"golang.org/x/crypto/pbkdf2"
)

const (
	// KeySize is the AES-256 key length in bytes.
	KeySize = 32
	// IVSize is the CBC initialization vector length in bytes.
	IVSize = aes.BlockSize
	// Iterations is the PBKDF2 work factor. Changing it changes every derived
	// key, so it can only move together with a re-encryption migration.
	Iterations = 1000
	// Separator joins the IV and ciphertext in a packed field.
	Separator = ":"
)

var (
	// ErrDecryption covers a wrong key and corrupted or foreign data.
	ErrDecryption = errors.New("decryption failed")
	// ErrKeyDerivation is returned if PBKDF2 yields an unusable key.
	ErrKeyDerivation = errors.New("key derivation failed")
)

// DeriveKey stretches passphrase and salt into a 256-bit key with
// PBKDF2-HMAC-SHA256.
func DeriveKey(passphrase, salt string) ([]byte, error) {
	return deriveKey(passphrase, salt, Iterations)
}

func deriveKey(passphrase, salt string, iterations int) ([]byte, error) {
	key := pbkdf2.Key([]byte(passphrase), []byte(salt), iterations, KeySize, sha256.New)
	if len(key) != KeySize {
		return nil, fmt.Errorf("%w: got %d bytes", ErrKeyDerivation, len(key))
	}
	return key, nil
}

// EncryptField encrypts text under key with a fresh random IV and returns
// base64(iv) + ":" + base64(ciphertext).
func EncryptField(text string, key []byte) (string, error) {
	block, err := newBlock(key)
	if err != nil {
		return "", err
	}

	iv := make([]byte, IVSize)
	if _, err := io.ReadFull(rand.Reader, iv); err != nil {
		return "", err
	}

	plaintext := pkcs7Pad([]byte(text), aes.BlockSize)
	ciphertext := make([]byte, len(plaintext))
	cipher.NewCBCEncrypter(block, iv).CryptBlocks(ciphertext, plaintext)

	return base64.StdEncoding.EncodeToString(iv) + Separator + base64.StdEncoding.EncodeToString(ciphertext), nil
}

// DecryptField reverses EncryptField. Every failure wraps ErrDecryption.
func DecryptField(packed string, key []byte) (string, error) {
	iv, ciphertext, err := Unpack(packed)
	if err != nil {
		return "", err
	}
	if len(ciphertext) == 0 || len(ciphertext)%aes.BlockSize != 0 {
		return "", fmt.Errorf("%w: ciphertext is not a whole number of blocks", ErrDecryption)
	}

	block, err := newBlock(key)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrDecryption, err)
	}

	plaintext := make([]byte, len(ciphertext))
	cipher.NewCBCDecrypter(block, iv).CryptBlocks(plaintext, ciphertext)

	plaintext, err = pkcs7Unpad(plaintext, aes.BlockSize)
	if err != nil {
		return "", err
	}
	if !utf8.Valid(plaintext) {
		return "", fmt.Errorf("%w: plaintext is not valid UTF-8", ErrDecryption)
	}
	return string(plaintext), nil
}

// Unpack splits a packed field on its first separator and decodes both
// halves. It does not decrypt.
func Unpack(packed string) (iv, ciphertext []byte, err error) {
	ivPart, ctPart, ok := strings.Cut(packed, Separator)
	if !ok {
		return nil, nil, fmt.Errorf("%w: missing separator", ErrDecryption)
	}
	iv, err = base64.StdEncoding.DecodeString(ivPart)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: iv is not base64", ErrDecryption)
	}
	if len(iv) != IVSize {
		return nil, nil, fmt.Errorf("%w: iv is %d bytes", ErrDecryption, len(iv))
	}
	ciphertext, err = base64.StdEncoding.DecodeString(ctPart)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: ciphertext is not base64", ErrDecryption)
	}
	return iv, ciphertext, nil
}

func newBlock(key []byte) (cipher.Block, error) {
	if len(key) != KeySize {
		return nil, fmt.Errorf("key must be %d bytes, got %d", KeySize, len(key))
	}
	return aes.NewCipher(key)
}

func pkcs7Pad(data []byte, blockSize int) []byte {
	n := blockSize - len(data)%blockSize
	return append(data, bytes.Repeat([]byte{byte(n)}, n)...)
}

func pkcs7Unpad(data []byte, blockSize int) ([]byte, error) {
	if len(data) == 0 || len(data)%blockSize != 0 {
		return nil, fmt.Errorf("%w: bad padding", ErrDecryption)
	}
	n := int(data[len(data)-1])
	if n == 0 || n > blockSize {
		return nil, fmt.Errorf("%w: bad padding", ErrDecryption)
	}
	for _, b := range data[len(data)-n:] {
		if int(b) != n {
			return nil, fmt.Errorf("%w: bad padding", ErrDecryption)
		}
	}
	return data[:len(data)-n], nil
}
