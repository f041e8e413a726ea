// Package crypto seals storage credentials so config files can carry them
// without exposing the plaintext. Values use AES-256-GCM with a key derived
// from a machine identifier.
package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"io"
	"os"
	"runtime"
	"strings"

	apperrors "github.com/kimhsiao/memonexus/contentsync/internal/errors"
)

// SealedPrefix marks a sealed value in configuration.
const SealedPrefix = "sealed:"

var (
	// ErrInvalidCiphertext is returned when a sealed value cannot be opened.
	ErrInvalidCiphertext = errors.New("invalid ciphertext")
	// ErrEmptySecret is returned when sealing an empty value.
	ErrEmptySecret = errors.New("secret cannot be empty")
)

// IsSealed reports whether value carries the sealed prefix.
func IsSealed(value string) bool {
	return strings.HasPrefix(value, SealedPrefix)
}

// Seal encrypts secret for machineID and returns it with SealedPrefix.
// An empty machineID uses MachineID().
func Seal(secret, machineID string) (string, error) {
	if secret == "" {
		return "", ErrEmptySecret
	}

	gcm, err := newGCM(machineID)
	if err != nil {
		return "", err
	}

	nonce := make([]byte, gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", err
	}

	sealed := gcm.Seal(nonce, nonce, []byte(secret), nil)
	return SealedPrefix + base64.StdEncoding.EncodeToString(sealed), nil
}

// Open returns the plaintext of a sealed value. Values without SealedPrefix
// are returned unchanged so plain and sealed credentials can be mixed.
func Open(value, machineID string) (string, error) {
	if !IsSealed(value) {
		return value, nil
	}

	data, err := base64.StdEncoding.DecodeString(strings.TrimPrefix(value, SealedPrefix))
	if err != nil {
		return "", apperrors.Wrap(apperrors.ErrConfigInvalid, "sealed value is not valid base64", ErrInvalidCiphertext)
	}

	gcm, err := newGCM(machineID)
	if err != nil {
		return "", err
	}

	nonceSize := gcm.NonceSize()
	if len(data) < nonceSize {
		return "", apperrors.Wrap(apperrors.ErrConfigInvalid, "sealed value is truncated", ErrInvalidCiphertext)
	}

	plaintext, err := gcm.Open(nil, data[:nonceSize], data[nonceSize:], nil)
	if err != nil {
		// Wrong machine or tampered value
		return "", apperrors.Wrap(apperrors.ErrConfigInvalid, "sealed value cannot be opened on this machine", ErrInvalidCiphertext)
	}
	return string(plaintext), nil
}

func newGCM(machineID string) (cipher.AEAD, error) {
	key := DeriveKey(machineID)
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	return cipher.NewGCM(block)
}

// DeriveKey derives the 32-byte sealing key for machineID.
// An empty machineID uses MachineID().
func DeriveKey(machineID string) []byte {
	if machineID == "" {
		machineID = MachineID()
	}
	hash := sha256.Sum256([]byte("contentsync:" + machineID))
	return hash[:]
}

// MachineID returns a platform-specific machine identifier.
func MachineID() string {
	switch runtime.GOOS {
	case "linux", "android":
		for _, path := range []string{"/etc/machine-id", "/var/lib/dbus/machine-id"} {
			if data, err := os.ReadFile(path); err == nil {
				if id := strings.TrimSpace(string(data)); id != "" {
					return "linux:" + id
				}
			}
		}
	}
	hostname, _ := os.Hostname()
	return runtime.GOOS + ":" + hostname
}
