package crypto

import (
	"encoding/base64"
	"errors"
	"strings"
	"testing"

	apperrors "github.com/kimhsiao/memonexus/contentsync/internal/errors"
)

// TestSealOpen_roundtrip verifies sealed values open with the same machine ID.
func TestSealOpen_roundtrip(t *testing.T) {
	sealed, err := Seal("AKIAEXAMPLE", "machine-a")
	if err != nil {
		t.Fatalf("Seal() error = %v", err)
	}
	if !strings.HasPrefix(sealed, SealedPrefix) {
		t.Errorf("Seal() = %q, missing prefix", sealed)
	}
	if strings.Contains(sealed, "AKIAEXAMPLE") {
		t.Error("sealed value leaks the plaintext")
	}

	opened, err := Open(sealed, "machine-a")
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	if opened != "AKIAEXAMPLE" {
		t.Errorf("Open() = %q, want AKIAEXAMPLE", opened)
	}
}

// TestSeal_randomNonce verifies sealing twice gives different values.
func TestSeal_randomNonce(t *testing.T) {
	a, _ := Seal("secret", "m")
	b, _ := Seal("secret", "m")
	if a == b {
		t.Error("Seal() should use a fresh nonce per call")
	}
}

// TestSeal_empty verifies empty secrets are rejected.
func TestSeal_empty(t *testing.T) {
	if _, err := Seal("", "m"); !errors.Is(err, ErrEmptySecret) {
		t.Errorf("Seal(\"\") error = %v, want ErrEmptySecret", err)
	}
}

// TestOpen_plain verifies unsealed values pass through.
func TestOpen_plain(t *testing.T) {
	for _, v := range []string{"", "plain-secret"} {
		got, err := Open(v, "m")
		if err != nil || got != v {
			t.Errorf("Open(%q) = %q, %v", v, got, err)
		}
	}
}

// TestOpen_invalid verifies tampered or foreign values fail with CONFIG_INVALID.
func TestOpen_invalid(t *testing.T) {
	sealed, err := Seal("secret", "machine-a")
	if err != nil {
		t.Fatal(err)
	}
	raw, _ := base64.StdEncoding.DecodeString(strings.TrimPrefix(sealed, SealedPrefix))
	raw[len(raw)-1] ^= 0xff
	tampered := SealedPrefix + base64.StdEncoding.EncodeToString(raw)

	tests := map[string]struct {
		value     string
		machineID string
	}{
		"wrong machine": {sealed, "machine-b"},
		"not base64":    {SealedPrefix + "%%%", "machine-a"},
		"truncated":     {SealedPrefix + "AAAA", "machine-a"},
		"tampered":      {tampered, "machine-a"},
	}

	for name, tt := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := Open(tt.value, tt.machineID)
			if !errors.Is(err, ErrInvalidCiphertext) {
				t.Errorf("Open() error = %v, want ErrInvalidCiphertext", err)
			}
			if !apperrors.Is(err, apperrors.ErrConfigInvalid) {
				t.Errorf("Open() error code = %s, want CONFIG_INVALID", apperrors.CodeOf(err))
			}
		})
	}
}

// TestDeriveKey verifies keys are stable per machine and distinct across machines.
func TestDeriveKey(t *testing.T) {
	if len(DeriveKey("a")) != 32 {
		t.Error("DeriveKey() should return 32 bytes")
	}
	if string(DeriveKey("a")) != string(DeriveKey("a")) {
		t.Error("DeriveKey() should be deterministic")
	}
	if string(DeriveKey("a")) == string(DeriveKey("b")) {
		t.Error("DeriveKey() should differ across machines")
	}
	if string(DeriveKey("")) != string(DeriveKey(MachineID())) {
		t.Error("empty machine ID should use MachineID()")
	}
}

// TestMachineID verifies a non-empty identifier is produced.
func TestMachineID(t *testing.T) {
	if MachineID() == "" {
		t.Error("MachineID() returned empty string")
	}
}
