package crypto

import (
	"os"
	"path/filepath"
	"testing"
)

func TestCredentialRoundTrip(t *testing.T) {
	blob, err := EncryptCredential("fo-live-8f3k2j", "hunter2")
	if err != nil {
		t.Fatalf("EncryptCredential: %v", err)
	}

	got, err := DecryptCredential(blob, "hunter2")
	if err != nil {
		t.Fatalf("DecryptCredential: %v", err)
	}
	if got != "fo-live-8f3k2j" {
		t.Errorf("credential = %q", got)
	}

	if _, err := DecryptCredential(blob, "wrong"); err == nil {
		t.Error("wrong password must not decrypt")
	}
}

func TestResolveCredentialPrecedence(t *testing.T) {
	if got, err := ResolveCredential(CredentialConfig{ApiKey: "plain"}); err != nil || got != "plain" {
		t.Fatalf("ResolveCredential(plain) = %q, %v", got, err)
	}

	blob, err := EncryptCredential("sealed", "pw")
	if err != nil {
		t.Fatalf("EncryptCredential: %v", err)
	}
	path := filepath.Join(t.TempDir(), "key.json")
	if err := os.WriteFile(path, blob, 0o600); err != nil {
		t.Fatalf("write keyfile: %v", err)
	}

	got, err := ResolveCredential(CredentialConfig{EncryptedKeyPath: path, KeyPassword: "pw"})
	if err != nil {
		t.Fatalf("ResolveCredential(keyfile): %v", err)
	}
	if got != "sealed" {
		t.Errorf("credential = %q", got)
	}

	if _, err := ResolveCredential(CredentialConfig{}); err == nil {
		t.Error("empty config must error")
	}
}
