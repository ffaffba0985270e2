package storage

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

const (
	testUserID    = "8e3874ae-4b40-590b-968a-418f704b9d9a"
	testRequestID = "d5bea1c8-2b59-4a0b-9d3f-2fa1c8b6e6a4"
)

func writeKeyFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestPromptForAccount(t *testing.T) {
	private := writeKeyFile(t, "private.asc", "PRIVATE")
	public := writeKeyFile(t, "public.asc", "PUBLIC")
	input := strings.Join([]string{testUserID, "ada", "https://vault.example.com", private, public}, "\n") + "\n"

	var out bytes.Buffer
	a, err := PromptForAccount(strings.NewReader(input), &out)
	if err != nil {
		t.Fatalf("PromptForAccount failed: %v", err)
	}
	if a.UserID != testUserID || a.Username != "ada" || a.Domain != "https://vault.example.com" {
		t.Errorf("unexpected account: %+v", a)
	}
	if a.UserPrivateArmoredKey != "PRIVATE" || a.UserPublicArmoredKey != "PUBLIC" {
		t.Errorf("keys not read from files: %+v", a)
	}
	if !strings.Contains(out.String(), "Private key file: ") {
		t.Errorf("prompt missing from output: %q", out.String())
	}
}

func TestPromptForAccount_InvalidUserID(t *testing.T) {
	_, err := PromptForAccount(strings.NewReader("not-a-uuid\n"), &bytes.Buffer{})
	if err == nil {
		t.Fatal("expected an error for an invalid user id")
	}
}

func TestPromptForAccount_FileNotFound(t *testing.T) {
	input := testUserID + "\nada\nexample.com\n/no/such/file\n"
	_, err := PromptForAccount(strings.NewReader(input), &bytes.Buffer{})
	if !errors.Is(err, os.ErrNotExist) {
		t.Errorf("expected ErrNotExist, got %v", err)
	}
}

func TestPromptForAccount_InputEnds(t *testing.T) {
	_, err := PromptForAccount(strings.NewReader(testUserID+"\nada\n"), &bytes.Buffer{})
	if !errors.Is(err, errMissingAnswer) {
		t.Errorf("expected errMissingAnswer, got %v", err)
	}
}

func TestPromptForRecoveryAccount(t *testing.T) {
	private := writeKeyFile(t, "temp.asc", "TEMP PRIVATE")
	public := writeKeyFile(t, "temp.pub", "TEMP PUBLIC")
	known := writeKeyFile(t, "old.pub", "OLD PUBLIC")

	cases := []struct {
		name      string
		knownPath string
		wantKnown string
	}{
		{"with known key", known, "OLD PUBLIC"},
		{"without known key", "", ""},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			input := strings.Join([]string{
				testUserID, "ada", "example.com", private, public, testRequestID, "token", tc.knownPath,
			}, "\n") + "\n"

			ra, err := PromptForRecoveryAccount(strings.NewReader(input), &bytes.Buffer{})
			if err != nil {
				t.Fatalf("PromptForRecoveryAccount failed: %v", err)
			}
			if ra.AccountRecoveryRequestID != testRequestID || ra.AuthenticationToken != "token" {
				t.Errorf("unexpected recovery fields: %+v", ra)
			}
			if ra.UserPrivateArmoredKey != "TEMP PRIVATE" {
				t.Errorf("unexpected private key %q", ra.UserPrivateArmoredKey)
			}
			if ra.KnownPublicArmoredKey != tc.wantKnown {
				t.Errorf("KnownPublicArmoredKey = %q; want %q", ra.KnownPublicArmoredKey, tc.wantKnown)
			}
		})
	}
}
