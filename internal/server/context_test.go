package server

import (
	"context"
	"os"
	"path/filepath"
	"testing"
)

const testCredentialsJSON = `{
  "installed": {
    "client_id": "test-client-id",
    "client_secret": "test-secret",
    "auth_uri": "https://accounts.google.com/o/oauth2/auth",
    "token_uri": "https://oauth2.googleapis.com/token",
    "redirect_uris": ["http://localhost"]
  }
}`

func testServerContext(t *testing.T) *ServerContext {
	t.Helper()

	dir := t.TempDir()
	credentialsFile := filepath.Join(dir, "credentials.json")
	if err := os.WriteFile(credentialsFile, []byte(testCredentialsJSON), 0600); err != nil {
		t.Fatalf("failed to write credentials file: %v", err)
	}

	sc, err := NewServerContext(context.Background(), Config{
		CredentialsFile: credentialsFile,
		TokenFile:       filepath.Join(dir, "token.json"),
	})
	if err != nil {
		t.Fatalf("NewServerContext() error = %v", err)
	}
	t.Cleanup(sc.Shutdown)

	return sc
}

func TestNewServerContext_MissingCredentials(t *testing.T) {
	_, err := NewServerContext(context.Background(), Config{
		CredentialsFile: filepath.Join(t.TempDir(), "nope.json"),
	})
	if err == nil {
		t.Fatal("expected error for missing credentials file")
	}
}

func TestClientForAccount_Cached(t *testing.T) {
	sc := testServerContext(t)

	first, err := sc.ClientForAccount("default")
	if err != nil {
		t.Fatalf("ClientForAccount() error = %v", err)
	}

	second, err := sc.ClientForAccount("default")
	if err != nil {
		t.Fatalf("ClientForAccount() error = %v", err)
	}

	if first != second {
		t.Error("expected the cached client on the second call")
	}
}

func TestClientForAccount_EmptyMeansDefault(t *testing.T) {
	sc := testServerContext(t)

	named, err := sc.ClientForAccount("default")
	if err != nil {
		t.Fatalf("ClientForAccount() error = %v", err)
	}
	unnamed, err := sc.ClientForAccount("")
	if err != nil {
		t.Fatalf("ClientForAccount() error = %v", err)
	}

	if named != unnamed {
		t.Error("empty account should resolve to the default account client")
	}
}

func TestClientForAccount_SeparateAccounts(t *testing.T) {
	sc := testServerContext(t)

	work, err := sc.ClientForAccount("work")
	if err != nil {
		t.Fatalf("ClientForAccount(work) error = %v", err)
	}
	personal, err := sc.ClientForAccount("personal")
	if err != nil {
		t.Fatalf("ClientForAccount(personal) error = %v", err)
	}

	if work == personal {
		t.Error("different accounts must get different clients")
	}
	if work.Account() != "work" {
		t.Errorf("Account() = %q, want %q", work.Account(), "work")
	}
}

func TestShutdown_Idempotent(t *testing.T) {
	sc := testServerContext(t)

	sc.Shutdown()
	sc.Shutdown()

	if !sc.IsShutdown() {
		t.Error("IsShutdown() = false after Shutdown")
	}

	if _, err := sc.ClientForAccount("default"); err == nil {
		t.Error("expected error creating a client after shutdown")
	}

	select {
	case <-sc.Context().Done():
	default:
		t.Error("server context should be canceled after Shutdown")
	}
}
