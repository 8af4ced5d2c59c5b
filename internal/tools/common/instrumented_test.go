package common

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/inboxtriage/inboxtriage/internal/server"
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

func testServerContext(t *testing.T) *server.ServerContext {
	t.Helper()

	dir := t.TempDir()
	credentialsFile := filepath.Join(dir, "credentials.json")
	require.NoError(t, os.WriteFile(credentialsFile, []byte(testCredentialsJSON), 0600))

	sc, err := server.NewServerContext(context.Background(), server.Config{
		CredentialsFile: credentialsFile,
		TokenFile:       filepath.Join(dir, "token.json"),
	})
	require.NoError(t, err)
	t.Cleanup(sc.Shutdown)

	return sc
}

func TestInstrumentedToolHandler_Success(t *testing.T) {
	sc := testServerContext(t)

	called := false
	handler := func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		called = true
		return mcp.NewToolResultText("success"), nil
	}

	wrapped := InstrumentedToolHandler("test_tool", "list", sc, handler)

	result, err := wrapped(context.Background(), mcp.CallToolRequest{})

	require.NoError(t, err)
	assert.True(t, called, "expected handler to be called")
	assert.NotNil(t, result)
}

func TestInstrumentedToolHandler_Error(t *testing.T) {
	sc := testServerContext(t)

	expectedErr := errors.New("test error")
	handler := func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		return nil, expectedErr
	}

	wrapped := InstrumentedToolHandler("test_tool", "archive", sc, handler)

	_, err := wrapped(context.Background(), mcp.CallToolRequest{})
	assert.ErrorIs(t, err, expectedErr)
}

func TestInstrumentedToolHandler_ErrorResult(t *testing.T) {
	sc := testServerContext(t)

	handler := func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		return mcp.NewToolResultError("error message"), nil
	}

	wrapped := InstrumentedToolHandler("test_tool", "trash", sc, handler)

	result, err := wrapped(context.Background(), mcp.CallToolRequest{})
	require.NoError(t, err)
	require.NotNil(t, result)
	assert.True(t, result.IsError, "expected an error result")
}
