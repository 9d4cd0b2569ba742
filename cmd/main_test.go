package main

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"chat-widget/internal/config"
)

func chatServer(t *testing.T, sessionID string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]string{
			"response":   "Hi there!",
			"session_id": sessionID,
		})
	}))
	t.Cleanup(srv.Close)
	return srv
}

func isolate(t *testing.T) string {
	t.Helper()
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())
	dataDir := t.TempDir()
	t.Setenv("CHATWIDGET_DATA_DIR", dataDir)
	t.Setenv("CHATWIDGET_LOG_LEVEL", "error")
	return dataDir
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	root := newRootCmd()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(io.Discard)
	root.SetIn(strings.NewReader(""))
	root.SetArgs(args)
	err := root.ExecuteContext(context.Background())
	return out.String(), err
}

func TestSendCommand(t *testing.T) {
	isolate(t)
	srv := chatServer(t, "abc123")

	out, err := execute(t, "send", "--endpoint", srv.URL, "--store", "memory", "Hello")
	require.NoError(t, err)
	require.Equal(t, "You: Hello\nBot: Hi there!\n", out)
}

func TestSendCommand_ServerDown(t *testing.T) {
	isolate(t)
	srv := chatServer(t, "abc123")
	url := srv.URL
	srv.Close()

	out, err := execute(t, "send", "--endpoint", url, "--store", "memory", "Hello")
	require.Error(t, err)
	require.Contains(t, err.Error(), "TRANSPORT_ERROR")
	require.Contains(t, out, "Bot: Could not reach the server.")
}

func TestSessionShowAndReset(t *testing.T) {
	isolate(t)
	srv := chatServer(t, "abc123")

	out, err := execute(t, "session", "show")
	require.NoError(t, err)
	require.Equal(t, "no session id stored for profile \"default\"\n", out)

	_, err = execute(t, "send", "--endpoint", srv.URL, "hi")
	require.NoError(t, err)

	out, err = execute(t, "session", "show")
	require.NoError(t, err)
	require.Equal(t, "abc123\n", out)

	out, err = execute(t, "session", "reset")
	require.NoError(t, err)
	require.Contains(t, out, "session id cleared")

	out, err = execute(t, "session", "show")
	require.NoError(t, err)
	require.Contains(t, out, "no session id stored")
}

func TestSessionShow_ServerIssued(t *testing.T) {
	isolate(t)
	out, err := execute(t, "session", "show", "--session-mode", "server-issued", "--store", "memory")
	require.NoError(t, err)
	require.Contains(t, out, "not persisted")
}

func TestRootCommand_LinesAndTranscript(t *testing.T) {
	dataDir := isolate(t)
	srv := chatServer(t, "abc123")
	transcript := filepath.Join(dataDir, "chat.html")

	root := newRootCmd()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(io.Discard)
	root.SetIn(strings.NewReader("Hello\n\n<b>bold</b>\n"))
	root.SetArgs([]string{"--endpoint", srv.URL, "--store", "memory", "--transcript", transcript})
	require.NoError(t, root.ExecuteContext(context.Background()))

	require.Equal(t, "You: Hello\nBot: Hi there!\nYou: <b>bold</b>\nBot: Hi there!\n", out.String())

	html, err := os.ReadFile(transcript)
	require.NoError(t, err)
	require.Contains(t, string(html), `<div class="message user"><div><b>You:</b> &lt;b&gt;bold&lt;/b&gt;</div></div>`)
	require.NotContains(t, string(html), "loading-message")
}

func TestInvalidConfigIsRejected(t *testing.T) {
	isolate(t)
	_, err := execute(t, "session", "show", "--store", "dynamodb")
	require.Error(t, err)
	require.Contains(t, err.Error(), "dynamo_table")
}

func pebbleConfig(endpoint, dataDir string) *config.Config {
	cfg := config.Default()
	cfg.Endpoint = endpoint
	cfg.DataDir = dataDir
	cfg.LogLevel = "error"
	return cfg
}

func TestTwoClientsShareThePersistedSession(t *testing.T) {
	dataDir := isolate(t)
	srv := chatServer(t, "abc123")
	ctx := context.Background()

	first, err := newApp(ctx, pebbleConfig(srv.URL, dataDir))
	require.NoError(t, err)
	defer first.Close()

	second, err := newApp(ctx, pebbleConfig(srv.URL, dataDir))
	require.NoError(t, err)
	defer second.Close()

	a, ok := first.identity.Current()
	require.True(t, ok)
	b, _ := second.identity.Current()
	require.Equal(t, a, b)

	out, err := execute(t, "session", "show")
	require.NoError(t, err)
	require.Equal(t, a+"\n", out)
}

func TestServerIssuedDoesNotOpenStore(t *testing.T) {
	dataDir := isolate(t)
	srv := chatServer(t, "abc123")

	cfg := pebbleConfig(srv.URL, dataDir)
	cfg.SessionMode = "server-issued"
	a, err := newApp(context.Background(), cfg)
	require.NoError(t, err)
	defer a.Close()

	_, ok := a.identity.Current()
	require.False(t, ok)
	_, err = os.Stat(filepath.Join(dataDir, "sessions"))
	require.True(t, os.IsNotExist(err))
}
