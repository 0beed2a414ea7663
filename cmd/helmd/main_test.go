package main

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	natsserver "github.com/nats-io/nats-server/v2/server"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fyrsmithlabs/helmd/internal/config"
	"github.com/fyrsmithlabs/helmd/internal/governance"
	"github.com/fyrsmithlabs/helmd/internal/monitor"
)

const validProposal = `{
	"speech": "what a hand",
	"intents": [{
		"type": "game_event",
		"confidence": 0.95,
		"justification": "four of a kind on the turn",
		"gameAction": "celebrate",
		"intensity": "high",
		"timing": "immediate"
	}]
}`

const lowConfidenceProposal = `{
	"speech": "noted",
	"intents": [{
		"type": "memory_proposal",
		"confidence": 0.8,
		"justification": "the chat repeated it all night",
		"scope": "stream",
		"summary": "chat loves bluff calls"
	}]
}`

func execute(t *testing.T, stdin string, args ...string) (string, error) {
	t.Helper()
	root := newRootCmd()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetIn(strings.NewReader(stdin))
	root.SetArgs(args)
	err := root.ExecuteContext(context.Background())
	return out.String(), err
}

// isolateHome points the default config directory at a temp dir.
func isolateHome(t *testing.T) string {
	t.Helper()
	home := t.TempDir()
	t.Setenv("HOME", home)
	return home
}

func writeFile(t *testing.T, path, content string) string {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o700))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestRootCommandTree(t *testing.T) {
	root := newRootCmd()

	var names []string
	for _, c := range root.Commands() {
		names = append(names, c.Name())
	}
	for _, want := range []string{"serve", "validate", "submit", "approve", "reject", "health", "monitor", "version"} {
		assert.Contains(t, names, want)
	}
	assert.NotNil(t, root.PersistentFlags().Lookup("config"))
	assert.Equal(t, "http://localhost:9090", root.PersistentFlags().Lookup("server").DefValue)
}

func TestVersionCommand(t *testing.T) {
	out, err := execute(t, "", "version")
	require.NoError(t, err)
	assert.Contains(t, out, "helmd dev")
}

func TestGovernanceConfig(t *testing.T) {
	got := governanceConfig(config.Default().Governance)
	assert.Equal(t, governance.DefaultConfig(), got)
	assert.NoError(t, got.Validate())

	gc := config.Default().Governance
	gc.MemoryLocked = true
	gc.ExecutionTimeout = config.Duration(3 * time.Second)
	got = governanceConfig(gc)
	assert.True(t, got.MemoryLocked)
	assert.Equal(t, 3*time.Second, got.ExecutionTimeout)
}

func TestServerConfig(t *testing.T) {
	sc := config.Default().Server
	sc.Port = 8181
	got := serverConfig(sc)

	assert.Equal(t, "localhost", got.Host)
	assert.Equal(t, 8181, got.Port)
	assert.Equal(t, 30*time.Second, got.Heartbeat)
	assert.Equal(t, []string{"*"}, got.AllowOrigins)
}

func TestValidateCommand(t *testing.T) {
	home := isolateHome(t)

	t.Run("defaults only", func(t *testing.T) {
		out, err := execute(t, "", "validate")
		require.NoError(t, err)
		assert.Contains(t, out, "✓ config")
		assert.Contains(t, out, "defaults")
	})

	t.Run("config file", func(t *testing.T) {
		path := writeFile(t, filepath.Join(home, ".config", "helmd", "config.toml"), "[governance]\nmemory_locked = true\n")
		out, err := execute(t, "", "validate", "--config", path)
		require.NoError(t, err)
		assert.Contains(t, out, path)
	})

	t.Run("config outside the allowed dirs", func(t *testing.T) {
		path := writeFile(t, filepath.Join(t.TempDir(), "config.yaml"), "server:\n  http_port: 9000\n")
		out, err := execute(t, "", "validate", "--config", path)
		require.Error(t, err)
		assert.Contains(t, out, "✗ config")
	})

	t.Run("valid proposal from stdin", func(t *testing.T) {
		out, err := execute(t, validProposal, "validate", "-")
		require.NoError(t, err)
		assert.Contains(t, out, "✓ proposal")
		assert.Contains(t, out, "1 intent(s)")
	})

	t.Run("invalid proposal file", func(t *testing.T) {
		path := writeFile(t, filepath.Join(t.TempDir(), "p.json"),
			`{"speech":"hi","intents":[{"type":"game_event","confidence":2}]}`)
		out, err := execute(t, "", "validate", path)
		require.ErrorIs(t, err, errInvalidProposal)
		assert.Contains(t, out, "✗ proposal")
		assert.Contains(t, out, "confidence")
		assert.Contains(t, out, "out_of_range")
	})

	t.Run("empty stdin", func(t *testing.T) {
		_, err := execute(t, "", "validate", "-")
		require.Error(t, err)
	})
}

func TestSubmitCommand(t *testing.T) {
	var gotSource string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotSource = r.URL.Query().Get("source")
		body, _ := io.ReadAll(r.Body)
		if strings.Contains(string(body), "four of a kind") {
			w.WriteHeader(http.StatusAccepted)
			_, _ = io.WriteString(w, `{"accepted":true,"intake":{"id":"x1","status":"pending","priority":"medium","message":"awaiting review"}}`)
			return
		}
		w.WriteHeader(http.StatusUnprocessableEntity)
		_, _ = io.WriteString(w, `{"accepted":false,"violations":[{"field":"intents","message":"is required","code":"missing"}]}`)
	}))
	defer server.Close()

	out, err := execute(t, validProposal, "submit", "--server", server.URL, "--source", "operator")
	require.NoError(t, err)
	assert.Equal(t, "operator", gotSource)
	assert.Contains(t, out, "pending")
	assert.Contains(t, out, "x1")
	assert.Contains(t, out, "awaiting review")

	out, err = execute(t, `{"speech":"hi"}`, "submit", "--server", server.URL)
	require.ErrorIs(t, err, errInvalidProposal)
	assert.Contains(t, out, "missing")
}

func TestDecisionCommands(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/v1/intents/abc/decision":
			body, _ := io.ReadAll(r.Body)
			if strings.Contains(string(body), `"reject"`) {
				_, _ = io.WriteString(w, `{"id":"abc","status":"rejected","message":"rejected: off topic"}`)
				return
			}
			_, _ = io.WriteString(w, `{"id":"abc","status":"approved","message":"approved and executed"}`)
		default:
			w.WriteHeader(http.StatusNotFound)
			_, _ = io.WriteString(w, `{"id":"gone","status":"error","message":"intent not found"}`)
		}
	}))
	defer server.Close()

	out, err := execute(t, "", "approve", "abc", "--server", server.URL)
	require.NoError(t, err)
	assert.Contains(t, out, "approved and executed")

	out, err = execute(t, "", "reject", "abc", "--reason", "off topic", "--server", server.URL)
	require.NoError(t, err)
	assert.Contains(t, out, "rejected: off topic")

	_, err = execute(t, "", "approve", "gone", "--server", server.URL)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not pending")

	_, err = execute(t, "", "approve", "--server", server.URL)
	require.Error(t, err, "an intent id is required")
}

func TestHealthCommand(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/health", r.URL.Path)
		_, _ = io.WriteString(w, `{"status":"ok"}`)
	}))
	defer server.Close()

	out, err := execute(t, "", "health", "--server", server.URL)
	require.NoError(t, err)
	assert.Contains(t, out, "Server status: ok")

	server.Close()
	_, err = execute(t, "", "health", "--server", server.URL)
	require.Error(t, err)
}

func TestMonitorCommandRejectsBadInterval(t *testing.T) {
	_, err := execute(t, "", "monitor", "--interval", "0s")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "--interval")
}

func startTestNATSServer(t *testing.T) *natsserver.Server {
	t.Helper()
	server, err := natsserver.NewServer(&natsserver.Options{
		Host:   "127.0.0.1",
		Port:   -1,
		NoLog:  true,
		NoSigs: true,
	})
	require.NoError(t, err)

	go server.Start()
	if !server.ReadyForConnections(5 * time.Second) {
		t.Fatal("nats server not ready")
	}
	t.Cleanup(func() {
		server.Shutdown()
		server.WaitForShutdown()
	})
	return server
}

func freePort(t *testing.T) int {
	t.Helper()
	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	port := l.Addr().(*net.TCPAddr).Port
	require.NoError(t, l.Close())
	return port
}

const serveConfig = `[governance]
memory_locked = %t

[server]
host = "127.0.0.1"
http_port = %d
shutdown_timeout = "2s"

[nats]
enabled = true
url = %q
`

func TestApp_Lifecycle(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	home := isolateHome(t)
	ns := startTestNATSServer(t)
	port := freePort(t)

	path := writeFile(t, filepath.Join(home, ".config", "helmd", "config.toml"),
		fmt.Sprintf(serveConfig, false, port, ns.ClientURL()))
	cfg, err := config.Load(path)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	a, err := newApp(ctx, cfg)
	require.NoError(t, err)
	require.NotNil(t, a.bridge)
	require.NotNil(t, a.watcher)

	errCh := make(chan error, 1)
	go func() {
		errCh <- a.run(ctx)
	}()

	client := monitor.NewClient(fmt.Sprintf("http://127.0.0.1:%d", port))
	require.Eventually(t, func() bool {
		_, err := client.Health(ctx)
		return err == nil
	}, 5*time.Second, 20*time.Millisecond)

	res, err := client.Submit(ctx, []byte(lowConfidenceProposal), "")
	require.NoError(t, err)
	require.True(t, res.Accepted)
	assert.Equal(t, "pending", res.Intake.Status)

	snap, err := client.Dashboard(ctx)
	require.NoError(t, err)
	assert.Len(t, snap.PendingIntents, 1)
	assert.False(t, snap.Config.MemoryLocked)

	writeFile(t, path, fmt.Sprintf(serveConfig, true, port, ns.ClientURL()))
	require.Eventually(t, func() bool {
		return a.pipeline.Config().MemoryLocked
	}, 5*time.Second, 50*time.Millisecond, "config edits reach the running pipeline")

	cancel()
	select {
	case err := <-errCh:
		assert.NoError(t, err)
	case <-time.After(10 * time.Second):
		t.Fatal("daemon did not shut down in time")
	}
	assert.True(t, a.nc.IsClosed() || a.nc.IsDraining())
}
