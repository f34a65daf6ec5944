package cli

import (
	"bytes"
	"context"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"connectrpc.com/connect"
	"github.com/spf13/cobra"
	"github.com/stretchr/testify/require"

	"github.com/mmynk/teamsync/internal/auth"
	"github.com/mmynk/teamsync/internal/config"
	"github.com/mmynk/teamsync/internal/models"
	"github.com/mmynk/teamsync/internal/storage"
	"github.com/mmynk/teamsync/internal/storage/sqlite"
	"github.com/mmynk/teamsync/pkg/logging"
	"github.com/mmynk/teamsync/pkg/rpc"
	"github.com/mmynk/teamsync/pkg/rpc/rpcconnect"
)

// executeCommand runs a fresh command tree with args and returns its output.
func executeCommand(t *testing.T, args ...string) (string, error) {
	t.Helper()
	root := NewRootCommand()
	buf := new(bytes.Buffer)
	root.SetOut(buf)
	root.SetErr(buf)
	root.SetArgs(append([]string{"--env-file", ""}, args...))
	err := root.ExecuteContext(context.Background())
	return buf.String(), err
}

// sqliteEnv points the configuration at a temp SQLite database.
func sqliteEnv(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "data", "teamsync.db")
	t.Setenv("TEAMSYNC_STORE_DRIVER", "sqlite")
	t.Setenv("TEAMSYNC_STORE_SQLITE_PATH", path)
	t.Setenv("TEAMSYNC_AUTH_JWT_SECRET", "cli-secret")
	t.Setenv("TEAMSYNC_LOGGING_LEVEL", "error")
	return path
}

func TestRootHasSubcommands(t *testing.T) {
	root := NewRootCommand()
	names := make([]string, 0)
	for _, c := range root.Commands() {
		names = append(names, c.Name())
	}
	require.Subset(t, names, []string{"serve", "migrate", "token"})

	var migrate *cobra.Command
	for _, c := range root.Commands() {
		if c.Name() == "migrate" {
			migrate = c
		}
	}
	require.NotNil(t, migrate)
	sub := make([]string, 0)
	for _, c := range migrate.Commands() {
		sub = append(sub, c.Name())
	}
	require.ElementsMatch(t, []string{"up", "status", "down"}, sub)
}

func TestMigrateUpStatusDown(t *testing.T) {
	sqliteEnv(t)

	out, err := executeCommand(t, "migrate", "up")
	require.NoError(t, err)
	require.Contains(t, out, "schema at version 2")

	out, err = executeCommand(t, "migrate", "status")
	require.NoError(t, err)
	require.Contains(t, out, "applied")
	require.NotContains(t, out, "pending")

	out, err = executeCommand(t, "migrate", "down")
	require.NoError(t, err)
	require.Contains(t, out, "schema at version 1")

	out, err = executeCommand(t, "migrate", "down")
	require.NoError(t, err)
	require.Contains(t, out, "schema at version 0")

	out, err = executeCommand(t, "migrate", "status")
	require.NoError(t, err)
	require.Contains(t, out, "pending")
}

func TestMigrateRejectsMemoryStore(t *testing.T) {
	sqliteEnv(t)
	t.Setenv("TEAMSYNC_STORE_DRIVER", "memory")

	_, err := executeCommand(t, "migrate", "up")
	require.ErrorContains(t, err, "no schema to migrate")
}

func TestInvalidConfigIsReported(t *testing.T) {
	sqliteEnv(t)
	t.Setenv("TEAMSYNC_STORE_DRIVER", "mysql")

	_, err := executeCommand(t, "migrate", "up")
	var verrs config.ValidationErrors
	require.ErrorAs(t, err, &verrs)
}

func TestTokenCommand(t *testing.T) {
	path := sqliteEnv(t)
	ctx := context.Background()

	store, err := sqlite.New(ctx, path, storage.Options{Logger: logging.Discard()})
	require.NoError(t, err)
	err = store.RunInTx(ctx, func(ctx context.Context, tx storage.Tx) error {
		return tx.PutUser(ctx, &models.User{ID: "u1", Email: "dev@example.com", CreatedAt: 1, LastActive: 1})
	})
	require.NoError(t, err)
	require.NoError(t, store.Close())

	out, err := executeCommand(t, "token", "--email", "Dev@Example.com")
	require.NoError(t, err)

	claims, err := auth.NewJWTManager("cli-secret", time.Hour).Validate(strings.TrimSpace(out))
	require.NoError(t, err)
	require.Equal(t, "u1", claims.Principal().ID)

	_, err = executeCommand(t, "token", "--email", "nobody@example.com")
	require.ErrorContains(t, err, "no user")

	_, err = executeCommand(t, "token")
	require.Error(t, err, "--email is required")
}

func TestEnvFileFillsUnsetVariables(t *testing.T) {
	sqliteEnv(t)
	// Register cleanup, then unset so the file can provide the value.
	t.Setenv("TEAMSYNC_AUTH_JWT_SECRET", "")
	require.NoError(t, os.Unsetenv("TEAMSYNC_AUTH_JWT_SECRET"))

	envFile := filepath.Join(t.TempDir(), ".env")
	require.NoError(t, os.WriteFile(envFile, []byte("TEAMSYNC_AUTH_JWT_SECRET=from-dotenv\n"), 0o600))
	require.NoError(t, loadEnvFile(envFile))
	require.Equal(t, "from-dotenv", os.Getenv("TEAMSYNC_AUTH_JWT_SECRET"))

	require.NoError(t, loadEnvFile(filepath.Join(t.TempDir(), "missing.env")))
	require.NoError(t, loadEnvFile(""))
}

func TestServeRunsAndShutsDown(t *testing.T) {
	cfg := config.Default()
	cfg.Server.Addr = "127.0.0.1:0"
	cfg.Server.ShutdownTimeout = 5 * time.Second
	cfg.Store.Driver = config.DriverMemory
	cfg.Auth.JWTSecret = "serve-secret"
	require.Empty(t, cfg.Validate())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	addrCh := make(chan net.Addr, 1)
	done := make(chan error, 1)
	go func() {
		done <- Serve(ctx, cfg, logging.Discard(), func(a net.Addr) { addrCh <- a })
	}()

	var base string
	select {
	case a := <-addrCh:
		base = "http://" + a.String()
	case err := <-done:
		t.Fatalf("server exited early: %v", err)
	case <-time.After(10 * time.Second):
		t.Fatal("server did not start")
	}

	client := rpcconnect.NewAuthServiceClient(http.DefaultClient, base)
	resp, err := client.Register(ctx, connect.NewRequest(&rpc.RegisterRequest{
		Email:    "serve@example.com",
		Password: "correct horse battery",
	}))
	require.NoError(t, err)
	require.NotEmpty(t, resp.Msg.Token)

	health, err := http.Get(base + "/healthz")
	require.NoError(t, err)
	health.Body.Close()
	require.Equal(t, http.StatusOK, health.StatusCode)

	metricsResp, err := http.Get(base + "/metrics")
	require.NoError(t, err)
	body, err := io.ReadAll(metricsResp.Body)
	metricsResp.Body.Close()
	require.NoError(t, err)
	require.Contains(t, string(body), "teamsync_rpc_requests_total")
	require.Contains(t, string(body), "go_goroutines")

	preflight, err := http.NewRequest(http.MethodOptions, base+"/teamsync.v1.AuthService/Login", nil)
	require.NoError(t, err)
	preflight.Header.Set("Origin", "http://localhost:3000")
	pre, err := http.DefaultClient.Do(preflight)
	require.NoError(t, err)
	pre.Body.Close()
	require.Equal(t, "*", pre.Header.Get("Access-Control-Allow-Origin"))
	require.Contains(t, pre.Header.Get("Access-Control-Expose-Headers"), rpc.ErrorKindHeader)

	cancel()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(10 * time.Second):
		t.Fatal("server did not shut down")
	}
}

func TestCORSAllowList(t *testing.T) {
	h := cors([]string{"https://app.example.com"}, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	}))

	for origin, want := range map[string]string{
		"https://app.example.com":  "https://app.example.com",
		"https://evil.example.com": "",
	} {
		req, err := http.NewRequest(http.MethodGet, "/x", nil)
		require.NoError(t, err)
		req.Header.Set("Origin", origin)
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		require.Equal(t, want, rec.Header().Get("Access-Control-Allow-Origin"), origin)
		require.Equal(t, http.StatusTeapot, rec.Code)
	}
}
