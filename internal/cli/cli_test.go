package cli

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"rssreader/internal/security"
)

func runCommand(t *testing.T, args ...string) (string, error) {
	t.Helper()
	t.Setenv("DATA_DIR", t.TempDir())
	t.Setenv("DATABASE_URL", "")
	t.Setenv("INOREADER_ACCESS_TOKEN", "")
	t.Setenv("INOREADER_REFRESH_TOKEN", "")
	t.Setenv("LOG_LEVEL", "error")

	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	rootCmd.SetArgs(args)
	err := rootCmd.Execute()
	return out.String(), err
}

func TestCommandsRegistered(t *testing.T) {
	for _, path := range [][]string{
		{"serve"}, {"sync"}, {"cleanup"}, {"migrate"}, {"status"},
		{"auth", "url"}, {"auth", "exchange"}, {"auth", "token"},
	} {
		cmd, _, err := rootCmd.Find(path)
		require.NoError(t, err, path)
		assert.Equal(t, path[len(path)-1], cmd.Name())
	}
}

func TestMigrateCommand(t *testing.T) {
	out, err := runCommand(t, "migrate")
	require.NoError(t, err)
	assert.Contains(t, out, "Schema is up to date")
}

func TestCleanupCommand_EmptyDatabase(t *testing.T) {
	out, err := runCommand(t, "cleanup")
	require.NoError(t, err)
	assert.Contains(t, out, "Cleanup completed")
	assert.Contains(t, out, "0")
}

func TestStatusCommand_JSON(t *testing.T) {
	out, err := runCommand(t, "status", "--json")
	require.NoError(t, err)

	var report struct {
		LastSync struct {
			Status string `json:"status"`
		} `json:"last_sync"`
		Usage struct {
			Zone1Limit int `json:"zone1_limit"`
		} `json:"api_usage"`
		Database struct {
			Articles int `json:"articles"`
		} `json:"database"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &report))
	assert.Equal(t, "never", report.LastSync.Status)
	assert.Equal(t, 100, report.Usage.Zone1Limit)
	assert.Equal(t, 0, report.Database.Articles)
}

func TestSyncCommand_RequiresToken(t *testing.T) {
	_, err := runCommand(t, "sync")
	assert.Error(t, err)
}

func TestUsageColor(t *testing.T) {
	assert.Contains(t, usageColor(12.34), "12.3%")
	assert.Contains(t, usageColor(99), "99.0%")
}

func TestFormatTime(t *testing.T) {
	assert.Equal(t, "never", formatTime(nil))

	ts := time.Now().Add(-time.Minute)
	assert.Contains(t, formatTime(&ts), "ago")
}

func TestPercentOf(t *testing.T) {
	assert.Equal(t, 0.0, percentOf(5, 0))
	assert.Equal(t, 50.0, percentOf(50, 100))
}

func TestAuthTokenCommand(t *testing.T) {
	t.Setenv("AUTH_JWT_SECRET", "s3cret")
	t.Setenv("AUTH_OWNER_ID", "owner-1")

	out, err := runCommand(t, "auth", "token", "--ttl", "1h")
	require.NoError(t, err)

	subject, err := security.NewAuthenticator("s3cret", "owner-1").Verify(strings.TrimSpace(out))
	require.NoError(t, err)
	assert.Equal(t, "owner-1", subject)
}

func TestAuthTokenCommand_RequiresSecret(t *testing.T) {
	t.Setenv("AUTH_JWT_SECRET", "")

	_, err := runCommand(t, "auth", "token")
	assert.Error(t, err)
}

func newFakeInoreader(t *testing.T, userInfoStatus int) {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/oauth2/token", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]interface{}{
			"access_token":  "new-access",
			"refresh_token": "new-refresh",
			"token_type":    "Bearer",
			"expires_in":    3600,
		})
	})
	mux.HandleFunc("/reader/api/0/user-info", func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer new-access" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		w.WriteHeader(userInfoStatus)
		_ = json.NewEncoder(w).Encode(map[string]string{"userId": "1", "userName": "reader"})
	})
	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)

	t.Setenv("INOREADER_BASE_URL", server.URL+"/reader/api/0")
	t.Setenv("INOREADER_TOKEN_URL", server.URL+"/oauth2/token")
	t.Setenv("INOREADER_CLIENT_ID", "client")
	t.Setenv("INOREADER_CLIENT_SECRET", "secret")
	t.Setenv("INOREADER_RETRY_ATTEMPTS", "0")
}

func TestAuthExchangeCommand_VerifiesAccount(t *testing.T) {
	newFakeInoreader(t, http.StatusOK)

	out, err := runCommand(t, "auth", "exchange", "the-code")
	require.NoError(t, err)
	assert.Contains(t, out, "Signed in as reader")
}

func TestAuthExchangeCommand_RejectedToken(t *testing.T) {
	newFakeInoreader(t, http.StatusForbidden)

	out, err := runCommand(t, "auth", "exchange", "the-code")
	assert.Error(t, err)
	assert.NotContains(t, out, "Signed in")
}
