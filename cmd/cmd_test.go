package cmd

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/JakeFAU/product-directory/internal/app"
	"github.com/JakeFAU/product-directory/internal/backfill"
	"github.com/JakeFAU/product-directory/internal/config"
)

func writeConfig(t *testing.T, airtableURL, logoURL string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	body := `
airtable:
  api_key: pat
  base_id: appBase
  table_name: Products
  base_url: ` + airtableURL + `
lookup:
  base_url: ` + logoURL + `
imagehost:
  provider: memory
backfill:
  pacing_ms: 0
logging:
  development: false
`
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

// closeSpy records Close calls on a wrapped App.
type closeSpy struct {
	App
	closed int
}

func (c *closeSpy) Close() {
	c.closed++
	c.App.Close()
}

func useSpyApp(t *testing.T) *closeSpy {
	t.Helper()
	spy := &closeSpy{}
	orig := newApp
	newApp = func(cfg config.Config, _ *zap.Logger) (App, error) {
		inner, err := app.New(cfg, zap.NewNop())
		if err != nil {
			return nil, err
		}
		spy.App = inner
		return spy, nil
	}
	t.Cleanup(func() { newApp = orig })
	return spy
}

func useQuietApp(t *testing.T) {
	t.Helper()
	orig := newApp
	newApp = func(cfg config.Config, _ *zap.Logger) (App, error) {
		return app.New(cfg, zap.NewNop())
	}
	t.Cleanup(func() { newApp = orig })
}

// Commands share package state (newApp, rootLogger); these tests run serially.

func TestBackfillCommandPrintsSummary(t *testing.T) {
	spy := useSpyApp(t)

	airtable := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodPatch {
			_, _ = io.WriteString(w, `{}`)
			return
		}
		_, _ = io.WriteString(w, `{"records":[
			{"id":"recA","fields":{"Website":"https://acme.com"}},
			{"id":"recB","fields":{"Website":"https://missing.com"}},
			{"id":"recC","fields":{"Website":"https://c.com","Logo":[{"url":"https://x/c.png"}]}}
		]}`)
	}))
	defer airtable.Close()
	logos := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/acme.com" {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "image/png")
		_, _ = w.Write([]byte{0x89, 'P', 'N', 'G'})
	}))
	defer logos.Close()

	var out bytes.Buffer
	root := newRootCmd()
	root.SetOut(&out)
	root.SetArgs([]string{"backfill", "--config", writeConfig(t, airtable.URL, logos.URL), "--env-file", filepath.Join(t.TempDir(), "none.env")})
	require.NoError(t, root.ExecuteContext(context.Background()))

	text := out.String()
	require.Contains(t, text, "Logo backfill summary")
	require.Regexp(t, `Total records:\s+3`, text)
	require.Regexp(t, `Skipped \(already had logo or no website\):\s+1`, text)
	require.Regexp(t, `Successfully updated:\s+1`, text)
	require.Regexp(t, `Failed:\s+1`, text)
	require.Equal(t, 1, spy.closed)
}

func TestBackfillCommandFailsWhenListingFails(t *testing.T) {
	spy := useSpyApp(t)

	airtable := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer airtable.Close()

	var out bytes.Buffer
	root := newRootCmd()
	root.SetOut(&out)
	root.SetArgs([]string{"backfill", "--dry-run", "--config", writeConfig(t, airtable.URL, "http://127.0.0.1:1"), "--env-file", filepath.Join(t.TempDir(), "none.env")})
	err := root.ExecuteContext(context.Background())
	require.ErrorContains(t, err, "list records")
	require.Empty(t, out.String())
	require.Equal(t, 1, spy.closed)
}

func TestRootFailsOnInvalidConfig(t *testing.T) {
	useQuietApp(t)

	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("server:\n  port: 0\n"), 0o600))

	root := newRootCmd()
	root.SetArgs([]string{"backfill", "--config", path, "--env-file", filepath.Join(t.TempDir(), "none.env")})
	err := root.ExecuteContext(context.Background())
	require.ErrorContains(t, err, "load config")
}

func TestPrintSummary(t *testing.T) {
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	var buf bytes.Buffer
	err := printSummary(&buf, backfill.Summary{
		RunID:      "run-1",
		Total:      10,
		Skipped:    4,
		Succeeded:  5,
		Failed:     1,
		StartedAt:  start,
		FinishedAt: start.Add(1500 * time.Millisecond),
	}, true)
	require.NoError(t, err)

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Equal(t, "Logo backfill summary (dry run)", lines[0])
	require.Len(t, lines, 7)
	require.Contains(t, buf.String(), "1.5s")
}

func TestResolveAppRequiresInit(t *testing.T) {
	_, err := resolveApp(context.Background())
	require.Error(t, err)
}
