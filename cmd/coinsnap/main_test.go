package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"coinsnap/internal/config"
	"coinsnap/internal/domain"
	"coinsnap/internal/infrastructure/db"
	"coinsnap/internal/repository"
)

func isolate(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	t.Chdir(dir)
	for _, key := range []string{
		"COINCAP_API_KEY", "COINCAP_BASE_URL", "GOOGLE_SHEETS_CREDENTIALS_PATH", "GOOGLE_API_ENDPOINT",
		"COINSNAP_CONFIG", "DATABASE_URL", "DATABASE_PATH", "METRICS_TEXTFILE",
		"FIREBASE_CREDENTIALS_PATH", "FIREBASE_CREDENTIALS_JSON", "NOTIFY_DEVICE_TOKENS",
	} {
		t.Setenv(key, "")
	}
	return dir
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	cmd := newRootCmd()
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

func TestRootFailsFastWithoutConfig(t *testing.T) {
	isolate(t)
	api := newFakeCoinCap(t)
	t.Setenv("COINCAP_BASE_URL", api.url)

	_, err := execute(t)
	require.Error(t, err)
	assert.ErrorIs(t, err, config.ErrMissingConfig)
	assert.Zero(t, api.fetches.Load(), "no network call before config is valid")
}

func TestRootRejectsArgs(t *testing.T) {
	isolate(t)

	_, err := execute(t, "extra")
	require.Error(t, err)
}

func TestShowUnknownDataset(t *testing.T) {
	isolate(t)

	_, err := execute(t, "show", "bogus")
	assert.ErrorIs(t, err, domain.ErrUnknownDataset)
}

func TestShowPrintsJSONLines(t *testing.T) {
	dir := isolate(t)
	path := filepath.Join(dir, "snap.db")
	t.Setenv("DATABASE_PATH", path)

	ctx := context.Background()
	conn, err := db.Open(ctx, db.DefaultConfig(path))
	require.NoError(t, err)
	repo := repository.NewSQLDatasetRepository(conn)
	require.NoError(t, repo.ReplaceDataset(ctx, domain.TopTierDataset, []domain.NormalizedAsset{
		{Rank: 2, Symbol: "ETH", Name: "Ethereum", PriceUsd: 3000},
		{Rank: 1, Symbol: "BTC", Name: "Bitcoin", PriceUsd: 60000},
	}))
	require.NoError(t, conn.Close())

	out, err := execute(t, "show", domain.TopTierDataset)
	require.NoError(t, err)

	lines := strings.Split(strings.TrimSpace(out), "\n")
	require.Len(t, lines, 2)

	var first domain.NormalizedAsset
	require.NoError(t, json.Unmarshal([]byte(lines[0]), &first))
	assert.Equal(t, int64(1), first.Rank)
	assert.Equal(t, "BTC", first.Symbol)
	assert.Contains(t, lines[1], `"symbol":"ETH"`)
}

type fakeCoinCap struct {
	url     string
	fetches atomic.Int32
}

// newFakeCoinCap serves seven assets, ranks 7 down to 1.
func newFakeCoinCap(t *testing.T) *fakeCoinCap {
	t.Helper()
	api := &fakeCoinCap{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		api.fetches.Add(1)
		var data []string
		for rank := 7; rank >= 1; rank-- {
			data = append(data, fmt.Sprintf(
				`{"id":"coin-%d","rank":"%d","symbol":"C%d","name":"Coin %d","priceUsd":"%d.5"}`,
				rank, rank, rank, rank, rank*100))
		}
		w.Write([]byte(`{"data":[` + strings.Join(data, ",") + `]}`))
	}))
	t.Cleanup(srv.Close)
	api.url = srv.URL
	return api
}

// fakeGoogle serves the Drive and Sheets calls made by the spreadsheet sink.
type fakeGoogle struct {
	url     string
	mu      sync.Mutex
	ids     map[string]string // spreadsheet name -> id
	written map[string][][]any
}

func newFakeGoogle(t *testing.T) *fakeGoogle {
	t.Helper()
	g := &fakeGoogle{
		ids: map[string]string{
			domain.TopTierDataset:   "id-top",
			domain.RemainderDataset: "id-other",
		},
		written: map[string][][]any{},
	}
	srv := httptest.NewServer(g)
	t.Cleanup(srv.Close)
	g.url = srv.URL + "/"
	return g
}

func (g *fakeGoogle) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	g.mu.Lock()
	defer g.mu.Unlock()

	path := r.URL.Path
	switch {
	case strings.HasSuffix(path, "/files"):
		q := r.URL.Query().Get("q")
		files := []map[string]string{}
		for name, id := range g.ids {
			if strings.Contains(q, "name = '"+name+"'") {
				files = append(files, map[string]string{"id": id, "name": name})
			}
		}
		json.NewEncoder(w).Encode(map[string]any{"files": files})
	case strings.HasSuffix(path, ":clear"):
		w.Write([]byte(`{}`))
	case r.Method == http.MethodPut && strings.Contains(path, "/values/"):
		id := strings.Split(strings.TrimPrefix(path, "/v4/spreadsheets/"), "/")[0]
		var body struct {
			Values [][]any `json:"values"`
		}
		json.NewDecoder(r.Body).Decode(&body)
		g.written[id] = body.Values
		w.Write([]byte(`{}`))
	case r.Method == http.MethodGet && strings.HasPrefix(path, "/v4/spreadsheets/"):
		w.Write([]byte(`{"sheets":[{"properties":{"title":"Sheet1","index":0}}]}`))
	default:
		w.WriteHeader(http.StatusNotFound)
		w.Write([]byte(`{"error":{"code":404,"message":"not found"}}`))
	}
}

func (g *fakeGoogle) rows(id string) [][]any {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.written[id]
}

// snapshotEnv points a full run at the fakes and returns the metrics file.
func snapshotEnv(t *testing.T, dir string, api *fakeCoinCap, google *fakeGoogle, dbPath string) string {
	t.Helper()
	creds := filepath.Join(dir, "credentials.json")
	require.NoError(t, os.WriteFile(creds, []byte(`{"type":"service_account"}`), 0o600))
	metricsFile := filepath.Join(dir, "coinsnap.prom")

	t.Setenv("COINCAP_API_KEY", "test-key")
	t.Setenv("COINCAP_BASE_URL", api.url)
	t.Setenv("GOOGLE_SHEETS_CREDENTIALS_PATH", creds)
	t.Setenv("GOOGLE_API_ENDPOINT", google.url)
	t.Setenv("DATABASE_PATH", dbPath)
	t.Setenv("METRICS_TEXTFILE", metricsFile)
	return metricsFile
}

func readMetrics(t *testing.T, path string) string {
	t.Helper()
	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	return string(raw)
}

func TestRootRunsFullSnapshot(t *testing.T) {
	dir := isolate(t)
	api, google := newFakeCoinCap(t), newFakeGoogle(t)
	dbPath := filepath.Join(dir, "snap.db")
	metricsFile := snapshotEnv(t, dir, api, google, dbPath)

	_, err := execute(t)
	require.NoError(t, err)
	assert.Equal(t, int32(1), api.fetches.Load())

	ctx := context.Background()
	conn, err := db.Open(ctx, db.DefaultConfig(dbPath))
	require.NoError(t, err)
	defer conn.Close()
	repo := repository.NewSQLDatasetRepository(conn)

	top, err := repo.LoadDataset(ctx, domain.TopTierDataset)
	require.NoError(t, err)
	require.Len(t, top, 5)
	assert.Equal(t, int64(1), top[0].Rank)
	assert.Equal(t, "C1", top[0].Symbol)
	assert.InDelta(t, 100.5, top[0].PriceUsd, 1e-9)

	rest, err := repo.LoadDataset(ctx, domain.RemainderDataset)
	require.NoError(t, err)
	require.Len(t, rest, 2)
	assert.Equal(t, int64(6), rest[0].Rank)

	topRows := google.rows("id-top")
	require.Len(t, topRows, 6, "header plus five assets")
	assert.Equal(t, "rank", topRows[0][0])
	assert.Len(t, google.rows("id-other"), 3)

	assert.Contains(t, readMetrics(t, metricsFile), `coinsnap_last_run_outcome{outcome="success"} 1`)
}

func TestRootContinuesWhenStoreCannotOpen(t *testing.T) {
	dir := isolate(t)
	api, google := newFakeCoinCap(t), newFakeGoogle(t)
	dbPath := filepath.Join(dir, "missing-dir", "snap.db")
	metricsFile := snapshotEnv(t, dir, api, google, dbPath)

	_, err := execute(t)
	require.NoError(t, err, "store failures are logged, not turned into an exit status")
	assert.Equal(t, int32(1), api.fetches.Load())

	assert.Len(t, google.rows("id-top"), 6)
	assert.Len(t, google.rows("id-other"), 3)
	assert.NoFileExists(t, dbPath)

	out := readMetrics(t, metricsFile)
	assert.Contains(t, out, `coinsnap_last_run_outcome{outcome="partial"} 1`)
	assert.Contains(t, out, `coinsnap_sink_failed{sink="relational"} 1`)
	assert.Contains(t, out, `coinsnap_sink_failed{sink="spreadsheet"} 0`)
}
