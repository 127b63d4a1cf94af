package transporthttp

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/nbd-wtf/go-nostr"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"example.com/shopcatalog/internal/catalog"
	"example.com/shopcatalog/internal/config"
	"example.com/shopcatalog/internal/eventlog"
	"example.com/shopcatalog/internal/ingest"
	"example.com/shopcatalog/internal/metrics"
	"example.com/shopcatalog/internal/naddr"
)

var (
	seller = strings.Repeat("ab", 32)
	now    = time.Unix(1_750_000_000, 0).UTC()
)

type fixture struct {
	log     *eventlog.Memory
	handler http.Handler
	cancel  context.CancelFunc
}

func newFixture(t *testing.T, mutate ...func(*config.Config)) *fixture {
	t.Helper()
	cfg := config.Default()
	cfg.BatchMaxSize = 1
	cfg.BatchMaxWait = 5 * time.Millisecond
	for _, m := range mutate {
		m(&cfg)
	}

	log := eventlog.NewMemory()
	m := metrics.New()
	reg := prometheus.NewRegistry()
	require.NoError(t, m.Register(reg))

	ctx, cancel := context.WithCancel(context.Background())
	ig := ingest.NewIngestor(log, cfg.QueueMaxSize, cfg.BatchMaxSize, cfg.BatchMaxWait, m, nil)
	ig.Start(ctx)
	t.Cleanup(cancel)

	deps := &ServerDeps{
		Cfg:       cfg,
		Ingestor:  ig,
		Log:       log,
		Assembler: catalog.NewAssembler(catalog.WithKinds(cfg.ListingKinds...), catalog.WithMetrics(m)),
		Metrics:   m,
		Gatherer:  reg,
		Now:       func() time.Time { return now },
	}
	return &fixture{log: log, handler: deps.Router(), cancel: cancel}
}

func (f *fixture) seed(t *testing.T, events ...nostr.Event) {
	t.Helper()
	_, err := f.log.Append(context.Background(), events)
	require.NoError(t, err)
}

func (f *fixture) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var rdr *bytes.Reader
	if body != nil {
		b, err := json.Marshal(body)
		require.NoError(t, err)
		rdr = bytes.NewReader(b)
	} else {
		rdr = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, rdr)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	f.handler.ServeHTTP(rec, req)
	return rec
}

func product(id, d string, extra ...nostr.Tag) nostr.Event {
	tags := nostr.Tags{{"d", d}, {"image", "https://x/" + d + ".png"}, {"price", "10", "USD"}}
	return nostr.Event{
		ID:        id,
		PubKey:    seller,
		CreatedAt: nostr.Timestamp(now.Add(-time.Hour).Unix()),
		Kind:      30402,
		Tags:      append(tags, extra...),
	}
}

type entriesBody struct {
	Count   int `json:"count"`
	Entries []struct {
		ID       string `json:"id"`
		D        string `json:"d"`
		Currency string `json:"currency"`
		Price    string `json:"price"`
		Naddr    string `json:"naddr"`
	} `json:"entries"`
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

func TestHealth(t *testing.T) {
	f := newFixture(t)
	assert.Equal(t, http.StatusOK, f.do(t, http.MethodGet, "/healthz", nil).Code)
	assert.Equal(t, http.StatusOK, f.do(t, http.MethodGet, "/readyz", nil).Code)
}

func TestGetCatalog(t *testing.T) {
	f := newFixture(t)
	hidden := product("W", "w", nostr.Tag{"content-warning"})
	f.seed(t, product("A", "a"), hidden, product("B", "b"), product("C", "c"))

	rec := f.do(t, http.MethodGet, "/catalog", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.NotEmpty(t, rec.Header().Get("X-Request-ID"))

	body := decode[entriesBody](t, rec)
	require.Equal(t, 3, body.Count)
	assert.Equal(t, "A", body.Entries[0].ID)
	assert.Equal(t, "B", body.Entries[1].ID)
	assert.Equal(t, "C", body.Entries[2].ID)
	assert.Equal(t, "10", body.Entries[0].Price)

	ptr, err := naddr.Decode(body.Entries[0].Naddr)
	require.NoError(t, err)
	assert.Equal(t, naddr.Pointer{Kind: 30402, PubKey: seller, Identifier: "a"}, ptr)
}

func TestGetFeatured(t *testing.T) {
	f := newFixture(t)
	f.seed(t, product("A", "a"), product("B", "b"), product("C", "c"))

	body := decode[entriesBody](t, f.do(t, http.MethodGet, "/catalog/featured?n=2", nil))
	require.Equal(t, 2, body.Count)
	assert.Equal(t, "A", body.Entries[0].ID)
	assert.Equal(t, "B", body.Entries[1].ID)

	body = decode[entriesBody](t, f.do(t, http.MethodGet, "/catalog/featured", nil))
	assert.Equal(t, 3, body.Count)

	body = decode[entriesBody](t, f.do(t, http.MethodGet, "/catalog/featured?n=0", nil))
	assert.Equal(t, 0, body.Count)

	assert.Equal(t, http.StatusBadRequest, f.do(t, http.MethodGet, "/catalog/featured?n=-1", nil).Code)
	assert.Equal(t, http.StatusBadRequest, f.do(t, http.MethodGet, "/catalog/featured?n=x", nil).Code)
}

func TestGetListing(t *testing.T) {
	f := newFixture(t)
	f.seed(t, product("A", "mug:001"))

	tok, err := naddr.Encode(naddr.Pointer{Kind: 30402, PubKey: seller, Identifier: "mug:001"})
	require.NoError(t, err)

	rec := f.do(t, http.MethodGet, "/listing/"+tok, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "A", decode[map[string]any](t, rec)["id"])

	missing, err := naddr.Encode(naddr.Pointer{Kind: 30402, PubKey: seller, Identifier: "nope"})
	require.NoError(t, err)
	assert.Equal(t, http.StatusNotFound, f.do(t, http.MethodGet, "/listing/"+missing, nil).Code)

	rec = f.do(t, http.MethodGet, "/listing/naddr1garbage", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "application/problem+json", rec.Header().Get("Content-Type"))
	prob := decode[Problem](t, rec)
	assert.True(t, strings.HasPrefix(prob.Instance, "urn:request:"))
}

func TestPostNaddr(t *testing.T) {
	f := newFixture(t)

	rec := f.do(t, http.MethodPost, "/naddr", naddr.Pointer{Kind: 30402, PubKey: seller, Identifier: "a-b:c"})
	require.Equal(t, http.StatusOK, rec.Code)
	tok := decode[map[string]string](t, rec)["naddr"]
	ptr, err := naddr.Decode(tok)
	require.NoError(t, err)
	assert.Equal(t, "a-b:c", ptr.Identifier)

	rec = f.do(t, http.MethodPost, "/naddr", naddr.Pointer{Kind: 30402, PubKey: "short"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestPostEventThenCatalog(t *testing.T) {
	f := newFixture(t)
	ev := product("", "posted")

	rec := f.do(t, http.MethodPost, "/events", ev)
	require.Equal(t, http.StatusAccepted, rec.Code, rec.Body.String())
	id := decode[map[string]string](t, rec)["id"]
	assert.Equal(t, ev.GetID(), id)

	assert.Eventually(t, func() bool { return f.log.Len() == 1 }, time.Second, 5*time.Millisecond)

	body := decode[entriesBody](t, f.do(t, http.MethodGet, "/catalog", nil))
	require.Equal(t, 1, body.Count)
	assert.Equal(t, id, body.Entries[0].ID)
}

func TestPostEventValidation(t *testing.T) {
	f := newFixture(t)

	bad := product("", "x")
	bad.PubKey = "nothex"
	rec := f.do(t, http.MethodPost, "/events", bad)
	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, decode[Problem](t, rec).Errors, "pubkey")

	wrongID := product(strings.Repeat("0", 64), "x")
	rec = f.do(t, http.MethodPost, "/events", wrongID)
	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, decode[Problem](t, rec).Errors, "id")

	future := product("", "x")
	future.CreatedAt = nostr.Timestamp(now.Add(time.Hour).Unix())
	assert.Equal(t, http.StatusBadRequest, f.do(t, http.MethodPost, "/events", future).Code)

	req := httptest.NewRequest(http.MethodPost, "/events", strings.NewReader("{}"))
	rec = httptest.NewRecorder()
	f.handler.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnsupportedMediaType, rec.Code)
}

func TestPostEventsBulk(t *testing.T) {
	f := newFixture(t)

	rec := f.do(t, http.MethodPost, "/events/bulk", map[string]any{
		"events": []nostr.Event{product("", "one"), product("", "two")},
	})
	require.Equal(t, http.StatusAccepted, rec.Code, rec.Body.String())
	assert.Equal(t, 2, decode[map[string]int](t, rec)["accepted_count"])
	assert.Eventually(t, func() bool { return f.log.Len() == 2 }, time.Second, 5*time.Millisecond)

	bad := product("", "three")
	bad.PubKey = ""
	rec = f.do(t, http.MethodPost, "/events/bulk", map[string]any{
		"events": []nostr.Event{product("", "ok"), bad},
	})
	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, decode[Problem](t, rec).Errors, "events[1].pubkey")

	rec = f.do(t, http.MethodPost, "/events/bulk", map[string]any{"events": []nostr.Event{}})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestAPIKey(t *testing.T) {
	f := newFixture(t, func(c *config.Config) { c.APIKeys = map[string]struct{}{"secret": {}} })

	assert.Equal(t, http.StatusUnauthorized, f.do(t, http.MethodPost, "/events", product("", "x")).Code)

	b, err := json.Marshal(product("", "x"))
	require.NoError(t, err)
	req := httptest.NewRequest(http.MethodPost, "/events", bytes.NewReader(b))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-API-Key", "secret")
	rec := httptest.NewRecorder()
	f.handler.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusAccepted, rec.Code)
}

func TestRateLimit(t *testing.T) {
	f := newFixture(t, func(c *config.Config) { c.RateLimitPerMin = 2 })

	assert.Equal(t, http.StatusOK, f.do(t, http.MethodGet, "/catalog", nil).Code)
	assert.Equal(t, http.StatusOK, f.do(t, http.MethodGet, "/catalog", nil).Code)
	rec := f.do(t, http.MethodGet, "/catalog", nil)
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "3", rec.Header().Get("Retry-After"))
}

func TestStatsFromSnapshot(t *testing.T) {
	f := newFixture(t)
	note := product("N", "n")
	note.Kind = 1
	f.seed(t, product("A", "a"), product("B", "b"), note)

	rec := f.do(t, http.MethodGet, "/stats", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	st := decode[struct {
		Events  int64 `json:"events"`
		Authors int64 `json:"authors"`
		ByKind  []struct {
			Kind  int   `json:"kind"`
			Count int64 `json:"count"`
		} `json:"by_kind"`
	}](t, rec)
	assert.EqualValues(t, 3, st.Events)
	assert.EqualValues(t, 1, st.Authors)
	require.Len(t, st.ByKind, 2)
	assert.Equal(t, 1, st.ByKind[0].Kind)
	assert.Equal(t, 30402, st.ByKind[1].Kind)
}

func TestMetricsEndpoint(t *testing.T) {
	f := newFixture(t)
	f.seed(t, product("A", "a"))
	f.do(t, http.MethodGet, "/catalog", nil)

	rec := f.do(t, http.MethodGet, "/metrics", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "shopcatalog_catalog_entries 1")
	assert.Contains(t, rec.Body.String(), `shopcatalog_http_requests_total{code="200",route="GET /catalog"}`)
}
