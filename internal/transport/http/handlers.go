package transporthttp

import (
	"encoding/json"
	"net/http"
	"slices"
	"strconv"
	"time"

	"github.com/nbd-wtf/go-nostr"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"example.com/shopcatalog/internal/catalog"
	"example.com/shopcatalog/internal/config"
	"example.com/shopcatalog/internal/domain"
	"example.com/shopcatalog/internal/eventlog"
	"example.com/shopcatalog/internal/idempotency"
	"example.com/shopcatalog/internal/ingest"
	"example.com/shopcatalog/internal/listing"
	"example.com/shopcatalog/internal/logger"
	"example.com/shopcatalog/internal/metrics"
	"example.com/shopcatalog/internal/naddr"
	spg "example.com/shopcatalog/internal/storage/postgres"
)

type ServerDeps struct {
	Cfg       config.Config
	Ingestor  *ingest.Ingestor
	Log       eventlog.Log
	DB        *spg.DB // optional; enables SQL-backed /stats
	Assembler *catalog.Assembler
	Metrics   *metrics.Metrics
	Gatherer  prometheus.Gatherer
	Logger    *logger.Entry
	Now       func() time.Time
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// --- Health ---

func (d *ServerDeps) HandleHealthz(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(`{"status":"ok"}`))
}

func (d *ServerDeps) HandleReadyz(w http.ResponseWriter, r *http.Request) {
	if err := d.Log.Ready(r.Context()); err != nil {
		WriteProblem(w, http.StatusServiceUnavailable, "not ready", "event log not reachable", nil)
		return
	}
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(`{"status":"ready"}`))
}

// --- Events ---

// identify fills in a missing id and rejects ids that disagree with the
// event content.
func identify(ev *nostr.Event) []domain.FieldError {
	if !idempotency.Matches(ev) {
		return []domain.FieldError{{Field: "id", Msg: "does not match event content"}}
	}
	ev.ID, _ = idempotency.DeriveKey(ev)
	return nil
}

func problemFields(prefix string, errs []domain.FieldError, into map[string][]string) {
	for _, fe := range errs {
		into[prefix+fe.Field] = append(into[prefix+fe.Field], fe.Msg)
	}
}

func (d *ServerDeps) HandlePostEvent(w http.ResponseWriter, r *http.Request) {
	defer DrainBody(r)
	var ev nostr.Event
	if err := json.NewDecoder(r.Body).Decode(&ev); err != nil {
		WriteProblem(w, http.StatusBadRequest, "invalid json", err.Error(), nil)
		return
	}
	errs := domain.ValidateEvent(&ev, d.Now(), d.Cfg.ClockSkew)
	if len(errs) == 0 {
		errs = identify(&ev)
	}
	if len(errs) > 0 {
		prob := map[string][]string{}
		problemFields("", errs, prob)
		WriteProblem(w, http.StatusBadRequest, "validation failed", "one or more fields are invalid", prob)
		return
	}

	if ok := d.Ingestor.Enqueue(ev); !ok {
		WriteProblem(w, http.StatusServiceUnavailable, "overloaded", "ingest queue is full or shutting down, please retry", nil)
		return
	}
	d.Logger.WithFields(logger.Fields{"id": ev.ID, "kind": ev.Kind}).Debug("queued 1 event")

	writeJSON(w, http.StatusAccepted, map[string]string{"status": "queued", "id": ev.ID})
}

type bulkReq struct {
	Events []nostr.Event `json:"events"`
}

func (d *ServerDeps) HandlePostEventsBulk(w http.ResponseWriter, r *http.Request) {
	defer DrainBody(r)
	var br bulkReq
	if err := json.NewDecoder(r.Body).Decode(&br); err != nil {
		WriteProblem(w, http.StatusBadRequest, "invalid json", err.Error(), nil)
		return
	}
	ptrs := make([]*nostr.Event, len(br.Events))
	for i := range br.Events {
		ptrs[i] = &br.Events[i]
	}
	all, top := domain.ValidateBulk(ptrs, d.Cfg.MaxBulkItems, d.Now(), d.Cfg.ClockSkew)
	if top != nil && all == nil {
		WriteProblem(w, http.StatusBadRequest, "validation failed", top.Error(), nil)
		return
	}
	prob := map[string][]string{}
	for i := range br.Events {
		errs := identify(&br.Events[i])
		if all != nil && len(all[i]) > 0 {
			errs = all[i]
		}
		if len(errs) > 0 {
			problemFields("events["+strconv.Itoa(i)+"].", errs, prob)
		}
	}
	if len(prob) > 0 {
		WriteProblem(w, http.StatusBadRequest, "validation failed", "one or more events failed validation", prob)
		return
	}

	for i, ev := range br.Events {
		if ok := d.Ingestor.Enqueue(ev); !ok {
			WriteProblem(w, http.StatusServiceUnavailable, "overloaded", "ingest queue is full or shutting down, please retry", map[string][]string{
				"accepted_count": {strconv.Itoa(i)},
			})
			return
		}
	}
	d.Logger.WithFields(logger.Fields{"count": len(br.Events)}).Debug("queued bulk events")

	writeJSON(w, http.StatusAccepted, map[string]int{"accepted_count": len(br.Events)})
}

// --- Catalog ---

type catalogEntry struct {
	listing.Product
	Naddr string `json:"naddr,omitempty"`
}

type catalogResp struct {
	Count   int            `json:"count"`
	Entries []catalogEntry `json:"entries"`
}

func toEntries(ps []listing.Product) []catalogEntry {
	out := make([]catalogEntry, len(ps))
	for i := range ps {
		out[i] = catalogEntry{Product: ps[i]}
		if tok, err := naddr.Encode(catalog.Pointer(&ps[i])); err == nil {
			out[i].Naddr = tok
		}
	}
	return out
}

// assemble recomputes the catalog from the current log snapshot.
func (d *ServerDeps) assemble(w http.ResponseWriter, r *http.Request) (*catalog.Catalog, bool) {
	events, err := d.Log.Snapshot(r.Context())
	if err != nil {
		d.Logger.WithError(err).Error("snapshot failed")
		WriteProblem(w, http.StatusInternalServerError, "snapshot error", err.Error(), nil)
		return nil, false
	}
	return d.Assembler.Ingest(events), true
}

func (d *ServerDeps) HandleGetCatalog(w http.ResponseWriter, r *http.Request) {
	c, ok := d.assemble(w, r)
	if !ok {
		return
	}
	entries := toEntries(c.Entries())
	writeJSON(w, http.StatusOK, catalogResp{Count: len(entries), Entries: entries})
}

func (d *ServerDeps) HandleGetFeatured(w http.ResponseWriter, r *http.Request) {
	n := d.Cfg.FeaturedLimit
	if s := r.URL.Query().Get("n"); s != "" {
		v, err := strconv.Atoi(s)
		if err != nil || v < 0 {
			WriteProblem(w, http.StatusBadRequest, "invalid parameters", "n must be a non-negative integer", nil)
			return
		}
		n = v
	}
	c, ok := d.assemble(w, r)
	if !ok {
		return
	}
	featured, err := c.Featured(n)
	if err != nil {
		WriteProblem(w, http.StatusBadRequest, "invalid parameters", err.Error(), nil)
		return
	}
	entries := toEntries(featured)
	writeJSON(w, http.StatusOK, catalogResp{Count: len(entries), Entries: entries})
}

func (d *ServerDeps) HandleGetListing(w http.ResponseWriter, r *http.Request) {
	ptr, err := naddr.Decode(r.PathValue("naddr"))
	if err != nil {
		WriteProblem(w, http.StatusBadRequest, "invalid address", err.Error(), nil)
		return
	}
	c, ok := d.assemble(w, r)
	if !ok {
		return
	}
	p, found := c.Lookup(ptr)
	if !found {
		WriteProblem(w, http.StatusNotFound, "not found", "no catalog entry at "+ptr.Coordinate(), nil)
		return
	}
	writeJSON(w, http.StatusOK, toEntries([]listing.Product{p})[0])
}

// --- Address codec ---

func (d *ServerDeps) HandlePostNaddr(w http.ResponseWriter, r *http.Request) {
	defer DrainBody(r)
	var p naddr.Pointer
	if err := json.NewDecoder(r.Body).Decode(&p); err != nil {
		WriteProblem(w, http.StatusBadRequest, "invalid json", err.Error(), nil)
		return
	}
	tok, err := naddr.Encode(p)
	if err != nil {
		WriteProblem(w, http.StatusBadRequest, "invalid address", err.Error(), nil)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"naddr": tok})
}

// --- Stats ---

func (d *ServerDeps) HandleGetStats(w http.ResponseWriter, r *http.Request) {
	var (
		st  spg.Stats
		err error
	)
	if d.DB != nil {
		st, err = d.DB.QueryStats(r.Context())
	} else {
		st, err = d.snapshotStats(r)
	}
	if err != nil {
		WriteProblem(w, http.StatusInternalServerError, "query error", err.Error(), nil)
		return
	}
	writeJSON(w, http.StatusOK, st)
}

func (d *ServerDeps) snapshotStats(r *http.Request) (spg.Stats, error) {
	events, err := d.Log.Snapshot(r.Context())
	if err != nil {
		return spg.Stats{}, err
	}
	authors := map[string]struct{}{}
	byKind := map[int]int64{}
	var kinds []int
	for _, ev := range events {
		authors[ev.PubKey] = struct{}{}
		if _, seen := byKind[ev.Kind]; !seen {
			kinds = append(kinds, ev.Kind)
		}
		byKind[ev.Kind]++
	}
	st := spg.Stats{Events: int64(len(events)), Authors: int64(len(authors))}
	slices.Sort(kinds)
	for _, k := range kinds {
		st.ByKind = append(st.ByKind, spg.KindCount{Kind: k, Count: byKind[k]})
	}
	return st, nil
}

// --- Router ---

func (d *ServerDeps) Router() http.Handler {
	if d.Logger == nil {
		d.Logger = logger.Discard()
	}
	if d.Now == nil {
		d.Now = func() time.Time { return time.Now().UTC() }
	}
	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", d.HandleHealthz)
	mux.HandleFunc("GET /readyz", d.HandleReadyz)
	if d.Gatherer != nil {
		mux.Handle("GET /metrics", promhttp.HandlerFor(d.Gatherer, promhttp.HandlerOpts{}))
	}

	write := func(h http.HandlerFunc) http.Handler {
		var out http.Handler = h
		out = BodyLimit(d.Cfg.MaxBodyBytes)(out)
		out = RequireJSON(out)
		out = APIKeyAuth(d.Cfg.APIKeys)(out)
		return out
	}
	mux.Handle("POST /events", write(d.HandlePostEvent))
	mux.Handle("POST /events/bulk", write(d.HandlePostEventsBulk))

	limit := RateLimitPerMinute(d.Cfg.RateLimitPerMin)
	mux.Handle("GET /catalog", limit(http.HandlerFunc(d.HandleGetCatalog)))
	mux.Handle("GET /catalog/featured", limit(http.HandlerFunc(d.HandleGetFeatured)))
	mux.Handle("GET /listing/{naddr}", limit(http.HandlerFunc(d.HandleGetListing)))
	mux.Handle("POST /naddr", BodyLimit(d.Cfg.MaxBodyBytes)(RequireJSON(http.HandlerFunc(d.HandlePostNaddr))))
	mux.Handle("GET /stats", APIKeyAuth(d.Cfg.APIKeys)(limit(http.HandlerFunc(d.HandleGetStats))))

	return AccessLog(d.Logger.WithComponent("http"), d.Metrics)(mux)
}
