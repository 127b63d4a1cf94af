package postgres

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/nbd-wtf/go-nostr"

	"example.com/shopcatalog/internal/eventlog"
)

var _ eventlog.Log = (*DB)(nil)

// Snapshot returns every stored event in arrival order.
func (db *DB) Snapshot(ctx context.Context) ([]nostr.Event, error) {
	rows, err := db.Pool.Query(ctx,
		"SELECT id, pubkey, created_at, kind, tags, content, sig FROM events ORDER BY seq ASC")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []nostr.Event
	for rows.Next() {
		var (
			ev        nostr.Event
			createdAt int64
			tagsJSON  []byte
		)
		if err := rows.Scan(&ev.ID, &ev.PubKey, &createdAt, &ev.Kind, &tagsJSON, &ev.Content, &ev.Sig); err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		if err := json.Unmarshal(tagsJSON, &ev.Tags); err != nil {
			return nil, fmt.Errorf("decode tags of %s: %w", ev.ID, err)
		}
		ev.CreatedAt = nostr.Timestamp(createdAt)
		out = append(out, ev)
	}
	return out, rows.Err()
}

type KindCount struct {
	Kind  int   `json:"kind"`
	Count int64 `json:"count"`
}

type Stats struct {
	Events  int64       `json:"events"`
	Authors int64       `json:"authors"`
	ByKind  []KindCount `json:"by_kind"`
}

// QueryStats summarizes the stored log.
func (db *DB) QueryStats(ctx context.Context) (Stats, error) {
	var res Stats
	row := db.Pool.QueryRow(ctx, "SELECT COUNT(*)::bigint, COUNT(DISTINCT pubkey)::bigint FROM events")
	if err := row.Scan(&res.Events, &res.Authors); err != nil {
		return res, fmt.Errorf("scan totals: %w", err)
	}

	rows, err := db.Pool.Query(ctx, "SELECT kind, COUNT(*)::bigint FROM events GROUP BY kind ORDER BY kind ASC")
	if err != nil {
		return res, err
	}
	defer rows.Close()
	for rows.Next() {
		var kc KindCount
		if err := rows.Scan(&kc.Kind, &kc.Count); err != nil {
			return res, fmt.Errorf("scan kind count: %w", err)
		}
		res.ByKind = append(res.ByKind, kc)
	}
	return res, rows.Err()
}
