package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/nbd-wtf/go-nostr"
)

var eventCols = []string{"id", "pubkey", "created_at", "kind", "tags", "content", "sig"}

// buildInsert renders one multi-row INSERT for items. Rows keep the slice
// order so the arrival sequence follows it.
func buildInsert(items []nostr.Event) (string, []any, error) {
	placeholders := make([]string, 0, len(items))
	args := make([]any, 0, len(items)*len(eventCols))

	argi := 1
	for _, ev := range items {
		tags := ev.Tags
		if tags == nil {
			tags = nostr.Tags{}
		}
		tagsJSON, err := json.Marshal(tags)
		if err != nil {
			return "", nil, fmt.Errorf("marshal tags of %s: %w", ev.ID, err)
		}

		args = append(args, ev.ID, ev.PubKey, int64(ev.CreatedAt), ev.Kind, string(tagsJSON), ev.Content, ev.Sig)
		placeholders = append(placeholders, fmt.Sprintf("($%d,$%d,$%d,$%d,$%d::jsonb,$%d,$%d)",
			argi, argi+1, argi+2, argi+3, argi+4, argi+5, argi+6))
		argi += len(eventCols)
	}

	sql := "INSERT INTO events (" + strings.Join(eventCols, ",") + ") VALUES " +
		strings.Join(placeholders, ",") +
		" ON CONFLICT (id) DO NOTHING"
	return sql, args, nil
}

// Append inserts events with ON CONFLICT DO NOTHING so a re-delivered event
// keeps its first arrival position.
func (db *DB) Append(ctx context.Context, items []nostr.Event) (int64, error) {
	if len(items) == 0 {
		return 0, nil
	}
	sql, args, err := buildInsert(items)
	if err != nil {
		return 0, err
	}
	ct, err := db.Pool.Exec(ctx, sql, args...)
	if err != nil {
		return 0, err
	}
	return ct.RowsAffected(), nil
}
