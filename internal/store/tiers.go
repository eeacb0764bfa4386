package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/pearlgull/pearlgull/internal/schema"
)

// The tier tables are append-only logs. Promotion never deletes rows;
// it advances the per-thread marks in memory_state, and "active" reads
// skip the marked prefix. That keeps promotion idempotent and preserves
// provenance.

func (s *Store) AppendPair(ctx context.Context, threadID string, p schema.Pair) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO l1_pairs (id, thread_id, user_text, assistant_text, tokens, clipped, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		p.ID, threadID, p.UserText, p.AssistantText, p.Tokens, boolInt(p.Clipped), formatTime(p.CreatedAt))
	if err != nil {
		return fmt.Errorf("append pair: %w", err)
	}
	return nil
}

func (s *Store) AppendThesis(ctx context.Context, threadID string, t schema.Thesis) error {
	ids, err := json.Marshal(t.SourcePairIDs)
	if err != nil {
		return fmt.Errorf("encode source pair ids: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO l2_theses (id, thread_id, source_pair_ids, summary, tokens, created_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		t.ID, threadID, string(ids), t.Summary, t.Tokens, formatTime(t.CreatedAt))
	if err != nil {
		return fmt.Errorf("append thesis: %w", err)
	}
	return nil
}

func (s *Store) AppendMicroThesis(ctx context.Context, threadID string, mt schema.MicroThesis) error {
	ids, err := json.Marshal(mt.SourceThesisIDs)
	if err != nil {
		return fmt.Errorf("encode source thesis ids: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO l3_micro_theses (id, thread_id, source_thesis_ids, summary, tokens, created_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		mt.ID, threadID, string(ids), mt.Summary, mt.Tokens, formatTime(mt.CreatedAt))
	if err != nil {
		return fmt.Errorf("append micro-thesis: %w", err)
	}
	return nil
}

func (s *Store) ActivePairs(ctx context.Context, threadID string) ([]schema.Pair, error) {
	state, err := s.MemoryState(ctx, threadID)
	if err != nil {
		return nil, err
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, user_text, assistant_text, tokens, clipped, created_at
		FROM l1_pairs WHERE thread_id = ? ORDER BY ord LIMIT -1 OFFSET ?`,
		threadID, state.L1Promoted)
	if err != nil {
		return nil, fmt.Errorf("load active pairs: %w", err)
	}
	defer rows.Close()

	var out []schema.Pair
	for rows.Next() {
		var p schema.Pair
		var clipped int
		var created string
		if err := rows.Scan(&p.ID, &p.UserText, &p.AssistantText, &p.Tokens, &clipped, &created); err != nil {
			return nil, fmt.Errorf("scan pair: %w", err)
		}
		p.Clipped = clipped != 0
		p.CreatedAt = parseTime(created)
		out = append(out, p)
	}
	return out, rows.Err()
}

func (s *Store) ActiveTheses(ctx context.Context, threadID string) ([]schema.Thesis, error) {
	state, err := s.MemoryState(ctx, threadID)
	if err != nil {
		return nil, err
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, source_pair_ids, summary, tokens, created_at
		FROM l2_theses WHERE thread_id = ? ORDER BY ord LIMIT -1 OFFSET ?`,
		threadID, state.L2Promoted)
	if err != nil {
		return nil, fmt.Errorf("load active theses: %w", err)
	}
	defer rows.Close()

	var out []schema.Thesis
	for rows.Next() {
		var t schema.Thesis
		var ids, created string
		if err := rows.Scan(&t.ID, &ids, &t.Summary, &t.Tokens, &created); err != nil {
			return nil, fmt.Errorf("scan thesis: %w", err)
		}
		if err := json.Unmarshal([]byte(ids), &t.SourcePairIDs); err != nil {
			return nil, fmt.Errorf("decode source pair ids: %w", err)
		}
		t.CreatedAt = parseTime(created)
		out = append(out, t)
	}
	return out, rows.Err()
}

func (s *Store) ActiveMicroTheses(ctx context.Context, threadID string) ([]schema.MicroThesis, error) {
	state, err := s.MemoryState(ctx, threadID)
	if err != nil {
		return nil, err
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, source_thesis_ids, summary, tokens, created_at
		FROM l3_micro_theses WHERE thread_id = ? ORDER BY ord LIMIT -1 OFFSET ?`,
		threadID, state.L3Trimmed)
	if err != nil {
		return nil, fmt.Errorf("load active micro-theses: %w", err)
	}
	defer rows.Close()

	var out []schema.MicroThesis
	for rows.Next() {
		var mt schema.MicroThesis
		var ids, created string
		if err := rows.Scan(&mt.ID, &ids, &mt.Summary, &mt.Tokens, &created); err != nil {
			return nil, fmt.Errorf("scan micro-thesis: %w", err)
		}
		if err := json.Unmarshal([]byte(ids), &mt.SourceThesisIDs); err != nil {
			return nil, fmt.Errorf("decode source thesis ids: %w", err)
		}
		mt.CreatedAt = parseTime(created)
		out = append(out, mt)
	}
	return out, rows.Err()
}

// MemoryState loads the promotion marks for a thread, zero marks when
// none were recorded yet.
func (s *Store) MemoryState(ctx context.Context, threadID string) (schema.MemoryState, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT l1_promoted, l2_promoted, l3_trimmed, updated_at
		FROM memory_state WHERE thread_id = ?`, threadID)

	state := schema.MemoryState{ThreadID: threadID}
	var updated string
	err := row.Scan(&state.L1Promoted, &state.L2Promoted, &state.L3Trimmed, &updated)
	if errors.Is(err, sql.ErrNoRows) {
		return state, nil
	}
	if err != nil {
		return schema.MemoryState{}, fmt.Errorf("load memory state: %w", err)
	}
	state.UpdatedAt = parseTime(updated)
	return state, nil
}

func (s *Store) MarkPairsPromoted(ctx context.Context, threadID string, n int) error {
	return s.advanceMark(ctx, threadID, "l1_promoted", n)
}

func (s *Store) MarkThesesPromoted(ctx context.Context, threadID string, n int) error {
	return s.advanceMark(ctx, threadID, "l2_promoted", n)
}

func (s *Store) MarkMicroThesesTrimmed(ctx context.Context, threadID string, n int) error {
	return s.advanceMark(ctx, threadID, "l3_trimmed", n)
}

func (s *Store) advanceMark(ctx context.Context, threadID, column string, n int) error {
	if n <= 0 {
		return nil
	}
	// column is one of three fixed names, never caller input.
	q := fmt.Sprintf(`
		INSERT INTO memory_state (thread_id, %[1]s, updated_at) VALUES (?, ?, ?)
		ON CONFLICT(thread_id) DO UPDATE SET %[1]s = %[1]s + excluded.%[1]s, updated_at = excluded.updated_at`,
		column)
	if _, err := s.db.ExecContext(ctx, q, threadID, n, formatTime(time.Now().UTC())); err != nil {
		return fmt.Errorf("advance %s: %w", column, err)
	}
	return nil
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
