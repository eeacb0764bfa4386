package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/pearlgull/pearlgull/internal/schema"
)

// ErrNotFound is returned when a thread or profile row does not exist.
var ErrNotFound = errors.New("store: not found")

const timeLayout = time.RFC3339Nano

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(timeLayout)
}

func parseTime(s string) time.Time {
	if s == "" {
		return time.Time{}
	}
	t, err := time.Parse(timeLayout, s)
	if err != nil {
		return time.Time{}
	}
	return t
}

// CreateThread inserts a new thread. An empty id gets a generated one.
func (s *Store) CreateThread(ctx context.Context, id, title string) (schema.Thread, error) {
	if id == "" {
		id = uuid.NewString()
	}
	now := time.Now().UTC()
	th := schema.Thread{ID: id, Title: title, CreatedAt: now, UpdatedAt: now}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO threads (id, title, created_at, updated_at) VALUES (?, ?, ?, ?)`,
		th.ID, th.Title, formatTime(now), formatTime(now))
	if err != nil {
		return schema.Thread{}, fmt.Errorf("create thread: %w", err)
	}
	return th, nil
}

// GetThread loads one thread.
func (s *Store) GetThread(ctx context.Context, id string) (schema.Thread, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, title, created_at, updated_at,
		       summary, summary_lang, summary_quality, summary_source_hash,
		       summary_updated_at, last_summary_run_at
		FROM threads WHERE id = ?`, id)

	var th schema.Thread
	var created, updated, sumUpdated, lastRun string
	err := row.Scan(&th.ID, &th.Title, &created, &updated,
		&th.Summary, &th.SummaryLang, &th.SummaryQuality, &th.SummarySourceHash,
		&sumUpdated, &lastRun)
	if errors.Is(err, sql.ErrNoRows) {
		return schema.Thread{}, ErrNotFound
	}
	if err != nil {
		return schema.Thread{}, fmt.Errorf("get thread: %w", err)
	}
	th.CreatedAt = parseTime(created)
	th.UpdatedAt = parseTime(updated)
	th.SummaryUpdatedAt = parseTime(sumUpdated)
	th.LastSummaryRunAt = parseTime(lastRun)
	return th, nil
}

// EnsureThread loads a thread, creating it first if it does not exist.
func (s *Store) EnsureThread(ctx context.Context, id string) (schema.Thread, error) {
	th, err := s.GetThread(ctx, id)
	if err == nil {
		return th, nil
	}
	if !errors.Is(err, ErrNotFound) {
		return schema.Thread{}, err
	}
	return s.CreateThread(ctx, id, "")
}

// ListThreads returns all threads, most recently updated first.
func (s *Store) ListThreads(ctx context.Context) ([]schema.Thread, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, title, created_at, updated_at, summary, summary_quality
		FROM threads ORDER BY updated_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("list threads: %w", err)
	}
	defer rows.Close()

	var out []schema.Thread
	for rows.Next() {
		var th schema.Thread
		var created, updated string
		if err := rows.Scan(&th.ID, &th.Title, &created, &updated, &th.Summary, &th.SummaryQuality); err != nil {
			return nil, fmt.Errorf("scan thread: %w", err)
		}
		th.CreatedAt = parseTime(created)
		th.UpdatedAt = parseTime(updated)
		out = append(out, th)
	}
	return out, rows.Err()
}

// TouchThread bumps a thread's updated_at.
func (s *Store) TouchThread(ctx context.Context, id string) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE threads SET updated_at = ? WHERE id = ?`, formatTime(time.Now().UTC()), id)
	if err != nil {
		return fmt.Errorf("touch thread: %w", err)
	}
	return nil
}

// UpdateThreadSummary writes the rolling autosummary state.
func (s *Store) UpdateThreadSummary(ctx context.Context, th schema.Thread) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE threads SET
			summary = ?, summary_lang = ?, summary_quality = ?,
			summary_source_hash = ?, summary_updated_at = ?, last_summary_run_at = ?
		WHERE id = ?`,
		th.Summary, th.SummaryLang, th.SummaryQuality,
		th.SummarySourceHash, formatTime(th.SummaryUpdatedAt), formatTime(th.LastSummaryRunAt),
		th.ID)
	if err != nil {
		return fmt.Errorf("update thread summary: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// AppendMessage appends one message to a thread's log with the next
// sequence number.
func (s *Store) AppendMessage(ctx context.Context, threadID string, role schema.Role, content string) (schema.StoredMessage, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return schema.StoredMessage{}, fmt.Errorf("append message: %w", err)
	}
	defer tx.Rollback()

	var seq int64
	if err := tx.QueryRowContext(ctx,
		`SELECT COALESCE(MAX(seq), 0) + 1 FROM messages WHERE thread_id = ?`, threadID).Scan(&seq); err != nil {
		return schema.StoredMessage{}, fmt.Errorf("next seq: %w", err)
	}

	msg := schema.StoredMessage{
		ID:        uuid.NewString(),
		ThreadID:  threadID,
		Seq:       seq,
		Role:      role,
		Content:   content,
		CreatedAt: time.Now().UTC(),
	}
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO messages (id, thread_id, seq, role, content, created_at) VALUES (?, ?, ?, ?, ?, ?)`,
		msg.ID, msg.ThreadID, msg.Seq, msg.Role, msg.Content, formatTime(msg.CreatedAt)); err != nil {
		return schema.StoredMessage{}, fmt.Errorf("insert message: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return schema.StoredMessage{}, fmt.Errorf("append message: %w", err)
	}
	return msg, nil
}

// Messages returns up to limit most recent messages of a thread in
// chronological order. limit <= 0 means all.
func (s *Store) Messages(ctx context.Context, threadID string, limit int) ([]schema.StoredMessage, error) {
	q := `SELECT id, thread_id, seq, role, content, created_at FROM messages WHERE thread_id = ? ORDER BY seq`
	args := []any{threadID}
	if limit > 0 {
		q = `SELECT * FROM (
			SELECT id, thread_id, seq, role, content, created_at
			FROM messages WHERE thread_id = ? ORDER BY seq DESC LIMIT ?
		) ORDER BY seq`
		args = append(args, limit)
	}
	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("load messages: %w", err)
	}
	defer rows.Close()

	var out []schema.StoredMessage
	for rows.Next() {
		var m schema.StoredMessage
		var created string
		if err := rows.Scan(&m.ID, &m.ThreadID, &m.Seq, &m.Role, &m.Content, &created); err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		m.CreatedAt = parseTime(created)
		out = append(out, m)
	}
	return out, rows.Err()
}
