package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/pearlgull/pearlgull/internal/schema"
)

// Profile loads the stored user profile; a profile that was never saved
// comes back zero-valued, not as an error.
func (s *Store) Profile(ctx context.Context) (schema.Profile, error) {
	row := s.db.QueryRowContext(ctx, `SELECT data FROM profile WHERE id = 1`)

	var data string
	err := row.Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return schema.Profile{}, nil
	}
	if err != nil {
		return schema.Profile{}, fmt.Errorf("load profile: %w", err)
	}

	var p schema.Profile
	if err := json.Unmarshal([]byte(data), &p); err != nil {
		return schema.Profile{}, fmt.Errorf("decode profile: %w", err)
	}
	return p, nil
}

// SaveProfile replaces the stored user profile.
func (s *Store) SaveProfile(ctx context.Context, p schema.Profile) error {
	data, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("encode profile: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO profile (id, data) VALUES (1, ?)
		ON CONFLICT(id) DO UPDATE SET data = excluded.data`, string(data))
	if err != nil {
		return fmt.Errorf("save profile: %w", err)
	}
	return nil
}
