package storage

import (
	"context"
	"time"
)

// Sample is one activity observation for a user at a tick boundary.
// Timestamps are stored at second resolution; one row per (username, timestamp).
type Sample struct {
	Username  string
	Timestamp time.Time
	Active    bool
}

// UpsertSample inserts a sample, replacing the active flag if a row for the
// same (username, timestamp) already exists. Last write wins.
func (s *Store) UpsertSample(ctx context.Context, sample Sample) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO activity_samples (username, timestamp, active)
		VALUES (?, ?, ?)
		ON CONFLICT(username, timestamp) DO UPDATE SET
			active = excluded.active
	`, sample.Username, sample.Timestamp.Unix(), boolToInt(sample.Active))
	return err
}

// SamplesSince returns a user's samples with timestamp >= since, oldest first.
func (s *Store) SamplesSince(ctx context.Context, username string, since time.Time) ([]Sample, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT username, timestamp, active
		FROM activity_samples
		WHERE username = ? AND timestamp >= ?
		ORDER BY timestamp ASC
	`, username, since.Unix())
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var samples []Sample
	for rows.Next() {
		var sample Sample
		var ts int64
		var active int
		if err := rows.Scan(&sample.Username, &ts, &active); err != nil {
			return nil, err
		}
		sample.Timestamp = time.Unix(ts, 0).UTC()
		sample.Active = active == 1
		samples = append(samples, sample)
	}
	return samples, rows.Err()
}

// DeleteBefore removes all samples older than cutoff, for every user.
func (s *Store) DeleteBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	result, err := s.db.ExecContext(ctx, `DELETE FROM activity_samples WHERE timestamp < ?`, cutoff.Unix())
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}

// DeleteAll clears the whole sample table.
func (s *Store) DeleteAll(ctx context.Context) (int64, error) {
	result, err := s.db.ExecContext(ctx, `DELETE FROM activity_samples`)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}

func (s *Store) DeleteUser(ctx context.Context, username string) (int64, error) {
	result, err := s.db.ExecContext(ctx, `DELETE FROM activity_samples WHERE username = ?`, username)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}

// RenameUser moves all samples from one username to another. OR REPLACE keeps
// a single row when both users already have a sample at the same timestamp.
func (s *Store) RenameUser(ctx context.Context, oldName, newName string) (int64, error) {
	result, err := s.db.ExecContext(ctx, `
		UPDATE OR REPLACE activity_samples SET username = ? WHERE username = ?
	`, newName, oldName)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}

// ListUsernames returns every username that has at least one sample.
func (s *Store) ListUsernames(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT DISTINCT username FROM activity_samples ORDER BY username`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var usernames []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		usernames = append(usernames, name)
	}
	return usernames, rows.Err()
}

// Counts returns the total number of samples and of distinct users.
func (s *Store) Counts(ctx context.Context) (samples int, users int, err error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT COUNT(id), COUNT(DISTINCT username) FROM activity_samples
	`)
	if err := row.Scan(&samples, &users); err != nil {
		return 0, 0, err
	}
	return samples, users, nil
}

func boolToInt(value bool) int {
	if value {
		return 1
	}
	return 0
}
