// Package store persists player highscores in SQLite.
package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/BioHazard786/bola/internal/leaderboard"
	_ "modernc.org/sqlite"
)

// columns maps each difficulty to its profiles column. Only these names are
// ever interpolated into SQL.
var columns = map[leaderboard.Difficulty]string{
	leaderboard.Easy:   "easy_highscore",
	leaderboard.Normal: "normal_highscore",
	leaderboard.Expert: "expert_highscore",
}

// Store is a SQLite-backed leaderboard.Store.
type Store struct {
	db *sql.DB
}

// Open opens or creates the database at path and applies the schema.
// Use ":memory:" for a throwaway database.
func Open(path string) (*Store, error) {
	dsn := path
	if path != ":memory:" {
		dsn = "file:" + path + "?_pragma=busy_timeout(5000)"
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	// SQLite serializes writers anyway and every ":memory:" connection is
	// its own database.
	db.SetMaxOpenConns(1)

	if err := migrate(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrating database: %w", err)
	}
	return &Store{db: db}, nil
}

func migrate(db *sql.DB) error {
	_, err := db.Exec(`CREATE TABLE IF NOT EXISTS profiles(
		username TEXT PRIMARY KEY,
		easy_highscore INTEGER,
		normal_highscore INTEGER,
		expert_highscore INTEGER
	);`)
	return err
}

// SetHighscore records score unless the player already has a higher one.
func (s *Store) SetHighscore(ctx context.Context, username string, difficulty leaderboard.Difficulty, score int) error {
	col, ok := columns[difficulty]
	if !ok {
		return fmt.Errorf("%w: %q", leaderboard.ErrUnknownDifficulty, difficulty)
	}

	query := fmt.Sprintf(`INSERT INTO profiles(username, %[1]s) VALUES(?, ?)
		ON CONFLICT(username) DO UPDATE SET %[1]s =
			CASE WHEN %[1]s IS NULL OR excluded.%[1]s > %[1]s THEN excluded.%[1]s ELSE %[1]s END`, col)
	if _, err := s.db.ExecContext(ctx, query, username, score); err != nil {
		return fmt.Errorf("saving %s highscore for %s: %w", difficulty, username, err)
	}
	return nil
}

// Highscore returns a player's best score. ok is false if the player has
// never scored on difficulty.
func (s *Store) Highscore(ctx context.Context, username string, difficulty leaderboard.Difficulty) (score int, ok bool, err error) {
	col, known := columns[difficulty]
	if !known {
		return 0, false, fmt.Errorf("%w: %q", leaderboard.ErrUnknownDifficulty, difficulty)
	}

	var value sql.NullInt64
	err = s.db.QueryRowContext(ctx, fmt.Sprintf(`SELECT %s FROM profiles WHERE username=?`, col), username).Scan(&value)
	if err == sql.ErrNoRows {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("reading %s highscore for %s: %w", difficulty, username, err)
	}
	return int(value.Int64), value.Valid, nil
}

// TopScores returns the best limit scores, highest first and ties by
// username.
func (s *Store) TopScores(ctx context.Context, difficulty leaderboard.Difficulty, limit int) ([]leaderboard.Entry, error) {
	col, ok := columns[difficulty]
	if !ok {
		return nil, fmt.Errorf("%w: %q", leaderboard.ErrUnknownDifficulty, difficulty)
	}

	query := fmt.Sprintf(`SELECT username, %[1]s FROM profiles
		WHERE %[1]s IS NOT NULL
		ORDER BY %[1]s DESC, username ASC
		LIMIT ?`, col)
	rows, err := s.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("querying %s highscores: %w", difficulty, err)
	}
	defer rows.Close()

	var entries []leaderboard.Entry
	for rows.Next() {
		var e leaderboard.Entry
		if err := rows.Scan(&e.Username, &e.Score); err != nil {
			return nil, fmt.Errorf("scanning %s highscore: %w", difficulty, err)
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}
