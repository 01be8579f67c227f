package progress

import (
	"database/sql"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

// SQLiteStore persists progress in a local SQLite database so a restart of
// the server does not lose collected fragments.
type SQLiteStore struct {
	conn *sql.DB
}

// OpenSQLite opens (or creates) the database at path and initializes tables.
func OpenSQLite(path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, err
	}

	if err = db.Ping(); err != nil {
		return nil, err
	}

	if err = createTables(db); err != nil {
		return nil, err
	}

	return &SQLiteStore{conn: db}, nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.conn.Close()
}

func createTables(db *sql.DB) error {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS fragments (
			question_id TEXT PRIMARY KEY,
			fragment TEXT NOT NULL,
			recorded_at INTEGER NOT NULL
		)
	`)
	if err != nil {
		return err
	}

	_, err = db.Exec(`
		CREATE TABLE IF NOT EXISTS flags (
			name TEXT PRIMARY KEY,
			value TEXT NOT NULL
		)
	`)
	return err
}

// RecordFragment stores the fragment once; re-solving a solved question must
// not change existing state.
func (s *SQLiteStore) RecordFragment(questionID, fragment string) error {
	_, err := s.conn.Exec(
		"INSERT INTO fragments (question_id, fragment, recorded_at) VALUES (?, ?, ?) ON CONFLICT(question_id) DO NOTHING",
		questionID, fragment, time.Now().Unix(),
	)
	return err
}

func (s *SQLiteStore) Fragment(questionID string) (string, bool, error) {
	var fragment string
	err := s.conn.QueryRow(
		"SELECT fragment FROM fragments WHERE question_id = ?", questionID,
	).Scan(&fragment)
	if err == sql.ErrNoRows {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return fragment, true, nil
}

func (s *SQLiteStore) Fragments() (map[string]string, error) {
	rows, err := s.conn.Query("SELECT question_id, fragment FROM fragments")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make(map[string]string)
	for rows.Next() {
		var id, fragment string
		if err := rows.Scan(&id, &fragment); err != nil {
			return nil, err
		}
		out[id] = fragment
	}
	return out, rows.Err()
}

func (s *SQLiteStore) MarkClaimed() error {
	_, err := s.conn.Exec(
		"INSERT INTO flags (name, value) VALUES ('claimed', '1') ON CONFLICT(name) DO NOTHING",
	)
	return err
}

func (s *SQLiteStore) Claimed() (bool, error) {
	var value string
	err := s.conn.QueryRow("SELECT value FROM flags WHERE name = 'claimed'").Scan(&value)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return value == "1", nil
}

// Reset removes all recorded progress. Only an explicit cache-clear calls it.
func (s *SQLiteStore) Reset() error {
	if _, err := s.conn.Exec("DELETE FROM fragments"); err != nil {
		return err
	}
	_, err := s.conn.Exec("DELETE FROM flags")
	return err
}

// Ensure SQLiteStore implements Store
var _ Store = (*SQLiteStore)(nil)
