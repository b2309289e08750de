// Package sqlite is a things.Store backed by a SQLite file, so sessions
// survive restarts. Every write the engine relies on for consistency is
// guarded in SQL, so several processes on one host may share a file.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	msqlite "modernc.org/sqlite"
	sqlite3lib "modernc.org/sqlite/lib"

	"github.com/Seednode/whosaidit/games/things"
	"github.com/Seednode/whosaidit/store/sqlite/migrations"
)

// Store persists game state in SQLite.
type Store struct {
	db *sql.DB
}

func toMillis(t time.Time) int64 { return t.UTC().UnixMilli() }

func fromMillis(v int64) time.Time { return time.UnixMilli(v).UTC() }

// Open opens (creating if needed) the database at path and applies pending
// migrations.
func Open(ctx context.Context, path string) (*Store, error) {
	if strings.TrimSpace(path) == "" {
		return nil, errors.New("storage path is required")
	}

	dsn := "file:" + filepath.Clean(path) +
		"?_pragma=foreign_keys(1)&_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=synchronous(NORMAL)"

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping sqlite db: %w", err)
	}
	if err := applyMigrations(ctx, db, migrations.FS); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return &Store{db: db}, nil
}

// Close closes the database handle.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *Store) CreateSession(ctx context.Context, session things.Session) error {
	queue, err := encodeQueue(session.TurnQueue)
	if err != nil {
		return err
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO sessions (id, owner, prompt, status, turn_queue, created_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		session.ID,
		session.Owner,
		session.Prompt,
		string(session.Status),
		queue,
		toMillis(session.CreatedAt),
	)
	if err != nil {
		if isConstraint(err, sqlite3lib.SQLITE_CONSTRAINT_PRIMARYKEY, sqlite3lib.SQLITE_CONSTRAINT_UNIQUE) {
			return things.ErrSessionExists
		}
		return fmt.Errorf("create session: %w", err)
	}

	return nil
}

func (s *Store) GetSession(ctx context.Context, id string) (things.Session, error) {
	var (
		session   things.Session
		status    string
		queue     string
		createdAt int64
	)

	err := s.db.QueryRowContext(ctx,
		`SELECT id, owner, prompt, status, turn_queue, created_at FROM sessions WHERE id = ?`, id,
	).Scan(&session.ID, &session.Owner, &session.Prompt, &status, &queue, &createdAt)
	if errors.Is(err, sql.ErrNoRows) {
		return things.Session{}, things.ErrSessionNotFound
	}
	if err != nil {
		return things.Session{}, fmt.Errorf("get session: %w", err)
	}

	session.Status = things.Status(status)
	session.CreatedAt = fromMillis(createdAt)
	if session.TurnQueue, err = decodeQueue(queue); err != nil {
		return things.Session{}, err
	}

	return session, nil
}

func (s *Store) StartSession(ctx context.Context, id string, queue things.TurnQueue) (bool, error) {
	encoded, err := encodeQueue(queue)
	if err != nil {
		return false, err
	}

	res, err := s.db.ExecContext(ctx,
		`UPDATE sessions SET status = ?, turn_queue = ? WHERE id = ? AND status = ?`,
		string(things.StatusStarted), encoded, id, string(things.StatusOpen),
	)
	if err != nil {
		return false, fmt.Errorf("start session: %w", err)
	}

	return s.applied(ctx, res, `SELECT 1 FROM sessions WHERE id = ?`, things.ErrSessionNotFound, id)
}

func (s *Store) ResetSession(ctx context.Context, id, prompt string, createdAt time.Time) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE sessions SET prompt = ?, status = ?, turn_queue = '[]', created_at = ? WHERE id = ?`,
		prompt, string(things.StatusOpen), toMillis(createdAt), id,
	)
	if err != nil {
		return fmt.Errorf("reset session: %w", err)
	}

	return requireRow(res, things.ErrSessionNotFound)
}

func (s *Store) SetTurnQueue(ctx context.Context, id string, from, to things.TurnQueue) (bool, error) {
	prev, err := encodeQueue(from)
	if err != nil {
		return false, err
	}
	next, err := encodeQueue(to)
	if err != nil {
		return false, err
	}

	res, err := s.db.ExecContext(ctx,
		`UPDATE sessions SET turn_queue = ? WHERE id = ? AND turn_queue = ?`, next, id, prev,
	)
	if err != nil {
		return false, fmt.Errorf("set turn queue: %w", err)
	}

	return s.applied(ctx, res, `SELECT 1 FROM sessions WHERE id = ?`, things.ErrSessionNotFound, id)
}

func (s *Store) PutEntry(ctx context.Context, e things.Entry) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO entries (session_id, id, author, text, created_at, revealed, guessed)
		 VALUES (?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT (session_id, id) DO UPDATE SET
		   author = excluded.author,
		   text = excluded.text,
		   revealed = excluded.revealed,
		   guessed = excluded.guessed`,
		e.SessionID, e.ID, e.Author, e.Text, toMillis(e.CreatedAt), e.Revealed, e.Guessed,
	)
	if err != nil {
		if isConstraint(err, sqlite3lib.SQLITE_CONSTRAINT_FOREIGNKEY) {
			return things.ErrSessionNotFound
		}
		return fmt.Errorf("put entry: %w", err)
	}

	return nil
}

const entryColumns = `session_id, id, author, text, created_at, revealed, guessed`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanEntry(row rowScanner) (things.Entry, error) {
	var (
		e         things.Entry
		createdAt int64
	)
	if err := row.Scan(&e.SessionID, &e.ID, &e.Author, &e.Text, &createdAt, &e.Revealed, &e.Guessed); err != nil {
		return things.Entry{}, err
	}
	e.CreatedAt = fromMillis(createdAt)
	return e, nil
}

func (s *Store) GetEntry(ctx context.Context, sessionID, entryID string) (things.Entry, error) {
	e, err := scanEntry(s.db.QueryRowContext(ctx,
		`SELECT `+entryColumns+` FROM entries WHERE session_id = ? AND id = ?`, sessionID, entryID,
	))
	if errors.Is(err, sql.ErrNoRows) {
		return things.Entry{}, things.ErrEntryNotFound
	}
	if err != nil {
		return things.Entry{}, fmt.Errorf("get entry: %w", err)
	}

	return e, nil
}

func (s *Store) ListEntries(ctx context.Context, sessionID string) ([]things.Entry, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+entryColumns+` FROM entries WHERE session_id = ? ORDER BY created_at, rowid`, sessionID,
	)
	if err != nil {
		return nil, fmt.Errorf("list entries: %w", err)
	}
	defer rows.Close()

	out := []things.Entry{}
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, fmt.Errorf("scan entry: %w", err)
		}
		out = append(out, e)
	}

	return out, rows.Err()
}

func (s *Store) RevealEntry(ctx context.Context, sessionID, entryID string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE entries SET revealed = 1 WHERE session_id = ? AND id = ?`, sessionID, entryID,
	)
	if err != nil {
		return fmt.Errorf("reveal entry: %w", err)
	}

	return requireRow(res, things.ErrEntryNotFound)
}

func (s *Store) ResolveGuess(ctx context.Context, sessionID string, r things.Resolution) (int, error) {
	prev, err := encodeQueue(r.From)
	if err != nil {
		return 0, err
	}
	next, err := encodeQueue(r.To)
	if err != nil {
		return 0, err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin resolve guess: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	res, err := tx.ExecContext(ctx,
		`UPDATE entries SET guessed = 1 WHERE session_id = ? AND id = ? AND guessed = 0`, sessionID, r.EntryID,
	)
	if err != nil {
		return 0, fmt.Errorf("mark guessed: %w", err)
	}
	if err := guard(ctx, tx, res, things.ErrEntryGuessed,
		`SELECT 1 FROM entries WHERE session_id = ? AND id = ?`, things.ErrEntryNotFound, sessionID, r.EntryID); err != nil {
		return 0, err
	}

	res, err = tx.ExecContext(ctx,
		`UPDATE sessions SET turn_queue = ? WHERE id = ? AND turn_queue = ?`, next, sessionID, prev,
	)
	if err != nil {
		return 0, fmt.Errorf("set turn queue: %w", err)
	}
	if err := guard(ctx, tx, res, things.ErrQueueChanged,
		`SELECT 1 FROM sessions WHERE id = ?`, things.ErrSessionNotFound, sessionID); err != nil {
		return 0, err
	}

	var score int
	err = tx.QueryRowContext(ctx,
		`INSERT INTO scores (session_id, player, score) VALUES (?, ?, 1)
		 ON CONFLICT (session_id, player) DO UPDATE SET score = score + 1
		 RETURNING score`,
		sessionID, r.Guesser,
	).Scan(&score)
	if err != nil {
		return 0, fmt.Errorf("add score: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit resolve guess: %w", err)
	}

	return score, nil
}

func (s *Store) DeleteEntries(ctx context.Context, sessionID string) (int, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM entries WHERE session_id = ?`, sessionID)
	if err != nil {
		return 0, fmt.Errorf("delete entries: %w", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("delete entries: %w", err)
	}

	return int(n), nil
}

func (s *Store) ListScores(ctx context.Context, sessionID string) ([]things.Score, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT session_id, player, score FROM scores WHERE session_id = ? ORDER BY player`, sessionID,
	)
	if err != nil {
		return nil, fmt.Errorf("list scores: %w", err)
	}
	defer rows.Close()

	out := []things.Score{}
	for rows.Next() {
		var sc things.Score
		if err := rows.Scan(&sc.SessionID, &sc.Player, &sc.Score); err != nil {
			return nil, fmt.Errorf("scan score: %w", err)
		}
		out = append(out, sc)
	}

	return out, rows.Err()
}

func (s *Store) ExpiredSessions(ctx context.Context, cutoff time.Time) ([]string, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id FROM sessions WHERE created_at < ? ORDER BY id`, toMillis(cutoff),
	)
	if err != nil {
		return nil, fmt.Errorf("expired sessions: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan session id: %w", err)
		}
		ids = append(ids, id)
	}

	return ids, rows.Err()
}

func (s *Store) DeleteSession(ctx context.Context, id string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin delete session: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `DELETE FROM entries WHERE session_id = ?`, id); err != nil {
		return fmt.Errorf("delete session entries: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM scores WHERE session_id = ?`, id); err != nil {
		return fmt.Errorf("delete session scores: %w", err)
	}
	res, err := tx.ExecContext(ctx, `DELETE FROM sessions WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete session: %w", err)
	}
	if err := requireRow(res, things.ErrSessionNotFound); err != nil {
		return err
	}

	return tx.Commit()
}

// applied interprets the result of a conditional update. When no row
// changed, probe tells apart a failed guard (false, nil) from a missing
// record (notFound).
func (s *Store) applied(ctx context.Context, res sql.Result, probe string, notFound error, args ...any) (bool, error) {
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	if n > 0 {
		return true, nil
	}

	var found int
	err = s.db.QueryRowContext(ctx, probe, args...).Scan(&found)
	if errors.Is(err, sql.ErrNoRows) {
		return false, notFound
	}
	if err != nil {
		return false, err
	}

	return false, nil
}

// guard interprets a conditional update run inside tx. When no row changed,
// it reports failed if the record exists and notFound otherwise.
func guard(ctx context.Context, tx *sql.Tx, res sql.Result, failed error, probe string, notFound error, args ...any) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n > 0 {
		return nil
	}

	var found int
	err = tx.QueryRowContext(ctx, probe, args...).Scan(&found)
	if errors.Is(err, sql.ErrNoRows) {
		return notFound
	}
	if err != nil {
		return err
	}

	return failed
}

func requireRow(res sql.Result, notFound error) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return notFound
	}
	return nil
}

func isConstraint(err error, codes ...int) bool {
	var sqliteErr *msqlite.Error
	if !errors.As(err, &sqliteErr) {
		return false
	}
	for _, code := range codes {
		if sqliteErr.Code() == code {
			return true
		}
	}
	return false
}

// encodeQueue is canonical, with an empty queue always stored as "[]", so
// queues can be compared as text in guarded updates.
func encodeQueue(q things.TurnQueue) (string, error) {
	b, err := json.Marshal(q.Names())
	if err != nil {
		return "", fmt.Errorf("encode turn queue: %w", err)
	}
	return string(b), nil
}

func decodeQueue(s string) (things.TurnQueue, error) {
	q := things.TurnQueue{}
	if err := json.Unmarshal([]byte(s), &q); err != nil {
		return nil, fmt.Errorf("decode turn queue: %w", err)
	}
	return q, nil
}

var _ things.Store = (*Store)(nil)
