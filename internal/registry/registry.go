// Package registry tracks room and agent-session state for the worker
// process in a local sqlite database. Conversation content lives in Redis;
// this registry only answers "which rooms has the worker seen, and what is
// each agent session doing".
package registry

import (
	"crypto/rand"
	"database/sql"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	_ "modernc.org/sqlite"
)

type Registry struct {
	DB *sql.DB
}

func Open(path string) (*Registry, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	r := &Registry{DB: db}
	if err := r.migrate(); err != nil {
		return nil, err
	}
	return r, nil
}

func (r *Registry) Close() error {
	if r.DB == nil {
		return nil
	}
	return r.DB.Close()
}

func (r *Registry) migrate() error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS rooms (name TEXT PRIMARY KEY, phone TEXT, status TEXT, created_at INTEGER);`,
		`CREATE TABLE IF NOT EXISTS sessions (id TEXT PRIMARY KEY, room TEXT, identity TEXT, status TEXT, created_at INTEGER);`,
	}
	for _, q := range stmts {
		if _, err := r.DB.Exec(q); err != nil {
			return err
		}
	}

	// Add token column to sessions if not present (SQLite will error if exists; ignore)
	if _, err := r.DB.Exec(`ALTER TABLE sessions ADD COLUMN token TEXT;`); err != nil {
		// ignore "duplicate column name" - simple migration strategy
	}
	return nil
}

func genID() (string, error) {
	b := make([]byte, 12)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}

// UpsertRoom records a room the worker has observed. Re-recording an
// existing room only refreshes its status.
func (r *Registry) UpsertRoom(name, phone, status string) error {
	if name == "" {
		return errors.New("room name required")
	}
	now := time.Now().Unix()
	_, err := r.DB.Exec(
		`INSERT INTO rooms(name, phone, status, created_at) VALUES(?,?,?,?)
		 ON CONFLICT(name) DO UPDATE SET status = excluded.status`,
		name, phone, status, now)
	return err
}

func (r *Registry) UpdateRoomStatus(name, status string) error {
	res, err := r.DB.Exec(`UPDATE rooms SET status = ? WHERE name = ?`, status, name)
	if err != nil {
		return err
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return fmt.Errorf("room not found: %s", name)
	}
	return nil
}

func (r *Registry) RoomStatus(name string) (string, error) {
	var status string
	row := r.DB.QueryRow(`SELECT status FROM rooms WHERE name = ?`, name)
	if err := row.Scan(&status); err != nil {
		return "", err
	}
	return status, nil
}

// CreateSession records a new agent session joining a room and returns its id.
func (r *Registry) CreateSession(room, identity, status string) (string, error) {
	id, err := genID()
	if err != nil {
		return "", err
	}
	now := time.Now().Unix()
	if _, err := r.DB.Exec(`INSERT INTO sessions(id, room, identity, status, created_at) VALUES(?,?,?,?,?)`,
		id, room, identity, status, now); err != nil {
		return "", err
	}
	return id, nil
}

func (r *Registry) UpdateSessionStatus(sessionID, status string) error {
	res, err := r.DB.Exec(`UPDATE sessions SET status = ? WHERE id = ?`, status, sessionID)
	if err != nil {
		return err
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return fmt.Errorf("session not found: %s", sessionID)
	}
	return nil
}

// UpdateSessionToken stores the LiveKit access token minted for the session.
func (r *Registry) UpdateSessionToken(sessionID, token string) error {
	res, err := r.DB.Exec(`UPDATE sessions SET token = ? WHERE id = ?`, token, sessionID)
	if err != nil {
		return err
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return fmt.Errorf("session not found: %s", sessionID)
	}
	return nil
}

func (r *Registry) SessionToken(sessionID string) (string, error) {
	var token sql.NullString
	row := r.DB.QueryRow(`SELECT token FROM sessions WHERE id = ?`, sessionID)
	if err := row.Scan(&token); err != nil {
		return "", err
	}
	if token.Valid {
		return token.String, nil
	}
	return "", nil
}

// ActiveSessionForRoom returns the newest non-ended session id for a room.
func (r *Registry) ActiveSessionForRoom(room string) (string, error) {
	var id string
	row := r.DB.QueryRow(
		`SELECT id FROM sessions WHERE room = ? AND status != 'ended' ORDER BY created_at DESC LIMIT 1`, room)
	if err := row.Scan(&id); err != nil {
		return "", err
	}
	return id, nil
}
