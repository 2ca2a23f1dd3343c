package roster

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3" // sqlite3 driver
	"github.com/sugawarayuuta/sonnet"
)

const (
	defaultHistoryLimit = 10
	lastUpdateKey       = "last_update"
)

var schema = []string{ //nolint:gochecknoglobals // static DDL
	"PRAGMA journal_mode = WAL",
	"CREATE TABLE IF NOT EXISTS info (key TEXT PRIMARY KEY, value TEXT)",
	"CREATE TABLE IF NOT EXISTS servers (addr TEXT PRIMARY KEY, server TEXT, last_seen INTEGER)",
	"CREATE TABLE IF NOT EXISTS clients (id TEXT PRIMARY KEY, name TEXT, region TEXT, current_skin TEXT, skin_history TEXT)",
	"CREATE INDEX IF NOT EXISTS clients_name_region ON clients (name, region)",
	"CREATE INDEX IF NOT EXISTS clients_name ON clients (name)",
}

// HistoryEntry is one skin change. S holds the skin JSON as a string.
type HistoryEntry struct {
	S string `json:"s"`
	T int64  `json:"t"`
}

// Client is a stored player identity in one region.
type Client struct {
	ID          string
	Name        string
	Region      string
	CurrentSkin string
	History     []HistoryEntry
}

// Result summarizes one applied snapshot.
type Result struct {
	Servers     int
	Sightings   int
	NewClients  int
	SkinChanges int
}

// Store persists servers and client skin histories.
type Store struct {
	db           *sql.DB
	historyLimit int
	newID        func() string
}

// Open opens or creates the sqlite database at path and applies the schema.
func Open(ctx context.Context, path string, opts ...Option) (*Store, error) {
	db, err := sql.Open("sqlite3", path+"?_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("%w: open %s: %w", ErrStore, path, err)
	}
	// One writer; WAL lets readers proceed alongside it.
	db.SetMaxOpenConns(1)

	for _, stmt := range schema {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("%w: %s: %w", ErrStore, stmt, err)
		}
	}

	s := &Store{
		db:           db,
		historyLimit: defaultHistoryLimit,
		newID:        func() string { return uuid.NewString() },
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Apply writes one snapshot observed at minute now (unix seconds / 60) in a
// single transaction. Server rows are replaced; a client's history grows only
// when its skin differs from the stored one.
func (s *Store) Apply(ctx context.Context, snap Snapshot, now int64) (Result, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return Result{}, fmt.Errorf("%w: begin: %w", ErrStore, err)
	}
	res, err := s.apply(ctx, tx, snap, now)
	if err != nil {
		_ = tx.Rollback()
		return Result{}, err
	}
	if err := tx.Commit(); err != nil {
		return Result{}, fmt.Errorf("%w: commit: %w", ErrStore, err)
	}
	return res, nil
}

func (s *Store) apply(ctx context.Context, tx *sql.Tx, snap Snapshot, now int64) (Result, error) {
	res := Result{Servers: len(snap.Servers), Sightings: len(snap.Sightings)}

	upsertServer, err := tx.PrepareContext(ctx,
		"INSERT OR REPLACE INTO servers (addr, server, last_seen) VALUES (?, ?, ?)")
	if err != nil {
		return Result{}, fmt.Errorf("%w: prepare servers: %w", ErrStore, err)
	}
	defer upsertServer.Close()

	for _, row := range snap.Servers {
		if _, err := upsertServer.ExecContext(ctx, row.Addr, row.Info, now); err != nil {
			return Result{}, fmt.Errorf("%w: server %s: %w", ErrStore, row.Addr, err)
		}
	}

	getClient, err := tx.PrepareContext(ctx,
		"SELECT id, current_skin, skin_history FROM clients WHERE name = ? AND region = ?")
	if err != nil {
		return Result{}, fmt.Errorf("%w: prepare clients: %w", ErrStore, err)
	}
	defer getClient.Close()

	upsertClient, err := tx.PrepareContext(ctx,
		"INSERT OR REPLACE INTO clients (id, name, region, current_skin, skin_history) VALUES (?, ?, ?, ?, ?)")
	if err != nil {
		return Result{}, fmt.Errorf("%w: prepare clients: %w", ErrStore, err)
	}
	defer upsertClient.Close()

	for _, sg := range snap.Sightings {
		var id, current, history string
		err := getClient.QueryRowContext(ctx, sg.Name, sg.Region).Scan(&id, &current, &history)
		var entries []HistoryEntry
		switch {
		case errors.Is(err, sql.ErrNoRows):
			id = s.newID()
			res.NewClients++
		case err != nil:
			return Result{}, fmt.Errorf("%w: client %q: %w", ErrStore, sg.Name, err)
		case current == sg.Skin:
			continue
		default:
			if err := sonnet.Unmarshal([]byte(history), &entries); err != nil {
				return Result{}, fmt.Errorf("%w: history of %q: %w", ErrStore, sg.Name, err)
			}
			res.SkinChanges++
		}

		entries = append(entries, HistoryEntry{S: sg.Skin, T: now})
		if len(entries) > s.historyLimit {
			entries = entries[len(entries)-s.historyLimit:]
		}
		b, err := sonnet.Marshal(entries)
		if err != nil {
			return Result{}, fmt.Errorf("%w: history of %q: %w", ErrStore, sg.Name, err)
		}
		if _, err := upsertClient.ExecContext(ctx, id, sg.Name, sg.Region, sg.Skin, string(b)); err != nil {
			return Result{}, fmt.Errorf("%w: client %q: %w", ErrStore, sg.Name, err)
		}
	}

	if _, err := tx.ExecContext(ctx,
		"INSERT OR REPLACE INTO info (key, value) VALUES (?, ?)", lastUpdateKey, now); err != nil {
		return Result{}, fmt.Errorf("%w: last update: %w", ErrStore, err)
	}
	return res, nil
}

// LastUpdate returns the minute of the last applied snapshot.
func (s *Store) LastUpdate(ctx context.Context) (int64, bool, error) {
	var v string
	err := s.db.QueryRowContext(ctx, "SELECT value FROM info WHERE key = ?", lastUpdateKey).Scan(&v)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("%w: last update: %w", ErrStore, err)
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return 0, false, fmt.Errorf("%w: last update %q: %w", ErrStore, v, err)
	}
	return n, true, nil
}

// Client returns the stored client for name in region.
func (s *Store) Client(ctx context.Context, name, region string) (Client, bool, error) {
	c := Client{Name: name, Region: region}
	var history string
	err := s.db.QueryRowContext(ctx,
		"SELECT id, current_skin, skin_history FROM clients WHERE name = ? AND region = ?",
		name, region).Scan(&c.ID, &c.CurrentSkin, &history)
	if errors.Is(err, sql.ErrNoRows) {
		return Client{}, false, nil
	}
	if err != nil {
		return Client{}, false, fmt.Errorf("%w: client %q: %w", ErrStore, name, err)
	}
	if err := sonnet.Unmarshal([]byte(history), &c.History); err != nil {
		return Client{}, false, fmt.Errorf("%w: history of %q: %w", ErrStore, name, err)
	}
	return c, true, nil
}

// Server returns the stored info document and last-seen minute for addr.
func (s *Store) Server(ctx context.Context, addr string) (string, int64, bool, error) {
	var info string
	var seen int64
	err := s.db.QueryRowContext(ctx,
		"SELECT server, last_seen FROM servers WHERE addr = ?", addr).Scan(&info, &seen)
	if errors.Is(err, sql.ErrNoRows) {
		return "", 0, false, nil
	}
	if err != nil {
		return "", 0, false, fmt.Errorf("%w: server %s: %w", ErrStore, addr, err)
	}
	return info, seen, true, nil
}
