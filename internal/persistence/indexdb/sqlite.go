// Package indexdb keeps a queryable sqlite index of harvest activity.
// It is a secondary store: writes are fire-and-forget and may be dropped
// under pressure, the compressed event log remains the source of truth.
package indexdb

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	_ "modernc.org/sqlite"
)

type SQLiteIndex struct {
	db *sql.DB

	ch   chan req
	wg   sync.WaitGroup
	once sync.Once

	closed atomic.Bool
}

type reqKind int

const (
	reqHarvest reqKind = iota + 1
	reqRespawn
)

type req struct {
	kind    reqKind
	harvest HarvestRow
	respawn RespawnRow
}

type HarvestRow struct {
	TS       int64
	PlayerID string
	ObjectID string
	Success  bool
	Code     string
	Resource string
	Amount   int
}

type RespawnRow struct {
	TS       int64
	ObjectID string
}

func OpenSQLite(path string) (*SQLiteIndex, error) {
	if path == "" {
		return nil, fmt.Errorf("empty db path")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	if err := initPragmas(db); err != nil {
		_ = db.Close()
		return nil, err
	}
	if err := initSchema(db); err != nil {
		_ = db.Close()
		return nil, err
	}

	s := &SQLiteIndex{
		db: db,
		ch: make(chan req, 16384),
	}
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.loop()
	}()
	return s, nil
}

func initPragmas(db *sql.DB) error {
	// WAL suits the append-only workload; NORMAL durability is fine for a
	// secondary index.
	pragmas := []string{
		"PRAGMA journal_mode=WAL;",
		"PRAGMA synchronous=NORMAL;",
		"PRAGMA busy_timeout=5000;",
		"PRAGMA temp_store=MEMORY;",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			return err
		}
	}
	return nil
}

func initSchema(db *sql.DB) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS meta (
			key TEXT PRIMARY KEY,
			value TEXT NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS harvest_events (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			ts INTEGER NOT NULL,
			player_id TEXT NOT NULL,
			object_id TEXT NOT NULL,
			success INTEGER NOT NULL,
			code TEXT,
			resource TEXT,
			amount INTEGER NOT NULL DEFAULT 0
		);`,
		`CREATE INDEX IF NOT EXISTS idx_harvest_player_ts ON harvest_events(player_id, ts);`,
		`CREATE INDEX IF NOT EXISTS idx_harvest_object_ts ON harvest_events(object_id, ts);`,
		`CREATE TABLE IF NOT EXISTS respawn_events (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			ts INTEGER NOT NULL,
			object_id TEXT NOT NULL
		);`,
		`CREATE INDEX IF NOT EXISTS idx_respawn_object_ts ON respawn_events(object_id, ts);`,
		`INSERT OR REPLACE INTO meta(key,value) VALUES('schema_version','1');`,
	}
	for _, s := range stmts {
		if _, err := db.Exec(s); err != nil {
			return err
		}
	}
	return nil
}

func (s *SQLiteIndex) Close() error {
	var err error
	s.once.Do(func() {
		s.closed.Store(true)
		close(s.ch)
		s.wg.Wait()
		err = s.db.Close()
	})
	return err
}

// RecordHarvest queues one harvest attempt. Never blocks the caller; the
// row is dropped if the indexer falls behind.
func (s *SQLiteIndex) RecordHarvest(row HarvestRow) {
	if s == nil || s.closed.Load() {
		return
	}
	if row.TS == 0 {
		row.TS = time.Now().Unix()
	}
	select {
	case s.ch <- req{kind: reqHarvest, harvest: row}:
	default:
	}
}

// RecordRespawn queues one respawn. Same drop semantics as RecordHarvest.
func (s *SQLiteIndex) RecordRespawn(row RespawnRow) {
	if s == nil || s.closed.Load() {
		return
	}
	if row.TS == 0 {
		row.TS = time.Now().Unix()
	}
	select {
	case s.ch <- req{kind: reqRespawn, respawn: row}:
	default:
	}
}

// HarvestCount reports rows indexed for a player. Intended for tests and
// the stats endpoint, not hot paths.
func (s *SQLiteIndex) HarvestCount(playerID string) (int, error) {
	var n int
	err := s.db.QueryRow(`SELECT COUNT(*) FROM harvest_events WHERE player_id = ?`, playerID).Scan(&n)
	return n, err
}

func (s *SQLiteIndex) loop() {
	insertHarvest, _ := s.db.Prepare(`INSERT INTO harvest_events(ts,player_id,object_id,success,code,resource,amount) VALUES(?,?,?,?,?,?,?)`)
	insertRespawn, _ := s.db.Prepare(`INSERT INTO respawn_events(ts,object_id) VALUES(?,?)`)
	defer func() {
		if insertHarvest != nil {
			_ = insertHarvest.Close()
		}
		if insertRespawn != nil {
			_ = insertRespawn.Close()
		}
	}()

	for r := range s.ch {
		switch r.kind {
		case reqHarvest:
			if insertHarvest == nil {
				continue
			}
			h := r.harvest
			success := 0
			if h.Success {
				success = 1
			}
			_, _ = insertHarvest.Exec(h.TS, h.PlayerID, h.ObjectID, success, h.Code, h.Resource, h.Amount)
		case reqRespawn:
			if insertRespawn == nil {
				continue
			}
			_, _ = insertRespawn.Exec(r.respawn.TS, r.respawn.ObjectID)
		}
	}
}
