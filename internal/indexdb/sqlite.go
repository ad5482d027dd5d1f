// Package indexdb keeps a queryable sqlite index of game events and the score
// table derived from them. The event log under replay stays the source of
// truth; the index drops writes rather than stall the session loop.
package indexdb

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	_ "modernc.org/sqlite"

	"whiteshoe/server/internal/game"
	"whiteshoe/server/internal/logging"
	"whiteshoe/server/internal/protocol"
)

const queueDepth = 4096

// SQLiteIndex is a game.Observer writing on its own goroutine.
type SQLiteIndex struct {
	db  *sql.DB
	log *logging.Logger

	ch   chan req
	wg   sync.WaitGroup
	once sync.Once

	closed  atomic.Bool
	dropped atomic.Int64
}

type req struct {
	event game.Event
	done  chan struct{}
}

// ScoreRow is one leaderboard line.
type ScoreRow struct {
	GameID   int64 `json:"game_id"`
	PlayerID int   `json:"player_id"`
	Score    int   `json:"score"`
	Kills    int   `json:"kills"`
	Deaths   int   `json:"deaths"`
}

// OpenSQLite opens or creates the index at path.
func OpenSQLite(path string, logger *logging.Logger) (*SQLiteIndex, error) {
	if path == "" {
		return nil, fmt.Errorf("empty db path")
	}
	if logger == nil {
		logger = logging.L()
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

	s := &SQLiteIndex{db: db, log: logger, ch: make(chan req, queueDepth)}
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.loop()
	}()
	return s, nil
}

func initPragmas(db *sql.DB) error {
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
		`CREATE TABLE IF NOT EXISTS events (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			at TEXT NOT NULL,
			game_id INTEGER NOT NULL,
			player_id INTEGER NOT NULL,
			status TEXT NOT NULL,
			responsible INTEGER NOT NULL,
			damage TEXT NOT NULL,
			name TEXT NOT NULL
		);`,
		`CREATE INDEX IF NOT EXISTS idx_events_player ON events(game_id, player_id);`,
		`CREATE TABLE IF NOT EXISTS scores (
			game_id INTEGER NOT NULL,
			player_id INTEGER NOT NULL,
			score INTEGER NOT NULL DEFAULT 0,
			kills INTEGER NOT NULL DEFAULT 0,
			deaths INTEGER NOT NULL DEFAULT 0,
			PRIMARY KEY (game_id, player_id)
		);`,
	}
	for _, s := range stmts {
		if _, err := db.Exec(s); err != nil {
			return err
		}
	}
	return nil
}

// GameEvent queues the event; it is dropped when the writer falls behind.
func (s *SQLiteIndex) GameEvent(e game.Event) {
	if s == nil || s.closed.Load() {
		return
	}
	select {
	case s.ch <- req{event: e}:
	default:
		s.dropped.Add(1)
	}
}

// Dropped reports how many events were discarded.
func (s *SQLiteIndex) Dropped() int64 {
	if s == nil {
		return 0
	}
	return s.dropped.Load()
}

// Flush waits until every event queued so far is written.
func (s *SQLiteIndex) Flush(ctx context.Context) error {
	if s == nil || s.closed.Load() {
		return nil
	}
	done := make(chan struct{})
	select {
	case s.ch <- req{done: done}:
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Leaderboard returns the best scores across every game.
func (s *SQLiteIndex) Leaderboard(ctx context.Context, limit int) ([]ScoreRow, error) {
	if limit <= 0 {
		limit = 10
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT game_id, player_id, score, kills, deaths FROM scores ORDER BY score DESC, kills DESC, game_id, player_id LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []ScoreRow
	for rows.Next() {
		var r ScoreRow
		if err := rows.Scan(&r.GameID, &r.PlayerID, &r.Score, &r.Kills, &r.Deaths); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// Close drains the queue and closes the database.
func (s *SQLiteIndex) Close() error {
	if s == nil {
		return nil
	}
	var err error
	s.once.Do(func() {
		s.closed.Store(true)
		close(s.ch)
		s.wg.Wait()
		err = s.db.Close()
	})
	return err
}

func (s *SQLiteIndex) loop() {
	insertEvent, err := s.db.Prepare(`INSERT INTO events(at,game_id,player_id,status,responsible,damage,name) VALUES(?,?,?,?,?,?,?)`)
	if err != nil {
		s.log.Error("index statement prepare failed", logging.Error(err))
	}
	addScore, err := s.db.Prepare(`INSERT INTO scores(game_id,player_id,score,kills,deaths) VALUES(?,?,?,?,?)
		ON CONFLICT(game_id,player_id) DO UPDATE SET score=score+excluded.score, kills=kills+excluded.kills, deaths=deaths+excluded.deaths`)
	if err != nil {
		s.log.Error("index statement prepare failed", logging.Error(err))
	}
	defer func() {
		if insertEvent != nil {
			_ = insertEvent.Close()
		}
		if addScore != nil {
			_ = addScore.Close()
		}
	}()

	for r := range s.ch {
		if r.done != nil {
			close(r.done)
			continue
		}
		if insertEvent == nil || addScore == nil {
			continue
		}
		if err := s.write(insertEvent, addScore, r.event); err != nil {
			s.log.Warn("index write failed", logging.Error(err), logging.Int64("game_id", r.event.GameID))
		}
	}
}

// write stores one event and, for deaths, applies the scoring rule: the
// killer gains a point, a self inflicted or environmental death costs one.
func (s *SQLiteIndex) write(insertEvent, addScore *sql.Stmt, e game.Event) error {
	tx, err := s.db.BeginTx(context.Background(), nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	damage := ""
	if e.Status == protocol.StatusDeath || e.Status == protocol.StatusDamaged || e.Status == protocol.StatusKilled {
		damage = e.DamageType.String()
	}
	at := e.At
	if at.IsZero() {
		at = time.Now()
	}
	if _, err := tx.Stmt(insertEvent).Exec(at.UTC().Format(time.RFC3339Nano), e.GameID, e.PlayerID, e.Status.String(), e.Responsible, damage, e.Name); err != nil {
		return err
	}
	if e.Status == protocol.StatusDeath {
		scores := tx.Stmt(addScore)
		if e.Responsible == e.PlayerID || e.Responsible < 0 {
			if _, err := scores.Exec(e.GameID, e.PlayerID, -1, 0, 1); err != nil {
				return err
			}
		} else {
			if _, err := scores.Exec(e.GameID, e.PlayerID, 0, 0, 1); err != nil {
				return err
			}
			if _, err := scores.Exec(e.GameID, e.Responsible, 1, 1, 0); err != nil {
				return err
			}
		}
	}
	return tx.Commit()
}
