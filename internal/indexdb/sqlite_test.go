package indexdb

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"
	"time"

	_ "modernc.org/sqlite"

	"whiteshoe/server/internal/game"
	"whiteshoe/server/internal/logging"
	"whiteshoe/server/internal/protocol"
)

func TestSQLiteIndexScoresDeaths(t *testing.T) {
	path := filepath.Join(t.TempDir(), "index", "whiteshoe.db")
	idx, err := OpenSQLite(path, logging.NewTestLogger())
	if err != nil {
		t.Fatalf("OpenSQLite: %v", err)
	}
	defer idx.Close()

	at := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)
	idx.GameEvent(game.Event{GameID: 0, PlayerID: 1, Status: protocol.StatusJoined, Name: "ann", At: at})
	idx.GameEvent(game.Event{GameID: 0, PlayerID: 2, Status: protocol.StatusDeath, Responsible: 1, DamageType: protocol.DamageStab, At: at})
	idx.GameEvent(game.Event{GameID: 0, PlayerID: 2, Status: protocol.StatusDeath, Responsible: 1, DamageType: protocol.DamageExplosion, At: at})
	idx.GameEvent(game.Event{GameID: 0, PlayerID: 1, Status: protocol.StatusDeath, Responsible: protocol.OriginEnvironment, DamageType: protocol.DamageLava, At: at})
	idx.GameEvent(game.Event{GameID: 1, PlayerID: 3, Status: protocol.StatusDeath, Responsible: 3, DamageType: protocol.DamageExplosion, At: at})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := idx.Flush(ctx); err != nil {
		t.Fatalf("Flush: %v", err)
	}
	board, err := idx.Leaderboard(ctx, 5)
	if err != nil {
		t.Fatalf("Leaderboard: %v", err)
	}
	want := []ScoreRow{
		{GameID: 0, PlayerID: 1, Score: 1, Kills: 2, Deaths: 1},
		{GameID: 0, PlayerID: 2, Score: 0, Kills: 0, Deaths: 2},
		{GameID: 1, PlayerID: 3, Score: -1, Kills: 0, Deaths: 1},
	}
	if len(board) != len(want) {
		t.Fatalf("expected %d rows, got %+v", len(want), board)
	}
	for i := range want {
		if board[i] != want[i] {
			t.Fatalf("row %d: got %+v want %+v", i, board[i], want[i])
		}
	}
}

func TestSQLiteIndexPersistsEventsOnClose(t *testing.T) {
	path := filepath.Join(t.TempDir(), "whiteshoe.db")
	idx, err := OpenSQLite(path, logging.NewTestLogger())
	if err != nil {
		t.Fatalf("OpenSQLite: %v", err)
	}
	idx.GameEvent(game.Event{GameID: 4, PlayerID: 7, Status: protocol.StatusDamaged, Responsible: 2, DamageType: protocol.DamageSlime})
	if err := idx.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	idx.GameEvent(game.Event{GameID: 4, PlayerID: 7, Status: protocol.StatusLeft})

	db, err := sql.Open("sqlite", path)
	if err != nil {
		t.Fatalf("sql.Open: %v", err)
	}
	defer db.Close()
	var (
		count  int
		status string
		damage string
	)
	if err := db.QueryRow(`SELECT COUNT(*) FROM events`).Scan(&count); err != nil {
		t.Fatalf("count: %v", err)
	}
	if err := db.QueryRow(`SELECT status, damage FROM events WHERE game_id=4`).Scan(&status, &damage); err != nil {
		t.Fatalf("scan: %v", err)
	}
	if count != 1 || status != "damaged" || damage != "slime" {
		t.Fatalf("unexpected row count=%d status=%q damage=%q", count, status, damage)
	}
}

func TestOpenSQLiteRejectsEmptyPath(t *testing.T) {
	if _, err := OpenSQLite("", nil); err == nil {
		t.Fatalf("expected an error for an empty path")
	}
}
