package replay

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"whiteshoe/server/internal/game"
	"whiteshoe/server/internal/logging"
	"whiteshoe/server/internal/mapgen"
	"whiteshoe/server/internal/protocol"
)

func TestWriterRoundTripsEventsAndFrames(t *testing.T) {
	tmp := t.TempDir()
	base := time.Date(2024, 7, 10, 12, 0, 0, 0, time.UTC)
	now := base
	clock := func() time.Time { return now }

	writer, manifest, err := NewWriter(tmp, "Test Run!", clock, logging.NewTestLogger())
	if err != nil {
		t.Fatalf("create writer: %v", err)
	}
	if filepath.Base(writer.Directory()) != "TestRun-20240710T120000Z" {
		t.Fatalf("unexpected run directory %s", writer.Directory())
	}
	if manifest.FrameIntervalMs != 200 {
		t.Fatalf("expected frame interval 200 ms, got %d", manifest.FrameIntervalMs)
	}
	writer.SetHeader("42", "cone", "empty", "base", map[string]string{"AlwaysDirtyPlayers": ""})

	writer.GameEvent(game.Event{GameID: 0, PlayerID: 1, Status: protocol.StatusJoined, Name: "ann", At: base})
	writer.GameEvent(game.Event{GameID: 0, PlayerID: 1, Status: protocol.StatusDeath, Responsible: 2, DamageType: protocol.DamageStab, At: base.Add(time.Second)})

	for i := 0; i < 4; i++ {
		p := &protocol.Packet{PacketID: uint64(i), PayloadType: protocol.PayloadKeepAlive}
		writer.RecordPacket(now, 1, p)
		now = now.Add(120 * time.Millisecond)
	}
	if _, frames := writer.Counts(); frames != 3 {
		t.Fatalf("expected the cadence to flush three frames, got %d", frames)
	}
	if err := writer.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	if err := writer.Close(); err != nil {
		t.Fatalf("second close: %v", err)
	}

	bundle, err := Load(writer.Directory())
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if bundle.Header == nil || bundle.Header.Seed != "42" {
		t.Fatalf("unexpected header %+v", bundle.Header)
	}
	if _, ok := bundle.Header.Options["AlwaysDirtyPlayers"]; !ok {
		t.Fatalf("expected the options to be recorded")
	}
	if len(bundle.Events) != 2 || bundle.Events[0].Status != "joined" || bundle.Events[1].Damage != "stab" {
		t.Fatalf("unexpected events %+v", bundle.Events)
	}
	if bundle.Events[0].Damage != "" {
		t.Fatalf("joins carry no damage type")
	}
	if len(bundle.Frames) != 4 || bundle.Frames[3].Packet.PacketID != 3 || bundle.Frames[0].PlayerID != 1 {
		t.Fatalf("unexpected frames %+v", bundle.Frames)
	}

	timeline := bundle.Timeline()
	if len(timeline) != 6 || timeline[0].Event == nil || timeline[1].Frame == nil {
		t.Fatalf("expected the join to lead the timeline, got %+v", timeline[:2])
	}
	if timeline[5].Event == nil || timeline[5].Event.Status != "death" {
		t.Fatalf("expected the death to close the timeline")
	}
}

func TestLoadRequiresManifest(t *testing.T) {
	if _, err := Load(t.TempDir()); err == nil {
		t.Fatalf("expected an error for a directory without manifest")
	}
	if _, err := Load(""); err == nil {
		t.Fatalf("expected an error for an empty path")
	}
}

func TestHeaderValidation(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "header.json")
	if err := WriteHeader(path, Header{SchemaVersion: 1}); err == nil {
		t.Fatalf("expected missing file pointer to be rejected")
	}
	if err := WriteHeader(path, Header{SchemaVersion: 1, RunID: "r", FilePointer: manifestFile}); err != nil {
		t.Fatalf("write header: %v", err)
	}
	header, err := ReadHeader(path)
	if err != nil || header.RunID != "r" {
		t.Fatalf("unexpected header %+v (%v)", header, err)
	}
}

func TestSaveStoreRoundTrip(t *testing.T) {
	g, err := game.New(game.Config{
		Vision:    "square",
		Generator: "empty",
		Seed:      5,
		Map:       mapgen.Params{Width: 10, Height: 8},
	})
	if err != nil {
		t.Fatalf("new game: %v", err)
	}
	if _, err := g.Join(3, "ann", 1); err != nil {
		t.Fatalf("join: %v", err)
	}
	snap, err := g.Snapshot()
	if err != nil {
		t.Fatalf("snapshot: %v", err)
	}

	store := NewSaveStore(filepath.Join(t.TempDir(), "saves", "whiteshoe.save"), nil)
	if _, err := store.Load(); !errors.Is(err, ErrNoSave) {
		t.Fatalf("expected ErrNoSave, got %v", err)
	}
	if err := store.Save([]game.Snapshot{snap}); err != nil {
		t.Fatalf("save: %v", err)
	}
	if _, err := os.Stat(store.Path() + ".tmp"); !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("expected the temporary file to be renamed away")
	}
	loaded, err := store.Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(loaded) != 1 {
		t.Fatalf("expected one game, got %d", len(loaded))
	}
	got := loaded[0]
	if got.Width != 10 || got.Height != 8 || len(got.Cells) != len(snap.Cells) || len(got.RNG) == 0 {
		t.Fatalf("world did not survive the round trip: %+v", got)
	}
	if len(got.Members) != 1 || got.Members[0].PlayerID != 3 || got.Members[0].Team != 1 {
		t.Fatalf("roster did not survive: %+v", got.Members)
	}

	restored, err := game.Restore(got, game.Config{})
	if err != nil {
		t.Fatalf("restore: %v", err)
	}
	if _, _, ok := restored.World().FindPlayer(3); !ok {
		t.Fatalf("expected the player entity to be restored")
	}
}

func TestCleanerKeepsNewestRuns(t *testing.T) {
	tmp := t.TempDir()
	now := time.Date(2024, 7, 15, 12, 0, 0, 0, time.UTC)
	for i, name := range []string{"alpha", "bravo", "charlie", "delta"} {
		dir := filepath.Join(tmp, name)
		if err := os.MkdirAll(dir, 0o755); err != nil {
			t.Fatalf("mkdir: %v", err)
		}
		manifest := filepath.Join(dir, manifestFile)
		if err := os.WriteFile(manifest, []byte("{}"), 0o644); err != nil {
			t.Fatalf("write: %v", err)
		}
		mod := now.Add(-time.Duration(4-i) * time.Hour)
		if err := os.Chtimes(manifest, mod, mod); err != nil {
			t.Fatalf("chtimes: %v", err)
		}
	}
	if err := os.WriteFile(filepath.Join(tmp, "stray.txt"), []byte("x"), 0o644); err != nil {
		t.Fatalf("write stray: %v", err)
	}

	cleaner := NewCleaner(tmp, RetentionPolicy{MaxRuns: 2, MaxAge: 210 * time.Minute}, logging.NewTestLogger())
	cleaner.now = func() time.Time { return now }
	cleaner.Protect(filepath.Join(tmp, "alpha"))
	cleaner.RunOnce()

	for name, want := range map[string]bool{"alpha": true, "bravo": false, "charlie": true, "delta": true} {
		_, err := os.Stat(filepath.Join(tmp, name))
		if exists := err == nil; exists != want {
			t.Fatalf("run %s exists=%v, want %v", name, exists, want)
		}
	}
	if _, err := os.Stat(filepath.Join(tmp, "stray.txt")); err != nil {
		t.Fatalf("files outside run directories must be left alone")
	}
	if stats := cleaner.Stats(); stats.Runs != 3 || stats.Bytes != 6 {
		t.Fatalf("unexpected stats %+v", stats)
	}
}
