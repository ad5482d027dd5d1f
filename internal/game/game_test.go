package game

import (
	"errors"
	"testing"
	"time"

	"whiteshoe/server/internal/gameplay"
	"whiteshoe/server/internal/geom"
	"whiteshoe/server/internal/ids"
	"whiteshoe/server/internal/protocol"
	"whiteshoe/server/internal/world"
)

type recordingObserver struct {
	events []Event
}

func (r *recordingObserver) GameEvent(e Event) { r.events = append(r.events, e) }

func floorWorld(width, height int) *world.World {
	w := world.NewWorld(width, height)
	w.Fill(world.KindEmpty)
	return w
}

func newTestGame(t *testing.T, cfg Config) *Game {
	t.Helper()
	if cfg.World == nil {
		cfg.World = floorWorld(10, 10)
	}
	if cfg.Vision == "" {
		cfg.Vision = "all"
	}
	if cfg.Seed == 0 {
		cfg.Seed = 7
	}
	cfg.Clock = func() time.Time { return time.Unix(1700000000, 0) }
	g, err := New(cfg)
	if err != nil {
		t.Fatalf("new game: %v", err)
	}
	return g
}

func join(t *testing.T, g *Game, id int, name string, team int) []Outbound {
	t.Helper()
	out, err := g.Join(id, name, team)
	if err != nil {
		t.Fatalf("join %d: %v", id, err)
	}
	return out
}

// place moves a spawned player onto a fixed cell and facing, then settles
// every known world so later assertions only see their own changes.
func place(t *testing.T, g *Game, id int, at geom.Coordinate, facing world.Direction) *world.Entity {
	t.Helper()
	from, player, ok := g.world.FindPlayer(id)
	if !ok {
		t.Fatalf("player %d not spawned", id)
	}
	g.world.Remove(from, player)
	g.ensureFloor(from)
	g.world.Append(at, player)
	player.Attr.SetDirection(facing)
	for _, member := range g.order {
		g.Resync(member)
	}
	g.Flush()
	return player
}

func packetsFor(out []Outbound, id int, payload protocol.PayloadType) []*protocol.Packet {
	var packets []*protocol.Packet
	for _, o := range out {
		if o.PlayerID == id && o.Packet.PayloadType == payload {
			packets = append(packets, o.Packet)
		}
	}
	return packets
}

func visionCoords(packets []*protocol.Packet) geom.Set {
	coords := make(geom.Set)
	for _, p := range packets {
		for i := 0; i < p.ObjectCount(); i++ {
			x, y, _, _ := p.Object(i)
			coords.Add(geom.Coordinate{X: int(x), Y: int(y)})
		}
	}
	return coords
}

func TestNewRejectsUnknownNames(t *testing.T) {
	cases := []struct {
		name string
		cfg  Config
	}{
		{"mode", Config{Mode: "capture"}},
		{"vision", Config{Vision: "xray"}},
		{"generator", Config{Generator: "nope"}},
	}
	for _, tc := range cases {
		if _, err := New(tc.cfg); err == nil {
			t.Fatalf("%s: expected error", tc.name)
		}
	}
	if _, err := New(Config{Mode: "capture"}); !errors.Is(err, ErrUnknownMode) {
		t.Fatalf("expected ErrUnknownMode, got %v", err)
	}
}

func TestJoinHandshake(t *testing.T) {
	g := newTestGame(t, Config{Name: "arena"})
	join(t, g, 1, "alice", 0)
	out := join(t, g, 2, "bob", 0)

	statuses := packetsFor(out, 2, protocol.PayloadGameStatus)
	if len(statuses) < 3 {
		t.Fatalf("expected at least 3 statuses for the joiner, got %d", len(statuses))
	}
	info := statuses[0]
	if info.Status != protocol.StatusGameInfo || info.YourPlayerID != 2 || info.GameName != "arena" || info.NumPlayers != 2 {
		t.Fatalf("unexpected game info: %+v", info)
	}
	var sawSelf, sawHistorical bool
	for _, p := range statuses[1:] {
		if p.Status != protocol.StatusJoined {
			continue
		}
		if p.PlayerID == 2 && !p.Historical {
			sawSelf = true
		}
		if p.PlayerID == 1 && p.Historical && p.JoinedPlayerName == "alice" {
			sawHistorical = true
		}
	}
	if !sawSelf || !sawHistorical {
		t.Fatalf("joiner missing announcements: self=%v historical=%v", sawSelf, sawHistorical)
	}

	announced := false
	for _, p := range packetsFor(out, 1, protocol.PayloadGameStatus) {
		if p.Status == protocol.StatusJoined && p.PlayerID == 2 && p.JoinedPlayerName == "bob" {
			announced = true
		}
	}
	if !announced {
		t.Fatalf("existing member not told about the newcomer")
	}
	if len(packetsFor(out, 2, protocol.PayloadVisionUpdate)) == 0 {
		t.Fatalf("joiner received no vision")
	}
	if _, err := g.Join(2, "bob", 0); !errors.Is(err, ErrAlreadyJoined) {
		t.Fatalf("expected ErrAlreadyJoined, got %v", err)
	}
}

func TestJoinRespectsMaxPlayers(t *testing.T) {
	g := newTestGame(t, Config{MaxPlayers: 1})
	join(t, g, 1, "alice", 0)
	if _, err := g.Join(2, "bob", 0); !errors.Is(err, ErrGameFull) {
		t.Fatalf("expected ErrGameFull, got %v", err)
	}
}

func TestLeaveNotifiesRemainingPlayers(t *testing.T) {
	obs := &recordingObserver{}
	g := newTestGame(t, Config{Observer: obs})
	join(t, g, 1, "alice", 0)
	join(t, g, 2, "bob", 0)

	out, ok := g.Leave(1)
	if !ok {
		t.Fatalf("leave reported non-member")
	}
	left := packetsFor(out, 2, protocol.PayloadGameStatus)
	if len(left) == 0 || left[0].Status != protocol.StatusLeft || left[0].PlayerID != 1 {
		t.Fatalf("remaining player not told: %+v", left)
	}
	if _, _, found := g.world.FindPlayer(1); found {
		t.Fatalf("player entity still in world")
	}
	if g.HasPlayer(1) || g.NumPlayers() != 1 {
		t.Fatalf("roster not updated")
	}
	if _, ok := g.Leave(1); ok {
		t.Fatalf("second leave should report false")
	}
	last := obs.events[len(obs.events)-1]
	if last.Status != protocol.StatusLeft || last.PlayerID != 1 || last.GameID != g.ID() {
		t.Fatalf("observer missed leave: %+v", last)
	}
}

func TestHandleRequiresMembership(t *testing.T) {
	g := newTestGame(t, Config{})
	out := g.Handle(9, &protocol.Packet{PayloadType: protocol.PayloadGameAction})
	if len(out) != 1 || out[0].Packet.PayloadType != protocol.PayloadError || out[0].Packet.ErrorCode != protocol.ErrorNotInGame {
		t.Fatalf("expected NOT_IN_GAME error, got %+v", out)
	}
}

func TestHandleRelaysMessages(t *testing.T) {
	g := newTestGame(t, Config{})
	join(t, g, 1, "alice", 0)
	join(t, g, 2, "bob", 0)
	out := g.Handle(1, &protocol.Packet{PayloadType: protocol.PayloadGameMessage, Message: "hi"})
	if len(out) != 2 {
		t.Fatalf("expected relay to both players, got %d", len(out))
	}
	for _, o := range out {
		if o.Packet.Message != "hi" || o.Packet.PlayerID != 1 {
			t.Fatalf("unexpected relay %+v", o.Packet)
		}
	}
}

func TestBlockedMoveMarksOnlyOwnCell(t *testing.T) {
	w := floorWorld(10, 10)
	w.Set(geom.Coordinate{X: 5, Y: 4}, []*world.Entity{world.New(world.KindWall)})
	g := newTestGame(t, Config{World: w})
	join(t, g, 1, "alice", 0)
	start := geom.Coordinate{X: 4, Y: 4}
	player := place(t, g, 1, start, world.Right)
	g.dirty.Reset()

	g.move(1, start, player, world.Right)

	at, _, _ := g.world.FindPlayer(1)
	if at != start {
		t.Fatalf("player moved through a wall to %v", at)
	}
	if len(g.dirty.Coords) != 1 || !g.dirty.Coords.Has(start) {
		t.Fatalf("expected only the player's cell dirty, got %v", g.dirty.Coords.Sorted())
	}
}

func TestMoveStabsBlockingPlayer(t *testing.T) {
	g := newTestGame(t, Config{})
	join(t, g, 1, "alice", 0)
	join(t, g, 2, "bob", 0)
	place(t, g, 1, geom.Coordinate{X: 2, Y: 2}, world.Right)
	victim := place(t, g, 2, geom.Coordinate{X: 3, Y: 2}, world.Left)

	g.Action(1, world.ActionMove, int(world.Right))

	if at, _, _ := g.world.FindPlayer(1); at != (geom.Coordinate{X: 2, Y: 2}) {
		t.Fatalf("attacker should stay put, at %v", at)
	}
	want := g.tuning.StartHP - g.tuning.StabDamage
	if victim.Attr.HP != want {
		t.Fatalf("expected victim hp %d, got %d", want, victim.Attr.HP)
	}
}

func TestBulletExplodesAgainstWall(t *testing.T) {
	w := floorWorld(10, 10)
	wall := geom.Coordinate{X: 4, Y: 5}
	w.Set(wall, []*world.Entity{world.New(world.KindWall)})
	g := newTestGame(t, Config{World: w})
	join(t, g, 1, "alice", 0)
	shooter := place(t, g, 1, geom.Coordinate{X: 1, Y: 5}, world.Right)
	shooter.Attr.SetAmmo(9)

	g.Action(1, world.ActionFire, 3)
	if shooter.Attr.Ammo != 0 {
		t.Fatalf("expected ammo 0 after a power 3 shot, got %d", shooter.Attr.Ammo)
	}
	g.Tick(0.46)

	if len(g.world.FindObjs(world.KindBullet)) != 0 {
		t.Fatalf("bullet should be spent")
	}
	for _, c := range geom.Neighbourhood(wall, 2) {
		found := false
		for _, e := range g.world.At(c) {
			if e.Kind == world.KindExplosion && e.Sim.Damage == 9 {
				found = true
			}
		}
		if !found {
			t.Fatalf("missing damage 9 explosion at %v", c)
		}
	}
	if g.world.HasTrait(wall, world.Solid) {
		t.Fatalf("wall should have been blown up")
	}
	if at, _, ok := g.world.FindPlayer(1); !ok || at != (geom.Coordinate{X: 1, Y: 5}) {
		t.Fatalf("shooter outside the blast should survive in place")
	}

	g.Tick(0.1)
	if len(g.world.FindObjs(world.KindExplosion)) != 0 {
		t.Fatalf("explosions should burn out after their lifetime")
	}
}

func TestFireWithoutAmmoIsNoop(t *testing.T) {
	g := newTestGame(t, Config{})
	join(t, g, 1, "alice", 0)
	shooter := place(t, g, 1, geom.Coordinate{X: 3, Y: 3}, world.Up)
	shooter.Attr.SetAmmo(0)

	out := g.Action(1, world.ActionFire, 1)
	if len(out) != 0 {
		t.Fatalf("expected no packets, got %d", len(out))
	}
	if len(g.world.FindObjs(world.KindBullet)) != 0 {
		t.Fatalf("no bullet should be created")
	}

	shooter.Attr.SetAmmo(5)
	g.Action(1, world.ActionFire, 9)
	bullets := g.world.FindObjs(world.KindBullet)
	if len(bullets) != 1 || bullets[0].Entity.Attr.Size != 2 {
		t.Fatalf("expected a power 2 bullet, got %+v", bullets)
	}
	if shooter.Attr.Ammo != 1 {
		t.Fatalf("expected ammo 1, got %d", shooter.Attr.Ammo)
	}
}

func TestOtherPlayersSeeOnlyTheVacatedCell(t *testing.T) {
	g := newTestGame(t, Config{Vision: "square"})
	join(t, g, 1, "alice", 0)
	join(t, g, 2, "bob", 0)
	place(t, g, 2, geom.Coordinate{X: 0, Y: 0}, world.Down)
	place(t, g, 1, geom.Coordinate{X: 3, Y: 0}, world.Right)

	out := g.Action(1, world.ActionMove, int(world.Right))

	changed := visionCoords(packetsFor(out, 2, protocol.PayloadVisionUpdate))
	old := geom.Coordinate{X: 3, Y: 0}
	if len(changed) != 1 || !changed.Has(old) {
		t.Fatalf("expected only %v for the observer, got %v", old, changed.Sorted())
	}
	known, _ := g.Known(2)
	list, _ := known.At(old)
	for _, e := range list {
		if e.Kind == world.KindPlayer {
			t.Fatalf("observer still remembers the player at the old cell")
		}
	}
}

func TestResyncSendsClearAllWithWholeView(t *testing.T) {
	g := newTestGame(t, Config{Vision: "square"})
	join(t, g, 1, "alice", 0)
	at := geom.Coordinate{X: 5, Y: 5}
	place(t, g, 1, at, world.Up)

	g.Resync(1)
	packets := packetsFor(g.Flush(), 1, protocol.PayloadVisionUpdate)
	if len(packets) == 0 || !packets[0].ClearAll {
		t.Fatalf("expected clear-all on the first packet")
	}
	for _, p := range packets[1:] {
		if p.ClearAll {
			t.Fatalf("clear-all repeated on a later packet")
		}
	}
	want := make(geom.Set)
	for _, c := range geom.Neighbourhood(at, 3) {
		want.Add(c)
	}
	got := visionCoords(packets)
	if len(got) != len(want) {
		t.Fatalf("expected %d cells, got %d", len(want), len(got))
	}
	for c := range want {
		if !got.Has(c) {
			t.Fatalf("missing %v in resync", c)
		}
	}
}

func TestKillScoringAndRespawn(t *testing.T) {
	obs := &recordingObserver{}
	g := newTestGame(t, Config{Observer: obs})
	join(t, g, 1, "alice", 0)
	join(t, g, 2, "bob", 0)

	g.KillPlayer(2, 1, protocol.DamageExplosion)
	g.KillPlayer(1, protocol.OriginEnvironment, protocol.DamageLava)
	g.KillPlayer(2, 2, protocol.DamageExplosion)

	scores := g.Scores()
	if scores[1] != 0 || scores[2] != -1 {
		t.Fatalf("unexpected scores %v", scores)
	}
	if _, _, ok := g.world.FindPlayer(2); !ok {
		t.Fatalf("victim should respawn")
	}
	killed := 0
	for _, e := range obs.events {
		if e.Status == protocol.StatusKilled {
			killed++
		}
	}
	if killed != 1 {
		t.Fatalf("expected one KILLED event, got %d", killed)
	}
	out := g.Flush()
	if len(packetsFor(out, 1, protocol.PayloadKeyValue)) != 1 {
		t.Fatalf("expected one score packet for player 1")
	}
}

func TestLavaDamagesEveryWholeInterval(t *testing.T) {
	w := floorWorld(5, 5)
	pool := geom.Coordinate{X: 2, Y: 2}
	w.Set(pool, []*world.Entity{world.New(world.KindLava)})
	g := newTestGame(t, Config{World: w})
	join(t, g, 1, "alice", 0)
	player := place(t, g, 1, pool, world.Up)

	g.Tick(0.6)
	if player.Attr.HP != g.tuning.StartHP {
		t.Fatalf("no damage expected before a full interval")
	}
	g.Tick(1.5)
	want := g.tuning.StartHP - 2*g.tuning.Lava.Damage
	if player.Attr.HP != want {
		t.Fatalf("expected hp %d after catch-up, got %d", want, player.Attr.HP)
	}
}

func TestSlimeSpreadsThenDriesUp(t *testing.T) {
	w := floorWorld(10, 1)
	w.Set(geom.Coordinate{X: 9, Y: 0}, []*world.Entity{world.New(world.KindWall)})
	g := newTestGame(t, Config{World: w})
	join(t, g, 1, "alice", 0)
	shooter := place(t, g, 1, geom.Coordinate{X: 0, Y: 0}, world.Right)
	shooter.Attr.SetAmmo(3)

	g.Action(1, world.ActionFire, 10)
	if shooter.Attr.Ammo != 0 {
		t.Fatalf("small slime should cost 3 ammo")
	}
	g.Tick(1.0)
	if len(g.world.FindObjs(world.KindSlime)) == 0 {
		t.Fatalf("slime bullet should have splashed")
	}
	for i := 0; i < 40; i++ {
		g.Tick(0.25)
	}
	if n := len(g.world.FindObjs(world.KindSlime)); n != 0 {
		t.Fatalf("slime should dry up, %d left", n)
	}
	for _, c := range g.world.Coordinates() {
		if len(g.world.At(c)) == 0 {
			t.Fatalf("cell %v left without floor", c)
		}
	}
}

func TestFFASpawnScattersMines(t *testing.T) {
	g := newTestGame(t, Config{Mode: ModeFFA})
	join(t, g, 1, "alice", 0)
	mines := g.world.FindObjs(world.KindMine)
	if len(mines) != 2 {
		t.Fatalf("expected 2 mines, got %d", len(mines))
	}
	_, player, _ := g.world.FindPlayer(1)
	if player.Attr.Ammo != g.tuning.StartAmmo+g.tuning.FFAAmmoBonus {
		t.Fatalf("expected ammo bonus, got %d", player.Attr.Ammo)
	}
}

func TestTeamVisionIsShared(t *testing.T) {
	g := newTestGame(t, Config{Mode: ModeTeam, Vision: "square", World: floorWorld(20, 1)})
	join(t, g, 1, "alice", 1)
	join(t, g, 2, "bob", 1)
	join(t, g, 3, "carol", 2)
	place(t, g, 1, geom.Coordinate{X: 0, Y: 0}, world.Right)
	place(t, g, 2, geom.Coordinate{X: 10, Y: 0}, world.Right)
	place(t, g, 3, geom.Coordinate{X: 19, Y: 0}, world.Left)

	mate, _ := g.Known(1)
	if _, ok := mate.At(geom.Coordinate{X: 10, Y: 0}); !ok {
		t.Fatalf("teammate's surroundings should be known")
	}
	rival, _ := g.Known(3)
	if _, ok := rival.At(geom.Coordinate{X: 0, Y: 0}); ok {
		t.Fatalf("other team must not share vision")
	}
}

func TestSnapshotRestore(t *testing.T) {
	g := newTestGame(t, Config{Name: "saved", Options: map[string]string{OptionAlwaysDirtyPlayers: ""}})
	join(t, g, 1, "alice", 3)
	g.KillPlayer(1, protocol.OriginEnvironment, protocol.DamageLava)
	g.Flush()
	snap, err := g.Snapshot()
	if err != nil {
		t.Fatalf("snapshot: %v", err)
	}
	want := g.rng.Uint64()

	restored, err := Restore(snap, Config{IDs: ids.New()})
	if err != nil {
		t.Fatalf("restore: %v", err)
	}
	if restored.Name() != "saved" || !restored.HasPlayer(1) || restored.Scores()[1] != -1 {
		t.Fatalf("roster or scores lost")
	}
	if _, ok := restored.Option(OptionAlwaysDirtyPlayers); !ok {
		t.Fatalf("options lost")
	}
	if got := restored.rng.Uint64(); got != want {
		t.Fatalf("rng stream diverged: %d != %d", got, want)
	}
	if _, player, ok := restored.world.FindPlayer(1); !ok || player.Attr.Name != "alice" {
		t.Fatalf("player entity lost")
	}
	packets := packetsFor(restored.Flush(), 1, protocol.PayloadVisionUpdate)
	if len(packets) == 0 || !packets[0].ClearAll {
		t.Fatalf("restored member should get a clear-all resend")
	}
}

func TestJoinStartsWithClearAll(t *testing.T) {
	g := newTestGame(t, Config{})
	for round := 0; round < 2; round++ {
		packets := packetsFor(join(t, g, 1, "alice", 0), 1, protocol.PayloadVisionUpdate)
		if len(packets) == 0 || !packets[0].ClearAll {
			t.Fatalf("round %d: first vision update after a join must clear the client", round)
		}
		for _, p := range packets[1:] {
			if p.ClearAll {
				t.Fatalf("round %d: only the first packet may clear", round)
			}
		}
		if _, ok := g.Leave(1); !ok {
			t.Fatalf("round %d: leave failed", round)
		}
	}
}

func TestBulletTravelsOneCellPerWholePeriod(t *testing.T) {
	cases := []struct {
		name  string
		ticks []float64
		want  int
	}{
		{"short of a period", []float64{0.2}, 0},
		{"exactly one period", []float64{0.25}, 1},
		{"exactly two periods", []float64{0.5}, 2},
		{"two ticks of one period", []float64{0.25, 0.25}, 2},
		{"remainder carries over", []float64{0.3, 0.25}, 2},
		{"three periods", []float64{0.75}, 3},
	}
	for _, tc := range cases {
		tuning := gameplay.Defaults()
		tuning.BulletSecondsPerCell[0] = 0.25
		g := newTestGame(t, Config{World: floorWorld(10, 1), Tuning: &tuning})
		join(t, g, 1, "alice", 0)
		shooter := place(t, g, 1, geom.Coordinate{X: 0, Y: 0}, world.Right)
		shooter.Attr.SetAmmo(1)

		g.Action(1, world.ActionFire, 1)
		for _, elapsed := range tc.ticks {
			g.Tick(elapsed)
		}
		bullets := g.world.FindObjs(world.KindBullet)
		if len(bullets) != 1 {
			t.Fatalf("%s: expected one bullet, got %d", tc.name, len(bullets))
		}
		if want := (geom.Coordinate{X: tc.want, Y: 0}); bullets[0].Coord != want {
			t.Fatalf("%s: bullet at %v, want %v", tc.name, bullets[0].Coord, want)
		}
	}
}

func TestMoveChangesCoordinate(t *testing.T) {
	start := geom.Coordinate{X: 4, Y: 4}
	cases := []struct {
		dir  world.Direction
		want geom.Coordinate
	}{
		{world.Up, geom.Coordinate{X: 4, Y: 3}},
		{world.Down, geom.Coordinate{X: 4, Y: 5}},
		{world.Left, geom.Coordinate{X: 3, Y: 4}},
		{world.Right, geom.Coordinate{X: 5, Y: 4}},
	}
	for _, tc := range cases {
		g := newTestGame(t, Config{})
		join(t, g, 1, "alice", 0)
		place(t, g, 1, start, world.Up)

		out := g.Action(1, world.ActionMove, int(tc.dir))

		at, _, ok := g.world.FindPlayer(1)
		if !ok || at != tc.want {
			t.Fatalf("move %v: player at %v, want %v", tc.dir, at, tc.want)
		}
		if !hasKind(g.world.At(start), world.KindEmpty) {
			t.Fatalf("move %v: vacated cell lost its floor", tc.dir)
		}
		if coords := visionCoords(packetsFor(out, 1, protocol.PayloadVisionUpdate)); !coords.Has(start) || !coords.Has(tc.want) {
			t.Fatalf("move %v: expected both cells resent, got %v", tc.dir, coords.Sorted())
		}
	}
}

func TestMineDisarmOrDetonate(t *testing.T) {
	cases := []struct {
		name     string
		facing   world.Direction
		mines    gameplay.MineTuning
		size     int
		disarmed bool
		ammo     int
	}{
		{"direct disarm", world.Right, gameplay.MineTuning{Direct: 1}, 1, true, 1},
		{"direct detonate", world.Right, gameplay.MineTuning{Backwards: 1, Side: 1}, 1, false, 0},
		{"backwards disarm big", world.Left, gameplay.MineTuning{Backwards: 1}, 2, true, 5},
		{"backwards detonate", world.Left, gameplay.MineTuning{Direct: 1, Side: 1}, 2, false, 0},
		{"side disarm", world.Up, gameplay.MineTuning{Side: 1}, 1, true, 1},
		{"side detonate", world.Down, gameplay.MineTuning{Direct: 1, Backwards: 1}, 1, false, 0},
	}
	for _, tc := range cases {
		tuning := gameplay.Defaults()
		tc.mines.SmallAmmo = 1
		tc.mines.BigAmmo = 5
		tuning.Mines = tc.mines
		g := newTestGame(t, Config{Tuning: &tuning})
		join(t, g, 1, "alice", 0)
		player := place(t, g, 1, geom.Coordinate{X: 4, Y: 4}, tc.facing)
		player.Attr.SetAmmo(0)
		target := geom.Coordinate{X: 5, Y: 4}
		mine := world.New(world.KindMine)
		mine.Attr.SetSize(tc.size)
		g.world.Append(target, mine)

		g.Action(1, world.ActionMove, int(world.Right))

		if at, _, _ := g.world.FindPlayer(1); at != target {
			t.Fatalf("%s: player should stand on the mine cell, at %v", tc.name, at)
		}
		if len(g.world.FindObjs(world.KindMine)) != 0 {
			t.Fatalf("%s: mine should be consumed", tc.name)
		}
		exploded := hasKind(g.world.At(target), world.KindExplosion)
		if exploded == tc.disarmed {
			t.Fatalf("%s: disarmed=%v but explosion=%v", tc.name, tc.disarmed, exploded)
		}
		if player.Attr.Ammo != tc.ammo {
			t.Fatalf("%s: expected ammo %d, got %d", tc.name, tc.ammo, player.Attr.Ammo)
		}
	}
}

func TestExplosionDamagesEachEntityOnce(t *testing.T) {
	cases := []struct {
		size  int
		ticks int
	}{
		{1, 1},
		{1, 4},
		{2, 4},
	}
	for _, tc := range cases {
		g := newTestGame(t, Config{})
		join(t, g, 1, "alice", 0)
		at := geom.Coordinate{X: 5, Y: 5}
		victim := place(t, g, 1, at, world.Up)

		g.MakeExplosion(at, tc.size, protocol.OriginEnvironment)
		for i := 0; i < tc.ticks; i++ {
			g.Tick(0.1)
		}
		want := g.tuning.StartHP - tc.size*tc.size
		if victim.Attr.HP != want {
			t.Fatalf("size %d after %d ticks: hp %d, want %d", tc.size, tc.ticks, victim.Attr.HP, want)
		}
		if !hasKind(g.world.At(at), world.KindExplosion) {
			t.Fatalf("size %d: explosion should still be burning", tc.size)
		}
	}
}

func TestAlwaysVisibleCellsJoinEveryView(t *testing.T) {
	g := newTestGame(t, Config{Vision: "square", World: floorWorld(20, 1)})
	join(t, g, 1, "alice", 0)
	join(t, g, 2, "bob", 0)
	place(t, g, 1, geom.Coordinate{X: 0, Y: 0}, world.Right)
	far := geom.Coordinate{X: 15, Y: 0}
	place(t, g, 2, far, world.Left)

	g.MakeExplosion(far, 1, protocol.OriginEnvironment)
	g.Flush()

	known, ok := g.Known(1)
	if !ok {
		t.Fatalf("alice has no known world")
	}
	cell, ok := known.At(far)
	if !ok || !hasKind(cell, world.KindExplosion) {
		t.Fatalf("explosion should be seen through the fog, got %v", cell)
	}
	if !hasKind(cell, world.KindPlayer) || !hasKind(cell, world.KindEmpty) {
		t.Fatalf("the whole exploding cell should be seen, got %v", cell)
	}
}

func hasKind(list []*world.Entity, kind world.Kind) bool {
	for _, e := range list {
		if e.Kind == kind {
			return true
		}
	}
	return false
}
