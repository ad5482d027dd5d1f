package game

import (
	"whiteshoe/server/internal/geom"
	"whiteshoe/server/internal/protocol"
	"whiteshoe/server/internal/world"
)

// suitableCells lists, row-major, the cells where nothing the mode considers
// blocking stands.
func (g *Game) suitableCells(m Mode) []geom.Coordinate {
	var out []geom.Coordinate
	for _, c := range g.world.Coordinates() {
		blocked := false
		for _, e := range g.world.At(c) {
			if m.SpawnBlocked(e.Kind) {
				blocked = true
				break
			}
		}
		if !blocked {
			out = append(out, c)
		}
	}
	return out
}

// SpawnPlayer places a fresh player entity on a random free cell, replacing a
// live one. It reports false when no cell is free.
func (g *Game) SpawnPlayer(playerID int) (geom.Coordinate, *world.Entity, bool) {
	name, team := DefaultPlayerName, 0
	if m, ok := g.members[playerID]; ok {
		name, team = m.name, m.team
	}
	if _, old, ok := g.RemovePlayer(playerID); ok {
		if old.Attr.Has(world.FieldName) {
			name = old.Attr.Name
		}
		if old.Attr.Has(world.FieldTeam) {
			team = old.Attr.Team
		}
	}

	//1.- Pick a free cell and facing from the game's generator.
	suitable := g.suitableCells(g.mode)
	if len(suitable) == 0 {
		return geom.Coordinate{}, nil, false
	}
	at := suitable[g.rng.IntN(len(suitable))]
	facing := world.Cardinals[g.rng.IntN(len(world.Cardinals))]

	//2.- Build the entity with starting stats.
	player := world.New(world.KindPlayer)
	player.Attr.SetPlayerID(playerID)
	player.Attr.SetDirection(facing)
	player.Attr.SetTeam(team)
	player.Attr.SetHP(g.tuning.StartHP)
	player.Attr.SetHPMax(g.tuning.StartHP)
	player.Attr.SetAmmo(g.tuning.StartAmmo)
	player.Attr.SetName(name)
	g.world.Append(at, player)
	g.markCell(at)
	g.dirty.MarkPlayer(playerID)

	//3.- Let the mode react and tell the player.
	g.mode.AfterSpawn(g, playerID, at)
	g.queue(Event{PlayerID: playerID, Status: protocol.StatusSpawned, Name: name})
	return at, player, true
}

// RemovePlayer takes a player's entity out of the world.
func (g *Game) RemovePlayer(playerID int) (geom.Coordinate, *world.Entity, bool) {
	at, entity, ok := g.world.FindPlayer(playerID)
	if !ok {
		return geom.Coordinate{}, nil, false
	}
	g.world.Remove(at, entity)
	g.ensureFloor(at)
	g.markCell(at)
	return at, entity, true
}

// KillPlayer scores the death, wipes the victim's knowledge and respawns them.
func (g *Game) KillPlayer(playerID, responsible int, damage protocol.DamageType) {
	if _, _, ok := g.world.FindPlayer(playerID); !ok {
		return
	}

	//1.- Self inflicted and environmental deaths cost the victim a point.
	if responsible == playerID || responsible < 0 {
		g.scores[playerID]--
	} else {
		g.scores[responsible]++
	}
	g.scoresDirty = true

	//2.- Death is a discontinuity for the victim's view.
	if k, ok := g.known[playerID]; ok {
		k.Reset()
	}
	g.queue(Event{PlayerID: playerID, Status: protocol.StatusDeath, Responsible: responsible, DamageType: damage})
	if responsible != playerID && g.HasPlayer(responsible) {
		g.queue(Event{PlayerID: responsible, Status: protocol.StatusKilled, Responsible: playerID, DamageType: damage})
	}

	//3.- SpawnPlayer removes the corpse and carries name and team over.
	g.SpawnPlayer(playerID)
}

// DamageObject applies damage to one entity in a cell.
func (g *Game) DamageObject(c geom.Coordinate, e *world.Entity, amount int, damage protocol.DamageType, responsible int) {
	hp := 0
	if e.Attr.Has(world.FieldHP) {
		hp = e.Attr.HP
	}
	hp -= amount
	e.Attr.SetHP(hp)
	g.markCell(c)

	isPlayer := e.Kind == world.KindPlayer
	switch {
	case hp <= 0 && isPlayer:
		g.KillPlayer(e.Attr.PlayerID, responsible, damage)
	case hp <= 0:
		g.world.Remove(c, e)
		if e.Kind == world.KindMine {
			g.MakeExplosion(c, e.Attr.Size, responsible)
		}
	case isPlayer:
		g.queue(Event{PlayerID: e.Attr.PlayerID, Status: protocol.StatusDamaged, Responsible: responsible, DamageType: damage})
	}
	g.ensureFloor(c)
}

// ensureFloor puts an Empty at the bottom of a cell left with only temporary
// entities.
func (g *Game) ensureFloor(c geom.Coordinate) {
	for _, e := range g.world.At(c) {
		if !e.Kind.Is(world.Temporary) {
			return
		}
	}
	g.world.Insert(c, world.New(world.KindEmpty))
	g.markCell(c)
}

// MakeExplosion fills the size-1 neighbourhood around c with explosions that
// deal size squared damage.
func (g *Game) MakeExplosion(c geom.Coordinate, size, responsible int) {
	if size < 1 {
		size = 1
	}
	for _, at := range geom.Neighbourhood(c, size-1) {
		if !g.world.Contains(at) {
			continue
		}
		boom := world.New(world.KindExplosion)
		boom.Sim.Damage = size * size
		boom.Sim.Responsible = responsible
		g.world.Append(at, boom)
		g.markCell(at)
	}
}
