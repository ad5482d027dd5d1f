package game

import (
	"whiteshoe/server/internal/gameplay"
	"whiteshoe/server/internal/geom"
	"whiteshoe/server/internal/protocol"
	"whiteshoe/server/internal/world"
)

// Action applies a player command and flushes the result. Commands from
// players who are not spawned are ignored.
func (g *Game) Action(playerID int, action world.Action, argument int) []Outbound {
	at, player, ok := g.world.FindPlayer(playerID)
	if ok {
		switch action {
		case world.ActionLook:
			g.look(playerID, at, player, world.Direction(argument))
		case world.ActionMove:
			g.move(playerID, at, player, world.Direction(argument))
		case world.ActionFire:
			g.fire(playerID, at, player, argument)
		}
	}
	return g.Flush()
}

func (g *Game) look(playerID int, at geom.Coordinate, player *world.Entity, facing world.Direction) {
	if !facing.Cardinal() {
		return
	}
	player.Attr.SetDirection(facing)
	g.markCell(at)
	g.dirty.MarkPlayer(playerID)
}

func (g *Game) move(playerID int, at geom.Coordinate, player *world.Entity, dir world.Direction) {
	if !dir.Valid() {
		return
	}
	target := at.Add(dir.Delta())

	//1.- A blocked move leaves the player on top of their own cell.
	if !g.world.Contains(target) || g.world.HasTrait(target, world.Solid) {
		g.world.Remove(at, player)
		g.world.Append(at, player)
		g.markCell(at)
		//2.- Bumping into something stabbable is a melee attack.
		for _, victim := range append([]*world.Entity(nil), g.world.At(target)...) {
			if victim.Kind.Is(world.CanStab) && g.world.Holds(target, victim) {
				g.DamageObject(target, victim, g.tuning.StabDamage, protocol.DamageStab, playerID)
			}
		}
		return
	}

	//3.- Step into the target and trigger whatever lies there.
	g.world.Remove(at, player)
	g.ensureFloor(at)
	g.world.Append(target, player)
	g.markCell(at)
	g.markCell(target)
	g.dirty.MarkPlayer(playerID)
	g.moveInto(playerID, player, dir, target)
}

// moveInto resolves mines under the player's new cell. The chance of a safe
// disarm depends on how the move relates to the player's facing.
func (g *Game) moveInto(playerID int, player *world.Entity, dir world.Direction, at geom.Coordinate) {
	facing := player.Attr.Direction
	for _, e := range append([]*world.Entity(nil), g.world.At(at)...) {
		if e == player || e.Kind != world.KindMine {
			continue
		}
		chance := g.tuning.Mines.Side
		switch {
		case dir == facing:
			chance = g.tuning.Mines.Direct
		case dir.Delta().Reverse() == facing.Delta():
			chance = g.tuning.Mines.Backwards
		}
		size := e.Attr.Size
		g.world.Remove(at, e)
		g.markCell(at)
		if chance > g.rng.Float64() {
			ammo := 0
			if player.Attr.Has(world.FieldAmmo) {
				ammo = player.Attr.Ammo
			}
			player.Attr.SetAmmo(ammo + g.tuning.DisarmAmmo(size))
			continue
		}
		g.MakeExplosion(at, size, playerID)
	}
}

// fire launches a bullet of the requested power or a slime. Anything the
// player cannot afford is a silent no-op.
func (g *Game) fire(playerID int, at geom.Coordinate, player *world.Entity, argument int) {
	ammo := 0
	if player.Attr.Has(world.FieldAmmo) {
		ammo = player.Attr.Ammo
	}

	var projectile *world.Entity
	switch argument {
	case gameplay.SmallSlime, gameplay.BigSlime:
		size := argument - gameplay.SmallSlime + 1
		slime, ok := g.tuning.SlimeFor(size)
		if !ok || ammo < slime.Cost {
			return
		}
		player.Attr.SetAmmo(ammo - slime.Cost)
		projectile = world.New(world.KindSlimeBullet)
		projectile.Attr.SetSize(size)
	default:
		//1.- Weaken the shot until the player can pay power squared.
		power := argument
		if power > g.tuning.MaxPower() {
			power = g.tuning.MaxPower()
		}
		for power > 0 && power*power > ammo {
			power--
		}
		if power <= 0 {
			return
		}
		player.Attr.SetAmmo(ammo - power*power)
		projectile = world.New(world.KindBullet)
		projectile.Attr.SetSize(power)
	}
	projectile.Attr.SetOwner(playerID)
	projectile.Attr.SetDirection(player.Attr.Direction)
	g.world.Append(at, projectile)
	g.markCell(at)
}
