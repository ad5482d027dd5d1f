package game

import (
	"math"

	"whiteshoe/server/internal/geom"
	"whiteshoe/server/internal/protocol"
	"whiteshoe/server/internal/world"
)

// Tick advances every timed effect by elapsed seconds and flushes.
func (g *Game) Tick(elapsed float64) []Outbound {
	if elapsed < 0 {
		elapsed = 0
	}
	g.tickBullets(elapsed)
	g.tickExplosions(elapsed)
	g.tickSlimeBullets(elapsed)
	g.tickSlimes(elapsed)
	g.tickLava(elapsed)
	return g.Flush()
}

// travel moves a projectile one cell per whole period elapsed. It returns the cell
// the projectile last occupied, the cell it struck, and whether it hit
// something solid. A projectile leaving the world simply vanishes.
func (g *Game) travel(c geom.Coordinate, e *world.Entity, period, elapsed float64) (last, hit geom.Coordinate, struck bool) {
	if period <= 0 {
		return c, c, false
	}
	if !e.Sim.Armed {
		e.Sim.Armed = true
		e.Sim.Timer = period
	}
	e.Sim.Timer -= elapsed
	for e.Sim.Timer <= 0 {
		e.Sim.Timer += period
		g.world.Remove(c, e)
		g.markCell(c)
		next := c.Add(e.Attr.Direction.Delta())
		if !g.world.Contains(next) {
			return c, next, false
		}
		if g.world.HasTrait(next, world.Solid) {
			return c, next, true
		}
		g.world.Append(next, e)
		g.markCell(next)
		c = next
	}
	return c, c, false
}

func (g *Game) tickBullets(elapsed float64) {
	for _, l := range g.world.FindObjs(world.KindBullet) {
		if !g.world.Holds(l.Coord, l.Entity) {
			continue
		}
		size := l.Entity.Attr.Size
		period, ok := g.tuning.BulletPeriod(size)
		if !ok {
			g.world.Remove(l.Coord, l.Entity)
			g.markCell(l.Coord)
			continue
		}
		if _, hit, struck := g.travel(l.Coord, l.Entity, period, elapsed); struck {
			g.MakeExplosion(hit, size, l.Entity.Attr.Owner)
		}
	}
}

func (g *Game) tickExplosions(elapsed float64) {
	for _, l := range g.world.FindObjs(world.KindExplosion) {
		boom, c := l.Entity, l.Coord
		if !g.world.Holds(c, boom) {
			continue
		}
		if !boom.Sim.Armed {
			boom.Sim.Armed = true
			boom.Sim.Timer = g.tuning.ExplosionLife
		}
		if boom.Sim.Damaged == nil {
			boom.Sim.Damaged = make(map[*world.Entity]struct{})
		}
		//1.- Hurt everything blowable exactly once over the explosion's life.
		for _, victim := range append([]*world.Entity(nil), g.world.At(c)...) {
			if !victim.Kind.Is(world.BlowableUp) || !g.world.Holds(c, victim) {
				continue
			}
			if _, done := boom.Sim.Damaged[victim]; done {
				continue
			}
			boom.Sim.Damaged[victim] = struct{}{}
			g.DamageObject(c, victim, boom.Sim.Damage, protocol.DamageExplosion, boom.Sim.Responsible)
		}
		//2.- Burn out.
		boom.Sim.Timer -= elapsed
		if boom.Sim.Timer < 0 {
			g.world.Remove(c, boom)
			g.ensureFloor(c)
			g.markCell(c)
		}
	}
}

func (g *Game) tickSlimeBullets(elapsed float64) {
	for _, l := range g.world.FindObjs(world.KindSlimeBullet) {
		if !g.world.Holds(l.Coord, l.Entity) {
			continue
		}
		size := l.Entity.Attr.Size
		stats, ok := g.tuning.SlimeFor(size)
		if !ok {
			g.world.Remove(l.Coord, l.Entity)
			g.markCell(l.Coord)
			continue
		}
		last, _, struck := g.travel(l.Coord, l.Entity, stats.SecondsPerCell, elapsed)
		if !struck {
			continue
		}
		//1.- A slime grows in front of whatever stopped the shot.
		slime := world.New(world.KindSlime)
		slime.Attr.SetOwner(l.Entity.Attr.Owner)
		slime.Attr.SetSize(size)
		slime.Sim.Spread = geom.NewSet(last)
		slime.Sim.Damaged = make(map[*world.Entity]struct{})
		g.world.Append(last, slime)
		g.markCell(last)
	}
}

func (g *Game) tickSlimes(elapsed float64) {
	spreadTime := g.tuning.Slime.SpreadTime
	for _, l := range g.world.FindObjs(world.KindSlime) {
		slime, c := l.Entity, l.Coord
		if !g.world.Holds(c, slime) {
			continue
		}
		if slime.Sim.Spread == nil {
			slime.Sim.Spread = geom.NewSet(c)
		}
		if slime.Sim.Damaged == nil {
			slime.Sim.Damaged = make(map[*world.Entity]struct{})
		}

		//1.- Coat whatever shares the cell, once per victim across the colony.
		for _, victim := range append([]*world.Entity(nil), g.world.At(c)...) {
			if victim == slime || !victim.Kind.Is(world.Slimeable) || !g.world.Holds(c, victim) {
				continue
			}
			if _, done := slime.Sim.Damaged[victim]; done {
				continue
			}
			slime.Sim.Damaged[victim] = struct{}{}
			g.DamageObject(c, victim, g.tuning.Slime.Damage, protocol.DamageSlime, slime.Attr.Owner)
		}

		//2.- A spent slime counts down and dries up.
		if slime.Sim.Dying {
			slime.Sim.DeathTimer -= elapsed
			if slime.Sim.DeathTimer < 0 {
				g.world.Remove(c, slime)
				g.ensureFloor(c)
				g.markCell(c)
			}
			continue
		}

		//3.- Spread once per interval until the colony's budget is used.
		if !slime.Sim.Armed {
			slime.Sim.Armed = true
			slime.Sim.SpreadTimer = spreadTime
		}
		stats, _ := g.tuning.SlimeFor(slime.Attr.Size)
		slime.Sim.SpreadTimer -= elapsed
		for spreadTime > 0 && slime.Sim.SpreadTimer <= 0 {
			slime.Sim.SpreadTimer += spreadTime
			if stats.Spread-len(slime.Sim.Spread) <= 0 {
				slime.Sim.Dying = true
				slime.Sim.DeathTimer = spreadTime
				break
			}
			var candidates []geom.Coordinate
			for _, n := range geom.CardinalNeighbourhood(c) {
				if g.world.Contains(n) && !slime.Sim.Spread.Has(n) && !g.world.HasTrait(n, world.Airtight) {
					candidates = append(candidates, n)
				}
			}
			if len(candidates) == 0 {
				continue
			}
			geom.SortRowMajor(candidates)
			to := candidates[g.rng.IntN(len(candidates))]
			slime.Sim.Spread.Add(to)
			child := world.New(world.KindSlime)
			child.Attr.SetOwner(slime.Attr.Owner)
			child.Attr.SetSize(slime.Attr.Size)
			child.Sim.Spread = slime.Sim.Spread
			child.Sim.Damaged = slime.Sim.Damaged
			g.world.Append(to, child)
			g.markCell(to)
		}
	}
}

func (g *Game) tickLava(elapsed float64) {
	interval := g.tuning.Lava.Interval
	for _, l := range g.world.FindObjs(world.KindLava) {
		lava, c := l.Entity, l.Coord
		//1.- Accumulate and pay out every whole interval, keeping the remainder.
		lava.Sim.Timer += elapsed
		times := math.Floor(lava.Sim.Timer / interval)
		if times < 1 {
			continue
		}
		lava.Sim.Timer -= times * interval
		damage := g.tuning.Lava.Damage * int(times)
		for _, victim := range append([]*world.Entity(nil), g.world.At(c)...) {
			if victim == lava || !g.world.Holds(c, victim) {
				continue
			}
			g.DamageObject(c, victim, damage, protocol.DamageLava, protocol.OriginEnvironment)
		}
	}
}
