package vision

import (
	"math"

	"whiteshoe/server/internal/geom"
	"whiteshoe/server/internal/world"
)

const (
	raysMaxRadius = 60
	// raysYScale stretches the radius along the axis perpendicular to the
	// facing to compensate for terminal cells being taller than wide.
	raysYScale = 3
	// raysApproximation bounds the denominator used to bucket ray slopes.
	raysApproximation = 3
)

// transform is an integer affine map between world and camera space.
type transform struct {
	m00, m01, m10, m11 int
	tx, ty             int
}

func identity() transform { return transform{m00: 1, m11: 1} }

func translate(x, y int) transform {
	t := identity()
	t.tx, t.ty = x, y
	return t
}

func linear(m00, m01, m10, m11 int) transform {
	return transform{m00: m00, m01: m01, m10: m10, m11: m11}
}

func (t transform) apply(x, y int) geom.Coordinate {
	return geom.Coordinate{X: x*t.m00 + y*t.m01 + t.tx, Y: x*t.m10 + y*t.m11 + t.ty}
}

func (t transform) mul(o transform) transform {
	return transform{
		m00: t.m00*o.m00 + t.m01*o.m10,
		m01: t.m00*o.m01 + t.m01*o.m11,
		m10: t.m10*o.m00 + t.m11*o.m10,
		m11: t.m10*o.m01 + t.m11*o.m11,
		tx:  t.tx + o.tx*t.m00 + o.ty*t.m01,
		ty:  t.ty + o.tx*t.m10 + o.ty*t.m11,
	}
}

// inverse assumes a unit determinant, which holds for every facing rotation.
func (t transform) inverse() transform {
	det := t.m00*t.m11 - t.m01*t.m10
	return transform{
		m00: t.m11 / det,
		m01: -t.m01 / det,
		m10: -t.m10 / det,
		m11: t.m00 / det,
		tx:  (t.ty*t.m01 - t.tx*t.m11) / det,
		ty:  -(t.ty*t.m00 - t.tx*t.m10) / det,
	}
}

var facingRotation = map[world.Direction]transform{
	world.Right: linear(1, 0, 0, 1),
	world.Left:  linear(-1, 0, 0, -1),
	world.Up:    linear(0, -1, 1, 0),
	world.Down:  linear(0, 1, -1, 0),
}

type point struct{ x, y int }

// fraction is a reduced ray slope; vertical marks the y == 0 axis.
type fraction struct {
	num, den int
	vertical bool
}

// pointsByDistance enumerates camera-space points roughly ordered by distance
// from the viewer, facing along +x.
func pointsByDistance(maxRadius int) []point {
	half := maxRadius / 2
	out := []point{{0, 0}}
	for n := 1; n <= maxRadius; n++ {
		out = append(out, point{0, n}, point{n, 0}, point{0, -n})
		for i := 1; i < half; i++ {
			out = append(out, point{i, n}, point{n, i}, point{n, -i}, point{i, -n})
		}
		out = append(out, point{half, n}, point{half, -n})
	}
	return out
}

// Rays sweeps points in a facing-relative frame, hiding any point whose
// Bresenham line from the viewer crosses an opaque cell, then reveals wall
// corners bordering two or more visible cells.
func Rays(w *world.World, origin geom.Coordinate, facing world.Direction) geom.Set {
	rotation, ok := facingRotation[facing]
	if !ok {
		rotation = facingRotation[world.Right]
	}
	worldToCamera := rotation.mul(translate(-origin.X, -origin.Y))
	cameraToWorld := worldToCamera.inverse()

	impeded := make(map[point]bool)
	isImpeded := func(p point) bool {
		if v, ok := impeded[p]; ok {
			return v
		}
		v := w.HasTrait(cameraToWorld.apply(p.x, p.y), world.Opaque)
		impeded[p] = v
		return v
	}
	neighbours := func(p point) [4]point {
		return [4]point{{p.x + 1, p.y}, {p.x - 1, p.y}, {p.x, p.y + 1}, {p.x, p.y - 1}}
	}

	outputs := make(geom.Set)
	for _, x := range []int{0, -1} {
		for _, y := range []int{-1, 0, 1} {
			outputs.Add(cameraToWorld.apply(x, y))
		}
	}

	xScale, yScale := 1, 1
	if facing == world.Up || facing == world.Down {
		xScale = raysYScale
	} else {
		yScale = raysYScale
	}

	blocked := make(map[fraction]int)
	var corners []point
	for _, p := range pointsByDistance(raysMaxRadius) {
		radiusSquared := xScale*p.x*p.x + yScale*p.y*p.y
		if p.y == 0 && p.x > raysMaxRadius {
			continue
		} else if p.y != 0 {
			//1.- Narrow the field of view away from the facing axis.
			local := math.Abs(math.Pow(float64(p.x), 0.3) / float64(p.y))
			local = local / (1 + local) * raysMaxRadius
			if float64(radiusSquared) > local*local {
				continue
			}
		}
		slope := fraction{vertical: true}
		if p.y != 0 {
			slope = limitDenominator(p.x, p.y, raysApproximation)
		}
		if limit, ok := blocked[slope]; ok && radiusSquared > limit {
			continue
		}
		//2.- Trace the ray, ignoring both endpoints.
		visible := true
		line := geom.Line(geom.Coordinate{}, geom.Coordinate{X: p.x, Y: p.y})
		for _, c := range line {
			q := point{c.X, c.Y}
			if q == (point{}) || q == p {
				continue
			}
			if isImpeded(q) {
				visible = false
				break
			}
		}
		switch {
		case visible:
			outputs.Add(cameraToWorld.apply(p.x, p.y))
		case isImpeded(p) && p.y != 0:
			count := 0
			for _, n := range neighbours(p) {
				if isImpeded(n) {
					count++
				}
			}
			if count >= 1 && count <= 3 {
				corners = append(corners, p)
			}
		default:
			blocked[slope] = radiusSquared
		}
	}

	//3.- Reveal corners that border the visible area.
	for _, p := range corners {
		count := 0
		for _, n := range neighbours(p) {
			if outputs.Has(cameraToWorld.apply(n.x, n.y)) {
				count++
			}
		}
		if count >= 2 {
			outputs.Add(cameraToWorld.apply(p.x, p.y))
		}
	}

	result := make(geom.Set, len(outputs))
	for c := range outputs {
		if w.Contains(c) {
			result.Add(c)
		}
	}
	return result
}

// limitDenominator returns the closest fraction to num/den whose denominator
// does not exceed max, using the continued fraction expansion.
func limitDenominator(num, den, max int) fraction {
	if den < 0 {
		num, den = -num, -den
	}
	if g := gcd(absInt(num), den); g > 1 {
		num, den = num/g, den/g
	}
	if den <= max {
		return fraction{num: num, den: den}
	}
	p0, q0, p1, q1 := 0, 1, 1, 0
	n, d := num, den
	for {
		a := floorDiv(n, d)
		q2 := q0 + a*q1
		if q2 > max {
			break
		}
		p0, q0, p1, q1 = p1, q1, p0+a*p1, q2
		n, d = d, n-a*d
	}
	k := (max - q0) / q1
	lower := fraction{num: p0 + k*p1, den: q0 + k*q1}
	upper := fraction{num: p1, den: q1}
	if absInt(upper.num*den-num*upper.den)*lower.den <= absInt(lower.num*den-num*lower.den)*upper.den {
		return reduce(upper)
	}
	return reduce(lower)
}

func reduce(f fraction) fraction {
	if f.den < 0 {
		f.num, f.den = -f.num, -f.den
	}
	if g := gcd(absInt(f.num), f.den); g > 1 {
		f.num, f.den = f.num/g, f.den/g
	}
	return f
}

func floorDiv(a, b int) int {
	q := a / b
	if (a%b != 0) && ((a < 0) != (b < 0)) {
		q--
	}
	return q
}

func gcd(a, b int) int {
	for b != 0 {
		a, b = b, a%b
	}
	if a == 0 {
		return 1
	}
	return a
}

func absInt(v int) int {
	if v < 0 {
		return -v
	}
	return v
}
