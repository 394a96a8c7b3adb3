package sandbox

import (
	"math"
	"sync"

	"github.com/go-gl/mathgl/mgl64"

	"voxelhud.ai/internal/sim/host"
)

const (
	rayStep      = 0.05
	entityRadius = 0.4
	entityHeight = 1.8
)

// World is a sparse voxel grid with free-standing entities. Rays are marched in fixed steps,
// which is precise enough for a HUD that only cares about what lies under the crosshair.
type World struct {
	mu       sync.RWMutex
	blocks   map[[3]int]*Block
	entities []*Entity
	minY     int
	maxY     int
}

var _ host.World = (*World)(nil)

func NewWorld(minY, maxY int) *World {
	return &World{blocks: map[[3]int]*Block{}, minY: minY, maxY: maxY}
}

func (w *World) PlaceBlock(b *Block) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.blocks[b.Pos] = b
}

func (w *World) RemoveBlock(pos [3]int) {
	w.mu.Lock()
	defer w.mu.Unlock()
	delete(w.blocks, pos)
}

func (w *World) BlockAt(pos [3]int) *Block {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.blocks[pos]
}

func (w *World) Spawn(e *Entity) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.entities = append(w.entities, e)
}

func (w *World) Despawn(id string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	for i, e := range w.entities {
		if e.EntityID == id {
			e.Dead = true
			w.entities = append(w.entities[:i], w.entities[i+1:]...)
			return
		}
	}
}

// ViewDir converts (pitch, yaw) in degrees into a unit direction. Yaw 0 looks along +Z and
// positive pitch looks down.
func ViewDir(rot mgl64.Vec2) mgl64.Vec3 {
	pitch := mgl64.DegToRad(rot[0])
	yaw := mgl64.DegToRad(rot[1])
	return mgl64.Vec3{
		-math.Sin(yaw) * math.Cos(pitch),
		-math.Sin(pitch),
		math.Cos(yaw) * math.Cos(pitch),
	}
}

func eye(o host.Observer) mgl64.Vec3 {
	return o.Location().Add(mgl64.Vec3{0, EyeHeight, 0})
}

func (w *World) EntityFromView(o host.Observer, opts host.RayOptions) (host.Entity, error) {
	w.mu.RLock()
	defer w.mu.RUnlock()

	start, dir := eye(o), ViewDir(o.Rotation())
	for d := 0.0; d <= opts.MaxDistance; d += rayStep {
		p := start.Add(dir.Mul(d))
		if w.outside(p) {
			return nil, host.ErrOutOfBounds
		}
		if b := w.blocks[cell(p)]; b != nil && !b.IsLiquid && !b.Passable {
			return nil, nil
		}
		for _, e := range w.entities {
			if e.Dead || e.EntityID == o.ID() {
				continue
			}
			if inside(e.Pos, p) {
				return e, nil
			}
		}
	}
	return nil, nil
}

func (w *World) BlockFromView(o host.Observer, opts host.RayOptions) (host.Block, error) {
	w.mu.RLock()
	defer w.mu.RUnlock()

	start, dir := eye(o), ViewDir(o.Rotation())
	for d := 0.0; d <= opts.MaxDistance; d += rayStep {
		p := start.Add(dir.Mul(d))
		if w.outside(p) {
			return nil, host.ErrOutOfBounds
		}
		b := w.blocks[cell(p)]
		if b == nil {
			continue
		}
		if b.IsLiquid && !opts.IncludeLiquid {
			continue
		}
		if b.Passable && !opts.IncludePassable {
			continue
		}
		return b, nil
	}
	return nil, nil
}

func (w *World) outside(p mgl64.Vec3) bool {
	return p.Y() < float64(w.minY) || p.Y() >= float64(w.maxY+1)
}

func cell(p mgl64.Vec3) [3]int {
	return [3]int{int(math.Floor(p.X())), int(math.Floor(p.Y())), int(math.Floor(p.Z()))}
}

func inside(feet, p mgl64.Vec3) bool {
	dx, dz := p.X()-feet.X(), p.Z()-feet.Z()
	if dx*dx+dz*dz > entityRadius*entityRadius {
		return false
	}
	return p.Y() >= feet.Y() && p.Y() <= feet.Y()+entityHeight
}
