package sandbox

import (
	"fmt"
	"sort"

	"github.com/go-gl/mathgl/mgl64"

	"voxelhud.ai/internal/sim/host"
)

// Hooks receive the engine events a script produces.
type Hooks struct {
	Interact func(o *Observer, b host.Block)
	Leave    func(o *Observer)
}

// Runner replays a scenario's steps against its built world.
type Runner struct {
	World     *World
	Observers map[string]*Observer
	hooks     Hooks
	steps     []Step
	next      int
}

func NewRunner(w *World, obs []*Observer, steps []Step, hooks Hooks) *Runner {
	byName := make(map[string]*Observer, len(obs))
	for _, o := range obs {
		byName[o.Nick] = o
	}
	steps = append([]Step(nil), steps...)
	sort.SliceStable(steps, func(i, j int) bool { return steps[i].Tick < steps[j].Tick })
	return &Runner{World: w, Observers: byName, hooks: hooks, steps: steps}
}

// Apply runs every step due at or before tick.
func (r *Runner) Apply(tick uint64) error {
	for r.next < len(r.steps) && r.steps[r.next].Tick <= tick {
		st := r.steps[r.next]
		r.next++
		if err := r.apply(st); err != nil {
			return fmt.Errorf("step at tick %d: %w", st.Tick, err)
		}
	}
	return nil
}

// Done reports whether every step ran.
func (r *Runner) Done() bool { return r.next >= len(r.steps) }

// LastTick is the tick of the final step.
func (r *Runner) LastTick() uint64 {
	if len(r.steps) == 0 {
		return 0
	}
	return r.steps[len(r.steps)-1].Tick
}

func (r *Runner) apply(st Step) error {
	o, ok := r.Observers[st.Observer]
	if !ok {
		return fmt.Errorf("unknown observer %q", st.Observer)
	}
	if st.Pos != nil {
		o.Pos = mgl64.Vec3(*st.Pos)
	}
	if st.Rot != nil {
		o.Rot = mgl64.Vec2(*st.Rot)
	}
	if st.Sneaking != nil {
		o.Sneak = *st.Sneaking
	}
	if st.Interact != nil {
		b := r.World.BlockAt(*st.Interact)
		if b == nil {
			return fmt.Errorf("no block at %v", *st.Interact)
		}
		if r.hooks.Interact != nil {
			r.hooks.Interact(o, b)
		}
	}
	if st.Leave {
		o.Left = true
		if r.hooks.Leave != nil {
			r.hooks.Leave(o)
		}
	}
	return nil
}
