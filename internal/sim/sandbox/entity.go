package sandbox

import (
	"slices"

	"github.com/go-gl/mathgl/mgl64"

	"voxelhud.ai/internal/sim/host"
)

// Entity is a mob, item or other actor in the sandbox world. Fields are set directly by
// tests and scenarios; the *Err fields inject engine failures.
type Entity struct {
	EntityID  string
	Type      string
	Tag       string
	InWorld   string
	Families_ []string
	HP        host.Health
	Armor     map[host.EquipmentSlot]host.Item
	Active    []host.Effect
	Comps     map[string]bool
	Carried   host.Item
	Pos       mgl64.Vec3
	Dead      bool

	FamiliesErr  error
	HealthErr    error
	EffectsErr   error
	ComponentErr map[string]error
}

var _ host.Entity = (*Entity)(nil)

func (e *Entity) ID() string      { return e.EntityID }
func (e *Entity) TypeID() string  { return e.Type }
func (e *Entity) Valid() bool     { return !e.Dead }
func (e *Entity) NameTag() string { return e.Tag }
func (e *Entity) Name() string    { return e.InWorld }

func (e *Entity) Families() ([]string, error) {
	if e.FamiliesErr != nil {
		return nil, e.FamiliesErr
	}
	return slices.Clone(e.Families_), nil
}

func (e *Entity) Health() (host.Health, error) {
	if e.HealthErr != nil {
		return host.Health{}, e.HealthErr
	}
	if e.HP.Max == 0 {
		return host.Health{}, host.ErrNoComponent
	}
	return e.HP, nil
}

func (e *Entity) Equipment(slot host.EquipmentSlot) (host.Item, error) {
	it, ok := e.Armor[slot]
	if !ok || it == nil {
		return nil, nil
	}
	return it.Clone(), nil
}

func (e *Entity) Effects() ([]host.Effect, error) {
	if e.EffectsErr != nil {
		return nil, e.EffectsErr
	}
	return slices.Clone(e.Active), nil
}

func (e *Entity) HasComponent(id string) (bool, error) {
	if err := e.ComponentErr[id]; err != nil {
		return false, err
	}
	return e.Comps[id], nil
}

func (e *Entity) CarriedItem() (host.Item, error) {
	if e.Carried == nil {
		return nil, host.ErrNoComponent
	}
	return e.Carried.Clone(), nil
}

func (e *Entity) Location() mgl64.Vec3 { return e.Pos }
