// Package look turns what an observer is looking at into render metadata. Scanner finds the
// target each pulse; Pipeline.Assess computes a cheap signature, and Pipeline.Finalize builds
// the full metadata and icon requests only when that signature changed.
package look

import (
	"errors"

	"go.uber.org/zap"

	"voxelhud.ai/internal/sim/host"
	"voxelhud.ai/internal/sim/mirror"
	"voxelhud.ai/internal/sim/settings"
)

type Kind uint8

const (
	KindNone Kind = iota
	KindEntity
	KindTile
)

func (k Kind) String() string {
	switch k {
	case KindEntity:
		return "entity"
	case KindTile:
		return "tile"
	default:
		return "none"
	}
}

// NoTargetID is the identifier of "nothing observed". Consumers key off it, not off Kind.
const NoTargetID = "__none__"

const (
	PlayerType = "minecraft:player"
	ItemType   = "minecraft:item"
)

// Target is the tagged result of one scan. Entity fields are set for KindEntity, Block and
// HitID for KindTile.
type Target struct {
	Kind Kind
	ID   string

	Entity  host.Entity
	Health  *host.Health
	Effects []host.Effect
	// Carried is the stack of an item lying on the ground.
	Carried host.Item

	Block host.Block
	// HitID is the inventory form of the block (water reports as a water bucket).
	HitID string
}

func None() Target { return Target{Kind: KindNone, ID: NoTargetID} }

// Present is false for KindNone and for the sentinel identifier.
func (t Target) Present() bool {
	return t.Kind != KindNone && t.ID != "" && t.ID != NoTargetID
}

type Scanner struct {
	world    host.World
	distance float64
	log      *zap.Logger
}

func NewScanner(w host.World, distance float64, logger *zap.Logger) *Scanner {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Scanner{world: w, distance: distance, log: logger.Named("scan")}
}

// Scan returns the entity under the crosshair, else the block, else None. Query failures are
// never fatal: they read as "nothing there".
func (s *Scanner) Scan(o host.Observer, set settings.Settings) Target {
	opts := host.RayOptions{MaxDistance: s.distance, IncludeLiquid: set.Liquids, IncludePassable: set.Passable}

	e, err := s.world.EntityFromView(o, opts)
	switch {
	case err != nil:
		s.debug(o, "entity query", err)
	case e != nil && e.Valid():
		return entityTarget(e)
	}

	b, err := s.world.BlockFromView(o, opts)
	if err != nil {
		s.debug(o, "block query", err)
		return None()
	}
	if b == nil {
		return None()
	}
	return Target{Kind: KindTile, ID: b.TypeID(), Block: b, HitID: mirror.BlockToItem(b.TypeID())}
}

func entityTarget(e host.Entity) Target {
	t := Target{Kind: KindEntity, ID: e.TypeID(), Entity: e}
	if hp, err := e.Health(); err == nil {
		t.Health = &hp
	}
	if fx, err := e.Effects(); err == nil {
		t.Effects = fx
		if t.Effects == nil {
			t.Effects = []host.Effect{}
		}
	}
	if t.ID == ItemType {
		if it, err := e.CarriedItem(); err == nil {
			t.Carried = it
		}
	}
	return t
}

func (s *Scanner) debug(o host.Observer, what string, err error) {
	if errors.Is(err, host.ErrOutOfBounds) {
		return
	}
	s.log.Debug(what+" failed", zap.String("observer", o.ID()), zap.Error(err))
}
