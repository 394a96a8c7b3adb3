// Package host declares what the pipeline needs from the game engine: world queries,
// actors, items, containers, persistent per-actor properties and the title overlay.
package host

import (
	"errors"

	"github.com/go-gl/mathgl/mgl64"
)

var (
	// ErrOutOfBounds is returned by view queries that reach outside loaded terrain.
	ErrOutOfBounds = errors.New("host: query out of bounds")
	// ErrNoComponent is returned when an entity, block or item lacks the requested component.
	ErrNoComponent = errors.New("host: component not present")
	// ErrInvalid is returned when a handle no longer refers to a live object.
	ErrInvalid = errors.New("host: invalid handle")
)

type RayOptions struct {
	MaxDistance     float64
	IncludeLiquid   bool
	IncludePassable bool
}

type World interface {
	// EntityFromView returns the first entity along the observer's view ray, or nil.
	EntityFromView(o Observer, opts RayOptions) (Entity, error)
	// BlockFromView returns the first block along the observer's view ray, or nil.
	BlockFromView(o Observer, opts RayOptions) (Block, error)
}

type Observer interface {
	ID() string
	TypeID() string
	Name() string
	Valid() bool

	Location() mgl64.Vec3
	// Rotation is (pitch, yaw) in degrees.
	Rotation() mgl64.Vec2
	Sneaking() bool

	MainHand() (Item, error)
	Inventory() (Container, error)
	Properties() Store
}

type Health struct {
	Current float64
	Max     float64
}

type Effect struct {
	TypeID    string
	Amplifier int
	// Duration in engine ticks; negative means infinite.
	Duration int
}

type EquipmentSlot uint8

const (
	SlotHead EquipmentSlot = iota + 1
	SlotChest
	SlotLegs
	SlotFeet
)

var ArmorSlots = []EquipmentSlot{SlotHead, SlotChest, SlotLegs, SlotFeet}

type Entity interface {
	ID() string
	TypeID() string
	Valid() bool
	// NameTag is the custom name given with a name tag, empty if none.
	NameTag() string
	// Name is the in-world name (players).
	Name() string
	Families() ([]string, error)
	Health() (Health, error)
	Equipment(slot EquipmentSlot) (Item, error)
	Effects() ([]Effect, error)
	HasComponent(id string) (bool, error)
	// CarriedItem is the stack held by an item entity lying on the ground.
	CarriedItem() (Item, error)
	Location() mgl64.Vec3
}

type Block interface {
	TypeID() string
	Tags() []string
	States() (map[string]any, error)
	// Container returns nil, nil for blocks without an inventory.
	Container() (Container, error)
	// FramedItem returns the item shown by frame-like blocks, nil if none.
	FramedItem() (Item, error)
	Location() mgl64.Vec3
	Liquid() bool
}
