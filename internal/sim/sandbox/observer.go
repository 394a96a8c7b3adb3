package sandbox

import (
	"github.com/go-gl/mathgl/mgl64"
	"github.com/google/uuid"

	"voxelhud.ai/internal/persistence/kvstore"
	"voxelhud.ai/internal/sim/host"
)

const (
	PlayerType    = "minecraft:player"
	InventorySize = 36
	EyeHeight     = 1.62
)

// Observer is a player. Inv is its own 36-slot inventory; Held is the main-hand item.
type Observer struct {
	PlayerID string
	Nick     string
	Pos      mgl64.Vec3
	Rot      mgl64.Vec2 // pitch, yaw in degrees
	Sneak    bool
	Held     host.Item
	Inv      *Container
	Props    host.Store
	Left     bool

	InventoryErr error
}

var _ host.Observer = (*Observer)(nil)

// NewObserver creates a player with an empty inventory and an in-memory property store.
func NewObserver(name string) *Observer {
	return &Observer{
		PlayerID: uuid.NewString(),
		Nick:     name,
		Inv:      NewContainer(InventorySize),
		Props:    kvstore.NewMemory(kvstore.DefaultEntryLimit),
	}
}

func (o *Observer) ID() string             { return o.PlayerID }
func (o *Observer) TypeID() string         { return PlayerType }
func (o *Observer) Name() string           { return o.Nick }
func (o *Observer) Valid() bool            { return !o.Left }
func (o *Observer) Location() mgl64.Vec3   { return o.Pos }
func (o *Observer) Rotation() mgl64.Vec2   { return o.Rot }
func (o *Observer) Sneaking() bool         { return o.Sneak }
func (o *Observer) Properties() host.Store { return o.Props }

func (o *Observer) MainHand() (host.Item, error) {
	if o.Held == nil {
		return nil, nil
	}
	return o.Held.Clone(), nil
}

func (o *Observer) Inventory() (host.Container, error) {
	if o.InventoryErr != nil {
		return nil, o.InventoryErr
	}
	return o.Inv, nil
}

// Eye is where view rays start.
func (o *Observer) Eye() mgl64.Vec3 { return o.Pos.Add(mgl64.Vec3{0, EyeHeight, 0}) }
