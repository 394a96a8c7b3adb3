package sandbox

import (
	"maps"
	"slices"

	"github.com/go-gl/mathgl/mgl64"

	"voxelhud.ai/internal/sim/host"
)

type Block struct {
	Type      string
	TagList   []string
	StateMap  map[string]any
	Inventory *Container
	Framed    host.Item
	Pos       [3]int
	IsLiquid  bool
	Passable  bool

	StatesErr    error
	ContainerErr error
}

var _ host.Block = (*Block)(nil)

func (b *Block) TypeID() string { return b.Type }
func (b *Block) Tags() []string { return slices.Clone(b.TagList) }
func (b *Block) Liquid() bool   { return b.IsLiquid }

func (b *Block) States() (map[string]any, error) {
	if b.StatesErr != nil {
		return nil, b.StatesErr
	}
	return maps.Clone(b.StateMap), nil
}

func (b *Block) Container() (host.Container, error) {
	if b.ContainerErr != nil {
		return nil, b.ContainerErr
	}
	if b.Inventory == nil {
		return nil, nil
	}
	return b.Inventory, nil
}

func (b *Block) FramedItem() (host.Item, error) {
	if b.Framed == nil {
		return nil, nil
	}
	return b.Framed.Clone(), nil
}

func (b *Block) Location() mgl64.Vec3 {
	return mgl64.Vec3{float64(b.Pos[0]), float64(b.Pos[1]), float64(b.Pos[2])}
}
