package sandbox

import (
	"fmt"

	"voxelhud.ai/internal/sim/host"
)

// Container hands out copies, so callers must SetItem to change a slot.
type Container struct {
	slots []host.Item

	// FailWrites makes SetItem fail for the listed slots.
	FailWrites map[int]error
	// Writes counts successful SetItem calls.
	Writes int
}

var _ host.Container = (*Container)(nil)

func NewContainer(size int) *Container {
	return &Container{slots: make([]host.Item, size)}
}

func (c *Container) Size() int { return len(c.slots) }

func (c *Container) Item(slot int) (host.Item, error) {
	if slot < 0 || slot >= len(c.slots) {
		return nil, fmt.Errorf("sandbox: slot %d out of range", slot)
	}
	if c.slots[slot] == nil {
		return nil, nil
	}
	return c.slots[slot].Clone(), nil
}

func (c *Container) SetItem(slot int, it host.Item) error {
	if slot < 0 || slot >= len(c.slots) {
		return fmt.Errorf("sandbox: slot %d out of range", slot)
	}
	if err := c.FailWrites[slot]; err != nil {
		return err
	}
	if it == nil {
		c.slots[slot] = nil
	} else {
		c.slots[slot] = it.Clone()
	}
	c.Writes++
	return nil
}

// Put stores it without counting a write.
func (c *Container) Put(slot int, it host.Item) {
	if it == nil {
		c.slots[slot] = nil
		return
	}
	c.slots[slot] = it.Clone()
}

// Peek returns the stored item itself, for assertions.
func (c *Container) Peek(slot int) host.Item { return c.slots[slot] }
