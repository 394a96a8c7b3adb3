// Package sandbox is an in-memory implementation of the host interfaces: a small voxel world
// with observers, entities, containers and items. It backs tests and the standalone server.
package sandbox

import (
	"errors"
	"fmt"
	"slices"
	"sort"
	"strings"

	"voxelhud.ai/internal/sim/host"
)

var (
	ErrBadAmount      = errors.New("sandbox: amount out of range")
	ErrBadEnchantment = errors.New("sandbox: enchantment rejected")
	ErrLoreTooLong    = errors.New("sandbox: lore too long")
)

const (
	MaxStack    = 255
	MaxLoreLine = 20
)

// Item is a mutable stack. Setters validate like the engine does.
type Item struct {
	typeID  string
	amount  int
	nameTag string
	lock    host.LockMode
	keep    bool
	lore    []string
	tags    []string
	ench    []host.Enchantment
	// maxDurability is 0 for items without a durability component.
	maxDurability int
	damage        int
	props         map[string]host.PropertyValue
}

var _ host.Item = (*Item)(nil)

// NewItem builds a stack, inferring durability and tags from the identifier.
func NewItem(typeID string, amount int) *Item {
	return &Item{
		typeID:        typeID,
		amount:        amount,
		tags:          inferTags(typeID),
		maxDurability: inferDurability(typeID),
	}
}

func (it *Item) WithTags(tags ...string) *Item {
	it.tags = append(it.tags, tags...)
	return it
}

func (it *Item) TypeID() string          { return it.typeID }
func (it *Item) Amount() int             { return it.amount }
func (it *Item) NameTag() string         { return it.nameTag }
func (it *Item) LockMode() host.LockMode { return it.lock }
func (it *Item) KeepOnDeath() bool       { return it.keep }
func (it *Item) Lore() []string          { return slices.Clone(it.lore) }
func (it *Item) Tags() []string          { return slices.Clone(it.tags) }

func (it *Item) Enchantments() ([]host.Enchantment, error) {
	if it.maxDurability == 0 && len(it.ench) == 0 {
		return nil, host.ErrNoComponent
	}
	return slices.Clone(it.ench), nil
}

func (it *Item) Damage() (int, error) {
	if it.maxDurability == 0 {
		return 0, host.ErrNoComponent
	}
	return it.damage, nil
}

func (it *Item) PropertyIDs() []string {
	ids := make([]string, 0, len(it.props))
	for id := range it.props {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

func (it *Item) Property(id string) (host.PropertyValue, bool) {
	v, ok := it.props[id]
	return v, ok
}

func (it *Item) Clone() host.Item {
	c := *it
	c.lore = slices.Clone(it.lore)
	c.tags = slices.Clone(it.tags)
	c.ench = slices.Clone(it.ench)
	if it.props != nil {
		c.props = make(map[string]host.PropertyValue, len(it.props))
		for k, v := range it.props {
			c.props[k] = v
		}
	}
	return &c
}

func (it *Item) SetNameTag(name string) error {
	it.nameTag = name
	return nil
}

func (it *Item) SetLockMode(m host.LockMode) error {
	it.lock = m
	return nil
}

func (it *Item) SetKeepOnDeath(keep bool) error {
	it.keep = keep
	return nil
}

func (it *Item) SetLore(lines []string) error {
	if len(lines) > MaxLoreLine {
		return ErrLoreTooLong
	}
	it.lore = slices.Clone(lines)
	return nil
}

func (it *Item) AddEnchantment(e host.Enchantment) error {
	if it.maxDurability == 0 {
		return fmt.Errorf("%w: %s on %s", ErrBadEnchantment, e.ID, it.typeID)
	}
	if e.ID == "" || e.Level < 1 || e.Level > 5 {
		return fmt.Errorf("%w: %s level %d", ErrBadEnchantment, e.ID, e.Level)
	}
	for i, have := range it.ench {
		if have.ID == e.ID {
			it.ench[i] = e
			return nil
		}
	}
	it.ench = append(it.ench, e)
	return nil
}

func (it *Item) SetDamage(damage int) error {
	if it.maxDurability == 0 {
		return host.ErrNoComponent
	}
	if damage < 0 || damage > it.maxDurability {
		return fmt.Errorf("sandbox: damage %d outside 0..%d", damage, it.maxDurability)
	}
	it.damage = damage
	return nil
}

func (it *Item) SetProperty(id string, v host.PropertyValue) error {
	if id == "" {
		return errors.New("sandbox: empty property id")
	}
	if it.props == nil {
		it.props = map[string]host.PropertyValue{}
	}
	it.props[id] = v
	return nil
}

// Factory creates items the way the engine's ItemStack constructor does.
type Factory struct{}

func (Factory) NewItem(typeID string, amount int) (host.Item, error) {
	if typeID == "" {
		return nil, errors.New("sandbox: empty item type")
	}
	if amount < 1 || amount > MaxStack {
		return nil, fmt.Errorf("%w: %d", ErrBadAmount, amount)
	}
	return NewItem(typeID, amount), nil
}

var durability = map[string]int{
	"wooden":    59,
	"stone":     131,
	"iron":      250,
	"golden":    32,
	"diamond":   1561,
	"netherite": 2031,
}

var toolKinds = []string{"pickaxe", "axe", "shovel", "hoe", "sword", "helmet", "chestplate", "leggings", "boots"}

func inferDurability(typeID string) int {
	name := typeID[strings.Index(typeID, ":")+1:]
	switch name {
	case "shears":
		return 238
	case "bow":
		return 384
	case "trident":
		return 250
	}
	for _, kind := range toolKinds {
		if !strings.HasSuffix(name, "_"+kind) {
			continue
		}
		material := strings.TrimSuffix(name, "_"+kind)
		if d, ok := durability[material]; ok {
			return d
		}
		return 100
	}
	return 0
}

func inferTags(typeID string) []string {
	name := typeID[strings.Index(typeID, ":")+1:]
	var out []string
	for _, kind := range []string{"pickaxe", "axe", "shovel", "hoe", "sword"} {
		if strings.HasSuffix(name, "_"+kind) {
			out = append(out, "minecraft:is_"+kind, "minecraft:is_tool")
		}
	}
	return out
}
