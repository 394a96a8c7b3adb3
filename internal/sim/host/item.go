package host

import "github.com/go-gl/mathgl/mgl64"

type LockMode uint8

const (
	LockNone LockMode = iota
	LockInInventory
	LockInSlot
)

func (m LockMode) String() string {
	switch m {
	case LockInInventory:
		return "inventory"
	case LockInSlot:
		return "slot"
	default:
		return "none"
	}
}

func ParseLockMode(s string) LockMode {
	switch s {
	case "inventory":
		return LockInInventory
	case "slot":
		return LockInSlot
	default:
		return LockNone
	}
}

type Enchantment struct {
	ID    string `json:"id"`
	Level int    `json:"level"`
}

type PropertyKind uint8

const (
	PropString PropertyKind = iota + 1
	PropNumber
	PropBool
	PropVector
)

// PropertyValue is a custom item property: a scalar or a point.
type PropertyValue struct {
	Kind PropertyKind
	Str  string
	Num  float64
	Bool bool
	Vec  mgl64.Vec3
}

type Item interface {
	TypeID() string
	Amount() int
	NameTag() string
	LockMode() LockMode
	KeepOnDeath() bool
	Lore() []string
	Tags() []string
	Enchantments() ([]Enchantment, error)
	// Damage returns ErrNoComponent for items without durability.
	Damage() (int, error)
	PropertyIDs() []string
	Property(id string) (PropertyValue, bool)
	Clone() Item

	SetNameTag(name string) error
	SetLockMode(m LockMode) error
	SetKeepOnDeath(keep bool) error
	SetLore(lines []string) error
	AddEnchantment(e Enchantment) error
	SetDamage(damage int) error
	SetProperty(id string, v PropertyValue) error
}

type ItemFactory interface {
	NewItem(typeID string, amount int) (Item, error)
}

// Container is indexed storage; a nil Item is an empty slot.
type Container interface {
	Size() int
	Item(slot int) (Item, error)
	SetItem(slot int, it Item) error
}
