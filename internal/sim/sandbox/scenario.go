package sandbox

import (
	"fmt"
	"os"
	"sort"

	"github.com/go-gl/mathgl/mgl64"
	"gopkg.in/yaml.v3"

	"voxelhud.ai/internal/sim/host"
)

// Scenario is a yaml description of a sandbox world, its observers and a scripted timeline.
type Scenario struct {
	World struct {
		MinY int `yaml:"min_y"`
		MaxY int `yaml:"max_y"`
	} `yaml:"world"`
	Observers []ObserverSpec `yaml:"observers"`
	Blocks    []BlockSpec    `yaml:"blocks"`
	Entities  []EntitySpec   `yaml:"entities"`
	Steps     []Step         `yaml:"steps"`
}

type ItemSpec struct {
	Type    string            `yaml:"type"`
	Amount  int               `yaml:"amount"`
	NameTag string            `yaml:"name_tag"`
	Lore    []string          `yaml:"lore"`
	Tags    []string          `yaml:"tags"`
	Ench    map[string]int    `yaml:"enchantments"`
	Damage  int               `yaml:"damage"`
	Props   map[string]string `yaml:"properties"`
}

type ObserverSpec struct {
	// ID pins the observer id; a random one is used when empty.
	ID        string           `yaml:"id"`
	Name      string           `yaml:"name"`
	Pos       [3]float64       `yaml:"pos"`
	Rot       [2]float64       `yaml:"rot"`
	Sneaking  bool             `yaml:"sneaking"`
	MainHand  *ItemSpec        `yaml:"main_hand"`
	Inventory map[int]ItemSpec `yaml:"inventory"`
}

type BlockSpec struct {
	Type      string         `yaml:"type"`
	Pos       [3]int         `yaml:"pos"`
	Tags      []string       `yaml:"tags"`
	States    map[string]any `yaml:"states"`
	Liquid    bool           `yaml:"liquid"`
	Passable  bool           `yaml:"passable"`
	Framed    *ItemSpec      `yaml:"framed"`
	Container *struct {
		Size  int              `yaml:"size"`
		Items map[int]ItemSpec `yaml:"items"`
	} `yaml:"container"`
}

type EntitySpec struct {
	ID         string              `yaml:"id"`
	Type       string              `yaml:"type"`
	NameTag    string              `yaml:"name_tag"`
	Name       string              `yaml:"name"`
	Families   []string            `yaml:"families"`
	Health     [2]float64          `yaml:"health"`
	Pos        [3]float64          `yaml:"pos"`
	Components []string            `yaml:"components"`
	Effects    []EffectSpec        `yaml:"effects"`
	Armor      map[string]ItemSpec `yaml:"armor"`
	Carried    *ItemSpec           `yaml:"carried"`
}

type EffectSpec struct {
	Type      string `yaml:"type"`
	Amplifier int    `yaml:"amplifier"`
	Duration  int    `yaml:"duration"`
}

// Step mutates one observer at a given tick. Unset fields are left alone.
type Step struct {
	Tick     uint64      `yaml:"tick"`
	Observer string      `yaml:"observer"`
	Pos      *[3]float64 `yaml:"pos"`
	Rot      *[2]float64 `yaml:"rot"`
	Sneaking *bool       `yaml:"sneaking"`
	Interact *[3]int     `yaml:"interact"`
	Leave    bool        `yaml:"leave"`
}

func LoadScenario(path string) (Scenario, error) {
	var s Scenario
	b, err := os.ReadFile(path)
	if err != nil {
		return s, err
	}
	if err := yaml.Unmarshal(b, &s); err != nil {
		return s, fmt.Errorf("%s: %w", path, err)
	}
	if s.World.MaxY == 0 && s.World.MinY == 0 {
		s.World.MinY, s.World.MaxY = -64, 320
	}
	return s, nil
}

// Build instantiates the scenario. Observers are returned in declaration order.
func (s Scenario) Build() (*World, []*Observer, error) {
	w := NewWorld(s.World.MinY, s.World.MaxY)
	for _, bs := range s.Blocks {
		b := &Block{
			Type:     bs.Type,
			TagList:  bs.Tags,
			StateMap: bs.States,
			Pos:      bs.Pos,
			IsLiquid: bs.Liquid,
			Passable: bs.Passable,
		}
		if bs.Framed != nil {
			it, err := bs.Framed.Build()
			if err != nil {
				return nil, nil, fmt.Errorf("block %s framed: %w", bs.Type, err)
			}
			b.Framed = it
		}
		if bs.Container != nil {
			b.Inventory = NewContainer(bs.Container.Size)
			for slot, is := range bs.Container.Items {
				it, err := is.Build()
				if err != nil {
					return nil, nil, fmt.Errorf("block %s slot %d: %w", bs.Type, slot, err)
				}
				if slot < 0 || slot >= bs.Container.Size {
					return nil, nil, fmt.Errorf("block %s slot %d out of range", bs.Type, slot)
				}
				b.Inventory.Put(slot, it)
			}
		}
		w.PlaceBlock(b)
	}
	for _, es := range s.Entities {
		e := &Entity{
			EntityID:  es.ID,
			Type:      es.Type,
			Tag:       es.NameTag,
			InWorld:   es.Name,
			Families_: es.Families,
			HP:        host.Health{Current: es.Health[0], Max: es.Health[1]},
			Pos:       mgl64.Vec3(es.Pos),
			Comps:     map[string]bool{},
			Armor:     map[host.EquipmentSlot]host.Item{},
		}
		if e.EntityID == "" {
			e.EntityID = fmt.Sprintf("%s#%d", es.Type, len(w.entities))
		}
		for _, c := range es.Components {
			e.Comps[c] = true
		}
		for _, ef := range es.Effects {
			e.Active = append(e.Active, host.Effect{TypeID: ef.Type, Amplifier: ef.Amplifier, Duration: ef.Duration})
		}
		for name, is := range es.Armor {
			slot, ok := armorSlots[name]
			if !ok {
				return nil, nil, fmt.Errorf("entity %s: unknown armor slot %q", es.Type, name)
			}
			it, err := is.Build()
			if err != nil {
				return nil, nil, fmt.Errorf("entity %s armor: %w", es.Type, err)
			}
			e.Armor[slot] = it
		}
		if es.Carried != nil {
			it, err := es.Carried.Build()
			if err != nil {
				return nil, nil, fmt.Errorf("entity %s carried: %w", es.Type, err)
			}
			e.Carried = it
		}
		w.Spawn(e)
	}

	obs := make([]*Observer, 0, len(s.Observers))
	for _, spec := range s.Observers {
		o := NewObserver(spec.Name)
		if spec.ID != "" {
			o.PlayerID = spec.ID
		}
		o.Pos = mgl64.Vec3(spec.Pos)
		o.Rot = mgl64.Vec2(spec.Rot)
		o.Sneak = spec.Sneaking
		if spec.MainHand != nil {
			it, err := spec.MainHand.Build()
			if err != nil {
				return nil, nil, fmt.Errorf("observer %s main hand: %w", spec.Name, err)
			}
			o.Held = it
		}
		for slot, is := range spec.Inventory {
			it, err := is.Build()
			if err != nil {
				return nil, nil, fmt.Errorf("observer %s slot %d: %w", spec.Name, slot, err)
			}
			if slot < 0 || slot >= InventorySize {
				return nil, nil, fmt.Errorf("observer %s slot %d out of range", spec.Name, slot)
			}
			o.Inv.Put(slot, it)
		}
		obs = append(obs, o)
	}
	return w, obs, nil
}

var armorSlots = map[string]host.EquipmentSlot{
	"head":  host.SlotHead,
	"chest": host.SlotChest,
	"legs":  host.SlotLegs,
	"feet":  host.SlotFeet,
}

// Build creates the item through the validating setters.
func (is ItemSpec) Build() (host.Item, error) {
	amount := is.Amount
	if amount == 0 {
		amount = 1
	}
	raw, err := Factory{}.NewItem(is.Type, amount)
	if err != nil {
		return nil, err
	}
	it := raw.(*Item)
	it.WithTags(is.Tags...)
	if is.NameTag != "" {
		_ = it.SetNameTag(is.NameTag)
	}
	if len(is.Lore) > 0 {
		if err := it.SetLore(is.Lore); err != nil {
			return nil, err
		}
	}
	ids := make([]string, 0, len(is.Ench))
	for id := range is.Ench {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	for _, id := range ids {
		if err := it.AddEnchantment(host.Enchantment{ID: id, Level: is.Ench[id]}); err != nil {
			return nil, err
		}
	}
	if is.Damage > 0 {
		if err := it.SetDamage(is.Damage); err != nil {
			return nil, err
		}
	}
	for k, v := range is.Props {
		if err := it.SetProperty(k, host.PropertyValue{Kind: host.PropString, Str: v}); err != nil {
			return nil, err
		}
	}
	return it, nil
}
