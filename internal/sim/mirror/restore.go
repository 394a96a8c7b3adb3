package mirror

import (
	"fmt"

	"go.uber.org/zap"

	"voxelhud.ai/internal/sim/encoding"
	"voxelhud.ai/internal/sim/host"
)

// Pending reports whether o has an open borrow session.
func Pending(o host.Observer) bool {
	return len(Tracked(o.Properties())) > 0
}

// Restore puts every borrowed slot back and ends the session. Without a session it does
// nothing. A slot whose backup is missing or marked empty is cleared.
func (m *Mirror) Restore(o host.Observer) error {
	store := o.Properties()
	tracked := Tracked(store)
	if len(tracked) == 0 {
		return nil
	}
	inv, err := o.Inventory()
	if err != nil {
		return fmt.Errorf("mirror: inventory: %w", err)
	}
	backups, err := LoadBackups(store)
	if err != nil {
		// The icons still have to go; the originals are unrecoverable either way.
		m.log.Error("backup payload unreadable, clearing borrowed slots", zap.String("observer", o.ID()), zap.Error(err))
		backups = encoding.Backups{}
	}
	for _, s := range tracked {
		m.restoreSlot(o, inv, s, backups)
	}
	if err := clearSession(store); err != nil {
		m.log.Warn("clear session", zap.String("observer", o.ID()), zap.Error(err))
	}
	m.record(Event{Kind: EventRestore, Observer: o.ID(), Slots: tracked})
	return nil
}

func (m *Mirror) restoreSlot(o host.Observer, inv host.Container, slot int, backups encoding.Backups) {
	var it host.Item
	if b, ok := backups[slot]; ok && !b.Empty {
		it = m.Rebuild(b, func(field string, err error) {
			m.log.Warn("restore field skipped",
				zap.String("observer", o.ID()), zap.Int("slot", slot), zap.String("field", field), zap.Error(err))
		})
	}
	if err := inv.SetItem(slot, it); err != nil {
		m.log.Error("restore slot", zap.String("observer", o.ID()), zap.Int("slot", slot), zap.Error(err))
	}
}

// Snapshot captures it for a later Rebuild. A nil item becomes an empty marker.
func Snapshot(it host.Item) encoding.Backup {
	if it == nil {
		return encoding.Backup{Empty: true}
	}
	b := encoding.Backup{
		TypeID:      it.TypeID(),
		Amount:      it.Amount(),
		NameTag:     it.NameTag(),
		KeepOnDeath: it.KeepOnDeath(),
		Lore:        it.Lore(),
	}
	if l := it.LockMode(); l != host.LockNone {
		b.Lock = l.String()
	}
	if len(b.Lore) == 0 {
		b.Lore = nil
	}
	if ench, err := it.Enchantments(); err == nil {
		for _, e := range ench {
			b.Enchantments = append(b.Enchantments, encoding.Enchantment{ID: e.ID, Level: e.Level})
		}
	}
	if d, err := it.Damage(); err == nil {
		b.Damage = &d
	}
	for _, id := range it.PropertyIDs() {
		v, ok := it.Property(id)
		if !ok {
			continue
		}
		if b.Properties == nil {
			b.Properties = map[string]encoding.Property{}
		}
		b.Properties[id] = propertyOut(v)
	}
	return b
}

// Rebuild recreates an item from b. Every attribute past type and amount is best effort:
// a failing one is reported to skipped and the rest still apply. It returns nil only when
// the item itself cannot be created.
func (m *Mirror) Rebuild(b encoding.Backup, skipped func(field string, err error)) host.Item {
	it, err := m.factory.NewItem(b.TypeID, b.Amount)
	if err != nil {
		skipped("type", err)
		return nil
	}
	try := func(field string, err error) {
		if err != nil {
			skipped(field, err)
		}
	}
	if b.NameTag != "" {
		try("name", it.SetNameTag(b.NameTag))
	}
	if b.Lock != "" {
		try("lock", it.SetLockMode(host.ParseLockMode(b.Lock)))
	}
	if b.KeepOnDeath {
		try("keep", it.SetKeepOnDeath(true))
	}
	if len(b.Lore) > 0 {
		try("lore", it.SetLore(b.Lore))
	}
	for _, e := range b.Enchantments {
		try("enchantment:"+e.ID, it.AddEnchantment(host.Enchantment{ID: e.ID, Level: e.Level}))
	}
	if b.Damage != nil {
		try("damage", it.SetDamage(*b.Damage))
	}
	for id, p := range b.Properties {
		v, err := propertyIn(p)
		if err != nil {
			skipped("property:"+id, err)
			continue
		}
		try("property:"+id, it.SetProperty(id, v))
	}
	return it
}

func propertyOut(v host.PropertyValue) encoding.Property {
	switch v.Kind {
	case host.PropNumber:
		return encoding.Property{Kind: encoding.PropNumber, Num: v.Num}
	case host.PropBool:
		return encoding.Property{Kind: encoding.PropBool, Bool: v.Bool}
	case host.PropVector:
		vec := [3]float64(v.Vec)
		return encoding.Property{Kind: encoding.PropVector, Vec: &vec}
	default:
		return encoding.Property{Kind: encoding.PropString, Str: v.Str}
	}
}

func propertyIn(p encoding.Property) (host.PropertyValue, error) {
	switch p.Kind {
	case encoding.PropString:
		return host.PropertyValue{Kind: host.PropString, Str: p.Str}, nil
	case encoding.PropNumber:
		return host.PropertyValue{Kind: host.PropNumber, Num: p.Num}, nil
	case encoding.PropBool:
		return host.PropertyValue{Kind: host.PropBool, Bool: p.Bool}, nil
	case encoding.PropVector:
		if p.Vec == nil {
			return host.PropertyValue{}, fmt.Errorf("vector property without value")
		}
		return host.PropertyValue{Kind: host.PropVector, Vec: *p.Vec}, nil
	default:
		return host.PropertyValue{}, fmt.Errorf("unknown property kind %q", p.Kind)
	}
}
