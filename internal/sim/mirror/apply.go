package mirror

import (
	"errors"
	"fmt"
	"slices"

	"go.uber.org/zap"

	"voxelhud.ai/internal/sim/encoding"
	"voxelhud.ai/internal/sim/host"
)

// Apply shows the requested items. Slots not yet borrowed in this session are backed up
// first, together with the auxiliary background slots, and the backup is persisted before
// anything is written. If the backup does not fit, every slot borrowed earlier in the
// session is put back, the session is cleared, and ErrBackupTooLarge is returned; the slots
// of this call are never touched in that case.
func (m *Mirror) Apply(o host.Observer, reqs []Request) error {
	store := o.Properties()
	inv, err := o.Inventory()
	if err != nil {
		return fmt.Errorf("mirror: inventory: %w", err)
	}

	prior := Tracked(store)
	backups, err := LoadBackups(store)
	if err != nil {
		return fmt.Errorf("mirror: load session: %w", err)
	}

	tracked := slices.Clone(prior)
	isTracked := make(map[int]bool, len(tracked))
	for _, s := range tracked {
		isTracked[s] = true
	}

	requested := map[int]bool{}
	var writes []Request
	for _, r := range reqs {
		if r.Slot < 0 || r.Slot >= inv.Size() {
			m.log.Warn("request outside inventory", zap.String("observer", o.ID()), zap.Int("slot", r.Slot))
			continue
		}
		requested[r.Slot] = true
		writes = append(writes, r)
	}
	for _, s := range m.auxSlots() {
		if s < inv.Size() && !requested[s] {
			writes = append(writes, Request{Slot: s})
		}
	}

	for _, w := range writes {
		if isTracked[w.Slot] {
			continue
		}
		it, err := inv.Item(w.Slot)
		if err != nil {
			return fmt.Errorf("mirror: read slot %d: %w", w.Slot, err)
		}
		backups[w.Slot] = Snapshot(it)
		tracked = append(tracked, w.Slot)
		isTracked[w.Slot] = true
	}

	chunks, err := encoding.EncodeBackups(backups, m.limits.ChunkSize, m.limits.MaxChunks)
	if err == nil {
		err = saveChunks(store, chunks)
		if err == nil {
			err = saveTracked(store, tracked)
		}
	}
	if err != nil {
		m.rollback(o, inv, prior, backups)
		if errors.Is(err, encoding.ErrTooManyChunks) {
			return fmt.Errorf("%w: %w", ErrBackupTooLarge, err)
		}
		return fmt.Errorf("mirror: persist session: %w", err)
	}

	for _, w := range writes {
		var item host.Item
		if w.Item != nil {
			item = m.decorate(w.Item)
		}
		if err := inv.SetItem(w.Slot, item); err != nil {
			m.log.Warn("slot write failed", zap.String("observer", o.ID()), zap.Int("slot", w.Slot), zap.Error(err))
		}
	}

	size := 0
	for _, c := range chunks {
		size += len(c)
	}
	m.record(Event{Kind: EventApply, Observer: o.ID(), Slots: tracked, Chunks: len(chunks), Bytes: size})
	return nil
}

// decorate clones it and marks the copy as a borrowed icon.
func (m *Mirror) decorate(it host.Item) host.Item {
	c := it.Clone()
	if err := c.SetLockMode(host.LockInSlot); err != nil {
		m.log.Debug("icon lock", zap.String("item", c.TypeID()), zap.Error(err))
	}
	if err := c.SetKeepOnDeath(true); err != nil {
		m.log.Debug("icon keep on death", zap.String("item", c.TypeID()), zap.Error(err))
	}
	if err := c.SetNameTag(BlankName); err != nil {
		m.log.Debug("icon name", zap.String("item", c.TypeID()), zap.Error(err))
	}
	return c
}

// rollback puts back every slot borrowed before the failing call and ends the session.
func (m *Mirror) rollback(o host.Observer, inv host.Container, prior []int, backups encoding.Backups) {
	for _, s := range prior {
		m.restoreSlot(o, inv, s, backups)
	}
	if err := clearSession(o.Properties()); err != nil {
		m.log.Warn("clear session after rollback", zap.String("observer", o.ID()), zap.Error(err))
	}
	m.log.Warn("borrow rolled back", zap.String("observer", o.ID()), zap.Ints("slots", prior))
	m.record(Event{Kind: EventRollback, Observer: o.ID(), Slots: prior})
}
