package mirror

import (
	"errors"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"voxelhud.ai/internal/persistence/kvstore"
	"voxelhud.ai/internal/sim/encoding"
	"voxelhud.ai/internal/sim/host"
	"voxelhud.ai/internal/sim/sandbox"
	"voxelhud.ai/internal/sim/tuning"
)

type events struct{ got []Event }

func (e *events) Record(ev Event) { e.got = append(e.got, ev) }

func newMirror(limits tuning.BackupLimits, opts ...Option) *Mirror {
	return New(tuning.Defaults().Slots, limits, sandbox.Factory{}, nil, opts...)
}

func sword(t *testing.T) host.Item {
	t.Helper()
	it := sandbox.NewItem("minecraft:diamond_sword", 1)
	require.NoError(t, it.SetNameTag("Old Faithful"))
	require.NoError(t, it.SetLore([]string{"forged", "twice"}))
	require.NoError(t, it.AddEnchantment(host.Enchantment{ID: "sharpness", Level: 5}))
	require.NoError(t, it.SetDamage(100))
	require.NoError(t, it.SetLockMode(host.LockInInventory))
	require.NoError(t, it.SetProperty("owner", host.PropertyValue{Kind: host.PropString, Str: "steve"}))
	require.NoError(t, it.SetProperty("home", host.PropertyValue{Kind: host.PropVector, Vec: [3]float64{1, 2, 3}}))
	return it
}

func player(t *testing.T) *sandbox.Observer {
	o := sandbox.NewObserver("steve")
	o.Inv.Put(17, sword(t))
	o.Inv.Put(9, sandbox.NewItem("minecraft:torch", 16))
	o.Inv.Put(20, sandbox.NewItem("minecraft:bread", 3))
	return o
}

func snapshotAll(c *sandbox.Container) []encoding.Backup {
	out := make([]encoding.Backup, c.Size())
	for i := range out {
		out[i] = Snapshot(c.Peek(i))
	}
	return out
}

func sessionKeys(o *sandbox.Observer) []string {
	var out []string
	for _, k := range o.Props.(*kvstore.Memory).Keys() {
		if strings.HasPrefix(k, "mirror:") {
			out = append(out, k)
		}
	}
	return out
}

func TestApply_BorrowsAndRestores(t *testing.T) {
	rec := &events{}
	m := newMirror(tuning.Defaults().Backup, WithRecorder(rec))
	o := player(t)
	before := snapshotAll(o.Inv)

	apple := sandbox.NewItem("minecraft:apple", 1)
	require.NoError(t, m.Apply(o, []Request{m.PrimaryRequest(apple)}))

	icon := o.Inv.Peek(17)
	assert.Equal(t, "minecraft:apple", icon.TypeID())
	assert.Equal(t, BlankName, icon.NameTag())
	assert.Equal(t, host.LockInSlot, icon.LockMode())
	assert.True(t, icon.KeepOnDeath())
	assert.Empty(t, apple.NameTag(), "request item is cloned, not mutated")
	for s := 9; s <= 16; s++ {
		assert.Nilf(t, o.Inv.Peek(s), "aux slot %d blanked", s)
	}
	assert.Equal(t, []int{17, 9, 10, 11, 12, 13, 14, 15, 16}, Tracked(o.Props))
	assert.True(t, Pending(o))

	require.NoError(t, m.Restore(o))
	if diff := cmp.Diff(before, snapshotAll(o.Inv)); diff != "" {
		t.Fatalf("inventory after restore (-want +got):\n%s", diff)
	}
	assert.Empty(t, sessionKeys(o))
	assert.False(t, Pending(o))

	require.Len(t, rec.got, 2)
	assert.Equal(t, EventApply, rec.got[0].Kind)
	assert.Equal(t, 1, rec.got[0].Chunks)
	assert.Equal(t, EventRestore, rec.got[1].Kind)
}

func TestApply_SecondCallKeepsOriginalBackup(t *testing.T) {
	m := newMirror(tuning.Defaults().Backup)
	o := player(t)
	before := snapshotAll(o.Inv)

	require.NoError(t, m.Apply(o, []Request{m.PrimaryRequest(sandbox.NewItem("minecraft:apple", 1))}))
	require.NoError(t, m.Apply(o, []Request{
		m.PrimaryRequest(sandbox.NewItem("minecraft:carrot", 1)),
		{Slot: 20, Item: sandbox.NewItem("minecraft:stick", 1)},
	}))
	assert.Equal(t, "minecraft:carrot", o.Inv.Peek(17).TypeID())
	assert.Len(t, Tracked(o.Props), 10)

	require.NoError(t, m.Restore(o))
	if diff := cmp.Diff(before, snapshotAll(o.Inv)); diff != "" {
		t.Fatalf("inventory after restore (-want +got):\n%s", diff)
	}
}

func TestApply_OverflowLeavesInventoryUntouched(t *testing.T) {
	rec := &events{}
	m := newMirror(tuning.BackupLimits{EntryLimit: 64, ChunkSize: 16, MaxChunks: 1}, WithRecorder(rec))
	o := player(t)
	before := snapshotAll(o.Inv)

	err := m.Apply(o, []Request{m.PrimaryRequest(sandbox.NewItem("minecraft:apple", 1))})
	require.ErrorIs(t, err, ErrBackupTooLarge)
	require.ErrorIs(t, err, encoding.ErrTooManyChunks)

	if diff := cmp.Diff(before, snapshotAll(o.Inv)); diff != "" {
		t.Fatalf("inventory changed by failed apply (-want +got):\n%s", diff)
	}
	assert.Zero(t, o.Inv.Writes)
	assert.Empty(t, sessionKeys(o))
	require.Len(t, rec.got, 1)
	assert.Equal(t, EventRollback, rec.got[0].Kind)
}

func TestApply_OverflowRevertsEarlierBorrows(t *testing.T) {
	big := newMirror(tuning.Defaults().Backup)
	small := newMirror(tuning.BackupLimits{EntryLimit: 64, ChunkSize: 16, MaxChunks: 1})
	o := player(t)
	before := snapshotAll(o.Inv)

	require.NoError(t, big.Apply(o, []Request{big.PrimaryRequest(sandbox.NewItem("minecraft:apple", 1))}))
	preview := small.PreviewRequests(map[int]host.Item{2: sandbox.NewItem("minecraft:stick", 1)})
	err := small.Apply(o, preview)
	require.ErrorIs(t, err, ErrBackupTooLarge)

	if diff := cmp.Diff(before, snapshotAll(o.Inv)); diff != "" {
		t.Fatalf("inventory after rollback (-want +got):\n%s", diff)
	}
	assert.Empty(t, sessionKeys(o))
	require.NoError(t, big.Restore(o), "nothing left to restore")
}

func TestApply_PersistFailureRollsBack(t *testing.T) {
	m := newMirror(tuning.Defaults().Backup)
	o := player(t)
	before := snapshotAll(o.Inv)
	boom := errors.New("disk full")
	o.Props.(*kvstore.Memory).FailSet = func(key string) error {
		if key == KeySlots {
			return boom
		}
		return nil
	}

	err := m.Apply(o, []Request{m.PrimaryRequest(sandbox.NewItem("minecraft:apple", 1))})
	require.ErrorIs(t, err, boom)
	assert.NotErrorIs(t, err, ErrBackupTooLarge)
	if diff := cmp.Diff(before, snapshotAll(o.Inv)); diff != "" {
		t.Fatalf("inventory changed (-want +got):\n%s", diff)
	}
	assert.Empty(t, sessionKeys(o))
}

func TestApply_InventoryUnavailable(t *testing.T) {
	m := newMirror(tuning.Defaults().Backup)
	o := player(t)
	o.InventoryErr = host.ErrInvalid
	require.ErrorIs(t, m.Apply(o, nil), host.ErrInvalid)
	assert.Empty(t, sessionKeys(o))
}

func TestRestore_NoSessionIsNoop(t *testing.T) {
	m := newMirror(tuning.Defaults().Backup)
	o := player(t)
	store := o.Props.(*kvstore.Memory)
	before := snapshotAll(o.Inv)

	require.NoError(t, m.Restore(o))
	require.NoError(t, m.Restore(o))
	assert.Zero(t, store.Sets)
	assert.Zero(t, o.Inv.Writes)
	assert.Empty(t, cmp.Diff(before, snapshotAll(o.Inv)))
}

func TestRestore_BestEffortFields(t *testing.T) {
	m := newMirror(tuning.Defaults().Backup)
	o := sandbox.NewObserver("alex")
	dmg := 5
	backups := encoding.Backups{
		3: {
			TypeID:       "minecraft:dirt",
			Amount:       7,
			Lore:         []string{"from spawn"},
			Enchantments: []encoding.Enchantment{{ID: "sharpness", Level: 1}},
			Damage:       &dmg,
			Properties:   map[string]encoding.Property{"bad": {Kind: "?"}},
		},
		4: {Empty: true},
	}
	chunks, err := encoding.EncodeBackups(backups, 32000, 8)
	require.NoError(t, err)
	require.NoError(t, saveChunks(o.Props, chunks))
	require.NoError(t, saveTracked(o.Props, []int{3, 4, 5}))
	o.Inv.Put(3, sandbox.NewItem("minecraft:apple", 1))
	o.Inv.Put(4, sandbox.NewItem("minecraft:apple", 1))
	o.Inv.Put(5, sandbox.NewItem("minecraft:apple", 1))

	require.NoError(t, m.Restore(o))
	dirt := o.Inv.Peek(3)
	require.NotNil(t, dirt)
	assert.Equal(t, "minecraft:dirt", dirt.TypeID())
	assert.Equal(t, 7, dirt.Amount())
	assert.Equal(t, []string{"from spawn"}, dirt.Lore())
	assert.Nil(t, o.Inv.Peek(4), "empty marker clears")
	assert.Nil(t, o.Inv.Peek(5), "missing record clears")
	assert.Empty(t, sessionKeys(o))
}

func TestRebuild_ReportsSkippedFields(t *testing.T) {
	m := newMirror(tuning.Defaults().Backup)
	dmg := 5
	var skipped []string
	it := m.Rebuild(encoding.Backup{
		TypeID:       "minecraft:dirt",
		Amount:       2,
		Enchantments: []encoding.Enchantment{{ID: "sharpness", Level: 1}},
		Damage:       &dmg,
	}, func(field string, err error) { skipped = append(skipped, field) })
	require.NotNil(t, it)
	assert.Equal(t, 2, it.Amount())
	assert.Equal(t, []string{"enchantment:sharpness", "damage"}, skipped)

	skipped = nil
	it = m.Rebuild(encoding.Backup{TypeID: "minecraft:dirt", Amount: 900}, func(field string, err error) { skipped = append(skipped, field) })
	assert.Nil(t, it)
	assert.Equal(t, []string{"type"}, skipped)
}

func TestRestore_UnreadablePayloadClearsIcons(t *testing.T) {
	m := newMirror(tuning.Defaults().Backup)
	o := sandbox.NewObserver("alex")
	require.NoError(t, saveChunks(o.Props, []string{"%%%not-base64"}))
	require.NoError(t, saveTracked(o.Props, []int{17}))
	o.Inv.Put(17, sandbox.NewItem("minecraft:apple", 1))

	require.NoError(t, m.Restore(o))
	assert.Nil(t, o.Inv.Peek(17))
	assert.Empty(t, sessionKeys(o))
}

func TestSaveChunks_DropsStaleChunks(t *testing.T) {
	store := kvstore.NewMemory(0)
	require.NoError(t, saveChunks(store, []string{"a", "b", "c"}))
	require.NoError(t, saveChunks(store, []string{"d"}))
	assert.Equal(t, []string{ChunkKey(0), KeyChunkCount}, store.Keys())
}

func TestSaveChunks_FailureLeavesNoOrphans(t *testing.T) {
	boom := errors.New("disk full")
	cases := []struct {
		name string
		fail string
	}{
		{"chunk write", ChunkKey(2)},
		{"count write", KeyChunkCount},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			store := kvstore.NewMemory(0)
			require.NoError(t, saveChunks(store, []string{"a"}))
			store.FailSet = func(key string) error {
				if key == tc.fail {
					return boom
				}
				return nil
			}
			require.ErrorIs(t, saveChunks(store, []string{"b", "c", "d"}), boom)
			store.FailSet = nil
			require.NoError(t, clearSession(store))
			assert.Empty(t, store.Keys())
		})
	}
}

func TestPreviewRequests_ClampsToWindow(t *testing.T) {
	m := newMirror(tuning.Defaults().Backup)
	a := sandbox.NewItem("minecraft:apple", 1)
	reqs := m.PreviewRequests(map[int]host.Item{40: a, 0: a, 3: a, -1: a})
	slots := make([]int, len(reqs))
	for i, r := range reqs {
		slots[i] = r.Slot
	}
	assert.Equal(t, []int{18, 21, 35}, slots)
	assert.Equal(t, 18, m.PreviewCapacity())
	assert.Equal(t, 17, m.PrimaryRequest(a).Slot)
}

func TestBlockToItem(t *testing.T) {
	assert.Equal(t, "minecraft:water_bucket", BlockToItem("minecraft:flowing_water"))
	assert.Equal(t, "minecraft:lava_bucket", BlockToItem("lava"))
	assert.Equal(t, "minecraft:stone", BlockToItem("minecraft:stone"))
	assert.Equal(t, "mod:water", BlockToItem("mod:water"))
}
