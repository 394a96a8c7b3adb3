// Package mirror borrows slots of an observer's own inventory to show item icons, backing
// the displaced items up into the observer's property store and putting them back later.
//
// A borrow session starts with the first Apply and ends with Restore. Backups are persisted
// before any slot is overwritten, so a crash between Apply and Restore loses nothing: the next
// Restore (after a restart, or from the admin CLI) rebuilds the originals from the store.
package mirror

import (
	"errors"
	"sort"

	"go.uber.org/zap"

	"voxelhud.ai/internal/sim/host"
	"voxelhud.ai/internal/sim/rules"
	"voxelhud.ai/internal/sim/tuning"
)

// ErrBackupTooLarge is returned by Apply when the encoded backups do not fit the chunk
// ceiling. The session has been rolled back when it is returned.
var ErrBackupTooLarge = errors.New("mirror: backup exceeds chunk ceiling")

// BlankName is the name tag given to borrowed icons: a formatting reset, invisible in game
// but distinct from any real item name.
const BlankName = "§r"

// Request asks for Item to be displayed in Slot.
type Request struct {
	Slot int
	Item host.Item
}

// Event is one mirror operation, for the audit log.
type Event struct {
	Kind     string `json:"kind"`
	Observer string `json:"observer"`
	Slots    []int  `json:"slots,omitempty"`
	Chunks   int    `json:"chunks,omitempty"`
	Bytes    int    `json:"bytes,omitempty"`
	Error    string `json:"error,omitempty"`
}

const (
	EventApply    = "apply"
	EventRollback = "rollback"
	EventRestore  = "restore"
)

type Recorder interface {
	Record(Event)
}

type Mirror struct {
	slots   tuning.SlotLayout
	limits  tuning.BackupLimits
	factory host.ItemFactory
	rec     Recorder
	log     *zap.Logger
}

type Option func(*Mirror)

// WithRecorder sends every apply, rollback and restore to r.
func WithRecorder(r Recorder) Option { return func(m *Mirror) { m.rec = r } }

func New(slots tuning.SlotLayout, limits tuning.BackupLimits, factory host.ItemFactory, logger *zap.Logger, opts ...Option) *Mirror {
	if logger == nil {
		logger = zap.NewNop()
	}
	m := &Mirror{slots: slots, limits: limits, factory: factory, log: logger.Named("mirror")}
	for _, o := range opts {
		o(m)
	}
	return m
}

// PrimaryRequest shows it in the fixed primary slot.
func (m *Mirror) PrimaryRequest(it host.Item) Request {
	return Request{Slot: m.slots.Primary, Item: it}
}

// PreviewRequests maps container slot i to the i-th preview slot. Indices past the window
// collapse onto its last slot, so the last one written wins.
func (m *Mirror) PreviewRequests(items map[int]host.Item) []Request {
	idx := make([]int, 0, len(items))
	for i := range items {
		if i >= 0 {
			idx = append(idx, i)
		}
	}
	sort.Ints(idx)
	out := make([]Request, 0, len(idx))
	for _, i := range idx {
		slot := m.slots.PreviewFrom + i
		if slot > m.slots.PreviewTo {
			slot = m.slots.PreviewTo
		}
		out = append(out, Request{Slot: slot, Item: items[i]})
	}
	return out
}

// PreviewCapacity is how many container slots fit the preview window without collapsing.
func (m *Mirror) PreviewCapacity() int {
	return m.slots.PreviewTo - m.slots.PreviewFrom + 1
}

var blockItems = map[string]string{
	"water":                        "minecraft:water_bucket",
	"flowing_water":                "minecraft:water_bucket",
	"lava":                         "minecraft:lava_bucket",
	"flowing_lava":                 "minecraft:lava_bucket",
	"powder_snow":                  "minecraft:powder_snow_bucket",
	"bubble_column":                "minecraft:water_bucket",
	"bamboo_sapling":               "minecraft:bamboo",
	"cave_vines":                   "minecraft:glow_berries",
	"cave_vines_body_with_berries": "minecraft:glow_berries",
	"cave_vines_head_with_berries": "minecraft:glow_berries",
	"redstone_wire":                "minecraft:redstone",
	"tripwire":                     "minecraft:string",
	"fire":                         "minecraft:flint_and_steel",
	"soul_fire":                    "minecraft:flint_and_steel",
	"end_gateway":                  "minecraft:ender_eye",
	"end_portal":                   "minecraft:ender_eye",
	"portal":                       "minecraft:obsidian",
}

// BlockToItem returns the inventory form of a block. Fluids and column-like blocks have no
// item of their own; everything else is its own item.
func BlockToItem(blockID string) string {
	if rules.Namespace(blockID) == "minecraft" || rules.Namespace(blockID) == "" {
		if it, ok := blockItems[rules.Name(blockID)]; ok {
			return it
		}
	}
	return blockID
}

func (m *Mirror) record(e Event) {
	if m.rec != nil {
		m.rec.Record(e)
	}
}

// auxSlots lists the background slots blanked around the icons.
func (m *Mirror) auxSlots() []int {
	out := make([]int, 0, m.slots.AuxTo-m.slots.AuxFrom+1)
	for s := m.slots.AuxFrom; s <= m.slots.AuxTo; s++ {
		out = append(out, s)
	}
	return out
}
