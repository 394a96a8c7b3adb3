package tags

import (
	"go.uber.org/zap"

	"voxelhud.ai/internal/sim/catalogs"
	"voxelhud.ai/internal/sim/host"
	"voxelhud.ai/internal/sim/rules"
)

// InanimateFamily marks entities whose health is shown as numbers.
const InanimateFamily = "inanimate"

type EntityOptions struct {
	EffectTicksPerSecond int
	MaxResolvedEffects   int
}

// EntityHandler resolves interaction icons and renders health, armor and effect bars.
type EntityHandler struct {
	cats *catalogs.Registry
	opts EntityOptions
	log  *zap.Logger
}

func NewEntityHandler(cats *catalogs.Registry, opts EntityOptions, logger *zap.Logger) *EntityHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &EntityHandler{cats: cats, opts: opts, log: logger}
}

// Resolve merges catalog interactions with component probes. Catalog entries come first;
// a present probe may suppress a generic catalog entry (a baby is not rideable).
func (h *EntityHandler) Resolve(e host.Entity, held Held) []Resolved {
	cat := h.cats.Current().EntityTags
	families, err := e.Families()
	if err != nil {
		families = nil
	}
	candidates := matchDefs(cat.Interactions, e.TypeID(), families, held)

	skip := map[string]bool{}
	for _, p := range cat.Probes {
		ok, err := e.HasComponent(p.Component)
		if err != nil || !ok {
			continue
		}
		candidates = append(candidates, Resolved{ID: p.ID, Icon: p.Icon, Remark: RemarkUndefined})
		for _, s := range p.Suppress {
			skip[s] = true
		}
	}
	return pick(candidates, skip)
}

func (h *EntityHandler) InteractionIconString(e host.Entity, held Held) string {
	return IconString(h.Resolve(e, held))
}

// Health renders the entity's health bar. text is set only for numeric display.
func (h *EntityHandler) Health(e host.Entity, snap *host.Health, player bool) (bar, text string) {
	hp := snap
	if hp == nil {
		v, err := e.Health()
		if err != nil {
			return HealthUnknown(), ""
		}
		hp = &v
	}
	families, _ := e.Families()
	for _, f := range families {
		if rules.Matches(f, InanimateFamily) {
			return NumericHealth(hp.Current, hp.Max)
		}
	}
	return HealthBar(hp.Current, hp.Max, player)
}

func (h *EntityHandler) Armor(e host.Entity) string {
	armor := h.cats.Current().Armor
	tables := map[host.EquipmentSlot]map[string]int{
		host.SlotHead:  armor.Head,
		host.SlotChest: armor.Chest,
		host.SlotLegs:  armor.Legs,
		host.SlotFeet:  armor.Feet,
	}
	points := 0
	for _, slot := range host.ArmorSlots {
		it, err := e.Equipment(slot)
		if err != nil || it == nil {
			continue
		}
		points += tables[slot][it.TypeID()]
	}
	return ArmorBar(points)
}

// Effects renders the effect string from a snapshot, or from the entity when snap is nil.
func (h *EntityHandler) Effects(e host.Entity, snap []host.Effect) string {
	active := snap
	if active == nil {
		v, err := e.Effects()
		if err != nil {
			h.log.Debug("effects unavailable", zap.String("entity", e.TypeID()), zap.Error(err))
		}
		active = v
	}
	return EffectString(h.cats.Current().Effects.IDs, active, h.opts.EffectTicksPerSecond, h.opts.MaxResolvedEffects)
}
