package look

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"voxelhud.ai/internal/sim/catalogs"
	"voxelhud.ai/internal/sim/host"
	"voxelhud.ai/internal/sim/mirror"
	"voxelhud.ai/internal/sim/rules"
	"voxelhud.ai/internal/sim/settings"
	"voxelhud.ai/internal/sim/tags"
)

// SignatureSep joins signature fields; it cannot appear in identifiers or rendered glyphs.
const SignatureSep = "\x1f"

type EntityPayload struct {
	Interactions string
	HealthBar    string
	HealthText   string
	ArmorBar     string
	Effects      string
}

type TilePayload struct {
	Tools string
	// States is the extended block-state text, empty unless the states gate is open.
	States string
	// Preview lists "<slot>:<item>:<amount>" for mirrored container slots.
	Preview []string
}

// Metadata is everything the overlay shows for one observation. It is built once per
// distinct signature and not modified afterwards.
type Metadata struct {
	Kind      Kind
	ID        string
	Namespace string
	// NameKey is a translation key, or literal text when NameIsLiteral.
	NameKey       string
	NameIsLiteral bool
	// Parenthetical is the species key shown next to a custom name.
	Parenthetical string
	// ContextItem is an item id shown alongside the target: the stack of an item entity or the
	// item in a frame.
	ContextItem string
	Sneaking    bool

	Entity EntityPayload
	Tile   TilePayload
}

// Context carries everything Assess computed over to Finalize.
type Context struct {
	Target   Target
	Settings settings.Settings
	Sneaking bool
	Held     tags.Held

	meta    Metadata
	states  map[string]any
	preview map[int]host.Item
}

type Assessment struct {
	HasTarget bool
	Signature string
	Context   *Context
}

type Finalized struct {
	Metadata       Metadata
	IconRequests   []mirror.Request
	ExtendedActive bool
}

type Pipeline struct {
	cats     *catalogs.Registry
	blocks   *tags.BlockHandler
	entities *tags.EntityHandler
	mirror   *mirror.Mirror
	factory  host.ItemFactory
	log      *zap.Logger
}

func NewPipeline(cats *catalogs.Registry, blocks *tags.BlockHandler, entities *tags.EntityHandler, m *mirror.Mirror, factory host.ItemFactory, logger *zap.Logger) *Pipeline {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Pipeline{cats: cats, blocks: blocks, entities: entities, mirror: m, factory: factory, log: logger.Named("look")}
}

// Assess builds the render context of t and its signature. It runs every pulse, so it
// never constructs items.
func (p *Pipeline) Assess(o host.Observer, t Target, set settings.Settings) Assessment {
	if !t.Present() {
		return Assessment{}
	}
	held, err := o.MainHand()
	if err != nil {
		held = nil
	}
	c := &Context{
		Target:   t,
		Settings: set,
		Sneaking: o.Sneaking(),
		Held:     tags.HeldFrom(held),
	}
	c.meta = Metadata{
		Kind:      t.Kind,
		ID:        t.ID,
		Namespace: namespaceOf(t.ID),
		Sneaking:  c.Sneaking,
	}

	switch t.Kind {
	case KindEntity:
		p.assessEntity(c)
	case KindTile:
		p.assessTile(c)
	default:
		return Assessment{}
	}
	return Assessment{HasTarget: true, Signature: Signature(c), Context: c}
}

func (p *Pipeline) assessEntity(c *Context) {
	t := c.Target
	e := t.Entity
	m := &c.meta
	aliases := p.cats.Current().Aliases

	switch {
	case e.NameTag() != "":
		m.NameKey, m.NameIsLiteral = e.NameTag(), true
		m.Parenthetical = entityKey(aliases, t.ID)
	case t.ID == PlayerType:
		m.NameKey, m.NameIsLiteral = e.Name(), true
	case t.ID == ItemType && t.Carried != nil:
		m.ContextItem = t.Carried.TypeID()
		m.NameKey = itemKey(m.ContextItem)
	default:
		m.NameKey = entityKey(aliases, t.ID)
	}

	bar, text := p.entities.Health(e, t.Health, t.ID == PlayerType)
	m.Entity = EntityPayload{
		Interactions: p.entities.InteractionIconString(e, c.Held),
		HealthBar:    bar,
		HealthText:   text,
		ArmorBar:     p.entities.Armor(e),
		Effects:      p.entities.Effects(e, t.Effects),
	}
}

func (p *Pipeline) assessTile(c *Context) {
	t := c.Target
	b := t.Block
	m := &c.meta

	m.NameKey = blockKey(p.cats.Current().Aliases, t.ID)
	m.Tile.Tools = p.blocks.ToolIconString(t.ID, b.Tags(), c.Held)

	if states, err := b.States(); err == nil {
		c.states = states
	}
	if StatesActive(c.Sneaking, c.Settings, c.states) {
		m.Tile.States = statesText(c.states)
	}
	if framed, err := b.FramedItem(); err == nil && framed != nil {
		m.ContextItem = framed.TypeID()
	}
	if c.Settings.Preview {
		c.preview = p.preview(b)
		m.Tile.Preview = previewText(c.preview)
	}
}

// StatesActive is the extended block-state gate. Assess and Finalize both go through it so
// the signature and the rendered text cannot disagree.
func StatesActive(sneaking bool, set settings.Settings, states map[string]any) bool {
	return sneaking && set.BlockStates && len(states) > 0
}

// preview reads the block's container, keeping at most one preview window of items.
func (p *Pipeline) preview(b host.Block) map[int]host.Item {
	inv, err := b.Container()
	if err != nil || inv == nil {
		return nil
	}
	limit := inv.Size()
	if p.mirror != nil && p.mirror.PreviewCapacity() < limit {
		limit = p.mirror.PreviewCapacity()
	}
	out := map[int]host.Item{}
	for i := 0; i < limit; i++ {
		it, err := inv.Item(i)
		if err != nil || it == nil {
			continue
		}
		out[i] = it
	}
	return out
}

// Finalize turns an assessment into metadata and icon requests. It runs only when the
// signature changed.
func (p *Pipeline) Finalize(c *Context) Finalized {
	f := Finalized{Metadata: c.meta}
	switch c.Target.Kind {
	case KindEntity:
		f.IconRequests = p.entityIcons(c)
	case KindTile:
		f.ExtendedActive = StatesActive(c.Sneaking, c.Settings, c.states)
		f.IconRequests = p.tileIcons(c)
	}
	if !c.Settings.Icons {
		f.IconRequests = nil
	}
	f.Metadata.Tile.Preview = append([]string(nil), c.meta.Tile.Preview...)
	return f
}

func (p *Pipeline) entityIcons(c *Context) []mirror.Request {
	t := c.Target
	switch {
	case t.ID == ItemType && t.Carried != nil:
		return []mirror.Request{p.mirror.PrimaryRequest(t.Carried)}
	case t.ID == PlayerType:
		return nil
	}
	egg := spawnEgg(t.ID)
	it, err := p.factory.NewItem(egg, 1)
	if err != nil {
		p.log.Debug("no icon item", zap.String("item", egg), zap.Error(err))
		return nil
	}
	return []mirror.Request{p.mirror.PrimaryRequest(it)}
}

func (p *Pipeline) tileIcons(c *Context) []mirror.Request {
	var out []mirror.Request
	it, err := p.factory.NewItem(c.Target.HitID, 1)
	if err != nil {
		p.log.Debug("no icon item", zap.String("item", c.Target.HitID), zap.Error(err))
	} else {
		out = append(out, p.mirror.PrimaryRequest(it))
	}
	if len(c.preview) > 0 {
		out = append(out, p.mirror.PreviewRequests(c.preview)...)
	}
	return out
}

// Signature serializes every field that affects what the overlay shows, in a fixed order.
func Signature(c *Context) string {
	m := c.meta
	var icon string
	var extra []string
	switch m.Kind {
	case KindEntity:
		icon = m.Entity.Interactions
		extra = []string{m.Entity.HealthBar, m.Entity.HealthText, m.Entity.ArmorBar, m.Entity.Effects}
	case KindTile:
		icon = m.Tile.Tools
		extra = []string{m.Tile.States, strings.Join(m.Tile.Preview, ",")}
	}
	fields := []string{m.Kind.String(), m.ID, strconv.FormatBool(m.Sneaking), icon}
	fields = append(fields, extra...)
	fields = append(fields,
		m.ContextItem,
		m.NameKey,
		strconv.FormatBool(m.NameIsLiteral),
		m.Parenthetical,
		flags(c.Settings),
	)
	return strings.Join(fields, SignatureSep)
}

func flags(s settings.Settings) string {
	b := []byte("------")
	for i, on := range []bool{s.Enabled, s.BlockStates, s.Liquids, s.Passable, s.Preview, s.Icons} {
		if on {
			b[i] = '+'
		}
	}
	return string(b)
}

func statesText(states map[string]any) string {
	keys := make([]string, 0, len(states))
	for k := range states {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	lines := make([]string, len(keys))
	for i, k := range keys {
		lines[i] = fmt.Sprintf("%s: %v", k, states[k])
	}
	return strings.Join(lines, "\n")
}

func previewText(items map[int]host.Item) []string {
	if len(items) == 0 {
		return nil
	}
	idx := make([]int, 0, len(items))
	for i := range items {
		idx = append(idx, i)
	}
	sort.Ints(idx)
	out := make([]string, len(idx))
	for n, i := range idx {
		out[n] = fmt.Sprintf("%d:%s:%d", i, items[i].TypeID(), items[i].Amount())
	}
	return out
}

func namespaceOf(id string) string {
	if ns := rules.Namespace(id); ns != "" {
		return ns
	}
	return "minecraft"
}

// translationKey follows the engine's convention: vanilla ids drop the namespace.
func translationKey(kind, id string) string {
	if namespaceOf(id) == "minecraft" {
		return kind + "." + rules.Name(id) + ".name"
	}
	return kind + "." + id + ".name"
}

func entityKey(a catalogs.AliasCatalog, id string) string {
	if k, ok := a.Entities[id]; ok {
		return k
	}
	return translationKey("entity", id)
}

func blockKey(a catalogs.AliasCatalog, id string) string {
	if k, ok := a.Blocks[id]; ok {
		return k
	}
	return translationKey("tile", id)
}

func itemKey(id string) string { return translationKey("item", id) }

func spawnEgg(id string) string {
	return namespaceOf(id) + ":" + rules.Name(id) + "_spawn_egg"
}
