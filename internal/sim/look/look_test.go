package look

import (
	"testing"

	"github.com/go-gl/mathgl/mgl64"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"voxelhud.ai/internal/sim/catalogs"
	"voxelhud.ai/internal/sim/host"
	"voxelhud.ai/internal/sim/mirror"
	"voxelhud.ai/internal/sim/sandbox"
	"voxelhud.ai/internal/sim/settings"
	"voxelhud.ai/internal/sim/tags"
	"voxelhud.ai/internal/sim/tuning"
)

func newPipeline(t *testing.T) *Pipeline {
	t.Helper()
	c, err := catalogs.Load("../../../configs")
	require.NoError(t, err)
	reg := catalogs.NewRegistry(c)
	tune := tuning.Defaults()
	m := mirror.New(tune.Slots, tune.Backup, sandbox.Factory{}, nil)
	return NewPipeline(reg,
		tags.NewBlockHandler(reg),
		tags.NewEntityHandler(reg, tags.EntityOptions{EffectTicksPerSecond: tune.EffectTicksPerSecond, MaxResolvedEffects: tune.MaxResolvedEffects}, nil),
		m, sandbox.Factory{}, nil)
}

func defaults() settings.Settings { return settings.FromDefaults(tuning.Defaults().Settings) }

func observer() *sandbox.Observer {
	o := sandbox.NewObserver("steve")
	o.Pos = mgl64.Vec3{0.5, 64, 0.5}
	return o
}

func cow() *sandbox.Entity {
	return &sandbox.Entity{
		EntityID: "c1",
		Type:     "minecraft:cow",
		HP:       host.Health{Current: 10, Max: 10},
		Pos:      mgl64.Vec3{0.5, 64, 3.5},
	}
}

func chest() *sandbox.Block {
	inv := sandbox.NewContainer(27)
	inv.Put(0, sandbox.NewItem("minecraft:apple", 5))
	inv.Put(4, sandbox.NewItem("minecraft:bread", 2))
	return &sandbox.Block{
		Type:      "minecraft:chest",
		TagList:   []string{"wood"},
		StateMap:  map[string]any{"facing": "north", "open": false},
		Inventory: inv,
		Pos:       [3]int{0, 65, 3},
	}
}

func TestScanner_EntityBeforeBlock(t *testing.T) {
	w := sandbox.NewWorld(-64, 320)
	w.Spawn(cow())
	w.PlaceBlock(&sandbox.Block{Type: "minecraft:stone", Pos: [3]int{0, 65, 5}})
	s := NewScanner(w, 7.5, nil)

	got := s.Scan(observer(), defaults())
	require.Equal(t, KindEntity, got.Kind)
	assert.Equal(t, "minecraft:cow", got.ID)
	require.NotNil(t, got.Health)
	assert.Equal(t, 10.0, got.Health.Max)
	assert.NotNil(t, got.Effects, "empty effect snapshot, not unknown")

	w.Despawn("c1")
	got = s.Scan(observer(), defaults())
	assert.Equal(t, KindTile, got.Kind)
	assert.Equal(t, "minecraft:stone", got.HitID)
}

func TestScanner_NothingAndOutOfBounds(t *testing.T) {
	s := NewScanner(sandbox.NewWorld(-64, 320), 7.5, nil)
	got := s.Scan(observer(), defaults())
	assert.Equal(t, None(), got)
	assert.Equal(t, NoTargetID, got.ID)

	s = NewScanner(sandbox.NewWorld(0, 10), 7.5, nil)
	assert.False(t, s.Scan(observer(), defaults()).Present())
}

func TestScanner_LiquidHitID(t *testing.T) {
	w := sandbox.NewWorld(-64, 320)
	w.PlaceBlock(&sandbox.Block{Type: "minecraft:water", Pos: [3]int{0, 65, 2}, IsLiquid: true})
	s := NewScanner(w, 7.5, nil)

	assert.False(t, s.Scan(observer(), defaults()).Present())
	set := defaults()
	set.Liquids = true
	got := s.Scan(observer(), set)
	assert.Equal(t, "minecraft:water", got.ID)
	assert.Equal(t, "minecraft:water_bucket", got.HitID)
}

func TestScanner_ItemEntityCarries(t *testing.T) {
	w := sandbox.NewWorld(-64, 320)
	w.Spawn(&sandbox.Entity{Type: ItemType, Pos: mgl64.Vec3{0.5, 65.3, 2.5}, Carried: sandbox.NewItem("minecraft:emerald", 3)})
	got := NewScanner(w, 7.5, nil).Scan(observer(), defaults())
	require.NotNil(t, got.Carried)
	assert.Equal(t, "minecraft:emerald", got.Carried.TypeID())
}

func TestAssess_NoTarget(t *testing.T) {
	p := newPipeline(t)
	assert.False(t, p.Assess(observer(), None(), defaults()).HasTarget)
	assert.False(t, p.Assess(observer(), Target{Kind: KindTile, ID: NoTargetID}, defaults()).HasTarget)
	assert.False(t, p.Assess(observer(), Target{Kind: KindNone, ID: "minecraft:stone"}, defaults()).HasTarget)
}

func sandboxEntityTarget(e *sandbox.Entity) Target {
	return Target{Kind: KindEntity, ID: e.Type, Entity: e}
}

func tileTarget(b *sandbox.Block) Target {
	return Target{Kind: KindTile, ID: b.Type, Block: b, HitID: mirror.BlockToItem(b.Type)}
}

func TestSignature_StableForEqualObservations(t *testing.T) {
	p := newPipeline(t)
	o := observer()
	a := p.Assess(o, sandboxEntityTarget(cow()), defaults())
	b := p.Assess(o, sandboxEntityTarget(cow()), defaults())
	require.True(t, a.HasTarget)
	assert.Equal(t, a.Signature, b.Signature)

	ta := p.Assess(o, tileTarget(chest()), defaults())
	tb := p.Assess(o, tileTarget(chest()), defaults())
	assert.Equal(t, ta.Signature, tb.Signature)
}

func TestSignature_ChangesWithEachRenderField(t *testing.T) {
	p := newPipeline(t)
	base := p.Assess(observer(), sandboxEntityTarget(cow()), defaults()).Signature

	mutations := map[string]func(o *sandbox.Observer, e *sandbox.Entity, s *settings.Settings){
		"sneaking":  func(o *sandbox.Observer, _ *sandbox.Entity, _ *settings.Settings) { o.Sneak = true },
		"held item": func(o *sandbox.Observer, _ *sandbox.Entity, _ *settings.Settings) { o.Held = sandbox.NewItem("minecraft:wheat", 1) },
		"health":    func(_ *sandbox.Observer, e *sandbox.Entity, _ *settings.Settings) { e.HP.Current = 9 },
		"name tag":  func(_ *sandbox.Observer, e *sandbox.Entity, _ *settings.Settings) { e.Tag = "Bessie" },
		"effects": func(_ *sandbox.Observer, e *sandbox.Entity, _ *settings.Settings) {
			e.Active = []host.Effect{{TypeID: "speed", Duration: 600}}
		},
		"armor": func(_ *sandbox.Observer, e *sandbox.Entity, _ *settings.Settings) {
			e.Armor = map[host.EquipmentSlot]host.Item{host.SlotHead: sandbox.NewItem("minecraft:iron_helmet", 1)}
		},
		"settings": func(_ *sandbox.Observer, _ *sandbox.Entity, s *settings.Settings) { s.Icons = false },
	}
	for name, mutate := range mutations {
		t.Run(name, func(t *testing.T) {
			o, e, s := observer(), cow(), defaults()
			mutate(o, e, &s)
			got := p.Assess(o, sandboxEntityTarget(e), s).Signature
			assert.NotEqual(t, base, got)
		})
	}
}

func TestSignature_TileStatesGate(t *testing.T) {
	p := newPipeline(t)
	o := observer()
	set := defaults()

	standing := p.Assess(o, tileTarget(chest()), set)
	o.Sneak = true
	sneaking := p.Assess(o, tileTarget(chest()), set)
	assert.NotEqual(t, standing.Signature, sneaking.Signature)
	assert.Contains(t, sneaking.Signature, "facing: north")
	assert.NotContains(t, standing.Signature, "facing: north")

	f := p.Finalize(sneaking.Context)
	assert.True(t, f.ExtendedActive)
	assert.Equal(t, "facing: north\nopen: false", f.Metadata.Tile.States)

	set.BlockStates = false
	off := p.Assess(o, tileTarget(chest()), set)
	assert.NotContains(t, off.Signature, "facing: north")
	assert.False(t, p.Finalize(off.Context).ExtendedActive)

	b := chest()
	b.StateMap = nil
	assert.False(t, p.Finalize(p.Assess(o, tileTarget(b), defaults()).Context).ExtendedActive)

	b = chest()
	b.Inventory.Put(1, sandbox.NewItem("minecraft:stick", 1))
	assert.NotEqual(t, sneaking.Signature, p.Assess(o, tileTarget(b), defaults()).Signature, "preview contents")
}

func TestAssess_EntityNames(t *testing.T) {
	p := newPipeline(t)
	o := observer()

	e := cow()
	e.Tag = "Bessie"
	m := p.Finalize(p.Assess(o, sandboxEntityTarget(e), defaults()).Context).Metadata
	assert.Equal(t, "Bessie", m.NameKey)
	assert.True(t, m.NameIsLiteral)
	assert.Equal(t, "entity.cow.name", m.Parenthetical)
	assert.Equal(t, "minecraft", m.Namespace)

	pl := &sandbox.Entity{Type: PlayerType, InWorld: "alex", HP: host.Health{Current: 20, Max: 20}}
	m = p.Finalize(p.Assess(o, sandboxEntityTarget(pl), defaults()).Context).Metadata
	assert.Equal(t, "alex", m.NameKey)
	assert.Equal(t, "aaaaaaaaaayyyyyyyyyy", m.Entity.HealthBar)

	v := &sandbox.Entity{Type: "minecraft:villager_v2"}
	m = p.Finalize(p.Assess(o, sandboxEntityTarget(v), defaults()).Context).Metadata
	assert.Equal(t, "entity.villager.name", m.NameKey)

	mod := &sandbox.Entity{Type: "mod:wyvern"}
	m = p.Finalize(p.Assess(o, sandboxEntityTarget(mod), defaults()).Context).Metadata
	assert.Equal(t, "entity.mod:wyvern.name", m.NameKey)
	assert.Equal(t, "mod", m.Namespace)

	drop := &sandbox.Entity{Type: ItemType, Carried: sandbox.NewItem("minecraft:emerald", 3)}
	tgt := sandboxEntityTarget(drop)
	tgt.Carried = drop.Carried
	f := p.Finalize(p.Assess(o, tgt, defaults()).Context)
	assert.Equal(t, "minecraft:emerald", f.Metadata.ContextItem)
	assert.Equal(t, "item.emerald.name", f.Metadata.NameKey)
	require.Len(t, f.IconRequests, 1)
	assert.Equal(t, "minecraft:emerald", f.IconRequests[0].Item.TypeID())
}

func TestFinalize_IconRequests(t *testing.T) {
	p := newPipeline(t)
	o := observer()

	f := p.Finalize(p.Assess(o, sandboxEntityTarget(cow()), defaults()).Context)
	require.Len(t, f.IconRequests, 1)
	assert.Equal(t, 17, f.IconRequests[0].Slot)
	assert.Equal(t, "minecraft:cow_spawn_egg", f.IconRequests[0].Item.TypeID())

	f = p.Finalize(p.Assess(o, tileTarget(chest()), defaults()).Context)
	require.Len(t, f.IconRequests, 3)
	assert.Equal(t, "minecraft:chest", f.IconRequests[0].Item.TypeID())
	assert.Equal(t, 18, f.IconRequests[1].Slot)
	assert.Equal(t, 22, f.IconRequests[2].Slot)
	assert.Equal(t, []string{"0:minecraft:apple:5", "4:minecraft:bread:2"}, f.Metadata.Tile.Preview)
	assert.Equal(t, "tile.chest.name", f.Metadata.NameKey)
	assert.Equal(t, "a1zzzz", f.Metadata.Tile.Tools)

	set := defaults()
	set.Icons = false
	assert.Empty(t, p.Finalize(p.Assess(o, tileTarget(chest()), set).Context).IconRequests)

	set = defaults()
	set.Preview = false
	f = p.Finalize(p.Assess(o, tileTarget(chest()), set).Context)
	assert.Len(t, f.IconRequests, 1)
	assert.Empty(t, f.Metadata.Tile.Preview)
}

func TestAssess_FramedItemAndFailingBlock(t *testing.T) {
	p := newPipeline(t)
	frame := &sandbox.Block{Type: "minecraft:frame", Framed: sandbox.NewItem("minecraft:map", 1), StatesErr: host.ErrInvalid, ContainerErr: host.ErrInvalid}
	o := observer()
	o.Sneak = true
	a := p.Assess(o, tileTarget(frame), defaults())
	require.True(t, a.HasTarget)
	f := p.Finalize(a.Context)
	assert.Equal(t, "minecraft:map", f.Metadata.ContextItem)
	assert.False(t, f.ExtendedActive)
	assert.Empty(t, f.Metadata.Tile.Preview)
}
