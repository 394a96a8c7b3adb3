// Package ui turns look metadata into the title/subtitle payload the resource pack parses,
// and commits it to the display on the scheduler's next tick.
package ui

import (
	"strings"

	"voxelhud.ai/internal/sim/catalogs"
	"voxelhud.ai/internal/sim/host"
	"voxelhud.ai/internal/sim/look"
	"voxelhud.ai/internal/sim/tuning"
)

// Header layout: Prefix, a kind code, then fixed-width glyph fields. The pack slices the
// header by position, so every field has a constant width for a given kind.
const (
	Prefix     = "_hud"
	CodeEntity = "e"
	CodeTile   = "t"
)

type Builder struct {
	cats   *catalogs.Registry
	timing tuning.OverlayTiming
}

func NewBuilder(cats *catalogs.Registry, timing tuning.OverlayTiming) *Builder {
	return &Builder{cats: cats, timing: timing}
}

// Build renders meta. extended adds the block-state text to the subtitle.
func (b *Builder) Build(meta look.Metadata, extended bool) host.Overlay {
	o := host.Overlay{FadeIn: b.timing.FadeIn, Stay: b.timing.Stay, FadeOut: b.timing.FadeOut}

	var header strings.Builder
	header.WriteString(Prefix)
	switch meta.Kind {
	case look.KindEntity:
		header.WriteString(CodeEntity)
		header.WriteString(meta.Entity.Interactions)
		header.WriteString(meta.Entity.HealthBar)
		header.WriteString(meta.Entity.ArmorBar)
		header.WriteString(meta.Entity.Effects)
	case look.KindTile:
		header.WriteString(CodeTile)
		header.WriteString(meta.Tile.Tools)
	}
	o.Title = append(o.Title, host.TextNode{Text: header.String()})
	o.Title = append(o.Title, nameNode(meta.NameKey, meta.NameIsLiteral))
	if meta.Parenthetical != "" {
		o.Title = append(o.Title,
			host.TextNode{Text: " ("},
			host.TextNode{Translate: meta.Parenthetical},
			host.TextNode{Text: ")"},
		)
	}

	o.Subtitle = append(o.Subtitle, host.TextNode{Text: b.namespaceLabel(meta.Namespace)})
	if meta.Kind == look.KindEntity && meta.Entity.HealthText != "" {
		o.Subtitle = append(o.Subtitle, host.TextNode{Text: "\n" + meta.Entity.HealthText})
	}
	if meta.ContextItem != "" {
		o.Subtitle = append(o.Subtitle, host.TextNode{Text: "\n"}, host.TextNode{Translate: itemKey(meta.ContextItem)})
	}
	if extended && meta.Tile.States != "" {
		o.Subtitle = append(o.Subtitle, host.TextNode{Text: "\n" + meta.Tile.States})
	}
	return o
}

func nameNode(key string, literal bool) host.TextNode {
	if literal {
		return host.TextNode{Text: key}
	}
	return host.TextNode{Translate: key}
}

// namespaceLabel prefers the alias table's display name for the namespace.
func (b *Builder) namespaceLabel(ns string) string {
	if b.cats != nil {
		if label, ok := b.cats.Current().Aliases.Namespaces[ns]; ok {
			return label
		}
	}
	if ns == "" {
		return ""
	}
	return strings.ToUpper(ns[:1]) + ns[1:]
}

func itemKey(id string) string {
	ns, name, ok := strings.Cut(id, ":")
	if !ok || ns == "minecraft" {
		if !ok {
			name = id
		}
		return "item." + name + ".name"
	}
	return "item." + id + ".name"
}
