// Package tags resolves capability icons for looked-at blocks and entities and renders the
// fixed-width bars (health, armor, effects) the overlay font expects.
package tags

import (
	"strings"

	"voxelhud.ai/internal/sim/catalogs"
	"voxelhud.ai/internal/sim/host"
	"voxelhud.ai/internal/sim/rules"
)

const (
	IconUndefined   = "zz"
	RemarkUndefined = "z"
	SlotUndefined   = IconUndefined + RemarkUndefined
	// Slots is how many capability icons fit on the overlay.
	Slots = 2
)

// Resolved is one selected capability with the remark earned by the held item.
type Resolved struct {
	ID     string
	Icon   string
	Remark string
}

// Held is the observer's main-hand item as seen by remark rules.
type Held struct {
	ID   string
	Tags []string
}

func HeldFrom(it host.Item) Held {
	if it == nil {
		return Held{}
	}
	return Held{ID: it.TypeID(), Tags: it.Tags()}
}

// IconString renders exactly Slots icon+remark pairs, padding with SlotUndefined.
func IconString(res []Resolved) string {
	var b strings.Builder
	for i := 0; i < Slots; i++ {
		if i < len(res) {
			b.WriteString(res[i].Icon)
			b.WriteString(res[i].Remark)
			continue
		}
		b.WriteString(SlotUndefined)
	}
	return b.String()
}

// matchDefs returns every definition matching id/tags in catalog order.
func matchDefs(defs []catalogs.TagDef, id string, tags []string, held Held) []Resolved {
	var out []Resolved
	for _, d := range defs {
		if !rules.TargetMatches(id, tags, d.Targets) {
			continue
		}
		out = append(out, Resolved{ID: d.ID, Icon: d.Icon, Remark: remark(d.Remarks, held)})
	}
	return out
}

// pick keeps the first Slots entries, skipping repeated ids and icons that share a first
// character with an already kept icon.
func pick(candidates []Resolved, skip map[string]bool) []Resolved {
	out := make([]Resolved, 0, Slots)
	ids := map[string]bool{}
	glyphs := map[byte]bool{}
	for _, c := range candidates {
		if len(out) == Slots {
			break
		}
		if skip[c.ID] || ids[c.ID] || c.Icon == "" || glyphs[c.Icon[0]] {
			continue
		}
		ids[c.ID] = true
		glyphs[c.Icon[0]] = true
		out = append(out, c)
	}
	return out
}

func remark(remarks []catalogs.RemarkDef, held Held) string {
	if held.ID == "" {
		return RemarkUndefined
	}
	for _, r := range remarks {
		if len(r.Items) > 0 && rules.ListMatches(held.ID, r.Items) {
			return r.Remark
		}
		if len(r.Tags) == 0 {
			continue
		}
		for _, t := range held.Tags {
			if rules.ListMatches(t, r.Tags) {
				return r.Remark
			}
		}
	}
	return RemarkUndefined
}
