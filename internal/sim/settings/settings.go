// Package settings reads an observer's HUD preferences from its property store. The menu that
// writes them lives outside this module; missing or mistyped keys fall back to the defaults.
package settings

import (
	"voxelhud.ai/internal/sim/host"
	"voxelhud.ai/internal/sim/tuning"
)

const prefix = "settings:"

const (
	KeyEnabled     = prefix + "enabled"
	KeyBlockStates = prefix + "block_states"
	KeyLiquids     = prefix + "liquids"
	KeyPassable    = prefix + "passable"
	KeyPreview     = prefix + "preview"
	KeyIcons       = prefix + "icons"
)

type Settings struct {
	Enabled bool
	// BlockStates shows extended block states while sneaking.
	BlockStates bool
	Liquids     bool
	Passable    bool
	// Preview mirrors block inventories into the observer's preview slots.
	Preview bool
	Icons   bool
}

func FromDefaults(d tuning.SettingsDefaults) Settings {
	return Settings{
		Enabled:     d.Enabled,
		BlockStates: d.BlockStates,
		Liquids:     d.Liquids,
		Passable:    d.Passable,
		Preview:     d.Preview,
		Icons:       d.Icons,
	}
}

func Load(store host.Store, defaults tuning.SettingsDefaults) Settings {
	s := FromDefaults(defaults)
	if store == nil {
		return s
	}
	for key, dst := range s.fields() {
		if v, ok := host.GetBool(store, key); ok {
			*dst = v
		}
	}
	return s
}

// Save writes every field, so later default changes no longer apply to this observer.
func Save(store host.Store, s Settings) error {
	for key, src := range s.fields() {
		if err := store.Set(key, host.Bool(*src)); err != nil {
			return err
		}
	}
	return nil
}

func (s *Settings) fields() map[string]*bool {
	return map[string]*bool{
		KeyEnabled:     &s.Enabled,
		KeyBlockStates: &s.BlockStates,
		KeyLiquids:     &s.Liquids,
		KeyPassable:    &s.Passable,
		KeyPreview:     &s.Preview,
		KeyIcons:       &s.Icons,
	}
}
