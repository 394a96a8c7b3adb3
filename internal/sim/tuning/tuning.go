package tuning

import (
	"fmt"
	"os"

	"gopkg.in/go-playground/validator.v9"
	"gopkg.in/yaml.v3"
)

type Tuning struct {
	// PulseTicks is how often each observer is scanned.
	PulseTicks        int     `yaml:"pulse_ticks" validate:"min=1"`
	RayDistance       float64 `yaml:"ray_distance" validate:"gt=0"`
	RestoreDelayTicks int     `yaml:"restore_delay_ticks" validate:"min=1"`

	EffectTicksPerSecond int `yaml:"effect_ticks_per_second" validate:"min=1"`
	MaxResolvedEffects   int `yaml:"max_resolved_effects" validate:"min=0,max=34"`

	Slots    SlotLayout       `yaml:"slots"`
	Backup   BackupLimits     `yaml:"backup"`
	Pause    PauseTuning      `yaml:"pause"`
	Overlay  OverlayTiming    `yaml:"overlay"`
	Settings SettingsDefaults `yaml:"settings"`
}

// SlotLayout is where borrowed icons live in the observer's own inventory.
type SlotLayout struct {
	Primary     int `yaml:"primary" validate:"min=0"`
	AuxFrom     int `yaml:"aux_from" validate:"min=0"`
	AuxTo       int `yaml:"aux_to" validate:"gtefield=AuxFrom"`
	PreviewFrom int `yaml:"preview_from" validate:"min=0"`
	PreviewTo   int `yaml:"preview_to" validate:"gtefield=PreviewFrom"`
}

type BackupLimits struct {
	// EntryLimit is the host's per-entry size ceiling in bytes.
	EntryLimit int `yaml:"entry_limit" validate:"min=64"`
	ChunkSize  int `yaml:"chunk_size" validate:"min=16,ltefield=EntryLimit"`
	MaxChunks  int `yaml:"max_chunks" validate:"min=1,max=256"`
}

type PauseTuning struct {
	RecheckTicks int     `yaml:"recheck_ticks" validate:"min=1"`
	Distance     float64 `yaml:"distance" validate:"gt=0"`
	AngleDegrees float64 `yaml:"angle_degrees" validate:"gt=0,lte=180"`
}

type OverlayTiming struct {
	FadeIn  int `yaml:"fade_in" validate:"min=0"`
	Stay    int `yaml:"stay" validate:"min=1"`
	FadeOut int `yaml:"fade_out" validate:"min=0"`
}

// SettingsDefaults apply until an observer stores its own choice.
type SettingsDefaults struct {
	Enabled     bool `yaml:"enabled"`
	BlockStates bool `yaml:"block_states"`
	Liquids     bool `yaml:"liquids"`
	Passable    bool `yaml:"passable"`
	Preview     bool `yaml:"preview"`
	Icons       bool `yaml:"icons"`
}

func Defaults() Tuning {
	return Tuning{
		PulseTicks:           2,
		RayDistance:          7.5,
		RestoreDelayTicks:    4,
		EffectTicksPerSecond: 60,
		MaxResolvedEffects:   6,
		Slots: SlotLayout{
			Primary:     17,
			AuxFrom:     9,
			AuxTo:       16,
			PreviewFrom: 18,
			PreviewTo:   35,
		},
		Backup: BackupLimits{
			EntryLimit: 32767,
			ChunkSize:  32000,
			MaxChunks:  8,
		},
		Pause: PauseTuning{
			RecheckTicks: 10,
			Distance:     1.5,
			AngleDegrees: 35,
		},
		Overlay: OverlayTiming{
			FadeIn:  0,
			Stay:    12000,
			FadeOut: 0,
		},
		Settings: SettingsDefaults{
			Enabled:     true,
			BlockStates: true,
			Liquids:     false,
			Passable:    false,
			Preview:     true,
			Icons:       true,
		},
	}
}

// Load reads path over Defaults, so a partial file only overrides what it names.
func Load(path string) (Tuning, error) {
	t := Defaults()
	raw, err := os.ReadFile(path)
	if err != nil {
		return t, err
	}
	if err := yaml.Unmarshal(raw, &t); err != nil {
		return t, fmt.Errorf("tuning.yaml: %w", err)
	}
	if err := t.Validate(); err != nil {
		return t, fmt.Errorf("tuning.yaml: %w", err)
	}
	return t, nil
}

func (t Tuning) Validate() error {
	if err := validator.New().Struct(t); err != nil {
		return err
	}
	s := t.Slots
	if s.Primary >= s.AuxFrom && s.Primary <= s.AuxTo {
		return fmt.Errorf("slots: primary %d inside aux range %d..%d", s.Primary, s.AuxFrom, s.AuxTo)
	}
	if s.Primary >= s.PreviewFrom && s.Primary <= s.PreviewTo {
		return fmt.Errorf("slots: primary %d inside preview range %d..%d", s.Primary, s.PreviewFrom, s.PreviewTo)
	}
	if s.AuxTo >= s.PreviewFrom && s.AuxFrom <= s.PreviewTo {
		return fmt.Errorf("slots: aux range %d..%d overlaps preview range %d..%d", s.AuxFrom, s.AuxTo, s.PreviewFrom, s.PreviewTo)
	}
	return nil
}
