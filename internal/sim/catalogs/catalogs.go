package catalogs

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync/atomic"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"voxelhud.ai/schemas"
)

type Catalogs struct {
	BlockTags  TagCatalog
	EntityTags EntityTagCatalog
	Effects    EffectCatalog
	Armor      ArmorCatalog
	Aliases    AliasCatalog
}

// TagDef is one capability: which targets it applies to and which remark the held item earns.
type TagDef struct {
	ID      string      `json:"id"`
	Icon    string      `json:"icon"`
	Targets []string    `json:"targets"`
	Remarks []RemarkDef `json:"remarks,omitempty"`
}

type RemarkDef struct {
	Remark string   `json:"remark"`
	Items  []string `json:"items,omitempty"`
	Tags   []string `json:"tags,omitempty"`
}

type TagCatalog struct {
	Defs   []TagDef `json:"tools"`
	Digest string   `json:"-"`
}

// ProbeDef maps an entity component to a capability tag.
type ProbeDef struct {
	ID        string   `json:"id"`
	Component string   `json:"component"`
	Icon      string   `json:"icon"`
	Suppress  []string `json:"suppress,omitempty"`
}

type EntityTagCatalog struct {
	Interactions []TagDef   `json:"interactions"`
	Probes       []ProbeDef `json:"probes"`
	Digest       string     `json:"-"`
}

type EffectCatalog struct {
	IDs    []string `json:"effects"`
	Digest string   `json:"-"`
}

type ArmorCatalog struct {
	Head   map[string]int `json:"head"`
	Chest  map[string]int `json:"chest"`
	Legs   map[string]int `json:"legs"`
	Feet   map[string]int `json:"feet"`
	Digest string         `json:"-"`
}

type AliasCatalog struct {
	Entities   map[string]string `json:"entities"`
	Blocks     map[string]string `json:"blocks"`
	Namespaces map[string]string `json:"namespaces"`
	Digest     string            `json:"-"`
}

const EffectCatalogSize = 34

func Load(configDir string) (*Catalogs, error) {
	var c Catalogs

	if err := loadJSON(configDir, "block_tags.json", &c.BlockTags, &c.BlockTags.Digest); err != nil {
		return nil, err
	}
	if err := loadJSON(configDir, "entity_tags.json", &c.EntityTags, &c.EntityTags.Digest); err != nil {
		return nil, err
	}
	if err := loadJSON(configDir, "effects.json", &c.Effects, &c.Effects.Digest); err != nil {
		return nil, err
	}
	if err := loadJSON(configDir, "armor.json", &c.Armor, &c.Armor.Digest); err != nil {
		return nil, err
	}
	if err := loadJSON(configDir, "aliases.json", &c.Aliases, &c.Aliases.Digest); err != nil {
		return nil, err
	}
	if err := c.check(); err != nil {
		return nil, err
	}
	return &c, nil
}

// Digests returns every catalog digest keyed by file name.
func (c *Catalogs) Digests() map[string]string {
	return map[string]string{
		"block_tags.json":  c.BlockTags.Digest,
		"entity_tags.json": c.EntityTags.Digest,
		"effects.json":     c.Effects.Digest,
		"armor.json":       c.Armor.Digest,
		"aliases.json":     c.Aliases.Digest,
	}
}

// check enforces what the schemas cannot express.
func (c *Catalogs) check() error {
	if n := len(c.Effects.IDs); n != EffectCatalogSize {
		return fmt.Errorf("effects.json: want %d effects, got %d", EffectCatalogSize, n)
	}
	seen := map[string]bool{}
	for _, id := range c.Effects.IDs {
		if seen[id] {
			return fmt.Errorf("effects.json: duplicate effect %q", id)
		}
		seen[id] = true
	}
	if err := checkDefs("block_tags.json", c.BlockTags.Defs); err != nil {
		return err
	}
	if err := checkDefs("entity_tags.json", c.EntityTags.Interactions); err != nil {
		return err
	}
	for _, p := range c.EntityTags.Probes {
		if len(p.Icon) != 2 {
			return fmt.Errorf("entity_tags.json: probe %s: icon must be 2 characters", p.ID)
		}
	}
	return nil
}

func checkDefs(file string, defs []TagDef) error {
	ids := map[string]bool{}
	for _, d := range defs {
		if ids[d.ID] {
			return fmt.Errorf("%s: duplicate id %q", file, d.ID)
		}
		ids[d.ID] = true
		if len(d.Icon) != 2 {
			return fmt.Errorf("%s: %s: icon must be 2 characters", file, d.ID)
		}
		for _, r := range d.Remarks {
			if len(r.Remark) != 1 {
				return fmt.Errorf("%s: %s: remark must be 1 character", file, d.ID)
			}
		}
	}
	return nil
}

func loadJSON(dir, name string, out any, digest *string) error {
	raw, err := os.ReadFile(filepath.Join(dir, name))
	if err != nil {
		return err
	}
	if err := Validate(name, raw); err != nil {
		return err
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("%s: %w", name, err)
	}
	*digest = sha256Hex(raw)
	return nil
}

// Validate checks raw catalog JSON against the schema registered for its file name.
func Validate(name string, raw []byte) error {
	schemaName := strings.TrimSuffix(name, ".json") + ".schema.json"
	src, err := schemas.FS.ReadFile(schemaName)
	if err != nil {
		return fmt.Errorf("%s: no schema: %w", name, err)
	}
	s, err := jsonschema.CompileString(schemaName, string(src))
	if err != nil {
		return fmt.Errorf("compile %s: %w", schemaName, err)
	}
	var doc any
	if err := json.Unmarshal(raw, &doc); err != nil {
		return fmt.Errorf("%s: %w", name, err)
	}
	if err := s.Validate(doc); err != nil {
		return fmt.Errorf("%s: %w", name, err)
	}
	return nil
}

// Files lists the catalog file names Load reads, sorted.
func Files() []string {
	out := []string{"aliases.json", "armor.json", "block_tags.json", "effects.json", "entity_tags.json"}
	sort.Strings(out)
	return out
}

func sha256Hex(b []byte) string {
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:])
}

// Registry holds the live catalogs; readers always see a complete set.
type Registry struct {
	cur atomic.Pointer[Catalogs]
}

func NewRegistry(c *Catalogs) *Registry {
	r := &Registry{}
	r.cur.Store(c)
	return r
}

func (r *Registry) Current() *Catalogs { return r.cur.Load() }

func (r *Registry) Swap(c *Catalogs) { r.cur.Store(c) }
