package encoding

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/klauspost/compress/zstd"
)

// ErrTooManyChunks is returned when an encoded payload needs more chunks than allowed.
var ErrTooManyChunks = errors.New("encoding: payload exceeds chunk limit")

// Backup is everything needed to rebuild one inventory slot.
type Backup struct {
	Empty        bool                `json:"empty,omitempty"`
	TypeID       string              `json:"type,omitempty"`
	Amount       int                 `json:"amount,omitempty"`
	NameTag      string              `json:"name,omitempty"`
	Lock         string              `json:"lock,omitempty"`
	KeepOnDeath  bool                `json:"keep,omitempty"`
	Lore         []string            `json:"lore,omitempty"`
	Enchantments []Enchantment       `json:"ench,omitempty"`
	Damage       *int                `json:"damage,omitempty"`
	Properties   map[string]Property `json:"props,omitempty"`
}

type Enchantment struct {
	ID    string `json:"id"`
	Level int    `json:"lvl"`
}

// Property kinds.
const (
	PropString = "s"
	PropNumber = "n"
	PropBool   = "b"
	PropVector = "v"
)

type Property struct {
	Kind string      `json:"k"`
	Str  string      `json:"s,omitempty"`
	Num  float64     `json:"n,omitempty"`
	Bool bool        `json:"b,omitempty"`
	Vec  *[3]float64 `json:"v,omitempty"`
}

// Backups maps slot index to its saved contents.
type Backups map[int]Backup

var (
	zenc, _ = zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedBetterCompression))
	zdec, _ = zstd.NewReader(nil)
)

// EncodeBackups serializes b as base64(zstd(json)) split into chunks of at most chunkSize
// bytes. It fails with ErrTooManyChunks rather than truncating.
func EncodeBackups(b Backups, chunkSize, maxChunks int) ([]string, error) {
	if chunkSize <= 0 || maxChunks <= 0 {
		return nil, fmt.Errorf("encoding: bad limits chunk_size=%d max_chunks=%d", chunkSize, maxChunks)
	}
	raw, err := json.Marshal(b)
	if err != nil {
		return nil, err
	}
	s := base64.StdEncoding.EncodeToString(zenc.EncodeAll(raw, nil))

	n := (len(s) + chunkSize - 1) / chunkSize
	if n > maxChunks {
		return nil, fmt.Errorf("%w: need %d chunks of %d, limit %d", ErrTooManyChunks, n, chunkSize, maxChunks)
	}
	out := make([]string, 0, n)
	for i := 0; i < len(s); i += chunkSize {
		end := i + chunkSize
		if end > len(s) {
			end = len(s)
		}
		out = append(out, s[i:end])
	}
	return out, nil
}

func DecodeBackups(chunks []string) (Backups, error) {
	s := strings.Join(chunks, "")
	if s == "" {
		return Backups{}, nil
	}
	compressed, err := base64.StdEncoding.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("encoding: base64: %w", err)
	}
	raw, err := zdec.DecodeAll(compressed, nil)
	if err != nil {
		return nil, fmt.Errorf("encoding: zstd: %w", err)
	}
	out := Backups{}
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("encoding: json: %w", err)
	}
	return out, nil
}
