package tags

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"voxelhud.ai/internal/sim/host"
	"voxelhud.ai/internal/sim/rules"
)

// Glyphs understood by the overlay font.
const (
	HeartFull  = "a"
	HeartHalf  = "b"
	HeartEmpty = "c"
	HeartPad   = "y"
	// NumericMarker fills the bar when health is shown as text.
	NumericMarker = "n"

	ArmorFull  = "d"
	ArmorHalf  = "e"
	ArmorEmpty = "f"

	HealthWidth = 20
	ArmorWidth  = 10
	EffectWidth = 6

	PlayerHealthCap = 20
	OtherHealthCap  = 40
	// NumericHealthAbove switches bosses and dummies to numeric display.
	NumericHealthAbove = 10_000_000
	MaxArmorPoints     = 2 * ArmorWidth
)

// HealthBar renders current/max as hearts, rescaled when max exceeds the cap and padded to
// HealthWidth.
func HealthBar(cur, max float64, player bool) (bar, text string) {
	if max > NumericHealthAbove {
		return NumericHealth(cur, max)
	}
	limit := float64(OtherHealthCap)
	if player {
		limit = PlayerHealthCap
	}
	if max > limit {
		cur = cur * limit / max
		max = limit
	}
	if max < 0 {
		max = 0
	}
	cur = math.Max(0, math.Min(cur, max))

	points := int(math.Ceil(cur))
	hearts := (int(math.Ceil(max)) + 1) / 2
	full := points / 2
	half := points % 2
	empty := hearts - full - half
	if empty < 0 {
		empty = 0
	}

	var b strings.Builder
	b.WriteString(strings.Repeat(HeartFull, full))
	b.WriteString(strings.Repeat(HeartHalf, half))
	b.WriteString(strings.Repeat(HeartEmpty, empty))
	return pad(b.String(), HealthWidth, HeartPad), ""
}

func NumericHealth(cur, max float64) (bar, text string) {
	pct := 0
	if max > 0 {
		pct = int(math.Round(cur / max * 100))
	}
	text = fmt.Sprintf("%s/%s (%d%%)", compact(cur), compact(max), pct)
	return strings.Repeat(NumericMarker, HealthWidth), text
}

// HealthUnknown is the bar shown when health cannot be read.
func HealthUnknown() string { return strings.Repeat(HeartPad, HealthWidth) }

func ArmorBar(points int) string {
	if points < 0 {
		points = 0
	}
	if points > MaxArmorPoints {
		points = MaxArmorPoints
	}
	full := points / 2
	half := points % 2
	return strings.Repeat(ArmorFull, full) + strings.Repeat(ArmorHalf, half) + strings.Repeat(ArmorEmpty, ArmorWidth-full-half)
}

// EffectString walks the whole catalog, not the active list, so the result has a constant
// length: EffectWidth per catalog entry. Only the first maxResolved present effects (in
// catalog order) are rendered; the rest are placeholders.
func EffectString(catalog []string, active []host.Effect, ticksPerSecond, maxResolved int) string {
	byName := make(map[string]host.Effect, len(active))
	for _, e := range active {
		byName[rules.Name(e.TypeID)] = e
	}
	placeholder := strings.Repeat(IconUndefined[:1], EffectWidth)

	var b strings.Builder
	b.Grow(len(catalog) * EffectWidth)
	resolved := 0
	for _, id := range catalog {
		e, ok := byName[id]
		if !ok || resolved >= maxResolved {
			b.WriteString(placeholder)
			continue
		}
		resolved++
		b.WriteString(EffectCode(e, ticksPerSecond))
	}
	return b.String()
}

// EffectCode is "MM:SS" followed by the displayed level (amplifier+1, clamped to 0-9).
func EffectCode(e host.Effect, ticksPerSecond int) string {
	if ticksPerSecond <= 0 {
		ticksPerSecond = 1
	}
	mins, secs := 99, 59
	if e.Duration >= 0 {
		total := e.Duration / ticksPerSecond
		mins, secs = total/60, total%60
		if mins > 99 {
			mins, secs = 99, 59
		}
	}
	level := e.Amplifier + 1
	if level < 0 {
		level = 0
	}
	if level > 9 {
		level = 9
	}
	return fmt.Sprintf("%02d:%02d%d", mins, secs, level)
}

func pad(s string, width int, with string) string {
	if len(s) >= width {
		return s[:width]
	}
	return s + strings.Repeat(with, width-len(s))
}

func compact(v float64) string {
	if v == math.Trunc(v) && math.Abs(v) < 1e15 {
		return strconv.FormatInt(int64(v), 10)
	}
	return strconv.FormatFloat(v, 'f', 1, 64)
}
