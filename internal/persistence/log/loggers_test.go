package log

import (
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"voxelhud.ai/internal/sim/host"
	"voxelhud.ai/internal/sim/mirror"
	"voxelhud.ai/internal/sim/sandbox"
)

func TestWriter_RotatesHourlyAndAppends(t *testing.T) {
	dir := t.TempDir()
	clock := time.Date(2026, 3, 1, 10, 59, 0, 0, time.UTC)
	w := NewJSONLZstdWriter(dir, "x")
	w.now = func() time.Time { return clock }

	require.NoError(t, w.Write(map[string]int{"n": 1}))
	clock = clock.Add(2 * time.Minute)
	require.NoError(t, w.Write(map[string]int{"n": 2}))
	require.NoError(t, w.Close())

	// Reopening the same hour appends a second zstd frame.
	w2 := NewJSONLZstdWriter(dir, "x")
	w2.now = func() time.Time { return clock }
	require.NoError(t, w2.Write(map[string]int{"n": 3}))
	require.NoError(t, w2.Close())

	files, err := ListFiles(dir, "x")
	require.NoError(t, err)
	require.Equal(t, []string{
		filepath.Join(dir, "x-2026-03-01-10.jsonl.zst"),
		filepath.Join(dir, "x-2026-03-01-11.jsonl.zst"),
	}, files)

	var got []int
	for _, f := range files {
		require.NoError(t, ReadJSONL(f, func(v map[string]int) error {
			got = append(got, v["n"])
			return nil
		}))
	}
	assert.Equal(t, []int{1, 2, 3}, got)
}

func TestAuditLogger_RecordsMirrorEvents(t *testing.T) {
	dir := t.TempDir()
	l := NewAuditLogger(dir, nil)
	l.Record(mirror.Event{Kind: mirror.EventApply, Observer: "p1", Slots: []int{17, 9}, Chunks: 1, Bytes: 120})
	l.Record(mirror.Event{Kind: mirror.EventRestore, Observer: "p1", Slots: []int{17, 9}})
	require.NoError(t, l.Close())

	files, err := ListFiles(filepath.Join(dir, "audit"), "audit")
	require.NoError(t, err)
	require.Len(t, files, 1)

	var kinds []string
	require.NoError(t, ReadJSONL(files[0], func(e AuditEntry) error {
		assert.False(t, e.Time.IsZero())
		assert.Equal(t, "p1", e.Event.Observer)
		kinds = append(kinds, e.Event.Kind)
		return nil
	}))
	assert.Equal(t, []string{mirror.EventApply, mirror.EventRestore}, kinds)
}

func TestOverlayLogger_TeesDisplay(t *testing.T) {
	dir := t.TempDir()
	d := sandbox.NewDisplay()
	tick := uint64(7)
	l := NewOverlayLogger(dir, d, func() uint64 { return tick }, nil)

	ov := host.Overlay{Title: []host.TextNode{{Text: "_hude"}}, Stay: 100}
	require.NoError(t, l.Show("p1", ov))
	tick++
	require.NoError(t, l.Clear("p1"))
	d.Fail = errors.New("gone")
	assert.Error(t, l.Show("p1", ov), "display errors pass through")
	require.NoError(t, l.Close())

	files, err := ListFiles(filepath.Join(dir, "overlays"), "overlays")
	require.NoError(t, err)
	require.Len(t, files, 1)
	var entries []OverlayEntry
	require.NoError(t, ReadJSONL(files[0], func(e OverlayEntry) error {
		entries = append(entries, e)
		return nil
	}))
	require.Len(t, entries, 3)
	assert.Equal(t, OpShow, entries[0].Op)
	assert.Equal(t, uint64(7), entries[0].Tick)
	assert.Equal(t, OverlayDigest(ov), entries[0].Digest)
	require.NotNil(t, entries[0].Overlay)
	assert.Equal(t, ov, *entries[0].Overlay)
	assert.Equal(t, OverlayEntry{Tick: 8, Observer: "p1", Op: OpClear}, entries[1])
	assert.Equal(t, 1, d.Clears("p1"))
}

func TestReadJSONL_ReportsLine(t *testing.T) {
	dir := t.TempDir()
	w := NewJSONLZstdWriter(dir, "bad")
	require.NoError(t, w.Write("not an object"))
	require.NoError(t, w.Close())
	files, err := ListFiles(dir, "bad")
	require.NoError(t, err)
	err = ReadJSONL(files[0], func(map[string]any) error { return nil })
	require.Error(t, err)
	assert.Contains(t, err.Error(), ":1:")
}
