package main

import (
	"bytes"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	persistlog "voxelhud.ai/internal/persistence/log"
)

func demoConfig() replayConfig {
	return replayConfig{
		ConfigDir:    filepath.Join("..", "..", "configs"),
		TuningPath:   filepath.Join("..", "..", "configs", "tuning.yaml"),
		ScenarioPath: filepath.Join("..", "..", "configs", "scenarios", "demo.yaml"),
	}
}

func TestReplay_DemoIsDeterministic(t *testing.T) {
	a, err := replay(demoConfig())
	require.NoError(t, err)
	b, err := replay(demoConfig())
	require.NoError(t, err)

	require.NotEmpty(t, a)
	assert.Empty(t, compare(a, b))

	var shows, clears int
	for _, e := range a {
		switch e.Op {
		case persistlog.OpShow:
			shows++
		case persistlog.OpClear:
			clears++
		}
	}
	assert.Positive(t, shows)
	assert.Positive(t, clears, "sam leaves and alex walks away from the chest")
}

func TestReplay_VerifiesRecordedLog(t *testing.T) {
	got, err := replay(demoConfig())
	require.NoError(t, err)

	dir := t.TempDir()
	w := persistlog.NewJSONLZstdWriter(dir, "overlays")
	for _, e := range got {
		require.NoError(t, w.Write(e))
	}
	require.NoError(t, w.Close())

	want, err := loadRecorded(dir)
	require.NoError(t, err)
	require.Len(t, want, len(got))
	assert.Empty(t, compare(want, got))

	want[len(want)/2].Digest = "tampered"
	assert.Contains(t, compare(want, got), "tampered")
}

func TestReplay_UnknownScenario(t *testing.T) {
	cfg := demoConfig()
	cfg.ScenarioPath = filepath.Join(t.TempDir(), "missing.yaml")
	_, err := replay(cfg)
	assert.Error(t, err)
}

func TestPrintEntries(t *testing.T) {
	var buf bytes.Buffer
	got, err := replay(demoConfig())
	require.NoError(t, err)
	printEntries(&buf, got[:1])
	assert.Contains(t, buf.String(), " show ")
}
