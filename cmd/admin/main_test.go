package main

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"voxelhud.ai/internal/persistence/kvstore"
	"voxelhud.ai/internal/sim/catalogs"
	"voxelhud.ai/internal/sim/encoding"
	"voxelhud.ai/internal/sim/host"
	"voxelhud.ai/internal/sim/mirror"
	"voxelhud.ai/internal/sim/settings"
)

const configDir = "../../configs"

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	cmd := newRootCmd()
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

// seedStore writes a settings flag and a one-slot borrow for actor "alex".
func seedStore(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "props.sqlite")
	db, err := kvstore.OpenSQLite(path, 0, nil)
	require.NoError(t, err)
	defer db.Close()

	store := db.Scope("alex")
	require.NoError(t, store.Set(settings.KeyIcons, host.Bool(false)))
	chunks, err := encoding.EncodeBackups(encoding.Backups{17: {TypeID: "minecraft:bread", Amount: 4}}, 512, 8)
	require.NoError(t, err)
	for i, c := range chunks {
		require.NoError(t, store.Set(mirror.ChunkKey(i), host.String(c)))
	}
	require.NoError(t, store.Set(mirror.KeyChunkCount, host.Number(float64(len(chunks)))))
	require.NoError(t, store.Set(mirror.KeySlots, host.String("17")))
	return path
}

func TestCatalogsValidate(t *testing.T) {
	out, err := execute(t, "catalogs", "validate", "--configs", configDir)
	require.NoError(t, err)
	assert.Contains(t, out, "block_tags.json")
	assert.Contains(t, out, "effects.json")
}

func TestCatalogsDiff(t *testing.T) {
	path := filepath.Join(t.TempDir(), "props.sqlite")
	out, err := execute(t, "catalogs", "diff", "--configs", configDir, "--db", path)
	require.NoError(t, err)
	assert.Contains(t, out, "new      effects.json")

	db, err := kvstore.OpenSQLite(path, 0, nil)
	require.NoError(t, err)
	digests := map[string]string{}
	for _, f := range catalogs.Files() {
		digests[f] = "stale"
	}
	require.NoError(t, db.RecordCatalogs(context.Background(), digests))
	require.NoError(t, db.Close())

	out, err = execute(t, "catalogs", "diff", "--configs", configDir, "--db", path)
	require.NoError(t, err)
	assert.Contains(t, out, "changed  armor.json stale ->")
}

func TestPropsListAndDump(t *testing.T) {
	path := seedStore(t)

	out, err := execute(t, "props", "--db", path)
	require.NoError(t, err)
	assert.Equal(t, "alex\n", out)

	out, err = execute(t, "props", "alex", "--db", path)
	require.NoError(t, err)
	assert.Contains(t, out, settings.KeyIcons+" = false")
	assert.Contains(t, out, "mirror:slots = 17")

	_, err = execute(t, "props", "ghost", "--db", path)
	assert.Error(t, err)
}

func TestBackupInspectAndDrop(t *testing.T) {
	path := seedStore(t)

	out, err := execute(t, "backup", "inspect", "alex", "--db", path)
	require.NoError(t, err)
	assert.Contains(t, out, `"minecraft:bread"`)
	assert.Contains(t, out, `"slots": [`)

	out, err = execute(t, "backup", "drop", "alex", "--db", path)
	require.NoError(t, err)
	assert.Contains(t, out, "dropped 3 keys")

	out, err = execute(t, "backup", "inspect", "alex", "--db", path)
	require.NoError(t, err)
	assert.Contains(t, out, "no pending borrow")

	out, err = execute(t, "props", "alex", "--db", path)
	require.NoError(t, err)
	assert.Contains(t, out, settings.KeyIcons, "settings survive a drop")
}

func TestMetrics(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(rw http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/admin/v1/metrics" {
			http.NotFound(rw, r)
			return
		}
		_, _ = rw.Write([]byte(`{"tick":42}`))
	}))
	defer srv.Close()

	out, err := execute(t, "metrics", "--url", srv.URL)
	require.NoError(t, err)
	assert.Equal(t, "{\"tick\":42}\n", out)

	_, err = execute(t, "metrics", "--url", srv.URL+"/nope")
	assert.Error(t, err)
}

func TestSnapshotSaveInfoLoad(t *testing.T) {
	src := seedStore(t)
	out := filepath.Join(t.TempDir(), "s.snap.zst")

	got, err := execute(t, "snapshot", "save", "--db", src, "--out", out)
	require.NoError(t, err)
	assert.Contains(t, got, "actors=1")

	got, err = execute(t, "snapshot", "info", out)
	require.NoError(t, err)
	assert.Contains(t, got, "snapshot v1 tick=0 actors=1")

	dst := filepath.Join(t.TempDir(), "restored.sqlite")
	got, err = execute(t, "snapshot", "load", out, "--db", dst)
	require.NoError(t, err)
	assert.Contains(t, got, "restored 4 props for 1 actors")

	got, err = execute(t, "backup", "inspect", "alex", "--db", dst)
	require.NoError(t, err)
	assert.Contains(t, got, `"minecraft:bread"`)
}
