// Package snapshot saves and loads every actor's properties as one zstd-compressed file: a
// JSON header line followed by a gob body.
package snapshot

import (
	"bufio"
	"context"
	"encoding/gob"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/klauspost/compress/zstd"

	"voxelhud.ai/internal/sim/host"
)

const Version = 1

type Header struct {
	Version   int       `json:"version"`
	Tick      uint64    `json:"tick"`
	CreatedAt time.Time `json:"created_at"`
	Actors    int       `json:"actors"`
}

type SnapshotV1 struct {
	Header Header `json:"header"`

	// Catalogs are the digests recorded by the server that owned the store.
	Catalogs map[string]string               `json:"catalogs,omitempty"`
	Actors   map[string]map[string]host.Value `json:"actors"`
}

// Source is a property store that can be enumerated.
type Source interface {
	Actors(ctx context.Context) ([]string, error)
	Dump(ctx context.Context, actor string) (map[string]host.Value, error)
	CatalogDigests(ctx context.Context) (map[string]string, error)
}

// Sink hands out per-actor stores to restore into.
type Sink interface {
	Scope(actor string) host.Store
}

// Take copies every actor in src.
func Take(ctx context.Context, src Source, tick uint64) (SnapshotV1, error) {
	snap := SnapshotV1{Actors: map[string]map[string]host.Value{}}
	actors, err := src.Actors(ctx)
	if err != nil {
		return snap, fmt.Errorf("list actors: %w", err)
	}
	for _, a := range actors {
		props, err := src.Dump(ctx, a)
		if err != nil {
			return snap, fmt.Errorf("dump %s: %w", a, err)
		}
		snap.Actors[a] = props
	}
	if snap.Catalogs, err = src.CatalogDigests(ctx); err != nil {
		return snap, fmt.Errorf("catalog digests: %w", err)
	}
	snap.Header = Header{Version: Version, Tick: tick, CreatedAt: time.Now().UTC(), Actors: len(actors)}
	return snap, nil
}

// Restore writes every property of snap into dst, actor by actor in sorted order. Keys
// already in dst but absent from the snapshot are left alone.
func Restore(snap SnapshotV1, dst Sink) (int, error) {
	actors := make([]string, 0, len(snap.Actors))
	for a := range snap.Actors {
		actors = append(actors, a)
	}
	sort.Strings(actors)

	n := 0
	for _, a := range actors {
		store := dst.Scope(a)
		for k, v := range snap.Actors[a] {
			if err := store.Set(k, v); err != nil {
				return n, fmt.Errorf("%s %s: %w", a, k, err)
			}
			n++
		}
	}
	return n, nil
}

func WriteSnapshot(path string, snap SnapshotV1) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()

	enc, err := zstd.NewWriter(f, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		return err
	}
	bw := bufio.NewWriterSize(enc, 256*1024)

	hb, _ := json.Marshal(snap.Header)
	if _, err := bw.Write(hb); err != nil {
		return err
	}
	if err := bw.WriteByte('\n'); err != nil {
		return err
	}
	if err := gob.NewEncoder(bw).Encode(&snap); err != nil {
		return fmt.Errorf("gob encode: %w", err)
	}
	if err := bw.Flush(); err != nil {
		return err
	}
	if err := enc.Close(); err != nil {
		return err
	}
	return f.Sync()
}

// ReadHeader decodes only the header line.
func ReadHeader(path string) (Header, error) {
	var h Header
	f, err := os.Open(path)
	if err != nil {
		return h, err
	}
	defer f.Close()
	dec, err := zstd.NewReader(f)
	if err != nil {
		return h, err
	}
	defer dec.Close()

	line, err := bufio.NewReader(dec).ReadBytes('\n')
	if err != nil {
		return h, fmt.Errorf("read header: %w", err)
	}
	if err := json.Unmarshal(line, &h); err != nil {
		return h, fmt.Errorf("decode header: %w", err)
	}
	return h, nil
}

func ReadSnapshot(path string) (SnapshotV1, error) {
	var snap SnapshotV1
	f, err := os.Open(path)
	if err != nil {
		return snap, err
	}
	defer f.Close()

	dec, err := zstd.NewReader(f)
	if err != nil {
		return snap, err
	}
	defer dec.Close()

	br := bufio.NewReaderSize(dec, 256*1024)

	// The gob body repeats the header.
	if _, err := br.ReadBytes('\n'); err != nil {
		return snap, fmt.Errorf("read header: %w", err)
	}
	if err := gob.NewDecoder(br).Decode(&snap); err != nil {
		return snap, fmt.Errorf("gob decode: %w", err)
	}
	if snap.Header.Version != Version {
		return snap, fmt.Errorf("unsupported snapshot version %d", snap.Header.Version)
	}
	return snap, nil
}

// Latest returns the newest "<n>.snap.zst" in dir by file name order, or "".
func Latest(dir string) string {
	ents, err := os.ReadDir(dir)
	if err != nil {
		return ""
	}
	var names []string
	for _, e := range ents {
		if !e.IsDir() && filepath.Ext(e.Name()) == ".zst" {
			names = append(names, e.Name())
		}
	}
	if len(names) == 0 {
		return ""
	}
	sort.Slice(names, func(i, j int) bool {
		if len(names[i]) != len(names[j]) {
			return len(names[i]) < len(names[j])
		}
		return names[i] < names[j]
	})
	return filepath.Join(dir, names[len(names)-1])
}
