package mirror

import (
	"fmt"
	"strconv"
	"strings"

	"voxelhud.ai/internal/sim/encoding"
	"voxelhud.ai/internal/sim/host"
)

// Property keys of a borrow session.
const (
	KeySlots      = "mirror:slots"
	KeyChunkCount = "mirror:bk:n"
	keyChunk      = "mirror:bk:"
)

func ChunkKey(i int) string { return keyChunk + strconv.Itoa(i) }

// Tracked returns the slots borrowed by the current session, in borrow order.
func Tracked(store host.Store) []int {
	raw, ok := host.GetString(store, KeySlots)
	if !ok || raw == "" {
		return nil
	}
	var out []int
	for _, f := range strings.Split(raw, ",") {
		n, err := strconv.Atoi(f)
		if err != nil {
			continue
		}
		out = append(out, n)
	}
	return out
}

func saveTracked(store host.Store, slots []int) error {
	parts := make([]string, len(slots))
	for i, s := range slots {
		parts[i] = strconv.Itoa(s)
	}
	return store.Set(KeySlots, host.String(strings.Join(parts, ",")))
}

func chunkCount(store host.Store) int {
	n, ok := host.GetNumber(store, KeyChunkCount)
	if !ok || n < 0 {
		return 0
	}
	return int(n)
}

// LoadBackups decodes the persisted payload. A session with no payload decodes to an empty map.
func LoadBackups(store host.Store) (encoding.Backups, error) {
	n := chunkCount(store)
	chunks := make([]string, 0, n)
	for i := 0; i < n; i++ {
		c, ok := host.GetString(store, ChunkKey(i))
		if !ok {
			return nil, fmt.Errorf("mirror: chunk %d of %d missing", i, n)
		}
		chunks = append(chunks, c)
	}
	return encoding.DecodeBackups(chunks)
}

// saveChunks writes the chunks and the count, then drops chunks left over from a longer payload.
// A failed write removes the chunks it added past the old count, so clearSession still reaches
// every chunk key.
func saveChunks(store host.Store, chunks []string) error {
	old := chunkCount(store)
	written := 0
	dropNew := func() {
		for i := old; i < written; i++ {
			_ = store.Delete(ChunkKey(i))
		}
	}
	for i, c := range chunks {
		if err := store.Set(ChunkKey(i), host.String(c)); err != nil {
			dropNew()
			return fmt.Errorf("chunk %d: %w", i, err)
		}
		written = i + 1
	}
	if err := store.Set(KeyChunkCount, host.Number(float64(len(chunks)))); err != nil {
		dropNew()
		return err
	}
	for i := len(chunks); i < old; i++ {
		_ = store.Delete(ChunkKey(i))
	}
	return nil
}

// clearSession deletes every key of the session. Delete errors are collected, not fatal.
func clearSession(store host.Store) error {
	var first error
	keep := func(err error) {
		if err != nil && first == nil {
			first = err
		}
	}
	n := chunkCount(store)
	for i := 0; i < n; i++ {
		keep(store.Delete(ChunkKey(i)))
	}
	keep(store.Delete(KeyChunkCount))
	keep(store.Delete(KeySlots))
	return first
}
