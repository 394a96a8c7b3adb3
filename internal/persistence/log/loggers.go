package log

import (
	"bufio"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/klauspost/compress/zstd"
	"go.uber.org/zap"

	"voxelhud.ai/internal/sim/host"
	"voxelhud.ai/internal/sim/mirror"
)

type JSONLZstdWriter struct {
	baseDir string
	prefix  string
	now     func() time.Time

	mu      sync.Mutex
	curHour string
	f       *os.File
	enc     *zstd.Encoder
	w       *bufio.Writer
}

func NewJSONLZstdWriter(baseDir, prefix string) *JSONLZstdWriter {
	return &JSONLZstdWriter{
		baseDir: baseDir,
		prefix:  prefix,
		now:     time.Now,
	}
}

func (w *JSONLZstdWriter) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.closeLocked()
}

func (w *JSONLZstdWriter) Write(v any) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	hour := w.now().UTC().Format("2006-01-02-15")
	if hour != w.curHour {
		if err := w.rotateLocked(hour); err != nil {
			return err
		}
	}

	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	if _, err := w.w.Write(b); err != nil {
		return err
	}
	if err := w.w.WriteByte('\n'); err != nil {
		return err
	}
	return w.w.Flush()
}

func (w *JSONLZstdWriter) rotateLocked(hour string) error {
	if err := w.closeLocked(); err != nil {
		return err
	}
	dir := filepath.Dir(w.pathForHour(hour))
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	f, err := os.OpenFile(w.pathForHour(hour), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return err
	}
	enc, err := zstd.NewWriter(f, zstd.WithEncoderLevel(zstd.SpeedFastest))
	if err != nil {
		_ = f.Close()
		return err
	}
	w.f = f
	w.enc = enc
	w.w = bufio.NewWriterSize(enc, 128*1024)
	w.curHour = hour
	return nil
}

func (w *JSONLZstdWriter) closeLocked() error {
	var err1 error
	if w.w != nil {
		_ = w.w.Flush()
	}
	if w.enc != nil {
		err1 = w.enc.Close()
		w.enc = nil
	}
	if w.f != nil {
		_ = w.f.Close()
		w.f = nil
	}
	w.w = nil
	w.curHour = ""
	return err1
}

func (w *JSONLZstdWriter) pathForHour(hour string) string {
	return filepath.Join(w.baseDir, fmt.Sprintf("%s-%s.jsonl.zst", w.prefix, hour))
}

// AuditEntry is one mirror operation with its wall-clock time.
type AuditEntry struct {
	Time  time.Time    `json:"time"`
	Event mirror.Event `json:"event"`
}

// AuditLogger writes mirror events as compressed JSONL. It is a mirror.Recorder; write
// failures are logged, never returned to the pipeline.
type AuditLogger struct {
	w   *JSONLZstdWriter
	log *zap.Logger
}

var _ mirror.Recorder = (*AuditLogger)(nil)

func NewAuditLogger(dataDir string, logger *zap.Logger) *AuditLogger {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AuditLogger{w: NewJSONLZstdWriter(filepath.Join(dataDir, "audit"), "audit"), log: logger.Named("audit")}
}

func (l *AuditLogger) Record(e mirror.Event) {
	if err := l.w.Write(AuditEntry{Time: l.w.now().UTC(), Event: e}); err != nil {
		l.log.Warn("audit write failed", zap.String("kind", e.Kind), zap.String("observer", e.Observer), zap.Error(err))
	}
}

func (l *AuditLogger) Close() error { return l.w.Close() }

// OverlayEntry is one display call. Digest covers the overlay JSON so replays can compare
// without storing every payload twice.
type OverlayEntry struct {
	Tick     uint64        `json:"tick"`
	Observer string        `json:"observer"`
	Op       string        `json:"op"`
	Digest   string        `json:"digest,omitempty"`
	Overlay  *host.Overlay `json:"overlay,omitempty"`
}

const (
	OpShow  = "show"
	OpClear = "clear"
)

// OverlayDigest hashes the JSON form of o.
func OverlayDigest(o host.Overlay) string {
	b, _ := json.Marshal(o)
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:])
}

// OverlayLogger is a host.Display that records every call before passing it on.
type OverlayLogger struct {
	w    *JSONLZstdWriter
	next host.Display
	tick func() uint64
	log  *zap.Logger
}

var _ host.Display = (*OverlayLogger)(nil)

func NewOverlayLogger(dataDir string, next host.Display, tick func() uint64, logger *zap.Logger) *OverlayLogger {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &OverlayLogger{
		w:    NewJSONLZstdWriter(filepath.Join(dataDir, "overlays"), "overlays"),
		next: next,
		tick: tick,
		log:  logger.Named("overlays"),
	}
}

func (l *OverlayLogger) Show(observerID string, o host.Overlay) error {
	l.write(OverlayEntry{Tick: l.tick(), Observer: observerID, Op: OpShow, Digest: OverlayDigest(o), Overlay: &o})
	return l.next.Show(observerID, o)
}

func (l *OverlayLogger) Clear(observerID string) error {
	l.write(OverlayEntry{Tick: l.tick(), Observer: observerID, Op: OpClear})
	return l.next.Clear(observerID)
}

func (l *OverlayLogger) write(e OverlayEntry) {
	if err := l.w.Write(e); err != nil {
		l.log.Warn("overlay log write failed", zap.String("observer", e.Observer), zap.Error(err))
	}
}

func (l *OverlayLogger) Close() error { return l.w.Close() }

// ListFiles returns dir's "<prefix>-*.jsonl.zst" files in time order.
func ListFiles(dir, prefix string) ([]string, error) {
	ents, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	var names []string
	for _, e := range ents {
		if e.IsDir() {
			continue
		}
		name := e.Name()
		if strings.HasPrefix(name, prefix+"-") && strings.HasSuffix(name, ".jsonl.zst") {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	out := make([]string, 0, len(names))
	for _, name := range names {
		out = append(out, filepath.Join(dir, name))
	}
	return out, nil
}

// ReadJSONL decodes every line of a compressed JSONL file into a fresh T and hands it to fn.
func ReadJSONL[T any](path string, fn func(T) error) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	dec, err := zstd.NewReader(f)
	if err != nil {
		return err
	}
	defer dec.Close()

	sc := bufio.NewScanner(dec)
	sc.Buffer(make([]byte, 64*1024), 8*1024*1024)
	line := 0
	for sc.Scan() {
		line++
		var v T
		if err := json.Unmarshal(sc.Bytes(), &v); err != nil {
			return fmt.Errorf("%s:%d: unmarshal: %w", filepath.Base(path), line, err)
		}
		if err := fn(v); err != nil {
			return err
		}
	}
	return sc.Err()
}
