// Command replay runs a sandbox scenario headlessly and prints or verifies the overlays it
// produces. Given a recorded overlays directory it compares every display call, tick by tick.
package main

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"go.uber.org/zap"

	persistlog "voxelhud.ai/internal/persistence/log"
	"voxelhud.ai/internal/sim/catalogs"
	"voxelhud.ai/internal/sim/host"
	"voxelhud.ai/internal/sim/sandbox"
	"voxelhud.ai/internal/sim/sched"
	"voxelhud.ai/internal/sim/session"
	"voxelhud.ai/internal/sim/tuning"
)

type replayConfig struct {
	ConfigDir    string
	TuningPath   string
	ScenarioPath string
	// Ticks to run. Zero runs until the last scripted step has settled.
	Ticks uint64
}

func main() {
	var (
		configDir  = flag.String("configs", "./configs", "config directory")
		tuningPath = flag.String("tuning", "", "path to tuning.yaml (default: <configs>/tuning.yaml)")
		scenario   = flag.String("scenario", "", "scenario yaml (required)")
		ticks      = flag.Uint64("ticks", 0, "ticks to run (default: last step plus settle time, or the recorded length)")
		expectDir  = flag.String("expect", "", "recorded overlays dir (containing overlays-*.jsonl.zst) to verify against")
		quiet      = flag.Bool("q", false, "do not print overlay entries")
	)
	flag.Parse()

	if *scenario == "" {
		fmt.Fprintln(os.Stderr, "missing -scenario")
		os.Exit(2)
	}
	cfg := replayConfig{ConfigDir: *configDir, TuningPath: *tuningPath, ScenarioPath: *scenario, Ticks: *ticks}
	if cfg.TuningPath == "" {
		cfg.TuningPath = filepath.Join(cfg.ConfigDir, "tuning.yaml")
	}

	var want []persistlog.OverlayEntry
	if *expectDir != "" {
		var err error
		want, err = loadRecorded(*expectDir)
		if err != nil {
			fmt.Fprintln(os.Stderr, "read recorded overlays:", err)
			os.Exit(1)
		}
		if len(want) == 0 {
			fmt.Fprintln(os.Stderr, "no overlay entries found in", *expectDir)
			os.Exit(1)
		}
		if cfg.Ticks == 0 {
			cfg.Ticks = want[len(want)-1].Tick
		}
	}

	got, err := replay(cfg)
	if err != nil {
		fmt.Fprintln(os.Stderr, "replay:", err)
		os.Exit(1)
	}
	if !*quiet {
		printEntries(os.Stdout, got)
	}
	if want == nil {
		fmt.Printf("replay ok: entries=%d\n", len(got))
		return
	}
	if diff := compare(want, got); diff != "" {
		fmt.Fprintf(os.Stderr, "overlay mismatch (-recorded +replayed):\n%s", diff)
		os.Exit(1)
	}
	fmt.Printf("replay ok: verified=%d entries through tick %d\n", len(want), cfg.Ticks)
}

// replay runs the scenario the same way the server does: observers join at tick zero, the
// pulse starts, and scripted steps apply once per tick.
func replay(cfg replayConfig) ([]persistlog.OverlayEntry, error) {
	tune, err := tuning.Load(cfg.TuningPath)
	if errors.Is(err, fs.ErrNotExist) {
		tune = tuning.Defaults()
	} else if err != nil {
		return nil, fmt.Errorf("load tuning: %w", err)
	}
	cats, err := catalogs.Load(cfg.ConfigDir)
	if err != nil {
		return nil, fmt.Errorf("load catalogs: %w", err)
	}
	scn, err := sandbox.LoadScenario(cfg.ScenarioPath)
	if err != nil {
		return nil, err
	}
	w, observers, err := scn.Build()
	if err != nil {
		return nil, err
	}

	logger := zap.NewNop()
	loop := sched.NewLoop(logger)
	rec := &recorder{tick: loop.CurrentTick, next: sandbox.NewDisplay()}
	sess, err := session.New(session.Deps{
		World:    w,
		Display:  rec,
		Factory:  sandbox.Factory{},
		Catalogs: catalogs.NewRegistry(cats),
		Tuning:   tune,
		Loop:     loop,
		Logger:   logger,
	})
	if err != nil {
		return nil, err
	}
	runner := sandbox.NewRunner(w, observers, scn.Steps, sandbox.Hooks{
		Interact: func(o *sandbox.Observer, b host.Block) { sess.OnBlockInteract(o, b) },
		Leave:    func(o *sandbox.Observer) { sess.Leave(o) },
	})

	for _, o := range observers {
		sess.Join(o)
	}
	sess.Start()
	var stepErr error
	loop.Every(1, func() {
		if err := runner.Apply(loop.CurrentTick()); err != nil && stepErr == nil {
			stepErr = err
		}
	})

	ticks := cfg.Ticks
	if ticks == 0 {
		ticks = runner.LastTick() + uint64(tune.Pause.RecheckTicks+tune.RestoreDelayTicks+2*tune.PulseTicks)
	}
	for loop.CurrentTick() < ticks {
		loop.Advance(1)
		if stepErr != nil {
			return nil, stepErr
		}
	}
	sess.Close()
	return rec.entries, nil
}

// recorder is a display that keeps overlay entries in memory, shaped like the server's log.
type recorder struct {
	tick    func() uint64
	next    host.Display
	entries []persistlog.OverlayEntry
}

func (r *recorder) Show(observerID string, o host.Overlay) error {
	r.entries = append(r.entries, persistlog.OverlayEntry{
		Tick: r.tick(), Observer: observerID, Op: persistlog.OpShow, Digest: persistlog.OverlayDigest(o), Overlay: &o,
	})
	return r.next.Show(observerID, o)
}

func (r *recorder) Clear(observerID string) error {
	r.entries = append(r.entries, persistlog.OverlayEntry{Tick: r.tick(), Observer: observerID, Op: persistlog.OpClear})
	return r.next.Clear(observerID)
}

func loadRecorded(dir string) ([]persistlog.OverlayEntry, error) {
	files, err := persistlog.ListFiles(dir, "overlays")
	if err != nil {
		return nil, err
	}
	var out []persistlog.OverlayEntry
	for _, path := range files {
		err := persistlog.ReadJSONL(path, func(e persistlog.OverlayEntry) error {
			out = append(out, e)
			return nil
		})
		if err != nil {
			return nil, err
		}
	}
	return out, nil
}

// compare diffs the entries up to the last recorded tick. Payloads are compared by digest.
func compare(want, got []persistlog.OverlayEntry) string {
	last := want[len(want)-1].Tick
	trimmed := got[:0:0]
	for _, e := range got {
		if e.Tick <= last {
			trimmed = append(trimmed, e)
		}
	}
	return cmp.Diff(want, trimmed, cmpopts.IgnoreFields(persistlog.OverlayEntry{}, "Overlay"), cmpopts.EquateEmpty())
}

func printEntries(w io.Writer, entries []persistlog.OverlayEntry) {
	for _, e := range entries {
		if e.Op == persistlog.OpClear {
			fmt.Fprintf(w, "%6d %s clear\n", e.Tick, e.Observer)
			continue
		}
		fmt.Fprintf(w, "%6d %s show %s %s | %s\n", e.Tick, e.Observer, e.Digest[:12], plain(e.Overlay.Title), plain(e.Overlay.Subtitle))
	}
}

// plain flattens text nodes for terminal output; translate keys are shown in braces.
func plain(nodes []host.TextNode) string {
	s := ""
	for _, n := range nodes {
		if n.Translate != "" {
			s += "{" + n.Translate + "}"
			continue
		}
		s += n.Text
	}
	return s
}
