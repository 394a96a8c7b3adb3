package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io/fs"
	"net"
	"net/http"
	"net/http/pprof"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"voxelhud.ai/internal/logging"
	"voxelhud.ai/internal/persistence/kvstore"
	persistlog "voxelhud.ai/internal/persistence/log"
	"voxelhud.ai/internal/persistence/snapshot"
	"voxelhud.ai/internal/sim/catalogs"
	"voxelhud.ai/internal/sim/host"
	"voxelhud.ai/internal/sim/sandbox"
	"voxelhud.ai/internal/sim/sched"
	"voxelhud.ai/internal/sim/session"
	"voxelhud.ai/internal/sim/settings"
	"voxelhud.ai/internal/sim/tuning"
	"voxelhud.ai/internal/transport/hud"
)

type serverConfig struct {
	Addr          string
	ConfigDir     string
	TuningPath    string
	ScenarioPath  string
	DataDir       string
	DBPath        string
	TickHz        int
	AllowRemote   bool
	WatchCatalogs bool
	EnableAdmin   bool

	// SnapshotPath seeds the property store before observers join.
	SnapshotPath   string
	SnapshotOnExit bool
}

func main() {
	var (
		addr        = flag.String("addr", "127.0.0.1:8080", "http listen address")
		configDir   = flag.String("configs", "./configs", "config directory")
		tuningPath  = flag.String("tuning", "", "path to tuning.yaml (default: <configs>/tuning.yaml)")
		scenario    = flag.String("scenario", "", "sandbox scenario yaml (default: <configs>/scenarios/demo.yaml)")
		dataDir     = flag.String("data", "./data", "runtime data directory")
		dbPath      = flag.String("db", "", "sqlite property store (default: <data>/props.sqlite; \"off\" keeps properties in memory)")
		tickHz      = flag.Int("tick_hz", 20, "loop ticks per second")
		allowRemote = flag.Bool("allow_remote_hud", false, "accept HUD websocket clients from non-loopback addresses")
		watch       = flag.Bool("watch_catalogs", true, "hot-reload catalogs when their files change")
		enableAdmin = flag.Bool("admin_http", defaultEnableAdminHTTP(), "serve /admin/v1 and /debug/pprof on loopback (or set VH_ENABLE_ADMIN_HTTP)")
		snapPath    = flag.String("snapshot", "", "property snapshot to restore into the store at startup (optional)")
		snapOnExit  = flag.Bool("snapshot_on_exit", true, "write <data>/snapshots/<tick>.snap.zst on shutdown")
	)
	flag.Parse()

	cfg := serverConfig{
		Addr:          strings.TrimSpace(*addr),
		ConfigDir:     *configDir,
		TuningPath:    strings.TrimSpace(*tuningPath),
		ScenarioPath:  strings.TrimSpace(*scenario),
		DataDir:       *dataDir,
		DBPath:        strings.TrimSpace(*dbPath),
		TickHz:        *tickHz,
		AllowRemote:   *allowRemote,
		WatchCatalogs: *watch,
		EnableAdmin:   *enableAdmin,

		SnapshotPath:   strings.TrimSpace(*snapPath),
		SnapshotOnExit: *snapOnExit,
	}
	if cfg.TuningPath == "" {
		cfg.TuningPath = filepath.Join(cfg.ConfigDir, "tuning.yaml")
	}
	if cfg.ScenarioPath == "" {
		cfg.ScenarioPath = filepath.Join(cfg.ConfigDir, "scenarios", "demo.yaml")
	}
	if cfg.DBPath == "" {
		cfg.DBPath = filepath.Join(cfg.DataDir, "props.sqlite")
	}

	logCfg, err := logging.LoadConfig(filepath.Join(cfg.ConfigDir, "logging.yaml"))
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		fmt.Fprintln(os.Stderr, "load logging config:", err)
		os.Exit(1)
	}
	logger, closer, err := logging.New(logCfg)
	if err != nil {
		fmt.Fprintln(os.Stderr, "logging:", err)
		os.Exit(1)
	}
	logger = logger.Named("server")

	ctx, cancel := signalContext()
	err = run(ctx, cfg, logger)
	cancel()
	_ = logger.Sync()
	_ = closer.Close()
	if err != nil {
		fmt.Fprintln(os.Stderr, "server:", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg serverConfig, logger *zap.Logger) error {
	if cfg.TickHz <= 0 {
		return fmt.Errorf("tick_hz must be positive, got %d", cfg.TickHz)
	}

	tune, err := tuning.Load(cfg.TuningPath)
	if errors.Is(err, fs.ErrNotExist) {
		logger.Info("tuning not found; using defaults", zap.String("path", cfg.TuningPath))
		tune = tuning.Defaults()
	} else if err != nil {
		return fmt.Errorf("load tuning: %w", err)
	}

	cats, err := catalogs.Load(cfg.ConfigDir)
	if err != nil {
		return fmt.Errorf("load catalogs: %w", err)
	}
	reg := catalogs.NewRegistry(cats)

	scn, err := sandbox.LoadScenario(cfg.ScenarioPath)
	if err != nil {
		return fmt.Errorf("load scenario: %w", err)
	}
	w, observers, err := scn.Build()
	if err != nil {
		return fmt.Errorf("build scenario: %w", err)
	}

	// Optional durable property store. Without it observer state lives and dies with the process.
	var db *kvstore.SQLite
	if cfg.DBPath != "off" {
		db, err = kvstore.OpenSQLite(cfg.DBPath, tune.Backup.EntryLimit, logger)
		if err != nil {
			return fmt.Errorf("open property store: %w", err)
		}
		defer db.Close()
		if cfg.SnapshotPath != "" {
			snap, err := snapshot.ReadSnapshot(cfg.SnapshotPath)
			if err != nil {
				return fmt.Errorf("read snapshot: %w", err)
			}
			n, err := snapshot.Restore(snap, db)
			if err != nil {
				return fmt.Errorf("restore snapshot: %w", err)
			}
			logger.Info("restored property snapshot", zap.String("path", cfg.SnapshotPath), zap.Int("props", n), zap.Int("actors", snap.Header.Actors))
		}
		for _, o := range observers {
			o.Props = db.Scope(o.ID())
		}
		if err := db.RecordCatalogs(ctx, cats.Digests()); err != nil {
			logger.Warn("record catalog digests", zap.Error(err))
		}
	}

	loop := sched.NewLoop(logger)
	backend := &sessionBackend{}

	hudSrv := hud.NewServer(backend, loop.Post, hud.Options{
		Defaults:    tune.Settings,
		Tick:        loop.CurrentTick,
		Catalogs:    func() map[string]string { return reg.Current().Digests() },
		AllowRemote: cfg.AllowRemote,
	}, logger)
	overlays := persistlog.NewOverlayLogger(cfg.DataDir, hudSrv, loop.CurrentTick, logger)
	defer overlays.Close()
	audit := persistlog.NewAuditLogger(cfg.DataDir, logger)
	defer audit.Close()

	sess, err := session.New(session.Deps{
		World:      w,
		Display:    overlays,
		Factory:    sandbox.Factory{},
		Catalogs:   reg,
		Tuning:     tune,
		Loop:       loop,
		Logger:     logger,
		Recorder:   audit,
		Registerer: prometheus.DefaultRegisterer,
	})
	if err != nil {
		return err
	}
	backend.sess = sess

	runner := sandbox.NewRunner(w, observers, scn.Steps, sandbox.Hooks{
		Interact: func(o *sandbox.Observer, b host.Block) { sess.OnBlockInteract(o, b) },
		Leave:    func(o *sandbox.Observer) { sess.Leave(o) },
	})

	// Nothing else touches the session until the loop runs, so joining here is safe.
	for _, o := range observers {
		sess.Join(o)
	}
	sess.Start()
	loop.Every(1, func() {
		if err := runner.Apply(loop.CurrentTick()); err != nil {
			logger.Warn("scenario step", zap.Error(err))
		}
	})
	logger.Info("hud session started",
		zap.Int("observers", len(observers)),
		zap.String("scenario", filepath.Base(cfg.ScenarioPath)),
		zap.Int("tick_hz", cfg.TickHz),
	)

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(rw http.ResponseWriter, r *http.Request) {
		rw.WriteHeader(http.StatusOK)
		_, _ = rw.Write([]byte("ok"))
	})
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/v1/hud/ws", hudSrv.Handler())
	if cfg.EnableAdmin {
		mux.HandleFunc("/admin/v1/metrics", loopbackOnly(func(rw http.ResponseWriter, r *http.Request) {
			rw.Header().Set("Content-Type", "application/json")
			_ = json.NewEncoder(rw).Encode(sess.Metrics())
		}))
		mux.HandleFunc("/debug/pprof/", loopbackOnly(pprof.Index))
		mux.HandleFunc("/debug/pprof/cmdline", loopbackOnly(pprof.Cmdline))
		mux.HandleFunc("/debug/pprof/profile", loopbackOnly(pprof.Profile))
		mux.HandleFunc("/debug/pprof/symbol", loopbackOnly(pprof.Symbol))
		mux.HandleFunc("/debug/pprof/trace", loopbackOnly(pprof.Trace))
	}

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return loop.Run(gctx, time.Second/time.Duration(cfg.TickHz))
	})
	if cfg.WatchCatalogs {
		g.Go(func() error {
			return catalogs.Watch(gctx, cfg.ConfigDir, reg, logger)
		})
	}
	g.Go(func() error {
		logger.Info("listening", zap.String("addr", cfg.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		err := srv.Shutdown(shutdownCtx)
		// Hijacked websocket conns outlive Shutdown.
		_ = hudSrv.Close()
		return err
	})
	err = g.Wait()

	// The loop has stopped; restoring borrows from this goroutine is safe now.
	sess.Close()
	logger.Info("hud session closed", zap.Any("metrics", sess.Metrics()))

	if db != nil && cfg.SnapshotOnExit {
		tick := loop.CurrentTick()
		path := filepath.Join(cfg.DataDir, "snapshots", fmt.Sprintf("%d.snap.zst", tick))
		snap, serr := snapshot.Take(context.Background(), db, tick)
		if serr == nil {
			serr = snapshot.WriteSnapshot(path, snap)
		}
		if serr != nil {
			logger.Warn("snapshot on exit", zap.Error(serr))
		} else {
			logger.Info("wrote property snapshot", zap.String("path", path), zap.Int("actors", snap.Header.Actors))
		}
	}
	return err
}

// sessionBackend lets the HUD server be built before the session it serves.
type sessionBackend struct {
	sess *session.Session
}

func (b *sessionBackend) Observer(id string) (host.Observer, bool) {
	if b.sess == nil {
		return nil, false
	}
	return b.sess.Observer(id)
}

func (b *sessionBackend) UpdateSettings(o host.Observer, s settings.Settings) error {
	if b.sess == nil {
		return errors.New("session not ready")
	}
	return b.sess.UpdateSettings(o, s)
}

func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
}

func loopbackOnly(h http.HandlerFunc) http.HandlerFunc {
	return func(rw http.ResponseWriter, r *http.Request) {
		if !isLoopbackRemote(r.RemoteAddr) {
			http.Error(rw, "forbidden", http.StatusForbidden)
			return
		}
		h(rw, r)
	}
}

func isLoopbackRemote(remoteAddr string) bool {
	h, _, err := net.SplitHostPort(strings.TrimSpace(remoteAddr))
	if err != nil {
		return false
	}
	ip := net.ParseIP(h)
	return ip != nil && ip.IsLoopback()
}

func defaultEnableAdminHTTP() bool {
	v := strings.ToLower(strings.TrimSpace(os.Getenv("VH_ENABLE_ADMIN_HTTP")))
	switch v {
	case "0", "false", "no", "off":
		return false
	default:
		return true
	}
}
