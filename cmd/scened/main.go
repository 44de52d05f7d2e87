package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/heptiolabs/healthcheck"
	"github.com/l1jgo/scenecore/internal/animation"
	"github.com/l1jgo/scenecore/internal/blueprint"
	"github.com/l1jgo/scenecore/internal/camera"
	"github.com/l1jgo/scenecore/internal/config"
	"github.com/l1jgo/scenecore/internal/core/async"
	"github.com/l1jgo/scenecore/internal/core/event"
	coresys "github.com/l1jgo/scenecore/internal/core/system"
	"github.com/l1jgo/scenecore/internal/metrics"
	"github.com/l1jgo/scenecore/internal/persist"
	"github.com/l1jgo/scenecore/internal/physics"
	"github.com/l1jgo/scenecore/internal/scene"
	"github.com/l1jgo/scenecore/internal/scripting"
	"github.com/l1jgo/scenecore/internal/system"
	"github.com/pkg/profile"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
		os.Exit(1)
	}
}

// ── Startup display helpers ────────────────────────────────────────

func printBanner(name string, tick time.Duration) {
	fmt.Println()
	fmt.Println("\033[36;1m  ┌───────────────────────────────────────────┐\033[0m")
	fmt.Println("\033[36;1m  │\033[0m              scened  v0.1.0               \033[36;1m│\033[0m")
	fmt.Println("\033[36;1m  │\033[0m         場景物件與元件生命週期執行環境    \033[36;1m│\033[0m")
	fmt.Println("\033[36;1m  └───────────────────────────────────────────┘\033[0m")
	fmt.Println()
	fmt.Printf("  \033[1m執行個體:\033[0m %s \033[90m(tick: %s)\033[0m\n\n", name, tick)
}

// displayWidth counts CJK runes as two columns.
func displayWidth(s string) int {
	w := 0
	for _, r := range s {
		if r > 0x7F {
			w += 2
		} else {
			w++
		}
	}
	return w
}

func printSection(title string) {
	lineLen := max(46-displayWidth(title)-1, 3)
	fmt.Printf("  \033[33m── %s %s\033[0m\n", title, strings.Repeat("─", lineLen))
}

func printStat(label string, count int) {
	numStr := fmt.Sprintf("%d", count)
	dotsLen := max(42-displayWidth(label)-len(numStr), 3)
	fmt.Printf("  %s \033[90m%s\033[0m \033[32m%s\033[0m\n", label, strings.Repeat("·", dotsLen), numStr)
}

func printOK(msg string) {
	fmt.Printf("  \033[32m✓\033[0m %s\n", msg)
}

func printReady(msg string) {
	fmt.Printf("  \033[32m▶\033[0m %s\n", msg)
}

// ── Runtime ───────────────────────────────────────────────────────

func run() error {
	cfgPath := flag.String("config", config.Path("config/scened.toml"), "config file")
	profMode := flag.String("profile", "", "write a cpu or mem profile to the working directory")
	flag.Parse()

	// 1. Load config
	cfg, err := config.Load(*cfgPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	// 2. Init logger
	log, err := newLogger(cfg.Logging)
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	defer log.Sync()

	switch *profMode {
	case "":
	case "cpu":
		defer profile.Start(profile.CPUProfile, profile.ProfilePath("."), profile.NoShutdownHook).Stop()
	case "mem":
		defer profile.Start(profile.MemProfileAllocs, profile.ProfilePath("."), profile.NoShutdownHook).Stop()
	default:
		return fmt.Errorf("unknown profile mode %q", *profMode)
	}

	printBanner(cfg.Runtime.Name, cfg.Runtime.TickRate)

	// 3. Scheduler, metrics and the scene manager
	printSection("場景執行環境")
	sched, err := async.NewScheduler(log.Named("async"), cfg.Runtime.CoroutinePoolSize)
	if err != nil {
		return fmt.Errorf("scheduler: %w", err)
	}
	defer sched.Close()

	promReg := prometheus.NewRegistry()
	promReg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	lifecycle, err := metrics.NewLifecycle(promReg, metrics.WithMeter(otel.Meter("scened")))
	if err != nil {
		return fmt.Errorf("metrics: %w", err)
	}

	bus := event.NewBus()
	factory := scene.NewFactory()
	mgr := scene.NewManager(log.Named("scene"), sched, factory,
		scene.WithBus(bus),
		scene.WithMetrics(lifecycle),
		scene.WithTracer(otel.Tracer("scened")),
		scene.WithDefaultWorldName(cfg.Runtime.DefaultWorld),
	)
	runner := coresys.NewRunner()
	subscribeSceneEvents(bus, log.Named("events"))

	// 4. Collaborators
	var steppers []system.Stepper
	if cfg.Physics.Enabled {
		if err := physics.RegisterComponents(factory); err != nil {
			return err
		}
		phys := physics.NewProcessor(log.Named("physics"), mgr, physics.Config{
			Gravity:    cfg.Physics.Gravity,
			Iterations: cfg.Physics.Iterations,
		})
		if err := mgr.RegisterProcessor(phys); err != nil {
			return err
		}
		steppers = append(steppers, phys)
		printOK("物理模擬已啟用")
	}

	if err := camera.RegisterComponents(factory); err != nil {
		return err
	}
	cams := camera.NewManager(log.Named("camera"), mgr)
	if err := mgr.RegisterProcessor(cams); err != nil {
		return err
	}

	if err := animation.RegisterComponents(factory); err != nil {
		return err
	}
	if err := mgr.RegisterProcessor(animation.NewProcessor(log.Named("animation"), mgr)); err != nil {
		return err
	}

	var engine *scripting.Engine
	if cfg.Scripting.Enabled {
		engine, err = scripting.NewEngine(cfg.Scripting.Dir, log.Named("lua"))
		if err != nil {
			return fmt.Errorf("scripting: %w", err)
		}
		defer engine.Close()
		if err := scripting.RegisterComponents(factory, engine); err != nil {
			return err
		}
		printStat("Lua 行為", len(engine.Behaviors()))
	}

	// 5. Journal (optional PostgreSQL)
	var (
		db      *persist.DB
		journal *system.JournalSystem
	)
	if cfg.Journal.Enabled {
		printSection("資料庫")
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		db, err = persist.NewDB(ctx, cfg.Database, log)
		if err != nil {
			cancel()
			return fmt.Errorf("database: %w", err)
		}
		defer db.Close()
		printOK("PostgreSQL 連線成功")
		version, err := db.Migrate(ctx)
		cancel()
		if err != nil {
			return fmt.Errorf("migrations: %w", err)
		}
		printStat("資料庫版本", int(version))

		journal = system.NewJournalSystem(persist.NewJournalRepo(db), runner.Ticks, log.Named("journal"), cfg.Journal.FlushIntervalTicks)
		if err := mgr.RegisterProcessor(journal); err != nil {
			return err
		}
		runner.Register(journal)
		fmt.Println()
	}

	preCtx, preCancel := context.WithTimeout(context.Background(), 10*time.Second)
	err = mgr.PreInit(preCtx)
	preCancel()
	if err != nil {
		return fmt.Errorf("pre-init: %w", err)
	}
	printStat("元件類型", len(factory.Names()))

	// 6. Tick systems
	runner.Register(system.NewEventDispatchSystem(bus))
	runner.Register(system.NewSceneUpdateSystem(mgr))
	runner.Register(system.NewSimulationSystem(steppers...))
	runner.Register(system.NewSceneSyncSystem(mgr, log))
	runner.Register(system.NewCleanupSystem(mgr, log))

	// 7. Blueprints
	printSection("場景藍圖")
	stage := blueprint.NewStage(log.Named("blueprint"), mgr)
	files, err := blueprint.Files(cfg.Blueprints.Dir)
	if err != nil {
		return fmt.Errorf("list blueprints: %w", err)
	}
	for _, f := range files {
		if _, err := stage.Load(f); err != nil {
			return fmt.Errorf("blueprint %s: %w", f, err)
		}
	}
	printStat("藍圖場景", len(files))

	var changes <-chan string
	if cfg.Blueprints.Watch {
		dirs := []string{cfg.Blueprints.Dir}
		if engine != nil {
			dirs = append(dirs, cfg.Scripting.Dir)
		}
		w, err := blueprint.NewWatcher(existing(dirs)...)
		if err != nil {
			return fmt.Errorf("watch blueprints: %w", err)
		}
		defer w.Close()
		changes = w.Events
		go func() {
			for err := range w.Errors {
				log.Warn("檔案監看錯誤", zap.Error(err))
			}
		}()
		printOK("藍圖熱重載已啟用")
	}
	fmt.Println()

	// 8. HTTP: metrics, health, scene dump
	var lastTick atomic.Int64
	lastTick.Store(time.Now().UnixNano())
	if cfg.HTTP.Enabled {
		srv := newHTTPServer(cfg, mgr, promReg, db, &lastTick)
		go func() {
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				log.Error("HTTP 伺服器錯誤", zap.Error(err))
			}
		}()
		defer srv.Close()
	}

	// 9. Start tick loop
	shutdownCh := make(chan os.Signal, 1)
	signal.Notify(shutdownCh, syscall.SIGINT, syscall.SIGTERM)

	ticker := time.NewTicker(cfg.Runtime.TickRate)
	defer ticker.Stop()

	printSection("執行環境就緒")
	if cfg.HTTP.Enabled {
		printReady(fmt.Sprintf("監控位址 %s", cfg.HTTP.BindAddress))
	}
	printReady(fmt.Sprintf("更新迴圈啟動 (tick: %s)", cfg.Runtime.TickRate))
	fmt.Println()

	var views []*camera.View
	for {
		select {
		case <-ticker.C:
			runner.Tick(cfg.Runtime.TickRate)
			lastTick.Store(time.Now().UnixNano())
			views = cams.SyncCameras(views,
				func(v *camera.View) { log.Info("攝影機加入", zap.Stringer("camera", v.Uid())) },
				func(v *camera.View) { log.Info("攝影機移除", zap.Stringer("camera", v.Uid())) },
			)
		case path, ok := <-changes:
			if !ok {
				changes = nil
				continue
			}
			reload(log, stage, engine, path)
		case sig := <-shutdownCh:
			log.Info("收到關閉信號", zap.String("signal", sig.String()))
			return shutdown(cfg, log, mgr, runner, journal)
		}
	}
}

func subscribeSceneEvents(bus *event.Bus, log *zap.Logger) {
	event.Subscribe(bus, func(e event.SceneActivated) {
		log.Info("場景已啟用", zap.String("scene", e.Name), zap.Stringer("uid", e.SceneUid))
	})
	event.Subscribe(bus, func(e event.SceneDeactivated) {
		log.Info("場景已停用", zap.String("scene", e.Name), zap.Stringer("uid", e.SceneUid))
	})
	event.Subscribe(bus, func(e event.WorldDestroyed) {
		log.Info("世界已銷毀", zap.String("world", e.Name))
	})
	event.Subscribe(bus, func(e event.ComponentsActivated) {
		log.Debug("元件已啟用", zap.Int("count", len(e.Components)), zap.Stringer("world", e.WorldUid))
	})
	event.Subscribe(bus, func(e event.ComponentsDeleting) {
		log.Debug("元件移除中", zap.Int("count", len(e.Components)))
	})
}

func reload(log *zap.Logger, stage *blueprint.Stage, engine *scripting.Engine, path string) {
	if strings.EqualFold(filepath.Ext(path), ".lua") {
		if engine == nil {
			return
		}
		if err := engine.Reload(path); err != nil {
			log.Error("Lua 腳本重新載入失敗", zap.String("file", path), zap.Error(err))
		}
		return
	}
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		stage.Unload(path)
		log.Info("藍圖已移除", zap.String("file", path))
		return
	}
	if _, err := stage.Load(path); err != nil {
		log.Error("藍圖重新載入失敗，保留目前場景", zap.String("file", path), zap.Error(err))
	}
}

func shutdown(cfg *config.Config, log *zap.Logger, mgr *scene.Manager, runner *coresys.Runner, journal *system.JournalSystem) error {
	ctx, cancel := context.WithTimeout(context.Background(), cfg.Runtime.ShutdownTimeout)
	defer cancel()

	if err := mgr.Wait(ctx, mgr.Shutdown()); err != nil {
		log.Error("場景關閉逾時", zap.Int("pending", mgr.PendingTeardowns()), zap.Error(err))
	}
	runner.TickPhase(coresys.PhaseCleanup, 0)
	if journal != nil {
		if err := journal.Flush(ctx); err != nil {
			log.Error("生命週期紀錄寫入失敗", zap.Int("pending", journal.Pending()), zap.Error(err))
		}
	}
	log.Info("執行環境已停止", zap.Uint64("ticks", runner.Ticks()))
	return nil
}

func existing(dirs []string) []string {
	out := dirs[:0]
	for _, d := range dirs {
		if st, err := os.Stat(d); err == nil && st.IsDir() {
			out = append(out, d)
		}
	}
	return out
}

func newHTTPServer(cfg *config.Config, mgr *scene.Manager, reg *prometheus.Registry, db *persist.DB, lastTick *atomic.Int64) *http.Server {
	health := healthcheck.NewHandler()
	stall := 20 * cfg.Runtime.TickRate
	health.AddLivenessCheck("tick", func() error {
		if since := time.Since(time.Unix(0, lastTick.Load())); since > stall {
			return fmt.Errorf("no tick for %s", since.Round(time.Millisecond))
		}
		return nil
	})
	health.AddLivenessCheck("goroutines", healthcheck.GoroutineCountCheck(10000))
	if db != nil {
		health.AddReadinessCheck("database", healthcheck.Timeout(func() error {
			return db.Pool.Ping(context.Background())
		}, time.Second))
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	mux.HandleFunc("/live", health.LiveEndpoint)
	mux.HandleFunc("/ready", health.ReadyEndpoint)
	mux.HandleFunc("/debug/scenes", func(w http.ResponseWriter, r *http.Request) {
		out := make(chan string, 1)
		if err := mgr.Post(func() { out <- dumpScenes(mgr) }); err != nil {
			http.Error(w, err.Error(), http.StatusServiceUnavailable)
			return
		}
		select {
		case s := <-out:
			w.Header().Set("Content-Type", "text/plain; charset=utf-8")
			fmt.Fprint(w, s)
		case <-r.Context().Done():
		case <-time.After(5 * time.Second):
			http.Error(w, "scene thread busy", http.StatusServiceUnavailable)
		}
	})
	return &http.Server{
		Addr:              cfg.HTTP.BindAddress,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
}

// dumpScenes runs on the scene thread.
func dumpScenes(mgr *scene.Manager) string {
	var b strings.Builder
	for _, w := range mgr.Worlds() {
		fmt.Fprintf(&b, "world %s\n", w.Name())
		for _, s := range w.Scenes() {
			fmt.Fprintf(&b, "scene %s [%s]\n", s.Name(), s.ActivationState())
			b.WriteString(scene.DumpTree(s.Root()))
		}
	}
	return b.String()
}

func newLogger(cfg config.LoggingConfig) (*zap.Logger, error) {
	var level zapcore.Level
	if err := level.UnmarshalText([]byte(cfg.Level)); err != nil {
		level = zapcore.InfoLevel
	}

	var zapCfg zap.Config
	if cfg.Format == "json" {
		zapCfg = zap.NewProductionConfig()
	} else {
		zapCfg = zap.NewDevelopmentConfig()
		zapCfg.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
		zapCfg.EncoderConfig.EncodeTime = zapcore.TimeEncoderOfLayout("15:04:05")
		zapCfg.EncoderConfig.ConsoleSeparator = "  "
		zapCfg.DisableCaller = true
		zapCfg.DisableStacktrace = true
	}
	zapCfg.Level = zap.NewAtomicLevelAt(level)

	return zapCfg.Build()
}
