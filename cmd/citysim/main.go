// Command citysim runs the tile city simulation and its HTTP API.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/talgya/tilecity/internal/agents"
	"github.com/talgya/tilecity/internal/api"
	"github.com/talgya/tilecity/internal/config"
	"github.com/talgya/tilecity/internal/engine"
	"github.com/talgya/tilecity/internal/entropy"
	"github.com/talgya/tilecity/internal/llm"
	"github.com/talgya/tilecity/internal/persistence"
)

func main() {
	configPath := flag.String("config", "", "YAML file overlaid on the built-in tuning")
	exportPath := flag.String("export", "", "write the saved city to a snapshot file and exit")
	importPath := flag.String("import", "", "replace the saved city with a snapshot file before starting")
	fresh := flag.Bool("reset", false, "erase the saved city and start over")
	flag.Parse()

	// A local .env never overrides variables already set.
	dotenvErr := godotenv.Load()

	cfg, err := config.Load(*configPath)
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: cfg.SlogLevel(),
	}))
	slog.SetDefault(logger)
	if dotenvErr == nil {
		slog.Info("loaded .env")
	}

	catalog, err := cfg.Catalog()
	if err != nil {
		slog.Error("invalid building catalog", "error", err)
		os.Exit(1)
	}

	// ── Database ──────────────────────────────────────────────────────
	db, err := persistence.Open(cfg.Server.DBPath)
	if err != nil {
		slog.Error("failed to open database", "error", err)
		os.Exit(1)
	}
	defer db.Close()
	slog.Info("database opened", "path", cfg.Server.DBPath)

	if *exportPath != "" {
		if err := exportSnapshot(db, *exportPath); err != nil {
			slog.Error("export failed", "error", err)
			os.Exit(1)
		}
		return
	}

	// ── Store ─────────────────────────────────────────────────────────
	store := engine.NewStore(engine.Options{
		GridSize:   cfg.GridSize,
		StartMoney: cfg.StartMoney,
		DecayRate:  cfg.DecayRate,
		NewsLimit:  cfg.NewsLimit,
		Catalog:    catalog,
		Persister:  db,
	})

	doc, err := loadDocument(db, *importPath, *fresh)
	if err != nil {
		slog.Error("failed to load city", "error", err)
		os.Exit(1)
	}
	if len(doc) > 0 {
		errs := store.Restore(doc)
		snap := store.Snapshot()
		slog.Info("city restored",
			"day", snap.Stats.Day,
			"money", snap.Stats.Money,
			"population", snap.Stats.Population,
			"fields_reset", len(errs),
		)
	} else {
		slog.Info("no saved city found, starting fresh", "grid_size", cfg.GridSize)
	}

	// ── Goal and news generation ──────────────────────────────────────
	llmClient := llm.NewClient(llm.Config{
		APIKey:    cfg.LLM.APIKey,
		URL:       cfg.LLM.URL,
		Model:     cfg.LLM.Model,
		MaxPerMin: cfg.LLM.MaxPerMin,
	})
	if llmClient != nil {
		slog.Info("LLM client enabled", "model", cfg.LLM.Model)
	} else {
		slog.Warn("ANTHROPIC_API_KEY not set, goals and news use local templates")
	}
	gen := llm.NewGenerator(llmClient, entropy.NewRand())

	bridge := engine.NewBridge(store, gen, gen)
	bridge.GoalRetry = cfg.GoalRetry()
	bridge.NewsInterval = cfg.NewsInterval()
	bridge.Timeout = cfg.LLMTimeout()

	// ── Drivers ───────────────────────────────────────────────────────
	field := agents.NewField(agents.Config{
		MaxVehicles:            cfg.Agents.MaxVehicles,
		MaxPedestrians:         cfg.Agents.MaxPedestrians,
		BasePedestrians:        cfg.Agents.BasePedestrians,
		ResidentsPerPedestrian: cfg.Agents.ResidentsPerPedestrian,
	}, entropy.NewRand(), entropy.Seed())

	eng := engine.NewEngine(store)
	eng.TickInterval = cfg.TickInterval()
	eng.FrameInterval = cfg.FrameInterval()
	eng.OnTick = func(snap engine.Snapshot) {
		slog.Debug("tick", "day", snap.Stats.Day, "money", snap.Stats.Money, "population", snap.Stats.Population)
	}
	eng.OnFrame = func(dt time.Duration, fs engine.FrameState) {
		field.Sync(fs.Grid, fs.GridVersion, fs.Population)
		field.Step(dt)
	}

	// ── HTTP API ──────────────────────────────────────────────────────
	if cfg.Server.AdminKey == "" {
		slog.Warn("CITYSIM_ADMIN_KEY not set, reset and snapshot endpoints are open")
	}
	framePush := time.Second / 10
	if cfg.Server.FramePushHz > 0 {
		framePush = time.Second / time.Duration(cfg.Server.FramePushHz)
	}
	apiServer := &api.Server{
		Store:       store,
		Field:       field,
		SnapshotDir: cfg.Server.SnapshotDir,
		Port:        cfg.Server.Port,
		AdminKey:    cfg.Server.AdminKey,
		FramePush:   framePush,
	}

	// ── Start ─────────────────────────────────────────────────────────
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var wg sync.WaitGroup
	run := func(f func(context.Context)) {
		wg.Add(1)
		go func() {
			defer wg.Done()
			f(ctx)
		}()
	}
	run(eng.RunTicks)
	run(eng.RunFrames)
	run(bridge.Run)

	fmt.Printf("\nCity is up: %dx%d grid, day %d.\n", cfg.GridSize, cfg.GridSize, store.Snapshot().Stats.Day)
	fmt.Printf("API: http://localhost:%d/api/v1/status\n", cfg.Server.Port)
	fmt.Println("Waiting for the mayor... (Ctrl+C to stop)")

	if err := apiServer.Run(ctx); err != nil {
		slog.Error("HTTP server error", "error", err)
		stop()
	}
	slog.Info("shutting down")
	wg.Wait()

	// Final save on shutdown.
	finalDoc, err := store.Snapshot().Document()
	if err == nil {
		err = db.Save(finalDoc)
	}
	if err != nil {
		slog.Error("final save failed", "error", err)
		os.Exit(1)
	}
	fmt.Println("City stopped. State saved.")
}

// loadDocument returns the document to restore: the import file when given,
// otherwise whatever the database holds. fresh erases the saved city first.
func loadDocument(db *persistence.DB, importPath string, fresh bool) (engine.Document, error) {
	if fresh {
		if err := db.Clear(); err != nil {
			return nil, fmt.Errorf("clear saved city: %w", err)
		}
		slog.Info("saved city erased")
	}
	if importPath == "" {
		has, err := db.HasSnapshot()
		if err != nil || !has {
			return nil, err
		}
		savedAt, err := db.SavedAt()
		if err != nil {
			slog.Warn("unreadable save time", "error", err)
		}
		slog.Info("saved city found", "saved_at", savedAt)
		return db.Load()
	}
	hdr, doc, err := persistence.ReadSnapshot(importPath)
	if err != nil {
		return nil, fmt.Errorf("import %s: %w", importPath, err)
	}
	if err := db.SaveMeta("imported_from", importPath); err != nil {
		return nil, fmt.Errorf("record import: %w", err)
	}
	slog.Info("snapshot imported", "path", importPath, "saved_at", hdr.SavedAt, "keys", hdr.Keys)
	return doc, nil
}

func exportSnapshot(db *persistence.DB, path string) error {
	doc, err := db.Load()
	if err != nil {
		return err
	}
	if len(doc) == 0 {
		return fmt.Errorf("no saved city to export")
	}
	if err := persistence.WriteSnapshot(path, doc); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	savedAt, _ := db.SavedAt()
	slog.Info("snapshot exported", "path", path, "keys", len(doc), "saved_at", savedAt)
	return nil
}
