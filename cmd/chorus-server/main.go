package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/chorus-chat/chorus/internal/assembler"
	"github.com/chorus-chat/chorus/internal/config"
	"github.com/chorus-chat/chorus/internal/decision"
	"github.com/chorus-chat/chorus/internal/engine"
	"github.com/chorus-chat/chorus/internal/importer"
	"github.com/chorus-chat/chorus/internal/llm"
	"github.com/chorus-chat/chorus/internal/memory"
	"github.com/chorus-chat/chorus/internal/notify"
	"github.com/chorus-chat/chorus/internal/server"
	"github.com/chorus-chat/chorus/internal/services"
	"github.com/chorus-chat/chorus/internal/storage"
	"github.com/chorus-chat/chorus/internal/storage/postgres"
	redisstore "github.com/chorus-chat/chorus/internal/storage/redis"
	"github.com/chorus-chat/chorus/internal/storage/sqlite"
	"github.com/chorus-chat/chorus/web/handlers"
)

// store is the combined persistence surface the daemon needs from one
// backend. Both the SQLite and Postgres stores satisfy it.
type store interface {
	storage.MemoryStore
	storage.MessageStore
	storage.EntityStore
	storage.CooldownStore
}

func main() {
	configPath := flag.String("config", "", "Path to YAML config overlay (default: config/chorus.yaml if present)")
	flag.Parse()

	if *configPath == "" {
		defaultPath := "config/chorus.yaml"
		if _, err := os.Stat(defaultPath); err == nil {
			*configPath = defaultPath
		}
	}

	var cfg *config.Config
	var err error
	if *configPath != "" {
		log.Printf("Using config overlay: %s", *configPath)
		cfg, err = config.LoadConfigFromFile(*configPath)
	} else {
		cfg, err = config.LoadConfig()
	}
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	db, err := openStore(cfg)
	if err != nil {
		log.Fatalf("Failed to initialize storage: %v", err)
	}
	defer db.Close()
	log.Printf("Using storage engine: %s", cfg.Storage.StorageEngine)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Cooldown records live in Redis when enabled, otherwise in the SQL
	// store alongside everything else.
	var cooldowns storage.CooldownStore = db
	if cfg.Redis.Enabled {
		rs, err := redisstore.NewStore(ctx, redisURL(cfg.Redis))
		if err != nil {
			log.Fatalf("Failed to connect to Redis: %v", err)
		}
		defer rs.Close()
		cooldowns = rs
		log.Printf("Using Redis cooldown store at %s", cfg.Redis.Addr)
	}

	chat, err := llm.NewChatGenerator(cfg.LLM)
	if err != nil {
		log.Fatalf("Failed to initialize chat provider: %v", err)
	}
	embedder, err := llm.NewEmbeddingGenerator(cfg.LLM)
	if err != nil {
		log.Fatalf("Failed to initialize embedding provider: %v", err)
	}
	keywords := llm.NewKeywordExtractor()
	chunker := llm.NewTextChunker()

	shortTerm := memory.NewShortTermService(db, db, keywords, cfg.Memory.ChunkMessageWindow, cfg.Memory.MaxKeywords)
	longTerm := memory.NewLongTermService(db, db, chat, embedder, keywords, chunker, cfg.Memory.MaxKeywords)
	personality := memory.NewPersonalityService(db, embedder, keywords, chunker,
		cfg.Memory.ArchiveChunkSize, cfg.Memory.ArchiveChunkOverlap, cfg.Memory.MaxKeywords)
	retriever := memory.NewRetriever(db, embedder, memory.RetrieverConfig{
		VectorWeight:        cfg.Memory.VectorWeight,
		KeywordWeight:       cfg.Memory.KeywordWeight,
		RRFK:                cfg.Memory.RRFK,
		ShortTermBoost:      cfg.Memory.ShortTermLayerBoost,
		LongTermBoost:       cfg.Memory.LongTermLayerBoost,
		PersonalityBoost:    cfg.Memory.PersonalityBoost,
		CandidatesPerLayer:  cfg.Memory.CandidatesPerLayer,
		MaxRetrieved:        cfg.Memory.MaxRetrieved,
		GuaranteedShortTerm: cfg.Memory.GuaranteedShortTerm,
	})

	entities := services.NewEntityService(db)
	decisions := decision.NewEngine(decision.NewCooldownTracker(cooldowns))
	contexts := assembler.NewAssembler(db, db, retriever, cfg.Memory.MaxContextMessages)
	personas := importer.NewImporter(db, personality)

	pipeline := engine.NewPipeline(shortTerm, longTerm, db, engine.Config{
		NumWorkers: cfg.Pipeline.NumWorkers,
		QueueSize:  cfg.Pipeline.QueueSize,
	})
	retention := engine.NewRetentionManager(db,
		time.Duration(cfg.Memory.ShortTermTTLDays)*24*time.Hour, cfg.Pipeline.RetentionInterval)

	addr, wsHub := server.Start(ctx, cfg, server.Deps{
		Entities:  entities,
		Decisions: decisions,
		Memories:  db,
		Embedder:  embedder,
		Assembler: contexts,
		Queue:     pipeline,
		Pipeline: handlers.PipelineInfo{
			QueueCapacity: cfg.Pipeline.QueueSize,
			Workers:       cfg.Pipeline.NumWorkers,
		},
		Sweeper:  retention,
		Importer: personas,
	})
	log.Printf("Chorus ops API running at http://%s", addr)

	// Completed jobs feed the activity websocket. Registered before the
	// workers start so no completion is missed.
	pipeline.SetOnComplete(func(res engine.Result) {
		event := handlers.ActivityEvent{
			Type:           "job_completed",
			Kind:           string(res.Job.Kind),
			EntityID:       res.Job.EntityID,
			ConversationID: res.Job.ConversationID,
			ChunksCreated:  res.ChunksCreated,
			FactsCreated:   res.FactsCreated,
			DurationMillis: res.Duration.Milliseconds(),
			At:             time.Now().UTC(),
		}
		if res.Err != nil {
			event.Error = res.Err.Error()
		}
		wsHub.Broadcast(event)
	})
	if err := pipeline.Start(); err != nil {
		log.Fatalf("Failed to start consolidation pipeline: %v", err)
	}
	if err := retention.Start(); err != nil {
		log.Fatalf("Failed to start retention manager: %v", err)
	}

	watcher := startPersonaImport(ctx, cfg, personas)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan

	log.Println("Shutting down gracefully...")

	if watcher != nil {
		watcher.Stop()
	}
	retention.Stop()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()
	if err := pipeline.Stop(shutdownCtx); err != nil {
		log.Printf("Error stopping pipeline: %v", err)
	}

	cancel()
	time.Sleep(1 * time.Second) // Give time for connections to close
}

// openStore opens the configured storage backend.
func openStore(cfg *config.Config) (store, error) {
	switch cfg.Storage.StorageEngine {
	case "postgres":
		return postgres.NewStore(cfg.Storage.PostgresDSN, cfg.LLM.EmbeddingDimensions)
	default:
		if err := os.MkdirAll(cfg.Storage.DataPath, 0755); err != nil {
			return nil, fmt.Errorf("failed to create data directory: %w", err)
		}
		return sqlite.NewStore(cfg.Storage.DataPath + "/chorus.db")
	}
}

// redisURL builds a redis:// URL from the discrete config fields.
func redisURL(cfg config.RedisConfig) string {
	if cfg.Password != "" {
		return fmt.Sprintf("redis://:%s@%s/%d", cfg.Password, cfg.Addr, cfg.DB)
	}
	return fmt.Sprintf("redis://%s/%d", cfg.Addr, cfg.DB)
}

// startPersonaImport runs the initial persona directory import and, when
// configured, starts the change watcher. A missing directory disables both.
func startPersonaImport(ctx context.Context, cfg *config.Config, personas *importer.Importer) *notify.Watcher {
	dir := cfg.Personas.Dir
	if dir == "" {
		return nil
	}
	if _, err := os.Stat(dir); err != nil {
		log.Printf("Personas directory %s not found, skipping import", dir)
		return nil
	}

	files, chunks, err := personas.ImportDir(ctx, dir)
	if err != nil {
		log.Printf("Persona import failed: %v", err)
	} else if files > 0 {
		log.Printf("Imported %d persona file(s), %d chunk(s)", files, chunks)
	}

	if !cfg.Personas.Watch {
		return nil
	}
	watcher := notify.NewWatcher(dir, cfg.Personas.DebounceDelay, personas)
	if err := watcher.Start(); err != nil {
		log.Printf("Persona watcher failed to start: %v", err)
		return nil
	}
	return watcher
}
