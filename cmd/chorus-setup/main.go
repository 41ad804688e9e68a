package main

import (
	"context"
	"database/sql"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/lib/pq"

	"github.com/chorus-chat/chorus/internal/config"
	"github.com/chorus-chat/chorus/internal/storage/postgres"
	redisstore "github.com/chorus-chat/chorus/internal/storage/redis"
	"github.com/chorus-chat/chorus/internal/storage/sqlite"
)

func main() {
	configPath := flag.String("config", "", "Path to YAML config overlay (default: config/chorus.yaml if present)")
	verify := flag.Bool("verify", false, "Check connectivity without initializing anything")
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
		cfg, err = config.LoadConfigFromFile(*configPath)
	} else {
		cfg, err = config.LoadConfig()
	}
	if err != nil {
		fmt.Printf("ERROR: Failed to load config: %v\n", err)
		os.Exit(1)
	}

	if *verify {
		runVerify(cfg)
		return
	}
	runInit(cfg)
}

func printBanner() {
	fmt.Print(`
  ____ _
 / ___| |__   ___  _ __ _   _ ___
| |   | '_ \ / _ \| '__| | | / __|
| |___| | | | (_) | |  | |_| \__ \
 \____|_| |_|\___/|_|   \__,_|___/

AI chat participants with persistent memory
`)
}

// runInit creates the data directories and applies the storage schema.
// Safe to run repeatedly.
func runInit(cfg *config.Config) {
	printBanner()
	fmt.Println("Chorus Setup")
	fmt.Println("-------------------------------------")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	switch cfg.Storage.StorageEngine {
	case "postgres":
		store, err := postgres.NewStore(cfg.Storage.PostgresDSN, cfg.LLM.EmbeddingDimensions)
		if err != nil {
			fmt.Printf("ERROR: Postgres initialization failed: %v\n", err)
			os.Exit(1)
		}
		_ = store.Close()
		fmt.Printf("OK: Postgres schema ready (pgvector, %d dimensions)\n", cfg.LLM.EmbeddingDimensions)
	default:
		if err := os.MkdirAll(cfg.Storage.DataPath, 0755); err != nil {
			fmt.Printf("ERROR: Failed to create data directory: %v\n", err)
			os.Exit(1)
		}
		dbPath := filepath.Join(cfg.Storage.DataPath, "chorus.db")
		store, err := sqlite.NewStore(dbPath)
		if err != nil {
			fmt.Printf("ERROR: SQLite initialization failed: %v\n", err)
			os.Exit(1)
		}
		_ = store.Close()
		fmt.Printf("OK: SQLite schema ready at %s\n", dbPath)
	}

	if cfg.Redis.Enabled {
		rs, err := redisstore.NewStore(ctx, redisURL(cfg.Redis))
		if err != nil {
			fmt.Printf("ERROR: Redis connection failed: %v\n", err)
			os.Exit(1)
		}
		_ = rs.Close()
		fmt.Printf("OK: Redis reachable at %s\n", cfg.Redis.Addr)
	}

	if cfg.Personas.Dir != "" {
		if err := os.MkdirAll(cfg.Personas.Dir, 0755); err != nil {
			fmt.Printf("ERROR: Failed to create personas directory: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("OK: Personas directory %s\n", cfg.Personas.Dir)
	}

	fmt.Printf(`
Setup complete!

Next steps:
  1. Drop persona documents (markdown with YAML frontmatter) into %s
  2. Start the daemon:
     ./chorus-server

Then check ./chorus-setup --verify
`, cfg.Personas.Dir)
}

// runVerify performs a read-only health check of the installation.
func runVerify(cfg *config.Config) {
	fmt.Println("Chorus Setup Verification")
	fmt.Println("=========================")
	fmt.Println()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	statusOK := true

	switch cfg.Storage.StorageEngine {
	case "postgres":
		if pingPostgres(ctx, cfg.Storage.PostgresDSN) {
			fmt.Println("Storage:      ✓ Postgres reachable")
		} else {
			fmt.Println("Storage:      ✗ Postgres unreachable")
			statusOK = false
		}
	default:
		dbPath := filepath.Join(cfg.Storage.DataPath, "chorus.db")
		if dirWritable(cfg.Storage.DataPath) {
			fmt.Printf("Storage:      ✓ %s (writable)\n", dbPath)
		} else {
			fmt.Printf("Storage:      ✗ %s (missing or not writable)\n", cfg.Storage.DataPath)
			statusOK = false
		}
	}

	if cfg.Redis.Enabled {
		if rs, err := redisstore.NewStore(ctx, redisURL(cfg.Redis)); err == nil {
			_ = rs.Close()
			fmt.Printf("Redis:        ✓ %s\n", cfg.Redis.Addr)
		} else {
			fmt.Printf("Redis:        ✗ %s (%v)\n", cfg.Redis.Addr, err)
			statusOK = false
		}
	} else {
		fmt.Println("Redis:        - disabled (cooldowns in SQL store)")
	}

	fmt.Printf("LLM:          %s chat, %s embeddings (%d dims)\n",
		cfg.LLM.Provider, embeddingModel(cfg), cfg.LLM.EmbeddingDimensions)

	if cfg.Personas.Dir != "" {
		if n, ok := countPersonaFiles(cfg.Personas.Dir); ok {
			fmt.Printf("Personas:     ✓ %s (%d file(s))\n", cfg.Personas.Dir, n)
		} else {
			fmt.Printf("Personas:     ✗ %s (does not exist)\n", cfg.Personas.Dir)
			statusOK = false
		}
	}

	fmt.Println()
	if statusOK {
		fmt.Println("Status:       READY")
		os.Exit(0)
	}
	fmt.Println("Status:       NOT READY")
	fmt.Println()
	fmt.Println("Run chorus-setup to initialize missing components.")
	os.Exit(1)
}

// pingPostgres checks connectivity without touching the schema.
func pingPostgres(ctx context.Context, dsn string) bool {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return false
	}
	defer db.Close()
	return db.PingContext(ctx) == nil
}

func dirWritable(dir string) bool {
	info, err := os.Stat(dir)
	if err != nil || !info.IsDir() {
		return false
	}
	probe := filepath.Join(dir, ".chorus-write-test")
	if err := os.WriteFile(probe, []byte("test"), 0644); err != nil {
		return false
	}
	_ = os.Remove(probe)
	return true
}

func countPersonaFiles(dir string) (int, bool) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return 0, false
	}
	n := 0
	for _, e := range entries {
		if !e.IsDir() && filepath.Ext(e.Name()) == ".md" {
			n++
		}
	}
	return n, true
}

// embeddingModel mirrors the provider fallback in the LLM factory: anthropic
// chat borrows OpenAI embeddings when a key is set, Ollama otherwise.
func embeddingModel(cfg *config.Config) string {
	switch {
	case cfg.LLM.Provider == "openai":
		return cfg.LLM.OpenAIEmbeddingModel
	case cfg.LLM.Provider == "anthropic" && cfg.LLM.OpenAIAPIKey != "":
		return cfg.LLM.OpenAIEmbeddingModel
	default:
		return cfg.LLM.OllamaEmbeddingModel
	}
}

// redisURL builds a redis:// URL from the discrete config fields.
func redisURL(cfg config.RedisConfig) string {
	if cfg.Password != "" {
		return fmt.Sprintf("redis://:%s@%s/%d", cfg.Password, cfg.Addr, cfg.DB)
	}
	return fmt.Sprintf("redis://%s/%d", cfg.Addr, cfg.DB)
}
