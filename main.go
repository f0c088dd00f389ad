package main

import (
	"bufio"
	"context"
	"database/sql"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"golang.org/x/term"
	_ "modernc.org/sqlite"

	"dwagent/pkg/config"
	"dwagent/pkg/gateway"
	"dwagent/pkg/github"
	"dwagent/pkg/httpapi"
	"dwagent/pkg/llm"
	"dwagent/pkg/logx"
	"dwagent/pkg/loop"
	"dwagent/pkg/memory"
	"dwagent/pkg/metrics"
	"dwagent/pkg/persistence"
	"dwagent/pkg/progress"
	"dwagent/pkg/tools"
)

// Engine wires the stores, tool gateway, reasoner client, and HTTP API
// into one process.
type Engine struct {
	config       *config.Config
	store        *persistence.Store
	warehouseDB  *sql.DB
	memory       *memory.Manager
	progress     *progress.Recorder
	registry     *httpapi.Registry
	httpServer   *http.Server
	logger       *logx.Logger
	shutdownTime time.Duration
}

func main() {
	var configPath string
	var setupMode bool
	flag.StringVar(&configPath, "config", "", "Path to config file")
	flag.BoolVar(&setupMode, "setup", false, "Run the interactive setup wizard and exit")
	flag.Parse()

	if configPath == "" {
		configPath = os.Getenv("DWAGENT_CONFIG")
	}
	if configPath == "" {
		configPath = "config.yaml"
	}

	if setupMode {
		if err := runSetup(configPath); err != nil {
			log.Fatalf("Setup failed: %v", err)
		}
		return
	}

	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	engine, err := NewEngine(cfg)
	if err != nil {
		log.Fatalf("Failed to create engine: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	engine.Start(ctx)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigChan
	engine.logger.Info("Received signal %v, initiating graceful shutdown", sig)
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), engine.shutdownTime)
	defer shutdownCancel()

	if err := engine.Shutdown(shutdownCtx); err != nil {
		log.Printf("Error during shutdown: %v", err)
		os.Exit(1)
	}
	engine.logger.Info("Engine shutdown completed")
}

// NewEngine builds the full dependency graph from configuration.
func NewEngine(cfg *config.Config) (*Engine, error) {
	logger := logx.NewLogger("engine")

	store, err := persistence.Open(cfg.Storage.DBPath)
	if err != nil {
		return nil, fmt.Errorf("opening persistence store: %w", err)
	}

	recorder, err := progress.NewRecorder(store, cfg.Storage.LogsDir)
	if err != nil {
		return nil, fmt.Errorf("creating progress recorder: %w", err)
	}

	promRecorder := metrics.NewPrometheusRecorder()

	// Long-term memory needs an embedding backend. Without one the engine
	// still runs; sessions just keep their sliding window only.
	var mem *memory.Manager
	var docs tools.DocsSearcher
	embedder, err := memory.NewEmbedder(cfg.Embedding.Provider, cfg.Embedding.APIKey, cfg.Embedding.Model, cfg.Embedding.OllamaHost)
	if err != nil {
		logger.Warn("Embedding backend unavailable, long-term memory disabled: %v", err)
	} else {
		vectors, verr := memory.NewVectorStore(cfg.Storage.VectorPath, true, embedder)
		if verr != nil {
			return nil, fmt.Errorf("opening vector store: %w", verr)
		}
		mem, err = memory.NewManager(store, vectors, memory.WithRetention(cfg.Engine.Retention()))
		if err != nil {
			return nil, fmt.Errorf("creating memory manager: %w", err)
		}
		docs = memory.NewDocsIndex(vectors)
	}

	deps := tools.Deps{
		DefaultDatabase: cfg.Warehouse.DefaultDatabase,
		DefaultSchema:   cfg.Warehouse.DefaultSchema,
		BaseBranch:      cfg.Repo.BaseBranch,
		WorkflowFile:    cfg.Repo.WorkflowFile,
		Docs:            docs,
	}

	var warehouseDB *sql.DB
	if cfg.Warehouse.DSN != "" {
		warehouseDB, err = sql.Open("sqlite", cfg.Warehouse.DSN)
		if err != nil {
			return nil, fmt.Errorf("opening warehouse connection: %w", err)
		}
		deps.WarehouseDB = warehouseDB
	}

	if cfg.Repo.Remote != "" {
		repo, rerr := github.NewClientFromRemote(cfg.Repo.Remote)
		if rerr != nil {
			return nil, fmt.Errorf("configuring repository client: %w", rerr)
		}
		deps.Repo = repo
	}

	provider, err := tools.NewProvider(deps, depAwareEnabler{cfg: cfg, deps: &deps})
	if err != nil {
		return nil, fmt.Errorf("creating tool provider: %w", err)
	}

	gw := gateway.New(provider,
		gateway.WithRecorder(promRecorder),
		gateway.WithCallTimeout(cfg.Engine.ToolTimeout()),
	)

	baseClient, err := llm.NewClient(cfg.Reasoner)
	if err != nil {
		return nil, fmt.Errorf("creating reasoner client: %w", err)
	}
	client := llm.Chain(baseClient,
		llm.MetricsMiddleware(promRecorder, llm.DefaultUsageExtractor),
		llm.RetryMiddleware(),
	)

	registry := httpapi.NewRegistry(loop.Deps{
		Client:        client,
		Gateway:       gw,
		Progress:      recorder,
		Store:         store,
		Memory:        mem,
		MaxIterations: cfg.Engine.MaxIterations,
		WindowSize:    cfg.Engine.MemoryWindow,
	}, promRecorder)

	mux := http.NewServeMux()
	httpapi.NewServer(registry, store, recorder).RegisterRoutes(mux)

	return &Engine{
		config:      cfg,
		store:       store,
		warehouseDB: warehouseDB,
		memory:      mem,
		progress:    recorder,
		registry:    registry,
		httpServer: &http.Server{
			Addr:              fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
			Handler:           mux,
			ReadHeaderTimeout: 10 * time.Second,
		},
		logger:       logger,
		shutdownTime: time.Duration(cfg.Server.GracefulShutdownTimeoutSec) * time.Second,
	}, nil
}

// Start launches the memory sweeper and the HTTP listener.
func (e *Engine) Start(ctx context.Context) {
	if e.memory != nil {
		go e.memory.StartSweeper(ctx, e.config.Engine.SweepInterval())
	}

	e.logger.Info("Engine listening on %s (reasoner: %s/%s)",
		e.httpServer.Addr, e.config.Reasoner.Provider, e.config.Reasoner.Model)
	go func() {
		if err := e.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			e.logger.Error("HTTP server error: %v", err)
		}
	}()
}

// Shutdown drains in-flight requests and closes the stores.
func (e *Engine) Shutdown(ctx context.Context) error {
	e.logger.Info("Starting graceful shutdown")

	if err := e.httpServer.Shutdown(ctx); err != nil {
		e.logger.Error("HTTP server shutdown: %v", err)
	}
	if err := e.progress.Close(); err != nil {
		e.logger.Error("Closing progress recorder: %v", err)
	}
	if e.warehouseDB != nil {
		if err := e.warehouseDB.Close(); err != nil {
			e.logger.Error("Closing warehouse connection: %v", err)
		}
	}
	if err := e.store.Close(); err != nil {
		return fmt.Errorf("closing persistence store: %w", err)
	}

	e.logger.Info("Graceful shutdown completed")
	return nil
}

// depAwareEnabler layers dependency availability over the configured tool
// catalog: a category whose collaborator is not configured stays off even
// when the config enables it, so provider construction never fails on a
// missing handle.
type depAwareEnabler struct {
	cfg  *config.Config
	deps *tools.Deps
}

func (e depAwareEnabler) ToolEnabled(category, operation string) bool {
	switch category {
	case tools.CategoryWarehouse:
		if e.deps.WarehouseDB == nil {
			return false
		}
	case tools.CategoryRepository, tools.CategoryCI:
		if e.deps.Repo == nil {
			return false
		}
	case tools.CategoryDocs:
		if e.deps.Docs == nil {
			return false
		}
	}
	return e.cfg.ToolEnabled(category, operation)
}

// runSetup walks through the minimum configuration interactively and
// writes it to configPath. API keys are read without echo.
func runSetup(configPath string) error {
	fmt.Println("Warehouse agent setup")
	fmt.Println()

	reader := bufio.NewReader(os.Stdin)

	provider := promptLine(reader, "Reasoner provider (anthropic/openai/google/ollama)", config.ProviderAnthropic)
	model := promptLine(reader, "Reasoner model", defaultModelFor(provider))

	var apiKey string
	if provider != config.ProviderOllama {
		fmt.Print("API key (input hidden): ")
		keyBytes, err := term.ReadPassword(syscall.Stdin)
		fmt.Println()
		if err != nil {
			return fmt.Errorf("reading api key: %w", err)
		}
		apiKey = strings.TrimSpace(string(keyBytes))
		if apiKey == "" {
			return fmt.Errorf("provider %s requires an api key", provider)
		}
	}

	dsn := promptLine(reader, "Warehouse DSN (blank to configure later)", "")
	remote := promptLine(reader, "Repository remote owner/repo (blank to skip)", "")

	cfg, err := config.ParseConfig([]byte(fmt.Sprintf(
		"reasoner:\n  provider: %s\n  model: %s\n  api_key: %q\n", provider, model, apiKey)))
	if err != nil {
		return fmt.Errorf("building config: %w", err)
	}
	cfg.Warehouse.DSN = dsn
	cfg.Repo.Remote = remote

	if err := config.WriteConfig(configPath, cfg); err != nil {
		return fmt.Errorf("writing config: %w", err)
	}

	fmt.Printf("Configuration written to %s\n", configPath)
	fmt.Println("Review the tools section to enable or disable tool categories.")
	return nil
}

func promptLine(reader *bufio.Reader, label, fallback string) string {
	if fallback != "" {
		fmt.Printf("%s [%s]: ", label, fallback)
	} else {
		fmt.Printf("%s: ", label)
	}
	line, _ := reader.ReadString('\n')
	line = strings.TrimSpace(line)
	if line == "" {
		return fallback
	}
	return line
}

func defaultModelFor(provider string) string {
	switch provider {
	case config.ProviderOpenAI:
		return llm.DefaultOpenAIModel
	case config.ProviderGoogle:
		return llm.DefaultGoogleModel
	case config.ProviderOllama:
		return llm.DefaultOllamaModel
	default:
		return llm.DefaultAnthropicModel
	}
}
