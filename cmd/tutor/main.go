// Package main is the tutor CLI entry point.
package main

import (
	"bytes"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/educore/tutor/internal/config"
	"github.com/educore/tutor/internal/corpus"
	"github.com/educore/tutor/internal/embedding"
	"github.com/educore/tutor/internal/extract"
	"github.com/educore/tutor/internal/fetch"
	"github.com/educore/tutor/internal/ingest"
	"github.com/educore/tutor/internal/llm"
	"github.com/educore/tutor/internal/models"
	"github.com/educore/tutor/internal/pipeline"
	"github.com/educore/tutor/internal/relevance"
	"github.com/educore/tutor/internal/server"
	"github.com/educore/tutor/internal/storage"
	"github.com/educore/tutor/internal/systemcfg"
	"github.com/educore/tutor/internal/watcher"
	"github.com/educore/tutor/pkg/utils"
)

var version = "dev"

const defaultConfigPath = "/usr/local/etc/tutor/config.yaml"

// loadConfig loads config from path. When path is the default, a config.yaml
// in the current directory takes precedence so running from the project dir
// uses the project's config.
func loadConfig(path string) (*config.Config, string, error) {
	if path == defaultConfigPath {
		if cwd, cwdErr := os.Getwd(); cwdErr == nil {
			fallback := filepath.Join(cwd, "config.yaml")
			if _, statErr := os.Stat(fallback); statErr == nil {
				cfg, loadErr := config.Load(fallback)
				if loadErr != nil {
					return nil, "", loadErr
				}
				return cfg, fallback, nil
			}
		}
	}
	cfg, err := config.Load(path)
	if err != nil {
		return nil, "", err
	}
	return cfg, path, nil
}

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}
	command := os.Args[1]
	switch command {
	case "server":
		runServer()
	case "ask":
		runAsk()
	case "ingest":
		runIngest()
	case "mode":
		runMode()
	case "version", "--version", "-v":
		fmt.Printf("tutor version %s\n", version)
	case "help", "--help", "-h":
		printUsage()
	default:
		fmt.Printf("Unknown command: %s\n", command)
		printUsage()
		os.Exit(1)
	}
}

func runServer() {
	fs := flag.NewFlagSet("server", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path")
	debug := fs.Bool("debug", false, "enable debug logging")
	_ = fs.Parse(os.Args[2:])

	cfg, resolvedConfigPath, err := loadConfig(*configPath)
	if err != nil {
		fmt.Printf("Failed to load config: %v\n", err)
		os.Exit(1)
	}
	debugMode := cfg.Debug || *debug
	logger, err := utils.NewLogger(debugMode)
	if err != nil {
		fmt.Printf("Failed to create logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	logger.Info("config loaded",
		zap.String("config_path", resolvedConfigPath),
		zap.Bool("debug", debugMode),
	)

	components, err := initializeComponents(cfg, logger)
	if err != nil {
		logger.Fatal("Failed to initialize components", zap.Error(err))
	}
	defer components.Close()

	// The corpus index is in-memory; repopulate it from storage.
	if err := components.Ingest.Rebuild(context.Background()); err != nil {
		logger.Fatal("Failed to rebuild corpus index", zap.Error(err))
	}

	watchCtx, watchCancel := context.WithCancel(context.Background())
	defer watchCancel()
	var watchSvc *watcher.Watcher
	if len(cfg.Ingest.Directories) > 0 {
		watchOpts := []watcher.Option{watcher.WithLogger(logger)}
		watchSvc = watcher.NewWatcher(
			cfg.Ingest.Directories,
			cfg.Ingest.Extensions,
			ingest.NewDropHandler(components.Ingest, logger),
			watchOpts...,
		)
		if err := watchSvc.Start(watchCtx); err != nil {
			logger.Fatal("Failed to start drop-directory watcher", zap.Error(err))
		}
	}

	srv := server.NewServer(
		components.Storage,
		components.Ingest,
		components.Corpus,
		components.Router,
		components.SysCfg,
		&cfg.Server,
		logger,
	)
	go func() {
		if err := srv.Start(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("Server failed", zap.Error(err))
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan

	logger.Info("Shutting down...")
	watchCancel()
	if watchSvc != nil {
		watchSvc.Stop()
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_ = srv.Stop(ctx)
}

func runAsk() {
	fs := flag.NewFlagSet("ask", flag.ExitOnError)
	serverURL := fs.String("server", "http://localhost:8000", "server URL")
	agentID := fs.String("agent", "", "agent ID (required)")
	user := fs.String("user", "cli", "username sent as identity")
	_ = fs.Parse(os.Args[2:])

	if *agentID == "" || fs.NArg() < 1 {
		fmt.Println("Usage: tutor ask --agent <id> [flags] <question>")
		os.Exit(1)
	}
	question := strings.TrimSpace(strings.Join(fs.Args(), " "))

	body, _ := json.Marshal(models.AskRequest{Prompt: question})
	req, err := http.NewRequest(http.MethodPost, *serverURL+"/agents/"+*agentID+"/ask", bytes.NewReader(body))
	if err != nil {
		fmt.Fprintf(os.Stderr, "Request failed: %v\n", err)
		os.Exit(1)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-User-Name", *user)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Request failed: %v\n", err)
		os.Exit(1)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(resp.Body)
		fmt.Fprintf(os.Stderr, "Ask failed (%d): %s\n", resp.StatusCode, string(b))
		os.Exit(1)
	}
	var answer models.AskResponse
	if err := json.NewDecoder(resp.Body).Decode(&answer); err != nil {
		fmt.Fprintf(os.Stderr, "Parse failed: %v\n", err)
		os.Exit(1)
	}
	fmt.Println(answer.Response)
	fmt.Printf("\n[stage: %s]", answer.StageUsed)
	if answer.Note != "" {
		fmt.Printf(" [note: %s]", answer.Note)
	}
	fmt.Println()
}

func runIngest() {
	fs := flag.NewFlagSet("ingest", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path")
	agentID := fs.String("agent", "", "agent ID (required)")
	_ = fs.Parse(os.Args[2:])

	if *agentID == "" || fs.NArg() < 1 {
		fmt.Println("Usage: tutor ingest --agent <id> [flags] <file-or-directory>")
		os.Exit(1)
	}
	path := fs.Arg(0)

	cfg, _, err := loadConfig(*configPath)
	if err != nil {
		fmt.Printf("Failed to load config: %v\n", err)
		os.Exit(1)
	}
	logger, err := utils.NewLogger(cfg.Debug)
	if err != nil {
		fmt.Printf("Failed to create logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	components, err := initializeComponents(cfg, logger)
	if err != nil {
		logger.Fatal("Failed to initialize", zap.Error(err))
	}
	defer components.Close()

	ctx := context.Background()
	if _, err := components.Storage.GetAgent(ctx, *agentID); err != nil {
		fmt.Printf("Agent not found: %s\n", *agentID)
		os.Exit(1)
	}

	info, err := os.Stat(path)
	if err != nil {
		fmt.Printf("Failed to stat path: %v\n", err)
		os.Exit(1)
	}
	var files []string
	if info.IsDir() {
		entries, err := os.ReadDir(path)
		if err != nil {
			fmt.Printf("Failed to read directory: %v\n", err)
			os.Exit(1)
		}
		for _, entry := range entries {
			if !entry.IsDir() {
				files = append(files, filepath.Join(path, entry.Name()))
			}
		}
	} else {
		files = []string{path}
	}

	ingested := 0
	for _, file := range files {
		doc, err := components.Ingest.IngestFile(ctx, *agentID, file)
		if err != nil {
			fmt.Printf("Skipped %s: %v\n", file, err)
			continue
		}
		fmt.Printf("Ingested %s as document %s\n", file, doc.ID)
		ingested++
	}
	fmt.Printf("Done: %d file(s) ingested for agent %s\n", ingested, *agentID)
}

func runMode() {
	if len(os.Args) < 3 {
		fmt.Println("Usage: tutor mode <get|set> [MODE]")
		fmt.Println("  tutor mode get              Show the active routing mode")
		fmt.Println("  tutor mode set HYBRID       Set the routing mode (HYBRID, LOCAL_ONLY, CLOUD_ONLY)")
		os.Exit(1)
	}
	sub := os.Args[2]
	fs := flag.NewFlagSet("mode", flag.ExitOnError)
	serverURL := fs.String("server", "http://localhost:8000", "server URL")
	user := fs.String("user", "cli", "username sent as identity")
	_ = fs.Parse(os.Args[3:])

	switch sub {
	case "get":
		resp, err := http.Get(*serverURL + "/master/system/ai-model")
		if err != nil {
			fmt.Fprintf(os.Stderr, "Request failed: %v\n", err)
			os.Exit(1)
		}
		defer resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			b, _ := io.ReadAll(resp.Body)
			fmt.Fprintf(os.Stderr, "Get failed (%d): %s\n", resp.StatusCode, string(b))
			os.Exit(1)
		}
		var cfg models.RoutingConfig
		if err := json.NewDecoder(resp.Body).Decode(&cfg); err != nil {
			fmt.Fprintf(os.Stderr, "Parse failed: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("mode:       %s\n", cfg.Mode)
		if !cfg.UpdatedAt.IsZero() {
			fmt.Printf("updated_at: %s\n", cfg.UpdatedAt.Format(time.RFC3339))
			fmt.Printf("updated_by: %s\n", cfg.UpdatedBy)
		}
	case "set":
		if fs.NArg() < 1 {
			fmt.Println("Usage: tutor mode set <HYBRID|LOCAL_ONLY|CLOUD_ONLY>")
			os.Exit(1)
		}
		body, _ := json.Marshal(map[string]string{"ai_model_type": fs.Arg(0)})
		req, _ := http.NewRequest(http.MethodPut, *serverURL+"/master/system/ai-model", bytes.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("X-User-Name", *user)
		req.Header.Set("X-User-Role", "master")
		resp, err := http.DefaultClient.Do(req)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Request failed: %v\n", err)
			os.Exit(1)
		}
		defer resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			b, _ := io.ReadAll(resp.Body)
			fmt.Fprintf(os.Stderr, "Set failed (%d): %s\n", resp.StatusCode, string(b))
			os.Exit(1)
		}
		fmt.Printf("Routing mode set to %s\n", fs.Arg(0))
	default:
		fmt.Printf("Unknown mode subcommand: %s\n", sub)
		os.Exit(1)
	}
}

// Components holds initialized services.
type Components struct {
	Storage storage.Storage
	Embed   embedding.Embedder
	Corpus  *corpus.Index
	Ingest  *ingest.Service
	Router  *pipeline.Router
	SysCfg  *systemcfg.Service
}

func (c *Components) Close() {
	if c.Storage != nil {
		_ = c.Storage.Close()
	}
	if c.Embed != nil {
		_ = c.Embed.Close()
	}
}

func initializeComponents(cfg *config.Config, logger *zap.Logger) (*Components, error) {
	store, err := storage.NewSQLiteStorage(cfg.Storage.DatabasePath)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize storage: %w", err)
	}

	embedder := embedding.New(&cfg.Embedding, logger)

	idx := corpus.NewIndex(embedder, cfg.Corpus.ChunkSize, cfg.Corpus.ChunkOverlap, corpus.WithLogger(logger))
	ingestSvc := ingest.NewService(store, idx, extract.NewExtractor(), logger)

	local := llm.NewOllamaCompleter(&cfg.LLM)
	var cloud llm.Completer
	if apiKey := os.Getenv("GEMINI_API_KEY"); apiKey != "" {
		gemini, err := llm.NewGeminiCompleter(context.Background(), &cfg.LLM, apiKey)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize gemini: %w", err)
		}
		cloud = gemini
	} else {
		// Without a cloud key the link and general stages run on the local
		// provider so the pipeline stays functional.
		logger.Warn("GEMINI_API_KEY not set, cloud stages will use the local provider")
		cloud = local
	}

	retryBackoff := time.Duration(cfg.Pipeline.RetryBackoffMS) * time.Millisecond
	retrieval := pipeline.NewRetrievalStage(
		idx, local,
		cfg.Pipeline.RelevanceThreshold,
		cfg.Pipeline.TopK,
		retryBackoff,
		cfg.Pipeline.MinAnswerChars,
		logger,
	)
	fetcher := fetch.NewFetcher(
		time.Duration(cfg.Pipeline.LinkCacheTTLSeconds)*time.Second,
		time.Duration(cfg.Pipeline.LinkFetchTimeoutSecs)*time.Second,
		cfg.Pipeline.LinkContentMaxChars,
		fetch.WithLogger(logger),
	)
	scorer := relevance.NewScorer(cfg.Pipeline.LinkRelevanceThreshold)
	link := pipeline.NewLinkStage(
		store, fetcher, scorer, cloud,
		cfg.Pipeline.MaxLinksPerQuery,
		cfg.Pipeline.MinAnswerChars,
		logger,
	)
	general := pipeline.NewGeneralStage(cloud, logger)
	router := pipeline.NewRouter(retrieval, link, general, logger)

	sysCfg := systemcfg.NewService(store, logger)

	return &Components{
		Storage: store,
		Embed:   embedder,
		Corpus:  idx,
		Ingest:  ingestSvc,
		Router:  router,
		SysCfg:  sysCfg,
	}, nil
}

func printUsage() {
	fmt.Println(`tutor - hybrid answer-routing service for educational agents

Usage:
  tutor server [flags]                Start the HTTP server
  tutor ask --agent <id> <question>   Ask an agent a question (via server)
  tutor ingest --agent <id> <path>    Ingest a file or directory into an agent's corpus
  tutor mode <get|set> [MODE]         Show or set the routing mode
  tutor version                       Show version
  tutor help                          Show this help

Server Flags:
  --config string    Config file path (default: /usr/local/etc/tutor/config.yaml)
  --debug            Enable debug logging

Ask Flags:
  --server string    Server URL (default: http://localhost:8000)
  --agent string     Agent ID (required)
  --user string      Username sent as identity (default: cli)

Ingest Flags:
  --config string    Config file path
  --agent string     Agent ID (required)

Mode Flags:
  --server string    Server URL (default: http://localhost:8000)
  --user string      Username sent as identity (default: cli)

Examples:
  tutor server
  tutor ask --agent 6a1f... "What is the capital of Goiás?"
  tutor ingest --agent 6a1f... ./notes/geography.pdf
  tutor mode get
  tutor mode set LOCAL_ONLY`)
}
