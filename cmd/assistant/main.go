package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"telcomax.com/billing-assistant/internal/agents"
	"telcomax.com/billing-assistant/internal/api"
	"telcomax.com/billing-assistant/internal/chunking"
	"telcomax.com/billing-assistant/internal/config"
	"telcomax.com/billing-assistant/internal/eval"
	"telcomax.com/billing-assistant/internal/ingest"
	"telcomax.com/billing-assistant/internal/llm"
	"telcomax.com/billing-assistant/internal/logging"
	"telcomax.com/billing-assistant/internal/memory"
	"telcomax.com/billing-assistant/internal/orchestrator"
	"telcomax.com/billing-assistant/internal/rag"
	"telcomax.com/billing-assistant/internal/store"
)

func main() {
	queryFlag := flag.String("query", "", "Answer a single query and exit")
	interactiveFlag := flag.Bool("interactive", false, "Start an interactive chat session")
	sessionFlag := flag.String("session", "", "Session ID to continue (default: a new session)")
	strategyFlag := flag.String("strategy", "direct", "Retrieval strategy: direct, hypothesis, or multiphrase")
	chunkerFlag := flag.String("chunker", "recursive", "Chunking strategy for ingestion: fixed_size, recursive, or semantic")
	ingestFlag := flag.String("ingest", "", "Ingest documents into the given namespace (reference or customer) and exit")
	watchFlag := flag.Bool("watch", false, "With -ingest, keep watching the docs dir and re-ingest on change")
	evalFlag := flag.String("eval", "", "Run the evaluation grid with the given query fixture and exit")
	serveFlag := flag.Bool("serve", false, "Start the HTTP API server")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "configuration error: %v\n", err)
		os.Exit(1)
	}

	logger, err := logging.New(cfg.LogLevel)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialize logging: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	dbStore, err := store.NewSQLiteStore(cfg.DatabaseURL)
	if err != nil {
		logger.Fatal("failed to initialize database", zap.Error(err))
	}
	defer dbStore.Close()

	gemini, err := llm.NewGeminiClient(ctx, cfg.GeminiAPIKey, logger)
	if err != nil {
		logger.Fatal("failed to initialize Gemini client", zap.Error(err))
	}
	defer gemini.Close()
	generator := llm.NewRetryingGenerator(gemini, 3, 500*time.Millisecond)

	vectors, err := rag.NewSQLiteVectorStore(dbStore.DB(), logger)
	if err != nil {
		logger.Fatal("failed to initialize vector store", zap.Error(err))
	}

	switch {
	case *ingestFlag != "":
		if err := runIngest(ctx, cfg, gemini, vectors, *chunkerFlag, *ingestFlag, *watchFlag, logger); err != nil {
			logger.Fatal("ingestion failed", zap.Error(err))
		}
		return

	case *evalFlag != "":
		if err := runEval(ctx, cfg, generator, gemini, vectors, *evalFlag, logger); err != nil {
			logger.Fatal("evaluation failed", zap.Error(err))
		}
		return
	}

	orch, mem, err := buildOrchestrator(cfg, dbStore, generator, gemini, vectors, *strategyFlag, logger)
	if err != nil {
		logger.Fatal("failed to assemble pipeline", zap.Error(err))
	}

	switch {
	case *serveFlag:
		if err := runServer(ctx, cfg, orch, mem, logger); err != nil {
			logger.Fatal("server failed", zap.Error(err))
		}

	case *queryFlag != "":
		sessionID := *sessionFlag
		if sessionID == "" {
			sessionID = uuid.NewString()
		}
		result, err := orch.HandleTurn(ctx, sessionID, *queryFlag)
		if err != nil {
			logger.Fatal("failed to handle query", zap.Error(err))
		}
		fmt.Println(result.Response)

	case *interactiveFlag:
		runInteractive(ctx, orch, *sessionFlag)

	default:
		flag.Usage()
		os.Exit(2)
	}
}

func buildOrchestrator(cfg *config.Config, repo store.Repository, generator llm.Generator, embedder llm.Embedder, vectors rag.VectorStore, strategyName string, logger *zap.Logger) (*orchestrator.Orchestrator, *memory.SessionMemory, error) {
	strategy, err := rag.NewStrategy(rag.StrategyKind(strategyName), embedder, generator, vectors, logger)
	if err != nil {
		return nil, nil, err
	}
	mem := memory.NewSessionMemory(repo, logger)

	orch := orchestrator.New(orchestrator.Deps{
		Router:       agents.NewRouter(generator, logger),
		General:      agents.NewGeneralResponder(generator, strategy, cfg.ReferenceNamespace, cfg.RetrievalTopK, logger),
		Account:      agents.NewAccountResponder(generator, strategy, cfg.CustomerNamespace, cfg.RetrievalTopK, logger),
		GeneralGuard: agents.NewGeneralGuardrail(logger),
		AccountGuard: agents.NewAccountGuardrail(logger),
		Validator:    agents.NewValidator(cfg.ConfidenceThreshold, logger),
		Memory:       mem,
		Extractor:    memory.NewEntityExtractor(),
		Logger:       logger,
	})
	return orch, mem, nil
}

func tokenCounter(logger *zap.Logger) chunking.TokenCounter {
	counter, err := chunking.NewTiktokenCounter()
	if err != nil {
		logger.Warn("tiktoken unavailable, falling back to approximate counting", zap.Error(err))
		return chunking.ApproxTokenCounter{}
	}
	return counter
}

// ingestTarget maps an -ingest selector onto its docs dir and namespace.
func ingestTarget(cfg *config.Config, target string) (dir, namespace string, err error) {
	switch target {
	case "reference":
		return cfg.ReferenceDocsDir, cfg.ReferenceNamespace, nil
	case "customer":
		return cfg.CustomerDocsDir, cfg.CustomerNamespace, nil
	default:
		return "", "", fmt.Errorf("unknown ingest target %q (want reference or customer)", target)
	}
}

func runIngest(ctx context.Context, cfg *config.Config, gemini *llm.GeminiClient, vectors rag.VectorStore, chunkerName, target string, watch bool, logger *zap.Logger) error {
	dir, namespace, err := ingestTarget(cfg, target)
	if err != nil {
		return err
	}

	chunker, err := chunking.NewChunker(chunking.Kind(chunkerName), chunking.Config{
		ChunkSize:    cfg.ChunkSize,
		ChunkOverlap: cfg.ChunkOverlap,
	}, tokenCounter(logger), gemini, logger)
	if err != nil {
		return err
	}

	ingestor := ingest.New(chunker, gemini, vectors, logger)
	n, err := ingestor.IngestDir(ctx, dir, namespace)
	if err != nil {
		return err
	}
	fmt.Printf("Ingested %d chunks from %s into %s\n", n, dir, namespace)

	if watch {
		watcher := ingest.NewWatcher(ingestor, namespace, logger)
		if err := watcher.Watch(ctx, dir); err != nil && err != context.Canceled {
			return err
		}
	}
	return nil
}

func runEval(ctx context.Context, cfg *config.Config, generator llm.Generator, embedder llm.Embedder, vectors rag.VectorStore, fixturePath string, logger *zap.Logger) error {
	queries, err := eval.LoadQueries(fixturePath)
	if err != nil {
		return err
	}

	harness := eval.NewHarness(generator, embedder, vectors, tokenCounter(logger), eval.Config{
		DocsDir:             cfg.ReferenceDocsDir,
		TopK:                cfg.RetrievalTopK,
		ChunkSize:           cfg.ChunkSize,
		ChunkOverlap:        cfg.ChunkOverlap,
		Workers:             cfg.EvalWorkers,
		RequestRate:         cfg.EvalRequestRate,
		ProtectedNamespaces: []string{cfg.ReferenceNamespace, cfg.CustomerNamespace},
	}, logger)

	report, err := harness.Run(ctx, queries)
	if err != nil {
		return err
	}

	rendered := report.Render()
	fmt.Print(rendered)
	if err := os.WriteFile("eval_report.txt", []byte(rendered), 0o644); err != nil {
		return fmt.Errorf("failed to write report: %w", err)
	}
	logger.Info("report written", zap.String("path", "eval_report.txt"))
	return nil
}

func runServer(ctx context.Context, cfg *config.Config, orch *orchestrator.Orchestrator, mem *memory.SessionMemory, logger *zap.Logger) error {
	handler := api.NewAPIHandler(orch, mem, logger)
	srv := &http.Server{
		Addr:         ":" + cfg.HTTPPort,
		Handler:      api.NewRouter(handler),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 60 * time.Second, // model calls can take a while
		IdleTimeout:  120 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("server listening", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logger.Info("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

func runInteractive(ctx context.Context, orch *orchestrator.Orchestrator, sessionID string) {
	if sessionID == "" {
		sessionID = uuid.NewString()
	}
	fmt.Printf("TelcoMax billing assistant (session %s). Type 'quit' to exit.\n", sessionID)

	scanner := bufio.NewScanner(os.Stdin)
	for {
		fmt.Print("> ")
		if !scanner.Scan() {
			return
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		if line == "quit" || line == "exit" {
			return
		}

		result, err := orch.HandleTurn(ctx, sessionID, line)
		if err != nil {
			fmt.Printf("error: %v\n", err)
			continue
		}
		fmt.Println(result.Response)
	}
}
