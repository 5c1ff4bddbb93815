package eval

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"telcomax.com/billing-assistant/internal/chunking"
	"telcomax.com/billing-assistant/internal/ingest"
	"telcomax.com/billing-assistant/internal/llm"
	"telcomax.com/billing-assistant/internal/rag"
)

// Config sizes an evaluation run.
type Config struct {
	DocsDir      string
	TopK         int
	ChunkSize    int
	ChunkOverlap int

	// Workers bounds the cell pool; RequestRate caps backend calls per second
	// across all workers.
	Workers     int
	RequestRate float64

	// CellAttempts bounds retries of a transiently failing cell.
	CellAttempts int

	// ProtectedNamespaces are the production namespaces an evaluation run must
	// never write to.
	ProtectedNamespaces []string
}

// CellKey identifies one grid cell.
type CellKey struct {
	Chunking chunking.Kind
	Strategy rag.StrategyKind
	QueryID  string
}

// Cell is one completed (or failed) grid cell.
type Cell struct {
	Key    CellKey
	Axes   Axes
	Answer string
	Failed bool
	Err    string
}

// Harness fills the {chunking} x {strategy} x {query} grid.
type Harness struct {
	generator llm.Generator
	embedder  llm.Embedder
	vectors   rag.VectorStore
	counter   chunking.TokenCounter
	judge     *Judge
	cfg       Config
	logger    *zap.Logger
}

func NewHarness(generator llm.Generator, embedder llm.Embedder, vectors rag.VectorStore, counter chunking.TokenCounter, cfg Config, logger *zap.Logger) *Harness {
	if cfg.Workers < 1 {
		cfg.Workers = 1
	}
	if cfg.RequestRate <= 0 {
		cfg.RequestRate = 1
	}
	if cfg.CellAttempts < 1 {
		cfg.CellAttempts = 3
	}
	return &Harness{
		generator: generator,
		embedder:  embedder,
		vectors:   vectors,
		counter:   counter,
		judge:     NewJudge(generator, logger),
		cfg:       cfg,
		logger:    logger,
	}
}

// EvalNamespace names the isolated namespace a chunking strategy's corpus is
// ingested into for a run.
func EvalNamespace(kind chunking.Kind) string {
	return "eval-" + string(kind)
}

const evalAnswerPrompt = `You are a telecom billing assistant. Answer the customer question using
ONLY the retrieved documents below. Quote exact amounts and dates from the
documents; never estimate. If the documents do not contain the answer, say so.

Retrieved documents:
%s

Customer question: %s`

// Run ingests the corpus once per chunking strategy and fills the full grid.
// A failing cell is recorded as failed; it never aborts the run.
func (h *Harness) Run(ctx context.Context, queries []Query) (*Report, error) {
	if len(queries) == 0 {
		return nil, fmt.Errorf("no queries to evaluate")
	}
	if err := h.checkNamespaces(); err != nil {
		return nil, err
	}

	start := time.Now()
	chunkKinds := chunking.Kinds()
	strategyKinds := rag.Kinds()

	for _, kind := range chunkKinds {
		if err := h.ingestCorpus(ctx, kind); err != nil {
			return nil, fmt.Errorf("failed to prepare %s corpus: %w", kind, err)
		}
	}

	strategies := make(map[rag.StrategyKind]rag.Strategy, len(strategyKinds))
	for _, kind := range strategyKinds {
		strategy, err := rag.NewStrategy(kind, h.embedder, h.generator, h.vectors, h.logger)
		if err != nil {
			return nil, err
		}
		strategies[kind] = strategy
	}

	cells := make([]Cell, 0, len(chunkKinds)*len(strategyKinds)*len(queries))
	for _, ck := range chunkKinds {
		for _, sk := range strategyKinds {
			for _, q := range queries {
				cells = append(cells, Cell{Key: CellKey{Chunking: ck, Strategy: sk, QueryID: q.ID}})
			}
		}
	}
	h.logger.Info("evaluation grid prepared",
		zap.Int("cells", len(cells)),
		zap.Int("workers", h.cfg.Workers),
		zap.Float64("request_rate", h.cfg.RequestRate))

	queryByID := make(map[string]Query, len(queries))
	for _, q := range queries {
		queryByID[q.ID] = q
	}

	limiter := rate.NewLimiter(rate.Limit(h.cfg.RequestRate), 1)
	group, gctx := errgroup.WithContext(ctx)
	group.SetLimit(h.cfg.Workers)

	for i := range cells {
		cell := &cells[i]
		group.Go(func() error {
			query := queryByID[cell.Key.QueryID]
			strategy := strategies[cell.Key.Strategy]
			h.runCell(gctx, cell, query, strategy, limiter)
			return nil
		})
	}
	if err := group.Wait(); err != nil {
		return nil, err
	}

	report := BuildReport(cells, queries, time.Since(start))
	h.logger.Info("evaluation complete",
		zap.Int("succeeded", len(cells)-len(report.FailedCells)),
		zap.Int("failed", len(report.FailedCells)),
		zap.Duration("elapsed", report.Elapsed))
	return report, nil
}

// checkNamespaces rejects a configuration whose eval namespaces collide with
// production.
func (h *Harness) checkNamespaces() error {
	for _, kind := range chunking.Kinds() {
		ns := EvalNamespace(kind)
		for _, protected := range h.cfg.ProtectedNamespaces {
			if ns == protected {
				return fmt.Errorf("eval namespace %q collides with a production namespace", ns)
			}
		}
	}
	return nil
}

func (h *Harness) ingestCorpus(ctx context.Context, kind chunking.Kind) error {
	chunker, err := chunking.NewChunker(kind, chunking.Config{
		ChunkSize:    h.cfg.ChunkSize,
		ChunkOverlap: h.cfg.ChunkOverlap,
	}, h.counter, h.embedder, h.logger)
	if err != nil {
		return err
	}

	namespace := EvalNamespace(kind)
	ingestor := ingest.New(chunker, h.embedder, h.vectors, h.logger)
	n, err := ingestor.IngestDir(ctx, h.cfg.DocsDir, namespace)
	if err != nil {
		return err
	}
	h.logger.Info("eval corpus ingested",
		zap.String("chunking", string(kind)),
		zap.String("namespace", namespace),
		zap.Int("chunks", n))
	return nil
}

// runCell retrieves, answers, and judges one cell, retrying transient
// failures with backoff. Exhaustion marks the cell failed.
func (h *Harness) runCell(ctx context.Context, cell *Cell, query Query, strategy rag.Strategy, limiter *rate.Limiter) {
	namespace := EvalNamespace(cell.Key.Chunking)

	err := llm.WithRetry(ctx, h.cfg.CellAttempts, 500*time.Millisecond, func() error {
		if err := limiter.Wait(ctx); err != nil {
			return err
		}

		chunks, err := strategy.Retrieve(ctx, query.Text, namespace, h.cfg.TopK)
		if err != nil {
			return err
		}

		contexts := make([]string, 0, len(chunks))
		var docs strings.Builder
		for _, c := range chunks {
			contexts = append(contexts, c.Text)
			fmt.Fprintf(&docs, "[%s chunk %d]\n%s\n\n", c.DocID, c.ChunkID, c.Text)
		}

		answer, err := h.generator.Complete(ctx, fmt.Sprintf(evalAnswerPrompt, docs.String(), query.Text), 0.3, 500)
		if err != nil {
			return err
		}

		axes, err := h.judge.Score(ctx, query.Text, query.Reference, answer, contexts)
		if err != nil {
			return err
		}

		cell.Answer = answer
		cell.Axes = axes
		return nil
	})
	if err != nil {
		cell.Failed = true
		cell.Err = err.Error()
		h.logger.Warn("cell failed",
			zap.String("chunking", string(cell.Key.Chunking)),
			zap.String("strategy", string(cell.Key.Strategy)),
			zap.String("query_id", cell.Key.QueryID),
			zap.Error(err))
	}
}
