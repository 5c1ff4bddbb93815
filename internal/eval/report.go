package eval

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"telcomax.com/billing-assistant/internal/chunking"
	"telcomax.com/billing-assistant/internal/rag"
)

// PairResult aggregates one (chunking, strategy) pair over its succeeded
// cells.
type PairResult struct {
	Chunking  chunking.Kind
	Strategy  rag.StrategyKind
	Axes      Axes
	Composite float64

	// Variance across the three axis means. Used to break composite ties:
	// a pair that is evenly good beats one that is unevenly good.
	Variance float64

	Succeeded int
	Failed    int
	Cells     []Cell
}

// Report is the ranked outcome of an evaluation run.
type Report struct {
	Pairs       []PairResult
	FailedCells []Cell
	Queries     []Query
	Elapsed     time.Duration
}

// BuildReport aggregates cells per pair, excluding failed cells from the
// scores, and ranks the pairs.
func BuildReport(cells []Cell, queries []Query, elapsed time.Duration) *Report {
	grouped := make(map[[2]string][]Cell)
	var failed []Cell
	for _, cell := range cells {
		if cell.Failed {
			failed = append(failed, cell)
		}
		key := [2]string{string(cell.Key.Chunking), string(cell.Key.Strategy)}
		grouped[key] = append(grouped[key], cell)
	}

	var pairs []PairResult
	for _, ck := range chunking.Kinds() {
		for _, sk := range rag.Kinds() {
			group := grouped[[2]string{string(ck), string(sk)}]
			pairs = append(pairs, aggregatePair(ck, sk, group))
		}
	}

	sort.SliceStable(pairs, func(i, j int) bool {
		// Pairs with no succeeded cells sink to the bottom.
		if (pairs[i].Succeeded == 0) != (pairs[j].Succeeded == 0) {
			return pairs[i].Succeeded > 0
		}
		if pairs[i].Composite != pairs[j].Composite {
			return pairs[i].Composite > pairs[j].Composite
		}
		return pairs[i].Variance < pairs[j].Variance
	})

	sort.Slice(failed, func(i, j int) bool {
		a, b := failed[i].Key, failed[j].Key
		if a.Chunking != b.Chunking {
			return a.Chunking < b.Chunking
		}
		if a.Strategy != b.Strategy {
			return a.Strategy < b.Strategy
		}
		return a.QueryID < b.QueryID
	})

	return &Report{Pairs: pairs, FailedCells: failed, Queries: queries, Elapsed: elapsed}
}

func aggregatePair(ck chunking.Kind, sk rag.StrategyKind, cells []Cell) PairResult {
	result := PairResult{Chunking: ck, Strategy: sk}
	for _, cell := range cells {
		if cell.Failed {
			result.Failed++
			continue
		}
		result.Succeeded++
		result.Cells = append(result.Cells, cell)
		result.Axes.Faithfulness += cell.Axes.Faithfulness
		result.Axes.Relevancy += cell.Axes.Relevancy
		result.Axes.Correctness += cell.Axes.Correctness
	}
	if result.Succeeded == 0 {
		return result
	}

	n := float64(result.Succeeded)
	result.Axes.Faithfulness /= n
	result.Axes.Relevancy /= n
	result.Axes.Correctness /= n
	result.Composite = result.Axes.Mean()

	for _, axis := range []float64{result.Axes.Faithfulness, result.Axes.Relevancy, result.Axes.Correctness} {
		diff := axis - result.Composite
		result.Variance += diff * diff
	}
	result.Variance /= 3
	return result
}

// Winner is the top-ranked pair, or nil when every cell failed.
func (r *Report) Winner() *PairResult {
	if len(r.Pairs) == 0 || r.Pairs[0].Succeeded == 0 {
		return nil
	}
	return &r.Pairs[0]
}

// Render formats the report as a text artifact.
func (r *Report) Render() string {
	var b strings.Builder

	b.WriteString("=========================================================================\n")
	b.WriteString(" RAG Strategy Evaluation Report\n")
	fmt.Fprintf(&b, " %d queries x %d pairs, elapsed %s\n", len(r.Queries), len(r.Pairs), r.Elapsed.Round(time.Second))
	b.WriteString("=========================================================================\n\n")

	b.WriteString("Ranking (composite = mean of axis means, ties broken by lower variance):\n\n")
	fmt.Fprintf(&b, "  %-4s %-12s %-12s %-6s %-6s %-6s %-9s %s\n",
		"Rank", "Chunking", "Retrieval", "Faith", "Relev", "Corr", "Composite", "Cells")
	for i, p := range r.Pairs {
		if p.Succeeded == 0 {
			fmt.Fprintf(&b, "  %-4d %-12s %-12s %-37s %d/%d (all cells failed)\n",
				i+1, p.Chunking, p.Strategy, "-", p.Succeeded, p.Succeeded+p.Failed)
			continue
		}
		fmt.Fprintf(&b, "  %-4d %-12s %-12s %-6.3f %-6.3f %-6.3f %-9.3f %d/%d\n",
			i+1, p.Chunking, p.Strategy,
			p.Axes.Faithfulness, p.Axes.Relevancy, p.Axes.Correctness,
			p.Composite, p.Succeeded, p.Succeeded+p.Failed)
	}
	b.WriteString("\n")

	if winner := r.Winner(); winner != nil {
		fmt.Fprintf(&b, "Winner: %s chunking with %s retrieval (composite %.3f)\n\n",
			winner.Chunking, winner.Strategy, winner.Composite)
	} else {
		b.WriteString("Winner: none (no cell succeeded)\n\n")
	}

	top := len(r.Pairs)
	if top > 3 {
		top = 3
	}
	for i := 0; i < top; i++ {
		p := r.Pairs[i]
		if p.Succeeded == 0 {
			break
		}
		fmt.Fprintf(&b, "Per-query breakdown: %s / %s\n", p.Chunking, p.Strategy)
		cells := append([]Cell(nil), p.Cells...)
		sort.Slice(cells, func(i, j int) bool { return cells[i].Key.QueryID < cells[j].Key.QueryID })
		for _, cell := range cells {
			fmt.Fprintf(&b, "  %-12s faith=%.2f relev=%.2f corr=%.2f\n",
				cell.Key.QueryID, cell.Axes.Faithfulness, cell.Axes.Relevancy, cell.Axes.Correctness)
		}
		b.WriteString("\n")
	}

	if len(r.FailedCells) > 0 {
		fmt.Fprintf(&b, "Failed cells (%d, excluded from scores):\n", len(r.FailedCells))
		for _, cell := range r.FailedCells {
			fmt.Fprintf(&b, "  %s / %s / %s: %s\n",
				cell.Key.Chunking, cell.Key.Strategy, cell.Key.QueryID, cell.Err)
		}
	}
	return b.String()
}
