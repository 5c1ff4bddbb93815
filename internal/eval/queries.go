// Package eval benchmarks every chunking strategy against every retrieval
// strategy over a fixed query set and ranks the pairs.
package eval

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Query is one benchmark case: the user question and the ground-truth answer
// the judge compares against.
type Query struct {
	ID        string `yaml:"id"`
	Text      string `yaml:"query"`
	Reference string `yaml:"reference_answer"`
}

type queryFixture struct {
	Queries []Query `yaml:"queries"`
}

// LoadQueries reads the benchmark query set from a YAML fixture.
func LoadQueries(path string) ([]Query, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read query fixture %s: %w", path, err)
	}

	var fixture queryFixture
	if err := yaml.Unmarshal(data, &fixture); err != nil {
		return nil, fmt.Errorf("failed to parse query fixture %s: %w", path, err)
	}
	if len(fixture.Queries) == 0 {
		return nil, fmt.Errorf("query fixture %s contains no queries", path)
	}

	seen := make(map[string]struct{}, len(fixture.Queries))
	for i, q := range fixture.Queries {
		if q.ID == "" || q.Text == "" || q.Reference == "" {
			return nil, fmt.Errorf("query %d in %s is missing id, query, or reference_answer", i, path)
		}
		if _, dup := seen[q.ID]; dup {
			return nil, fmt.Errorf("duplicate query id %q in %s", q.ID, path)
		}
		seen[q.ID] = struct{}{}
	}
	return fixture.Queries, nil
}
