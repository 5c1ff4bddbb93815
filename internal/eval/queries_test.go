package eval

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFixture(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "queries.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadQueries(t *testing.T) {
	path := writeFixture(t, `queries:
  - id: q01
    query: "What is the late fee?"
    reference_answer: "The late fee is $7.50."
  - id: q02
    query: "How much is roaming?"
    reference_answer: "Roaming is $5.00 per day."
`)

	queries, err := LoadQueries(path)
	require.NoError(t, err)
	require.Len(t, queries, 2)
	assert.Equal(t, "q01", queries[0].ID)
	assert.Equal(t, "What is the late fee?", queries[0].Text)
	assert.Equal(t, "The late fee is $7.50.", queries[0].Reference)
}

func TestLoadQueriesRejectsDuplicateIDs(t *testing.T) {
	path := writeFixture(t, `queries:
  - id: q01
    query: "a"
    reference_answer: "ra"
  - id: q01
    query: "b"
    reference_answer: "rb"
`)

	_, err := LoadQueries(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "duplicate")
}

func TestLoadQueriesRejectsIncompleteEntries(t *testing.T) {
	path := writeFixture(t, `queries:
  - id: q01
    query: "a"
`)

	_, err := LoadQueries(path)
	assert.Error(t, err)
}

func TestLoadQueriesRejectsEmptyFixture(t *testing.T) {
	path := writeFixture(t, "queries: []\n")
	_, err := LoadQueries(path)
	assert.Error(t, err)
}

func TestLoadQueriesMissingFile(t *testing.T) {
	_, err := LoadQueries(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}

func TestLoadQueriesShippedFixtureParses(t *testing.T) {
	queries, err := LoadQueries(filepath.Join("..", "..", "data", "eval", "queries.yaml"))
	require.NoError(t, err)
	assert.Len(t, queries, 10)
}
