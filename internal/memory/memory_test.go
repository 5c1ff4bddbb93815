package memory

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"telcomax.com/billing-assistant/internal/store"
)

func newTestMemory() *SessionMemory {
	return NewSessionMemory(store.NewInMemoryStore(), zap.NewNop())
}

func TestMergeEntitiesOverwritesOnEqualOrHigherConfidence(t *testing.T) {
	mem := newTestMemory()
	ctx := context.Background()

	require.NoError(t, mem.MergeEntities(ctx, "s", []store.Entity{
		{Type: store.EntityAccountID, Value: "ACC-2024-001", Confidence: 0.8},
	}))

	// Equal confidence overwrites.
	require.NoError(t, mem.MergeEntities(ctx, "s", []store.Entity{
		{Type: store.EntityAccountID, Value: "ACC-2024-002", Confidence: 0.8},
	}))
	session, err := mem.GetOrCreate(ctx, "s")
	require.NoError(t, err)
	assert.Equal(t, "ACC-2024-002", session.Entities[store.EntityAccountID].Value)

	// Higher confidence overwrites.
	require.NoError(t, mem.MergeEntities(ctx, "s", []store.Entity{
		{Type: store.EntityAccountID, Value: "ACC-2024-003", Confidence: 0.95},
	}))
	session, err = mem.GetOrCreate(ctx, "s")
	require.NoError(t, err)
	assert.Equal(t, "ACC-2024-003", session.Entities[store.EntityAccountID].Value)
}

func TestMergeEntitiesKeepsExistingOnLowerConfidence(t *testing.T) {
	mem := newTestMemory()
	ctx := context.Background()

	require.NoError(t, mem.MergeEntities(ctx, "s", []store.Entity{
		{Type: store.EntityBillingPeriod, Value: "March 2024", Confidence: 0.9},
	}))
	require.NoError(t, mem.MergeEntities(ctx, "s", []store.Entity{
		{Type: store.EntityBillingPeriod, Value: "last month", Confidence: 0.5},
	}))

	session, err := mem.GetOrCreate(ctx, "s")
	require.NoError(t, err)
	assert.Equal(t, "March 2024", session.Entities[store.EntityBillingPeriod].Value)
	assert.Equal(t, 0.9, session.Entities[store.EntityBillingPeriod].Confidence)
}

func TestMergeEntitiesDifferentTypesCoexist(t *testing.T) {
	mem := newTestMemory()
	ctx := context.Background()

	require.NoError(t, mem.MergeEntities(ctx, "s", []store.Entity{
		{Type: store.EntityAccountID, Value: "ACC-2024-001", Confidence: 0.95},
		{Type: store.EntityCustomerName, Value: "Sarah", Confidence: 0.6},
		{Type: store.EntityTopic, Value: "billing", Confidence: 0.4},
	}))

	session, err := mem.GetOrCreate(ctx, "s")
	require.NoError(t, err)
	assert.Len(t, session.Entities, 3)
}

func TestConcurrentAppendsDoNotLoseTurns(t *testing.T) {
	mem := newTestMemory()
	ctx := context.Background()

	const n = 50
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.NoError(t, mem.AppendTurn(ctx, "s", store.Turn{Role: store.RoleUser, Text: "hi"}))
		}()
	}
	wg.Wait()

	session, err := mem.GetOrCreate(ctx, "s")
	require.NoError(t, err)
	assert.Len(t, session.Turns, n)
}
