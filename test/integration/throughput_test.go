package integration

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/ChuLiYu/decision-engine/internal/policystore"
	"github.com/ChuLiYu/decision-engine/internal/worker"
)

func BenchmarkBatchThroughput(b *testing.B) {
	store, err := policystore.OpenBadgerStore(policystore.BadgerConfig{InMemory: true})
	require.NoError(b, err)
	defer store.Close()

	p := newPlanner(b, store, plannerOptions([]float64{10, 7, 5, 3}, 2))
	trainWarehouse(b, p)
	tasks := generateTasks(32, 4)

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		results, err := worker.RunBatch(context.Background(), p, 8, tasks)
		require.NoError(b, err)
		for _, r := range results {
			require.NoError(b, r.Error)
		}
	}
	b.StopTimer()
}
