package turn

import (
	"context"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ent0n29/mnemo/internal/logger"
	"github.com/ent0n29/mnemo/internal/memory"
	"github.com/ent0n29/mnemo/internal/observability"
)

func TestPersistQueueStoresFactsAndSkipsInvalid(t *testing.T) {
	store := memory.NewInMemoryStore()
	metrics := observability.NewMetricsWith(prometheus.NewRegistry(), "test")
	q := NewPersistQueue(store, 2, 2, metrics, logger.Nop())
	defer q.Close()

	done, err := q.Submit(context.Background(), "conv-1", "source msg", []string{"likes jazz", "  ", "owns a bike"})
	require.NoError(t, err)
	assert.Equal(t, []string{"likes jazz", "owns a bike"}, <-done)

	records, err := store.ListAll(context.Background())
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, "source msg", records[0].Source)
	assert.Equal(t, 2.0, counterValue(t, metrics.MemoryWrites.WithLabelValues("ok")))
	assert.Equal(t, 1.0, counterValue(t, metrics.MemoryWrites.WithLabelValues("error")))
}

func TestPersistQueueCloseDrainsAndRejects(t *testing.T) {
	store := memory.NewInMemoryStore()
	q := NewPersistQueue(store, 1, 8, nil, logger.Nop())

	var pending []<-chan []string
	for _, fact := range []string{"a", "b", "c"} {
		done, err := q.Submit(context.Background(), "conv", "", []string{fact})
		require.NoError(t, err)
		pending = append(pending, done)
	}
	q.Close()
	q.Close()

	for _, done := range pending {
		assert.Len(t, <-done, 1)
	}
	records, err := store.ListAll(context.Background())
	require.NoError(t, err)
	assert.Len(t, records, 3)

	_, err = q.Submit(context.Background(), "conv", "", []string{"d"})
	assert.ErrorIs(t, err, ErrQueueClosed)
}

func counterValue(t *testing.T, c prometheus.Counter) float64 {
	t.Helper()
	var m dto.Metric
	require.NoError(t, c.Write(&m))
	return m.GetCounter().GetValue()
}
