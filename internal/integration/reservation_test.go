//go:build integration

package integration_test

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	redisadapter "github.com/dunapp/water-level-alert/internal/adapter/redis"
	"github.com/dunapp/water-level-alert/internal/alert"
	"github.com/dunapp/water-level-alert/internal/domain"
	"github.com/dunapp/water-level-alert/internal/observability"
)

type staticStations struct{}

func (staticStations) FindStation(_ context.Context, ref string) (domain.Station, error) {
	threshold := 400.0
	return domain.Station{ID: "st-1", Name: ref, Threshold: &threshold, IsActive: true}, nil
}

func (staticStations) LatestReading(_ context.Context, stationID string) (domain.Reading, error) {
	return domain.Reading{StationID: stationID, ValueCM: 420, MeasuredAt: time.Now().UTC()}, nil
}

// neverNotified keeps the history-based gate open so only the reservation
// separates concurrent runs.
type neverNotified struct{}

func (neverNotified) LastNotifiedAt(context.Context, domain.Category) (*time.Time, error) {
	return nil, nil
}

type countingDispatcher struct {
	calls atomic.Int32
}

func (d *countingDispatcher) Dispatch(context.Context, domain.Payload) (domain.Summary, error) {
	d.calls.Add(1)
	time.Sleep(50 * time.Millisecond)
	return domain.Summary{Total: 1, Sent: 1}, nil
}

// TestConcurrentRunsDispatchOnce fires overlapping alert runs against one
// Redis and expects exactly one dispatch.
func TestConcurrentRunsDispatchOnce(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
	defer cancel()

	client := redisadapter.NewClient(startRedis(ctx, t), "", 0)
	reserver := redisadapter.NewReserver(client)
	t.Cleanup(func() { _ = reserver.Close() })
	require.NoError(t, reserver.CheckReadiness(ctx))

	dispatcher := &countingDispatcher{}
	orch := alert.NewOrchestrator(
		alert.NewEvaluator(staticStations{}, 400),
		alert.NewGate(neverNotified{}, 6*time.Hour),
		dispatcher,
		clockwork.NewRealClock(),
		discardLogger(),
		observability.NewMetricsForTesting(),
		alert.Options{DefaultStation: "Mohács", Reserver: reserver},
	)

	const runs = 8
	results := make([]alert.Result, runs)
	var wg sync.WaitGroup
	for i := range runs {
		wg.Add(1)
		go func() {
			defer wg.Done()
			res, err := orch.Run(ctx, alert.Request{})
			assert.NoError(t, err)
			results[i] = res
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), dispatcher.calls.Load())

	var sent, cooling int
	for _, r := range results {
		switch r.Outcome {
		case domain.OutcomeDispatched:
			sent++
		case domain.OutcomeCooldown:
			cooling++
			assert.Greater(t, r.HoursRemaining, 5.9)
		}
	}
	assert.Equal(t, 1, sent)
	assert.Equal(t, runs-1, cooling)
}
