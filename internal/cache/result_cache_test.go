package cache

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/fleetstack/fleet-sentinel/internal/models"
	"github.com/fleetstack/fleet-sentinel/internal/utils"
)

type fakeRunner struct {
	mu    sync.Mutex
	calls int
	batch models.AlertBatch
	err   error
	block chan struct{}
}

func (r *fakeRunner) Run(_ context.Context) (models.AlertBatch, error) {
	r.mu.Lock()
	r.calls++
	batch, err, block := r.batch, r.err, r.block
	r.mu.Unlock()
	if block != nil {
		<-block
	}
	return batch.Clone(), err
}

func (r *fakeRunner) runCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.calls
}

func (r *fakeRunner) set(batch models.AlertBatch, err error) {
	r.mu.Lock()
	r.batch, r.err = batch, err
	r.mu.Unlock()
}

func testBatch(ids ...string) models.AlertBatch {
	batch := models.AlertBatch{Stats: models.Stats{AssetsScanned: 10}}
	for _, id := range ids {
		batch.Alerts = append(batch.Alerts, models.ResolvedAlert{
			ID:       id,
			Severity: models.SeverityModerate,
			Type:     models.ConflictDelay,
		})
	}
	return batch
}

func TestGetCoalescesConcurrentCallers(t *testing.T) {
	runner := &fakeRunner{batch: testBatch("x1"), block: make(chan struct{})}
	rc := NewResultCache(nil, runner, time.Minute)

	const callers = 50
	results := make([]Result, callers)
	errs := make([]error, callers)
	var wg sync.WaitGroup
	for i := 0; i < callers; i++ {
		wg.Add(1)
		i := i
		go func() {
			defer wg.Done()
			results[i], errs[i] = rc.Get(context.Background())
		}()
	}

	// Give every caller time to attach to the shared run, then release it.
	time.Sleep(50 * time.Millisecond)
	close(runner.block)
	wg.Wait()

	if got := runner.runCount(); got != 1 {
		t.Fatalf("runner invoked %d times, want 1", got)
	}
	for i := 0; i < callers; i++ {
		if errs[i] != nil {
			t.Fatalf("caller %d: %v", i, errs[i])
		}
		if results[i].Generation != results[0].Generation {
			t.Fatalf("caller %d saw generation %d, caller 0 saw %d", i, results[i].Generation, results[0].Generation)
		}
		if len(results[i].Batch.Alerts) != 1 {
			t.Fatalf("caller %d got %d alerts, want 1", i, len(results[i].Batch.Alerts))
		}
	}
}

func TestGetServesLiveEntryWithoutRerunning(t *testing.T) {
	runner := &fakeRunner{batch: testBatch("x1")}
	rc := NewResultCache(nil, runner, time.Minute)

	first, err := rc.Get(context.Background())
	if err != nil {
		t.Fatalf("first Get: %v", err)
	}
	if first.Cached {
		t.Fatalf("first result should be fresh")
	}

	second, err := rc.Get(context.Background())
	if err != nil {
		t.Fatalf("second Get: %v", err)
	}
	if !second.Cached {
		t.Fatalf("second result should come from cache")
	}
	if second.Generation != first.Generation {
		t.Fatalf("generation changed on cached read: %d -> %d", first.Generation, second.Generation)
	}
	if got := runner.runCount(); got != 1 {
		t.Fatalf("runner invoked %d times, want 1", got)
	}
	if second.Age < first.Age {
		t.Fatalf("age went backwards: %v -> %v", first.Age, second.Age)
	}
}

func TestGetServesStaleOnRegenerationFailure(t *testing.T) {
	runner := &fakeRunner{batch: testBatch("x1")}
	rc := NewResultCache(nil, runner, 10*time.Millisecond)

	first, err := rc.Get(context.Background())
	if err != nil {
		t.Fatalf("first Get: %v", err)
	}

	time.Sleep(20 * time.Millisecond)
	runner.set(models.AlertBatch{}, errors.New("feed down"))

	stale, err := rc.Get(context.Background())
	if err != nil {
		t.Fatalf("stale Get: %v", err)
	}
	if !stale.Cached {
		t.Fatalf("failed regeneration should serve the retained entry as cached")
	}
	if stale.Generation != first.Generation {
		t.Fatalf("stale read changed generation: %d -> %d", first.Generation, stale.Generation)
	}
	if len(stale.Batch.Alerts) != 1 || stale.Batch.Alerts[0].ID != "x1" {
		t.Fatalf("stale batch does not match the last good one: %+v", stale.Batch.Alerts)
	}
}

func TestGetFailsWhenNoBatchEverProduced(t *testing.T) {
	runner := &fakeRunner{err: errors.New("feed down")}
	rc := NewResultCache(nil, runner, time.Minute)

	_, err := rc.Get(context.Background())
	if err == nil {
		t.Fatalf("expected error with no prior batch")
	}
	var appErr *utils.AppError
	if !errors.As(err, &appErr) {
		t.Fatalf("err %T is not an AppError", err)
	}
	if appErr.Op != "regenerate" {
		t.Fatalf("op = %q, want regenerate", appErr.Op)
	}
}

func TestGetReturnsIsolatedCopies(t *testing.T) {
	runner := &fakeRunner{batch: testBatch("x1", "x2")}
	rc := NewResultCache(nil, runner, time.Minute)

	first, err := rc.Get(context.Background())
	if err != nil {
		t.Fatalf("first Get: %v", err)
	}
	first.Batch.Alerts[0].ID = "mutated"
	first.Batch.Alerts = first.Batch.Alerts[:1]

	second, err := rc.Get(context.Background())
	if err != nil {
		t.Fatalf("second Get: %v", err)
	}
	if len(second.Batch.Alerts) != 2 || second.Batch.Alerts[0].ID != "x1" {
		t.Fatalf("caller mutation leaked into the cache: %+v", second.Batch.Alerts)
	}
}

func TestGetIncrementsGenerationAcrossRegenerations(t *testing.T) {
	runner := &fakeRunner{batch: testBatch("x1")}
	rc := NewResultCache(nil, runner, 5*time.Millisecond)

	first, err := rc.Get(context.Background())
	if err != nil {
		t.Fatalf("first Get: %v", err)
	}

	time.Sleep(10 * time.Millisecond)
	runner.set(testBatch("x2"), nil)

	second, err := rc.Get(context.Background())
	if err != nil {
		t.Fatalf("second Get: %v", err)
	}
	if second.Generation != first.Generation+1 {
		t.Fatalf("generation = %d, want %d", second.Generation, first.Generation+1)
	}
	if second.Cached {
		t.Fatalf("regenerated result should not be marked cached")
	}
	if second.Batch.Alerts[0].ID != "x2" {
		t.Fatalf("second batch = %+v, want the regenerated one", second.Batch.Alerts)
	}
}

func TestGetCallerCancellationDoesNotAbortSharedRun(t *testing.T) {
	runner := &fakeRunner{batch: testBatch("x1"), block: make(chan struct{})}
	rc := NewResultCache(nil, runner, time.Minute)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		_, err := rc.Get(ctx)
		done <- err
	}()

	time.Sleep(20 * time.Millisecond)
	cancel()
	if err := <-done; !errors.Is(err, context.Canceled) {
		t.Fatalf("cancelled caller got %v, want context.Canceled", err)
	}

	close(runner.block)

	// The detached run still completes and installs its entry.
	deadline := time.Now().Add(time.Second)
	for {
		res, err := rc.Get(context.Background())
		if err == nil && res.Cached {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("shared run never installed an entry (last err %v)", err)
		}
		time.Sleep(5 * time.Millisecond)
	}
	if got := runner.runCount(); got != 1 {
		t.Fatalf("runner invoked %d times, want 1", got)
	}
}
