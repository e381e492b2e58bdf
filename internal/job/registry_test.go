package job

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/shehryarbajwa/commentbot/internal/apperr"
	"github.com/shehryarbajwa/commentbot/internal/bot"
	"github.com/shehryarbajwa/commentbot/internal/logbus"
	"github.com/shehryarbajwa/commentbot/pkg/models"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type profiles map[string]models.Profile

func (p profiles) Get(name string) (models.Profile, error) {
	if prof, ok := p[name]; ok {
		return prof, nil
	}
	return models.Profile{}, apperr.NotFound("profile %s not found", name)
}

var testProfiles = profiles{
	"alice": {Name: "alice", Username: "alice_ig", Password: "pw"},
	"bob":   {Name: "bob", Username: "bob_ig", Password: "pw"},
}

var runParams = bot.RunParams{PostURL: "https://instagram.com/p/XYZ/", Comment: "Nice!", Count: 2}

// fakeRunner blocks until released
type fakeRunner struct {
	spec    Spec
	onState func(bot.State)
	gate    chan struct{}
	started chan struct{}
	result  bool
	panics  bool
	logins  atomic.Int32
	runs    atomic.Int32
}

func (f *fakeRunner) Run(ctx context.Context, p bot.RunParams) bool {
	f.runs.Add(1)
	return f.work(ctx)
}

func (f *fakeRunner) Login(ctx context.Context) bool {
	f.logins.Add(1)
	return f.work(ctx)
}

func (f *fakeRunner) work(ctx context.Context) bool {
	f.onState(bot.StateCommenting)
	close(f.started)
	select {
	case <-f.gate:
	case <-ctx.Done():
		return false
	}
	if f.panics {
		panic("boom")
	}
	return f.result
}

func (f *fakeRunner) Screenshot(ctx context.Context) ([]byte, error) {
	return []byte("png"), nil
}

type fixture struct {
	mu      sync.Mutex
	runners []*fakeRunner
	result  bool
	panics  bool
	gate    chan struct{}
	rec     *logbus.Recorder
}

func newFixture() *fixture {
	return &fixture{result: true, gate: make(chan struct{}), rec: logbus.NewRecorder("rec")}
}

func (f *fixture) factory(spec Spec, onState func(bot.State)) (Runner, error) {
	r := &fakeRunner{
		spec:    spec,
		onState: onState,
		gate:    f.gate,
		started: make(chan struct{}),
		result:  f.result,
		panics:  f.panics,
	}
	f.mu.Lock()
	f.runners = append(f.runners, r)
	f.mu.Unlock()
	return r, nil
}

func (f *fixture) last() *fakeRunner {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.runners[len(f.runners)-1]
}

func (f *fixture) registry(opts Options) *Registry {
	return NewRegistry(testProfiles, f.factory, f.rec, opts, nil)
}

func waitAll(t *testing.T, r *Registry) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, r.Wait(ctx))
}

func TestConcurrentSubmitsExactlyOneWins(t *testing.T) {
	f := newFixture()
	r := f.registry(Options{})

	var accepted, conflicts atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := r.SubmitRun("alice", runParams, true)
			switch {
			case err == nil:
				accepted.Add(1)
			case errors.Is(err, apperr.ErrConflict):
				conflicts.Add(1)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), accepted.Load())
	assert.Equal(t, int32(19), conflicts.Load())

	close(f.gate)
	waitAll(t, r)
}

func TestStatusLifecycle(t *testing.T) {
	f := newFixture()
	r := f.registry(Options{})

	status := r.Query("alice")
	assert.False(t, status.Running)
	assert.Nil(t, status.CurrentTask)

	status, err := r.SubmitRun("alice", runParams, true)
	require.NoError(t, err)
	assert.True(t, status.Running)
	assert.NotEmpty(t, status.RunID)
	assert.Equal(t, models.JobRun, status.Kind)
	assert.True(t, r.IsRunning("alice"))

	<-f.last().started
	status = r.Query("alice")
	require.NotNil(t, status.CurrentTask)
	assert.Equal(t, "Posting comments", *status.CurrentTask)

	close(f.gate)
	waitAll(t, r)

	status = r.Query("alice")
	assert.False(t, status.Running)
	assert.Nil(t, status.CurrentTask)
	assert.False(t, r.IsRunning("alice"))

	all := r.QueryAll()
	require.Contains(t, all, "alice")
	assert.False(t, all["alice"].Running)
	assert.Equal(t, int32(1), f.last().runs.Load())
}

// releaseProbe records what a poller sees at the moment bot_finished arrives
type releaseProbe struct {
	registry *Registry
	mu       sync.Mutex
	seen     []models.JobStatus
	finished []logbus.Event
}

func (p *releaseProbe) Publish(e logbus.Event) {
	if e.Type != logbus.TypeFinished {
		return
	}
	status := p.registry.Query(e.Profile)
	p.mu.Lock()
	p.seen = append(p.seen, status)
	p.finished = append(p.finished, e)
	p.mu.Unlock()
}

func TestSlotReleasedBeforeFinishedEvent(t *testing.T) {
	f := newFixture()
	probe := &releaseProbe{}
	r := NewRegistry(testProfiles, f.factory, probe, Options{}, nil)
	probe.registry = r

	_, err := r.SubmitRun("alice", runParams, true)
	require.NoError(t, err)
	close(f.gate)
	waitAll(t, r)

	probe.mu.Lock()
	defer probe.mu.Unlock()
	require.Len(t, probe.finished, 1)
	assert.True(t, probe.finished[0].Success)
	assert.False(t, probe.seen[0].Running)
	assert.Nil(t, probe.seen[0].CurrentTask)
}

func TestFailedRunReportsFailure(t *testing.T) {
	f := newFixture()
	f.result = false
	r := f.registry(Options{})

	_, err := r.SubmitRun("alice", runParams, true)
	require.NoError(t, err)
	close(f.gate)
	waitAll(t, r)

	finished := f.rec.Finished()
	require.Len(t, finished, 1)
	assert.False(t, finished[0].Success)
	assert.True(t, f.rec.Contains("Bot task failed"))
}

func TestPanicBecomesFailure(t *testing.T) {
	f := newFixture()
	f.panics = true
	r := f.registry(Options{})

	_, err := r.SubmitRun("alice", runParams, true)
	require.NoError(t, err)
	close(f.gate)
	waitAll(t, r)

	assert.True(t, f.rec.Contains("Critical error: boom"))
	finished := f.rec.Finished()
	require.Len(t, finished, 1)
	assert.False(t, finished[0].Success)
	assert.False(t, r.IsRunning("alice"))

	// the registry keeps working after a fault
	f.panics = false
	_, err = r.SubmitRun("alice", runParams, true)
	require.NoError(t, err)
	waitAll(t, r)
}

func TestSubmitValidation(t *testing.T) {
	f := newFixture()
	r := f.registry(Options{MaxCommentCount: 5})

	_, err := r.SubmitRun("carol", runParams, true)
	assert.ErrorIs(t, err, apperr.ErrNotFound)

	_, err = r.SubmitRun("", runParams, true)
	assert.ErrorIs(t, err, apperr.ErrValidation)

	_, err = r.SubmitRun("alice", bot.RunParams{PostURL: "https://instagram.com/p/XYZ/"}, true)
	assert.ErrorIs(t, err, apperr.ErrValidation)

	_, err = r.SubmitRun("alice", bot.RunParams{PostURL: "x", Comment: "y", Count: 6}, true)
	assert.ErrorIs(t, err, apperr.ErrValidation)

	_, err = r.SubmitRun("alice", bot.RunParams{PostURL: "x", Comment: "y", Count: -1}, true)
	assert.ErrorIs(t, err, apperr.ErrValidation)

	assert.False(t, r.IsRunning("alice"))
}

func TestDefaultCount(t *testing.T) {
	f := newFixture()
	r := f.registry(Options{})

	_, err := r.SubmitRun("alice", bot.RunParams{PostURL: "x", Comment: "y"}, true)
	require.NoError(t, err)
	assert.Equal(t, 1, f.last().spec.Params.Count)

	close(f.gate)
	waitAll(t, r)
}

func TestGlobalBrowserCap(t *testing.T) {
	f := newFixture()
	r := f.registry(Options{MaxConcurrent: 1})

	_, err := r.SubmitRun("alice", runParams, true)
	require.NoError(t, err)

	_, err = r.SubmitLogin("bob", true)
	assert.ErrorIs(t, err, apperr.ErrConflict)
	assert.False(t, r.IsRunning("bob"))

	close(f.gate)
	waitAll(t, r)

	_, err = r.SubmitLogin("bob", true)
	require.NoError(t, err)
	waitAll(t, r)
	assert.Equal(t, int32(1), f.last().logins.Load())
}

func TestFactoryErrorReleasesSlot(t *testing.T) {
	f := newFixture()
	calls := 0
	factory := func(spec Spec, onState func(bot.State)) (Runner, error) {
		calls++
		if calls == 1 {
			return nil, errors.New("disk full")
		}
		return f.factory(spec, onState)
	}
	r := NewRegistry(testProfiles, factory, f.rec, Options{MaxConcurrent: 1}, nil)

	_, err := r.SubmitRun("alice", runParams, true)
	require.Error(t, err)
	assert.False(t, r.IsRunning("alice"))

	_, err = r.SubmitRun("alice", runParams, true)
	require.NoError(t, err)
	close(f.gate)
	waitAll(t, r)
}

func TestScreenshot(t *testing.T) {
	f := newFixture()
	r := f.registry(Options{})

	_, err := r.Screenshot(context.Background(), "alice")
	assert.ErrorIs(t, err, apperr.ErrNotFound)

	_, err = r.SubmitRun("alice", runParams, true)
	require.NoError(t, err)
	<-f.last().started

	png, err := r.Screenshot(context.Background(), "alice")
	require.NoError(t, err)
	assert.Equal(t, []byte("png"), png)

	close(f.gate)
	waitAll(t, r)

	_, err = r.Screenshot(context.Background(), "alice")
	assert.ErrorIs(t, err, apperr.ErrNotFound)
}

func TestShutdownCancelsJobs(t *testing.T) {
	f := newFixture()
	r := f.registry(Options{})

	_, err := r.SubmitRun("alice", runParams, true)
	require.NoError(t, err)
	_, err = r.SubmitLogin("bob", true)
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, r.Shutdown(ctx))

	assert.Empty(t, r.Running())
	assert.Len(t, f.rec.Finished(), 2)
}

func TestWaitHonoursContext(t *testing.T) {
	f := newFixture()
	r := f.registry(Options{})

	_, err := r.SubmitRun("alice", runParams, true)
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, r.Wait(ctx), context.DeadlineExceeded)

	close(f.gate)
	waitAll(t, r)
}

func TestHoldExcludesSubmissions(t *testing.T) {
	f := newFixture()
	r := f.registry(Options{})

	release, ok := r.Hold("alice")
	require.True(t, ok)

	_, held := r.Hold("alice")
	assert.False(t, held, "second holder")

	_, err := r.SubmitRun("alice", runParams, true)
	assert.True(t, errors.Is(err, apperr.ErrConflict))
	_, err = r.SubmitLogin("alice", true)
	assert.True(t, errors.Is(err, apperr.ErrConflict))

	// other profiles are unaffected
	_, err = r.SubmitLogin("bob", true)
	require.NoError(t, err)

	release()
	release()

	_, err = r.SubmitRun("alice", runParams, true)
	require.NoError(t, err)

	_, ok = r.Hold("alice")
	assert.False(t, ok, "job running")

	close(f.gate)
	waitAll(t, r)

	release, ok = r.Hold("alice")
	require.True(t, ok)
	release()
}

func TestHoldAndSubmitRace(t *testing.T) {
	f := newFixture()
	r := f.registry(Options{})

	var holds, jobs atomic.Int32
	var wg sync.WaitGroup
	start := make(chan struct{})
	for i := 0; i < 10; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			<-start
			if _, ok := r.Hold("alice"); ok {
				holds.Add(1)
			}
		}()
		go func() {
			defer wg.Done()
			<-start
			if _, err := r.SubmitLogin("alice", true); err == nil {
				jobs.Add(1)
			}
		}()
	}
	close(start)
	wg.Wait()

	assert.Equal(t, int32(1), holds.Load()+jobs.Load())

	close(f.gate)
	waitAll(t, r)
}
