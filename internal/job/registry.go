// Package job tracks at most one running bot per profile.
package job

import (
	"context"
	"fmt"
	"runtime/debug"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"

	"github.com/shehryarbajwa/commentbot/internal/apperr"
	"github.com/shehryarbajwa/commentbot/internal/bot"
	"github.com/shehryarbajwa/commentbot/internal/logbus"
	"github.com/shehryarbajwa/commentbot/pkg/models"
)

const initialTask = "Initializing..."

// ProfileLookup resolves credentials by profile name
type ProfileLookup interface {
	Get(name string) (models.Profile, error)
}

// Runner is one bot execution
type Runner interface {
	Run(ctx context.Context, p bot.RunParams) bool
	Login(ctx context.Context) bool
	Screenshot(ctx context.Context) ([]byte, error)
}

// Spec is everything a runner needs to start
type Spec struct {
	RunID    string
	Kind     models.JobKind
	Profile  models.Profile
	Headless bool
	Params   bot.RunParams
}

// RunnerFactory builds the runner for a claimed job. onState must be
// called on every state change so the job's current task stays current.
type RunnerFactory func(spec Spec, onState func(bot.State)) (Runner, error)

// Options bounds the registry
type Options struct {
	MaxConcurrent   int
	MaxCommentCount int
}

type job struct {
	runID     string
	kind      models.JobKind
	running   bool
	task      string
	startedAt time.Time
	runner    Runner
}

// Registry maps profile names to job slots. Claiming and releasing a slot
// happen under one lock, so two submissions for a profile never both win.
type Registry struct {
	mu       sync.Mutex
	jobs     map[string]*job
	held     map[string]bool
	profiles ProfileLookup
	factory  RunnerFactory
	sink     logbus.Sink
	sem      *semaphore.Weighted
	opts     Options
	logger   *zap.Logger

	wg     sync.WaitGroup
	ctx    context.Context
	cancel context.CancelFunc
}

// NewRegistry creates an empty registry
func NewRegistry(profiles ProfileLookup, factory RunnerFactory, sink logbus.Sink, opts Options, logger *zap.Logger) *Registry {
	if opts.MaxConcurrent <= 0 {
		opts.MaxConcurrent = 4
	}
	if opts.MaxCommentCount <= 0 {
		opts.MaxCommentCount = 50
	}
	if sink == nil {
		sink = logbus.NopSink{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Registry{
		jobs:     make(map[string]*job),
		held:     make(map[string]bool),
		profiles: profiles,
		factory:  factory,
		sink:     sink,
		sem:      semaphore.NewWeighted(int64(opts.MaxConcurrent)),
		opts:     opts,
		logger:   logger,
		ctx:      ctx,
		cancel:   cancel,
	}
}

// SubmitRun starts a comment run for profile and returns immediately
func (r *Registry) SubmitRun(profile string, params bot.RunParams, headless bool) (models.JobStatus, error) {
	if params.PostURL == "" || params.Comment == "" {
		return models.JobStatus{}, apperr.Validation("post_url and comment are required")
	}
	if params.Count == 0 {
		params.Count = 1
	}
	if params.Count < 1 || params.Count > r.opts.MaxCommentCount {
		return models.JobStatus{}, apperr.Validation("count must be between 1 and %d", r.opts.MaxCommentCount)
	}

	return r.submit(Spec{Kind: models.JobRun, Headless: headless, Params: params}, profile)
}

// SubmitLogin starts a login-only job for profile
func (r *Registry) SubmitLogin(profile string, headless bool) (models.JobStatus, error) {
	return r.submit(Spec{Kind: models.JobLogin, Headless: headless}, profile)
}

func (r *Registry) submit(spec Spec, name string) (models.JobStatus, error) {
	if name == "" {
		return models.JobStatus{}, apperr.Validation("profile_name is required")
	}
	p, err := r.profiles.Get(name)
	if err != nil {
		return models.JobStatus{}, err
	}
	spec.Profile = p
	spec.RunID = uuid.New().String()

	if err := r.claim(name, spec); err != nil {
		return models.JobStatus{}, err
	}

	runner, err := r.factory(spec, func(s bot.State) { r.setTask(name, spec.RunID, s.Task()) })
	if err != nil {
		r.release(name, spec.RunID)
		return models.JobStatus{}, fmt.Errorf("failed to prepare bot: %w", err)
	}

	r.mu.Lock()
	if j := r.jobs[name]; j != nil && j.runID == spec.RunID {
		j.runner = runner
	}
	r.mu.Unlock()

	log := logbus.For(r.sink, name)
	log.Info("Using saved credentials for profile: " + name)

	r.wg.Add(1)
	go r.execute(name, spec, runner)

	r.logger.Info("Job started",
		zap.String("profile", name),
		zap.String("run_id", spec.RunID),
		zap.String("kind", string(spec.Kind)))

	return r.Query(name), nil
}

// claim marks the profile's slot running, or fails with ErrConflict
func (r *Registry) claim(name string, spec Spec) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if j := r.jobs[name]; j != nil && j.running {
		return apperr.Conflict("bot is already running for profile %s", name)
	}
	if r.held[name] {
		return apperr.Conflict("session for profile %s is being modified", name)
	}
	if !r.sem.TryAcquire(1) {
		return apperr.Conflict("maximum of %d bots already running", r.opts.MaxConcurrent)
	}

	r.jobs[name] = &job{
		runID:     spec.RunID,
		kind:      spec.Kind,
		running:   true,
		task:      initialTask,
		startedAt: time.Now(),
	}
	return nil
}

// release clears the slot. It is a no-op if another run owns it.
func (r *Registry) release(name, runID string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	j := r.jobs[name]
	if j == nil || j.runID != runID || !j.running {
		return
	}
	j.running = false
	j.task = ""
	j.runner = nil
	r.sem.Release(1)
}

func (r *Registry) setTask(name, runID, task string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if j := r.jobs[name]; j != nil && j.runID == runID && j.running {
		j.task = task
	}
}

// execute runs the job and always releases its slot before announcing
// completion, so a poller that sees bot_finished also sees running=false.
func (r *Registry) execute(name string, spec Spec, runner Runner) {
	defer r.wg.Done()
	log := logbus.For(r.sink, name)
	success := false

	defer func() {
		if p := recover(); p != nil {
			success = false
			log.Error(fmt.Sprintf("Critical error: %v", p))
			r.logger.Error("Job panicked",
				zap.String("profile", name),
				zap.Any("panic", p),
				zap.ByteString("stack", debug.Stack()))
		}

		r.release(name, spec.RunID)
		log.Finished(success)

		r.logger.Info("Job finished",
			zap.String("profile", name),
			zap.String("run_id", spec.RunID),
			zap.Bool("success", success))
	}()

	switch spec.Kind {
	case models.JobLogin:
		success = runner.Login(r.ctx)
	default:
		success = runner.Run(r.ctx, spec.Params)
	}

	if success {
		log.Info("✅ Bot task completed successfully!")
	} else {
		log.Error("❌ Bot task failed. Check logs for details.")
	}
}

// Query returns a snapshot of the profile's slot
func (r *Registry) Query(name string) models.JobStatus {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.statusLocked(name, r.jobs[name])
}

// QueryAll returns a snapshot of every profile that has had a job
func (r *Registry) QueryAll() map[string]models.JobStatus {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make(map[string]models.JobStatus, len(r.jobs))
	for name, j := range r.jobs {
		out[name] = r.statusLocked(name, j)
	}
	return out
}

// Running returns the names of profiles with a running job, sorted
func (r *Registry) Running() []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	var names []string
	for name, j := range r.jobs {
		if j.running {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	return names
}

func (r *Registry) statusLocked(name string, j *job) models.JobStatus {
	status := models.JobStatus{Profile: name}
	if j == nil {
		return status
	}

	status.RunID = j.runID
	status.Kind = j.kind
	if j.running {
		task := j.task
		status.Running = true
		status.CurrentTask = &task
		status.StartedAt = j.startedAt
	}
	return status
}

// IsRunning reports whether the profile has a running job
func (r *Registry) IsRunning(name string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	j := r.jobs[name]
	return j != nil && j.running
}

// Hold reserves the profile's slot while its session directory is changed
// outside a job. Submissions for the profile fail with ErrConflict until
// release is called. ok is false if a job or another holder has the slot.
func (r *Registry) Hold(name string) (release func(), ok bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if j := r.jobs[name]; (j != nil && j.running) || r.held[name] {
		return nil, false
	}
	r.held[name] = true

	var once sync.Once
	return func() {
		once.Do(func() {
			r.mu.Lock()
			delete(r.held, name)
			r.mu.Unlock()
		})
	}, true
}

// Screenshot captures the live browser of the profile's running job
func (r *Registry) Screenshot(ctx context.Context, name string) ([]byte, error) {
	r.mu.Lock()
	j := r.jobs[name]
	var runner Runner
	if j != nil && j.running {
		runner = j.runner
	}
	r.mu.Unlock()

	if runner == nil {
		return nil, apperr.NotFound("bot not active for profile %s", name)
	}
	png, err := runner.Screenshot(ctx)
	if err != nil {
		return nil, fmt.Errorf("could not capture screenshot: %w", err)
	}
	return png, nil
}

// Wait blocks until every job has exited or ctx is done
func (r *Registry) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		r.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Shutdown stops every job at its next step and waits for them to exit
func (r *Registry) Shutdown(ctx context.Context) error {
	r.cancel()
	return r.Wait(ctx)
}
