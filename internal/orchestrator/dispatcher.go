package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/fyrsmithlabs/agentq/internal/guard"
	"github.com/fyrsmithlabs/agentq/internal/logging"
	"github.com/fyrsmithlabs/agentq/internal/queue"
	"github.com/fyrsmithlabs/agentq/internal/secrets"
	"github.com/fyrsmithlabs/agentq/internal/supervisor"
	"github.com/fyrsmithlabs/agentq/internal/tasktype"
)

const (
	defaultPollInterval = time.Second
	defaultRetryBackoff = 2 * time.Second
	resumeBuffer        = 64
)

// Dispatcher drives tasks through one processing cycle: claim, compose the
// prompt, run the agent, guard and resolve the result, persist.
type Dispatcher struct {
	store          queue.Store
	agent          Agent
	classifier     *tasktype.Classifier
	supervisors    *supervisor.Registry
	supervisorRoot string
	scrubber       *secrets.Scrubber
	limiter        *rate.Limiter
	logger         *logging.Logger
	tracer         trace.Tracer
	meterProvider  metric.MeterProvider
	metrics        *dispatchMetrics
	pollInterval   time.Duration
	retryBackoff   time.Duration
	defaultTimeout time.Duration
	defaultRetries int
	onEvent        EventCallback

	// projects maps task group ids to the project whose supervisor config
	// applies to the thread.
	projects sync.Map
	resume   chan string

	// backlog holds resumes that did not fit in the resume channel.
	backlogMu sync.Mutex
	backlog   []string
}

// Option configures a Dispatcher.
type Option func(*Dispatcher)

// WithSupervisors composes prompts and checks output with the supervisor
// registered for root.
func WithSupervisors(reg *supervisor.Registry, root string) Option {
	return func(d *Dispatcher) {
		d.supervisors = reg
		d.supervisorRoot = root
	}
}

// WithScrubber redacts secrets from agent output before it is stored.
func WithScrubber(s *secrets.Scrubber) Option {
	return func(d *Dispatcher) { d.scrubber = s }
}

// WithRateLimit paces task claims across all workers.
func WithRateLimit(perSecond float64, burst int) Option {
	return func(d *Dispatcher) {
		if perSecond > 0 && burst > 0 {
			d.limiter = rate.NewLimiter(rate.Limit(perSecond), burst)
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l *logging.Logger) Option {
	return func(d *Dispatcher) {
		if l != nil {
			d.logger = l
		}
	}
}

// WithMeterProvider sets the provider for dispatcher metrics.
func WithMeterProvider(mp metric.MeterProvider) Option {
	return func(d *Dispatcher) {
		if mp != nil {
			d.meterProvider = mp
		}
	}
}

// WithTracer sets the tracer.
func WithTracer(t trace.Tracer) Option {
	return func(d *Dispatcher) {
		if t != nil {
			d.tracer = t
		}
	}
}

// WithClassifier replaces the default task-type classifier used by Submit.
func WithClassifier(c *tasktype.Classifier) Option {
	return func(d *Dispatcher) {
		if c != nil {
			d.classifier = c
		}
	}
}

// WithPollInterval sets how long idle workers wait before polling again.
func WithPollInterval(p time.Duration) Option {
	return func(d *Dispatcher) {
		if p > 0 {
			d.pollInterval = p
		}
	}
}

// WithRetryBackoff sets the wait between agent retries. It doubles on every
// retry.
func WithRetryBackoff(b time.Duration) Option {
	return func(d *Dispatcher) {
		if b >= 0 {
			d.retryBackoff = b
		}
	}
}

// WithAgentDefaults sets the agent timeout and retry count used when no
// supervisor config applies. A zero timeout or negative retry count keeps
// the built-in supervisor default.
func WithAgentDefaults(timeout time.Duration, maxRetries int) Option {
	return func(d *Dispatcher) {
		d.defaultTimeout = timeout
		d.defaultRetries = maxRetries
	}
}

// OnEvent registers a progress callback.
func OnEvent(cb EventCallback) Option {
	return func(d *Dispatcher) { d.onEvent = cb }
}

// New creates a Dispatcher over store that runs tasks with agent.
func New(store queue.Store, agent Agent, opts ...Option) (*Dispatcher, error) {
	if store == nil {
		return nil, errors.New("dispatcher: store is required")
	}
	if agent == nil {
		return nil, errors.New("dispatcher: agent is required")
	}

	d := &Dispatcher{
		store:          store,
		agent:          agent,
		classifier:     tasktype.Default(),
		limiter:        rate.NewLimiter(rate.Inf, 1),
		logger:         logging.NewNop(),
		tracer:         otel.Tracer(instrumentationName),
		meterProvider:  otel.GetMeterProvider(),
		pollInterval:   defaultPollInterval,
		retryBackoff:   defaultRetryBackoff,
		defaultRetries: -1,
		resume:         make(chan string, resumeBuffer),
	}
	for _, opt := range opts {
		opt(d)
	}
	d.logger = d.logger.Named("dispatcher")
	d.metrics = newDispatchMetrics(d.meterProvider, d.logger)
	return d, nil
}

// SubmitRequest describes a new task.
type SubmitRequest struct {
	TaskGroupID string        `json:"task_group_id,omitempty"`
	Prompt      string        `json:"prompt"`
	TaskType    tasktype.Type `json:"task_type,omitempty"`
	WorkingDir  string        `json:"working_dir,omitempty"`
	ProjectID   string        `json:"project_id,omitempty"`
}

// Submit classifies and enqueues a task and returns the stored record.
// ProjectID, when set, selects the supervisor project for the whole thread.
func (d *Dispatcher) Submit(ctx context.Context, req SubmitRequest) (*queue.Task, error) {
	if strings.TrimSpace(req.Prompt) == "" {
		return nil, fmt.Errorf("%w: prompt is required", queue.ErrInvalidInput)
	}
	if err := supervisor.ValidateProjectID(req.ProjectID); err != nil {
		return nil, fmt.Errorf("%w: %v", queue.ErrInvalidInput, err)
	}

	taskType := req.TaskType
	if taskType == "" {
		taskType = d.classifier.Classify(req.Prompt)
	}

	id, err := d.store.Enqueue(ctx, &queue.EnqueueRequest{
		TaskGroupID: req.TaskGroupID,
		Prompt:      req.Prompt,
		TaskType:    taskType,
		WorkingDir:  req.WorkingDir,
	})
	if err != nil {
		return nil, err
	}

	task, err := d.store.GetItem(ctx, id)
	if err != nil {
		return nil, err
	}
	if req.ProjectID != "" {
		d.projects.Store(task.TaskGroupID, req.ProjectID)
	}

	ctx = logging.WithTaskID(ctx, task.ID)
	d.logger.Info(ctx, "task submitted",
		zap.String("task.type", string(task.TaskType)),
		zap.String("project", req.ProjectID),
	)
	return task, nil
}

// Resume asks a worker to process a RUNNING task, typically one that just
// received a reply under the running reply policy. Resumes that overflow the
// resume buffer are parked in a backlog that workers drain before claiming
// new tasks.
func (d *Dispatcher) Resume(taskID string) {
	select {
	case d.resume <- taskID:
		return
	default:
	}

	d.backlogMu.Lock()
	d.backlog = append(d.backlog, taskID)
	n := len(d.backlog)
	d.backlogMu.Unlock()
	d.logger.Warn(logging.WithTaskID(context.Background(), taskID), "resume buffer full, task parked in backlog",
		zap.Int("backlog", n))
}

func (d *Dispatcher) popBacklog() (string, bool) {
	d.backlogMu.Lock()
	defer d.backlogMu.Unlock()
	if len(d.backlog) == 0 {
		return "", false
	}
	id := d.backlog[0]
	d.backlog[0] = ""
	d.backlog = d.backlog[1:]
	return id, true
}

// ProcessNext claims the oldest QUEUED task and processes it. It reports
// whether a task was claimed.
func (d *Dispatcher) ProcessNext(ctx context.Context) (bool, error) {
	task, err := d.store.ClaimNext(ctx)
	if err != nil {
		return false, err
	}
	if task == nil {
		return false, nil
	}
	return true, d.process(ctx, task)
}

// ProcessTask processes a task that is already RUNNING.
func (d *Dispatcher) ProcessTask(ctx context.Context, taskID string) error {
	task, err := d.store.GetItem(ctx, taskID)
	if err != nil {
		return err
	}
	if task.Status != queue.StatusRunning {
		return fmt.Errorf("%w: task %s is %s, not %s", queue.ErrInvalidStatus, taskID, task.Status, queue.StatusRunning)
	}
	return d.process(ctx, task)
}

// Run processes tasks with workers goroutines until ctx is cancelled.
func (d *Dispatcher) Run(ctx context.Context, workers int) error {
	if workers < 1 {
		workers = 1
	}
	d.logger.Info(ctx, "dispatcher started", zap.Int("workers", workers))

	g, gctx := errgroup.WithContext(ctx)
	for i := 0; i < workers; i++ {
		g.Go(func() error {
			d.work(gctx)
			return nil
		})
	}
	err := g.Wait()
	d.logger.Info(ctx, "dispatcher stopped")
	return err
}

func (d *Dispatcher) work(ctx context.Context) {
	for {
		if err := d.limiter.Wait(ctx); err != nil {
			return
		}

		processed, err := d.next(ctx)
		if err != nil && ctx.Err() == nil {
			d.logger.Error(ctx, "dispatch failed", zap.Error(err))
		}
		if processed {
			continue
		}

		select {
		case <-ctx.Done():
			return
		case id := <-d.resume:
			if err := d.ProcessTask(ctx, id); err != nil && ctx.Err() == nil {
				d.logger.Error(logging.WithTaskID(ctx, id), "resume failed", zap.Error(err))
			}
		case <-time.After(d.pollInterval):
		}
	}
}

// next prefers pending resumes, then the resume backlog, over new claims.
func (d *Dispatcher) next(ctx context.Context) (bool, error) {
	select {
	case id := <-d.resume:
		return true, d.ProcessTask(ctx, id)
	default:
	}
	if id, ok := d.popBacklog(); ok {
		return true, d.ProcessTask(ctx, id)
	}
	return d.ProcessNext(ctx)
}

func (d *Dispatcher) process(ctx context.Context, task *queue.Task) error {
	start := time.Now()
	ctx = logging.WithNamespace(ctx, d.store.Namespace())
	ctx = logging.WithTaskID(ctx, task.ID)
	ctx = logging.WithTaskGroupID(ctx, task.TaskGroupID)

	ctx, span := d.tracer.Start(ctx, "dispatcher.process", trace.WithAttributes(
		attribute.String("task.id", task.ID),
		attribute.String("task.type", string(task.TaskType)),
		attribute.Int("task.attempt", task.Attempt),
	))
	defer span.End()

	d.emit(Event{TaskID: task.ID, Stage: StageClaimed, Status: task.Status, Attempt: task.Attempt})

	project := d.projectFor(task)
	sup, eff := d.effectiveConfig(ctx, project)

	prompt := task.ProcessingPrompt()
	if sup != nil && eff.SupervisorEnabled {
		composed, err := sup.Compose(prompt, project)
		if err != nil {
			d.logger.Warn(ctx, "prompt composition failed, using raw prompt", zap.Error(err))
		} else {
			prompt = composed.Composed
		}
	}
	d.logger.Trace(ctx, "prompt composed", zap.String("prompt", prompt))
	d.emit(Event{TaskID: task.ID, Stage: StageComposed})

	exec := guard.ExecutorTask{
		ID:         task.ID,
		Prompt:     prompt,
		WorkingDir: task.WorkingDir,
		TaskType:   task.TaskType,
	}

	result, err := d.invoke(ctx, exec, eff.Timeout(), eff.MaxRetries)
	if err != nil {
		msg := err.Error()
		if ctx.Err() != nil {
			msg = "dispatcher stopped before the agent finished"
		}
		res := guard.Resolution{Status: queue.StatusError, Error: msg, Rule: guard.RuleExecutorError}
		return d.persist(context.WithoutCancel(ctx), span, task, res, sup, project, start)
	}

	result.Output = d.scrub(ctx, "output", result.Output)
	result.Error = d.scrub(ctx, "error", result.Error)

	res := guard.Resolve(result, exec)
	if res.Rule != guard.RuleComplete {
		d.metrics.guardConversion(ctx, res.Rule, result.BlockedReason)
	}
	span.SetAttributes(attribute.String("guard.rule", res.Rule))
	d.emit(Event{TaskID: task.ID, Stage: StageResolved, Status: res.Status, Message: res.Rule})

	return d.persist(ctx, span, task, res, sup, project, start)
}

func (d *Dispatcher) persist(ctx context.Context, span trace.Span, task *queue.Task, res guard.Resolution, sup *supervisor.Supervisor, project string, start time.Time) error {
	r := res.Result
	var err error

	switch res.Status {
	case queue.StatusComplete:
		output := d.finishOutput(ctx, sup, project, r.Output)
		err = d.store.UpdateStatus(ctx, task.ID, queue.StatusComplete, &queue.StatusUpdate{
			Output:          &output,
			FilesModified:   r.FilesModified,
			VerifiedFiles:   r.VerifiedFiles,
			UnverifiedFiles: r.UnverifiedFiles,
			DurationMS:      &r.DurationMS,
		})

	case queue.StatusAwaitingResponse:
		err = d.store.SetAwaitingResponse(ctx, task.ID, *res.Clarification, res.RetryContext, r.Output)

	default:
		update := &queue.StatusUpdate{
			Error:           queue.StringPtr(res.Error),
			FilesModified:   r.FilesModified,
			VerifiedFiles:   r.VerifiedFiles,
			UnverifiedFiles: r.UnverifiedFiles,
		}
		if r.Output != "" {
			update.Output = &r.Output
		}
		if r.DurationMS > 0 {
			update.DurationMS = &r.DurationMS
		}
		err = d.store.UpdateStatus(ctx, task.ID, queue.StatusError, update)
	}

	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		d.logger.Error(ctx, "persisting task result failed", zap.String("status", string(res.Status)), zap.Error(err))
		d.emit(Event{TaskID: task.ID, Stage: StageFailed, Status: res.Status, Message: err.Error()})
		return fmt.Errorf("persisting task %s: %w", task.ID, err)
	}

	d.metrics.taskDone(ctx, string(res.Status), time.Since(start))
	d.emit(Event{TaskID: task.ID, Stage: StagePersisted, Status: res.Status})
	d.logger.Info(ctx, "task processed",
		zap.String("status", string(res.Status)),
		zap.String("rule", res.Rule),
		zap.Duration("elapsed", time.Since(start)),
	)
	return nil
}

// finishOutput applies the output template and reports rule violations.
// Violations are logged and counted; they do not fail the task.
func (d *Dispatcher) finishOutput(ctx context.Context, sup *supervisor.Supervisor, project, output string) string {
	if sup == nil {
		return output
	}

	formatted, err := sup.Format(output, project)
	if err != nil {
		d.logger.Warn(ctx, "output formatting failed", zap.Error(err))
	} else {
		output = formatted.Formatted
	}

	v, err := sup.ValidateFor(output, project)
	if err != nil {
		d.logger.Warn(ctx, "output validation unavailable", zap.Error(err))
		return output
	}
	for _, viol := range v.Violations {
		d.metrics.violation(ctx, viol.Rule, string(viol.Severity))
	}
	if !v.Valid {
		d.logger.Warn(ctx, "output failed supervisor rules", zap.Any("violations", v.Violations))
	}
	return output
}

// invoke runs the agent with a per-attempt timeout. Transport failures are
// retried up to maxRetries times; rejections are not. A per-attempt timeout
// becomes a BLOCKED result so the guard can ask the caller how to proceed.
func (d *Dispatcher) invoke(ctx context.Context, task guard.ExecutorTask, timeout time.Duration, maxRetries int) (guard.ExecutorResult, error) {
	backoff := d.retryBackoff

	for attempt := 0; ; attempt++ {
		d.emit(Event{TaskID: task.ID, Stage: StageAgentRun, Attempt: attempt + 1})

		callCtx, cancel := ctx, context.CancelFunc(func() {})
		if timeout > 0 {
			callCtx, cancel = context.WithTimeout(ctx, timeout)
		}
		result, err := d.agent.Run(callCtx, task)
		timedOut := errors.Is(callCtx.Err(), context.DeadlineExceeded)
		cancel()

		switch {
		case err == nil:
			d.metrics.agentCall(ctx, "ok")
			return result, nil
		case ctx.Err() != nil:
			return result, ctx.Err()
		case timedOut:
			d.metrics.agentCall(ctx, "timeout")
			d.logger.Warn(ctx, "agent timed out", zap.Duration("timeout", timeout))
			return guard.ExecutorResult{
				Executed:        true,
				Output:          result.Output,
				Status:          guard.StatusBlocked,
				ExecutorBlocked: true,
				BlockedReason:   guard.BlockedReasonTimeout,
				TerminatedBy:    "dispatcher",
				DurationMS:      timeout.Milliseconds(),
			}, nil
		case errors.Is(err, ErrAgentRejected):
			d.metrics.agentCall(ctx, "rejected")
			return result, err
		}

		d.metrics.agentCall(ctx, "retryable")
		if attempt >= maxRetries {
			return result, fmt.Errorf("agent failed after %d attempts: %w", attempt+1, err)
		}

		d.logger.Warn(ctx, "agent call failed, retrying",
			zap.Int("attempt", attempt+1),
			zap.Duration("backoff", backoff),
			zap.Error(err),
		)
		d.emit(Event{TaskID: task.ID, Stage: StageRetry, Attempt: attempt + 1, Message: err.Error()})

		select {
		case <-ctx.Done():
			return result, ctx.Err()
		case <-time.After(backoff):
		}
		backoff *= 2
	}
}

func (d *Dispatcher) scrub(ctx context.Context, field, s string) string {
	if !d.scrubber.Enabled() || s == "" {
		return s
	}
	res := d.scrubber.Scrub(s)
	if res.HasFindings() {
		d.logger.Warn(ctx, "secrets redacted from agent result",
			zap.String("field", field),
			zap.Strings("rules", res.RuleIDs()),
		)
	}
	return res.Scrubbed
}

// projectFor returns the project registered for the task's thread, else the
// base name of its working directory when that is a valid project id, else
// "" (global config only).
func (d *Dispatcher) projectFor(task *queue.Task) string {
	if v, ok := d.projects.Load(task.TaskGroupID); ok {
		return v.(string)
	}
	if task.WorkingDir == "" {
		return ""
	}
	base := filepath.Base(filepath.Clean(task.WorkingDir))
	if supervisor.ValidateProjectID(base) != nil {
		return ""
	}
	return base
}

// effectiveConfig resolves supervisor settings for project. Without a
// supervisor, or when its config cannot be loaded, the built-in defaults
// apply.
func (d *Dispatcher) effectiveConfig(ctx context.Context, project string) (*supervisor.Supervisor, supervisor.EffectiveConfig) {
	defaults := supervisor.Merge(project, supervisor.DefaultGlobalConfig(), supervisor.DefaultProjectConfig())
	if d.defaultTimeout > 0 {
		defaults.TimeoutMS = d.defaultTimeout.Milliseconds()
	}
	if d.defaultRetries >= 0 {
		defaults.MaxRetries = d.defaultRetries
	}
	if d.supervisors == nil || d.supervisorRoot == "" {
		return nil, defaults
	}

	sup, err := d.supervisors.Get(d.supervisorRoot)
	if err != nil {
		d.logger.Warn(ctx, "supervisor unavailable", zap.Error(err))
		return nil, defaults
	}
	eff, err := sup.GetConfig(project)
	if err != nil {
		d.logger.Warn(ctx, "supervisor config failed to load, using defaults", zap.String("project", project), zap.Error(err))
		return nil, defaults
	}
	return sup, eff
}
