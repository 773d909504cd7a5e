package queue

import (
	"context"
	"fmt"
	"regexp"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/agentq/internal/tasktype"
)

const instrumentationName = "github.com/fyrsmithlabs/agentq/internal/queue"

var namespacePattern = regexp.MustCompile(`^[a-zA-Z0-9][a-zA-Z0-9._-]{0,63}$`)

// entry is a stored task plus bookkeeping that never leaves the store.
type entry struct {
	task *Task

	// seq orders tasks by creation; queuedSeq orders QUEUED tasks by the
	// time they (re)entered the queue.
	seq       uint64
	queuedSeq uint64
}

// MemoryStore is the in-memory reference Store.
//
// A single lock guards the map and every record, so transitions on one
// task id are serialized and each one re-checks the current status.
type MemoryStore struct {
	namespace string
	policy    ReplyPolicy
	logger    *zap.Logger
	metrics   *Metrics
	tracer    trace.Tracer
	now       func() time.Time
	newID     func() string

	mu    sync.RWMutex
	tasks map[string]*entry
	seq   uint64
}

// Option configures a MemoryStore.
type Option func(*MemoryStore)

// WithReplyPolicy sets where a replied task goes. Defaults to ReplyToRunning.
func WithReplyPolicy(p ReplyPolicy) Option {
	return func(s *MemoryStore) { s.policy = p }
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(s *MemoryStore) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithMetrics enables Prometheus metrics.
func WithMetrics(m *Metrics) Option {
	return func(s *MemoryStore) { s.metrics = m }
}

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option {
	return func(s *MemoryStore) {
		if now != nil {
			s.now = now
		}
	}
}

// WithIDGenerator overrides task id generation.
func WithIDGenerator(gen func() string) Option {
	return func(s *MemoryStore) {
		if gen != nil {
			s.newID = gen
		}
	}
}

// NewMemoryStore creates an empty store scoped to namespace.
func NewMemoryStore(namespace string, opts ...Option) (*MemoryStore, error) {
	if !namespacePattern.MatchString(namespace) {
		return nil, fmt.Errorf("%w: invalid namespace %q", ErrInvalidInput, namespace)
	}

	s := &MemoryStore{
		namespace: namespace,
		policy:    ReplyToRunning,
		logger:    zap.NewNop(),
		tracer:    otel.Tracer(instrumentationName),
		now:       time.Now,
		newID:     uuid.NewString,
		tasks:     make(map[string]*entry),
	}
	for _, opt := range opts {
		opt(s)
	}
	if _, err := ParseReplyPolicy(string(s.policy)); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}
	s.logger = s.logger.With(zap.String("queue.namespace", namespace))
	return s, nil
}

var _ Store = (*MemoryStore)(nil)

// Namespace returns the store's namespace.
func (s *MemoryStore) Namespace() string {
	return s.namespace
}

// ReplyPolicy returns the configured reply policy.
func (s *MemoryStore) ReplyPolicy() ReplyPolicy {
	return s.policy
}

// Enqueue creates a QUEUED task.
func (s *MemoryStore) Enqueue(ctx context.Context, req *EnqueueRequest) (string, error) {
	_, span := s.tracer.Start(ctx, "queue.enqueue")
	defer span.End()

	if req == nil || strings.TrimSpace(req.Prompt) == "" {
		return "", s.fail(span, "enqueue", fmt.Errorf("%w: prompt is required", ErrInvalidInput))
	}

	taskType := req.TaskType
	if taskType == "" {
		taskType = tasktype.Classify(req.Prompt)
	} else if !taskType.IsValid() {
		return "", s.fail(span, "enqueue", fmt.Errorf("%w: unknown task type %q", ErrInvalidInput, taskType))
	}

	id := s.newID()
	if id == "" {
		return "", s.fail(span, "enqueue", fmt.Errorf("%w: empty task id generated", ErrInternal))
	}
	group := req.TaskGroupID
	if group == "" {
		group = id
	}
	now := s.now()

	s.mu.Lock()
	if _, exists := s.tasks[id]; exists {
		s.mu.Unlock()
		return "", s.fail(span, "enqueue", fmt.Errorf("%w: duplicate task id %s", ErrInternal, id))
	}
	s.seq++
	s.tasks[id] = &entry{
		task: &Task{
			ID:          id,
			TaskGroupID: group,
			Namespace:   s.namespace,
			Prompt:      req.Prompt,
			TaskType:    taskType,
			Status:      StatusQueued,
			WorkingDir:  req.WorkingDir,
			CreatedAt:   now,
			UpdatedAt:   now,
		},
		seq:       s.seq,
		queuedSeq: s.seq,
	}
	s.mu.Unlock()

	span.SetAttributes(
		attribute.String("task.id", id),
		attribute.String("task.type", string(taskType)),
	)
	s.metrics.enqueued(s.namespace, string(taskType))
	s.logger.Debug("task enqueued",
		zap.String("task.id", id),
		zap.String("task.group", group),
		zap.String("task.type", string(taskType)))
	return id, nil
}

// GetItem returns a copy of the task.
func (s *MemoryStore) GetItem(ctx context.Context, taskID string) (*Task, error) {
	if taskID == "" {
		return nil, fmt.Errorf("%w: task id is required", ErrInvalidInput)
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	e, ok := s.tasks[taskID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, taskID)
	}
	return e.task.Clone(), nil
}

// UpdateStatus applies a transition and writes the non-nil update fields.
//
// Illegal moves fail with a *TransitionError. The legal move to
// AWAITING_RESPONSE must go through SetAwaitingResponse, which carries the
// clarification. Moving to ERROR never clears existing output.
func (s *MemoryStore) UpdateStatus(ctx context.Context, taskID string, status Status, update *StatusUpdate) error {
	_, span := s.tracer.Start(ctx, "queue.update_status")
	defer span.End()
	span.SetAttributes(attribute.String("task.id", taskID), attribute.String("task.status", string(status)))

	const op = "update_status"
	if taskID == "" {
		return s.fail(span, op, fmt.Errorf("%w: task id is required", ErrInvalidInput))
	}
	if !status.IsValid() {
		return s.fail(span, op, fmt.Errorf("%w: unknown status %q", ErrInvalidInput, status))
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.tasks[taskID]
	if !ok {
		return s.fail(span, op, fmt.Errorf("%w: %s", ErrNotFound, taskID))
	}
	from := e.task.Status
	if err := checkTransition(op, taskID, from, status); err != nil {
		return s.fail(span, op, err)
	}
	if status == StatusAwaitingResponse {
		return s.fail(span, op, fmt.Errorf("%w: use SetAwaitingResponse to request clarification", ErrInvalidInput))
	}

	t := e.task
	t.Status = status
	if update != nil {
		if update.Output != nil && (*update.Output != "" || status != StatusError) {
			t.Output = *update.Output
		}
		if update.Error != nil {
			t.Error = StringPtr(*update.Error)
		}
		if update.FilesModified != nil {
			t.FilesModified = cloneStrings(update.FilesModified)
		}
		if update.VerifiedFiles != nil {
			t.VerifiedFiles = cloneStrings(update.VerifiedFiles)
		}
		if update.UnverifiedFiles != nil {
			t.UnverifiedFiles = cloneStrings(update.UnverifiedFiles)
		}
		if update.DurationMS != nil {
			t.DurationMS = *update.DurationMS
		}
	}
	s.enter(e, status)
	s.applied(taskID, from, status)
	return nil
}

// SetAwaitingResponse parks a RUNNING task on a clarification question.
// An empty output keeps whatever output the task already had.
func (s *MemoryStore) SetAwaitingResponse(ctx context.Context, taskID string, clarification Clarification, retry *RetryContext, output string) error {
	_, span := s.tracer.Start(ctx, "queue.set_awaiting_response")
	defer span.End()
	span.SetAttributes(attribute.String("task.id", taskID))

	const op = "set_awaiting_response"
	if taskID == "" {
		return s.fail(span, op, fmt.Errorf("%w: task id is required", ErrInvalidInput))
	}
	if strings.TrimSpace(clarification.Question) == "" {
		return s.fail(span, op, fmt.Errorf("%w: clarification question is required", ErrInvalidInput))
	}
	if clarification.Type == "" {
		clarification.Type = ClarificationGeneric
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.tasks[taskID]
	if !ok {
		return s.fail(span, op, fmt.Errorf("%w: %s", ErrNotFound, taskID))
	}
	from := e.task.Status
	if err := checkTransition(op, taskID, from, StatusAwaitingResponse); err != nil {
		return s.fail(span, op, err)
	}

	t := e.task
	t.Status = StatusAwaitingResponse
	cl := clarification
	cl.Options = cloneStrings(clarification.Options)
	t.Clarification = &cl
	if retry != nil {
		rc := *retry
		if rc.Attempt == 0 {
			rc.Attempt = t.Attempt
		}
		t.RetryContext = &rc
	}
	if output != "" {
		t.Output = output
	}
	s.enter(e, StatusAwaitingResponse)
	s.applied(taskID, from, StatusAwaitingResponse)
	return nil
}

// Reply answers the pending clarification and starts a new processing cycle.
func (s *MemoryStore) Reply(ctx context.Context, taskID, replyText string) (*ReplyResult, error) {
	_, span := s.tracer.Start(ctx, "queue.reply")
	defer span.End()
	span.SetAttributes(attribute.String("task.id", taskID))

	const op = "reply"
	if taskID == "" {
		return nil, s.fail(span, op, fmt.Errorf("%w: task id is required", ErrInvalidInput))
	}
	text := strings.TrimSpace(replyText)
	if text == "" {
		return nil, s.fail(span, op, fmt.Errorf("%w: reply text is empty", ErrInvalidInput))
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.tasks[taskID]
	if !ok {
		return nil, s.fail(span, op, fmt.Errorf("%w: %s", ErrNotFound, taskID))
	}
	from := e.task.Status
	if from != StatusAwaitingResponse {
		return nil, s.fail(span, op, &TransitionError{Operation: op, TaskID: taskID, From: from})
	}
	to := s.policy.target()
	if err := checkTransition(op, taskID, from, to); err != nil {
		return nil, s.fail(span, op, err)
	}

	t := e.task
	r := Reply{Text: text, CreatedAt: s.now()}
	if t.Clarification != nil {
		r.Question = t.Clarification.Question
	}
	t.Replies = append(t.Replies, r)
	t.Status = to
	t.Error = nil
	s.enter(e, to)
	s.applied(taskID, from, to)
	s.metrics.replied(s.namespace)

	return &ReplyResult{TaskID: taskID, OldStatus: from, NewStatus: to}, nil
}

// ClaimNext moves the task that has waited longest in QUEUED to RUNNING.
func (s *MemoryStore) ClaimNext(ctx context.Context) (*Task, error) {
	_, span := s.tracer.Start(ctx, "queue.claim_next")
	defer span.End()

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	var next *entry
	for _, e := range s.tasks {
		if e.task.Status != StatusQueued {
			continue
		}
		if next == nil || e.queuedSeq < next.queuedSeq {
			next = e
		}
	}
	if next == nil {
		return nil, nil
	}

	next.task.Status = StatusRunning
	s.enter(next, StatusRunning)
	s.applied(next.task.ID, StatusQueued, StatusRunning)
	span.SetAttributes(attribute.String("task.id", next.task.ID))
	return next.task.Clone(), nil
}

// List returns matching tasks ordered by creation.
func (s *MemoryStore) List(ctx context.Context, filter ListFilter) ([]*Task, error) {
	if filter.Status != "" && !filter.Status.IsValid() {
		return nil, fmt.Errorf("%w: unknown status %q", ErrInvalidInput, filter.Status)
	}

	s.mu.RLock()
	matched := make([]*entry, 0, len(s.tasks))
	for _, e := range s.tasks {
		if filter.matches(e.task) {
			matched = append(matched, e)
		}
	}
	sort.Slice(matched, func(i, j int) bool { return matched[i].seq < matched[j].seq })
	out := make([]*Task, len(matched))
	for i, e := range matched {
		out[i] = e.task.Clone()
	}
	s.mu.RUnlock()

	return out, nil
}

// enter updates bookkeeping for a task that just moved to status.
// Caller holds s.mu.
func (s *MemoryStore) enter(e *entry, status Status) {
	e.task.UpdatedAt = s.now()
	switch status {
	case StatusRunning:
		e.task.Attempt++
	case StatusQueued:
		s.seq++
		e.queuedSeq = s.seq
	}
}

func (s *MemoryStore) applied(taskID string, from, to Status) {
	s.metrics.transition(s.namespace, from, to)
	s.logger.Debug("task transition",
		zap.String("task.id", taskID),
		zap.String("from", string(from)),
		zap.String("to", string(to)))
}

func (s *MemoryStore) fail(span trace.Span, op string, err error) error {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	s.metrics.rejected(s.namespace, op, err)
	s.logger.Debug("queue operation rejected",
		zap.String("operation", op),
		zap.String("code", string(CodeOf(err))),
		zap.Error(err))
	return err
}
