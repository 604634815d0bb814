// Package dialog implements the per-user conversation engine: one finite
// state machine per active session driving the four material flows. The
// package is deliberately transport-free; inbound events arrive as classified
// intents and outbound prompts are plain payloads for the delivery layer.
package dialog

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"

	"schoolbot/internal/blobstore"
	"schoolbot/internal/catalog"
)

var (
	// ErrPermissionDenied rejects a non-admin entering an admin-only flow.
	// The check happens before any state is entered.
	ErrPermissionDenied = errors.New("dialog: permission denied")
	// ErrNoActiveFlow means input arrived for a user with no session.
	ErrNoActiveFlow = errors.New("dialog: no active flow")
)

// Catalog is the slice of the catalog store the flows read and write.
type Catalog interface {
	ListMaterials(ctx context.Context, grade int, subject, category string) ([]catalog.Listing, error)
	FetchMaterial(ctx context.Context, key catalog.Key) (catalog.Material, error)
	IncrementDownloads(ctx context.Context, key catalog.Key) (int64, error)
	InsertMaterial(ctx context.Context, m catalog.Material) (int64, error)
	DeleteMaterial(ctx context.Context, id int64) (catalog.Material, error)
	CreateRequest(ctx context.Context, r catalog.Request) (int64, error)
}

// Blobs stores uploaded files and removes deleted ones.
type Blobs interface {
	Save(ctx context.Context, grade int, subject, category, name string, r io.Reader) (blobstore.Saved, error)
	Remove(rel string) (bool, error)
}

// Files resolves a transport attachment reference to its bytes.
type Files interface {
	Open(ctx context.Context, ref string) (io.ReadCloser, error)
}

// Matcher reconciles a freshly inserted material against pending requests and
// returns how many it auto-resolved.
type Matcher interface {
	Resolve(ctx context.Context, m catalog.Material) (int, error)
}

// OutcomeKind tags a flow's terminal result.
type OutcomeKind int

const (
	// OutcomeCancelled ends a flow without side effects.
	OutcomeCancelled OutcomeKind = iota
	// OutcomeSessionExpired means required context was missing mid-flow.
	OutcomeSessionExpired
	// OutcomeUnavailable means the addressed record vanished before the
	// terminal read, e.g. a concurrent delete.
	OutcomeUnavailable
	// OutcomeDelivery carries a material to send to the user.
	OutcomeDelivery
	// OutcomeRequestCreated carries a freshly stored request.
	OutcomeRequestCreated
	// OutcomeMaterialAdded carries the inserted material and the number of
	// requests the matcher auto-resolved.
	OutcomeMaterialAdded
	// OutcomeMaterialDeleted carries the removed material.
	OutcomeMaterialDeleted
	// OutcomeStorageError reports a blob write failure to the acting admin.
	OutcomeStorageError
)

// Outcome is the terminal result of a flow.
type Outcome struct {
	Kind        OutcomeKind
	Material    *catalog.Material
	Request     *catalog.Request
	Matched     int
	BlobRemoved bool
	Err         error
}

// Result is what one inbound event produces: a follow-up prompt, a terminal
// outcome, or both (a prompt may accompany an outcome, e.g. an empty shelf).
type Result struct {
	Prompt  *Prompt
	Outcome *Outcome
}

func prompted(p Prompt) Result { return Result{Prompt: &p} }

func finished(o Outcome) Result { return Result{Outcome: &o} }

// Engine owns all active sessions and advances them on inbound intents.
type Engine struct {
	mu       sync.Mutex
	sessions map[int64]*Session

	catalog Catalog
	blobs   Blobs
	files   Files
	matcher Matcher
	log     *slog.Logger
}

// NewEngine constructs the engine.
func NewEngine(cat Catalog, blobs Blobs, files Files, matcher Matcher, log *slog.Logger) *Engine {
	if log == nil {
		log = slog.Default()
	}
	return &Engine{
		sessions: make(map[int64]*Session),
		catalog:  cat,
		blobs:    blobs,
		files:    files,
		matcher:  matcher,
		log:      log,
	}
}

// StartFlow opens a new flow for the user and returns its first prompt.
// Starting a flow while another is active discards the old one entirely
// (last-entry-wins). Admin-only flows are rejected before any state is
// entered.
func (e *Engine) StartFlow(ctx context.Context, userID int64, flow Flow, isAdmin bool) (Prompt, error) {
	if flow.AdminOnly() && !isAdmin {
		return Prompt{}, ErrPermissionDenied
	}

	s := newSession(userID, flow)
	e.mu.Lock()
	old := e.sessions[userID]
	e.sessions[userID] = s
	e.mu.Unlock()
	// Close the displaced session outside the registry lock; a step still
	// running on it finishes against a closed session and is discarded.
	if old != nil {
		old.mu.Lock()
		old.closed = true
		old.mu.Unlock()
	}

	e.log.Debug("flow started",
		slog.Int64("user_id", userID),
		slog.String("flow", string(flow)),
	)
	return e.entryPrompt(flow), nil
}

func (e *Engine) entryPrompt(flow Flow) Prompt {
	switch flow {
	case FlowBrowse:
		return gradePrompt("Выберите ваш класс:")
	case FlowRequest:
		return gradePrompt("Запрос нового материала\n\nДля какого класса нужен материал?")
	case FlowAdminAdd:
		return gradePrompt("Добавление нового материала\n\nДля какого класса материал?")
	case FlowAdminDelete:
		return gradePrompt("Удаление материала\n\nДля какого класса удалить материал?")
	}
	return Prompt{}
}

// InProgress reports whether the user currently has an active flow.
func (e *Engine) InProgress(userID int64) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	_, ok := e.sessions[userID]
	return ok
}

// Session returns the user's active session, if any. Exposed for the
// transport layer to decide routing; flow logic stays inside the engine.
func (e *Engine) Session(userID int64) (*Session, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	s, ok := e.sessions[userID]
	return s, ok
}

// Reset discards the user's session and context bag, returning them to idle.
// An in-flight event for the session finishes first; the reset is observed
// afterwards.
func (e *Engine) Reset(userID int64) {
	e.mu.Lock()
	s, ok := e.sessions[userID]
	if ok {
		delete(e.sessions, userID)
	}
	e.mu.Unlock()
	if ok {
		s.mu.Lock()
		s.closed = true
		s.mu.Unlock()
	}
}

func (e *Engine) finish(s *Session) {
	s.closed = true
	e.mu.Lock()
	if cur, ok := e.sessions[s.userID]; ok && cur == s {
		delete(e.sessions, s.userID)
	}
	e.mu.Unlock()
}

// HandleInput advances the user's active flow with one classified intent.
// Events for one user are processed strictly in arrival order: the session
// mutex is held for the whole step, so a session never has two events in
// flight. Different users proceed concurrently.
func (e *Engine) HandleInput(ctx context.Context, userID int64, in Intent) (Result, error) {
	e.mu.Lock()
	s, ok := e.sessions[userID]
	e.mu.Unlock()
	if !ok {
		return Result{}, ErrNoActiveFlow
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return Result{}, ErrNoActiveFlow
	}

	if in.Kind == KindCancel {
		e.finish(s)
		return finished(Outcome{Kind: OutcomeCancelled}), nil
	}

	var (
		res Result
		err error
	)
	switch s.flow {
	case FlowBrowse:
		res, err = e.stepBrowse(ctx, s, in)
	case FlowRequest:
		res, err = e.stepRequest(ctx, s, in)
	case FlowAdminAdd:
		res, err = e.stepAdminAdd(ctx, s, in)
	case FlowAdminDelete:
		res, err = e.stepAdminDelete(ctx, s, in)
	default:
		err = ErrNoActiveFlow
	}
	if err != nil {
		return Result{}, err
	}
	if res.Outcome != nil {
		e.finish(s)
		e.log.Debug("flow finished",
			slog.Int64("user_id", userID),
			slog.String("flow", string(s.flow)),
			slog.Int("outcome", int(res.Outcome.Kind)),
		)
	}
	return res, nil
}

// expire closes the session and reports the missing-context terminal.
func (e *Engine) expire(s *Session) Result {
	e.log.Warn("session context missing",
		slog.Int64("user_id", s.userID),
		slog.String("flow", string(s.flow)),
		slog.String("state", string(s.state)),
	)
	return finished(Outcome{Kind: OutcomeSessionExpired})
}
