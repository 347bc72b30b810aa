package service

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/dgnsrekt/rendercheck/internal/artifact"
	"github.com/dgnsrekt/rendercheck/internal/events"
	"github.com/dgnsrekt/rendercheck/internal/verify"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
)

const imageFormat = "png"

// Runner executes one verification. *verify.Runner satisfies it.
type Runner interface {
	Run(ctx context.Context, opts verify.Options) verify.Outcome
}

// NotifyFunc is called after every stored run.
type NotifyFunc func(ctx context.Context, out verify.Outcome)

// Recorder keeps outcome history. *journal.Journal satisfies it.
type Recorder interface {
	Record(runID string, out verify.Outcome) error
}

// Publisher broadcasts run lifecycle events. *events.Broker satisfies it.
type Publisher interface {
	Publish(eventType string, v any) error
}

// VerifyRequest overrides the service defaults for one run. Nil and empty
// fields keep the default.
type VerifyRequest struct {
	TargetURL          string
	ReadinessSelector  string
	ReadinessState     string
	ReadinessTimeoutMS *int
	SettleDelayMS      *int
	FullPage           *bool
	Notes              string
}

// Service runs verifications one at a time and keeps their records.
type Service struct {
	runner   Runner
	store    *artifact.Store
	defaults verify.Options
	notify   NotifyFunc
	journal  Recorder
	events   Publisher
	metrics  *metrics
	mu       sync.Mutex
	newID    func() string
	now      func() time.Time
}

func NewService(runner Runner, store *artifact.Store, defaults verify.Options) *Service {
	return &Service{
		runner:   runner,
		store:    store,
		defaults: defaults,
		metrics:  newMetrics(),
		newID:    uuid.NewString,
		now:      time.Now,
	}
}

// SetNotify installs a hook invoked after each run. Pass nil to disable.
func (s *Service) SetNotify(fn NotifyFunc) {
	s.notify = fn
}

// SetJournal installs outcome history. Pass nil to disable.
func (s *Service) SetJournal(r Recorder) {
	s.journal = r
}

// SetEvents installs a lifecycle event sink. Pass nil to disable.
func (s *Service) SetEvents(p Publisher) {
	s.events = p
}

func (s *Service) publish(eventType string, v any) {
	if s.events == nil {
		return
	}
	if err := s.events.Publish(eventType, v); err != nil {
		slog.Debug("event publish failed", "type", eventType, "error", err)
	}
}

// Gatherer exposes the service's metrics registry.
func (s *Service) Gatherer() prometheus.Gatherer {
	return s.metrics.registry
}

func (s *Service) requireNonEmpty(value, fieldName string) error {
	if strings.TrimSpace(value) == "" {
		return &CodedError{Code: CodeValidation, Message: fieldName + " is required"}
	}
	return nil
}

func (s *Service) options(id string, req VerifyRequest) verify.Options {
	opts := s.defaults
	if v := strings.TrimSpace(req.TargetURL); v != "" {
		opts.TargetURL = v
	}
	if v := strings.TrimSpace(req.ReadinessSelector); v != "" {
		opts.ReadinessSelector = v
	}
	if v := strings.TrimSpace(req.ReadinessState); v != "" {
		opts.ReadinessState = verify.ReadinessState(v)
	}
	if req.ReadinessTimeoutMS != nil {
		opts.ReadinessTimeout = time.Duration(*req.ReadinessTimeoutMS) * time.Millisecond
	}
	if req.SettleDelayMS != nil {
		opts.SettleDelay = time.Duration(*req.SettleDelayMS) * time.Millisecond
	}
	if req.FullPage != nil {
		opts.FullPage = *req.FullPage
	}
	opts.OutputPath = s.store.ImagePath(id, imageFormat)
	return opts.Normalize()
}

// Verify runs one verification and stores its record. A failed verification
// is not an error: it is reported through Record.OK and Outcome.Kind.
func (s *Service) Verify(ctx context.Context, req VerifyRequest) (artifact.Record, verify.Outcome, error) {
	id := s.newID()
	opts := s.options(id, req)
	if err := opts.Validate(); err != nil {
		var verr *verify.Error
		if errors.As(err, &verr) {
			return artifact.Record{}, verify.Outcome{}, newError(CodeValidation, verr.Message, nil)
		}
		return artifact.Record{}, verify.Outcome{}, newError(CodeValidation, err.Error(), nil)
	}

	if !s.mu.TryLock() {
		s.metrics.busy.Inc()
		return artifact.Record{}, verify.Outcome{}, newError(CodeBusy, "a verification is already running", nil)
	}
	defer s.mu.Unlock()

	s.publish(events.TypeRunStarted, map[string]string{
		"run_id":     id,
		"target_url": opts.TargetURL,
		"selector":   opts.ReadinessSelector,
	})

	s.metrics.inFlight.Set(1)
	out := s.runner.Run(ctx, opts)
	s.metrics.inFlight.Set(0)

	kind := string(out.Kind)
	if out.OK {
		kind = "OK"
	}
	s.metrics.runs.WithLabelValues(kind).Inc()
	s.metrics.duration.Observe(out.Elapsed.Seconds())

	rec := artifact.Record{
		ID:        id,
		TargetURL: opts.TargetURL,
		Selector:  opts.ReadinessSelector,
		OK:        out.OK,
		Kind:      string(out.Kind),
		Message:   out.Message,
		Width:     out.Width,
		Height:    out.Height,
		SizeBytes: out.SizeBytes,
		ElapsedMS: out.ElapsedMS,
		CreatedAt: s.now().UTC(),
		Notes:     strings.TrimSpace(req.Notes),
	}
	if out.OK {
		rec.Format = imageFormat
	}
	if err := s.store.Save(rec); err != nil {
		// Without a sidecar the image is unreachable through the store.
		if out.OK {
			if rmErr := os.Remove(opts.OutputPath); rmErr != nil && !os.IsNotExist(rmErr) {
				slog.Warn("remove orphaned artifact failed", "run_id", id, "path", opts.OutputPath, "error", rmErr)
			}
		}
		return artifact.Record{}, out, newError(CodeStoreFailure, "save run record", err)
	}
	slog.Info("verification stored", "run_id", id, "ok", out.OK, "kind", out.Kind)

	if s.journal != nil {
		if err := s.journal.Record(id, out); err != nil {
			slog.Warn("journal record failed", "run_id", id, "error", err)
		}
	}

	s.publish(events.TypeRunFinished, struct {
		Run     artifact.Record `json:"run"`
		Outcome verify.Outcome  `json:"outcome"`
	}{rec, out})

	if s.notify != nil {
		s.notify(ctx, out)
	}
	return rec, out, nil
}

func (s *Service) List(ctx context.Context) ([]artifact.Record, error) {
	recs, err := s.store.List()
	if err != nil {
		return nil, newError(CodeStoreFailure, "list run records", err)
	}
	return recs, nil
}

func (s *Service) Get(ctx context.Context, id string) (artifact.Record, error) {
	if err := s.requireNonEmpty(id, "run_id"); err != nil {
		return artifact.Record{}, err
	}
	rec, err := s.store.Get(strings.TrimSpace(id))
	if err != nil {
		return artifact.Record{}, storeError(err)
	}
	return rec, nil
}

// ReadImage returns the artifact bytes and their MIME type.
func (s *Service) ReadImage(ctx context.Context, id string) ([]byte, string, error) {
	if err := s.requireNonEmpty(id, "run_id"); err != nil {
		return nil, "", err
	}
	data, format, err := s.store.ReadImage(strings.TrimSpace(id))
	if err != nil {
		return nil, "", storeError(err)
	}
	return data, "image/" + format, nil
}

func (s *Service) Delete(ctx context.Context, id string) error {
	if err := s.requireNonEmpty(id, "run_id"); err != nil {
		return err
	}
	if err := s.store.Delete(strings.TrimSpace(id)); err != nil {
		return storeError(err)
	}
	return nil
}

func storeError(err error) error {
	switch {
	case errors.Is(err, artifact.ErrNotFound):
		return newError(CodeNotFound, err.Error(), nil)
	case errors.Is(err, artifact.ErrInvalidID):
		return newError(CodeValidation, err.Error(), nil)
	default:
		return newError(CodeStoreFailure, "run store", err)
	}
}
