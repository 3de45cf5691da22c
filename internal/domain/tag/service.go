package tag

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/FahadIshaq/scanback-backend/internal/repository"
)

const (
	DefaultStoreTimeout    = 3 * time.Second
	DefaultMaxCodeAttempts = 5
	MaxBatchSize           = 500
)

// errAlreadyOwned signals that an activation targets a tag the requester already owns.
var errAlreadyOwned = errors.New("tag already owned by requester")

// Service owns the tag lifecycle state machine.
type Service struct {
	records RecordStore
	codes   CodeGenerator
	cache   Invalidator
	events  EventPublisher
	authz   AuthorizationCheck
	logger  *slog.Logger

	now             func() time.Time
	storeTimeout    time.Duration
	maxCodeAttempts int
}

// Option configures a Service.
type Option func(*Service)

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// WithStoreTimeout bounds every record store call.
func WithStoreTimeout(d time.Duration) Option {
	return func(s *Service) {
		if d > 0 {
			s.storeTimeout = d
		}
	}
}

// WithMaxCodeAttempts bounds regeneration after code collisions.
func WithMaxCodeAttempts(n int) Option {
	return func(s *Service) {
		if n > 0 {
			s.maxCodeAttempts = n
		}
	}
}

// NewService creates a new tag lifecycle service.
// cache and events may be nil; authz is required.
func NewService(
	records RecordStore,
	codes CodeGenerator,
	cache Invalidator,
	events EventPublisher,
	authz AuthorizationCheck,
	logger *slog.Logger,
	opts ...Option,
) *Service {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	s := &Service{
		records:         records,
		codes:           codes,
		cache:           cache,
		events:          events,
		authz:           authz,
		logger:          logger,
		now:             time.Now,
		storeTimeout:    DefaultStoreTimeout,
		maxCodeAttempts: DefaultMaxCodeAttempts,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// CreateRequest describes a tag issuance request.
type CreateRequest struct {
	Owner    string
	Kind     Kind
	Details  map[string]any
	Contact  Contact
	Settings *Settings
}

// ActivateRequest describes an activation request.
type ActivateRequest struct {
	Code     string
	Owner    string
	Details  map[string]any
	Contact  *ContactPatch
	Settings *SettingsPatch
}

// Create issues a new unactivated tag, regenerating the code on collisions.
func (s *Service) Create(ctx context.Context, req CreateRequest) (*Record, error) {
	if err := ValidateCreateInput(req); err != nil {
		return nil, err
	}

	settings := DefaultSettings()
	if req.Settings != nil {
		settings = *req.Settings
	}

	now := s.now()
	rec := &Record{
		Kind:        req.Kind,
		Owner:       strings.TrimSpace(req.Owner),
		Details:     cloneDetails(req.Details),
		Contact:     req.Contact,
		Settings:    settings,
		Status:      StatusActive,
		IsActivated: false,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	for attempt := 1; attempt <= s.maxCodeAttempts; attempt++ {
		code, err := s.codes.NewCode()
		if err != nil {
			return nil, fmt.Errorf("generating code: %w", err)
		}
		rec.Code = code

		err = s.withStore(ctx, func(ctx context.Context) error {
			return s.records.Insert(ctx, rec)
		})
		if err == nil {
			s.logger.Debug("tag issued", "code", rec.Code, "kind", rec.Kind)
			return rec, nil
		}
		if errors.Is(err, repository.ErrUniqueViolation) {
			s.logger.Warn("tag code collision, regenerating", "code", code, "attempt", attempt)
			continue
		}
		return nil, TranslateStoreError(err, "inserting tag")
	}

	return nil, ErrCodeExhausted
}

// CreateBatch issues n unactivated tags of one kind.
func (s *Service) CreateBatch(ctx context.Context, n int, kind Kind) ([]*Record, error) {
	if n <= 0 || n > MaxBatchSize {
		return nil, ErrInvalidInput
	}
	out := make([]*Record, 0, n)
	for i := 0; i < n; i++ {
		rec, err := s.Create(ctx, CreateRequest{Kind: kind})
		if err != nil {
			return out, fmt.Errorf("issuing tag %d of %d: %w", i+1, n, err)
		}
		out = append(out, rec)
	}
	return out, nil
}

// Activate binds a tag to an owner. Re-activation by the current owner is a no-op
// that returns the stored record.
func (s *Service) Activate(ctx context.Context, req ActivateRequest) (*Record, error) {
	if err := ValidateActivateInput(req); err != nil {
		return nil, err
	}
	code := NormalizeCode(req.Code)
	owner := strings.TrimSpace(req.Owner)

	current, err := s.Get(ctx, code)
	if err != nil {
		return nil, err
	}

	ownership := func(rec *Record) error {
		if !rec.IsActivated {
			return nil
		}
		if s.authz.IsOwner(ctx, owner, rec.Owner) {
			return errAlreadyOwned
		}
		return ErrAlreadyActivated
	}
	if err := ownership(current); err != nil {
		if errors.Is(err, errAlreadyOwned) {
			return current, nil
		}
		return nil, err
	}

	now := s.now()
	status := StatusActive

	updated, err := s.update(ctx, code, Mutation{
		Precondition: ownership,
		Details:      req.Details,
		Contact:      req.Contact,
		Settings:     req.Settings,
		Status:       &status,
		Activation:   &Activation{Owner: owner, At: now},
		UpdatedAt:    now,
	}, "activating tag")
	if errors.Is(err, errAlreadyOwned) {
		return s.Get(ctx, code)
	}
	if err != nil {
		return nil, err
	}

	s.logger.Info("tag activated", "code", code, "owner", owner)
	return updated, nil
}

// Scan records a public scan of an activated tag and notifies the owner.
func (s *Service) Scan(ctx context.Context, code string, meta ScanMeta) (*Record, error) {
	code = NormalizeCode(code)
	if code == "" {
		return nil, ErrInvalidInput
	}

	now := s.now()
	evt := ScanEvent{
		ScannedAt: now,
		Source:    meta.Source,
		Agent:     meta.Agent,
		Location:  meta.Location,
	}

	updated, err := s.update(ctx, code, Mutation{
		Precondition: func(rec *Record) error {
			if !rec.IsActivated {
				return ErrNotActivated
			}
			return nil
		},
		Scan:      &evt,
		UpdatedAt: now,
	}, "recording scan")
	if err != nil {
		return nil, err
	}

	s.publish(ctx, Event{
		Kind:       EventScanned,
		Code:       code,
		Record:     *updated,
		Scan:       &evt,
		OccurredAt: now,
	})
	return updated, nil
}

// ReportFound marks a tag found and notifies the owner.
func (s *Service) ReportFound(ctx context.Context, code string, report FinderReport) (*Record, error) {
	code = NormalizeCode(code)
	if code == "" {
		return nil, ErrInvalidInput
	}

	now := s.now()
	info := FoundInfo{
		FinderName:  strings.TrimSpace(report.Name),
		FinderPhone: strings.TrimSpace(report.Phone),
		FinderEmail: strings.TrimSpace(report.Email),
		Location:    report.Location,
		Notes:       strings.TrimSpace(report.Notes),
		ReportedAt:  now,
	}
	status := StatusFound

	updated, err := s.update(ctx, code, Mutation{
		Precondition: func(rec *Record) error {
			if rec.Status == StatusFound {
				return ErrAlreadyFound
			}
			return nil
		},
		Status:    &status,
		FoundInfo: &info,
		UpdatedAt: now,
	}, "reporting found")
	if err != nil {
		return nil, err
	}

	s.logger.Info("tag reported found", "code", code)
	s.publish(ctx, Event{
		Kind:       EventFound,
		Code:       code,
		Record:     *updated,
		Finder:     &info,
		OccurredAt: now,
	})
	return updated, nil
}

// ToggleStatus flips a tag between active and inactive.
func (s *Service) ToggleStatus(ctx context.Context, code string) (*Record, error) {
	current, err := s.Get(ctx, code)
	if err != nil {
		return nil, err
	}
	from := current.Status
	to, err := ToggleTarget(from)
	if err != nil {
		return nil, err
	}

	return s.update(ctx, current.Code, Mutation{
		Precondition: func(rec *Record) error {
			if rec.Status != from {
				return ErrInvalidTransition
			}
			return nil
		},
		Status:    &to,
		UpdatedAt: s.now(),
	}, "toggling status")
}

// UpdateDetails merges the present fields of patch into the tag. The merge
// happens inside the store update, against the latest stored values.
func (s *Service) UpdateDetails(ctx context.Context, code string, patch DetailsPatch) (*Record, error) {
	if patch.Empty() {
		return s.Get(ctx, code)
	}
	code = NormalizeCode(code)
	if code == "" {
		return nil, ErrInvalidInput
	}

	return s.update(ctx, code, Mutation{
		Details:   patch.Details,
		Contact:   patch.Contact,
		Settings:  patch.Settings,
		UpdatedAt: s.now(),
	}, "updating details")
}

// Deactivate releases a tag from its owner so it can be activated again.
func (s *Service) Deactivate(ctx context.Context, code string) (*Record, error) {
	code = NormalizeCode(code)
	if code == "" {
		return nil, ErrInvalidInput
	}
	status := StatusInactive
	updated, err := s.update(ctx, code, Mutation{
		Deactivate: true,
		Status:     &status,
		UpdatedAt:  s.now(),
	}, "deactivating tag")
	if err != nil {
		return nil, err
	}
	s.logger.Info("tag deactivated", "code", code)
	return updated, nil
}

// Get returns a tag by code.
func (s *Service) Get(ctx context.Context, code string) (*Record, error) {
	code = NormalizeCode(code)
	if code == "" {
		return nil, ErrInvalidInput
	}
	var rec *Record
	err := s.withStore(ctx, func(ctx context.Context) error {
		var err error
		rec, err = s.records.FindByCode(ctx, code)
		return err
	})
	if err != nil {
		return nil, TranslateStoreError(err, "getting tag")
	}
	return rec, nil
}

// List returns tag summaries based on options.
func (s *Service) List(ctx context.Context, opts ListOptions) ([]Summary, error) {
	var out []Summary
	err := s.withStore(ctx, func(ctx context.Context) error {
		var err error
		out, err = s.records.List(ctx, opts)
		return err
	})
	if err != nil {
		return nil, TranslateStoreError(err, "listing tags")
	}
	return out, nil
}

// EnsureOwner loads a tag and checks that requester owns it.
func (s *Service) EnsureOwner(ctx context.Context, code, requester string) (*Record, error) {
	rec, err := s.Get(ctx, code)
	if err != nil {
		return nil, err
	}
	if !rec.IsActivated || !s.authz.IsOwner(ctx, requester, rec.Owner) {
		return nil, ErrForbidden
	}
	return rec, nil
}

func (s *Service) update(ctx context.Context, code string, m Mutation, action string) (*Record, error) {
	var updated *Record
	err := s.withStore(ctx, func(ctx context.Context) error {
		var err error
		updated, err = s.records.UpdateByCode(ctx, code, m)
		return err
	})
	if err != nil {
		return nil, TranslateStoreError(err, action)
	}
	s.invalidate(code)
	return updated, nil
}

func (s *Service) withStore(ctx context.Context, fn func(ctx context.Context) error) error {
	ctx, cancel := context.WithTimeout(ctx, s.storeTimeout)
	defer cancel()
	return fn(ctx)
}

func (s *Service) invalidate(code string) {
	if s.cache != nil {
		s.cache.Invalidate(code)
	}
}

func (s *Service) publish(ctx context.Context, evt Event) {
	if s.events == nil {
		return
	}
	if err := s.events.Publish(ctx, evt); err != nil {
		s.logger.Warn("event not queued", "kind", evt.Kind, "code", evt.Code, "error", err)
	}
}

// TranslateStoreError maps store failures onto tag errors.
func TranslateStoreError(err error, action string) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, repository.ErrNotFound):
		return ErrNotFound
	case errors.Is(err, context.DeadlineExceeded):
		return fmt.Errorf("%s: %w", action, ErrStoreTimeout)
	case isDomainError(err):
		return err
	default:
		return fmt.Errorf("%s: %w", action, err)
	}
}

func isDomainError(err error) bool {
	for _, target := range []error{
		ErrNotFound, ErrAlreadyActivated, ErrAlreadyFound, ErrNotActivated,
		ErrInvalidTransition, ErrInvalidInput, ErrForbidden, errAlreadyOwned,
	} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}
