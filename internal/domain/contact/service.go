package contact

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"strings"
	"time"

	"github.com/FahadIshaq/scanback-backend/internal/domain/tag"
	"github.com/FahadIshaq/scanback-backend/internal/repository"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
)

const (
	DefaultTTL         = 10 * time.Minute
	DefaultMaxAttempts = 5
	otpDigits          = 6
)

var otpRange = big.NewInt(1_000_000)

// Service runs the two-step contact change: request an OTP, then verify and apply.
type Service struct {
	tags    TagService
	pending PendingStore
	logger  *slog.Logger

	now          func() time.Time
	ttl          time.Duration
	maxAttempts  int
	hashCost     int
	storeTimeout time.Duration
	newOTP       func() (string, error)
}

// Option configures a Service.
type Option func(*Service)

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// WithTTL sets how long an OTP stays valid.
func WithTTL(d time.Duration) Option {
	return func(s *Service) {
		if d > 0 {
			s.ttl = d
		}
	}
}

// WithMaxAttempts sets how many wrong OTPs discard a pending update.
func WithMaxAttempts(n int) Option {
	return func(s *Service) {
		if n > 0 {
			s.maxAttempts = n
		}
	}
}

// WithHashCost sets the bcrypt cost used for stored OTPs.
func WithHashCost(cost int) Option {
	return func(s *Service) {
		if cost >= bcrypt.MinCost && cost <= bcrypt.MaxCost {
			s.hashCost = cost
		}
	}
}

// WithStoreTimeout bounds pending store calls.
func WithStoreTimeout(d time.Duration) Option {
	return func(s *Service) {
		if d > 0 {
			s.storeTimeout = d
		}
	}
}

// WithOTPSource replaces the OTP generator.
func WithOTPSource(fn func() (string, error)) Option {
	return func(s *Service) { s.newOTP = fn }
}

// NewService creates a new contact update service.
func NewService(tags TagService, pending PendingStore, logger *slog.Logger, opts ...Option) *Service {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	s := &Service{
		tags:         tags,
		pending:      pending,
		logger:       logger,
		now:          time.Now,
		ttl:          DefaultTTL,
		maxAttempts:  DefaultMaxAttempts,
		hashCost:     bcrypt.DefaultCost,
		storeTimeout: tag.DefaultStoreTimeout,
		newOTP:       GenerateOTP,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// RequestInput names the proposed new contact values.
type RequestInput struct {
	Code          string
	ProposedEmail string
	ProposedPhone string
}

// RequestUpdate issues an OTP for a contact change and stores its hash.
// Both proposals are optional; without them the OTP only gates the patch
// submitted at verification. The returned challenge says where the OTP must
// be delivered.
func (s *Service) RequestUpdate(ctx context.Context, in RequestInput) (*Challenge, error) {
	email := strings.TrimSpace(in.ProposedEmail)
	phone := strings.TrimSpace(in.ProposedPhone)
	if email != "" && !strings.Contains(email, "@") {
		return nil, ErrInvalidInput
	}

	rec, err := s.tags.Get(ctx, in.Code)
	if err != nil {
		return nil, err
	}

	channel, destination := destinationFor(rec.Contact, email, phone)
	if destination == "" {
		return nil, ErrInvalidInput
	}

	otp, err := s.newOTP()
	if err != nil {
		return nil, fmt.Errorf("generating otp: %w", err)
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(otp), s.hashCost)
	if err != nil {
		return nil, fmt.Errorf("hashing otp: %w", err)
	}

	now := s.now()
	pending := PendingUpdate{
		ID:            uuid.NewString(),
		Code:          rec.Code,
		OTPHash:       string(hash),
		ProposedEmail: email,
		ProposedPhone: phone,
		ExpiresAt:     now.Add(s.ttl),
		CreatedAt:     now,
	}

	if err := s.withStore(ctx, func(ctx context.Context) error {
		return s.pending.Put(ctx, pending)
	}); err != nil {
		return nil, storeError(err, "storing pending update")
	}

	// Opportunistically clean up expired verifications.
	_ = s.withStore(ctx, func(ctx context.Context) error {
		n, err := s.pending.DeleteExpired(ctx, now)
		if err == nil && n > 0 {
			s.logger.Debug("expired contact verifications removed", "count", n)
		}
		return err
	})

	return &Challenge{
		Code:        rec.Code,
		OTP:         otp,
		Channel:     channel,
		Destination: destination,
		ExpiresAt:   pending.ExpiresAt,
	}, nil
}

// VerifyAndApply checks otp against the pending update for code and, on success,
// consumes it and applies patch. Proposed email and phone fill in whatever the
// patch leaves unset.
func (s *Service) VerifyAndApply(ctx context.Context, code, otp string, patch tag.DetailsPatch) (*tag.Record, error) {
	code = tag.NormalizeCode(code)
	otp = strings.TrimSpace(otp)
	if code == "" || len(otp) != otpDigits {
		return nil, ErrInvalidOrExpiredOTP
	}

	var pending *PendingUpdate
	err := s.withStore(ctx, func(ctx context.Context) error {
		var err error
		pending, err = s.pending.Get(ctx, code)
		return err
	})
	if errors.Is(err, repository.ErrNotFound) {
		return nil, ErrInvalidOrExpiredOTP
	}
	if err != nil {
		return nil, storeError(err, "loading pending update")
	}

	if pending.Expired(s.now()) {
		s.discard(ctx, pending)
		return nil, ErrInvalidOrExpiredOTP
	}

	if bcrypt.CompareHashAndPassword([]byte(pending.OTPHash), []byte(otp)) != nil {
		s.recordFailure(ctx, pending)
		return nil, ErrInvalidOrExpiredOTP
	}

	// Consuming before applying guarantees a single winner per OTP.
	err = s.withStore(ctx, func(ctx context.Context) error {
		return s.pending.Consume(ctx, code, pending.ID)
	})
	if errors.Is(err, repository.ErrNotFound) {
		return nil, ErrInvalidOrExpiredOTP
	}
	if err != nil {
		return nil, storeError(err, "consuming pending update")
	}

	patch = withProposed(patch, pending)
	rec, err := s.tags.UpdateDetails(ctx, code, patch)
	if err != nil {
		return nil, err
	}

	s.logger.Info("contact update applied", "code", code)
	return rec, nil
}

func (s *Service) recordFailure(ctx context.Context, p *PendingUpdate) {
	var attempts int
	err := s.withStore(ctx, func(ctx context.Context) error {
		var err error
		attempts, err = s.pending.IncrementAttempts(ctx, p.Code, p.ID)
		return err
	})
	if err != nil {
		s.logger.Warn("recording failed verification", "code", p.Code, "error", err)
		return
	}
	if attempts >= s.maxAttempts {
		s.logger.Warn("contact verification locked after failed attempts", "code", p.Code, "attempts", attempts)
		s.discard(ctx, p)
	}
}

func (s *Service) discard(ctx context.Context, p *PendingUpdate) {
	err := s.withStore(ctx, func(ctx context.Context) error {
		return s.pending.Consume(ctx, p.Code, p.ID)
	})
	if err != nil && !errors.Is(err, repository.ErrNotFound) {
		s.logger.Warn("discarding pending update", "code", p.Code, "error", err)
	}
}

func (s *Service) withStore(ctx context.Context, fn func(ctx context.Context) error) error {
	ctx, cancel := context.WithTimeout(ctx, s.storeTimeout)
	defer cancel()
	return fn(ctx)
}

func storeError(err error, action string) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%s: %w", action, tag.ErrStoreTimeout)
	}
	return fmt.Errorf("%s: %w", action, err)
}

func withProposed(patch tag.DetailsPatch, p *PendingUpdate) tag.DetailsPatch {
	if p.ProposedEmail == "" && p.ProposedPhone == "" {
		return patch
	}
	var cp tag.ContactPatch
	if patch.Contact != nil {
		cp = *patch.Contact
	}
	if cp.Email == nil && p.ProposedEmail != "" {
		email := p.ProposedEmail
		cp.Email = &email
	}
	if cp.Phone == nil && p.ProposedPhone != "" {
		phone := p.ProposedPhone
		cp.Phone = &phone
	}
	patch.Contact = &cp
	return patch
}

// destinationFor picks where the OTP goes: the new email when the email is
// changing, otherwise the current email, falling back to phone numbers.
func destinationFor(current tag.Contact, email, phone string) (Channel, string) {
	switch {
	case email != "":
		return ChannelEmail, email
	case current.Email != "":
		return ChannelEmail, current.Email
	case phone != "":
		return ChannelSMS, phone
	case current.Phone != "":
		return ChannelSMS, current.Phone
	default:
		return "", ""
	}
}

// GenerateOTP returns a uniformly random 6-digit numeric code.
func GenerateOTP() (string, error) {
	n, err := rand.Int(rand.Reader, otpRange)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%06d", n.Int64()), nil
}
