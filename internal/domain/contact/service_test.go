package contact_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/FahadIshaq/scanback-backend/internal/auth"
	"github.com/FahadIshaq/scanback-backend/internal/domain/contact"
	"github.com/FahadIshaq/scanback-backend/internal/domain/tag"
	"github.com/FahadIshaq/scanback-backend/internal/memory"
	"github.com/FahadIshaq/scanback-backend/internal/repository/mocks"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

type fixture struct {
	tags    *tag.Service
	pending *memory.PendingStore
	svc     *contact.Service
	clock   *fakeClock
	code    string

	mu   sync.Mutex
	otps []string
}

// nextOTP hands out queued OTPs, falling back to a fixed value.
func (f *fixture) nextOTP() (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.otps) == 0 {
		return "123456", nil
	}
	otp := f.otps[0]
	f.otps = f.otps[1:]
	return otp, nil
}

func newFixture(t *testing.T, contactInfo tag.Contact) *fixture {
	t.Helper()
	f := &fixture{
		pending: memory.NewPendingStore(),
		clock:   &fakeClock{now: time.Date(2026, 6, 1, 12, 0, 0, 0, time.UTC)},
	}
	gen, err := tag.NewGenerator(0)
	require.NoError(t, err)
	f.tags = tag.NewService(memory.NewRecordStore(), gen, nil, nil, auth.OwnerCheck{}, nil, tag.WithClock(f.clock.Now))
	f.svc = contact.NewService(f.tags, f.pending, nil,
		contact.WithClock(f.clock.Now),
		contact.WithHashCost(bcrypt.MinCost),
		contact.WithOTPSource(f.nextOTP),
	)

	rec, err := f.tags.Create(context.Background(), tag.CreateRequest{Kind: tag.KindItem, Contact: contactInfo})
	require.NoError(t, err)
	f.code = rec.Code
	return f
}

var ann = tag.Contact{Name: "Ann", Email: "ann@example.com", Phone: "111"}

func TestContactFlow_VerifyAppliesProposedValuesOnce(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, ann)

	challenge, err := f.svc.RequestUpdate(ctx, contact.RequestInput{Code: f.code, ProposedEmail: "new@example.com"})
	require.NoError(t, err)
	require.Equal(t, "123456", challenge.OTP)
	require.Equal(t, contact.ChannelEmail, challenge.Channel)
	require.Equal(t, "new@example.com", challenge.Destination)
	require.True(t, f.clock.Now().Add(contact.DefaultTTL).Equal(challenge.ExpiresAt))

	stored, err := f.pending.Get(ctx, f.code)
	require.NoError(t, err)
	require.NotEqual(t, "123456", stored.OTPHash, "otp is stored hashed")

	msg := "Reward offered"
	rec, err := f.svc.VerifyAndApply(ctx, f.code, "123456", tag.DetailsPatch{
		Contact: &tag.ContactPatch{Message: &msg},
	})
	require.NoError(t, err)
	require.Equal(t, "new@example.com", rec.Contact.Email)
	require.Equal(t, "111", rec.Contact.Phone)
	require.Equal(t, "Reward offered", rec.Contact.Message)

	_, err = f.svc.VerifyAndApply(ctx, f.code, "123456", tag.DetailsPatch{})
	require.ErrorIs(t, err, contact.ErrInvalidOrExpiredOTP)
	require.Zero(t, f.pending.Len())
}

func TestContactFlow_ExplicitPatchWinsOverProposal(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, ann)

	_, err := f.svc.RequestUpdate(ctx, contact.RequestInput{Code: f.code, ProposedPhone: "999"})
	require.NoError(t, err)

	phone := "888"
	rec, err := f.svc.VerifyAndApply(ctx, f.code, "123456", tag.DetailsPatch{
		Contact: &tag.ContactPatch{Phone: &phone},
	})
	require.NoError(t, err)
	require.Equal(t, "888", rec.Contact.Phone)
	require.Equal(t, "ann@example.com", rec.Contact.Email)
}

func TestContactFlow_ExpiredOTP(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, ann)

	_, err := f.svc.RequestUpdate(ctx, contact.RequestInput{Code: f.code, ProposedPhone: "222"})
	require.NoError(t, err)

	f.clock.Advance(contact.DefaultTTL)
	_, err = f.svc.VerifyAndApply(ctx, f.code, "123456", tag.DetailsPatch{})
	require.ErrorIs(t, err, contact.ErrInvalidOrExpiredOTP)
	require.Zero(t, f.pending.Len(), "expired entry is discarded")

	rec, err := f.tags.Get(ctx, f.code)
	require.NoError(t, err)
	require.Equal(t, "111", rec.Contact.Phone)
}

func TestContactFlow_WrongOTPThenRight(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, ann)

	_, err := f.svc.RequestUpdate(ctx, contact.RequestInput{Code: f.code, ProposedPhone: "222"})
	require.NoError(t, err)

	_, err = f.svc.VerifyAndApply(ctx, f.code, "000000", tag.DetailsPatch{})
	require.ErrorIs(t, err, contact.ErrInvalidOrExpiredOTP)

	rec, err := f.svc.VerifyAndApply(ctx, f.code, "123456", tag.DetailsPatch{})
	require.NoError(t, err)
	require.Equal(t, "222", rec.Contact.Phone)
}

func TestContactFlow_LockoutAfterMaxAttempts(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, ann)

	_, err := f.svc.RequestUpdate(ctx, contact.RequestInput{Code: f.code, ProposedPhone: "222"})
	require.NoError(t, err)

	for i := 0; i < contact.DefaultMaxAttempts; i++ {
		_, err := f.svc.VerifyAndApply(ctx, f.code, "000000", tag.DetailsPatch{})
		require.ErrorIs(t, err, contact.ErrInvalidOrExpiredOTP)
	}

	_, err = f.svc.VerifyAndApply(ctx, f.code, "123456", tag.DetailsPatch{})
	require.ErrorIs(t, err, contact.ErrInvalidOrExpiredOTP)
}

func TestContactFlow_NewRequestReplacesPrevious(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, ann)
	f.otps = []string{"111111", "222222"}

	_, err := f.svc.RequestUpdate(ctx, contact.RequestInput{Code: f.code, ProposedPhone: "333"})
	require.NoError(t, err)
	_, err = f.svc.RequestUpdate(ctx, contact.RequestInput{Code: f.code, ProposedPhone: "444"})
	require.NoError(t, err)

	_, err = f.svc.VerifyAndApply(ctx, f.code, "111111", tag.DetailsPatch{})
	require.ErrorIs(t, err, contact.ErrInvalidOrExpiredOTP)

	rec, err := f.svc.VerifyAndApply(ctx, f.code, "222222", tag.DetailsPatch{})
	require.NoError(t, err)
	require.Equal(t, "444", rec.Contact.Phone)
}

func TestContactFlow_ConcurrentVerifyHasOneWinner(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, ann)

	_, err := f.svc.RequestUpdate(ctx, contact.RequestInput{Code: f.code, ProposedEmail: "race@example.com"})
	require.NoError(t, err)

	const n = 10
	results := make(chan error, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.svc.VerifyAndApply(ctx, f.code, "123456", tag.DetailsPatch{})
			results <- err
		}()
	}
	wg.Wait()
	close(results)

	wins := 0
	for err := range results {
		if err == nil {
			wins++
			continue
		}
		require.ErrorIs(t, err, contact.ErrInvalidOrExpiredOTP)
	}
	require.Equal(t, 1, wins)
}

func TestContactFlow_RequestValidation(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, ann)

	_, err := f.svc.RequestUpdate(ctx, contact.RequestInput{Code: f.code, ProposedEmail: "not-an-email"})
	require.ErrorIs(t, err, contact.ErrInvalidInput)

	_, err = f.svc.RequestUpdate(ctx, contact.RequestInput{Code: "NOSUCHCODE", ProposedPhone: "1"})
	require.ErrorIs(t, err, tag.ErrNotFound)

	_, err = f.svc.VerifyAndApply(ctx, f.code, "12", tag.DetailsPatch{})
	require.ErrorIs(t, err, contact.ErrInvalidOrExpiredOTP)

	_, err = f.svc.VerifyAndApply(ctx, f.code, "123456", tag.DetailsPatch{})
	require.ErrorIs(t, err, contact.ErrInvalidOrExpiredOTP, "nothing pending")
}

func TestContactFlow_NoProposalUsesCurrentEmail(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, ann)

	challenge, err := f.svc.RequestUpdate(ctx, contact.RequestInput{Code: f.code})
	require.NoError(t, err)
	require.Equal(t, contact.ChannelEmail, challenge.Channel)
	require.Equal(t, "ann@example.com", challenge.Destination)

	name := "Ann B."
	rec, err := f.svc.VerifyAndApply(ctx, f.code, "123456", tag.DetailsPatch{
		Contact: &tag.ContactPatch{Name: &name},
	})
	require.NoError(t, err)
	require.Equal(t, "Ann B.", rec.Contact.Name)
	require.Equal(t, "ann@example.com", rec.Contact.Email)
	require.Equal(t, "111", rec.Contact.Phone)

	nobody := newFixture(t, tag.Contact{})
	_, err = nobody.svc.RequestUpdate(ctx, contact.RequestInput{Code: nobody.code})
	require.ErrorIs(t, err, contact.ErrInvalidInput, "no destination to deliver to")
}

func TestContactFlow_DestinationFallbacks(t *testing.T) {
	ctx := context.Background()

	f := newFixture(t, ann)
	challenge, err := f.svc.RequestUpdate(ctx, contact.RequestInput{Code: f.code, ProposedPhone: "222"})
	require.NoError(t, err)
	require.Equal(t, contact.ChannelEmail, challenge.Channel)
	require.Equal(t, "ann@example.com", challenge.Destination, "phone change confirmed via current email")

	phoneOnly := newFixture(t, tag.Contact{Name: "Bo"})
	challenge, err = phoneOnly.svc.RequestUpdate(ctx, contact.RequestInput{Code: phoneOnly.code, ProposedPhone: "555"})
	require.NoError(t, err)
	require.Equal(t, contact.ChannelSMS, challenge.Channel)
	require.Equal(t, "555", challenge.Destination)
}

func TestContactFlow_StoreTimeout(t *testing.T) {
	ctx := context.Background()
	gen, err := tag.NewGenerator(0)
	require.NoError(t, err)
	tags := tag.NewService(memory.NewRecordStore(), gen, nil, nil, auth.OwnerCheck{}, nil)
	rec, err := tags.Create(ctx, tag.CreateRequest{Kind: tag.KindPet, Contact: ann})
	require.NoError(t, err)

	pending := &mocks.PendingStore{}
	pending.On("Put", mock.Anything, mock.Anything).
		Run(func(args mock.Arguments) {
			<-args.Get(0).(context.Context).Done()
		}).
		Return(context.DeadlineExceeded)

	svc := contact.NewService(tags, pending, nil,
		contact.WithHashCost(bcrypt.MinCost),
		contact.WithStoreTimeout(20*time.Millisecond),
	)
	_, err = svc.RequestUpdate(ctx, contact.RequestInput{Code: rec.Code, ProposedPhone: "1"})
	require.ErrorIs(t, err, tag.ErrStoreTimeout)
	pending.AssertNotCalled(t, "DeleteExpired", mock.Anything, mock.Anything)
}

func TestGenerateOTP(t *testing.T) {
	for i := 0; i < 100; i++ {
		otp, err := contact.GenerateOTP()
		require.NoError(t, err)
		require.Regexp(t, `^[0-9]{6}$`, otp)
	}
}
