package service

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/snapbook/payment-reconciler/internal/models"
)

type memoryRepo struct {
	mu          sync.Mutex
	rows        map[string]models.SessionStateInfo
	transitions int
}

func newMemoryRepo() *memoryRepo {
	return &memoryRepo{rows: make(map[string]models.SessionStateInfo)}
}

func (r *memoryRepo) InsertSession(ctx context.Context, info models.SessionStateInfo) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.rows[info.SessionID] = info
	return nil
}

func (r *memoryRepo) TransitionStatus(ctx context.Context, sessionID string, from, to models.PaymentStatus, attempts int, trigger models.Trigger) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	row, ok := r.rows[sessionID]
	if !ok || row.Status != string(from) {
		return 0, nil
	}
	row.PreviousStatus = row.Status
	row.Status = string(to)
	row.Attempts = attempts
	row.Trigger = string(trigger)
	r.rows[sessionID] = row
	r.transitions++
	return 1, nil
}

func (r *memoryRepo) GetLatestByPaymentID(ctx context.Context, paymentID int64) (*models.SessionStateInfo, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, row := range r.rows {
		if row.PaymentID == paymentID {
			out := row
			return &out, nil
		}
	}
	return nil, models.ErrNotFound
}

type capturePublisher struct {
	mu       sync.Mutex
	outcomes []models.SessionOutcome
}

func (p *capturePublisher) PublishOutcome(ctx context.Context, outcome models.SessionOutcome) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.outcomes = append(p.outcomes, outcome)
	return nil
}

func (p *capturePublisher) all() []models.SessionOutcome {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]models.SessionOutcome(nil), p.outcomes...)
}

type countingBalance struct {
	mu  sync.Mutex
	ids []int64
}

func (b *countingBalance) RefreshBalance(ctx context.Context, paymentID int64) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.ids = append(b.ids, paymentID)
	return nil
}

func newTestManager(t *testing.T, gw *fakeGateway, retention time.Duration) (*Manager, *memoryRepo, *capturePublisher, *countingBalance) {
	t.Helper()
	repo := newMemoryRepo()
	pub := &capturePublisher{}
	bal := &countingBalance{}
	m := NewManager(Deps{Gateway: gw, Repo: repo}, pub, bal, testConfig(), retention)
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		m.Shutdown(ctx)
	})
	return m, repo, pub, bal
}

func TestManagerStartIsIdempotent(t *testing.T) {
	gw := &fakeGateway{get: always(models.StatusPending)}
	m, repo, _, _ := newTestManager(t, gw, time.Minute)

	first, created, err := m.Start(context.Background(), testPayment(), models.Booking{}, models.KindBooking)
	require.NoError(t, err)
	assert.True(t, created)

	second, created, err := m.Start(context.Background(), testPayment(), models.Booking{}, models.KindBooking)
	require.NoError(t, err)
	assert.False(t, created)
	assert.Same(t, first, second)

	repo.mu.Lock()
	assert.Len(t, repo.rows, 1)
	repo.mu.Unlock()
}

func TestManagerStartRejectsMissingID(t *testing.T) {
	m, _, _, _ := newTestManager(t, &fakeGateway{get: always(models.StatusPending)}, time.Minute)

	p := testPayment()
	p.PaymentID = 0
	_, _, err := m.Start(context.Background(), p, models.Booking{}, models.KindBooking)
	assert.True(t, errors.Is(err, models.ErrValidation))
}

func TestManagerWalletSuccessPublishesAndRefreshes(t *testing.T) {
	gw := &fakeGateway{get: always(models.StatusSuccess)}
	m, repo, pub, bal := newTestManager(t, gw, time.Minute)

	s, _, err := m.Start(context.Background(), testPayment(), models.Booking{}, models.KindWallet)
	require.NoError(t, err)

	state := waitComplete(t, s)
	assert.Equal(t, RouteWallet, state.NextRoute)

	require.Eventually(t, func() bool { return len(pub.all()) == 1 }, time.Second, 5*time.Millisecond)
	outcome := pub.all()[0]
	assert.Equal(t, testPaymentID, outcome.PaymentID)
	assert.Equal(t, models.KindWallet, outcome.Kind)
	assert.Equal(t, models.StatusSuccess, outcome.Status)

	bal.mu.Lock()
	assert.Equal(t, []int64{testPaymentID}, bal.ids)
	bal.mu.Unlock()

	row, err := repo.GetLatestByPaymentID(context.Background(), testPaymentID)
	require.NoError(t, err)
	require.NotNil(t, row)
	assert.Equal(t, string(models.StatusSuccess), row.Status)
	assert.Equal(t, string(models.StatusPending), row.PreviousStatus)
	assert.Equal(t, 1, repo.transitions)
}

func TestManagerVenueSuccessDoesNotRefreshBalance(t *testing.T) {
	gw := &fakeGateway{get: always(models.StatusCompleted)}
	m, _, pub, bal := newTestManager(t, gw, time.Minute)

	s, _, err := m.Start(context.Background(), testPayment(), models.Booking{}, models.KindVenue)
	require.NoError(t, err)

	state := waitComplete(t, s)
	assert.Equal(t, RouteVenueBookings, state.NextRoute)
	require.Eventually(t, func() bool { return len(pub.all()) == 1 }, time.Second, 5*time.Millisecond)

	bal.mu.Lock()
	assert.Empty(t, bal.ids)
	bal.mu.Unlock()
}

func TestManagerHandleDeepLink(t *testing.T) {
	gw := &fakeGateway{get: always(models.StatusPending)}
	m, _, pub, _ := newTestManager(t, gw, time.Minute)

	_, _, err := m.Start(context.Background(), testPayment(), models.Booking{}, models.KindBooking)
	require.NoError(t, err)

	evt, changed, err := m.HandleDeepLink(0, "snapbook://payment-cancel?paymentId=311")
	require.NoError(t, err)
	assert.Equal(t, models.DeepLinkPaymentCancel, evt.Type)
	assert.True(t, changed)

	_, changed, err = m.HandleDeepLink(testPaymentID, "snapbook://payment-success")
	require.NoError(t, err)
	assert.False(t, changed)

	outcomes := pub.all()
	require.Len(t, outcomes, 1)
	assert.Equal(t, models.StatusCancelled, outcomes[0].Status)
	assert.Equal(t, models.TriggerDeepLink, outcomes[0].Trigger)
}

func TestManagerHandleDeepLinkErrors(t *testing.T) {
	m, _, _, _ := newTestManager(t, &fakeGateway{get: always(models.StatusPending)}, time.Minute)

	_, _, err := m.HandleDeepLink(0, "snapbook://payment-success")
	assert.True(t, errors.Is(err, models.ErrValidation))

	_, _, err = m.HandleDeepLink(42, "snapbook://payment-success")
	assert.True(t, errors.Is(err, models.ErrNotFound))
}

func TestManagerRemovesFinishedSessionsAfterRetention(t *testing.T) {
	gw := &fakeGateway{get: always(models.StatusPending)}
	m, _, _, _ := newTestManager(t, gw, 20*time.Millisecond)

	s, _, err := m.Start(context.Background(), testPayment(), models.Booking{}, models.KindBooking)
	require.NoError(t, err)
	require.True(t, s.HandleDeepLink(models.DeepLinkEvent{Type: models.DeepLinkPaymentSuccess}))

	require.Eventually(t, func() bool {
		_, ok := m.Get(testPaymentID)
		return !ok
	}, time.Second, 5*time.Millisecond)
	select {
	case <-s.Done():
	case <-time.After(time.Second):
		t.Fatal("session not closed after removal")
	}
}

func TestManagerStop(t *testing.T) {
	gw := &fakeGateway{get: always(models.StatusPending)}
	m, _, _, _ := newTestManager(t, gw, time.Minute)

	s, _, err := m.Start(context.Background(), testPayment(), models.Booking{}, models.KindBooking)
	require.NoError(t, err)

	assert.True(t, m.Stop(testPaymentID))
	assert.False(t, m.Stop(testPaymentID))
	<-s.Done()

	again, created, err := m.Start(context.Background(), testPayment(), models.Booking{}, models.KindBooking)
	require.NoError(t, err)
	assert.True(t, created)
	assert.NotSame(t, s, again)
}

type sliceReader struct {
	mu   sync.Mutex
	msgs []kafka.Message
}

func (r *sliceReader) ReadMessage(ctx context.Context) (kafka.Message, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.msgs) == 0 {
		return kafka.Message{}, io.EOF
	}
	msg := r.msgs[0]
	r.msgs = r.msgs[1:]
	return msg, nil
}

func TestConsumePaymentEventsMountsSessions(t *testing.T) {
	gw := &fakeGateway{get: always(models.StatusPending)}
	m, _, _, _ := newTestManager(t, gw, time.Minute)

	event := models.PaymentEvent{
		PaymentID:   311,
		BookingID:   77,
		Kind:        models.KindWallet,
		OrderCode:   testOrderCode,
		Amount:      decimal.NewFromInt(50000),
		Status:      "pending",
		BookingName: "Wallet top-up",
	}
	raw, err := json.Marshal(event)
	require.NoError(t, err)

	reader := &sliceReader{msgs: []kafka.Message{
		{Value: []byte("{not json")},
		{Value: raw},
		{Value: raw},
	}}
	m.ConsumePaymentEvents(context.Background(), reader)

	s, ok := m.Get(311)
	require.True(t, ok)
	state := s.Snapshot()
	assert.Equal(t, models.KindWallet, state.Kind)
	assert.Equal(t, int64(77), state.BookingID)
	assert.Equal(t, "Wallet top-up", state.Booking.Name)
	assert.True(t, decimal.NewFromInt(50000).Equal(state.Payment.TotalAmount))
}
