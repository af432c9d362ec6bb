package webhooks

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stripe/stripe-go/v84"

	"github.com/auracommerce/aura-backend/internal/orders"
	"github.com/auracommerce/aura-backend/internal/reconciliation"
	"github.com/auracommerce/aura-backend/pkg/db/models"
	"github.com/auracommerce/aura-backend/pkg/enums"
)

type fakeReconciliation struct {
	events []reconciliation.PaymentEvent
	err    error
}

func (f *fakeReconciliation) HandleEvent(_ context.Context, event reconciliation.PaymentEvent) (reconciliation.Outcome, error) {
	if f.err != nil {
		return reconciliation.OutcomeSkipped, f.err
	}
	f.events = append(f.events, event)
	return reconciliation.OutcomeApplied, nil
}

func (f *fakeReconciliation) UpdateOrderStatus(context.Context, orders.Actor, uuid.UUID, enums.OrderStatus) (*models.Order, error) {
	return nil, errors.New("not implemented")
}

func (f *fakeReconciliation) RefundOrder(context.Context, uuid.UUID, bool) (*models.Order, error) {
	return nil, errors.New("not implemented")
}

type fakeVerifier struct {
	event stripe.Event
	err   error
}

func (f *fakeVerifier) VerifyWebhook(_ []byte, _ string) (stripe.Event, error) {
	return f.event, f.err
}

type memStore struct {
	data map[string]string
}

func newMemStore() *memStore {
	return &memStore{data: map[string]string{}}
}

func (m *memStore) Get(_ context.Context, key string) (string, error) {
	if v, ok := m.data[key]; ok {
		return v, nil
	}
	return "", redis.Nil
}

func (m *memStore) SetNX(_ context.Context, key string, value any, _ time.Duration) (bool, error) {
	if _, ok := m.data[key]; ok {
		return false, nil
	}
	str, _ := value.(string)
	m.data[key] = str
	return true, nil
}

func (m *memStore) IdempotencyKey(scope, id string) string {
	return fmt.Sprintf("mem:%s:%s", scope, id)
}

func (m *memStore) Del(_ context.Context, keys ...string) error {
	for _, key := range keys {
		delete(m.data, key)
	}
	return nil
}

func intentEvent(eventType string) stripe.Event {
	return stripe.Event{
		ID:   "evt_" + uuid.NewString(),
		Type: stripe.EventType(eventType),
		Data: &stripe.EventData{
			Raw: []byte(`{"id":"pi_wh_1","latest_charge":{"id":"ch_wh_1"}}`),
		},
	}
}

func postEvent(t *testing.T, handler http.HandlerFunc, withSignature bool) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/api/v1/webhooks/stripe", bytes.NewReader([]byte(`{}`)))
	if withSignature {
		req.Header.Set("Stripe-Signature", "t=1,v1=test")
	}
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec
}

func TestStripeWebhookAppliesEvent(t *testing.T) {
	svc := &fakeReconciliation{}
	event := intentEvent(reconciliation.EventPaymentSucceeded)
	handler := StripeWebhook(svc, &fakeVerifier{event: event}, NewGuard(newMemStore()), nil, nil)

	rec := postEvent(t, handler, true)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d (%s)", rec.Code, rec.Body.String())
	}
	if len(svc.events) != 1 {
		t.Fatalf("expected one event, got %d", len(svc.events))
	}
	got := svc.events[0]
	if got.IntentID != "pi_wh_1" || got.TransactionID != "ch_wh_1" {
		t.Fatalf("unexpected translation %+v", got)
	}
}

func TestStripeWebhookDeduplicatesDeliveries(t *testing.T) {
	svc := &fakeReconciliation{}
	event := intentEvent(reconciliation.EventPaymentSucceeded)
	handler := StripeWebhook(svc, &fakeVerifier{event: event}, NewGuard(newMemStore()), nil, nil)

	postEvent(t, handler, true)
	rec := postEvent(t, handler, true)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 on duplicate, got %d", rec.Code)
	}
	if len(svc.events) != 1 {
		t.Fatalf("duplicate delivery should not reach the handler, got %d calls", len(svc.events))
	}
}

func TestStripeWebhookReleasesGuardOnFailure(t *testing.T) {
	svc := &fakeReconciliation{err: errors.New("db down")}
	event := intentEvent(reconciliation.EventPaymentSucceeded)
	store := newMemStore()
	handler := StripeWebhook(svc, &fakeVerifier{event: event}, NewGuard(store), nil, nil)

	rec := postEvent(t, handler, true)
	if rec.Code == http.StatusOK {
		t.Fatalf("expected failure status, got %d", rec.Code)
	}
	if len(store.data) != 0 {
		t.Fatalf("expected guard released after failure, got %v", store.data)
	}

	// retry succeeds once the handler recovers
	svc.err = nil
	rec = postEvent(t, handler, true)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected retry to succeed, got %d", rec.Code)
	}
	if len(svc.events) != 1 {
		t.Fatalf("expected retry processed, got %d calls", len(svc.events))
	}
}

func TestStripeWebhookRejectsMissingSignature(t *testing.T) {
	svc := &fakeReconciliation{}
	handler := StripeWebhook(svc, &fakeVerifier{event: intentEvent(reconciliation.EventPaymentSucceeded)}, nil, nil, nil)

	rec := postEvent(t, handler, false)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
	if len(svc.events) != 0 {
		t.Fatalf("unsigned request must not reach the handler")
	}
}

func TestStripeWebhookRejectsBadSignature(t *testing.T) {
	svc := &fakeReconciliation{}
	handler := StripeWebhook(svc, &fakeVerifier{err: errors.New("bad signature")}, nil, nil, nil)

	rec := postEvent(t, handler, true)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
}

func TestStripeWebhookTranslatesChargeRefund(t *testing.T) {
	svc := &fakeReconciliation{}
	event := stripe.Event{
		ID:   "evt_" + uuid.NewString(),
		Type: stripe.EventType(reconciliation.EventChargeRefunded),
		Data: &stripe.EventData{
			Raw: []byte(`{"id":"ch_rf_1","payment_intent":{"id":"pi_rf_1"}}`),
		},
	}
	handler := StripeWebhook(svc, &fakeVerifier{event: event}, NewGuard(newMemStore()), nil, nil)

	rec := postEvent(t, handler, true)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	got := svc.events[0]
	if got.IntentID != "pi_rf_1" || got.TransactionID != "ch_rf_1" {
		t.Fatalf("unexpected translation %+v", got)
	}
}
