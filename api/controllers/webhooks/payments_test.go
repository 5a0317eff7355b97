package webhooks

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/adeyemiloye/chowhub-backend/internal/audit"
	"github.com/adeyemiloye/chowhub-backend/internal/payments"
	"github.com/adeyemiloye/chowhub-backend/pkg/db/models"
	"github.com/adeyemiloye/chowhub-backend/pkg/enums"
	pkgerrors "github.com/adeyemiloye/chowhub-backend/pkg/errors"
	"github.com/adeyemiloye/chowhub-backend/pkg/logger"
)

const webhookTestSecret = "chowhub-webhook-secret"

type fakeVerifier struct {
	calls     int
	lastInput payments.VerifyPaymentInput
	result    *payments.VerifyResult
	err       error
}

func (f *fakeVerifier) VerifyPayment(ctx context.Context, input payments.VerifyPaymentInput) (*payments.VerifyResult, error) {
	f.calls++
	f.lastInput = input
	if f.err != nil {
		return nil, f.err
	}
	return f.result, nil
}

type fakeGuard struct {
	seen    map[string]bool
	deleted []string
}

func newFakeGuard() *fakeGuard {
	return &fakeGuard{seen: map[string]bool{}}
}

func (f *fakeGuard) CheckAndMark(ctx context.Context, reference string) (bool, error) {
	if f.seen[reference] {
		return true, nil
	}
	f.seen[reference] = true
	return false, nil
}

func (f *fakeGuard) Delete(ctx context.Context, reference string) error {
	f.deleted = append(f.deleted, reference)
	delete(f.seen, reference)
	return nil
}

type fakeAuditService struct {
	incidents []audit.RecordIncidentInput
}

func (f *fakeAuditService) WithTx(tx *gorm.DB) audit.Service {
	return f
}

func (f *fakeAuditService) RecordChange(ctx context.Context, input audit.RecordChangeInput) (*models.AuditEntry, error) {
	return &models.AuditEntry{ID: uuid.New()}, nil
}

func (f *fakeAuditService) RecordIncident(ctx context.Context, input audit.RecordIncidentInput) (*models.SecurityIncident, error) {
	f.incidents = append(f.incidents, input)
	return &models.SecurityIncident{ID: uuid.New()}, nil
}

func (f *fakeAuditService) ListByOrderID(ctx context.Context, orderID uuid.UUID) ([]models.AuditEntry, error) {
	return nil, nil
}

func webhookTestLogger() *logger.Logger {
	return logger.New(logger.Options{ServiceName: "webhook-test", Output: io.Discard})
}

func signPayload(payload []byte, secret string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(payload)
	return hex.EncodeToString(mac.Sum(nil))
}

func buildCallback(t *testing.T, reference, status string) []byte {
	t.Helper()

	payload, err := json.Marshal(map[string]any{
		"reference": reference,
		"order_ref": "CH-2025-0001",
		"order_id":  uuid.NewString(),
		"amount":    "4500.00",
		"currency":  "NGN",
		"status":    status,
	})
	if err != nil {
		t.Fatalf("marshal callback: %v", err)
	}
	return payload
}

func newWebhookRouter(svc PaymentVerifier, auditSvc audit.Service, guard paymentWebhookGuard) http.Handler {
	router := chi.NewRouter()
	router.Post("/api/v1/webhooks/payments/{provider}", PaymentWebhook(svc, auditSvc, guard, webhookTestSecret, webhookTestLogger()))
	return router
}

func postCallback(handler http.Handler, provider string, payload []byte, signature string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/api/v1/webhooks/payments/"+provider, bytes.NewReader(payload))
	if signature != "" {
		req.Header.Set(signatureHeader, signature)
	}
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec
}

func TestPaymentWebhook_SuccessAndReplay(t *testing.T) {
	orderID := uuid.New()
	verifier := &fakeVerifier{
		result: &payments.VerifyResult{
			Order: &models.Order{
				ID:            orderID,
				Status:        enums.OrderStatusConfirmed,
				PaymentStatus: enums.PaymentStatusPaid,
			},
		},
	}
	guard := newFakeGuard()
	handler := newWebhookRouter(verifier, &fakeAuditService{}, guard)

	payload := buildCallback(t, "ACME-REF-001", "success")
	signature := signPayload(payload, webhookTestSecret)

	rec := postCallback(handler, "acme", payload, signature)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d (%s)", rec.Code, rec.Body.String())
	}
	if verifier.calls != 1 {
		t.Fatalf("expected one verify call, got %d", verifier.calls)
	}
	if verifier.lastInput.OrderRef != "CH-2025-0001" {
		t.Fatalf("expected order_ref to reach the verifier, got %q", verifier.lastInput.OrderRef)
	}

	var envelope struct {
		Data map[string]any `json:"data"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &envelope); err != nil {
		t.Fatalf("decode envelope: %v", err)
	}
	if envelope.Data["order_id"] != orderID.String() {
		t.Fatalf("expected order id %s, got %v", orderID, envelope.Data["order_id"])
	}
	if envelope.Data["order_status"] != "confirmed" {
		t.Fatalf("expected confirmed, got %v", envelope.Data["order_status"])
	}

	// Same reference again: the guard mark does not short-circuit, the
	// verifier runs and reports the replay as already processed.
	verifier.result.AlreadyProcessed = true
	rec = postCallback(handler, "acme", payload, signature)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 on replay, got %d", rec.Code)
	}
	if verifier.calls != 2 {
		t.Fatalf("replay must still reach the verifier, got %d calls", verifier.calls)
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &envelope); err != nil {
		t.Fatalf("decode replay envelope: %v", err)
	}
	if envelope.Data["already_processed"] != true {
		t.Fatalf("expected already_processed true, got %v", envelope.Data["already_processed"])
	}
}

func TestPaymentWebhook_DuplicateBeforeCommitIsNotAcked(t *testing.T) {
	// The first delivery marked the guard but its transaction has not
	// committed: a duplicate must not be acked off the mark alone, and its
	// failure must not release the mark the first delivery owns.
	verifier := &fakeVerifier{err: pkgerrors.New(pkgerrors.CodeLockConflict, "order is locked")}
	guard := newFakeGuard()
	guard.seen["ACME-REF-010"] = true
	handler := newWebhookRouter(verifier, &fakeAuditService{}, guard)

	payload := buildCallback(t, "ACME-REF-010", "success")
	rec := postCallback(handler, "acme", payload, signPayload(payload, webhookTestSecret))
	if rec.Code != http.StatusConflict {
		t.Fatalf("expected 409, got %d (%s)", rec.Code, rec.Body.String())
	}
	if verifier.calls != 1 {
		t.Fatalf("duplicate must reach the verifier, got %d calls", verifier.calls)
	}
	if len(guard.deleted) != 0 {
		t.Fatalf("duplicate must not release a mark it did not set, got %v", guard.deleted)
	}
}

func TestPaymentWebhook_InvalidSignature(t *testing.T) {
	verifier := &fakeVerifier{}
	auditSvc := &fakeAuditService{}
	handler := newWebhookRouter(verifier, auditSvc, newFakeGuard())

	payload := buildCallback(t, "ACME-REF-002", "success")
	rec := postCallback(handler, "acme", payload, "deadbeef")
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rec.Code)
	}
	if verifier.calls != 0 {
		t.Fatalf("verifier must not run on a bad signature")
	}
	if len(auditSvc.incidents) != 1 {
		t.Fatalf("expected one incident, got %d", len(auditSvc.incidents))
	}
	if auditSvc.incidents[0].Kind != "webhook.invalid_signature" {
		t.Fatalf("unexpected incident kind %q", auditSvc.incidents[0].Kind)
	}
}

func TestPaymentWebhook_MissingSignature(t *testing.T) {
	handler := newWebhookRouter(&fakeVerifier{}, &fakeAuditService{}, newFakeGuard())

	payload := buildCallback(t, "ACME-REF-003", "success")
	rec := postCallback(handler, "acme", payload, "")
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rec.Code)
	}
}

func TestPaymentWebhook_UnknownProvider(t *testing.T) {
	handler := newWebhookRouter(&fakeVerifier{}, &fakeAuditService{}, newFakeGuard())

	payload := buildCallback(t, "ACME-REF-004", "success")
	rec := postCallback(handler, "stripe", payload, signPayload(payload, webhookTestSecret))
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
}

func TestPaymentWebhook_RejectsPendingStatus(t *testing.T) {
	handler := newWebhookRouter(&fakeVerifier{}, &fakeAuditService{}, newFakeGuard())

	payload := buildCallback(t, "ACME-REF-005", "pending")
	rec := postCallback(handler, "acme", payload, signPayload(payload, webhookTestSecret))
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
}

func TestPaymentWebhook_MissingReference(t *testing.T) {
	handler := newWebhookRouter(&fakeVerifier{}, &fakeAuditService{}, newFakeGuard())

	payload := buildCallback(t, "  ", "success")
	rec := postCallback(handler, "acme", payload, signPayload(payload, webhookTestSecret))
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
}

func TestPaymentWebhook_VerifierErrorReleasesGuard(t *testing.T) {
	verifier := &fakeVerifier{err: pkgerrors.New(pkgerrors.CodeAmountMismatch, "reported amount does not match order total")}
	guard := newFakeGuard()
	handler := newWebhookRouter(verifier, &fakeAuditService{}, guard)

	payload := buildCallback(t, "ACME-REF-006", "success")
	signature := signPayload(payload, webhookTestSecret)

	rec := postCallback(handler, "acme", payload, signature)
	if rec.Code != http.StatusConflict {
		t.Fatalf("expected 409, got %d (%s)", rec.Code, rec.Body.String())
	}
	if len(guard.deleted) != 1 || guard.deleted[0] != "ACME-REF-006" {
		t.Fatalf("guard entry should be released on failure, got %v", guard.deleted)
	}

	// The provider can retry the same reference after the failure.
	verifier.err = nil
	verifier.result = &payments.VerifyResult{
		Order: &models.Order{ID: uuid.New(), Status: enums.OrderStatusConfirmed, PaymentStatus: enums.PaymentStatusPaid},
	}
	rec = postCallback(handler, "acme", payload, signature)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected retry to succeed, got %d", rec.Code)
	}
	if verifier.calls != 2 {
		t.Fatalf("expected two verify calls, got %d", verifier.calls)
	}
}

func TestPaymentWebhook_MalformedBody(t *testing.T) {
	handler := newWebhookRouter(&fakeVerifier{}, &fakeAuditService{}, newFakeGuard())

	payload := []byte("{not json")
	rec := postCallback(handler, "acme", payload, signPayload(payload, webhookTestSecret))
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
}

func TestValidateWebhookSignature(t *testing.T) {
	payload := []byte(`{"reference":"ACME-REF-007"}`)
	signature := signPayload(payload, webhookTestSecret)

	if !validateWebhookSignature(payload, webhookTestSecret, signature) {
		t.Fatal("expected valid signature to pass")
	}
	if !validateWebhookSignature(payload, webhookTestSecret, strings.ToUpper(signature)) {
		t.Fatal("expected uppercase hex signature to pass")
	}
	if validateWebhookSignature(payload, webhookTestSecret, "tampered") {
		t.Fatal("expected tampered signature to fail")
	}
	if validateWebhookSignature(payload, "", signature) {
		t.Fatal("empty secret must never validate")
	}
	if validateWebhookSignature([]byte("other payload"), webhookTestSecret, signature) {
		t.Fatal("signature must bind to the payload")
	}
}
