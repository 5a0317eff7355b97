package webhooks

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/adeyemiloye/chowhub-backend/api/responses"
	"github.com/adeyemiloye/chowhub-backend/internal/audit"
	"github.com/adeyemiloye/chowhub-backend/internal/payments"
	"github.com/adeyemiloye/chowhub-backend/pkg/enums"
	pkgerrors "github.com/adeyemiloye/chowhub-backend/pkg/errors"
	"github.com/adeyemiloye/chowhub-backend/pkg/logger"
	"github.com/adeyemiloye/chowhub-backend/pkg/types"
)

const signatureHeader = "X-Webhook-Signature"

type PaymentVerifier interface {
	VerifyPayment(ctx context.Context, input payments.VerifyPaymentInput) (*payments.VerifyResult, error)
}

type paymentWebhookGuard interface {
	CheckAndMark(ctx context.Context, reference string) (bool, error)
	Delete(ctx context.Context, reference string) error
}

type paymentWebhookBody struct {
	Reference string          `json:"reference"`
	OrderRef  string          `json:"order_ref"`
	OrderID   string          `json:"order_id"`
	Amount    decimal.Decimal `json:"amount"`
	Currency  string          `json:"currency"`
	Status    string          `json:"status"`
}

// PaymentWebhook ingests provider callbacks for payment outcomes. The raw
// body is authenticated with an HMAC before anything is decoded; a bad
// signature is treated as a hostile probe, not a validation error.
func PaymentWebhook(svc PaymentVerifier, auditSvc audit.Service, guard paymentWebhookGuard, secret string, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		if svc == nil {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeInternal, "payment service unavailable"))
			return
		}
		if guard == nil {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeInternal, "idempotency guard unavailable"))
			return
		}

		provider, err := enums.ParsePaymentProvider(chi.URLParam(r, "provider"))
		if err != nil {
			responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "unknown payment provider"))
			return
		}

		payload, err := io.ReadAll(r.Body)
		if err != nil {
			responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "read request body"))
			return
		}

		sigHeader := strings.TrimSpace(r.Header.Get(signatureHeader))
		if sigHeader == "" {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeUnauthorized, "webhook signature missing"))
			return
		}

		if !validateWebhookSignature(payload, secret, sigHeader) {
			if auditSvc != nil {
				_, _ = auditSvc.RecordIncident(ctx, audit.RecordIncidentInput{
					Severity:    enums.IncidentSeverityWarning,
					Kind:        "webhook.invalid_signature",
					Description: "payment webhook rejected: signature mismatch",
					Details: types.JSONMap{
						"provider":    string(provider),
						"remote_addr": r.RemoteAddr,
					},
				})
			}
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeUnauthorized, "invalid webhook signature"))
			return
		}

		var body paymentWebhookBody
		if err := json.Unmarshal(payload, &body); err != nil {
			responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "decode webhook body"))
			return
		}

		reference := strings.TrimSpace(body.Reference)
		if reference == "" {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeValidation, "provider reference is required"))
			return
		}

		status, err := enums.ParseTransactionStatus(body.Status)
		if err != nil || status == enums.TransactionStatusPending {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeValidation, "status must be success or failed"))
			return
		}

		var orderID uuid.UUID
		if raw := strings.TrimSpace(body.OrderID); raw != "" {
			orderID, err = uuid.Parse(raw)
			if err != nil {
				responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid order id"))
				return
			}
		}

		// The guard mark is advisory: a marked reference may belong to a
		// delivery whose transaction has not committed yet, so every callback
		// still runs through verification, which absorbs true replays.
		alreadyMarked, err := guard.CheckAndMark(ctx, reference)
		if err != nil {
			responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "check idempotency"))
			return
		}

		var raw types.JSONMap
		_ = json.Unmarshal(payload, &raw)

		result, err := svc.VerifyPayment(ctx, payments.VerifyPaymentInput{
			Provider:   provider,
			Reference:  reference,
			OrderRef:   strings.TrimSpace(body.OrderRef),
			OrderID:    orderID,
			Amount:     body.Amount,
			Currency:   strings.TrimSpace(body.Currency),
			Succeeded:  status == enums.TransactionStatusSuccess,
			RawPayload: raw,
		})
		if err != nil {
			// Only the delivery that set the mark may clear it; clearing a
			// mark owned by an in-flight first attempt would let its own
			// failure path delete a key it no longer holds.
			if !alreadyMarked {
				_ = guard.Delete(ctx, reference)
			}
			responses.WriteError(ctx, logg, w, err)
			return
		}

		if logg != nil {
			logg.Info(ctx, fmt.Sprintf("payment webhook %s processed", reference))
		}
		responses.WriteSuccess(w, map[string]any{
			"reference":         reference,
			"order_id":          result.Order.ID.String(),
			"order_status":      string(result.Order.Status),
			"payment_status":    string(result.Order.PaymentStatus),
			"already_processed": result.AlreadyProcessed,
		})
	}
}

func validateWebhookSignature(payload []byte, secret, header string) bool {
	if header == "" || secret == "" {
		return false
	}
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(payload)
	expected := hex.EncodeToString(mac.Sum(nil))
	return hmac.Equal([]byte(expected), []byte(strings.ToLower(header)))
}
