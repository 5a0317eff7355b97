package controllers

import (
	"net/http"

	"github.com/adeyemiloye/chowhub-backend/api/responses"
	"github.com/adeyemiloye/chowhub-backend/internal/reconcile"
	"github.com/adeyemiloye/chowhub-backend/pkg/logger"
)

// AdminHealthSnapshot reports the consistency counters the reconciliation
// loop maintains: orders whose ledger and payment status disagree, stale
// queued notifications, and unprocessed successful transactions.
func AdminHealthSnapshot(svc reconcile.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		snapshot, err := svc.Snapshot(r.Context())
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, snapshot)
	}
}

// AdminReconcileNow triggers one reconciliation batch outside the cron
// schedule. Useful when an operator is staring at a stuck order.
func AdminReconcileNow(svc reconcile.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		result, err := svc.ReconcileBatch(r.Context())
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, result)
	}
}
