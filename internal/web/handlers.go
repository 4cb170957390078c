// Package web is the HTTP command and report surface (§6): a chi router
// mounting the journal-entry, period-close, and inventory write commands
// under /companies/{companyId}, plus the read-only /journal-entries and
// /reports/* endpoints and the POST /reports/rebuild projection rebuild.
package web

import (
	"encoding/json"
	"io"
	"net/http"
	"strconv"

	"ledgercore/internal/apperr"
	"ledgercore/internal/idempotency"
	"ledgercore/internal/inventory"
	"ledgercore/internal/ledger"
	"ledgercore/internal/reports"

	"github.com/go-chi/chi/v5"
)

// Handler wires every command/report dependency to the router.
type Handler struct {
	ledgerCmds   *ledger.Commands
	ledgerReader *ledger.Reader
	invCmds      *inventory.Commands
	reports      *reports.Reports
	jwtSecret    string
	router       chi.Router
}

// NewHandler builds the router. jwtSecret verifies the tenant bearer token; allowedOrigins is the comma-separated CORS allowlist (empty
// disables CORS, opt-in only).
func NewHandler(ledgerCmds *ledger.Commands, ledgerReader *ledger.Reader, invCmds *inventory.Commands, rep *reports.Reports, allowedOrigins, jwtSecret string) http.Handler {
	h := &Handler{ledgerCmds: ledgerCmds, ledgerReader: ledgerReader, invCmds: invCmds, reports: rep, jwtSecret: jwtSecret}

	r := chi.NewRouter()
	r.Use(RequestID)
	r.Use(Logger)
	r.Use(Recoverer)
	r.Use(CORS(allowedOrigins))

	r.Get("/health", h.health)

	r.Route("/companies/{companyId}", func(r chi.Router) {
		r.Use(RequireAuth(h.jwtSecret))
		r.Use(requireTenantMatch)
		r.Use(RequestBodyLimit(1 << 20))

		r.Group(func(r chi.Router) {
			r.Use(requireIdempotencyKey)
			r.Post("/journal-entries", h.createJournalEntry)
			r.Post("/journal-entries/{id}/reverse", h.reverseJournalEntry)
			r.Post("/journal-entries/{id}/void", h.voidJournalEntry)
			r.Post("/journal-entries/{id}/adjust", h.adjustJournalEntry)
			r.Post("/period-close", h.periodClose)
			r.Post("/inventory/opening-balance", h.openingBalance)
			r.Post("/inventory/adjustments", h.inventoryAdjustment)
		})

		r.Get("/journal-entries", h.listJournalEntries)
		r.Get("/journal-entries/{id}", h.getJournalEntry)

		r.Get("/reports/trial-balance", h.trialBalance)
		r.Get("/reports/balance-sheet", h.balanceSheet)
		r.Get("/reports/profit-and-loss", h.profitAndLoss)
		r.Get("/reports/cashflow", h.cashflow)
		r.Get("/reports/inventory-valuation", h.inventoryValuation)
		r.Get("/reports/inventory-movement", h.inventoryMovement)
		r.Get("/reports/cogs", h.cogs)
		r.Get("/reports/account-transactions/{accountId}", h.accountTransactions)
		r.Post("/reports/rebuild", h.rebuildProjections)
	})

	h.router = r
	return r
}

func (h *Handler) health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// companyIDParam extracts and validates the {companyId} path param.
func companyIDParam(r *http.Request) (int, error) {
	raw := chi.URLParam(r, "companyId")
	id, err := strconv.Atoi(raw)
	if err != nil || id <= 0 {
		return 0, apperr.New(apperr.Validation, "invalid companyId path parameter %q", raw)
	}
	return id, nil
}

func idParam(r *http.Request, name string) (int, error) {
	raw := chi.URLParam(r, name)
	id, err := strconv.Atoi(raw)
	if err != nil || id <= 0 {
		return 0, apperr.New(apperr.Validation, "invalid %s path parameter %q", name, raw)
	}
	return id, nil
}

// requireIdempotencyKey enforces §6's "Idempotency-Key mandatory on all
// write endpoints".
func requireIdempotencyKey(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Idempotency-Key") == "" {
			writeError(w, r, apperr.New(apperr.Validation, "Idempotency-Key header is required"))
			return
		}
		next.ServeHTTP(w, r)
	})
}

// readBody buffers the request body and returns it alongside its canonical
// fingerprint, used both to decode the wire struct and to detect a replayed
// Idempotency-Key being reused with a different payload (§4.6).
func readBody(r *http.Request) ([]byte, string, error) {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		return nil, "", apperr.Wrap(apperr.Validation, err, "failed to read request body")
	}
	fingerprint, err := idempotency.Fingerprint(body)
	if err != nil {
		return nil, "", err
	}
	return body, fingerprint, nil
}

func decodeBody(body []byte, v any) error {
	if len(body) == 0 {
		return nil
	}
	if err := json.Unmarshal(body, v); err != nil {
		return apperr.Wrap(apperr.Validation, err, "invalid JSON body")
	}
	return nil
}

// runCommand executes fn (a *Commands method closed over its typed input),
// writing its json.RawMessage result verbatim — 201 on first execution, 200
// on an idempotent replay.
func runCommand(w http.ResponseWriter, r *http.Request, fn func() (json.RawMessage, bool, error)) {
	body, replay, err := fn()
	if err != nil {
		writeError(w, r, err)
		return
	}
	status := http.StatusCreated
	if replay {
		status = http.StatusOK
	}
	writeRaw(w, status, body)
}

func (h *Handler) createJournalEntry(w http.ResponseWriter, r *http.Request) {
	companyID, err := companyIDParam(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	body, fingerprint, err := readBody(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	var wire createManualWire
	if err := decodeBody(body, &wire); err != nil {
		writeError(w, r, err)
		return
	}
	claims := authFromContext(r.Context())
	wire.CreatedByUserID = userIDOverride(wire.CreatedByUserID, claims)
	key := r.Header.Get("Idempotency-Key")

	runCommand(w, r, func() (json.RawMessage, bool, error) {
		return h.ledgerCmds.CreateManual(r.Context(), companyID, key, fingerprint, wire.toInput())
	})
}

func (h *Handler) reverseJournalEntry(w http.ResponseWriter, r *http.Request) {
	companyID, err := companyIDParam(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	originalID, err := idParam(r, "id")
	if err != nil {
		writeError(w, r, err)
		return
	}
	body, fingerprint, err := readBody(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	var wire reverseWire
	if err := decodeBody(body, &wire); err != nil {
		writeError(w, r, err)
		return
	}
	claims := authFromContext(r.Context())
	key := r.Header.Get("Idempotency-Key")

	runCommand(w, r, func() (json.RawMessage, bool, error) {
		return h.ledgerCmds.Reverse(r.Context(), companyID, key, fingerprint, wire.toInput(originalID, userIDPtr(claims)))
	})
}

func (h *Handler) voidJournalEntry(w http.ResponseWriter, r *http.Request) {
	companyID, err := companyIDParam(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	originalID, err := idParam(r, "id")
	if err != nil {
		writeError(w, r, err)
		return
	}
	body, fingerprint, err := readBody(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	var wire voidWire
	if err := decodeBody(body, &wire); err != nil {
		writeError(w, r, err)
		return
	}
	claims := authFromContext(r.Context())
	key := r.Header.Get("Idempotency-Key")

	runCommand(w, r, func() (json.RawMessage, bool, error) {
		return h.ledgerCmds.Void(r.Context(), companyID, key, fingerprint, wire.toInput(originalID, userIDPtr(claims)))
	})
}

func (h *Handler) adjustJournalEntry(w http.ResponseWriter, r *http.Request) {
	companyID, err := companyIDParam(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	originalID, err := idParam(r, "id")
	if err != nil {
		writeError(w, r, err)
		return
	}
	body, fingerprint, err := readBody(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	var wire adjustWire
	if err := decodeBody(body, &wire); err != nil {
		writeError(w, r, err)
		return
	}
	claims := authFromContext(r.Context())
	key := r.Header.Get("Idempotency-Key")

	runCommand(w, r, func() (json.RawMessage, bool, error) {
		return h.ledgerCmds.Adjust(r.Context(), companyID, key, fingerprint, wire.toInput(originalID, userIDPtr(claims)))
	})
}

func (h *Handler) periodClose(w http.ResponseWriter, r *http.Request) {
	companyID, err := companyIDParam(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	from, to := r.URL.Query().Get("from"), r.URL.Query().Get("to")
	fromT, err := parseRequiredDate(from)
	if err != nil {
		writeError(w, r, err)
		return
	}
	toT, err := parseRequiredDate(to)
	if err != nil {
		writeError(w, r, err)
		return
	}
	_, fingerprint, err := readBody(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	claims := authFromContext(r.Context())
	key := r.Header.Get("Idempotency-Key")

	runCommand(w, r, func() (json.RawMessage, bool, error) {
		return h.ledgerCmds.PeriodClose(r.Context(), companyID, key, fingerprint, ledger.PeriodCloseInput{
			From: fromT, To: toT, CreatedByUserID: userIDPtr(claims),
		})
	})
}

func (h *Handler) openingBalance(w http.ResponseWriter, r *http.Request) {
	companyID, err := companyIDParam(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	body, fingerprint, err := readBody(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	var wire openingBalanceWire
	if err := decodeBody(body, &wire); err != nil {
		writeError(w, r, err)
		return
	}
	claims := authFromContext(r.Context())
	key := r.Header.Get("Idempotency-Key")

	runCommand(w, r, func() (json.RawMessage, bool, error) {
		return h.invCmds.OpeningBalance(r.Context(), companyID, key, fingerprint, wire.toInput(userIDPtr(claims)))
	})
}

func (h *Handler) inventoryAdjustment(w http.ResponseWriter, r *http.Request) {
	companyID, err := companyIDParam(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	body, fingerprint, err := readBody(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	var wire inventoryAdjustmentWire
	if err := decodeBody(body, &wire); err != nil {
		writeError(w, r, err)
		return
	}
	claims := authFromContext(r.Context())
	key := r.Header.Get("Idempotency-Key")

	runCommand(w, r, func() (json.RawMessage, bool, error) {
		return h.invCmds.Adjustment(r.Context(), companyID, key, fingerprint, wire.toInput(userIDPtr(claims)))
	})
}

func (h *Handler) listJournalEntries(w http.ResponseWriter, r *http.Request) {
	companyID, err := companyIDParam(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	from, to := queryDateRange(r)
	take, _ := strconv.Atoi(r.URL.Query().Get("take"))

	list, err := h.ledgerReader.List(r.Context(), companyID, from, to, take)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, list)
}

func (h *Handler) getJournalEntry(w http.ResponseWriter, r *http.Request) {
	companyID, err := companyIDParam(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	id, err := idParam(r, "id")
	if err != nil {
		writeError(w, r, err)
		return
	}
	detail, err := h.ledgerReader.Get(r.Context(), companyID, id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, detail)
}

func (h *Handler) trialBalance(w http.ResponseWriter, r *http.Request) {
	companyID, err := companyIDParam(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	from, to := queryDateRange(r)
	rep, err := h.reports.GetTrialBalance(r.Context(), companyID, from, to)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, rep)
}

func (h *Handler) balanceSheet(w http.ResponseWriter, r *http.Request) {
	companyID, err := companyIDParam(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	_, to := queryDateRange(r)
	rep, err := h.reports.GetBalanceSheet(r.Context(), companyID, to)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, rep)
}

func (h *Handler) profitAndLoss(w http.ResponseWriter, r *http.Request) {
	companyID, err := companyIDParam(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	from, to := queryDateRange(r)
	rep, err := h.reports.GetProfitAndLoss(r.Context(), companyID, from, to)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, rep)
}

func (h *Handler) cashflow(w http.ResponseWriter, r *http.Request) {
	companyID, err := companyIDParam(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	from, to := queryDateRange(r)
	rep, err := h.reports.GetCashflow(r.Context(), companyID, from, to)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, rep)
}

func (h *Handler) inventoryValuation(w http.ResponseWriter, r *http.Request) {
	companyID, err := companyIDParam(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	_, to := queryDateRange(r)
	rep, err := h.reports.GetInventoryValuation(r.Context(), companyID, to)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, rep)
}

func (h *Handler) inventoryMovement(w http.ResponseWriter, r *http.Request) {
	companyID, err := companyIDParam(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	from, to := queryDateRange(r)
	rep, err := h.reports.GetInventoryMovement(r.Context(), companyID, from, to)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, rep)
}

func (h *Handler) cogs(w http.ResponseWriter, r *http.Request) {
	companyID, err := companyIDParam(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	from, to := queryDateRange(r)
	rep, err := h.reports.GetCogsByItem(r.Context(), companyID, from, to)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, rep)
}

func (h *Handler) accountTransactions(w http.ResponseWriter, r *http.Request) {
	companyID, err := companyIDParam(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	accountID, err := idParam(r, "accountId")
	if err != nil {
		writeError(w, r, err)
		return
	}
	from, to := queryDateRange(r)
	rep, err := h.reports.GetAccountTransactions(r.Context(), companyID, accountID, from, to)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, rep)
}

func (h *Handler) rebuildProjections(w http.ResponseWriter, r *http.Request) {
	companyID, err := companyIDParam(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	from, to := queryDateRange(r)
	result, err := h.reports.RebuildProjections(r.Context(), companyID, from, to)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// userIDPtr surfaces the authenticated caller's UserID, or nil for a
// system/service caller whose token carries no userId claim.
func userIDPtr(claims *AuthClaims) *int {
	if claims == nil {
		return nil
	}
	return claims.UserID
}

// userIDOverride keeps a body-supplied createdByUserId only as a fallback
// when the token itself carries none; the authenticated caller's identity
// always wins when present.
func userIDOverride(bodyValue *int, claims *AuthClaims) *int {
	if claims != nil && claims.UserID != nil {
		return claims.UserID
	}
	return bodyValue
}

