package http

import (
	"encoding/json"
	"net/http"

	"google.golang.org/grpc/codes"

	"crowdtest/internal/fault"
	"crowdtest/internal/model"
	"crowdtest/internal/service"
)

const actorHeader = "X-Actor-ID"

type Handler struct {
	escrow   service.EscrowService
	wallets  service.WalletService
	missions service.MissionService
}

func NewHandler(escrow service.EscrowService, wallets service.WalletService, missions service.MissionService) *Handler {
	return &Handler{escrow: escrow, wallets: wallets, missions: missions}
}

func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /health", h.Health)

	mux.HandleFunc("POST /escrow/deposit", h.Deposit)
	mux.HandleFunc("POST /escrow/payout", h.Payout)
	mux.HandleFunc("POST /escrow/refund", h.Refund)
	mux.HandleFunc("GET /escrow/balance", h.EscrowBalance)

	mux.HandleFunc("POST /wallet/charge", h.Charge)
	mux.HandleFunc("GET /wallet/balance", h.Balance)
	mux.HandleFunc("POST /wallet/validate", h.Validate)
	mux.HandleFunc("POST /wallet/withdrawals", h.RequestWithdrawal)
	mux.HandleFunc("POST /wallet/withdrawals/process", h.ProcessWithdrawal)
	mux.HandleFunc("POST /wallet/adjust", h.Adjust)

	mux.HandleFunc("POST /users/suspend", h.Suspend)

	mux.HandleFunc("POST /missions", h.CreateMission)
	mux.HandleFunc("POST /missions/{id}/submit", h.SubmitMission)
	mux.HandleFunc("POST /missions/review", h.ReviewMission)
	mux.HandleFunc("POST /missions/{id}/close", h.CloseMission)
	mux.HandleFunc("DELETE /missions/{id}", h.DeleteMission)
}

func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("OK"))
}

func (h *Handler) Deposit(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.actor(w, r)
	if !ok {
		return
	}
	var req model.DepositRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.respondError(w, http.StatusBadRequest, "invalid_json")
		return
	}
	res, err := h.escrow.Deposit(r.Context(), actor, req)
	if err != nil {
		h.respondFault(w, err)
		return
	}
	h.respondJSON(w, http.StatusCreated, res)
}

func (h *Handler) Payout(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.actor(w, r)
	if !ok {
		return
	}
	var req model.PayoutRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.respondError(w, http.StatusBadRequest, "invalid_json")
		return
	}
	res, err := h.escrow.Payout(r.Context(), actor, req)
	if err != nil {
		h.respondFault(w, err)
		return
	}
	h.respondJSON(w, http.StatusOK, res)
}

func (h *Handler) Refund(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.actor(w, r)
	if !ok {
		return
	}
	var req struct {
		AppID string `json:"app_id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.respondError(w, http.StatusBadRequest, "invalid_json")
		return
	}
	res, err := h.escrow.Refund(r.Context(), actor, req.AppID)
	if err != nil {
		h.respondFault(w, err)
		return
	}
	h.respondJSON(w, http.StatusOK, res)
}

func (h *Handler) EscrowBalance(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.actor(w, r)
	if !ok {
		return
	}
	appID := r.URL.Query().Get("app_id")
	if appID == "" {
		h.respondError(w, http.StatusBadRequest, "missing_app_id")
		return
	}
	res, err := h.escrow.EscrowBalance(r.Context(), actor, appID)
	if err != nil {
		h.respondFault(w, err)
		return
	}
	h.respondJSON(w, http.StatusOK, res)
}

func (h *Handler) Charge(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.actor(w, r)
	if !ok {
		return
	}
	var req model.ChargeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.respondError(w, http.StatusBadRequest, "invalid_json")
		return
	}
	res, err := h.wallets.ChargeWallet(r.Context(), actor, req)
	if err != nil {
		h.respondFault(w, err)
		return
	}
	h.respondJSON(w, http.StatusOK, res)
}

func (h *Handler) Balance(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.actor(w, r)
	if !ok {
		return
	}
	accountID := r.URL.Query().Get("account_id")
	if accountID == "" {
		accountID = actor
	}
	balance, err := h.wallets.Balance(r.Context(), actor, accountID)
	if err != nil {
		h.respondFault(w, err)
		return
	}
	h.respondJSON(w, http.StatusOK, map[string]int64{"balance": balance})
}

func (h *Handler) Validate(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.actor(w, r)
	if !ok {
		return
	}
	var req model.ValidateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.respondError(w, http.StatusBadRequest, "invalid_json")
		return
	}
	res, err := h.wallets.ValidateTransaction(r.Context(), actor, req)
	if err != nil {
		h.respondFault(w, err)
		return
	}
	h.respondJSON(w, http.StatusOK, res)
}

func (h *Handler) RequestWithdrawal(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.actor(w, r)
	if !ok {
		return
	}
	var req model.WithdrawalRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.respondError(w, http.StatusBadRequest, "invalid_json")
		return
	}
	res, err := h.wallets.RequestWithdrawal(r.Context(), actor, req)
	if err != nil {
		h.respondFault(w, err)
		return
	}
	h.respondJSON(w, http.StatusCreated, res)
}

func (h *Handler) ProcessWithdrawal(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.actor(w, r)
	if !ok {
		return
	}
	var dec model.WithdrawalDecision
	if err := json.NewDecoder(r.Body).Decode(&dec); err != nil {
		h.respondError(w, http.StatusBadRequest, "invalid_json")
		return
	}
	if err := h.wallets.ProcessWithdrawal(r.Context(), actor, dec); err != nil {
		h.respondFault(w, err)
		return
	}
	h.respondJSON(w, http.StatusOK, map[string]string{"status": "processed"})
}

func (h *Handler) Adjust(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.actor(w, r)
	if !ok {
		return
	}
	var req model.AdjustRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.respondError(w, http.StatusBadRequest, "invalid_json")
		return
	}
	res, err := h.wallets.AdjustBalance(r.Context(), actor, req)
	if err != nil {
		h.respondFault(w, err)
		return
	}
	h.respondJSON(w, http.StatusOK, res)
}

func (h *Handler) Suspend(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.actor(w, r)
	if !ok {
		return
	}
	var req model.SuspendRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.respondError(w, http.StatusBadRequest, "invalid_json")
		return
	}
	if err := h.wallets.SuspendUser(r.Context(), actor, req); err != nil {
		h.respondFault(w, err)
		return
	}
	h.respondJSON(w, http.StatusOK, map[string]string{"status": "updated"})
}

func (h *Handler) CreateMission(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.actor(w, r)
	if !ok {
		return
	}
	var m model.Mission
	if err := json.NewDecoder(r.Body).Decode(&m); err != nil {
		h.respondError(w, http.StatusBadRequest, "invalid_json")
		return
	}
	res, err := h.missions.Create(r.Context(), actor, m)
	if err != nil {
		h.respondFault(w, err)
		return
	}
	h.respondJSON(w, http.StatusCreated, res)
}

func (h *Handler) SubmitMission(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.actor(w, r)
	if !ok {
		return
	}
	res, err := h.missions.Submit(r.Context(), actor, r.PathValue("id"))
	if err != nil {
		h.respondFault(w, err)
		return
	}
	h.respondJSON(w, http.StatusOK, res)
}

func (h *Handler) ReviewMission(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.actor(w, r)
	if !ok {
		return
	}
	var req model.ReviewRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.respondError(w, http.StatusBadRequest, "invalid_json")
		return
	}
	res, err := h.missions.Review(r.Context(), actor, req)
	if err != nil {
		h.respondFault(w, err)
		return
	}
	h.respondJSON(w, http.StatusOK, res)
}

func (h *Handler) CloseMission(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.actor(w, r)
	if !ok {
		return
	}
	var req struct {
		Reason string `json:"reason"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.respondError(w, http.StatusBadRequest, "invalid_json")
		return
	}
	res, err := h.missions.Close(r.Context(), actor, r.PathValue("id"), req.Reason)
	if err != nil {
		h.respondFault(w, err)
		return
	}
	h.respondJSON(w, http.StatusOK, res)
}

func (h *Handler) DeleteMission(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.actor(w, r)
	if !ok {
		return
	}
	if err := h.missions.Delete(r.Context(), actor, r.PathValue("id")); err != nil {
		h.respondFault(w, err)
		return
	}
	h.respondJSON(w, http.StatusNoContent, nil)
}

// actor reads the authenticated caller id injected by the gateway.
func (h *Handler) actor(w http.ResponseWriter, r *http.Request) (string, bool) {
	actor := r.Header.Get(actorHeader)
	if actor == "" {
		h.respondError(w, http.StatusUnauthorized, "missing_actor")
		return "", false
	}
	return actor, true
}

func (h *Handler) respondFault(w http.ResponseWriter, err error) {
	h.respondError(w, statusFromCode(fault.CodeOf(err)), fault.MessageOf(err))
}

func statusFromCode(code codes.Code) int {
	switch code {
	case codes.Unauthenticated:
		return http.StatusUnauthorized
	case codes.PermissionDenied:
		return http.StatusForbidden
	case codes.InvalidArgument, codes.FailedPrecondition:
		return http.StatusBadRequest
	case codes.NotFound:
		return http.StatusNotFound
	case codes.AlreadyExists:
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

func (h *Handler) respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data != nil {
		_ = json.NewEncoder(w).Encode(data)
	}
}

func (h *Handler) respondError(w http.ResponseWriter, status int, message string) {
	h.respondJSON(w, status, map[string]string{"error": message})
}
