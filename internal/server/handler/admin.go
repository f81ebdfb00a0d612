package handler

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/ethereum/go-ethereum/common"

	"github.com/outcomebridge/ooadapter/internal/domain"
)

// AdminService defines the privileged operations the admin handler exposes.
type AdminService interface {
	Flag(ctx context.Context, caller common.Address, id domain.QuestionID) error
	Unflag(ctx context.Context, caller common.Address, id domain.QuestionID) error
	Pause(ctx context.Context, caller common.Address, id domain.QuestionID) error
	Unpause(ctx context.Context, caller common.Address, id domain.QuestionID) error
	EmergencyResolve(ctx context.Context, caller common.Address, id domain.QuestionID, payouts []uint64) error
	IsAdmin(principal common.Address) bool
	Rely(ctx context.Context, caller, principal common.Address) error
	Deny(ctx context.Context, caller, principal common.Address) error
	AuditTrail(ctx context.Context, opts domain.ListOpts) ([]domain.AuditEntry, error)
}

// AdminHandler serves the privileged question-management endpoints. Every
// route still re-checks authorization in the lifecycle layer; the transport
// only identifies the caller.
type AdminHandler struct {
	admin  AdminService
	logger *slog.Logger
}

// NewAdminHandler creates an AdminHandler with the given service and logger.
func NewAdminHandler(admin AdminService, logger *slog.Logger) *AdminHandler {
	return &AdminHandler{
		admin:  admin,
		logger: logHandler(logger, "admin"),
	}
}

// emergencyResolveRequest is the POST /api/questions/{id}/emergency body.
type emergencyResolveRequest struct {
	Payouts []uint64 `json:"payouts"`
}

// adminRequest is the POST /api/admins body.
type adminRequest struct {
	Address string `json:"address"`
}

// Flag marks a question for emergency resolution, starting the safety period.
// POST /api/questions/{id}/flag
func (h *AdminHandler) Flag(w http.ResponseWriter, r *http.Request) {
	h.runQuestionOp(w, r, h.admin.Flag)
}

// Unflag withdraws an emergency flag before the safety period elapses.
// POST /api/questions/{id}/unflag
func (h *AdminHandler) Unflag(w http.ResponseWriter, r *http.Request) {
	h.runQuestionOp(w, r, h.admin.Unflag)
}

// Pause blocks standard resolution of a question.
// POST /api/questions/{id}/pause
func (h *AdminHandler) Pause(w http.ResponseWriter, r *http.Request) {
	h.runQuestionOp(w, r, h.admin.Pause)
}

// Unpause lifts a pause.
// POST /api/questions/{id}/unpause
func (h *AdminHandler) Unpause(w http.ResponseWriter, r *http.Request) {
	h.runQuestionOp(w, r, h.admin.Unpause)
}

func (h *AdminHandler) runQuestionOp(
	w http.ResponseWriter,
	r *http.Request,
	op func(context.Context, common.Address, domain.QuestionID) error,
) {
	caller, ok := requireCaller(w, r)
	if !ok {
		return
	}
	id, err := questionIDParam(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid question id")
		return
	}

	if err := op(r.Context(), caller, id); err != nil {
		writeDomainError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"question_id": id.Hex()})
}

// EmergencyResolve forces a terminal payout after the safety period.
// POST /api/questions/{id}/emergency
func (h *AdminHandler) EmergencyResolve(w http.ResponseWriter, r *http.Request) {
	caller, ok := requireCaller(w, r)
	if !ok {
		return
	}
	id, err := questionIDParam(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid question id")
		return
	}

	var req emergencyResolveRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	if err := h.admin.EmergencyResolve(r.Context(), caller, id, req.Payouts); err != nil {
		writeDomainError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"question_id": id.Hex(),
		"payouts":     req.Payouts,
	})
}

// CheckAdmin reports whether an address is in the admin set.
// GET /api/admins/{address}
func (h *AdminHandler) CheckAdmin(w http.ResponseWriter, r *http.Request) {
	principal, err := parseAddressField("address", r.PathValue("address"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"address": principal.Hex(),
		"admin":   h.admin.IsAdmin(principal),
	})
}

// Rely adds an address to the admin set.
// POST /api/admins
func (h *AdminHandler) Rely(w http.ResponseWriter, r *http.Request) {
	caller, ok := requireCaller(w, r)
	if !ok {
		return
	}

	var req adminRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	principal, err := parseAddressField("address", req.Address)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	if err := h.admin.Rely(r.Context(), caller, principal); err != nil {
		writeDomainError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"address": principal.Hex(),
		"admin":   true,
	})
}

// Deny removes an address from the admin set.
// DELETE /api/admins/{address}
func (h *AdminHandler) Deny(w http.ResponseWriter, r *http.Request) {
	caller, ok := requireCaller(w, r)
	if !ok {
		return
	}
	principal, err := parseAddressField("address", r.PathValue("address"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	if err := h.admin.Deny(r.Context(), caller, principal); err != nil {
		writeDomainError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"address": principal.Hex(),
		"admin":   false,
	})
}

// AuditTrail returns recent audit entries, newest first.
// GET /api/audit?limit=50&offset=0
func (h *AdminHandler) AuditTrail(w http.ResponseWriter, r *http.Request) {
	entries, err := h.admin.AuditTrail(r.Context(), parseListOpts(r))
	if err != nil {
		writeDomainError(w, r, h.logger, err)
		return
	}
	if entries == nil {
		entries = []domain.AuditEntry{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"entries": entries})
}
