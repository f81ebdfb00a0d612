package handler

import (
	"encoding/json"
	"errors"
	"log/slog"
	"math/big"
	"net/http"
	"strconv"

	"github.com/ethereum/go-ethereum/common"

	"github.com/outcomebridge/ooadapter/internal/domain"
	"github.com/outcomebridge/ooadapter/internal/server/middleware"
)

// writeJSON marshals v as JSON and writes it to the response with the given
// HTTP status code. If marshaling fails, it falls back to a plain-text 500.
func writeJSON(w http.ResponseWriter, status int, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		http.Error(w, `{"error":"internal server error"}`, http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	w.Write(data)
}

// writeError sends a JSON-formatted error response.
func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// writeDomainError maps a lifecycle error to an HTTP status and writes it.
// Unrecognized errors are logged and masked as a generic 500.
func writeDomainError(w http.ResponseWriter, r *http.Request, logger *slog.Logger, err error) {
	if status, ok := statusForError(err); ok {
		writeError(w, status, err.Error())
		return
	}
	logger.ErrorContext(r.Context(), "handler: request failed",
		slog.String("path", r.URL.Path),
		slog.String("error", err.Error()),
	)
	writeError(w, http.StatusInternalServerError, "internal server error")
}

// statusForError classifies the lifecycle error set into HTTP statuses.
// Returns ok=false for errors that should not be surfaced verbatim.
func statusForError(err error) (int, bool) {
	switch {
	case errors.Is(err, domain.ErrNotFound),
		errors.Is(err, domain.ErrNotInitialized):
		return http.StatusNotFound, true

	case errors.Is(err, domain.ErrInvalidAncillaryData),
		errors.Is(err, domain.ErrInvalidPayouts),
		errors.Is(err, domain.ErrUnsupportedToken):
		return http.StatusBadRequest, true

	case errors.Is(err, domain.ErrNotAuthorized),
		errors.Is(err, domain.ErrNotOracle):
		return http.StatusForbidden, true

	case errors.Is(err, domain.ErrLockHeld),
		errors.Is(err, domain.ErrReentrancy):
		return http.StatusLocked, true

	case errors.Is(err, domain.ErrAlreadyExists),
		errors.Is(err, domain.ErrAlreadyInitialized),
		errors.Is(err, domain.ErrAlreadyResolved),
		errors.Is(err, domain.ErrAlreadySettled),
		errors.Is(err, domain.ErrAlreadyFlagged),
		errors.Is(err, domain.ErrNotFlagged),
		errors.Is(err, domain.ErrPaused),
		errors.Is(err, domain.ErrNotPaused),
		errors.Is(err, domain.ErrNotReadyToResolve),
		errors.Is(err, domain.ErrPriceNotAvailable),
		errors.Is(err, domain.ErrInvalidOOPrice),
		errors.Is(err, domain.ErrSameRoundReport),
		errors.Is(err, domain.ErrSafetyPeriodNotPassed),
		errors.Is(err, domain.ErrSafetyPeriodPassed):
		return http.StatusConflict, true
	}
	return 0, false
}

// parseListOpts extracts standard pagination parameters from the query string.
// Defaults: limit=50 (max 500), offset=0.
func parseListOpts(r *http.Request) domain.ListOpts {
	q := r.URL.Query()

	limit := 50
	if v := q.Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			limit = n
		}
	}
	if limit > 500 {
		limit = 500
	}

	offset := 0
	if v := q.Get("offset"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= 0 {
			offset = n
		}
	}

	return domain.ListOpts{
		Limit:  limit,
		Offset: offset,
	}
}

// questionIDParam extracts and parses the {id} path parameter.
func questionIDParam(r *http.Request) (domain.QuestionID, error) {
	return domain.ParseQuestionID(r.PathValue("id"))
}

// requireCaller returns the authenticated caller principal for mutating
// endpoints. Writes a 400 and returns ok=false when the request carries no
// valid principal.
func requireCaller(w http.ResponseWriter, r *http.Request) (common.Address, bool) {
	caller, ok := middleware.CallerFrom(r.Context())
	if !ok {
		writeError(w, http.StatusBadRequest, "missing or invalid "+middleware.CallerHeader+" header")
		return common.Address{}, false
	}
	return caller, true
}

// parseBigField parses a decimal string into a big.Int. Empty means zero.
func parseBigField(field, v string) (*big.Int, error) {
	if v == "" {
		return new(big.Int), nil
	}
	n, ok := new(big.Int).SetString(v, 10)
	if !ok || n.Sign() < 0 {
		return nil, errors.New("invalid " + field + ": expected non-negative decimal string")
	}
	return n, nil
}

// parseAddressField parses a hex address field, rejecting malformed input.
func parseAddressField(field, v string) (common.Address, error) {
	if !common.IsHexAddress(v) {
		return common.Address{}, errors.New("invalid " + field + ": expected 0x-prefixed address")
	}
	return common.HexToAddress(v), nil
}

// logHandler is a convenience to attach slog fields in handler code.
func logHandler(logger *slog.Logger, handler string) *slog.Logger {
	return logger.With(slog.String("handler", handler))
}
