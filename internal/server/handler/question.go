package handler

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/outcomebridge/ooadapter/internal/adapter"
	"github.com/outcomebridge/ooadapter/internal/domain"
)

// QuestionService defines the methods the question handler requires from the
// service layer. It is declared locally so the handler package does not depend
// on the concrete service implementation.
type QuestionService interface {
	Initialize(ctx context.Context, caller common.Address, p adapter.InitParams) (domain.QuestionID, error)
	Update(ctx context.Context, caller common.Address, id domain.QuestionID, p adapter.UpdateParams) error
	Get(ctx context.Context, id domain.QuestionID) (domain.QuestionData, error)
	ListUnresolved(ctx context.Context, opts domain.ListOpts) ([]domain.QuestionData, error)
	Count(ctx context.Context) (int64, error)
	ReadyToResolve(ctx context.Context, id domain.QuestionID) (bool, error)
	Resolve(ctx context.Context, caller common.Address, id domain.QuestionID) (adapter.Resolution, error)
	Settle(ctx context.Context, caller common.Address, id domain.QuestionID) (adapter.Resolution, error)
	ReportPayouts(ctx context.Context, caller common.Address, id domain.QuestionID) (adapter.Resolution, error)
	ExpectedPayouts(ctx context.Context, id domain.QuestionID) ([2]uint64, error)
}

// QuestionHandler serves question lifecycle HTTP endpoints.
type QuestionHandler struct {
	questions QuestionService
	logger    *slog.Logger
}

// NewQuestionHandler creates a QuestionHandler with the given service and logger.
func NewQuestionHandler(questions QuestionService, logger *slog.Logger) *QuestionHandler {
	return &QuestionHandler{
		questions: questions,
		logger:    logHandler(logger, "question"),
	}
}

// createQuestionRequest is the POST /api/questions body. Reward and
// proposal_bond are decimal strings to avoid JSON number precision limits.
type createQuestionRequest struct {
	AncillaryData          string `json:"ancillary_data"`
	RewardToken            string `json:"reward_token"`
	Reward                 string `json:"reward"`
	ProposalBond           string `json:"proposal_bond"`
	Liveness               uint64 `json:"liveness"`
	ResolutionTime         int64  `json:"resolution_time"`
	EarlyResolutionEnabled bool   `json:"early_resolution_enabled"`
}

// updateQuestionRequest is the PUT /api/questions/{id} body. Updates are
// wholesale replacements, not merges.
type updateQuestionRequest struct {
	AncillaryData string `json:"ancillary_data"`
	RewardToken   string `json:"reward_token"`
	Reward        string `json:"reward"`
	ProposalBond  string `json:"proposal_bond"`
}

// questionResponse is the JSON view of a question record.
type questionResponse struct {
	QuestionID                   string   `json:"question_id"`
	Creator                      string   `json:"creator"`
	AncillaryData                string   `json:"ancillary_data"`
	RewardToken                  string   `json:"reward_token"`
	Reward                       string   `json:"reward"`
	ProposalBond                 string   `json:"proposal_bond"`
	Liveness                     uint64   `json:"liveness"`
	RequestTimestamp             int64    `json:"request_timestamp"`
	ResolutionTime               int64    `json:"resolution_time"`
	EarlyResolutionEnabled       bool     `json:"early_resolution_enabled"`
	Paused                       bool     `json:"paused"`
	Resolved                     bool     `json:"resolved"`
	Reset                        bool     `json:"reset"`
	SettledTime                  int64    `json:"settled_time,omitempty"`
	SettledPrice                 string   `json:"settled_price,omitempty"`
	EmergencyResolutionTimestamp int64    `json:"emergency_resolution_timestamp,omitempty"`
	Payouts                      []uint64 `json:"payouts,omitempty"`
	CreatedAt                    string   `json:"created_at,omitempty"`
	UpdatedAt                    string   `json:"updated_at,omitempty"`
}

func toQuestionResponse(q domain.QuestionData) questionResponse {
	resp := questionResponse{
		QuestionID:                   q.QuestionID.Hex(),
		Creator:                      q.Creator.Hex(),
		AncillaryData:                string(q.AncillaryData),
		RewardToken:                  q.RewardToken.Hex(),
		Liveness:                     q.Liveness,
		RequestTimestamp:             q.RequestTimestamp,
		ResolutionTime:               q.ResolutionTime,
		EarlyResolutionEnabled:       q.EarlyResolutionEnabled,
		Paused:                       q.Paused,
		Resolved:                     q.Resolved,
		Reset:                        q.Reset,
		SettledTime:                  q.SettledTime,
		EmergencyResolutionTimestamp: q.EmergencyResolutionTimestamp,
		Payouts:                      q.Payouts,
	}
	if q.Reward != nil {
		resp.Reward = q.Reward.String()
	}
	if q.ProposalBond != nil {
		resp.ProposalBond = q.ProposalBond.String()
	}
	if q.SettledPrice != nil {
		resp.SettledPrice = q.SettledPrice.String()
	}
	if !q.CreatedAt.IsZero() {
		resp.CreatedAt = q.CreatedAt.UTC().Format(time.RFC3339)
	}
	if !q.UpdatedAt.IsZero() {
		resp.UpdatedAt = q.UpdatedAt.UTC().Format(time.RFC3339)
	}
	return resp
}

// resolutionResponse is the JSON view of a resolve/settle/report outcome.
type resolutionResponse struct {
	QuestionID string   `json:"question_id"`
	Resolved   bool     `json:"resolved"`
	Reset      bool     `json:"reset"`
	Price      string   `json:"price,omitempty"`
	Payouts    []uint64 `json:"payouts,omitempty"`
}

func toResolutionResponse(id domain.QuestionID, res adapter.Resolution) resolutionResponse {
	resp := resolutionResponse{
		QuestionID: id.Hex(),
		Resolved:   res.Resolved,
		Reset:      res.Reset,
	}
	if res.Price != nil {
		resp.Price = res.Price.String()
	}
	if res.Resolved {
		resp.Payouts = res.Payouts[:]
	}
	return resp
}

// listQuestionsResponse wraps the list endpoint output with metadata.
type listQuestionsResponse struct {
	Questions []questionResponse `json:"questions"`
	Total     int64              `json:"total"`
	Limit     int                `json:"limit"`
	Offset    int                `json:"offset"`
}

// Create initializes a new question and files its first price request.
// POST /api/questions
func (h *QuestionHandler) Create(w http.ResponseWriter, r *http.Request) {
	caller, ok := requireCaller(w, r)
	if !ok {
		return
	}

	var req createQuestionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	rewardToken, err := parseAddressField("reward_token", req.RewardToken)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	reward, err := parseBigField("reward", req.Reward)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	bond, err := parseBigField("proposal_bond", req.ProposalBond)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	id, err := h.questions.Initialize(r.Context(), caller, adapter.InitParams{
		AncillaryData:          []byte(req.AncillaryData),
		RewardToken:            rewardToken,
		Reward:                 reward,
		ProposalBond:           bond,
		Liveness:               req.Liveness,
		ResolutionTime:         req.ResolutionTime,
		EarlyResolutionEnabled: req.EarlyResolutionEnabled,
	})
	if err != nil {
		writeDomainError(w, r, h.logger, err)
		return
	}

	q, err := h.questions.Get(r.Context(), id)
	if err != nil {
		// The question was created; fall back to a minimal response.
		writeJSON(w, http.StatusCreated, map[string]string{"question_id": id.Hex()})
		return
	}
	writeJSON(w, http.StatusCreated, toQuestionResponse(q))
}

// Update replaces a question's content and files a fresh price request.
// PUT /api/questions/{id}
func (h *QuestionHandler) Update(w http.ResponseWriter, r *http.Request) {
	caller, ok := requireCaller(w, r)
	if !ok {
		return
	}
	id, err := questionIDParam(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid question id")
		return
	}

	var req updateQuestionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	rewardToken, err := parseAddressField("reward_token", req.RewardToken)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	reward, err := parseBigField("reward", req.Reward)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	bond, err := parseBigField("proposal_bond", req.ProposalBond)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	if err := h.questions.Update(r.Context(), caller, id, adapter.UpdateParams{
		AncillaryData: []byte(req.AncillaryData),
		RewardToken:   rewardToken,
		Reward:        reward,
		ProposalBond:  bond,
	}); err != nil {
		writeDomainError(w, r, h.logger, err)
		return
	}

	q, err := h.questions.Get(r.Context(), id)
	if err != nil {
		writeJSON(w, http.StatusOK, map[string]string{"question_id": id.Hex()})
		return
	}
	writeJSON(w, http.StatusOK, toQuestionResponse(q))
}

// List returns unresolved questions with pagination.
// GET /api/questions?limit=50&offset=0
func (h *QuestionHandler) List(w http.ResponseWriter, r *http.Request) {
	opts := parseListOpts(r)

	questions, err := h.questions.ListUnresolved(r.Context(), opts)
	if err != nil {
		writeDomainError(w, r, h.logger, err)
		return
	}
	total, err := h.questions.Count(r.Context())
	if err != nil {
		writeDomainError(w, r, h.logger, err)
		return
	}

	out := make([]questionResponse, 0, len(questions))
	for _, q := range questions {
		out = append(out, toQuestionResponse(q))
	}
	writeJSON(w, http.StatusOK, listQuestionsResponse{
		Questions: out,
		Total:     total,
		Limit:     opts.Limit,
		Offset:    opts.Offset,
	})
}

// Get returns a single question by ID.
// GET /api/questions/{id}
func (h *QuestionHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, err := questionIDParam(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid question id")
		return
	}

	q, err := h.questions.Get(r.Context(), id)
	if err != nil {
		writeDomainError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, toQuestionResponse(q))
}

// Ready reports whether a resolution attempt would currently make progress.
// GET /api/questions/{id}/ready
func (h *QuestionHandler) Ready(w http.ResponseWriter, r *http.Request) {
	id, err := questionIDParam(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid question id")
		return
	}

	ready, err := h.questions.ReadyToResolve(r.Context(), id)
	if err != nil {
		writeDomainError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"question_id": id.Hex(),
		"ready":       ready,
	})
}

// Resolve runs the one-step resolution flow.
// POST /api/questions/{id}/resolve
func (h *QuestionHandler) Resolve(w http.ResponseWriter, r *http.Request) {
	h.runResolution(w, r, h.questions.Resolve)
}

// Settle pulls the oracle price without reporting payouts (two-step flow).
// POST /api/questions/{id}/settle
func (h *QuestionHandler) Settle(w http.ResponseWriter, r *http.Request) {
	h.runResolution(w, r, h.questions.Settle)
}

// Report reports the settled payout vector (two-step flow). Must happen in a
// later round than the settle.
// POST /api/questions/{id}/report
func (h *QuestionHandler) Report(w http.ResponseWriter, r *http.Request) {
	h.runResolution(w, r, h.questions.ReportPayouts)
}

func (h *QuestionHandler) runResolution(
	w http.ResponseWriter,
	r *http.Request,
	op func(context.Context, common.Address, domain.QuestionID) (adapter.Resolution, error),
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

	res, err := op(r.Context(), caller, id)
	if err != nil {
		writeDomainError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, toResolutionResponse(id, res))
}

// Payouts previews the payout vector the current oracle price would produce,
// without mutating any state.
// GET /api/questions/{id}/payouts
func (h *QuestionHandler) Payouts(w http.ResponseWriter, r *http.Request) {
	id, err := questionIDParam(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid question id")
		return
	}

	payouts, err := h.questions.ExpectedPayouts(r.Context(), id)
	if err != nil {
		writeDomainError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"question_id": id.Hex(),
		"payouts":     payouts[:],
	})
}
