// Package handler содержит HTTP-обработчики API сервиса стриков.
package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"slices"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/mmeshcher/streak-tracker/internal/metrics"
	"github.com/mmeshcher/streak-tracker/internal/middleware"
	"github.com/mmeshcher/streak-tracker/internal/model"
	"github.com/mmeshcher/streak-tracker/internal/profile"
	"github.com/mmeshcher/streak-tracker/internal/streak"
)

// Sessions определяет реестр трекеров, используемый HTTP-обработчиками.
type Sessions interface {
	Tracker(ctx context.Context, userID uuid.UUID) (*streak.Tracker, error)
	Release(userID uuid.UUID)
}

// Handler реализует HTTP-обработчики API сервиса стриков.
type Handler struct {
	sessions       Sessions
	logger         *zap.Logger
	authMiddleware *middleware.AuthMiddleware
	limiter        *middleware.RateLimiter
	metrics        *metrics.Metrics
}

// NewHandler создаёт новый экземпляр обработчика HTTP-запросов.
// limiter и m могут быть nil.
func NewHandler(s Sessions, logger *zap.Logger, auth *middleware.AuthMiddleware, limiter *middleware.RateLimiter, m *metrics.Metrics) *Handler {
	return &Handler{
		sessions:       s,
		logger:         logger,
		authMiddleware: auth,
		limiter:        limiter,
		metrics:        m,
	}
}

type statusResponse struct {
	Status             *model.StreakStatus `json:"status"`
	Loading            bool                `json:"loading"`
	Error              string              `json:"error,omitempty"`
	TimeRemainingMs    *int64              `json:"time_remaining_ms"`
	TimeRemainingLabel string              `json:"time_remaining_label,omitempty"`
	NextMilestone      *int                `json:"next_milestone"`
	MilestoneProgress  float64             `json:"milestone_progress"`
	CanAffordFreeze    bool                `json:"can_afford_freeze"`
	FreezeCost         int                 `json:"freeze_cost"`
}

type operationResponse struct {
	Success bool   `json:"success"`
	Error   string `json:"error,omitempty"`
}

type milestoneResponse struct {
	model.Milestone
	Achieved bool `json:"achieved"`
	Next     bool `json:"next"`
}

// GetStatus возвращает текущее состояние стрика пользователя.
func (h *Handler) GetStatus(w http.ResponseWriter, r *http.Request) {
	tr, ok := h.tracker(w, r)
	if !ok {
		return
	}

	h.writeJSON(w, http.StatusOK, buildStatus(tr))
}

// Refresh заново запрашивает статус стрика и возвращает его.
func (h *Handler) Refresh(w http.ResponseWriter, r *http.Request) {
	tr, ok := h.tracker(w, r)
	if !ok {
		return
	}

	tr.Refetch(r.Context())

	h.writeJSON(w, http.StatusOK, buildStatus(tr))
}

// PurchaseFreeze покупает заморозку стрика за токены.
func (h *Handler) PurchaseFreeze(w http.ResponseWriter, r *http.Request) {
	tr, ok := h.tracker(w, r)
	if !ok {
		return
	}

	h.writeOperation(w, r, "purchase freeze", tr.PurchaseFreeze(r.Context()))
}

// UseFreeze тратит заморозку, чтобы сохранить стрик.
func (h *Handler) UseFreeze(w http.ResponseWriter, r *http.Request) {
	tr, ok := h.tracker(w, r)
	if !ok {
		return
	}

	h.writeOperation(w, r, "use freeze", tr.UseFreeze(r.Context()))
}

// GetMilestones возвращает таблицу вех с отметками о достижении.
func (h *Handler) GetMilestones(w http.ResponseWriter, r *http.Request) {
	tr, ok := h.tracker(w, r)
	if !ok {
		return
	}

	var achieved []int
	if st := tr.Status(); st != nil {
		achieved = st.MilestonesAchieved
	}
	next, hasNext := tr.NextMilestone()

	table := model.Milestones()
	resp := make([]milestoneResponse, 0, len(table))
	for _, m := range table {
		resp = append(resp, milestoneResponse{
			Milestone: m,
			Achieved:  slices.Contains(achieved, m.Days),
			Next:      hasNext && m.Days == next,
		})
	}

	h.writeJSON(w, http.StatusOK, resp)
}

// SignIn открывает сессию пользователя и выставляет cookie авторизации,
// чтобы браузер мог обращаться к API без заголовка Authorization.
func (h *Handler) SignIn(w http.ResponseWriter, r *http.Request) {
	tr, ok := h.tracker(w, r)
	if !ok {
		return
	}

	userID, _ := middleware.GetUserIDFromContext(r.Context())
	h.authMiddleware.SetAuthCookie(w, userID)
	h.writeJSON(w, http.StatusOK, buildStatus(tr))
}

// SignOut завершает сессию пользователя и удаляет cookie авторизации.
func (h *Handler) SignOut(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.GetUserIDFromContext(r.Context())
	if !ok {
		http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
		return
	}

	h.sessions.Release(userID)
	h.authMiddleware.ClearAuthCookie(w)
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) tracker(w http.ResponseWriter, r *http.Request) (*streak.Tracker, bool) {
	userID, ok := middleware.GetUserIDFromContext(r.Context())
	if !ok {
		http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
		return nil, false
	}

	tr, err := h.sessions.Tracker(r.Context(), userID)
	if err != nil {
		if errors.Is(err, profile.ErrUserNotFound) {
			http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
			return nil, false
		}
		h.logger.Error("start streak session error", zap.Error(err), zap.String("userID", userID.String()))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return nil, false
	}

	return tr, true
}

func buildStatus(tr *streak.Tracker) statusResponse {
	st := tr.State()

	resp := statusResponse{
		Status:            st.Status,
		Loading:           st.Loading,
		MilestoneProgress: tr.MilestoneProgress(),
		CanAffordFreeze:   tr.CanAffordFreeze(),
		FreezeCost:        model.FreezeCost,
	}
	if st.Err != nil {
		resp.Error = st.Err.Error()
	}

	if d, ok := tr.TimeRemaining(); ok {
		ms := d.Milliseconds()
		resp.TimeRemainingMs = &ms
		resp.TimeRemainingLabel = streak.FormatRemaining(d)
	}

	if next, ok := tr.NextMilestone(); ok {
		resp.NextMilestone = &next
	}

	return resp
}

func (h *Handler) writeOperation(w http.ResponseWriter, r *http.Request, op string, err error) {
	if err == nil {
		h.writeJSON(w, http.StatusOK, operationResponse{Success: true})
		return
	}

	status := operationStatus(err)
	if status == http.StatusInternalServerError {
		userID, _ := middleware.GetUserIDFromContext(r.Context())
		h.logger.Error(op+" error", zap.Error(err), zap.String("userID", userID.String()))
	}

	h.writeJSON(w, status, operationResponse{Success: false, Error: streak.UserMessage(err)})
}

func operationStatus(err error) int {
	switch {
	case errors.Is(err, streak.ErrNotAuthenticated):
		return http.StatusUnauthorized
	case errors.Is(err, streak.ErrInsufficientFunds):
		return http.StatusPaymentRequired
	case errors.Is(err, streak.ErrNoFreezes), errors.Is(err, streak.ErrConflict):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		h.logger.Error("encode response error", zap.Error(err))
	}
}
