package http

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"daily-leaderboard-service/internal/app"
	"daily-leaderboard-service/internal/domain"
	"github.com/go-playground/validator/v10"
	"github.com/gorilla/mux"
	"go.uber.org/zap"
)

const maxLeaderboardLimit = 1000

var (
	validate = validator.New()

	errLimitRange = errors.New("limit must be an integer between 0 and 1000")
)

// APIHandler serves the REST surface: event ingestion and leaderboard reads.
type APIHandler struct {
	service *app.LeaderboardService
	logger  *zap.Logger
}

func NewAPIHandler(service *app.LeaderboardService, logger *zap.Logger) *APIHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &APIHandler{service: service, logger: logger}
}

type eventRequest struct {
	EventID    string     `json:"event_id" validate:"omitempty,max=128"`
	UserID     string     `json:"user_id" validate:"required,max=128"`
	QuestionID string     `json:"question_id" validate:"required,max=128"`
	IsCorrect  bool       `json:"is_correct"`
	AnsweredAt *time.Time `json:"answered_at" validate:"required"`
}

type userDailyResponse struct {
	Date      domain.DayKey            `json:"date"`
	Aggregate domain.DailyAggregate    `json:"aggregate"`
	Standing  *domain.LeaderboardEntry `json:"standing,omitempty"`
}

// NewRouter mounts the API, the websocket endpoint and the health probe.
func NewRouter(api *APIHandler, ws *WSHandler) *mux.Router {
	r := mux.NewRouter()
	r.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("ok"))
	}).Methods(http.MethodGet)
	if ws != nil {
		r.HandleFunc("/ws", ws.ServeWS)
	}

	v1 := r.PathPrefix("/api/v1").Subrouter()
	v1.HandleFunc("/events", api.PostEvent).Methods(http.MethodPost)
	v1.HandleFunc("/leaderboard/daily", api.GetDailyLeaderboard).Methods(http.MethodGet)
	v1.HandleFunc("/users/{userID}/daily", api.GetUserDaily).Methods(http.MethodGet)
	v1.HandleFunc("/reconcile", api.ListRejected).Methods(http.MethodGet)
	return r
}

func (h *APIHandler) PostEvent(w http.ResponseWriter, r *http.Request) {
	var req eventRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json body")
		return
	}
	if err := validate.Struct(req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	res, err := h.service.ApplyEvent(r.Context(), domain.AnswerEvent{
		EventID:    req.EventID,
		UserID:     req.UserID,
		QuestionID: req.QuestionID,
		IsCorrect:  req.IsCorrect,
		AnsweredAt: *req.AnsweredAt,
	})
	if err != nil {
		h.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (h *APIHandler) GetDailyLeaderboard(w http.ResponseWriter, r *http.Request) {
	day, err := h.dayParam(r)
	if err != nil {
		h.fail(w, err)
		return
	}
	limit, err := limitParam(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	lb, err := h.service.GetDailyLeaderboard(r.Context(), day, limit)
	if err != nil {
		h.fail(w, err)
		return
	}
	if lb.Leaderboard == nil {
		lb.Leaderboard = []domain.LeaderboardEntry{}
	}
	writeJSON(w, http.StatusOK, lb)
}

func (h *APIHandler) GetUserDaily(w http.ResponseWriter, r *http.Request) {
	userID := mux.Vars(r)["userID"]
	day, err := h.dayParam(r)
	if err != nil {
		h.fail(w, err)
		return
	}
	agg, err := h.service.GetAggregate(r.Context(), userID, day)
	if err != nil {
		h.fail(w, err)
		return
	}
	resp := userDailyResponse{Date: day, Aggregate: agg}
	if agg.Participated() {
		entry, ok, err := h.service.GetUserStanding(r.Context(), userID, day)
		if err != nil {
			h.fail(w, err)
			return
		}
		if ok {
			resp.Standing = &entry
		}
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *APIHandler) ListRejected(w http.ResponseWriter, r *http.Request) {
	limit, err := limitParam(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	rejected, err := h.service.PendingRejections(r.Context(), limit)
	if err != nil {
		h.fail(w, err)
		return
	}
	if rejected == nil {
		rejected = []domain.RejectedEvent{}
	}
	writeJSON(w, http.StatusOK, rejected)
}

func (h *APIHandler) dayParam(r *http.Request) (domain.DayKey, error) {
	raw := r.URL.Query().Get("date")
	if raw == "" {
		return h.service.Today(), nil
	}
	return h.service.Policy().ParseDayKey(raw)
}

func limitParam(r *http.Request) (int, error) {
	raw := r.URL.Query().Get("limit")
	if raw == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, errLimitRange
	}
	return n, checkLimit(n)
}

// checkLimit bounds leaderboard page sizes; 0 means the whole board.
func checkLimit(n int) error {
	if n < 0 || n > maxLeaderboardLimit {
		return errLimitRange
	}
	return nil
}

// fail maps domain errors onto status codes.
func (h *APIHandler) fail(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, domain.ErrInvalidEvent), errors.Is(err, domain.ErrInvalidDayKey):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, domain.ErrOutOfOrderEvent):
		writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, domain.ErrTransient):
		h.logger.Warn("request failed on storage", zap.Error(err))
		writeError(w, http.StatusServiceUnavailable, "temporarily unavailable")
	default:
		h.logger.Error("request failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorPayload{Message: msg})
}
