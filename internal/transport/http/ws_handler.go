package http

import (
	"encoding/json"
	"net/http"
	"time"

	"daily-leaderboard-service/internal/app"
	"daily-leaderboard-service/internal/domain"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// WSHandler accepts answer events over a websocket, one connection per user.
type WSHandler struct {
	service  *app.LeaderboardService
	logger   *zap.Logger
	upgrader websocket.Upgrader
}

func NewWSHandler(service *app.LeaderboardService, logger *zap.Logger) *WSHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &WSHandler{
		service: service,
		logger:  logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
	}
}

type inboundMessage struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

type answerPayload struct {
	EventID    string     `json:"eventId"`
	QuestionID string     `json:"questionId"`
	IsCorrect  bool       `json:"isCorrect"`
	AnsweredAt *time.Time `json:"answeredAt"`
}

type leaderboardPayload struct {
	Date  string `json:"date"`
	Limit int    `json:"limit"`
}

type answerResult struct {
	EventID     string `json:"eventId"`
	QuestionID  string `json:"questionId"`
	Correct     bool   `json:"correct"`
	Duplicate   bool   `json:"duplicate"`
	Awarded     int    `json:"awarded"`
	DailyScore  int    `json:"dailyScore"`
	DailyStreak int    `json:"dailyStreak"`
	MaxStreak   int    `json:"maxStreak"`
}

type outboundMessage[T any] struct {
	Type    string `json:"type"`
	Payload T      `json:"payload"`
}

type errorPayload struct {
	Message string `json:"message"`
}

// ServeWS upgrades HTTP requests to websockets and feeds answers into the scoring use cases.
func (h *WSHandler) ServeWS(w http.ResponseWriter, r *http.Request) {
	userID := r.URL.Query().Get("userId")
	if userID == "" {
		http.Error(w, "missing userId", http.StatusBadRequest)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("ws upgrade failed", zap.Error(err))
		return
	}
	defer conn.Close()

	send := make(chan outboundMessage[any], 16)
	writerDone := make(chan struct{})

	go func() {
		defer close(writerDone)
		for msg := range send {
			if err := conn.WriteJSON(msg); err != nil {
				h.logger.Debug("ws write error", zap.String("user_id", userID), zap.Error(err))
				return
			}
		}
	}()

	sendError := func(msg string) {
		send <- outboundMessage[any]{Type: "error", Payload: errorPayload{Message: msg}}
	}

	for {
		var inbound inboundMessage
		if err := conn.ReadJSON(&inbound); err != nil {
			break
		}
		switch inbound.Type {
		case "answer":
			var payload answerPayload
			if err := json.Unmarshal(inbound.Payload, &payload); err != nil {
				sendError("invalid answer payload")
				continue
			}
			answeredAt := h.service.Now()
			if payload.AnsweredAt != nil {
				answeredAt = *payload.AnsweredAt
			}
			res, err := h.service.ApplyEvent(r.Context(), domain.AnswerEvent{
				EventID:    payload.EventID,
				UserID:     userID,
				QuestionID: payload.QuestionID,
				IsCorrect:  payload.IsCorrect,
				AnsweredAt: answeredAt,
			})
			if err != nil {
				sendError(err.Error())
				continue
			}
			send <- outboundMessage[any]{Type: "answerResult", Payload: answerResult{
				EventID:     res.EventID,
				QuestionID:  payload.QuestionID,
				Correct:     payload.IsCorrect,
				Duplicate:   res.Duplicate,
				Awarded:     res.Awarded,
				DailyScore:  res.Aggregate.Score,
				DailyStreak: res.Aggregate.CurrentStreak,
				MaxStreak:   res.Aggregate.MaxStreak,
			}}
		case "leaderboard":
			var payload leaderboardPayload
			if len(inbound.Payload) > 0 {
				if err := json.Unmarshal(inbound.Payload, &payload); err != nil {
					sendError("invalid leaderboard payload")
					continue
				}
			}
			if err := checkLimit(payload.Limit); err != nil {
				sendError(err.Error())
				continue
			}
			day := h.service.Today()
			if payload.Date != "" {
				if day, err = h.service.Policy().ParseDayKey(payload.Date); err != nil {
					sendError(err.Error())
					continue
				}
			}
			lb, err := h.service.GetDailyLeaderboard(r.Context(), day, payload.Limit)
			if err != nil {
				sendError(err.Error())
				continue
			}
			send <- outboundMessage[any]{Type: "leaderboard", Payload: lb}
		default:
			sendError("unsupported message type")
		}
	}

	close(send)
	<-writerDone
}
