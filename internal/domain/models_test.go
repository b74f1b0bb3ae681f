package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIdentityPrefersExplicitID(t *testing.T) {
	ev := AnswerEvent{EventID: "ev-1", UserID: "u1", QuestionID: "q1", AnsweredAt: time.Unix(100, 0)}
	assert.Equal(t, "ev-1", ev.Identity())
}

func TestIdentityDerivedIsStable(t *testing.T) {
	at := time.Date(2026, 3, 1, 9, 0, 0, 123, time.UTC)
	a := AnswerEvent{UserID: "u1", QuestionID: "q1", AnsweredAt: at}
	b := AnswerEvent{UserID: "u1", QuestionID: "q1", AnsweredAt: at.In(time.FixedZone("x", 3600)), IsCorrect: true}
	c := AnswerEvent{UserID: "u1", QuestionID: "q2", AnsweredAt: at}

	require.NotEmpty(t, a.Identity())
	assert.Equal(t, a.Identity(), b.Identity())
	assert.NotEqual(t, a.Identity(), c.Identity())
}

func TestValidate(t *testing.T) {
	assert.ErrorIs(t, AnswerEvent{QuestionID: "q", AnsweredAt: time.Now()}.Validate(), ErrInvalidEvent)
	assert.ErrorIs(t, AnswerEvent{UserID: "u", AnsweredAt: time.Now()}.Validate(), ErrInvalidEvent)
	assert.ErrorIs(t, AnswerEvent{UserID: "u", QuestionID: "q"}.Validate(), ErrInvalidEvent)
	assert.NoError(t, AnswerEvent{UserID: "u", QuestionID: "q", AnsweredAt: time.Now()}.Validate())
}
