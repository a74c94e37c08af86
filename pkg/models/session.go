package models

import "time"

type SessionStatus string

const (
	StatusReady     SessionStatus = "ready"
	StatusRunning   SessionStatus = "running"
	StatusCompleted SessionStatus = "completed"
	StatusError     SessionStatus = "error"
)

// Terminal reports whether no further transition can happen.
func (s SessionStatus) Terminal() bool {
	return s == StatusCompleted || s == StatusError
}

type Speaker string

const (
	SpeakerBull Speaker = "bull"
	SpeakerBear Speaker = "bear"
)

// Opponent returns the other side of the debate.
func (s Speaker) Opponent() Speaker {
	if s == SpeakerBull {
		return SpeakerBear
	}
	return SpeakerBull
}

// SessionState is the resumable snapshot of a debate session.
type SessionState struct {
	SessionID      string        `json:"debateId"`
	Status         SessionStatus `json:"status"`
	Asset          string        `json:"asset,omitempty"`
	CurrentTurn    int           `json:"currentTurn"`
	MaxTurns       int           `json:"maxTurns,omitempty"`
	CurrentSpeaker Speaker       `json:"currentAgent,omitempty"`
	Error          string        `json:"error,omitempty"`
	UpdatedAt      time.Time     `json:"updatedAt"`
}

// DebateMessage is one argument of a debate.
type DebateMessage struct {
	Speaker Speaker `json:"role"`
	Content string  `json:"content"`
	Turn    int     `json:"turn"`
}
