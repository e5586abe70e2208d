// Package models defines data structures used throughout the immersive server.
package models

import (
	"database/sql"
	"encoding/json"
	"time"
)

// Identity is the resolved caller of a request
type Identity struct {
	ID        string `json:"id"`
	Email     string `json:"email,omitempty"`
	Anonymous bool   `json:"anonymous"`
}

// Quiz represents a quiz row; Title stays NULL until generation completes
type Quiz struct {
	ID        int64          `json:"id"`
	UserID    string         `json:"user_id"`
	SourceKey string         `json:"source_key"`
	Title     sql.NullString `json:"title"`
	CreatedAt time.Time      `json:"created_at"`
}

// MarshalJSON renders Title as a plain string or null
func (q Quiz) MarshalJSON() ([]byte, error) {
	return json.Marshal(&struct {
		ID        int64     `json:"id"`
		UserID    string    `json:"user_id"`
		SourceKey string    `json:"source_key"`
		Title     *string   `json:"title"`
		CreatedAt time.Time `json:"created_at"`
	}{
		ID:        q.ID,
		UserID:    q.UserID,
		SourceKey: q.SourceKey,
		Title:     nullStringToPointer(q.Title),
		CreatedAt: q.CreatedAt,
	})
}

// Answer is one choice of a stored question
type Answer struct {
	ID       int64  `json:"id"`
	Text     string `json:"text"`
	Position int    `json:"position"`
}

// Question is a stored question with its four answers ordered by position
type Question struct {
	ID            int64    `json:"id"`
	QuizID        int64    `json:"quiz_id"`
	Text          string   `json:"question"`
	CorrectAnswer int      `json:"correct_answer"`
	Answers       []Answer `json:"answers"`
}

// GeneratedQuestion is one validated element of the model's quiz output
type GeneratedQuestion struct {
	Title    string   `json:"title,omitempty"`
	Question string   `json:"question"`
	Choices  []string `json:"choices"`
	Answer   int      `json:"answer"`
}

// ToGenerated converts a stored question to the client payload shape
func (q Question) ToGenerated() GeneratedQuestion {
	choices := make([]string, len(q.Answers))
	for i, a := range q.Answers {
		choices[i] = a.Text
	}
	return GeneratedQuestion{
		Question: q.Text,
		Choices:  choices,
		Answer:   q.CorrectAnswer,
	}
}

// QuizState is the outcome of looking up a quiz by identity and source key
type QuizState int

// Quiz lookup states
const (
	QuizNotFound QuizState = iota
	QuizShell
	QuizComplete
)

func (s QuizState) String() string {
	switch s {
	case QuizShell:
		return "shell"
	case QuizComplete:
		return "complete"
	default:
		return "not_found"
	}
}

// QuizLookup reports what exists for an (identity, source key) pair
type QuizLookup struct {
	State     QuizState
	QuizID    int64
	SourceKey string
	Title     string
	Questions []Question
}

// QuizResult is the payload returned by generate-or-fetch
type QuizResult struct {
	QuizID    int64               `json:"quizId"`
	Title     string              `json:"title"`
	Questions []GeneratedQuestion `json:"questions"`
	// Generated is false when the stored quiz was returned without a model call
	Generated bool `json:"generated"`
}

// QuotaUsage is today's counter for one operation kind
type QuotaUsage struct {
	Kind      string `json:"kind"`
	Count     int    `json:"count"`
	Ceiling   int    `json:"ceiling"`
	Remaining int    `json:"remaining"`
}

// QuotaStatus is the per-kind usage of an identity for one UTC day
type QuotaStatus struct {
	Identity string       `json:"identity"`
	Date     string       `json:"date"`
	Usage    []QuotaUsage `json:"usage"`
}

// SavedWord is a vocabulary entry
type SavedWord struct {
	ID             int64     `json:"id"`
	OriginalWord   string    `json:"original_word"`
	TranslatedWord string    `json:"translated_word"`
	CreatedAt      time.Time `json:"created_at"`
}

// Learner levels accepted for profile settings and text operations
var Levels = []string{"A1", "A2", "B1", "B2", "C1", "C2"}

// IsValidLevel reports whether level is one of Levels
func IsValidLevel(level string) bool {
	for _, l := range Levels {
		if l == level {
			return true
		}
	}
	return false
}

func nullStringToPointer(ns sql.NullString) *string {
	if !ns.Valid {
		return nil
	}
	return &ns.String
}
