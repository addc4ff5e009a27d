package jobs

import (
	"time"

	"github.com/mdabidind/pdf-to-word-activa/internal/convert"
)

// State はジョブの実行状態を表します。
type State string

const (
	StatePending   State = "pending"
	StateActive    State = "active"
	StateCompleted State = "completed"
	StateFailed    State = "failed"
)

// Terminal は終了状態かどうかを返します。
func (s State) Terminal() bool {
	return s == StateCompleted || s == StateFailed
}

func (s State) valid() bool {
	switch s {
	case StatePending, StateActive, StateCompleted, StateFailed:
		return true
	}
	return false
}

// Job は変換ジョブの現在状態を表します。
// Result は completed のときだけ、FailureReason は failed のときだけ設定されます。
type Job struct {
	ID            string           `json:"jobId"`
	State         State            `json:"state"`
	Document      convert.Document `json:"document"`
	Result        *convert.Result  `json:"result,omitempty"`
	FailureReason string           `json:"failureReason,omitempty"`
	CreatedAt     time.Time        `json:"createdAt"`
	StartedAt     *time.Time       `json:"startedAt,omitempty"`
	CompletedAt   *time.Time       `json:"completedAt,omitempty"`
}

func (j *Job) clone() *Job {
	if j == nil {
		return nil
	}
	cp := *j
	cp.Document = j.Document.Clone()
	if j.Result != nil {
		r := *j.Result
		cp.Result = &r
	}
	if j.StartedAt != nil {
		t := *j.StartedAt
		cp.StartedAt = &t
	}
	if j.CompletedAt != nil {
		t := *j.CompletedAt
		cp.CompletedAt = &t
	}
	return &cp
}

func timePtr(t time.Time) *time.Time {
	return &t
}
