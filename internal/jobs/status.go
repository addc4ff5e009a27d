package jobs

import (
	"context"
	"strings"
	"time"

	"github.com/mdabidind/pdf-to-word-activa/internal/convert"
)

// Status はクライアントに見せるジョブの状態です。
type Status struct {
	JobID         string          `json:"jobId"`
	State         State           `json:"state"`
	Result        *convert.Result `json:"result,omitempty"`
	FailureReason string          `json:"failureReason,omitempty"`
	CreatedAt     time.Time       `json:"createdAt"`
	CompletedAt   *time.Time      `json:"completedAt,omitempty"`
}

// InProgress は pending か active かを返します。
func (s *Status) InProgress() bool {
	return !s.State.Terminal()
}

// StatusService はジョブの状態を読み取り専用で返します。
type StatusService struct {
	broker Broker
}

// NewStatusService は StatusService を作成します。
func NewStatusService(broker Broker) *StatusService {
	return &StatusService{broker: broker}
}

// Lookup はジョブの状態を返します。存在しない場合は ErrNotFound を返します。
func (s *StatusService) Lookup(ctx context.Context, id string) (*Status, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return nil, ErrNotFound
	}
	job, err := s.broker.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	status := &Status{
		JobID:       job.ID,
		State:       job.State,
		CreatedAt:   job.CreatedAt,
		CompletedAt: job.CompletedAt,
	}
	switch job.State {
	case StateCompleted:
		status.Result = job.Result
	case StateFailed:
		status.FailureReason = job.FailureReason
		if status.FailureReason == "" {
			status.FailureReason = convert.MessageGenericFailure
		}
	}
	return status, nil
}
