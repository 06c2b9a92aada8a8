package mocks

import (
	"context"

	"github.com/BaSui01/conclave/types"
)

// RecordingReporter 把角色回报写入带缓冲的通道，供测试逐条读取
type RecordingReporter struct {
	Answers   chan types.Answer
	Votes     chan types.Vote
	Revisions chan types.Revision
}

// NewRecordingReporter 创建 RecordingReporter
func NewRecordingReporter() *RecordingReporter {
	return &RecordingReporter{
		Answers:   make(chan types.Answer, 64),
		Votes:     make(chan types.Vote, 64),
		Revisions: make(chan types.Revision, 64),
	}
}

func (r *RecordingReporter) AnsweredQuestion(ctx context.Context, answer types.Answer) error {
	select {
	case r.Answers <- answer:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (r *RecordingReporter) Evaluated(ctx context.Context, vote types.Vote) error {
	select {
	case r.Votes <- vote:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (r *RecordingReporter) Revised(ctx context.Context, revision types.Revision) error {
	select {
	case r.Revisions <- revision:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
