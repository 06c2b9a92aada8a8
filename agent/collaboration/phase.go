package collaboration

import "github.com/BaSui01/conclave/types"

// Phase 轮次所处阶段
type Phase string

const (
	PhaseIdle           Phase = "idle"
	PhaseAwaitingAnswer Phase = "awaiting_answer"
	PhaseAwaitingVotes  Phase = "awaiting_votes"
	PhaseRevising       Phase = "revising"
	PhaseReady          Phase = "ready"
	PhaseStalled        Phase = "stalled"
)

// Active 表示轮次仍在等待角色回报
func (p Phase) Active() bool {
	switch p {
	case PhaseAwaitingAnswer, PhaseAwaitingVotes, PhaseRevising:
		return true
	default:
		return false
	}
}

// Status 协调者状态快照
type Status struct {
	Phase      Phase                    `json:"phase"`
	QuestionID string                   `json:"question_id,omitempty"`
	Question   string                   `json:"question,omitempty"`
	Answer     string                   `json:"answer,omitempty"`
	Round      int                      `json:"round"`
	Votes      map[string]types.Verdict `json:"votes,omitempty"`
	Forced     bool                     `json:"forced"`
	Ready      bool                     `json:"ready"`
	Responders []string                 `json:"responders"`
}
