package types

import "strings"

// Verdict 单轮投票结论
type Verdict int

const (
	// VerdictNeedsRefinement 答案需要修订（默认值，解析失败时回落到此）
	VerdictNeedsRefinement Verdict = iota
	// VerdictAccept 答案在该角色的领域内可接受
	VerdictAccept
)

// 模型在评审回复首行中必须给出的字面量
const (
	AcceptToken          = "Good"
	NeedsRefinementToken = "NeedsRefinement"
)

func (v Verdict) String() string {
	switch v {
	case VerdictAccept:
		return AcceptToken
	default:
		return NeedsRefinementToken
	}
}

// MarshalText 以字面量形式序列化，供 JSON 状态输出使用
func (v Verdict) MarshalText() ([]byte, error) {
	return []byte(v.String()), nil
}

// ParseVerdictToken 将评审回复的首行映射为 Verdict。
// 行内空格会被移除；无法识别时返回 VerdictNeedsRefinement 与 ok=false。
func ParseVerdictToken(line string) (verdict Verdict, ok bool) {
	switch strings.ReplaceAll(line, " ", "") {
	case AcceptToken:
		return VerdictAccept, true
	case NeedsRefinementToken:
		return VerdictNeedsRefinement, true
	default:
		return VerdictNeedsRefinement, false
	}
}

// Profile 角色的固定身份
type Profile struct {
	Name   string   `json:"name" yaml:"name"`
	Domain string   `json:"domain" yaml:"domain"`
	Tuning []string `json:"tuning,omitempty" yaml:"tuning,omitempty"`
}

// AnswerRequest 请求角色回答问题
type AnswerRequest struct {
	QuestionID string
	Question   string
}

// EvaluationRequest 请求角色评审当前答案
type EvaluationRequest struct {
	QuestionID string
	Round      int
	Question   string
	Answer     string
}

// RevisionRequest 请求角色修订当前答案
type RevisionRequest struct {
	QuestionID string
	Question   string
	Answer     string
}

// Answer 角色对 AnswerRequest 的回报
type Answer struct {
	QuestionID string
	From       string
	Text       string
}

// Vote 角色对 EvaluationRequest 的回报
type Vote struct {
	QuestionID string
	Round      int
	Name       string
	Verdict    Verdict
	Rationale  string
}

// Revision 角色对 RevisionRequest 的回报
type Revision struct {
	QuestionID string
	From       string
	Text       string
}
