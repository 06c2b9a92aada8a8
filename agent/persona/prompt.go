package persona

import (
	"fmt"
	"strings"

	"github.com/BaSui01/conclave/types"
)

// PromptBuilder 为三类交互构造提示词
type PromptBuilder interface {
	AnswerPrompt(question string) string
	EvaluationPrompt(profile types.Profile, question, answer string) string
	RevisionPrompt(profile types.Profile, question, answer string) string
}

// DefaultPrompts 默认提示词模板
type DefaultPrompts struct{}

var _ PromptBuilder = DefaultPrompts{}

const answerTemplate = "Please answer the following question without referring to yourself as a language model:\n\n%s"

const evaluationTemplate = `
---
Question: %s
---
Answer: %s
---
Your Instructions:
You are part of a team of LLMs that were given the above question to answer by consensus. The first model chosen answered with the answer above. You need to evaluate this answer based on your knowledge domain of %s. The only answers you may provide are Good and NeedsRefinement.

Consider how the answer might indirectly or tangentially relate to the domain. A direct connection is not required. Focus on how the answer could enable, inspire, or be used in activities related to the domain. Specifically, you should consider aspects like:%s

The most important part of choosing your answer is whether the question is related to your domain at all. If it is not, then you should answer exactly Good since you are not qualified to evaluate the answer. Otherwise, if you think this was a good answer, respond with exactly Good. If you think this was a bad answer, respond with exactly NeedsRefinement. Additionally, you must also provide reasoning for why you think this answer is Good or NeedsRefinement answer by putting that reasoning on a new line.
---
Examples:

Question: What's a good beginner programming language?
Answer: Python
Your domain: art and imagination
Evaluation: Good
Reasoning: This isn't related to your domain.

Question: How can I make my software easier to update?
Answer: Decoupling
Your domain: technical rigor
Evaluation: NeedsRefinement
Reasoning: Decoupling and high cohesion are only one aspect of maintainable software, and the answer doesn't go into enough detail.`

const revisionTemplate = `
---
Question: %s
---
Answer: %s
---
Your Instructions:
A user asked this question, and they received the specified answer. When asked to evaluate this answer, you said it needed refinement. Please refine the answer as necessary for your knowledge domain, %s.

Specifically, keep the following things in mind while refining the answer. They do not need to be included, but they should influence your refinement:%s`

func (DefaultPrompts) AnswerPrompt(question string) string {
	return fmt.Sprintf(answerTemplate, question)
}

// EvaluationPrompt 评审提示词，双引号会被移除
func (DefaultPrompts) EvaluationPrompt(profile types.Profile, question, answer string) string {
	prompt := fmt.Sprintf(evaluationTemplate, question, answer, profile.Domain, RenderTuning(profile.Tuning))
	return strings.ReplaceAll(prompt, `"`, "")
}

// RevisionPrompt 修订提示词，双引号会被移除
func (DefaultPrompts) RevisionPrompt(profile types.Profile, question, answer string) string {
	prompt := fmt.Sprintf(revisionTemplate, question, answer, profile.Domain, RenderTuning(profile.Tuning))
	return strings.ReplaceAll(prompt, `"`, "")
}

// RenderTuning 把调优要点渲染为 "\n* item" 列表
func RenderTuning(tuning []string) string {
	var sb strings.Builder
	for _, item := range tuning {
		sb.WriteString("\n* ")
		sb.WriteString(item)
	}
	return sb.String()
}
