package persona

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/BaSui01/conclave/types"
)

func TestRenderTuning(t *testing.T) {
	assert.Equal(t, "", RenderTuning(nil))
	assert.Equal(t, "\n* one\n* two", RenderTuning([]string{"one", "two"}))
}

func TestDefaultPrompts(t *testing.T) {
	profile := types.Profile{Name: "B", Domain: "Quoted \"Domain\"", Tuning: []string{"first", "second"}}
	prompts := DefaultPrompts{}

	t.Run("answer keeps quotes", func(t *testing.T) {
		prompt := prompts.AnswerPrompt(`What is "42"?`)
		assert.Contains(t, prompt, "without referring to yourself as a language model")
		assert.Contains(t, prompt, `What is "42"?`)
	})

	t.Run("evaluation", func(t *testing.T) {
		prompt := prompts.EvaluationPrompt(profile, `Say "hi"`, `"hi"`)
		assert.Contains(t, prompt, "Question: Say hi\n")
		assert.Contains(t, prompt, "Answer: hi\n")
		assert.Contains(t, prompt, "knowledge domain of Quoted Domain.")
		assert.Contains(t, prompt, "aspects like:\n* first\n* second\n")
		assert.Contains(t, prompt, "The only answers you may provide are Good and NeedsRefinement.")
		assert.NotContains(t, prompt, `"`)
	})

	t.Run("revision", func(t *testing.T) {
		prompt := prompts.RevisionPrompt(profile, "Q", `"A"`)
		assert.Contains(t, prompt, "Answer: A\n")
		assert.Contains(t, prompt, "your knowledge domain, Quoted Domain.")
		assert.Contains(t, prompt, "influence your refinement:\n* first\n* second")
		assert.NotContains(t, prompt, `"`)
	})
}

func TestDefaultRoster(t *testing.T) {
	roster := DefaultRoster()
	assert.Len(t, roster, 4)

	names := make(map[string]bool)
	for _, p := range roster {
		assert.NotEmpty(t, p.Domain)
		assert.Len(t, p.Tuning, 10, p.Name)
		names[p.Name] = true
	}
	assert.True(t, names["High Society"])
	assert.True(t, names["The Technician"])
	assert.True(t, names["Art Boy"])
	assert.True(t, names["Programming Nerd"])
}
