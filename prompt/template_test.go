package prompt

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCompile_ShortTemplate(t *testing.T) {
	out := Short.Compile("Explain recursion", "")

	assert.Contains(t, out, "SHORT and CONCISE")
	assert.Contains(t, out, "Explain recursion")
	assert.NotContains(t, out, "CONTEXT ABOUT USER")
}

func TestCompile_IsDeterministic(t *testing.T) {
	for _, tmpl := range Templates() {
		a := tmpl.Compile("What is a monad?", "Senior Go developer")
		b := tmpl.Compile("What is a monad?", "Senior Go developer")
		assert.Equal(t, a, b, "template %s", tmpl)
	}
}

func TestCompile_ContextPrecedesQuestion(t *testing.T) {
	out := Long.Compile("How do channels work?", "Ten years of backend experience")

	ctxIdx := strings.Index(out, "Ten years of backend experience")
	qIdx := strings.Index(out, "How do channels work?")
	require.NotEqual(t, -1, ctxIdx)
	require.NotEqual(t, -1, qIdx)
	assert.Less(t, ctxIdx, qIdx)
	assert.Contains(t, out, "CONTEXT ABOUT USER:")
	assert.Contains(t, out, "DETAILED and COMPREHENSIVE")
}

func TestCompile_WhitespaceContextIsIgnored(t *testing.T) {
	assert.Equal(t, Short.Compile("hi", ""), Short.Compile("hi", "  \n "))
}

func TestCompile_UserTextVerbatim(t *testing.T) {
	text := "  keep   spacing\nand \"quotes\" `code`  "
	for _, tmpl := range Templates() {
		assert.Contains(t, tmpl.Compile(text, ""), text)
	}
}

func TestCompile_SolutionMentionsCeiling(t *testing.T) {
	out := Solution.Compile("Fix this bug", "")
	assert.Contains(t, out, "COMPREHENSIVE SOLUTION")
	assert.Contains(t, out, "under 1000 words")
}

func TestResolve_AttachmentsForceSolution(t *testing.T) {
	for _, selected := range Templates() {
		tmpl, text := Resolve(selected, "what is this?", true)
		assert.Equal(t, Solution, tmpl)
		assert.Equal(t, "what is this?", text)
	}
}

func TestResolve_EmptyTextWithImageUsesFallback(t *testing.T) {
	tmpl, text := Resolve(Long, "", true)
	assert.Equal(t, Solution, tmpl)
	assert.Equal(t, FallbackImageText, text)
	assert.Contains(t, tmpl.Compile(text, ""), "Analyze this image")
}

func TestResolve_NoAttachmentsKeepsSelection(t *testing.T) {
	tmpl, text := Resolve(Long, "question", false)
	assert.Equal(t, Long, tmpl)
	assert.Equal(t, "question", text)
}

func TestParseTemplate(t *testing.T) {
	tmpl, err := ParseTemplate(" Solution ")
	require.NoError(t, err)
	assert.Equal(t, Solution, tmpl)

	_, err = ParseTemplate("medium")
	assert.Error(t, err)
}

func TestTemplateAttributes(t *testing.T) {
	assert.Equal(t, 100, Short.WordLimit())
	assert.Equal(t, 200, Long.WordLimit())
	assert.Equal(t, 1000, Solution.WordLimit())

	assert.Equal(t, "gpt-3.5-turbo", Short.PreferredModel())
	assert.Equal(t, "gpt-4-turbo", Long.PreferredModel())
	assert.Equal(t, "gpt-4o-mini", Solution.PreferredModel())

	for _, tmpl := range Templates() {
		assert.NotEmpty(t, tmpl.Description())
		parsed, err := ParseTemplate(tmpl.String())
		require.NoError(t, err)
		assert.Equal(t, tmpl, parsed)
	}
}

func TestCorrection(t *testing.T) {
	out := Correction("helo wrld")
	assert.Contains(t, out, `"helo wrld"`)
	assert.Contains(t, out, "Corrected text:")
}
