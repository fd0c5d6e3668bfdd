package prompt

import (
	"fmt"
	"strings"
)

// Template is a response style applied to the user's question before it is
// sent to the model
type Template int

const (
	Short Template = iota
	Long
	Solution
)

// FallbackImageText replaces empty input on image-only turns
const FallbackImageText = "Analyze this image"

var templateNames = map[Template]string{
	Short:    "short",
	Long:     "long",
	Solution: "solution",
}

// Templates returns all templates in display order
func Templates() []Template {
	return []Template{Short, Long, Solution}
}

// ParseTemplate parses a template name (case-insensitive)
func ParseTemplate(name string) (Template, error) {
	name = strings.ToLower(strings.TrimSpace(name))
	for t, n := range templateNames {
		if n == name {
			return t, nil
		}
	}
	return Short, fmt.Errorf("unknown prompt template: %q", name)
}

// String returns the template name
func (t Template) String() string {
	if n, ok := templateNames[t]; ok {
		return n
	}
	return fmt.Sprintf("template(%d)", int(t))
}

// WordLimit returns the verbosity ceiling requested from the model
func (t Template) WordLimit() int {
	switch t {
	case Long:
		return 200
	case Solution:
		return 1000
	default:
		return 100
	}
}

// PreferredModel returns the OpenAI model suited to the template.
// Solution uses a vision-capable model because image turns are forced to it.
func (t Template) PreferredModel() string {
	switch t {
	case Long:
		return "gpt-4-turbo"
	case Solution:
		return "gpt-4o-mini"
	default:
		return "gpt-3.5-turbo"
	}
}

// Description returns a short human-readable summary of the template
func (t Template) Description() string {
	switch t {
	case Long:
		return fmt.Sprintf("Long prompt (< %d words): detailed, comprehensive response for in-depth explanations and step-by-step guides", t.WordLimit())
	case Solution:
		return fmt.Sprintf("Solution prompt (< %d words): complete problem solving with code examples; always used for image turns", t.WordLimit())
	default:
		return fmt.Sprintf("Short prompt (< %d words): concise, focused response for quick answers and definitions", t.WordLimit())
	}
}

// Compile wraps the user's text and optional background context into the
// template's instruction envelope. It is pure.
func (t Template) Compile(userText, context string) string {
	ctxBlock := contextBlock(context)

	var sb strings.Builder
	switch t {
	case Long:
		fmt.Fprintf(&sb, "Please provide a DETAILED and COMPREHENSIVE response (less than %d words).\n", t.WordLimit())
		sb.WriteString(ctxBlock)
		sb.WriteString("User question: ")
		sb.WriteString(userText)
		sb.WriteString("\n\nInclude thorough explanations, examples, and relevant details.")
	case Solution:
		sb.WriteString("If you see any questions or coding questions, please solve them completely.\n")
		sb.WriteString(ctxBlock)
		sb.WriteString("Provide a COMPREHENSIVE SOLUTION with:\n")
		sb.WriteString("• What: Clear explanation of the problem and solution\n")
		sb.WriteString("• Why: Reasoning behind the approach\n")
		sb.WriteString("• Example: Working code examples with explanations\n")
		sb.WriteString("• Use bullet points for clarity\n")
		fmt.Fprintf(&sb, "• Keep response under %d words\n\n", t.WordLimit())
		sb.WriteString("User question/problem: ")
		sb.WriteString(userText)
		sb.WriteString("\n\nAnalyze the problem thoroughly and provide a complete, working solution.")
	default:
		fmt.Fprintf(&sb, "Please provide a SHORT and CONCISE response (less than %d words).\n", t.WordLimit())
		sb.WriteString(ctxBlock)
		sb.WriteString("User question: ")
		sb.WriteString(userText)
		sb.WriteString("\n\nKeep your answer brief, focused, and to the point.")
	}
	return sb.String()
}

func contextBlock(context string) string {
	if strings.TrimSpace(context) == "" {
		return ""
	}
	return "\nCONTEXT ABOUT USER:\n" + context + "\n\nUse this context to personalize your response when relevant.\n\n"
}

// Resolve applies the attachment policy: any turn with attachments uses the
// Solution template, and empty text is replaced by FallbackImageText.
func Resolve(selected Template, userText string, hasAttachments bool) (Template, string) {
	if !hasAttachments {
		return selected, userText
	}
	if strings.TrimSpace(userText) == "" {
		userText = FallbackImageText
	}
	return Solution, userText
}
