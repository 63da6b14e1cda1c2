package registry

import (
	"fmt"
	"strings"

	"github.com/tmc/langchaingo/llms"
)

// SummaryBudget caps the text content of tool results to a share of a model's
// context window, counted with that model's tokenizer. The zero value does not
// cap anything.
type SummaryBudget struct {
	model  string
	tokens int
}

// NewSummaryBudget reserves 1/share of model's context window for summaries.
func NewSummaryBudget(model string, share int) SummaryBudget {
	if share <= 0 {
		share = 1
	}
	return SummaryBudget{model: model, tokens: llms.GetModelContextSize(model) / share}
}

// Tokens returns the cap; zero means unlimited.
func (b SummaryBudget) Tokens() int { return b.tokens }

// Fit joins lines, dropping trailing lines once the budget is spent. The first
// line is always kept and dropped lines are counted in a final marker.
func (b SummaryBudget) Fit(lines []string) string {
	text := strings.Join(lines, "\n")
	if b.tokens <= 0 || len(lines) == 0 || llms.CountTokens(b.model, text) <= b.tokens {
		return text
	}
	used := 0
	for i, line := range lines {
		n := llms.CountTokens(b.model, line+"\n")
		if i > 0 && used+n > b.tokens {
			return strings.Join(lines[:i], "\n") + fmt.Sprintf("\n... %d more lines", len(lines)-i)
		}
		used += n
	}
	return text
}
