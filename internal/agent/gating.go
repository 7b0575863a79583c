package agent

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/Kocoro-lab/lina/internal/llm"
)

// Gating decides whether tools are offered to the model for a conversation.
type Gating string

const (
	// GateAlways offers tools on every turn.
	GateAlways Gating = "always"
	// GateKeyword offers tools only when the last user message mentions a credit task.
	GateKeyword Gating = "keyword"
	// GateNever never offers tools.
	GateNever Gating = "never"
)

var toolKeywords = regexp.MustCompile(`(?i)\b(analis|verific|list|risco|fraude|cliente|busca|calcul|oferta)\w*`)

// ParseGating accepts the config spelling of a gating mode. Empty means GateAlways.
func ParseGating(s string) (Gating, error) {
	switch g := Gating(strings.ToLower(strings.TrimSpace(s))); g {
	case "":
		return GateAlways, nil
	case GateAlways, GateKeyword, GateNever:
		return g, nil
	default:
		return "", fmt.Errorf("unknown tool gating mode %q", s)
	}
}

// wantsTools applies the gating mode to the conversation.
func (g Gating) wantsTools(messages []llm.Message) bool {
	switch g {
	case GateNever:
		return false
	case GateKeyword:
		for i := len(messages) - 1; i >= 0; i-- {
			if messages[i].Role == llm.RoleUser {
				return toolKeywords.MatchString(messages[i].Content)
			}
		}
		return false
	default:
		return true
	}
}
