package agent

import (
	"context"
	"errors"

	"github.com/Kocoro-lab/lina/internal/llm"
	"github.com/Kocoro-lab/lina/internal/tools"
)

// ErrTurnLimitExceeded is returned when the model keeps calling tools past MaxTurns.
var ErrTurnLimitExceeded = errors.New("turn limit exceeded")

// Texts of the error events.
const (
	MsgModelFailure = "Falha ao comunicar com o modelo."
	MsgToolFailure  = "Falha ao comunicar com o servidor de ferramentas."
	MsgTurnLimit    = "Limite de turnos excedido."
)

// Texts of the status events.
const (
	MsgLoadingTools = "Carregando ferramentas..."
	MsgThinking     = "Pensando..."
	msgExecuting    = "Executando: %s..."
)

func errorOutcome(err error) string {
	switch {
	case errors.Is(err, ErrTurnLimitExceeded):
		return "turn_limit"
	case errors.Is(err, llm.ErrTransport):
		return "llm_error"
	case errors.Is(err, tools.ErrTransport):
		return "tool_server_error"
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return "cancelled"
	default:
		return "error"
	}
}
