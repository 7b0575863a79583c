package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"

	"github.com/spf13/cobra"

	"github.com/Kocoro-lab/lina/internal/agent"
	"github.com/Kocoro-lab/lina/internal/llm"
	"github.com/Kocoro-lab/lina/internal/server"
	"github.com/Kocoro-lab/lina/internal/tools"
)

const exitWord = "sair"

var (
	chatGating string
	chatModel  string
)

var chatCmd = &cobra.Command{
	Use:   "chat",
	Short: "Talk to the assistant in the terminal",
	Long: `Start an interactive conversation. Tools run in-process unless tools.url
points at a decision server. Type 'sair' to leave.`,
	RunE: runChat,
}

func init() {
	chatCmd.Flags().StringVar(&chatGating, "tools", string(agent.GateKeyword), "when to offer tools: always, keyword or never")
	chatCmd.Flags().StringVar(&chatModel, "model", "", "model name (default llm.model)")
	rootCmd.AddCommand(chatCmd)
}

// conversation runs one user turn; *agent.Agent implements it.
type conversation interface {
	Run(ctx context.Context, req agent.Request, emit agent.Emitter) (*agent.Outcome, error)
}

func runChat(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	logger := newLogger()
	defer logger.Sync()

	gating, err := agent.ParseGating(chatGating)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
	defer stop()

	var executor tools.Executor
	if cfg.Tools.Remote() {
		executor = tools.NewRemoteExecutor(cfg.Tools.URL, cfg.Tools.Timeout, logger)
	} else {
		svc, err := server.NewDecisionService(ctx, cfg, logger)
		if err != nil {
			return fmt.Errorf("start decision service: %w", err)
		}
		defer svc.Close()
		executor = tools.NewLocalExecutor(svc.Dispatcher)
	}

	agentCfg := cfg.Agent.Config
	agentCfg.Gating = gating
	agentCfg.Model = chatModel
	if agentCfg.Model == "" {
		agentCfg.Model = cfg.LLM.Model
	}
	model := llm.NewOllamaClient(cfg.LLM, logger)
	prompt := agent.NewFilePrompt(cfg.Agent.SystemPromptPath, logger)
	assistant := agent.New(model, executor, prompt, agentCfg, logger)

	return repl(ctx, assistant, cmd.InOrStdin(), cmd.OutOrStdout())
}

// repl reads one user message per line and keeps the conversation history across
// turns, including after failed turns.
func repl(ctx context.Context, conv conversation, in io.Reader, out io.Writer) error {
	fmt.Fprintln(out, "Olá! Eu sou a Lina, sua assistente de análise de crédito.")
	fmt.Fprintln(out, "Posso ajudar com: análise de clientes, verificação de fraude,")
	fmt.Fprintln(out, "cálculo de risco e sugestão de oferta de cartão.")
	fmt.Fprintf(out, "Digite '%s' para encerrar.\n", exitWord)

	var history []llm.Message
	scanner := bufio.NewScanner(in)
	for {
		fmt.Fprint(out, "\nVocê: ")
		if !scanner.Scan() {
			fmt.Fprintln(out)
			return scanner.Err()
		}
		input := strings.TrimSpace(scanner.Text())
		if strings.EqualFold(input, exitWord) {
			fmt.Fprintln(out, "\nAté logo! Foi um prazer ajudar.")
			return nil
		}
		if input == "" {
			continue
		}

		history = append(history, llm.User(input))
		// failures arrive as error events
		outcome, _ := conv.Run(ctx, agent.Request{Messages: history, Transport: "cli"}, printEvent(out))
		if outcome != nil && len(outcome.History) > 0 {
			history = outcome.History
		}
		if ctx.Err() != nil {
			return nil
		}
	}
}

func printEvent(out io.Writer) agent.Emitter {
	return func(e agent.Event) {
		switch e.Type {
		case agent.EventStatus:
			fmt.Fprintf(out, "%v\n", e.Data)
		case agent.EventToolUse:
			if tu, ok := e.Data.(agent.ToolUse); ok {
				fmt.Fprintf(out, "[TOOL] Usando: %s...\n", tu.Name)
			}
		case agent.EventFinal:
			content := ""
			if f, ok := e.Data.(agent.Final); ok {
				content = f.Message.Content
			}
			if content == "" {
				content = "(sem resposta)"
			}
			fmt.Fprintf(out, "\nLina: %s\n", content)
		case agent.EventError:
			fmt.Fprintf(out, "\n[ERRO] %v\n", e.Data)
		}
	}
}
