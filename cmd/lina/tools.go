package main

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/Kocoro-lab/lina/internal/config"
	"github.com/Kocoro-lab/lina/internal/server"
	"github.com/Kocoro-lab/lina/internal/tools"
)

var toolsCmd = &cobra.Command{
	Use:   "tools",
	Short: "Inspect and call the tool catalogue",
	RunE: func(cmd *cobra.Command, _ []string) error {
		return withExecutor(cmd, func(ex tools.Executor) error {
			defs, err := ex.Definitions(cmd.Context())
			if err != nil {
				return err
			}
			return writeJSON(cmd.OutOrStdout(), defs)
		})
	},
}

var toolsCallCmd = &cobra.Command{
	Use:   "call <name> [json-arguments]",
	Short: "Execute one tool and print its result",
	Example: `  lina tools call buscar_cliente '{"id": "1001"}'
  lina tools call listar_clientes`,
	Args: cobra.RangeArgs(1, 2),
	RunE: func(cmd *cobra.Command, args []string) error {
		callArgs, err := parseArguments(args[1:])
		if err != nil {
			return err
		}
		return withExecutor(cmd, func(ex tools.Executor) error {
			res, err := ex.Execute(cmd.Context(), args[0], callArgs)
			if err != nil {
				return err
			}
			return writeJSON(cmd.OutOrStdout(), res)
		})
	},
}

func init() {
	toolsCmd.AddCommand(toolsCallCmd)
	rootCmd.AddCommand(toolsCmd)
}

// withExecutor runs fn against the remote tool server when tools.url is set, or an
// in-process catalogue otherwise.
func withExecutor(cmd *cobra.Command, fn func(tools.Executor) error) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	logger := newLogger()
	defer logger.Sync()

	ex, closeFn, err := openExecutor(cmd, cfg, logger)
	if err != nil {
		return err
	}
	defer closeFn()
	return fn(ex)
}

func openExecutor(cmd *cobra.Command, cfg *config.Config, logger *zap.Logger) (tools.Executor, func(), error) {
	if cfg.Tools.Remote() {
		return tools.NewRemoteExecutor(cfg.Tools.URL, cfg.Tools.Timeout, logger), func() {}, nil
	}
	svc, err := server.NewDecisionService(cmd.Context(), cfg, logger)
	if err != nil {
		return nil, nil, fmt.Errorf("start decision service: %w", err)
	}
	return tools.NewLocalExecutor(svc.Dispatcher), func() { _ = svc.Close() }, nil
}

func parseArguments(args []string) (map[string]any, error) {
	out := map[string]any{}
	if len(args) == 0 || args[0] == "" {
		return out, nil
	}
	if err := json.Unmarshal([]byte(args[0]), &out); err != nil {
		return nil, fmt.Errorf("arguments must be a JSON object: %w", err)
	}
	return out, nil
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	enc.SetEscapeHTML(false)
	return enc.Encode(v)
}
