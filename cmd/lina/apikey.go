package main

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/Kocoro-lab/lina/internal/auth"
)

var (
	apiKeyName   string
	apiKeyScopes []string
)

var apiKeyCmd = &cobra.Command{
	Use:   "apikey",
	Short: "Generate a gateway API key",
	Long: `Generate a random API key and print the auth.api_keys entry that accepts it.
Only the bcrypt hash goes into the config; the key is shown once.`,
	RunE: func(cmd *cobra.Command, _ []string) error {
		return generateAPIKey(cmd.OutOrStdout(), apiKeyName, apiKeyScopes)
	},
}

func init() {
	apiKeyCmd.Flags().StringVar(&apiKeyName, "name", "", "key owner, used as the principal subject")
	apiKeyCmd.Flags().StringSliceVar(&apiKeyScopes, "scopes", []string{auth.ScopeChat}, "granted scopes")
	_ = apiKeyCmd.MarkFlagRequired("name")
	rootCmd.AddCommand(apiKeyCmd)
}

type apiKeyEntry struct {
	Name   string   `yaml:"name"`
	Prefix string   `yaml:"prefix"`
	Hash   string   `yaml:"hash"`
	Scopes []string `yaml:"scopes,flow"`
}

func generateAPIKey(out io.Writer, name string, scopes []string) error {
	key, entry, err := auth.GenerateAPIKey(name, scopes)
	if err != nil {
		return err
	}
	snippet, err := yaml.Marshal(map[string]any{
		"auth": map[string]any{
			"api_keys": []apiKeyEntry{{Name: entry.Name, Prefix: entry.Prefix, Hash: entry.Hash, Scopes: entry.Scopes}},
		},
	})
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "API key: %s\n\n", key)
	fmt.Fprintf(out, "%s", snippet)
	return nil
}
