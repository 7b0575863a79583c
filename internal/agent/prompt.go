package agent

import (
	"errors"
	"os"
	"strings"
	"sync"

	"go.uber.org/zap"
)

// DefaultSystemPrompt is used when no prompt file is available.
const DefaultSystemPrompt = "Você é um assistente de análise de crédito."

// PromptSource supplies the system prompt injected into new conversations.
type PromptSource interface {
	SystemPrompt() string
}

// StaticPrompt is a fixed prompt.
type StaticPrompt string

// SystemPrompt returns the prompt text.
func (p StaticPrompt) SystemPrompt() string { return string(p) }

// FilePrompt serves the contents of a prompt file and re-reads it on Reload.
type FilePrompt struct {
	path   string
	logger *zap.Logger

	mu     sync.RWMutex
	prompt string
}

// NewFilePrompt loads path. A missing or empty file falls back to DefaultSystemPrompt.
func NewFilePrompt(path string, logger *zap.Logger) *FilePrompt {
	if logger == nil {
		logger = zap.NewNop()
	}
	p := &FilePrompt{path: path, logger: logger, prompt: DefaultSystemPrompt}
	if err := p.Reload(); err != nil {
		logger.Warn("Using default system prompt", zap.String("path", path), zap.Error(err))
	}
	return p
}

// Path returns the watched file.
func (p *FilePrompt) Path() string { return p.path }

// SystemPrompt returns the current prompt.
func (p *FilePrompt) SystemPrompt() string {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.prompt
}

// Reload re-reads the file. On failure the previous prompt stays in place, except
// that a deleted file reverts to DefaultSystemPrompt.
func (p *FilePrompt) Reload() error {
	if p.path == "" {
		return errors.New("no prompt file configured")
	}
	data, err := os.ReadFile(p.path)
	if errors.Is(err, os.ErrNotExist) {
		p.set(DefaultSystemPrompt)
		return err
	}
	if err != nil {
		return err
	}
	text := strings.TrimSpace(string(data))
	if text == "" {
		text = DefaultSystemPrompt
	}
	p.set(text)
	p.logger.Info("System prompt loaded", zap.String("path", p.path), zap.Int("bytes", len(text)))
	return nil
}

func (p *FilePrompt) set(text string) {
	p.mu.Lock()
	p.prompt = text
	p.mu.Unlock()
}
