// Package clients provides read-only access to the reference client dataset used by
// the lookup tools.
package clients

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/Kocoro-lab/lina/internal/features"
)

// ErrNotFound is returned by Get for unknown ids.
var ErrNotFound = errors.New("client not found")

// DefaultName is reported by List for clients without personal data.
const DefaultName = "Sem nome"

// Client joins the financial and personal records of one client.
type Client struct {
	ID               string  `json:"id" db:"id"`
	Income           float64 `json:"renda" db:"renda"`
	Debt             float64 `json:"divida" db:"divida"`
	Score            float64 `json:"score" db:"score"`
	EmploymentMonths int     `json:"tempo_emprego" db:"tempo_emprego"`
	Age              int     `json:"idade" db:"idade"`
	Name             string  `json:"nome,omitempty" db:"nome"`
	Profession       string  `json:"profissao,omitempty" db:"profissao"`
	Gender           string  `json:"genero,omitempty" db:"genero"`
	BirthDate        string  `json:"data_nascimento,omitempty" db:"data_nascimento"`
}

// Attributes returns the raw attributes the decision pipeline consumes.
func (c *Client) Attributes() features.Attributes {
	return features.Attributes{
		Income:           c.Income,
		Debt:             c.Debt,
		ExternalScore:    c.Score,
		EmploymentMonths: float64(c.EmploymentMonths),
		Age:              float64(c.Age),
	}
}

// Summary is the listing form of a client.
type Summary struct {
	ID   string `json:"id" db:"id"`
	Name string `json:"nome" db:"nome"`
}

// Store is a read-only client dataset. Implementations are safe for concurrent use.
type Store interface {
	Get(ctx context.Context, id string) (*Client, error)
	List(ctx context.Context) ([]Summary, error)
	Close() error
}

// Config selects and configures a Store backend.
type Config struct {
	Driver       string `mapstructure:"driver"` // csv, postgres, sqlite
	FinancialCSV string `mapstructure:"financial_csv"`
	PersonalCSV  string `mapstructure:"personal_csv"`
	DSN          string `mapstructure:"dsn"`
	AutoMigrate  bool   `mapstructure:"auto_migrate"`
	MaxOpenConns int    `mapstructure:"max_open_conns"`
}

// Open builds the configured Store.
func Open(ctx context.Context, cfg Config, logger *zap.Logger) (Store, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	switch cfg.Driver {
	case "", DriverCSV:
		return NewCSVStore(cfg.FinancialCSV, cfg.PersonalCSV, logger)
	case DriverPostgres, DriverSQLite:
		return NewSQLStore(ctx, cfg, logger)
	default:
		return nil, fmt.Errorf("unknown client store driver %q", cfg.Driver)
	}
}
