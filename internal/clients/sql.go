package clients

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"
	"go.uber.org/zap"
)

// SQL backends.
const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
)

// Schema mirrors the two CSV files as two tables joined on id.
const Schema = `
CREATE TABLE IF NOT EXISTS clientes (
	id            TEXT PRIMARY KEY,
	renda         DOUBLE PRECISION NOT NULL,
	divida        DOUBLE PRECISION NOT NULL,
	score         DOUBLE PRECISION NOT NULL,
	tempo_emprego INTEGER NOT NULL,
	idade         INTEGER NOT NULL
);
CREATE TABLE IF NOT EXISTS clientes_dados (
	id              TEXT PRIMARY KEY REFERENCES clientes(id),
	nome            TEXT,
	profissao       TEXT,
	genero          TEXT,
	data_nascimento TEXT
);`

const (
	selectClient = `SELECT c.id, c.renda, c.divida, c.score, c.tempo_emprego, c.idade,
		d.nome, d.profissao, d.genero, d.data_nascimento
		FROM clientes c LEFT JOIN clientes_dados d ON d.id = c.id
		WHERE c.id = ?`

	selectSummaries = `SELECT c.id, COALESCE(d.nome, '') AS nome
		FROM clientes c LEFT JOIN clientes_dados d ON d.id = c.id
		ORDER BY c.id`
)

// clientRow is the scan target; personal columns are nullable through the join.
type clientRow struct {
	ID               string         `db:"id"`
	Income           float64        `db:"renda"`
	Debt             float64        `db:"divida"`
	Score            float64        `db:"score"`
	EmploymentMonths int            `db:"tempo_emprego"`
	Age              int            `db:"idade"`
	Name             sql.NullString `db:"nome"`
	Profession       sql.NullString `db:"profissao"`
	Gender           sql.NullString `db:"genero"`
	BirthDate        sql.NullString `db:"data_nascimento"`
}

// SQLStore serves clients from PostgreSQL or SQLite.
type SQLStore struct {
	db     *sqlx.DB
	logger *zap.Logger
}

// NewSQLStore connects to the configured database.
func NewSQLStore(ctx context.Context, cfg Config, logger *zap.Logger) (*SQLStore, error) {
	driverName := "postgres"
	if cfg.Driver == DriverSQLite {
		driverName = "sqlite3"
	}
	if cfg.DSN == "" {
		return nil, fmt.Errorf("client store driver %s requires a dsn", cfg.Driver)
	}

	connectCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	db, err := sqlx.ConnectContext(connectCtx, driverName, cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("failed to connect client database: %w", err)
	}

	maxOpen := cfg.MaxOpenConns
	if maxOpen <= 0 {
		maxOpen = 10
	}
	db.SetMaxOpenConns(maxOpen)
	db.SetMaxIdleConns(maxOpen / 2)
	db.SetConnMaxLifetime(5 * time.Minute)

	store := NewSQLStoreFromDB(db, logger)
	if cfg.AutoMigrate {
		if err := store.EnsureSchema(ctx); err != nil {
			db.Close()
			return nil, err
		}
	}

	logger.Info("Client database connected", zap.String("driver", driverName))
	return store, nil
}

// NewSQLStoreFromDB wraps an existing connection.
func NewSQLStoreFromDB(db *sqlx.DB, logger *zap.Logger) *SQLStore {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SQLStore{db: db, logger: logger}
}

// EnsureSchema creates the tables when they do not exist.
func (s *SQLStore) EnsureSchema(ctx context.Context) error {
	for _, stmt := range strings.Split(Schema, ";") {
		if strings.TrimSpace(stmt) == "" {
			continue
		}
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("failed to apply client schema: %w", err)
		}
	}
	return nil
}

// Get implements Store.
func (s *SQLStore) Get(ctx context.Context, id string) (*Client, error) {
	var row clientRow
	err := s.db.GetContext(ctx, &row, s.db.Rebind(selectClient), strings.TrimSpace(id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("query client %s: %w", id, err)
	}
	return &Client{
		ID:               row.ID,
		Income:           row.Income,
		Debt:             row.Debt,
		Score:            row.Score,
		EmploymentMonths: row.EmploymentMonths,
		Age:              row.Age,
		Name:             row.Name.String,
		Profession:       row.Profession.String,
		Gender:           row.Gender.String,
		BirthDate:        row.BirthDate.String,
	}, nil
}

// List implements Store, ordered by id.
func (s *SQLStore) List(ctx context.Context) ([]Summary, error) {
	var out []Summary
	if err := s.db.SelectContext(ctx, &out, selectSummaries); err != nil {
		return nil, fmt.Errorf("list clients: %w", err)
	}
	for i := range out {
		if out[i].Name == "" {
			out[i].Name = DefaultName
		}
	}
	return out, nil
}

// Ping checks connectivity for health reporting.
func (s *SQLStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close implements Store.
func (s *SQLStore) Close() error {
	return s.db.Close()
}
