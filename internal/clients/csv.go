package clients

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"go.uber.org/zap"
)

// DriverCSV reads the dataset from two semicolon separated files.
const DriverCSV = "csv"

const (
	financialColumns = 6 // id;renda;divida;score;tempo_emprego;idade
	personalColumns  = 5 // id;nome;profissao;genero;data_nascimento
)

// CSVStore serves clients loaded once from the financial and personal files.
type CSVStore struct {
	byID  map[string]*Client
	order []string
}

// NewCSVStore loads the dataset. The financial file is required; the personal file is
// optional and only enriches clients already present in the financial file.
func NewCSVStore(financialPath, personalPath string, logger *zap.Logger) (*CSVStore, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &CSVStore{byID: make(map[string]*Client)}

	f, err := os.Open(financialPath)
	if err != nil {
		return nil, fmt.Errorf("open financial dataset: %w", err)
	}
	defer f.Close()
	if err := s.loadFinancial(f, logger); err != nil {
		return nil, fmt.Errorf("read financial dataset %s: %w", financialPath, err)
	}

	if personalPath != "" {
		p, err := os.Open(personalPath)
		switch {
		case errors.Is(err, os.ErrNotExist):
			logger.Warn("Personal client dataset not found", zap.String("path", personalPath))
		case err != nil:
			return nil, fmt.Errorf("open personal dataset: %w", err)
		default:
			defer p.Close()
			if err := s.loadPersonal(p); err != nil {
				return nil, fmt.Errorf("read personal dataset %s: %w", personalPath, err)
			}
		}
	}

	logger.Info("Client dataset loaded", zap.Int("clients", len(s.order)), zap.String("path", financialPath))
	return s, nil
}

func (s *CSVStore) loadFinancial(r io.Reader, logger *zap.Logger) error {
	return readRows(r, financialColumns, func(cols []string) {
		c, err := parseFinancial(cols)
		if err != nil {
			logger.Warn("Skipping malformed client row", zap.String("id", cols[0]), zap.Error(err))
			return
		}
		if _, dup := s.byID[c.ID]; !dup {
			s.order = append(s.order, c.ID)
		}
		s.byID[c.ID] = c
	})
}

func (s *CSVStore) loadPersonal(r io.Reader) error {
	return readRows(r, personalColumns, func(cols []string) {
		c, ok := s.byID[cols[0]]
		if !ok {
			return
		}
		c.Name = cols[1]
		c.Profession = cols[2]
		c.Gender = cols[3]
		c.BirthDate = cols[4]
	})
}

// readRows skips the header and every row shorter than minCols.
func readRows(r io.Reader, minCols int, fn func([]string)) error {
	reader := csv.NewReader(r)
	reader.Comma = ';'
	reader.FieldsPerRecord = -1
	reader.LazyQuotes = true
	reader.TrimLeadingSpace = true

	header := true
	for {
		cols, err := reader.Read()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return err
		}
		if header {
			header = false
			continue
		}
		if len(cols) < minCols {
			continue
		}
		for i := range cols {
			cols[i] = strings.TrimSpace(cols[i])
		}
		fn(cols)
	}
}

func parseFinancial(cols []string) (*Client, error) {
	income, err := strconv.ParseFloat(cols[1], 64)
	if err != nil {
		return nil, fmt.Errorf("renda: %w", err)
	}
	debt, err := strconv.ParseFloat(cols[2], 64)
	if err != nil {
		return nil, fmt.Errorf("divida: %w", err)
	}
	score, err := strconv.ParseFloat(cols[3], 64)
	if err != nil {
		return nil, fmt.Errorf("score: %w", err)
	}
	employment, err := strconv.Atoi(cols[4])
	if err != nil {
		return nil, fmt.Errorf("tempo_emprego: %w", err)
	}
	age, err := strconv.Atoi(cols[5])
	if err != nil {
		return nil, fmt.Errorf("idade: %w", err)
	}
	return &Client{
		ID:               cols[0],
		Income:           income,
		Debt:             debt,
		Score:            score,
		EmploymentMonths: employment,
		Age:              age,
	}, nil
}

// Get implements Store. The returned client is a copy.
func (s *CSVStore) Get(_ context.Context, id string) (*Client, error) {
	c, ok := s.byID[strings.TrimSpace(id)]
	if !ok {
		return nil, ErrNotFound
	}
	out := *c
	return &out, nil
}

// List implements Store, in file order.
func (s *CSVStore) List(context.Context) ([]Summary, error) {
	out := make([]Summary, 0, len(s.order))
	for _, id := range s.order {
		name := s.byID[id].Name
		if name == "" {
			name = DefaultName
		}
		out = append(out, Summary{ID: id, Name: name})
	}
	return out, nil
}

// Close implements Store.
func (s *CSVStore) Close() error { return nil }
