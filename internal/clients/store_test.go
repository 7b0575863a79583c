package clients

import (
	"context"
	"path/filepath"
	"regexp"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func newCSVStore(t *testing.T) *CSVStore {
	t.Helper()
	s, err := NewCSVStore("testdata/clientes.csv", "testdata/clientes_dados.csv", zaptest.NewLogger(t))
	require.NoError(t, err)
	return s
}

func TestCSVStoreGet(t *testing.T) {
	s := newCSVStore(t)

	c, err := s.Get(context.Background(), "1001")
	require.NoError(t, err)
	assert.Equal(t, "Ana Souza", c.Name)
	assert.Equal(t, 18000.0, c.Income)
	assert.Equal(t, 48, c.EmploymentMonths)
	assert.Equal(t, 40, c.Age)
	assert.Equal(t, "1985-03-12", c.BirthDate)

	attrs := c.Attributes()
	assert.Equal(t, 850.0, attrs.ExternalScore)
	assert.Equal(t, 48.0, attrs.EmploymentMonths)
}

func TestCSVStoreGetUnknown(t *testing.T) {
	s := newCSVStore(t)

	_, err := s.Get(context.Background(), "9999")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestCSVStoreSkipsMalformedRows(t *testing.T) {
	s := newCSVStore(t)
	ctx := context.Background()

	_, err := s.Get(ctx, "1004")
	assert.ErrorIs(t, err, ErrNotFound, "non numeric row")
	_, err = s.Get(ctx, "1005")
	assert.ErrorIs(t, err, ErrNotFound, "short row")
}

func TestCSVStoreListKeepsFileOrderAndDefaultsName(t *testing.T) {
	s := newCSVStore(t)

	list, err := s.List(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []Summary{
		{ID: "1001", Name: "Ana Souza"},
		{ID: "1002", Name: "Bruno Lima"},
		{ID: "1003", Name: "Carla Dias"},
		{ID: "1006", Name: DefaultName},
	}, list)
}

func TestCSVStoreReturnsCopies(t *testing.T) {
	s := newCSVStore(t)
	ctx := context.Background()

	c, err := s.Get(ctx, "1001")
	require.NoError(t, err)
	c.Name = "changed"

	again, err := s.Get(ctx, "1001")
	require.NoError(t, err)
	assert.Equal(t, "Ana Souza", again.Name)
}

func TestCSVStoreMissingFiles(t *testing.T) {
	_, err := NewCSVStore(filepath.Join(t.TempDir(), "nope.csv"), "", zaptest.NewLogger(t))
	assert.Error(t, err)

	s, err := NewCSVStore("testdata/clientes.csv", filepath.Join(t.TempDir(), "nope.csv"), zaptest.NewLogger(t))
	require.NoError(t, err)
	c, err := s.Get(context.Background(), "1001")
	require.NoError(t, err)
	assert.Empty(t, c.Name)
}

func TestOpenRejectsUnknownDriver(t *testing.T) {
	_, err := Open(context.Background(), Config{Driver: "mongo"}, zaptest.NewLogger(t))
	assert.Error(t, err)
}

func newMockStore(t *testing.T) (*SQLStore, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return NewSQLStoreFromDB(sqlx.NewDb(db, "sqlmock"), zaptest.NewLogger(t)), mock
}

func TestSQLStoreGet(t *testing.T) {
	s, mock := newMockStore(t)

	rows := sqlmock.NewRows([]string{"id", "renda", "divida", "score", "tempo_emprego", "idade", "nome", "profissao", "genero", "data_nascimento"}).
		AddRow("1001", 18000.0, 1500.0, 850.0, 48, 40, "Ana Souza", "Engenheira", "F", "1985-03-12")
	mock.ExpectQuery(regexp.QuoteMeta(selectClient)).WithArgs("1001").WillReturnRows(rows)

	c, err := s.Get(context.Background(), " 1001 ")
	require.NoError(t, err)
	assert.Equal(t, "Ana Souza", c.Name)
	assert.Equal(t, 850.0, c.Score)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSQLStoreGetWithoutPersonalData(t *testing.T) {
	s, mock := newMockStore(t)

	rows := sqlmock.NewRows([]string{"id", "renda", "divida", "score", "tempo_emprego", "idade", "nome", "profissao", "genero", "data_nascimento"}).
		AddRow("1006", 8000.0, 5000.0, 700.0, 24, 30, nil, nil, nil, nil)
	mock.ExpectQuery(regexp.QuoteMeta(selectClient)).WithArgs("1006").WillReturnRows(rows)

	c, err := s.Get(context.Background(), "1006")
	require.NoError(t, err)
	assert.Empty(t, c.Name)
	assert.Equal(t, 24, c.EmploymentMonths)
}

func TestSQLStoreGetNotFound(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectQuery(regexp.QuoteMeta(selectClient)).WithArgs("404").
		WillReturnRows(sqlmock.NewRows([]string{"id"}))

	_, err := s.Get(context.Background(), "404")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestSQLStoreList(t *testing.T) {
	s, mock := newMockStore(t)

	rows := sqlmock.NewRows([]string{"id", "nome"}).
		AddRow("1001", "Ana Souza").
		AddRow("1006", "")
	mock.ExpectQuery(regexp.QuoteMeta(selectSummaries)).WillReturnRows(rows)

	list, err := s.List(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []Summary{{ID: "1001", Name: "Ana Souza"}, {ID: "1006", Name: DefaultName}}, list)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSQLiteStoreEndToEnd(t *testing.T) {
	ctx := context.Background()
	dsn := "file:" + filepath.Join(t.TempDir(), "clients.db")
	s, err := NewSQLStore(ctx, Config{Driver: DriverSQLite, DSN: dsn, AutoMigrate: true}, zaptest.NewLogger(t))
	require.NoError(t, err)
	defer s.Close()

	_, err = s.db.ExecContext(ctx, `INSERT INTO clientes (id, renda, divida, score, tempo_emprego, idade) VALUES ('1', 5000, 100, 700, 12, 30), ('2', 9000, 0, 800, 60, 50)`)
	require.NoError(t, err)
	_, err = s.db.ExecContext(ctx, `INSERT INTO clientes_dados (id, nome, profissao, genero, data_nascimento) VALUES ('1', 'Ana', 'Dev', 'F', '1995-01-01')`)
	require.NoError(t, err)

	c, err := s.Get(ctx, "1")
	require.NoError(t, err)
	assert.Equal(t, "Ana", c.Name)

	list, err := s.List(ctx)
	require.NoError(t, err)
	assert.Equal(t, []Summary{{ID: "1", Name: "Ana"}, {ID: "2", Name: DefaultName}}, list)

	require.NoError(t, s.Ping(ctx))
}
