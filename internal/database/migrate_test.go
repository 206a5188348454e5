package database

import (
	"context"
	"io/fs"
	"regexp"
	"testing"
	"testing/fstest"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testMigrations() fstest.MapFS {
	return fstest.MapFS{
		"migrations/000001_init.up.sql":    {Data: []byte("-- tables\nCREATE TABLE a (id NUMBER);\nCREATE TABLE b (id NUMBER);\n")},
		"migrations/000001_init.down.sql":  {Data: []byte("DROP TABLE b;\nDROP TABLE a;\n")},
		"migrations/000002_index.up.sql":   {Data: []byte("CREATE INDEX idx_a ON a(id);")},
		"migrations/000002_index.down.sql": {Data: []byte("DROP INDEX idx_a;")},
	}
}

func newMockDB(t *testing.T) (*sqlx.DB, sqlmock.Sqlmock) {
	mockDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { mockDB.Close() })
	return sqlx.NewDb(mockDB, "sqlmock"), mock
}

func TestMigrator_Up_FreshSchema(t *testing.T) {
	db, mock := newMockDB(t)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT COUNT(*) FROM user_tables WHERE table_name = :1")).
		WithArgs("SCHEMA_MIGRATIONS").
		WillReturnRows(sqlmock.NewRows([]string{"COUNT"}).AddRow(0))
	mock.ExpectExec("CREATE TABLE schema_migrations").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery(regexp.QuoteMeta("SELECT version FROM schema_migrations")).
		WillReturnRows(sqlmock.NewRows([]string{"VERSION"}))
	mock.ExpectExec(regexp.QuoteMeta("CREATE TABLE a (id NUMBER)")).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec(regexp.QuoteMeta("CREATE TABLE b (id NUMBER)")).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO schema_migrations (version) VALUES (:1)")).
		WithArgs(int64(1)).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta("CREATE INDEX idx_a ON a(id)")).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO schema_migrations (version) VALUES (:1)")).
		WithArgs(int64(2)).WillReturnResult(sqlmock.NewResult(0, 1))

	count, err := NewMigrator(db, testMigrations(), "migrations").Up(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, count)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestMigrator_Up_SkipsAppliedVersions(t *testing.T) {
	db, mock := newMockDB(t)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT COUNT(*) FROM user_tables")).
		WillReturnRows(sqlmock.NewRows([]string{"COUNT"}).AddRow(1))
	mock.ExpectQuery(regexp.QuoteMeta("SELECT version FROM schema_migrations")).
		WillReturnRows(sqlmock.NewRows([]string{"VERSION"}).AddRow(int64(1)))
	mock.ExpectExec(regexp.QuoteMeta("CREATE INDEX idx_a ON a(id)")).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO schema_migrations (version) VALUES (:1)")).
		WithArgs(int64(2)).WillReturnResult(sqlmock.NewResult(0, 1))

	count, err := NewMigrator(db, testMigrations(), "migrations").Up(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, count)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestMigrator_Up_StopsOnFailedStatement(t *testing.T) {
	db, mock := newMockDB(t)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT COUNT(*) FROM user_tables")).
		WillReturnRows(sqlmock.NewRows([]string{"COUNT"}).AddRow(1))
	mock.ExpectQuery(regexp.QuoteMeta("SELECT version FROM schema_migrations")).
		WillReturnRows(sqlmock.NewRows([]string{"VERSION"}))
	mock.ExpectExec(regexp.QuoteMeta("CREATE TABLE a (id NUMBER)")).WillReturnError(assert.AnError)

	count, err := NewMigrator(db, testMigrations(), "migrations").Up(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "init")
	assert.Equal(t, 0, count)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestMigrator_Down_RevertsLatest(t *testing.T) {
	db, mock := newMockDB(t)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT COUNT(*) FROM user_tables")).
		WillReturnRows(sqlmock.NewRows([]string{"COUNT"}).AddRow(1))
	mock.ExpectQuery(regexp.QuoteMeta("SELECT version FROM schema_migrations")).
		WillReturnRows(sqlmock.NewRows([]string{"VERSION"}).AddRow(int64(1)).AddRow(int64(2)))
	mock.ExpectExec(regexp.QuoteMeta("DROP INDEX idx_a")).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM schema_migrations WHERE version = :1")).
		WithArgs(int64(2)).WillReturnResult(sqlmock.NewResult(0, 1))

	count, err := NewMigrator(db, testMigrations(), "migrations").Down(context.Background(), 1)
	require.NoError(t, err)
	assert.Equal(t, 1, count)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSplitStatements(t *testing.T) {
	script := "-- header\nCREATE TABLE x (\n  id NUMBER\n);\n\n  ;\nCREATE INDEX i ON x(id);\n"
	assert.Equal(t, []string{"CREATE TABLE x (\n  id NUMBER\n)", "CREATE INDEX i ON x(id)"}, SplitStatements(script))
}

func TestEmbeddedMigrationsArePaired(t *testing.T) {
	entries, err := fs.ReadDir(embeddedMigrations, "migrations")
	require.NoError(t, err)
	require.NotEmpty(t, entries)

	ups, downs := 0, 0
	for _, e := range entries {
		switch {
		case regexp.MustCompile(`^\d{6}_\w+\.up\.sql$`).MatchString(e.Name()):
			ups++
		case regexp.MustCompile(`^\d{6}_\w+\.down\.sql$`).MatchString(e.Name()):
			downs++
		}
	}
	assert.Equal(t, ups, downs)
	assert.Equal(t, len(entries), ups+downs)
}
