package database

import (
	"context"
	"embed"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"sort"
	"strings"

	"exam-engine/internal/logger"

	"github.com/golang-migrate/migrate/v4/source"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"
)

//go:embed migrations/*.sql
var embeddedMigrations embed.FS

const migrationsTable = "SCHEMA_MIGRATIONS"

// Migrator applies numbered golang-migrate style files ("000001_name.up.sql")
// and records applied versions in SCHEMA_MIGRATIONS.
type Migrator struct {
	db   *sqlx.DB
	fsys fs.FS
	dir  string
}

// NewMigrator reads migrations from dir inside fsys.
func NewMigrator(db *sqlx.DB, fsys fs.FS, dir string) *Migrator {
	return &Migrator{db: db, fsys: fsys, dir: dir}
}

// RunMigrations applies every pending embedded migration.
func RunMigrations(ctx context.Context, db *sqlx.DB) (int, error) {
	return NewMigrator(db, embeddedMigrations, "migrations").Up(ctx)
}

// Up applies pending migrations in version order and returns how many ran.
func (m *Migrator) Up(ctx context.Context) (int, error) {
	src, err := iofs.New(m.fsys, m.dir)
	if err != nil {
		return 0, fmt.Errorf("could not open migrations source: %w", err)
	}
	defer src.Close()

	if err := m.ensureTable(ctx); err != nil {
		return 0, err
	}
	applied, err := m.appliedVersions(ctx)
	if err != nil {
		return 0, err
	}

	count := 0
	version, err := src.First()
	for err == nil {
		if !applied[version] {
			if err := m.apply(ctx, src, version); err != nil {
				return count, err
			}
			count++
		}
		version, err = src.Next(version)
	}
	if !errors.Is(err, fs.ErrNotExist) {
		return count, fmt.Errorf("could not iterate migrations: %w", err)
	}

	logger.Get().Info("Migrations completed successfully", zap.Int("applied", count))
	return count, nil
}

// Down reverts the latest steps applied migrations.
func (m *Migrator) Down(ctx context.Context, steps int) (int, error) {
	src, err := iofs.New(m.fsys, m.dir)
	if err != nil {
		return 0, fmt.Errorf("could not open migrations source: %w", err)
	}
	defer src.Close()

	if err := m.ensureTable(ctx); err != nil {
		return 0, err
	}
	applied, err := m.appliedVersions(ctx)
	if err != nil {
		return 0, err
	}

	versions := make([]uint, 0, len(applied))
	for v := range applied {
		versions = append(versions, v)
	}
	sort.Slice(versions, func(i, j int) bool { return versions[i] > versions[j] })
	if steps > 0 && steps < len(versions) {
		versions = versions[:steps]
	}

	count := 0
	for _, v := range versions {
		r, identifier, err := src.ReadDown(v)
		if err != nil {
			return count, fmt.Errorf("could not read down migration %d: %w", v, err)
		}
		if err := m.execScript(ctx, r, identifier); err != nil {
			return count, err
		}
		if _, err := m.db.ExecContext(ctx, "DELETE FROM schema_migrations WHERE version = :1", v); err != nil {
			return count, fmt.Errorf("could not unrecord migration %d: %w", v, err)
		}
		logger.Get().Info("Reverted migration", zap.Uint("version", v), zap.String("name", identifier))
		count++
	}
	return count, nil
}

func (m *Migrator) ensureTable(ctx context.Context) error {
	var exists int
	if err := m.db.GetContext(ctx, &exists, "SELECT COUNT(*) FROM user_tables WHERE table_name = :1", migrationsTable); err != nil {
		return fmt.Errorf("could not check migrations table: %w", err)
	}
	if exists > 0 {
		return nil
	}
	_, err := m.db.ExecContext(ctx, `CREATE TABLE schema_migrations (
		version NUMBER(19) PRIMARY KEY,
		applied_at TIMESTAMP DEFAULT SYSTIMESTAMP NOT NULL
	)`)
	if err != nil {
		return fmt.Errorf("could not create migrations table: %w", err)
	}
	return nil
}

func (m *Migrator) appliedVersions(ctx context.Context) (map[uint]bool, error) {
	var versions []int64
	if err := m.db.SelectContext(ctx, &versions, "SELECT version FROM schema_migrations"); err != nil {
		return nil, fmt.Errorf("could not load applied migrations: %w", err)
	}
	applied := make(map[uint]bool, len(versions))
	for _, v := range versions {
		applied[uint(v)] = true
	}
	return applied, nil
}

func (m *Migrator) apply(ctx context.Context, src source.Driver, version uint) error {
	r, identifier, err := src.ReadUp(version)
	if err != nil {
		return fmt.Errorf("could not read migration %d: %w", version, err)
	}
	if err := m.execScript(ctx, r, identifier); err != nil {
		return err
	}
	if _, err := m.db.ExecContext(ctx, "INSERT INTO schema_migrations (version) VALUES (:1)", version); err != nil {
		return fmt.Errorf("could not record migration %d: %w", version, err)
	}
	logger.Get().Info("Executed migration", zap.Uint("version", version), zap.String("name", identifier))
	return nil
}

// execScript runs each statement of the script separately; Oracle rejects
// multi-statement batches and trailing semicolons.
func (m *Migrator) execScript(ctx context.Context, r io.ReadCloser, identifier string) error {
	defer r.Close()
	content, err := io.ReadAll(r)
	if err != nil {
		return fmt.Errorf("could not read migration %s: %w", identifier, err)
	}
	for _, stmt := range SplitStatements(string(content)) {
		if _, err := m.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("could not execute migration %s: %w", identifier, err)
		}
	}
	return nil
}

// SplitStatements splits a script on semicolons, dropping blanks and "--" comment lines.
func SplitStatements(script string) []string {
	var lines []string
	for _, line := range strings.Split(script, "\n") {
		if strings.HasPrefix(strings.TrimSpace(line), "--") {
			continue
		}
		lines = append(lines, line)
	}
	var out []string
	for _, part := range strings.Split(strings.Join(lines, "\n"), ";") {
		if stmt := strings.TrimSpace(part); stmt != "" {
			out = append(out, stmt)
		}
	}
	return out
}
