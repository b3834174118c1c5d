package catalog

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"io/fs"
	"log/slog"

	"github.com/pressly/goose/v3"

	_ "modernc.org/sqlite" // pure-Go SQLite driver, registers as "sqlite"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// Store is the sole durable-state owner for the upload pipeline. It wraps
// an embedded SQLite database opened in WAL mode, with goose-managed
// migrations and statements grouped by domain.
type Store struct {
	db     *sql.DB
	logger *slog.Logger

	recordStmts recordStatements
	intentStmts intentStatements
	auditStmts  auditStatements
	configStmts configStatements
}

type recordStatements struct {
	get, listOrphans, listMissing, listExpiring, upsertNew, listTrackedPaths, countByState *sql.Stmt
}

type intentStatements struct {
	insert, finish, listOpen *sql.Stmt
}

type auditStatements struct {
	insert, listByPath, listErrors *sql.Stmt
}

type configStatements struct {
	get, save *sql.Stmt
}

// walJournalSizeLimit caps the WAL file at 64 MiB before a checkpoint
// truncates it, matching the teacher's sizing of the same pragma.
const walJournalSizeLimit = 67108864

// Open creates a Store backed by the SQLite database at dbPath, applies
// pending goose migrations, and prepares all repeated statements. Use
// ":memory:" for tests.
func Open(ctx context.Context, dbPath string, logger *slog.Logger) (*Store, error) {
	if logger == nil {
		logger = slog.Default()
	}

	logger.Info("catalog: opening database", "path", dbPath)

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("catalog: open sqlite: %w", err)
	}

	if err := setPragmas(ctx, db, logger); err != nil {
		db.Close()
		return nil, err
	}

	if err := runMigrations(ctx, db, logger); err != nil {
		db.Close()
		return nil, err
	}

	s := &Store{db: db, logger: logger}

	if err := s.prepareAllStatements(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("catalog: prepare statements: %w", err)
	}

	logger.Info("catalog: database ready", "path", dbPath)

	return s, nil
}

// Close releases all prepared statements and closes the database handle.
func (s *Store) Close() error {
	return s.db.Close()
}

// Checkpoint flushes the WAL file into the main database file. Failure is
// non-fatal: a failed checkpoint recovers on the next successful open.
func (s *Store) Checkpoint() error {
	_, err := s.db.Exec("PRAGMA wal_checkpoint(TRUNCATE)")
	return err
}

func setPragmas(ctx context.Context, db *sql.DB, logger *slog.Logger) error {
	pragmas := []struct {
		sql  string
		desc string
	}{
		{"PRAGMA journal_mode = WAL", "WAL mode"},
		{"PRAGMA synchronous = FULL", "synchronous FULL"},
		{"PRAGMA foreign_keys = ON", "foreign keys"},
		{fmt.Sprintf("PRAGMA journal_size_limit = %d", walJournalSizeLimit), "journal size limit"},
		{"PRAGMA busy_timeout = 5000", "busy timeout"},
	}

	for _, p := range pragmas {
		if _, err := db.ExecContext(ctx, p.sql); err != nil {
			return fmt.Errorf("catalog: set pragma %s: %w", p.desc, err)
		}

		logger.Debug("catalog: pragma set", "pragma", p.desc)
	}

	return nil
}

// runMigrations applies all pending schema migrations via goose's
// Provider API (no global state, context-aware).
func runMigrations(ctx context.Context, db *sql.DB, logger *slog.Logger) error {
	subFS, err := fs.Sub(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("catalog: creating migration sub-filesystem: %w", err)
	}

	provider, err := goose.NewProvider(goose.DialectSQLite3, db, subFS)
	if err != nil {
		return fmt.Errorf("catalog: creating migration provider: %w", err)
	}

	results, err := provider.Up(ctx)
	if err != nil {
		return fmt.Errorf("catalog: running migrations: %w", err)
	}

	for _, r := range results {
		logger.Info("catalog: applied migration",
			slog.String("source", r.Source.Path),
			slog.Int64("duration_ms", r.Duration.Milliseconds()),
		)
	}

	return nil
}

type stmtDef struct {
	dest **sql.Stmt
	sql  string
	name string
}

func prepareAll(ctx context.Context, db *sql.DB, defs []stmtDef) error {
	for i := range defs {
		stmt, err := db.PrepareContext(ctx, defs[i].sql)
		if err != nil {
			return fmt.Errorf("catalog: prepare %s: %w", defs[i].name, err)
		}

		*defs[i].dest = stmt
	}

	return nil
}

func (s *Store) prepareAllStatements(ctx context.Context) error {
	if err := prepareAll(ctx, s.db, []stmtDef{
		{&s.recordStmts.get, sqlGetRecord, "getRecord"},
		{&s.recordStmts.listOrphans, sqlListOrphans, "listOrphans"},
		{&s.recordStmts.listMissing, sqlListMissing, "listMissing"},
		{&s.recordStmts.listExpiring, sqlListExpiring, "listExpiring"},
		{&s.recordStmts.upsertNew, sqlUpsertNew, "upsertNew"},
		{&s.recordStmts.listTrackedPaths, sqlListTrackedPaths, "listTrackedPaths"},
		{&s.recordStmts.countByState, sqlCountByState, "countByState"},
	}); err != nil {
		return err
	}

	if err := prepareAll(ctx, s.db, []stmtDef{
		{&s.intentStmts.insert, sqlInsertIntent, "insertIntent"},
		{&s.intentStmts.finish, sqlFinishIntent, "finishIntent"},
		{&s.intentStmts.listOpen, sqlListOpenIntents, "listOpenIntents"},
	}); err != nil {
		return err
	}

	if err := prepareAll(ctx, s.db, []stmtDef{
		{&s.auditStmts.insert, sqlInsertAudit, "insertAudit"},
		{&s.auditStmts.listByPath, sqlListAuditByPath, "listAuditByPath"},
		{&s.auditStmts.listErrors, sqlListAuditErrors, "listAuditErrors"},
	}); err != nil {
		return err
	}

	return prepareAll(ctx, s.db, []stmtDef{
		{&s.configStmts.get, sqlGetConfig, "getConfig"},
		{&s.configStmts.save, sqlSaveConfig, "saveConfig"},
	})
}
