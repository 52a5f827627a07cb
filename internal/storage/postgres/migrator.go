package postgres

import (
	"cmp"
	"context"
	"crypto/sha256"
	"database/sql"
	"embed"
	"encoding/hex"
	"errors"
	"fmt"
	"io/fs"
	"path"
	"regexp"
	"slices"
	"strconv"
	"strings"

	log "github.com/sirupsen/logrus"
)

//go:embed sql/migrations/*.sql
var migrationsFS embed.FS

const (
	migrationsDir = "sql/migrations"
	// migrationLock — ключ pg_advisory_lock, общий для всех экземпляров сервиса.
	migrationLock = int64(42017305)
)

const createMigrationsTable = `CREATE TABLE IF NOT EXISTS schema_migrations (
	version    BIGINT      PRIMARY KEY,
	name       TEXT        NOT NULL,
	checksum   TEXT        NOT NULL DEFAULT '',
	applied_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
)`

// <версия>_<имя>.<up|down>.sql
var migrationFileRE = regexp.MustCompile(`^(\d+)_(\w+)\.(up|down)\.sql$`)

// ErrMigrationDrift: файл уже применённой миграции изменился.
var ErrMigrationDrift = errors.New("applied migration was modified")

type migration struct {
	version int64
	name    string
	up      string
	down    string
}

func (m migration) String() string { return fmt.Sprintf("%04d_%s", m.version, m.name) }

// checksum считается по up-скрипту: именно он определяет схему.
func (m migration) checksum() string {
	sum := sha256.Sum256([]byte(m.up))
	return hex.EncodeToString(sum[:])
}

type appliedMigration struct {
	version  int64
	checksum string
}

// step — одна миграция в одном направлении.
type step struct {
	migration
	rollback bool
}

// MigrateUp применяет новые миграции; steps<=0 применяет все.
func (s *Store) MigrateUp(ctx context.Context, steps int) error {
	return s.withMigrationLock(ctx, func(all []migration, applied []appliedMigration) ([]step, error) {
		pending, err := planUp(all, applied, steps)
		return asSteps(pending, false), err
	})
}

// MigrateDown откатывает steps последних миграций, минимум одну.
func (s *Store) MigrateDown(ctx context.Context, steps int) error {
	return s.withMigrationLock(ctx, func(all []migration, applied []appliedMigration) ([]step, error) {
		last, err := planDown(all, applied, max(steps, 1))
		return asSteps(last, true), err
	})
}

// MigrationStatus — последняя применённая версия и число применённых миграций.
func (s *Store) MigrationStatus(ctx context.Context) (version int64, count int, err error) {
	if s == nil || s.db == nil {
		return 0, 0, errors.New("postgres store is not initialized")
	}
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	if _, err = s.db.ExecContext(ctx, createMigrationsTable); err != nil {
		return 0, 0, fmt.Errorf("ensure migration table: %w", err)
	}
	err = s.db.QueryRowContext(ctx, `SELECT COALESCE(MAX(version), 0), COUNT(*) FROM schema_migrations`).Scan(&version, &count)
	if err != nil {
		return 0, 0, fmt.Errorf("query migration status: %w", err)
	}
	return version, count, nil
}

type planFunc func(all []migration, applied []appliedMigration) ([]step, error)

// withMigrationLock строит план и выполняет его под advisory lock. Lock живёт
// на соединении, поэтому вся работа идёт через один *sql.Conn.
func (s *Store) withMigrationLock(ctx context.Context, plan planFunc) error {
	if s == nil || s.db == nil {
		return errors.New("postgres store is not initialized")
	}

	all, err := loadMigrationsFromFS(migrationsFS)
	if err != nil {
		return err
	}

	conn, err := s.db.Conn(ctx)
	if err != nil {
		return fmt.Errorf("acquire db connection: %w", err)
	}
	defer conn.Close()

	lockCtx, cancel := context.WithTimeout(ctx, opTimeout)
	_, err = conn.ExecContext(lockCtx, `SELECT pg_advisory_lock($1)`, migrationLock)
	cancel()
	if err != nil {
		return fmt.Errorf("acquire migration lock: %w", err)
	}
	defer func() {
		_, _ = conn.ExecContext(context.WithoutCancel(ctx), `SELECT pg_advisory_unlock($1)`, migrationLock)
	}()

	if _, err := conn.ExecContext(ctx, createMigrationsTable); err != nil {
		return fmt.Errorf("ensure migration table: %w", err)
	}
	applied, err := appliedMigrations(ctx, conn)
	if err != nil {
		return err
	}

	steps, err := plan(all, applied)
	if err != nil {
		return err
	}
	for _, st := range steps {
		if err := applyStep(ctx, conn, st); err != nil {
			return err
		}
		s.logger.WithFields(log.Fields{
			"migration": st.String(),
			"rollback":  st.rollback,
		}).Info("migration applied")
	}
	return nil
}

func asSteps(migrations []migration, rollback bool) []step {
	steps := make([]step, len(migrations))
	for i, m := range migrations {
		steps[i] = step{migration: m, rollback: rollback}
	}
	return steps
}

// planUp выбирает неприменённые миграции по возрастанию версии и проверяет,
// что применённые не менялись. Пустая сумма в базе не сверяется.
func planUp(all []migration, applied []appliedMigration, limit int) ([]migration, error) {
	sums := make(map[int64]string, len(applied))
	for _, a := range applied {
		sums[a.version] = a.checksum
	}

	var pending []migration
	for _, m := range all {
		sum, done := sums[m.version]
		switch {
		case !done:
			pending = append(pending, m)
		case sum != "" && sum != m.checksum():
			return nil, fmt.Errorf("%w: %s", ErrMigrationDrift, m)
		}
	}
	if limit > 0 {
		pending = pending[:min(limit, len(pending))]
	}
	return pending, nil
}

// planDown берёт limit последних применённых версий от новой к старой.
func planDown(all []migration, applied []appliedMigration, limit int) ([]migration, error) {
	var last []migration
	for _, a := range slices.Backward(applied) {
		if len(last) == limit {
			break
		}
		i := slices.IndexFunc(all, func(m migration) bool { return m.version == a.version })
		if i < 0 {
			return nil, fmt.Errorf("cannot roll back unknown migration version %d", a.version)
		}
		last = append(last, all[i])
	}
	return last, nil
}

// applyStep выполняет скрипт и правит schema_migrations в одной транзакции.
func applyStep(ctx context.Context, conn *sql.Conn, st step) (err error) {
	label := st.String()
	if st.rollback {
		label += " (down)"
	}

	tx, err := conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin %s: %w", label, err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	script, record, args := st.up, `INSERT INTO schema_migrations (version, name, checksum) VALUES ($1, $2, $3)`, []any{st.version, st.name, st.checksum()}
	if st.rollback {
		script, record, args = st.down, `DELETE FROM schema_migrations WHERE version = $1`, []any{st.version}
	}

	if _, err = tx.ExecContext(ctx, script); err != nil {
		return fmt.Errorf("execute %s: %w", label, err)
	}
	if _, err = tx.ExecContext(ctx, record, args...); err != nil {
		return fmt.Errorf("record %s: %w", label, err)
	}
	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit %s: %w", label, err)
	}
	return nil
}

func appliedMigrations(ctx context.Context, conn *sql.Conn) ([]appliedMigration, error) {
	rows, err := conn.QueryContext(ctx, `SELECT version, checksum FROM schema_migrations ORDER BY version`)
	if err != nil {
		return nil, fmt.Errorf("query applied migrations: %w", err)
	}
	defer rows.Close()

	var applied []appliedMigration
	for rows.Next() {
		var a appliedMigration
		if err := rows.Scan(&a.version, &a.checksum); err != nil {
			return nil, fmt.Errorf("scan applied migration: %w", err)
		}
		applied = append(applied, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate applied migrations: %w", err)
	}
	return applied, nil
}

// loadMigrationsFromFS собирает пары up/down. Каждой версии нужны оба файла
// с одинаковым именем и непустым телом.
func loadMigrationsFromFS(fsys fs.FS) ([]migration, error) {
	entries, err := fs.ReadDir(fsys, migrationsDir)
	if err != nil {
		return nil, fmt.Errorf("list migrations: %w", err)
	}

	byVersion := make(map[int64]*migration)
	for _, entry := range entries {
		file := entry.Name()
		if entry.IsDir() || path.Ext(file) != ".sql" {
			continue
		}
		parts := migrationFileRE.FindStringSubmatch(file)
		if parts == nil {
			return nil, fmt.Errorf("invalid migration file name: %s", file)
		}
		version, err := strconv.ParseInt(parts[1], 10, 64)
		if err != nil {
			return nil, fmt.Errorf("parse migration version %s: %w", file, err)
		}
		raw, err := fs.ReadFile(fsys, path.Join(migrationsDir, file))
		if err != nil {
			return nil, fmt.Errorf("read migration %s: %w", file, err)
		}
		body := strings.TrimSpace(string(raw))
		if body == "" {
			return nil, fmt.Errorf("migration file is empty: %s", file)
		}

		m := byVersion[version]
		switch {
		case m == nil:
			m = &migration{version: version, name: parts[2]}
			byVersion[version] = m
		case m.name != parts[2]:
			return nil, fmt.Errorf("migration %d has two names: %s and %s", version, m.name, parts[2])
		}

		script := &m.up
		if parts[3] == "down" {
			script = &m.down
		}
		if *script != "" {
			return nil, fmt.Errorf("duplicate %s migration for version %d", parts[3], version)
		}
		*script = body
	}
	if len(byVersion) == 0 {
		return nil, errors.New("no migration files found")
	}

	all := make([]migration, 0, len(byVersion))
	for _, m := range byVersion {
		if m.up == "" || m.down == "" {
			return nil, fmt.Errorf("migration %s must have both up and down files", m)
		}
		all = append(all, *m)
	}
	slices.SortFunc(all, func(a, b migration) int { return cmp.Compare(a.version, b.version) })
	return all, nil
}
