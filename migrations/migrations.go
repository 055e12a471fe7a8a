// migrations содержит SQL-миграции схемы для PostgreSQL и SQLite
// и применяет их через goose.
package migrations

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"io/fs"

	"github.com/pressly/goose/v3"
)

//go:embed postgres/*.sql sqlite/*.sql
var files embed.FS

// Диалекты, для которых есть миграции.
const (
	Postgres = "postgres"
	SQLite   = "sqlite"
)

// FS возвращает файловую систему миграций для диалекта.
func FS(dialect string) (fs.FS, error) {
	const op = "migrations.FS"

	switch dialect {
	case Postgres, SQLite:
	default:
		return nil, fmt.Errorf("%s: unknown dialect %q", op, dialect)
	}

	sub, err := fs.Sub(files, dialect)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return sub, nil
}

// Up применяет все недостающие миграции диалекта к db.
// Используется goose.Provider без глобального состояния goose,
// поэтому безопасно для параллельных вызовов на разных БД.
func Up(ctx context.Context, db *sql.DB, dialect string) error {
	const op = "migrations.Up"

	fsys, err := FS(dialect)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	gd := goose.DialectPostgres
	if dialect == SQLite {
		gd = goose.DialectSQLite3
	}

	p, err := goose.NewProvider(gd, db, fsys)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	if _, err := p.Up(ctx); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	return nil
}
