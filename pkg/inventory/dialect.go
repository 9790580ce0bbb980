package inventory

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
)

// Dialect инкапсулирует различия SQL-диалектов целевых баз:
// стиль плейсхолдеров и форму атомарного upsert.
type Dialect interface {
	// Name — логическое имя диалекта (sqlite, postgres, mysql, sqlserver).
	Name() string
	// DriverName — имя зарегистрированного database/sql драйвера.
	DriverName() string
	// Placeholder — плейсхолдер для аргумента n (нумерация с 1).
	Placeholder(n int) string
	// Upsert выполняет атомарный insert-or-update по 27 аргументам контракта.
	Upsert(ctx context.Context, db *sql.DB, args []any) (UpsertResult, error)
}

// dialectFactory создает диалект по имени.
type dialectFactory func() Dialect

var dialects = map[string]dialectFactory{}

// RegisterDialect регистрирует фабрику диалекта в глобальном реестре.
func RegisterDialect(name string, factory dialectFactory) {
	dialects[name] = factory
}

// NewDialect возвращает диалект по имени.
func NewDialect(name string) (Dialect, error) {
	factory, ok := dialects[strings.ToLower(name)]
	if !ok {
		return nil, fmt.Errorf("unsupported target dialect '%s', must be one of: sqlite, postgres, mysql, sqlserver", name)
	}
	return factory(), nil
}

func init() {
	RegisterDialect("sqlite", func() Dialect { return sqliteDialect{} })
	RegisterDialect("postgres", func() Dialect { return postgresDialect{} })
	RegisterDialect("mysql", func() Dialect { return mysqlDialect{} })
	RegisterDialect("sqlserver", func() Dialect { return mssqlDialect{} })
	RegisterDialect("mssql", func() Dialect { return mssqlDialect{} })
}

// nonKeyColumns — колонки контракта без ключа (vin, dealer_id).
func nonKeyColumns() []string {
	cols := make([]string, 0, len(UpsertColumns)-2)
	for _, col := range UpsertColumns {
		if col != "vin" && col != "dealer_id" {
			cols = append(cols, col)
		}
	}
	return cols
}

// ========== SQLite ==========

type sqliteDialect struct{}

func (sqliteDialect) Name() string          { return "sqlite" }
func (sqliteDialect) DriverName() string    { return "sqlite" } // modernc.org/sqlite
func (sqliteDialect) Placeholder(int) string { return "?" }

// Upsert: INSERT ... ON CONFLICT DO UPDATE с RETURNING id.
// SQLite не сообщает, была ли строка вставлена — наличие ключа проверяется
// в той же транзакции до upsert.
func (d sqliteDialect) Upsert(ctx context.Context, db *sql.DB, args []any) (UpsertResult, error) {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return UpsertResult{}, fmt.Errorf("begin upsert tx: %w", err)
	}
	defer tx.Rollback()

	var count int
	checkSQL := fmt.Sprintf("SELECT COUNT(1) FROM %s WHERE vin = ? AND dealer_id = ?", TableName)
	if err := tx.QueryRowContext(ctx, checkSQL, args[1], args[0]).Scan(&count); err != nil {
		return UpsertResult{}, fmt.Errorf("check key: %w", err)
	}

	var sets []string
	for _, col := range nonKeyColumns() {
		sets = append(sets, fmt.Sprintf("%s = excluded.%s", col, col))
	}

	query := fmt.Sprintf(
		"INSERT INTO %s (%s) VALUES (%s) ON CONFLICT(vin, dealer_id) DO UPDATE SET %s RETURNING id",
		TableName,
		strings.Join(UpsertColumns, ", "),
		placeholders("?", len(UpsertColumns)),
		strings.Join(sets, ", "))

	var id int64
	if err := tx.QueryRowContext(ctx, query, args...).Scan(&id); err != nil {
		return UpsertResult{}, fmt.Errorf("upsert: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return UpsertResult{}, fmt.Errorf("commit upsert: %w", err)
	}
	return UpsertResult{ID: id, Inserted: count == 0}, nil
}

// ========== PostgreSQL ==========

type postgresDialect struct{}

func (postgresDialect) Name() string       { return "postgres" }
func (postgresDialect) DriverName() string { return "pgx" } // jackc/pgx/v5/stdlib
func (postgresDialect) Placeholder(n int) string {
	return fmt.Sprintf("$%d", n)
}

// Upsert: ON CONFLICT ... RETURNING id, (xmax = 0) — xmax равен нулю
// только у свежевставленной строки.
func (d postgresDialect) Upsert(ctx context.Context, db *sql.DB, args []any) (UpsertResult, error) {
	var sets []string
	for _, col := range nonKeyColumns() {
		sets = append(sets, fmt.Sprintf("%s = excluded.%s", col, col))
	}

	params := make([]string, len(UpsertColumns))
	for i := range params {
		params[i] = fmt.Sprintf("$%d", i+1)
	}

	query := fmt.Sprintf(
		"INSERT INTO %s (%s) VALUES (%s) ON CONFLICT (vin, dealer_id) DO UPDATE SET %s RETURNING id, (xmax = 0)",
		TableName,
		strings.Join(UpsertColumns, ", "),
		strings.Join(params, ", "),
		strings.Join(sets, ", "))

	var result UpsertResult
	if err := db.QueryRowContext(ctx, query, args...).Scan(&result.ID, &result.Inserted); err != nil {
		return UpsertResult{}, fmt.Errorf("upsert: %w", err)
	}
	return result, nil
}

// ========== MySQL ==========

type mysqlDialect struct{}

func (mysqlDialect) Name() string           { return "mysql" }
func (mysqlDialect) DriverName() string     { return "mysql" }
func (mysqlDialect) Placeholder(int) string { return "?" }

// Upsert: ON DUPLICATE KEY UPDATE с трюком id = LAST_INSERT_ID(id),
// чтобы LastInsertId возвращал id и при обновлении.
// RowsAffected: 1 — вставка, 2 — обновление.
func (d mysqlDialect) Upsert(ctx context.Context, db *sql.DB, args []any) (UpsertResult, error) {
	sets := []string{"id = LAST_INSERT_ID(id)"}
	for _, col := range nonKeyColumns() {
		sets = append(sets, fmt.Sprintf("%s = VALUES(%s)", col, col))
	}

	query := fmt.Sprintf(
		"INSERT INTO %s (%s) VALUES (%s) ON DUPLICATE KEY UPDATE %s",
		TableName,
		strings.Join(UpsertColumns, ", "),
		placeholders("?", len(UpsertColumns)),
		strings.Join(sets, ", "))

	res, err := db.ExecContext(ctx, query, args...)
	if err != nil {
		return UpsertResult{}, fmt.Errorf("upsert: %w", err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return UpsertResult{}, fmt.Errorf("upsert id: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return UpsertResult{}, fmt.Errorf("upsert rows affected: %w", err)
	}

	return UpsertResult{ID: id, Inserted: affected == 1}, nil
}

// ========== MSSQL ==========

type mssqlDialect struct{}

func (mssqlDialect) Name() string       { return "sqlserver" }
func (mssqlDialect) DriverName() string { return "sqlserver" } // denisenkom/go-mssqldb
func (mssqlDialect) Placeholder(n int) string {
	return fmt.Sprintf("@p%d", n)
}

// Upsert: MERGE с OUTPUT $action, inserted.id.
func (d mssqlDialect) Upsert(ctx context.Context, db *sql.DB, args []any) (UpsertResult, error) {
	params := make([]string, len(UpsertColumns))
	for i := range params {
		params[i] = fmt.Sprintf("@p%d", i+1)
	}

	var sets []string
	for _, col := range nonKeyColumns() {
		sets = append(sets, fmt.Sprintf("t.%s = s.%s", col, col))
	}

	srcCols := make([]string, len(UpsertColumns))
	for i, col := range UpsertColumns {
		srcCols[i] = "s." + col
	}

	query := fmt.Sprintf(`MERGE %s AS t
USING (VALUES (%s)) AS s (%s)
ON t.vin = s.vin AND t.dealer_id = s.dealer_id
WHEN MATCHED THEN UPDATE SET %s
WHEN NOT MATCHED THEN INSERT (%s) VALUES (%s)
OUTPUT $action, inserted.id;`,
		TableName,
		strings.Join(params, ", "),
		strings.Join(UpsertColumns, ", "),
		strings.Join(sets, ", "),
		strings.Join(UpsertColumns, ", "),
		strings.Join(srcCols, ", "))

	var action string
	var result UpsertResult
	if err := db.QueryRowContext(ctx, query, args...).Scan(&action, &result.ID); err != nil {
		return UpsertResult{}, fmt.Errorf("upsert: %w", err)
	}
	result.Inserted = strings.EqualFold(action, "INSERT")
	return result, nil
}

// placeholders — "?, ?, ?" n раз.
func placeholders(p string, n int) string {
	parts := make([]string, n)
	for i := range parts {
		parts[i] = p
	}
	return strings.Join(parts, ", ")
}
