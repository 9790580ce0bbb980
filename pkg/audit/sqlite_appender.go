package audit

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
)

// DatabaseAppender - запись журнала в SQL-таблицу. Обычно делит базу
// SQLite с хранилищем конфигураций, чтобы история запуска и журнал
// операций жили рядом.
type DatabaseAppender struct {
	db         *sql.DB
	tableName  string
	level      Level
	insertStmt *sql.Stmt
}

// DatabaseAppenderConfig - конфигурация database appender.
type DatabaseAppenderConfig struct {
	// DB - подключение к базе данных
	DB *sql.DB

	// TableName - имя таблицы журнала (по умолчанию audit_log)
	TableName string

	// Level - уровень детализации
	Level Level

	// AutoCreateTable - создать таблицу если не существует
	AutoCreateTable bool
}

// NewDatabaseAppender - создать database appender.
func NewDatabaseAppender(config DatabaseAppenderConfig) (*DatabaseAppender, error) {
	if config.DB == nil {
		return nil, fmt.Errorf("database connection is required")
	}

	if config.TableName == "" {
		config.TableName = "audit_log"
	}

	da := &DatabaseAppender{
		db:        config.DB,
		tableName: config.TableName,
		level:     config.Level,
	}

	if config.AutoCreateTable {
		if err := da.createTable(); err != nil {
			return nil, fmt.Errorf("failed to create audit table: %w", err)
		}
	}

	if err := da.prepareInsert(); err != nil {
		return nil, fmt.Errorf("failed to prepare insert statement: %w", err)
	}

	return da, nil
}

// createTable - создать таблицу журнала.
func (da *DatabaseAppender) createTable() error {
	query := fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS %s (
			id               TEXT PRIMARY KEY,
			timestamp        TEXT NOT NULL,
			operation        TEXT NOT NULL,
			status           TEXT NOT NULL,
			dealer_id        TEXT,
			config_id        TEXT,
			execution_id     TEXT,
			resource         TEXT,
			records_affected INTEGER DEFAULT 0,
			duration_ms      INTEGER DEFAULT 0,
			error_message    TEXT,
			metadata         TEXT
		)
	`, da.tableName)

	if _, err := da.db.Exec(query); err != nil {
		return err
	}

	indexes := []string{
		fmt.Sprintf("CREATE INDEX IF NOT EXISTS idx_%s_execution ON %s(execution_id)", da.tableName, da.tableName),
		fmt.Sprintf("CREATE INDEX IF NOT EXISTS idx_%s_config ON %s(config_id, timestamp)", da.tableName, da.tableName),
	}
	for _, indexQuery := range indexes {
		if _, err := da.db.Exec(indexQuery); err != nil {
			return err
		}
	}

	return nil
}

// prepareInsert - подготовить insert statement.
func (da *DatabaseAppender) prepareInsert() error {
	query := fmt.Sprintf(`
		INSERT INTO %s (
			id, timestamp, operation, status, dealer_id, config_id, execution_id,
			resource, records_affected, duration_ms, error_message, metadata
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, da.tableName)

	stmt, err := da.db.Prepare(query)
	if err != nil {
		return err
	}

	da.insertStmt = stmt
	return nil
}

// Append - записать entry в таблицу.
func (da *DatabaseAppender) Append(ctx context.Context, entry *Entry) error {
	filtered := entry.FilterByLevel(da.level)

	var metadata string
	if len(filtered.Metadata) > 0 {
		data, err := json.Marshal(filtered.Metadata)
		if err != nil {
			return fmt.Errorf("failed to marshal metadata: %w", err)
		}
		metadata = string(data)
	}

	_, err := da.insertStmt.ExecContext(ctx,
		filtered.ID,
		filtered.Timestamp.UTC().Format("2006-01-02T15:04:05.000000000Z07:00"),
		string(filtered.Operation),
		string(filtered.Status),
		filtered.DealerID,
		filtered.ConfigID,
		filtered.ExecutionID,
		filtered.Resource,
		filtered.RecordsAffected,
		filtered.Duration.Milliseconds(),
		filtered.ErrorMessage,
		metadata,
	)
	if err != nil {
		return fmt.Errorf("failed to insert audit entry: %w", err)
	}

	return nil
}

// Close - освободить statement. Соединение принадлежит вызывающему
// и здесь не закрывается.
func (da *DatabaseAppender) Close() error {
	if da.insertStmt != nil {
		return da.insertStmt.Close()
	}
	return nil
}
