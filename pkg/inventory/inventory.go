// Package inventory реализует идемпотентную запись автомобильных записей
// в целевую таблицу дилера, с натуральным ключом (vin, dealer_id) и
// диалектными стратегиями upsert для sqlite/postgres/mysql/mssql.
package inventory

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
)

// TableName — целевая таблица инвентаря.
const TableName = "dealer_vehicle_inventory"

// Политики обработки дубликатов.
const (
	DupSkip   = "skip"
	DupUpdate = "update"
	DupUpsert = "insert-or-update" // по умолчанию
)

// UpsertColumns — контракт атомарного upsert: ровно эти колонки,
// ровно в этом порядке.
var UpsertColumns = []string{
	"dealer_id",
	"vin",
	"make",
	"model",
	"series",
	"stock_number",
	"new_used",
	"body_style",
	"certified",
	"color",
	"interior_color",
	"engine_type",
	"displacement",
	"features",
	"odometer",
	"price",
	"other_price",
	"transmission",
	"msrp",
	"dealer_discount",
	"consumer_rebate",
	"dealer_accessories",
	"total_customer_savings",
	"total_dealer_rebate",
	"photo_url_list",
	"year",
	"reference_dealer_id",
}

// Outcome — результат применения одной записи.
type Outcome int

const (
	OutcomeInserted Outcome = iota
	OutcomeUpdated
	OutcomeSkipped
)

// String возвращает имя исхода.
func (o Outcome) String() string {
	switch o {
	case OutcomeInserted:
		return "inserted"
	case OutcomeUpdated:
		return "updated"
	default:
		return "skipped"
	}
}

// UpsertResult — исход атомарного upsert в целевом хранилище.
type UpsertResult struct {
	ID       int64
	Inserted bool
}

// Store — целевое хранилище инвентаря поверх database/sql.
type Store struct {
	db      *sql.DB
	dialect Dialect
}

// Open открывает хранилище. Driver: sqlite, postgres, mysql, sqlserver.
func Open(ctx context.Context, driver, dsn string) (*Store, error) {
	dialect, err := NewDialect(driver)
	if err != nil {
		return nil, err
	}

	db, err := sql.Open(dialect.DriverName(), dsn)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", driver, err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping %s: %w", driver, err)
	}

	return &Store{db: db, dialect: dialect}, nil
}

// NewStore оборачивает существующее соединение (для тестов и встраивания).
func NewStore(db *sql.DB, dialect Dialect) *Store {
	return &Store{db: db, dialect: dialect}
}

// Close закрывает соединение с базой.
func (s *Store) Close() error {
	return s.db.Close()
}

// DB возвращает нижележащее соединение.
func (s *Store) DB() *sql.DB {
	return s.db
}

// Apply применяет одну преобразованную запись согласно политике дубликатов.
//
//	skip:             ключ существует — no-op (skipped), иначе вставка
//	update:           ключ существует — merge только присутствующих полей, иначе вставка
//	insert-or-update: один атомарный upsert по всем колонкам контракта
func (s *Store) Apply(ctx context.Context, dealerID string, record map[string]any, policy string) (Outcome, error) {
	vin, ok := recordValue(record, "vin").(string)
	if !ok || strings.TrimSpace(vin) == "" {
		return OutcomeSkipped, fmt.Errorf("record has no vin value")
	}

	switch policy {
	case DupSkip:
		exists, err := s.exists(ctx, vin, dealerID)
		if err != nil {
			return OutcomeSkipped, err
		}
		if exists {
			return OutcomeSkipped, nil
		}
		if _, err := s.dialect.Upsert(ctx, s.db, s.upsertArgs(dealerID, vin, record)); err != nil {
			return OutcomeSkipped, err
		}
		return OutcomeInserted, nil

	case DupUpdate:
		exists, err := s.exists(ctx, vin, dealerID)
		if err != nil {
			return OutcomeSkipped, err
		}
		if !exists {
			if _, err := s.dialect.Upsert(ctx, s.db, s.upsertArgs(dealerID, vin, record)); err != nil {
				return OutcomeSkipped, err
			}
			return OutcomeInserted, nil
		}
		if err := s.merge(ctx, vin, dealerID, record); err != nil {
			return OutcomeSkipped, err
		}
		return OutcomeUpdated, nil

	default: // insert-or-update
		result, err := s.dialect.Upsert(ctx, s.db, s.upsertArgs(dealerID, vin, record))
		if err != nil {
			return OutcomeSkipped, err
		}
		if result.Inserted {
			return OutcomeInserted, nil
		}
		return OutcomeUpdated, nil
	}
}

// exists проверяет наличие строки по ключу (vin, dealer_id).
func (s *Store) exists(ctx context.Context, vin, dealerID string) (bool, error) {
	query := fmt.Sprintf("SELECT COUNT(1) FROM %s WHERE vin = %s AND dealer_id = %s",
		TableName, s.dialect.Placeholder(1), s.dialect.Placeholder(2))

	var count int
	if err := s.db.QueryRowContext(ctx, query, vin, dealerID).Scan(&count); err != nil {
		return false, fmt.Errorf("check existing row: %w", err)
	}
	return count > 0, nil
}

// merge обновляет только присутствующие в записи колонки контракта.
func (s *Store) merge(ctx context.Context, vin, dealerID string, record map[string]any) error {
	var sets []string
	var args []any

	for _, col := range UpsertColumns {
		if col == "vin" || col == "dealer_id" {
			continue
		}
		value, present := lookupColumn(record, col)
		if !present {
			continue
		}
		args = append(args, value)
		sets = append(sets, fmt.Sprintf("%s = %s", col, s.dialect.Placeholder(len(args))))
	}

	if len(sets) == 0 {
		return nil
	}

	args = append(args, vin, dealerID)
	query := fmt.Sprintf("UPDATE %s SET %s WHERE vin = %s AND dealer_id = %s",
		TableName,
		strings.Join(sets, ", "),
		s.dialect.Placeholder(len(args)-1),
		s.dialect.Placeholder(len(args)))

	if _, err := s.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("merge row: %w", err)
	}
	return nil
}

// upsertArgs собирает 27 аргументов контракта в порядке UpsertColumns.
// Отсутствующие в записи поля передаются как NULL.
func (s *Store) upsertArgs(dealerID, vin string, record map[string]any) []any {
	args := make([]any, len(UpsertColumns))
	for i, col := range UpsertColumns {
		switch col {
		case "dealer_id":
			args[i] = dealerID
		case "vin":
			args[i] = vin
		case "reference_dealer_id":
			if value, present := lookupColumn(record, col); present {
				args[i] = value
			} else {
				args[i] = dealerID
			}
		default:
			value, _ := lookupColumn(record, col)
			args[i] = value
		}
	}
	return args
}

// lookupColumn ищет значение колонки в записи, принимая snake_case и
// camelCase варианты имени целевого поля (stock_number / stockNumber).
func lookupColumn(record map[string]any, column string) (any, bool) {
	if value, ok := record[column]; ok {
		return value, true
	}
	want := strings.ReplaceAll(column, "_", "")
	for key, value := range record {
		if strings.EqualFold(strings.ReplaceAll(key, "_", ""), want) {
			return value, true
		}
	}
	return nil, false
}

// recordValue — lookupColumn без флага присутствия.
func recordValue(record map[string]any, column string) any {
	value, _ := lookupColumn(record, column)
	return value
}
