package inventory

import (
	"context"
	"database/sql"
	"fmt"
	"regexp"
	"strings"

	"github.com/motorlane/feedbridge/pkg/mapping"
)

// Операторы фильтров экспорта — фиксированный набор, не планировщик запросов.
const (
	OpEquals      = "equals"
	OpNotEquals   = "not_equals"
	OpContains    = "contains"
	OpGreaterThan = "greater_than"
	OpLessThan    = "less_than"
	OpBetween     = "between"
)

// Filter — одно условие выборки экспорта.
// Значения никогда не интерполируются в текст запроса — только плейсхолдеры.
type Filter struct {
	Field    string
	Operator string
	Value    string
	Value2   string // только для between
}

// Validate проверяет фильтр: оператор из набора, имя поля — колонка таблицы.
func (f *Filter) Validate() error {
	switch f.Operator {
	case OpEquals, OpNotEquals, OpContains, OpGreaterThan, OpLessThan:
	case OpBetween:
		if f.Value2 == "" {
			return fmt.Errorf("operator 'between' requires value2")
		}
	default:
		return fmt.Errorf("unsupported operator '%s'", f.Operator)
	}
	if !isTableColumn(f.Field) {
		return fmt.Errorf("unknown filter field '%s'", f.Field)
	}
	return nil
}

// Export выполняет проекцию для экспорта: выбранные колонки — это source-поля
// правил маппинга с алиасами на target-имена, в рамках одного дилера,
// с применением скомпилированных фильтров.
func (s *Store) Export(ctx context.Context, dealerID string, mappings []mapping.FieldMapping, filters []Filter) ([]map[string]string, error) {
	if len(mappings) == 0 {
		return nil, fmt.Errorf("at least one field mapping is required for export")
	}

	ordered := make([]mapping.FieldMapping, len(mappings))
	copy(ordered, mappings)
	mapping.SortByOrder(ordered)

	selects := make([]string, len(ordered))
	targets := make([]string, len(ordered))
	for i, m := range ordered {
		column := canonicalColumn(m.SourceField)
		if column == "" {
			return nil, fmt.Errorf("source field '%s' is not a column of %s", m.SourceField, TableName)
		}
		selects[i] = column
		targets[i] = m.TargetField
	}

	args := []any{dealerID}
	where := []string{fmt.Sprintf("dealer_id = %s", s.dialect.Placeholder(1))}

	for _, f := range filters {
		if err := f.Validate(); err != nil {
			return nil, fmt.Errorf("filter on '%s': %w", f.Field, err)
		}
		clause, clauseArgs := s.compileFilter(f, len(args))
		where = append(where, clause)
		args = append(args, clauseArgs...)
	}

	query := fmt.Sprintf("SELECT %s FROM %s WHERE %s",
		strings.Join(selects, ", "), TableName, strings.Join(where, " AND "))

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("export query: %w", err)
	}
	defer rows.Close()

	var records []map[string]string
	for rows.Next() {
		values := make([]sql.NullString, len(targets))
		dest := make([]any, len(targets))
		for i := range values {
			dest[i] = &values[i]
		}
		if err := rows.Scan(dest...); err != nil {
			return nil, fmt.Errorf("scan export row: %w", err)
		}

		record := make(map[string]string, len(targets))
		for i, target := range targets {
			if values[i].Valid {
				record[target] = values[i].String
			} else {
				record[target] = ""
			}
		}
		records = append(records, record)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("export rows: %w", err)
	}

	return records, nil
}

// compileFilter компилирует один фильтр в параметризованное условие.
// offset — число уже занятых плейсхолдеров.
func (s *Store) compileFilter(f Filter, offset int) (string, []any) {
	column := canonicalColumn(f.Field)

	switch f.Operator {
	case OpEquals:
		return fmt.Sprintf("%s = %s", column, s.dialect.Placeholder(offset+1)), []any{f.Value}
	case OpNotEquals:
		return fmt.Sprintf("%s != %s", column, s.dialect.Placeholder(offset+1)), []any{f.Value}
	case OpContains:
		return fmt.Sprintf("%s LIKE %s", column, s.dialect.Placeholder(offset+1)), []any{"%" + f.Value + "%"}
	case OpGreaterThan:
		return fmt.Sprintf("%s > %s", column, s.dialect.Placeholder(offset+1)), []any{f.Value}
	case OpLessThan:
		return fmt.Sprintf("%s < %s", column, s.dialect.Placeholder(offset+1)), []any{f.Value}
	default: // between
		return fmt.Sprintf("%s BETWEEN %s AND %s",
			column, s.dialect.Placeholder(offset+1), s.dialect.Placeholder(offset+2)), []any{f.Value, f.Value2}
	}
}

var columnNameRe = regexp.MustCompile(`^[A-Za-z][A-Za-z0-9_]*$`)

// canonicalColumn приводит имя поля к колонке таблицы (stockNumber →
// stock_number). Пустая строка — поле не является колонкой.
func canonicalColumn(field string) string {
	if !columnNameRe.MatchString(field) {
		return ""
	}
	want := strings.ToLower(strings.ReplaceAll(field, "_", ""))
	if want == "id" {
		return "id"
	}
	for _, col := range UpsertColumns {
		if strings.ReplaceAll(col, "_", "") == want {
			return col
		}
	}
	return ""
}

// isTableColumn сообщает, является ли поле колонкой целевой таблицы.
func isTableColumn(field string) bool {
	return canonicalColumn(field) != ""
}
