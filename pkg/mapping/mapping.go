// Package mapping реализует декларативный движок преобразования полей фида:
// перенос source → target, очистку значений, эвристическое извлечение чисел
// из шумного текста, приведение типов и многозначное форматирование.
package mapping

import (
	"fmt"
	"sort"
	"strings"
)

// FieldType — тип целевого поля.
type FieldType string

const (
	TypeString  FieldType = "string"
	TypeInteger FieldType = "integer"
	TypeDecimal FieldType = "decimal"
	TypeBoolean FieldType = "boolean"
	TypeDate    FieldType = "date"
)

// FieldMapping — каноническое правило переноса одного поля.
// Order уникален в рамках конфигурации и задает как порядок обработки,
// так и порядок колонок при экспорте.
type FieldMapping struct {
	SourceField        string
	TargetField        string
	FieldType          FieldType // пустой = автоопределение по имени/содержимому
	IsRequired         bool
	DefaultValue       string
	TransformationRule []string // упорядоченный список операций, см. ApplyOps
	Order              int
}

// Validate проверяет корректность правила.
func (m *FieldMapping) Validate() error {
	if m.SourceField == "" {
		return fmt.Errorf("sourceField is required")
	}
	if m.TargetField == "" {
		return fmt.Errorf("targetField is required")
	}
	switch m.FieldType {
	case "", TypeString, TypeInteger, TypeDecimal, TypeBoolean, TypeDate:
	default:
		return fmt.Errorf("unsupported fieldType '%s', must be one of: string, integer, decimal, boolean, date", m.FieldType)
	}
	for _, op := range m.TransformationRule {
		if _, err := parseOp(op); err != nil {
			return fmt.Errorf("transformationRule: %w", err)
		}
	}
	return nil
}

// Normalize приводит duck-typed описание правила (из API или файла конфигурации,
// с произвольным регистром ключей: sourceField / source_field / SourceField)
// к канонической форме. Ядро трансформации потребляет только каноническую форму.
func Normalize(raw map[string]any) (FieldMapping, error) {
	lower := make(map[string]any, len(raw))
	for key, value := range raw {
		lower[strings.ToLower(strings.ReplaceAll(key, "_", ""))] = value
	}

	m := FieldMapping{
		SourceField:  stringKey(lower, "sourcefield"),
		TargetField:  stringKey(lower, "targetfield"),
		FieldType:    FieldType(strings.ToLower(stringKey(lower, "fieldtype"))),
		DefaultValue: stringKey(lower, "defaultvalue"),
	}

	if v, ok := lower["isrequired"].(bool); ok {
		m.IsRequired = v
	}
	if v, ok := lower["order"]; ok {
		switch n := v.(type) {
		case int:
			m.Order = n
		case int64:
			m.Order = int(n)
		case float64:
			m.Order = int(n)
		}
	}
	switch rule := lower["transformationrule"].(type) {
	case string:
		if rule != "" {
			m.TransformationRule = []string{rule}
		}
	case []string:
		m.TransformationRule = rule
	case []any:
		for _, op := range rule {
			s, ok := op.(string)
			if !ok {
				return FieldMapping{}, fmt.Errorf("transformationRule entries must be strings, got %T", op)
			}
			m.TransformationRule = append(m.TransformationRule, s)
		}
	}

	if err := m.Validate(); err != nil {
		return FieldMapping{}, err
	}
	return m, nil
}

// SortByOrder сортирует правила по Order (устойчиво).
func SortByOrder(mappings []FieldMapping) {
	sort.SliceStable(mappings, func(i, j int) bool {
		return mappings[i].Order < mappings[j].Order
	})
}

// stringKey достает строковое значение по нормализованному ключу.
func stringKey(m map[string]any, key string) string {
	if v, ok := m[key].(string); ok {
		return v
	}
	return ""
}
