// Package validate проверяет преобразованные записи перед записью в базу:
// обязательность полей и соответствие значений заявленным типам.
package validate

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/motorlane/feedbridge/pkg/mapping"
)

// Result — итог валидации одной записи.
type Result struct {
	IsValid bool
	Errors  []string
}

// Record проверяет преобразованную запись по списку правил.
//
// Отсутствующее или пустое обязательное поле дает ошибку
// "Required field <target> is missing". Типовые проверки: числовые поля
// должны парситься, даты — быть валидным моментом времени, булевы — одним из
// true/false/1/0/yes/no без учета регистра. Поле, уже разрешенное маппером
// в null мягким приведением, повторной типовой ошибки не дает —
// только ошибку обязательности, если оно обязательное.
func Record(record map[string]any, mappings []mapping.FieldMapping) Result {
	var errs []string

	for _, m := range mappings {
		value, present := record[m.TargetField]

		if isEmpty(value) || !present {
			if m.IsRequired {
				errs = append(errs, fmt.Sprintf("Required field %s is missing", m.TargetField))
			}
			continue
		}

		if err := checkType(value, m.FieldType); err != nil {
			errs = append(errs, fmt.Sprintf("Field %s: %s", m.TargetField, err))
		}
	}

	return Result{IsValid: len(errs) == 0, Errors: errs}
}

// isEmpty — отсутствие значения: nil или пустая строка.
func isEmpty(value any) bool {
	if value == nil {
		return true
	}
	if s, ok := value.(string); ok {
		return strings.TrimSpace(s) == ""
	}
	return false
}

// checkType проверяет значение против типа поля.
// Значения уже типизированы маппером; строка на числовом/булевом/датовом
// поле означает, что маппинг обошли — проверяем парсингом.
func checkType(value any, fieldType mapping.FieldType) error {
	switch fieldType {
	case mapping.TypeInteger:
		switch v := value.(type) {
		case int64, int, float64:
			return nil
		case string:
			if _, err := strconv.ParseInt(strings.TrimSpace(v), 10, 64); err != nil {
				return fmt.Errorf("value '%s' is not a valid integer", v)
			}
			return nil
		default:
			return fmt.Errorf("value of type %T is not a valid integer", value)
		}

	case mapping.TypeDecimal:
		switch v := value.(type) {
		case float64, int64, int:
			return nil
		case string:
			if _, err := strconv.ParseFloat(strings.TrimSpace(v), 64); err != nil {
				return fmt.Errorf("value '%s' is not a valid number", v)
			}
			return nil
		default:
			return fmt.Errorf("value of type %T is not a valid number", value)
		}

	case mapping.TypeBoolean:
		switch v := value.(type) {
		case bool:
			return nil
		case string:
			switch strings.ToLower(strings.TrimSpace(v)) {
			case "true", "false", "1", "0", "yes", "no":
				return nil
			}
			return fmt.Errorf("value '%s' is not a valid boolean", v)
		default:
			return fmt.Errorf("value of type %T is not a valid boolean", value)
		}

	case mapping.TypeDate:
		switch v := value.(type) {
		case time.Time:
			if v.IsZero() {
				return fmt.Errorf("date value is zero")
			}
			return nil
		case string:
			if _, ok := parseAnyDate(v); !ok {
				return fmt.Errorf("value '%s' is not a valid date", v)
			}
			return nil
		default:
			return fmt.Errorf("value of type %T is not a valid date", value)
		}
	}

	return nil
}

// parseAnyDate пробует общепринятые форматы дат.
func parseAnyDate(value string) (time.Time, bool) {
	for _, layout := range []string{
		"2006-01-02", "2006-01-02 15:04:05", time.RFC3339, "01/02/2006",
	} {
		if ts, err := time.Parse(layout, value); err == nil {
			return ts, true
		}
	}
	return time.Time{}, false
}
