package mapping

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// Операции трансформации. Формат строки правила — "op" или "op:param[:param]",
// как в правилах валидации: "trim", "uppercase", "replace:[0-9]+:N".
const (
	OpTrim      = "trim"
	OpUppercase = "uppercase"
	OpLowercase = "lowercase"
	OpReplace   = "replace" // replace:<regex>:<replacement>
	OpDate      = "date"    // повторный разбор строки как даты
	OpNumber    = "number"  // числовой разбор строки
)

// transformOp — разобранная операция.
type transformOp struct {
	name    string
	pattern *regexp.Regexp
	param   string
}

// parseOp разбирает строку операции.
func parseOp(rule string) (transformOp, error) {
	parts := strings.SplitN(rule, ":", 3)
	name := strings.ToLower(strings.TrimSpace(parts[0]))

	switch name {
	case OpTrim, OpUppercase, OpLowercase, OpDate, OpNumber:
		return transformOp{name: name}, nil

	case OpReplace:
		if len(parts) != 3 {
			return transformOp{}, fmt.Errorf("replace op requires 'replace:<pattern>:<replacement>', got %q", rule)
		}
		re, err := regexp.Compile(parts[1])
		if err != nil {
			return transformOp{}, fmt.Errorf("invalid replace pattern %q: %w", parts[1], err)
		}
		return transformOp{name: name, pattern: re, param: parts[2]}, nil

	default:
		return transformOp{}, fmt.Errorf("unknown transform op %q", name)
	}
}

// ApplyOps применяет упорядоченный список операций к значению.
// Строковые операции работают на строковом представлении значения;
// date и number меняют тип результата.
func ApplyOps(value any, rules []string) (any, error) {
	for _, rule := range rules {
		op, err := parseOp(rule)
		if err != nil {
			return nil, err
		}
		value = op.apply(value)
	}
	return value, nil
}

// apply выполняет одну операцию.
func (op transformOp) apply(value any) any {
	if value == nil {
		return nil
	}

	switch op.name {
	case OpTrim:
		return strings.TrimSpace(asString(value))
	case OpUppercase:
		return strings.ToUpper(asString(value))
	case OpLowercase:
		return strings.ToLower(asString(value))
	case OpReplace:
		return op.pattern.ReplaceAllString(asString(value), op.param)
	case OpDate:
		if ts, ok := value.(time.Time); ok {
			return ts
		}
		if ts, ok := parseDate(asString(value)); ok {
			return ts
		}
		return nil
	case OpNumber:
		switch v := value.(type) {
		case int64, float64:
			return v
		}
		s := strings.Map(func(r rune) rune {
			if r == '$' || r == ',' || r == ' ' {
				return -1
			}
			return r
		}, asString(value))
		if f, err := strconv.ParseFloat(s, 64); err == nil {
			return f
		}
		return nil
	}
	return value
}

// asString — строковое представление типизированного значения.
func asString(value any) string {
	switch v := value.(type) {
	case string:
		return v
	case int64:
		return strconv.FormatInt(v, 10)
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(v)
	case time.Time:
		return v.Format("2006-01-02 15:04:05")
	default:
		return fmt.Sprintf("%v", v)
	}
}
