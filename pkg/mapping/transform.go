package mapping

import (
	"fmt"
	"log/slog"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// Transformer применяет упорядоченный список FieldMapping к одной записи фида.
// Небезопасные значения никогда не приводят к ошибке: неразбираемое значение
// разрешается в null и логируется.
type Transformer struct {
	mappings  []FieldMapping
	extractor Extractor
	mvDelim   string
	logger    *slog.Logger
}

// Option настраивает Transformer.
type Option func(*Transformer)

// WithExtractor подменяет стратегию эвристического извлечения.
func WithExtractor(e Extractor) Option {
	return func(t *Transformer) { t.extractor = e }
}

// WithMultiValueDelimiter задает разделитель многозначных полей (по умолчанию "|").
func WithMultiValueDelimiter(d string) Option {
	return func(t *Transformer) {
		if d != "" {
			t.mvDelim = d
		}
	}
}

// WithLogger задает логгер для отметок о неразобранных значениях.
func WithLogger(l *slog.Logger) Option {
	return func(t *Transformer) { t.logger = l }
}

// New создает Transformer. Правила сортируются по Order.
func New(mappings []FieldMapping, opts ...Option) *Transformer {
	sorted := make([]FieldMapping, len(mappings))
	copy(sorted, mappings)
	SortByOrder(sorted)

	t := &Transformer{
		mappings:  sorted,
		extractor: DefaultExtractor{},
		mvDelim:   "|",
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Mappings возвращает правила в порядке обработки.
func (t *Transformer) Mappings() []FieldMapping {
	return t.mappings
}

// Transform применяет все правила к записи и возвращает
// targetField → типизированное значение или nil. В результат попадают только
// поля, для которых правило дало значение или default.
func (t *Transformer) Transform(record map[string]string) (map[string]any, error) {
	out := make(map[string]any, len(t.mappings))

	for _, m := range t.mappings {
		raw, present := record[m.SourceField]
		if !present || strings.TrimSpace(raw) == "" {
			if m.DefaultValue == "" {
				continue // поле опускается целиком
			}
			raw = m.DefaultValue
		}

		value, err := t.transformField(m, raw)
		if err != nil {
			return nil, fmt.Errorf("field '%s': %w", m.TargetField, err)
		}
		out[m.TargetField] = value
	}

	return out, nil
}

// transformField проводит одно значение через полный конвейер правила.
func (t *Transformer) transformField(m FieldMapping, raw string) (any, error) {
	// Многозначные поля обрабатываются до очистки: очистка удаляет
	// символ-разделитель, поэтому каждый элемент чистится отдельно.
	if isMultiValueField(m.TargetField) {
		return t.formatMultiValue(raw), nil
	}

	cleaned := cleanValue(raw)

	fieldType := m.FieldType
	if fieldType == "" {
		fieldType = detectType(m.TargetField, cleaned)
	}

	value := t.coerce(m, fieldType, cleaned)

	if len(m.TransformationRule) > 0 {
		var err error
		value, err = ApplyOps(value, m.TransformationRule)
		if err != nil {
			return nil, err
		}
	}

	return value, nil
}

// coerce приводит очищенную строку к типу поля.
// Для числовых типов сначала работает эвристическая стратегия извлечения,
// строгий парсинг — только если стратегия не взялась за значение.
func (t *Transformer) coerce(m FieldMapping, fieldType FieldType, cleaned string) any {
	switch fieldType {
	case TypeInteger, TypeDecimal:
		if v, handled := t.extractor.ExtractNumber(cleaned, m.TargetField, fieldType); handled {
			return v
		}
		return t.strictNumber(m.TargetField, fieldType, cleaned)

	case TypeBoolean:
		return coerceBoolean(cleaned)

	case TypeDate:
		if ts, ok := parseDate(cleaned); ok {
			return ts
		}
		t.logger.Debug("unparsable date resolved to null",
			"target_field", m.TargetField, "value", cleaned)
		return nil

	default:
		return cleaned
	}
}

// strictNumber — строгое числовое приведение: убрать валютные символы и
// запятые, распарсить. Неразбираемое значение — null, не ошибка.
func (t *Transformer) strictNumber(targetField string, fieldType FieldType, value string) any {
	stripped := strings.Map(func(r rune) rune {
		switch r {
		case '$', ',', ' ':
			return -1
		}
		return r
	}, value)

	if fieldType == TypeInteger {
		if n, err := strconv.ParseInt(stripped, 10, 64); err == nil {
			return n
		}
		if f, err := strconv.ParseFloat(stripped, 64); err == nil {
			return int64(f)
		}
	} else {
		if f, err := strconv.ParseFloat(stripped, 64); err == nil {
			return f
		}
	}

	t.logger.Debug("unparsable number resolved to null",
		"target_field", targetField, "value", value)
	return nil
}

// formatMultiValue разбивает сырое значение по разделителю, чистит и
// закавычивает каждый элемент и оборачивает результат в { }:
// "A|B" -> {"A","B"}. Формат единый для list-колонок и свободных списков.
func (t *Transformer) formatMultiValue(raw string) string {
	delim := t.mvDelim
	if !strings.Contains(raw, delim) && strings.Contains(raw, ",") {
		delim = ","
	}

	parts := strings.Split(raw, delim)
	items := make([]string, 0, len(parts))
	for _, part := range parts {
		item := strings.TrimSpace(cleanValue(part))
		if item == "" {
			continue
		}
		items = append(items, `"`+item+`"`)
	}

	return "{" + strings.Join(items, ",") + "}"
}

// multiValueNames — имена-маркеры многозначных полей.
var multiValueNames = []string{"features", "options", "accessories", "packages", "photo_url_list", "photourllist"}

// isMultiValueField определяет многозначное поле по соглашению имен.
func isMultiValueField(targetField string) bool {
	target := strings.ToLower(targetField)
	for _, name := range multiValueNames {
		if strings.Contains(target, name) {
			return true
		}
	}
	return false
}

var (
	markupRe     = regexp.MustCompile(`[^A-Za-z0-9 ,.\-$]`)
	whitespaceRe = regexp.MustCompile(`\s+`)
)

// cleanValue убирает markup-символы вне [A-Za-z0-9 ,.\-$]
// и схлопывает повторяющиеся пробелы.
func cleanValue(value string) string {
	value = markupRe.ReplaceAllString(value, "")
	value = whitespaceRe.ReplaceAllString(value, " ")
	return strings.TrimSpace(value)
}

// detectType выводит тип поля из имени целевого поля, затем из содержимого.
func detectType(targetField, value string) FieldType {
	target := strings.ToLower(targetField)

	for _, kw := range []string{"price", "msrp", "discount", "rebate", "savings", "cost"} {
		if strings.Contains(target, kw) {
			return TypeDecimal
		}
	}
	for _, kw := range []string{"year", "odometer", "mileage"} {
		if strings.Contains(target, kw) {
			return TypeInteger
		}
	}
	if strings.Contains(target, "certified") {
		return TypeBoolean
	}
	for _, kw := range []string{"date", "created", "updated"} {
		if strings.Contains(target, kw) {
			return TypeDate
		}
	}

	// Сниффинг содержимого
	if value != "" {
		allDigits := true
		for _, r := range value {
			if r < '0' || r > '9' {
				allDigits = false
				break
			}
		}
		if allDigits {
			return TypeInteger
		}

		hasDigit := strings.ContainsAny(value, "0123456789")
		if hasDigit && (strings.Contains(value, ".") || strings.Contains(value, "$")) {
			return TypeDecimal
		}
	}

	return TypeString
}

// coerceBoolean — мягкое приведение булевых значений.
// Принимаются true/false/1/0/yes/no без учета регистра. Значение длиннее
// 10 символов молча приводится к false; прочий мусор разрешается в null.
func coerceBoolean(value string) any {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "true", "1", "yes":
		return true
	case "false", "0", "no":
		return false
	}
	if len(value) > 10 {
		return false
	}
	return nil
}

// dateLayouts — принимаемые форматы дат, в порядке попыток.
var dateLayouts = []string{
	"2006-01-02",
	"2006-01-02 15:04:05",
	time.RFC3339,
	"01/02/2006",
	"01/02/2006 15:04:05",
	"Jan 2, 2006",
	"2. Jan 2006",
}

// parseDate пробует разобрать дату по известным форматам.
func parseDate(value string) (time.Time, bool) {
	for _, layout := range dateLayouts {
		if ts, err := time.Parse(layout, value); err == nil {
			return ts, true
		}
	}
	return time.Time{}, false
}
