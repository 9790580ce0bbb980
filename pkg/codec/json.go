package codec

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
)

// parseJSON разбирает JSON-фид. Принимаются три формы:
//   - массив объектов на верхнем уровне
//   - объект со свойством-массивом "records" или "items"
//   - одиночный объект (оборачивается в последовательность из одной записи)
func parseJSON(data []byte) ([]Record, error) {
	decoder := json.NewDecoder(bytes.NewReader(data))
	decoder.UseNumber()

	var root any
	if err := decoder.Decode(&root); err != nil {
		return nil, fmt.Errorf("%w: invalid JSON: %v", ErrMalformed, err)
	}

	var items []any
	switch v := root.(type) {
	case []any:
		items = v
	case map[string]any:
		if arr, ok := v["records"].([]any); ok {
			items = arr
		} else if arr, ok := v["items"].([]any); ok {
			items = arr
		} else {
			items = []any{v}
		}
	default:
		return nil, fmt.Errorf("%w: JSON root must be an array or object, got %T", ErrMalformed, root)
	}

	records := make([]Record, 0, len(items))
	for i, item := range items {
		obj, ok := item.(map[string]any)
		if !ok {
			return nil, fmt.Errorf("%w: element %d is not an object", ErrMalformed, i)
		}

		record := make(Record, len(obj))
		for key, value := range obj {
			record[key] = jsonValueToString(value)
		}
		records = append(records, record)
	}

	return records, nil
}

// jsonValueToString приводит значение JSON к сырой строке.
// Вложенные структуры сериализуются обратно в компактный JSON.
func jsonValueToString(value any) string {
	switch v := value.(type) {
	case nil:
		return ""
	case string:
		return v
	case json.Number:
		return v.String()
	case bool:
		return strconv.FormatBool(v)
	default:
		raw, err := json.Marshal(v)
		if err != nil {
			return fmt.Sprintf("%v", v)
		}
		return string(raw)
	}
}

// serializeJSON сериализует записи в массив объектов.
// Ключи пишутся в порядке columns, чтобы выход был детерминированным.
func serializeJSON(records []Record, columns []string) ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteString("[\n")

	for i, record := range records {
		buf.WriteString("  {")
		for j, col := range columns {
			if j > 0 {
				buf.WriteString(", ")
			}
			key, err := json.Marshal(col)
			if err != nil {
				return nil, fmt.Errorf("marshal column name %q: %w", col, err)
			}
			value, err := json.Marshal(record[col])
			if err != nil {
				return nil, fmt.Errorf("marshal value for column %q: %w", col, err)
			}
			buf.Write(key)
			buf.WriteString(": ")
			buf.Write(value)
		}
		buf.WriteString("}")
		if i < len(records)-1 {
			buf.WriteString(",")
		}
		buf.WriteString("\n")
	}

	buf.WriteString("]\n")
	return buf.Bytes(), nil
}
