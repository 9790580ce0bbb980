package codec

import (
	"fmt"
	"strings"
)

// parseCSV разбирает CSV в записи по построчному сплиттеру с учетом кавычек.
//
// Сплиттер переключает состояние "внутри кавычек" на каждом символе кавычки:
// разделитель внутри кавычек не является границей поля. Многострочные
// закавыченные поля НЕ поддерживаются — это сознательное упрощение,
// формат не RFC4180-полный.
func parseCSV(data []byte, settings Settings) ([]Record, error) {
	lines := splitLines(string(data))
	if len(lines) == 0 {
		return nil, nil
	}

	delimiter := []rune(settings.Delimiter)[0]

	var headers []string
	start := 0
	if settings.HasHeader {
		headers = splitCSVLine(lines[0], delimiter)
		for i := range headers {
			headers[i] = strings.TrimSpace(headers[i])
		}
		start = 1
	}

	records := make([]Record, 0, len(lines)-start)
	for i := start; i < len(lines); i++ {
		if strings.TrimSpace(lines[i]) == "" {
			continue
		}

		values := splitCSVLine(lines[i], delimiter)
		record := make(Record, len(values))
		for j, value := range values {
			var key string
			if j < len(headers) {
				key = headers[j]
			} else {
				key = fmt.Sprintf("column_%d", j+1)
			}
			if key == "" {
				key = fmt.Sprintf("column_%d", j+1)
			}
			record[key] = value
		}
		records = append(records, record)
	}

	return records, nil
}

// splitLines разбивает содержимое на строки, принимая \n и \r\n.
func splitLines(content string) []string {
	content = strings.ReplaceAll(content, "\r\n", "\n")
	content = strings.TrimRight(content, "\n")
	if content == "" {
		return nil
	}
	return strings.Split(content, "\n")
}

// splitCSVLine разбивает одну строку CSV на поля.
// Символ '"' переключает состояние in-quotes; разделитель внутри кавычек
// не разрывает поле. Сами кавычки в значение не попадают.
func splitCSVLine(line string, delimiter rune) []string {
	var fields []string
	var current strings.Builder
	inQuotes := false

	for _, r := range line {
		switch {
		case r == '"':
			inQuotes = !inQuotes
		case r == delimiter && !inQuotes:
			fields = append(fields, current.String())
			current.Reset()
		default:
			current.WriteRune(r)
		}
	}
	fields = append(fields, current.String())

	return fields
}

// serializeCSV сериализует записи в CSV в порядке columns.
func serializeCSV(records []Record, columns []string, settings Settings) []byte {
	var sb strings.Builder

	if settings.IncludeHeader {
		sb.WriteString(joinCSVLine(columns, settings.Delimiter))
		sb.WriteString("\n")
	}

	for _, record := range records {
		values := make([]string, len(columns))
		for i, col := range columns {
			values[i] = record[col]
		}
		sb.WriteString(joinCSVLine(values, settings.Delimiter))
		sb.WriteString("\n")
	}

	return []byte(sb.String())
}

// joinCSVLine собирает одну строку CSV, закавычивая поля с разделителем
// или кавычками. Переводы строк внутри значений заменяются пробелом —
// сплиттер на стороне импорта многострочных полей не понимает.
func joinCSVLine(values []string, delimiter string) string {
	quoted := make([]string, len(values))
	for i, v := range values {
		v = strings.ReplaceAll(v, "\n", " ")
		v = strings.ReplaceAll(v, "\r", " ")
		if strings.Contains(v, delimiter) || strings.Contains(v, `"`) {
			quoted[i] = `"` + strings.ReplaceAll(v, `"`, `'`) + `"`
		} else {
			quoted[i] = v
		}
	}
	return strings.Join(quoted, delimiter)
}
