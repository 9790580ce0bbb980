// Package codec реализует разбор и сериализацию файловых форматов фидов
// (CSV, JSON, XML, XLSX) в плоские записи "имя поля → сырая строка".
//
// Все кодеки буферизуют файл целиком в памяти. Это ограничивает практический
// размер фида объемом доступной памяти; потоковый разбор не реализован.
package codec

import (
	"errors"
	"fmt"
	"strings"
)

// Поддерживаемые типы файлов.
const (
	TypeCSV  = "csv"
	TypeJSON = "json"
	TypeXML  = "xml"
	TypeXLSX = "xlsx"
)

// ErrMalformed оборачивается во все ошибки разбора поврежденных файлов.
var ErrMalformed = errors.New("codec: malformed file")

// Record — одна запись фида: имя поля → сырое строковое значение.
type Record map[string]string

// Settings содержит настройки формата файла для одного пайплайна.
type Settings struct {
	FileType            string // csv, json, xml, xlsx
	Delimiter           string // CSV: разделитель полей (по умолчанию ",")
	MultiValueDelimiter string // разделитель внутри многозначных полей (по умолчанию "|")
	HasHeader           bool   // CSV/XLSX импорт: первая строка — заголовки
	IncludeHeader       bool   // CSV/XLSX экспорт: записывать строку заголовков
	Encoding            string // информационно; файлы читаются как UTF-8
	SheetName           string // XLSX: имя листа (пустое = первый лист / "Records")
}

// SetDefaults устанавливает значения по умолчанию для незаполненных полей.
func (s *Settings) SetDefaults() {
	if s.FileType == "" {
		s.FileType = TypeCSV
	}
	s.FileType = strings.ToLower(s.FileType)
	if s.Delimiter == "" {
		s.Delimiter = ","
	}
	if s.MultiValueDelimiter == "" {
		s.MultiValueDelimiter = "|"
	}
}

// Parse разбирает содержимое файла в упорядоченную последовательность записей.
func Parse(data []byte, settings Settings) ([]Record, error) {
	settings.SetDefaults()

	switch settings.FileType {
	case TypeCSV:
		return parseCSV(data, settings)
	case TypeJSON:
		return parseJSON(data)
	case TypeXML:
		return parseXML(data)
	case TypeXLSX:
		return parseXLSX(data, settings)
	default:
		return nil, fmt.Errorf("unsupported file type '%s', must be one of: csv, json, xml, xlsx", settings.FileType)
	}
}

// Serialize сериализует записи в байты файла (только для экспорта).
// columns задает порядок колонок в выходном файле.
func Serialize(records []Record, columns []string, settings Settings) ([]byte, error) {
	settings.SetDefaults()

	if len(columns) == 0 {
		return nil, fmt.Errorf("at least one output column is required")
	}

	switch settings.FileType {
	case TypeCSV:
		return serializeCSV(records, columns, settings), nil
	case TypeJSON:
		return serializeJSON(records, columns)
	case TypeXML:
		return serializeXML(records, columns), nil
	case TypeXLSX:
		return serializeXLSX(records, columns, settings)
	default:
		return nil, fmt.Errorf("unsupported file type '%s', must be one of: csv, json, xml, xlsx", settings.FileType)
	}
}

// Extension возвращает расширение файла для типа формата.
func Extension(fileType string) string {
	switch strings.ToLower(fileType) {
	case TypeJSON:
		return ".json"
	case TypeXML:
		return ".xml"
	case TypeXLSX:
		return ".xlsx"
	default:
		return ".csv"
	}
}
