package codec

import (
	"bytes"
	"fmt"

	"github.com/xuri/excelize/v2"
)

const defaultSheetName = "Records"

// parseXLSX разбирает первый (или указанный) лист книги Excel.
// Первая строка трактуется как заголовки когда HasHeader установлен.
func parseXLSX(data []byte, settings Settings) ([]Record, error) {
	f, err := excelize.OpenReader(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("%w: invalid XLSX: %v", ErrMalformed, err)
	}
	defer f.Close()

	sheet := settings.SheetName
	if sheet == "" {
		sheet = f.GetSheetName(0)
	}

	rows, err := f.GetRows(sheet)
	if err != nil {
		return nil, fmt.Errorf("%w: read sheet '%s': %v", ErrMalformed, sheet, err)
	}
	if len(rows) == 0 {
		return nil, nil
	}

	var headers []string
	start := 0
	if settings.HasHeader {
		headers = rows[0]
		start = 1
	}

	records := make([]Record, 0, len(rows)-start)
	for i := start; i < len(rows); i++ {
		if len(rows[i]) == 0 {
			continue
		}
		record := make(Record, len(rows[i]))
		for j, value := range rows[i] {
			var key string
			if j < len(headers) && headers[j] != "" {
				key = headers[j]
			} else {
				key = fmt.Sprintf("column_%d", j+1)
			}
			record[key] = value
		}
		records = append(records, record)
	}

	return records, nil
}

// serializeXLSX сериализует записи в книгу Excel с одним листом.
func serializeXLSX(records []Record, columns []string, settings Settings) ([]byte, error) {
	f := excelize.NewFile()
	defer f.Close()

	sheet := settings.SheetName
	if sheet == "" {
		sheet = defaultSheetName
	}
	if err := f.SetSheetName("Sheet1", sheet); err != nil {
		return nil, fmt.Errorf("rename sheet: %w", err)
	}

	rowIdx := 1
	if settings.IncludeHeader {
		for col, name := range columns {
			cell, err := excelize.CoordinatesToCellName(col+1, rowIdx)
			if err != nil {
				return nil, fmt.Errorf("header cell: %w", err)
			}
			if err := f.SetCellValue(sheet, cell, name); err != nil {
				return nil, fmt.Errorf("write header: %w", err)
			}
		}
		rowIdx++
	}

	for _, record := range records {
		for col, name := range columns {
			cell, err := excelize.CoordinatesToCellName(col+1, rowIdx)
			if err != nil {
				return nil, fmt.Errorf("data cell: %w", err)
			}
			if err := f.SetCellValue(sheet, cell, record[name]); err != nil {
				return nil, fmt.Errorf("write cell %s: %w", cell, err)
			}
		}
		rowIdx++
	}

	var buf bytes.Buffer
	if err := f.Write(&buf); err != nil {
		return nil, fmt.Errorf("write workbook: %w", err)
	}
	return buf.Bytes(), nil
}
