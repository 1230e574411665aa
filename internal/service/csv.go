// csv.go — разбор CSV-вложений с партионными данными.
//
// Формат: первая строка — заголовок с известными именами колонок
// (регистр не важен), разделитель — ';', ',' или табуляция
// (определяется по заголовку). Каждая строка данных должна содержать
// столько же полей, сколько заголовок.
package service

import (
	"encoding/csv"
	"fmt"
	"io"
	"strings"

	"github.com/PlogDev/digital-invoice/internal/domain/model"
)

// sniffDelimiter определяет разделитель по строке заголовка.
// Выбирается кандидат с наибольшим числом вхождений; по умолчанию ';'.
func sniffDelimiter(header string) rune {
	best, count := ';', strings.Count(header, ";")
	for _, cand := range []rune{',', '\t'} {
		if n := strings.Count(header, string(cand)); n > count {
			best, count = cand, n
		}
	}
	return rune(best)
}

// parseBatchCSV разбирает CSV-вложение в строки партионных данных.
// Все ошибки формата заворачиваются в ErrParse: вызывающий не трогает
// БД, пока разбор всех вложений не завершился успешно.
func parseBatchCSV(r io.Reader) ([]map[string]string, error) {
	raw, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("%w: чтение вложения: %v", ErrParse, err)
	}

	content := strings.TrimPrefix(string(raw), "\ufeff") // BOM из Excel-экспортов
	firstLine, _, _ := strings.Cut(content, "\n")

	reader := csv.NewReader(strings.NewReader(content))
	reader.Comma = sniffDelimiter(firstLine)
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if err != nil {
		return nil, fmt.Errorf("%w: заголовок не прочитан: %v", ErrParse, err)
	}

	// Индексы известных колонок по заголовку (регистр не важен)
	index := make(map[string]int, len(header))
	for i, name := range header {
		index[strings.ToLower(strings.TrimSpace(name))] = i
	}

	colIdx := make([]int, len(model.BatchColumns))
	for i, col := range model.BatchColumns {
		pos, ok := index[col]
		if !ok {
			return nil, fmt.Errorf("%w: колонка %q отсутствует в заголовке", ErrParse, col)
		}
		colIdx[i] = pos
	}

	var rows []map[string]string
	for line := 2; ; line++ {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("%w: строка %d: %v", ErrParse, line, err)
		}

		values := make(map[string]string, len(model.BatchColumns))
		for i, col := range model.BatchColumns {
			values[col] = strings.TrimSpace(record[colIdx[i]])
		}
		rows = append(rows, values)
	}

	return rows, nil
}
