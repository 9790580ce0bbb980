package mapping

import (
	"regexp"
	"strconv"
	"strings"
)

// Extractor — стратегия эвристического извлечения значения из шумного текста.
// Выполняется до строгого приведения типа; возвращает (nil, false) когда
// извлечение не сработало и нужен строгий парсинг.
type Extractor interface {
	// ExtractNumber извлекает число для числового целевого поля.
	ExtractNumber(raw, targetField string, fieldType FieldType) (any, bool)
}

// DefaultExtractor — эвристика по умолчанию:
//   - odometer/mileage: максимальное из извлеченных чисел
//   - price-подобные поля: первое число в правдоподобном диапазоне [100, 1000000]
//   - year: первый 4-значный прогон в [1900, 2030]
//   - иначе: первое найденное число
//
// Если цифр в тексте нет вообще, поле разрешается в null (не ошибка) —
// вызывающая сторона получает (nil, true).
type DefaultExtractor struct{}

var digitRunRe = regexp.MustCompile(`\d[\d,]*\.?\d*`)

// ExtractNumber реализует Extractor.
func (DefaultExtractor) ExtractNumber(raw, targetField string, fieldType FieldType) (any, bool) {
	runs := digitRunRe.FindAllString(raw, -1)
	if len(runs) == 0 {
		return nil, true // цифр нет — поле разрешается в null
	}

	numbers := make([]float64, 0, len(runs))
	for _, run := range runs {
		n, err := strconv.ParseFloat(strings.ReplaceAll(run, ",", ""), 64)
		if err != nil {
			continue
		}
		numbers = append(numbers, n)
	}
	if len(numbers) == 0 {
		return nil, true
	}

	target := strings.ToLower(targetField)

	var picked float64
	switch {
	case strings.Contains(target, "odometer") || strings.Contains(target, "mileage"):
		picked = numbers[0]
		for _, n := range numbers[1:] {
			if n > picked {
				picked = n
			}
		}

	case isPriceField(target):
		found := false
		for _, n := range numbers {
			if n >= 100 && n <= 1000000 {
				picked = n
				found = true
				break
			}
		}
		if !found {
			picked = numbers[0]
		}

	case strings.Contains(target, "year"):
		for _, run := range runs {
			if len(run) == 4 {
				n, err := strconv.ParseFloat(run, 64)
				if err == nil && n >= 1900 && n <= 2030 {
					return int64(n), true
				}
			}
		}
		return nil, true

	default:
		picked = numbers[0]
	}

	if fieldType == TypeInteger {
		return int64(picked), true
	}
	return picked, true
}

// isPriceField определяет ценовые поля по ключевым словам имени.
func isPriceField(target string) bool {
	for _, kw := range []string{"price", "msrp", "cost", "discount", "rebate", "savings"} {
		if strings.Contains(target, kw) {
			return true
		}
	}
	return false
}
