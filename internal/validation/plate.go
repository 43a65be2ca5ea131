// Package validation содержит функции валидации входных данных.
package validation

import (
	"strings"
	"unicode"
)

const (
	minPlateLength = 4
	maxPlateLength = 12
)

// NormalizePlate приводит номер автомобиля к каноническому виду:
// убирает пробелы и дефисы, переводит буквы в верхний регистр.
func NormalizePlate(number string) string {
	number = strings.ReplaceAll(number, " ", "")
	number = strings.ReplaceAll(number, "-", "")
	return strings.ToUpper(number)
}

// IsValidPlate проверяет корректность нормализованного номера автомобиля:
// только латинские буквы и цифры допустимой длины.
func IsValidPlate(number string) bool {
	if len(number) < minPlateLength || len(number) > maxPlateLength {
		return false
	}

	for _, ch := range number {
		if ch > unicode.MaxASCII {
			return false
		}
		if !unicode.IsDigit(ch) && !unicode.IsUpper(ch) {
			return false
		}
	}

	return true
}
