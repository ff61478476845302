// Package common — pluralize.go содержит форматирование сумм и чисел
// для сообщений бота. Склонения реализованы в helpers.go.
package common

import (
	"fmt"
	"unicode/utf8"
)

// FormatTokensAmount создаёт строку вида "+100 Майндтокенов" или "-50 Майндтокенов".
//
// Примеры:
//
//	FormatTokensAmount(100) → "+100 Майндтокенов"
//	FormatTokensAmount(-50) → "-50 Майндтокенов"
//	FormatTokensAmount(1)   → "+1 Майндтокен"
func FormatTokensAmount(amount int64) string {
	if amount >= 0 {
		return fmt.Sprintf("+%d %s", amount, PluralizeTokens(amount))
	}
	return fmt.Sprintf("%d %s", amount, PluralizeTokens(amount))
}

// FormatNumber форматирует число с разделителями тысяч (пробелами).
// Пример: FormatNumber(2350) → "2 350"
func FormatNumber(n int64) string {
	if n < 0 {
		return "-" + FormatNumber(-n)
	}
	if n < 1000 {
		return fmt.Sprintf("%d", n)
	}
	return fmt.Sprintf("%s %03d", FormatNumber(n/1000), n%1000)
}

// Truncate обрезает строку до n рун и добавляет "..." (для логов).
func Truncate(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	runes := []rune(s)
	return string(runes[:n]) + "..."
}
