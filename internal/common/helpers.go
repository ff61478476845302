// Package common содержит общие утилиты, используемые во всём проекте.
// Сюда входят: русская плюрализация, форматирование чисел и дат.
package common

import (
	"fmt"
	"time"
)

// pluralForm выбирает форму слова для числа n по правилам русского языка:
//   - n%10==1 И n%100!=11 → one (1, 21, 31, 101, ...)
//   - n%10 в [2,3,4] И n%100 НЕ в [12,13,14] → few (2, 3, 4, 22, 23, ...)
//   - остальные случаи → many (0, 5-20, 25-30, 100, ...)
func pluralForm(n int64, one, few, many string) string {
	if n < 0 {
		n = -n
	}
	lastDigit := n % 10
	lastTwoDigits := n % 100

	if lastDigit == 1 && lastTwoDigits != 11 {
		return one
	}
	if lastDigit >= 2 && lastDigit <= 4 && (lastTwoDigits < 12 || lastTwoDigits > 14) {
		return few
	}
	return many
}

// PluralizeTokens возвращает правильную форму слова «Майндтокен» для числа n.
//
// Примеры:
//
//	PluralizeTokens(1)  → "Майндтокен"
//	PluralizeTokens(3)  → "Майндтокена"
//	PluralizeTokens(50) → "Майндтокенов"
//	PluralizeTokens(21) → "Майндтокен"
func PluralizeTokens(n int64) string {
	return pluralForm(n, "Майндтокен", "Майндтокена", "Майндтокенов")
}

// FormatBalance форматирует баланс в читабельную строку.
// Пример: FormatBalance(150) → "150 Майндтокенов"
func FormatBalance(balance int64) string {
	return fmt.Sprintf("%d %s", balance, PluralizeTokens(balance))
}

// PluralizeQuestions возвращает правильную форму слова «вопрос».
func PluralizeQuestions(n int64) string {
	return pluralForm(n, "вопрос", "вопроса", "вопросов")
}

// FormatDateTime форматирует время в формат "02.01.2006 15:04" по Москве.
// Используется для отображения дат платежей и отзывов.
func FormatDateTime(t time.Time) string {
	loc, err := time.LoadLocation("Europe/Moscow")
	if err != nil {
		loc = time.FixedZone("MSK", 3*60*60)
	}
	return t.In(loc).Format("02.01.2006 15:04")
}
