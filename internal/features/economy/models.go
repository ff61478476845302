// Package economy управляет Майндтокенами: тарифы, баланс, списания и бонусы.
// models.go описывает таблицу тарифов.
package economy

import (
	"fmt"

	"github.com/shopspring/decimal"

	"mindbot.ru/telegram-bot/internal/common"
	"mindbot.ru/telegram-bot/internal/store"
)

// Tariff — пакет Майндтокенов, который можно купить.
type Tariff struct {
	Key         string          // Ключ в callback_data: select_tariff:<key>
	Tokens      int64           // store.UnlimitedTokens для безлимита
	Price       decimal.Decimal // Цена в рублях
	Description string          // Подпись на кнопке
}

// Ключи тарифов
const (
	TariffSmall     = "small"
	TariffMedium    = "medium"
	TariffLarge     = "large"
	TariffUnlimited = "unlimited"
)

// tariffs — порядок совпадает с порядком кнопок в меню.
var tariffs = []Tariff{
	{Key: TariffSmall, Tokens: 50, Price: decimal.NewFromInt(99), Description: "5 вопросов"},
	{Key: TariffMedium, Tokens: 100, Price: decimal.NewFromInt(150), Description: "10 вопросов"},
	{Key: TariffLarge, Tokens: 500, Price: decimal.NewFromInt(490), Description: "50 вопросов"},
	{Key: TariffUnlimited, Tokens: store.UnlimitedTokens, Price: decimal.NewFromInt(990), Description: "Безлимитное количество вопросов"},
}

// Tariffs возвращает копию таблицы тарифов.
func Tariffs() []Tariff {
	out := make([]Tariff, len(tariffs))
	copy(out, tariffs)
	return out
}

// LookupTariff ищет тариф по ключу.
func LookupTariff(key string) (Tariff, bool) {
	for _, t := range tariffs {
		if t.Key == key {
			return t, true
		}
	}
	return Tariff{}, false
}

// IsUnlimited — тариф даёт безлимит вместо токенов.
func (t Tariff) IsUnlimited() bool {
	return t.Tokens == store.UnlimitedTokens
}

// ButtonText — подпись кнопки в меню пополнения.
//
//	5 вопросов - 99 ₽
//	💫 Безлимитное количество вопросов - 990 ₽ (безлимит)
func (t Tariff) ButtonText() string {
	text := fmt.Sprintf("%s - %s ₽", t.Description, t.Price.String())
	if t.IsUnlimited() {
		text = fmt.Sprintf("💫 %s (безлимит)", text)
	}
	return text
}

// PriceMinorUnits — цена в копейках (так её ждёт Telegram Payments).
func (t Tariff) PriceMinorUnits() int {
	return int(t.Price.Shift(2).IntPart())
}

// Summary описывает, что получит пользователь.
// perMessage — стоимость одного вопроса.
func (t Tariff) Summary(perMessage int64) string {
	if t.IsUnlimited() {
		return "безлимитное количество вопросов"
	}
	questions := t.Tokens / perMessage
	return fmt.Sprintf("%s (%d %s)", common.FormatBalance(t.Tokens), questions, common.PluralizeQuestions(questions))
}
