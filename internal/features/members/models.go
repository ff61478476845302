// Package members — онбординг пользователей: регистрация по /start,
// проверка подписки на канал, главное меню и описание бота.
// models.go содержит тексты и клавиатуры.
package members

import (
	"fmt"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"mindbot.ru/telegram-bot/internal/bot/reply"
	"mindbot.ru/telegram-bot/internal/common"
	"mindbot.ru/telegram-bot/internal/features/economy"
	"mindbot.ru/telegram-bot/internal/features/payments"
	"mindbot.ru/telegram-bot/internal/features/referral"
	"mindbot.ru/telegram-bot/internal/features/reviews"
	"mindbot.ru/telegram-bot/internal/store"
)

// Callback-данные
const (
	CallbackCheckSubscription = "check_subscription"
	CallbackDescription       = "description"
	CallbackMainMenu          = "main_menu"
)

// DisplayName — имя для приветствия: имя, иначе @username.
func DisplayName(u *tgbotapi.User) string {
	if u == nil {
		return "друг"
	}
	if u.FirstName != "" {
		return u.FirstName
	}
	if u.UserName != "" {
		return "@" + u.UserName
	}
	return "друг"
}

// WelcomeText — приветствие /start.
func WelcomeText(name string, u *store.User) string {
	var b strings.Builder
	fmt.Fprintf(&b, "👋 Здравствуйте, %s!\n\n", name)
	b.WriteString("Я — бот-психолог на базе искусственного интеллекта. " +
		"Я готов выслушать вас, помочь разобраться в сложных ситуациях " +
		"и предложить поддержку в любое время суток.\n\n" +
		"🔹 Что я могу:\n" +
		"• Обсудить ваши эмоции и переживания\n" +
		"• Помочь разобраться в сложных ситуациях\n" +
		"• Предложить практические стратегии для решения проблем\n" +
		"• Поддержать вас в трудный момент\n\n")
	if u.IsUnlimited {
		b.WriteString("💫 У вас активирован безлимитный тариф.")
	} else {
		fmt.Fprintf(&b, "💎 У вас сейчас %s.", common.FormatBalance(u.Tokens))
	}
	return b.String()
}

// DescriptionText — описание бота (кнопка «О боте» и /help).
func DescriptionText(tokensPerMessage, freeTokens, referralBonus int64) string {
	return fmt.Sprintf(`🤖 *Добро пожаловать в Психолог-БОТ!*

Я - ваш персональный ИИ-психолог, готовый помочь вам в любое время дня и ночи.

*Как я работаю:*
• Каждое сообщение стоит %d Майндтокенов
• За подписку на канал вы получаете %d бесплатных токенов
• Вы можете пригласить друзей и получить %d токенов за каждого

*Как купить токены:*
1. Перейдите в раздел "Купить токены"
2. Выберите подходящий тариф
3. Оплатите удобным способом

*Важно знать:*
• Все ваши диалоги конфиденциальны
• Используется продвинутый ИИ для анализа
• Майндтокены в будущем могут стать криптовалютой! 🚀

*Команды:*
/start - Начать сначала
/help - Помощь
/balance - Баланс токенов`, tokensPerMessage, freeTokens, referralBonus)
}

// MenuKeyboard — главное меню. Подписчикам — «Начать диалог»,
// остальным — подписка на канал.
func MenuKeyboard(subscribed, canAfford bool, channelLink string) *tgbotapi.InlineKeyboardMarkup {
	var rows [][]tgbotapi.InlineKeyboardButton
	if subscribed {
		rows = append(rows, reply.Button("💬 Начать диалог", payments.CallbackStartChat))
		if !canAfford {
			rows = append(rows, reply.Button("💰 Пополнить Майндтокены", economy.CallbackBuyTokens))
		}
	} else {
		rows = append(rows, subscribeRows(channelLink)...)
	}
	rows = append(rows,
		reply.Button("👥 Пригласить друга", referral.CallbackMenu),
		reply.Button("📝 Оставить отзыв", reviews.CallbackForm),
		reply.Button("ℹ️ О боте", CallbackDescription),
	)
	return reply.Keyboard(rows...)
}

func subscribeRows(channelLink string) [][]tgbotapi.InlineKeyboardButton {
	var rows [][]tgbotapi.InlineKeyboardButton
	if channelLink != "" {
		rows = append(rows, reply.URLButton("📢 Подписаться на канал", channelLink))
	}
	return append(rows, reply.Button("✅ Проверить подписку", CallbackCheckSubscription))
}
