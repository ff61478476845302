// Package common — errors.go определяет пользовательские ошибки,
// которые используются во всех модулях бота.
// Эти ошибки позволяют обработчикам различать типы проблем
// и отправлять пользователю понятные сообщения.
package common

import "errors"

// Ошибки экономики (Майндтокены)
var (
	// ErrInvalidAmount — некорректное количество токенов (ноль или отрицательное)
	ErrInvalidAmount = errors.New("количество токенов должно быть положительным")
	// ErrUserNotFound — пользователь не найден в базе
	ErrUserNotFound = errors.New("пользователь не найден")
)

// Ошибки платежей
var (
	// ErrUnknownTariff — тарифа нет в таблице тарифов
	ErrUnknownTariff = errors.New("неизвестный тариф")
	// ErrPaymentNotFound — платёж не найден
	ErrPaymentNotFound = errors.New("платёж не найден")
	// ErrBadPayload — не удалось разобрать payload счёта
	ErrBadPayload = errors.New("некорректный payload платежа")
	// ErrBackendUnavailable — платёжный бэкенд не настроен
	ErrBackendUnavailable = errors.New("платёжный сервис недоступен")
)

// Ошибки рефералки
var (
	// ErrSelfReferral — попытка пригласить самого себя
	ErrSelfReferral = errors.New("нельзя использовать собственную реферальную ссылку")
	// ErrAlreadyReferred — пользователь уже пришёл по чьей-то ссылке
	ErrAlreadyReferred = errors.New("реферальная ссылка уже была использована")
	// ErrReferralCodeNotFound — код не найден
	ErrReferralCodeNotFound = errors.New("реферальный код не найден")
)

// Ошибки админки
var (
	// ErrNotAdmin — пользователь не является администратором
	ErrNotAdmin = errors.New("у вас нет доступа к админ-панели")
	// ErrWrongPassword — неверный пароль
	ErrWrongPassword = errors.New("неверный пароль")
	// ErrTooManyAttempts — слишком много неудачных попыток входа
	ErrTooManyAttempts = errors.New("слишком много попыток, подождите 1 час")
	// ErrBadCommandFormat — неверный формат админ-команды
	ErrBadCommandFormat = errors.New("неверный формат команды")
)

// Ошибки отзывов
var (
	// ErrEmptyReview — пустой текст отзыва
	ErrEmptyReview = errors.New("отзыв не может быть пустым")
)

// Ошибки доставки апдейтов
var (
	// ErrBotStopped — бот остановлен и больше не принимает апдейты
	ErrBotStopped = errors.New("бот остановлен")
)
