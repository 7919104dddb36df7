// Package common содержит общие утилиты, используемые во всём проекте.
// Сюда входят: русская плюрализация для уведомлений и работа с часовыми поясами.
package common

import (
	"time"

	log "github.com/sirupsen/logrus"
)

// pluralize выбирает форму слова для числа n.
//
// Правила русского языка:
//   - n%10==1 И n%100!=11 → one (1, 21, 31, 101, ...)
//   - n%10 в [2,3,4] И n%100 НЕ в [12,13,14] → few (2, 3, 4, 22, 23, ...)
//   - Остальные случаи → many (0, 5-20, 25-30, 100, ...)
func pluralize(n int64, one, few, many string) string {
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

// PluralizeTickets возвращает форму слова «билет».
//
//	PluralizeTickets(1)  → "билет"
//	PluralizeTickets(3)  → "билета"
//	PluralizeTickets(11) → "билетов"
func PluralizeTickets(n int64) string {
	return pluralize(n, "билет", "билета", "билетов")
}

// PluralizePanels возвращает форму слова «панель».
func PluralizePanels(n int64) string {
	return pluralize(n, "панель", "панели", "панелей")
}

// PluralizeDays возвращает форму слова «день».
func PluralizeDays(n int64) string {
	return pluralize(n, "день", "дня", "дней")
}

// LoadLocation загружает часовой пояс по имени.
// Без tzdata в образе используется UTC.
func LoadLocation(name string) *time.Location {
	loc, err := time.LoadLocation(name)
	if err != nil {
		log.WithError(err).Warnf("Не удалось загрузить часовой пояс %s, используем UTC", name)
		return time.UTC
	}
	return loc
}

// DateIn возвращает календарную дату момента t в поясе loc (полночь, без времени).
func DateIn(t time.Time, loc *time.Location) time.Time {
	t = t.In(loc)
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, loc)
}
