// Package common — pluralize.go собирает готовые подписи для уведомлений.
package common

import "fmt"

// FormatTickets создаёт строку вида "3 билета".
func FormatTickets(n int64) string {
	return fmt.Sprintf("%s %s", FormatNumber(n), PluralizeTickets(n))
}

// FormatPanels создаёт строку вида "5 панелей".
func FormatPanels(n int64) string {
	return fmt.Sprintf("%s %s", FormatNumber(n), PluralizePanels(n))
}

// FormatDays создаёт строку вида "180 дней".
func FormatDays(n int64) string {
	return fmt.Sprintf("%s %s", FormatNumber(n), PluralizeDays(n))
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
