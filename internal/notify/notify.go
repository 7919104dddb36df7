// Package notify отправляет служебные уведомления администраторам в Telegram:
// новые заявки на выдачу VIP NFT, победители розыгрышей.
package notify

import (
	"context"
	"fmt"
	"sync"

	"github.com/mymmrac/telego"
	tu "github.com/mymmrac/telego/telegoutil"
	log "github.com/sirupsen/logrus"
)

// Notifier — получатель служебных уведомлений.
type Notifier interface {
	NotifyAdmins(ctx context.Context, text string)
}

// sender — часть telego.Bot, которой пользуется Telegram.
type sender interface {
	SendMessage(ctx context.Context, params *telego.SendMessageParams) (*telego.Message, error)
}

// Telegram рассылает уведомления всем администраторам из ADMIN_IDS.
type Telegram struct {
	bot    sender
	admins []int64
}

// NewTelegram создаёт бота по токену. Ошибка означает некорректный токен.
func NewTelegram(token string, admins []int64) (*Telegram, error) {
	bot, err := telego.NewBot(token)
	if err != nil {
		return nil, fmt.Errorf("ошибка создания Telegram API: %w", err)
	}
	return &Telegram{bot: bot, admins: admins}, nil
}

// NotifyAdmins отправляет text каждому администратору.
// Ошибки доставки только логируются: уведомление не должно ломать операцию.
func (t *Telegram) NotifyAdmins(ctx context.Context, text string) {
	for _, id := range t.admins {
		if _, err := t.bot.SendMessage(ctx, tu.Message(tu.ID(id), text)); err != nil {
			log.WithError(err).WithField("admin", id).Warn("Не удалось отправить уведомление")
		}
	}
}

// Log пишет уведомления в лог, когда TELEGRAM_BOT_TOKEN не задан.
type Log struct{}

func (Log) NotifyAdmins(_ context.Context, text string) {
	log.WithField("component", "notify").Info(text)
}

// Recorder запоминает уведомления; используется в тестах.
type Recorder struct {
	mu       sync.Mutex
	messages []string
}

func (r *Recorder) NotifyAdmins(_ context.Context, text string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.messages = append(r.messages, text)
}

// Messages возвращает копию отправленных уведомлений.
func (r *Recorder) Messages() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.messages...)
}
