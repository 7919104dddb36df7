package notify

import (
	"context"
	"errors"
	"testing"

	"github.com/mymmrac/telego"
	"github.com/stretchr/testify/require"
)

type fakeSender struct {
	sent []int64
	fail map[int64]bool
}

func (f *fakeSender) SendMessage(_ context.Context, params *telego.SendMessageParams) (*telego.Message, error) {
	id := params.ChatID.ID
	if f.fail[id] {
		return nil, errors.New("chat not found")
	}
	f.sent = append(f.sent, id)
	return &telego.Message{Text: params.Text}, nil
}

func TestTelegramNotifiesEveryAdmin(t *testing.T) {
	fake := &fakeSender{fail: map[int64]bool{2: true}}
	tg := &Telegram{bot: fake, admins: []int64{1, 2, 3}}

	tg.NotifyAdmins(context.Background(), "Новая заявка")
	require.Equal(t, []int64{1, 3}, fake.sent)
}

func TestRecorder(t *testing.T) {
	var r Recorder
	r.NotifyAdmins(context.Background(), "a")
	r.NotifyAdmins(context.Background(), "b")
	require.Equal(t, []string{"a", "b"}, r.Messages())
}
