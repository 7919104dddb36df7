package settlement

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	log "github.com/sirupsen/logrus"
	"github.com/tidwall/gjson"

	"efhc.app/ledger/internal/common"
	"efhc.app/ledger/internal/domain"
	"efhc.app/ledger/internal/money"
)

// tonDecimals — знаков после запятой у TON и у jetton EFHC.
const tonDecimals = 9

// maxResponseBytes ограничивает размер ответа TON API.
const maxResponseBytes = 4 << 20

// EventSink принимает события блокчейна.
type EventSink interface {
	BlockchainEvent(ctx context.Context, ev ChainEvent) (*EventResult, error)
}

// ChainWatcherConfig — параметры опроса tonapi.
type ChainWatcherConfig struct {
	BaseURL string
	APIKey  string
	Wallet  string
	Limit   int
	Timeout time.Duration
}

// ChainWatcher опрашивает tonapi и передаёт входящие переводы на кошелёк проекта
// в EventSink. Повторно полученные транзакции отсекаются идемпотентностью BlockchainEvent.
type ChainWatcher struct {
	cfg    ChainWatcherConfig
	client *http.Client
	sink   EventSink
}

// NewChainWatcher создаёт опросчик.
func NewChainWatcher(cfg ChainWatcherConfig, sink EventSink) *ChainWatcher {
	if cfg.Limit <= 0 {
		cfg.Limit = 50
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	return &ChainWatcher{
		cfg:    cfg,
		client: &http.Client{Timeout: cfg.Timeout},
		sink:   sink,
	}
}

// PollReport — итог одного опроса.
type PollReport struct {
	Fetched    int
	Applied    int
	Skipped    int
	Duplicates int
	Failed     int
}

// Poll загружает последние транзакции кошелька и обрабатывает входящие.
// Ошибка HTTP возвращается целиком; следующий тик повторит опрос.
func (w *ChainWatcher) Poll(ctx context.Context) (*PollReport, error) {
	body, err := w.fetch(ctx)
	if err != nil {
		return nil, err
	}

	events := parseTransactions(body)
	report := &PollReport{Fetched: len(events)}
	for _, ev := range events {
		res, err := w.sink.BlockchainEvent(ctx, ev)
		switch {
		case errors.Is(err, common.ErrDuplicateEvent):
			report.Duplicates++
		case err != nil:
			report.Failed++
			log.WithError(err).WithField("event", ev.ID).Error("Ошибка обработки транзакции TON")
		case res.Outcome == domain.OutcomeApplied:
			report.Applied++
		default:
			report.Skipped++
		}
	}
	return report, nil
}

func (w *ChainWatcher) fetch(ctx context.Context) ([]byte, error) {
	endpoint := fmt.Sprintf("%s/v2/blockchain/accounts/%s/transactions?limit=%d",
		strings.TrimRight(w.cfg.BaseURL, "/"), url.PathEscape(w.cfg.Wallet), w.cfg.Limit)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("ошибка запроса TON API: %w", err)
	}
	if w.cfg.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+w.cfg.APIKey)
	}

	resp, err := w.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("TON API недоступен: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, fmt.Errorf("ошибка чтения ответа TON API: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("TON API ответил %d: %s", resp.StatusCode, gjson.GetBytes(body, "error").String())
	}
	return body, nil
}

// parseTransactions превращает ответ tonapi в события. Неуспешные транзакции
// и внешние сообщения (исходящие переводы кошелька) пропускаются.
func parseTransactions(body []byte) []ChainEvent {
	var out []ChainEvent
	gjson.GetBytes(body, "transactions").ForEach(func(_, tx gjson.Result) bool {
		hash := tx.Get("hash").String()
		in := tx.Get("in_msg")
		if hash == "" || !in.Get("source").Exists() || !tx.Get("success").Bool() {
			return true
		}

		ev := ChainEvent{
			ID:   hash,
			From: in.Get("source.address").String(),
			To:   in.Get("destination.address").String(),
		}
		if in.Get("decoded_op_name").String() == "jetton_notify" {
			// Входящий jetton EFHC: сумма в минимальных единицах
			raw, err := decimal.NewFromString(in.Get("decoded_body.amount").String())
			if err != nil {
				return true
			}
			ev.Asset = AssetEFHC
			if ev.Amount, err = money.FromDecimal(raw.Shift(-tonDecimals)); err != nil {
				log.WithError(err).WithField("tx", hash).Warn("Сумма jetton-перевода вне диапазона, событие пропущено")
				return true
			}
			ev.Memo = in.Get("decoded_body.forward_payload.value.value.text").String()
		} else {
			ev.Asset = "TON"
			amount, err := money.FromDecimal(decimal.New(in.Get("value").Int(), -tonDecimals))
			if err != nil {
				log.WithError(err).WithField("tx", hash).Warn("Сумма TON-перевода вне диапазона, событие пропущено")
				return true
			}
			ev.Amount = amount
			ev.Memo = in.Get("decoded_body.text").String()
			if ev.Memo == "" {
				ev.Memo = in.Get("message").String()
			}
		}
		out = append(out, ev)
		return true
	})
	return out
}
