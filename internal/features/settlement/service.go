package settlement

import (
	"time"

	"efhc.app/ledger/internal/features/ledger"
	"efhc.app/ledger/internal/notify"
	"efhc.app/ledger/internal/storage"
)

// Источники внешних событий
const (
	SourceChain   = "chain"
	SourceWebhook = "webhook"
	SourceOrder   = "order"
)

// Service — сверка внешних платежей с леджером.
type Service struct {
	store    storage.Store
	ledger   *ledger.Service
	catalog  *Catalog
	notifier notify.Notifier
	now      func() time.Time
}

// NewService создаёт сервис сверки.
func NewService(store storage.Store, ledgerService *ledger.Service, catalog *Catalog, notifier notify.Notifier) *Service {
	return &Service{
		store:    store,
		ledger:   ledgerService,
		catalog:  catalog,
		notifier: notifier,
		now:      time.Now,
	}
}

// Catalog возвращает каталог предложений магазина.
func (s *Service) Catalog() *Catalog { return s.catalog }
