package settlement

import (
	"strings"

	"efhc.app/ledger/internal/domain"
	"efhc.app/ledger/internal/money"
)

// Offer — позиция магазина, оплачиваемая внешней валютой.
type Offer struct {
	Code   string           `json:"code"`
	Title  string           `json:"title"`
	Kind   domain.OrderKind `json:"kind"`
	Asset  string           `json:"asset"`
	Price  money.Amount     `json:"price"`
	Credit money.Amount     `json:"credit"` // EFHC к зачислению, только для пакетов
}

// DefaultOffers — витрина магазина: пакеты EFHC, VIP-статус и VIP NFT.
var DefaultOffers = []Offer{
	{Code: "efhc_10", Title: "10 EFHC", Kind: domain.OrderMainCurrency, Asset: "TON", Price: money.MustParse("0.8"), Credit: money.FromInt(10)},
	{Code: "efhc_10", Title: "10 EFHC", Kind: domain.OrderMainCurrency, Asset: "USDT", Price: money.FromInt(3), Credit: money.FromInt(10)},
	{Code: "efhc_100", Title: "100 EFHC", Kind: domain.OrderMainCurrency, Asset: "TON", Price: money.FromInt(8), Credit: money.FromInt(100)},
	{Code: "efhc_100", Title: "100 EFHC", Kind: domain.OrderMainCurrency, Asset: "USDT", Price: money.FromInt(30), Credit: money.FromInt(100)},
	{Code: "efhc_1000", Title: "1000 EFHC", Kind: domain.OrderMainCurrency, Asset: "TON", Price: money.FromInt(80), Credit: money.FromInt(1000)},
	{Code: "efhc_1000", Title: "1000 EFHC", Kind: domain.OrderMainCurrency, Asset: "USDT", Price: money.FromInt(300), Credit: money.FromInt(1000)},
	{Code: "vip", Title: "VIP-статус", Kind: domain.OrderVIP, Asset: "TON", Price: money.FromInt(10)},
	{Code: "vip", Title: "VIP-статус", Kind: domain.OrderVIP, Asset: "USDT", Price: money.FromInt(25)},
	{Code: "vip_nft", Title: "VIP NFT", Kind: domain.OrderVIPCollectible, Asset: "TON", Price: money.FromInt(20)},
	{Code: "vip_nft", Title: "VIP NFT", Kind: domain.OrderVIPCollectible, Asset: "USDT", Price: money.FromInt(50)},
}

// Catalog ищет предложение по виду, активу и сумме платежа.
type Catalog struct {
	offers []Offer
}

// NewCatalog создаёт каталог из списка предложений.
func NewCatalog(offers []Offer) *Catalog {
	return &Catalog{offers: append([]Offer(nil), offers...)}
}

// Match возвращает предложение, точно совпадающее с параметрами заказа.
func (c *Catalog) Match(kind domain.OrderKind, asset string, amount money.Amount) (Offer, bool) {
	asset = strings.ToUpper(asset)
	for _, o := range c.offers {
		if o.Kind == kind && o.Asset == asset && o.Price == amount {
			return o, true
		}
	}
	return Offer{}, false
}

// List возвращает все предложения.
func (c *Catalog) List() []Offer {
	return append([]Offer(nil), c.offers...)
}
