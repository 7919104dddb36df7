// Package settlement сводит внешние платежи (TON, USDT, вебхуки платёжного
// шлюза) с внутренним леджером: заказы, разбор комментариев к переводам,
// идемпотентная обработка событий блокчейна.
package settlement

import (
	"fmt"
	"strconv"
	"strings"
	"unicode"

	"efhc.app/ledger/internal/domain"
	"efhc.app/ledger/internal/money"
)

// AssetEFHC — тикер основной валюты в комментариях и событиях блокчейна.
const AssetEFHC = "EFHC"

// Memo — разобранный комментарий к переводу.
// Грамматика: ["id"] <account> [<amount> <asset>] ["VIP" ["NFT"]] [("order"|"заказ") <ref>]
type Memo struct {
	AccountID int64
	Amount    money.Amount // имеет смысл только при непустом Asset
	Asset     string       // в верхнем регистре, "" если суммы нет
	VIP       bool
	NFT       bool
	OrderRef  string
}

// HasAmount — в комментарии указана сумма с активом.
func (m *Memo) HasAmount() bool { return m.Asset != "" }

// MemoErrorKind — почему комментарий не разобран.
type MemoErrorKind string

const (
	MemoEmpty              MemoErrorKind = "empty"
	MemoMissingAccount     MemoErrorKind = "missing_account"
	MemoBadAccount         MemoErrorKind = "bad_account"
	MemoBadAmount          MemoErrorKind = "bad_amount"
	MemoAmountWithoutAsset MemoErrorKind = "amount_without_asset"
	MemoMissingOrderRef    MemoErrorKind = "missing_order_ref"
	MemoUnexpectedToken    MemoErrorKind = "unexpected_token"
)

// MemoError — ошибка разбора с токеном, на котором разбор остановился.
type MemoError struct {
	Kind  MemoErrorKind
	Token string
}

func (e *MemoError) Error() string {
	if e.Token == "" {
		return fmt.Sprintf("комментарий не разобран: %s", e.Kind)
	}
	return fmt.Sprintf("комментарий не разобран: %s (%q)", e.Kind, e.Token)
}

// isSeparator — разделители токенов: запятая, точка с запятой, двоеточие и пробелы.
func isSeparator(r rune) bool {
	return r == ',' || r == ';' || r == ':' || unicode.IsSpace(r)
}

func isKeyword(tok string) bool {
	switch strings.ToLower(tok) {
	case "id", "vip", "nft", "order", "заказ":
		return true
	}
	return false
}

func looksNumeric(tok string) bool {
	if tok == "" {
		return false
	}
	c := tok[0]
	return (c >= '0' && c <= '9') || c == '-' || c == '+' || c == '.'
}

// ParseMemo разбирает комментарий. Результат детерминирован: одна и та же строка
// всегда даёт один и тот же Memo или одну и ту же ошибку.
func ParseMemo(raw string) (*Memo, error) {
	tokens := strings.FieldsFunc(raw, isSeparator)
	if len(tokens) == 0 {
		return nil, &MemoError{Kind: MemoEmpty}
	}

	pos := 0
	peek := func() string {
		if pos < len(tokens) {
			return tokens[pos]
		}
		return ""
	}

	if strings.EqualFold(peek(), "id") {
		pos++
	}

	// Аккаунт
	tok := peek()
	if tok == "" {
		return nil, &MemoError{Kind: MemoMissingAccount}
	}
	id, err := strconv.ParseInt(tok, 10, 64)
	if err != nil || id <= 0 {
		return nil, &MemoError{Kind: MemoBadAccount, Token: tok}
	}
	m := &Memo{AccountID: id}
	pos++

	// Сумма и актив
	if tok := peek(); looksNumeric(tok) {
		amount, err := money.Parse(tok)
		if err != nil || !amount.IsPositive() {
			return nil, &MemoError{Kind: MemoBadAmount, Token: tok}
		}
		pos++
		asset := peek()
		if asset == "" || isKeyword(asset) || looksNumeric(asset) {
			return nil, &MemoError{Kind: MemoAmountWithoutAsset, Token: tok}
		}
		m.Amount = amount
		m.Asset = strings.ToUpper(asset)
		pos++
	}

	// VIP [NFT]
	if strings.EqualFold(peek(), "vip") {
		m.VIP = true
		pos++
		if strings.EqualFold(peek(), "nft") {
			m.NFT = true
			pos++
		}
	}

	// Ссылка на заказ
	if kw := strings.ToLower(peek()); kw == "order" || kw == "заказ" {
		pos++
		ref := peek()
		if ref == "" || isKeyword(ref) {
			return nil, &MemoError{Kind: MemoMissingOrderRef}
		}
		m.OrderRef = ref
		pos++
	}

	if pos < len(tokens) {
		return nil, &MemoError{Kind: MemoUnexpectedToken, Token: tokens[pos]}
	}
	return m, nil
}

// BuildPaymentMemo формирует канонический комментарий для оплаты заказа.
// ParseMemo(BuildPaymentMemo(o)) возвращает аккаунт, сумму и ссылку заказа.
func BuildPaymentMemo(o *domain.Order) string {
	var b strings.Builder
	fmt.Fprintf(&b, "id %d %s %s", o.AccountID, o.ExternalAmount.String(), o.ExternalAsset)
	switch o.Kind {
	case domain.OrderVIP:
		b.WriteString(" VIP")
	case domain.OrderVIPCollectible:
		b.WriteString(" VIP NFT")
	}
	fmt.Fprintf(&b, "; order %s", o.Ref)
	return b.String()
}
