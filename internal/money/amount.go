// Package money — фиксированная точка для всех сумм леджера.
// Amount хранит тысячные доли (3 знака после запятой), любое преобразование
// отбрасывает лишние знаки вниз по модулю, округления вверх нет нигде.
package money

import (
	"database/sql/driver"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// Scale — количество знаков после запятой.
const Scale = 3

// unit — сколько тысячных в одной целой единице.
const unit = 1000

// MaxUnits — предел суммы по модулю в целых единицах. Сумма двух предельных
// значений ещё помещается в int64.
const MaxUnits = 1_000_000_000_000_000

const maxMilli = MaxUnits * unit

var (
	// ErrMalformed — строка не является десятичным числом.
	ErrMalformed = errors.New("некорректная сумма")
	// ErrOutOfRange — сумма больше MaxUnits по модулю.
	ErrOutOfRange = errors.New("сумма вне допустимого диапазона")
)

var maxMilliDecimal = decimal.New(maxMilli, 0)

// Amount — сумма в тысячных долях (EFHC, бонусные EFHC, кВт·ч).
type Amount int64

// Zero — нулевая сумма.
const Zero Amount = 0

// FromMilli создаёт сумму из тысячных долей.
func FromMilli(milli int64) Amount { return Amount(milli) }

// FromInt создаёт сумму из целого числа единиц.
func FromInt(n int64) Amount { return Amount(n * unit) }

// FromDecimal усекает decimal до 3 знаков. Значения больше MaxUnits по модулю
// отклоняются с ErrOutOfRange.
func FromDecimal(d decimal.Decimal) (Amount, error) {
	milli := d.Shift(Scale).Truncate(0)
	if milli.Abs().GreaterThan(maxMilliDecimal) {
		return 0, fmt.Errorf("%w: %s", ErrOutOfRange, d.String())
	}
	return Amount(milli.IntPart()), nil
}

// Parse разбирает десятичную строку ("100", "35.5", "0.0019") и усекает её до 3 знаков.
func Parse(s string) (Amount, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, ErrMalformed
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return 0, fmt.Errorf("%w: %q", ErrMalformed, s)
	}
	return FromDecimal(d)
}

// MustParse — Parse для констант и тестов.
func MustParse(s string) Amount {
	a, err := Parse(s)
	if err != nil {
		panic(err)
	}
	return a
}

// Milli возвращает сумму в тысячных.
func (a Amount) Milli() int64 { return int64(a) }

// Decimal возвращает сумму как decimal.
func (a Amount) Decimal() decimal.Decimal { return decimal.New(int64(a), -Scale) }

// String всегда печатает ровно 3 знака: "100.000".
func (a Amount) String() string { return a.Decimal().StringFixed(Scale) }

func (a Amount) IsPositive() bool { return a > 0 }
func (a Amount) IsZero() bool     { return a == 0 }
func (a Amount) IsNegative() bool { return a < 0 }

// Mul умножает сумму на целое количество (цена × штуки).
func (a Amount) Mul(n int64) (Amount, error) {
	return FromDecimal(a.Decimal().Mul(decimal.NewFromInt(n)))
}

// MulRate умножает сумму на дробный коэффициент и усекает результат.
func (a Amount) MulRate(rate decimal.Decimal) (Amount, error) {
	return FromDecimal(a.Decimal().Mul(rate))
}

// Min возвращает меньшую из двух сумм.
func Min(a, b Amount) Amount {
	if a < b {
		return a
	}
	return b
}

// MarshalJSON сериализует сумму строкой, чтобы клиенты не получали float.
func (a Amount) MarshalJSON() ([]byte, error) {
	return json.Marshal(a.String())
}

// UnmarshalJSON принимает и строку, и число (число читается как текст, без float).
func (a *Amount) UnmarshalJSON(data []byte) error {
	raw := strings.Trim(string(data), `"`)
	if raw == "null" {
		*a = 0
		return nil
	}
	v, err := Parse(raw)
	if err != nil {
		return err
	}
	*a = v
	return nil
}

// Value пишет сумму в NUMERIC(20,3) текстом.
func (a Amount) Value() (driver.Value, error) {
	return a.String(), nil
}

// Scan читает NUMERIC из драйвера.
func (a *Amount) Scan(src any) error {
	switch v := src.(type) {
	case nil:
		*a = 0
		return nil
	case string:
		return a.scanText(v)
	case []byte:
		return a.scanText(string(v))
	case int64:
		v2, err := FromDecimal(decimal.NewFromInt(v))
		*a = v2
		return err
	case float64:
		v2, err := FromDecimal(decimal.NewFromFloat(v))
		*a = v2
		return err
	default:
		return fmt.Errorf("money: неподдерживаемый тип %T", src)
	}
}

func (a *Amount) scanText(s string) error {
	v, err := Parse(s)
	if err != nil {
		return err
	}
	*a = v
	return nil
}
