// Package config загружает конфигурацию сервиса из переменных окружения.
// Используется envconfig для маппинга переменных окружения на поля структуры.
package config

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"

	"efhc.app/ledger/internal/money"
)

// ErrNoWebhookSecret — секрет вебхуков не задан при работе с PostgreSQL.
var ErrNoWebhookSecret = errors.New("WEBHOOK_SECRET не задан")

// Config содержит ВСЕ настройки приложения.
type Config struct {
	// --- Администраторы ---
	AdminIDsRaw       string  `envconfig:"ADMIN_IDS" required:"true"`
	AdminIDs          []int64 `envconfig:"-"` // заполним вручную
	AdminPasswordHash string  `envconfig:"ADMIN_PASSWORD_HASH" required:"true"`

	// --- Database ---
	// В Docker внутри контейнера "localhost" почти всегда неправильно.
	// Дефолт ставим "postgres" (имя сервиса в docker-compose), для локалки переопределяй DB_HOST=localhost.
	DBHost     string `envconfig:"DB_HOST" default:"postgres"`
	DBPort     int    `envconfig:"DB_PORT" default:"5432"`
	DBUser     string `envconfig:"DB_USER" default:"efhc"`
	DBPassword string `envconfig:"DB_PASSWORD"`
	DBName     string `envconfig:"DB_NAME" default:"efhc"`
	DBSSLMode  string `envconfig:"DB_SSLMODE" default:"disable"`
	DBMaxConns int32  `envconfig:"DB_MAX_CONNS" default:"25"`
	DBMinConns int32  `envconfig:"DB_MIN_CONNS" default:"5"`

	// --- Application ---
	// APP_ENV=memory запускает сервис без PostgreSQL (данные живут до перезапуска)
	AppEnv      string `envconfig:"APP_ENV" default:"development"`
	AppLogLevel string `envconfig:"APP_LOG_LEVEL" default:"debug"`
	AppTimezone string `envconfig:"APP_TIMEZONE" default:"UTC"`
	HTTPAddr    string `envconfig:"HTTP_ADDR" default:":8080"`

	// Секрет вебхуков платёжного шлюза и наблюдателя блокчейна (заголовок X-Webhook-Secret).
	// Вне APP_ENV=memory обязателен.
	WebhookSecret string `envconfig:"WEBHOOK_SECRET"`

	// --- Банк ---
	BankAccountID     int64  `envconfig:"BANK_ACCOUNT_ID" default:"362746228"`
	BankGenesisSupply string `envconfig:"BANK_GENESIS_SUPPLY" default:"0"`

	// --- Панели ---
	PanelPrice     string `envconfig:"PANEL_PRICE" default:"100"`
	PanelMaxActive int64  `envconfig:"PANEL_MAX_ACTIVE" default:"1000"`

	// --- Розыгрыши ---
	DrawTicketPrice      string `envconfig:"DRAW_TICKET_PRICE" default:"1"`
	DrawMaxTicketsPerBuy int64  `envconfig:"DRAW_MAX_TICKETS_PER_BUY" default:"10"`

	// --- Вывод средств ---
	WithdrawMin string `envconfig:"WITHDRAW_MIN" default:"1"`
	WithdrawMax string `envconfig:"WITHDRAW_MAX" default:"1000000"`

	// --- Рефералы ---
	// Бонус пригласившему за первую покупку панели приглашённым
	ReferralDirectBonus string `envconfig:"REFERRAL_DIRECT_BONUS" default:"0.1"`

	// --- Планировщик ---
	AccrualCron     string `envconfig:"ACCRUAL_CRON" default:"30 0 * * *"`
	DrawCron        string `envconfig:"DRAW_CRON" default:"* * * * *"`
	ChainPollCron   string `envconfig:"CHAIN_POLL_CRON" default:"*/1 * * * *"`
	PanelExpiryCron string `envconfig:"PANEL_EXPIRY_CRON" default:"5 0 * * *"`
	// Пустой REDIS_ADDR: задачи выполняются без межрепличной блокировки
	RedisAddr     string        `envconfig:"REDIS_ADDR"`
	RedisPassword string        `envconfig:"REDIS_PASSWORD"`
	JobLeaseTTL   time.Duration `envconfig:"JOB_LEASE_TTL" default:"55s"`

	// --- TON ---
	// Пустой TON_WALLET_ADDRESS отключает опрос блокчейна
	TONAPIBaseURL    string        `envconfig:"TON_API_BASE_URL" default:"https://tonapi.io"`
	TONAPIKey        string        `envconfig:"TON_API_KEY"`
	TONWalletAddress string        `envconfig:"TON_WALLET_ADDRESS"`
	TONPollLimit     int           `envconfig:"TON_POLL_LIMIT" default:"50"`
	TONHTTPTimeout   time.Duration `envconfig:"TON_HTTP_TIMEOUT" default:"10s"`

	// --- Telegram ---
	// Без токена уведомления администраторам только пишутся в лог
	TelegramBotToken string `envconfig:"TELEGRAM_BOT_TOKEN"`

	// --- Rate Limiting ---
	RateLimitRequests int           `envconfig:"RATE_LIMIT_REQUESTS" default:"30"`
	RateLimitWindow   time.Duration `envconfig:"RATE_LIMIT_WINDOW" default:"1m"`
}

// DatabaseDSN возвращает строку подключения к PostgreSQL в формате DSN.
func (c *Config) DatabaseDSN() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=%s",
		c.DBUser, c.DBPassword, c.DBHost, c.DBPort, c.DBName, c.DBSSLMode,
	)
}

// InMemory сообщает, что хранилище работает без PostgreSQL.
func (c *Config) InMemory() bool {
	return c.AppEnv == "memory"
}

// PanelPriceAmount — цена одной панели.
func (c *Config) PanelPriceAmount() money.Amount {
	return money.MustParse(c.PanelPrice)
}

// TicketPriceAmount — цена билета по умолчанию для новых розыгрышей.
func (c *Config) TicketPriceAmount() money.Amount {
	return money.MustParse(c.DrawTicketPrice)
}

// GenesisSupply — стартовая эмиссия Банка.
func (c *Config) GenesisSupply() money.Amount {
	return money.MustParse(c.BankGenesisSupply)
}

// WithdrawLimits — минимальная и максимальная сумма одной заявки на вывод.
func (c *Config) WithdrawLimits() (lo, hi money.Amount) {
	return money.MustParse(c.WithdrawMin), money.MustParse(c.WithdrawMax)
}

func (c *Config) ReferralBonus() money.Amount {
	return money.MustParse(c.ReferralDirectBonus)
}

// Validate проверяет значения, которые envconfig не может проверить сам.
func (c *Config) Validate() error {
	if c.BankAccountID <= 0 {
		return fmt.Errorf("BANK_ACCOUNT_ID должен быть > 0")
	}
	for _, id := range c.AdminIDs {
		if id == c.BankAccountID {
			return fmt.Errorf("ADMIN_IDS не может содержать счёт Банка")
		}
	}
	if !c.InMemory() && c.DBPassword == "" {
		return fmt.Errorf("DB_PASSWORD не задан")
	}
	if !c.InMemory() && c.WebhookSecret == "" {
		return ErrNoWebhookSecret
	}
	if c.DBMaxConns <= 0 || c.DBMinConns < 0 || c.DBMinConns > c.DBMaxConns {
		return fmt.Errorf("некорректные DB_MIN_CONNS/DB_MAX_CONNS")
	}
	for name, v := range map[string]string{
		"PANEL_PRICE":           c.PanelPrice,
		"DRAW_TICKET_PRICE":     c.DrawTicketPrice,
		"BANK_GENESIS_SUPPLY":   c.BankGenesisSupply,
		"WITHDRAW_MIN":          c.WithdrawMin,
		"WITHDRAW_MAX":          c.WithdrawMax,
		"REFERRAL_DIRECT_BONUS": c.ReferralDirectBonus,
	} {
		a, err := money.Parse(v)
		if err != nil {
			return fmt.Errorf("%s: %w", name, err)
		}
		if a.IsNegative() || (name != "BANK_GENESIS_SUPPLY" && !a.IsPositive()) {
			return fmt.Errorf("%s должен быть > 0", name)
		}
	}
	if lo, hi := c.WithdrawLimits(); lo > hi {
		return fmt.Errorf("WITHDRAW_MIN больше WITHDRAW_MAX")
	}
	if c.PanelMaxActive <= 0 {
		return fmt.Errorf("PANEL_MAX_ACTIVE должен быть > 0")
	}
	if c.DrawMaxTicketsPerBuy <= 0 {
		return fmt.Errorf("DRAW_MAX_TICKETS_PER_BUY должен быть > 0")
	}
	if c.RateLimitRequests <= 0 {
		return fmt.Errorf("RATE_LIMIT_REQUESTS должен быть > 0")
	}
	return nil
}

// Load читает переменные окружения и заполняет структуру Config.
func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("не удалось загрузить конфигурацию: %w", err)
	}

	ids, err := parseInt64CSV(cfg.AdminIDsRaw)
	if err != nil {
		return nil, fmt.Errorf("ADMIN_IDS parse: %w", err)
	}
	cfg.AdminIDs = ids

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func parseInt64CSV(s string) ([]int64, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, nil
	}
	parts := strings.Split(s, ",")
	out := make([]int64, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		v, err := strconv.ParseInt(p, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("bad int64 %q: %w", p, err)
		}
		out = append(out, v)
	}
	return out, nil
}
