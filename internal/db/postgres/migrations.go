package postgres

// migration — одна версия схемы.
type migration struct {
	version int
	sql     string
}

// migrations применяются по порядку; уже применённые пропускаются.
var migrations = []migration{
	{1, migration001Accounts},
	{2, migration002Panels},
	{3, migration003Orders},
	{4, migration004Draws},
	{5, migration005Tasks},
	{6, migration006Admin},
	{7, migration007Payouts},
}

var migration001Accounts = `
CREATE TABLE IF NOT EXISTS accounts (
	id              BIGINT PRIMARY KEY,
	main_balance    NUMERIC(20,3) NOT NULL DEFAULT 0 CHECK (main_balance >= 0),
	bonus_balance   NUMERIC(20,3) NOT NULL DEFAULT 0 CHECK (bonus_balance >= 0),
	utility_counter NUMERIC(20,3) NOT NULL DEFAULT 0 CHECK (utility_counter >= 0),
	vip             BOOLEAN NOT NULL DEFAULT FALSE,
	created_at      TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	updated_at      TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE TABLE IF NOT EXISTS mint_burn_log (
	id         BIGSERIAL PRIMARY KEY,
	actor_id   BIGINT NOT NULL,
	direction  TEXT NOT NULL CHECK (direction IN ('MINT', 'BURN')),
	currency   TEXT NOT NULL CHECK (currency IN ('main', 'bonus')),
	amount     NUMERIC(20,3) NOT NULL CHECK (amount > 0),
	note       TEXT NOT NULL DEFAULT '',
	created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE TABLE IF NOT EXISTS transfer_log (
	id         BIGSERIAL PRIMARY KEY,
	from_id    BIGINT NOT NULL,
	to_id      BIGINT NOT NULL,
	currency   TEXT NOT NULL CHECK (currency IN ('main', 'bonus')),
	amount     NUMERIC(20,3) NOT NULL CHECK (amount > 0),
	reason     TEXT NOT NULL,
	created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
CREATE INDEX IF NOT EXISTS idx_transfer_log_from ON transfer_log (from_id, created_at DESC);
CREATE INDEX IF NOT EXISTS idx_transfer_log_to ON transfer_log (to_id, created_at DESC);
`

var migration002Panels = `
CREATE TABLE IF NOT EXISTS panel_levels (
	level     INTEGER PRIMARY KEY,
	daily_kwh NUMERIC(20,3) NOT NULL CHECK (daily_kwh > 0)
);
INSERT INTO panel_levels (level, daily_kwh) VALUES (1, 0.598) ON CONFLICT DO NOTHING;

CREATE TABLE IF NOT EXISTS panels (
	id           BIGSERIAL PRIMARY KEY,
	account_id   BIGINT NOT NULL REFERENCES accounts(id),
	level        INTEGER NOT NULL,
	count        BIGINT NOT NULL CHECK (count > 0),
	activated_at TIMESTAMPTZ NOT NULL,
	expires_at   TIMESTAMPTZ NOT NULL,
	active       BOOLEAN NOT NULL DEFAULT TRUE
);
CREATE INDEX IF NOT EXISTS idx_panels_active ON panels (account_id, expires_at) WHERE active;

CREATE TABLE IF NOT EXISTS accrual_log (
	accrual_date DATE NOT NULL,
	account_id   BIGINT NOT NULL REFERENCES accounts(id),
	yield_kwh    NUMERIC(20,3) NOT NULL,
	units        BIGINT NOT NULL,
	vip          BOOLEAN NOT NULL,
	created_at   TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	PRIMARY KEY (accrual_date, account_id)
);
`

var migration003Orders = `
CREATE TABLE IF NOT EXISTS orders (
	id              BIGSERIAL PRIMARY KEY,
	ref             TEXT NOT NULL UNIQUE,
	account_id      BIGINT NOT NULL REFERENCES accounts(id),
	kind            TEXT NOT NULL CHECK (kind IN ('main_currency', 'vip', 'vip_collectible')),
	offer_code      TEXT NOT NULL,
	external_asset  TEXT NOT NULL,
	external_amount NUMERIC(20,3) NOT NULL,
	credit_amount   NUMERIC(20,3) NOT NULL DEFAULT 0,
	idempotency_key TEXT NOT NULL UNIQUE,
	status          TEXT NOT NULL CHECK (status IN
		('pending', 'paid', 'pending_delivery', 'completed', 'rejected', 'canceled', 'failed')),
	external_tx_ref TEXT NOT NULL DEFAULT '',
	failure_reason  TEXT NOT NULL DEFAULT '',
	created_at      TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	updated_at      TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
CREATE INDEX IF NOT EXISTS idx_orders_account ON orders (account_id, created_at DESC);

CREATE TABLE IF NOT EXISTS processed_events (
	event_id   TEXT PRIMARY KEY,
	source     TEXT NOT NULL,
	outcome    TEXT NOT NULL DEFAULT '',
	note       TEXT NOT NULL DEFAULT '',
	created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE TABLE IF NOT EXISTS fulfillment_requests (
	id         BIGSERIAL PRIMARY KEY,
	account_id BIGINT NOT NULL,
	kind       TEXT NOT NULL,
	order_id   BIGINT REFERENCES orders(id),
	source     TEXT NOT NULL,
	status     TEXT NOT NULL DEFAULT 'open',
	note       TEXT NOT NULL DEFAULT '',
	created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
`

var migration004Draws = `
CREATE TABLE IF NOT EXISTS draws (
	code                TEXT PRIMARY KEY,
	title               TEXT NOT NULL,
	target_participants BIGINT NOT NULL CHECK (target_participants > 0),
	ticket_price        NUMERIC(20,3) NOT NULL CHECK (ticket_price > 0),
	prize               TEXT NOT NULL CHECK (prize IN ('panel', 'vip_collectible')),
	status              TEXT NOT NULL CHECK (status IN ('active', 'settled')),
	winner_ticket_id    BIGINT,
	winner_account_id   BIGINT,
	created_at          TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	settled_at          TIMESTAMPTZ
);

CREATE TABLE IF NOT EXISTS draw_tickets (
	id         BIGSERIAL PRIMARY KEY,
	draw_code  TEXT NOT NULL REFERENCES draws(code),
	account_id BIGINT NOT NULL REFERENCES accounts(id),
	created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
CREATE INDEX IF NOT EXISTS idx_draw_tickets_draw ON draw_tickets (draw_code, id);

INSERT INTO draws (code, title, target_participants, ticket_price, prize, status) VALUES
	('lottery_vip', 'Розыгрыш VIP NFT', 500, 1, 'vip_collectible', 'active'),
	('lottery_panel', 'Розыгрыш панели', 200, 1, 'panel', 'active')
ON CONFLICT DO NOTHING;
`

var migration005Tasks = `
CREATE TABLE IF NOT EXISTS tasks (
	code         TEXT PRIMARY KEY,
	title        TEXT NOT NULL,
	reward_bonus NUMERIC(20,3) NOT NULL CHECK (reward_bonus > 0),
	active       BOOLEAN NOT NULL DEFAULT TRUE
);

CREATE TABLE IF NOT EXISTS task_completions (
	task_code    TEXT NOT NULL REFERENCES tasks(code),
	account_id   BIGINT NOT NULL REFERENCES accounts(id),
	completed_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	PRIMARY KEY (task_code, account_id)
);

INSERT INTO tasks (code, title, reward_bonus) VALUES
	('subscribe_channel', 'Подписаться на канал', 1),
	('invite_friend', 'Пригласить друга', 1)
ON CONFLICT DO NOTHING;
`

var migration006Admin = `
CREATE TABLE IF NOT EXISTS admin_sessions (
	id               BIGSERIAL PRIMARY KEY,
	user_id          BIGINT NOT NULL,
	session_token    TEXT NOT NULL UNIQUE,
	authenticated_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	expires_at       TIMESTAMPTZ NOT NULL,
	last_activity    TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	is_active        BOOLEAN NOT NULL DEFAULT TRUE
);

CREATE TABLE IF NOT EXISTS admin_login_attempts (
	id           BIGSERIAL PRIMARY KEY,
	user_id      BIGINT NOT NULL,
	attempt_time TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	success      BOOLEAN NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_admin_attempts ON admin_login_attempts (user_id, attempt_time);
`

var migration007Payouts = `
CREATE TABLE IF NOT EXISTS withdrawals (
	id              BIGSERIAL PRIMARY KEY,
	account_id      BIGINT NOT NULL REFERENCES accounts(id),
	asset           TEXT NOT NULL CHECK (asset IN ('TON', 'USDT')),
	to_address      TEXT NOT NULL,
	amount          NUMERIC(20,3) NOT NULL CHECK (amount > 0),
	status          TEXT NOT NULL CHECK (status IN
		('pending', 'approved', 'sent', 'rejected', 'canceled', 'failed')),
	idempotency_key TEXT NOT NULL UNIQUE,
	tx_hash         TEXT NOT NULL DEFAULT '',
	admin_comment   TEXT NOT NULL DEFAULT '',
	admin_id        BIGINT NOT NULL DEFAULT 0,
	created_at      TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	updated_at      TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
CREATE INDEX IF NOT EXISTS idx_withdrawals_account ON withdrawals (account_id, id DESC);
CREATE INDEX IF NOT EXISTS idx_withdrawals_status ON withdrawals (status, id DESC);

CREATE TABLE IF NOT EXISTS referrals (
	referee_id   BIGINT PRIMARY KEY REFERENCES accounts(id),
	referrer_id  BIGINT NOT NULL REFERENCES accounts(id) CHECK (referrer_id <> referee_id),
	active       BOOLEAN NOT NULL DEFAULT FALSE,
	created_at   TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	activated_at TIMESTAMPTZ
);
CREATE INDEX IF NOT EXISTS idx_referrals_referrer ON referrals (referrer_id) WHERE active;
`
