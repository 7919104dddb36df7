// Package admin — repository.go работает с таблицами admin_sessions и admin_login_attempts.
package admin

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"efhc.app/ledger/internal/common"
)

// Repository хранит сессии и попытки входа.
type Repository interface {
	CreateSession(ctx context.Context, session *Session) error
	// GetActiveSession возвращает действующую сессию по токену или common.ErrNotFound.
	GetActiveSession(ctx context.Context, token string, now time.Time) (*Session, error)
	DeactivateSession(ctx context.Context, token string) error
	UpdateActivity(ctx context.Context, token string, at time.Time) error
	LogAttempt(ctx context.Context, attempt LoginAttempt) error
	// CountFailedAttempts — число неудачных попыток с момента since.
	CountFailedAttempts(ctx context.Context, userID int64, since time.Time) (int, error)
}

// PGRepository — Repository поверх PostgreSQL.
type PGRepository struct {
	db *pgxpool.Pool
}

// NewRepository создаёт репозиторий.
func NewRepository(db *pgxpool.Pool) *PGRepository {
	return &PGRepository{db: db}
}

// CreateSession создаёт новую сессию администратора.
func (r *PGRepository) CreateSession(ctx context.Context, session *Session) error {
	query := `
		INSERT INTO admin_sessions (user_id, session_token, authenticated_at, expires_at, last_activity, is_active)
		VALUES ($1, $2, $3, $4, $3, TRUE)
		RETURNING id
	`
	err := r.db.QueryRow(ctx, query, session.UserID, session.Token, session.AuthenticatedAt, session.ExpiresAt).
		Scan(&session.ID)
	if err != nil {
		return fmt.Errorf("ошибка создания сессии: %w", err)
	}
	session.IsActive = true
	session.LastActivity = session.AuthenticatedAt
	return nil
}

// GetActiveSession возвращает активную сессию по токену.
func (r *PGRepository) GetActiveSession(ctx context.Context, token string, now time.Time) (*Session, error) {
	query := `
		SELECT id, user_id, session_token, authenticated_at, expires_at, last_activity, is_active
		FROM admin_sessions
		WHERE session_token = $1 AND is_active = TRUE AND expires_at > $2
	`
	var s Session
	err := r.db.QueryRow(ctx, query, token, now).Scan(
		&s.ID, &s.UserID, &s.Token, &s.AuthenticatedAt,
		&s.ExpiresAt, &s.LastActivity, &s.IsActive,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, common.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("ошибка чтения сессии: %w", err)
	}
	return &s, nil
}

// DeactivateSession деактивирует сессию.
func (r *PGRepository) DeactivateSession(ctx context.Context, token string) error {
	query := `UPDATE admin_sessions SET is_active = FALSE WHERE session_token = $1`
	_, err := r.db.Exec(ctx, query, token)
	return err
}

// UpdateActivity обновляет время последней активности.
func (r *PGRepository) UpdateActivity(ctx context.Context, token string, at time.Time) error {
	query := `UPDATE admin_sessions SET last_activity = $2 WHERE session_token = $1 AND is_active = TRUE`
	_, err := r.db.Exec(ctx, query, token, at)
	return err
}

// LogAttempt записывает попытку входа.
func (r *PGRepository) LogAttempt(ctx context.Context, attempt LoginAttempt) error {
	query := `INSERT INTO admin_login_attempts (user_id, attempt_time, success) VALUES ($1, $2, $3)`
	_, err := r.db.Exec(ctx, query, attempt.UserID, attempt.AttemptTime, attempt.Success)
	return err
}

// CountFailedAttempts возвращает количество неудачных попыток с момента since.
func (r *PGRepository) CountFailedAttempts(ctx context.Context, userID int64, since time.Time) (int, error) {
	query := `
		SELECT COUNT(*) FROM admin_login_attempts
		WHERE user_id = $1 AND success = FALSE AND attempt_time >= $2
	`
	var count int
	err := r.db.QueryRow(ctx, query, userID, since).Scan(&count)
	return count, err
}

// MemoryRepository — Repository в памяти процесса (APP_ENV=memory и тесты).
type MemoryRepository struct {
	mu       sync.Mutex
	nextID   int64
	sessions map[string]*Session
	attempts []LoginAttempt
}

// NewMemoryRepository создаёт пустой репозиторий.
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{sessions: make(map[string]*Session)}
}

func (r *MemoryRepository) CreateSession(_ context.Context, session *Session) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.sessions[session.Token]; ok {
		return common.ErrAlreadyExists
	}
	r.nextID++
	session.ID = r.nextID
	session.IsActive = true
	session.LastActivity = session.AuthenticatedAt
	stored := *session
	r.sessions[session.Token] = &stored
	return nil
}

func (r *MemoryRepository) GetActiveSession(_ context.Context, token string, now time.Time) (*Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.sessions[token]
	if !ok || !s.IsActive || !s.ExpiresAt.After(now) {
		return nil, common.ErrNotFound
	}
	out := *s
	return &out, nil
}

func (r *MemoryRepository) DeactivateSession(_ context.Context, token string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if s, ok := r.sessions[token]; ok {
		s.IsActive = false
	}
	return nil
}

func (r *MemoryRepository) UpdateActivity(_ context.Context, token string, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if s, ok := r.sessions[token]; ok && s.IsActive {
		s.LastActivity = at
	}
	return nil
}

func (r *MemoryRepository) LogAttempt(_ context.Context, attempt LoginAttempt) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.attempts = append(r.attempts, attempt)
	return nil
}

func (r *MemoryRepository) CountFailedAttempts(_ context.Context, userID int64, since time.Time) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	count := 0
	for _, a := range r.attempts {
		if a.UserID == userID && !a.Success && !a.AttemptTime.Before(since) {
			count++
		}
	}
	return count, nil
}
