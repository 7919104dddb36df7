// Package admin — service.go содержит логику аутентификации и управления сессиями.
package admin

import (
	"context"
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"
	"golang.org/x/crypto/argon2"

	"efhc.app/ledger/internal/common"
	"efhc.app/ledger/internal/config"
)

// Service выдаёт и проверяет сессии администраторов.
type Service struct {
	repo         Repository
	admins       []int64
	passwordHash string
	now          func() time.Time
}

// NewService создаёт сервис админ-входа.
func NewService(repo Repository, cfg *config.Config) *Service {
	return &Service{
		repo:         repo,
		admins:       cfg.AdminIDs,
		passwordHash: cfg.AdminPasswordHash,
		now:          time.Now,
	}
}

// Login проверяет пароль администратора (Argon2id) и открывает сессию на 24 часа.
// Включает защиту от brute-force: 3 неудачные попытки = блокировка на 1 час.
func (s *Service) Login(ctx context.Context, userID int64, password string) (*Session, error) {
	if !slices.Contains(s.admins, userID) {
		return nil, common.ErrNotAdmin
	}

	now := s.now()

	// Проверяем лимит попыток
	attempts, err := s.repo.CountFailedAttempts(ctx, userID, now.Add(-AttemptWindow))
	if err != nil {
		return nil, fmt.Errorf("ошибка проверки попыток входа: %w", err)
	}
	if attempts >= MaxFailedAttempts {
		return nil, common.ErrTooManyAttempts
	}

	match := verifyArgon2id(password, s.passwordHash)

	if err := s.repo.LogAttempt(ctx, LoginAttempt{UserID: userID, AttemptTime: now, Success: match}); err != nil {
		log.WithError(err).WithField("user_id", userID).Warn("Не удалось записать попытку входа")
	}

	if !match {
		log.WithField("user_id", userID).Warn("Неверный пароль администратора")
		return nil, common.ErrWrongPassword
	}

	session := &Session{
		UserID:          userID,
		Token:           generateSecureToken(),
		AuthenticatedAt: now,
		ExpiresAt:       now.Add(SessionTTL),
	}
	if err := s.repo.CreateSession(ctx, session); err != nil {
		return nil, err
	}

	log.WithField("user_id", userID).Info("Администратор вошёл")
	return session, nil
}

// Authenticate возвращает id администратора по токену сессии.
func (s *Service) Authenticate(ctx context.Context, token string) (int64, error) {
	if token == "" {
		return 0, common.ErrSessionExpired
	}
	now := s.now()
	session, err := s.repo.GetActiveSession(ctx, token, now)
	if errors.Is(err, common.ErrNotFound) {
		return 0, common.ErrSessionExpired
	}
	if err != nil {
		return 0, err
	}
	// Администратора могли убрать из ADMIN_IDS после входа
	if !slices.Contains(s.admins, session.UserID) {
		return 0, common.ErrNotAdmin
	}

	if err := s.repo.UpdateActivity(ctx, token, now); err != nil {
		log.WithError(err).Debug("Не удалось обновить активность сессии")
	}
	return session.UserID, nil
}

// Logout закрывает сессию.
func (s *Service) Logout(ctx context.Context, token string) error {
	return s.repo.DeactivateSession(ctx, token)
}

// --- Криптографические утилиты ---

// Параметры Argon2id для новых хешей.
const (
	argonMemory      uint32 = 65536 // 64 MB
	argonIterations  uint32 = 3
	argonParallelism uint8  = 2
	argonKeyLength   uint32 = 32
)

// HashPassword возвращает хеш в формате
// $argon2id$v=19$m=65536,t=3,p=2$<salt_base64>$<hash_base64>
func HashPassword(password string) (string, error) {
	salt := make([]byte, 16)
	if _, err := rand.Read(salt); err != nil {
		return "", fmt.Errorf("ошибка генерации соли: %w", err)
	}
	hash := argon2.IDKey([]byte(password), salt, argonIterations, argonMemory, argonParallelism, argonKeyLength)

	return fmt.Sprintf("$argon2id$v=%d$m=%d,t=%d,p=%d$%s$%s",
		argon2.Version, argonMemory, argonIterations, argonParallelism,
		base64.RawStdEncoding.EncodeToString(salt),
		base64.RawStdEncoding.EncodeToString(hash)), nil
}

// verifyArgon2id проверяет пароль по хешу Argon2id.
func verifyArgon2id(password, encodedHash string) bool {
	parts := strings.Split(encodedHash, "$")
	if len(parts) != 6 || parts[1] != "argon2id" {
		log.Error("Некорректный формат хеша Argon2id")
		return false
	}

	var memory, iterations uint32
	var parallelism uint8
	if _, err := fmt.Sscanf(parts[3], "m=%d,t=%d,p=%d", &memory, &iterations, &parallelism); err != nil {
		log.WithError(err).Error("Ошибка парсинга параметров Argon2id")
		return false
	}

	salt, err := base64.RawStdEncoding.DecodeString(parts[4])
	if err != nil {
		log.WithError(err).Error("Ошибка декодирования соли")
		return false
	}
	expectedHash, err := base64.RawStdEncoding.DecodeString(parts[5])
	if err != nil {
		log.WithError(err).Error("Ошибка декодирования хеша")
		return false
	}

	computedHash := argon2.IDKey([]byte(password), salt, iterations, memory, parallelism, uint32(len(expectedHash)))

	// Сравниваем в постоянном времени
	return subtle.ConstantTimeCompare(computedHash, expectedHash) == 1
}

// generateSecureToken генерирует случайный токен сессии.
func generateSecureToken() string {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return fmt.Sprintf("fallback-%d", time.Now().UnixNano())
	}
	return base64.URLEncoding.EncodeToString(b)
}
