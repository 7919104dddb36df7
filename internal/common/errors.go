// Package common — errors.go определяет ошибки леджера, которые используются
// во всех модулях. По ним HTTP-слой и фоновые задачи различают типы отказов
// (errors.Is), не разбирая текст.
package common

import "errors"

// Ошибки денежных операций
var (
	// ErrInvalidAmount — сумма нулевая, отрицательная или не разбирается
	ErrInvalidAmount = errors.New("сумма должна быть положительной")
	// ErrInsufficientBalance — условное списание с пользователя не затронуло ни одной строки
	ErrInsufficientBalance = errors.New("недостаточно средств на счёте")
	// ErrInsufficientBankBalance — у Банка не хватает средств на начисление или сжигание
	ErrInsufficientBankBalance = errors.New("недостаточно средств у Банка")
	// ErrInsufficientFunds — бонусного и основного баланса вместе не хватает на покупку
	ErrInsufficientFunds = errors.New("недостаточно средств для покупки")
	// ErrSelfTransfer — перевод самому себе
	ErrSelfTransfer = errors.New("нельзя переводить самому себе")
	// ErrBankAccount — операция пользователя запрошена для счёта Банка
	ErrBankAccount = errors.New("операция недоступна для счёта Банка")
)

// Ошибки состояний и идемпотентности
var (
	// ErrInvalidStateTransition — переход заказа или розыгрыша из несовместимого состояния
	ErrInvalidStateTransition = errors.New("недопустимый переход состояния")
	// ErrDuplicateEvent — событие или ключ идемпотентности уже обработаны
	ErrDuplicateEvent = errors.New("событие уже обработано")
	// ErrNotFound — заказ, розыгрыш, задание или счёт не найдены
	ErrNotFound = errors.New("не найдено")
	// ErrAlreadyExists — розыгрыш с таким кодом уже создан, пригласивший уже указан
	ErrAlreadyExists = errors.New("уже существует")
	// ErrJobBusy — задача уже выполняется здесь или на другой реплике
	ErrJobBusy = errors.New("задача уже выполняется")
)

// Ошибки входных данных
var (
	// ErrInvalidDate — дата начисления не совпадает с текущими сутками
	ErrInvalidDate = errors.New("недопустимая дата")
	// ErrInvalidAddress — адрес кошелька для вывода не разбирается
	ErrInvalidAddress = errors.New("некорректный адрес кошелька")
	// ErrSelfReferral — пользователь указал пригласившим самого себя
	ErrSelfReferral = errors.New("нельзя пригласить самого себя")
)

// Ошибки лимитов
var (
	// ErrPanelLimit — превышен лимит активных панелей на аккаунт
	ErrPanelLimit = errors.New("превышен лимит активных панелей")
	// ErrTicketLimit — слишком много билетов за одну покупку
	ErrTicketLimit = errors.New("превышен лимит билетов за покупку")
	// ErrDrawFull — в розыгрыше не осталось мест
	ErrDrawFull = errors.New("все билеты розыгрыша проданы")
	// ErrUnknownOffer — нет предложения магазина с такими видом, активом и суммой
	ErrUnknownOffer = errors.New("нет такого предложения в магазине")
	// ErrNoYieldRates — таблица ставок генерации пуста
	ErrNoYieldRates = errors.New("таблица ставок генерации пуста")
)

// Ошибки админки
var (
	// ErrNotAdmin — пользователь не является администратором
	ErrNotAdmin = errors.New("у вас нет прав администратора")
	// ErrWrongPassword — неверный пароль
	ErrWrongPassword = errors.New("неверный пароль")
	// ErrTooManyAttempts — слишком много неудачных попыток входа
	ErrTooManyAttempts = errors.New("слишком много попыток, подождите 1 час")
	// ErrSessionExpired — сессия истекла или не существует
	ErrSessionExpired = errors.New("сессия истекла, авторизуйтесь заново")
)

// ErrTooManyRequests — превышен лимит запросов
var ErrTooManyRequests = errors.New("слишком много запросов, попробуйте позже")
