package domain

import (
	"errors"
	"fmt"
)

// Application errors
var (
	// ErrNotFound запись не найдена
	ErrNotFound = errors.New("record not found")

	// ErrDuplicate дубликат записи
	ErrDuplicate = errors.New("duplicate record")

	// ErrInvalidInput неверные входные данные
	ErrInvalidInput = errors.New("invalid input data")

	// ErrUnauthenticated пользователь не аутентифицирован
	ErrUnauthenticated = errors.New("unauthenticated")

	// ErrUnauthorized покупка принадлежит другому пользователю
	ErrUnauthorized = errors.New("unauthorized")

	// ErrGateway платежный шлюз отклонил запрос или недоступен
	ErrGateway = errors.New("payment gateway error")

	// ErrVerificationFailed шлюз не подтвердил списание средств
	ErrVerificationFailed = errors.New("payment verification failed")

	// ErrPersistence запись в хранилище не прошла
	ErrPersistence = errors.New("persistence error")

	// ErrNotEligible квота исчерпана или покупка истекла
	ErrNotEligible = errors.New("purchase is not download-eligible")
)

// PurchaseError представляет ошибку в жизненном цикле покупки
type PurchaseError struct {
	Code        string
	Message     string
	PurchaseID  string
	OriginalErr error
}

// Error реализует интерфейс error
func (e *PurchaseError) Error() string {
	if e.OriginalErr != nil {
		return fmt.Sprintf("purchase error [%s]: %s: %v (purchase_id: %s)", e.Code, e.Message, e.OriginalErr, e.PurchaseID)
	}
	return fmt.Sprintf("purchase error [%s]: %s (purchase_id: %s)", e.Code, e.Message, e.PurchaseID)
}

// Unwrap возвращает оригинальную ошибку
func (e *PurchaseError) Unwrap() error {
	return e.OriginalErr
}

// NewPurchaseError создает новую ошибку покупки
func NewPurchaseError(code, message, purchaseID string, err error) *PurchaseError {
	return &PurchaseError{
		Code:        code,
		Message:     message,
		PurchaseID:  purchaseID,
		OriginalErr: err,
	}
}

// ExternalServiceError представляет ошибку внешнего сервиса
type ExternalServiceError struct {
	Service     string
	Code        string
	Message     string
	OriginalErr error
}

// Error реализует интерфейс error
func (e *ExternalServiceError) Error() string {
	if e.OriginalErr != nil {
		return fmt.Sprintf("%s service error [%s]: %s: %v", e.Service, e.Code, e.Message, e.OriginalErr)
	}
	return fmt.Sprintf("%s service error [%s]: %s", e.Service, e.Code, e.Message)
}

// Unwrap возвращает оригинальную ошибку
func (e *ExternalServiceError) Unwrap() error {
	return e.OriginalErr
}

// Is сопоставляет ошибку внешнего сервиса с ErrGateway
func (e *ExternalServiceError) Is(target error) bool {
	return target == ErrGateway
}

// NewExternalServiceError создает новую ошибку внешнего сервиса
func NewExternalServiceError(service, code, message string, err error) *ExternalServiceError {
	return &ExternalServiceError{
		Service:     service,
		Code:        code,
		Message:     message,
		OriginalErr: err,
	}
}

// NotFoundError представляет ошибку "не найдено"
type NotFoundError struct {
	Entity string
	ID     string
}

// Error реализует интерфейс error
func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s with ID %s not found", e.Entity, e.ID)
}

// Is проверяет, является ли ошибка ошибкой типа "не найдено"
func (e *NotFoundError) Is(target error) bool {
	return target == ErrNotFound
}

// NewNotFoundError создает новую ошибку "не найдено"
func NewNotFoundError(entity, id string) *NotFoundError {
	return &NotFoundError{
		Entity: entity,
		ID:     id,
	}
}
