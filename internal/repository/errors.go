package repository

import "errors"

// Ошибки уровня репозитория
var (
	// ErrNotFound запись не найдена
	ErrNotFound = errors.New("record not found")

	// ErrDuplicate нарушение уникальности
	ErrDuplicate = errors.New("duplicate record")

	// ErrInvalidData неверные данные
	ErrInvalidData = errors.New("invalid data")

	// ErrNotEligible покупка не дает права на скачивание
	ErrNotEligible = errors.New("purchase not eligible for download")
)
