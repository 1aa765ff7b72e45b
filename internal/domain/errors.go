package domain

import "errors"

// Ошибки ядра хранилища. Хендлеры отображают их в HTTP-статусы,
// наружу никогда не уходят детали блоб-провайдера или ключи хранения.
var (
	ErrQuotaExceeded = errors.New("storage quota exceeded")
	ErrNotFound      = errors.New("not found")
	ErrForbidden     = errors.New("access denied")
	ErrStorageWrite  = errors.New("storage write failed")
	ErrConflict      = errors.New("conflicting update")
)
