package domain

import (
	"errors"
	"fmt"
)

// Таксономия ошибок контрольной плоскости.
// Валидация и not-found всплывают сразу, ошибки хранилища — как 503,
// ошибки диспатча гасятся шлюзом в обычную форму ответа.

// ValidationError — некорректный или неполный вход, отклоняется до любых мутаций.
type ValidationError struct {
	Field string
	Msg   string
}

func (e *ValidationError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("validation: %s: %s", e.Field, e.Msg)
	}
	return "validation: " + e.Msg
}

func NewValidationError(field, msg string) error {
	return &ValidationError{Field: field, Msg: msg}
}

// NotFoundError — неизвестное имя агента или неизвестный/уже потребленный request_id.
type NotFoundError struct {
	Resource string
	Key      string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s not found: %s", e.Resource, e.Key)
}

func NewNotFoundError(resource, key string) error {
	return &NotFoundError{Resource: resource, Key: key}
}

// StorageError — долговременное хранилище недоступно для мутирующего вызова.
// Обязана всплыть: потерянный heartbeat рассинхронизирует производный статус.
type StorageError struct {
	Op  string
	Err error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("storage: %s: %v", e.Op, e.Err)
}

func (e *StorageError) Unwrap() error { return e.Err }

func NewStorageError(op string, err error) error {
	return &StorageError{Op: op, Err: err}
}

// DispatchError — нижестоящий обработчик агента отказал. Шлюз конвертирует
// его в ответ "Error: ..." и никогда не пробрасывает как жесткий сбой.
type DispatchError struct {
	Agent string
	Err   error
}

func (e *DispatchError) Error() string {
	return fmt.Sprintf("dispatch: agent %s: %v", e.Agent, e.Err)
}

func (e *DispatchError) Unwrap() error { return e.Err }

func IsValidation(err error) bool {
	var v *ValidationError
	return errors.As(err, &v)
}

func IsNotFound(err error) bool {
	var n *NotFoundError
	return errors.As(err, &n)
}

func IsStorage(err error) bool {
	var s *StorageError
	return errors.As(err, &s)
}
