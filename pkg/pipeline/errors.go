package pipeline

import (
	"errors"
	"fmt"
	"strings"
)

// Ошибки уровня запуска прерывают запуск целиком; построчные ошибки
// записываются в историю и не останавливают обработку остальных записей.
// Ошибки соединения и отсутствующих путей приходят из pkg/connector
// (ErrConnection, PathNotFoundError) и здесь не дублируются.

// ErrRunInProgress возвращается, когда для конфигурации уже выполняется
// запуск: одновременно допустим максимум один запуск на конфигурацию.
var ErrRunInProgress = errors.New("pipeline: run already in progress for this config")

// ConfigurationError — отсутствующая или некорректная часть конфигурации,
// обнаруженная до запуска.
type ConfigurationError struct {
	Msg string
}

func (e *ConfigurationError) Error() string {
	return "configuration error: " + e.Msg
}

// CodecError — файл не разобран или не сериализован; прерывает запуск.
type CodecError struct {
	FileName string
	Err      error
}

func (e *CodecError) Error() string {
	return fmt.Sprintf("codec error in '%s': %v", e.FileName, e.Err)
}

func (e *CodecError) Unwrap() error {
	return e.Err
}

// TransformError — исключение маппинга одной записи; записывается
// в историю, обработка продолжается.
type TransformError struct {
	Row int
	Err error
}

func (e *TransformError) Error() string {
	return fmt.Sprintf("transform failed at row %d: %v", e.Row, e.Err)
}

func (e *TransformError) Unwrap() error {
	return e.Err
}

// ValidationError — одна запись не прошла валидацию; записывается
// в историю, обработка продолжается.
type ValidationError struct {
	Row      int
	Messages []string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation failed at row %d: %s", e.Row, strings.Join(e.Messages, "; "))
}

// UpsertConflictError — целевое хранилище отклонило запись; записывается
// в историю, обработка продолжается.
type UpsertConflictError struct {
	Row int
	Err error
}

func (e *UpsertConflictError) Error() string {
	return fmt.Sprintf("upsert failed at row %d: %v", e.Row, e.Err)
}

func (e *UpsertConflictError) Unwrap() error {
	return e.Err
}
