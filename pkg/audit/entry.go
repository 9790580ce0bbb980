// Package audit пишет журнал операций запусков пайплайна: подключения,
// перенос файлов, построчная обработка, итоги. Журнал дополняет историю
// в store хронологией отдельных действий внутри запуска.
package audit

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Level - уровень детализации журнала.
type Level int

const (
	// LevelMinimal - только операция, статус и ресурс.
	LevelMinimal Level = iota

	// LevelStandard - плюс счетчики и длительности.
	LevelStandard

	// LevelFull - полная информация включая метаданные.
	LevelFull
)

// String - строковое представление уровня.
func (l Level) String() string {
	switch l {
	case LevelMinimal:
		return "minimal"
	case LevelStandard:
		return "standard"
	case LevelFull:
		return "full"
	default:
		return fmt.Sprintf("unknown(%d)", l)
	}
}

// Operation - тип операции запуска.
type Operation string

const (
	OpRun       Operation = "run"
	OpPreview   Operation = "preview"
	OpConnect   Operation = "connect"
	OpDownload  Operation = "download"
	OpUpload    Operation = "upload"
	OpParse     Operation = "parse"
	OpSerialize Operation = "serialize"
	OpTransform Operation = "transform"
	OpValidate  Operation = "validate"
	OpUpsert    Operation = "upsert"
	OpArchive   Operation = "archive"
	OpSchedule  Operation = "schedule"
)

// Status - статус выполнения операции.
type Status string

const (
	StatusSuccess Status = "success"
	StatusFailure Status = "failure"
	StatusPartial Status = "partial" // завершено с построчными ошибками
)

// Entry - запись журнала операций.
type Entry struct {
	// ID - уникальный идентификатор записи
	ID string `json:"id"`

	// Timestamp - время операции
	Timestamp time.Time `json:"timestamp"`

	// Operation - тип операции
	Operation Operation `json:"operation"`

	// Status - статус выполнения
	Status Status `json:"status"`

	// DealerID - дилер, которому принадлежит конфигурация
	DealerID string `json:"dealer_id,omitempty"`

	// ConfigID - конфигурация пайплайна
	ConfigID string `json:"config_id,omitempty"`

	// ExecutionID - запись истории запуска
	ExecutionID string `json:"execution_id,omitempty"`

	// Resource - ресурс операции (файл, каталог, таблица)
	Resource string `json:"resource,omitempty"`

	// RecordsAffected - количество затронутых записей
	RecordsAffected int64 `json:"records_affected,omitempty"`

	// Duration - длительность операции
	Duration time.Duration `json:"duration,omitempty"`

	// ErrorMessage - сообщение об ошибке
	ErrorMessage string `json:"error_message,omitempty"`

	// Metadata - дополнительные метаданные (только для LevelFull)
	Metadata map[string]interface{} `json:"metadata,omitempty"`
}

// NewEntry - создать новую запись журнала.
func NewEntry(operation Operation, status Status) *Entry {
	return &Entry{
		ID:        uuid.NewString(),
		Timestamp: time.Now(),
		Operation: operation,
		Status:    status,
	}
}

// WithDealer - установить дилера.
func (e *Entry) WithDealer(dealerID string) *Entry {
	e.DealerID = dealerID
	return e
}

// WithConfig - установить конфигурацию.
func (e *Entry) WithConfig(configID string) *Entry {
	e.ConfigID = configID
	return e
}

// WithExecution - установить запись запуска.
func (e *Entry) WithExecution(executionID string) *Entry {
	e.ExecutionID = executionID
	return e
}

// WithResource - установить ресурс.
func (e *Entry) WithResource(resource string) *Entry {
	e.Resource = resource
	return e
}

// WithRecordsAffected - установить количество записей.
func (e *Entry) WithRecordsAffected(count int64) *Entry {
	e.RecordsAffected = count
	return e
}

// WithDuration - установить длительность.
func (e *Entry) WithDuration(duration time.Duration) *Entry {
	e.Duration = duration
	return e
}

// WithError - установить ошибку и статус failure.
func (e *Entry) WithError(err error) *Entry {
	if err != nil {
		e.ErrorMessage = err.Error()
		e.Status = StatusFailure
	}
	return e
}

// WithMetadata - добавить метаданные.
func (e *Entry) WithMetadata(key string, value interface{}) *Entry {
	if e.Metadata == nil {
		e.Metadata = make(map[string]interface{})
	}
	e.Metadata[key] = value
	return e
}

// ToJSON - преобразовать в JSON.
func (e *Entry) ToJSON() ([]byte, error) {
	return json.Marshal(e)
}

// String - строковое представление.
func (e *Entry) String() string {
	return fmt.Sprintf("[%s] %s %s config=%s execution=%s (resource=%s, records=%d, duration=%v)",
		e.Timestamp.Format(time.RFC3339),
		e.Operation,
		e.Status,
		e.ConfigID,
		e.ExecutionID,
		e.Resource,
		e.RecordsAffected,
		e.Duration,
	)
}

// Clone - создать копию записи.
func (e *Entry) Clone() *Entry {
	clone := *e

	if e.Metadata != nil {
		clone.Metadata = make(map[string]interface{}, len(e.Metadata))
		for k, v := range e.Metadata {
			clone.Metadata[k] = v
		}
	}

	return &clone
}

// FilterByLevel - фильтрация полей по уровню детализации.
func (e *Entry) FilterByLevel(level Level) *Entry {
	filtered := e.Clone()

	switch level {
	case LevelMinimal:
		filtered.RecordsAffected = 0
		filtered.Duration = 0
		filtered.Metadata = nil

	case LevelStandard:
		filtered.Metadata = nil

	case LevelFull:
		// Вся информация
	}

	return filtered
}
