// Package pipeline оркестрирует один запуск пайплайна от начала до конца:
// соединение, перенос файла, разбор, преобразование, валидация, запись
// в целевое хранилище и фиксация истории запуска.
package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/motorlane/feedbridge/pkg/audit"
	"github.com/motorlane/feedbridge/pkg/connector"
	"github.com/motorlane/feedbridge/pkg/inventory"
	"github.com/motorlane/feedbridge/pkg/schedule"
	"github.com/motorlane/feedbridge/pkg/store"
	"github.com/motorlane/feedbridge/pkg/vault"
)

// ConnectFunc создает коннектор для одного запуска. Подменяется в тестах.
type ConnectFunc func(ctx context.Context, cfg connector.Config) (connector.Connector, error)

// Engine выполняет запуски пайплайнов. Один Engine обслуживает много
// конфигураций, но на каждую конфигурацию допускает максимум один
// одновременный запуск.
type Engine struct {
	store      *store.Store
	vault      *vault.Vault
	target     *inventory.Store
	auditor    audit.Logger
	log        *slog.Logger
	connect    ConnectFunc
	tempDir    string
	errorLimit int

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// Options — зависимости и настройки Engine.
type Options struct {
	// Store — хранилище конфигураций и истории запусков. Обязательно.
	Store *store.Store

	// Vault расшифровывает пароли подключений. Обязательно.
	Vault *vault.Vault

	// Inventory — целевое хранилище инвентаря. Обязательно.
	Inventory *inventory.Store

	// Audit — журнал операций запуска (пустой = NullLogger).
	Audit audit.Logger

	// Logger — сервисный лог (пустой = slog.Default()).
	Logger *slog.Logger

	// Connect — фабрика коннекторов (пустая = connector.New).
	Connect ConnectFunc

	// TempDir — каталог локальных временных файлов (пустой = os.TempDir()).
	TempDir string

	// SummaryErrorLimit — сколько первых построчных ошибок попадает
	// в сводку результата (по умолчанию 10).
	SummaryErrorLimit int
}

// NewEngine создает Engine.
func NewEngine(opts Options) (*Engine, error) {
	if opts.Store == nil || opts.Vault == nil || opts.Inventory == nil {
		return nil, fmt.Errorf("store, vault and inventory are required")
	}
	e := &Engine{
		store:      opts.Store,
		vault:      opts.Vault,
		target:     opts.Inventory,
		auditor:    opts.Audit,
		log:        opts.Logger,
		connect:    opts.Connect,
		tempDir:    opts.TempDir,
		errorLimit: opts.SummaryErrorLimit,
		locks:      make(map[string]*sync.Mutex),
	}
	if e.auditor == nil {
		e.auditor = audit.NewNullLogger()
	}
	if e.log == nil {
		e.log = slog.Default()
	}
	if e.connect == nil {
		e.connect = connector.New
	}
	if e.tempDir == "" {
		e.tempDir = os.TempDir()
	}
	if e.errorLimit <= 0 {
		e.errorLimit = 10
	}
	return e, nil
}

// Result — структурированная сводка одного запуска. Возвращается и при
// частичных отказах: уже обработанные записи остаются видимыми.
type Result struct {
	ExecutionID string
	Status      string
	FileName    string
	FileSize    int64
	Checksum    string

	RecordsProcessed int
	RecordsInserted  int
	RecordsUpdated   int
	RecordsSkipped   int
	RecordsFailed    int

	ErrorMessage string
	Errors       []store.ExecutionError // первые N построчных ошибок
}

// Run выполняет запуск конфигурации. Ошибки уровня запуска возвращаются
// внутри Result со статусом failed; ошибка Go означает, что запуск
// не стартовал (конфигурация не найдена, уже выполняется и т.п.).
func (e *Engine) Run(ctx context.Context, configID string) (*Result, error) {
	return e.RunRows(ctx, configID, nil)
}

// RunRows выполняет запуск импорта, ограниченный явным набором номеров
// строк файла (нумерация с 1). Пустой набор означает все строки.
func (e *Engine) RunRows(ctx context.Context, configID string, rows []int) (*Result, error) {
	cfg, err := e.store.GetConfig(ctx, configID)
	if err != nil {
		return nil, err
	}
	if cfg.Direction != store.DirectionImport && len(rows) > 0 {
		return nil, &ConfigurationError{Msg: "row subset is only valid for import configs"}
	}

	unlock, ok := e.tryLock(cfg.ID)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrRunInProgress, cfg.ID)
	}
	defer unlock()

	// Фиксация расписания в момент фактического старта.
	now := time.Now()
	sched := cfg.Schedule
	sched.LastRun = &now
	if next, hasNext := schedule.NextRun(sched, now); hasNext {
		sched.NextRun = &next
	} else {
		sched.NextRun = nil
	}
	if err := e.store.UpdateSchedule(ctx, cfg.ID, sched); err != nil {
		return nil, err
	}

	rec, err := e.store.BeginExecution(ctx, cfg.ID)
	if err != nil {
		return nil, err
	}

	e.log.Info("run started",
		"config", cfg.ID, "dealer", cfg.DealerID,
		"direction", cfg.Direction, "execution", rec.ID)

	switch cfg.Direction {
	case store.DirectionExport:
		return e.runExport(ctx, cfg, rec)
	default:
		return e.runImport(ctx, cfg, rec, rows)
	}
}

// tryLock захватывает мьютекс конфигурации без ожидания.
func (e *Engine) tryLock(configID string) (func(), bool) {
	e.mu.Lock()
	lock, ok := e.locks[configID]
	if !ok {
		lock = &sync.Mutex{}
		e.locks[configID] = lock
	}
	e.mu.Unlock()

	if !lock.TryLock() {
		return nil, false
	}
	return lock.Unlock, true
}

// openConnector расшифровывает пароль и создает коннектор запуска.
// Расшифрованный пароль живет только в памяти до завершения аутентификации
// и не попадает ни в логи, ни в историю.
func (e *Engine) openConnector(ctx context.Context, cfg *store.PipelineConfig) (connector.Connector, error) {
	password := ""
	if cfg.Connection.Password != "" {
		var err error
		password, err = e.vault.Decrypt(cfg.Connection.Password)
		if err != nil {
			return nil, fmt.Errorf("decrypt connection password: %w", err)
		}
	}
	return e.connect(ctx, connector.Config{
		Type:            cfg.Connection.Type,
		Host:            cfg.Connection.Host,
		Port:            cfg.Connection.Port,
		Username:        cfg.Connection.Username,
		Password:        password,
		RemoteDirectory: cfg.Connection.RemoteDirectory,
	})
}

// fail финализирует запись запуска как failed и строит сводку.
// Счетчики частично обработанных записей сохраняются в истории,
// но статус failed означает, что им нельзя доверять как итогу файла.
func (e *Engine) fail(ctx context.Context, cfg *store.PipelineConfig, rec *store.ExecutionRecord, runErr error) *Result {
	// Отмененный запуск обязан финализироваться, а не остаться running:
	// запись истории идет вне отмены исходного контекста.
	ctx = context.WithoutCancel(ctx)

	rec.Status = store.StatusFailed
	rec.ErrorMessage = runErr.Error()
	if err := e.store.FinalizeExecution(ctx, rec); err != nil {
		e.log.Error("finalize failed run", "execution", rec.ID, "err", err)
	}

	e.auditor.Log(ctx, audit.NewEntry(audit.OpRun, audit.StatusFailure).
		WithDealer(cfg.DealerID).
		WithConfig(cfg.ID).
		WithExecution(rec.ID).
		WithResource(rec.FileName).
		WithError(runErr))
	e.log.Error("run failed", "config", cfg.ID, "execution", rec.ID, "err", runErr)

	return e.summarize(ctx, rec)
}

// complete финализирует успешный запуск и строит сводку.
func (e *Engine) complete(ctx context.Context, cfg *store.PipelineConfig, rec *store.ExecutionRecord) *Result {
	rec.Status = store.StatusCompleted
	if err := e.store.FinalizeExecution(ctx, rec); err != nil {
		e.log.Error("finalize run", "execution", rec.ID, "err", err)
	}

	status := audit.StatusSuccess
	if rec.RecordsFailed > 0 {
		status = audit.StatusPartial
	}
	e.auditor.Log(ctx, audit.NewEntry(audit.OpRun, status).
		WithDealer(cfg.DealerID).
		WithConfig(cfg.ID).
		WithExecution(rec.ID).
		WithResource(rec.FileName).
		WithRecordsAffected(int64(rec.RecordsProcessed)))
	e.log.Info("run completed",
		"config", cfg.ID, "execution", rec.ID,
		"processed", rec.RecordsProcessed, "inserted", rec.RecordsInserted,
		"updated", rec.RecordsUpdated, "skipped", rec.RecordsSkipped,
		"failed", rec.RecordsFailed)

	return e.summarize(ctx, rec)
}

// summarize собирает сводку запуска с первыми построчными ошибками.
func (e *Engine) summarize(ctx context.Context, rec *store.ExecutionRecord) *Result {
	res := &Result{
		ExecutionID:      rec.ID,
		Status:           rec.Status,
		FileName:         rec.FileName,
		FileSize:         rec.FileSize,
		Checksum:         rec.Checksum,
		RecordsProcessed: rec.RecordsProcessed,
		RecordsInserted:  rec.RecordsInserted,
		RecordsUpdated:   rec.RecordsUpdated,
		RecordsSkipped:   rec.RecordsSkipped,
		RecordsFailed:    rec.RecordsFailed,
		ErrorMessage:     rec.ErrorMessage,
	}
	if rec.RecordsFailed > 0 {
		errs, err := e.store.ExecutionErrors(ctx, rec.ID, e.errorLimit)
		if err != nil {
			e.log.Error("load execution errors", "execution", rec.ID, "err", err)
		} else {
			res.Errors = errs
		}
	}
	return res
}

// recordRowError дописывает построчную ошибку в историю запуска.
func (e *Engine) recordRowError(ctx context.Context, rec *store.ExecutionRecord, rowErr error, row int, rawData string) {
	e.log.Warn("row failed", "execution", rec.ID, "row", row, "err", rowErr)
	err := e.store.AppendExecutionError(ctx, store.ExecutionError{
		ExecutionID:  rec.ID,
		RowNumber:    row,
		ErrorMessage: rowErr.Error(),
		RawData:      rawData,
	})
	if err != nil {
		e.log.Error("append execution error", "execution", rec.ID, "err", err)
	}
}
