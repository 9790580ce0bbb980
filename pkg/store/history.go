package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Статусы записи запуска. Переходы только running -> completed|failed;
// терминальная запись неизменяема.
const (
	StatusRunning   = "running"
	StatusCompleted = "completed"
	StatusFailed    = "failed"
)

// ErrTerminal возвращается при попытке изменить уже завершенную запись
// запуска или дописать к ней ошибку.
var ErrTerminal = errors.New("store: execution record already finalized")

// ExecutionRecord — история одного запуска пайплайна.
// ConfigID пуст для ad-hoc запусков предпросмотра.
type ExecutionRecord struct {
	ID       string
	ConfigID string
	Status   string

	FileName string
	FileSize int64
	Checksum string

	RecordsProcessed int
	RecordsInserted  int
	RecordsUpdated   int
	RecordsSkipped   int
	RecordsFailed    int

	StartedAt    time.Time
	CompletedAt  *time.Time
	ErrorMessage string
}

// ExecutionError — одна построчная ошибка запуска. Записи только
// дописываются, пока запуск в статусе running.
type ExecutionError struct {
	ExecutionID  string
	RowNumber    int
	ErrorMessage string
	RawData      string // сериализованная исходная запись для диагностики
}

// BeginExecution создает запись запуска в статусе running.
func (s *Store) BeginExecution(ctx context.Context, configID string) (*ExecutionRecord, error) {
	rec := &ExecutionRecord{
		ID:        uuid.NewString(),
		ConfigID:  configID,
		Status:    StatusRunning,
		StartedAt: time.Now().UTC(),
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO execution_records (id, config_id, status, started_at) VALUES (?, ?, ?, ?)`,
		rec.ID, nullString(rec.ConfigID), rec.Status, rec.StartedAt.Format(timeLayout))
	if err != nil {
		return nil, fmt.Errorf("begin execution: %w", err)
	}
	return rec, nil
}

// FinalizeExecution переводит запись в терминальный статус и фиксирует
// итоговые счетчики. Повторная финализация возвращает ErrTerminal.
func (s *Store) FinalizeExecution(ctx context.Context, rec *ExecutionRecord) error {
	if rec.Status != StatusCompleted && rec.Status != StatusFailed {
		return fmt.Errorf("final status must be '%s' or '%s', got '%s'",
			StatusCompleted, StatusFailed, rec.Status)
	}
	now := time.Now().UTC()
	rec.CompletedAt = &now

	res, err := s.db.ExecContext(ctx, `
		UPDATE execution_records SET
			status = ?, file_name = ?, file_size = ?, checksum = ?,
			records_processed = ?, records_inserted = ?, records_updated = ?,
			records_skipped = ?, records_failed = ?,
			completed_at = ?, error_message = ?
		WHERE id = ? AND status = ?`,
		rec.Status, rec.FileName, rec.FileSize, rec.Checksum,
		rec.RecordsProcessed, rec.RecordsInserted, rec.RecordsUpdated,
		rec.RecordsSkipped, rec.RecordsFailed,
		now.Format(timeLayout), rec.ErrorMessage,
		rec.ID, StatusRunning)
	if err != nil {
		return fmt.Errorf("finalize execution %s: %w", rec.ID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("%w: %s", ErrTerminal, rec.ID)
	}
	return nil
}

// AppendExecutionError дописывает построчную ошибку к запущенному запуску.
func (s *Store) AppendExecutionError(ctx context.Context, e ExecutionError) error {
	var status string
	err := s.db.QueryRowContext(ctx,
		`SELECT status FROM execution_records WHERE id = ?`, e.ExecutionID).Scan(&status)
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("%w: execution %s", ErrNotFound, e.ExecutionID)
	}
	if err != nil {
		return fmt.Errorf("check execution status: %w", err)
	}
	if status != StatusRunning {
		return fmt.Errorf("%w: %s", ErrTerminal, e.ExecutionID)
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO execution_errors (execution_id, row_number, error_message, raw_data)
		 VALUES (?, ?, ?, ?)`,
		e.ExecutionID, e.RowNumber, e.ErrorMessage, e.RawData)
	if err != nil {
		return fmt.Errorf("append execution error: %w", err)
	}
	return nil
}

// GetExecution загружает запись запуска по идентификатору.
func (s *Store) GetExecution(ctx context.Context, id string) (*ExecutionRecord, error) {
	row := s.db.QueryRowContext(ctx, selectExecution+` WHERE id = ?`, id)
	rec, err := scanExecution(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: execution %s", ErrNotFound, id)
	}
	return rec, err
}

// History возвращает страницу истории запусков конфигурации,
// новые записи первыми. Пустой configID — история всех конфигураций.
func (s *Store) History(ctx context.Context, configID string, limit, offset int) ([]*ExecutionRecord, error) {
	if limit <= 0 {
		limit = 50
	}
	query := selectExecution + ` ORDER BY started_at DESC LIMIT ? OFFSET ?`
	args := []any{limit, offset}
	if configID != "" {
		query = selectExecution + ` WHERE config_id = ? ORDER BY started_at DESC LIMIT ? OFFSET ?`
		args = []any{configID, limit, offset}
	}
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query history: %w", err)
	}
	defer rows.Close()

	var recs []*ExecutionRecord
	for rows.Next() {
		rec, err := scanExecution(rows)
		if err != nil {
			return nil, err
		}
		recs = append(recs, rec)
	}
	return recs, rows.Err()
}

// ExecutionErrors возвращает первые limit построчных ошибок запуска
// в порядке добавления.
func (s *Store) ExecutionErrors(ctx context.Context, executionID string, limit int) ([]ExecutionError, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT execution_id, row_number, error_message, raw_data
		 FROM execution_errors WHERE execution_id = ? ORDER BY id LIMIT ?`,
		executionID, limit)
	if err != nil {
		return nil, fmt.Errorf("query execution errors: %w", err)
	}
	defer rows.Close()

	var errs []ExecutionError
	for rows.Next() {
		var e ExecutionError
		if err := rows.Scan(&e.ExecutionID, &e.RowNumber, &e.ErrorMessage, &e.RawData); err != nil {
			return nil, fmt.Errorf("scan execution error: %w", err)
		}
		errs = append(errs, e)
	}
	return errs, rows.Err()
}

const selectExecution = `
	SELECT id, config_id, status, file_name, file_size, checksum,
	       records_processed, records_inserted, records_updated,
	       records_skipped, records_failed,
	       started_at, completed_at, error_message
	FROM execution_records`

func scanExecution(row rowScanner) (*ExecutionRecord, error) {
	var (
		rec         ExecutionRecord
		configID    sql.NullString
		startedAt   string
		completedAt sql.NullString
	)
	err := row.Scan(&rec.ID, &configID, &rec.Status, &rec.FileName, &rec.FileSize,
		&rec.Checksum, &rec.RecordsProcessed, &rec.RecordsInserted, &rec.RecordsUpdated,
		&rec.RecordsSkipped, &rec.RecordsFailed, &startedAt, &completedAt, &rec.ErrorMessage)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("scan execution record: %w", err)
	}
	rec.ConfigID = configID.String
	if rec.StartedAt, err = time.Parse(timeLayout, startedAt); err != nil {
		return nil, fmt.Errorf("parse started_at: %w", err)
	}
	if completedAt.Valid {
		t, err := time.Parse(timeLayout, completedAt.String)
		if err != nil {
			return nil, fmt.Errorf("parse completed_at: %w", err)
		}
		rec.CompletedAt = &t
	}
	return &rec, nil
}

func nullString(s string) any {
	if s == "" {
		return nil
	}
	return s
}
