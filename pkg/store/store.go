// Package store реализует персистентность конфигураций пайплайнов и
// истории запусков поверх SQLite. Пароли подключений хранятся только
// как шифротекст vault, плоский текст в базу не попадает.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/motorlane/feedbridge/pkg/codec"
	"github.com/motorlane/feedbridge/pkg/inventory"
	"github.com/motorlane/feedbridge/pkg/mapping"
	"github.com/motorlane/feedbridge/pkg/schedule"
)

// Направления пайплайна.
const (
	DirectionImport = "import"
	DirectionExport = "export"
)

// timeLayout — формат меток времени в базе. Фиксированная ширина
// наносекунд сохраняет хронологию при лексикографической сортировке TEXT.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

// ErrNotFound возвращается, когда запрошенная запись отсутствует.
var ErrNotFound = errors.New("store: not found")

// ErrNameTaken возвращается при попытке сохранить конфигурацию с именем,
// уже занятым другой конфигурацией того же дилера.
var ErrNameTaken = errors.New("store: config name already taken for dealer")

// ConnectionSettings — параметры подключения конфигурации.
// Password содержит шифротекст vault, не плоский пароль.
type ConnectionSettings struct {
	Type            string `json:"type"`
	Host            string `json:"host"`
	Port            int    `json:"port"`
	Username        string `json:"username"`
	Password        string `json:"password"`
	RemoteDirectory string `json:"remoteDirectory"`
	FilePattern     string `json:"filePattern"` // только для импорта
}

// ProcessingPolicy — политика обработки записей одного пайплайна.
type ProcessingPolicy struct {
	DuplicateHandling     string `json:"duplicateHandling"`
	BatchSize             int    `json:"batchSize"`
	MaxErrors             int    `json:"maxErrors"` // 0 = без ограничения
	ValidateData          bool   `json:"validateData"`
	ArchiveProcessedFiles bool   `json:"archiveProcessedFiles"`
	ArchiveDirectory      string `json:"archiveDirectory"`
}

// SetDefaults устанавливает значения по умолчанию для незаполненных полей.
func (p *ProcessingPolicy) SetDefaults() {
	if p.DuplicateHandling == "" {
		p.DuplicateHandling = inventory.DupUpsert
	}
	if p.BatchSize <= 0 {
		p.BatchSize = 100
	}
}

// Validate проверяет политику обработки.
func (p *ProcessingPolicy) Validate() error {
	switch p.DuplicateHandling {
	case inventory.DupSkip, inventory.DupUpdate, inventory.DupUpsert:
	default:
		return fmt.Errorf("unsupported duplicateHandling '%s', must be one of: %s, %s, %s",
			p.DuplicateHandling, inventory.DupSkip, inventory.DupUpdate, inventory.DupUpsert)
	}
	if p.MaxErrors < 0 {
		return fmt.Errorf("maxErrors must be >= 0, got %d", p.MaxErrors)
	}
	if p.ArchiveProcessedFiles && p.ArchiveDirectory == "" {
		return fmt.Errorf("archiveDirectory is required when archiveProcessedFiles is set")
	}
	return nil
}

// PipelineConfig — агрегат одной конфигурации импорта или экспорта.
// Конфигурация не сохраняется без четырех обязательных частей:
// Connection, Schedule, Format и Policy; Mappings — минимум одна запись.
type PipelineConfig struct {
	ID        string
	DealerID  string
	Name      string // уникально в пределах дилера
	Direction string
	IsActive  bool

	Connection ConnectionSettings
	Schedule   schedule.Settings
	Format     codec.Settings
	Policy     ProcessingPolicy
	Mappings   []mapping.FieldMapping
	Filters    []inventory.Filter // только для экспорта

	CreatedAt time.Time
	UpdatedAt time.Time
}

// Validate проверяет агрегат целиком перед сохранением.
func (c *PipelineConfig) Validate() error {
	if c.DealerID == "" {
		return fmt.Errorf("dealerId is required")
	}
	if c.Name == "" {
		return fmt.Errorf("config name is required")
	}
	if c.Direction != DirectionImport && c.Direction != DirectionExport {
		return fmt.Errorf("unsupported direction '%s', must be one of: import, export", c.Direction)
	}
	if c.Connection.Type == "" || c.Connection.Host == "" {
		return fmt.Errorf("connection type and host are required")
	}
	if err := c.Schedule.Validate(); err != nil {
		return fmt.Errorf("schedule: %w", err)
	}
	c.Format.SetDefaults()
	switch c.Format.FileType {
	case codec.TypeCSV, codec.TypeJSON, codec.TypeXML, codec.TypeXLSX:
	default:
		return fmt.Errorf("format: unsupported file type '%s'", c.Format.FileType)
	}
	c.Policy.SetDefaults()
	if err := c.Policy.Validate(); err != nil {
		return fmt.Errorf("policy: %w", err)
	}
	if len(c.Mappings) == 0 {
		return fmt.Errorf("at least one field mapping is required")
	}
	orders := make(map[int]string, len(c.Mappings))
	for i := range c.Mappings {
		m := &c.Mappings[i]
		if err := m.Validate(); err != nil {
			return fmt.Errorf("mapping %d: %w", i, err)
		}
		if prev, ok := orders[m.Order]; ok {
			return fmt.Errorf("mapping order %d used by both '%s' and '%s'", m.Order, prev, m.TargetField)
		}
		orders[m.Order] = m.TargetField
	}
	if c.Direction == DirectionImport && len(c.Filters) > 0 {
		return fmt.Errorf("filters are only allowed for export configs")
	}
	for i := range c.Filters {
		if err := c.Filters[i].Validate(); err != nil {
			return fmt.Errorf("filter %d: %w", i, err)
		}
	}
	return nil
}

// Store — хранилище конфигураций и истории запусков.
type Store struct {
	db *sql.DB
}

// Open открывает базу SQLite по пути и применяет схему.
// Путь ":memory:" дает базу в памяти (для тестов).
func Open(ctx context.Context, path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open config db: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping config db: %w", err)
	}
	s := New(db)
	if err := s.Migrate(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// New оборачивает готовое соединение без применения схемы.
func New(db *sql.DB) *Store {
	return &Store{db: db}
}

// Close закрывает соединение с базой.
func (s *Store) Close() error {
	return s.db.Close()
}

// DB возвращает нижележащее соединение.
func (s *Store) DB() *sql.DB {
	return s.db
}

// Migrate создает таблицы хранилища, если их еще нет.
func (s *Store) Migrate(ctx context.Context) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS pipeline_configs (
			id              TEXT PRIMARY KEY,
			dealer_id       TEXT NOT NULL,
			name            TEXT NOT NULL,
			direction       TEXT NOT NULL,
			is_active       INTEGER NOT NULL DEFAULT 1,
			connection_json TEXT NOT NULL,
			schedule_json   TEXT NOT NULL,
			format_json     TEXT NOT NULL,
			policy_json     TEXT NOT NULL,
			mappings_json   TEXT NOT NULL,
			filters_json    TEXT NOT NULL DEFAULT '[]',
			created_at      TEXT NOT NULL,
			updated_at      TEXT NOT NULL,
			UNIQUE (dealer_id, name)
		)`,
		`CREATE TABLE IF NOT EXISTS execution_records (
			id                TEXT PRIMARY KEY,
			config_id         TEXT,
			status            TEXT NOT NULL,
			file_name         TEXT NOT NULL DEFAULT '',
			file_size         INTEGER NOT NULL DEFAULT 0,
			checksum          TEXT NOT NULL DEFAULT '',
			records_processed INTEGER NOT NULL DEFAULT 0,
			records_inserted  INTEGER NOT NULL DEFAULT 0,
			records_updated   INTEGER NOT NULL DEFAULT 0,
			records_skipped   INTEGER NOT NULL DEFAULT 0,
			records_failed    INTEGER NOT NULL DEFAULT 0,
			started_at        TEXT NOT NULL,
			completed_at      TEXT,
			error_message     TEXT NOT NULL DEFAULT ''
		)`,
		`CREATE INDEX IF NOT EXISTS idx_execution_records_config
			ON execution_records (config_id, started_at)`,
		`CREATE TABLE IF NOT EXISTS execution_errors (
			id            INTEGER PRIMARY KEY AUTOINCREMENT,
			execution_id  TEXT NOT NULL,
			row_number    INTEGER NOT NULL,
			error_message TEXT NOT NULL,
			raw_data      TEXT NOT NULL DEFAULT ''
		)`,
		`CREATE INDEX IF NOT EXISTS idx_execution_errors_execution
			ON execution_errors (execution_id)`,
	}
	for _, stmt := range stmts {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("migrate config db: %w", err)
		}
	}
	return nil
}

// SaveConfig сохраняет конфигурацию: вставляет новую (пустой ID получает
// uuid) или перезаписывает существующую по ID.
func (s *Store) SaveConfig(ctx context.Context, cfg *PipelineConfig) error {
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	if cfg.ID == "" {
		cfg.ID = uuid.NewString()
		cfg.CreatedAt = time.Now().UTC()
	}
	cfg.UpdatedAt = time.Now().UTC()
	if cfg.CreatedAt.IsZero() {
		cfg.CreatedAt = cfg.UpdatedAt
	}

	// Проверка уникальности имени до записи, чтобы вернуть типизированную
	// ошибку вместо текста ограничения из драйвера.
	var takenBy string
	err := s.db.QueryRowContext(ctx,
		`SELECT id FROM pipeline_configs WHERE dealer_id = ? AND name = ? AND id <> ?`,
		cfg.DealerID, cfg.Name, cfg.ID).Scan(&takenBy)
	switch {
	case err == nil:
		return fmt.Errorf("%w: '%s'", ErrNameTaken, cfg.Name)
	case !errors.Is(err, sql.ErrNoRows):
		return fmt.Errorf("check config name: %w", err)
	}

	conn, err := json.Marshal(cfg.Connection)
	if err != nil {
		return fmt.Errorf("marshal connection: %w", err)
	}
	sched, err := json.Marshal(cfg.Schedule)
	if err != nil {
		return fmt.Errorf("marshal schedule: %w", err)
	}
	format, err := json.Marshal(cfg.Format)
	if err != nil {
		return fmt.Errorf("marshal format: %w", err)
	}
	policy, err := json.Marshal(cfg.Policy)
	if err != nil {
		return fmt.Errorf("marshal policy: %w", err)
	}
	mappings, err := json.Marshal(cfg.Mappings)
	if err != nil {
		return fmt.Errorf("marshal mappings: %w", err)
	}
	filters, err := json.Marshal(cfg.Filters)
	if err != nil {
		return fmt.Errorf("marshal filters: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO pipeline_configs
			(id, dealer_id, name, direction, is_active,
			 connection_json, schedule_json, format_json, policy_json,
			 mappings_json, filters_json, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET
			dealer_id       = excluded.dealer_id,
			name            = excluded.name,
			direction       = excluded.direction,
			is_active       = excluded.is_active,
			connection_json = excluded.connection_json,
			schedule_json   = excluded.schedule_json,
			format_json     = excluded.format_json,
			policy_json     = excluded.policy_json,
			mappings_json   = excluded.mappings_json,
			filters_json    = excluded.filters_json,
			updated_at      = excluded.updated_at`,
		cfg.ID, cfg.DealerID, cfg.Name, cfg.Direction, boolInt(cfg.IsActive),
		string(conn), string(sched), string(format), string(policy),
		string(mappings), string(filters),
		cfg.CreatedAt.Format(timeLayout), cfg.UpdatedAt.Format(timeLayout))
	if err != nil {
		return fmt.Errorf("save config %s: %w", cfg.ID, err)
	}
	return nil
}

// GetConfig загружает конфигурацию по идентификатору.
func (s *Store) GetConfig(ctx context.Context, id string) (*PipelineConfig, error) {
	row := s.db.QueryRowContext(ctx, selectConfig+` WHERE id = ?`, id)
	return scanConfig(row)
}

// FindConfig загружает конфигурацию дилера по имени.
func (s *Store) FindConfig(ctx context.Context, dealerID, name string) (*PipelineConfig, error) {
	row := s.db.QueryRowContext(ctx, selectConfig+` WHERE dealer_id = ? AND name = ?`, dealerID, name)
	return scanConfig(row)
}

// ListConfigs возвращает конфигурации дилера; пустой dealerID — все.
func (s *Store) ListConfigs(ctx context.Context, dealerID string) ([]*PipelineConfig, error) {
	query := selectConfig + ` ORDER BY dealer_id, name`
	args := []any{}
	if dealerID != "" {
		query = selectConfig + ` WHERE dealer_id = ? ORDER BY name`
		args = append(args, dealerID)
	}
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list configs: %w", err)
	}
	defer rows.Close()

	var configs []*PipelineConfig
	for rows.Next() {
		cfg, err := scanConfig(rows)
		if err != nil {
			return nil, err
		}
		configs = append(configs, cfg)
	}
	return configs, rows.Err()
}

// DeleteConfig удаляет конфигурацию. История запусков сохраняется:
// записи execution_records ссылаются на удаленный config_id как на
// исторический факт.
func (s *Store) DeleteConfig(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM pipeline_configs WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete config %s: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("%w: config %s", ErrNotFound, id)
	}
	return nil
}

// UpdateSchedule перезаписывает только расписание конфигурации.
// Используется планировщиком для фиксации lastRun/nextRun при старте запуска.
func (s *Store) UpdateSchedule(ctx context.Context, id string, sched schedule.Settings) error {
	if err := sched.Validate(); err != nil {
		return fmt.Errorf("invalid schedule: %w", err)
	}
	data, err := json.Marshal(sched)
	if err != nil {
		return fmt.Errorf("marshal schedule: %w", err)
	}
	res, err := s.db.ExecContext(ctx,
		`UPDATE pipeline_configs SET schedule_json = ?, updated_at = ? WHERE id = ?`,
		string(data), time.Now().UTC().Format(timeLayout), id)
	if err != nil {
		return fmt.Errorf("update schedule for %s: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("%w: config %s", ErrNotFound, id)
	}
	return nil
}

const selectConfig = `
	SELECT id, dealer_id, name, direction, is_active,
	       connection_json, schedule_json, format_json, policy_json,
	       mappings_json, filters_json, created_at, updated_at
	FROM pipeline_configs`

// rowScanner покрывает *sql.Row и *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanConfig(row rowScanner) (*PipelineConfig, error) {
	var (
		cfg                  PipelineConfig
		active               int
		conn, sched, format  string
		policy, maps, filt   string
		createdAt, updatedAt string
	)
	err := row.Scan(&cfg.ID, &cfg.DealerID, &cfg.Name, &cfg.Direction, &active,
		&conn, &sched, &format, &policy, &maps, &filt, &createdAt, &updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: config", ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("scan config: %w", err)
	}
	cfg.IsActive = active != 0
	if err := json.Unmarshal([]byte(conn), &cfg.Connection); err != nil {
		return nil, fmt.Errorf("unmarshal connection: %w", err)
	}
	if err := json.Unmarshal([]byte(sched), &cfg.Schedule); err != nil {
		return nil, fmt.Errorf("unmarshal schedule: %w", err)
	}
	if err := json.Unmarshal([]byte(format), &cfg.Format); err != nil {
		return nil, fmt.Errorf("unmarshal format: %w", err)
	}
	if err := json.Unmarshal([]byte(policy), &cfg.Policy); err != nil {
		return nil, fmt.Errorf("unmarshal policy: %w", err)
	}
	if err := json.Unmarshal([]byte(maps), &cfg.Mappings); err != nil {
		return nil, fmt.Errorf("unmarshal mappings: %w", err)
	}
	if err := json.Unmarshal([]byte(filt), &cfg.Filters); err != nil {
		return nil, fmt.Errorf("unmarshal filters: %w", err)
	}
	if cfg.CreatedAt, err = time.Parse(timeLayout, createdAt); err != nil {
		return nil, fmt.Errorf("parse created_at: %w", err)
	}
	if cfg.UpdatedAt, err = time.Parse(timeLayout, updatedAt); err != nil {
		return nil, fmt.Errorf("parse updated_at: %w", err)
	}
	return &cfg, nil
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
