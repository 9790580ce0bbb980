// Package config загружает YAML-конфигурацию сервиса feedbridge.
// Парольная фраза vault в файл не попадает никогда: она читается
// только из переменной окружения FEEDBRIDGE_VAULT_PASSPHRASE.
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// PassphraseEnv — переменная окружения с парольной фразой vault.
const PassphraseEnv = "FEEDBRIDGE_VAULT_PASSPHRASE"

// Config — корневая конфигурация сервиса.
type Config struct {
	Store     StoreConfig     `yaml:"store"`
	Inventory InventoryConfig `yaml:"inventory"`
	Engine    EngineConfig    `yaml:"engine,omitempty"`
	Audit     AuditConfig     `yaml:"audit,omitempty"`
	Logging   LoggingConfig   `yaml:"logging,omitempty"`
}

// StoreConfig — база конфигураций пайплайнов и истории запусков (SQLite).
type StoreConfig struct {
	Path string `yaml:"path"` // путь к файлу базы
}

// InventoryConfig — целевая база инвентаря.
type InventoryConfig struct {
	Type        string `yaml:"type"`                   // sqlite, postgres, mysql, mssql
	Host        string `yaml:"host,omitempty"`         // для сетевых баз
	Port        int    `yaml:"port,omitempty"`         // порт базы
	Database    string `yaml:"database"`               // имя базы или путь к файлу
	User        string `yaml:"user,omitempty"`         // имя пользователя
	Password    string `yaml:"password,omitempty"`     // пароль
	Schema      string `yaml:"schema,omitempty"`       // схема PostgreSQL (по умолчанию public)
	WindowsAuth bool   `yaml:"windows_auth,omitempty"` // MS SQL, аутентификация Windows
	SSLMode     string `yaml:"sslmode,omitempty"`      // режим SSL PostgreSQL
}

// EngineConfig — параметры движка запусков.
type EngineConfig struct {
	TempDir           string `yaml:"temp_dir,omitempty"`            // каталог временных файлов
	SummaryErrorLimit int    `yaml:"summary_error_limit,omitempty"` // число ошибок в сводке запуска
}

// AuditConfig — параметры журнала аудита.
type AuditConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Level    string `yaml:"level"`                 // minimal, standard, full
	File     string `yaml:"file,omitempty"`        // файл журнала
	MaxSize  int    `yaml:"max_size_mb,omitempty"` // предел размера файла в МБ
	Console  bool   `yaml:"console,omitempty"`     // дублировать в консоль
	Database bool   `yaml:"database,omitempty"`    // писать в базу рядом с историей запусков
}

// LoggingConfig — параметры сервисного логирования.
type LoggingConfig struct {
	Level  string `yaml:"level,omitempty"`  // debug, info, warn, error
	Format string `yaml:"format,omitempty"` // text или json
}

// Load читает и валидирует YAML-конфигурацию.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	cfg.SetDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Save сохраняет конфигурацию в YAML-файл.
func Save(path string, cfg *Config) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

// SetDefaults устанавливает значения по умолчанию для незаполненных полей.
func (c *Config) SetDefaults() {
	if c.Store.Path == "" {
		c.Store.Path = "feedbridge.db"
	}
	if c.Inventory.Type == "" {
		c.Inventory.Type = "sqlite"
	}
	if c.Inventory.Database == "" && c.Inventory.Type == "sqlite" {
		c.Inventory.Database = "inventory.db"
	}
	if c.Engine.SummaryErrorLimit <= 0 {
		c.Engine.SummaryErrorLimit = 10
	}
	if c.Audit.Level == "" {
		c.Audit.Level = "standard"
	}
	if c.Audit.MaxSize <= 0 {
		c.Audit.MaxSize = 100
	}
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Logging.Format == "" {
		c.Logging.Format = "text"
	}
}

// Validate проверяет конфигурацию.
func (c *Config) Validate() error {
	validTypes := map[string]bool{"sqlite": true, "postgres": true, "mysql": true, "mssql": true}
	if !validTypes[c.Inventory.Type] {
		return fmt.Errorf("inventory: unknown type %q (sqlite/postgres/mysql/mssql)", c.Inventory.Type)
	}
	if c.Inventory.Database == "" {
		return fmt.Errorf("inventory: database is required")
	}
	if c.Inventory.Type != "sqlite" && c.Inventory.Host == "" {
		return fmt.Errorf("inventory: host is required for type %q", c.Inventory.Type)
	}
	switch c.Audit.Level {
	case "minimal", "standard", "full":
	default:
		return fmt.Errorf("audit: unknown level %q (minimal/standard/full)", c.Audit.Level)
	}
	switch c.Logging.Format {
	case "text", "json":
	default:
		return fmt.Errorf("logging: unknown format %q (text/json)", c.Logging.Format)
	}
	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("logging: unknown level %q (debug/info/warn/error)", c.Logging.Level)
	}
	return nil
}

// BuildDSN собирает строку подключения к базе инвентаря.
func (c *InventoryConfig) BuildDSN() string {
	switch c.Type {
	case "postgres":
		sslMode := c.SSLMode
		if sslMode == "" {
			sslMode = "disable"
		}
		schema := c.Schema
		if schema == "" {
			schema = "public"
		}
		return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s&search_path=%s",
			c.User, c.Password, c.Host, c.Port, c.Database, sslMode, schema)

	case "mssql":
		if c.WindowsAuth {
			return fmt.Sprintf("sqlserver://%s:%d?database=%s&integrated security=SSPI",
				c.Host, c.Port, c.Database)
		}
		return fmt.Sprintf("sqlserver://%s:%s@%s:%d?database=%s",
			c.User, c.Password, c.Host, c.Port, c.Database)

	case "mysql":
		return fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?parseTime=true",
			c.User, c.Password, c.Host, c.Port, c.Database)

	case "sqlite":
		return c.Database

	default:
		return ""
	}
}

// Passphrase возвращает парольную фразу vault из окружения.
// Отсутствие фразы отказывает громко: без нее нельзя ни сохранить
// секрет подключения, ни расшифровать его при запуске.
func Passphrase() (string, error) {
	pass := os.Getenv(PassphraseEnv)
	if pass == "" {
		return "", fmt.Errorf("%s is not set: the vault passphrase is required to encrypt and decrypt connection passwords", PassphraseEnv)
	}
	return pass, nil
}

// Sample возвращает образец конфигурации для нового развертывания.
func Sample() *Config {
	cfg := &Config{
		Store: StoreConfig{Path: "feedbridge.db"},
		Inventory: InventoryConfig{
			Type:     "postgres",
			Host:     "localhost",
			Port:     5432,
			Database: "dealer_inventory",
			User:     "feedbridge",
			Password: "password",
			SSLMode:  "disable",
		},
		Audit: AuditConfig{
			Enabled: true,
			Level:   "standard",
			File:    "audit.log",
			MaxSize: 100,
		},
	}
	cfg.SetDefaults()
	return cfg
}
