package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/motorlane/feedbridge/pkg/pipeline"
	"github.com/motorlane/feedbridge/pkg/schedule"
	"github.com/motorlane/feedbridge/pkg/store"
)

// loadPipelineConfig читает конфигурацию пайплайна из JSON-файла.
// Поле password в файле содержит плоский пароль; в базу он попадает
// только после шифрования vault.
func loadPipelineConfig(path string) (*store.PipelineConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read %q: %w", path, err)
	}
	var cfg store.PipelineConfig
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse %q: %w", path, err)
	}
	return &cfg, nil
}

// cmdValidate проверяет файл конфигурации без сохранения.
func cmdValidate(path string) error {
	cfg, err := loadPipelineConfig(path)
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("config %q is invalid: %w", path, err)
	}
	fmt.Printf("✓ %s: valid %s config %q for dealer %s\n",
		path, cfg.Direction, cfg.Name, cfg.DealerID)
	return nil
}

// cmdSave проверяет и сохраняет конфигурацию, шифруя пароль подключения.
func cmdSave(ctx context.Context, app *App, path string) error {
	cfg, err := loadPipelineConfig(path)
	if err != nil {
		return err
	}

	if cfg.Connection.Password != "" {
		v, err := app.Vault()
		if err != nil {
			return err
		}
		cipher, err := v.Encrypt(cfg.Connection.Password)
		if err != nil {
			return fmt.Errorf("encrypt connection password: %w", err)
		}
		cfg.Connection.Password = cipher
	}

	if err := app.store.SaveConfig(ctx, cfg); err != nil {
		return err
	}
	fmt.Printf("✓ Saved config %q (%s) for dealer %s\n  id: %s\n",
		cfg.Name, cfg.Direction, cfg.DealerID, cfg.ID)
	return nil
}

// cmdList печатает конфигурации, опционально по одному дилеру.
func cmdList(ctx context.Context, app *App, dealerID string, asJSON bool) error {
	configs, err := app.store.ListConfigs(ctx, dealerID)
	if err != nil {
		return err
	}
	if asJSON {
		return printJSON(configs)
	}
	if len(configs) == 0 {
		fmt.Println("No configs found")
		return nil
	}
	fmt.Printf("%-36s  %-12s  %-6s  %-6s  %s\n", "ID", "DEALER", "DIR", "ACTIVE", "NAME")
	for _, c := range configs {
		fmt.Printf("%-36s  %-12s  %-6s  %-6t  %s\n", c.ID, c.DealerID, c.Direction, c.IsActive, c.Name)
	}
	return nil
}

// cmdDelete удаляет конфигурацию по идентификатору.
func cmdDelete(ctx context.Context, app *App, configID string) error {
	if err := app.store.DeleteConfig(ctx, configID); err != nil {
		return err
	}
	fmt.Printf("✓ Deleted config %s\n", configID)
	return nil
}

// cmdRun выполняет запуск и печатает сводку. Статус failed возвращается
// как ошибка команды, чтобы feedctl выходил с ненулевым кодом.
func cmdRun(ctx context.Context, app *App, configID, rowsSpec string, asJSON bool) error {
	rows, err := parseRows(rowsSpec)
	if err != nil {
		return err
	}

	engine, err := app.Engine(ctx)
	if err != nil {
		return err
	}

	res, err := engine.RunRows(ctx, configID, rows)
	if err != nil {
		return err
	}

	if asJSON {
		if err := printJSON(res); err != nil {
			return err
		}
	} else {
		printResult(res)
	}

	if res.Status == store.StatusFailed {
		return fmt.Errorf("run %s failed: %s", res.ExecutionID, res.ErrorMessage)
	}
	return nil
}

// cmdPreview выполняет пробный прогон импорта без записи в инвентарь.
func cmdPreview(ctx context.Context, app *App, configID string, limit int, asJSON bool) error {
	engine, err := app.Engine(ctx)
	if err != nil {
		return err
	}

	res, err := engine.Preview(ctx, configID, limit)
	if err != nil {
		return err
	}
	if asJSON {
		return printJSON(res)
	}

	fmt.Printf("File: %s (%d records total, showing %d)\n\n", res.FileName, res.TotalRecords, len(res.Rows))
	for _, row := range res.Rows {
		fmt.Printf("Row %d:\n", row.Row)
		fmt.Printf("  source:      %v\n", row.Source)
		fmt.Printf("  transformed: %v\n", row.Transformed)
		if !row.Validation.IsValid {
			fmt.Printf("  invalid:     %s\n", strings.Join(row.Validation.Errors, "; "))
		}
	}
	return nil
}

// cmdHistory печатает историю запусков, новые сверху.
func cmdHistory(ctx context.Context, app *App, configID string, limit, offset int, asJSON bool) error {
	if configID == "all" {
		configID = ""
	}
	records, err := app.store.History(ctx, configID, limit, offset)
	if err != nil {
		return err
	}
	if asJSON {
		return printJSON(records)
	}
	if len(records) == 0 {
		fmt.Println("No executions found")
		return nil
	}
	fmt.Printf("%-36s  %-9s  %-20s  %8s  %6s  %s\n",
		"EXECUTION", "STATUS", "STARTED", "RECORDS", "FAILED", "FILE")
	for _, r := range records {
		fmt.Printf("%-36s  %-9s  %-20s  %8d  %6d  %s\n",
			r.ID, r.Status, r.StartedAt.Format("2006-01-02 15:04:05"),
			r.RecordsProcessed, r.RecordsFailed, r.FileName)
		if r.ErrorMessage != "" {
			fmt.Printf("    error: %s\n", r.ErrorMessage)
		}
	}
	return nil
}

// cmdErrors печатает построчные ошибки одного запуска.
func cmdErrors(ctx context.Context, app *App, executionID string, limit int, asJSON bool) error {
	errs, err := app.store.ExecutionErrors(ctx, executionID, limit)
	if err != nil {
		return err
	}
	if asJSON {
		return printJSON(errs)
	}
	if len(errs) == 0 {
		fmt.Println("No row errors recorded")
		return nil
	}
	for _, e := range errs {
		fmt.Printf("row %d: %s\n", e.RowNumber, e.ErrorMessage)
		if e.RawData != "" {
			fmt.Printf("  data: %s\n", e.RawData)
		}
	}
	return nil
}

// cmdSchedule печатает ближайший запуск каждой активной конфигурации.
func cmdSchedule(ctx context.Context, app *App, dealerID string, asJSON bool) error {
	configs, err := app.store.ListConfigs(ctx, dealerID)
	if err != nil {
		return err
	}

	type nextRun struct {
		ConfigID string     `json:"configId"`
		DealerID string     `json:"dealerId"`
		Name     string     `json:"name"`
		NextRun  *time.Time `json:"nextRun,omitempty"`
	}

	now := time.Now()
	var upcoming []nextRun
	for _, c := range configs {
		if !c.IsActive || !c.Schedule.IsActive {
			continue
		}
		entry := nextRun{ConfigID: c.ID, DealerID: c.DealerID, Name: c.Name}
		if next, ok := schedule.NextRun(c.Schedule, now); ok {
			entry.NextRun = &next
		}
		upcoming = append(upcoming, entry)
	}

	if asJSON {
		return printJSON(upcoming)
	}
	if len(upcoming) == 0 {
		fmt.Println("No active configs")
		return nil
	}
	for _, e := range upcoming {
		when := "manual only"
		if e.NextRun != nil {
			when = e.NextRun.Format("2006-01-02 15:04")
		}
		fmt.Printf("%-20s  %-12s  %s (%s)\n", when, e.DealerID, e.Name, e.ConfigID)
	}
	return nil
}

// printResult печатает сводку запуска в терминал.
func printResult(res *pipeline.Result) {
	mark := "✓"
	if res.Status == store.StatusFailed {
		mark = "✗"
	}
	fmt.Printf("%s Execution %s: %s\n", mark, res.ExecutionID, res.Status)
	if res.FileName != "" {
		fmt.Printf("  file:      %s (%d bytes, xxh3 %s)\n", res.FileName, res.FileSize, res.Checksum)
	}
	fmt.Printf("  processed: %d (inserted %d, updated %d, skipped %d, failed %d)\n",
		res.RecordsProcessed, res.RecordsInserted, res.RecordsUpdated,
		res.RecordsSkipped, res.RecordsFailed)
	if res.ErrorMessage != "" {
		fmt.Printf("  error:     %s\n", res.ErrorMessage)
	}
	for _, e := range res.Errors {
		fmt.Printf("  row %d: %s\n", e.RowNumber, e.ErrorMessage)
	}
}

// parseRows разбирает список номеров строк вида "2,5,7".
func parseRows(spec string) ([]int, error) {
	if spec == "" {
		return nil, nil
	}
	parts := strings.Split(spec, ",")
	rows := make([]int, 0, len(parts))
	for _, p := range parts {
		n, err := strconv.Atoi(strings.TrimSpace(p))
		if err != nil || n < 1 {
			return nil, fmt.Errorf("invalid row number %q in --rows (must be positive integers)", p)
		}
		rows = append(rows, n)
	}
	return rows, nil
}

func printJSON(v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(data))
	return nil
}
