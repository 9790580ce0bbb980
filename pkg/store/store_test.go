package store

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/motorlane/feedbridge/pkg/codec"
	"github.com/motorlane/feedbridge/pkg/inventory"
	"github.com/motorlane/feedbridge/pkg/mapping"
	"github.com/motorlane/feedbridge/pkg/schedule"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(context.Background(), ":memory:")
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func validConfig() *PipelineConfig {
	return &PipelineConfig{
		DealerID:  "dealer-1042",
		Name:      "nightly-import",
		Direction: DirectionImport,
		IsActive:  true,
		Connection: ConnectionSettings{
			Type:            "sftp",
			Host:            "feeds.example.com",
			Port:            22,
			Username:        "dealer1042",
			Password:        "6a6f:deadbeef", // шифротекст vault
			RemoteDirectory: "/outbound",
			FilePattern:     "*.csv",
		},
		Schedule: schedule.Settings{
			Frequency: schedule.FrequencyDaily,
			Hour:      9,
			IsActive:  true,
		},
		Format: codec.Settings{FileType: codec.TypeCSV, HasHeader: true},
		Policy: ProcessingPolicy{ValidateData: true},
		Mappings: []mapping.FieldMapping{
			{SourceField: "VIN", TargetField: "vin", IsRequired: true, Order: 1},
			{SourceField: "Make", TargetField: "make", Order: 2},
		},
	}
}

func TestSaveAndGetConfig(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	cfg := validConfig()
	if err := s.SaveConfig(ctx, cfg); err != nil {
		t.Fatalf("SaveConfig() error = %v", err)
	}
	if cfg.ID == "" {
		t.Fatal("SaveConfig() did not assign an id")
	}

	got, err := s.GetConfig(ctx, cfg.ID)
	if err != nil {
		t.Fatalf("GetConfig() error = %v", err)
	}
	if got.Name != "nightly-import" || got.DealerID != "dealer-1042" {
		t.Errorf("GetConfig() = %s/%s", got.DealerID, got.Name)
	}
	if got.Connection.Password != "6a6f:deadbeef" {
		t.Errorf("password ciphertext not preserved: %q", got.Connection.Password)
	}
	if got.Schedule.Frequency != schedule.FrequencyDaily || got.Schedule.Hour != 9 {
		t.Errorf("schedule not preserved: %+v", got.Schedule)
	}
	if len(got.Mappings) != 2 || got.Mappings[0].TargetField != "vin" {
		t.Errorf("mappings not preserved: %+v", got.Mappings)
	}
	// Значения по умолчанию фиксируются при сохранении.
	if got.Policy.DuplicateHandling != inventory.DupUpsert || got.Policy.BatchSize != 100 {
		t.Errorf("policy defaults not applied: %+v", got.Policy)
	}
}

func TestSaveConfigValidation(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	tests := []struct {
		name    string
		mutate  func(*PipelineConfig)
		wantSub string
	}{
		{"missing name", func(c *PipelineConfig) { c.Name = "" }, "name is required"},
		{"missing dealer", func(c *PipelineConfig) { c.DealerID = "" }, "dealerId is required"},
		{"bad direction", func(c *PipelineConfig) { c.Direction = "sideways" }, "direction"},
		{"missing host", func(c *PipelineConfig) { c.Connection.Host = "" }, "host"},
		{"bad frequency", func(c *PipelineConfig) { c.Schedule.Frequency = "hourly" }, "frequency"},
		{"bad file type", func(c *PipelineConfig) { c.Format.FileType = "parquet" }, "file type"},
		{"no mappings", func(c *PipelineConfig) { c.Mappings = nil }, "field mapping"},
		{"duplicate order", func(c *PipelineConfig) { c.Mappings[1].Order = 1 }, "order 1"},
		{"bad duplicate handling", func(c *PipelineConfig) { c.Policy.DuplicateHandling = "merge" }, "duplicateHandling"},
		{"archive without directory", func(c *PipelineConfig) { c.Policy.ArchiveProcessedFiles = true }, "archiveDirectory"},
		{"filters on import", func(c *PipelineConfig) {
			c.Filters = []inventory.Filter{{Field: "make", Operator: inventory.OpEquals, Value: "Honda"}}
		}, "export"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(cfg)
			err := s.SaveConfig(ctx, cfg)
			if err == nil {
				t.Fatal("SaveConfig() expected error")
			}
			if !strings.Contains(err.Error(), tt.wantSub) {
				t.Errorf("SaveConfig() error = %v, want substring %q", err, tt.wantSub)
			}
		})
	}
}

func TestSaveConfigNameTaken(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	first := validConfig()
	if err := s.SaveConfig(ctx, first); err != nil {
		t.Fatalf("SaveConfig() error = %v", err)
	}

	dup := validConfig()
	if err := s.SaveConfig(ctx, dup); !errors.Is(err, ErrNameTaken) {
		t.Fatalf("SaveConfig(duplicate name) error = %v, want ErrNameTaken", err)
	}

	// То же имя у другого дилера допустимо.
	other := validConfig()
	other.DealerID = "dealer-2077"
	if err := s.SaveConfig(ctx, other); err != nil {
		t.Fatalf("SaveConfig(other dealer) error = %v", err)
	}

	// Повторное сохранение самой конфигурации не конфликтует с собой.
	first.Connection.Port = 2222
	if err := s.SaveConfig(ctx, first); err != nil {
		t.Fatalf("SaveConfig(update) error = %v", err)
	}
	got, err := s.GetConfig(ctx, first.ID)
	if err != nil {
		t.Fatalf("GetConfig() error = %v", err)
	}
	if got.Connection.Port != 2222 {
		t.Errorf("update not persisted, port = %d", got.Connection.Port)
	}
}

func TestListAndDeleteConfig(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	a := validConfig()
	b := validConfig()
	b.Name = "weekly-export"
	b.Direction = DirectionExport
	b.Filters = []inventory.Filter{{Field: "new_used", Operator: inventory.OpEquals, Value: "N"}}
	for _, cfg := range []*PipelineConfig{a, b} {
		if err := s.SaveConfig(ctx, cfg); err != nil {
			t.Fatalf("SaveConfig() error = %v", err)
		}
	}

	configs, err := s.ListConfigs(ctx, "dealer-1042")
	if err != nil {
		t.Fatalf("ListConfigs() error = %v", err)
	}
	if len(configs) != 2 {
		t.Fatalf("ListConfigs() = %d configs, want 2", len(configs))
	}

	if err := s.DeleteConfig(ctx, a.ID); err != nil {
		t.Fatalf("DeleteConfig() error = %v", err)
	}
	if _, err := s.GetConfig(ctx, a.ID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("GetConfig(deleted) error = %v, want ErrNotFound", err)
	}
	if err := s.DeleteConfig(ctx, a.ID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("DeleteConfig(missing) error = %v, want ErrNotFound", err)
	}
}

func TestFindConfig(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	cfg := validConfig()
	if err := s.SaveConfig(ctx, cfg); err != nil {
		t.Fatalf("SaveConfig() error = %v", err)
	}

	got, err := s.FindConfig(ctx, "dealer-1042", "nightly-import")
	if err != nil {
		t.Fatalf("FindConfig() error = %v", err)
	}
	if got.ID != cfg.ID {
		t.Errorf("FindConfig() id = %s, want %s", got.ID, cfg.ID)
	}
	if _, err := s.FindConfig(ctx, "dealer-1042", "missing"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("FindConfig(missing) error = %v, want ErrNotFound", err)
	}
}

func TestUpdateSchedule(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	cfg := validConfig()
	if err := s.SaveConfig(ctx, cfg); err != nil {
		t.Fatalf("SaveConfig() error = %v", err)
	}

	now := time.Date(2026, 1, 15, 9, 0, 0, 0, time.UTC)
	next := now.Add(24 * time.Hour)
	sched := cfg.Schedule
	sched.LastRun = &now
	sched.NextRun = &next
	if err := s.UpdateSchedule(ctx, cfg.ID, sched); err != nil {
		t.Fatalf("UpdateSchedule() error = %v", err)
	}

	got, err := s.GetConfig(ctx, cfg.ID)
	if err != nil {
		t.Fatalf("GetConfig() error = %v", err)
	}
	if got.Schedule.LastRun == nil || !got.Schedule.LastRun.Equal(now) {
		t.Errorf("lastRun = %v, want %v", got.Schedule.LastRun, now)
	}
	if got.Schedule.NextRun == nil || !got.Schedule.NextRun.Equal(next) {
		t.Errorf("nextRun = %v, want %v", got.Schedule.NextRun, next)
	}

	if err := s.UpdateSchedule(ctx, "no-such-id", sched); !errors.Is(err, ErrNotFound) {
		t.Fatalf("UpdateSchedule(missing) error = %v, want ErrNotFound", err)
	}
}

func TestExecutionLifecycle(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	rec, err := s.BeginExecution(ctx, "config-1")
	if err != nil {
		t.Fatalf("BeginExecution() error = %v", err)
	}
	if rec.Status != StatusRunning {
		t.Fatalf("status = %s, want running", rec.Status)
	}

	err = s.AppendExecutionError(ctx, ExecutionError{
		ExecutionID:  rec.ID,
		RowNumber:    3,
		ErrorMessage: "Required field vin is missing",
		RawData:      "Make=Honda,Model=Civic",
	})
	if err != nil {
		t.Fatalf("AppendExecutionError() error = %v", err)
	}

	rec.Status = StatusCompleted
	rec.FileName = "feed.csv"
	rec.FileSize = 2048
	rec.Checksum = "a1b2c3"
	rec.RecordsProcessed = 10
	rec.RecordsInserted = 7
	rec.RecordsUpdated = 2
	rec.RecordsFailed = 1
	if err := s.FinalizeExecution(ctx, rec); err != nil {
		t.Fatalf("FinalizeExecution() error = %v", err)
	}

	got, err := s.GetExecution(ctx, rec.ID)
	if err != nil {
		t.Fatalf("GetExecution() error = %v", err)
	}
	if got.Status != StatusCompleted || got.RecordsInserted != 7 || got.RecordsFailed != 1 {
		t.Errorf("finalized record = %+v", got)
	}
	if got.CompletedAt == nil {
		t.Error("completedAt not set")
	}
	if got.Checksum != "a1b2c3" {
		t.Errorf("checksum = %q", got.Checksum)
	}

	// Терминальная запись неизменяема.
	rec.Status = StatusFailed
	if err := s.FinalizeExecution(ctx, rec); !errors.Is(err, ErrTerminal) {
		t.Fatalf("FinalizeExecution(again) error = %v, want ErrTerminal", err)
	}
	err = s.AppendExecutionError(ctx, ExecutionError{ExecutionID: rec.ID, RowNumber: 4, ErrorMessage: "late"})
	if !errors.Is(err, ErrTerminal) {
		t.Fatalf("AppendExecutionError(terminal) error = %v, want ErrTerminal", err)
	}

	errs, err := s.ExecutionErrors(ctx, rec.ID, 10)
	if err != nil {
		t.Fatalf("ExecutionErrors() error = %v", err)
	}
	if len(errs) != 1 || errs[0].RowNumber != 3 {
		t.Errorf("ExecutionErrors() = %+v", errs)
	}
}

func TestFinalizeRequiresTerminalStatus(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	rec, err := s.BeginExecution(ctx, "")
	if err != nil {
		t.Fatalf("BeginExecution() error = %v", err)
	}
	rec.Status = StatusRunning
	if err := s.FinalizeExecution(ctx, rec); err == nil {
		t.Fatal("FinalizeExecution(running) expected error")
	}
}

func TestHistoryPagination(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	var ids []string
	for i := 0; i < 3; i++ {
		rec, err := s.BeginExecution(ctx, "config-1")
		if err != nil {
			t.Fatalf("BeginExecution() error = %v", err)
		}
		ids = append(ids, rec.ID)
		time.Sleep(2 * time.Millisecond) // различимые started_at
	}
	// Запуск другой конфигурации не попадает в выборку.
	if _, err := s.BeginExecution(ctx, "config-2"); err != nil {
		t.Fatalf("BeginExecution() error = %v", err)
	}

	page, err := s.History(ctx, "config-1", 2, 0)
	if err != nil {
		t.Fatalf("History() error = %v", err)
	}
	if len(page) != 2 {
		t.Fatalf("History() = %d records, want 2", len(page))
	}
	if page[0].ID != ids[2] || page[1].ID != ids[1] {
		t.Errorf("History() order = %s, %s; want newest first", page[0].ID, page[1].ID)
	}

	page, err = s.History(ctx, "config-1", 2, 2)
	if err != nil {
		t.Fatalf("History() error = %v", err)
	}
	if len(page) != 1 || page[0].ID != ids[0] {
		t.Errorf("History(offset=2) = %+v", page)
	}
}
