package pipeline

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/zeebo/xxh3"

	"github.com/motorlane/feedbridge/pkg/audit"
	"github.com/motorlane/feedbridge/pkg/codec"
	"github.com/motorlane/feedbridge/pkg/mapping"
	"github.com/motorlane/feedbridge/pkg/store"
)

// runExport выполняет запуск экспорта: проекция инвентаря по фильтрам
// сериализуется в файл формата конфигурации и загружается на удаленную
// сторону. Любой отказ прерывает запуск целиком, построчных ошибок
// в экспорте нет.
func (e *Engine) runExport(ctx context.Context, cfg *store.PipelineConfig, rec *store.ExecutionRecord) (*Result, error) {
	rows, err := e.target.Export(ctx, cfg.DealerID, cfg.Mappings, cfg.Filters)
	if err != nil {
		return e.fail(ctx, cfg, rec, fmt.Errorf("build export projection: %w", err)), nil
	}

	records := make([]codec.Record, len(rows))
	for i, row := range rows {
		records[i] = codec.Record(row)
	}

	data, err := codec.Serialize(records, exportColumns(cfg.Mappings), cfg.Format)
	if err != nil {
		return e.fail(ctx, cfg, rec, &CodecError{FileName: cfg.Name, Err: err}), nil
	}
	e.auditor.Log(ctx, audit.NewEntry(audit.OpSerialize, audit.StatusSuccess).
		WithConfig(cfg.ID).WithExecution(rec.ID).
		WithRecordsAffected(int64(len(records))))

	rec.FileName = exportFileName(cfg)
	rec.FileSize = int64(len(data))
	rec.Checksum = fmt.Sprintf("%016x", xxh3.Hash(data))
	rec.RecordsProcessed = len(records)

	local := filepath.Join(e.tempDir, rec.FileName)
	if err := os.WriteFile(local, data, 0644); err != nil {
		return e.fail(ctx, cfg, rec, fmt.Errorf("write export file: %w", err)), nil
	}
	archived := false
	defer func() {
		if !archived {
			os.Remove(local)
		}
	}()

	conn, err := e.openConnector(ctx, cfg)
	if err != nil {
		return e.fail(ctx, cfg, rec, err), nil
	}
	defer conn.Close()

	started := time.Now()
	if err := conn.Upload(ctx, local, rec.FileName); err != nil {
		e.auditor.Log(ctx, audit.NewEntry(audit.OpUpload, audit.StatusFailure).
			WithConfig(cfg.ID).WithExecution(rec.ID).WithResource(rec.FileName).WithError(err))
		return e.fail(ctx, cfg, rec, err), nil
	}
	e.auditor.Log(ctx, audit.NewEntry(audit.OpUpload, audit.StatusSuccess).
		WithConfig(cfg.ID).WithExecution(rec.ID).WithResource(rec.FileName).
		WithDuration(time.Since(started)))

	if cfg.Policy.ArchiveProcessedFiles {
		if err := e.archiveFile(ctx, cfg, rec, local); err != nil {
			e.log.Error("archive export file", "execution", rec.ID, "err", err)
		} else {
			archived = true
		}
	}

	return e.complete(ctx, cfg, rec), nil
}

// exportColumns возвращает target-имена правил в порядке Order:
// он же задает порядок колонок выходного файла.
func exportColumns(mappings []mapping.FieldMapping) []string {
	ordered := make([]mapping.FieldMapping, len(mappings))
	copy(ordered, mappings)
	mapping.SortByOrder(ordered)

	columns := make([]string, len(ordered))
	for i, m := range ordered {
		columns[i] = m.TargetField
	}
	return columns
}

// exportFileName строит имя выходного файла из имени конфигурации
// и момента запуска.
func exportFileName(cfg *store.PipelineConfig) string {
	base := strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
			return r
		default:
			return '_'
		}
	}, cfg.Name)
	return fmt.Sprintf("%s_%s%s", base, time.Now().Format("20060102_150405"), codec.Extension(cfg.Format.FileType))
}
