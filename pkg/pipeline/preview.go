package pipeline

import (
	"context"
	"fmt"
	"os"

	"github.com/zeebo/xxh3"

	"github.com/motorlane/feedbridge/pkg/audit"
	"github.com/motorlane/feedbridge/pkg/codec"
	"github.com/motorlane/feedbridge/pkg/mapping"
	"github.com/motorlane/feedbridge/pkg/store"
	"github.com/motorlane/feedbridge/pkg/validate"
)

// PreviewRow — одна строка предпросмотра: исходная запись, результат
// преобразования и итог валидации.
type PreviewRow struct {
	Row         int
	Source      codec.Record
	Transformed map[string]any
	Validation  validate.Result
}

// PreviewResult — результат предпросмотра без записи в целевое хранилище.
type PreviewResult struct {
	ExecutionID  string
	FileName     string
	TotalRecords int
	Rows         []PreviewRow
}

// Preview скачивает и разбирает удаленный файл конфигурации, прогоняет
// первые limit записей через преобразование и валидацию, но не трогает
// целевое хранилище. В истории остается ad-hoc запись запуска без configId.
func (e *Engine) Preview(ctx context.Context, configID string, limit int) (*PreviewResult, error) {
	cfg, err := e.store.GetConfig(ctx, configID)
	if err != nil {
		return nil, err
	}
	if cfg.Direction != store.DirectionImport {
		return nil, &ConfigurationError{Msg: "preview is only valid for import configs"}
	}
	if limit <= 0 {
		limit = 10
	}

	rec, err := e.store.BeginExecution(ctx, "")
	if err != nil {
		return nil, err
	}

	conn, err := e.openConnector(ctx, cfg)
	if err != nil {
		e.fail(ctx, cfg, rec, err)
		return nil, err
	}
	defer conn.Close()

	remote, err := e.selectRemoteFile(ctx, conn, cfg)
	if err != nil {
		e.fail(ctx, cfg, rec, err)
		return nil, err
	}
	rec.FileName = remote

	local, err := e.downloadLocal(ctx, conn, cfg, rec, remote)
	if err != nil {
		e.fail(ctx, cfg, rec, err)
		return nil, err
	}
	defer os.Remove(local)

	data, err := os.ReadFile(local)
	if err != nil {
		readErr := fmt.Errorf("read downloaded file: %w", err)
		e.fail(ctx, cfg, rec, readErr)
		return nil, readErr
	}
	rec.FileSize = int64(len(data))
	rec.Checksum = fmt.Sprintf("%016x", xxh3.Hash(data))

	records, err := codec.Parse(data, cfg.Format)
	if err != nil {
		codecErr := &CodecError{FileName: remote, Err: err}
		e.fail(ctx, cfg, rec, codecErr)
		return nil, codecErr
	}

	result := &PreviewResult{
		ExecutionID:  rec.ID,
		FileName:     remote,
		TotalRecords: len(records),
	}

	transformer := mapping.New(cfg.Mappings,
		mapping.WithMultiValueDelimiter(cfg.Format.MultiValueDelimiter),
		mapping.WithLogger(e.log))

	for i, record := range records {
		if i >= limit {
			break
		}
		row := PreviewRow{Row: i + 1, Source: record}

		transformed, err := transformer.Transform(record)
		if err != nil {
			row.Validation = validate.Result{IsValid: false, Errors: []string{err.Error()}}
			rec.RecordsFailed++
		} else {
			row.Transformed = transformed
			row.Validation = validate.Record(transformed, cfg.Mappings)
			if !row.Validation.IsValid {
				rec.RecordsFailed++
			}
		}
		rec.RecordsProcessed++
		result.Rows = append(result.Rows, row)
	}

	rec.Status = store.StatusCompleted
	if err := e.store.FinalizeExecution(ctx, rec); err != nil {
		e.log.Error("finalize preview", "execution", rec.ID, "err", err)
	}
	e.auditor.Log(ctx, audit.NewEntry(audit.OpPreview, audit.StatusSuccess).
		WithDealer(cfg.DealerID).WithConfig(cfg.ID).WithExecution(rec.ID).
		WithResource(remote).WithRecordsAffected(int64(len(result.Rows))))

	return result, nil
}
