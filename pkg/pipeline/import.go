package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/klauspost/compress/zstd"
	"github.com/zeebo/xxh3"

	"github.com/motorlane/feedbridge/pkg/audit"
	"github.com/motorlane/feedbridge/pkg/codec"
	"github.com/motorlane/feedbridge/pkg/connector"
	"github.com/motorlane/feedbridge/pkg/inventory"
	"github.com/motorlane/feedbridge/pkg/mapping"
	"github.com/motorlane/feedbridge/pkg/store"
	"github.com/motorlane/feedbridge/pkg/validate"
)

// runImport выполняет запуск импорта: удаленный файл скачивается,
// разбирается и построчно записывается в целевое хранилище.
// Построчные отказы записываются в историю и не прерывают запуск;
// отказы соединения, выбора файла и разбора прерывают его целиком.
func (e *Engine) runImport(ctx context.Context, cfg *store.PipelineConfig, rec *store.ExecutionRecord, rows []int) (*Result, error) {
	conn, err := e.openConnector(ctx, cfg)
	if err != nil {
		return e.fail(ctx, cfg, rec, err), nil
	}
	defer conn.Close()

	remote, err := e.selectRemoteFile(ctx, conn, cfg)
	if err != nil {
		return e.fail(ctx, cfg, rec, err), nil
	}
	rec.FileName = remote

	local, err := e.downloadLocal(ctx, conn, cfg, rec, remote)
	if err != nil {
		return e.fail(ctx, cfg, rec, err), nil
	}
	// Локальный файл не переживает запуск: архив или удаление на любом
	// пути выхода.
	archived := false
	defer func() {
		if !archived {
			os.Remove(local)
		}
	}()

	data, err := os.ReadFile(local)
	if err != nil {
		return e.fail(ctx, cfg, rec, fmt.Errorf("read downloaded file: %w", err)), nil
	}
	rec.FileSize = int64(len(data))
	rec.Checksum = fmt.Sprintf("%016x", xxh3.Hash(data))

	records, err := codec.Parse(data, cfg.Format)
	if err != nil {
		return e.fail(ctx, cfg, rec, &CodecError{FileName: remote, Err: err}), nil
	}
	e.auditor.Log(ctx, audit.NewEntry(audit.OpParse, audit.StatusSuccess).
		WithConfig(cfg.ID).WithExecution(rec.ID).
		WithResource(remote).WithRecordsAffected(int64(len(records))))

	var fileRows []int
	if len(rows) > 0 {
		records, fileRows = subsetRows(records, rows)
	}

	transformer := mapping.New(cfg.Mappings,
		mapping.WithMultiValueDelimiter(cfg.Format.MultiValueDelimiter),
		mapping.WithLogger(e.log))

	for i, record := range records {
		// Отмена возможна только между записями; прерванный запуск
		// финализируется как failed, а не остается running.
		if ctxErr := ctx.Err(); ctxErr != nil {
			return e.fail(ctx, cfg, rec, fmt.Errorf("run cancelled after %d records: %w", rec.RecordsProcessed, ctxErr)), nil
		}

		row := i + 1
		if fileRows != nil {
			row = fileRows[i]
		}
		rec.RecordsProcessed++

		transformed, err := transformer.Transform(record)
		if err != nil {
			rec.RecordsFailed++
			e.recordRowError(ctx, rec, &TransformError{Row: row, Err: err}, row, rawSource(record))
		} else {
			e.applyRecord(ctx, cfg, rec, row, record, transformed)
		}

		if exceeded, limit := e.errorLimitExceeded(cfg, rec); exceeded {
			return e.fail(ctx, cfg, rec,
				fmt.Errorf("error limit exceeded: %d failed records, maxErrors=%d", rec.RecordsFailed, limit)), nil
		}

		if cfg.Policy.BatchSize > 0 && rec.RecordsProcessed%cfg.Policy.BatchSize == 0 {
			e.log.Info("import progress",
				"execution", rec.ID,
				"processed", rec.RecordsProcessed, "total", len(records),
				"failed", rec.RecordsFailed)
		}
	}

	if cfg.Policy.ArchiveProcessedFiles {
		if err := e.archiveFile(ctx, cfg, rec, local); err != nil {
			e.log.Error("archive file", "execution", rec.ID, "err", err)
		} else {
			archived = true
		}
	}

	return e.complete(ctx, cfg, rec), nil
}

// applyRecord проводит одну преобразованную запись через валидацию
// и запись в целевое хранилище, обновляя счетчики.
func (e *Engine) applyRecord(ctx context.Context, cfg *store.PipelineConfig, rec *store.ExecutionRecord, row int, source codec.Record, transformed map[string]any) {
	if cfg.Policy.ValidateData {
		if res := validate.Record(transformed, cfg.Mappings); !res.IsValid {
			rec.RecordsFailed++
			e.recordRowError(ctx, rec, &ValidationError{Row: row, Messages: res.Errors}, row, rawSource(source))
			return
		}
	}

	outcome, err := e.target.Apply(ctx, cfg.DealerID, transformed, cfg.Policy.DuplicateHandling)
	if err != nil {
		rec.RecordsFailed++
		e.recordRowError(ctx, rec, &UpsertConflictError{Row: row, Err: err}, row, rawSource(source))
		return
	}

	switch outcome {
	case inventory.OutcomeInserted:
		rec.RecordsInserted++
	case inventory.OutcomeUpdated:
		rec.RecordsUpdated++
	default:
		rec.RecordsSkipped++
	}
}

// errorLimitExceeded — предохранитель maxErrors: превышение лимита
// построчных отказов прерывает запуск.
func (e *Engine) errorLimitExceeded(cfg *store.PipelineConfig, rec *store.ExecutionRecord) (bool, int) {
	limit := cfg.Policy.MaxErrors
	if limit <= 0 {
		return false, 0
	}
	return rec.RecordsFailed >= limit, limit
}

// selectRemoteFile выбирает первый файл каталога, подходящий под шаблон.
func (e *Engine) selectRemoteFile(ctx context.Context, conn connector.Connector, cfg *store.PipelineConfig) (string, error) {
	files, err := conn.List(ctx, cfg.Connection.RemoteDirectory)
	if err != nil {
		return "", err
	}
	for _, f := range files {
		if f.IsDirectory {
			continue
		}
		if connector.MatchPattern(cfg.Connection.FilePattern, f.Name) {
			return f.Name, nil
		}
	}
	return "", fmt.Errorf("no file in '%s' matches pattern '%s'",
		cfg.Connection.RemoteDirectory, cfg.Connection.FilePattern)
}

// downloadLocal скачивает удаленный файл во временный локальный.
func (e *Engine) downloadLocal(ctx context.Context, conn connector.Connector, cfg *store.PipelineConfig, rec *store.ExecutionRecord, remote string) (string, error) {
	tmp, err := os.CreateTemp(e.tempDir, "feedbridge-*"+filepath.Ext(remote))
	if err != nil {
		return "", fmt.Errorf("create temp file: %w", err)
	}
	local := tmp.Name()
	tmp.Close()

	started := time.Now()
	if err := conn.Download(ctx, remote, local); err != nil {
		os.Remove(local)
		e.auditor.Log(ctx, audit.NewEntry(audit.OpDownload, audit.StatusFailure).
			WithConfig(cfg.ID).WithExecution(rec.ID).WithResource(remote).WithError(err))
		return "", err
	}
	e.auditor.Log(ctx, audit.NewEntry(audit.OpDownload, audit.StatusSuccess).
		WithConfig(cfg.ID).WithExecution(rec.ID).WithResource(remote).
		WithDuration(time.Since(started)))
	return local, nil
}

// archiveFile переносит обработанный файл в каталог архива, сжимая zstd.
func (e *Engine) archiveFile(ctx context.Context, cfg *store.PipelineConfig, rec *store.ExecutionRecord, local string) error {
	if err := os.MkdirAll(cfg.Policy.ArchiveDirectory, 0755); err != nil {
		return fmt.Errorf("create archive directory: %w", err)
	}

	name := rec.FileName
	if name == "" {
		name = filepath.Base(local)
	}
	target := filepath.Join(cfg.Policy.ArchiveDirectory,
		fmt.Sprintf("%s_%s.zst", time.Now().Format("20060102_150405"), name))

	src, err := os.Open(local)
	if err != nil {
		return fmt.Errorf("open processed file: %w", err)
	}
	defer src.Close()

	dst, err := os.Create(target)
	if err != nil {
		return fmt.Errorf("create archive file: %w", err)
	}
	defer dst.Close()

	enc, err := zstd.NewWriter(dst)
	if err != nil {
		return fmt.Errorf("init zstd writer: %w", err)
	}
	if _, err := io.Copy(enc, src); err != nil {
		enc.Close()
		os.Remove(target)
		return fmt.Errorf("compress archive: %w", err)
	}
	if err := enc.Close(); err != nil {
		os.Remove(target)
		return fmt.Errorf("flush archive: %w", err)
	}

	if err := os.Remove(local); err != nil {
		return fmt.Errorf("remove processed file: %w", err)
	}
	e.auditor.Log(ctx, audit.NewEntry(audit.OpArchive, audit.StatusSuccess).
		WithConfig(cfg.ID).WithExecution(rec.ID).WithResource(target))
	return nil
}

// subsetRows оставляет только записи с перечисленными номерами строк
// (нумерация с 1, порядок файла сохраняется). Вторым значением
// возвращаются исходные номера строк файла: ошибки записей
// диагностируются по файлу, а не по позиции в выборке.
func subsetRows(records []codec.Record, rows []int) ([]codec.Record, []int) {
	wanted := make(map[int]bool, len(rows))
	for _, r := range rows {
		wanted[r] = true
	}
	var subset []codec.Record
	var fileRows []int
	for i, r := range records {
		if wanted[i+1] {
			subset = append(subset, r)
			fileRows = append(fileRows, i+1)
		}
	}
	return subset, fileRows
}

// rawSource сериализует исходную запись для диагностики построчной ошибки.
func rawSource(record codec.Record) string {
	data, err := json.Marshal(record)
	if err != nil {
		return ""
	}
	return string(data)
}
