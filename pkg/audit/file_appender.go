package audit

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

// FileAppender - журнал операций в файле, одна JSON-строка на запись.
// Заполненный файл уходит в единственную резервную копию "<path>.old":
// журнал растет между запусками feedctl, глубокая история ротаций
// ему не нужна.
type FileAppender struct {
	mu          sync.Mutex
	file        *os.File
	filePath    string
	maxSize     int64
	currentSize int64
	level       Level
}

// FileAppenderConfig - конфигурация file appender.
type FileAppenderConfig struct {
	FilePath string
	MaxSize  int64 // в мегабайтах
	Level    Level
}

// NewFileAppender - создать file appender.
func NewFileAppender(config FileAppenderConfig) (*FileAppender, error) {
	dir := filepath.Dir(config.FilePath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create directory: %w", err)
	}

	file, err := os.OpenFile(config.FilePath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return nil, fmt.Errorf("failed to open audit file: %w", err)
	}

	fileInfo, err := file.Stat()
	if err != nil {
		file.Close()
		return nil, fmt.Errorf("failed to stat file: %w", err)
	}

	maxSize := config.MaxSize
	if maxSize == 0 {
		maxSize = 100 // 100 MB
	}

	return &FileAppender{
		file:        file,
		filePath:    config.FilePath,
		maxSize:     maxSize * 1024 * 1024,
		currentSize: fileInfo.Size(),
		level:       config.Level,
	}, nil
}

// Append - записать entry в файл.
func (fa *FileAppender) Append(ctx context.Context, entry *Entry) error {
	fa.mu.Lock()
	defer fa.mu.Unlock()

	data, err := entry.FilterByLevel(fa.level).ToJSON()
	if err != nil {
		return fmt.Errorf("failed to marshal entry: %w", err)
	}
	data = append(data, '\n')

	if fa.currentSize+int64(len(data)) > fa.maxSize {
		if err := fa.rotate(); err != nil {
			return fmt.Errorf("failed to rotate file: %w", err)
		}
	}

	n, err := fa.file.Write(data)
	if err != nil {
		return fmt.Errorf("failed to write entry: %w", err)
	}

	fa.currentSize += int64(n)
	return nil
}

// rotate - перенести заполненный журнал в "<path>.old", затерев
// предыдущую копию, и начать новый файл.
func (fa *FileAppender) rotate() error {
	if err := fa.file.Close(); err != nil {
		return err
	}

	backup := fa.filePath + ".old"
	os.Remove(backup)
	if err := os.Rename(fa.filePath, backup); err != nil {
		return err
	}

	file, err := os.OpenFile(fa.filePath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return err
	}

	fa.file = file
	fa.currentSize = 0

	return nil
}

// Close - закрыть файл.
func (fa *FileAppender) Close() error {
	fa.mu.Lock()
	defer fa.mu.Unlock()

	if fa.file != nil {
		return fa.file.Close()
	}

	return nil
}

// Flush - сбросить буфер на диск.
func (fa *FileAppender) Flush() error {
	fa.mu.Lock()
	defer fa.mu.Unlock()

	if fa.file != nil {
		return fa.file.Sync()
	}

	return nil
}

// ConsoleAppender - краткие строки журнала в терминал.
// Отказные операции уходят в stderr.
type ConsoleAppender struct {
	level Level
}

// NewConsoleAppender - создать console appender.
func NewConsoleAppender(level Level) *ConsoleAppender {
	return &ConsoleAppender{level: level}
}

// Append - вывести entry в консоль.
func (ca *ConsoleAppender) Append(ctx context.Context, entry *Entry) error {
	out := os.Stdout
	if entry.Status == StatusFailure {
		out = os.Stderr
	}
	_, err := fmt.Fprintln(out, entry.FilterByLevel(ca.level).String())
	return err
}

// Close - закрыть console appender (noop).
func (ca *ConsoleAppender) Close() error {
	return nil
}

// NullAppender - пустой appender (для тестов).
type NullAppender struct{}

// NewNullAppender - создать null appender.
func NewNullAppender() *NullAppender {
	return &NullAppender{}
}

// Append - ничего не делает.
func (na *NullAppender) Append(ctx context.Context, entry *Entry) error {
	return nil
}

// Close - ничего не делает.
func (na *NullAppender) Close() error {
	return nil
}
