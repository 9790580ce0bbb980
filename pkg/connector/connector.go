// Package connector абстрагирует перенос файлов с удаленных endpoint'ов:
// list/download/upload поверх SFTP и S3. FTP описан интерфейсом, но
// намеренно не реализован — конструктор сразу возвращает ошибку.
//
// Экземпляр коннектора создается на один запуск пайплайна со свежими
// расшифрованными кредами и не разделяется между конкурентными запусками.
package connector

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
)

// Типы коннекторов.
const (
	TypeSFTP = "sftp"
	TypeFTP  = "ftp"
	TypeS3   = "s3"
)

// ErrNotImplemented возвращается для заявленных, но не реализованных
// вариантов (FTP): вызывающий обязан упасть сразу, а не молча пропустить.
var ErrNotImplemented = errors.New("connector: not implemented")

// ErrConnection оборачивается в ошибки аутентификации и недоступности хоста.
var ErrConnection = errors.New("connector: connection failed")

// PathNotFoundError — удаленный каталог или файл не найден.
// Siblings содержит список соседних каталогов родителя для диагностики.
type PathNotFoundError struct {
	Path     string
	Siblings []string
}

func (e *PathNotFoundError) Error() string {
	if len(e.Siblings) == 0 {
		return fmt.Sprintf("remote path not found: %s", e.Path)
	}
	return fmt.Sprintf("remote path not found: %s (existing entries at parent level: %s)",
		e.Path, strings.Join(e.Siblings, ", "))
}

// FileInfo — один элемент листинга удаленного каталога.
type FileInfo struct {
	Name        string
	Size        int64
	ModifiedAt  time.Time
	IsDirectory bool
}

// Connector — операции переноса файлов. Все операции — блокирующий
// сетевой I/O и должны выполняться в выделенной горутине запуска.
type Connector interface {
	// List возвращает содержимое удаленного каталога.
	List(ctx context.Context, directory string) ([]FileInfo, error)
	// Download скачивает удаленный файл в локальный путь.
	Download(ctx context.Context, remotePath, localPath string) error
	// Upload загружает локальный файл под удаленным именем
	// в рабочий каталог коннектора.
	Upload(ctx context.Context, localPath, remoteFileName string) error
	// Close освобождает соединение.
	Close() error
}

// Config — параметры подключения одного запуска. Password — уже
// расшифрованный секрет; он живет только в памяти на время аутентификации
// и никогда не логируется.
type Config struct {
	Type            string
	Host            string
	Port            int
	Username        string
	Password        string
	RemoteDirectory string
}

// New создает коннектор по типу. Каждый вызов — новое соединение.
func New(ctx context.Context, cfg Config) (Connector, error) {
	switch strings.ToLower(cfg.Type) {
	case TypeSFTP:
		return newSFTP(ctx, cfg)
	case TypeS3:
		return newS3(ctx, cfg)
	case TypeFTP:
		return nil, fmt.Errorf("%w: ftp connector is declared but not implemented, use sftp", ErrNotImplemented)
	default:
		return nil, fmt.Errorf("unsupported connector type '%s', must be one of: sftp, ftp, s3", cfg.Type)
	}
}

// MatchPattern сопоставляет имя файла с glob-подобным шаблоном
// ('*' — любая подстрока, '?' — один символ) без учета регистра.
// Пустой шаблон матчит все.
func MatchPattern(pattern, name string) bool {
	if pattern == "" || pattern == "*" {
		return true
	}
	return matchGlob(strings.ToLower(pattern), strings.ToLower(name))
}

// matchGlob — итеративный glob с backtracking по '*'.
func matchGlob(pattern, name string) bool {
	pi, ni := 0, 0
	star, mark := -1, 0

	for ni < len(name) {
		switch {
		case pi < len(pattern) && (pattern[pi] == '?' || pattern[pi] == name[ni]):
			pi++
			ni++
		case pi < len(pattern) && pattern[pi] == '*':
			star, mark = pi, ni
			pi++
		case star >= 0:
			pi = star + 1
			mark++
			ni = mark
		default:
			return false
		}
	}
	for pi < len(pattern) && pattern[pi] == '*' {
		pi++
	}
	return pi == len(pattern)
}
