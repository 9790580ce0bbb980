package connector

import (
	"context"
	"fmt"
	"io"
	"os"
	"path"
	"time"

	"github.com/pkg/sftp"
	"golang.org/x/crypto/ssh"
)

// sftpConnector — основной вариант коннектора: SFTP поверх SSH
// с парольной аутентификацией.
type sftpConnector struct {
	ssh     *ssh.Client
	client  *sftp.Client
	workDir string
}

// newSFTP устанавливает SSH-соединение и открывает SFTP-сессию.
// Ошибки аутентификации и недоступности хоста оборачиваются в ErrConnection.
func newSFTP(ctx context.Context, cfg Config) (Connector, error) {
	if cfg.Host == "" {
		return nil, fmt.Errorf("%w: host is required", ErrConnection)
	}
	port := cfg.Port
	if port == 0 {
		port = 22
	}

	sshCfg := &ssh.ClientConfig{
		User: cfg.Username,
		Auth: []ssh.AuthMethod{ssh.Password(cfg.Password)},
		// Фиды дилеров ходят к десяткам провайдерских хостов без
		// предобмена ключами; host key не проверяется.
		HostKeyCallback: ssh.InsecureIgnoreHostKey(),
		Timeout:         30 * time.Second,
	}

	addr := fmt.Sprintf("%s:%d", cfg.Host, port)

	type dialResult struct {
		client *ssh.Client
		err    error
	}
	ch := make(chan dialResult, 1)
	go func() {
		client, err := ssh.Dial("tcp", addr, sshCfg)
		ch <- dialResult{client, err}
	}()

	var sshClient *ssh.Client
	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("%w: %v", ErrConnection, ctx.Err())
	case r := <-ch:
		if r.err != nil {
			return nil, fmt.Errorf("%w: dial %s: %v", ErrConnection, addr, r.err)
		}
		sshClient = r.client
	}

	client, err := sftp.NewClient(sshClient)
	if err != nil {
		sshClient.Close()
		return nil, fmt.Errorf("%w: open sftp session: %v", ErrConnection, err)
	}

	return &sftpConnector{ssh: sshClient, client: client, workDir: cfg.RemoteDirectory}, nil
}

// List возвращает содержимое каталога. При отсутствии каталога ошибка
// дополняется листингом соседей родительского уровня.
func (c *sftpConnector) List(ctx context.Context, directory string) ([]FileInfo, error) {
	if directory == "" {
		directory = c.workDir
	}

	entries, err := c.client.ReadDir(directory)
	if err != nil {
		return nil, c.pathError(directory, err)
	}

	infos := make([]FileInfo, 0, len(entries))
	for _, entry := range entries {
		infos = append(infos, FileInfo{
			Name:        entry.Name(),
			Size:        entry.Size(),
			ModifiedAt:  entry.ModTime(),
			IsDirectory: entry.IsDir(),
		})
	}
	return infos, nil
}

// resolve приводит относительное удаленное имя к рабочему каталогу
// сессии. Абсолютные пути используются как есть.
func (c *sftpConnector) resolve(remote string) string {
	if path.IsAbs(remote) || c.workDir == "" {
		return remote
	}
	return path.Join(c.workDir, remote)
}

// Download скачивает удаленный файл в локальный путь. Имя без каталога
// берется из рабочего каталога сессии, как его вернул List.
func (c *sftpConnector) Download(ctx context.Context, remotePath, localPath string) error {
	remotePath = c.resolve(remotePath)
	src, err := c.client.Open(remotePath)
	if err != nil {
		return c.pathError(remotePath, err)
	}
	defer src.Close()

	dst, err := os.Create(localPath)
	if err != nil {
		return fmt.Errorf("create local file %s: %w", localPath, err)
	}
	defer dst.Close()

	if _, err := io.Copy(dst, src); err != nil {
		os.Remove(localPath)
		return fmt.Errorf("download %s: %w", remotePath, err)
	}
	return nil
}

// Upload загружает локальный файл в рабочий каталог под заданным именем.
func (c *sftpConnector) Upload(ctx context.Context, localPath, remoteFileName string) error {
	src, err := os.Open(localPath)
	if err != nil {
		return fmt.Errorf("open local file %s: %w", localPath, err)
	}
	defer src.Close()

	remotePath := c.resolve(remoteFileName)
	dst, err := c.client.Create(remotePath)
	if err != nil {
		return c.pathError(remotePath, err)
	}
	defer dst.Close()

	if _, err := io.Copy(dst, src); err != nil {
		return fmt.Errorf("upload to %s: %w", remotePath, err)
	}
	return nil
}

// Close закрывает SFTP-сессию и SSH-соединение.
func (c *sftpConnector) Close() error {
	c.client.Close()
	return c.ssh.Close()
}

// pathError строит PathNotFoundError с соседями родительского каталога.
// Если родителя прочитать не удалось, соседи опускаются.
func (c *sftpConnector) pathError(missing string, cause error) error {
	if !os.IsNotExist(cause) {
		return fmt.Errorf("sftp %s: %w", missing, cause)
	}

	perr := &PathNotFoundError{Path: missing}
	parent := path.Dir(missing)
	if entries, err := c.client.ReadDir(parent); err == nil {
		for _, entry := range entries {
			if entry.IsDir() {
				perr.Siblings = append(perr.Siblings, entry.Name())
			}
		}
	}
	return perr
}
