package connector

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/pkg/sftp"
)

type pipeTransport struct {
	io.Reader
	io.WriteCloser
}

// newTestSFTP поднимает SFTP-сервер в том же процессе поверх пары pipe
// и возвращает коннектор с заданным рабочим каталогом.
func newTestSFTP(t *testing.T, workDir string) *sftpConnector {
	t.Helper()

	clientRead, serverWrite := io.Pipe()
	serverRead, clientWrite := io.Pipe()

	server, err := sftp.NewServer(pipeTransport{serverRead, serverWrite})
	if err != nil {
		t.Fatalf("sftp.NewServer() error = %v", err)
	}
	go server.Serve()

	client, err := sftp.NewClientPipe(clientRead, clientWrite)
	if err != nil {
		t.Fatalf("sftp.NewClientPipe() error = %v", err)
	}
	t.Cleanup(func() {
		// Сначала закрывается сервер: его сторона pipe отпускает
		// приемный цикл клиента, который ждет client.Close().
		server.Close()
		client.Close()
	})

	return &sftpConnector{client: client, workDir: workDir}
}

func TestSFTPDownloadResolvesAgainstWorkDir(t *testing.T) {
	workDir := filepath.Join(t.TempDir(), "outbound")
	if err := os.MkdirAll(workDir, 0755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	content := []byte("VIN,Make\n1HGBH41JXMN109186,Honda\n")
	if err := os.WriteFile(filepath.Join(workDir, "feed.csv"), content, 0644); err != nil {
		t.Fatalf("write remote file: %v", err)
	}

	conn := newTestSFTP(t, workDir)
	ctx := context.Background()

	infos, err := conn.List(ctx, workDir)
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if len(infos) != 1 || infos[0].Name != "feed.csv" {
		t.Fatalf("List() = %v, want feed.csv", infos)
	}

	// Имя из листинга скачивается как есть, без каталога.
	local := filepath.Join(t.TempDir(), "feed.csv")
	if err := conn.Download(ctx, infos[0].Name, local); err != nil {
		t.Fatalf("Download(%q) error = %v", infos[0].Name, err)
	}
	got, err := os.ReadFile(local)
	if err != nil {
		t.Fatalf("read local file: %v", err)
	}
	if string(got) != string(content) {
		t.Errorf("downloaded content = %q", got)
	}
}

func TestSFTPDownloadAbsolutePath(t *testing.T) {
	dir := t.TempDir()
	remote := filepath.Join(dir, "feed.csv")
	if err := os.WriteFile(remote, []byte("data"), 0644); err != nil {
		t.Fatalf("write remote file: %v", err)
	}

	// Рабочий каталог намеренно другой: абсолютный путь им не дополняется.
	conn := newTestSFTP(t, filepath.Join(dir, "elsewhere"))

	local := filepath.Join(t.TempDir(), "out.csv")
	if err := conn.Download(context.Background(), remote, local); err != nil {
		t.Fatalf("Download() error = %v", err)
	}
}

func TestSFTPUploadIntoWorkDir(t *testing.T) {
	workDir := t.TempDir()
	conn := newTestSFTP(t, workDir)

	local := filepath.Join(t.TempDir(), "export.csv")
	if err := os.WriteFile(local, []byte("vin,make\n"), 0644); err != nil {
		t.Fatalf("write local file: %v", err)
	}

	if err := conn.Upload(context.Background(), local, "export.csv"); err != nil {
		t.Fatalf("Upload() error = %v", err)
	}
	if _, err := os.Stat(filepath.Join(workDir, "export.csv")); err != nil {
		t.Errorf("uploaded file not in work dir: %v", err)
	}
}

func TestSFTPDownloadMissingFile(t *testing.T) {
	workDir := t.TempDir()
	conn := newTestSFTP(t, workDir)

	err := conn.Download(context.Background(), "absent.csv", filepath.Join(t.TempDir(), "x"))
	if err == nil {
		t.Fatal("Download() expected error for missing file")
	}
	var perr *PathNotFoundError
	if !errors.As(err, &perr) {
		t.Fatalf("Download() error = %v, want PathNotFoundError", err)
	}
}
