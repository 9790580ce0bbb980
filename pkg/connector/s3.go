package connector

import (
	"context"
	"fmt"
	"os"
	"path"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// s3Connector — вариант коннектора для бакетов S3: Host интерпретируется
// как имя бакета, RemoteDirectory — как префикс ключей, Username/Password —
// как статическая пара access key / secret key (пустые — цепочка по
// умолчанию: окружение, профиль, IAM-роль).
type s3Connector struct {
	client *s3.Client
	bucket string
	prefix string
}

// newS3 создает клиент S3 на один запуск.
func newS3(ctx context.Context, cfg Config) (Connector, error) {
	if cfg.Host == "" {
		return nil, fmt.Errorf("%w: bucket name (host) is required", ErrConnection)
	}

	var opts []func(*awsconfig.LoadOptions) error
	if cfg.Username != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.Username, cfg.Password, "")))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("%w: load aws config: %v", ErrConnection, err)
	}

	return &s3Connector{
		client: s3.NewFromConfig(awsCfg),
		bucket: cfg.Host,
		prefix: strings.Trim(cfg.RemoteDirectory, "/"),
	}, nil
}

// List возвращает объекты под префиксом. Пустой результат по ненулевому
// префиксу трактуется как отсутствующий путь — в ошибку попадают
// соседние префиксы родительского уровня.
func (c *s3Connector) List(ctx context.Context, directory string) ([]FileInfo, error) {
	prefix := c.keyFor(directory, "")
	if prefix != "" {
		prefix += "/"
	}

	out, err := c.client.ListObjectsV2(ctx, &s3.ListObjectsV2Input{
		Bucket:    aws.String(c.bucket),
		Prefix:    aws.String(prefix),
		Delimiter: aws.String("/"),
	})
	if err != nil {
		return nil, fmt.Errorf("%w: list s3://%s/%s: %v", ErrConnection, c.bucket, prefix, err)
	}

	var infos []FileInfo
	for _, cp := range out.CommonPrefixes {
		name := strings.TrimSuffix(strings.TrimPrefix(aws.ToString(cp.Prefix), prefix), "/")
		infos = append(infos, FileInfo{Name: name, IsDirectory: true})
	}
	for _, obj := range out.Contents {
		key := aws.ToString(obj.Key)
		name := strings.TrimPrefix(key, prefix)
		if name == "" {
			continue // сам "каталог"
		}
		info := FileInfo{Name: name, Size: aws.ToInt64(obj.Size)}
		if obj.LastModified != nil {
			info.ModifiedAt = *obj.LastModified
		}
		infos = append(infos, info)
	}

	if len(infos) == 0 && prefix != "" {
		return nil, c.pathError(ctx, strings.TrimSuffix(prefix, "/"))
	}
	return infos, nil
}

// Download скачивает объект в локальный файл.
func (c *s3Connector) Download(ctx context.Context, remotePath, localPath string) error {
	dst, err := os.Create(localPath)
	if err != nil {
		return fmt.Errorf("create local file %s: %w", localPath, err)
	}
	defer dst.Close()

	downloader := manager.NewDownloader(c.client)
	key := c.keyFor("", remotePath)
	if _, err := downloader.Download(ctx, dst, &s3.GetObjectInput{
		Bucket: aws.String(c.bucket),
		Key:    aws.String(key),
	}); err != nil {
		os.Remove(localPath)
		return fmt.Errorf("download s3://%s/%s: %w", c.bucket, key, err)
	}
	return nil
}

// Upload загружает локальный файл под ключом prefix/remoteFileName.
func (c *s3Connector) Upload(ctx context.Context, localPath, remoteFileName string) error {
	src, err := os.Open(localPath)
	if err != nil {
		return fmt.Errorf("open local file %s: %w", localPath, err)
	}
	defer src.Close()

	uploader := manager.NewUploader(c.client)
	key := c.keyFor("", remoteFileName)
	if _, err := uploader.Upload(ctx, &s3.PutObjectInput{
		Bucket: aws.String(c.bucket),
		Key:    aws.String(key),
		Body:   src,
	}); err != nil {
		return fmt.Errorf("upload s3://%s/%s: %w", c.bucket, key, err)
	}
	return nil
}

// Close — у клиента S3 нет удерживаемого соединения.
func (c *s3Connector) Close() error {
	return nil
}

// keyFor собирает ключ объекта из префикса коннектора, каталога и имени.
func (c *s3Connector) keyFor(directory, name string) string {
	parts := make([]string, 0, 3)
	if c.prefix != "" {
		parts = append(parts, c.prefix)
	}
	if d := strings.Trim(directory, "/"); d != "" && d != c.prefix {
		parts = append(parts, d)
	}
	if n := strings.Trim(name, "/"); n != "" {
		parts = append(parts, n)
	}
	return strings.Join(parts, "/")
}

// pathError строит PathNotFoundError с общими префиксами родителя.
func (c *s3Connector) pathError(ctx context.Context, missing string) error {
	perr := &PathNotFoundError{Path: fmt.Sprintf("s3://%s/%s", c.bucket, missing)}

	parent := path.Dir(missing)
	prefix := ""
	if parent != "." && parent != "/" {
		prefix = parent + "/"
	}
	out, err := c.client.ListObjectsV2(ctx, &s3.ListObjectsV2Input{
		Bucket:    aws.String(c.bucket),
		Prefix:    aws.String(prefix),
		Delimiter: aws.String("/"),
	})
	if err == nil {
		for _, cp := range out.CommonPrefixes {
			sibling := strings.TrimSuffix(strings.TrimPrefix(aws.ToString(cp.Prefix), prefix), "/")
			perr.Siblings = append(perr.Siblings, sibling)
		}
	}
	return perr
}
