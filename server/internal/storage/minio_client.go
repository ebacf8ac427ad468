// Package storage содержит объектное хранилище для архива выписок.
package storage

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"go.uber.org/zap"
)

// FileStorage определяет интерфейс объектного хранилища.
type FileStorage interface {
	UploadFile(ctx context.Context, objectKey string, reader io.Reader, size int64, contentType string) error
	DownloadFile(ctx context.Context, objectKey string) (io.ReadCloser, error)
}

// MinioClient реализует FileStorage для MinIO/S3.
type MinioClient struct {
	client     *minio.Client
	bucketName string
	log        *zap.Logger
}

// MinioConfig содержит параметры для подключения к MinIO.
type MinioConfig struct {
	Endpoint        string // Адрес MinIO (например, "localhost:9000")
	AccessKeyID     string
	SecretAccessKey string
	UseSSL          bool
	BucketName      string // Бакет для выписок
	Region          string
}

// NewMinioClient создает клиент MinIO и создает бакет, если его нет.
func NewMinioClient(ctx context.Context, cfg MinioConfig, log *zap.Logger) (*MinioClient, error) {
	log.Info("Инициализация клиента MinIO", zap.String("endpoint", cfg.Endpoint))

	minioClient, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		Secure: cfg.UseSSL,
		Region: cfg.Region,
	})
	if err != nil {
		return nil, fmt.Errorf("ошибка инициализации клиента MinIO: %w", err)
	}

	exists, err := minioClient.BucketExists(ctx, cfg.BucketName)
	if err != nil {
		return nil, fmt.Errorf("ошибка проверки существования бакета '%s': %w", cfg.BucketName, err)
	}
	if !exists {
		log.Info("Бакет не найден, создаем", zap.String("bucket", cfg.BucketName))
		err = minioClient.MakeBucket(ctx, cfg.BucketName, minio.MakeBucketOptions{Region: cfg.Region})
		if err != nil {
			return nil, fmt.Errorf("ошибка создания бакета '%s': %w", cfg.BucketName, err)
		}
	}

	log.Info("Клиент MinIO инициализирован", zap.String("bucket", cfg.BucketName))
	return &MinioClient{
		client:     minioClient,
		bucketName: cfg.BucketName,
		log:        log,
	}, nil
}

// UploadFile загружает объект в бакет.
func (c *MinioClient) UploadFile(
	ctx context.Context,
	objectKey string,
	reader io.Reader,
	size int64,
	contentType string,
) error {
	info, err := c.client.PutObject(ctx, c.bucketName, objectKey, reader, size,
		minio.PutObjectOptions{ContentType: contentType})
	if err != nil {
		c.log.Error("[Minio] Ошибка загрузки объекта", zap.String("key", objectKey), zap.Error(err))
		return fmt.Errorf("ошибка загрузки файла в MinIO: %w", err)
	}

	c.log.Info("[Minio] Объект загружен",
		zap.String("key", objectKey), zap.Int64("size", info.Size), zap.String("etag", info.ETag))
	return nil
}

// DownloadFile открывает объект на чтение. Вызывающий обязан закрыть результат.
func (c *MinioClient) DownloadFile(ctx context.Context, objectKey string) (io.ReadCloser, error) {
	object, err := c.client.GetObject(ctx, c.bucketName, objectKey, minio.GetObjectOptions{})
	if err != nil {
		return nil, c.mapError(objectKey, err)
	}

	// GetObject ленивый: отсутствие объекта обнаруживается только при Stat/Read
	if _, err = object.Stat(); err != nil {
		_ = object.Close()
		return nil, c.mapError(objectKey, err)
	}
	return object, nil
}

func (c *MinioClient) mapError(objectKey string, err error) error {
	if minio.ToErrorResponse(err).Code == "NoSuchKey" {
		c.log.Info("[Minio] Объект не найден", zap.String("key", objectKey))
		return ErrObjectNotFound
	}
	c.log.Error("[Minio] Ошибка получения объекта", zap.String("key", objectKey), zap.Error(err))
	return fmt.Errorf("ошибка получения файла из MinIO: %w", err)
}

// Ошибки хранилища.
var (
	ErrObjectNotFound = errors.New("объект не найден в хранилище")
)
