// storage.go
package s3

import (
	"context"
	"io"
	"mime/multipart"
	"time"
)

// S3Object определяет интерфейс для объектов S3
type S3Object interface {
	io.ReadCloser
	ContentLength() int64
	ContentType() string
}

// s3Object реализует интерфейс S3Object
type s3Object struct {
	io.ReadCloser
	contentLength int64
	contentType   string
}

func (o *s3Object) ContentLength() int64 {
	return o.contentLength
}

func (o *s3Object) ContentType() string {
	return o.contentType
}

// Storage определяет интерфейс для работы с S3-совместимым хранилищем
type Storage interface {
	UploadFile(key string, file *multipart.File) error
	UploadBytes(key string, data []byte) error
	GetObject(ctx context.Context, key string) (S3Object, error)
	DeleteObject(key string) error
	// CopyObject дублирует объект на стороне хранилища, без перекачивания
	// данных через сервис
	CopyObject(ctx context.Context, sourceKey, destKey string) error
	// PresignGetObject выдает временную ссылку на скачивание
	PresignGetObject(ctx context.Context, key, downloadName string, expires time.Duration) (string, error)
}
