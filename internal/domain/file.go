package domain

import (
	"time"

	"github.com/google/uuid"
)

// PersonalFile — файл в личном хранилище пользователя. Файл либо загружен
// самим пользователем, либо является персональной копией общего файла курса
// (тогда заполнен OriginalFileID). Удаление мягкое: запись остаётся в базе,
// чтобы история изменений оставалась доступной по UUID.
type PersonalFile struct {
	UUID           uuid.UUID  `json:"uuid" db:"uuid"`
	OwnerID        string     `json:"owner_id" db:"owner_id"`
	OriginalFileID *uuid.UUID `json:"original_file_id,omitempty" db:"original_file_id"`
	Name           string     `json:"name" db:"name"`
	MIMEType       string     `json:"mime_type" db:"mime_type"`
	SizeBytes      int64      `json:"size_bytes" db:"size_bytes"`
	StorageKey     string     `json:"-" db:"storage_key"`
	FolderID       *int64     `json:"folder_id,omitempty" db:"folder_id"`
	CanEdit        bool       `json:"can_edit" db:"can_edit"`
	CurrentVersion int        `json:"current_version" db:"current_version"`
	CreatedAt      time.Time  `json:"created_at" db:"created_at"`
	UpdatedAt      time.Time  `json:"updated_at" db:"updated_at"`
	DeletedAt      *time.Time `json:"deleted_at,omitempty" db:"deleted_at"`
}

// FileFilter — параметры выборки файлов пользователя.
type FileFilter struct {
	FolderID *int64
	MIMEType string
	Search   string
	Limit    int
	Offset   int
}

type DownloadLink struct {
	URL       string `json:"url"`
	ExpiresIn int64  `json:"expires_in"`
}
