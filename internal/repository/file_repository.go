package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"studydrive/internal/domain"
)

const defaultListLimit = 100

type FileRepository struct {
	db *sqlx.DB
}

func NewFileRepository(db *sqlx.DB) *FileRepository {
	return &FileRepository{db: db}
}

func (r *FileRepository) Create(ctx context.Context, file *domain.PersonalFile) error {
	query := `
        INSERT INTO files (uuid, owner_id, original_file_id, name, mime_type, size_bytes, storage_key, folder_id, can_edit, current_version)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
        RETURNING created_at, updated_at`

	err := r.db.QueryRowContext(
		ctx,
		query,
		file.UUID,
		file.OwnerID,
		file.OriginalFileID,
		file.Name,
		file.MIMEType,
		file.SizeBytes,
		file.StorageKey,
		file.FolderID,
		file.CanEdit,
		file.CurrentVersion,
	).Scan(&file.CreatedAt, &file.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to create file: %w", err)
	}

	return nil
}

// GetByUUID возвращает файл независимо от пометки удаления: UUID остается
// валидным для истории изменений. Вызывающий сам решает, что делать
// с deleted_at.
func (r *FileRepository) GetByUUID(ctx context.Context, fileUUID uuid.UUID) (*domain.PersonalFile, error) {
	var file domain.PersonalFile
	err := r.db.GetContext(ctx, &file, `SELECT * FROM files WHERE uuid = $1`, fileUUID)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, fmt.Errorf("file %s: %w", fileUUID, domain.ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get file: %w", err)
	}

	return &file, nil
}

// Rename меняет имя файла. Условие по updated_at защищает от гонки
// с параллельным rename/move: проигравший получает ErrConflict.
func (r *FileRepository) Rename(ctx context.Context, fileUUID uuid.UUID, newName string, prevUpdatedAt time.Time) (*domain.PersonalFile, error) {
	var file domain.PersonalFile
	err := r.db.GetContext(ctx, &file, `
        UPDATE files
        SET name = $1,
            updated_at = CURRENT_TIMESTAMP
        WHERE uuid = $2
          AND deleted_at IS NULL
          AND updated_at = $3
        RETURNING *`,
		newName, fileUUID, prevUpdatedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, fmt.Errorf("rename of %s lost to concurrent update: %w", fileUUID, domain.ErrConflict)
		}
		return nil, fmt.Errorf("failed to rename file: %w", err)
	}

	return &file, nil
}

// UpdateFolder переносит файл в другую папку, с той же защитой от гонок.
func (r *FileRepository) UpdateFolder(ctx context.Context, fileUUID uuid.UUID, folderID *int64, prevUpdatedAt time.Time) (*domain.PersonalFile, error) {
	var file domain.PersonalFile
	err := r.db.GetContext(ctx, &file, `
        UPDATE files
        SET folder_id = $1,
            updated_at = CURRENT_TIMESTAMP
        WHERE uuid = $2
          AND deleted_at IS NULL
          AND updated_at = $3
        RETURNING *`,
		folderID, fileUUID, prevUpdatedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, fmt.Errorf("move of %s lost to concurrent update: %w", fileUUID, domain.ErrConflict)
		}
		return nil, fmt.Errorf("failed to move file: %w", err)
	}

	return &file, nil
}

// SoftDelete помечает файл удаленным и возвращает освобожденные байты.
// Повторное удаление — no-op: возвращается записанный размер
// и alreadyDeleted = true, чтобы квота не уменьшалась дважды.
func (r *FileRepository) SoftDelete(ctx context.Context, fileUUID uuid.UUID) (freedBytes int64, alreadyDeleted bool, err error) {
	err = r.db.QueryRowContext(ctx, `
        UPDATE files
        SET deleted_at = CURRENT_TIMESTAMP,
            updated_at = CURRENT_TIMESTAMP
        WHERE uuid = $1 AND deleted_at IS NULL
        RETURNING size_bytes`,
		fileUUID,
	).Scan(&freedBytes)
	if err == nil {
		return freedBytes, false, nil
	}
	if err != sql.ErrNoRows {
		return 0, false, fmt.Errorf("failed to delete file: %w", err)
	}

	// Либо файла нет, либо он уже удален
	var sizeBytes int64
	var deletedAt *time.Time
	err = r.db.QueryRowContext(ctx,
		`SELECT size_bytes, deleted_at FROM files WHERE uuid = $1`,
		fileUUID,
	).Scan(&sizeBytes, &deletedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return 0, false, fmt.Errorf("file %s: %w", fileUUID, domain.ErrNotFound)
		}
		return 0, false, fmt.Errorf("failed to check file state: %w", err)
	}

	return sizeBytes, true, nil
}

// HardDelete удаляет запись реестра. Используется только как компенсация
// при откате незавершенной загрузки.
func (r *FileRepository) HardDelete(ctx context.Context, fileUUID uuid.UUID) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM files WHERE uuid = $1`, fileUUID)
	if err != nil {
		return fmt.Errorf("failed to hard delete file: %w", err)
	}
	return nil
}

// List возвращает неудаленные файлы пользователя, отсортированные по
// created_at DESC, с фильтрами по папке, типу и подстроке имени.
func (r *FileRepository) List(ctx context.Context, ownerID string, filter domain.FileFilter) ([]domain.PersonalFile, error) {
	conditions := []string{"owner_id = $1", "deleted_at IS NULL"}
	args := []interface{}{ownerID}

	if filter.FolderID != nil {
		args = append(args, *filter.FolderID)
		conditions = append(conditions, fmt.Sprintf("folder_id = $%d", len(args)))
	}
	if filter.MIMEType != "" {
		args = append(args, filter.MIMEType+"%")
		conditions = append(conditions, fmt.Sprintf("mime_type LIKE $%d", len(args)))
	}
	if filter.Search != "" {
		args = append(args, "%"+filter.Search+"%")
		conditions = append(conditions, fmt.Sprintf("name ILIKE $%d", len(args)))
	}

	limit := filter.Limit
	if limit <= 0 {
		limit = defaultListLimit
	}
	args = append(args, limit)
	limitClause := fmt.Sprintf("LIMIT $%d", len(args))
	args = append(args, filter.Offset)
	offsetClause := fmt.Sprintf("OFFSET $%d", len(args))

	query := fmt.Sprintf(
		`SELECT * FROM files WHERE %s ORDER BY created_at DESC %s %s`,
		strings.Join(conditions, " AND "), limitClause, offsetClause)

	var files []domain.PersonalFile
	if err := r.db.SelectContext(ctx, &files, query, args...); err != nil {
		return nil, fmt.Errorf("failed to list files: %w", err)
	}

	return files, nil
}
