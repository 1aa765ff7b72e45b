package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/jmoiron/sqlx"

	"studydrive/internal/domain"
)

type FolderRepository struct {
	db *sqlx.DB
}

func NewFolderRepository(db *sqlx.DB) *FolderRepository {
	return &FolderRepository{db: db}
}

func (r *FolderRepository) Create(ctx context.Context, folder *domain.Folder) error {
	// Путь собирается от родителя; у корневой папки путь "/"
	if folder.Path == "" {
		folder.Path = "/" + folder.Name
		if folder.ParentID != nil {
			parent, err := r.GetByID(ctx, *folder.ParentID)
			if err != nil {
				return fmt.Errorf("failed to get parent folder: %w", err)
			}
			folder.Path = strings.TrimRight(parent.Path, "/") + "/" + folder.Name
		}
	}

	query := `
        INSERT INTO folders (name, owner_id, parent_id, path)
        VALUES ($1, $2, $3, $4)
        RETURNING id, created_at, updated_at`

	err := r.db.QueryRowContext(ctx, query,
		folder.Name,
		folder.OwnerID,
		folder.ParentID,
		folder.Path,
	).Scan(&folder.ID, &folder.CreatedAt, &folder.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to create folder: %w", err)
	}

	return nil
}

func (r *FolderRepository) GetByID(ctx context.Context, id int64) (*domain.Folder, error) {
	var folder domain.Folder
	err := r.db.GetContext(ctx, &folder, `SELECT * FROM folders WHERE id = $1`, id)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, fmt.Errorf("folder %d: %w", id, domain.ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get folder: %w", err)
	}

	return &folder, nil
}

// GetOrCreateRoot возвращает корневую папку пользователя, создавая ее
// при первом обращении.
func (r *FolderRepository) GetOrCreateRoot(ctx context.Context, ownerID string) (*domain.Folder, error) {
	var folder domain.Folder
	err := r.db.GetContext(ctx, &folder,
		`SELECT * FROM folders WHERE owner_id = $1 AND parent_id IS NULL AND name = 'Root' LIMIT 1`,
		ownerID)
	if err == nil {
		return &folder, nil
	}
	if err != sql.ErrNoRows {
		return nil, fmt.Errorf("failed to get root folder: %w", err)
	}

	folder = domain.Folder{
		Name:    "Root",
		OwnerID: ownerID,
		Path:    "/",
	}
	if err := r.Create(ctx, &folder); err != nil {
		return nil, fmt.Errorf("failed to create root folder: %w", err)
	}

	return &folder, nil
}

func (r *FolderRepository) ListByOwner(ctx context.Context, ownerID string) ([]domain.Folder, error) {
	var folders []domain.Folder
	err := r.db.SelectContext(ctx, &folders,
		`SELECT * FROM folders WHERE owner_id = $1 ORDER BY path`,
		ownerID)
	if err != nil {
		return nil, fmt.Errorf("failed to list folders: %w", err)
	}

	return folders, nil
}
