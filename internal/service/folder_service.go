package service

import (
	"context"
	"fmt"
	"strings"

	"studydrive/internal/domain"
)

type folderAdmin interface {
	folderStore
	Create(ctx context.Context, folder *domain.Folder) error
	ListByOwner(ctx context.Context, ownerID string) ([]domain.Folder, error)
}

// FolderService — тонкий слой над реестром папок: папки здесь только
// размещение файлов, без собственных прав и шаринга.
type FolderService struct {
	folderRepo folderAdmin
}

func NewFolderService(folderRepo folderAdmin) *FolderService {
	return &FolderService{folderRepo: folderRepo}
}

func (s *FolderService) CreateFolder(ctx context.Context, userID, name string, parentID *int64) (*domain.Folder, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, fmt.Errorf("%w: empty folder name", errInvalidFile)
	}

	if parentID == nil {
		root, err := s.folderRepo.GetOrCreateRoot(ctx, userID)
		if err != nil {
			return nil, err
		}
		parentID = &root.ID
	} else {
		parent, err := s.folderRepo.GetByID(ctx, *parentID)
		if err != nil {
			return nil, err
		}
		if parent.OwnerID != userID {
			return nil, fmt.Errorf("folder %d belongs to another user: %w", *parentID, domain.ErrForbidden)
		}
	}

	folder := &domain.Folder{
		Name:     name,
		OwnerID:  userID,
		ParentID: parentID,
	}
	if err := s.folderRepo.Create(ctx, folder); err != nil {
		return nil, err
	}

	return folder, nil
}

func (s *FolderService) ListFolders(ctx context.Context, userID string) ([]domain.Folder, error) {
	return s.folderRepo.ListByOwner(ctx, userID)
}
