package service

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"studydrive/internal/domain"
)

type lineageReader interface {
	HistoryFor(ctx context.Context, fileUUID uuid.UUID) ([]domain.ModificationEvent, error)
	TreeFor(ctx context.Context, ownerID string, courseID *string) ([]domain.LineageNode, error)
}

// LineageService отдает историю изменений. Журнал только читается:
// единственный путь записи — Append в оркестраторе.
type LineageService struct {
	lineageRepo lineageReader
	fileRepo    fileStore
}

func NewLineageService(lineageRepo lineageReader, fileRepo fileStore) *LineageService {
	return &LineageService{
		lineageRepo: lineageRepo,
		fileRepo:    fileRepo,
	}
}

// HistoryFor возвращает события файла от старых к новым. Файл может быть
// мягко удален — история остается доступной, но чужие файлы не видны.
func (s *LineageService) HistoryFor(ctx context.Context, fileUUID uuid.UUID, callerID string) ([]domain.ModificationEvent, error) {
	file, err := s.fileRepo.GetByUUID(ctx, fileUUID)
	if err != nil {
		return nil, err
	}
	if file.OwnerID != callerID {
		return nil, fmt.Errorf("file %s belongs to another user: %w", fileUUID, domain.ErrForbidden)
	}

	events, err := s.lineageRepo.HistoryFor(ctx, fileUUID)
	if err != nil {
		return nil, err
	}

	return events, nil
}

// TreeFor возвращает дерево изменений пользователя, при необходимости
// ограниченное одним курсом.
func (s *LineageService) TreeFor(ctx context.Context, userID string, courseID *string) ([]domain.LineageNode, error) {
	return s.lineageRepo.TreeFor(ctx, userID, courseID)
}
