package service

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"studydrive/internal/courses"
	"studydrive/internal/domain"
	"studydrive/internal/service/s3"
)

// downloadURLTTL — фиксированный срок действия подписанной ссылки
const downloadURLTTL = 3600 * time.Second

type enrollmentChecker interface {
	GetSharedFile(ctx context.Context, fileID uuid.UUID) (*courses.SharedFile, error)
	CheckEnrollment(ctx context.Context, userID, courseID string) (bool, error)
}

// AccessService выдает временные ссылки на скачивание. Ничего не мутирует
// и не трогает квоту: только проверка прав и подпись ключа.
type AccessService struct {
	fileRepo fileStore
	courses  enrollmentChecker
	s3Client s3.Storage
}

func NewAccessService(fileRepo fileStore, coursesClient enrollmentChecker, s3Client s3.Storage) *AccessService {
	return &AccessService{
		fileRepo: fileRepo,
		courses:  coursesClient,
		s3Client: s3Client,
	}
}

// GetDownloadURL проверяет владение файлом либо запись на курс исходного
// файла и возвращает подписанную ссылку. Ключ хранения наружу не уходит.
func (s *AccessService) GetDownloadURL(ctx context.Context, fileUUID uuid.UUID, callerID string) (*domain.DownloadLink, error) {
	file, err := s.fileRepo.GetByUUID(ctx, fileUUID)
	if err != nil {
		return nil, err
	}
	if file.DeletedAt != nil {
		return nil, fmt.Errorf("file %s is deleted: %w", fileUUID, domain.ErrNotFound)
	}

	if file.OwnerID != callerID {
		allowed, checkErr := s.checkCourseAccess(ctx, file, callerID)
		if checkErr != nil {
			return nil, checkErr
		}
		if !allowed {
			return nil, fmt.Errorf("download of %s denied: %w", fileUUID, domain.ErrForbidden)
		}
	}

	url, err := s.s3Client.PresignGetObject(ctx, file.StorageKey, file.Name, downloadURLTTL)
	if err != nil {
		return nil, fmt.Errorf("failed to presign download: %w", err)
	}

	return &domain.DownloadLink{
		URL:       url,
		ExpiresIn: int64(downloadURLTTL.Seconds()),
	}, nil
}

// checkCourseAccess разрешает скачивание не-владельцу только для копий
// файлов курса, на который он записан.
func (s *AccessService) checkCourseAccess(ctx context.Context, file *domain.PersonalFile, callerID string) (bool, error) {
	if file.OriginalFileID == nil {
		return false, nil
	}

	source, err := s.courses.GetSharedFile(ctx, *file.OriginalFileID)
	if err != nil {
		// Источник исчез — доступ только владельцу
		return false, nil
	}

	enrolled, err := s.courses.CheckEnrollment(ctx, callerID, source.CourseID)
	if err != nil {
		return false, fmt.Errorf("failed to check enrollment: %w", err)
	}

	return enrolled, nil
}
