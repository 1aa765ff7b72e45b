package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"mime/multipart"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"studydrive/internal/courses"
	"studydrive/internal/domain"
	"studydrive/internal/metrics"
	"studydrive/internal/service/s3"
)

const (
	// Максимальное число попыток записи в блоб-хранилище до возврата
	// ошибки вызывающему
	maxStorageRetries = 3
	// Попытки записи события после уже зафиксированной операции
	maxLineageRetries = 3
)

var errInvalidFile = errors.New("invalid file")

type fileStore interface {
	Create(ctx context.Context, file *domain.PersonalFile) error
	GetByUUID(ctx context.Context, fileUUID uuid.UUID) (*domain.PersonalFile, error)
	Rename(ctx context.Context, fileUUID uuid.UUID, newName string, prevUpdatedAt time.Time) (*domain.PersonalFile, error)
	UpdateFolder(ctx context.Context, fileUUID uuid.UUID, folderID *int64, prevUpdatedAt time.Time) (*domain.PersonalFile, error)
	SoftDelete(ctx context.Context, fileUUID uuid.UUID) (int64, bool, error)
	HardDelete(ctx context.Context, fileUUID uuid.UUID) error
	List(ctx context.Context, ownerID string, filter domain.FileFilter) ([]domain.PersonalFile, error)
}

type folderStore interface {
	GetByID(ctx context.Context, id int64) (*domain.Folder, error)
	GetOrCreateRoot(ctx context.Context, ownerID string) (*domain.Folder, error)
}

type lineageStore interface {
	Append(ctx context.Context, event *domain.ModificationEvent) (*domain.ModificationEvent, error)
}

type quotaLedger interface {
	Reserve(ctx context.Context, ownerID string, bytes int64) (*domain.QuotaReservation, error)
	Commit(ctx context.Context, reservation *domain.QuotaReservation) error
	Release(ctx context.Context, reservation *domain.QuotaReservation) error
	ReleaseUsed(ctx context.Context, ownerID string, bytes int64) error
}

type courseCatalog interface {
	GetSharedFile(ctx context.Context, fileID uuid.UUID) (*courses.SharedFile, error)
}

// FileService — оркестратор личного хранилища. Единственный компонент,
// который в одной операции трогает сразу квоту, блоб-хранилище, реестр
// и журнал изменений. Порядок всегда один: резервация квоты — первый
// побочный эффект, фиксация резервации — последний; событие пишется после
// того, как все остальное надежно завершилось.
type FileService struct {
	fileRepo     fileStore
	folderRepo   folderStore
	lineageRepo  lineageStore
	s3Client     s3.Storage
	quotaService quotaLedger
	courses      courseCatalog
}

func NewFileService(
	fileRepo fileStore,
	folderRepo folderStore,
	lineageRepo lineageStore,
	s3Client s3.Storage,
	quotaService quotaLedger,
	coursesClient courseCatalog,
) *FileService {
	return &FileService{
		fileRepo:     fileRepo,
		folderRepo:   folderRepo,
		lineageRepo:  lineageRepo,
		s3Client:     s3Client,
		quotaService: quotaService,
		courses:      coursesClient,
	}
}

// UploadFile загружает личный файл пользователя.
// Последовательность: резерв квоты → запись блоба → запись в реестр →
// фиксация резервации → событие create.
func (s *FileService) UploadFile(
	ctx context.Context,
	header *multipart.FileHeader,
	file multipart.File,
	folderID *int64,
	userID string,
) (result *domain.PersonalFile, err error) {
	defer func() { metrics.ObserveOperation("upload", err) }()

	if header == nil || file == nil || userID == "" {
		return nil, fmt.Errorf("%w: missing required parameters", errInvalidFile)
	}
	if header.Size < 0 {
		return nil, fmt.Errorf("%w: negative size", errInvalidFile)
	}

	folder, err := s.resolveFolder(ctx, userID, folderID)
	if err != nil {
		return nil, err
	}

	reservation, err := s.quotaService.Reserve(ctx, userID, header.Size)
	if err != nil {
		if errors.Is(err, domain.ErrQuotaExceeded) {
			metrics.ObserveQuotaExceeded()
		}
		return nil, err
	}

	fileUUID := uuid.New()
	storageKey := fmt.Sprintf("personal_study_files/%s/%s", userID, fileUUID.String())

	contentType := header.Header.Get("Content-Type")
	if contentType == "" {
		contentType = "application/octet-stream"
	}

	// Блоб пишется вне каких-либо блокировок: резервация уже взята,
	// медленный ввод-вывод не сериализует других пользователей
	if uploadErr := s.uploadWithRetry(storageKey, &file); uploadErr != nil {
		s.releaseReservation(ctx, reservation)
		return nil, fmt.Errorf("%w: %v", domain.ErrStorageWrite, uploadErr)
	}

	newFile := &domain.PersonalFile{
		UUID:           fileUUID,
		OwnerID:        userID,
		Name:           filepath.Clean(header.Filename),
		MIMEType:       contentType,
		SizeBytes:      header.Size,
		StorageKey:     storageKey,
		FolderID:       &folder.ID,
		CanEdit:        true,
		CurrentVersion: 1,
	}

	if createErr := s.fileRepo.Create(ctx, newFile); createErr != nil {
		// Компенсация: блоб уже записан, его нужно убрать до возврата ошибки
		s.cleanupObject(storageKey)
		s.releaseReservation(ctx, reservation)
		return nil, fmt.Errorf("failed to create file record: %w", createErr)
	}

	if commitErr := s.quotaService.Commit(ctx, reservation); commitErr != nil {
		// Резервация истекла раньше фиксации — откатываем загрузку целиком
		s.cleanupObject(storageKey)
		if delErr := s.fileRepo.HardDelete(ctx, fileUUID); delErr != nil {
			log.Printf("[FileService] failed to roll back file record %s: %v", fileUUID, delErr)
		}
		return nil, fmt.Errorf("failed to commit reservation: %w", commitErr)
	}

	s.appendEvent(ctx, &domain.ModificationEvent{
		OperationID: uuid.New(),
		FileUUID:    fileUUID,
		OwnerID:     userID,
		Action:      domain.ActionCreate,
		NewName:     &newFile.Name,
		NewPath:     &folder.Path,
		Metadata: domain.EventMetadata{
			"size_bytes": newFile.SizeBytes,
			"mime_type":  newFile.MIMEType,
		},
		CreatedBy: userID,
	})

	return newFile, nil
}

// CreatePersonalCopy создает персональную копию общего файла курса.
// Размер источника известен до копирования, поэтому квота проверяется
// раньше, чем хранилище начнет дублировать блоб.
func (s *FileService) CreatePersonalCopy(
	ctx context.Context,
	userID string,
	sourceFileID uuid.UUID,
	targetFolderID *int64,
	newName string,
) (result *domain.PersonalFile, err error) {
	defer func() { metrics.ObserveOperation("copy", err) }()

	if userID == "" {
		return nil, fmt.Errorf("%w: missing user id", errInvalidFile)
	}

	source, err := s.courses.GetSharedFile(ctx, sourceFileID)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve source file: %w", err)
	}

	folder, err := s.resolveFolder(ctx, userID, targetFolderID)
	if err != nil {
		return nil, err
	}

	reservation, err := s.quotaService.Reserve(ctx, userID, source.SizeBytes)
	if err != nil {
		if errors.Is(err, domain.ErrQuotaExceeded) {
			metrics.ObserveQuotaExceeded()
		}
		return nil, err
	}

	fileUUID := uuid.New()
	storageKey := fmt.Sprintf("personal_study_files/%s/%s", userID, fileUUID.String())

	if copyErr := s.copyWithRetry(ctx, source.StorageKey, storageKey); copyErr != nil {
		s.releaseReservation(ctx, reservation)
		return nil, fmt.Errorf("%w: %v", domain.ErrStorageWrite, copyErr)
	}

	name := newName
	if name == "" {
		name = source.Name
	}

	sourceID := sourceFileID
	newFile := &domain.PersonalFile{
		UUID:           fileUUID,
		OwnerID:        userID,
		OriginalFileID: &sourceID,
		Name:           filepath.Clean(name),
		MIMEType:       source.MIMEType,
		SizeBytes:      source.SizeBytes,
		StorageKey:     storageKey,
		FolderID:       &folder.ID,
		CanEdit:        true,
		CurrentVersion: 1,
	}

	if createErr := s.fileRepo.Create(ctx, newFile); createErr != nil {
		s.cleanupObject(storageKey)
		s.releaseReservation(ctx, reservation)
		return nil, fmt.Errorf("failed to create file record: %w", createErr)
	}

	if commitErr := s.quotaService.Commit(ctx, reservation); commitErr != nil {
		s.cleanupObject(storageKey)
		if delErr := s.fileRepo.HardDelete(ctx, fileUUID); delErr != nil {
			log.Printf("[FileService] failed to roll back file record %s: %v", fileUUID, delErr)
		}
		return nil, fmt.Errorf("failed to commit reservation: %w", commitErr)
	}

	courseID := source.CourseID
	s.appendEvent(ctx, &domain.ModificationEvent{
		OperationID: uuid.New(),
		FileUUID:    fileUUID,
		OwnerID:     userID,
		CourseID:    &courseID,
		Action:      domain.ActionCopy,
		OldName:     &source.Name,
		NewName:     &newFile.Name,
		NewPath:     &folder.Path,
		Metadata: domain.EventMetadata{
			"source_file_id": sourceFileID.String(),
			"size_bytes":     source.SizeBytes,
		},
		CreatedBy: userID,
	})

	return newFile, nil
}

// RenameFile переименовывает файл. Квота не затрагивается. Для файлов
// с can_edit = false возвращается ErrForbidden, событие не пишется.
func (s *FileService) RenameFile(ctx context.Context, userID string, fileUUID uuid.UUID, newName string) (result *domain.PersonalFile, err error) {
	defer func() { metrics.ObserveOperation("rename", err) }()

	newName = filepath.Clean(newName)
	if newName == "" || newName == "." {
		return nil, fmt.Errorf("%w: empty name", errInvalidFile)
	}

	file, err := s.getOwnedFile(ctx, fileUUID, userID)
	if err != nil {
		return nil, err
	}
	if !file.CanEdit {
		return nil, fmt.Errorf("file %s is not editable: %w", fileUUID, domain.ErrForbidden)
	}

	oldName := file.Name
	updated, err := s.fileRepo.Rename(ctx, fileUUID, newName, file.UpdatedAt)
	if err != nil {
		return nil, err
	}

	s.appendEvent(ctx, &domain.ModificationEvent{
		OperationID: uuid.New(),
		FileUUID:    fileUUID,
		OwnerID:     userID,
		Action:      domain.ActionRename,
		OldName:     &oldName,
		NewName:     &updated.Name,
		CreatedBy:   userID,
	})

	return updated, nil
}

// MoveFile переносит файл в другую папку пользователя.
func (s *FileService) MoveFile(ctx context.Context, userID string, fileUUID uuid.UUID, targetFolderID int64) (result *domain.PersonalFile, err error) {
	defer func() { metrics.ObserveOperation("move", err) }()

	file, err := s.getOwnedFile(ctx, fileUUID, userID)
	if err != nil {
		return nil, err
	}

	targetFolder, err := s.folderRepo.GetByID(ctx, targetFolderID)
	if err != nil {
		return nil, err
	}
	if targetFolder.OwnerID != userID {
		return nil, fmt.Errorf("folder %d belongs to another user: %w", targetFolderID, domain.ErrForbidden)
	}

	oldPath := "/"
	if file.FolderID != nil {
		oldFolder, folderErr := s.folderRepo.GetByID(ctx, *file.FolderID)
		if folderErr == nil {
			oldPath = oldFolder.Path
		}
	}

	updated, err := s.fileRepo.UpdateFolder(ctx, fileUUID, &targetFolder.ID, file.UpdatedAt)
	if err != nil {
		return nil, err
	}

	s.appendEvent(ctx, &domain.ModificationEvent{
		OperationID: uuid.New(),
		FileUUID:    fileUUID,
		OwnerID:     userID,
		Action:      domain.ActionMove,
		OldPath:     &oldPath,
		NewPath:     &targetFolder.Path,
		CreatedBy:   userID,
	})

	return updated, nil
}

// DeleteFile мягко удаляет файл и освобождает его вклад в квоту.
// Повторное удаление — no-op. История файла остается доступной.
func (s *FileService) DeleteFile(ctx context.Context, userID string, fileUUID uuid.UUID) (err error) {
	defer func() { metrics.ObserveOperation("delete", err) }()

	file, err := s.getOwnedFile(ctx, fileUUID, userID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) && file != nil {
			// Уже удален — идемпотентный успех
			return nil
		}
		return err
	}

	freedBytes, alreadyDeleted, err := s.fileRepo.SoftDelete(ctx, fileUUID)
	if err != nil {
		return err
	}
	if alreadyDeleted {
		return nil
	}

	if releaseErr := s.quotaService.ReleaseUsed(ctx, userID, freedBytes); releaseErr != nil {
		return fmt.Errorf("file deleted but quota release failed: %w", releaseErr)
	}

	oldName := file.Name
	s.appendEvent(ctx, &domain.ModificationEvent{
		OperationID: uuid.New(),
		FileUUID:    fileUUID,
		OwnerID:     userID,
		Action:      domain.ActionDelete,
		OldName:     &oldName,
		Metadata: domain.EventMetadata{
			"freed_bytes": freedBytes,
		},
		CreatedBy: userID,
	})

	return nil
}

// ListFiles возвращает файлы пользователя по фильтру.
func (s *FileService) ListFiles(ctx context.Context, userID string, filter domain.FileFilter) ([]domain.PersonalFile, error) {
	return s.fileRepo.List(ctx, userID, filter)
}

// getOwnedFile достает файл и проверяет владение. Для мягко удаленного
// файла возвращается сам файл вместе с ErrNotFound, чтобы DeleteFile мог
// отработать идемпотентно.
func (s *FileService) getOwnedFile(ctx context.Context, fileUUID uuid.UUID, userID string) (*domain.PersonalFile, error) {
	file, err := s.fileRepo.GetByUUID(ctx, fileUUID)
	if err != nil {
		return nil, err
	}
	if file.OwnerID != userID {
		return nil, fmt.Errorf("file %s belongs to another user: %w", fileUUID, domain.ErrForbidden)
	}
	if file.DeletedAt != nil {
		return file, fmt.Errorf("file %s is deleted: %w", fileUUID, domain.ErrNotFound)
	}
	return file, nil
}

func (s *FileService) resolveFolder(ctx context.Context, userID string, folderID *int64) (*domain.Folder, error) {
	if folderID == nil {
		return s.folderRepo.GetOrCreateRoot(ctx, userID)
	}

	folder, err := s.folderRepo.GetByID(ctx, *folderID)
	if err != nil {
		return nil, err
	}
	if folder.OwnerID != userID {
		return nil, fmt.Errorf("folder %d belongs to another user: %w", *folderID, domain.ErrForbidden)
	}

	return folder, nil
}

func (s *FileService) uploadWithRetry(key string, file *multipart.File) error {
	var err error
	for attempt := 1; attempt <= maxStorageRetries; attempt++ {
		if attempt > 1 {
			if seeker, ok := (*file).(io.Seeker); ok {
				if _, seekErr := seeker.Seek(0, io.SeekStart); seekErr != nil {
					return fmt.Errorf("failed to rewind upload: %w", seekErr)
				}
			}
			time.Sleep(time.Duration(attempt-1) * time.Second)
		}

		if err = s.s3Client.UploadFile(key, file); err == nil {
			return nil
		}
		log.Printf("[FileService] upload attempt %d/%d for %s failed: %v", attempt, maxStorageRetries, key, err)
	}

	return err
}

func (s *FileService) copyWithRetry(ctx context.Context, sourceKey, destKey string) error {
	var err error
	for attempt := 1; attempt <= maxStorageRetries; attempt++ {
		if attempt > 1 {
			time.Sleep(time.Duration(attempt-1) * time.Second)
		}

		if err = s.s3Client.CopyObject(ctx, sourceKey, destKey); err == nil {
			return nil
		}
		log.Printf("[FileService] copy attempt %d/%d for %s failed: %v", attempt, maxStorageRetries, destKey, err)
	}

	return err
}

// cleanupObject убирает блоб при откате. Неудачная очистка логируется,
// но не меняет исход операции для вызывающего.
func (s *FileService) cleanupObject(key string) {
	if err := s.s3Client.DeleteObject(key); err != nil {
		log.Printf("[FileService] failed to clean up object %s after rollback: %v", key, err)
	}
}

func (s *FileService) releaseReservation(ctx context.Context, reservation *domain.QuotaReservation) {
	if err := s.quotaService.Release(ctx, reservation); err != nil {
		log.Printf("[FileService] failed to release reservation %s: %v", reservation.ID, err)
	}
}

// appendEvent пишет событие после того, как сама операция уже надежно
// завершилась. Повторная вставка безопасна благодаря operation_id, поэтому
// при ошибке делаем несколько попыток; если журнал так и не принял
// событие — операция для вызывающего все равно успешна, проблему видно
// в логах.
func (s *FileService) appendEvent(ctx context.Context, event *domain.ModificationEvent) {
	var err error
	for attempt := 1; attempt <= maxLineageRetries; attempt++ {
		if attempt > 1 {
			time.Sleep(time.Duration(attempt-1) * 500 * time.Millisecond)
		}

		if _, err = s.lineageRepo.Append(ctx, event); err == nil {
			return
		}
	}

	log.Printf("[FileService] failed to append %s event for file %s: %v", event.Action, event.FileUUID, err)
}
