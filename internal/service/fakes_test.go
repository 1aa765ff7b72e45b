package service

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/textproto"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"studydrive/internal/courses"
	"studydrive/internal/domain"
	"studydrive/internal/service/s3"
)

// Фейки в стиле in-memory репозиториев: реализуют узкие интерфейсы
// сервисов без базы и без сети.

type fakeQuotaStore struct {
	mu           sync.Mutex
	quotas       map[string]*domain.StorageQuota
	reservations map[uuid.UUID]*domain.QuotaReservation
}

func newFakeQuotaStore() *fakeQuotaStore {
	return &fakeQuotaStore{
		quotas:       make(map[string]*domain.StorageQuota),
		reservations: make(map[uuid.UUID]*domain.QuotaReservation),
	}
}

func (f *fakeQuotaStore) GetQuota(ctx context.Context, ownerID string) (*domain.StorageQuota, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	quota, ok := f.quotas[ownerID]
	if !ok {
		quota = &domain.StorageQuota{
			ID:              int64(len(f.quotas) + 1),
			OwnerID:         ownerID,
			TotalBytesLimit: domain.DefaultQuotaBytes,
			CreatedAt:       time.Now(),
			UpdatedAt:       time.Now(),
		}
		f.quotas[ownerID] = quota
	}

	copied := *quota
	return &copied, nil
}

func (f *fakeQuotaStore) Reserve(ctx context.Context, ownerID string, bytes int64, ttl time.Duration) (*domain.QuotaReservation, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	quota, ok := f.quotas[ownerID]
	if !ok {
		return nil, fmt.Errorf("quota for %s: %w", ownerID, domain.ErrNotFound)
	}
	if quota.UsedBytes+quota.ReservedBytes+bytes > quota.TotalBytesLimit {
		return nil, fmt.Errorf("cannot reserve %d bytes: %w", bytes, domain.ErrQuotaExceeded)
	}

	reservation := &domain.QuotaReservation{
		ID:        uuid.New(),
		OwnerID:   ownerID,
		SizeBytes: bytes,
		CreatedAt: time.Now(),
		ExpiresAt: time.Now().Add(ttl),
	}
	quota.ReservedBytes += bytes
	f.reservations[reservation.ID] = reservation

	copied := *reservation
	return &copied, nil
}

func (f *fakeQuotaStore) Commit(ctx context.Context, reservationID uuid.UUID) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	reservation, ok := f.reservations[reservationID]
	if !ok {
		return fmt.Errorf("reservation %s expired before commit: %w", reservationID, domain.ErrConflict)
	}
	delete(f.reservations, reservationID)

	quota := f.quotas[reservation.OwnerID]
	quota.ReservedBytes -= reservation.SizeBytes
	quota.UsedBytes += reservation.SizeBytes
	return nil
}

func (f *fakeQuotaStore) Release(ctx context.Context, reservationID uuid.UUID) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	reservation, ok := f.reservations[reservationID]
	if !ok {
		return nil
	}
	delete(f.reservations, reservationID)
	f.quotas[reservation.OwnerID].ReservedBytes -= reservation.SizeBytes
	return nil
}

func (f *fakeQuotaStore) ReleaseUsed(ctx context.Context, ownerID string, bytes int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	quota, ok := f.quotas[ownerID]
	if !ok {
		return nil
	}
	quota.UsedBytes -= bytes
	if quota.UsedBytes < 0 {
		quota.UsedBytes = 0
	}
	return nil
}

func (f *fakeQuotaStore) ReleaseExpired(ctx context.Context) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	var released int64
	now := time.Now()
	for id, reservation := range f.reservations {
		if reservation.ExpiresAt.Before(now) {
			f.quotas[reservation.OwnerID].ReservedBytes -= reservation.SizeBytes
			delete(f.reservations, id)
			released++
		}
	}
	return released, nil
}

func (f *fakeQuotaStore) UpdateQuotaLimit(ctx context.Context, ownerID string, newLimit int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	quota, ok := f.quotas[ownerID]
	if !ok {
		return fmt.Errorf("quota for %s: %w", ownerID, domain.ErrNotFound)
	}
	quota.TotalBytesLimit = newLimit
	return nil
}

func (f *fakeQuotaStore) setLimit(ownerID string, limit int64) {
	f.mu.Lock()
	defer f.mu.Unlock()

	quota, ok := f.quotas[ownerID]
	if !ok {
		quota = &domain.StorageQuota{OwnerID: ownerID}
		f.quotas[ownerID] = quota
	}
	quota.TotalBytesLimit = limit
}

func (f *fakeQuotaStore) snapshot(ownerID string) (used, reserved int64) {
	f.mu.Lock()
	defer f.mu.Unlock()

	quota, ok := f.quotas[ownerID]
	if !ok {
		return 0, 0
	}
	return quota.UsedBytes, quota.ReservedBytes
}

type fakeFileStore struct {
	mu          sync.Mutex
	files       map[uuid.UUID]*domain.PersonalFile
	createErr   error
	hardDeleted []uuid.UUID
}

func newFakeFileStore() *fakeFileStore {
	return &fakeFileStore{files: make(map[uuid.UUID]*domain.PersonalFile)}
}

func (f *fakeFileStore) Create(ctx context.Context, file *domain.PersonalFile) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.createErr != nil {
		return f.createErr
	}

	now := time.Now()
	file.CreatedAt = now
	file.UpdatedAt = now
	copied := *file
	f.files[file.UUID] = &copied
	return nil
}

func (f *fakeFileStore) GetByUUID(ctx context.Context, fileUUID uuid.UUID) (*domain.PersonalFile, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	file, ok := f.files[fileUUID]
	if !ok {
		return nil, fmt.Errorf("file %s: %w", fileUUID, domain.ErrNotFound)
	}
	copied := *file
	return &copied, nil
}

func (f *fakeFileStore) Rename(ctx context.Context, fileUUID uuid.UUID, newName string, prevUpdatedAt time.Time) (*domain.PersonalFile, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	file, ok := f.files[fileUUID]
	if !ok || file.DeletedAt != nil || !file.UpdatedAt.Equal(prevUpdatedAt) {
		return nil, fmt.Errorf("file %s was modified concurrently: %w", fileUUID, domain.ErrConflict)
	}

	file.Name = newName
	file.UpdatedAt = time.Now()
	copied := *file
	return &copied, nil
}

func (f *fakeFileStore) UpdateFolder(ctx context.Context, fileUUID uuid.UUID, folderID *int64, prevUpdatedAt time.Time) (*domain.PersonalFile, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	file, ok := f.files[fileUUID]
	if !ok || file.DeletedAt != nil || !file.UpdatedAt.Equal(prevUpdatedAt) {
		return nil, fmt.Errorf("file %s was modified concurrently: %w", fileUUID, domain.ErrConflict)
	}

	file.FolderID = folderID
	file.UpdatedAt = time.Now()
	copied := *file
	return &copied, nil
}

func (f *fakeFileStore) SoftDelete(ctx context.Context, fileUUID uuid.UUID) (int64, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	file, ok := f.files[fileUUID]
	if !ok {
		return 0, false, fmt.Errorf("file %s: %w", fileUUID, domain.ErrNotFound)
	}
	if file.DeletedAt != nil {
		return file.SizeBytes, true, nil
	}

	now := time.Now()
	file.DeletedAt = &now
	return file.SizeBytes, false, nil
}

func (f *fakeFileStore) HardDelete(ctx context.Context, fileUUID uuid.UUID) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	delete(f.files, fileUUID)
	f.hardDeleted = append(f.hardDeleted, fileUUID)
	return nil
}

func (f *fakeFileStore) List(ctx context.Context, ownerID string, filter domain.FileFilter) ([]domain.PersonalFile, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	var result []domain.PersonalFile
	for _, file := range f.files {
		if file.OwnerID != ownerID || file.DeletedAt != nil {
			continue
		}
		if filter.FolderID != nil && (file.FolderID == nil || *file.FolderID != *filter.FolderID) {
			continue
		}
		if filter.Search != "" && !strings.Contains(strings.ToLower(file.Name), strings.ToLower(filter.Search)) {
			continue
		}
		result = append(result, *file)
	}
	return result, nil
}

func (f *fakeFileStore) put(file *domain.PersonalFile) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if file.UpdatedAt.IsZero() {
		file.UpdatedAt = time.Now()
	}
	copied := *file
	f.files[file.UUID] = &copied
}

type fakeFolderStore struct {
	mu      sync.Mutex
	folders map[int64]*domain.Folder
	nextID  int64
}

func newFakeFolderStore() *fakeFolderStore {
	return &fakeFolderStore{folders: make(map[int64]*domain.Folder), nextID: 1}
}

func (f *fakeFolderStore) GetByID(ctx context.Context, id int64) (*domain.Folder, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	folder, ok := f.folders[id]
	if !ok {
		return nil, fmt.Errorf("folder %d: %w", id, domain.ErrNotFound)
	}
	copied := *folder
	return &copied, nil
}

func (f *fakeFolderStore) GetOrCreateRoot(ctx context.Context, ownerID string) (*domain.Folder, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	for _, folder := range f.folders {
		if folder.OwnerID == ownerID && folder.ParentID == nil {
			copied := *folder
			return &copied, nil
		}
	}

	root := &domain.Folder{
		ID:      f.nextID,
		Name:    "Root",
		OwnerID: ownerID,
		Path:    "/",
	}
	f.nextID++
	f.folders[root.ID] = root

	copied := *root
	return &copied, nil
}

func (f *fakeFolderStore) Create(ctx context.Context, folder *domain.Folder) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	folder.ID = f.nextID
	f.nextID++
	if folder.ParentID != nil {
		if parent, ok := f.folders[*folder.ParentID]; ok {
			folder.Path = strings.TrimRight(parent.Path, "/") + "/" + folder.Name
		}
	} else {
		folder.Path = "/" + folder.Name
	}

	copied := *folder
	f.folders[folder.ID] = &copied
	return nil
}

func (f *fakeFolderStore) ListByOwner(ctx context.Context, ownerID string) ([]domain.Folder, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	var result []domain.Folder
	for _, folder := range f.folders {
		if folder.OwnerID == ownerID {
			result = append(result, *folder)
		}
	}
	return result, nil
}

func (f *fakeFolderStore) add(ownerID, name, path string) *domain.Folder {
	f.mu.Lock()
	defer f.mu.Unlock()

	parent := int64(0)
	folder := &domain.Folder{
		ID:       f.nextID,
		Name:     name,
		OwnerID:  ownerID,
		ParentID: &parent,
		Path:     path,
	}
	f.nextID++
	f.folders[folder.ID] = folder

	copied := *folder
	return &copied
}

type fakeLineageStore struct {
	mu        sync.Mutex
	events    []domain.ModificationEvent
	failures  int
	nextID    int64
}

func newFakeLineageStore() *fakeLineageStore {
	return &fakeLineageStore{nextID: 1}
}

func (f *fakeLineageStore) Append(ctx context.Context, event *domain.ModificationEvent) (*domain.ModificationEvent, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.failures > 0 {
		f.failures--
		return nil, errors.New("lineage store unavailable")
	}

	for i := range f.events {
		if f.events[i].OperationID == event.OperationID {
			copied := f.events[i]
			return &copied, nil
		}
	}

	stored := *event
	stored.ID = f.nextID
	stored.CreatedAt = time.Now()
	f.nextID++
	f.events = append(f.events, stored)

	copied := stored
	return &copied, nil
}

func (f *fakeLineageStore) HistoryFor(ctx context.Context, fileUUID uuid.UUID) ([]domain.ModificationEvent, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	var result []domain.ModificationEvent
	for _, event := range f.events {
		if event.FileUUID == fileUUID {
			result = append(result, event)
		}
	}
	return result, nil
}

func (f *fakeLineageStore) TreeFor(ctx context.Context, ownerID string, courseID *string) ([]domain.LineageNode, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	byFile := make(map[uuid.UUID]*domain.LineageNode)
	var order []uuid.UUID
	for _, event := range f.events {
		if event.OwnerID != ownerID {
			continue
		}
		if courseID != nil && (event.CourseID == nil || *event.CourseID != *courseID) {
			continue
		}
		node, ok := byFile[event.FileUUID]
		if !ok {
			node = &domain.LineageNode{FileUUID: event.FileUUID}
			byFile[event.FileUUID] = node
			order = append(order, event.FileUUID)
		}
		node.Events = append(node.Events, event)
	}

	result := make([]domain.LineageNode, 0, len(order))
	for _, id := range order {
		result = append(result, *byFile[id])
	}
	return result, nil
}

func (f *fakeLineageStore) eventsFor(fileUUID uuid.UUID) []domain.ModificationEvent {
	events, _ := f.HistoryFor(context.Background(), fileUUID)
	return events
}

type fakeS3Object struct {
	io.ReadCloser
	length      int64
	contentType string
}

func (o *fakeS3Object) ContentLength() int64 { return o.length }
func (o *fakeS3Object) ContentType() string  { return o.contentType }

type fakeS3 struct {
	mu             sync.Mutex
	objects        map[string][]byte
	uploadFailures int
	copyFailures   int
	deleted        []string
}

var _ s3.Storage = (*fakeS3)(nil)

func newFakeS3() *fakeS3 {
	return &fakeS3{objects: make(map[string][]byte)}
}

func (f *fakeS3) UploadFile(key string, file *multipart.File) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.uploadFailures > 0 {
		f.uploadFailures--
		return errors.New("transient storage failure")
	}

	data, err := io.ReadAll(*file)
	if err != nil {
		return err
	}
	f.objects[key] = data
	return nil
}

func (f *fakeS3) UploadBytes(key string, data []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.objects[key] = append([]byte(nil), data...)
	return nil
}

func (f *fakeS3) GetObject(ctx context.Context, key string) (s3.S3Object, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	data, ok := f.objects[key]
	if !ok {
		return nil, fmt.Errorf("object %s not found", key)
	}
	return &fakeS3Object{
		ReadCloser:  io.NopCloser(bytes.NewReader(data)),
		length:      int64(len(data)),
		contentType: "application/octet-stream",
	}, nil
}

func (f *fakeS3) DeleteObject(key string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	delete(f.objects, key)
	f.deleted = append(f.deleted, key)
	return nil
}

func (f *fakeS3) CopyObject(ctx context.Context, sourceKey, destKey string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.copyFailures > 0 {
		f.copyFailures--
		return errors.New("transient storage failure")
	}

	data, ok := f.objects[sourceKey]
	if !ok {
		return fmt.Errorf("source object %s not found", sourceKey)
	}
	f.objects[destKey] = append([]byte(nil), data...)
	return nil
}

func (f *fakeS3) PresignGetObject(ctx context.Context, key, downloadName string, expires time.Duration) (string, error) {
	return "https://storage.example.com/signed/" + key, nil
}

func (f *fakeS3) has(key string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()

	_, ok := f.objects[key]
	return ok
}

type fakeCoursesClient struct {
	mu          sync.Mutex
	files       map[uuid.UUID]*courses.SharedFile
	enrollments map[string]bool
}

func newFakeCoursesClient() *fakeCoursesClient {
	return &fakeCoursesClient{
		files:       make(map[uuid.UUID]*courses.SharedFile),
		enrollments: make(map[string]bool),
	}
}

func (f *fakeCoursesClient) GetSharedFile(ctx context.Context, fileID uuid.UUID) (*courses.SharedFile, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	file, ok := f.files[fileID]
	if !ok {
		return nil, fmt.Errorf("course file %s: %w", fileID, domain.ErrNotFound)
	}
	copied := *file
	return &copied, nil
}

func (f *fakeCoursesClient) CheckEnrollment(ctx context.Context, userID, courseID string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	return f.enrollments[userID+":"+courseID], nil
}

func (f *fakeCoursesClient) addSharedFile(file *courses.SharedFile) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.files[file.ID] = file
}

func (f *fakeCoursesClient) enroll(userID, courseID string) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.enrollments[userID+":"+courseID] = true
}

type memUpload struct {
	*bytes.Reader
}

func (memUpload) Close() error { return nil }

func newUpload(name, content string) (*multipart.FileHeader, multipart.File) {
	header := &multipart.FileHeader{
		Filename: name,
		Size:     int64(len(content)),
		Header:   textproto.MIMEHeader{"Content-Type": []string{"text/plain"}},
	}
	return header, memUpload{bytes.NewReader([]byte(content))}
}

// newSizedUpload создает заголовок с заявленным размером без буфера
// такого же объема: для тестов квоты важен только header.Size.
func newSizedUpload(name string, size int64) (*multipart.FileHeader, multipart.File) {
	header := &multipart.FileHeader{
		Filename: name,
		Size:     size,
		Header:   textproto.MIMEHeader{"Content-Type": []string{"application/octet-stream"}},
	}
	return header, memUpload{bytes.NewReader([]byte("stub"))}
}
