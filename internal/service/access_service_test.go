package service

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"studydrive/internal/courses"
	"studydrive/internal/domain"
)

type accessServiceEnv struct {
	svc     *AccessService
	files   *fakeFileStore
	blobs   *fakeS3
	courses *fakeCoursesClient
}

func newAccessServiceEnv() *accessServiceEnv {
	env := &accessServiceEnv{
		files:   newFakeFileStore(),
		blobs:   newFakeS3(),
		courses: newFakeCoursesClient(),
	}
	env.svc = NewAccessService(env.files, env.courses, env.blobs)
	return env
}

func TestGetDownloadURLForOwner(t *testing.T) {
	env := newAccessServiceEnv()
	file := &domain.PersonalFile{
		UUID:       uuid.New(),
		OwnerID:    "user-1",
		Name:       "report.pdf",
		StorageKey: "personal_study_files/user-1/abc",
		UpdatedAt:  time.Now(),
	}
	env.files.put(file)

	link, err := env.svc.GetDownloadURL(context.Background(), file.UUID, "user-1")
	require.NoError(t, err)
	assert.Contains(t, link.URL, file.StorageKey)
	assert.Equal(t, int64(3600), link.ExpiresIn)
}

func TestGetDownloadURLDeletedFileNotFound(t *testing.T) {
	env := newAccessServiceEnv()
	now := time.Now()
	file := &domain.PersonalFile{
		UUID:       uuid.New(),
		OwnerID:    "user-1",
		StorageKey: "personal_study_files/user-1/abc",
		UpdatedAt:  now,
		DeletedAt:  &now,
	}
	env.files.put(file)

	_, err := env.svc.GetDownloadURL(context.Background(), file.UUID, "user-1")
	require.ErrorIs(t, err, domain.ErrNotFound)
}

func TestGetDownloadURLUnknownFileNotFound(t *testing.T) {
	env := newAccessServiceEnv()

	_, err := env.svc.GetDownloadURL(context.Background(), uuid.New(), "user-1")
	require.ErrorIs(t, err, domain.ErrNotFound)
}

func TestGetDownloadURLStrangerForbidden(t *testing.T) {
	env := newAccessServiceEnv()
	file := &domain.PersonalFile{
		UUID:       uuid.New(),
		OwnerID:    "user-1",
		StorageKey: "personal_study_files/user-1/abc",
		UpdatedAt:  time.Now(),
	}
	env.files.put(file)

	_, err := env.svc.GetDownloadURL(context.Background(), file.UUID, "user-2")
	require.ErrorIs(t, err, domain.ErrForbidden)
}

func TestGetDownloadURLEnrolledClassmateAllowed(t *testing.T) {
	env := newAccessServiceEnv()

	shared := &courses.SharedFile{
		ID:         uuid.New(),
		CourseID:   "course-42",
		Name:       "lecture.pdf",
		StorageKey: "course_files/course-42/lecture.pdf",
	}
	env.courses.addSharedFile(shared)
	env.courses.enroll("user-2", "course-42")

	sourceID := shared.ID
	file := &domain.PersonalFile{
		UUID:           uuid.New(),
		OwnerID:        "user-1",
		OriginalFileID: &sourceID,
		Name:           "lecture.pdf",
		StorageKey:     "personal_study_files/user-1/abc",
		UpdatedAt:      time.Now(),
	}
	env.files.put(file)

	link, err := env.svc.GetDownloadURL(context.Background(), file.UUID, "user-2")
	require.NoError(t, err)
	assert.Contains(t, link.URL, file.StorageKey)
}

func TestGetDownloadURLNotEnrolledForbidden(t *testing.T) {
	env := newAccessServiceEnv()

	shared := &courses.SharedFile{
		ID:         uuid.New(),
		CourseID:   "course-42",
		StorageKey: "course_files/course-42/lecture.pdf",
	}
	env.courses.addSharedFile(shared)

	sourceID := shared.ID
	file := &domain.PersonalFile{
		UUID:           uuid.New(),
		OwnerID:        "user-1",
		OriginalFileID: &sourceID,
		StorageKey:     "personal_study_files/user-1/abc",
		UpdatedAt:      time.Now(),
	}
	env.files.put(file)

	_, err := env.svc.GetDownloadURL(context.Background(), file.UUID, "user-2")
	require.ErrorIs(t, err, domain.ErrForbidden)
}

func TestGetDownloadURLVanishedSourceForbidden(t *testing.T) {
	env := newAccessServiceEnv()

	// Исходный файл курса удален на стороне платформы
	sourceID := uuid.New()
	file := &domain.PersonalFile{
		UUID:           uuid.New(),
		OwnerID:        "user-1",
		OriginalFileID: &sourceID,
		StorageKey:     "personal_study_files/user-1/abc",
		UpdatedAt:      time.Now(),
	}
	env.files.put(file)

	_, err := env.svc.GetDownloadURL(context.Background(), file.UUID, "user-2")
	require.ErrorIs(t, err, domain.ErrForbidden)
}
