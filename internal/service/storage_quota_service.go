package service

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"

	"studydrive/internal/domain"
)

// defaultReservationTTL ограничивает жизнь незафиксированной резервации:
// упавшая или зависшая операция не может удерживать место бесконечно.
const defaultReservationTTL = 60 * time.Second

type quotaStore interface {
	GetQuota(ctx context.Context, ownerID string) (*domain.StorageQuota, error)
	Reserve(ctx context.Context, ownerID string, bytes int64, ttl time.Duration) (*domain.QuotaReservation, error)
	Commit(ctx context.Context, reservationID uuid.UUID) error
	Release(ctx context.Context, reservationID uuid.UUID) error
	ReleaseUsed(ctx context.Context, ownerID string, bytes int64) error
	ReleaseExpired(ctx context.Context) (int64, error)
	UpdateQuotaLimit(ctx context.Context, ownerID string, newLimit int64) error
}

// StorageQuotaService — журнал квот: reserve/commit/release поверх
// атомарных операций репозитория.
type StorageQuotaService struct {
	quotaRepo      quotaStore
	reservationTTL time.Duration
}

func NewStorageQuotaService(quotaRepo quotaStore) *StorageQuotaService {
	return &StorageQuotaService{
		quotaRepo:      quotaRepo,
		reservationTTL: defaultReservationTTL,
	}
}

func (s *StorageQuotaService) GetQuotaInfo(ctx context.Context, ownerID string) (*domain.QuotaInfo, error) {
	quota, err := s.quotaRepo.GetQuota(ctx, ownerID)
	if err != nil {
		return nil, fmt.Errorf("failed to get quota: %w", err)
	}

	availableSpace := quota.TotalBytesLimit - quota.UsedBytes - quota.ReservedBytes
	if availableSpace < 0 {
		availableSpace = 0
	}
	usagePercent := float64(quota.UsedBytes) / float64(quota.TotalBytesLimit) * 100

	return &domain.QuotaInfo{
		TotalSpace:     quota.TotalBytesLimit,
		UsedSpace:      quota.UsedBytes,
		ReservedSpace:  quota.ReservedBytes,
		AvailableSpace: availableSpace,
		UsagePercent:   usagePercent,
	}, nil
}

// Reserve удерживает bytes под будущую запись. Возвращает ErrQuotaExceeded,
// если used + reserved + bytes превысили бы лимит.
func (s *StorageQuotaService) Reserve(ctx context.Context, ownerID string, bytes int64) (*domain.QuotaReservation, error) {
	if bytes < 0 {
		return nil, fmt.Errorf("reservation size cannot be negative")
	}

	// Ленивое создание квоты при первой записи пользователя
	if _, err := s.quotaRepo.GetQuota(ctx, ownerID); err != nil {
		return nil, fmt.Errorf("failed to ensure quota: %w", err)
	}

	reservation, err := s.quotaRepo.Reserve(ctx, ownerID, bytes, s.reservationTTL)
	if err != nil {
		return nil, err
	}

	return reservation, nil
}

// Commit переводит удержанный объем в занятый.
func (s *StorageQuotaService) Commit(ctx context.Context, reservation *domain.QuotaReservation) error {
	if reservation == nil {
		return fmt.Errorf("reservation is required")
	}
	return s.quotaRepo.Commit(ctx, reservation.ID)
}

// Release снимает резервацию при откате операции.
func (s *StorageQuotaService) Release(ctx context.Context, reservation *domain.QuotaReservation) error {
	if reservation == nil {
		return nil
	}
	return s.quotaRepo.Release(ctx, reservation.ID)
}

// ReleaseUsed уменьшает занятый объем после удаления файла. Резервация
// не нужна: уменьшение не может нарушить лимит.
func (s *StorageQuotaService) ReleaseUsed(ctx context.Context, ownerID string, bytes int64) error {
	if bytes <= 0 {
		return nil
	}
	return s.quotaRepo.ReleaseUsed(ctx, ownerID, bytes)
}

func (s *StorageQuotaService) UpdateQuotaLimit(ctx context.Context, ownerID string, newLimit int64) error {
	if newLimit < 0 {
		return fmt.Errorf("new quota limit cannot be negative")
	}
	return s.quotaRepo.UpdateQuotaLimit(ctx, ownerID, newLimit)
}

// ReleaseExpiredReservations снимает просроченные резервации. Вызывается
// фоновой задачей из main.
func (s *StorageQuotaService) ReleaseExpiredReservations(ctx context.Context) error {
	released, err := s.quotaRepo.ReleaseExpired(ctx)
	if err != nil {
		return fmt.Errorf("failed to release expired reservations: %w", err)
	}

	if released > 0 {
		log.Printf("[QuotaService] Released %d expired reservations", released)
	}

	return nil
}
