package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"studydrive/internal/domain"
)

type StorageQuotaRepository struct {
	db *sqlx.DB
}

func NewStorageQuotaRepository(db *sqlx.DB) *StorageQuotaRepository {
	return &StorageQuotaRepository{db: db}
}

func (r *StorageQuotaRepository) GetQuota(ctx context.Context, ownerID string) (*domain.StorageQuota, error) {
	var quota domain.StorageQuota

	err := r.db.GetContext(ctx, &quota,
		`SELECT * FROM storage_quotas WHERE owner_id = $1`,
		ownerID)

	if err != nil {
		// Если квоты ещё нет, создаем новую с дефолтным лимитом
		if err == sql.ErrNoRows {
			quota = domain.StorageQuota{
				OwnerID:         ownerID,
				TotalBytesLimit: domain.DefaultQuotaBytes,
				UsedBytes:       0,
				ReservedBytes:   0,
			}

			err = r.Create(ctx, &quota)
			if err != nil {
				return nil, fmt.Errorf("failed to create quota: %w", err)
			}
			return &quota, nil
		}
		return nil, fmt.Errorf("failed to get quota: %w", err)
	}

	return &quota, nil
}

func (r *StorageQuotaRepository) Create(ctx context.Context, quota *domain.StorageQuota) error {
	query := `
        INSERT INTO storage_quotas (owner_id, total_bytes_limit, used_bytes, reserved_bytes)
        VALUES ($1, $2, $3, $4)
        ON CONFLICT (owner_id) DO UPDATE SET updated_at = storage_quotas.updated_at
        RETURNING id, created_at, updated_at`

	return r.db.QueryRowContext(ctx, query,
		quota.OwnerID,
		quota.TotalBytesLimit,
		quota.UsedBytes,
		quota.ReservedBytes,
	).Scan(&quota.ID, &quota.CreatedAt, &quota.UpdatedAt)
}

// Reserve атомарно удерживает bytes под будущую запись. Условие в UPDATE
// гарантирует used + reserved + bytes <= limit даже при параллельных
// загрузках одного пользователя: из двух конкурирующих запросов пройдет
// только тот, для которого условие еще выполняется.
func (r *StorageQuotaRepository) Reserve(ctx context.Context, ownerID string, bytes int64, ttl time.Duration) (*domain.QuotaReservation, error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	result, err := tx.ExecContext(ctx, `
        UPDATE storage_quotas
        SET reserved_bytes = reserved_bytes + $1,
            updated_at = CURRENT_TIMESTAMP
        WHERE owner_id = $2
          AND used_bytes + reserved_bytes + $1 <= total_bytes_limit`,
		bytes, ownerID)
	if err != nil {
		return nil, fmt.Errorf("failed to reserve space: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("failed to get affected rows: %w", err)
	}
	if rows == 0 {
		return nil, domain.ErrQuotaExceeded
	}

	reservation := &domain.QuotaReservation{
		ID:        uuid.New(),
		OwnerID:   ownerID,
		SizeBytes: bytes,
	}

	err = tx.QueryRowContext(ctx, `
        INSERT INTO quota_reservations (id, owner_id, size_bytes, expires_at)
        VALUES ($1, $2, $3, CURRENT_TIMESTAMP + $4 * INTERVAL '1 second')
        RETURNING created_at, expires_at`,
		reservation.ID, ownerID, bytes, int64(ttl.Seconds()),
	).Scan(&reservation.CreatedAt, &reservation.ExpiresAt)
	if err != nil {
		return nil, fmt.Errorf("failed to store reservation: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit transaction: %w", err)
	}

	return reservation, nil
}

// Commit переносит удержанный объем в used_bytes. Если резервация уже
// удалена фоновой очисткой, вернется ErrConflict — операция длилась дольше
// времени жизни резервации.
func (r *StorageQuotaRepository) Commit(ctx context.Context, reservationID uuid.UUID) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	var ownerID string
	var bytes int64
	err = tx.QueryRowContext(ctx, `
        DELETE FROM quota_reservations WHERE id = $1
        RETURNING owner_id, size_bytes`,
		reservationID,
	).Scan(&ownerID, &bytes)
	if err != nil {
		if err == sql.ErrNoRows {
			return fmt.Errorf("reservation %s expired before commit: %w", reservationID, domain.ErrConflict)
		}
		return fmt.Errorf("failed to take reservation: %w", err)
	}

	_, err = tx.ExecContext(ctx, `
        UPDATE storage_quotas
        SET used_bytes = used_bytes + $1,
            reserved_bytes = GREATEST(0, reserved_bytes - $1),
            updated_at = CURRENT_TIMESTAMP
        WHERE owner_id = $2`,
		bytes, ownerID)
	if err != nil {
		return fmt.Errorf("failed to commit reserved space: %w", err)
	}

	return tx.Commit()
}

// Release снимает резервацию без изменения used_bytes. Повторный release
// (или release уже очищенной резервации) безопасен.
func (r *StorageQuotaRepository) Release(ctx context.Context, reservationID uuid.UUID) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	var ownerID string
	var bytes int64
	err = tx.QueryRowContext(ctx, `
        DELETE FROM quota_reservations WHERE id = $1
        RETURNING owner_id, size_bytes`,
		reservationID,
	).Scan(&ownerID, &bytes)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil
		}
		return fmt.Errorf("failed to take reservation: %w", err)
	}

	_, err = tx.ExecContext(ctx, `
        UPDATE storage_quotas
        SET reserved_bytes = GREATEST(0, reserved_bytes - $1),
            updated_at = CURRENT_TIMESTAMP
        WHERE owner_id = $2`,
		bytes, ownerID)
	if err != nil {
		return fmt.Errorf("failed to release reserved space: %w", err)
	}

	return tx.Commit()
}

// ReleaseUsed уменьшает used_bytes напрямую. Используется при удалении файла:
// резервация не нужна, так как уменьшение не может превысить лимит.
func (r *StorageQuotaRepository) ReleaseUsed(ctx context.Context, ownerID string, bytes int64) error {
	result, err := r.db.ExecContext(ctx, `
        UPDATE storage_quotas
        SET used_bytes = GREATEST(0, used_bytes - $1),
            updated_at = CURRENT_TIMESTAMP
        WHERE owner_id = $2`,
		bytes, ownerID)
	if err != nil {
		return fmt.Errorf("failed to release used space: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get affected rows: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("quota not found for owner %s: %w", ownerID, domain.ErrNotFound)
	}

	return nil
}

// ReleaseExpired снимает все просроченные резервации одним запросом.
// Возвращает количество освобожденных резерваций.
func (r *StorageQuotaRepository) ReleaseExpired(ctx context.Context) (int64, error) {
	result, err := r.db.ExecContext(ctx, `
        WITH expired AS (
            DELETE FROM quota_reservations
            WHERE expires_at < CURRENT_TIMESTAMP
            RETURNING owner_id, size_bytes
        ),
        totals AS (
            SELECT owner_id, SUM(size_bytes) AS total_bytes
            FROM expired
            GROUP BY owner_id
        )
        UPDATE storage_quotas sq
        SET reserved_bytes = GREATEST(0, sq.reserved_bytes - t.total_bytes),
            updated_at = CURRENT_TIMESTAMP
        FROM totals t
        WHERE sq.owner_id = t.owner_id`)
	if err != nil {
		return 0, fmt.Errorf("failed to release expired reservations: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get affected rows: %w", err)
	}

	return rows, nil
}

func (r *StorageQuotaRepository) UpdateQuotaLimit(ctx context.Context, ownerID string, newLimit int64) error {
	query := `
        UPDATE storage_quotas
        SET total_bytes_limit = $1,
            updated_at = CURRENT_TIMESTAMP
        WHERE owner_id = $2`

	result, err := r.db.ExecContext(ctx, query, newLimit, ownerID)
	if err != nil {
		return fmt.Errorf("failed to update quota limit: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get affected rows: %w", err)
	}

	if rows == 0 {
		return fmt.Errorf("quota not found for owner %s: %w", ownerID, domain.ErrNotFound)
	}

	return nil
}
