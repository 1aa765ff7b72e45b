package domain

import (
	"time"

	"github.com/google/uuid"
)

// DefaultQuotaBytes — фиксированный лимит личного хранилища (5GB)
const DefaultQuotaBytes int64 = 5368709120

type StorageQuota struct {
	ID              int64     `json:"id" db:"id"`
	OwnerID         string    `json:"owner_id" db:"owner_id"`
	TotalBytesLimit int64     `json:"total_bytes_limit" db:"total_bytes_limit"`
	UsedBytes       int64     `json:"used_bytes" db:"used_bytes"`
	ReservedBytes   int64     `json:"reserved_bytes" db:"reserved_bytes"`
	CreatedAt       time.Time `json:"created_at" db:"created_at"`
	UpdatedAt       time.Time `json:"updated_at" db:"updated_at"`
}

// QuotaReservation — временное удержание места под незавершённую запись.
// Либо фиксируется (commit), либо освобождается (release или фоновая очистка).
type QuotaReservation struct {
	ID        uuid.UUID `json:"id" db:"id"`
	OwnerID   string    `json:"owner_id" db:"owner_id"`
	SizeBytes int64     `json:"size_bytes" db:"size_bytes"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
	ExpiresAt time.Time `json:"expires_at" db:"expires_at"`
}

type QuotaInfo struct {
	TotalSpace     int64   `json:"total_space"`
	UsedSpace      int64   `json:"used_space"`
	ReservedSpace  int64   `json:"reserved_space"`
	AvailableSpace int64   `json:"available_space"`
	UsagePercent   float64 `json:"usage_percent"`
}
