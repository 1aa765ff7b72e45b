package domain

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

type ModificationAction string

const (
	ActionCreate ModificationAction = "create"
	ActionRename ModificationAction = "rename"
	ActionMove   ModificationAction = "move"
	ActionCopy   ModificationAction = "copy"
	ActionDelete ModificationAction = "delete"
)

// EventMetadata хранится в jsonb-колонке
type EventMetadata map[string]interface{}

func (m EventMetadata) Value() (driver.Value, error) {
	if m == nil {
		return nil, nil
	}
	return json.Marshal(m)
}

func (m *EventMetadata) Scan(src interface{}) error {
	if src == nil {
		*m = nil
		return nil
	}
	data, ok := src.([]byte)
	if !ok {
		return fmt.Errorf("unexpected metadata type %T", src)
	}
	return json.Unmarshal(data, m)
}

// ModificationEvent — запись журнала изменений файла. События никогда не
// обновляются и не удаляются; OperationID защищает от повторной вставки
// при ретраях оркестратора.
type ModificationEvent struct {
	ID          int64              `json:"id" db:"id"`
	OperationID uuid.UUID          `json:"operation_id" db:"operation_id"`
	FileUUID    uuid.UUID          `json:"file_uuid" db:"file_uuid"`
	OwnerID     string             `json:"owner_id" db:"owner_id"`
	CourseID    *string            `json:"course_id,omitempty" db:"course_id"`
	Action      ModificationAction `json:"action" db:"action"`
	OldName     *string            `json:"old_name,omitempty" db:"old_name"`
	NewName     *string            `json:"new_name,omitempty" db:"new_name"`
	OldPath     *string            `json:"old_path,omitempty" db:"old_path"`
	NewPath     *string            `json:"new_path,omitempty" db:"new_path"`
	Metadata    EventMetadata      `json:"metadata,omitempty" db:"metadata"`
	CreatedAt   time.Time          `json:"created_at" db:"created_at"`
	CreatedBy   string             `json:"created_by" db:"created_by"`
}

// LineageNode — группа событий одного файла в дереве изменений пользователя.
type LineageNode struct {
	FileUUID uuid.UUID           `json:"file_uuid"`
	FileName string              `json:"file_name"`
	MIMEType string              `json:"mime_type"`
	Path     string              `json:"path"`
	Deleted  bool                `json:"deleted"`
	Events   []ModificationEvent `json:"events"`
}
