package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"studydrive/internal/domain"
)

type LineageRepository struct {
	db *sqlx.DB
}

func NewLineageRepository(db *sqlx.DB) *LineageRepository {
	return &LineageRepository{db: db}
}

// Append добавляет событие в журнал. Вставка идемпотентна по operation_id:
// при повторной доставке того же события возвращается ранее записанная
// строка, дубликат в истории не появляется.
func (r *LineageRepository) Append(ctx context.Context, event *domain.ModificationEvent) (*domain.ModificationEvent, error) {
	query := `
        INSERT INTO modification_events
            (operation_id, file_uuid, owner_id, course_id, action, old_name, new_name, old_path, new_path, metadata, created_by)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
        ON CONFLICT (operation_id) DO NOTHING
        RETURNING id, created_at`

	err := r.db.QueryRowContext(ctx, query,
		event.OperationID,
		event.FileUUID,
		event.OwnerID,
		event.CourseID,
		event.Action,
		event.OldName,
		event.NewName,
		event.OldPath,
		event.NewPath,
		event.Metadata,
		event.CreatedBy,
	).Scan(&event.ID, &event.CreatedAt)

	if err == nil {
		return event, nil
	}
	if err != sql.ErrNoRows {
		return nil, fmt.Errorf("failed to append event: %w", err)
	}

	// Событие с этим operation_id уже записано — отдаем его
	var existing domain.ModificationEvent
	err = r.db.GetContext(ctx, &existing,
		`SELECT * FROM modification_events WHERE operation_id = $1`,
		event.OperationID)
	if err != nil {
		return nil, fmt.Errorf("failed to load existing event: %w", err)
	}

	return &existing, nil
}

// HistoryFor возвращает события файла от старых к новым. Вторичная
// сортировка по id дает стабильный порядок для событий с одинаковым
// created_at.
func (r *LineageRepository) HistoryFor(ctx context.Context, fileUUID uuid.UUID) ([]domain.ModificationEvent, error) {
	var events []domain.ModificationEvent
	err := r.db.SelectContext(ctx, &events, `
        SELECT * FROM modification_events
        WHERE file_uuid = $1
        ORDER BY created_at, id`,
		fileUUID)
	if err != nil {
		return nil, fmt.Errorf("failed to get file history: %w", err)
	}

	return events, nil
}

type lineageFileRow struct {
	UUID      uuid.UUID  `db:"uuid"`
	Name      string     `db:"name"`
	MIMEType  string     `db:"mime_type"`
	Path      *string    `db:"path"`
	DeletedAt *time.Time `db:"deleted_at"`
}

// TreeFor собирает дерево изменений: события пользователя (при необходимости
// ограниченные курсом), сгруппированные по файлам, плюс текущее состояние
// каждого файла из реестра.
func (r *LineageRepository) TreeFor(ctx context.Context, ownerID string, courseID *string) ([]domain.LineageNode, error) {
	query := `
        SELECT * FROM modification_events
        WHERE owner_id = $1`
	args := []interface{}{ownerID}
	if courseID != nil {
		query += ` AND course_id = $2`
		args = append(args, *courseID)
	}
	query += ` ORDER BY file_uuid, created_at, id`

	var events []domain.ModificationEvent
	if err := r.db.SelectContext(ctx, &events, query, args...); err != nil {
		return nil, fmt.Errorf("failed to get lineage events: %w", err)
	}
	if len(events) == 0 {
		return []domain.LineageNode{}, nil
	}

	seen := make(map[uuid.UUID]bool)
	fileIDs := make([]uuid.UUID, 0, len(events))
	for _, ev := range events {
		if !seen[ev.FileUUID] {
			seen[ev.FileUUID] = true
			fileIDs = append(fileIDs, ev.FileUUID)
		}
	}

	ids := make([]string, len(fileIDs))
	for i, id := range fileIDs {
		ids[i] = id.String()
	}

	var rows []lineageFileRow
	err := r.db.SelectContext(ctx, &rows, `
        SELECT f.uuid, f.name, f.mime_type, fo.path, f.deleted_at
        FROM files f
        LEFT JOIN folders fo ON fo.id = f.folder_id
        WHERE f.uuid = ANY($1)`,
		pq.Array(ids))
	if err != nil {
		return nil, fmt.Errorf("failed to get file info for tree: %w", err)
	}

	info := make(map[uuid.UUID]lineageFileRow, len(rows))
	for _, row := range rows {
		info[row.UUID] = row
	}

	// Порядок групп — порядок file_uuid из выборки событий
	nodes := make([]domain.LineageNode, 0, len(fileIDs))
	grouped := make(map[uuid.UUID]int, len(fileIDs))
	for _, id := range fileIDs {
		node := domain.LineageNode{FileUUID: id}
		if row, ok := info[id]; ok {
			node.FileName = row.Name
			node.MIMEType = row.MIMEType
			node.Deleted = row.DeletedAt != nil
			if row.Path != nil {
				node.Path = *row.Path
			}
		}
		grouped[id] = len(nodes)
		nodes = append(nodes, node)
	}
	for _, ev := range events {
		idx := grouped[ev.FileUUID]
		nodes[idx].Events = append(nodes[idx].Events, ev)
	}

	return nodes, nil
}
