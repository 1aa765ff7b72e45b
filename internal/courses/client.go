package courses

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"

	"studydrive/internal/domain"
)

// SharedFile — общий файл курса, принадлежащий платформе, а не ядру
// хранилища. Используется как источник персональных копий и для проверки
// привязки к курсу при выдаче ссылок.
type SharedFile struct {
	ID         uuid.UUID `json:"id"`
	CourseID   string    `json:"course_id"`
	Name       string    `json:"name"`
	MIMEType   string    `json:"mime_type"`
	SizeBytes  int64     `json:"size_bytes"`
	StorageKey string    `json:"storage_key"`
}

// Client обращается к внутреннему API платформы курсов.
type Client struct {
	httpClient *http.Client
	baseURL    string
}

func NewClient(conf *Config) (*Client, error) {
	if conf == nil || conf.CoursesAddr == "" {
		return nil, fmt.Errorf("courses address is required")
	}

	return &Client{
		httpClient: &http.Client{Timeout: 10 * time.Second},
		baseURL:    strings.TrimRight(conf.CoursesAddr, "/"),
	}, nil
}

// GetSharedFile возвращает метаданные общего файла курса.
func (c *Client) GetSharedFile(ctx context.Context, fileID uuid.UUID) (*SharedFile, error) {
	endpoint := fmt.Sprintf("%s/v1/internal/course-files/%s", c.baseURL, fileID)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build course file request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("courses service unavailable: %w", err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
	case http.StatusNotFound:
		return nil, fmt.Errorf("course file %s: %w", fileID, domain.ErrNotFound)
	default:
		return nil, fmt.Errorf("courses service returned status %d", resp.StatusCode)
	}

	var file SharedFile
	if err := json.NewDecoder(resp.Body).Decode(&file); err != nil {
		return nil, fmt.Errorf("failed to decode course file response: %w", err)
	}

	return &file, nil
}

// CheckEnrollment проверяет, записан ли пользователь на курс.
func (c *Client) CheckEnrollment(ctx context.Context, userID, courseID string) (bool, error) {
	params := url.Values{}
	params.Set("user_id", userID)
	params.Set("course_id", courseID)

	endpoint := fmt.Sprintf("%s/v1/internal/enrollments?%s", c.baseURL, params.Encode())
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return false, fmt.Errorf("failed to build enrollment request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return false, fmt.Errorf("courses service unavailable: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return false, fmt.Errorf("courses service returned status %d", resp.StatusCode)
	}

	var payload struct {
		Enrolled bool `json:"enrolled"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return false, fmt.Errorf("failed to decode enrollment response: %w", err)
	}

	return payload.Enrolled, nil
}
