package auth

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"
)

var gClient *Client

// Client обращается к сервису аутентификации платформы.
type Client struct {
	httpClient *http.Client
	baseURL    string
}

func NewClient(conf *Config) (*Client, error) {
	if conf == nil || conf.AuthAddr == "" {
		return nil, fmt.Errorf("auth address is required")
	}

	return &Client{
		httpClient: &http.Client{Timeout: 10 * time.Second},
		baseURL:    strings.TrimRight(conf.AuthAddr, "/"),
	}, nil
}

func InitClient(client *Client) {
	gClient = client
}

// VerifyToken проверяет токен запроса через сервис аутентификации
// и возвращает идентификатор пользователя. Ядро доверяет этому значению.
func VerifyToken(r *http.Request) (string, error) {
	if gClient == nil {
		return "", fmt.Errorf("auth client is not initialized")
	}

	authToken := r.Header.Get("Authorization")
	if authToken == "" {
		return "", fmt.Errorf("no authorization header")
	}

	req, err := http.NewRequestWithContext(r.Context(), http.MethodGet, gClient.baseURL+"/v1/auth/verify", nil)
	if err != nil {
		return "", fmt.Errorf("failed to build verify request: %w", err)
	}
	req.Header.Set("Authorization", authToken)

	resp, err := gClient.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("auth service unavailable: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("token verification failed: status %d", resp.StatusCode)
	}

	var payload struct {
		UserID string `json:"user_id"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return "", fmt.Errorf("failed to decode verify response: %w", err)
	}
	if payload.UserID == "" {
		return "", fmt.Errorf("auth service returned empty user id")
	}

	return payload.UserID, nil
}
