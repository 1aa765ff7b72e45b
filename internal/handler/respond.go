package handler

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"

	"studydrive/internal/domain"
)

type errorResponse struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v != nil {
		if err := json.NewEncoder(w).Encode(v); err != nil {
			log.Printf("[Handler] failed to encode response: %v", err)
		}
	}
}

// writeError отображает таксономию ошибок ядра в HTTP-статусы.
// Внутренние детали (ключи хранения, ошибки провайдера) наружу не выходят.
func writeError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, domain.ErrQuotaExceeded):
		writeJSON(w, http.StatusInsufficientStorage, errorResponse{Error: "storage quota exceeded"})
	case errors.Is(err, domain.ErrNotFound):
		writeJSON(w, http.StatusNotFound, errorResponse{Error: "not found"})
	case errors.Is(err, domain.ErrForbidden):
		writeJSON(w, http.StatusForbidden, errorResponse{Error: "access denied"})
	case errors.Is(err, domain.ErrConflict):
		writeJSON(w, http.StatusConflict, errorResponse{Error: "conflicting update, retry the operation"})
	case errors.Is(err, domain.ErrStorageWrite):
		writeJSON(w, http.StatusBadGateway, errorResponse{Error: "storage is temporarily unavailable"})
	default:
		log.Printf("[Handler] internal error: %v", err)
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "internal error"})
	}
}
