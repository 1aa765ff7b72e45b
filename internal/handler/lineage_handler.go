package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"studydrive/internal/auth"
	"studydrive/internal/service"
)

type LineageHandler struct {
	lineageService *service.LineageService
}

func NewLineageHandler(lineageService *service.LineageService) *LineageHandler {
	return &LineageHandler{
		lineageService: lineageService,
	}
}

// GetFileHistory возвращает события файла от старых к новым. Работает и для
// мягко удаленных файлов.
func (h *LineageHandler) GetFileHistory(w http.ResponseWriter, r *http.Request) {
	userID, err := auth.VerifyToken(r)
	if err != nil {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	fileUUID, err := uuid.Parse(chi.URLParam(r, "uuid"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid file uuid"})
		return
	}

	events, err := h.lineageService.HistoryFor(r.Context(), fileUUID, userID)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, events)
}

// GetLineageTree возвращает дерево изменений пользователя, опционально
// ограниченное курсом (?course_id=...).
func (h *LineageHandler) GetLineageTree(w http.ResponseWriter, r *http.Request) {
	userID, err := auth.VerifyToken(r)
	if err != nil {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	var courseID *string
	if raw := r.URL.Query().Get("course_id"); raw != "" {
		courseID = &raw
	}

	tree, err := h.lineageService.TreeFor(r.Context(), userID, courseID)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, tree)
}
