package handler

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"studydrive/internal/auth"
	"studydrive/internal/domain"
	"studydrive/internal/service"
)

// maxUploadMemory — порог буферизации multipart-формы в памяти (32MB)
const maxUploadMemory = 32 * 1024 * 1024

type FileHandler struct {
	fileService   *service.FileService
	accessService *service.AccessService
}

func NewFileHandler(fileService *service.FileService, accessService *service.AccessService) *FileHandler {
	return &FileHandler{
		fileService:   fileService,
		accessService: accessService,
	}
}

type copyFileRequest struct {
	SourceFileID   string `json:"source_file_id"`
	TargetFolderID *int64 `json:"target_folder_id,omitempty"`
	NewName        string `json:"new_name,omitempty"`
}

type renameFileRequest struct {
	NewName string `json:"new_name"`
}

type moveFileRequest struct {
	TargetFolderID int64 `json:"target_folder_id"`
}

// UploadFile принимает multipart-форму с полем "file" и необязательным
// "folder_id".
func (h *FileHandler) UploadFile(w http.ResponseWriter, r *http.Request) {
	userID, err := auth.VerifyToken(r)
	if err != nil {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	if err := r.ParseMultipartForm(maxUploadMemory); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid multipart form"})
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "file field is required"})
		return
	}
	defer file.Close()

	var folderID *int64
	if raw := r.FormValue("folder_id"); raw != "" {
		id, parseErr := strconv.ParseInt(raw, 10, 64)
		if parseErr != nil {
			writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid folder_id"})
			return
		}
		folderID = &id
	}

	created, err := h.fileService.UploadFile(r.Context(), header, file, folderID, userID)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, created)
}

// CopyFile создает персональную копию общего файла курса.
func (h *FileHandler) CopyFile(w http.ResponseWriter, r *http.Request) {
	userID, err := auth.VerifyToken(r)
	if err != nil {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	var req copyFileRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid request body"})
		return
	}

	sourceID, err := uuid.Parse(req.SourceFileID)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid source_file_id"})
		return
	}

	created, err := h.fileService.CreatePersonalCopy(r.Context(), userID, sourceID, req.TargetFolderID, req.NewName)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, created)
}

func (h *FileHandler) RenameFile(w http.ResponseWriter, r *http.Request) {
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

	var req renameFileRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.NewName == "" {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "new_name is required"})
		return
	}

	updated, err := h.fileService.RenameFile(r.Context(), userID, fileUUID, req.NewName)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, updated)
}

func (h *FileHandler) MoveFile(w http.ResponseWriter, r *http.Request) {
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

	var req moveFileRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid request body"})
		return
	}

	updated, err := h.fileService.MoveFile(r.Context(), userID, fileUUID, req.TargetFolderID)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, updated)
}

func (h *FileHandler) DeleteFile(w http.ResponseWriter, r *http.Request) {
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

	if err := h.fileService.DeleteFile(r.Context(), userID, fileUUID); err != nil {
		writeError(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// ListFiles отдает файлы пользователя с фильтрами type/search и пагинацией
// limit/offset.
func (h *FileHandler) ListFiles(w http.ResponseWriter, r *http.Request) {
	userID, err := auth.VerifyToken(r)
	if err != nil {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	filter := domain.FileFilter{
		MIMEType: r.URL.Query().Get("type"),
		Search:   r.URL.Query().Get("search"),
	}

	if raw := r.URL.Query().Get("folder_id"); raw != "" {
		id, parseErr := strconv.ParseInt(raw, 10, 64)
		if parseErr != nil {
			writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid folder_id"})
			return
		}
		filter.FolderID = &id
	}
	if raw := r.URL.Query().Get("limit"); raw != "" {
		filter.Limit, _ = strconv.Atoi(raw)
	}
	if raw := r.URL.Query().Get("offset"); raw != "" {
		filter.Offset, _ = strconv.Atoi(raw)
	}

	files, err := h.fileService.ListFiles(r.Context(), userID, filter)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, files)
}

// GetDownloadURL выдает временную подписанную ссылку на скачивание.
func (h *FileHandler) GetDownloadURL(w http.ResponseWriter, r *http.Request) {
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

	link, err := h.accessService.GetDownloadURL(r.Context(), fileUUID, userID)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, link)
}
