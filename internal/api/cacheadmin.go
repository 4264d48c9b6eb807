package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/semql/semql/internal/archive"
	"github.com/semql/semql/internal/auth"
)

func handleCacheStats(deps Dependencies, w http.ResponseWriter, r *http.Request) {
	if deps.Service == nil {
		writeError(r.Context(), w, http.StatusNotImplemented, "SERVICE_NOT_CONFIGURED", "text-to-sql dependencies are not configured", false, nil)
		return
	}
	if err := requireRole(r, auth.RoleSQLReader); err != nil {
		writeError(r.Context(), w, http.StatusForbidden, "FORBIDDEN", err.Error(), false, nil)
		return
	}

	stats, err := deps.Service.CacheStats(r.Context())
	if err != nil {
		writeError(r.Context(), w, http.StatusInternalServerError, "CACHE_ERROR", "failed to load cache stats", true, map[string]any{"details": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

func handleCacheClear(deps Dependencies, w http.ResponseWriter, r *http.Request) {
	if deps.Service == nil {
		writeError(r.Context(), w, http.StatusNotImplemented, "SERVICE_NOT_CONFIGURED", "text-to-sql dependencies are not configured", false, nil)
		return
	}
	if err := requireRole(r, auth.RoleCacheAdmin); err != nil {
		writeError(r.Context(), w, http.StatusForbidden, "FORBIDDEN", err.Error(), false, nil)
		return
	}

	removed, err := deps.Service.ClearCache(r.Context())
	if err != nil {
		writeError(r.Context(), w, http.StatusInternalServerError, "CACHE_ERROR", "failed to clear cache", true, map[string]any{"details": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"removed": removed})
}

type cacheExportRequest struct {
	Key string `json:"key"`
}

func handleCacheExport(deps Dependencies, w http.ResponseWriter, r *http.Request) {
	if deps.Archiver == nil {
		writeError(r.Context(), w, http.StatusNotImplemented, "ARCHIVE_NOT_CONFIGURED", "archive storage is not configured", false, nil)
		return
	}
	if err := requireRole(r, auth.RoleCacheAdmin); err != nil {
		writeError(r.Context(), w, http.StatusForbidden, "FORBIDDEN", err.Error(), false, nil)
		return
	}

	var request cacheExportRequest
	if r.ContentLength != 0 {
		decoder := json.NewDecoder(r.Body)
		decoder.DisallowUnknownFields()
		if err := decoder.Decode(&request); err != nil {
			writeError(r.Context(), w, http.StatusBadRequest, "INVALID_JSON", "invalid export request body", false, map[string]any{"details": err.Error()})
			return
		}
	}

	result, err := deps.Archiver.Export(r.Context(), request.Key)
	if err != nil {
		writeError(r.Context(), w, http.StatusInternalServerError, "EXPORT_FAILED", "cache export failed", true, map[string]any{"details": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, result)
}

type cacheRestoreRequest struct {
	Key     string `json:"key"`
	Replace bool   `json:"replace"`
}

func handleCacheRestore(deps Dependencies, w http.ResponseWriter, r *http.Request) {
	if deps.Archiver == nil {
		writeError(r.Context(), w, http.StatusNotImplemented, "ARCHIVE_NOT_CONFIGURED", "archive storage is not configured", false, nil)
		return
	}
	if err := requireRole(r, auth.RoleCacheAdmin); err != nil {
		writeError(r.Context(), w, http.StatusForbidden, "FORBIDDEN", err.Error(), false, nil)
		return
	}

	var request cacheRestoreRequest
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(&request); err != nil {
		writeError(r.Context(), w, http.StatusBadRequest, "INVALID_JSON", "invalid restore request body", false, map[string]any{"details": err.Error()})
		return
	}
	if request.Key == "" {
		writeError(r.Context(), w, http.StatusBadRequest, "KEY_REQUIRED", "archive key is required", false, nil)
		return
	}

	result, err := deps.Archiver.Restore(r.Context(), request.Key, request.Replace)
	if err != nil {
		if errors.Is(err, archive.ErrObjectNotFound) {
			writeError(r.Context(), w, http.StatusNotFound, "ARCHIVE_NOT_FOUND", "archive object was not found", false, map[string]any{"key": request.Key})
			return
		}
		writeError(r.Context(), w, http.StatusInternalServerError, "RESTORE_FAILED", "cache restore failed", true, map[string]any{"details": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, result)
}
