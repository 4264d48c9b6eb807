package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/semql/semql/internal/auth"
	"github.com/semql/semql/internal/cache"
	"github.com/semql/semql/internal/sqlcheck"
	"github.com/semql/semql/internal/texttosql"
)

type textToSQLRequest struct {
	Question string `json:"question"`
	Readonly *bool  `json:"readonly"`
}

type textToSQLResponse struct {
	SQL             string      `json:"sql"`
	IsValid         bool        `json:"is_valid"`
	FromCache       bool        `json:"from_cache"`
	SimilarityScore *float64    `json:"similarity_score,omitempty"`
	CachedQuestion  string      `json:"cached_question,omitempty"`
	CacheStats      cache.Stats `json:"cache_stats"`
}

func handleTextToSQL(deps Dependencies, w http.ResponseWriter, r *http.Request) {
	if deps.Service == nil {
		writeError(r.Context(), w, http.StatusNotImplemented, "SERVICE_NOT_CONFIGURED", "text-to-sql dependencies are not configured", false, nil)
		return
	}

	var request textToSQLRequest
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(&request); err != nil {
		writeError(r.Context(), w, http.StatusBadRequest, "INVALID_JSON", "invalid text-to-sql request body", false, map[string]any{"details": err.Error()})
		return
	}

	// readonly unless the caller explicitly asks for write mode
	readonly := true
	if request.Readonly != nil {
		readonly = *request.Readonly
	}

	role := auth.RoleSQLReader
	if !readonly {
		role = auth.RoleSQLWriter
	}
	if err := requireRole(r, role); err != nil {
		writeError(r.Context(), w, http.StatusForbidden, "FORBIDDEN", err.Error(), false, nil)
		return
	}

	result, err := deps.Service.ProcessQuestion(r.Context(), request.Question, readonly)
	if err != nil {
		handleServiceError(deps, w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, textToSQLResponse{
		SQL:             result.SQLQuery,
		IsValid:         result.IsValid,
		FromCache:       result.FromCache,
		SimilarityScore: result.SimilarityScore,
		CachedQuestion:  result.CachedQuestion,
		CacheStats:      result.CacheStats,
	})
}

type validateSQLRequest struct {
	SQL      string `json:"sql"`
	Readonly *bool  `json:"readonly"`
}

type validateSQLResponse struct {
	IsValid    bool   `json:"is_valid"`
	CleanedSQL string `json:"cleaned_sql"`
	Kind       string `json:"kind"`
	ReadonlyOK bool   `json:"readonly_ok"`
}

func handleValidateSQL(deps Dependencies, w http.ResponseWriter, r *http.Request) {
	if deps.Service == nil {
		writeError(r.Context(), w, http.StatusNotImplemented, "SERVICE_NOT_CONFIGURED", "text-to-sql dependencies are not configured", false, nil)
		return
	}
	if err := requireRole(r, auth.RoleSQLReader); err != nil {
		writeError(r.Context(), w, http.StatusForbidden, "FORBIDDEN", err.Error(), false, nil)
		return
	}

	var request validateSQLRequest
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(&request); err != nil {
		writeError(r.Context(), w, http.StatusBadRequest, "INVALID_JSON", "invalid validate request body", false, map[string]any{"details": err.Error()})
		return
	}
	if strings.TrimSpace(request.SQL) == "" {
		writeError(r.Context(), w, http.StatusBadRequest, "SQL_REQUIRED", "sql is required", false, nil)
		return
	}

	readonly := true
	if request.Readonly != nil {
		readonly = *request.Readonly
	}
	writeJSON(w, http.StatusOK, toValidateResponse(deps.Service.ValidateSQL(request.SQL, readonly)))
}

type correctSQLRequest struct {
	Question string `json:"question"`
	SQL      string `json:"sql"`
	Readonly *bool  `json:"readonly"`
}

type correctSQLResponse struct {
	IsValid      bool   `json:"is_valid"`
	CorrectedSQL string `json:"corrected_sql"`
	Kind         string `json:"kind"`
	ReadonlyOK   bool   `json:"readonly_ok"`
	Explanation  string `json:"explanation"`
}

func handleCorrectSQL(deps Dependencies, w http.ResponseWriter, r *http.Request) {
	if deps.Service == nil {
		writeError(r.Context(), w, http.StatusNotImplemented, "SERVICE_NOT_CONFIGURED", "text-to-sql dependencies are not configured", false, nil)
		return
	}
	if err := requireRole(r, auth.RoleSQLReader); err != nil {
		writeError(r.Context(), w, http.StatusForbidden, "FORBIDDEN", err.Error(), false, nil)
		return
	}

	var request correctSQLRequest
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(&request); err != nil {
		writeError(r.Context(), w, http.StatusBadRequest, "INVALID_JSON", "invalid correct request body", false, map[string]any{"details": err.Error()})
		return
	}
	if strings.TrimSpace(request.SQL) == "" {
		writeError(r.Context(), w, http.StatusBadRequest, "SQL_REQUIRED", "sql is required", false, nil)
		return
	}

	readonly := true
	if request.Readonly != nil {
		readonly = *request.Readonly
	}
	outcome, err := deps.Service.ValidateAndCorrectSQL(r.Context(), request.Question, request.SQL, readonly)
	if err != nil {
		handleServiceError(deps, w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, correctSQLResponse{
		IsValid:      outcome.Result.IsValid,
		CorrectedSQL: outcome.Result.CleanedSQL,
		Kind:         string(outcome.Result.Kind),
		ReadonlyOK:   outcome.Result.ReadonlyOK,
		Explanation:  outcome.Explanation,
	})
}

type explainSQLRequest struct {
	SQL string `json:"sql"`
}

func handleExplainSQL(deps Dependencies, w http.ResponseWriter, r *http.Request) {
	if deps.Service == nil {
		writeError(r.Context(), w, http.StatusNotImplemented, "SERVICE_NOT_CONFIGURED", "text-to-sql dependencies are not configured", false, nil)
		return
	}
	if err := requireRole(r, auth.RoleSQLReader); err != nil {
		writeError(r.Context(), w, http.StatusForbidden, "FORBIDDEN", err.Error(), false, nil)
		return
	}

	var request explainSQLRequest
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(&request); err != nil {
		writeError(r.Context(), w, http.StatusBadRequest, "INVALID_JSON", "invalid explain request body", false, map[string]any{"details": err.Error()})
		return
	}
	if strings.TrimSpace(request.SQL) == "" {
		writeError(r.Context(), w, http.StatusBadRequest, "SQL_REQUIRED", "sql is required", false, nil)
		return
	}

	explanation, err := deps.Service.ExplainSQL(r.Context(), request.SQL)
	if err != nil {
		handleServiceError(deps, w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"explanation": explanation})
}

func handleServiceError(deps Dependencies, w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, texttosql.ErrEmptyQuestion):
		writeError(r.Context(), w, http.StatusBadRequest, "QUESTION_REQUIRED", "question is required", false, nil)
	case errors.Is(err, texttosql.ErrEmbedding):
		writeError(r.Context(), w, http.StatusBadGateway, "EMBEDDING_FAILED", "embedding service failed", true, map[string]any{"details": err.Error()})
	case errors.Is(err, texttosql.ErrGeneration):
		writeError(r.Context(), w, http.StatusBadGateway, "GENERATION_FAILED", "sql generation failed", true, map[string]any{"details": err.Error()})
	default:
		if deps.Logger != nil {
			deps.Logger.ErrorContext(r.Context(), "unhandled service error", "error", err)
		}
		writeError(r.Context(), w, http.StatusInternalServerError, "INTERNAL_ERROR", "internal error", true, nil)
	}
}

func toValidateResponse(res sqlcheck.Result) validateSQLResponse {
	return validateSQLResponse{
		IsValid:    res.IsValid,
		CleanedSQL: res.CleanedSQL,
		Kind:       string(res.Kind),
		ReadonlyOK: res.ReadonlyOK,
	}
}
