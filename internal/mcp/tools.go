package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/dshills/editalindex/internal/embedder"
	"github.com/dshills/editalindex/internal/indexer"
	"github.com/dshills/editalindex/internal/notice"
	"github.com/dshills/editalindex/internal/searcher"
	"github.com/dshills/editalindex/internal/storage"
)

// MCP error codes
const (
	ErrorCodeInvalidParams      = -32602 // Invalid method parameters
	ErrorCodeInternalError      = -32603 // Internal JSON-RPC error
	ErrorCodeNotFound           = -32001 // Notice or path does not exist
	ErrorCodeIndexingInProgress = -32002 // Another indexing operation is already running
	ErrorCodeUnavailable        = -32003 // Feature needs a provider that is not configured
	ErrorCodeInvalidQuery       = -32004 // Query is empty or out of bounds
	ErrorCodeDuplicate          = -32005 // Notice content was already imported
	ErrorCodeLimitReached       = -32006 // Owner reached the notice limit
)

// maxReportedErrors bounds the per-file errors echoed back by index_bank
const maxReportedErrors = 5

// handleIndexBank handles the index_bank tool invocation
func (s *Server) handleIndexBank(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, ok := arguments(request)
	if !ok {
		return nil, newMCPError(ErrorCodeInvalidParams, "invalid arguments", nil)
	}

	roots := getStringSlice(args, "roots")
	if len(roots) == 0 {
		roots = s.deps.BankRoots
	}
	if len(roots) == 0 {
		return nil, newMCPError(ErrorCodeInvalidParams, "roots parameter is required", map[string]interface{}{
			"param":  "roots",
			"reason": "no roots given and no bank directory configured",
		})
	}
	for _, root := range roots {
		if err := validateDir(root); err != nil {
			return nil, newMCPError(ErrorCodeInvalidParams, "invalid root", map[string]interface{}{
				"param":  "roots",
				"value":  root,
				"reason": err.Error(),
			})
		}
	}

	maxFiles := getIntDefault(args, "max_files", 0)
	if maxFiles < 0 {
		return nil, newMCPError(ErrorCodeInvalidParams, "max_files cannot be negative", map[string]interface{}{
			"param": "max_files",
			"value": maxFiles,
		})
	}
	dryRun := getBoolDefault(args, "dry_run", false)

	stats, err := s.deps.Indexer.Run(ctx, indexer.Options{
		Roots:            roots,
		DryRun:           dryRun,
		DisciplineFilter: getStringDefault(args, "discipline", ""),
		MaxFiles:         maxFiles,
	})
	if err != nil {
		return nil, toMCPError("indexing failed", err)
	}
	if !dryRun && stats.Indexed > 0 {
		s.deps.Searcher.InvalidateCache()
	}

	skips := make(map[string]int, len(stats.Skips))
	for reason, n := range stats.Skips {
		skips[string(reason)] = n
	}
	response := map[string]interface{}{
		"dry_run":     dryRun,
		"processed":   stats.Total,
		"indexed":     stats.Indexed,
		"skipped":     stats.Skipped,
		"errors":      stats.Errors,
		"skips":       skips,
		"duration_ms": stats.Duration.Milliseconds(),
	}
	if n := len(stats.ErrorMessages); n > 0 {
		if n > maxReportedErrors {
			response["error_messages"] = stats.ErrorMessages[:maxReportedErrors]
		} else {
			response["error_messages"] = stats.ErrorMessages
		}
	}
	return mcp.NewToolResultText(formatJSON(response)), nil
}

// handleSearchContent handles the search_content tool invocation
func (s *Server) handleSearchContent(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, ok := arguments(request)
	if !ok {
		return nil, newMCPError(ErrorCodeInvalidParams, "invalid arguments", nil)
	}

	query, ok := args["query"].(string)
	if !ok || query == "" {
		return nil, newMCPError(ErrorCodeInvalidQuery, "query parameter is required and cannot be empty", map[string]interface{}{
			"param":  "query",
			"reason": "missing or empty",
		})
	}

	limit := getIntDefault(args, "limit", searcher.DefaultLimit)
	if limit < 1 || limit > searcher.MaxLimit {
		return nil, newMCPError(ErrorCodeInvalidParams, fmt.Sprintf("limit must be between 1 and %d", searcher.MaxLimit), map[string]interface{}{
			"param": "limit",
			"value": limit,
		})
	}

	minSimilarity := getFloatDefault(args, "min_similarity", searcher.DefaultMinSimilarity)
	if minSimilarity < 0 || minSimilarity > 1 {
		return nil, newMCPError(ErrorCodeInvalidParams, "min_similarity must be between 0 and 1", map[string]interface{}{
			"param": "min_similarity",
			"value": minSimilarity,
		})
	}

	mode := searcher.SearchMode(getStringDefault(args, "search_mode", ""))
	switch mode {
	case "", searcher.SearchModeVector, searcher.SearchModeKeyword, searcher.SearchModeHybrid:
	default:
		return nil, newMCPError(ErrorCodeInvalidParams, "invalid search_mode", map[string]interface{}{
			"param":   "search_mode",
			"value":   mode,
			"allowed": []string{"vector", "keyword", "hybrid"},
		})
	}

	resp, err := s.deps.Searcher.Search(ctx, searcher.SearchRequest{
		Query:         query,
		Limit:         limit,
		Mode:          mode,
		MinSimilarity: minSimilarity,
		UseCache:      true,
	})
	if err != nil {
		return nil, toMCPError("search failed", err)
	}

	results := make([]map[string]interface{}, 0, len(resp.Results))
	for _, r := range resp.Results {
		results = append(results, map[string]interface{}{
			"rank":       r.Rank,
			"content_id": r.ContentID,
			"title":      r.Title,
			"source":     r.SourceKey,
			"discipline": r.Discipline,
			"excerpt":    r.Excerpt,
			"score":      r.RelevanceScore,
		})
	}
	return mcp.NewToolResultText(formatJSON(map[string]interface{}{
		"query":       query,
		"search_mode": resp.SearchMode,
		"total":       resp.TotalResults,
		"cache_hit":   resp.CacheHit,
		"duration_ms": resp.Duration.Milliseconds(),
		"results":     results,
	})), nil
}

// handleIndexStats handles the get_index_stats tool invocation
func (s *Server) handleIndexStats(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	total, err := s.deps.Store.CountContents(ctx)
	if err != nil {
		return nil, toMCPError("failed to count contents", err)
	}
	counts, err := s.deps.Store.CountByDiscipline(ctx)
	if err != nil {
		return nil, toMCPError("failed to count contents", err)
	}

	byDiscipline := make([]map[string]interface{}, 0, len(counts))
	for _, c := range counts {
		byDiscipline = append(byDiscipline, map[string]interface{}{
			"slug":  c.Slug,
			"name":  c.Name,
			"count": c.Count,
		})
	}
	return mcp.NewToolResultText(formatJSON(map[string]interface{}{
		"total_contents":     total,
		"disciplines":        byDiscipline,
		"indexing_running":   s.deps.Indexer.Running(),
		"embedding_provider": s.deps.Searcher.Provider(),
	})), nil
}

// handleSubmitNotice handles the submit_notice tool invocation
func (s *Server) handleSubmitNotice(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	if s.deps.Notices == nil {
		return nil, newMCPError(ErrorCodeUnavailable, "notice processing is not configured", map[string]interface{}{
			"reason": "no language model provider",
		})
	}
	args, ok := arguments(request)
	if !ok {
		return nil, newMCPError(ErrorCodeInvalidParams, "invalid arguments", nil)
	}
	owner, err := requireString(args, "owner_id")
	if err != nil {
		return nil, err
	}
	path, err := requireString(args, "path")
	if err != nil {
		return nil, err
	}
	if err := validateFile(path); err != nil {
		return nil, newMCPError(ErrorCodeInvalidParams, "invalid path", map[string]interface{}{
			"param":  "path",
			"reason": err.Error(),
		})
	}

	content, err := os.ReadFile(path)
	if err != nil {
		return nil, toMCPError("failed to read notice", err)
	}
	h, err := s.deps.Notices.Submit(ctx, notice.Upload{OwnerID: owner, FileName: filepath.Base(path), Content: content})
	if err != nil {
		return nil, toMCPError("submit failed", err)
	}
	return mcp.NewToolResultText(formatJSON(map[string]interface{}{
		"notice_id": h.NoticeID,
		"job_id":    h.JobID,
		"status":    h.Status,
	})), nil
}

// handleNoticeStatus handles the get_notice_status tool invocation
func (s *Server) handleNoticeStatus(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	if s.deps.Notices == nil {
		return nil, newMCPError(ErrorCodeUnavailable, "notice processing is not configured", nil)
	}
	args, ok := arguments(request)
	if !ok {
		return nil, newMCPError(ErrorCodeInvalidParams, "invalid arguments", nil)
	}
	owner, err := requireString(args, "owner_id")
	if err != nil {
		return nil, err
	}
	id, err := requireString(args, "notice_id")
	if err != nil {
		return nil, err
	}

	v, err := s.deps.Notices.Status(ctx, id, owner)
	if err != nil {
		return nil, toMCPError("failed to get notice status", err)
	}
	return mcp.NewToolResultText(formatJSON(statusResponse(v))), nil
}

// statusResponse renders a status view; metadata only exists once ACTIVE
func statusResponse(v *notice.StatusView) map[string]interface{} {
	response := map[string]interface{}{
		"notice_id":  v.NoticeID,
		"status":     v.Status,
		"progress":   v.Progress,
		"stage":      v.Stage,
		"job_status": v.JobStatus,
		"terminal":   v.Terminal(),
	}
	if v.ErrorMessage != "" {
		response["error"] = v.ErrorMessage
	}
	if v.Notice == nil {
		return response
	}

	n := v.Notice
	meta := map[string]interface{}{
		"issuing_body":  n.IssuingBody,
		"agency":        n.Agency,
		"role":          n.Role,
		"notice_number": n.NoticeNumber,
	}
	if n.ExamDate != nil {
		meta["exam_date"] = n.ExamDate.Format(time.DateOnly)
	}
	if n.PublishedAt != nil {
		meta["published_at"] = n.PublishedAt.Format(time.DateOnly)
	}
	if n.Salary != nil {
		meta["salary"] = *n.Salary
	}
	if n.Vacancies != nil {
		meta["vacancies"] = *n.Vacancies
	}
	if n.TotalQuestions != nil {
		meta["total_questions"] = *n.TotalQuestions
	}
	response["metadata"] = meta

	disciplines := make([]map[string]interface{}, 0, len(v.Disciplines))
	for _, d := range v.Disciplines {
		entry := map[string]interface{}{
			"name":   d.Name,
			"weight": d.Weight,
			"topics": d.Topics,
			"linked": d.DisciplineID != nil,
		}
		if d.QuestionCount != nil {
			entry["question_count"] = *d.QuestionCount
		}
		disciplines = append(disciplines, entry)
	}
	response["disciplines"] = disciplines

	if p := v.Plan; p != nil {
		response["plan"] = map[string]interface{}{
			"start_date":          p.StartDate.Format(time.DateOnly),
			"end_date":            p.EndDate.Format(time.DateOnly),
			"hours_per_day":       p.HoursPerDay,
			"total_hours":         p.TotalHours(),
			"allocations":         p.Allocations,
			"success_probability": p.SuccessProbability,
		}
	}
	return response
}

// Helper functions

// toMCPError maps domain errors onto MCP error codes
func toMCPError(message string, err error) error {
	code := ErrorCodeInternalError
	switch {
	case errors.Is(err, indexer.ErrIndexingInProgress):
		code = ErrorCodeIndexingInProgress
	case errors.Is(err, searcher.ErrInvalidQuery):
		code = ErrorCodeInvalidQuery
	case errors.Is(err, embedder.ErrNoProviderEnabled):
		code = ErrorCodeUnavailable
	case errors.Is(err, storage.ErrNotFound), errors.Is(err, os.ErrNotExist):
		code = ErrorCodeNotFound
	case errors.Is(err, notice.ErrDuplicateNotice):
		code = ErrorCodeDuplicate
	case errors.Is(err, notice.ErrNoticeLimit):
		code = ErrorCodeLimitReached
	case errors.Is(err, notice.ErrEmptyUpload), errors.Is(err, notice.ErrUploadTooLarge),
		errors.Is(err, notice.ErrMissingOwner), errors.Is(err, storage.ErrConflict):
		code = ErrorCodeInvalidParams
	}
	return newMCPError(code, message, map[string]interface{}{
		"error": err.Error(),
	})
}

// newMCPError creates a properly formatted MCP error
func newMCPError(code int, message string, data interface{}) error {
	// MCP errors are returned as regular errors, the framework handles encoding
	return &MCPError{
		Code:    code,
		Message: message,
		Data:    data,
	}
}

// MCPError represents an MCP protocol error
type MCPError struct {
	Code    int
	Message string
	Data    interface{}
}

func (e *MCPError) Error() string {
	return fmt.Sprintf("MCP error %d: %s", e.Code, e.Message)
}

func arguments(request mcp.CallToolRequest) (map[string]interface{}, bool) {
	if request.Params.Arguments == nil {
		return map[string]interface{}{}, true
	}
	args, ok := request.Params.Arguments.(map[string]interface{})
	return args, ok
}

func requireString(args map[string]interface{}, key string) (string, error) {
	v, ok := args[key].(string)
	if !ok || v == "" {
		return "", newMCPError(ErrorCodeInvalidParams, key+" parameter is required", map[string]interface{}{
			"param":  key,
			"reason": "missing or empty",
		})
	}
	return v, nil
}

// validateDir checks that path is an absolute, readable directory
func validateDir(path string) error {
	if !filepath.IsAbs(path) {
		return ErrPathNotAbsolute
	}
	info, err := os.Stat(path)
	if os.IsNotExist(err) {
		return ErrPathNotFound
	}
	if err != nil {
		return ErrPathNotReadable
	}
	if !info.IsDir() {
		return ErrNotDirectory
	}
	return nil
}

// validateFile checks that path is an absolute regular file within the upload limit
func validateFile(path string) error {
	if !filepath.IsAbs(path) {
		return ErrPathNotAbsolute
	}
	info, err := os.Stat(path)
	if os.IsNotExist(err) {
		return ErrPathNotFound
	}
	if err != nil {
		return ErrPathNotReadable
	}
	if info.IsDir() {
		return ErrNotFile
	}
	if info.Size() > notice.MaxUploadBytes {
		return notice.ErrUploadTooLarge
	}
	return nil
}

// formatJSON formats a map as indented JSON
func formatJSON(data map[string]interface{}) string {
	bytes, err := json.MarshalIndent(data, "", "  ")
	if err != nil {
		return fmt.Sprintf("%v", data)
	}
	return string(bytes)
}

// getBoolDefault extracts a boolean parameter with a default value
func getBoolDefault(args map[string]interface{}, key string, defaultValue bool) bool {
	if val, ok := args[key].(bool); ok {
		return val
	}
	return defaultValue
}

// getIntDefault extracts an integer parameter with a default value
func getIntDefault(args map[string]interface{}, key string, defaultValue int) int {
	if val, ok := args[key].(float64); ok {
		return int(val)
	}
	if val, ok := args[key].(int); ok {
		return val
	}
	return defaultValue
}

func getFloatDefault(args map[string]interface{}, key string, defaultValue float64) float64 {
	switch val := args[key].(type) {
	case float64:
		return val
	case int:
		return float64(val)
	}
	return defaultValue
}

// getStringDefault extracts a string parameter with a default value
func getStringDefault(args map[string]interface{}, key string, defaultValue string) string {
	if val, ok := args[key].(string); ok {
		return val
	}
	return defaultValue
}

// getStringSlice accepts a JSON array of strings or a single string
func getStringSlice(args map[string]interface{}, key string) []string {
	switch val := args[key].(type) {
	case string:
		if val != "" {
			return []string{val}
		}
	case []string:
		return val
	case []interface{}:
		out := make([]string, 0, len(val))
		for _, item := range val {
			if s, ok := item.(string); ok && s != "" {
				out = append(out, s)
			}
		}
		return out
	}
	return nil
}

// Validation helpers

var (
	ErrPathNotAbsolute = errors.New("path must be absolute")
	ErrPathNotFound    = errors.New("path does not exist")
	ErrPathNotReadable = errors.New("path is not readable")
	ErrNotDirectory    = errors.New("path is not a directory")
	ErrNotFile         = errors.New("path is a directory")
)
