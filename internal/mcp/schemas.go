package mcp

import (
	"github.com/mark3labs/mcp-go/mcp"
)

// indexBankTool returns the tool definition for index_bank
func indexBankTool() mcp.Tool {
	return mcp.Tool{
		Name:        "index_bank",
		Description: "Index the study bank: classify PDFs by folder, extract and clean their text, embed and store it",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"roots": map[string]interface{}{
					"type":        "array",
					"description": "Absolute bank directories to crawl (defaults to the configured bank)",
					"items":       map[string]interface{}{"type": "string"},
				},
				"dry_run": map[string]interface{}{
					"type":        "boolean",
					"description": "Classify and extract without embedding or storing anything",
					"default":     false,
				},
				"discipline": map[string]interface{}{
					"type":        "string",
					"description": "Only index documents whose discipline name contains this text",
				},
				"max_files": map[string]interface{}{
					"type":        "integer",
					"description": "Stop after this many documents (0 = no limit)",
					"default":     0,
					"minimum":     0,
				},
			},
		},
	}
}

// searchContentTool returns the tool definition for search_content
func searchContentTool() mcp.Tool {
	return mcp.Tool{
		Name:        "search_content",
		Description: "Search indexed study material with natural language or keyword queries",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"query": map[string]interface{}{
					"type":        "string",
					"description": "Search query, 3 to 200 characters",
				},
				"limit": map[string]interface{}{
					"type":        "integer",
					"description": "Maximum number of results to return (1-50)",
					"default":     10,
					"minimum":     1,
					"maximum":     50,
				},
				"min_similarity": map[string]interface{}{
					"type":        "number",
					"description": "Minimum cosine similarity for vector hits",
					"default":     0.7,
					"minimum":     0.0,
					"maximum":     1.0,
				},
				"search_mode": map[string]interface{}{
					"type":        "string",
					"description": "Search strategy: vector (semantic), keyword, or hybrid (both, fused by rank)",
					"enum":        []string{"vector", "keyword", "hybrid"},
					"default":     "vector",
				},
			},
			Required: []string{"query"},
		},
	}
}

// indexStatsTool returns the tool definition for get_index_stats
func indexStatsTool() mcp.Tool {
	return mcp.Tool{
		Name:        "get_index_stats",
		Description: "Report how many contents are indexed, in total and per discipline",
		InputSchema: mcp.ToolInputSchema{
			Type:       "object",
			Properties: map[string]interface{}{},
		},
	}
}

// submitNoticeTool returns the tool definition for submit_notice
func submitNoticeTool() mcp.Tool {
	return mcp.Tool{
		Name:        "submit_notice",
		Description: "Queue an exam notice PDF for analysis and study plan generation",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"owner_id": map[string]interface{}{
					"type":        "string",
					"description": "Identifier of the student who owns the notice",
				},
				"path": map[string]interface{}{
					"type":        "string",
					"description": "Absolute path to the notice PDF",
				},
			},
			Required: []string{"owner_id", "path"},
		},
	}
}

// noticeStatusTool returns the tool definition for get_notice_status
func noticeStatusTool() mcp.Tool {
	return mcp.Tool{
		Name:        "get_notice_status",
		Description: "Poll the processing status of a submitted notice; returns metadata, disciplines and plan once active",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"owner_id": map[string]interface{}{
					"type":        "string",
					"description": "Identifier of the student who owns the notice",
				},
				"notice_id": map[string]interface{}{
					"type":        "string",
					"description": "Notice ID returned by submit_notice",
				},
			},
			Required: []string{"owner_id", "notice_id"},
		},
	}
}
