// Package mcp implements the Model Context Protocol (MCP) server for the
// study bank.
//
// The server exposes five tools to MCP clients:
//   - index_bank: crawl the bank directories and index new documents
//   - search_content: query indexed material semantically or by keyword
//   - get_index_stats: content counts in total and per discipline
//   - submit_notice: queue an exam notice PDF for analysis
//   - get_notice_status: poll a submitted notice until it is ACTIVE or ERROR
//
// MCP is JSON-RPC 2.0 over stdio, so the server writes nothing but protocol
// messages to stdout. Logs go to stderr.
//
//	editalindex serve
//
// # Tool: search_content
//
//	Request:
//	{
//	  "name": "search_content",
//	  "arguments": {"query": "controle de constitucionalidade", "limit": 5}
//	}
//
//	Response:
//	{
//	  "search_mode": "vector",
//	  "total": 1,
//	  "results": [
//	    {
//	      "rank": 1,
//	      "title": "Controle de constitucionalidade",
//	      "discipline": "direito-constitucional",
//	      "source": "/bank/CONSTITUCIONAL/Controle de constitucionalidade.pdf",
//	      "score": 0.83,
//	      "excerpt": "O controle difuso..."
//	    }
//	  ]
//	}
//
// # Tool: get_notice_status
//
// Returns status, progress (15, 35, 60, 80, 100) and stage of the latest
// job. Metadata, disciplines and the study plan are included once the notice
// is ACTIVE; the error message once it is ERROR.
//
// # Client configuration
//
//	{
//	  "mcpServers": {
//	    "editalindex": {
//	      "command": "/usr/local/bin/editalindex",
//	      "args": ["serve"],
//	      "env": {"OPENAI_API_KEY": "...", "ANTHROPIC_API_KEY": "..."}
//	    }
//	  }
//	}
//
// # Error Handling
//
// Tool errors are *MCPError values carrying a JSON-RPC code:
//   - -32602: invalid params
//   - -32603: internal error
//   - -32001: notice or path not found
//   - -32002: indexing in progress
//   - -32003: provider not configured
//   - -32004: invalid query
//   - -32005: duplicate notice
//   - -32006: notice limit reached
package mcp
