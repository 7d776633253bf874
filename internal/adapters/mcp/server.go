// Package mcpadapter exposes the document history to MCP clients.
package mcpadapter

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/kirillkom/document-intake/internal/core/domain"
	"github.com/kirillkom/document-intake/internal/core/ports"
)

const (
	serverName    = "document-intake"
	serverVersion = "1.0.0"

	toolListDocuments = "list_documents"
	toolGetDocument   = "get_document"
)

type Handlers struct {
	docs ports.DocumentReader
}

func NewHandlers(docs ports.DocumentReader) *Handlers {
	return &Handlers{docs: docs}
}

// NewServer registers the read-only document tools.
func NewServer(docs ports.DocumentReader) *server.MCPServer {
	h := NewHandlers(docs)
	s := server.NewMCPServer(serverName, serverVersion, server.WithToolCapabilities(false))

	s.AddTool(mcp.NewTool(toolListDocuments,
		mcp.WithDescription("List analyzed documents, newest first."),
		mcp.WithString("status",
			mcp.Description("Only return documents in this status."),
			mcp.Enum(string(domain.StatusProcessed), string(domain.StatusProcessing), string(domain.StatusError)),
		),
		mcp.WithNumber("limit", mcp.Description("Maximum number of documents (default 50, max 200).")),
		mcp.WithNumber("offset", mcp.Description("Number of documents to skip.")),
	), h.ListDocuments)

	s.AddTool(mcp.NewTool(toolGetDocument,
		mcp.WithDescription("Fetch one analyzed document with its summary and extracted fields."),
		mcp.WithString("id", mcp.Required(), mcp.Description("Document id.")),
	), h.GetDocument)

	return s
}

func (h *Handlers) ListDocuments(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	filter := domain.DocumentFilter{
		Status: domain.DocumentStatus(req.GetString("status", "")),
		Limit:  req.GetInt("limit", 0),
		Offset: req.GetInt("offset", 0),
	}
	docs, err := h.docs.List(ctx, filter)
	if err != nil {
		return toolError(err)
	}
	return jsonResult(map[string]any{"documents": docs})
}

func (h *Handlers) GetDocument(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, err := req.RequireString("id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	doc, err := h.docs.GetByID(ctx, id)
	if err != nil {
		return toolError(err)
	}
	return jsonResult(doc)
}

// toolError reports caller mistakes as tool results and keeps the protocol
// error for infrastructure failures.
func toolError(err error) (*mcp.CallToolResult, error) {
	if errors.Is(err, domain.ErrInvalidInput) || errors.Is(err, domain.ErrDocumentNotFound) {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return nil, err
}

func jsonResult(payload any) (*mcp.CallToolResult, error) {
	raw, err := json.MarshalIndent(payload, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshal tool result: %w", err)
	}
	return mcp.NewToolResultText(string(raw)), nil
}
