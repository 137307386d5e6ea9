package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/Aman-CERP/mixsearch/internal/store"
)

const (
	// QueryMetricsURI serves the in-process query log as JSON.
	QueryMetricsURI = "mixsearch://query_metrics"

	// DocumentURIPrefix prefixes document resources; the rest of the URI is
	// the document ID.
	DocumentURIPrefix = "mixsearch://doc/"

	// MaxResourceSize caps the bytes returned for one document.
	MaxResourceSize = 1024 * 1024
)

func (s *Server) registerResources() {
	if s.deps.QueryLog != nil {
		s.mcp.AddResource(
			&mcp.Resource{
				Name:        "query_metrics",
				URI:         QueryMetricsURI,
				Description: "Recent query activity: kinds, latency buckets, top terms and zero-result queries",
				MIMEType:    "application/json",
			},
			s.handleQueryMetrics,
		)
	}
	if s.deps.Lookup != nil {
		s.mcp.AddResourceTemplate(
			&mcp.ResourceTemplate{
				Name:        "document",
				URITemplate: DocumentURIPrefix + "{+id}",
				Description: "Full text of an indexed document",
				MIMEType:    "text/plain",
			},
			s.handleDocument,
		)
	}
}

func (s *Server) handleQueryMetrics(_ context.Context, _ *mcp.ReadResourceRequest) (*mcp.ReadResourceResult, error) {
	if s.deps.QueryLog == nil {
		return nil, NewInvalidParamsError("query metrics not available")
	}
	data, err := json.MarshalIndent(s.deps.QueryLog.Snapshot(topTermsInStats), "", "  ")
	if err != nil {
		return nil, MapError(err)
	}
	return &mcp.ReadResourceResult{
		Contents: []*mcp.ResourceContents{{
			URI:      QueryMetricsURI,
			MIMEType: "application/json",
			Text:     string(data),
		}},
	}, nil
}

func (s *Server) handleDocument(ctx context.Context, req *mcp.ReadResourceRequest) (*mcp.ReadResourceResult, error) {
	return s.readDocument(ctx, req.Params.URI)
}

// readDocument resolves a document URI against the configured lookup.
func (s *Server) readDocument(ctx context.Context, uri string) (*mcp.ReadResourceResult, error) {
	id, ok := strings.CutPrefix(uri, DocumentURIPrefix)
	if !ok || id == "" {
		return nil, NewInvalidParamsError(fmt.Sprintf("invalid document URI: %s", uri))
	}
	if s.deps.Lookup == nil {
		return nil, mcp.ResourceNotFoundError(uri)
	}

	doc, err := s.deps.Lookup.Get(ctx, id)
	if errors.Is(err, store.ErrNotFound) {
		return nil, mcp.ResourceNotFoundError(uri)
	}
	if err != nil {
		return nil, MapError(err)
	}
	if len(doc.Content) > MaxResourceSize {
		return nil, &MCPError{
			Code:    ErrCodeInvalidParams,
			Message: fmt.Sprintf("document %s exceeds %d bytes", id, MaxResourceSize),
		}
	}

	return &mcp.ReadResourceResult{
		Contents: []*mcp.ResourceContents{{
			URI:      uri,
			MIMEType: "text/plain",
			Text:     doc.Content,
		}},
	}, nil
}
