package mcpserver

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"

	"pagebuilder/internal/registry"
)

const (
	catalogURI    = "pagebuilder://catalog"
	pageURIPrefix = "pagebuilder://page/"
	pageURISuffix = "/document"
)

func (s *Server) registerResources() {
	// ── pagebuilder://catalog ──────────────────────────
	s.mcp.AddResource(mcp.NewResource(
		catalogURI,
		"Block Catalog",
		mcp.WithMIMEType("application/json"),
	), s.handleCatalogResource)

	// ── pagebuilder://page/{pageId}/document ───────────
	s.mcp.AddResourceTemplate(
		mcp.NewResourceTemplate(
			pageURIPrefix+"{pageId}"+pageURISuffix,
			"Content tree of a page",
		),
		s.handlePageDocumentResource,
	)
}

func (s *Server) handleCatalogResource(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	reg := s.reg.Current()
	types := make([]*registry.BlockType, 0, len(reg.Names()))
	for _, name := range reg.Names() {
		t, _ := reg.Lookup(name)
		types = append(types, t)
	}

	data, err := json.MarshalIndent(types, "", "  ")
	if err != nil {
		return nil, err
	}
	return []mcp.ResourceContents{
		mcp.TextResourceContents{
			URI:      catalogURI,
			MIMEType: "application/json",
			Text:     string(data),
		},
	}, nil
}

func (s *Server) handlePageDocumentResource(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	uri := req.Params.URI
	pageID := extractPageIDFromURI(uri)
	if pageID == "" {
		return nil, fmt.Errorf("could not extract pageId from URI: %s", uri)
	}

	sess, err := s.editor.Open(ctx, s.siteID, pageID)
	if err != nil {
		return nil, err
	}

	data, err := json.MarshalIndent(sess.Document(), "", "  ")
	if err != nil {
		return nil, err
	}
	return []mcp.ResourceContents{
		mcp.TextResourceContents{
			URI:      uri,
			MIMEType: "application/json",
			Text:     string(data),
		},
	}, nil
}

// extractPageIDFromURI extracts the page ID from "pagebuilder://page/{id}/document".
func extractPageIDFromURI(uri string) string {
	rest, ok := strings.CutPrefix(uri, pageURIPrefix)
	if !ok {
		return ""
	}
	id, ok := strings.CutSuffix(rest, pageURISuffix)
	if !ok || strings.Contains(id, "/") {
		return ""
	}
	return id
}
