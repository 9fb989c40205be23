package mcp

import (
	"context"
	"errors"
	"strings"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/forest6511/sourcectl/pkg/sources"
)

// SourceListInput represents input for the source_list tool.
type SourceListInput struct {
	Status string `json:"status,omitempty"` // optional filter: locked/unlocked/pending/errored
}

// SourceListOutput represents output for the source_list tool.
type SourceListOutput struct {
	Sources []SourceInfo `json:"sources"`
}

// SourceInfo is source metadata without content.
type SourceInfo struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	Type   string `json:"type"`
	Status string `json:"status"`
}

// SourceStatusInput represents input for the source_status tool.
type SourceStatusInput struct {
	ID string `json:"id"`
}

// SourceStatusOutput represents output for the source_status tool.
type SourceStatusOutput struct {
	Exists bool   `json:"exists"`
	ID     string `json:"id"`
	Name   string `json:"name,omitempty"`
	Status string `json:"status,omitempty"`
}

// CodeListInput represents input for the code_list tool.
type CodeListInput struct {
	SourceID string `json:"source_id,omitempty"` // optional filter
}

// CodeListOutput represents output for the code_list tool.
type CodeListOutput struct {
	Codes []CodeInfo `json:"codes"`
}

// CodeInfo is one masked one-time-code descriptor.
type CodeInfo struct {
	SourceID   string `json:"source_id"`
	EntryID    string `json:"entry_id"`
	EntryTitle string `json:"entry_title"`
	MaskedURI  string `json:"masked_uri"`
}

// SearchInput represents input for the search tool.
type SearchInput struct {
	Query string `json:"query"`
}

// SearchOutput represents output for the search tool.
type SearchOutput struct {
	Results []SearchHit `json:"results"`
}

// SearchHit locates one matching entry.
type SearchHit struct {
	SourceID   string `json:"source_id"`
	SourceName string `json:"source_name"`
	EntryID    string `json:"entry_id"`
	EntryTitle string `json:"entry_title"`
}

// handleSourceList handles the source_list tool call.
func (s *Server) handleSourceList(_ context.Context, _ *mcp.CallToolRequest, input SourceListInput) (*mcp.CallToolResult, SourceListOutput, error) {
	output := SourceListOutput{Sources: []SourceInfo{}}
	for _, snap := range s.registry.Sources() {
		status := snap.Status.String()
		if input.Status != "" && input.Status != status {
			continue
		}
		output.Sources = append(output.Sources, SourceInfo{
			ID:     snap.ID,
			Name:   snap.Name,
			Type:   snap.Type,
			Status: status,
		})
	}
	return nil, output, nil
}

// handleSourceStatus handles the source_status tool call.
func (s *Server) handleSourceStatus(_ context.Context, _ *mcp.CallToolRequest, input SourceStatusInput) (*mcp.CallToolResult, SourceStatusOutput, error) {
	if input.ID == "" {
		return nil, SourceStatusOutput{}, errors.New("id is required")
	}

	snap, err := s.registry.SourceForID(input.ID)
	if err != nil {
		if errors.Is(err, sources.ErrNotFound) {
			return nil, SourceStatusOutput{Exists: false, ID: input.ID}, nil
		}
		return nil, SourceStatusOutput{}, err
	}

	return nil, SourceStatusOutput{
		Exists: true,
		ID:     snap.ID,
		Name:   snap.Name,
		Status: snap.Status.String(),
	}, nil
}

// handleCodeList handles the code_list tool call.
func (s *Server) handleCodeList(_ context.Context, _ *mcp.CallToolRequest, input CodeListInput) (*mcp.CallToolResult, CodeListOutput, error) {
	output := CodeListOutput{Codes: []CodeInfo{}}

	appendCodes := func(entries []sources.CodeEntry) {
		for _, e := range entries {
			output.Codes = append(output.Codes, CodeInfo{
				SourceID:   e.SourceID,
				EntryID:    e.EntryID,
				EntryTitle: e.EntryTitle,
				MaskedURI:  maskCodeURI(e.CodeURI),
			})
		}
	}

	if input.SourceID != "" {
		entries, ok := s.registry.Codes().CodesFor(input.SourceID)
		if !ok {
			return nil, output, nil
		}
		appendCodes(entries)
		return nil, output, nil
	}

	for _, snap := range s.registry.Sources() {
		if entries, ok := s.registry.Codes().CodesFor(snap.ID); ok {
			appendCodes(entries)
		}
	}
	return nil, output, nil
}

// handleSearch handles the search tool call.
func (s *Server) handleSearch(_ context.Context, _ *mcp.CallToolRequest, input SearchInput) (*mcp.CallToolResult, SearchOutput, error) {
	if input.Query == "" {
		return nil, SearchOutput{}, errors.New("query is required")
	}

	output := SearchOutput{Results: []SearchHit{}}
	for _, r := range s.index.Lookup(input.Query) {
		output.Results = append(output.Results, SearchHit{
			SourceID:   r.SourceID,
			SourceName: r.SourceName,
			EntryID:    r.EntryID,
			EntryTitle: r.EntryTitle,
		})
	}
	return nil, output, nil
}

// maskCodeURI strips everything after the query from an enrollment URI so the
// issuer and label remain visible but the secret does not.
func maskCodeURI(uri string) string {
	if idx := strings.Index(uri, "?"); idx >= 0 {
		return uri[:idx] + "?****"
	}
	return uri
}
