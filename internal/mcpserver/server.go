// Package mcpserver provides an MCP (Model Context Protocol) server
// that exposes quire's sync and publish tools over stdio.
package mcpserver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/starford/quire/internal/apperr"
	"github.com/starford/quire/internal/journal"
	"github.com/starford/quire/internal/models"
	"github.com/starford/quire/internal/secrets"
	"github.com/starford/quire/internal/syncer"
)

const protocolURI = "quire://hook-protocol"

// NoteStore is the subset of the note store the tools use.
type NoteStore interface {
	List(ctx context.Context) ([]models.Note, error)
	Get(ctx context.Context, id string) (models.Note, error)
	Create(ctx context.Context, title, content string) (models.Note, error)
	Delete(ctx context.Context, id string) error
}

// History lists recent publish-hook runs.
type History interface {
	Recent(ctx context.Context, limit int) ([]journal.Entry, error)
	Failures(ctx context.Context, since time.Time) (int, error)
}

// failureWindow is how far back sync_status counts failed hook runs.
const failureWindow = 24 * time.Hour

type indexer interface {
	Index(ctx context.Context) ([]models.NoteIndexEntry, error)
}

type reconciler interface {
	Reconcile(ctx context.Context, notes []models.Note) error
}

// Server wraps the MCP server with quire tools.
type Server struct {
	mcp      *server.MCPServer
	notes    NoteStore
	provider syncer.Provider
	history  History
}

// New creates a new MCP server with all quire tools registered. history may
// be nil.
func New(notes NoteStore, provider syncer.Provider, history History) *Server {
	s := &Server{notes: notes, provider: provider, history: history}

	s.mcp = server.NewMCPServer(
		"Quire",
		"1.0.0",
		server.WithToolCapabilities(false),
		server.WithResourceCapabilities(false, false),
	)

	s.mcp.AddTool(mcp.NewTool("list_notes",
		mcp.WithDescription("List local notes as id, title and last update, newest first."),
	), s.listNotes)

	s.mcp.AddTool(mcp.NewTool("create_note",
		mcp.WithDescription("Create a local note and push it to the sync mirror."),
		mcp.WithString("title", mcp.Required(), mcp.Description("Note title")),
		mcp.WithString("content", mcp.Required(), mcp.Description("Markdown body. A line <!-- section: Name --> files it under a section.")),
	), s.createNote)

	s.mcp.AddTool(mcp.NewTool("sync_note",
		mcp.WithDescription("Write one note to the sync mirror and run the publish hook."),
		mcp.WithString("id", mcp.Required(), mcp.Description("Note identifier")),
	), s.syncNote)

	s.mcp.AddTool(mcp.NewTool("delete_note",
		mcp.WithDescription("Delete a note locally and from the sync mirror."),
		mcp.WithString("id", mcp.Required(), mcp.Description("Note identifier")),
	), s.deleteNote)

	s.mcp.AddTool(mcp.NewTool("sync_image",
		mcp.WithDescription("Copy an image into the mirror (deduplicated by content hash) and return its public address."),
		mcp.WithString("path", mcp.Required(), mcp.Description("Absolute path of the local image")),
		mcp.WithString("hash", mcp.Description("Optional precomputed SHA-256 hex digest")),
	), s.syncImage)

	s.mcp.AddTool(mcp.NewTool("sync_all",
		mcp.WithDescription("Reconcile every local note into the mirror, then run the sync_all hook."),
	), s.syncAll)

	s.mcp.AddTool(mcp.NewTool("sync_status",
		mcp.WithDescription("Report whether sync is enabled and its current state."),
	), s.syncStatus)

	s.mcp.AddTool(mcp.NewTool("list_index",
		mcp.WithDescription("Return the mirror's index.json entries."),
	), s.listIndex)

	s.mcp.AddTool(mcp.NewTool("detect_secrets",
		mcp.WithDescription("List the kinds of secrets found in a text, or in a note when id is given."),
		mcp.WithString("text", mcp.Description("Text to scan")),
		mcp.WithString("id", mcp.Description("Note identifier to scan instead of text")),
	), s.detectSecrets)

	s.mcp.AddTool(mcp.NewTool("publish_history",
		mcp.WithDescription("Show recent publish hook runs, newest first."),
		mcp.WithNumber("limit", mcp.Description("Maximum entries (default 20)")),
	), s.publishHistory)

	s.mcp.AddResource(
		mcp.NewResource(protocolURI, "Publish Hook Protocol",
			mcp.WithResourceDescription("Events, output and exit-code contract for publish hook scripts."),
			mcp.WithMIMEType("text/markdown"),
		),
		s.readProtocolResource,
	)

	return s
}

// ServeStdio starts the MCP server on stdin/stdout.
func (s *Server) ServeStdio() error {
	return server.ServeStdio(s.mcp)
}

// MCPServer returns the underlying server for testing.
func (s *Server) MCPServer() *server.MCPServer {
	return s.mcp
}

func jsonResult(v any) *mcp.CallToolResult {
	out, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return mcp.NewToolResultError(err.Error())
	}
	return mcp.NewToolResultText(string(out))
}

func (s *Server) listNotes(ctx context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	notes, err := s.notes.List(ctx)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	var lines []string
	for _, n := range notes {
		lines = append(lines, fmt.Sprintf("%s\t%s\t%s", n.ID, n.IndexEntry().Title, n.UpdatedAt.Format("2006-01-02 15:04")))
	}
	if len(lines) == 0 {
		return mcp.NewToolResultText("no notes"), nil
	}
	return mcp.NewToolResultText(strings.Join(lines, "\n")), nil
}

func (s *Server) createNote(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	title, err := req.RequireString("title")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	content, err := req.RequireString("content")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	n, err := s.notes.Create(ctx, title, content)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if err := s.provider.SyncNote(ctx, n); err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("created %s but sync failed: %v", n.ID, err)), nil
	}
	return mcp.NewToolResultText(fmt.Sprintf("created: %s", n.ID)), nil
}

func (s *Server) syncNote(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, err := req.RequireString("id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	n, err := s.notes.Get(ctx, id)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if err := s.provider.SyncNote(ctx, n); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return mcp.NewToolResultText(fmt.Sprintf("synced: %s", id)), nil
}

func (s *Server) deleteNote(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, err := req.RequireString("id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if err := s.notes.Delete(ctx, id); err != nil && !errors.Is(err, apperr.ErrNotFound) {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if err := s.provider.DeleteNote(ctx, id); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return mcp.NewToolResultText(fmt.Sprintf("deleted: %s", id)), nil
}

func (s *Server) syncImage(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	p, err := req.RequireString("path")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	hash := req.GetString("hash", "")

	u, err := s.provider.SyncImage(ctx, p, hash)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return mcp.NewToolResultText(u), nil
}

func (s *Server) syncAll(ctx context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	if r, ok := s.provider.(reconciler); ok {
		notes, err := s.notes.List(ctx)
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		if err := r.Reconcile(ctx, notes); err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		return mcp.NewToolResultText(fmt.Sprintf("synced %d notes", len(notes))), nil
	}
	if err := s.provider.SyncAll(ctx); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return mcp.NewToolResultText("sync disabled"), nil
}

func (s *Server) syncStatus(ctx context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	status := struct {
		Enabled bool `json:"enabled"`
		syncer.Status
		RecentFailures *int `json:"recent_failures,omitempty"`
	}{Enabled: s.provider.Enabled(), Status: s.provider.Status()}

	if s.history != nil {
		n, err := s.history.Failures(ctx, time.Now().Add(-failureWindow))
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		status.RecentFailures = &n
	}
	return jsonResult(status), nil
}

func (s *Server) listIndex(ctx context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	ix, ok := s.provider.(indexer)
	if !ok {
		return mcp.NewToolResultError("sync is disabled; there is no mirror index"), nil
	}
	entries, err := ix.Index(ctx)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return jsonResult(entries), nil
}

func (s *Server) detectSecrets(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	text := req.GetString("text", "")
	if id := req.GetString("id", ""); id != "" {
		n, err := s.notes.Get(ctx, id)
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		text = n.Title + "\n" + n.Content
	}
	found := secrets.Detect(text)
	if len(found) == 0 {
		return mcp.NewToolResultText("no secrets found"), nil
	}
	return mcp.NewToolResultText(strings.Join(found, "\n")), nil
}

func (s *Server) publishHistory(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	if s.history == nil {
		return mcp.NewToolResultError("publish journal is not configured"), nil
	}
	limit := req.GetInt("limit", 20)
	entries, err := s.history.Recent(ctx, limit)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return jsonResult(entries), nil
}

func (s *Server) readProtocolResource(_ context.Context, _ mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	return []mcp.ResourceContents{
		mcp.TextResourceContents{
			URI:      protocolURI,
			MIMEType: "text/markdown",
			Text:     HookProtocol,
		},
	}, nil
}
