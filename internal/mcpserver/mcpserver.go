// Package mcpserver exposes sayso to MCP clients such as coding assistants
// and agent runtimes. It registers four tools on an MCP server built with
// the official Go SDK:
//
//	resolve_command     match a transcript without running anything
//	process_transcript  resolve, execute and log a transcript
//	execute_command     run a named handler directly
//	list_commands       list the live vocabulary
package mcpserver

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/MrWong99/sayso/internal/dispatch"
	"github.com/MrWong99/sayso/internal/eventlog"
	"github.com/MrWong99/sayso/internal/resolver"
	"github.com/MrWong99/sayso/internal/vocabulary"
)

// suggestionCount bounds the suggestions returned on a miss.
const suggestionCount = 3

// Service is the application surface the tools call into.
type Service interface {
	Resolve(ctx context.Context, transcript string) resolver.Match
	Suggest(transcript string, n int) []resolver.Suggestion
	Process(ctx context.Context, transcript string) eventlog.Event
	Execute(ctx context.Context, handler, commandText string) dispatch.Result
	Commands() []vocabulary.Command
}

// TextInput carries a transcript.
type TextInput struct {
	Text string `json:"text" jsonschema:"the recognised speech to match"`
}

// ResolveOutput is the result of resolve_command.
type ResolveOutput struct {
	Handler     string                `json:"handler"`
	Phrase      string                `json:"phrase,omitempty"`
	Confidence  float64               `json:"confidence"`
	Kind        string                `json:"kind"`
	Suggestions []resolver.Suggestion `json:"suggestions,omitempty"`
}

// ProcessOutput is the event recorded by process_transcript.
type ProcessOutput struct {
	Timestamp  string  `json:"timestamp"`
	Transcript string  `json:"transcript"`
	Command    string  `json:"command"`
	Phrase     string  `json:"phrase,omitempty"`
	Confidence float64 `json:"confidence"`
	Kind       string  `json:"kind"`
	Result     string  `json:"result"`
	Executed   bool    `json:"executed"`
}

// ExecuteInput names a handler and the text passed to it.
type ExecuteInput struct {
	Handler string `json:"handler" jsonschema:"the handler name as listed by list_commands"`
	Text    string `json:"text,omitempty" jsonschema:"command text given to the handler; defaults to the handler name"`
}

// ExecuteOutput is the result of execute_command.
type ExecuteOutput struct {
	Handler string `json:"handler"`
	Output  string `json:"output"`
	OK      bool   `json:"ok"`
}

// ListOutput is the result of list_commands.
type ListOutput struct {
	Commands []vocabulary.Command `json:"commands"`
}

// Server is an MCP server bound to a [Service].
type Server struct {
	svc Service
	srv *mcp.Server
}

// New builds the server and registers its tools.
func New(svc Service, version string) *Server {
	s := &Server{
		svc: svc,
		srv: mcp.NewServer(&mcp.Implementation{Name: "sayso", Version: version}, nil),
	}

	mcp.AddTool(s.srv, &mcp.Tool{
		Name:        "resolve_command",
		Description: "Match a spoken transcript against the command vocabulary without executing anything.",
	}, s.resolve)
	mcp.AddTool(s.srv, &mcp.Tool{
		Name:        "process_transcript",
		Description: "Resolve a transcript, execute the matched command if confidence is high enough, and record the event.",
	}, s.process)
	mcp.AddTool(s.srv, &mcp.Tool{
		Name:        "execute_command",
		Description: "Execute a registered command handler by name.",
	}, s.execute)
	mcp.AddTool(s.srv, &mcp.Tool{
		Name:        "list_commands",
		Description: "List every command in the vocabulary with its trigger phrases.",
	}, s.list)

	return s
}

// Run serves on stdin/stdout until ctx is cancelled or the client
// disconnects.
func (s *Server) Run(ctx context.Context) error {
	return s.srv.Run(ctx, &mcp.StdioTransport{})
}

// Connect serves a single session over t.
func (s *Server) Connect(ctx context.Context, t mcp.Transport) (*mcp.ServerSession, error) {
	return s.srv.Connect(ctx, t, nil)
}

var errNoText = errors.New("text is required")

func (s *Server) resolve(ctx context.Context, _ *mcp.CallToolRequest, in TextInput) (*mcp.CallToolResult, ResolveOutput, error) {
	if strings.TrimSpace(in.Text) == "" {
		return nil, ResolveOutput{}, errNoText
	}
	m := s.svc.Resolve(ctx, in.Text)
	out := ResolveOutput{
		Handler:    m.Handler,
		Phrase:     m.Phrase,
		Confidence: m.Confidence,
		Kind:       m.Kind.String(),
	}
	if !m.Matched() {
		out.Suggestions = s.svc.Suggest(in.Text, suggestionCount)
	}
	return nil, out, nil
}

func (s *Server) process(ctx context.Context, _ *mcp.CallToolRequest, in TextInput) (*mcp.CallToolResult, ProcessOutput, error) {
	if strings.TrimSpace(in.Text) == "" {
		return nil, ProcessOutput{}, errNoText
	}
	ev := s.svc.Process(ctx, in.Text)
	return nil, ProcessOutput{
		Timestamp:  ev.Timestamp.Format(time.RFC3339Nano),
		Transcript: ev.Transcript,
		Command:    ev.Command,
		Phrase:     ev.Phrase,
		Confidence: ev.Confidence,
		Kind:       ev.Kind,
		Result:     ev.Result,
		Executed:   ev.Executed,
	}, nil
}

func (s *Server) execute(ctx context.Context, _ *mcp.CallToolRequest, in ExecuteInput) (*mcp.CallToolResult, ExecuteOutput, error) {
	if in.Handler == "" {
		return nil, ExecuteOutput{}, errors.New("handler is required")
	}
	text := in.Text
	if text == "" {
		text = in.Handler
	}
	res := s.svc.Execute(ctx, in.Handler, text)
	return nil, ExecuteOutput{Handler: in.Handler, Output: res.Output, OK: res.Err == nil}, nil
}

func (s *Server) list(_ context.Context, _ *mcp.CallToolRequest, _ struct{}) (*mcp.CallToolResult, ListOutput, error) {
	cmds := s.svc.Commands()
	out := ListOutput{Commands: make([]vocabulary.Command, 0, len(cmds))}
	for _, c := range cmds {
		// Encode a phrase-less command as [] rather than null.
		if c.Phrases == nil {
			c.Phrases = []string{}
		}
		out.Commands = append(out.Commands, c)
	}
	return nil, out, nil
}
