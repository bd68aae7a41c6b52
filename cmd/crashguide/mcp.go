package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/sweetpotato0/crashguide/agent"
)

type turnArgs struct {
	ConversationID string `json:"conversation_id" jsonschema:"Identifier of the conversation; reuse it for every turn of one accident"`
	Text           string `json:"text" jsonschema:"What the user said"`
}

func mcpCmd(ctx context.Context, args []string) error {
	// stdout carries the protocol.
	if os.Getenv("CRASHGUIDE_LOG_OUTPUT") == "" {
		os.Setenv("CRASHGUIDE_LOG_OUTPUT", "stderr")
	}

	fs := flag.NewFlagSet("mcp", flag.ContinueOnError)
	flags := newConfigFlags(fs)
	if err := fs.Parse(args); err != nil {
		return err
	}
	cfg, err := flags.load()
	if err != nil {
		return err
	}
	a, closeAll, err := build(ctx, cfg)
	if err != nil {
		return err
	}
	defer closeAll()

	if err := newServer(a).Run(ctx, &mcp.StdioTransport{}); err != nil && ctx.Err() == nil {
		return fmt.Errorf("stdio server stopped: %w", err)
	}
	return nil
}

// newServer exposes one tool that handles a single user turn.
func newServer(h turnHandler) *mcp.Server {
	server := mcp.NewServer(&mcp.Implementation{
		Name:    "crashguide",
		Version: version,
		Title:   "Traffic accident response guide",
	}, nil)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "accident_turn",
		Description: "Send one user message about a traffic accident and get the guide's reply as JSON",
	}, turnTool(h))
	return server
}

func turnTool(h turnHandler) func(context.Context, *mcp.CallToolRequest, turnArgs) (*mcp.CallToolResult, any, error) {
	return func(ctx context.Context, req *mcp.CallToolRequest, a turnArgs) (*mcp.CallToolResult, any, error) {
		out, err := h.HandleTurn(ctx, agent.Inbound{
			ConversationID: a.ConversationID,
			Text:           a.Text,
			Timestamp:      time.Now().UTC(),
		})
		if err != nil {
			return nil, nil, err
		}
		body, err := json.Marshal(out)
		if err != nil {
			return nil, nil, fmt.Errorf("encode reply: %w", err)
		}
		return &mcp.CallToolResult{
			Content: []mcp.Content{
				&mcp.TextContent{Text: string(body)},
			},
		}, nil, nil
	}
}
