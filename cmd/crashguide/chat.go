package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/sweetpotato0/crashguide/agent"
	errorskg "github.com/sweetpotato0/crashguide/errors"
	"github.com/sweetpotato0/crashguide/message"
	"github.com/sweetpotato0/crashguide/middleware"
)

// turnHandler is the part of the agent the front ends use.
type turnHandler interface {
	HandleTurn(ctx context.Context, in agent.Inbound) (agent.Outbound, error)
}

func chatCmd(ctx context.Context, args []string, stdin io.Reader, stdout io.Writer) error {
	fs := flag.NewFlagSet("chat", flag.ContinueOnError)
	flags := newConfigFlags(fs)
	id := fs.String("conversation", "", "Conversation id to continue (default: a new one)")
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

	if *id == "" {
		*id = message.NewID()
	}
	return chat(ctx, a, *id, stdin, stdout)
}

// chat reads one user turn per line until EOF or /quit.
func chat(ctx context.Context, h turnHandler, id string, stdin io.Reader, stdout io.Writer) error {
	fmt.Fprintf(stdout, "conversation %s\nDescribe what happened. Type /quit to leave.\n", id)
	scanner := bufio.NewScanner(stdin)
	for {
		fmt.Fprint(stdout, "> ")
		if !scanner.Scan() {
			fmt.Fprintln(stdout)
			return scanner.Err()
		}
		line := strings.TrimSpace(scanner.Text())
		switch line {
		case "":
			continue
		case "/quit", "/exit":
			return nil
		}

		out, err := h.HandleTurn(ctx, agent.Inbound{ConversationID: id, Text: line, Timestamp: time.Now().UTC()})
		switch {
		case err == nil:
			printOutbound(stdout, out)
		case errors.Is(err, middleware.ErrRateLimitExceeded):
			fmt.Fprintln(stdout, "(slow down, one message at a time)")
		case errorskg.IsValidation(err):
			fmt.Fprintf(stdout, "(%v)\n", err)
		default:
			return err
		}
	}
}

func printOutbound(w io.Writer, out agent.Outbound) {
	fmt.Fprintf(w, "\n%s\n", out.Text)
	for i, c := range out.Citations {
		fmt.Fprintf(w, "  [%d] %s %s\n", i+1, c.SourceID, c.Locator)
	}
	if out.Risk != nil {
		fmt.Fprintf(w, "  risk: %s (score %d)\n", out.Risk.Bucket, out.Risk.Score)
	}
	fmt.Fprintf(w, "  state: %s\n\n", out.DialogueState)
}
