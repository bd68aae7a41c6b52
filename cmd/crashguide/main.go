// Command crashguide runs the traffic-accident response agent as an
// interactive chat, as an MCP stdio server, or validates its configuration.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/sweetpotato0/crashguide/config"
	"github.com/sweetpotato0/crashguide/pkg/logging"
)

const version = "0.3.0"

func main() {
	os.Exit(run(os.Args[1:], os.Stdin, os.Stdout, os.Stderr))
}

func run(args []string, stdin io.Reader, stdout, stderr io.Writer) int {
	if len(args) == 0 {
		usage(stderr)
		return 2
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var err error
	switch args[0] {
	case "chat":
		err = chatCmd(ctx, args[1:], stdin, stdout)
	case "mcp":
		err = mcpCmd(ctx, args[1:])
	case "check-config":
		err = checkConfigCmd(args[1:], stdout)
	case "help", "-h", "--help":
		usage(stdout)
		return 0
	default:
		fmt.Fprintf(stderr, "unknown command %q\n\n", args[0])
		usage(stderr)
		return 2
	}

	switch {
	case err == nil:
		return 0
	case errors.Is(err, flag.ErrHelp):
		return 2
	}
	fmt.Fprintf(stderr, "crashguide %s: %v\n", args[0], err)
	return 1
}

func usage(w io.Writer) {
	fmt.Fprint(w, `usage: crashguide <command> [flags]

commands:
  chat          talk to the agent on stdin/stdout
  mcp           serve the accident_turn tool over MCP stdio
  check-config  load and validate configuration, then exit
`)
}

// configFlags registers the flags shared by every command.
type configFlags struct {
	policy     *string
	classifier *string
	docstore   *string
	store      *string
}

func newConfigFlags(fs *flag.FlagSet) configFlags {
	return configFlags{
		policy:     fs.String("policy", "", "Policy YAML file (overrides CRASHGUIDE_POLICY)"),
		classifier: fs.String("classifier", "", "Classifier backend: lexicon | llm"),
		docstore:   fs.String("docstore", "", "Document store: memory | pg | qdrant | supabase"),
		store:      fs.String("store", "", "Conversation store: memory | redis | mongo | postgres"),
	}
}

func (f configFlags) load() (*config.Config, error) {
	var opts []config.Option
	if *f.policy != "" {
		opts = append(opts, config.WithPolicyPath(*f.policy))
	}
	if *f.classifier != "" {
		opts = append(opts, config.WithClassifier(*f.classifier))
	}
	if *f.docstore != "" {
		opts = append(opts, config.WithDocStore(*f.docstore))
	}
	if *f.store != "" {
		opts = append(opts, config.WithStore(*f.store))
	}
	return config.FromEnv(opts...)
}

func checkConfigCmd(args []string, stdout io.Writer) error {
	fs := flag.NewFlagSet("check-config", flag.ContinueOnError)
	flags := newConfigFlags(fs)
	if err := fs.Parse(args); err != nil {
		return err
	}

	cfg, err := flags.load()
	if err != nil {
		return err
	}
	policy, err := cfg.LoadPolicy()
	if err != nil {
		return err
	}
	logging.WithComponent("cli").Debug("configuration loaded", "policy", cfg.PolicyPath, "glob", cfg.PolicyGlob)

	fmt.Fprintf(stdout, "configuration ok\n")
	fmt.Fprintf(stdout, "  classifier: %s (llm provider %s)\n", cfg.Classifier, cfg.LLM.Provider)
	fmt.Fprintf(stdout, "  docstore:   %s\n", cfg.DocStore)
	fmt.Fprintf(stdout, "  store:      %s\n", cfg.Store)
	fmt.Fprintf(stdout, "  slots:      %d\n", len(policy.SlotNames()))
	fmt.Fprintf(stdout, "  top_k:      %d (floor %.2f)\n", policy.TopK, policy.RelevanceFloor)
	return nil
}
