package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/sweetpotato0/crashguide/agent"
	"github.com/sweetpotato0/crashguide/config"
	"github.com/sweetpotato0/crashguide/contrib/docstore"
	"github.com/sweetpotato0/crashguide/contrib/provider"
	"github.com/sweetpotato0/crashguide/contrib/tokenizer/tiktoken"
	"github.com/sweetpotato0/crashguide/conversation/store"
	"github.com/sweetpotato0/crashguide/generator"
	"github.com/sweetpotato0/crashguide/intent"
	"github.com/sweetpotato0/crashguide/pkg/logging"
	"github.com/sweetpotato0/crashguide/pkg/telemetry"
	"github.com/sweetpotato0/crashguide/prompt"
	"github.com/sweetpotato0/crashguide/rag/retriever"
	"github.com/sweetpotato0/crashguide/review"
)

// passageEncoding is the BPE used to budget passages in the answer prompt.
const passageEncoding = "cl100k_base"

// closers releases resources in reverse order of acquisition.
type closers []func() error

func (c closers) Close() error {
	var errs []error
	for i := len(c) - 1; i >= 0; i-- {
		if err := c[i](); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// build wires every component named by cfg into an agent. The returned
// close function must be called once the agent is no longer used.
func build(ctx context.Context, cfg *config.Config) (a *agent.Agent, closeAll func() error, err error) {
	var cs closers
	defer func() {
		if err != nil {
			cs.Close()
		}
	}()
	logger := logging.WithComponent("cli")

	shutdown, err := telemetry.Init(ctx, telemetry.Config{
		ServiceName:    "crashguide",
		ServiceVersion: version,
		Environment:    cfg.Environment,
		Disable:        cfg.TelemetryDisable,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("init telemetry: %w", err)
	}
	cs = append(cs, func() error { return shutdown(context.Background()) })

	policy, err := cfg.LoadPolicy()
	if err != nil {
		return nil, nil, err
	}

	client, closeLLM, err := provider.New(ctx, cfg.LLM)
	if err != nil {
		return nil, nil, err
	}
	cs = append(cs, closeLLM)

	prompts, err := prompt.NewDefaultManager()
	if err != nil {
		return nil, nil, fmt.Errorf("load prompts: %w", err)
	}

	recorder := review.NewRecorder(nil, 0)

	var backend intent.Backend
	switch cfg.Classifier {
	case "llm":
		backend, err = intent.NewLLMBackend(client, prompts, policy)
	default:
		backend, err = intent.NewLexiconBackend(policy.Lexicon)
	}
	if err != nil {
		return nil, nil, fmt.Errorf("classifier backend: %w", err)
	}
	classifier := intent.New(backend, policy, intent.WithReporter(recorder))

	docs, closeDocs, err := docstore.New(ctx, cfg)
	if err != nil {
		return nil, nil, err
	}
	cs = append(cs, closeDocs)

	var genOpts []generator.Option
	if tok, err := tiktoken.NewTiktokenTokenizer(passageEncoding); err != nil {
		logger.Warn("tiktoken unavailable, budgeting passages by words", "error", err)
	} else {
		genOpts = append(genOpts, generator.WithTokenizer(tok))
	}

	conversations, closeStore, err := store.New(ctx, store.ConfigFromEnv(cfg.Store))
	if err != nil {
		return nil, nil, err
	}
	cs = append(cs, closeStore)

	a, err = agent.New(policy,
		agent.WithStore(conversations),
		agent.WithClassifier(classifier),
		agent.WithRetriever(retriever.New(docs, policy)),
		agent.WithGenerator(generator.New(client, prompts, policy, genOpts...)),
		agent.WithReporter(recorder),
		agent.WithRateLimit(cfg.RateLimit, cfg.RateBurst),
	)
	if err != nil {
		return nil, nil, err
	}

	logger.Info("agent ready",
		"classifier", cfg.Classifier,
		"llm", cfg.LLM.Provider,
		"docstore", cfg.DocStore,
		"store", cfg.Store,
		"middlewares", a.Middlewares(),
	)
	return a, cs.Close, nil
}
