package main

import (
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/GoCodeAlone/workflow-wizard/ai"
	"github.com/GoCodeAlone/workflow-wizard/ai/llm"
	"github.com/GoCodeAlone/workflow-wizard/ai/persona"
	"github.com/GoCodeAlone/workflow-wizard/client"
	"github.com/GoCodeAlone/workflow-wizard/intent"
	"github.com/GoCodeAlone/workflow-wizard/orchestrator"
	"github.com/GoCodeAlone/workflow-wizard/skeleton"
	"github.com/spf13/cobra"
)

// backend is what a command talks to: the in-process service or a server.
type backend struct {
	intents orchestrator.IntentService
	batches orchestrator.BatchGenerator
	legacy  orchestrator.LegacyGenerator
	remote  *client.Client
	logger  *slog.Logger
}

func (b backend) orchestratorOptions() []orchestrator.Option {
	return []orchestrator.Option{
		orchestrator.WithLogger(b.logger),
		orchestrator.WithLegacy(b.legacy),
	}
}

func newLogger(cmd *cobra.Command) *slog.Logger {
	name, _ := cmd.Flags().GetString("log-level")
	var level slog.Level
	if err := level.UnmarshalText([]byte(name)); err != nil {
		level = slog.LevelWarn
	}
	return slog.New(slog.NewTextHandler(cmd.ErrOrStderr(), &slog.HandlerOptions{Level: level}))
}

func newBackend(cmd *cobra.Command) (backend, error) {
	logger := newLogger(cmd)
	flags := cmd.Flags()

	if server, _ := flags.GetString("server"); server != "" {
		apiKey, _ := flags.GetString("api-key")
		opts := []client.Option{client.WithAPIKey(apiKey)}
		if timeout, _ := flags.GetDuration("timeout"); timeout > 0 {
			opts = append(opts, client.WithTimeout(timeout))
		}
		c := client.New(server, opts...)
		return backend{intents: c, batches: c, legacy: c, remote: c, logger: logger}, nil
	}

	service, err := newLocalService(cmd, logger)
	if err != nil {
		return backend{}, err
	}
	return backend{intents: service, batches: service, legacy: service, logger: logger}, nil
}

func newLocalService(cmd *cobra.Command, logger *slog.Logger) (*ai.Service, error) {
	flags := cmd.Flags()
	provider, _ := flags.GetString("provider")
	fallback, _ := flags.GetBool("template-fallback")
	opts := []ai.ServiceOption{
		ai.WithLogger(logger),
		ai.WithPreferred(ai.Provider(provider)),
		ai.WithTemplateFallback(fallback),
	}

	if p, _ := flags.GetString("vocabulary"); p != "" {
		v, err := intent.LoadVocabulary(p)
		if err != nil {
			return nil, err
		}
		opts = append(opts, ai.WithVocabulary(v))
	}
	if p, _ := flags.GetString("templates"); p != "" {
		t, err := skeleton.LoadTemplates(p)
		if err != nil {
			return nil, err
		}
		opts = append(opts, ai.WithTemplates(t))
	}
	service := ai.NewService(persona.New(), opts...)

	if key := os.Getenv("ANTHROPIC_API_KEY"); key != "" {
		c, err := llm.NewClient(llm.ClientConfig{APIKey: key})
		if err != nil {
			return nil, fmt.Errorf("anthropic: %w", err)
		}
		service.RegisterGenerator(ai.ProviderAnthropic, c)
	} else if strings.EqualFold(provider, string(ai.ProviderAnthropic)) {
		return nil, fmt.Errorf("provider anthropic needs ANTHROPIC_API_KEY")
	}
	return service, nil
}
