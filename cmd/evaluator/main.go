// Command evaluator runs the A2A evaluation harness: the Tool Server, the
// Assessment Orchestrator, the LLM control agent, and the A2A server
// surface, all in one process.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	anthropicsdk "github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	openaisdk "github.com/openai/openai-go"
	openaiopt "github.com/openai/openai-go/option"
	"github.com/redis/go-redis/v9"

	"github.com/a2aeval/evaluator/internal/benchmark"
	"github.com/a2aeval/evaluator/internal/browser"
	"github.com/a2aeval/evaluator/internal/config"
	"github.com/a2aeval/evaluator/internal/controlagent"
	"github.com/a2aeval/evaluator/internal/llm"
	llmanthropic "github.com/a2aeval/evaluator/internal/llm/anthropic"
	llmopenai "github.com/a2aeval/evaluator/internal/llm/openai"
	"github.com/a2aeval/evaluator/internal/observation"
	"github.com/a2aeval/evaluator/internal/orchestrator"
	"github.com/a2aeval/evaluator/internal/server"
	"github.com/a2aeval/evaluator/internal/state"
	"github.com/a2aeval/evaluator/internal/telemetry"
	"github.com/a2aeval/evaluator/internal/toolserver"
)

func main() {
	configFile := flag.String("config", "", "path to a YAML/JSON configuration file")
	flag.Parse()

	cfg, err := config.Load(*configFile)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	if err := run(cfg); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(cfg config.Config) error {
	logger := telemetry.NewClueLogger()
	metrics := telemetry.NewClueMetrics()

	profiles := benchmark.NewRegistry()
	store := state.New()
	manager := browser.New(logger)
	filter := observation.NewFilter(observation.NewCl100kCounter())
	toolSrv := toolserver.New(logger, manager, store, filter)

	toolServerAddr := fmt.Sprintf(":%d", cfg.ToolServerPort)
	toolServerURL := fmt.Sprintf("http://127.0.0.1:%d/rpc", cfg.ToolServerPort)
	toolMux := http.NewServeMux()
	toolMux.Handle("/rpc", toolserver.NewHTTPHandler(toolSrv))
	toolHTTP := &http.Server{Addr: toolServerAddr, Handler: toolMux}

	llmClient, err := buildLLMClient(cfg)
	if err != nil {
		return fmt.Errorf("llm client: %w", err)
	}

	history, err := buildHistoryStore(cfg)
	if err != nil {
		return fmt.Errorf("history store: %w", err)
	}

	newOrchestrator := func() *orchestrator.Orchestrator {
		return orchestrator.New(orchestrator.Deps{
			Logger:        logger,
			Metrics:       metrics,
			Manager:       manager,
			Store:         store,
			ToolServer:    toolSrv,
			Profiles:      profiles,
			DatasetRoot:   cfg.DatasetRoot,
			Headless:      cfg.Headless,
			ToolServerURL: toolServerURL,
			LambdaC:       cfg.LambdaC,
			LambdaL:       cfg.LambdaL,
		})
	}

	agent := controlagent.New(llmClient, history, func() controlagent.Orchestrator { return newOrchestrator() }, logger)

	evaluatorURL := fmt.Sprintf("http://%s:%d", cfg.EvaluatorHost, cfg.EvaluatorPort)
	card := server.BuildAgentCard(evaluatorURL, "dev")
	extended := server.BuildExtendedAgentCard(evaluatorURL, "dev", profiles, cfg.LambdaC, cfg.LambdaL)
	srv := server.New(agent, server.NewBroker(), logger, card, extended)

	evaluatorAddr := fmt.Sprintf("%s:%d", cfg.EvaluatorHost, cfg.EvaluatorPort)
	evaluatorHTTP := &http.Server{Addr: evaluatorAddr, Handler: srv.Router()}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 2)
	go func() {
		logger.Info(ctx, "tool server listening", "addr", toolServerAddr)
		if err := toolHTTP.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("tool server: %w", err)
		}
	}()
	go func() {
		logger.Info(ctx, "evaluator listening", "addr", evaluatorAddr)
		if err := evaluatorHTTP.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("evaluator server: %w", err)
		}
	}()

	select {
	case <-ctx.Done():
	case err := <-errCh:
		return err
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_ = toolHTTP.Shutdown(shutdownCtx)
	_ = evaluatorHTTP.Shutdown(shutdownCtx)
	return nil
}

func buildLLMClient(cfg config.Config) (llm.Client, error) {
	switch cfg.LLMProvider {
	case "anthropic":
		if cfg.AnthropicAPIKey == "" {
			return nil, errors.New("anthropic_api_key is required when llm_provider=anthropic")
		}
		c := anthropicsdk.NewClient(option.WithAPIKey(cfg.AnthropicAPIKey))
		return llmanthropic.New(&c.Messages, cfg.LLMModel, cfg.LLMMaxTokens)
	case "openai":
		if cfg.OpenAIAPIKey == "" {
			return nil, errors.New("openai_api_key is required when llm_provider=openai")
		}
		c := openaisdk.NewClient(openaiopt.WithAPIKey(cfg.OpenAIAPIKey))
		return llmopenai.New(c.Chat.Completions, cfg.LLMModel, cfg.LLMMaxTokens)
	default:
		return nil, fmt.Errorf("unsupported llm_provider %q", cfg.LLMProvider)
	}
}

func buildHistoryStore(cfg config.Config) (controlagent.HistoryStore, error) {
	if !cfg.SessionsPersistent {
		return controlagent.NewMemoryHistoryStore(), nil
	}
	opts, err := redis.ParseURL(cfg.SessionsDBPath)
	if err != nil {
		return nil, err
	}
	client := redis.NewClient(opts)
	return controlagent.NewRedisHistoryStore(client, 24*time.Hour), nil
}
