package server

import (
	"fmt"

	"github.com/a2aeval/evaluator/internal/a2a"
	"github.com/a2aeval/evaluator/internal/benchmark"
)

// BuildAgentCard constructs the evaluator's discovery document served at the
// well-known paths. url is the externally reachable base URL for this
// evaluator instance.
func BuildAgentCard(url, version string) a2a.AgentCard {
	return a2a.AgentCard{
		ProtocolVersion: a2a.ProtocolVersion,
		Name:            "a2a-eval-evaluator",
		Description:     "Evaluates web-automation agents across MiniWoB++, AssistantBench, VisualWebArena, WebLINX, WorkArena, and WebArena.",
		URL:             url,
		Version:         version,
		Provider:        &a2a.Provider{Organization: "a2a-eval"},
		Capabilities: a2a.Capabilities{
			Streaming:              true,
			PushNotifications:      false,
			StateTransitionHistory: true,
		},
		DefaultInputModes:  []string{"text", "data"},
		DefaultOutputModes: []string{"text", "data"},
		Skills: []a2a.Skill{
			{
				ID:          "run-assessment",
				Name:        "Run benchmark assessment",
				Description: "Starts and reports on a multi-task, multi-benchmark evaluation run against a participant agent.",
				Tags:        []string{"evaluation", "benchmark", "web-automation"},
				InputModes:  []string{"text", "data"},
				OutputModes: []string{"text", "data"},
			},
		},
	}
}

// BuildExtendedAgentCard adds the evaluator's benchmark and scoring metadata
// to the base card, for authenticated callers.
func BuildExtendedAgentCard(url, version string, profiles *benchmark.Registry, lambdaC, lambdaL float64) a2a.AgentCard {
	card := BuildAgentCard(url, version)
	stats := profiles.Statistics()
	entries := make(map[string]a2a.BenchmarkCardEntry, len(stats.Profiles))
	for id, p := range stats.Profiles {
		extra := make([]string, 0, len(p.ExtraTools))
		for _, t := range p.ExtraTools {
			extra = append(extra, t.Name)
		}
		entries[id] = a2a.BenchmarkCardEntry{
			DisplayName:     p.DisplayName,
			TokenLimit:      p.TokenLimit,
			ObservationMode: string(p.ObservationMode),
			ExtraTools:      extra,
		}
	}
	card.Extended = &a2a.Extended{
		Benchmarks: entries,
		ScoringFormula: a2a.ScoringFormula{
			Formula: fmt.Sprintf("e = clamp(1 - %.4g*ln(max(total_tokens,1)) - %.4g*latency_seconds, 0, 1); final_score = success ? e : 0", lambdaC, lambdaL),
			LambdaC: lambdaC,
			LambdaL: lambdaL,
		},
	}
	return card
}
