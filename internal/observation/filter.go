// Package observation converts raw browser observations into compact,
// token-bounded, mode-specific payloads.
package observation

import (
	"fmt"
	"strings"

	"github.com/a2aeval/evaluator/internal/benchmark"
)

// AxNode is one node of a raw accessibility tree, as produced by C1.
type AxNode struct {
	Role       string
	Name       string
	Value      string
	Bid        string
	Focused    bool
	Properties map[string]any
	Children   []AxNode
}

// Raw is the unfiltered observation handed to C5 by the Browser-Session
// Manager.
type Raw struct {
	Tree             []AxNode
	URL              string
	Goal             string
	LastActionResult string
	// ScreenshotBytes is non-nil only when the browser captured a
	// screenshot for this step.
	ScreenshotBytes []byte
}

// Filtered is the payload returned to a tool caller. Every base and
// benchmark-specific tool result passes through this shape.
type Filtered struct {
	Content          string `json:"content"`
	URL              string `json:"url"`
	Goal             string `json:"goal,omitempty"`
	LastActionResult string `json:"last_action_result,omitempty"`
	TokenEstimate    int    `json:"token_estimate"`
	ObservationMode  string `json:"observation_mode"`
	Warning          string `json:"warning,omitempty"`
	ScreenshotRef    string `json:"screenshot_ref,omitempty"`
}

// TruncationPolicy controls whether and how over-budget content is
// shortened. The evaluator's default is warn-without-truncate; a benchmark
// profile may opt a task into truncation explicitly.
type TruncationPolicy struct {
	Enabled             bool
	PreservePrefixLines int
	PreserveSuffixLines int
}

// Filter converts a Raw observation into a Filtered payload according to
// mode, enforcing profile's token limit.
type Filter struct {
	counter TokenCounter
}

// NewFilter constructs a Filter using the given token counter.
func NewFilter(counter TokenCounter) *Filter {
	return &Filter{counter: counter}
}

// Apply renders raw under mode, bounded by limit tokens, applying policy if
// the rendered content exceeds the limit.
func (f *Filter) Apply(raw Raw, mode benchmark.ObservationMode, limit int, filterStrategy benchmark.FilterStrategy, policy TruncationPolicy) (Filtered, error) {
	var content string
	var screenshotRef string

	switch mode {
	case benchmark.ModeAxtreeCompact:
		content = renderCompact(raw.Tree, filterStrategy)
	case benchmark.ModeAxtree:
		content = renderFull(raw.Tree, false)
	case benchmark.ModeAxtreeFull:
		content = renderFull(raw.Tree, true)
	case benchmark.ModeAxtreeWithScreenshot:
		content = renderFull(raw.Tree, false)
		if raw.ScreenshotBytes != nil {
			screenshotRef = fmt.Sprintf("screenshot:%d-bytes", len(raw.ScreenshotBytes))
		} else {
			screenshotRef = "screenshot:unavailable"
		}
	default:
		return Filtered{}, fmt.Errorf("unsupported observation mode: %q", mode)
	}

	tokens, err := f.counter.Count(content + raw.URL + raw.Goal + raw.LastActionResult)
	if err != nil {
		return Filtered{}, fmt.Errorf("count tokens: %w", err)
	}

	warning := ""
	if tokens > limit {
		if policy.Enabled {
			content = truncate(content, tokens, limit, policy)
			tokens, err = f.counter.Count(content + raw.URL + raw.Goal + raw.LastActionResult)
			if err != nil {
				return Filtered{}, fmt.Errorf("recount tokens after truncation: %w", err)
			}
			if tokens > limit {
				warning = fmt.Sprintf("observation exceeds token limit (%d > %d) even after truncation", tokens, limit)
			}
		} else {
			warning = fmt.Sprintf("observation exceeds token limit (%d > %d)", tokens, limit)
		}
	}

	return Filtered{
		Content:          content,
		URL:              raw.URL,
		Goal:             raw.Goal,
		LastActionResult: raw.LastActionResult,
		TokenEstimate:    tokens,
		ObservationMode:  string(mode),
		Warning:          warning,
		ScreenshotRef:    screenshotRef,
	}, nil
}

// renderCompact drops excluded roles, keeps the focus set, and collapses
// adjacent static-text nodes into single lines.
func renderCompact(tree []AxNode, strategy benchmark.FilterStrategy) string {
	exclude := toSet(strategy.ExcludeRoles)
	focus := toSet(strategy.FocusRoles)

	var b strings.Builder
	var lastWasStaticText bool
	var walk func(nodes []AxNode, depth int)
	walk = func(nodes []AxNode, depth int) {
		for _, n := range nodes {
			_, excluded := exclude[n.Role]
			_, inFocus := focus[n.Role]
			if excluded && !(len(focus) > 0 && inFocus) && !n.Focused {
				continue
			}
			if n.Role == "StaticText" {
				if lastWasStaticText {
					// Collapse into the previous line.
					trimmed := strings.TrimRight(b.String(), "\n")
					b.Reset()
					b.WriteString(trimmed)
					b.WriteString(" ")
					b.WriteString(n.Name)
					b.WriteString("\n")
					walk(n.Children, depth+1)
					continue
				}
				lastWasStaticText = true
			} else {
				lastWasStaticText = false
			}
			writeNode(&b, n, depth)
			walk(n.Children, depth+1)
		}
	}
	walk(tree, 0)
	return b.String()
}

// renderFull renders the whole tree textually. full additionally includes
// each node's extra properties.
func renderFull(tree []AxNode, full bool) string {
	var b strings.Builder
	var walk func(nodes []AxNode, depth int)
	walk = func(nodes []AxNode, depth int) {
		for _, n := range nodes {
			writeNode(&b, n, depth)
			if full {
				for k, v := range n.Properties {
					b.WriteString(strings.Repeat("  ", depth+1))
					fmt.Fprintf(&b, "%s=%v\n", k, v)
				}
			}
			walk(n.Children, depth+1)
		}
	}
	walk(tree, 0)
	return b.String()
}

func writeNode(b *strings.Builder, n AxNode, depth int) {
	b.WriteString(strings.Repeat("  ", depth))
	b.WriteString("[")
	b.WriteString(n.Bid)
	b.WriteString("] ")
	b.WriteString(n.Role)
	if n.Name != "" {
		b.WriteString(" ")
		b.WriteString(n.Name)
	}
	if n.Value != "" {
		b.WriteString(" = ")
		b.WriteString(n.Value)
	}
	b.WriteString("\n")
}

func toSet(roles []string) map[string]struct{} {
	s := make(map[string]struct{}, len(roles))
	for _, r := range roles {
		s[r] = struct{}{}
	}
	return s
}

// truncate shortens content line-by-line, proportional to how far tokens
// exceeds limit, optionally preserving a prefix and suffix.
func truncate(content string, tokens, limit int, policy TruncationPolicy) string {
	lines := strings.Split(content, "\n")
	if len(lines) <= policy.PreservePrefixLines+policy.PreserveSuffixLines {
		return content
	}

	overageRatio := float64(tokens-limit) / float64(tokens)
	if overageRatio <= 0 {
		return content
	}
	dropCount := int(float64(len(lines)) * overageRatio)
	if dropCount <= 0 {
		return content
	}

	prefix := lines[:policy.PreservePrefixLines]
	suffixStart := len(lines) - policy.PreserveSuffixLines
	suffix := lines[suffixStart:]
	middle := lines[policy.PreservePrefixLines:suffixStart]

	if dropCount >= len(middle) {
		dropCount = len(middle)
	}
	keepMiddle := middle[dropCount:]

	out := make([]string, 0, len(prefix)+len(keepMiddle)+1+len(suffix))
	out = append(out, prefix...)
	out = append(out, fmt.Sprintf("... (%d lines truncated) ...", dropCount))
	out = append(out, keepMiddle...)
	out = append(out, suffix...)
	return strings.Join(out, "\n")
}
