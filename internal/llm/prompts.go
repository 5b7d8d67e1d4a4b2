package llm

import (
	"fmt"
	"strings"

	"github.com/praxislabs/tenet/internal/domain"
)

const analysisSystemPrompt = `You analyze agent problem-solving traces and distill reusable strategic principles from them.

Respond with a single JSON object, no prose, in this shape:
{
  "classification": "<one of: debugging, implementation, refactoring, research, other>",
  "principles": [
    {"text": "<general, reusable strategic statement>", "confidence": <0.0-1.0>, "rationale": "<why this trace supports it>"}
  ],
  "triples": [{"subject": "...", "relation": "...", "object": "..."}],
  "tags": ["..."]
}

Principles must generalize beyond this specific trace. Omit principles you cannot state confidently.`

func buildAnalysisPrompt(trace domain.Trace) string {
	var b strings.Builder

	fmt.Fprintf(&b, "Task: %s\n", trace.TaskSummary)
	if trace.ProblemDescription != "" {
		fmt.Fprintf(&b, "Problem: %s\n", trace.ProblemDescription)
	}
	fmt.Fprintf(&b, "Outcome: %s (score %.2f)\n", trace.Outcome.Status, trace.Outcome.Score)
	if trace.Outcome.Explanation != "" {
		fmt.Fprintf(&b, "Outcome explanation: %s\n", trace.Outcome.Explanation)
	}

	if len(trace.ToolCalls) > 0 {
		b.WriteString("\nTool calls:\n")
		for i, call := range trace.ToolCalls {
			fmt.Fprintf(&b, "%d. %s", i+1, call.Tool)
			if call.Error != "" {
				fmt.Fprintf(&b, " (error: %s)", truncate(call.Error, 200))
			}
			b.WriteString("\n")
			if call.Input != "" {
				fmt.Fprintf(&b, "   input: %s\n", truncate(call.Input, 300))
			}
			if call.Output != "" {
				fmt.Fprintf(&b, "   output: %s\n", truncate(call.Output, 300))
			}
		}
	}

	if len(trace.IntermediateThoughts) > 0 {
		b.WriteString("\nReasoning steps:\n")
		for _, thought := range trace.IntermediateThoughts {
			fmt.Fprintf(&b, "- %s\n", truncate(thought, 300))
		}
	}

	if trace.FinalAnswer != "" {
		fmt.Fprintf(&b, "\nFinal answer: %s\n", truncate(trace.FinalAnswer, 500))
	}
	return b.String()
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max] + "..."
}
