package planner

import (
	"context"
	"fmt"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"

	"github.com/openworkhq/openwork/internal/memory"
)

// Verifier checks a proposed final output against the work performed.
// ok=false comes with feedback the loop feeds back as a corrective note.
type Verifier interface {
	Verify(ctx context.Context, entries []memory.Entry, output string) (ok bool, feedback string, err error)
}

// Verify implements Verifier with a secondary untooled query.
func (c *Client) Verify(ctx context.Context, entries []memory.Entry, output string) (bool, string, error) {
	var b strings.Builder
	for _, e := range entries {
		label := string(e.Kind)
		if e.Kind == memory.EntryTool && e.Tool != "" {
			label = "tool:" + e.Tool
		}
		fmt.Fprintf(&b, "[%s] %s\n", label, e.Content)
	}
	fmt.Fprintf(&b, "\nClaimed final output:\n%s", output)

	resp, err := c.callWithRetry(ctx, anthropic.MessageNewParams{
		Model:     c.model,
		MaxTokens: 1024,
		System: []anthropic.TextBlockParam{
			{Text: verifyPrompt},
		},
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(b.String())),
		},
	})
	if err != nil {
		return false, "", err
	}

	c.tracker.Add(resp.Usage.InputTokens, resp.Usage.OutputTokens)

	var verdict string
	for _, block := range resp.Content {
		if variant, ok := block.AsAny().(anthropic.TextBlock); ok {
			verdict += variant.Text
		}
	}
	verdict = strings.TrimSpace(verdict)

	if strings.HasPrefix(verdict, "PASS") {
		return true, "", nil
	}
	feedback := strings.TrimSpace(strings.TrimPrefix(verdict, "FAIL:"))
	if feedback == "" {
		feedback = "verification did not confirm completion"
	}
	return false, feedback, nil
}
