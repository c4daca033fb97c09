package planner

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/bedrock"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/aws/aws-sdk-go-v2/config"

	"github.com/openworkhq/openwork/internal/memory"
	"github.com/openworkhq/openwork/internal/tool"
)

// control tool names the Anthropic backend advertises alongside the
// registry's tools to carry decomposition and blocked reports.
const (
	spawnSubagentsTool = "spawn_subagents"
	reportBlockedTool  = "report_blocked"
)

// ClientConfig contains configuration for creating a new Client.
type ClientConfig struct {
	// Model is the Claude model to use.
	Model anthropic.Model
	// APIKey is the Anthropic API key. If empty, uses ANTHROPIC_API_KEY env var.
	APIKey string
	// UseAWSBedrock indicates whether to use AWS Bedrock instead of direct API.
	UseAWSBedrock bool
	// AWSRegion is the AWS region for Bedrock (e.g., "us-west-2").
	AWSRegion string
	// AWSProfile is the optional AWS profile name to use.
	AWSProfile string
	// MaxTokens caps the response size per decision. Zero means 8192.
	MaxTokens int64
	// MaxRetries bounds transport retries per decision. Zero means 3.
	MaxRetries int
}

// Client is the Anthropic-backed Planner with token tracking and bounded
// retry on transport faults.
type Client struct {
	inner      anthropic.Client
	model      anthropic.Model
	maxTokens  int64
	maxRetries int
	tracker    *TokenTracker
}

// NewClient creates a new Anthropic planner client.
func NewClient(cfg ClientConfig) (*Client, error) {
	var opts []option.RequestOption

	if cfg.UseAWSBedrock {
		ctx := context.Background()

		var loadOpts []func(*config.LoadOptions) error
		if cfg.AWSRegion != "" {
			loadOpts = append(loadOpts, config.WithRegion(cfg.AWSRegion))
		}
		if cfg.AWSProfile != "" {
			loadOpts = append(loadOpts, config.WithSharedConfigProfile(cfg.AWSProfile))
		}

		opts = append(opts, bedrock.WithLoadDefaultConfig(ctx, loadOpts...))
	} else {
		apiKey := cfg.APIKey
		if apiKey == "" {
			apiKey = os.Getenv("ANTHROPIC_API_KEY")
		}
		if apiKey == "" {
			return nil, fmt.Errorf("ANTHROPIC_API_KEY environment variable is not set")
		}
		opts = append(opts, option.WithAPIKey(apiKey))
	}

	model := cfg.Model
	if model == "" {
		model = anthropic.ModelClaudeSonnet4_20250514
	}
	if cfg.UseAWSBedrock {
		model = translateModelForBedrock(model)
	}

	maxTokens := cfg.MaxTokens
	if maxTokens <= 0 {
		maxTokens = 8192
	}
	maxRetries := cfg.MaxRetries
	if maxRetries <= 0 {
		maxRetries = 3
	}

	return &Client{
		inner:      anthropic.NewClient(opts...),
		model:      model,
		maxTokens:  maxTokens,
		maxRetries: maxRetries,
		tracker:    NewTokenTracker(),
	}, nil
}

// translateModelForBedrock converts standard Anthropic model names to
// Bedrock cross-region inference profile format.
func translateModelForBedrock(model anthropic.Model) anthropic.Model {
	bedrockModels := map[anthropic.Model]string{
		anthropic.ModelClaudeSonnet4_20250514:   "us.anthropic.claude-sonnet-4-20250514-v1:0",
		anthropic.ModelClaudeSonnet4_5_20250929: "us.anthropic.claude-sonnet-4-5-20250929-v1:0",
		anthropic.ModelClaudeHaiku4_5_20251001:  "us.anthropic.claude-haiku-4-5-20251001-v1:0",
		anthropic.ModelClaudeOpus4_1_20250805:   "us.anthropic.claude-opus-4-1-20250805-v1:0",
		anthropic.ModelClaude3_5Haiku20241022:   "us.anthropic.claude-3-5-haiku-20241022-v1:0",
	}
	if bedrockModel, ok := bedrockModels[model]; ok {
		return anthropic.Model(bedrockModel)
	}
	return model
}

// Model returns the configured model name.
func (c *Client) Model() anthropic.Model {
	return c.model
}

// Tracker returns the token tracker for this client.
func (c *Client) Tracker() *TokenTracker {
	return c.tracker
}

// Decide implements Planner: replay the context snapshot, advertise the
// tool schemas plus the control tools, and translate the response into
// one Decision.
func (c *Client) Decide(ctx context.Context, entries []memory.Entry, schemas []tool.Schema) (*Decision, error) {
	params := anthropic.MessageNewParams{
		Model:     c.model,
		MaxTokens: c.maxTokens,
		System: []anthropic.TextBlockParam{
			{Text: systemPrompt},
		},
		Messages: messagesFromEntries(entries),
		Tools:    toolParams(schemas),
	}

	resp, err := c.callWithRetry(ctx, params)
	if err != nil {
		return nil, err
	}

	c.tracker.Add(resp.Usage.InputTokens, resp.Usage.OutputTokens)

	return decisionFromResponse(resp)
}

// Summarize implements memory.Summarizer with a single untooled call, so
// compaction can delegate summary synthesis to the same backend.
func (c *Client) Summarize(ctx context.Context, entries []memory.Entry) (string, error) {
	var b strings.Builder
	for _, e := range entries {
		fmt.Fprintf(&b, "[%s] %s\n", e.Kind, e.Content)
	}

	resp, err := c.callWithRetry(ctx, anthropic.MessageNewParams{
		Model:     c.model,
		MaxTokens: 1024,
		System: []anthropic.TextBlockParam{
			{Text: summarizePrompt},
		},
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(b.String())),
		},
	})
	if err != nil {
		return "", err
	}

	c.tracker.Add(resp.Usage.InputTokens, resp.Usage.OutputTokens)

	var out string
	for _, block := range resp.Content {
		if variant, ok := block.AsAny().(anthropic.TextBlock); ok {
			out += variant.Text
		}
	}
	if out == "" {
		return "", fmt.Errorf("empty summary response")
	}
	return out, nil
}

// callWithRetry retries transport faults with exponential backoff and
// converts exhaustion into a ProviderUnavailableError.
func (c *Client) callWithRetry(ctx context.Context, params anthropic.MessageNewParams) (*anthropic.Message, error) {
	backoff := 500 * time.Millisecond
	var lastErr error

	for attempt := 1; attempt <= c.maxRetries; attempt++ {
		resp, err := c.inner.Messages.New(ctx, params)
		if err == nil {
			return resp, nil
		}
		lastErr = err
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}

		log.Printf("[planner] API call failed (attempt %d/%d): %v", attempt, c.maxRetries, err)
		if attempt < c.maxRetries {
			select {
			case <-time.After(backoff):
			case <-ctx.Done():
				return nil, ctx.Err()
			}
			backoff *= 2
		}
	}

	return nil, &ProviderUnavailableError{Err: lastErr}
}

// messagesFromEntries replays the context store as alternating role
// messages: planner entries become assistant turns, everything else is
// presented as user turns in conversation order.
func messagesFromEntries(entries []memory.Entry) []anthropic.MessageParam {
	messages := make([]anthropic.MessageParam, 0, len(entries))
	for _, e := range entries {
		switch e.Kind {
		case memory.EntryPlanner:
			messages = append(messages, anthropic.NewAssistantMessage(anthropic.NewTextBlock(e.Content)))
		case memory.EntryTool:
			content := fmt.Sprintf("Tool: %s\n%s", e.Tool, e.Content)
			messages = append(messages, anthropic.NewUserMessage(anthropic.NewTextBlock(content)))
		default:
			messages = append(messages, anthropic.NewUserMessage(anthropic.NewTextBlock(e.Content)))
		}
	}
	return messages
}

// toolParams converts registry schemas plus the control tools into
// Anthropic tool definitions.
func toolParams(schemas []tool.Schema) []anthropic.ToolUnionParam {
	params := make([]anthropic.ToolUnionParam, 0, len(schemas)+2)

	for _, s := range schemas {
		properties := map[string]interface{}{}
		var required []string
		for _, p := range s.Params {
			prop := map[string]interface{}{
				"type":        p.Type,
				"description": p.Description,
			}
			if len(p.Enum) > 0 {
				prop["enum"] = p.Enum
			}
			properties[p.Name] = prop
			if p.Required {
				required = append(required, p.Name)
			}
		}
		params = append(params, anthropic.ToolUnionParam{
			OfTool: &anthropic.ToolParam{
				Name:        s.Name,
				Description: anthropic.String(s.Description),
				InputSchema: anthropic.ToolInputSchemaParam{
					Properties: properties,
					Required:   required,
				},
			},
		})
	}

	params = append(params, anthropic.ToolUnionParam{
		OfTool: &anthropic.ToolParam{
			Name:        spawnSubagentsTool,
			Description: anthropic.String("Decompose the current task into independent subtasks executed by parallel sub-agents. Use only when the task splits into pieces that do not depend on each other."),
			InputSchema: anthropic.ToolInputSchemaParam{
				Properties: map[string]interface{}{
					"subtasks": map[string]interface{}{
						"type":        "array",
						"description": "The subtasks to run in parallel (max 10)",
						"items": map[string]interface{}{
							"type": "object",
							"properties": map[string]interface{}{
								"description": map[string]interface{}{
									"type":        "string",
									"description": "What the sub-agent should do",
								},
								"paths": map[string]interface{}{
									"type":        "array",
									"description": "Authorized paths for the sub-agent; must be within your own authorized paths. Omit to inherit them all.",
									"items":       map[string]interface{}{"type": "string"},
								},
							},
							"required": []string{"description"},
						},
					},
				},
				Required: []string{"subtasks"},
			},
		},
	})

	params = append(params, anthropic.ToolUnionParam{
		OfTool: &anthropic.ToolParam{
			Name:        reportBlockedTool,
			Description: anthropic.String("Report that the task cannot proceed. Use only when no available tool can make progress."),
			InputSchema: anthropic.ToolInputSchemaParam{
				Properties: map[string]interface{}{
					"reason": map[string]interface{}{
						"type":        "string",
						"description": "Why the task cannot proceed",
					},
				},
				Required: []string{"reason"},
			},
		},
	})

	return params
}

// decisionFromResponse maps a model response onto the Decision union.
// The first tool_use block wins; a text-only end_turn is the final
// output; anything else is a recoverable DecisionError.
func decisionFromResponse(resp *anthropic.Message) (*Decision, error) {
	var textOutput string

	for _, block := range resp.Content {
		switch variant := block.AsAny().(type) {
		case anthropic.TextBlock:
			textOutput += variant.Text

		case anthropic.ToolUseBlock:
			switch variant.Name {
			case spawnSubagentsTool:
				var params struct {
					Subtasks []SubtaskRequest `json:"subtasks"`
				}
				if err := json.Unmarshal(variant.Input, &params); err != nil {
					return nil, &DecisionError{Detail: fmt.Sprintf("malformed %s input: %v", spawnSubagentsTool, err)}
				}
				if len(params.Subtasks) == 0 {
					return nil, &DecisionError{Detail: spawnSubagentsTool + " carried no subtasks"}
				}
				return &Decision{Kind: DecisionDecompose, Subtasks: params.Subtasks, Notes: textOutput}, nil

			case reportBlockedTool:
				var params struct {
					Reason string `json:"reason"`
				}
				if err := json.Unmarshal(variant.Input, &params); err != nil {
					return nil, &DecisionError{Detail: fmt.Sprintf("malformed %s input: %v", reportBlockedTool, err)}
				}
				return &Decision{Kind: DecisionBlocked, Reason: params.Reason}, nil

			default:
				return &Decision{Kind: DecisionInvoke, Tool: variant.Name, Args: variant.Input, Notes: textOutput}, nil
			}
		}
	}

	if resp.StopReason == anthropic.StopReasonEndTurn && textOutput != "" {
		return &Decision{Kind: DecisionFinish, Output: textOutput}, nil
	}

	return nil, &DecisionError{Detail: fmt.Sprintf("response carried no tool use and no final text (stop reason %q)", resp.StopReason)}
}

// TokenTracker tracks token usage across API calls.
type TokenTracker struct {
	mu        sync.Mutex
	inputTok  int64
	outputTok int64
	calls     int
}

// NewTokenTracker creates a new token tracker.
func NewTokenTracker() *TokenTracker {
	return &TokenTracker{}
}

// Add records token usage from an API call.
func (t *TokenTracker) Add(input, output int64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.inputTok += input
	t.outputTok += output
	t.calls++
}

// Total returns the total input and output tokens tracked.
func (t *TokenTracker) Total() (input, output int64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.inputTok, t.outputTok
}

// Calls returns the number of API calls made.
func (t *TokenTracker) Calls() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.calls
}
