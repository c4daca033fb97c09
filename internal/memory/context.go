// Package memory implements the per-task context store: the ordered
// conversation and observation log replayed to the planner each
// iteration, with budget-driven compaction of old entries.
package memory

import (
	"context"
	"fmt"
	"log"
	"strings"
	"time"
)

// EntryKind tags a context entry.
type EntryKind string

const (
	// EntryTask is the pinned task description, always the first entry.
	EntryTask EntryKind = "task"
	// EntryPlanner is a message produced by the planner.
	EntryPlanner EntryKind = "planner"
	// EntryTool is a tool observation.
	EntryTool EntryKind = "tool"
	// EntrySystem is a system note injected by the loop.
	EntrySystem EntryKind = "system"
	// EntrySummary is a synthesized compaction summary.
	EntrySummary EntryKind = "summary"
)

// Entry is one element of the conversation order. Insertion order is
// load-bearing: it is what the planner sees.
type Entry struct {
	// Kind tags the entry.
	Kind EntryKind
	// Content is the entry text.
	Content string
	// Tool names the tool for EntryTool entries.
	Tool string
	// Timestamp is when the entry was appended.
	Timestamp time.Time
}

// Summarizer condenses a run of entries into one summary string.
// Implementations may call out to a model; errors fall back to the
// deterministic truncation policy.
type Summarizer interface {
	Summarize(ctx context.Context, entries []Entry) (string, error)
}

const (
	// DefaultBudget is the serialized-size budget in bytes before
	// compaction triggers.
	DefaultBudget = 64 * 1024
	// DefaultRecentTail is how many recent entries compaction preserves.
	DefaultRecentTail = 10
	// summaryLineCap truncates each entry's contribution to a
	// deterministic summary.
	summaryLineCap = 120
)

// Store accumulates context entries for one task. A Store is owned by a
// single agent loop and is not safe for concurrent use.
type Store struct {
	entries    []Entry
	budget     int
	recentTail int
	summarizer Summarizer
}

// Option customizes a Store.
type Option func(*Store)

// WithBudget sets the serialized-size budget in bytes.
func WithBudget(n int) Option {
	return func(s *Store) { s.budget = n }
}

// WithRecentTail sets how many recent entries compaction preserves.
func WithRecentTail(n int) Option {
	return func(s *Store) { s.recentTail = n }
}

// WithSummarizer delegates summary synthesis during compaction.
func WithSummarizer(sum Summarizer) Option {
	return func(s *Store) { s.summarizer = sum }
}

// NewStore creates a store seeded with the pinned task description.
func NewStore(taskDescription string, opts ...Option) *Store {
	s := &Store{
		budget:     DefaultBudget,
		recentTail: DefaultRecentTail,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.entries = append(s.entries, Entry{
		Kind:      EntryTask,
		Content:   taskDescription,
		Timestamp: time.Now(),
	})
	return s
}

// AppendPlanner records a planner message.
func (s *Store) AppendPlanner(content string) {
	s.append(Entry{Kind: EntryPlanner, Content: content})
}

// AppendToolResult records a tool observation.
func (s *Store) AppendToolResult(toolName, content string) {
	s.append(Entry{Kind: EntryTool, Content: content, Tool: toolName})
}

// AppendSystemNote records a note from the loop itself (errors fed back
// to the planner, sub-agent summaries, corrective instructions).
func (s *Store) AppendSystemNote(content string) {
	s.append(Entry{Kind: EntrySystem, Content: content})
}

func (s *Store) append(e Entry) {
	e.Timestamp = time.Now()
	s.entries = append(s.entries, e)
}

// Snapshot returns a copy of the current entry sequence in conversation
// order.
func (s *Store) Snapshot() []Entry {
	return append([]Entry(nil), s.entries...)
}

// Len returns the number of entries.
func (s *Store) Len() int {
	return len(s.entries)
}

// Size estimates the serialized size in bytes of the full entry set.
func (s *Store) Size() int {
	total := 0
	for _, e := range s.entries {
		// Small per-entry overhead for role framing.
		total += len(e.Content) + len(e.Tool) + 16
	}
	return total
}

// MaybeCompact replaces the oldest compactable prefix with a single
// summary entry when the size estimate exceeds the budget. The pinned
// task description and the most recent entries are never compacted, and
// a previous summary is not re-summarized until new entries follow it,
// so repeated calls with no new entries are no-ops. Returns whether a
// compaction happened.
func (s *Store) MaybeCompact(ctx context.Context) bool {
	if s.Size() <= s.budget {
		return false
	}

	// Compactable span: everything after the pinned first entry and
	// before the recent tail.
	start := 1
	end := len(s.entries) - s.recentTail
	if end <= start {
		return false
	}
	span := s.entries[start:end]
	if len(span) == 1 && span[0].Kind == EntrySummary {
		// Already compacted down to a single summary; re-summarizing
		// it would churn forever without shrinking anything.
		return false
	}

	summary := s.summarize(ctx, span)
	compacted := make([]Entry, 0, 2+s.recentTail)
	compacted = append(compacted, s.entries[0])
	compacted = append(compacted, Entry{
		Kind:      EntrySummary,
		Content:   summary,
		Timestamp: time.Now(),
	})
	compacted = append(compacted, s.entries[end:]...)

	log.Printf("[memory] compacted %d entries into summary (%d entries remain)", len(span), len(compacted))
	s.entries = compacted
	return true
}

// summarize produces the summary text for a span, delegating when a
// summarizer is configured and falling back to deterministic truncation.
func (s *Store) summarize(ctx context.Context, span []Entry) string {
	if s.summarizer != nil {
		if out, err := s.summarizer.Summarize(ctx, span); err == nil {
			return out
		} else {
			log.Printf("[memory] delegated summarization failed, using truncation: %v", err)
		}
	}
	return truncationSummary(span)
}

// truncationSummary condenses a span into one line per entry, each line
// capped, oldest first.
func truncationSummary(span []Entry) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Summary of %d earlier steps:\n", len(span))
	for _, e := range span {
		line := strings.SplitN(e.Content, "\n", 2)[0]
		if len(line) > summaryLineCap {
			line = line[:summaryLineCap] + "..."
		}
		label := string(e.Kind)
		if e.Kind == EntryTool && e.Tool != "" {
			label = "tool:" + e.Tool
		}
		fmt.Fprintf(&b, "- [%s] %s\n", label, line)
	}
	return strings.TrimRight(b.String(), "\n")
}
