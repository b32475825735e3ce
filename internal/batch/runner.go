// Package batch replays a prompt list against the assistant service:
// one fresh session per prompt, a bounded worker group, shared request
// throttling, and a report of per-prompt outcomes.
package batch

import (
	"context"
	"log"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/parley-ai/parley/pkg/assistant"
	"github.com/parley-ai/parley/pkg/chat"
	"github.com/parley-ai/parley/pkg/record"
)

// Options configures a batch run.
type Options struct {
	// Concurrency bounds the number of parallel workers (default 4).
	Concurrency int
	// RPS throttles turns per second across all workers (0 = unlimited).
	RPS float64
	// Streaming selects the turn transport, as in chat.WithStreaming.
	Streaming bool
	// UserID is the user all batch sessions belong to.
	UserID string
}

// Runner executes batch evaluation runs.
type Runner struct {
	store  record.Store
	remote assistant.Client
	opts   Options
	now    func() time.Time
}

// NewRunner creates a runner sending turns through the given store and
// transport.
func NewRunner(store record.Store, remote assistant.Client, opts Options) *Runner {
	if opts.Concurrency <= 0 {
		opts.Concurrency = 4
	}
	if opts.UserID == "" {
		opts.UserID = "batch"
	}
	return &Runner{
		store:  store,
		remote: remote,
		opts:   opts,
		now:    time.Now,
	}
}

// Run replays all prompts and returns the report. Results keep prompt
// order regardless of worker scheduling. A context cancellation stops
// admission of further prompts; prompts never started are reported as
// skipped errors.
func (r *Runner) Run(ctx context.Context, prompts []string) (*Report, error) {
	start := r.now()

	limiter := rate.NewLimiter(rate.Inf, 1)
	if r.opts.RPS > 0 {
		limiter = rate.NewLimiter(rate.Limit(r.opts.RPS), 1)
	}

	results := make([]Result, len(prompts))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.opts.Concurrency)

	for i, prompt := range prompts {
		g.Go(func() error {
			if err := limiter.Wait(gctx); err != nil {
				results[i] = Result{Prompt: prompt, Status: "skipped", Error: err.Error()}
				return nil
			}
			results[i] = r.runOne(gctx, prompt)
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}

	report := &Report{
		StartedAt: start,
		Elapsed:   r.now().Sub(start),
		Results:   results,
	}
	for _, res := range results {
		report.Total++
		if res.Status == string(record.StatusComplete) {
			report.Succeeded++
		} else {
			report.Failed++
		}
	}

	log.Printf("[BATCH] %d prompts: %d succeeded, %d failed in %s",
		report.Total, report.Succeeded, report.Failed, report.Elapsed.Round(time.Millisecond))
	return report, nil
}

// runOne sends a single prompt on its own fresh session.
func (r *Runner) runOne(ctx context.Context, prompt string) Result {
	start := r.now()

	session := &record.Session{
		ID:        uuid.NewString(),
		UserID:    r.opts.UserID,
		Title:     record.DefaultTitle,
		FirstTurn: true,
		CreatedAt: start,
		UpdatedAt: start,
	}
	if err := r.store.CreateSession(ctx, session); err != nil {
		return Result{Prompt: prompt, Status: "skipped", Error: err.Error()}
	}

	client := chat.NewClient(r.store, r.remote, session, chat.WithStreaming(r.opts.Streaming))
	msg, err := client.Send(ctx, prompt)
	if err != nil {
		return Result{
			Prompt:   prompt,
			Status:   "skipped",
			Error:    err.Error(),
			Duration: r.now().Sub(start),
		}
	}

	res := Result{
		Prompt:   prompt,
		Reply:    msg.Content,
		Status:   string(msg.Status),
		Error:    msg.ErrorMessage,
		Duration: r.now().Sub(start),
	}
	if msg.Metadata != nil {
		res.Intents = msg.Metadata.DetectedIntents
	}
	return res
}
