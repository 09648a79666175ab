// Package batch runs a file of prompts through the creative pipeline,
// sequentially or with a bounded worker pool. Each prompt gets its own
// session id, so batch items are fully independent runs.
package batch

import (
	"context"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/manash/artgen/internal/service"
	"github.com/manash/artgen/pkg/models"
)

// Runner is the pipeline surface batch needs. Satisfied by
// *pipeline.Orchestrator.
type Runner interface {
	Process(ctx context.Context, prompt string, caller service.Caller, sessionID string) *models.Result
}

type Result struct {
	Index     int
	Prompt    string
	SessionID string
	ImagePath string
	ModelPath string
	Error     error
	Duration  time.Duration
}

type Options struct {
	Parallel    int
	StopOnError bool
	DelayMs     int
}

type Processor struct {
	runner Runner
	caller service.Caller
	out    io.Writer
	err    io.Writer
	outMu  sync.Mutex
}

func NewProcessor(runner Runner, caller service.Caller, out, errOut io.Writer) *Processor {
	return &Processor{
		runner: runner,
		caller: caller,
		out:    out,
		err:    errOut,
	}
}

func (p *Processor) printf(format string, args ...interface{}) {
	p.outMu.Lock()
	fmt.Fprintf(p.out, format, args...)
	p.outMu.Unlock()
}

func (p *Processor) errorf(format string, args ...interface{}) {
	p.outMu.Lock()
	fmt.Fprintf(p.err, format, args...)
	p.outMu.Unlock()
}

func (p *Processor) Process(ctx context.Context, items []Item, opts *Options) ([]Result, error) {
	if opts.Parallel <= 1 {
		return p.processSequential(ctx, items, opts)
	}
	return p.processParallel(ctx, items, opts)
}

func (p *Processor) processSequential(ctx context.Context, items []Item, opts *Options) ([]Result, error) {
	results := make([]Result, len(items))
	total := len(items)

	for i, item := range items {
		select {
		case <-ctx.Done():
			return results, ctx.Err()
		default:
		}

		result := p.processItem(ctx, item, i+1, total)
		results[i] = result

		if result.Error != nil && opts.StopOnError {
			return results, fmt.Errorf("stopped at item %d: %w", i+1, result.Error)
		}

		if opts.DelayMs > 0 && i < len(items)-1 {
			select {
			case <-ctx.Done():
				return results, ctx.Err()
			case <-time.After(time.Duration(opts.DelayMs) * time.Millisecond):
			}
		}
	}

	return results, nil
}

func (p *Processor) processParallel(ctx context.Context, items []Item, opts *Options) ([]Result, error) {
	results := make([]Result, len(items))
	total := len(items)

	type job struct {
		index int
		item  Item
	}

	jobs := make(chan job, len(items))
	var wg sync.WaitGroup
	var mu sync.Mutex
	var firstErr error

	workers := opts.Parallel
	if workers > len(items) {
		workers = len(items)
	}

	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := range jobs {
				select {
				case <-ctx.Done():
					return
				default:
				}

				result := p.processItem(ctx, j.item, j.index+1, total)

				mu.Lock()
				results[j.index] = result
				if result.Error != nil && opts.StopOnError && firstErr == nil {
					firstErr = result.Error
				}
				mu.Unlock()

				if opts.StopOnError && firstErr != nil {
					return
				}
			}
		}()
	}

	for i, item := range items {
		if opts.StopOnError && firstErr != nil {
			break
		}
		jobs <- job{index: i, item: item}
	}
	close(jobs)

	wg.Wait()

	if firstErr != nil {
		return results, fmt.Errorf("batch stopped due to error: %w", firstErr)
	}

	return results, nil
}

func (p *Processor) processItem(ctx context.Context, item Item, current, total int) Result {
	start := time.Now()
	result := Result{
		Index:     item.Index,
		Prompt:    item.Prompt,
		SessionID: item.SessionID,
	}
	if result.SessionID == "" {
		result.SessionID = uuid.New().String()
	}

	p.printf("[%d/%d] Processing: %q...\n", current, total, truncate(item.Prompt, 50))

	run := p.runner.Process(ctx, item.Prompt, p.caller, result.SessionID)
	result.Duration = time.Since(start)

	if !run.Success() {
		result.Error = fmt.Errorf("pipeline failed: %s", run.Err)
		p.errorf("       Error: %v\n", result.Error)
		return result
	}

	result.ImagePath = run.ImagePath
	result.ModelPath = run.ModelPath
	p.printf("       Image: %s\n       Model: %s\n", run.ImagePath, run.ModelPath)
	return result
}

// Summary prints a per-item recap after a batch completes.
func (p *Processor) Summary(results []Result) {
	var succeeded int
	var total time.Duration
	for _, r := range results {
		if r.Error == nil {
			succeeded++
		}
		total += r.Duration
	}

	p.printf("\n%d/%d prompts completed in %s\n", succeeded, len(results), total.Round(time.Millisecond))
	for _, r := range results {
		if r.Error != nil {
			p.printf("  [%d] FAILED %q: %v\n", r.Index, truncate(r.Prompt, 40), r.Error)
		}
	}
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max-3] + "..."
}
