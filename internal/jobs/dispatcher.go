package jobs

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/MimeLyc/contextual-book-translator/internal/translator"
	"github.com/MimeLyc/contextual-book-translator/pkg/log"
	"github.com/avast/retry-go/v4"
	"golang.org/x/sync/errgroup"
	"golang.org/x/text/language"
)

// ErrCacheWrite wraps a failure to persist a finished translation.
var ErrCacheWrite = errors.New("cache write failed")

const (
	DefaultMaxConcurrency = 4
	DefaultMaxAttempts    = 3
	DefaultRetryDelay     = 2 * time.Second
	DefaultMaxRetryDelay  = time.Minute
)

type Config struct {
	// Prompt is the template rendered per chapter; see translator.RenderPrompt.
	Prompt         string
	TargetLanguage language.Tag
	// MaxConcurrency bounds in-flight translator calls across all documents.
	MaxConcurrency int
	MaxAttempts    int
	RetryDelay     time.Duration
	MaxRetryDelay  time.Duration
	// CallTimeout bounds a single translator call; zero disables it.
	CallTimeout time.Duration
}

func (c Config) withDefaults() Config {
	if c.MaxConcurrency <= 0 {
		c.MaxConcurrency = DefaultMaxConcurrency
	}
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = DefaultMaxAttempts
	}
	if c.RetryDelay <= 0 {
		c.RetryDelay = DefaultRetryDelay
	}
	if c.MaxRetryDelay < c.RetryDelay {
		c.MaxRetryDelay = max(DefaultMaxRetryDelay, c.RetryDelay)
	}
	return c
}

// Dispatcher translates jobs with a global bound on concurrent calls and
// appends each result to the store as soon as it arrives.
type Dispatcher struct {
	translator translator.Translator
	store      Store
	config     Config
	logger     *log.Logger
}

func NewDispatcher(tr translator.Translator, store Store, config Config, logger *log.Logger) *Dispatcher {
	return &Dispatcher{
		translator: tr,
		store:      store,
		config:     config.withDefaults(),
		logger:     log.OrGlobal(logger).With("dispatch"),
	}
}

// Dispatch runs every job. Jobs that keep failing transiently, or are
// rejected, end up in Report.Failed and do not stop the run. A terminal
// translator error or a cache write failure cancels the remaining jobs and
// is returned. Chapters of one document carry no ordering guarantee.
func (d *Dispatcher) Dispatch(ctx context.Context, jobs []TranslationJob) (*Report, error) {
	report := &Report{}
	if len(jobs) == 0 {
		return report, nil
	}

	var mu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(d.config.MaxConcurrency)

	d.logger.Info("dispatching %d jobs, concurrency %d", len(jobs), d.config.MaxConcurrency)
	for _, job := range jobs {
		if gctx.Err() != nil {
			break
		}
		g.Go(func() error {
			res, err := d.run(gctx, job)
			mu.Lock()
			switch res.Status {
			case StatusSuccess:
				report.Translated = append(report.Translated, res)
			case StatusFailed:
				report.Failed = append(report.Failed, res)
			}
			mu.Unlock()
			return err
		})
	}

	if err := g.Wait(); err != nil {
		return report, err
	}
	if err := ctx.Err(); err != nil {
		return report, err
	}
	return report, nil
}

func (d *Dispatcher) run(ctx context.Context, job TranslationJob) (Result, error) {
	res := Result{Job: job}
	start := time.Now()
	prompt := translator.RenderPrompt(d.config.Prompt, translator.DetectLanguage(job.Content), d.config.TargetLanguage)

	var out string
	err := retry.Do(
		func() error {
			res.Attempts++
			text, err := d.call(ctx, prompt, job.Content)
			if err != nil {
				return err
			}
			out = text
			return nil
		},
		retry.Context(ctx),
		retry.Attempts(uint(d.config.MaxAttempts)),
		retry.Delay(d.config.RetryDelay),
		retry.MaxDelay(d.config.MaxRetryDelay),
		retry.MaxJitter(d.config.RetryDelay),
		retry.DelayType(retry.CombineDelay(retry.BackOffDelay, retry.RandomDelay)),
		retry.RetryIf(translator.IsTransient),
		retry.LastErrorOnly(true),
		retry.OnRetry(func(n uint, err error) {
			d.logger.Warn("%s: attempt %d failed: %v", job, n+1, err)
		}),
	)
	res.Elapsed = time.Since(start)

	if err != nil {
		if ctx.Err() != nil {
			res.Status = StatusCanceled
			return res, nil
		}
		res.Err = err
		if translator.IsTerminal(err) {
			res.Status = StatusFailed
			d.logger.Error("%s: %v", job, err)
			return res, fmt.Errorf("translate %s: %w", job, err)
		}
		res.Status = StatusFailed
		d.logger.Error("%s: giving up after %d attempts: %v", job, res.Attempts, err)
		return res, nil
	}

	// A finished translation is kept even if the run is being interrupted.
	if err := d.store.Append(context.WithoutCancel(ctx), job.Fingerprint, job.Title, out); err != nil {
		res.Status = StatusFailed
		res.Err = err
		return res, fmt.Errorf("%w: %s: %w", ErrCacheWrite, job, err)
	}

	res.Status = StatusSuccess
	res.Chars = len([]rune(job.Content))
	d.logger.Info("%s: translated in %s (%d attempts)", job, res.Elapsed.Round(time.Millisecond), res.Attempts)
	return res, nil
}

func (d *Dispatcher) call(ctx context.Context, prompt, text string) (string, error) {
	if d.config.CallTimeout <= 0 {
		return d.translator.Translate(ctx, prompt, text)
	}
	callCtx, cancel := context.WithTimeout(ctx, d.config.CallTimeout)
	defer cancel()

	out, err := d.translator.Translate(callCtx, prompt, text)
	if err != nil && ctx.Err() == nil && errors.Is(callCtx.Err(), context.DeadlineExceeded) {
		return "", fmt.Errorf("call timed out after %s: %w", d.config.CallTimeout, err)
	}
	return out, err
}
