package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/MimeLyc/contextual-book-translator/internal/config"
	"github.com/MimeLyc/contextual-book-translator/internal/epub"
	"github.com/MimeLyc/contextual-book-translator/internal/input"
	"github.com/MimeLyc/contextual-book-translator/internal/jobs"
	"github.com/MimeLyc/contextual-book-translator/internal/persistence"
	"github.com/MimeLyc/contextual-book-translator/internal/reconcile"
	"github.com/MimeLyc/contextual-book-translator/internal/translator"
	"github.com/MimeLyc/contextual-book-translator/pkg/log"
	"github.com/dustin/go-humanize"
	"github.com/google/uuid"
	"golang.org/x/text/language"
)

// Pipeline runs one pass over a set of source documents: extract, collect
// stale cache records, translate what is missing and hand complete
// documents to the assembler.
type Pipeline struct {
	extractor  *epub.Extractor
	store      persistence.Store
	reconciler *reconcile.Reconciler
	dispatcher *jobs.Dispatcher
	assembler  Assembler

	target language.Tag
	prune  bool
	logger *log.Logger
}

func NewPipeline(
	cfg *config.Config,
	store persistence.Store,
	tr translator.Translator,
	assembler Assembler,
	logger *log.Logger,
) *Pipeline {
	logger = log.OrGlobal(logger)
	dispatcher := jobs.NewDispatcher(tr, store, jobs.Config{
		Prompt:         cfg.Translate.Prompt,
		TargetLanguage: cfg.Translate.Target(),
		MaxConcurrency: cfg.Translate.MaxConnections,
		MaxAttempts:    cfg.Translate.MaxAttempts,
		RetryDelay:     cfg.Translate.RetryDelay,
		CallTimeout:    cfg.LLM.CallTimeout(),
	}, logger)

	return &Pipeline{
		extractor:  epub.NewExtractor(logger),
		store:      store,
		reconciler: reconcile.New(store, logger),
		dispatcher: dispatcher,
		assembler:  assembler,
		target:     cfg.Translate.Target(),
		prune:      cfg.Storage.PruneCompleted,
		logger:     logger,
	}
}

// RunReport summarizes one pipeline run.
type RunReport struct {
	RunID     string
	Documents int
	// Skipped lists sources whose archive could not be extracted.
	Skipped []string
	// AlreadyExported lists sources skipped because their export exists.
	AlreadyExported []string

	Chapters   int
	Cached     int
	Translated int
	Failed     []jobs.Result
	Chars      int
	Warnings   int

	Removed       []string
	Exported      []string
	ExportedBytes int64
	Elapsed       time.Duration
}

func (r *RunReport) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%d documents, %d chapters (%d cached), %d translated (%s chars), %d failed",
		r.Documents, r.Chapters, r.Cached, r.Translated, humanize.Comma(int64(r.Chars)), len(r.Failed))
	if len(r.Skipped) > 0 {
		fmt.Fprintf(&b, ", %d skipped", len(r.Skipped))
	}
	if r.Warnings > 0 {
		fmt.Fprintf(&b, ", %d warnings", r.Warnings)
	}
	if len(r.Removed) > 0 {
		fmt.Fprintf(&b, ", %d stale records removed", len(r.Removed))
	}
	if len(r.Exported) > 0 {
		fmt.Fprintf(&b, ", %d exported (%s)", len(r.Exported), humanize.Bytes(uint64(r.ExportedBytes)))
	}
	fmt.Fprintf(&b, " in %s", r.Elapsed.Round(time.Millisecond))
	return b.String()
}

// Complete reports whether every requested document ended up exported.
func (r *RunReport) Complete() bool {
	return len(r.Exported)+len(r.AlreadyExported) == r.Documents
}

// Run processes sources once. Chapters that fail after all retries are
// listed in the report and left for the next run. A terminal translator
// error, a cache failure or a failed hand-off aborts the run; everything
// persisted before that point is reused by the next run.
func (p *Pipeline) Run(ctx context.Context, sources []input.Source) (*RunReport, error) {
	start := time.Now()
	runID := uuid.NewString()
	logger := p.logger.With("run " + runID[:8])
	report := &RunReport{RunID: runID, Documents: len(sources)}
	defer func() { report.Elapsed = time.Since(start) }()

	logger.Info("starting run over %d documents", len(sources))

	docs, err := p.extract(ctx, logger, sources, report)
	if err != nil {
		return report, err
	}

	// Skipped sources stay requested so their cache survives a bad read.
	sweep, plan, err := p.reconciler.Reconcile(ctx, input.Fingerprints(sources), docs)
	if err != nil {
		return report, fail(ctx, err, ErrCache, "reconcile cache")
	}
	report.Removed = sweep.Deleted
	report.Warnings += len(sweep.Warnings)
	for _, dp := range plan.Documents {
		report.Chapters += dp.Chapters
		report.Cached += dp.Cached
	}
	logger.Info("%d chapters to translate, %d already cached", len(plan.Jobs), report.Cached)

	result, err := p.dispatcher.Dispatch(ctx, plan.Jobs)
	if result != nil {
		report.Translated = len(result.Translated)
		report.Failed = result.Failed
		report.Chars = result.Chars()
	}
	if err != nil {
		return report, fail(ctx, err, ErrUnknown, "dispatch")
	}
	for _, res := range report.Failed {
		logger.Warn("%s failed after %d attempts: %v", res.Job, res.Attempts, res.Err)
	}

	if err := p.handOff(ctx, logger, docs, report); err != nil {
		return report, err
	}

	report.Elapsed = time.Since(start)
	logger.Info("run finished: %s", report)
	return report, nil
}

func (p *Pipeline) extract(ctx context.Context, logger *log.Logger, sources []input.Source, report *RunReport) ([]*epub.Document, error) {
	docs := make([]*epub.Document, 0, len(sources))
	for _, src := range sources {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		if p.prune {
			done, err := p.assembler.Exported(src.Fingerprint)
			if err != nil {
				return nil, WrapError(err, ErrExport, "check export").WithContext("fingerprint", src.Fingerprint)
			}
			if done {
				// A crash between export and prune can leave the record behind.
				if err := p.store.Delete(ctx, src.Fingerprint); err != nil {
					return nil, fail(ctx, err, ErrCache, "prune exported record")
				}
				logger.Info("%s: already exported, skipping", src.Fingerprint)
				report.AlreadyExported = append(report.AlreadyExported, src.Fingerprint)
				continue
			}
		}

		doc, err := p.extractor.Extract(ctx, src.Path)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			logger.Error("%v", WrapError(err, ErrParse, "extract").WithContext("path", src.Path))
			report.Skipped = append(report.Skipped, src.Fingerprint)
			continue
		}
		report.Warnings += len(doc.Warnings)
		docs = append(docs, doc)
	}
	return docs, nil
}

// handOff exports every document whose extracted chapters are all cached
// and, when pruning, drops the record after a successful export.
func (p *Pipeline) handOff(ctx context.Context, logger *log.Logger, docs []*epub.Document, report *RunReport) error {
	for _, doc := range docs {
		record, err := p.store.Load(ctx, doc.Fingerprint)
		if err != nil {
			return fail(ctx, err, ErrCache, "load record")
		}
		book, ok := NewBook(doc, record, p.target.String())
		if !ok {
			continue
		}

		n, err := p.assembler.Assemble(ctx, book)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return WrapError(err, ErrExport, "hand off").WithContext("fingerprint", doc.Fingerprint)
		}
		report.Exported = append(report.Exported, doc.Fingerprint)
		report.ExportedBytes += n
		logger.Info("%s: exported %d chapters (%s)", doc.Fingerprint, len(book.Chapters), humanize.Bytes(uint64(n)))

		if p.prune {
			if err := p.store.Delete(ctx, doc.Fingerprint); err != nil {
				return fail(ctx, err, ErrCache, "prune record")
			}
			logger.Debug("%s: pruned cache record", doc.Fingerprint)
		}
	}
	return nil
}

// fail maps a run-fatal error onto the service error taxonomy, falling
// back to fallback. Cancellation is returned as is.
func fail(ctx context.Context, err error, fallback ErrorType, message string) error {
	switch {
	case ctx.Err() != nil && errors.Is(err, ctx.Err()):
		return ctx.Err()
	case translator.IsTerminal(err):
		return WrapError(err, ErrTranslation, message)
	case errors.Is(err, jobs.ErrCacheWrite), errors.Is(err, persistence.ErrLocked):
		return WrapError(err, ErrCache, message)
	default:
		return WrapError(err, fallback, message)
	}
}
