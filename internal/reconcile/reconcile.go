// Package reconcile compares freshly extracted documents with the
// translation cache: it drops records nobody asked for and turns every
// chapter without a cached translation into a job.
package reconcile

import (
	"context"
	"fmt"

	"github.com/MimeLyc/contextual-book-translator/internal/epub"
	"github.com/MimeLyc/contextual-book-translator/internal/jobs"
	"github.com/MimeLyc/contextual-book-translator/internal/persistence"
	"github.com/MimeLyc/contextual-book-translator/pkg/log"
)

// Sweep is the outcome of garbage collection.
type Sweep struct {
	Deleted       []string
	StraysRemoved []string
	// Warnings holds strays that could not be removed.
	Warnings []string
}

// DocumentPlan describes one document's cache state.
type DocumentPlan struct {
	Fingerprint string
	Chapters    int
	Cached      int
	Pending     int
}

// Plan is the work left after comparing extractions with the cache.
type Plan struct {
	Jobs      []jobs.TranslationJob
	Documents []DocumentPlan
	// Complete lists documents whose extracted chapters are all cached.
	Complete []string
}

type Reconciler struct {
	store  persistence.Store
	logger *log.Logger
}

func New(store persistence.Store, logger *log.Logger) *Reconciler {
	return &Reconciler{
		store:  store,
		logger: log.OrGlobal(logger).With("reconcile"),
	}
}

// Reconcile runs Collect and then Plan.
func (r *Reconciler) Reconcile(ctx context.Context, requested []string, docs []*epub.Document) (*Sweep, *Plan, error) {
	sweep, err := r.Collect(ctx, requested)
	if err != nil {
		return nil, nil, err
	}
	plan, err := r.Plan(ctx, docs)
	if err != nil {
		return sweep, nil, err
	}
	return sweep, plan, nil
}

// Collect deletes every record whose fingerprint is not in requested and,
// when the store supports it, removes stray artifacts. A stray that cannot
// be removed is reported as a warning.
func (r *Reconciler) Collect(ctx context.Context, requested []string) (*Sweep, error) {
	keep := make(map[string]struct{}, len(requested))
	for _, fp := range requested {
		keep[fp] = struct{}{}
	}

	existing, err := r.store.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("list cache: %w", err)
	}

	sweep := &Sweep{}
	for _, fp := range existing {
		if _, ok := keep[fp]; ok {
			continue
		}
		if err := r.store.Delete(ctx, fp); err != nil {
			return nil, fmt.Errorf("delete stale record %s: %w", fp, err)
		}
		r.logger.Info("removed stale record %s", fp)
		sweep.Deleted = append(sweep.Deleted, fp)
	}

	janitor, ok := r.store.(persistence.Janitor)
	if !ok {
		return sweep, nil
	}
	strays, err := janitor.Strays(ctx)
	if err != nil {
		return nil, fmt.Errorf("list strays: %w", err)
	}
	for _, name := range strays {
		if err := janitor.RemoveStray(ctx, name); err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			r.logger.Warn("cannot remove stray %s: %v", name, err)
			sweep.Warnings = append(sweep.Warnings, fmt.Sprintf("%s: %v", name, err))
			continue
		}
		r.logger.Debug("removed stray %s", name)
		sweep.StraysRemoved = append(sweep.StraysRemoved, name)
	}
	return sweep, nil
}

// Plan emits a job for every extracted chapter whose title has no cached
// translation. Titles are matched exactly.
func (r *Reconciler) Plan(ctx context.Context, docs []*epub.Document) (*Plan, error) {
	plan := &Plan{}
	for _, doc := range docs {
		record, err := r.store.Load(ctx, doc.Fingerprint)
		if err != nil {
			return nil, fmt.Errorf("load record %s: %w", doc.Fingerprint, err)
		}

		dp := DocumentPlan{Fingerprint: doc.Fingerprint, Chapters: len(doc.Chapters)}
		for _, ch := range doc.Chapters {
			if _, ok := record[ch.Title]; ok {
				dp.Cached++
				continue
			}
			dp.Pending++
			plan.Jobs = append(plan.Jobs, jobs.TranslationJob{
				Fingerprint: doc.Fingerprint,
				Title:       ch.Title,
				Content:     ch.Content,
			})
		}
		plan.Documents = append(plan.Documents, dp)
		if dp.Pending == 0 && dp.Chapters > 0 {
			plan.Complete = append(plan.Complete, doc.Fingerprint)
		}
		r.logger.Debug("%s: %d chapters, %d cached, %d pending", dp.Fingerprint, dp.Chapters, dp.Cached, dp.Pending)
	}
	return plan, nil
}
