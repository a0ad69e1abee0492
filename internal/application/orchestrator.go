// Package application contains use-case orchestration services.
package application

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"github.com/ericfisherdev/gitsentinel/internal/domain/model"
	"github.com/ericfisherdev/gitsentinel/internal/domain/port/driven"
)

// DefaultMaxConcurrent is the default number of subscriptions fetched at once.
const DefaultMaxConcurrent = 5

// fetchFunc fetches one kind of update for a repository.
type fetchFunc func(ctx context.Context, owner, repo string, since time.Time) ([]model.UpdateRecord, error)

// RunResult is the output of one fetch pass.
type RunResult struct {
	// Updates holds every surviving record across successful subscriptions,
	// newest first, with duplicates collapsed.
	Updates []model.UpdateRecord
	// Outcomes is keyed by subscription ID and has one entry per input
	// subscription.
	Outcomes map[string]model.FetchOutcome
}

// SucceededIDs returns the IDs of subscriptions whose fetch succeeded, sorted.
func (r *RunResult) SucceededIDs() []string {
	ids := make([]string, 0, len(r.Outcomes))
	for id, o := range r.Outcomes {
		if o.Succeeded() {
			ids = append(ids, id)
		}
	}
	slices.Sort(ids)
	return ids
}

// Failures returns failed subscription IDs mapped to their error text.
func (r *RunResult) Failures() map[string]string {
	failures := make(map[string]string)
	for id, o := range r.Outcomes {
		if !o.Succeeded() {
			failures[id] = o.Err.Error()
		}
	}
	return failures
}

// FetchOrchestrator fetches the incremental update set of many subscriptions
// concurrently, with at most maxConcurrent subscriptions in flight.
type FetchOrchestrator struct {
	fetchers      map[model.Kind]fetchFunc
	maxConcurrent int64
}

// NewFetchOrchestrator creates an orchestrator over the given fetcher.
// maxConcurrent <= 0 selects DefaultMaxConcurrent.
func NewFetchOrchestrator(fetcher driven.UpdateFetcher, maxConcurrent int) *FetchOrchestrator {
	if maxConcurrent <= 0 {
		maxConcurrent = DefaultMaxConcurrent
	}

	return &FetchOrchestrator{
		fetchers: map[model.Kind]fetchFunc{
			model.KindCommit:      fetcher.FetchCommits,
			model.KindIssue:       fetcher.FetchIssues,
			model.KindPullRequest: fetcher.FetchPullRequests,
			model.KindRelease:     fetcher.FetchReleases,
		},
		maxConcurrent: int64(maxConcurrent),
	}
}

// Run fetches every subscription's updates since its checkpoint (or
// defaultSince if it has none). Per-subscription failures are reported in
// the result, never returned. The only error Run returns is a rejected
// credential, which aborts the whole pass; no result is produced then.
func (o *FetchOrchestrator) Run(ctx context.Context, subs []model.Subscription, defaultSince time.Time) (*RunResult, error) {
	start := time.Now()

	ctx, cancel := context.WithCancelCause(ctx)
	defer cancel(nil)

	sem := semaphore.NewWeighted(o.maxConcurrent)
	outcomes := make([]model.FetchOutcome, len(subs))
	var wg sync.WaitGroup

	for i, sub := range subs {
		if err := sem.Acquire(ctx, 1); err != nil {
			// Pass cancelled before this subscription was admitted.
			cause := context.Cause(ctx)
			for j := i; j < len(subs); j++ {
				outcomes[j] = failedOutcome(subs[j], fmt.Errorf("fetch not started: %w", cause))
			}
			break
		}

		wg.Add(1)
		go func() {
			defer wg.Done()
			defer sem.Release(1)

			outcomes[i] = o.fetchSubscription(ctx, sub, sub.EffectiveSince(defaultSince))
			if errors.Is(outcomes[i].Err, driven.ErrUnauthorized) {
				cancel(outcomes[i].Err)
			}
		}()
	}
	wg.Wait()

	if cause := context.Cause(ctx); errors.Is(cause, driven.ErrUnauthorized) {
		slog.Error("fetch pass aborted: credential rejected", "error", cause)
		return nil, fmt.Errorf("fetch pass aborted: %w", cause)
	}

	result := merge(subs, outcomes)

	slog.Info("fetch pass complete",
		"subscriptions", len(subs),
		"succeeded", len(result.SucceededIDs()),
		"updates", len(result.Updates),
		"duration", time.Since(start).Round(time.Millisecond),
	)

	return result, nil
}

// fetchSubscription runs every enabled kind fetch concurrently and waits for
// all of them. A failing kind contributes zero records. The subscription as
// a whole fails if the quota ran out, if every kind failed, or if the
// credential was rejected.
func (o *FetchOrchestrator) fetchSubscription(ctx context.Context, sub model.Subscription, since time.Time) model.FetchOutcome {
	kinds := sub.Kinds.Concrete()
	results := make([][]model.UpdateRecord, len(kinds))
	errs := make([]error, len(kinds))

	g, gctx := errgroup.WithContext(ctx)
	for i, kind := range kinds {
		fetch := o.fetchers[kind]
		g.Go(func() (err error) {
			defer func() {
				if r := recover(); r != nil {
					errs[i] = fmt.Errorf("%s fetch panicked: %v", kind, r)
					err = nil
				}
			}()

			records, err := fetch(gctx, sub.Owner, sub.Repo, since)
			if err != nil {
				errs[i] = fmt.Errorf("%s: %w", kind, err)
				if errors.Is(err, driven.ErrUnauthorized) {
					return errs[i]
				}
				return nil
			}
			results[i] = records
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return failedOutcome(sub, err)
	}
	if err := ctx.Err(); err != nil {
		return failedOutcome(sub, fmt.Errorf("fetch interrupted: %w", context.Cause(ctx)))
	}

	var failed []error
	for i, err := range errs {
		if err == nil {
			continue
		}
		failed = append(failed, err)
		slog.Warn("kind fetch failed, skipping",
			"subscription", sub.ID,
			"repo", sub.FullName(),
			"kind", kinds[i],
			"error", err,
		)
		if errors.Is(err, driven.ErrQuotaExhausted) {
			return failedOutcome(sub, err)
		}
	}
	if len(kinds) > 0 && len(failed) == len(kinds) {
		return failedOutcome(sub, errors.Join(failed...))
	}

	var updates []model.UpdateRecord
	for _, records := range results {
		updates = append(updates, records...)
	}
	updates = ApplyFilters(updates, sub.Filters)
	slices.SortStableFunc(updates, model.CompareUpdates)
	if updates == nil {
		updates = []model.UpdateRecord{}
	}

	return model.FetchOutcome{
		SubscriptionID: sub.ID,
		Owner:          sub.Owner,
		Repo:           sub.Repo,
		Updates:        updates,
	}
}

// merge builds the outcome map and the sorted, de-duplicated update list.
func merge(subs []model.Subscription, outcomes []model.FetchOutcome) *RunResult {
	result := &RunResult{
		Updates:  []model.UpdateRecord{},
		Outcomes: make(map[string]model.FetchOutcome, len(subs)),
	}

	for i, out := range outcomes {
		result.Outcomes[subs[i].ID] = out
		if !out.Succeeded() {
			slog.Warn("subscription fetch failed",
				"subscription", subs[i].ID,
				"repo", subs[i].FullName(),
				"error", out.Err,
			)
			continue
		}
		result.Updates = append(result.Updates, out.Updates...)
	}

	slices.SortStableFunc(result.Updates, model.CompareUpdates)

	type key struct {
		kind model.Kind
		url  string
	}
	seen := make(map[key]struct{}, len(result.Updates))
	deduped := result.Updates[:0]
	for _, u := range result.Updates {
		if u.URL != "" {
			k := key{u.Kind, u.URL}
			if _, dup := seen[k]; dup {
				continue
			}
			seen[k] = struct{}{}
		}
		deduped = append(deduped, u)
	}
	result.Updates = deduped

	return result
}

func failedOutcome(sub model.Subscription, err error) model.FetchOutcome {
	return model.FetchOutcome{
		SubscriptionID: sub.ID,
		Owner:          sub.Owner,
		Repo:           sub.Repo,
		Err:            err,
	}
}
