package sync

import (
	"context"
	"errors"
	"fmt"

	"golang.org/x/sync/errgroup"

	"mailmirror/internal/normalize"
	"mailmirror/internal/progress"
	"mailmirror/internal/remote"
	"mailmirror/internal/store"
)

// fetchAndStore downloads the given message IDs in bounded batches, writing
// each batch as one bulk item upsert followed by a contact upsert.
//
// Failure isolation is per message: a fetch that fails is counted in errs and
// the rest of its batch still lands in the store. Cancellation is observed at
// batch boundaries; fetches already dispatched finish, no new batch starts,
// and whatever batches were flushed stay flushed (upserts are idempotent, so
// partial progress is kept rather than rolled back).
func (e *Engine) fetchAndStore(ctx context.Context, source string, ids []string, rep progress.Reporter) (added, errs int64, err error) {
	total := int64(len(ids))

	for start := 0; start < len(ids); start += e.opts.BatchSize {
		if err := ctx.Err(); err != nil {
			return added, errs, err
		}

		end := start + e.opts.BatchSize
		if end > len(ids) {
			end = len(ids)
		}
		batch := ids[start:end]

		results := make([]*remote.Message, len(batch))
		g := new(errgroup.Group)
		g.SetLimit(e.opts.Concurrency)

		for i, id := range batch {
			i, id := i, id
			g.Go(func() error {
				msg, ferr := e.client.FetchMessage(ctx, id)
				if ferr != nil {
					if errors.Is(ferr, context.Canceled) || errors.Is(ferr, context.DeadlineExceeded) {
						return ferr
					}
					// Partial failure: skip this message, keep the batch.
					e.logger.Warn("failed to fetch message", "id", id, "error", ferr)
					return nil
				}
				results[i] = msg
				return nil
			})
		}
		if werr := g.Wait(); werr != nil {
			return added, errs, werr
		}

		items := make([]*store.Item, 0, len(batch))
		var seen []store.ContactSeen
		for _, msg := range results {
			if msg == nil {
				errs++
				continue
			}
			item := normalize.Item(source, msg)
			items = append(items, item)
			seen = append(seen, normalize.Contacts(item)...)
		}

		if err := e.store.UpsertItems(items); err != nil {
			return added, errs, fmt.Errorf("upsert items: %w", err)
		}
		if err := e.store.UpsertContacts(seen); err != nil {
			return added, errs, fmt.Errorf("upsert contacts: %w", err)
		}
		added += int64(len(items))

		rep.Report(progress.Event{
			Phase:   progress.PhaseDownloading,
			Current: added + errs,
			Total:   total,
			Message: "downloading messages",
		})
	}

	return added, errs, nil
}
