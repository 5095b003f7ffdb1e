package sync

import (
	"context"
	"fmt"

	"mailmirror/internal/progress"
	"mailmirror/internal/store"
)

// incremental applies the remote change feed from the stored change cursor.
// Each page is applied as it arrives: added messages are fetched and upserted,
// deletions are removed in bulk. A message the feed reports added more than
// once within a page is fetched once; across pages it may be fetched again,
// which the idempotent upsert absorbs.
//
// A CursorExpiredError from the feed propagates to the caller untouched; it is
// the one failure the engine recovers from by falling back to a full sync.
func (e *Engine) incremental(ctx context.Context, source string, state *store.SyncState, rep progress.Reporter) (*Result, error) {
	res := &Result{}

	e.logger.Info("incremental sync", "source", source, "cursor", state.ChangeCursor)

	cursor := state.ChangeCursor
	pageToken := ""

	for {
		if err := ctx.Err(); err != nil {
			return res, err
		}

		page, err := e.client.ListChanges(ctx, state.ChangeCursor, pageToken)
		if err != nil {
			return res, err
		}

		addedIDs := make([]string, 0, len(page.Added))
		seen := make(map[string]bool, len(page.Added))
		for _, ref := range page.Added {
			if seen[ref.ID] {
				continue
			}
			seen[ref.ID] = true
			addedIDs = append(addedIDs, ref.ID)
		}

		if len(addedIDs) > 0 {
			added, errs, err := e.fetchAndStore(ctx, source, addedIDs, rep)
			res.Added += added
			res.Errors += errs
			if err != nil {
				return res, err
			}
		}

		if len(page.Deleted) > 0 {
			deleteIDs := make([]string, 0, len(page.Deleted))
			for _, ref := range page.Deleted {
				deleteIDs = append(deleteIDs, ref.ID)
			}
			deleted, err := e.store.DeleteItems(source, deleteIDs)
			if err != nil {
				return res, fmt.Errorf("delete items: %w", err)
			}
			res.Deleted += deleted
		}

		if page.NextCursor != "" {
			cursor = page.NextCursor
		}

		rep.Report(progress.Event{
			Phase:   progress.PhaseSyncing,
			Current: res.Added + res.Deleted,
			Message: "applying changes",
		})

		pageToken = page.NextPageToken
		if pageToken == "" {
			break
		}
	}

	// All pages applied; only now does the stored cursor advance. A crash
	// before this point replays changes on the next run, which the idempotent
	// writes make harmless.
	total, err := e.store.CountItems(source)
	if err != nil {
		return res, fmt.Errorf("count items: %w", err)
	}
	state.ChangeCursor = cursor
	state.TotalItems = total
	if err := e.store.PutSyncState(state); err != nil {
		return res, err
	}

	done(rep, res, fmt.Sprintf("incremental sync: %d added, %d deleted, %d errors", res.Added, res.Deleted, res.Errors))
	return res, nil
}
