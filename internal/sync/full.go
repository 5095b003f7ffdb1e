package sync

import (
	"context"
	"fmt"

	"mailmirror/internal/progress"
	"mailmirror/internal/store"
)

// full performs a full synchronization: cold-start population or recovery
// after change-cursor expiry.
//
// The change cursor is captured from mailbox info before listing begins, so
// any message that lands in the mailbox while the listing/fetch phase runs is
// covered by the next incremental sync instead of being silently missed.
func (e *Engine) full(ctx context.Context, source string, limit int, rep progress.Reporter) (*Result, error) {
	res := &Result{}

	info, err := e.client.GetMailboxInfo(ctx)
	if err != nil {
		return res, fmt.Errorf("get mailbox info: %w", err)
	}
	changeCursor := info.CurrentCursor

	e.logger.Info("full sync", "source", source, "approx_total", info.ApproxTotal)

	ids, backfillCursor, err := e.collectIDs(ctx, "", limit, info.ApproxTotal, rep)
	if err != nil {
		return res, err
	}

	if len(ids) > 0 {
		added, errs, err := e.fetchAndStore(ctx, source, ids, rep)
		res.Added = added
		res.Errors = errs
		if err != nil {
			return res, err
		}
	}

	// Sync state is written only after the item writes above completed: a
	// crash mid-run leaves the stored cursors stale but safe.
	total, err := e.store.CountItems(source)
	if err != nil {
		return res, fmt.Errorf("count items: %w", err)
	}
	if err := e.store.PutSyncState(&store.SyncState{
		Source:         source,
		ChangeCursor:   changeCursor,
		TotalItems:     total,
		BackfillCursor: backfillCursor,
	}); err != nil {
		return res, err
	}

	done(rep, res, fmt.Sprintf("full sync complete: %d added, %d errors", res.Added, res.Errors))
	return res, nil
}

// backfill resumes the historical fetch from the stored backfill cursor.
func (e *Engine) backfill(ctx context.Context, source string, limit int, rep progress.Reporter) (*Result, error) {
	res := &Result{}

	state, err := e.store.GetSyncState(source)
	if err != nil {
		return res, fmt.Errorf("get sync state: %w", err)
	}
	if state == nil || state.BackfillCursor == "" {
		done(rep, res, "backfill complete: no older messages to fetch")
		return res, nil
	}

	ids, backfillCursor, err := e.collectIDs(ctx, state.BackfillCursor, limit, state.TotalItems+int64(limit), rep)
	if err != nil {
		return res, err
	}

	if len(ids) > 0 {
		added, errs, err := e.fetchAndStore(ctx, source, ids, rep)
		res.Added = added
		res.Errors = errs
		if err != nil {
			return res, err
		}
	}

	total, err := e.store.CountItems(source)
	if err != nil {
		return res, fmt.Errorf("count items: %w", err)
	}

	// Backfill never touches the change cursor; only its own position,
	// the cached count, and the sync timestamp advance.
	state.BackfillCursor = backfillCursor
	state.TotalItems = total
	if err := e.store.PutSyncState(state); err != nil {
		return res, err
	}

	done(rep, res, fmt.Sprintf("backfill: %d added, %d errors", res.Added, res.Errors))
	return res, nil
}

// collectIDs pages through the remote listing starting at startToken until
// limit IDs are collected (0 means all) or the remote is exhausted. It
// returns the collected IDs and the page token where collection stopped;
// the next backfill cursor, empty when the remote ran out.
func (e *Engine) collectIDs(ctx context.Context, startToken string, limit int, approxTotal int64, rep progress.Reporter) ([]string, string, error) {
	var ids []string
	pageToken := startToken

	for {
		if err := ctx.Err(); err != nil {
			return ids, "", err
		}

		max := 0
		if limit > 0 {
			max = limit - len(ids)
		}

		page, err := e.client.ListMessageIDs(ctx, pageToken, max)
		if err != nil {
			return nil, "", fmt.Errorf("list messages: %w", err)
		}
		ids = append(ids, page.IDs...)

		rep.Report(progress.Event{
			Phase:   progress.PhaseListing,
			Current: int64(len(ids)),
			Total:   approxTotal,
			Message: "listing messages",
		})

		pageToken = page.NextPageToken
		if pageToken == "" {
			return ids, "", nil
		}
		if limit > 0 && len(ids) >= limit {
			return ids[:limit], pageToken, nil
		}
	}
}
