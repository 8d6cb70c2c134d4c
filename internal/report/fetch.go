package report

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"

	"geoattend/internal/attendance"
)

// Source is where report inputs come from.
type Source interface {
	ListRecords(ctx context.Context, f attendance.RecordFilter) ([]attendance.Record, error)
	ListLeaves(ctx context.Context, f attendance.LeaveFilter) ([]attendance.LeaveApplication, error)
}

// Fetch loads the records and approved leaves of r concurrently.
func Fetch(ctx context.Context, src Source, branch string, r Range) ([]attendance.Record, []attendance.LeaveApplication, error) {
	var (
		records []attendance.Record
		leaves  []attendance.LeaveApplication
	)
	from, to := r.From.Format(dateLayout), r.To.Format(dateLayout)

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		records, err = src.ListRecords(ctx, attendance.RecordFilter{Branch: branch, From: from, To: to})
		if err != nil {
			return fmt.Errorf("list records: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		var err error
		leaves, err = src.ListLeaves(ctx, attendance.LeaveFilter{Branch: branch, Status: attendance.LeaveApproved, From: from, To: to})
		if err != nil {
			return fmt.Errorf("list leaves: %w", err)
		}
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, nil, err
	}
	return records, leaves, nil
}
