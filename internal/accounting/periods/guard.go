package periods

import (
	"context"
	"fmt"
	"time"
)

// Guard answers whether a posting date falls inside a closed period. It keeps
// no state and always reads through the caller's transaction, so a close is
// visible to postings later in the same transaction.
type Guard struct{}

// IsLocked reports whether date lies inside any close of chartID.
func (Guard) IsLocked(ctx context.Context, st Store, chartID int64, date time.Time) (bool, error) {
	locked, err := st.Locked(ctx, chartID, Day(date))
	if err != nil {
		return false, fmt.Errorf("periods: lock check: %w", err)
	}
	return locked, nil
}
