package export

import (
	"context"

	"duit/internal/core"
)

// RowAppender is the outbound port for export sinks. Append returns a
// sink-specific reference for the written row (a cell range for sheets).
type RowAppender interface {
	Append(ctx context.Context, tx core.Transaction) (rowRef string, err error)
}
