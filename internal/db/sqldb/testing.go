package sqldb

import (
	"context"
	"fmt"
	"sync/atomic"

	"gorm.io/gorm"
)

var memSeq atomic.Int64

// OpenMemory opens a private in-memory SQLite database. Used by repository tests and the embedded SDK.
func OpenMemory(ctx context.Context) (*gorm.DB, error) {
	dsn := fmt.Sprintf("file:docreview_mem_%d?mode=memory&cache=shared&_foreign_keys=1", memSeq.Add(1))
	return Open(ctx, Config{Driver: DriverSQLite, DSN: dsn}, nil)
}
