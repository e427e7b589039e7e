package postgres

import (
	"context"
	"fmt"
	"log/slog"

	"gorm.io/gorm"
)

// supplementalIndexes are created after AutoMigrate. gorm tags cannot express
// partial or expression indexes.
var supplementalIndexes = []struct {
	name string
	sql  string
}{
	{"idx_events_timestamp", "CREATE INDEX IF NOT EXISTS idx_events_timestamp ON events(timestamp DESC);"},
	{"idx_logs_file_severity", "CREATE INDEX IF NOT EXISTS idx_logs_file_severity ON logs(file_id, severity);"},
	{"idx_logs_high_critical", "CREATE INDEX IF NOT EXISTS idx_logs_high_critical ON logs(file_id) WHERE severity IN ('High', 'Critical');"},
	{"idx_files_pending", "CREATE INDEX IF NOT EXISTS idx_files_pending ON files(created_at) WHERE status = 'pending';"},
}

// Migrate brings the schema up to date: AutoMigrate for the tables, then the
// supplemental indexes.
func Migrate(ctx context.Context, conn *gorm.DB) error {
	if err := AutoMigrate(conn); err != nil {
		return err
	}

	slog.Info("📊 Creating indexes...")
	for _, idx := range supplementalIndexes {
		if err := conn.WithContext(ctx).Exec(idx.sql).Error; err != nil {
			return fmt.Errorf("failed to create index %s: %w", idx.name, err)
		}
	}
	slog.Info("✅ All indexes created", "count", len(supplementalIndexes))
	return nil
}

// RollbackIndexes drops the supplemental indexes. Tables are left alone since
// they are shared with the dashboard.
func RollbackIndexes(ctx context.Context, conn *gorm.DB) error {
	if conn == nil {
		return ErrNoConnection
	}
	for i := len(supplementalIndexes) - 1; i >= 0; i-- {
		idx := supplementalIndexes[i]
		if err := conn.WithContext(ctx).Exec("DROP INDEX IF EXISTS " + idx.name + ";").Error; err != nil {
			slog.Warn("⚠️  Failed to drop index", "index", idx.name, "error", err)
		}
	}
	return nil
}
