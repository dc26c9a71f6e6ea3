package migrate

import (
	"database/sql"

	"geofence-editor/internal/logger"
)

// EnsureSchema：首次运行创建要素持久化表
// 约束：使用 IF NOT EXISTS，可重复执行；每个来源的一次保存整体替换该来源下的全部行
func EnsureSchema(db *sql.DB) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS shape_features (
            source TEXT NOT NULL,
            kind TEXT NOT NULL,
            feature_id TEXT NOT NULL,
            seq INT NOT NULL DEFAULT 0,
            feature JSONB NOT NULL,
            updated_at TIMESTAMPTZ NOT NULL DEFAULT now(),
            PRIMARY KEY (source, kind, feature_id)
        )`,
		`CREATE INDEX IF NOT EXISTS idx_shape_features_source ON shape_features(source, seq)`,
	}
	for i, s := range stmts {
		logger.L().Debug("schema_exec", "idx", i)
		if _, err := db.Exec(s); err != nil {
			return err
		}
	}
	logger.L().Debug("schema_done")
	return nil
}
