// 包 store：要素集合的 PostgreSQL 持久化，按来源整体保存与恢复
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"geofence-editor/internal/logger"
	"geofence-editor/internal/shapes"

	_ "github.com/lib/pq"
	"github.com/paulmach/orb/geojson"
)

var ErrNoSource = errors.New("store: empty source")

// Store：数据库访问入口，持有连接池
type Store struct {
	db *sql.DB
}

func AttachDB(db *sql.DB) *Store { return &Store{db: db} }

// row：一条待写入的要素
type row struct {
	kind string
	id   string
	seq  int
	body []byte
}

// rows：把集合展开为行；缺少几何、不支持的类型或没有 id 的要素跳过
func rows(fc *geojson.FeatureCollection) ([]row, error) {
	if fc == nil {
		return nil, nil
	}
	out := make([]row, 0, len(fc.Features))
	for i, f := range fc.Features {
		if f == nil || f.Geometry == nil {
			continue
		}
		k, ok := shapes.KindOf(f.Geometry)
		if !ok {
			continue
		}
		id := shapes.Key(f.ID)
		if id == "" {
			continue
		}
		b, err := json.Marshal(f)
		if err != nil {
			return nil, fmt.Errorf("store: encode %s: %w", id, err)
		}
		out = append(out, row{kind: k.String(), id: id, seq: i, body: b})
	}
	return out, nil
}

// SaveCollection：事务内替换 source 下的全部要素，返回写入行数
func (s *Store) SaveCollection(ctx context.Context, source string, fc *geojson.FeatureCollection) (int, error) {
	if source == "" {
		return 0, ErrNoSource
	}
	rs, err := rows(fc)
	if err != nil {
		return 0, err
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer tx.Rollback()
	if _, err := tx.ExecContext(ctx, "DELETE FROM shape_features WHERE source=$1", source); err != nil {
		return 0, err
	}
	stmt, err := tx.PrepareContext(ctx, `INSERT INTO shape_features(source, kind, feature_id, seq, feature, updated_at)
        VALUES($1, $2, $3, $4, $5, now())
        ON CONFLICT (source, kind, feature_id) DO UPDATE SET seq=EXCLUDED.seq, feature=EXCLUDED.feature, updated_at=now()`)
	if err != nil {
		return 0, err
	}
	defer stmt.Close()
	for _, r := range rs {
		if _, err := stmt.ExecContext(ctx, source, r.kind, r.id, r.seq, string(r.body)); err != nil {
			return 0, fmt.Errorf("store: insert %s/%s: %w", r.kind, r.id, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return 0, err
	}
	logger.L().Info("store_saved", "source", source, "rows", len(rs))
	return len(rs), nil
}

// LoadCollection：按保存顺序读取 source 下的要素；无数据时返回空集合
// 约束：单行解码失败时跳过并记录日志
func (s *Store) LoadCollection(ctx context.Context, source string) (*geojson.FeatureCollection, error) {
	if source == "" {
		return nil, ErrNoSource
	}
	q, err := s.db.QueryContext(ctx, "SELECT feature_id, feature FROM shape_features WHERE source=$1 ORDER BY seq, kind, feature_id", source)
	if err != nil {
		return nil, err
	}
	defer q.Close()
	fc := geojson.NewFeatureCollection()
	for q.Next() {
		var id string
		var body []byte
		if err := q.Scan(&id, &body); err != nil {
			return nil, err
		}
		f, err := geojson.UnmarshalFeature(body)
		if err != nil {
			logger.L().Warn("store_decode_skip", "source", source, "id", id, "err", err)
			continue
		}
		fc.Append(f)
	}
	if err := q.Err(); err != nil {
		return nil, err
	}
	logger.L().Debug("store_loaded", "source", source, "features", len(fc.Features))
	return fc, nil
}

// Sources：已保存的来源列表
func (s *Store) Sources(ctx context.Context) ([]string, error) {
	q, err := s.db.QueryContext(ctx, "SELECT DISTINCT source FROM shape_features ORDER BY source")
	if err != nil {
		return nil, err
	}
	defer q.Close()
	var out []string
	for q.Next() {
		var src string
		if err := q.Scan(&src); err != nil {
			return nil, err
		}
		out = append(out, src)
	}
	return out, q.Err()
}
