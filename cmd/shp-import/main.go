package main

import (
	"context"
	"encoding/json"
	"os"
	"time"

	"geofence-editor/internal/logger"
	"geofence-editor/internal/migrate"
	"geofence-editor/internal/shapefile"
	"geofence-editor/internal/shapes"
	"geofence-editor/internal/store"
	"geofence-editor/internal/utils"

	"github.com/joho/godotenv"
)

// 离线导入：读取 Shapefile，经形状存储按来源替换后输出 GeoJSON 或写库
// 背景：大批量围栏较适合离线预处理，再由服务端 RESTORE_SOURCE 或 /restore 载入。
// 约束：SHP_PATH 必填；SHP_SOURCE 缺省为 __SHP；OUT_PATH 为空时写标准输出；PERSIST_ENABLED=true 时同时写入 PostgreSQL。
func main() {
	_ = godotenv.Load(".env")
	l := logger.Setup()
	path := os.Getenv("SHP_PATH")
	if path == "" {
		l.Error("shp_path_missing")
		os.Exit(1)
	}
	source := os.Getenv("SHP_SOURCE")
	if source == "" {
		source = "__SHP"
	}
	fc, err := shapefile.Load(path)
	if err != nil {
		l.Error("shp_load_error", "err", err)
		os.Exit(1)
	}
	if os.Getenv("SPLIT_MULTI") == "true" {
		fc = shapes.SplitMultiPolygons(fc)
	}
	if key := os.Getenv("COMBINE_BY"); key != "" {
		fc = shapes.CombineByProperty(fc, key)
	}
	sh := shapes.New()
	n := sh.SetFromCollection(fc, source)
	out := sh.GetSource(source)
	l.Info("shp_import_ready", "source", source, "read", len(fc.Features), "kept", n)

	if os.Getenv("PERSIST_ENABLED") == "true" {
		db, err := utils.OpenPostgresFromEnv()
		if err != nil {
			l.Error("db_open_error", "err", err)
			os.Exit(1)
		}
		defer db.Close()
		if err := migrate.EnsureSchema(db); err != nil {
			l.Error("schema_error", "err", err)
			os.Exit(1)
		}
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
		defer cancel()
		saved, err := store.AttachDB(db).SaveCollection(ctx, source, out)
		if err != nil {
			l.Error("shp_persist_error", "err", err)
			os.Exit(1)
		}
		l.Info("shp_persist_done", "source", source, "rows", saved)
	}

	w := os.Stdout
	if p := os.Getenv("OUT_PATH"); p != "" {
		f, err := os.Create(p)
		if err != nil {
			l.Error("out_create_error", "err", err)
			os.Exit(1)
		}
		defer f.Close()
		w = f
	}
	if err := json.NewEncoder(w).Encode(out); err != nil {
		l.Error("out_write_error", "err", err)
		os.Exit(1)
	}
}
