// 程序入口：读取配置、初始化依赖并启动 HTTP 服务；路由注册在 internal/api
package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"geofence-editor/internal/api"
	"geofence-editor/internal/convert"
	"geofence-editor/internal/dbcache"
	"geofence-editor/internal/logger"
	"geofence-editor/internal/metrics"
	"geofence-editor/internal/middleware"
	"geofence-editor/internal/migrate"
	"geofence-editor/internal/shapes"
	"geofence-editor/internal/store"
	"geofence-editor/internal/utils"

	"github.com/joho/godotenv"
	"github.com/paulmach/orb/geojson"
)

func main() {
	_ = godotenv.Load(".env")
	_ = godotenv.Load(filepath.Join("data", "env", ".env"))
	l := logger.Setup()
	l.Debug("log_init_ok")
	apiBase := os.Getenv("API_BASE")
	if apiBase == "" {
		apiBase = "/api"
	}
	l.Debug("config_api_base", "base", apiBase)

	var st *store.Store
	if os.Getenv("PERSIST_ENABLED") == "true" {
		db, err := utils.OpenPostgresFromEnv()
		if err != nil {
			l.Error("db_open_error", "err", err)
			os.Exit(1)
		}
		defer db.Close()
		if err := db.Ping(); err != nil {
			l.Error("db_ping_error", "err", err)
			os.Exit(1)
		}
		l.Info("db_ping_ok")
		if err := migrate.EnsureSchema(db); err != nil {
			l.Error("schema_error", "err", err)
			os.Exit(1)
		}
		st = store.AttachDB(db)
	} else {
		l.Info("persist_disabled")
	}

	ttl := utils.EnvInt("CACHE_TTL_SEC", 3600)
	cache := &dbcache.Layered{Front: dbcache.NewLRU(utils.EnvInt("CACHE_CAPACITY", 4096), ttl)}
	if rc := utils.OpenRedisFromEnv(); rc == nil {
		l.Info("redis_disabled")
	} else if err := rc.Ping(context.Background()).Err(); err != nil {
		l.Error("redis_ping_error", "err", err)
	} else {
		l.Info("redis_ping_ok")
		cache.Back = dbcache.NewRedis(rc, ttl)
		defer rc.Close()
	}

	cv := convert.NewFromEnv()
	if cv == nil {
		l.Info("convert_disabled")
	}

	sh := shapes.New()
	sh.Subscribe(func(fc *geojson.FeatureCollection) {
		l.Debug("shape_projection", "features", len(fc.Features))
	})
	if st != nil {
		if src := os.Getenv("RESTORE_SOURCE"); src != "" {
			ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			fc, err := st.LoadCollection(ctx, src)
			cancel()
			if err != nil {
				l.Error("restore_error", "source", src, "err", err)
			} else {
				n := sh.SetFromCollection(fc, src)
				metrics.ImportedFeaturesTotal.WithLabelValues("restore").Add(float64(n))
				l.Info("restore_done", "source", src, "features", n)
			}
		}
	}

	apiMux := api.BuildRoutes(sh, st, cache, cv)
	mux := http.NewServeMux()
	mux.Handle(apiBase+"/", http.StripPrefix(apiBase, apiMux))
	mux.Handle(apiBase+"/metrics", metrics.Handler())

	addr := os.Getenv("ADDR")
	if addr == "" {
		addr = ":8080"
	}
	handler := logger.AccessMiddleware(l)(mux)
	handler = middleware.Wrap(handler)
	s := &http.Server{Addr: addr, Handler: handler, ReadHeaderTimeout: 10 * time.Second}

	go func() {
		sig := make(chan os.Signal, 1)
		signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
		<-sig
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = s.Shutdown(ctx)
	}()
	l.Info("listening", "addr", addr)
	if err := s.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		l.Error("listen_error", "err", err)
		os.Exit(1)
	}
	l.Info("shutdown_done")
}
