package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"PPCollab/data/database/mgo/mongoutil"
	"PPCollab/global/config"
	"PPCollab/middleware"
	"PPCollab/service/auth"
	"PPCollab/service/authz"
	"PPCollab/service/chat"
	"PPCollab/service/chat/handlers"
	"PPCollab/service/kafka"
	"PPCollab/service/metrics"
	"PPCollab/service/natsx"
	"PPCollab/service/ratelimit"
	"PPCollab/service/storage/redis"
	"PPCollab/tools/security"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	goredis "github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

// app 一个网关实例的全部组件；close 按创建的逆序释放
type app struct {
	mu  sync.Mutex
	cfg *config.AppConfig
	log *zap.Logger

	gw       *chat.Gateway
	limiter  *ratelimit.Limiter
	metrics  *metrics.Collectors
	backbone chat.Backbone
	lookup   chat.PresenceLookup
	consumer *kafka.Consumer
	health   *health.Server
	mids     *middleware.MiddlewareManager

	closers []func()
}

func newApp(ctx context.Context, cfg *config.AppConfig, log *zap.Logger) (a *app, err error) {
	a = &app{cfg: cfg, log: log, metrics: metrics.New(), health: health.NewServer(), mids: middleware.NewManager()}
	defer func() {
		if err != nil {
			a.close()
		}
	}()

	dir, err := a.openDirectory(ctx)
	if err != nil {
		return nil, err
	}

	a.limiter, err = ratelimit.New(cfg.RateLimit, ratelimit.WithLogger(log.Named("ratelimit")))
	if err != nil {
		return nil, err
	}

	jwtOpts := security.DefaultOptions([]byte(cfg.Auth.JWTSecret))
	if cfg.Auth.Alg != "" {
		jwtOpts.Alg = cfg.Auth.Alg
	}
	jwtOpts.Leeway = cfg.Auth.Leeway

	var mirror chat.PresenceMirror
	rdb, err := a.openRedis(ctx)
	if err != nil {
		return nil, err
	}
	if rdb != nil && cfg.Presence.Enabled {
		store := redis.NewPresenceStore(rdb, redis.PresenceConfig{
			InstanceID: cfg.Node.InstanceID,
			Prefix:     cfg.Presence.Prefix,
			TTL:        cfg.Presence.TTL,
		})
		mirror, a.lookup = store, store
	}

	a.gw = chat.NewGateway(chat.Config{
		InstanceID:       cfg.Node.InstanceID,
		HandshakeTimeout: cfg.Auth.HandshakeTimeout,
		PingInterval:     cfg.Gateway.PingInterval,
		PongWait:         cfg.Gateway.PongWait,
		WriteWait:        cfg.Gateway.WriteWait,
		SendQueueSize:    cfg.Gateway.SendQueueSize,
		MaxMessageSize:   cfg.Gateway.MaxMessageSize,
		MaxPerUser:       cfg.Gateway.MaxPerUser,
		AllowedOrigins:   cfg.Gateway.AllowedOrigins,
	}, chat.Deps{
		Authenticator: auth.NewJWTAuthenticator(jwtOpts, dir, log.Named("auth")),
		Authorizer:    authz.NewGatekeeper(dir, log.Named("authz")),
		Limiter:       a.limiter,
		Router:        handlers.Register(chat.NewRouter()),
		Metrics:       a.metrics,
		Mirror:        mirror,
		Log:           log.Named("gateway"),
	})

	a.backbone, err = a.openBackbone(rdb)
	if err != nil {
		return nil, err
	}

	if cfg.Kafka.Enabled {
		router := kafka.NewRouter()
		router.RegisterDefaultHandlers(cfg.Kafka.Topics, kafka.IngestHandler(a.gw, log.Named("ingest")))
		a.consumer, err = kafka.NewConsumer(cfg.Kafka.Config, router, log.Named("kafka"))
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, func() { _ = a.consumer.Close() })
	}
	return a, nil
}

func (a *app) openDirectory(ctx context.Context) (authz.Directory, error) {
	c := a.cfg.Directory
	switch c.Driver {
	case config.DirectoryMongo:
		mc := c.Mongo
		cli, err := mongoutil.NewMongoDB(ctx, &mc)
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, func() {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = cli.Close(ctx)
		})
		return authz.NewMongoDirectory(cli), nil
	case config.DirectoryPostgres:
		pool, err := authz.OpenPgPool(ctx, c.Postgres.DSN)
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, pool.Close)
		return authz.NewPgDirectory(pool), nil
	default:
		return authz.NewStaticDirectory().Load(c.Static), nil
	}
}

// openRedis backbone 或在线镜像用到 Redis 时才连接
func (a *app) openRedis(ctx context.Context) (*goredis.Client, error) {
	if a.cfg.Backbone.Driver != config.BackboneRedis && !a.cfg.Presence.Enabled {
		return nil, nil
	}
	rdb, err := redis.NewClient(ctx, a.cfg.Backbone.Redis)
	if err != nil {
		return nil, err
	}
	a.closers = append(a.closers, func() { _ = rdb.Close() })
	return rdb, nil
}

func (a *app) openBackbone(rdb *goredis.Client) (chat.Backbone, error) {
	c := a.cfg.Backbone
	switch c.Driver {
	case config.BackboneRedis:
		return redis.NewRoomBackbone(rdb, c.Prefix, a.log.Named("backbone")), nil
	case config.BackboneNats:
		return natsx.NewRoomBackbone(c.Nats, c.Prefix, a.log.Named("backbone"))
	case config.BackboneMemory:
		return chat.NewMemoryBus().Attach(), nil
	default:
		return nil, nil
	}
}

// onRemoteConfig Nacos 推送；目前只热更新 typing 节流的冷却时间
func (a *app) onRemoteConfig(data string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	next, err := config.Reload(a.cfg, data)
	if err != nil {
		a.log.Warn("remote config rejected", zap.Error(err))
		return
	}
	if next.RateLimit.Cooldown != a.limiter.Cooldown() {
		a.limiter.SetCooldown(next.RateLimit.Cooldown)
		a.log.Info("typing cooldown updated", zap.Duration("cooldown", next.RateLimit.Cooldown))
	}
	a.cfg = next
}

func (a *app) httpHandler() http.Handler {
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery(), middleware.AccessLog(a.log.Named("http"), "/metrics", "/health"), a.mids.Use())

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":   "ok",
			"instance": a.gw.Config().InstanceID,
			"multi":    a.gw.Fanout().Multi(),
		})
	})
	r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(a.metrics.Registry, promhttp.HandlerOpts{})))
	a.gw.RegisterRoutes(r, chat.RouteConf{InternalKey: a.cfg.Internal.APIKey, Lookup: a.lookup})
	return r
}

func (a *app) run(ctx context.Context) error {
	a.gw.StartFanout(ctx, a.backbone)

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", a.cfg.Node.HTTPPort),
		Handler:           a.httpHandler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return a.gw.Run(ctx) })
	g.Go(func() error { return a.limiter.Run(ctx) })
	g.Go(func() error {
		a.log.Info("http listening", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		a.health.Shutdown()
		a.mids.Add(middleware.Draining())
		// 先断开 ws，再停 HTTP；hijack 过的连接不受 srv.Shutdown 管理
		a.gw.Shutdown()
		sctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(sctx)
	})
	if a.cfg.Node.GRPCPort > 0 {
		g.Go(func() error { return a.serveHealth(ctx) })
	}
	if a.consumer != nil {
		g.Go(func() error { return a.consumer.Run(ctx) })
	}
	return g.Wait()
}

// serveHealth gRPC 健康检查，供负载均衡探活
func (a *app) serveHealth(ctx context.Context) error {
	lis, err := net.Listen("tcp", fmt.Sprintf(":%d", a.cfg.Node.GRPCPort))
	if err != nil {
		return err
	}
	gs := grpc.NewServer()
	healthpb.RegisterHealthServer(gs, a.health)
	a.health.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)
	a.health.SetServingStatus("collab.Gateway", healthpb.HealthCheckResponse_SERVING)

	go func() {
		<-ctx.Done()
		gs.GracefulStop()
	}()
	a.log.Info("grpc health listening", zap.String("addr", lis.Addr().String()))
	if err := gs.Serve(lis); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
		return err
	}
	return nil
}

func (a *app) close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}
