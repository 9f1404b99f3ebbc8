package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"mini-rpc-server/config"
	"mini-rpc-server/metrics"
	"mini-rpc-server/middleware"
	"mini-rpc-server/registry"
	"mini-rpc-server/rpccontext"
	"mini-rpc-server/server"
)

var version = "dev"

type EchoArgs struct {
	Msg string
}

type EchoReply struct {
	Msg  string
	From string
}

func main() {
	os.Exit(realMain())
}

// realMain returns the process exit code.
func realMain() int {
	showVersion := flag.Bool("version", false, "print version and exit")
	configPath := flag.String("config", "", "path to config.yaml (optional)")
	flag.Parse()
	if *showVersion {
		fmt.Printf("mini-rpc-server version=%s\n", version)
		return 0
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "mini-rpc-server: %v\n", err)
		return 1
	}
	logger, err := newLogger(cfg.Log)
	if err != nil {
		fmt.Fprintf(os.Stderr, "mini-rpc-server: build logger: %v\n", err)
		return 1
	}
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	if err := run(ctx, cfg, logger); err != nil {
		logger.Error("mini-rpc-server failed", zap.Error(err))
		return 1
	}
	logger.Info("mini-rpc-server stopped")
	return 0
}

func newLogger(cfg config.LogConfig) (*zap.Logger, error) {
	zcfg := zap.NewProductionConfig()
	if cfg.Development {
		zcfg = zap.NewDevelopmentConfig()
	}
	level, err := zap.ParseAtomicLevel(cfg.Level)
	if err != nil {
		return nil, err
	}
	zcfg.Level = level
	return zcfg.Build()
}

func run(ctx context.Context, cfg config.Config, logger *zap.Logger) error {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(reg)

	opts := []server.Option{
		server.WithLogger(logger),
		server.WithMetrics(m),
		server.WithWorkers(cfg.Workers),
		server.WithQueueSize(cfg.QueueSize),
		server.WithConnQueueSize(cfg.ConnQueueSize),
	}
	if len(cfg.Etcd.Endpoints) > 0 {
		etcdReg, err := registry.NewEtcdRegistry(cfg.Etcd.Endpoints, logger)
		if err != nil {
			return fmt.Errorf("connect etcd: %w", err)
		}
		defer etcdReg.Close()
		opts = append(opts, server.WithRegistry(etcdReg, cfg.AdvertiseAddr, cfg.Etcd.TTL))
	}

	svr := server.NewServer(opts...)
	svr.Use(middleware.MetricsMiddleware(m))
	svr.Use(middleware.LoggingMiddleware(logger))
	svr.Use(middleware.AuthMiddleware(cfg.AuthToken))
	if cfg.RateLimit.Enabled {
		if cfg.RateLimit.PerCaller {
			svr.Use(middleware.KeyedRateLimitMiddleware(cfg.RateLimit.RPS, cfg.RateLimit.Burst, 10*time.Minute))
		} else {
			svr.Use(middleware.RateLimitMiddleware(cfg.RateLimit.RPS, cfg.RateLimit.Burst))
		}
	}
	if cfg.RequestTimeout > 0 {
		svr.Use(middleware.TimeOutMiddleware(cfg.RequestTimeout))
	}
	if err := registerEcho(svr); err != nil {
		return err
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return svr.Serve("tcp", cfg.ListenAddr)
	})

	var metricsSrv *http.Server
	if cfg.Metrics.Addr != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", m.Handler())
		metricsSrv = &http.Server{Addr: cfg.Metrics.Addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
		g.Go(func() error {
			logger.Info("metrics listening", zap.String("addr", cfg.Metrics.Addr))
			if err := metricsSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		})
	}

	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down")
		err := svr.Shutdown(cfg.ShutdownTimeout)
		if metricsSrv != nil {
			sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			metricsSrv.Shutdown(sctx)
		}
		return err
	})
	return g.Wait()
}

// registerEcho exposes a demo service. Callers that send a client name can be
// pushed an Echo.Notice afterwards.
func registerEcho(svr *server.Server) error {
	return server.RegisterFunc(svr, "Echo", "Echo", func(ctx context.Context, args *EchoArgs) (*EchoReply, error) {
		reply := &EchoReply{Msg: args.Msg}
		if cc, ok := rpccontext.FromContext(ctx); ok && cc.RemoteAddr() != nil {
			reply.From = cc.RemoteAddr().String()
			cc.SetResponseKV("server", version)
		}
		return reply, nil
	})
}
