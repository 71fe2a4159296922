package bootstrap

import (
	"context"
	"net"
	"net/http"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"backoffice/internal/pkg/logger"
	"backoffice/internal/pkg/nacos"
	"backoffice/internal/pkg/tracing"

	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"
)

var nacosClient *nacos.Client

// Init 加载配置、初始化日志，并在启用时叠加 Nacos 配置中心的内容。
func Init(path string) (*Config, error) {
	cfg, err := LoadFile(path)
	if err != nil {
		return nil, err
	}
	logger.Init(cfg.App.Name, cfg.App.LogLevel)

	nc := cfg.Infra.Nacos
	if nc.ConfigDataID != "" || nc.Register {
		client, err := nacos.NewClient(nc.ServerAddrs, nc.Namespace, nc.Group)
		if err != nil {
			return nil, err
		}
		nacosClient = client
	}

	if nc.ConfigDataID != "" {
		content, err := nacosClient.GetConfig(nc.ConfigDataID)
		if err != nil {
			return nil, err
		}
		if content != "" {
			if cfg, err = overlay(cfg, content); err != nil {
				return nil, err
			}
		}
		// 配置推送只替换快照，校验失败时保留旧配置
		err = nacosClient.ListenConfig(nc.ConfigDataID, func(content string) {
			next, err := overlay(GetCurrentConfig(), content)
			if err != nil {
				logger.L().Error().Err(err).Msg("❌ rejected nacos config update")
				return
			}
			SetCurrentConfig(next)
		})
		if err != nil {
			return nil, err
		}
	}

	SetCurrentConfig(cfg)
	return cfg, nil
}

func overlay(base *Config, content string) (*Config, error) {
	next := *base
	if err := Parse([]byte(content), &next); err != nil {
		return nil, err
	}
	applyEnv(&next)
	if err := next.Validate(); err != nil {
		return nil, err
	}
	return &next, nil
}

type AppCtx struct {
	Mux    *http.ServeMux
	Config *Config
}

// AppInfo 包含了启动一个服务所需的所有特定信息。
type AppInfo struct {
	ServiceName string
	Port        int
	// RegisterHandlers 允许每个服务注册自己独特的 HTTP 路由
	RegisterHandlers func(appCtx AppCtx)
	// Run 是与 HTTP 服务并行运行的后台任务（消费者、清理器），ctx 在关停时取消
	Run func(ctx context.Context) error
	// OnShutdown 在 HTTP 服务关闭后按顺序执行清理
	OnShutdown func(ctx context.Context)
}

// StartService 封装了通用启动和优雅关停逻辑，阻塞直到收到退出信号。
func StartService(info AppInfo) error {
	cfg := GetCurrentConfig()

	tp, err := tracing.InitTracerProvider(info.ServiceName, cfg.Infra.Jaeger.Endpoint, cfg.Infra.Jaeger.SampleRatio)
	if err != nil {
		return errors.Wrap(err, "initialize tracer provider")
	}

	var ip string
	if nacosClient != nil && cfg.Infra.Nacos.Register && info.Port > 0 {
		if ip, err = outboundIP(); err != nil {
			return errors.Wrap(err, "get outbound IP address")
		}
		if err := nacosClient.RegisterServiceInstance(info.ServiceName, ip, info.Port); err != nil {
			return err
		}
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	g, gctx := errgroup.WithContext(ctx)

	var server *http.Server
	if info.Port > 0 {
		mux := http.NewServeMux()
		if info.RegisterHandlers != nil {
			info.RegisterHandlers(AppCtx{Mux: mux, Config: cfg})
		}
		server = &http.Server{Addr: ":" + strconv.Itoa(info.Port), Handler: mux, ReadHeaderTimeout: 5 * time.Second}
		g.Go(func() error {
			logger.L().Info().Str("service", info.ServiceName).Int("port", info.Port).Msg("✅ HTTP server listening")
			if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return errors.Wrapf(err, "listen on %s", server.Addr)
			}
			return nil
		})
	}
	if info.Run != nil {
		g.Go(func() error { return info.Run(gctx) })
	}

	// 任一任务失败或收到信号都进入关停流程
	<-gctx.Done()
	logger.L().Info().Str("service", info.ServiceName).Msg("🛑 Shutting down service")

	timeout := cfg.App.ShutdownTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	if ip != "" {
		if err := nacosClient.DeregisterServiceInstance(info.ServiceName, ip, info.Port); err != nil {
			logger.L().Error().Err(err).Msg("Error deregistering from Nacos")
		}
	}
	if server != nil {
		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.L().Error().Err(err).Msg("Error shutting down http server")
		}
	}
	runErr := g.Wait()
	if info.OnShutdown != nil {
		info.OnShutdown(shutdownCtx)
	}
	if nacosClient != nil {
		nacosClient.Close()
	}
	if err := tp.Shutdown(shutdownCtx); err != nil {
		logger.L().Error().Err(err).Msg("Error shutting down tracer provider")
	}

	logger.L().Info().Str("service", info.ServiceName).Msg("Service gracefully shut down.")
	if runErr != nil && !errors.Is(runErr, context.Canceled) {
		return runErr
	}
	return nil
}

func outboundIP() (string, error) {
	conn, err := net.Dial("udp", "8.8.8.8:80")
	if err != nil {
		return "", err
	}
	defer conn.Close()
	return conn.LocalAddr().(*net.UDPAddr).IP.String(), nil
}
