package main

import (
	"context"

	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"
	"go.uber.org/zap"
	"k8s.io/client-go/kubernetes"

	"github.com/isdmx/coderunner/config"
	"github.com/isdmx/coderunner/httpserver"
	"github.com/isdmx/coderunner/logger"
	"github.com/isdmx/coderunner/mcpserver"
	"github.com/isdmx/coderunner/sandbox"
)

// coreModule provides everything needed to execute a request
func coreModule(configPath string) fx.Option {
	return fx.Options(
		fx.Provide(
			// Config
			func() (*config.Config, error) {
				return config.Load(configPath)
			},

			// Logger with configuration
			logger.NewFromConfig,

			// Cluster access and the execution backend
			newClientset,
			sandbox.NewLifecycleClient,

			// Request pipeline
			sandbox.NewSpecBuilderFromConfig,
			fx.Annotate(sandbox.NewOrchestratorFromConfig, fx.As(new(sandbox.Runner))),
			sandbox.NewService,
		),

		fx.Invoke(registerNamespaceBootstrap),

		// Use the application logger for fx logs
		fx.WithLogger(func(log *zap.Logger) fxevent.Logger {
			return &fxevent.ZapLogger{Logger: log}
		}),
	)
}

// serveModule adds the long-running surfaces on top of coreModule
func serveModule() fx.Option {
	return fx.Options(
		fx.Provide(
			newMCPServer,
			newHTTPServer,
			sandbox.NewReaperFromConfig,
		),
		fx.Invoke(
			registerHTTPServer,
			registerMCPStdio,
			registerReaper,
		),
	)
}

// newClientset returns nil for backends that do not talk to a cluster
func newClientset(cfg *config.Config) (kubernetes.Interface, error) {
	if cfg.Sandbox.Backend != "kubernetes" {
		return nil, nil
	}
	return sandbox.NewClientset(cfg)
}

func newMCPServer(cfg *config.Config, log *zap.Logger, svc *sandbox.Service) (*mcpserver.MCPServer, error) {
	if cfg.Server.MCPTransport == "none" {
		return nil, nil
	}
	return mcpserver.New(cfg, log, svc)
}

func newHTTPServer(cfg *config.Config, log *zap.Logger, svc *sandbox.Service, mcp *mcpserver.MCPServer) *httpserver.Server {
	var opts []httpserver.Option
	if mcp != nil && cfg.Server.MCPTransport == "http" {
		opts = append(opts, httpserver.WithMCPHandler(mcp.HTTPHandler()))
	}
	return httpserver.New(cfg, log, svc, opts...)
}

func registerNamespaceBootstrap(lc fx.Lifecycle, cfg *config.Config, log *zap.Logger, clientset kubernetes.Interface) {
	if clientset == nil || !cfg.Cluster.CreateNamespace {
		return
	}
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			return sandbox.EnsureNamespace(ctx, log, clientset, cfg.Cluster.Namespace)
		},
	})
}

func registerHTTPServer(lc fx.Lifecycle, srv *httpserver.Server) {
	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			return srv.Start()
		},
		OnStop: srv.Shutdown,
	})
}

// registerMCPStdio serves MCP on stdio and stops the application when the
// client closes its end.
func registerMCPStdio(lc fx.Lifecycle, shutdowner fx.Shutdowner, cfg *config.Config, log *zap.Logger, mcp *mcpserver.MCPServer) {
	if mcp == nil || cfg.Server.MCPTransport != "stdio" {
		return
	}
	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			go func() {
				if err := mcp.ServeStdio(); err != nil {
					log.Error("MCP stdio server stopped", zap.Error(err))
				}
				if err := shutdowner.Shutdown(); err != nil {
					log.Error("failed to request shutdown", zap.Error(err))
				}
			}()
			return nil
		},
	})
}

func registerReaper(lc fx.Lifecycle, reaper *sandbox.Reaper) {
	if reaper == nil {
		return
	}
	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			reaper.Start()
			return nil
		},
		OnStop: func(context.Context) error {
			reaper.Stop()
			return nil
		},
	})
}
