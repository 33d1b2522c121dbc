package service

import (
	"context"
	"fmt"
	"net"
	"os"
	"os/signal"
	"runtime"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/valyala/fasthttp"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/saiset-co/sai-request-cache/client"
	"github.com/saiset-co/sai-request-cache/config"
	"github.com/saiset-co/sai-request-cache/health"
	"github.com/saiset-co/sai-request-cache/logger"
	"github.com/saiset-co/sai-request-cache/metrics"
	"github.com/saiset-co/sai-request-cache/types"
)

type State int32

const (
	StateStopped State = iota
	StateStarting
	StateRunning
	StateStopping
)

const (
	metricsPath = "/metrics"
	healthPath  = "/health"
)

// Service owns the components shared by every request cache of an
// application.
type Service struct {
	ctx             context.Context
	cancel          context.CancelFunc
	configPath      string
	done            chan struct{}
	wg              sync.WaitGroup
	state           atomic.Value
	shutdownTimeout time.Duration

	config        *config.ConfigurationManager
	logger        *logger.Manager
	metrics       types.MetricsManager
	health        *health.Manager
	client        *client.HTTPClient
	metricsServer *fasthttp.Server
	metricsAddr   atomic.Value
}

func NewService(ctx context.Context, configPath string) (*Service, error) {
	if configPath == "" {
		return nil, types.ErrConfigInvalidPath
	}

	_, err := os.Stat(configPath)
	if err != nil {
		return nil, types.WrapError(err, "file does not exist")
	}

	serviceCtx, cancel := context.WithCancel(ctx)

	service := &Service{
		ctx:             serviceCtx,
		cancel:          cancel,
		configPath:      configPath,
		done:            make(chan struct{}),
		shutdownTimeout: 30 * time.Second,
	}

	service.state.Store(StateStopped)
	service.metricsAddr.Store("")

	if err := service.registerComponents(); err != nil {
		cancel()
		return nil, types.WrapError(err, "failed to register components")
	}

	return service, nil
}

// Start runs the service until Stop is called, a shutdown signal arrives or
// the parent context is done.
func (s *Service) Start() error {
	if s.ctx.Err() != nil {
		return types.ErrServiceIsNotRunning
	}

	if !s.transitionState(StateStopped, StateStarting) {
		s.logger.Warn("Service is already running")
		return types.ErrServerAlreadyRunning
	}

	var runErr error
	func() {
		defer func() {
			if r := recover(); r != nil {
				buf := make([]byte, 4096)
				n := runtime.Stack(buf, false)
				runErr = fmt.Errorf("service panic: %v", r)
				s.logger.Error("Service run panic", zap.Stack(string(buf[:n])))
				s.setState(StateStopped)
			}
		}()

		runErr = s.run()
	}()

	return runErr
}

func (s *Service) run() error {
	_config := s.config.GetConfig()

	s.logger.Info("Starting service",
		zap.String("name", _config.Name),
		zap.String("version", _config.Version))

	if err := s.startComponents(); err != nil {
		s.setState(StateStopped)
		return types.WrapError(err, "failed to start components")
	}

	s.setState(StateRunning)
	s.setupSignalHandling()

	s.wg.Add(1)
	go s.contextMonitor()

	s.logger.Info("Service started successfully")

	<-s.done

	if err := s.stopComponents(); err != nil {
		s.logger.Error("Error during service shutdown", zap.Error(err))
	}

	s.wg.Wait()
	s.setState(StateStopped)

	s.logger.Info("Service stopped gracefully")
	_ = s.logger.Stop()

	return nil
}

func (s *Service) Stop() error {
	if !s.transitionState(StateRunning, StateStopping) {
		s.logger.Warn("Service is not running")
		return types.ErrServiceIsNotRunning
	}

	s.logger.Info("Stopping service...")
	s.cancel()

	return nil
}

func (s *Service) Done() <-chan struct{} {
	return s.done
}

func (s *Service) Cancel() {
	s.cancel()
}

func (s *Service) Context() context.Context {
	return s.ctx
}

func (s *Service) IsRunning() bool {
	return s.getState() == StateRunning
}

func (s *Service) Config() types.ConfigManager {
	return s.config
}

func (s *Service) Logger() types.Logger {
	return s.logger
}

func (s *Service) Metrics() types.MetricsManager {
	return s.metrics
}

func (s *Service) Health() types.HealthManager {
	return s.health
}

func (s *Service) Client() *client.HTTPClient {
	return s.client
}

// MetricsAddr is the bound address of the metrics listener, empty when it
// is not serving.
func (s *Service) MetricsAddr() string {
	return s.metricsAddr.Load().(string)
}

func (s *Service) getState() State {
	return s.state.Load().(State)
}

func (s *Service) setState(newState State) bool {
	currentState := s.getState()
	return s.state.CompareAndSwap(currentState, newState)
}

func (s *Service) transitionState(from, to State) bool {
	return s.state.CompareAndSwap(from, to)
}

func (s *Service) registerComponents() error {
	configManager, err := config.NewConfigurationManager(s.ctx, s.configPath)
	if err != nil {
		return types.WrapError(err, "failed to register config manager")
	}
	s.config = configManager

	_config := configManager.GetConfig()

	loggerManager, err := logger.NewManager(s.ctx, _config.Logger)
	if err != nil {
		return types.WrapError(err, "failed to register logger")
	}
	s.logger = loggerManager

	metricsManager, err := metrics.NewManager(loggerManager, _config.Metrics)
	if err != nil {
		return types.WrapError(err, "failed to register metrics manager")
	}
	s.metrics = metricsManager

	s.client = client.NewHTTPClient(s.ctx, loggerManager, metricsManager, _config.Name, _config.Client)

	s.health = health.NewManager(s.ctx, loggerManager, types.ServiceInfo{Name: _config.Name, Version: _config.Version})
	s.health.RegisterChecker("client", health.ClientChecker(s.client))

	return nil
}

func (s *Service) startComponents() error {
	_config := s.config.GetConfig()

	if err := s.logger.Start(); err != nil && !types.IsError(err, types.ErrServerAlreadyRunning) {
		return types.WrapError(err, "failed to start logger")
	}

	if err := s.metrics.Start(); err != nil && !types.IsError(err, types.ErrServerAlreadyRunning) {
		return types.WrapError(err, "failed to start metrics manager")
	}

	if err := s.health.Start(); err != nil && !types.IsError(err, types.ErrServerAlreadyRunning) {
		return types.WrapError(err, "failed to start health manager")
	}

	if _config.Metrics != nil && _config.Metrics.Enabled && _config.Metrics.Listen != "" {
		if err := s.startMetricsServer(_config.Metrics.Listen); err != nil {
			return types.WrapError(err, "failed to start metrics server")
		}
	}

	s.logger.Info("All components started successfully")
	return nil
}

func (s *Service) startMetricsServer(addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}

	metricsHandler := s.metrics.FastHTTPHandler()
	healthHandler := s.health.FastHTTPHandler()
	s.metricsServer = &fasthttp.Server{
		Name: s.config.GetConfig().Name,
		Handler: func(ctx *fasthttp.RequestCtx) {
			switch string(ctx.Path()) {
			case metricsPath:
				metricsHandler(ctx)
			case healthPath:
				healthHandler(ctx)
			default:
				ctx.SetStatusCode(fasthttp.StatusNotFound)
			}
		},
	}
	s.metricsAddr.Store(ln.Addr().String())

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		if err := s.metricsServer.Serve(ln); err != nil {
			s.logger.Error("Metrics server stopped", zap.Error(err))
		}
	}()

	s.logger.Info("Metrics server listening", zap.String("addr", ln.Addr().String()))
	return nil
}

func (s *Service) stopComponents() error {
	ctx, cancel := context.WithTimeout(context.Background(), s.shutdownTimeout)
	defer cancel()

	s.logger.Info("Stopping service components...")

	g, gCtx := errgroup.WithContext(ctx)

	g.Go(func() error {
		s.client.Close()
		return nil
	})

	if s.metricsServer != nil {
		g.Go(func() error {
			defer s.metricsAddr.Store("")
			return s.metricsServer.ShutdownWithContext(gCtx)
		})
	}

	g.Go(func() error {
		if err := s.health.Stop(); err != nil && !types.IsError(err, types.ErrServerNotRunning) {
			return err
		}
		return nil
	})

	g.Go(func() error {
		if err := s.metrics.Stop(); err != nil && !types.IsError(err, types.ErrServerNotRunning) {
			return err
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		select {
		case <-gCtx.Done():
			s.logger.Warn("Service stop timeout, some components may not have stopped gracefully")
		default:
		}
		return err
	}

	s.logger.Info("All components stopped successfully")
	return nil
}

func (s *Service) setupSignalHandling() {
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan,
		syscall.SIGINT,
		syscall.SIGTERM,
		syscall.SIGQUIT,
	)

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()

		select {
		case sig := <-sigChan:
			s.logger.Info("Received shutdown signal", zap.String("signal", sig.String()))
			if s.transitionState(StateRunning, StateStopping) {
				s.cancel()
			}

		case <-s.ctx.Done():
		}

		signal.Stop(sigChan)
	}()
}

func (s *Service) contextMonitor() {
	defer s.wg.Done()
	defer close(s.done)

	<-s.ctx.Done()

	switch err := s.ctx.Err(); {
	case types.IsError(err, context.Canceled):
		s.logger.Info("Service shutdown: context cancelled")
	case types.IsError(err, context.DeadlineExceeded):
		s.logger.Warn("Service shutdown: context deadline exceeded")
	default:
		s.logger.Info("Service shutdown: context done")
	}
}
