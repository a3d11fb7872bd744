// Command gatewayd runs the market-data gateway: it dials exchange
// WebSocket feeds on demand as downstream subscribers request symbols,
// normalises candles, and re-publishes them to
// downstream subscribers over its own WebSocket server, alongside a health
// and metrics surface (spec §6). Wiring follows the teacher's cmd/srv and
// cmd/client mains (env-driven config, a top-level log.Fatalf-style startup
// bail), generalised to zerolog and the spec's richer process lifecycle.
package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/yitech/candlegw/adapter"
	"github.com/yitech/candlegw/adapter/binance"
	"github.com/yitech/candlegw/adapter/bybit"
	"github.com/yitech/candlegw/adapter/gateio"
	"github.com/yitech/candlegw/adapter/hyperliquid"
	"github.com/yitech/candlegw/adapter/okx"
	"github.com/yitech/candlegw/breaker"
	"github.com/yitech/candlegw/config"
	"github.com/yitech/candlegw/dedup"
	"github.com/yitech/candlegw/httpapi"
	"github.com/yitech/candlegw/metrics"
	"github.com/yitech/candlegw/queue"
	"github.com/yitech/candlegw/restpool"
	"github.com/yitech/candlegw/session"
	"github.com/yitech/candlegw/sessionmgr"
	"github.com/yitech/candlegw/subscriber"
)

// exit codes per spec §6.5.
const (
	exitOK         = 0
	exitConfigErr  = 1
	exitListenErr  = 2
	secondSigGrace = 2 * time.Second
)

func main() {
	os.Exit(run())
}

func run() int {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, "gatewayd: config error:", err)
		return exitConfigErr
	}

	logger := newLogger(cfg.LogLevel)

	reg := buildRegistry()
	metricsReg := metrics.New()
	restFactory := buildRestPoolFactory(cfg)

	mgr := sessionmgr.New(reg, restFactory, metricsReg, logger, sessionmgr.Config{
		MaxSymbolPerWS:     cfg.MaxSymbolPerWS,
		MaxConnPerExchange: cfg.MaxConnPerExchange,
		SessionConfig: session.Config{
			InactivityTimeout: cfg.InactivityTimeout,
			PingInterval:      cfg.WSPingInterval,
			PingTimeout:       cfg.WSPingTimeout,
			RestTimeout:       cfg.RestTimeout,
			ReconnectPollBase: cfg.ReconnectDelay,
		},
		BreakerConfig: breaker.Config{
			FailureThreshold: cfg.BreakerFailureThresh,
			BaseBackoff:      cfg.BreakerRecoveryTime,
			HalfOpenCalls:    cfg.BreakerHalfOpenCalls,
		},
		QueueConfig: queue.Config{
			ClosedCapacity: cfg.ClosedQueueMaxSize,
			OpenCapacity:   cfg.OpenQueueMaxSize,
		},
		DedupConfig: dedup.Config{
			Window:     cfg.DedupWindow,
			MaxEntries: cfg.DedupMaxEntries,
		},
	})

	subSrv := subscriber.New(mgr, logger, subscriber.Config{
		BufferMax:      cfg.SubscriberBufferMax,
		OverflowPolicy: subscriber.OverflowPolicy(cfg.OverflowPolicy),
		PingInterval:   cfg.WSPingInterval,
		PongTimeout:    cfg.WSPingTimeout,
	})

	wsAddr := fmt.Sprintf("%s:%d", cfg.WSHost, cfg.WSPort)
	wsListener, err := net.Listen("tcp", wsAddr)
	if err != nil {
		logger.Error().Err(err).Str("addr", wsAddr).Msg("failed to bind downstream WebSocket port")
		return exitListenErr
	}
	wsServer := &http.Server{Handler: subSrv.Router()}

	var healthListener net.Listener
	var healthServer *http.Server
	if cfg.HealthCheckEnabled {
		healthAddr := fmt.Sprintf("%s:%d", cfg.WSHost, cfg.HealthCheckPort)
		healthListener, err = net.Listen("tcp", healthAddr)
		if err != nil {
			logger.Error().Err(err).Str("addr", healthAddr).Msg("failed to bind health/metrics port")
			return exitListenErr
		}
		healthServer = &http.Server{Handler: httpapi.New(mgr, metricsReg).Router()}
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go func() {
		logger.Info().Str("addr", wsAddr).Msg("downstream WebSocket server listening")
		if err := wsServer.Serve(wsListener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error().Err(err).Msg("downstream WebSocket server stopped")
		}
	}()
	if healthServer != nil {
		go func() {
			logger.Info().Str("addr", healthListener.Addr().String()).Msg("health/metrics server listening")
			if err := healthServer.Serve(healthListener); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error().Err(err).Msg("health/metrics server stopped")
			}
		}()
	}

	<-ctx.Done()
	logger.Info().Msg("shutdown signal received, draining")
	return drain(logger, cfg.DrainTimeout, subSrv, mgr, wsServer, healthServer)
}

// drain runs the shutdown in this order: drain the downstream subscriber
// server, shut down the WebSocket and health/metrics HTTP servers, then
// close the upstream sessions. Any second SIGINT/SIGTERM received while
// the drain is in flight forces an immediate return; otherwise drain
// gives up after timeout plus secondSigGrace.
func drain(logger zerolog.Logger, timeout time.Duration, subSrv *subscriber.Server, mgr *sessionmgr.Manager, wsServer, healthServer *http.Server) int {
	forceCtx, forceStop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer forceStop()

	done := make(chan struct{})
	go func() {
		defer close(done)

		drainCtx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()
		subSrv.Drain(drainCtx)

		shutdownCtx, cancel2 := context.WithTimeout(context.Background(), timeout)
		defer cancel2()
		_ = wsServer.Shutdown(shutdownCtx)
		if healthServer != nil {
			_ = healthServer.Shutdown(shutdownCtx)
		}

		mgr.Close(timeout)
	}()

	select {
	case <-done:
		logger.Info().Msg("drain complete")
		return exitOK
	case <-forceCtx.Done():
		logger.Warn().Msg("second shutdown signal received, forcing exit")
		return exitOK
	case <-time.After(timeout + secondSigGrace):
		logger.Warn().Msg("drain timed out, forcing exit")
		return exitOK
	}
}

func newLogger(level string) zerolog.Logger {
	lvl, err := zerolog.ParseLevel(strings.ToLower(level))
	if err != nil {
		lvl = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(lvl)
	logger := log.Logger.With().Str("service", "gatewayd").Logger()
	return logger
}

func buildRegistry() adapter.Registry {
	return adapter.Registry{
		"binance":     binance.New(),
		"okx":         okx.New(),
		"bybit":       bybit.New(),
		"gateio":      gateio.New(),
		"hyperliquid": hyperliquid.New(),
	}
}

func buildRestPoolFactory(cfg config.Config) sessionmgr.RestPoolFactory {
	return func(exchange string, connector adapter.Connector) *restpool.Pool {
		return restpool.New(exchange, restpool.Config{
			Connections: cfg.RestPoolConnections,
			MaxSize:     cfg.RestPoolMaxSize,
			Timeout:     cfg.RestTimeout,
		}, connector.RestBackfill)
	}
}
