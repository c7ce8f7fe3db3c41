// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/Thermoquad/caddx/internal/config"
	"github.com/Thermoquad/caddx/internal/metrics"
	"github.com/Thermoquad/caddx/internal/transport"
	"github.com/Thermoquad/caddx/pkg/engine"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
)

// connectionOptions merges the connection flags with the saved preferences.
// Flags win; a port given on the command line is remembered.
func connectionOptions() transport.Options {
	prefs := store.Preferences()

	port := portName
	if port == "" {
		port = prefs.SerialPort
	} else {
		store.Set(engine.KeySerialPort, port)
	}

	baud := baudRate
	if baud == 0 {
		baud = prefs.SerialBaudRate
	} else {
		store.Set(engine.KeySerialBaudRate, baud)
	}
	if baud == 0 {
		baud = config.DefaultBaudRate
	}

	return transport.Options{
		Port:          port,
		BaudRate:      baud,
		URL:           wsURL,
		Username:      wsUsername,
		SkipSSLVerify: wsNoSSLVerify,
	}
}

// OpenConnection opens either a serial or WebSocket connection based on
// flags and preferences
func OpenConnection() (transport.Conn, string, error) {
	conn, info, err := transport.Open(connectionOptions())
	if err != nil {
		return nil, "", err
	}
	logger.Info("connected", zap.String("endpoint", info))
	return conn, info, nil
}

// newEngine builds a link engine on conn with the shared logger, the
// preferences store and, when --metrics-addr is set, Prometheus metrics
func newEngine(ctx context.Context, conn transport.Conn, opts ...engine.Option) (*engine.Engine, error) {
	base := []engine.Option{engine.WithLogger(logger)}

	if metricsAddr != "" {
		reg := prometheus.NewRegistry()
		rec, err := metrics.New(reg)
		if err != nil {
			return nil, err
		}
		base = append(base, engine.WithRecorder(rec))
		serveMetrics(ctx, reg)
	}

	return engine.New(conn, store, append(base, opts...)...), nil
}

// serveMetrics runs the metrics endpoint until ctx is done
func serveMetrics(ctx context.Context, reg *prometheus.Registry) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Handler(reg))
	srv := &http.Server{
		Addr:              metricsAddr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		logger.Info("serving metrics", zap.String("addr", metricsAddr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("metrics server failed", zap.Error(err))
		}
	}()
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()
}
