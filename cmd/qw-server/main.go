// SPDX-License-Identifier: GPL-2.0-or-later

package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-logr/logr"
	"github.com/go-logr/zapr"
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"qwire/config"
	"qwire/protocol"
	"qwire/server"
	"qwire/transport"
)

func main() {
	if err := rootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	var cfgPath string
	cmd := &cobra.Command{
		Use:          "qw-server",
		Short:        "QuakeWorld protocol server",
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return run(cmd.Context(), cfgPath)
		},
	}
	cmd.Flags().StringVarP(&cfgPath, "config", "c", "", "toml config file")
	return cmd
}

func newLogger() (logr.Logger, error) {
	z, err := zap.NewProduction()
	if err != nil {
		return logr.Logger{}, errors.Wrap(err, "logger")
	}
	return zapr.NewLogger(z), nil
}

func run(ctx context.Context, cfgPath string) error {
	log, err := newLogger()
	if err != nil {
		return err
	}
	cfg, err := config.LoadServer(cfgPath)
	if err != nil {
		return err
	}
	if cfg.TickHz <= 0 {
		cfg.TickHz = config.DefaultServer().TickHz
	}

	var metrics *server.Metrics
	if cfg.MetricsAddr != "" {
		reg := prometheus.NewRegistry()
		metrics = server.NewMetrics(reg)
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
		go func() {
			if err := http.ListenAndServe(cfg.MetricsAddr, mux); err != nil {
				log.Error(err, "metrics listener failed")
			}
		}()
		log.Info("metrics listening", "addr", cfg.MetricsAddr)
	}

	srv := server.New(server.Config{
		GameDir:    cfg.GameDir,
		LevelName:  cfg.Map,
		HostName:   cfg.HostName,
		MaxClients: cfg.MaxClients,
		Sounds:     cfg.Sounds,
		Models:     cfg.Models,
		MoveVars: protocol.MoveVars{
			Gravity:    800,
			StopSpeed:  100,
			MaxSpeed:   320,
			Friction:   4,
			EntGravity: 1,
		},
		FrameTime: 1 / float32(cfg.TickHz),
	}, log, metrics)

	conn, err := transport.Listen(cfg.Port)
	if err != nil {
		return err
	}
	defer conn.Close()
	log.Info("server listening", "addr", conn.LocalAddr(), "map", cfg.Map)

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	send := func(out []server.Packet) {
		for _, p := range out {
			if err := conn.Send(p.Addr, p.Data); err != nil {
				log.Error(err, "send failed", "addr", p.Addr)
			}
		}
	}

	frameDur := time.Second / time.Duration(cfg.TickHz)
	next := time.Now().Add(frameDur)
	for ctx.Err() == nil {
		wait := time.Until(next)
		if wait < 0 {
			wait = 0
		}
		pkt, addr, err := conn.Recv(wait)
		if err != nil {
			return err
		}
		if pkt != nil {
			out, err := srv.Receive(addr, pkt)
			if err != nil {
				log.Info("packet rejected", "addr", addr, "err", err)
			}
			send(out)
		}
		if !time.Now().Before(next) {
			out, err := srv.Frame()
			if err != nil {
				return err
			}
			send(out)
			next = next.Add(frameDur)
		}
	}
	log.Info("shutting down")
	return nil
}
