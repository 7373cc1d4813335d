// SPDX-License-Identifier: GPL-2.0-or-later

package main

import (
	"context"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/go-logr/logr"
	"github.com/go-logr/zapr"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"qwire/client"
	"qwire/config"
	"qwire/info"
	"qwire/transport"
)

func main() {
	if err := rootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	var (
		cfgPath string
		server  string
	)
	cmd := &cobra.Command{
		Use:          "qw-client",
		Short:        "QuakeWorld protocol client",
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return run(cmd.Context(), cfgPath, server)
		},
	}
	cmd.Flags().StringVarP(&cfgPath, "config", "c", "", "toml config file")
	cmd.Flags().StringVarP(&server, "server", "s", "", "server address, overrides the config")
	return cmd
}

func newLogger() (logr.Logger, error) {
	z, err := zap.NewDevelopment()
	if err != nil {
		return logr.Logger{}, errors.Wrap(err, "logger")
	}
	return zapr.NewLogger(z), nil
}

func userInfo(cfg config.Client) (*info.String, error) {
	in := info.NewUserInfo()
	for key, val := range map[string]string{
		"name":        cfg.Name,
		"topcolor":    strconv.Itoa(cfg.TopColor),
		"bottomcolor": strconv.Itoa(cfg.BottomColor),
		"rate":        strconv.Itoa(cfg.Rate),
	} {
		if err := in.Set(key, val); err != nil {
			return nil, errors.Wrapf(err, "userinfo %s", key)
		}
	}
	return in, nil
}

func run(ctx context.Context, cfgPath, serverOverride string) error {
	log, err := newLogger()
	if err != nil {
		return err
	}
	cfg, err := config.LoadClient(cfgPath)
	if err != nil {
		return err
	}
	if serverOverride != "" {
		cfg.Server = serverOverride
	}
	if cfg.TickHz <= 0 {
		cfg.TickHz = config.DefaultClient().TickHz
	}

	in, err := userInfo(cfg)
	if err != nil {
		return err
	}
	sess := client.NewSession(client.Config{
		QPort:      cfg.QPort,
		UserInfo:   in,
		RetryTicks: cfg.RetryTicks,
		RetryLimit: cfg.RetryLimit,
	}, log)

	conn, err := transport.Listen(0)
	if err != nil {
		return err
	}
	defer conn.Close()
	log.Info("connecting", "server", cfg.Server, "local", conn.LocalAddr())

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	send := func(pkts [][]byte) error {
		for _, p := range pkts {
			if err := conn.Send(cfg.Server, p); err != nil {
				return err
			}
		}
		return nil
	}
	if err := send(sess.Start()); err != nil {
		return err
	}

	status := sess.Status()
	tickDur := time.Second / time.Duration(cfg.TickHz)
	next := time.Now().Add(tickDur)
	for ctx.Err() == nil {
		wait := time.Until(next)
		if wait < 0 {
			wait = 0
		}
		pkt, _, err := conn.Recv(wait)
		if err != nil {
			return err
		}
		if pkt != nil {
			out, err := sess.Receive(pkt)
			if err != nil {
				return errors.Wrap(err, "session failed")
			}
			if err := send(out); err != nil {
				return err
			}
		}
		if !time.Now().Before(next) {
			out, err := sess.Tick()
			if err != nil {
				return err
			}
			if err := send(out); err != nil {
				return err
			}
			next = next.Add(tickDur)
		}

		if s := sess.Status(); s != status {
			log.Info("status changed", "from", status.String(), "to", s.String())
			status = s
		}
		st := sess.State()
		for _, p := range st.Prints {
			log.Info("print", "level", p.Level, "text", p.Text)
		}
		st.ClearFrameEvents()
		st.StuffText = st.StuffText[:0]
		if status == client.StatusDisconnected {
			log.Info("disconnected by server")
			return nil
		}
	}
	return nil
}
