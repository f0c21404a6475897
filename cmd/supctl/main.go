package main

import (
	"context"
	"fmt"
	"io"
	"net"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"

	"github.com/danmuck/supctl/internal/auth"
	"github.com/danmuck/supctl/internal/config"
	"github.com/danmuck/supctl/internal/ctlclient"
	"github.com/danmuck/supctl/internal/logging"
	"github.com/danmuck/supctl/internal/protocol/srv"
	"github.com/danmuck/supctl/internal/ui"
	"github.com/spf13/cobra"
)

const defaultStatusColor = "green"

func main() {
	logging.ConfigureCLI()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a := newApp(os.Stdout, os.Getenv)
	if err := newRootCmd(a).ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "supctl: %v\n", ctlclient.FromError(err))
		os.Exit(1)
	}
}

// app carries what every subcommand needs: where to write, how to reach the
// supervisor and the persistent flag values.
type app struct {
	out       io.Writer
	getenv    func(string) string
	newClient func() *ctlclient.Client
	newUI     func(noColor bool) *ui.UI

	remoteSup   string
	statusColor string
	noColor     bool
}

func newApp(out io.Writer, getenv func(string) string) *app {
	return &app{
		out:       out,
		getenv:    getenv,
		newClient: func() *ctlclient.Client { return ctlclient.New(ctlclient.DefaultConfig()) },
		newUI:     ui.New,
	}
}

func newRootCmd(a *app) *cobra.Command {
	root := &cobra.Command{
		Use:           "supctl",
		Short:         "Command a running supervisor over its control gateway",
		SilenceErrors: true,
		SilenceUsage:  true,
	}
	root.SetOut(a.out)
	root.PersistentFlags().StringVarP(&a.remoteSup, "remote-sup", "r", "",
		"supervisor control gateway address (default from cli.toml or 127.0.0.1:9632)")
	root.PersistentFlags().StringVar(&a.statusColor, "status-color", "",
		"color for service state: a name, an ANSI-256 index or r,g,b")
	root.PersistentFlags().BoolVar(&a.noColor, "no-color", false, "disable colored output")

	root.AddCommand(newSvcCmd(a), newConfigCmd(a), newSupCmd(a), newSecretCmd(a), newCLICmd(a))
	return root
}

func (a *app) cliConfig() (config.CLI, error) {
	cfg, err := config.LoadCLI(config.CLIConfigPath(a.getenv))
	if err != nil {
		return config.CLI{}, &auth.ConfigError{Err: err}
	}
	return cfg, nil
}

// remoteAddr resolves --remote-sup, then cli.toml, then the local default.
// A bare host gets the default control port.
func (a *app) remoteAddr() (string, error) {
	addr := strings.TrimSpace(a.remoteSup)
	if addr == "" {
		cfg, err := a.cliConfig()
		if err != nil {
			return "", err
		}
		addr = strings.TrimSpace(cfg.RemoteSup)
	}
	if addr == "" {
		return ctlclient.DefaultAddr, nil
	}
	return withDefaultPort(addr), nil
}

func withDefaultPort(addr string) string {
	if _, _, err := net.SplitHostPort(addr); err == nil {
		return addr
	}
	host := strings.TrimSuffix(strings.TrimPrefix(addr, "["), "]")
	return net.JoinHostPort(host, strconv.Itoa(config.DefaultCtlPort))
}

func (a *app) color() (ui.Color, error) {
	raw := strings.TrimSpace(a.statusColor)
	if raw == "" {
		cfg, err := a.cliConfig()
		if err != nil {
			return ui.Color{}, err
		}
		raw = strings.TrimSpace(cfg.StatusColor)
	}
	if raw == "" {
		raw = defaultStatusColor
	}
	return ui.ParseColor(raw)
}

// request sends payload and hands each data reply to each. NetOk only
// acknowledges the command and is not passed on. An error reply from the
// supervisor ends the exchange.
func (a *app) request(ctx context.Context, payload srv.Payload, each func(srv.Message) error) error {
	addr, err := a.remoteAddr()
	if err != nil {
		return err
	}
	stream, err := a.newClient().Request(ctx, addr, payload)
	if err != nil {
		return err
	}
	defer stream.Close()

	for msg, err := range stream.All(ctx) {
		if err != nil {
			return err
		}
		if err := msg.TryOK(); err != nil {
			return ctlclient.FromError(err)
		}
		if msg.Kind == srv.KindNetOk {
			continue
		}
		if err := each(msg); err != nil {
			return err
		}
	}
	return nil
}
