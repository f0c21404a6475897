package main

import (
	"fmt"
	"strings"

	"github.com/danmuck/supctl/internal/auth"
	"github.com/danmuck/supctl/internal/config"
	"github.com/danmuck/supctl/internal/protocol/ctl"
	"github.com/danmuck/supctl/internal/protocol/srv"
	"github.com/spf13/cobra"
)

func newSvcCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "svc",
		Short: "Query and change loaded services",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "status [IDENT]",
		Short: "Show the status of one or all loaded services",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			color, err := a.color()
			if err != nil {
				return err
			}
			var req ctl.SvcStatus
			if len(args) == 1 {
				req.Ident = strings.TrimSpace(args[0])
			}

			var rows []ctl.ServiceStatus
			err = a.request(cmd.Context(), req, func(msg srv.Message) error {
				var st ctl.ServiceStatus
				if err := msg.Parse(&st); err != nil {
					return err
				}
				rows = append(rows, st)
				return nil
			})
			if err != nil {
				return err
			}
			renderStatus(a.newUI(a.noColor), color, rows)
			return nil
		},
	})

	cmd.AddCommand(
		newDesiredCmd(a, "start", "Ask the supervisor to start a service", "Supervisor starting",
			func(ident string) srv.Payload { return ctl.SvcStart{Ident: ident} }),
		newDesiredCmd(a, "stop", "Ask the supervisor to stop a service", "Supervisor stopping",
			func(ident string) srv.Payload { return ctl.SvcStop{Ident: ident} }),
	)
	return cmd
}

func newDesiredCmd(a *app, use, short, verb string, build func(string) srv.Payload) *cobra.Command {
	return &cobra.Command{
		Use:   use + " IDENT",
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ident := strings.TrimSpace(args[0])
			err := a.request(cmd.Context(), build(ident), func(srv.Message) error { return nil })
			if err != nil {
				return err
			}
			fmt.Fprintf(a.out, "%s %s\n", verb, ident)
			return nil
		},
	}
}

func newConfigCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Inspect service configuration",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "show IDENT",
		Short: "Print the default configuration of a loaded service",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			req := ctl.SvcGetDefaultCfg{Ident: strings.TrimSpace(args[0])}
			return a.request(cmd.Context(), req, func(msg srv.Message) error {
				var cfg ctl.ServiceCfg
				if err := msg.Parse(&cfg); err != nil {
					return err
				}
				_, err := a.out.Write(cfg.Default)
				return err
			})
		},
	})
	return cmd
}

func newSupCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sup",
		Short: "Commands about the supervisor ring",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "depart MEMBER",
		Short: "Permanently mark a member as departed",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			member := strings.TrimSpace(args[0])
			fmt.Fprintf(a.out, "Permanently marking %s as departed\n", member)
			return a.request(cmd.Context(), ctl.SupDepart{MemberID: member}, func(srv.Message) error { return nil })
		},
	})
	return cmd
}

func newSecretCmd(a *app) *cobra.Command {
	var write bool
	cmd := &cobra.Command{
		Use:   "secret",
		Short: "Manage the control gateway secret",
	}
	generate := &cobra.Command{
		Use:   "generate",
		Short: "Generate a control gateway secret",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			secret, err := auth.GenerateSecret()
			if err != nil {
				return err
			}
			if !write {
				fmt.Fprintln(a.out, secret)
				return nil
			}
			path := auth.CtlSecretPath(config.SupRoot(config.FSRoot(a.getenv)))
			if err := auth.WriteSecretFile(path, secret); err != nil {
				return err
			}
			fmt.Fprintf(a.out, "Wrote ctl secret to %s\n", path)
			return nil
		},
	}
	generate.Flags().BoolVar(&write, "write", false, "write the secret to the supervisor's CTL_SECRET file")
	cmd.AddCommand(generate)
	return cmd
}

func newCLICmd(a *app) *cobra.Command {
	var force bool
	cmd := &cobra.Command{
		Use:   "cli",
		Short: "Manage the supctl configuration store",
	}
	setup := &cobra.Command{
		Use:   "setup",
		Short: "Write a starter cli.toml",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			path := config.CLIConfigPath(a.getenv)
			if err := config.WriteTemplate(path, "cli", force); err != nil {
				return err
			}
			fmt.Fprintf(a.out, "Wrote cli config template to %s\n", path)
			return nil
		},
	}
	setup.Flags().BoolVar(&force, "force", false, "overwrite an existing cli.toml")
	cmd.AddCommand(setup)
	return cmd
}
