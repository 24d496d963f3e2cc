package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/LiEnby/eCDP-Serial-Code/internal/ecdp"
	"github.com/LiEnby/eCDP-Serial-Code/internal/logging"
)

func (a *app) encodeCmd() *cobra.Command {
	var (
		mac, store, management string
		explain                bool
	)
	cmd := &cobra.Command{
		Use:   "encode",
		Short: "Compute the password for a MAC address, store and management number",
		Example: `  ecdp encode --mac 01438BADE227 --store 164332 --management 842231
  ecdp encode --mac 01438BADE227 --store 164332 --management 842231 --explain`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			tr := logging.TraceTo(a.logger)
			if explain {
				tr = ecdp.TraceFunc(func(line string) { fmt.Fprintln(out, line) })
			}
			code, err := ecdp.Encode(mac, store, management, ecdp.WithTracer(tr))
			if err != nil {
				return err
			}
			a.logger.Debug("Encoded",
				zap.String("mac", mac),
				zap.String("code", string(code)))
			if !explain {
				fmt.Fprintln(out, code)
			}
			return nil
		},
	}
	f := cmd.Flags()
	f.StringVar(&mac, "mac", "", "MAC address of the DS, 12 hex characters without separators")
	f.StringVar(&store, "store", "", "store number, 6 digits")
	f.StringVar(&management, "management", "", "store management number, 6 digits")
	f.BoolVar(&explain, "explain", false, "print every encoding step")
	_ = cmd.MarkFlagRequired("mac")
	_ = cmd.MarkFlagRequired("store")
	_ = cmd.MarkFlagRequired("management")
	return cmd
}

func (a *app) masterCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "master",
		Short: "Print the master password accepted by every cartridge",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintln(cmd.OutOrStdout(), ecdp.MasterCode)
		},
	}
}

func (a *app) configCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Configuration helpers",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "init [path]",
		Short: "Write the effective configuration to path (default ecdp.yaml)",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := "ecdp.yaml"
			if len(args) == 1 {
				path = args[0]
			}
			if err := a.cfg.Save(path); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Wrote %s\n", path)
			return nil
		},
	})
	return cmd
}
