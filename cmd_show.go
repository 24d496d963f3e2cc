package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/LiEnby/eCDP-Serial-Code/internal/archive"
)

func (a *app) showCmd() *cobra.Command {
	var password string
	cmd := &cobra.Command{
		Use:   "show <file.zip>",
		Short: "List the matches stored in a result archive",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := archive.ReadMatches(args[0], password)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if s := c.Summary; s != nil {
				fmt.Fprintf(out, "MAC:     %s\n", s.MAC)
				fmt.Fprintf(out, "Code:    %s\n", s.Code)
				fmt.Fprintf(out, "Tables:  %v\n", s.Tables)
				fmt.Fprintf(out, "Found:   %d | Checked: %d | Time: %s\n", s.Found, s.Checked, s.Elapsed)
			}
			for _, m := range c.Matches {
				printMatch(out, m)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&password, "zip-password", "", "archive password")
	return cmd
}
