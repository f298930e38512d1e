package main

import (
	"github.com/spf13/cobra"

	"github.com/aspnmy/scanapi/internal/output"
	"github.com/aspnmy/scanapi/internal/profile"
)

func newProfilesCmd() *cobra.Command {
	var format string

	cmd := &cobra.Command{
		Use:   "profiles",
		Short: "List scan types and their nmap arguments",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			printer, err := output.NewPrinter(format, true, cmd.OutOrStdout())
			if err != nil {
				return err
			}
			return printer.Profiles(profile.Profiles())
		},
	}
	cmd.Flags().StringVarP(&format, "output", "o", output.FormatTable, "Output format: table, json, csv")

	return cmd
}
