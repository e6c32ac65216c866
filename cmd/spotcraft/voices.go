package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/MrWong99/spotcraft/pkg/adclient"
)

func newVoicesCmd() *cobra.Command {
	var cf clientFlags
	cmd := &cobra.Command{
		Use:   "voices",
		Short: "List the voices offered by the server's speech provider",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			client, err := adclient.New(cf.server, adclient.WithTimeout(cf.timeout))
			if err != nil {
				return err
			}
			voices, err := client.ListVoices(cmd.Context())
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if len(voices) == 0 {
				fmt.Fprintln(out, "No voices available")
				return nil
			}
			tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "ID\tNAME\tCATEGORY")
			for _, v := range voices {
				fmt.Fprintf(tw, "%s\t%s\t%s\n", v.ID, v.Name, v.Category)
			}
			return tw.Flush()
		},
	}
	cf.register(cmd)
	return cmd
}
