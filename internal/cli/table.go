package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/headblockhead/lorafhss"
)

var tableCmd = &cobra.Command{
	Use:   "table",
	Short: "Print the frequency hopping table",
	RunE: func(cmd *cobra.Command, args []string) error {
		table, err := cfg.Table()
		if err != nil {
			return err
		}
		w := cmd.OutOrStdout()
		fmt.Fprintln(w, headerStyle.Render(fmt.Sprintf("%-8s %-12s %s", "CHANNEL", "FREQUENCY", "FRF")))
		for i, hz := range table.Frequencies() {
			fmt.Fprintf(w, "%-8d %-12s %s\n", i, fmt.Sprintf("%.1fMHz", float64(hz)/1e6),
				dimStyle.Render(fmt.Sprintf("%#06x", lorafhss.FrequencyToFrf(hz))))
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(tableCmd)
}
