package cmd

import (
	"github.com/spf13/cobra"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Print the effective run parameters.",
	Long: "`config` prints the parameters a run would use, after applying " +
		"the config file, the environment and the flags, as an INI file " +
		"that --config accepts.",
	RunE: func(cmd *cobra.Command, _ []string) error {
		c, err := loadConfig(cmd)
		if err != nil {
			return err
		}

		_, err = c.WriteTo(cmd.OutOrStdout())

		return err
	},
}

func init() {
	rootCmd.AddCommand(configCmd)
}
