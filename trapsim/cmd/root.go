// Package cmd provides the command-line interface for trapsim.
package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/tebeka/atexit"

	"github.com/sarchlab/trapsim/config"
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "trapsim",
	Short: "trapsim simulates a particle cloud in a ramped optical trap.",
	Long: `trapsim simulates a particle cloud held by crossed optical dipole ` +
		`beams whose power is ramped down over the run, and records the ` +
		`collision statistics of the cloud.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute adds all child commands to the root command and sets flags
// appropriately.
func Execute() {
	err := rootCmd.Execute()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		atexit.Exit(1)
	}

	atexit.Exit(0)
}

func init() {
	flags := rootCmd.PersistentFlags()
	flags.String("config", "", "INI file with the run parameters")
	flags.String("env-file", "", "dotenv file with TRAPSIM_* overrides")
	flags.Uint64("seed", 0, "seed of the ensemble generator, 0 for random")
	flags.Int("steps", 0, "number of steps of the run")
	flags.String("log-level", "", "log level (debug, info, warn, error)")
	flags.String("collisions-file", "", "file that receives the collision stats")
	flags.String("database", "", "SQLite database name or clickhouse:// DSN for run data")
}

// loadConfig builds the effective configuration. Flags take precedence over
// the environment, which takes precedence over the file.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	flags := cmd.Flags()

	envFile, _ := flags.GetString("env-file")
	var envFiles []string
	if envFile != "" {
		envFiles = append(envFiles, envFile)
	}

	if err := config.LoadEnv(envFiles...); err != nil {
		return nil, err
	}

	c := config.Default()

	path, _ := flags.GetString("config")
	if path != "" {
		var err error
		c, err = config.Load(path)
		if err != nil {
			return nil, err
		}
	}

	if err := c.ApplyEnv(); err != nil {
		return nil, err
	}

	if flags.Changed("seed") {
		c.Run.Seed, _ = flags.GetUint64("seed")
	}

	if flags.Changed("steps") {
		c.Run.Steps, _ = flags.GetInt("steps")
	}

	if flags.Changed("log-level") {
		c.Log.Level, _ = flags.GetString("log-level")
	}

	if flags.Changed("collisions-file") {
		c.Output.CollisionsFile, _ = flags.GetString("collisions-file")
	}

	if flags.Changed("database") {
		c.Output.Database, _ = flags.GetString("database")
	}

	if err := c.Validate(); err != nil {
		return nil, err
	}

	return c, nil
}
