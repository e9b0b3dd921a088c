package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/sarchlab/trapsim/config"
	"github.com/sarchlab/trapsim/datarecording"
	"github.com/sarchlab/trapsim/driver"
	"github.com/sarchlab/trapsim/ensemble"
	"github.com/sarchlab/trapsim/logging"
	"github.com/sarchlab/trapsim/monitoring"
	"github.com/sarchlab/trapsim/physics/ballistic"
	"github.com/sarchlab/trapsim/ramp"
	"github.com/sarchlab/trapsim/sim"
	"github.com/sarchlab/trapsim/trap"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run a trap simulation.",
	Long: "`run` samples the ensemble, steps it through the power ramp and " +
		"writes a collision stats block every StatsCadence steps.",
	RunE: func(cmd *cobra.Command, _ []string) error {
		c, err := loadConfig(cmd)
		if err != nil {
			return err
		}

		flags := cmd.Flags()
		if flags.Changed("monitor") {
			c.Monitor.Enabled, _ = flags.GetBool("monitor")
		}
		if flags.Changed("monitor-port") {
			c.Monitor.Port, _ = flags.GetInt("monitor-port")
		}
		if flags.Changed("open-browser") {
			c.Monitor.OpenBrowser, _ = flags.GetBool("open-browser")
		}

		log := logging.NamedLogger("trapsim")
		level, err := logging.ParseLevel(c.Log.Level)
		if err != nil {
			return fmt.Errorf("%w: %w", sim.ErrConfiguration, err)
		}
		log.SetLevel(level)

		traceEvents, _ := flags.GetBool("trace-events")

		report, err := runSimulation(c, log, traceEvents)
		if err != nil {
			return err
		}

		fmt.Fprintf(cmd.OutOrStdout(),
			"Run %s (seed %d): %d steps, %d particles, %d blocks in %s\n",
			report.RunID, report.Seed, report.Steps, report.Particles,
			report.Flushes, c.Output.CollisionsFile)

		return nil
	},
}

func init() {
	rootCmd.AddCommand(runCmd)

	runCmd.Flags().Bool("monitor", false, "serve the monitoring API")
	runCmd.Flags().Int("monitor-port", 0, "port of the monitoring API")
	runCmd.Flags().Bool("open-browser", false,
		"open the monitoring address in a browser")
	runCmd.Flags().Bool("trace-events", false,
		"log every step event at debug level")
}

func runSimulation(
	c *config.Config,
	log *logrus.Logger,
	traceEvents bool,
) (report driver.RunReport, err error) {
	out, err := createOutput(c.Output.CollisionsFile)
	if err != nil {
		return report, err
	}
	defer closeOutput(&err, out)

	b, err := newBuilder(c, log)
	if err != nil {
		return report, err
	}
	b = b.WithStatsWriter(out).WithEventLogging(traceEvents)

	if c.Output.Database != "" {
		recorder, openErr := datarecording.Open(
			context.Background(), c.Output.Database)
		if openErr != nil {
			return report, fmt.Errorf("%w: %w", sim.ErrIO, openErr)
		}
		defer closeOutput(&err, recorder)

		target := "clickhouse"
		if w, ok := recorder.(*datarecording.SQLiteWriter); ok {
			target = w.Path()
		}
		log.WithField("target", target).Info("Recording run data.")
		b = b.WithDataRecorder(recorder)
	}

	var monitor *monitoring.Monitor
	if c.Monitor.Enabled {
		monitor = monitoring.NewMonitor().
			WithPortNumber(c.Monitor.Port).
			WithBrowser(c.Monitor.OpenBrowser).
			WithLogger(log)
		b = b.WithMonitor(monitor)
	}

	d, err := b.Build()
	if err != nil {
		return report, err
	}

	if monitor != nil {
		if _, err := monitor.StartServer(); err != nil {
			return report, err
		}
		defer func() {
			if stopErr := monitor.StopServer(); stopErr != nil {
				err = errors.Join(err, stopErr)
			}
		}()
	}

	return d.Run()
}

// closeOutput closes c and joins a failure into *err, so a run that wrote
// everything still fails when its output cannot be closed.
func closeOutput(err *error, c io.Closer) {
	if closeErr := c.Close(); closeErr != nil {
		*err = errors.Join(*err, fmt.Errorf("%w: %w", sim.ErrIO, closeErr))
	}
}

func createOutput(path string) (*os.File, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("%w: %w", sim.ErrIO, err)
		}
	}

	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", sim.ErrIO, err)
	}

	return f, nil
}

// newBuilder configures a driver on the ballistic engine without the stats
// writer.
func newBuilder(c *config.Config, log *logrus.Logger) (driver.Builder, error) {
	pol := trap.CalculatePolarizability(
		c.Trap.Wavelength, c.Atom.TransitionWavelength, c.Atom.Linewidth)

	horizontal, err := ensemble.NewGaussian2D(
		[2]float64{}, c.HorizontalCovariance())
	if err != nil {
		return driver.Builder{}, err
	}

	vertical, err := ensemble.NewGaussian2D(
		[2]float64{}, c.VerticalCovariance())
	if err != nil {
		return driver.Builder{}, err
	}

	sampler, err := ensemble.NewSampler(horizontal, vertical, c.Atom.Mass, pol)
	if err != nil {
		return driver.Builder{}, err
	}

	volume, err := c.SimulationVolume()
	if err != nil {
		return driver.Builder{}, err
	}

	b := driver.MakeBuilder().
		WithEngine(ballistic.NewEngine()).
		WithTimestep(c.Run.Timestep).
		WithSteps(c.Run.Steps).
		WithStatsCadence(c.Output.StatsCadence).
		WithSnapshotCadence(c.Output.SnapshotCadence).
		WithSampler(sampler).
		WithParticleCount(c.Ensemble.Particles).
		WithCollisionParameters(c.CollisionParameters()).
		WithVolume(volume).
		WithLogger(log)

	if c.Run.Seed != 0 {
		b = b.WithSeed(c.Run.Seed)
	}

	setups, err := trap.CrossedBeams(c.Trap.Beams,
		c.Trap.Wavelength, c.Trap.ERadius, c.Ramp.InitialPower)
	if err != nil {
		return driver.Builder{}, err
	}

	schedule := c.Schedule()
	for i, s := range setups {
		frames, err := ramp.Keyframes(schedule, s.Beam.WithPower)
		if err != nil {
			return driver.Builder{}, err
		}

		table, err := ramp.NewTable(frames)
		if err != nil {
			return driver.Builder{}, err
		}

		log.WithFields(logrus.Fields{
			"beam":      i,
			"direction": s.Beam.Direction,
			"frame":     s.Frame,
			"rayleigh":  s.Beam.RayleighRange,
		}).Debug("Beam configured.")

		b = b.WithBeam(i, table)
	}

	return b, nil
}
