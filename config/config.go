// Package config reads the parameters of a trapsim run from an INI file and
// from TRAPSIM_* environment variables.
package config

import (
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"strconv"

	"github.com/joho/godotenv"
	"gopkg.in/gcfg.v1"

	"github.com/sarchlab/trapsim/collision"
	"github.com/sarchlab/trapsim/geom"
	"github.com/sarchlab/trapsim/ramp"
	"github.com/sarchlab/trapsim/sim"
)

// RunConfig is the [Run] section.
type RunConfig struct {
	Steps    int
	Timestep float64
	// Seed of the ensemble generator. Zero draws a seed from entropy.
	Seed uint64
}

// TrapConfig is the [Trap] section.
type TrapConfig struct {
	Wavelength float64
	ERadius    float64
	// Beams is 1 for a single beam along x, 2 for crossed beams along x
	// and y.
	Beams int
}

// RampConfig is the [Ramp] section.
type RampConfig struct {
	InitialPower float64
	FinalPower   float64
	// Rate in W/s. Zero derives the rate that reaches FinalPower at the
	// middle of the run.
	Rate float64
}

// AtomConfig is the [Atom] section.
type AtomConfig struct {
	Mass                 float64
	TransitionWavelength float64
	Linewidth            float64
}

// EnsembleConfig is the [Ensemble] section. Each axis pair is a 2x2
// covariance over {position, velocity}.
type EnsembleConfig struct {
	Particles             int
	HorizontalPosition    float64
	HorizontalVelocity    float64
	HorizontalCorrelation float64
	VerticalPosition      float64
	VerticalVelocity      float64
	VerticalCorrelation   float64
}

// CollisionsConfig is the [Collisions] section.
type CollisionsConfig struct {
	Macroparticle  float64
	BoxNumber      int
	BoxWidth       float64
	Sigma          float64
	CollisionLimit float64
}

// VolumeConfig is the [Volume] section.
type VolumeConfig struct {
	Radius float64
	Type   string
}

// OutputConfig is the [Output] section. Database is either a SQLite file
// name or a clickhouse:// DSN.
type OutputConfig struct {
	CollisionsFile  string
	StatsCadence    int
	Database        string
	SnapshotCadence int
}

// LogConfig is the [Log] section.
type LogConfig struct {
	Level string
}

// MonitorConfig is the [Monitor] section.
type MonitorConfig struct {
	Enabled     bool
	Port        int
	OpenBrowser bool
}

// Config holds every parameter of a run.
type Config struct {
	Run        RunConfig
	Trap       TrapConfig
	Ramp       RampConfig
	Atom       AtomConfig
	Ensemble   EnsembleConfig
	Collisions CollisionsConfig
	Volume     VolumeConfig
	Output     OutputConfig
	Log        LogConfig
	Monitor    MonitorConfig
}

// Default returns the parameters of the reference run: a strontium cloud
// in a 1064 nm crossed trap ramped from 7 W to 0.25 W over 0.05 s.
func Default() *Config {
	return &Config{
		Run: RunConfig{
			Steps:    100000,
			Timestep: 1e-6,
		},
		Trap: TrapConfig{
			Wavelength: 1064e-9,
			ERadius:    60e-6 / math.Sqrt2,
			Beams:      2,
		},
		Ramp: RampConfig{
			InitialPower: 7,
			FinalPower:   0.25,
		},
		Atom: AtomConfig{
			Mass:                 87,
			TransitionWavelength: 461e-9,
			Linewidth:            2.1e8,
		},
		Ensemble: EnsembleConfig{
			Particles:          2500,
			HorizontalPosition: 6.390371318625299e-11,
			HorizontalVelocity: 4.7799785348289716e-04,
			VerticalPosition:   3.195234569049243e-11,
			VerticalVelocity:   4.7799785348289716e-04,
		},
		Collisions: CollisionsConfig{
			Macroparticle:  4e2,
			BoxNumber:      1000,
			BoxWidth:       1e-6,
			Sigma:          1.95e-19,
			CollisionLimit: 10000,
		},
		Volume: VolumeConfig{
			Radius: 60e-6,
			Type:   collision.Inclusive.String(),
		},
		Output: OutputConfig{
			CollisionsFile:  "collisions.txt",
			StatsCadence:    50,
			SnapshotCadence: 500,
		},
		Log: LogConfig{
			Level: "info",
		},
		Monitor: MonitorConfig{
			Port: 0,
		},
	}
}

// Load reads an INI file on top of the defaults. Keys missing from the file
// keep their default values.
func Load(path string) (*Config, error) {
	c := Default()

	if err := gcfg.ReadFileInto(c, path); err != nil {
		return nil, fmt.Errorf("%w: reading %s: %w",
			sim.ErrConfiguration, path, err)
	}

	return c, nil
}

// Parse reads INI text on top of the defaults.
func Parse(text string) (*Config, error) {
	c := Default()

	if err := gcfg.ReadStringInto(c, text); err != nil {
		return nil, fmt.Errorf("%w: %w", sim.ErrConfiguration, err)
	}

	return c, nil
}

// LoadEnv loads dotenv files into the process environment. Variables already
// set are kept. Without arguments it loads .env if the file exists.
func LoadEnv(files ...string) error {
	if len(files) == 0 {
		if _, err := os.Stat(".env"); errors.Is(err, os.ErrNotExist) {
			return nil
		}
	}

	if err := godotenv.Load(files...); err != nil {
		return fmt.Errorf("%w: loading env: %w", sim.ErrConfiguration, err)
	}

	return nil
}

// Environment variables that override the file.
const (
	EnvSeed           = "TRAPSIM_SEED"
	EnvSteps          = "TRAPSIM_STEPS"
	EnvCollisionsFile = "TRAPSIM_COLLISIONS_FILE"
	EnvDatabase       = "TRAPSIM_DATABASE"
	EnvLogLevel       = "TRAPSIM_LOG_LEVEL"
)

// ApplyEnv overrides parameters with the TRAPSIM_* variables that are set.
func (c *Config) ApplyEnv() error {
	if v, ok := os.LookupEnv(EnvSeed); ok {
		seed, err := strconv.ParseUint(v, 10, 64)
		if err != nil {
			return fmt.Errorf("%w: %s: %w", sim.ErrConfiguration, EnvSeed, err)
		}
		c.Run.Seed = seed
	}

	if v, ok := os.LookupEnv(EnvSteps); ok {
		steps, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("%w: %s: %w", sim.ErrConfiguration, EnvSteps, err)
		}
		c.Run.Steps = steps
	}

	if v, ok := os.LookupEnv(EnvCollisionsFile); ok {
		c.Output.CollisionsFile = v
	}

	if v, ok := os.LookupEnv(EnvDatabase); ok {
		c.Output.Database = v
	}

	if v, ok := os.LookupEnv(EnvLogLevel); ok {
		c.Log.Level = v
	}

	return nil
}

// Validate checks the parameters that the packages building the run do not
// check themselves.
func (c *Config) Validate() error {
	switch {
	case c.Run.Steps <= 0:
		return invalid("Run.Steps must be positive, got %d", c.Run.Steps)
	case c.Run.Timestep <= 0:
		return invalid("Run.Timestep must be positive, got %g", c.Run.Timestep)
	case c.Trap.Wavelength <= 0:
		return invalid("Trap.Wavelength must be positive, got %g",
			c.Trap.Wavelength)
	case c.Trap.ERadius <= 0:
		return invalid("Trap.ERadius must be positive, got %g", c.Trap.ERadius)
	case c.Trap.Beams != 1 && c.Trap.Beams != 2:
		return invalid("Trap.Beams must be 1 or 2, got %d", c.Trap.Beams)
	case c.Ramp.InitialPower < 0 || c.Ramp.FinalPower < 0:
		return invalid("Ramp powers must not be negative")
	case c.Ensemble.Particles < 0:
		return invalid("Ensemble.Particles must not be negative, got %d",
			c.Ensemble.Particles)
	case c.Output.CollisionsFile == "":
		return invalid("Output.CollisionsFile must be set")
	case c.Output.StatsCadence <= 0:
		return invalid("Output.StatsCadence must be positive, got %d",
			c.Output.StatsCadence)
	case c.Output.SnapshotCadence < 0:
		return invalid("Output.SnapshotCadence must not be negative, got %d",
			c.Output.SnapshotCadence)
	}

	if err := c.CollisionParameters().Validate(); err != nil {
		return err
	}

	v, err := c.SimulationVolume()
	if err != nil {
		return err
	}

	return v.Validate()
}

func invalid(format string, args ...any) error {
	return fmt.Errorf("%w: "+format,
		append([]any{sim.ErrConfiguration}, args...)...)
}

// Schedule returns the power ramp of the run.
func (c *Config) Schedule() ramp.TwoPhaseSchedule {
	rate := c.Ramp.Rate
	if rate == 0 {
		rate = ramp.LinearRate(c.Ramp.InitialPower, c.Ramp.FinalPower,
			c.Run.Steps, c.Run.Timestep)
	}

	return ramp.TwoPhaseSchedule{
		Steps:        c.Run.Steps,
		Timestep:     c.Run.Timestep,
		InitialPower: c.Ramp.InitialPower,
		FinalPower:   c.Ramp.FinalPower,
		Rate:         rate,
	}
}

// HorizontalCovariance returns the {position, velocity} covariance used for
// the x and y axes.
func (c *Config) HorizontalCovariance() [2][2]float64 {
	e := c.Ensemble
	return [2][2]float64{
		{e.HorizontalPosition, e.HorizontalCorrelation},
		{e.HorizontalCorrelation, e.HorizontalVelocity},
	}
}

// VerticalCovariance returns the {position, velocity} covariance of the z
// axis.
func (c *Config) VerticalCovariance() [2][2]float64 {
	e := c.Ensemble
	return [2][2]float64{
		{e.VerticalPosition, e.VerticalCorrelation},
		{e.VerticalCorrelation, e.VerticalVelocity},
	}
}

// CollisionParameters returns the collision model parameters.
func (c *Config) CollisionParameters() collision.Parameters {
	return collision.Parameters{
		Macroparticle:  c.Collisions.Macroparticle,
		BoxNumber:      c.Collisions.BoxNumber,
		BoxWidth:       c.Collisions.BoxWidth,
		Sigma:          c.Collisions.Sigma,
		CollisionLimit: c.Collisions.CollisionLimit,
	}
}

// SimulationVolume returns the sphere of particles counted in collisions,
// centered on the trap.
func (c *Config) SimulationVolume() (collision.SimulationVolume, error) {
	t, err := collision.ParseVolumeType(c.Volume.Type)
	if err != nil {
		return collision.SimulationVolume{}, err
	}

	return collision.SimulationVolume{
		Shape: geom.Sphere{Radius: c.Volume.Radius},
		Type:  t,
	}, nil
}

// WriteTo writes the configuration as an INI file that Load accepts.
func (c *Config) WriteTo(w io.Writer) (int64, error) {
	cw := &countingWriter{w: w}

	cw.section("Run")
	cw.value("Steps", c.Run.Steps)
	cw.value("Timestep", c.Run.Timestep)
	cw.value("Seed", c.Run.Seed)

	cw.section("Trap")
	cw.value("Wavelength", c.Trap.Wavelength)
	cw.value("ERadius", c.Trap.ERadius)
	cw.value("Beams", c.Trap.Beams)

	cw.section("Ramp")
	cw.value("InitialPower", c.Ramp.InitialPower)
	cw.value("FinalPower", c.Ramp.FinalPower)
	cw.value("Rate", c.Ramp.Rate)

	cw.section("Atom")
	cw.value("Mass", c.Atom.Mass)
	cw.value("TransitionWavelength", c.Atom.TransitionWavelength)
	cw.value("Linewidth", c.Atom.Linewidth)

	cw.section("Ensemble")
	cw.value("Particles", c.Ensemble.Particles)
	cw.value("HorizontalPosition", c.Ensemble.HorizontalPosition)
	cw.value("HorizontalVelocity", c.Ensemble.HorizontalVelocity)
	cw.value("HorizontalCorrelation", c.Ensemble.HorizontalCorrelation)
	cw.value("VerticalPosition", c.Ensemble.VerticalPosition)
	cw.value("VerticalVelocity", c.Ensemble.VerticalVelocity)
	cw.value("VerticalCorrelation", c.Ensemble.VerticalCorrelation)

	cw.section("Collisions")
	cw.value("Macroparticle", c.Collisions.Macroparticle)
	cw.value("BoxNumber", c.Collisions.BoxNumber)
	cw.value("BoxWidth", c.Collisions.BoxWidth)
	cw.value("Sigma", c.Collisions.Sigma)
	cw.value("CollisionLimit", c.Collisions.CollisionLimit)

	cw.section("Volume")
	cw.value("Radius", c.Volume.Radius)
	cw.str("Type", c.Volume.Type)

	cw.section("Output")
	cw.str("CollisionsFile", c.Output.CollisionsFile)
	cw.value("StatsCadence", c.Output.StatsCadence)
	cw.str("Database", c.Output.Database)
	cw.value("SnapshotCadence", c.Output.SnapshotCadence)

	cw.section("Log")
	cw.str("Level", c.Log.Level)

	cw.section("Monitor")
	cw.value("Enabled", c.Monitor.Enabled)
	cw.value("Port", c.Monitor.Port)
	cw.value("OpenBrowser", c.Monitor.OpenBrowser)

	return cw.n, cw.err
}

type countingWriter struct {
	w   io.Writer
	n   int64
	err error
}

func (cw *countingWriter) printf(format string, args ...any) {
	if cw.err != nil {
		return
	}

	n, err := fmt.Fprintf(cw.w, format, args...)
	cw.n += int64(n)
	cw.err = err
}

func (cw *countingWriter) section(name string) {
	if cw.n > 0 {
		cw.printf("\n")
	}

	cw.printf("[%s]\n", name)
}

func (cw *countingWriter) value(name string, v any) {
	cw.printf("%s = %v\n", name, v)
}

func (cw *countingWriter) str(name, v string) {
	cw.printf("%s = %s\n", name, strconv.Quote(v))
}
