package driver

import (
	"fmt"
	"io"

	"github.com/sirupsen/logrus"

	"github.com/sarchlab/trapsim/collision"
	"github.com/sarchlab/trapsim/datarecording"
	"github.com/sarchlab/trapsim/ensemble"
	"github.com/sarchlab/trapsim/monitoring"
	"github.com/sarchlab/trapsim/physics"
	"github.com/sarchlab/trapsim/ramp"
	"github.com/sarchlab/trapsim/sim"
	"github.com/sarchlab/trapsim/trap"
)

type beamRamp struct {
	id    int
	table *ramp.Table[trap.GaussianBeam]
}

// Builder configures and builds a Driver.
type Builder struct {
	engine          physics.Engine
	timestep        float64
	steps           int
	cadence         int
	snapshotCadence int
	statsWriter     io.Writer
	sampler         *ensemble.Sampler
	particleCount   int
	seed            uint64
	seedSet         bool
	beams           []beamRamp
	collisions      collision.Parameters
	volume          collision.SimulationVolume
	recorder        datarecording.DataRecorder
	monitor         *monitoring.Monitor
	log             logrus.FieldLogger
	logEvents       bool
}

// MakeBuilder returns a Builder with a 50-step stats cadence.
func MakeBuilder() Builder {
	return Builder{
		cadence: 50,
		log:     logrus.StandardLogger(),
	}
}

// WithEngine sets the physics engine that owns the particles.
func (b Builder) WithEngine(e physics.Engine) Builder {
	b.engine = e
	return b
}

// WithTimestep sets the duration of one step in seconds.
func (b Builder) WithTimestep(dt float64) Builder {
	b.timestep = dt
	return b
}

// WithSteps sets the number of steps of the run.
func (b Builder) WithSteps(n int) Builder {
	b.steps = n
	return b
}

// WithStatsCadence sets the number of steps between collision stats blocks.
func (b Builder) WithStatsCadence(n int) Builder {
	b.cadence = n
	return b
}

// WithSnapshotCadence sets the number of steps between particle snapshots in
// the data recorder. Zero disables snapshots.
func (b Builder) WithSnapshotCadence(n int) Builder {
	b.snapshotCadence = n
	return b
}

// WithStatsWriter sets where the collision stats blocks are written.
func (b Builder) WithStatsWriter(w io.Writer) Builder {
	b.statsWriter = w
	return b
}

// WithSampler sets the ensemble sampler.
func (b Builder) WithSampler(s *ensemble.Sampler) Builder {
	b.sampler = s
	return b
}

// WithParticleCount sets the ensemble size.
func (b Builder) WithParticleCount(n int) Builder {
	b.particleCount = n
	return b
}

// WithSeed fixes the seed of the random source. Without it, the seed is drawn
// from entropy.
func (b Builder) WithSeed(seed uint64) Builder {
	b.seed = seed
	b.seedSet = true

	return b
}

// WithBeam adds a ramped beam. The driver ramps its own copy of the table, so
// one table may back several beams or several runs.
func (b Builder) WithBeam(id int, table *ramp.Table[trap.GaussianBeam]) Builder {
	beams := make([]beamRamp, len(b.beams), len(b.beams)+1)
	copy(beams, b.beams)
	b.beams = append(beams, beamRamp{id: id, table: table})

	return b
}

// WithCollisionParameters sets the collision model parameters.
func (b Builder) WithCollisionParameters(p collision.Parameters) Builder {
	b.collisions = p
	return b
}

// WithVolume sets the volume of particles counted in collisions.
func (b Builder) WithVolume(v collision.SimulationVolume) Builder {
	b.volume = v
	return b
}

// WithDataRecorder stores run info, collision stats, trap power and particle
// snapshots in the recorder.
func (b Builder) WithDataRecorder(r datarecording.DataRecorder) Builder {
	b.recorder = r
	return b
}

// WithMonitor attaches a monitor to the run.
func (b Builder) WithMonitor(m *monitoring.Monitor) Builder {
	b.monitor = m
	return b
}

// WithLogger sets the logger.
func (b Builder) WithLogger(l logrus.FieldLogger) Builder {
	b.log = l
	return b
}

// WithEventLogging logs every step event at debug level.
func (b Builder) WithEventLogging(on bool) Builder {
	b.logEvents = on
	return b
}

func (b Builder) validate() error {
	switch {
	case b.engine == nil:
		return fmt.Errorf("%w: no physics engine", sim.ErrConfiguration)
	case b.sampler == nil:
		return fmt.Errorf("%w: no ensemble sampler", sim.ErrConfiguration)
	case b.statsWriter == nil:
		return fmt.Errorf("%w: no stats writer", sim.ErrConfiguration)
	case b.steps < 0:
		return fmt.Errorf("%w: steps must not be negative, got %d",
			sim.ErrConfiguration, b.steps)
	case b.timestep <= 0:
		return fmt.Errorf("%w: timestep must be positive, got %g",
			sim.ErrConfiguration, b.timestep)
	case b.snapshotCadence < 0:
		return fmt.Errorf("%w: snapshot cadence must not be negative, got %d",
			sim.ErrConfiguration, b.snapshotCadence)
	}

	seen := make(map[int]bool)
	for _, beam := range b.beams {
		if beam.table == nil {
			return fmt.Errorf("%w: beam %d has no ramp table",
				sim.ErrConfiguration, beam.id)
		}

		if seen[beam.id] {
			return fmt.Errorf("%w: beam %d added twice",
				sim.ErrConfiguration, beam.id)
		}
		seen[beam.id] = true
	}

	return nil
}

// Build validates the configuration, hands the run-scoped resources to the
// engine, pushes the initial beam states and registers the ensemble. The
// returned driver is ready to run.
func (b Builder) Build() (*Driver, error) {
	if err := b.validate(); err != nil {
		return nil, err
	}

	seed := b.seed
	if !b.seedSet {
		seed = ensemble.EntropySeed()
	}

	d := &Driver{
		HookableBase:    sim.NewHookableBase(),
		runID:           sim.NewRunID(),
		seed:            seed,
		engine:          b.engine,
		timestep:        b.timestep,
		steps:           b.steps,
		snapshotCadence: b.snapshotCadence,
		stepper:         sim.NewSerialEngine(),
		monitor:         b.monitor,
		log:             b.log,
	}

	sink, err := collision.NewStatsSink(b.statsWriter, b.cadence)
	if err != nil {
		return nil, err
	}
	d.sink = sink

	if err := b.attachRecorder(d); err != nil {
		return nil, err
	}

	err = b.engine.InsertResources(physics.Resources{
		Timestep:   b.timestep,
		Collisions: b.collisions,
		Volume:     b.volume,
	})
	if err != nil {
		return nil, err
	}

	if err := b.buildBeams(d); err != nil {
		return nil, err
	}

	if err := b.buildEnsemble(d); err != nil {
		return nil, err
	}

	b.attachMonitor(d)

	if b.logEvents {
		d.stepper.AcceptHook(sim.NewEventLogger(d.log))
	}

	d.log.WithFields(logrus.Fields{
		"run":       d.runID,
		"seed":      d.seed,
		"steps":     d.steps,
		"timestep":  d.timestep,
		"particles": d.particles,
		"beams":     len(d.beams),
		"cadence":   b.cadence,
	}).Info("Run configured.")

	return d, nil
}

func (b Builder) buildBeams(d *Driver) error {
	for _, beam := range b.beams {
		id := beam.id
		target := ramp.TargetFunc[trap.GaussianBeam](
			func(v trap.GaussianBeam) error {
				return b.engine.SetTrapParameter(id, v)
			})

		e := ramp.NewEvaluator(beam.table.Clone(), target)
		if err := e.Apply(0); err != nil {
			return err
		}

		d.beams = append(d.beams, beamEvaluator{id: id, evaluator: e})
	}

	return nil
}

func (b Builder) buildEnsemble(d *Driver) error {
	rng := ensemble.NewSource(d.seed)

	particles, err := b.sampler.Generate(rng, b.particleCount)
	if err != nil {
		return err
	}

	for _, p := range particles {
		if _, err := b.engine.CreateParticle(p); err != nil {
			return err
		}
	}

	d.particles = len(particles)

	return nil
}

func (b Builder) attachRecorder(d *Driver) error {
	if b.recorder == nil {
		return nil
	}

	if _, err := d.sink.WithDataRecorder(b.recorder); err != nil {
		return err
	}

	runInfo, err := datarecording.NewRunInfoRecorder(b.recorder)
	if err != nil {
		return fmt.Errorf("%w: %w", sim.ErrIO, err)
	}

	if err := b.recorder.CreateTable(trapPowerTable, trapPowerEntry{}); err != nil {
		return fmt.Errorf("%w: %w", sim.ErrIO, err)
	}

	if snapshotter, ok := b.engine.(physics.Snapshotter); ok &&
		b.snapshotCadence > 0 {
		err := b.recorder.CreateTable(particleStateTable, particleStateEntry{})
		if err != nil {
			return fmt.Errorf("%w: %w", sim.ErrIO, err)
		}

		d.snapshotter = snapshotter
	}

	d.recorder = b.recorder
	d.runInfo = runInfo

	return nil
}

func (b Builder) attachMonitor(d *Driver) {
	if b.monitor == nil {
		return
	}

	b.monitor.RegisterEngine(d.stepper)
	b.monitor.RegisterStatus(monitoring.StatusFunc(func() any {
		status := d.Status()
		return &status
	}))

	d.progress = b.monitor.CreateProgressBar("Steps", uint64(d.steps))
	d.stepper.AcceptHook(monitoring.StepProgressHook{Bar: d.progress})
}
