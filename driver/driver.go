// Package driver runs one trap simulation: it owns the step loop, pushes the
// ramped beams into the physics engine and collects the collision stats.
package driver

import (
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/sarchlab/trapsim/collision"
	"github.com/sarchlab/trapsim/datarecording"
	"github.com/sarchlab/trapsim/monitoring"
	"github.com/sarchlab/trapsim/physics"
	"github.com/sarchlab/trapsim/ramp"
	"github.com/sarchlab/trapsim/sim"
	"github.com/sarchlab/trapsim/trap"
)

const (
	trapPowerTable     = "trap_power"
	particleStateTable = "particle_state"
)

type trapPowerEntry struct {
	Step  int
	Beam  int
	Power float64
}

type particleStateEntry struct {
	Step     int
	Particle int
	X, Y, Z  float64
	VX       float64
	VY       float64
	VZ       float64
}

type beamEvaluator struct {
	id        int
	evaluator *ramp.Evaluator[trap.GaussianBeam]
}

// RunReport summarizes a finished run.
type RunReport struct {
	RunID     string
	Seed      uint64
	Steps     int
	Particles int
	Flushes   int
	Elapsed   time.Duration
}

// RunStatus is a copy of the progress of a run, safe to read from another
// goroutine.
type RunStatus struct {
	RunID   string
	State   string
	Step    int
	Steps   int
	Flushes int
}

// A Driver steps a physics engine through one run. Each step it writes a
// collision stats block if one is due, applies the beam ramps, advances the
// engine and records the step's collision counts.
type Driver struct {
	*sim.HookableBase

	runID     string
	seed      uint64
	steps     int
	timestep  float64
	particles int

	// Written by the step loop, read by the monitoring server.
	statusLock sync.Mutex
	state      State
	step       int
	flushes    int

	engine  physics.Engine
	stepper *sim.SerialEngine
	beams   []beamEvaluator
	sink    *collision.StatsSink

	recorder        datarecording.DataRecorder
	runInfo         *datarecording.RunInfoRecorder
	snapshotter     physics.Snapshotter
	snapshotCadence int

	monitor  *monitoring.Monitor
	progress *monitoring.ProgressBar
	log      logrus.FieldLogger
}

// State returns the lifecycle stage of the driver.
func (d *Driver) State() State {
	d.statusLock.Lock()
	defer d.statusLock.Unlock()

	return d.state
}

// Status returns a snapshot of the progress of the run.
func (d *Driver) Status() RunStatus {
	d.statusLock.Lock()
	defer d.statusLock.Unlock()

	return RunStatus{
		RunID:   d.runID,
		State:   d.state.String(),
		Step:    d.step,
		Steps:   d.steps,
		Flushes: d.flushes,
	}
}

func (d *Driver) setState(state State) {
	d.statusLock.Lock()
	d.state = state
	d.statusLock.Unlock()
}

// RunID returns the unique id of the run.
func (d *Driver) RunID() string {
	return d.runID
}

// Seed returns the seed of the ensemble random source.
func (d *Driver) Seed() uint64 {
	return d.seed
}

// StepClock returns the event engine that carries the step events.
func (d *Driver) StepClock() *sim.SerialEngine {
	return d.stepper
}

// Sink returns the collision stats sink.
func (d *Driver) Sink() *collision.StatsSink {
	return d.sink
}

// Run executes every step. The first error aborts the run and is returned
// together with the partial report.
func (d *Driver) Run() (RunReport, error) {
	if state := d.State(); state != Configuring {
		return RunReport{}, fmt.Errorf("driver is %s, cannot run again", state)
	}

	d.setState(Running)
	start := time.Now()

	if d.runInfo != nil {
		d.runInfo.Start()
		d.runInfo.Set("Run ID", d.runID)
		d.runInfo.Set("Seed", d.seed)
		d.runInfo.Set("Steps", d.steps)
		d.runInfo.Set("Timestep", d.timestep)
		d.runInfo.Set("Particles", d.particles)
	}

	if d.steps > 0 {
		d.stepper.Schedule(sim.MakeStepEvent(d, 0, d.timestep))
	}

	err := d.stepper.Run()

	report := RunReport{
		RunID:     d.runID,
		Seed:      d.seed,
		Steps:     d.step,
		Particles: d.particles,
		Flushes:   d.flushes,
		Elapsed:   time.Since(start),
	}

	if err != nil {
		d.setState(Aborted)
		d.log.WithError(err).WithField("step", d.step).Error("Run aborted.")

		return report, err
	}

	d.stepper.Finished()
	d.setState(Completed)

	if d.monitor != nil {
		d.monitor.CompleteProgressBar(d.progress)
	}

	if err := d.finishRecording(); err != nil {
		return report, err
	}

	d.log.Infof("Simulation completed in %d ms.", report.Elapsed.Milliseconds())

	return report, nil
}

func (d *Driver) finishRecording() error {
	if d.runInfo == nil {
		return nil
	}

	d.runInfo.Set("Flushes", d.flushes)

	if err := d.runInfo.End(); err != nil {
		return fmt.Errorf("%w: %w", sim.ErrIO, err)
	}

	return nil
}

// Handle runs the step of a step event and schedules the next one.
func (d *Driver) Handle(e sim.Event) error {
	evt, ok := e.(sim.StepEvent)
	if !ok {
		return fmt.Errorf("driver cannot handle event %T", e)
	}

	if err := d.runStep(evt.Step); err != nil {
		return err
	}

	next := evt.Step + 1

	d.statusLock.Lock()
	d.step = next
	d.statusLock.Unlock()

	if next < d.steps {
		d.stepper.Schedule(sim.MakeStepEvent(d, next, d.timestep))
	}

	return nil
}

func (d *Driver) runStep(step int) error {
	flushed, err := d.flushStats(step)
	if err != nil {
		return err
	}

	now := float64(step) * d.timestep
	for _, b := range d.beams {
		if err := b.evaluator.Apply(now); err != nil {
			return fmt.Errorf("step %d, beam %d: %w", step, b.id, err)
		}
	}

	if flushed {
		if err := d.recordTrapPower(step); err != nil {
			return err
		}
	}

	if err := d.recordSnapshot(step); err != nil {
		return err
	}

	counts, err := d.engine.Step(d.timestep)
	if err != nil {
		return fmt.Errorf("step %d: %w", step, err)
	}

	return d.sink.Record(step, counts)
}

func (d *Driver) flushStats(step int) (bool, error) {
	flushed, err := d.sink.Flush(step)
	if err != nil || !flushed {
		return false, err
	}

	d.statusLock.Lock()
	d.flushes++
	d.statusLock.Unlock()
	d.log.WithField("step", step).Debug("Collision stats written.")

	d.InvokeHook(sim.HookCtx{
		Domain: d,
		Pos:    sim.HookPosStatsFlush,
		Item:   d.sink.Tracker(),
		Detail: step,
	})

	return true, nil
}

func (d *Driver) recordTrapPower(step int) error {
	if d.recorder == nil {
		return nil
	}

	for _, b := range d.beams {
		table := b.evaluator.Table()
		power := table.Keyframe(table.Cursor()).Value.Power

		err := d.recorder.InsertData(trapPowerTable, trapPowerEntry{
			Step:  step,
			Beam:  b.id,
			Power: power,
		})
		if err != nil {
			return fmt.Errorf("%w: %w", sim.ErrIO, err)
		}
	}

	return nil
}

func (d *Driver) recordSnapshot(step int) error {
	if d.snapshotter == nil || step%d.snapshotCadence != 0 {
		return nil
	}

	for i, p := range d.snapshotter.Snapshot() {
		err := d.recorder.InsertData(particleStateTable, particleStateEntry{
			Step:     step,
			Particle: i,
			X:        p.Position.X,
			Y:        p.Position.Y,
			Z:        p.Position.Z,
			VX:       p.Velocity.X,
			VY:       p.Velocity.Y,
			VZ:       p.Velocity.Z,
		})
		if err != nil {
			return fmt.Errorf("%w: %w", sim.ErrIO, err)
		}
	}

	return nil
}
