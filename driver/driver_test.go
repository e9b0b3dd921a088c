package driver

import (
	"bytes"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strconv"
	"strings"
	"sync"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/sirupsen/logrus"
	"go.uber.org/mock/gomock"

	"github.com/sarchlab/trapsim/collision"
	"github.com/sarchlab/trapsim/datarecording"
	"github.com/sarchlab/trapsim/ensemble"
	"github.com/sarchlab/trapsim/geom"
	"github.com/sarchlab/trapsim/monitoring"
	"github.com/sarchlab/trapsim/physics"
	"github.com/sarchlab/trapsim/physics/ballistic"
	"github.com/sarchlab/trapsim/ramp"
	"github.com/sarchlab/trapsim/sim"
	"github.com/sarchlab/trapsim/trap"
)

type failingWriter struct{}

func (failingWriter) Write([]byte) (int, error) {
	return 0, errors.New("disk full")
}

type flushRecorder struct {
	steps []int
}

func (h *flushRecorder) Func(ctx sim.HookCtx) {
	if ctx.Pos == sim.HookPosStatsFlush {
		h.steps = append(h.steps, ctx.Detail.(int))
	}
}

func newTestSampler() *ensemble.Sampler {
	horizontal, err := ensemble.NewGaussian2D(
		[2]float64{}, [2][2]float64{{1e-10, 0}, {0, 1e-4}})
	Expect(err).NotTo(HaveOccurred())

	vertical, err := ensemble.NewGaussian2D(
		[2]float64{}, [2][2]float64{{5e-11, 0}, {0, 1e-4}})
	Expect(err).NotTo(HaveOccurred())

	pol := trap.CalculatePolarizability(1064e-9, 461e-9, 2.1e8)
	s, err := ensemble.NewSampler(horizontal, vertical, 87, pol)
	Expect(err).NotTo(HaveOccurred())

	return s
}

func newBeamTable(steps int, dt float64) *ramp.Table[trap.GaussianBeam] {
	schedule := ramp.TwoPhaseSchedule{
		Steps:        steps,
		Timestep:     dt,
		InitialPower: 7,
		FinalPower:   0.25,
		Rate:         ramp.LinearRate(7, 0.25, steps, dt),
	}

	beam := trap.NewGaussianBeam(geom.UnitX, 1064e-9, 40e-6, 7)
	frames, err := ramp.Keyframes(schedule, beam.WithPower)
	Expect(err).NotTo(HaveOccurred())

	table, err := ramp.NewTable(frames)
	Expect(err).NotTo(HaveOccurred())

	return table
}

func testParameters() collision.Parameters {
	return collision.Parameters{
		Macroparticle:  4e2,
		BoxNumber:      1000,
		BoxWidth:       1e-6,
		Sigma:          1.95e-19,
		CollisionLimit: 10000,
	}
}

func testVolume() collision.SimulationVolume {
	return collision.SimulationVolume{
		Shape: geom.Sphere{Radius: 60e-6},
		Type:  collision.Inclusive,
	}
}

func quietLogger() *logrus.Logger {
	l := logrus.New()
	l.SetOutput(GinkgoWriter)
	l.SetLevel(logrus.DebugLevel)

	return l
}

func ballisticBuilder(steps int, out *bytes.Buffer) Builder {
	return MakeBuilder().
		WithEngine(ballistic.NewEngine()).
		WithTimestep(1e-6).
		WithSteps(steps).
		WithStatsCadence(50).
		WithStatsWriter(out).
		WithSampler(newTestSampler()).
		WithParticleCount(100).
		WithSeed(7).
		WithBeam(0, newBeamTable(steps, 1e-6)).
		WithCollisionParameters(testParameters()).
		WithVolume(testVolume()).
		WithLogger(quietLogger())
}

var _ = Describe("Builder", func() {
	It("should require an engine", func() {
		_, err := MakeBuilder().
			WithSampler(newTestSampler()).
			WithStatsWriter(new(bytes.Buffer)).
			WithTimestep(1e-6).
			Build()
		Expect(err).To(MatchError(sim.ErrConfiguration))
	})

	It("should require a positive timestep", func() {
		_, err := ballisticBuilder(10, new(bytes.Buffer)).
			WithTimestep(0).
			Build()
		Expect(err).To(MatchError(sim.ErrConfiguration))
	})

	It("should reject a beam added twice", func() {
		b := ballisticBuilder(10, new(bytes.Buffer))
		_, err := b.WithBeam(0, newBeamTable(10, 1e-6)).Build()
		Expect(err).To(MatchError(sim.ErrConfiguration))
	})

	It("should reject a non-positive cadence", func() {
		_, err := ballisticBuilder(10, new(bytes.Buffer)).
			WithStatsCadence(0).
			Build()
		Expect(err).To(MatchError(sim.ErrConfiguration))
	})

	It("should not share beams between derived builders", func() {
		base := MakeBuilder().WithBeam(0, newBeamTable(10, 1e-6))
		a := base.WithBeam(1, newBeamTable(10, 1e-6))
		b := base.WithBeam(2, newBeamTable(10, 1e-6))

		Expect(a.beams[1].id).To(Equal(1))
		Expect(b.beams[1].id).To(Equal(2))
	})
})

var _ = Describe("Driver", func() {
	var (
		mockCtrl *gomock.Controller
		engine   *MockEngine
	)

	BeforeEach(func() {
		mockCtrl = gomock.NewController(GinkgoT())
		engine = NewMockEngine(mockCtrl)
	})

	AfterEach(func() {
		mockCtrl.Finish()
	})

	mockBuilder := func(steps int, out *bytes.Buffer) Builder {
		return MakeBuilder().
			WithEngine(engine).
			WithTimestep(1e-3).
			WithSteps(steps).
			WithStatsCadence(2).
			WithStatsWriter(out).
			WithSampler(newTestSampler()).
			WithParticleCount(2).
			WithSeed(1).
			WithBeam(4, newBeamTable(steps, 1e-3)).
			WithCollisionParameters(testParameters()).
			WithVolume(testVolume()).
			WithLogger(quietLogger())
	}

	It("should configure the engine before the first step", func() {
		gomock.InOrder(
			engine.EXPECT().InsertResources(physics.Resources{
				Timestep:   1e-3,
				Collisions: testParameters(),
				Volume:     testVolume(),
			}).Return(nil),
			engine.EXPECT().
				SetTrapParameter(4, gomock.Any()).
				DoAndReturn(func(_ int, b trap.GaussianBeam) error {
					Expect(b.Power).To(Equal(7.0))
					return nil
				}),
			engine.EXPECT().CreateParticle(gomock.Any()).Return(physics.Handle(0), nil),
			engine.EXPECT().CreateParticle(gomock.Any()).Return(physics.Handle(1), nil),
		)

		d, err := mockBuilder(4, new(bytes.Buffer)).Build()
		Expect(err).NotTo(HaveOccurred())
		Expect(d.State()).To(Equal(Configuring))
		Expect(d.Seed()).To(Equal(uint64(1)))
	})

	It("should apply the ramps before stepping the engine", func() {
		engine.EXPECT().InsertResources(gomock.Any()).Return(nil)
		engine.EXPECT().SetTrapParameter(4, gomock.Any()).Return(nil)
		engine.EXPECT().CreateParticle(gomock.Any()).Return(physics.Handle(0), nil).Times(2)

		out := new(bytes.Buffer)
		d, err := mockBuilder(4, out).Build()
		Expect(err).NotTo(HaveOccurred())

		var powers []float64
		var calls []any
		for step := 0; step < 4; step++ {
			calls = append(calls,
				engine.EXPECT().
					SetTrapParameter(4, gomock.Any()).
					DoAndReturn(func(_ int, b trap.GaussianBeam) error {
						powers = append(powers, b.Power)
						return nil
					}),
				engine.EXPECT().
					Step(1e-3).
					Return(collision.StepCounts{
						Collisions: int32(step),
						Atoms:      1,
						Particles:  2,
					}, nil),
			)
		}
		gomock.InOrder(calls...)

		report, err := d.Run()
		Expect(err).NotTo(HaveOccurred())
		Expect(d.State()).To(Equal(Completed))
		Expect(report.Steps).To(Equal(4))
		Expect(report.Particles).To(Equal(2))
		Expect(report.Flushes).To(Equal(1))

		Expect(powers).To(HaveLen(4))
		Expect(powers[0]).To(Equal(7.0))
		Expect(powers[3]).To(Equal(0.25))

		Expect(out.String()).To(Equal("2\r\n0 1\r\n1.00 1.00\r\n2 2\r\n"))
	})

	It("should abort on an engine error", func() {
		engine.EXPECT().InsertResources(gomock.Any()).Return(nil)
		engine.EXPECT().SetTrapParameter(gomock.Any(), gomock.Any()).Return(nil).AnyTimes()
		engine.EXPECT().CreateParticle(gomock.Any()).Return(physics.Handle(0), nil).Times(2)

		failure := errors.New("integration diverged")
		engine.EXPECT().Step(gomock.Any()).Return(collision.StepCounts{}, nil)
		engine.EXPECT().Step(gomock.Any()).Return(collision.StepCounts{}, failure)

		d, err := mockBuilder(10, new(bytes.Buffer)).Build()
		Expect(err).NotTo(HaveOccurred())

		report, err := d.Run()
		Expect(err).To(MatchError(failure))
		Expect(d.State()).To(Equal(Aborted))
		Expect(report.Steps).To(Equal(1))
	})

	It("should register the same ensemble for the same seed", func() {
		collect := func() []ensemble.Particle {
			var particles []ensemble.Particle

			engine.EXPECT().InsertResources(gomock.Any()).Return(nil)
			engine.EXPECT().SetTrapParameter(gomock.Any(), gomock.Any()).Return(nil)
			engine.EXPECT().
				CreateParticle(gomock.Any()).
				DoAndReturn(func(p ensemble.Particle) (physics.Handle, error) {
					particles = append(particles, p)
					return physics.Handle(len(particles) - 1), nil
				}).
				Times(2)

			_, err := mockBuilder(4, new(bytes.Buffer)).WithSeed(99).Build()
			Expect(err).NotTo(HaveOccurred())

			return particles
		}

		Expect(collect()).To(Equal(collect()))
	})
})

var _ = Describe("Driver with the ballistic engine", func() {
	It("should write blocks at 50, 100 and 150 for 200 steps", func() {
		out := new(bytes.Buffer)
		hook := &flushRecorder{}

		d, err := ballisticBuilder(200, out).Build()
		Expect(err).NotTo(HaveOccurred())
		d.AcceptHook(hook)

		report, err := d.Run()
		Expect(err).NotTo(HaveOccurred())
		Expect(report.Steps).To(Equal(200))
		Expect(report.Flushes).To(Equal(3))
		Expect(hook.steps).To(Equal([]int{50, 100, 150}))

		lines := strings.Split(strings.TrimSuffix(out.String(), "\r\n"), "\r\n")
		Expect(lines).To(HaveLen(12))

		for n := 0; n < 3; n++ {
			block := lines[n*4 : n*4+4]
			step := (n + 1) * 50

			Expect(block[0]).To(Equal(strconv.Itoa(step)))
			for _, line := range block[1:] {
				Expect(strings.Fields(line)).To(HaveLen(step))
			}
		}
	})

	It("should leave the beams at the final power", func() {
		engine := ballistic.NewEngine()

		d, err := ballisticBuilder(200, new(bytes.Buffer)).
			WithEngine(engine).
			Build()
		Expect(err).NotTo(HaveOccurred())

		_, err = d.Run()
		Expect(err).NotTo(HaveOccurred())

		beam, ok := engine.Beam(0)
		Expect(ok).To(BeTrue())
		Expect(beam.Power).To(Equal(0.25))
		Expect(engine.NumSteps()).To(Equal(200))
	})

	It("should ramp beams that share a table independently", func() {
		engine := ballistic.NewEngine()
		table := newBeamTable(200, 1e-6)

		d, err := ballisticBuilder(200, new(bytes.Buffer)).
			WithEngine(engine).
			WithBeam(1, table).
			WithBeam(2, table).
			Build()
		Expect(err).NotTo(HaveOccurred())

		_, err = d.Run()
		Expect(err).NotTo(HaveOccurred())

		for _, id := range []int{0, 1, 2} {
			beam, ok := engine.Beam(id)
			Expect(ok).To(BeTrue())
			Expect(beam.Power).To(Equal(0.25))
		}
		Expect(table.Cursor()).To(Equal(0))
	})

	It("should not run twice", func() {
		d, err := ballisticBuilder(10, new(bytes.Buffer)).
			WithEventLogging(true).
			Build()
		Expect(err).NotTo(HaveOccurred())

		_, err = d.Run()
		Expect(err).NotTo(HaveOccurred())

		_, err = d.Run()
		Expect(err).To(HaveOccurred())
	})

	It("should abort with ErrIO when the stats cannot be written", func() {
		d, err := MakeBuilder().
			WithEngine(ballistic.NewEngine()).
			WithTimestep(1e-6).
			WithSteps(200).
			WithStatsWriter(failingWriter{}).
			WithSampler(newTestSampler()).
			WithParticleCount(10).
			WithSeed(7).
			WithCollisionParameters(testParameters()).
			WithVolume(testVolume()).
			WithLogger(quietLogger()).
			Build()
		Expect(err).NotTo(HaveOccurred())

		report, err := d.Run()
		Expect(err).To(MatchError(sim.ErrIO))
		Expect(d.State()).To(Equal(Aborted))
		Expect(report.Steps).To(Equal(50))
		Expect(report.Flushes).To(Equal(0))
	})

	It("should track progress in the monitor", func() {
		m := monitoring.NewMonitor().WithLogger(quietLogger())

		d, err := ballisticBuilder(20, new(bytes.Buffer)).
			WithMonitor(m).
			Build()
		Expect(err).NotTo(HaveOccurred())

		bar := d.progress
		Expect(bar.State().Total).To(Equal(uint64(20)))

		_, err = d.Run()
		Expect(err).NotTo(HaveOccurred())
		Expect(bar.State().Finished).To(Equal(uint64(20)))
	})

	It("should serve a status snapshot while running", func() {
		m := monitoring.NewMonitor().WithLogger(quietLogger())

		d, err := ballisticBuilder(1000, new(bytes.Buffer)).
			WithMonitor(m).
			Build()
		Expect(err).NotTo(HaveOccurred())

		server := httptest.NewServer(m.Router())
		defer server.Close()

		getStatus := func() string {
			rsp, err := http.Get(server.URL + "/api/status")
			Expect(err).NotTo(HaveOccurred())
			defer rsp.Body.Close()

			body, err := io.ReadAll(rsp.Body)
			Expect(err).NotTo(HaveOccurred())

			return string(body)
		}

		done := make(chan struct{})
		var wg sync.WaitGroup
		wg.Add(1)
		go func() {
			defer GinkgoRecover()
			defer wg.Done()

			for {
				select {
				case <-done:
					return
				default:
					getStatus()
				}
			}
		}()

		_, err = d.Run()
		close(done)
		wg.Wait()
		Expect(err).NotTo(HaveOccurred())

		Expect(d.Status()).To(Equal(RunStatus{
			RunID:   d.RunID(),
			State:   "completed",
			Step:    1000,
			Steps:   1000,
			Flushes: 19,
		}))

		body := getStatus()
		Expect(body).To(ContainSubstring("completed"))
		Expect(body).To(ContainSubstring(d.RunID()))
	})

	It("should store the run in the data recorder", func() {
		writer, err := datarecording.New(filepath.Join(GinkgoT().TempDir(), "run"))
		Expect(err).NotTo(HaveOccurred())
		defer writer.Close()

		d, err := ballisticBuilder(200, new(bytes.Buffer)).
			WithDataRecorder(writer).
			WithSnapshotCadence(100).
			Build()
		Expect(err).NotTo(HaveOccurred())

		_, err = d.Run()
		Expect(err).NotTo(HaveOccurred())
		Expect(writer.Flush()).To(Succeed())

		count := func(table string) int {
			var n int
			err := writer.QueryRow("SELECT COUNT(*) FROM " + table).Scan(&n)
			Expect(err).NotTo(HaveOccurred())
			return n
		}

		Expect(count("collision_stats")).To(Equal(200))
		Expect(count("trap_power")).To(Equal(3))
		Expect(count("particle_state")).To(Equal(2 * 100))

		var seed string
		err = writer.
			QueryRow("SELECT Value FROM run_info WHERE Property = 'Seed'").
			Scan(&seed)
		Expect(err).NotTo(HaveOccurred())
		Expect(seed).To(Equal("7"))
	})
})
