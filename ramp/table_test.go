package ramp

import (
	"errors"
	"math/rand"
	"sort"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/sarchlab/trapsim/sim"
)

var _ = Describe("Table", func() {
	var table *Table[string]

	BeforeEach(func() {
		var err error
		table, err = NewTable([]Keyframe[string]{
			{Time: 1.0, Value: "a"},
			{Time: 2.0, Value: "b"},
			{Time: 2.0, Value: "c"},
			{Time: 4.0, Value: "d"},
		})
		Expect(err).NotTo(HaveOccurred())
	})

	It("should return the first value before the first keyframe", func() {
		Expect(table.Evaluate(0.5)).To(Equal("a"))
		Expect(table.Cursor()).To(Equal(0))
	})

	It("should hold values between keyframes", func() {
		Expect(table.Evaluate(1.0)).To(Equal("a"))
		Expect(table.Evaluate(1.9)).To(Equal("a"))
		Expect(table.Evaluate(3.9)).To(Equal("c"))
		Expect(table.Cursor()).To(Equal(2))
	})

	It("should hold the last value forever", func() {
		Expect(table.Evaluate(4.0)).To(Equal("d"))
		Expect(table.Evaluate(1e9)).To(Equal("d"))
		Expect(table.Cursor()).To(Equal(3))
	})

	It("should skip several keyframes in one query", func() {
		Expect(table.Evaluate(10)).To(Equal("d"))
	})

	It("should not rewind the cursor", func() {
		table.Evaluate(4.0)

		Expect(table.Evaluate(1.0)).To(Equal("d"))
		Expect(table.Cursor()).To(Equal(3))
	})

	It("should clone with an independent cursor", func() {
		table.Evaluate(2.0)
		clone := table.Clone()

		Expect(clone.Cursor()).To(Equal(2))

		clone.Evaluate(5.0)
		Expect(clone.Cursor()).To(Equal(3))
		Expect(table.Cursor()).To(Equal(2))
	})

	It("should reject an empty table", func() {
		_, err := NewTable[string](nil)
		Expect(errors.Is(err, sim.ErrConfiguration)).To(BeTrue())
	})

	It("should reject decreasing keyframe times", func() {
		_, err := NewTable([]Keyframe[int]{
			{Time: 0, Value: 0},
			{Time: 2, Value: 1},
			{Time: 1, Value: 2},
		})
		Expect(err).To(MatchError(sim.ErrConfiguration))
	})

	It("should never go back and never look ahead", func() {
		n := 1000
		frames := make([]Keyframe[int], n)
		times := make([]float64, n)
		for i := range times {
			times[i] = rand.Float64() * 100
		}
		sort.Float64s(times)
		for i := range frames {
			frames[i] = Keyframe[int]{Time: times[i], Value: i}
		}

		ramp, err := NewTable(frames)
		Expect(err).NotTo(HaveOccurred())

		queries := make([]float64, 5000)
		for i := range queries {
			queries[i] = rand.Float64()*120 - 10
		}
		sort.Float64s(queries)

		lastCursor := 0
		for _, q := range queries {
			idx := ramp.Evaluate(q)

			Expect(ramp.Cursor()).To(BeNumerically(">=", lastCursor))
			Expect(idx).To(Equal(ramp.Cursor()))
			if q >= frames[0].Time {
				Expect(frames[idx].Time).To(BeNumerically("<=", q))
			} else {
				Expect(idx).To(Equal(0))
			}
			if idx+1 < n {
				Expect(frames[idx+1].Time).To(BeNumerically(">", q))
			}

			lastCursor = ramp.Cursor()
		}
	})
})
