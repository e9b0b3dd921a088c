package sim

import (
	"math/rand"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("EventQueueImpl", func() {
	var queue *EventQueueImpl

	BeforeEach(func() {
		queue = NewEventQueue()
	})

	It("should pop in time order", func() {
		numEvents := 100
		for i := 0; i < numEvents; i++ {
			queue.Push(MakeStepEvent(nil, rand.Intn(1000), 1e-6))
		}

		Expect(queue.Len()).To(Equal(numEvents))

		now := VTimeInSec(-1)
		for queue.Len() > 0 {
			evt := queue.Pop()
			Expect(evt.Time() >= now).To(BeTrue())
			now = evt.Time()
		}
	})

	It("should keep push order among same-time events", func() {
		first := MakeStepEvent(nil, 3, 1e-6)
		second := MakeStepEvent(nil, 3, 1e-6)
		earlier := MakeStepEvent(nil, 1, 1e-6)

		queue.Push(first)
		queue.Push(second)
		queue.Push(earlier)

		Expect(queue.Peek()).To(Equal(earlier))
		Expect(queue.Pop()).To(Equal(earlier))
		Expect(queue.Pop()).To(Equal(first))
		Expect(queue.Pop()).To(Equal(second))
	})
})
