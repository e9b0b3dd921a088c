package sim

import (
	"errors"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"go.uber.org/mock/gomock"
)

var _ = Describe("SerialEngine", func() {
	var (
		mockCtrl *gomock.Controller
		engine   *SerialEngine
	)

	BeforeEach(func() {
		mockCtrl = gomock.NewController(GinkgoT())
		engine = NewSerialEngine()
	})

	AfterEach(func() {
		mockCtrl.Finish()
	})

	It("should run step events in order", func() {
		handler := NewMockHandler(mockCtrl)
		evt0 := MakeStepEvent(handler, 0, 1e-6)
		evt1 := MakeStepEvent(handler, 1, 1e-6)
		evt2 := MakeStepEvent(handler, 2, 1e-6)

		handleEvt0 := handler.EXPECT().Handle(evt0).Do(func(e Event) {
			engine.Schedule(evt2)
			engine.Schedule(evt1)
		})
		handleEvt1 := handler.EXPECT().Handle(evt1).After(handleEvt0)
		handler.EXPECT().Handle(evt2).After(handleEvt1)

		engine.Schedule(evt0)

		Expect(engine.Run()).To(Succeed())
		Expect(engine.CurrentTime()).To(Equal(VTimeInSec(2 * 1e-6)))
	})

	It("should handle secondary events after primary ones", func() {
		handler1 := NewMockHandler(mockCtrl)
		handler2 := NewMockHandler(mockCtrl)
		evt1 := MakeSecondaryStepEvent(handler1, 2, 1.0)
		evt2 := MakeStepEvent(handler2, 2, 1.0)

		handleEvt2 := handler2.EXPECT().Handle(evt2)
		handler1.EXPECT().Handle(evt1).After(handleEvt2)

		engine.Schedule(evt1)
		engine.Schedule(evt2)

		Expect(engine.Run()).To(Succeed())
	})

	It("should stop at the first handler error", func() {
		handler := NewMockHandler(mockCtrl)
		evt0 := MakeStepEvent(handler, 0, 1.0)
		evt1 := MakeStepEvent(handler, 1, 1.0)
		failure := errors.New("disk full")

		handler.EXPECT().Handle(evt0).Return(failure)

		engine.Schedule(evt0)
		engine.Schedule(evt1)

		err := engine.Run()

		Expect(err).To(MatchError(failure))
		Expect(engine.CurrentTime()).To(Equal(VTimeInSec(0)))
	})

	It("should invoke hooks around each event", func() {
		handler := NewMockHandler(mockCtrl)
		hook := NewMockHook(mockCtrl)
		evt := MakeStepEvent(handler, 0, 1.0)
		engine.AcceptHook(hook)

		before := hook.EXPECT().Func(HookCtx{
			Domain: engine, Pos: HookPosBeforeEvent, Item: evt,
		})
		handling := handler.EXPECT().Handle(evt).After(before)
		hook.EXPECT().Func(HookCtx{
			Domain: engine, Pos: HookPosAfterEvent, Item: evt,
		}).After(handling)

		engine.Schedule(evt)

		Expect(engine.Run()).To(Succeed())
	})

	It("should panic when scheduling in the past", func() {
		handler := NewMockHandler(mockCtrl)
		evt := MakeStepEvent(handler, 5, 1.0)
		handler.EXPECT().Handle(evt).Do(func(e Event) {
			Expect(func() {
				engine.Schedule(MakeStepEvent(handler, 4, 1.0))
			}).To(Panic())
		})

		engine.Schedule(evt)

		Expect(engine.Run()).To(Succeed())
	})

	It("should pause and continue", func() {
		engine.Pause()
		Expect(engine.IsPaused()).To(BeTrue())

		engine.Continue()
		Expect(engine.IsPaused()).To(BeFalse())
	})
})
