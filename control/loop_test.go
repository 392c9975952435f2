package control

import (
	"bytes"
	"context"
	"fmt"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"go.uber.org/mock/gomock"

	"github.com/sarchlab/wifictl/logging"
	"github.com/sarchlab/wifictl/protocol"
	"github.com/sarchlab/wifictl/shm"
	"github.com/sarchlab/wifictl/sim"
	"github.com/sarchlab/wifictl/telemetry"
	"github.com/sarchlab/wifictl/wifi"
)

type fakeNode struct {
	pos      wifi.Vector
	received uint64
}

func (n *fakeNode) Position() wifi.Vector { return n.pos }
func (n *fakeNode) Received() uint64      { return n.received }

type fakeRadio struct {
	start, end float64
	sets       int
}

func (r *fakeRadio) TxPowerStart() float64 { return r.start }
func (r *fakeRadio) TxPowerEnd() float64   { return r.end }
func (r *fakeRadio) SetTxPowerStart(dbm float64) {
	r.start = dbm
	r.sets++
}
func (r *fakeRadio) SetTxPowerEnd(dbm float64) { r.end = dbm }

// scriptedExchanger answers every exchange with respond(env) and records what
// it saw.
type scriptedExchanger struct {
	seen    []protocol.EnvironmentMessage
	respond func(env protocol.EnvironmentMessage) float64
}

func (x *scriptedExchanger) Exchange(
	_ context.Context,
	env protocol.EnvironmentMessage,
) (protocol.ActionMessage, error) {
	x.seen = append(x.seen, env)

	power := 15.0
	if x.respond != nil {
		power = x.respond(env)
	}

	return protocol.ActionMessage{NewTxPower: power}, nil
}

func newCollector(ap *fakeNode, n int) (*telemetry.Collector, []*fakeNode) {
	stations := make([]*fakeNode, n)
	nodes := make([]telemetry.Node, n)
	for i := range stations {
		stations[i] = &fakeNode{pos: wifi.Vector{X: float64(i + 1)}}
		nodes[i] = telemetry.Node{Locator: stations[i], Counter: stations[i]}
	}

	return telemetry.NewCollector(
		telemetry.Node{Locator: ap, Counter: ap}, nodes, 1472), stations
}

var _ = Describe("Loop", func() {
	var (
		mockCtrl  *gomock.Controller
		engine    *sim.SerialEngine
		ap        *fakeNode
		stations  []*fakeNode
		collector *telemetry.Collector
		radio     *fakeRadio
		exchanger *scriptedExchanger
	)

	BeforeEach(func() {
		mockCtrl = gomock.NewController(GinkgoT())
		engine = sim.NewSerialEngine()
		ap = &fakeNode{}
		collector, stations = newCollector(ap, 3)
		radio = &fakeRadio{start: 16, end: 16}
		exchanger = &scriptedExchanger{}
	})

	AfterEach(func() {
		mockCtrl.Finish()
	})

	build := func() Builder {
		return MakeBuilder().
			WithEngine(engine).
			WithExchanger(exchanger).
			WithCollector(collector).
			WithRadio(radio)
	}

	It("should start idle and schedule the first cycle one interval ahead", func() {
		loop := build().WithInterval(0.25).Build("Loop")
		Expect(loop.State()).To(Equal(StateIdle))

		loop.Start()

		Expect(loop.State()).To(Equal(StateScheduled))
		engine.StopAt(0.3)
		Expect(engine.Run()).To(Succeed())
		Expect(exchanger.seen).To(HaveLen(3))
		Expect(exchanger.seen[0].SimTime).To(Equal(0.25))
	})

	It("should panic when started twice", func() {
		loop := build().Build("Loop")
		loop.Start()

		Expect(func() { loop.Start() }).To(Panic())
	})

	It("should exchange once per station and cycle", func() {
		loop := build().WithInterval(0.25).WithHorizon(2).Build("Loop")
		loop.Start()
		engine.StopAt(2)

		Expect(engine.Run()).To(Succeed())

		const cycles = 7
		Expect(exchanger.seen).To(HaveLen(3 * cycles))

		pairs := map[string]bool{}
		for i, env := range exchanger.seen {
			cycle := i / 3
			Expect(env.StationID).To(Equal(int32(i % 3)))
			Expect(env.SimTime).To(Equal(0.25 * float64(cycle+1)))
			pairs[fmt.Sprintf("%d/%v", env.StationID, env.SimTime)] = true
		}
		Expect(pairs).To(HaveLen(3 * cycles))
		Expect(loop.Status().Exchanges).To(Equal(3 * cycles))
		Expect(loop.Status().Cycles).To(Equal(cycles))
	})

	It("should apply the answer of the last station", func() {
		radioMock := NewMockRadioControl(mockCtrl)
		exchangerMock := NewMockExchanger(mockCtrl)
		collector, _ = newCollector(ap, 4)

		radioMock.EXPECT().TxPowerStart().Return(16.0206).AnyTimes()
		gomock.InOrder(
			exchangerMock.EXPECT().Exchange(gomock.Any(), gomock.Any()).
				Return(protocol.ActionMessage{NewTxPower: 30}, nil),
			exchangerMock.EXPECT().Exchange(gomock.Any(), gomock.Any()).
				Return(protocol.ActionMessage{NewTxPower: 1}, nil),
			exchangerMock.EXPECT().Exchange(gomock.Any(), gomock.Any()).
				Return(protocol.ActionMessage{NewTxPower: 25}, nil),
			exchangerMock.EXPECT().Exchange(gomock.Any(), gomock.Any()).
				Return(protocol.ActionMessage{NewTxPower: 7.5}, nil),
			radioMock.EXPECT().SetTxPowerStart(7.5),
			radioMock.EXPECT().SetTxPowerEnd(7.5),
		)

		loop := MakeBuilder().
			WithEngine(engine).
			WithExchanger(exchangerMock).
			WithCollector(collector).
			WithRadio(radioMock).
			WithInterval(1).
			WithHorizon(1).
			Build("Loop")
		loop.Start()

		Expect(engine.Run()).To(Succeed())
		Expect(loop.State()).To(Equal(StateStopped))
		Expect(loop.Status().LastTxPower).To(Equal(7.5))
	})

	It("should report the power from before the cycle to every station", func() {
		exchanger.respond = func(env protocol.EnvironmentMessage) float64 {
			return float64(10*env.StationID) + env.SimTime
		}
		loop := build().WithInterval(1).WithHorizon(2).Build("Loop")
		loop.Start()

		Expect(engine.Run()).To(Succeed())

		Expect(exchanger.seen).To(HaveLen(6))
		for _, env := range exchanger.seen[:3] {
			Expect(env.CurrentTxPower).To(Equal(int32(16)))
		}
		for _, env := range exchanger.seen[3:] {
			Expect(env.CurrentTxPower).To(Equal(int32(21)))
		}
		Expect(radio.start).To(Equal(22.0))
		Expect(radio.end).To(Equal(22.0))
		Expect(radio.sets).To(Equal(2))
	})

	It("should share the uplink figure across the stations of a cycle", func() {
		ap.received = 14720
		stations[1].received = 100
		loop := build().WithInterval(1).WithHorizon(1).Build("Loop")
		loop.Start()

		Expect(engine.Run()).To(Succeed())

		ul := float64(14720*1472) * 8 / 1e6
		for _, env := range exchanger.seen {
			Expect(env.ULThroughput).To(Equal(ul))
		}
		Expect(exchanger.seen[0].DLThroughput).To(BeZero())
		Expect(exchanger.seen[1].DLThroughput).To(Equal(float64(100*1472) * 8 / 1e6))
		Expect(exchanger.seen[2].Distance).To(Equal(3.0))
	})

	Context("horizon", func() {
		BeforeEach(func() {
			collector, _ = newCollector(ap, 1)
		})

		It("should stop before the horizon when the engine stops there", func() {
			loop := build().WithInterval(0.25).WithHorizon(50).Build("Loop")
			loop.Start()
			engine.StopAt(50)

			Expect(engine.Run()).To(Succeed())

			Expect(exchanger.seen).To(HaveLen(199))
			Expect(exchanger.seen[198].SimTime).To(Equal(49.75))
		})

		It("should reschedule while now+interval <= horizon when nothing stops the engine", func() {
			loop := build().WithInterval(0.25).WithHorizon(50).Build("Loop")
			loop.Start()

			Expect(engine.Run()).To(Succeed())

			Expect(exchanger.seen).To(HaveLen(200))
			last := exchanger.seen[199].SimTime
			Expect(last).To(Equal(50.0))
			Expect(last + 0.25).To(BeNumerically(">", 50))
			Expect(loop.State()).To(Equal(StateStopped))
			Expect(engine.CurrentTime()).To(Equal(sim.VTimeInSec(50)))
		})

		It("should keep simulated time non-decreasing", func() {
			loop := build().WithInterval(0.1).WithHorizon(3).Build("Loop")
			loop.Start()

			Expect(engine.Run()).To(Succeed())

			for i := 1; i < len(exchanger.seen); i++ {
				Expect(exchanger.seen[i].SimTime).
					To(BeNumerically(">=", exchanger.seen[i-1].SimTime))
			}
		})
	})

	It("should keep running without an AP radio", func() {
		var buf bytes.Buffer
		logger := logging.NewWithWriter(logging.Config{Level: "debug", Format: "json"}, &buf)

		loop := MakeBuilder().
			WithEngine(engine).
			WithExchanger(exchanger).
			WithCollector(collector).
			WithAPDevice(wifi.NewDevice("AP", "192.168.1.1", nil,
				wifi.NewConstantPosition(wifi.Vector{}))).
			WithInterval(0.5).
			WithHorizon(1.5).
			WithLogger(logger).
			Build("Loop")
		loop.Start()

		Expect(engine.Run()).To(Succeed())

		Expect(exchanger.seen).To(HaveLen(9))
		for _, env := range exchanger.seen {
			Expect(env.CurrentTxPower).To(Equal(int32(20)))
		}
		Expect(loop.State()).To(Equal(StateStopped))
		Expect(loop.Status().RadioPresent).To(BeFalse())
		Expect(buf.String()).To(ContainSubstring(`"handle":"ap_radio"`))
		Expect(buf.String()).To(ContainSubstring(`"component":"Loop"`))
	})

	It("should resolve the radio of an AP device", func() {
		dev := wifi.NewDevice("AP", "192.168.1.1", wifi.NewPhy(),
			wifi.NewConstantPosition(wifi.Vector{}))
		exchanger.respond = func(protocol.EnvironmentMessage) float64 { return 3 }

		loop := build().WithAPDevice(dev).WithInterval(1).WithHorizon(1).Build("Loop")
		loop.Start()
		Expect(engine.Run()).To(Succeed())

		radio, ok := dev.Radio()
		Expect(ok).To(BeTrue())
		Expect(radio.TxPowerStart()).To(Equal(3.0))
		Expect(radio.TxPowerEnd()).To(Equal(3.0))
		Expect(exchanger.seen[0].CurrentTxPower).To(Equal(int32(16)))
	})

	It("should stop the engine when an exchange fails", func() {
		exchangerMock := NewMockExchanger(mockCtrl)
		gomock.InOrder(
			exchangerMock.EXPECT().Exchange(gomock.Any(), gomock.Any()).
				Return(protocol.ActionMessage{NewTxPower: 5}, nil),
			exchangerMock.EXPECT().Exchange(gomock.Any(), gomock.Any()).
				Return(protocol.ActionMessage{}, shm.ErrPeerStall),
		)

		loop := build().WithExchanger(exchangerMock).Build("Loop")
		loop.Start()

		err := engine.Run()

		Expect(err).To(MatchError(shm.ErrPeerStall))
		Expect(err.Error()).To(ContainSubstring("station 1"))
		Expect(loop.State()).To(Equal(StateStopped))
		Expect(radio.sets).To(BeZero())
	})

	It("should bound each exchange with the timeout", func() {
		exchangerMock := NewMockExchanger(mockCtrl)
		exchangerMock.EXPECT().Exchange(gomock.Any(), gomock.Any()).
			DoAndReturn(func(
				ctx context.Context,
				_ protocol.EnvironmentMessage,
			) (protocol.ActionMessage, error) {
				_, ok := ctx.Deadline()
				Expect(ok).To(BeTrue())

				return protocol.ActionMessage{NewTxPower: 1}, nil
			}).Times(3)

		loop := build().
			WithExchanger(exchangerMock).
			WithExchangeTimeout(1e9).
			WithInterval(1).
			WithHorizon(1).
			Build("Loop")
		loop.Start()

		Expect(engine.Run()).To(Succeed())
	})

	It("should run exchanges under the loop context", func() {
		type key struct{}
		parent := context.WithValue(context.Background(), key{}, "run")

		exchangerMock := NewMockExchanger(mockCtrl)
		exchangerMock.EXPECT().Exchange(gomock.Any(), gomock.Any()).
			DoAndReturn(func(
				ctx context.Context,
				_ protocol.EnvironmentMessage,
			) (protocol.ActionMessage, error) {
				Expect(ctx.Value(key{})).To(Equal("run"))

				return protocol.ActionMessage{NewTxPower: 1}, nil
			}).Times(3)

		loop := build().
			WithExchanger(exchangerMock).
			WithContext(parent).
			WithInterval(1).
			WithHorizon(1).
			Build("Loop")
		loop.Start()

		Expect(engine.Run()).To(Succeed())
	})

	It("should invoke hooks for every exchange and cycle", func() {
		var records []ExchangeRecord
		var cycles []CycleRecord

		loop := build().WithInterval(1).WithHorizon(3).Build("Loop")
		loop.AcceptHook(sim.HookFunc(func(ctx sim.HookCtx) {
			switch ctx.Pos {
			case HookPosExchange:
				records = append(records, ctx.Item.(ExchangeRecord))
			case HookPosCycleEnd:
				cycles = append(cycles, ctx.Item.(CycleRecord))
			}
		}))
		loop.Start()

		Expect(engine.Run()).To(Succeed())

		Expect(records).To(HaveLen(9))
		Expect(records[4].Cycle).To(Equal(2))
		Expect(records[4].Env.StationID).To(Equal(int32(1)))
		Expect(records[4].Action.NewTxPower).To(Equal(15.0))
		Expect(cycles).To(HaveLen(3))
		Expect(cycles[0].OldTxPower).To(Equal(16.0))
		Expect(cycles[0].NewTxPower).To(Equal(15.0))
		Expect(cycles[2].Time).To(Equal(sim.VTimeInSec(3)))
		Expect(cycles[2].Applied).To(BeTrue())
	})

	It("should refuse to build without an exchanger", func() {
		Expect(func() {
			MakeBuilder().WithEngine(engine).WithCollector(collector).Build("Loop")
		}).To(Panic())
	})
})
