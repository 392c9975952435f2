package protocol

import (
	"bytes"
	"context"
	"encoding/binary"
	"math"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/sarchlab/wifictl/shm"
)

// answer serves n exchanges on the control side, replying with f(env).
func answer(
	ctrl *ControlEndpoint,
	n int,
	f func(EnvironmentMessage) float64,
) <-chan []EnvironmentMessage {
	done := make(chan []EnvironmentMessage, 1)

	go func() {
		defer GinkgoRecover()

		ctx := context.Background()
		var seen []EnvironmentMessage
		for i := 0; i < n; i++ {
			in, err := ctrl.BeginReceive(ctx)
			Expect(err).NotTo(HaveOccurred())
			env := *in
			Expect(ctrl.EndReceive()).To(Succeed())

			out, err := ctrl.BeginSend(ctx)
			Expect(err).NotTo(HaveOccurred())
			out.NewTxPower = f(env)
			Expect(ctrl.EndSend()).To(Succeed())

			seen = append(seen, env)
		}

		done <- seen
	}()

	return done
}

var _ = Describe("Messages", func() {
	It("should keep the wire layout", func() {
		env := EnvironmentMessage{
			PosX:           1,
			PosY:           2,
			Distance:       3,
			DLThroughput:   4,
			ULThroughput:   5,
			CurrentTxPower: 16,
			StationID:      7,
			SimTime:        0.25,
		}

		buf, err := binary.Append(nil, binary.LittleEndian, &env)
		Expect(err).NotTo(HaveOccurred())

		Expect(buf).To(HaveLen(EnvironmentMessageSize))
		Expect(math.Float64frombits(binary.LittleEndian.Uint64(buf[24:]))).
			To(Equal(4.0))
		Expect(int32(binary.LittleEndian.Uint32(buf[40:]))).To(Equal(int32(16)))
		Expect(int32(binary.LittleEndian.Uint32(buf[44:]))).To(Equal(int32(7)))
		Expect(math.Float64frombits(binary.LittleEndian.Uint64(buf[48:]))).
			To(Equal(0.25))
	})
})

var _ = Describe("SyncExchanger", func() {
	var (
		simSide  *SimulationEndpoint
		ctrlSide *ControlEndpoint
		x        *SyncExchanger
	)

	BeforeEach(func() {
		simSide, ctrlSide = NewInMemoryPair(shm.DefaultConfig())
		x = NewSyncExchanger(simSide)
	})

	It("should return the answer of the control process", func() {
		done := answer(ctrlSide, 1, func(env EnvironmentMessage) float64 {
			return float64(env.StationID) + 0.5
		})

		act, err := x.Exchange(context.Background(), EnvironmentMessage{StationID: 3})

		Expect(err).NotTo(HaveOccurred())
		Expect(act.NewTxPower).To(Equal(3.5))
		Eventually(done).Should(Receive(HaveLen(1)))
	})

	It("should deliver the message byte for byte", func() {
		env := EnvironmentMessage{
			PosX:           -0.123456789,
			PosY:           math.SmallestNonzeroFloat64,
			Distance:       math.MaxFloat64,
			DLThroughput:   math.Inf(1),
			ULThroughput:   math.Copysign(0, -1),
			CurrentTxPower: math.MinInt32,
			StationID:      math.MaxInt32,
			SimTime:        49.75,
		}
		done := answer(ctrlSide, 1, func(EnvironmentMessage) float64 { return 0 })

		_, err := x.Exchange(context.Background(), env)
		Expect(err).NotTo(HaveOccurred())

		var seen []EnvironmentMessage
		Eventually(done).Should(Receive(&seen))

		want, _ := binary.Append(nil, binary.LittleEndian, &env)
		got, _ := binary.Append(nil, binary.LittleEndian, &seen[0])
		Expect(bytes.Equal(got, want)).To(BeTrue())
	})

	It("should serialize consecutive exchanges", func() {
		done := answer(ctrlSide, 5, func(env EnvironmentMessage) float64 {
			return env.SimTime
		})

		for i := 0; i < 5; i++ {
			act, err := x.Exchange(context.Background(),
				EnvironmentMessage{StationID: int32(i), SimTime: float64(i)})
			Expect(err).NotTo(HaveOccurred())
			Expect(act.NewTxPower).To(Equal(float64(i)))
		}

		var seen []EnvironmentMessage
		Eventually(done).Should(Receive(&seen))
		for i, env := range seen {
			Expect(env.StationID).To(Equal(int32(i)))
		}
	})

	It("should report a stalled peer", func() {
		ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
		defer cancel()

		_, err := x.Exchange(ctx, EnvironmentMessage{})

		Expect(err).To(MatchError(shm.ErrPeerStall))
	})

	It("should panic on a protocol violation", func() {
		_, err := simSide.BeginSend(context.Background())
		Expect(err).NotTo(HaveOccurred())

		Expect(func() {
			_, _ = x.Exchange(context.Background(), EnvironmentMessage{})
		}).To(Panic())
	})

	It("should raise the finished flag", func() {
		Expect(x.Finish()).To(Succeed())
		Expect(ctrlSide.Finished()).To(BeTrue())
	})
})

var _ = Describe("Open", func() {
	It("should connect a creator and an attacher", func() {
		cfg := shm.DefaultConfig()
		cfg.Dir = GinkgoT().TempDir()

		ctrlCfg := cfg
		ctrlCfg.IsMemoryCreator = true
		ctrlSide, err := OpenControlSide(context.Background(), ctrlCfg)
		Expect(err).NotTo(HaveOccurred())
		defer ctrlSide.Close()

		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		simSide, err := OpenSimulationSide(ctx, cfg)
		Expect(err).NotTo(HaveOccurred())
		defer simSide.Close()

		done := answer(ctrlSide, 1, func(env EnvironmentMessage) float64 {
			return env.Distance * 2
		})

		act, err := NewSyncExchanger(simSide).Exchange(ctx,
			EnvironmentMessage{Distance: 1.25})
		Expect(err).NotTo(HaveOccurred())
		Expect(act.NewTxPower).To(Equal(2.5))
		Eventually(done).Should(Receive())
	})
})
