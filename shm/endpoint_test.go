package shm

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

type envMsg struct {
	X, Y  float64
	Power int32
	ID    int32
	Time  float64
}

type actMsg struct {
	Power float64
}

func newPair(cfg Config) (*Endpoint[envMsg, actMsg], *Endpoint[actMsg, envMsg]) {
	region := NewMemoryRegion(LayoutFor[envMsg, actMsg](cfg))

	sim, err := NewEndpoint[envMsg, actMsg](region, RoleSimulation, cfg)
	Expect(err).NotTo(HaveOccurred())

	ctrl, err := NewEndpoint[actMsg, envMsg](region, RoleController, cfg)
	Expect(err).NotTo(HaveOccurred())

	return sim, ctrl
}

func shortCtx() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), 50*time.Millisecond)
}

var _ = Describe("Endpoint", func() {
	var (
		cfg  Config
		sim  *Endpoint[envMsg, actMsg]
		ctrl *Endpoint[actMsg, envMsg]
		ctx  context.Context
	)

	BeforeEach(func() {
		cfg = DefaultConfig()
		sim, ctrl = newPair(cfg)
		ctx = context.Background()
	})

	It("should compute the layout from the message types", func() {
		l := LayoutFor[envMsg, actMsg](cfg)

		Expect(l.SimToControlSize).To(Equal(32))
		Expect(l.ControlToSimSize).To(Equal(8))
		Expect(l.Size()).To(Equal(headerSize + 32 + 8))
	})

	It("should deliver a message unchanged", func() {
		out, err := sim.BeginSend(ctx)
		Expect(err).NotTo(HaveOccurred())
		*out = envMsg{X: 1.5, Y: -2.25, Power: 16, ID: 3, Time: 0.25}
		Expect(sim.EndSend()).To(Succeed())

		in, err := ctrl.BeginReceive(ctx)
		Expect(err).NotTo(HaveOccurred())
		Expect(*in).To(Equal(envMsg{X: 1.5, Y: -2.25, Power: 16, ID: 3, Time: 0.25}))
		Expect(ctrl.EndReceive()).To(Succeed())

		reply, err := ctrl.BeginSend(ctx)
		Expect(err).NotTo(HaveOccurred())
		reply.Power = 7.5
		Expect(ctrl.EndSend()).To(Succeed())

		got, err := sim.BeginReceive(ctx)
		Expect(err).NotTo(HaveOccurred())
		Expect(got.Power).To(Equal(7.5))
		Expect(sim.EndReceive()).To(Succeed())
	})

	It("should block the receiver until a message is published", func() {
		c, cancel := shortCtx()
		defer cancel()

		_, err := ctrl.BeginReceive(c)

		Expect(err).To(MatchError(ErrPeerStall))
		Expect(errors.Is(err, context.DeadlineExceeded)).To(BeTrue())
	})

	It("should block the sender until the slot is consumed", func() {
		_, err := sim.BeginSend(ctx)
		Expect(err).NotTo(HaveOccurred())
		Expect(sim.EndSend()).To(Succeed())

		c, cancel := shortCtx()
		defer cancel()
		_, err = sim.BeginSend(c)
		Expect(err).To(MatchError(ErrPeerStall))

		_, err = ctrl.BeginReceive(ctx)
		Expect(err).NotTo(HaveOccurred())
		Expect(ctrl.EndReceive()).To(Succeed())

		_, err = sim.BeginSend(ctx)
		Expect(err).NotTo(HaveOccurred())
		Expect(sim.EndSend()).To(Succeed())
	})

	It("should let the slot be reused after a stalled begin", func() {
		c, cancel := shortCtx()
		defer cancel()
		_, err := sim.BeginReceive(c)
		Expect(err).To(MatchError(ErrPeerStall))

		_, err = ctrl.BeginSend(ctx)
		Expect(err).NotTo(HaveOccurred())
		Expect(ctrl.EndSend()).To(Succeed())

		_, err = sim.BeginReceive(ctx)
		Expect(err).NotTo(HaveOccurred())
		Expect(sim.EndReceive()).To(Succeed())
	})

	It("should reject an end without a begin", func() {
		Expect(sim.EndSend()).To(MatchError(ErrProtocolViolation))
		Expect(sim.EndReceive()).To(MatchError(ErrProtocolViolation))
		Expect(ctrl.EndSend()).To(MatchError(ErrProtocolViolation))
		Expect(ctrl.EndReceive()).To(MatchError(ErrProtocolViolation))
	})

	It("should reject a nested begin", func() {
		_, err := sim.BeginSend(ctx)
		Expect(err).NotTo(HaveOccurred())

		_, err = sim.BeginSend(ctx)
		Expect(err).To(MatchError(ErrProtocolViolation))

		Expect(sim.EndSend()).To(Succeed())
		Expect(sim.EndSend()).To(MatchError(ErrProtocolViolation))
	})

	It("should only let the simulation side finish", func() {
		Expect(ctrl.SetFinished()).To(MatchError(ErrProtocolViolation))
		Expect(ctrl.Finished()).To(BeFalse())

		Expect(sim.SetFinished()).To(Succeed())
		Expect(ctrl.Finished()).To(BeTrue())
		Expect(sim.Finished()).To(BeTrue())
	})

	It("should report finished to a waiting controller", func() {
		Expect(sim.SetFinished()).To(Succeed())

		_, err := ctrl.BeginReceive(ctx)

		Expect(err).To(MatchError(ErrFinished))
	})

	It("should drain a pending message before reporting finished", func() {
		out, err := sim.BeginSend(ctx)
		Expect(err).NotTo(HaveOccurred())
		out.ID = 9
		Expect(sim.EndSend()).To(Succeed())
		Expect(sim.SetFinished()).To(Succeed())

		in, err := ctrl.BeginReceive(ctx)
		Expect(err).NotTo(HaveOccurred())
		Expect(in.ID).To(Equal(int32(9)))
		Expect(ctrl.EndReceive()).To(Succeed())

		_, err = ctrl.BeginReceive(ctx)
		Expect(err).To(MatchError(ErrFinished))
	})

	It("should report finished when the wait is cancelled right after", func() {
		for i := 0; i < 20; i++ {
			sim, ctrl = newPair(cfg)
			c, cancel := context.WithCancel(context.Background())

			go func() {
				time.Sleep(5 * time.Millisecond)
				_ = sim.SetFinished()
				cancel()
			}()

			_, err := ctrl.BeginReceive(c)
			cancel()

			Expect(err).To(MatchError(ErrFinished))
			Expect(err).NotTo(MatchError(ErrPeerStall))
		}
	})

	It("should deliver a message published right before the cancel", func() {
		c, cancel := context.WithCancel(context.Background())

		go func() {
			time.Sleep(5 * time.Millisecond)
			out, err := sim.BeginSend(ctx)
			if err == nil {
				out.ID = 4
				_ = sim.EndSend()
			}
			cancel()
		}()

		in, err := ctrl.BeginReceive(c)
		cancel()

		Expect(err).NotTo(HaveOccurred())
		Expect(in.ID).To(Equal(int32(4)))
		Expect(ctrl.EndReceive()).To(Succeed())
	})

	It("should release the slot when the outgoing message cannot be written", func() {
		_, err := sim.BeginSend(ctx)
		Expect(err).NotTo(HaveOccurred())

		slot := sim.out.slot
		sim.out.slot = slot[:2]
		Expect(sim.EndSend()).NotTo(Succeed())
		sim.out.slot = slot

		c, cancel := shortCtx()
		defer cancel()
		_, err = sim.BeginSend(c)
		Expect(err).NotTo(HaveOccurred())
		Expect(sim.EndSend()).To(Succeed())
	})

	It("should ignore the finished flag when not handling it", func() {
		cfg.HandleFinish = false
		sim, ctrl = newPair(cfg)
		Expect(sim.SetFinished()).To(Succeed())

		c, cancel := shortCtx()
		defer cancel()
		_, err := ctrl.BeginReceive(c)

		Expect(err).To(MatchError(ErrPeerStall))
	})

	It("should refuse a region with another layout", func() {
		region := NewMemoryRegion(Layout{
			SimToControlSize: 16,
			ControlToSimSize: 8,
			Addressing:       cfg.addressing(),
		})

		_, err := NewEndpoint[envMsg, actMsg](region, RoleSimulation, cfg)

		Expect(err).To(MatchError(ErrLayoutMismatch))
	})

	It("should refuse a region with other channel names", func() {
		region := NewMemoryRegion(LayoutFor[envMsg, actMsg](cfg))
		other := cfg
		other.LockableName = "Other Lockable"

		_, err := NewEndpoint[actMsg, envMsg](region, RoleController, other)

		Expect(err).To(MatchError(ErrLayoutMismatch))
	})

	It("should never let both sides hold the same slot", func() {
		const rounds = 500
		var inside atomic.Int32
		var overlap atomic.Bool
		var wg sync.WaitGroup

		enter := func() {
			if inside.Add(1) > 1 {
				overlap.Store(true)
			}
		}
		leave := func() { inside.Add(-1) }

		wg.Add(2)
		go func() {
			defer GinkgoRecover()
			defer wg.Done()
			for i := 0; i < rounds; i++ {
				out, err := sim.BeginSend(ctx)
				Expect(err).NotTo(HaveOccurred())
				enter()
				out.ID = int32(i)
				leave()
				Expect(sim.EndSend()).To(Succeed())

				in, err := sim.BeginReceive(ctx)
				Expect(err).NotTo(HaveOccurred())
				Expect(in.Power).To(Equal(float64(i)))
				Expect(sim.EndReceive()).To(Succeed())
			}
		}()
		go func() {
			defer GinkgoRecover()
			defer wg.Done()
			for i := 0; i < rounds; i++ {
				in, err := ctrl.BeginReceive(ctx)
				Expect(err).NotTo(HaveOccurred())
				enter()
				id := in.ID
				leave()
				Expect(id).To(Equal(int32(i)))
				Expect(ctrl.EndReceive()).To(Succeed())

				out, err := ctrl.BeginSend(ctx)
				Expect(err).NotTo(HaveOccurred())
				out.Power = float64(id)
				Expect(ctrl.EndSend()).To(Succeed())
			}
		}()
		wg.Wait()

		Expect(overlap.Load()).To(BeFalse())
	})
})
