package shm

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("Config", func() {
	It("should accept the defaults", func() {
		Expect(DefaultConfig().Validate()).To(Succeed())
	})

	It("should reject vector mode", func() {
		cfg := DefaultConfig()
		cfg.UseVector = true

		Expect(cfg.Validate()).To(MatchError(ErrVectorModeUnsupported))
	})

	It("should reject empty names", func() {
		cfg := DefaultConfig()
		cfg.SegmentName = ""

		Expect(cfg.Validate()).To(MatchError(ContainSubstring("segment name")))
	})

	It("should reject clashing names", func() {
		cfg := DefaultConfig()
		cfg.ControlToSimName = cfg.SimToControlName

		Expect(cfg.Validate()).To(MatchError(ContainSubstring("distinct")))
	})

	It("should derive the backing path from segment and key", func() {
		cfg := DefaultConfig()
		cfg.Dir = "/tmp/x"

		Expect(cfg.Path()).To(Equal("/tmp/x/My_Seg-1234"))
	})

	It("should give the same addressing for the same names", func() {
		a := DefaultConfig()
		b := DefaultConfig()
		b.MemoryKey = 99

		Expect(a.addressing()).To(Equal(b.addressing()))

		b.SimToControlName = "other"
		Expect(a.addressing()).NotTo(Equal(b.addressing()))
	})
})

var _ = Describe("Mapped region", func() {
	var (
		cfg    Config
		layout Layout
	)

	BeforeEach(func() {
		cfg = DefaultConfig()
		cfg.Dir = GinkgoT().TempDir()
		layout = LayoutFor[envMsg, actMsg](cfg)
	})

	It("should be shared between creator and attacher", func() {
		created, err := Create(cfg, layout)
		Expect(err).NotTo(HaveOccurred())

		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		attached, err := Attach(ctx, cfg, layout)
		Expect(err).NotTo(HaveOccurred())

		sim, err := NewEndpoint[envMsg, actMsg](created, RoleSimulation, cfg)
		Expect(err).NotTo(HaveOccurred())
		ctrl, err := NewEndpoint[actMsg, envMsg](attached, RoleController, cfg)
		Expect(err).NotTo(HaveOccurred())

		out, err := sim.BeginSend(ctx)
		Expect(err).NotTo(HaveOccurred())
		out.Time = 12.5
		Expect(sim.EndSend()).To(Succeed())

		in, err := ctrl.BeginReceive(ctx)
		Expect(err).NotTo(HaveOccurred())
		Expect(in.Time).To(Equal(12.5))
		Expect(ctrl.EndReceive()).To(Succeed())

		Expect(ctrl.Close()).To(Succeed())
		Expect(sim.Close()).To(Succeed())

		_, err = os.Stat(cfg.Path())
		Expect(os.IsNotExist(err)).To(BeTrue())
	})

	It("should wait for the creator", func() {
		done := make(chan error, 1)
		go func() {
			ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			r, err := Attach(ctx, cfg, layout)
			if err == nil {
				err = r.Close()
			}
			done <- err
		}()

		time.Sleep(20 * time.Millisecond)
		created, err := Create(cfg, layout)
		Expect(err).NotTo(HaveOccurred())
		defer created.Close()

		Eventually(done, 2*time.Second).Should(Receive(BeNil()))
	})

	It("should give up when nobody creates the region", func() {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
		defer cancel()

		_, err := Attach(ctx, cfg, layout)

		Expect(err).To(MatchError(ErrPeerStall))
	})

	It("should detect a layout mismatch on attach", func() {
		created, err := Create(cfg, layout)
		Expect(err).NotTo(HaveOccurred())
		defer created.Close()

		other := layout
		other.ControlToSimSize = 8
		other.SimToControlSize = 24

		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		_, err = Attach(ctx, cfg, other)

		Expect(err).To(MatchError(ErrLayoutMismatch))
	})

	It("should remove the backing file when mapping fails", func() {
		defer func(orig func(int, int64, int, int, int) ([]byte, error)) {
			mmap = orig
		}(mmap)
		mmap = func(int, int64, int, int, int) ([]byte, error) {
			return nil, errors.New("no mapping")
		}

		_, err := Create(cfg, layout)

		Expect(err).To(MatchError(ContainSubstring("no mapping")))
		_, err = os.Stat(cfg.Path())
		Expect(os.IsNotExist(err)).To(BeTrue())
	})

	It("should replace a stale backing file", func() {
		Expect(os.WriteFile(filepath.Join(cfg.Dir, "My_Seg-1234"), []byte("junk"), 0o600)).To(Succeed())

		created, err := Create(cfg, layout)
		Expect(err).NotTo(HaveOccurred())
		defer created.Close()

		Expect(headerReady(created.Bytes())).To(BeTrue())
	})
})
