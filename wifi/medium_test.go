package wifi

import (
	"math"
	"math/rand/v2"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("Medium", func() {
	var m *Medium

	BeforeEach(func() {
		m = NewMedium(rand.NewPCG(1, 2))
	})

	It("should use the reference loss within the reference distance", func() {
		Expect(m.PathLoss(0.5)).To(Equal(40.0459))
		Expect(m.PathLoss(1)).To(Equal(40.0459))
	})

	It("should grow the loss with the distance", func() {
		Expect(m.PathLoss(10)).To(BeNumerically("~", 70.0459, 1e-9))
		Expect(m.PathLoss(100)).To(BeNumerically("~", 100.0459, 1e-9))
	})

	It("should fade around the mean received power", func() {
		const n = 20000
		sum := 0.0
		for i := 0; i < n; i++ {
			rx := m.RxPower(16, 10)
			sum += math.Pow(10, rx/10)
		}

		meanDbm := 10 * math.Log10(sum/n)
		Expect(meanDbm).To(BeNumerically("~", 16-70.0459, 0.2))
	})

	It("should deliver nearby frames and drop distant ones", func() {
		delivered := 0
		for i := 0; i < 1000; i++ {
			if m.Deliver(16, Vector{}, Vector{X: 1}) {
				delivered++
			}
		}
		Expect(delivered).To(BeNumerically(">", 990))

		delivered = 0
		for i := 0; i < 1000; i++ {
			if m.Deliver(16, Vector{}, Vector{X: 1000}) {
				delivered++
			}
		}
		Expect(delivered).To(BeZero())
	})

	It("should never deliver from a silent radio", func() {
		Expect(m.Deliver(math.Inf(-1), Vector{}, Vector{})).To(BeFalse())
	})
})
