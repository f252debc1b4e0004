package scanning

import (
	"context"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

type stubScanner struct {
	calls  int
	record *ReceiptRecord
}

func (s *stubScanner) ScanReceipt(ctx context.Context, pngData []byte) (*ReceiptRecord, error) {
	s.calls++
	return s.record, nil
}

func (s *stubScanner) Ping(ctx context.Context) error { return nil }

func (s *stubScanner) Close() error { return nil }

var _ = Describe("NewRateLimited", func() {
	var next *stubScanner

	BeforeEach(func() {
		next = &stubScanner{record: &ReceiptRecord{OrderNumber: "1"}}
	})

	It("returns the scanner unchanged when disabled", func() {
		Expect(NewRateLimited(next, 0, 5)).To(BeIdenticalTo(next))
	})

	It("delegates within the burst", func() {
		limited := NewRateLimited(next, 1, 2)
		for i := 0; i < 2; i++ {
			record, err := limited.ScanReceipt(context.Background(), nil)
			Expect(err).NotTo(HaveOccurred())
			Expect(record.OrderNumber).To(Equal("1"))
		}
		Expect(next.calls).To(Equal(2))
	})

	It("gives up when the context ends before a token is available", func() {
		limited := NewRateLimited(next, 0.001, 1)
		_, err := limited.ScanReceipt(context.Background(), nil)
		Expect(err).NotTo(HaveOccurred())

		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
		defer cancel()
		_, err = limited.ScanReceipt(ctx, nil)
		Expect(AsFailure(err).Kind).To(Equal(FailureBackendUnreachable))
		Expect(next.calls).To(Equal(1))
	})

	It("passes Ping and Close through", func() {
		limited := NewRateLimited(next, 1, 1)
		Expect(limited.Ping(context.Background())).To(Succeed())
		Expect(limited.Close()).To(Succeed())
	})
})
