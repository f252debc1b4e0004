package scanning

import (
	"bytes"
	"encoding/base64"
	"image"
	"image/color"
	"image/jpeg"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/zombor/cupom-extractor/internal/scanning/scanningtest"
)

var _ = Describe("DecodeUpload", func() {
	var (
		data   []byte
		source Source
		frames []image.Image
		err    error
	)

	BeforeEach(func() {
		source = SourceMultipartFile
	})

	JustBeforeEach(func() {
		frames, err = DecodeUpload(data, source)
	})

	When("decoding a PNG", func() {
		BeforeEach(func() {
			img := image.NewRGBA(image.Rect(0, 0, 30, 20))
			data = scanningtest.PNG(img)
		})

		It("should return a single frame with the original size", func() {
			Expect(err).NotTo(HaveOccurred())
			Expect(frames).To(HaveLen(1))
			Expect(frames[0].Bounds()).To(Equal(image.Rect(0, 0, 30, 20)))
		})
	})

	When("decoding a PNG with transparency", func() {
		BeforeEach(func() {
			img := image.NewNRGBA(image.Rect(0, 0, 2, 1))
			img.SetNRGBA(0, 0, color.NRGBA{R: 255, A: 255})
			img.SetNRGBA(1, 0, color.NRGBA{})
			data = scanningtest.PNG(img)
		})

		It("should flatten the frame onto an opaque white background", func() {
			Expect(err).NotTo(HaveOccurred())
			rgba, ok := frames[0].(*image.RGBA)
			Expect(ok).To(BeTrue())
			Expect(rgba.Opaque()).To(BeTrue())
			Expect(rgba.RGBAAt(0, 0)).To(Equal(color.RGBA{R: 255, A: 255}))
			Expect(rgba.RGBAAt(1, 0)).To(Equal(color.RGBA{R: 255, G: 255, B: 255, A: 255}))
		})
	})

	When("decoding a grayscale JPEG", func() {
		BeforeEach(func() {
			var buf bytes.Buffer
			Expect(jpeg.Encode(&buf, image.NewGray(image.Rect(0, 0, 16, 8)), nil)).To(Succeed())
			data = buf.Bytes()
		})

		It("should convert the frame to color", func() {
			Expect(err).NotTo(HaveOccurred())
			Expect(frames[0]).To(BeAssignableToTypeOf(&image.RGBA{}))
			Expect(frames[0].Bounds().Size()).To(Equal(image.Pt(16, 8)))
		})
	})

	When("decoding a multi-page PDF", func() {
		BeforeEach(func() {
			data = scanningtest.MinimalPDF([2]int{144, 72}, [2]int{72, 144}, [2]int{100, 100})
		})

		It("should return one frame per page", func() {
			Expect(err).NotTo(HaveOccurred())
			Expect(frames).To(HaveLen(3))
		})

		It("should preserve page order", func() {
			Expect(frames[0].Bounds().Dx()).To(BeNumerically(">", frames[0].Bounds().Dy()))
			Expect(frames[1].Bounds().Dx()).To(BeNumerically("<", frames[1].Bounds().Dy()))
			Expect(frames[2].Bounds().Dx()).To(Equal(frames[2].Bounds().Dy()))
		})

		It("should render at the fixed resolution", func() {
			Expect(frames[0].Bounds().Dx()).To(BeNumerically("~", 144*pdfRenderDPI/72, 2))
		})
	})

	When("the bytes carry the PDF signature but are not a PDF", func() {
		BeforeEach(func() {
			data = []byte("%PDF-1.4 ... fake pdf content ...")
		})

		It("returns an unsupported input error", func() {
			Expect(err).To(MatchError(ErrUnsupportedInput))
		})
	})

	When("the bytes are not an image", func() {
		BeforeEach(func() {
			data = []byte("fake image data")
		})

		It("returns an unsupported input error", func() {
			Expect(err).To(MatchError(ErrUnsupportedInput))
			Expect(frames).To(BeNil())
		})
	})

	When("the payload is empty", func() {
		BeforeEach(func() {
			data = nil
		})

		It("returns an unsupported input error", func() {
			Expect(err).To(MatchError(ErrUnsupportedInput))
		})

		It("marks the payload as empty", func() {
			Expect(err).To(MatchError(ErrEmptyPayload))
		})
	})

	When("an inline capture has a header but no data", func() {
		BeforeEach(func() {
			source = SourceInlineCapture
			data = []byte("data:image/png;base64,")
		})

		It("marks the payload as empty", func() {
			Expect(err).To(MatchError(ErrEmptyPayload))
			Expect(frames).To(BeNil())
		})
	})

	When("an image header claims more pixels than the limit", func() {
		BeforeEach(func() {
			data = scanningtest.PNGHeader(20000, 20000)
		})

		It("rejects it before decoding pixel data", func() {
			Expect(err).To(MatchError(ErrUnsupportedInput))
			Expect(err.Error()).To(ContainSubstring("20000x20000 exceeds"))
			Expect(frames).To(BeNil())
		})
	})

	When("an image header is just under the limit", func() {
		BeforeEach(func() {
			data = scanningtest.PNGHeader(9000, 9000)
		})

		It("gets past the size check to the pixel decoder", func() {
			Expect(err).To(MatchError(ErrUnsupportedInput))
			Expect(err.Error()).NotTo(ContainSubstring("pixel limit"))
		})
	})

	When("a PDF page would render beyond the pixel limit", func() {
		BeforeEach(func() {
			data = scanningtest.MinimalPDF([2]int{72, 72}, [2]int{14400, 14400})
		})

		It("rejects the document without rendering it", func() {
			Expect(err).To(MatchError(ErrUnsupportedInput))
			Expect(err.Error()).To(ContainSubstring("PDF page 2"))
			Expect(err.Error()).To(ContainSubstring("pixel limit"))
			Expect(frames).To(BeNil())
		})
	})

	When("decoding an inline capture with a data URL header", func() {
		BeforeEach(func() {
			source = SourceInlineCapture
			pngData := scanningtest.PNG(image.NewRGBA(image.Rect(0, 0, 4, 3)))
			data = []byte("data:image/png;base64," + base64.StdEncoding.EncodeToString(pngData))
		})

		It("should decode the image after the first comma", func() {
			Expect(err).NotTo(HaveOccurred())
			Expect(frames).To(HaveLen(1))
			Expect(frames[0].Bounds().Size()).To(Equal(image.Pt(4, 3)))
		})
	})

	When("decoding an inline capture without a header", func() {
		BeforeEach(func() {
			source = SourceInlineCapture
			pngData := scanningtest.PNG(image.NewRGBA(image.Rect(0, 0, 5, 5)))
			data = []byte(base64.StdEncoding.EncodeToString(pngData))
		})

		It("should decode the whole payload", func() {
			Expect(err).NotTo(HaveOccurred())
			Expect(frames).To(HaveLen(1))
		})
	})

	When("an inline capture is not valid base64", func() {
		BeforeEach(func() {
			source = SourceInlineCapture
			data = []byte("data:image/png;base64,@@not-base64@@")
		})

		It("returns an unsupported input error", func() {
			Expect(err).To(MatchError(ErrUnsupportedInput))
		})
	})
})

var _ = Describe("isHEICFormat", func() {
	It("detects HEIF-family brands in the ftyp box", func() {
		Expect(isHEICFormat([]byte("\x00\x00\x00\x18ftypheic\x00\x00\x00\x00"))).To(BeTrue())
		Expect(isHEICFormat([]byte("\x00\x00\x00\x18ftypmif1\x00\x00\x00\x00"))).To(BeTrue())
	})

	It("rejects other containers", func() {
		Expect(isHEICFormat([]byte("\x00\x00\x00\x18ftypisom\x00\x00\x00\x00"))).To(BeFalse())
		Expect(isHEICFormat([]byte("short"))).To(BeFalse())
	})
})
