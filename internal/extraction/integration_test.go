package extraction

import (
	"encoding/json"
	"image/color"
	"net/http"
	"net/http/httptest"
	"path/filepath"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/onsi/gomega/ghttp"

	"github.com/zombor/cupom-extractor/internal/scanning"
	"github.com/zombor/cupom-extractor/internal/scanning/scanningtest"
)

func chatReply(content string) map[string]any {
	return map[string]any{
		"choices": []any{
			map[string]any{"message": map[string]any{"role": "assistant", "content": content}},
		},
	}
}

// These run the whole stack: HTTP boundary, decoder, preprocessor, the
// OpenAI-compatible backend against a fake API, bbolt journal and captures.
var _ = Describe("Extraction end to end", func() {
	var (
		backend  *ghttp.Server
		journal  *BoltJournal
		captures *LocalStorage
		app      *httptest.Server
	)

	start := func(scanner scanning.Scanner) {
		service := NewService(scanner, journal, captures, Info{Scanner: "openai", Model: "gpt-4o-mini", APIKeyConfigured: true})
		app = httptest.NewServer(NewServer(service, BasicAuth{}, 0))
	}

	upload := func(file []byte) (int, string) {
		body, contentType := multipartBody(file, "")
		resp, err := http.Post(app.URL+"/extract", contentType, body)
		Expect(err).NotTo(HaveOccurred())
		return resp.StatusCode, readBody(resp)
	}

	BeforeEach(func() {
		tmpDir := GinkgoT().TempDir()
		var err error
		journal, err = NewBoltJournal(filepath.Join(tmpDir, "journal.db"), DefaultJournalRetention)
		Expect(err).NotTo(HaveOccurred())
		captures, err = NewLocalStorage(filepath.Join(tmpDir, "captures"))
		Expect(err).NotTo(HaveOccurred())

		backend = ghttp.NewServer()
		scanner, err := scanning.NewOpenAI("sk-test", "", backend.URL(), nil)
		Expect(err).NotTo(HaveOccurred())
		start(scanner)
	})

	AfterEach(func() {
		app.Close()
		backend.Close()
		journal.Close()
	})

	It("renders a fenced reply with an informal brand name", func() {
		backend.AppendHandlers(ghttp.CombineHandlers(
			ghttp.VerifyRequest(http.MethodPost, "/chat/completions"),
			ghttp.RespondWithJSONEncoded(http.StatusOK, chatReply("```json\n"+
				`{"marca": "ifood", "nome_estabelecimento": "Sushi Kento", "numero_pedido": 991,`+
				` "tipo_entrega": "retirada", "total_geral": "R$ 88,00", "observacoes": null}`+"\n```")),
		))

		status, text := upload(scanningtest.PNG(scanningtest.Solid(50, 100, color.White)))
		Expect(status).To(Equal(http.StatusOK))
		Expect(text).To(HavePrefix("🏪 Sushi Kento"))
		Expect(text).To(ContainSubstring("📋 Pedido nº: 991"))
		Expect(text).To(ContainSubstring("Retirada em Loja"))
		Expect(text).To(ContainSubstring("Marca/Aplicativo: iFood"))
		Expect(text).To(ContainSubstring("Observações: —"))
		Expect(backend.ReceivedRequests()).To(HaveLen(1))
	})

	It("surfaces the backend's no-receipt reason and keeps the frame", func() {
		backend.AppendHandlers(ghttp.RespondWithJSONEncoded(http.StatusOK,
			chatReply(`{"erro": "Foto não está conforme solicitada, tente novamente"}`)))

		status, text := upload(scanningtest.PNG(scanningtest.Solid(30, 30, color.White)))
		Expect(status).To(Equal(http.StatusOK))
		Expect(text).To(Equal("❌ Foto não está conforme solicitada, tente novamente"))

		entries, err := journal.Recent(1)
		Expect(err).NotTo(HaveOccurred())
		Expect(entries[0].Outcome).To(Equal(string(KindNotRecognized)))

		resp, err := http.Get(app.URL + "/captures/" + entries[0].ID + ".png")
		Expect(err).NotTo(HaveOccurred())
		Expect(resp.StatusCode).To(Equal(http.StatusOK))
		Expect(resp.Header.Get("Content-Type")).To(Equal("image/png"))
		resp.Body.Close()
	})

	It("analyzes only the first page of a PDF", func() {
		backend.AppendHandlers(ghttp.RespondWithJSONEncoded(http.StatusOK, chatReply(`{"numero_pedido": "1"}`)))

		status, _ := upload(scanningtest.MinimalPDF([2]int{144, 72}, [2]int{144, 72}, [2]int{144, 72}))
		Expect(status).To(Equal(http.StatusOK))
		Expect(backend.ReceivedRequests()).To(HaveLen(1))

		entries, err := journal.Recent(1)
		Expect(err).NotTo(HaveOccurred())
		Expect(entries[0].Frames).To(Equal(3))
	})

	It("reports a rejected request without failing the server", func() {
		backend.AppendHandlers(ghttp.RespondWithJSONEncoded(http.StatusTooManyRequests,
			map[string]any{"error": map[string]any{"message": "quota exceeded"}}))

		status, text := upload(scanningtest.PNG(scanningtest.Solid(30, 30, color.White)))
		Expect(status).To(Equal(http.StatusOK))
		Expect(text).To(HavePrefix("❌ Erro da API"))
		Expect(text).To(ContainSubstring("quota exceeded"))
	})

	It("classifies a dead backend as unreachable", func() {
		backend.Close()

		status, text := upload(scanningtest.PNG(scanningtest.Solid(30, 30, color.White)))
		Expect(status).To(Equal(http.StatusOK))
		Expect(text).To(HavePrefix("❌ Erro de conexão com a API"))

		entries, err := journal.Recent(1)
		Expect(err).NotTo(HaveOccurred())
		Expect(entries[0].Outcome).To(Equal(string(KindBackendUnreachable)))
	})

	It("reports journal counts on the status page", func() {
		backend.AppendHandlers(
			ghttp.RespondWithJSONEncoded(http.StatusOK, chatReply(`{"numero_pedido": "1"}`)),
			ghttp.RespondWithJSONEncoded(http.StatusOK, chatReply("OK")),
		)

		status, _ := upload(scanningtest.PNG(scanningtest.Solid(30, 30, color.White)))
		Expect(status).To(Equal(http.StatusOK))
		status, _ = upload(nil)
		Expect(status).To(Equal(http.StatusBadRequest))

		resp, err := http.Get(app.URL + "/status")
		Expect(err).NotTo(HaveOccurred())
		var got Status
		Expect(json.Unmarshal([]byte(readBody(resp)), &got)).To(Succeed())
		Expect(got.BackendConnection).To(Equal("OK"))
		Expect(got.Extractions.Total).To(Equal(2))
		Expect(got.Extractions.ByOutcome).To(HaveKeyWithValue(OutcomeReport, 1))
		Expect(got.Extractions.ByOutcome).To(HaveKeyWithValue(string(KindNoInput), 1))
	})
})
