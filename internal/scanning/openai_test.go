package scanning

import (
	"context"
	"encoding/json"
	"io"
	"net/http"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/onsi/gomega/ghttp"
)

func chatCompletion(content string) map[string]any {
	return map[string]any{
		"choices": []map[string]any{
			{"message": map[string]any{"role": "assistant", "content": content}},
		},
	}
}

var _ = Describe("OpenAI", func() {
	var (
		server  *ghttp.Server
		scanner *OpenAI
		sent    map[string]any
		record  *ReceiptRecord
		err     error
	)

	captureBody := func(w http.ResponseWriter, r *http.Request) {
		body, readErr := io.ReadAll(r.Body)
		Expect(readErr).NotTo(HaveOccurred())
		Expect(json.Unmarshal(body, &sent)).To(Succeed())
	}

	BeforeEach(func() {
		server = ghttp.NewServer()
		sent = nil
		var newErr error
		scanner, newErr = NewOpenAI("sk-test", "gpt-4o-mini", server.URL(), nil)
		Expect(newErr).NotTo(HaveOccurred())
	})

	AfterEach(func() {
		server.Close()
	})

	It("requires an api key", func() {
		_, newErr := NewOpenAI("", "", "", nil)
		Expect(newErr).To(HaveOccurred())
	})

	Describe("ScanReceipt", func() {
		JustBeforeEach(func() {
			record, err = scanner.ScanReceipt(context.Background(), []byte("png-bytes"))
		})

		When("the backend returns a fenced record", func() {
			BeforeEach(func() {
				server.AppendHandlers(ghttp.CombineHandlers(
					ghttp.VerifyRequest(http.MethodPost, "/chat/completions"),
					ghttp.VerifyHeaderKV("Authorization", "Bearer sk-test"),
					captureBody,
					ghttp.RespondWithJSONEncoded(http.StatusOK, chatCompletion("```json\n"+fullReply+"\n```")),
				))
			})

			It("should return the record", func() {
				Expect(err).NotTo(HaveOccurred())
				Expect(record.Brand).To(Equal(BrandIFood))
				Expect(record.Total).To(Equal("R$ 63,88"))
			})

			It("should request deterministic, bounded output", func() {
				Expect(sent["temperature"]).To(BeEquivalentTo(0))
				Expect(sent["max_tokens"]).To(BeEquivalentTo(1500))
				Expect(sent["model"]).To(Equal("gpt-4o-mini"))
			})

			It("should send the system instruction, prompt and inline image", func() {
				messages := sent["messages"].([]any)
				Expect(messages).To(HaveLen(2))
				system := messages[0].(map[string]any)
				Expect(system["role"]).To(Equal("system"))
				Expect(system["content"]).To(Equal(systemInstruction))

				parts := messages[1].(map[string]any)["content"].([]any)
				Expect(parts[0].(map[string]any)["text"]).To(Equal(receiptScanPrompt))
				imageURL := parts[1].(map[string]any)["image_url"].(map[string]any)["url"]
				Expect(imageURL).To(Equal("data:image/png;base64,cG5nLWJ5dGVz"))
			})
		})

		When("the backend reports no receipt", func() {
			BeforeEach(func() {
				server.AppendHandlers(ghttp.RespondWithJSONEncoded(http.StatusOK,
					chatCompletion(`{"erro": "Foto não está conforme solicitada, tente novamente"}`)))
			})

			It("returns a not-recognized failure", func() {
				Expect(record).To(BeNil())
				Expect(AsFailure(err).Kind).To(Equal(FailureNotRecognized))
				Expect(AsFailure(err).Reason).To(Equal("Foto não está conforme solicitada, tente novamente"))
			})
		})

		When("the backend returns no choices", func() {
			BeforeEach(func() {
				server.AppendHandlers(ghttp.RespondWithJSONEncoded(http.StatusOK, map[string]any{"choices": []any{}}))
			})

			It("returns a malformed reply failure", func() {
				Expect(AsFailure(err).Kind).To(Equal(FailureMalformedReply))
			})
		})

		When("the backend body is not JSON", func() {
			BeforeEach(func() {
				server.AppendHandlers(ghttp.RespondWith(http.StatusOK, "<html>gateway</html>"))
			})

			It("returns a malformed reply failure", func() {
				Expect(AsFailure(err).Kind).To(Equal(FailureMalformedReply))
			})
		})

		When("the backend is unreachable", func() {
			BeforeEach(func() {
				server.Close()
			})

			It("returns an unreachable failure", func() {
				Expect(AsFailure(err).Kind).To(Equal(FailureBackendUnreachable))
			})
		})
	})

	Describe("ScanReceipt rejections", func() {
		DescribeTable("rejections from the backend",
			func(status int) {
				server.AppendHandlers(ghttp.RespondWithJSONEncoded(status, map[string]any{
					"error": map[string]any{"message": "quota exceeded", "type": "insufficient_quota"},
				}))
				_, scanErr := scanner.ScanReceipt(context.Background(), []byte("png"))
				Expect(AsFailure(scanErr).Kind).To(Equal(FailureBackendRejected))
				Expect(AsFailure(scanErr).Reason).To(ContainSubstring("quota exceeded"))
			},
			Entry("rate limit", http.StatusTooManyRequests),
			Entry("invalid key", http.StatusUnauthorized),
			Entry("server error", http.StatusInternalServerError),
		)

		It("rejects error statuses without the API's error envelope", func() {
			server.AppendHandlers(ghttp.RespondWith(http.StatusBadGateway, "<html>bad gateway</html>"))
			_, scanErr := scanner.ScanReceipt(context.Background(), []byte("png"))
			Expect(AsFailure(scanErr).Kind).To(Equal(FailureBackendRejected))
			Expect(AsFailure(scanErr).Reason).To(ContainSubstring("status 502"))
		})

		It("does not retry a failed call", func() {
			server.AppendHandlers(ghttp.RespondWithJSONEncoded(http.StatusInternalServerError, map[string]any{
				"error": map[string]any{"message": "overloaded"},
			}))
			_, scanErr := scanner.ScanReceipt(context.Background(), []byte("png"))
			Expect(AsFailure(scanErr).Kind).To(Equal(FailureBackendRejected))
			Expect(server.ReceivedRequests()).To(HaveLen(1))
		})
	})

	Describe("Ping", func() {
		It("sends a tiny completion", func() {
			server.AppendHandlers(ghttp.CombineHandlers(
				ghttp.VerifyRequest(http.MethodPost, "/chat/completions"),
				captureBody,
				ghttp.RespondWithJSONEncoded(http.StatusOK, chatCompletion("OK")),
			))
			Expect(scanner.Ping(context.Background())).To(Succeed())
			Expect(sent["max_tokens"]).To(BeEquivalentTo(pingMaxTokens))
		})

		It("fails when the credential is rejected", func() {
			server.AppendHandlers(ghttp.RespondWith(http.StatusUnauthorized, `{"error": {"message": "bad key"}}`))
			Expect(scanner.Ping(context.Background())).To(HaveOccurred())
		})
	})
})
