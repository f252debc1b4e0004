// Package report renders extracted receipt records as the fixed text layout
// users paste into messaging apps. Labels and section order are stable.
package report

import (
	"strings"
	"text/template"

	"github.com/zombor/cupom-extractor/internal/scanning"
)

// Placeholder is printed for every field that was not recognized
const Placeholder = "—"

// ErrorMarker prefixes every user-visible failure message
const ErrorMarker = "❌"

const layout = `🏪 {{.EstablishmentName}}

📋 Pedido nº: {{.OrderNumber}}
👤 Cliente: {{.CustomerName}}

📅 Criado em: {{.CreatedAt}}

💳 Método de pagamento:
Pagamento na entrega – {{.PaymentMethod}}

🚚 Tipo de entrega:
{{.DeliveryType}}

📅 Data de entrega:
{{.DeliveredAt}}

📞 Telefone: {{.CustomerPhone}}
🏠 Endereço: {{.DeliveryAddress}}
📊 Histórico do cliente: {{.CustomerHistory}}

💰 Resumo da compra

Total Produtos: {{.Subtotal}}

Taxas:
Taxa de Entrega: {{.DeliveryFee}}
Taxa de Serviço: {{.ServiceFee}}

Total Geral: {{.Total}}

🔍 Informações do Sistema
Marca/Aplicativo: {{.Brand}}
Observações: {{.Notes}}`

var reportTemplate = template.Must(template.New("report").Parse(layout))

// view holds display strings; every field is already defaulted
type view struct {
	Brand             string
	EstablishmentName string
	OrderNumber       string
	CustomerName      string
	CustomerPhone     string
	DeliveryAddress   string
	CreatedAt         string
	DeliveredAt       string
	DeliveryType      string
	PaymentMethod     string
	Subtotal          string
	DeliveryFee       string
	ServiceFee        string
	Total             string
	CustomerHistory   string
	Notes             string
}

// Format renders a record. It never fails: a nil record renders as if every
// field were absent.
func Format(rec *scanning.ReceiptRecord) string {
	if rec == nil {
		rec = &scanning.ReceiptRecord{}
	}
	v := view{
		Brand:             rec.Brand.DisplayName(),
		EstablishmentName: orPlaceholder(rec.EstablishmentName),
		OrderNumber:       orPlaceholder(rec.OrderNumber),
		CustomerName:      orPlaceholder(rec.CustomerName),
		CustomerPhone:     orPlaceholder(rec.CustomerPhone),
		DeliveryAddress:   orPlaceholder(rec.DeliveryAddress),
		CreatedAt:         orPlaceholder(rec.CreatedAt),
		DeliveredAt:       orPlaceholder(rec.DeliveredAt),
		DeliveryType:      orPlaceholder(rec.DeliveryType.DisplayName()),
		PaymentMethod:     orPlaceholder(rec.PaymentMethod),
		Subtotal:          orPlaceholder(rec.Subtotal),
		DeliveryFee:       orPlaceholder(rec.DeliveryFee),
		ServiceFee:        orPlaceholder(rec.ServiceFee),
		Total:             orPlaceholder(rec.Total),
		CustomerHistory:   orPlaceholder(rec.CustomerHistory),
		Notes:             orPlaceholder(rec.Notes),
	}

	var b strings.Builder
	// Executing a parsed template over a struct of strings cannot fail
	_ = reportTemplate.Execute(&b, v)
	return b.String()
}

// Failure renders a user-visible failure message
func Failure(message string) string {
	return ErrorMarker + " " + message
}

func orPlaceholder(s string) string {
	if strings.TrimSpace(s) == "" {
		return Placeholder
	}
	return s
}
