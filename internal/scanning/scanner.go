package scanning

import "context"

// ReceiptRecord contains the order data extracted from a delivery receipt.
// Every field is optional; an empty string means the field was not visible.
type ReceiptRecord struct {
	Brand             Brand        `json:"marca,omitempty"`
	EstablishmentName string       `json:"nome_estabelecimento,omitempty"`
	OrderNumber       string       `json:"numero_pedido,omitempty"`
	CustomerName      string       `json:"nome_cliente,omitempty"`
	CustomerPhone     string       `json:"telefone_cliente,omitempty"`
	DeliveryAddress   string       `json:"endereco_entrega,omitempty"`
	CreatedAt         string       `json:"data_criacao,omitempty"` // original formatting
	DeliveredAt       string       `json:"data_entrega,omitempty"` // original formatting
	DeliveryType      DeliveryType `json:"tipo_entrega,omitempty"`
	PaymentMethod     string       `json:"forma_pagamento,omitempty"`
	Subtotal          string       `json:"subtotal,omitempty"`
	DeliveryFee       string       `json:"taxa_entrega,omitempty"`
	ServiceFee        string       `json:"taxa_servico,omitempty"`
	Total             string       `json:"total_geral,omitempty"`
	CustomerHistory   string       `json:"historico_cliente,omitempty"`
	Notes             string       `json:"observacoes,omitempty"`
}

// Scanner defines the interface for receipt recognition backends.
// Implementations must be safe for concurrent use.
type Scanner interface {
	// ScanReceipt sends a PNG-encoded frame to the backend and returns the
	// extracted record. Every error returned is a *RecognitionFailure.
	ScanReceipt(ctx context.Context, pngData []byte) (*ReceiptRecord, error)
	// Ping performs a minimal call to check backend connectivity
	Ping(ctx context.Context) error
	// Close closes the scanner and releases resources
	Close() error
}
