package scanning

import (
	"encoding/json"
	"fmt"
	"strings"
)

// errorKeys are the keys a backend may use to report that no receipt was
// visible. The prompt asks for "erro"; some models answer in English.
var errorKeys = []string{"erro", "error"}

const defaultNotRecognizedReason = "Foto não está conforme solicitada, tente novamente"

// stripCodeFence removes an optional Markdown code fence around the reply,
// including a language tag such as ```json.
func stripCodeFence(text string) string {
	text = strings.TrimSpace(text)
	if strings.HasPrefix(text, "```") {
		text = strings.TrimPrefix(text, "```")
		if nl := strings.IndexByte(text, '\n'); nl >= 0 && !strings.ContainsAny(text[:nl], "{[") {
			text = text[nl+1:]
		} else {
			text = strings.TrimPrefix(text, "json")
			text = strings.TrimPrefix(text, "JSON")
		}
	}
	text = strings.TrimSpace(text)
	text = strings.TrimSuffix(text, "```")
	return strings.TrimSpace(text)
}

// parseReceiptReply validates the backend's raw text reply. It returns
// either a record or a *RecognitionFailure, never both.
func parseReceiptReply(text string) (*ReceiptRecord, error) {
	text = stripCodeFence(text)

	// Find the JSON object boundaries - look for first { and last }
	startIdx := strings.Index(text, "{")
	if startIdx == -1 {
		return nil, malformedReply(fmt.Errorf("no JSON object found in response"))
	}
	endIdx := strings.LastIndex(text, "}")
	if endIdx < startIdx {
		return nil, malformedReply(fmt.Errorf("invalid JSON object in response"))
	}
	text = text[startIdx : endIdx+1]

	var fields map[string]json.RawMessage
	if err := json.Unmarshal([]byte(text), &fields); err != nil {
		return nil, malformedReply(fmt.Errorf("unmarshaling json: %w", err))
	}

	for _, key := range errorKeys {
		raw, ok := fields[key]
		if !ok || string(raw) == "null" {
			continue
		}
		var reason string
		if err := json.Unmarshal(raw, &reason); err != nil {
			return nil, malformedReply(fmt.Errorf("%q is not a string: %w", key, err))
		}
		if strings.TrimSpace(reason) == "" {
			reason = defaultNotRecognizedReason
		}
		return nil, notRecognized(reason)
	}

	return &ReceiptRecord{
		Brand:             ParseBrand(textField(fields, "marca")),
		EstablishmentName: textField(fields, "nome_estabelecimento"),
		OrderNumber:       textField(fields, "numero_pedido"),
		CustomerName:      textField(fields, "nome_cliente"),
		CustomerPhone:     textField(fields, "telefone_cliente"),
		DeliveryAddress:   textField(fields, "endereco_entrega"),
		CreatedAt:         textField(fields, "data_criacao"),
		DeliveredAt:       textField(fields, "data_entrega"),
		DeliveryType:      ParseDeliveryType(textField(fields, "tipo_entrega")),
		PaymentMethod:     textField(fields, "forma_pagamento"),
		Subtotal:          textField(fields, "subtotal"),
		DeliveryFee:       textField(fields, "taxa_entrega"),
		ServiceFee:        textField(fields, "taxa_servico"),
		Total:             textField(fields, "total_geral"),
		CustomerHistory:   textField(fields, "historico_cliente"),
		Notes:             textField(fields, "observacoes"),
	}, nil
}

// textField reads a scalar field leniently. Strings are trimmed, numbers
// and booleans keep their literal text, anything else counts as absent.
func textField(fields map[string]json.RawMessage, key string) string {
	raw, ok := fields[key]
	if !ok {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return strings.TrimSpace(s)
	}
	var n json.Number
	if err := json.Unmarshal(raw, &n); err == nil {
		return n.String()
	}
	var b bool
	if err := json.Unmarshal(raw, &b); err == nil {
		return fmt.Sprint(b)
	}
	return ""
}
