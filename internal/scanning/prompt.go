package scanning

// Generation settings shared by every backend. The reply must be terse,
// complete JSON, so decoding is deterministic and output is bounded.
const (
	maxOutputTokens = 1500
	temperature     = 0.0
	pingMaxTokens   = 5
)

const systemInstruction = "Analise cupons fiscais de delivery. Se não conseguir identificar dados de cupom, retorne erro."

// receiptScanPrompt is the shared prompt used by all backends. It enumerates
// the ReceiptRecord schema and the brand mapping rules.
const receiptScanPrompt = `Analise esta imagem e extraia dados do cupom fiscal de delivery em JSON.

IMPORTANTE: Se a imagem NÃO contém um cupom fiscal de delivery legível, retorne:
{"erro": "Foto não está conforme solicitada, tente novamente"}

Se contém cupom legível, extraia em JSON:

{
  "marca": "IFOOD", "ZE_DELIVERY", "UBER_EATS", "RAPPI" ou "APLICATIVO_PROPRIO",
  "nome_estabelecimento": "nome do restaurante",
  "numero_pedido": "número do pedido",
  "nome_cliente": "nome do cliente",
  "telefone_cliente": "telefone",
  "endereco_entrega": "endereço",
  "data_criacao": "data/hora criação",
  "data_entrega": "data/hora entrega",
  "tipo_entrega": "Retirada em Loja" ou "Entrega",
  "forma_pagamento": "PIX", "Cartão" ou outro,
  "subtotal": "valor produtos",
  "taxa_entrega": "taxa entrega",
  "taxa_servico": "taxa serviço",
  "total_geral": "total final",
  "historico_cliente": "pedidos anteriores",
  "observacoes": "observações"
}

MARCA: iFood/IFOOD→IFOOD, Zé Delivery→ZE_DELIVERY, Uber Eats→UBER_EATS, Rappi→RAPPI, outros→APLICATIVO_PROPRIO
Valores: R$ X,XX. Datas: formato original. Se não visível: null. Apenas JSON.`

const pingPrompt = "OK"
