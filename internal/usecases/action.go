package usecases

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/ibralab/anaterra/internal/entities"
	"github.com/ibralab/anaterra/internal/interfaces"
)

const actionFallbackJSON = `{"acao":"OUTRO"}`

// ActionClassifier decides what the customer wants done with one
// specific catalog item inside the quote flow. Fallback on any failure
// is OUTRO.
type ActionClassifier struct {
	llm    interfaces.LanguageModel
	logger *slog.Logger
}

func NewActionClassifier(llm interfaces.LanguageModel, logger *slog.Logger) *ActionClassifier {
	return &ActionClassifier{llm: llm, logger: logger}
}

// Classify judges the action about the already-matched item, so the
// candidate's name goes into the prompt.
func (c *ActionClassifier) Classify(ctx context.Context, text, itemName string) entities.Action {
	user := fmt.Sprintf(`Você é um classificador de AÇÃO sobre orçamento de análises de laboratório agrícola.
Retorne APENAS um JSON válido, sem explicações, sem markdown.

Formato:
{
  "acao": "SO_PRECO" | "ADICIONAR" | "REMOVER" | "FINALIZAR" | "OUTRO"
}

Definições:
- SO_PRECO → cliente só quer saber o valor, não pediu para incluir.
- ADICIONAR → cliente pediu para incluir/colocar essa análise no orçamento.
- REMOVER → cliente pediu para remover algo do orçamento.
- FINALIZAR → cliente quer concluir/fechar o orçamento.
- OUTRO → qualquer outra intenção.

A análise identificada é: %q

Mensagem do cliente:
%q`, itemName, text)

	raw := c.llm.Complete(ctx, "Você é um classificador de AÇÃO. Retorne só JSON válido.", user, actionFallbackJSON)

	var parsed struct {
		Acao string `json:"acao"`
	}
	if err := json.Unmarshal([]byte(extractJSON(raw)), &parsed); err != nil {
		c.logger.Warn("action classification unparseable", "raw", raw, "error", err)
		return entities.ActionOther
	}
	return entities.ParseAction(parsed.Acao)
}
