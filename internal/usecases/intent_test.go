package usecases

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/ibralab/anaterra/internal/entities"
	"github.com/ibralab/anaterra/internal/log"
)

// cannedLLM returns a fixed completion, or the fallback when empty.
type cannedLLM struct {
	out string
}

func (c cannedLLM) Reply(_ context.Context, _, fallback string) string {
	return fallback
}

func (c cannedLLM) Complete(_ context.Context, _, _, fallback string) string {
	if c.out == "" {
		return fallback
	}
	return c.out
}

func TestIntentClassifier(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name         string
		modelOutput  string
		wantIntent   entities.Intent
		wantCategory entities.Category
	}{
		{
			name:         "clean json",
			modelOutput:  `{"intencao":"orcamento_analise","categoria":"solo"}`,
			wantIntent:   entities.IntentQuote,
			wantCategory: entities.CategorySoil,
		},
		{
			name:         "json wrapped in prose",
			modelOutput:  "Claro! Segue a classificação:\n{\"intencao\":\"listar_analises\",\"categoria\":\"vegetal\"}\nEspero ter ajudado.",
			wantIntent:   entities.IntentList,
			wantCategory: entities.CategoryPlant,
		},
		{
			name:         "desconhecida normalizes to no category",
			modelOutput:  `{"intencao":"duvida_geral","categoria":"desconhecida"}`,
			wantIntent:   entities.IntentGeneral,
			wantCategory: "",
		},
		{
			name:         "invented intent collapses to outro",
			modelOutput:  `{"intencao":"pedido_de_pizza","categoria":"solo"}`,
			wantIntent:   entities.IntentOther,
			wantCategory: entities.CategorySoil,
		},
		{
			name:         "garbage falls back to outro",
			modelOutput:  "desculpe, não consegui classificar",
			wantIntent:   entities.IntentOther,
			wantCategory: "",
		},
		{
			name:         "model failure uses the fallback json",
			modelOutput:  "", // cannedLLM returns the fallback
			wantIntent:   entities.IntentOther,
			wantCategory: "",
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			c := NewIntentClassifier(cannedLLM{out: tc.modelOutput}, log.NewNop())

			intent, category := c.Classify(context.Background(), "qualquer mensagem")

			assert.Equal(t, tc.wantIntent, intent)
			assert.Equal(t, tc.wantCategory, category)
		})
	}
}

func TestActionClassifier(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name        string
		modelOutput string
		want        entities.Action
	}{
		{"add", `{"acao":"ADICIONAR"}`, entities.ActionAdd},
		{"price only", `{"acao":"SO_PRECO"}`, entities.ActionPriceOnly},
		{"wrapped in prose", "Resposta: {\"acao\":\"FINALIZAR\"} ok?", entities.ActionFinalize},
		{"invented action", `{"acao":"EXPLODIR"}`, entities.ActionOther},
		{"garbage", "não sei", entities.ActionOther},
		{"model failure", "", entities.ActionOther},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			c := NewActionClassifier(cannedLLM{out: tc.modelOutput}, log.NewNop())

			got := c.Classify(context.Background(), "quero incluir", "Análise de Solo Completa")

			assert.Equal(t, tc.want, got)
		})
	}
}

func TestExtractJSON(t *testing.T) {
	t.Parallel()

	assert.Equal(t, `{"a":1}`, extractJSON(`{"a":1}`))
	assert.Equal(t, `{"a":1}`, extractJSON("antes {\"a\":1} depois"))
	assert.Equal(t, "sem json", extractJSON("sem json"))
	assert.Equal(t, "} invertido {", extractJSON("} invertido {"))
}
