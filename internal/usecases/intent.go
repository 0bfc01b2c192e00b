package usecases

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/ibralab/anaterra/internal/entities"
	"github.com/ibralab/anaterra/internal/interfaces"
)

const intentFallbackJSON = `{"intencao":"outro","categoria":"desconhecida"}`

const intentSystemPrompt = `Você é um classificador de intenção.
Responda SEMPRE apenas um JSON válido, sem markdown, sem crases, sem explicações.`

// IntentClassifier decides what the customer wants from the bot. Any
// model or parse failure collapses to ("outro", no category); the caller
// never sees an error.
type IntentClassifier struct {
	llm    interfaces.LanguageModel
	logger *slog.Logger
}

func NewIntentClassifier(llm interfaces.LanguageModel, logger *slog.Logger) *IntentClassifier {
	return &IntentClassifier{llm: llm, logger: logger}
}

func (c *IntentClassifier) Classify(ctx context.Context, text string) (entities.Intent, entities.Category) {
	user := fmt.Sprintf(`Você é um classificador de intenção para o chatbot Ana Terra, assistente de laboratório agrícola.
Sua tarefa é receber a mensagem de um cliente e responder SOMENTE um JSON válido, sem nenhum texto antes ou depois,
sem markdown, sem crases, sem comentários, exatamente neste formato:

{
  "intencao": "orcamento_analise" | "listar_analises" | "duvida_analise" | "duvida_geral" | "humano" | "outro",
  "categoria": "solo" | "vegetal" | "ambiental" | "semente" | "desconhecida"
}

Regras:
- "orcamento_analise": quando o cliente pede preço, orçamento, tabela de valores ou quer FECHAR uma análise específica.
- "listar_analises": quando o cliente pede lista/catálogo/tabela de análises (ex.: "me manda as análises de solo que vocês fazem").
- "duvida_analise": quando pergunta o que significa um exame, pra que serve, quando fazer, mas não pede preço.
- "duvida_geral": perguntas gerais (clima, agricultura, manejo, curiosidades) que não envolvam diretamente o catálogo de análises.
- "humano": reclamações, problemas com laudo, questões financeiras complexas, dúvidas muito fora do escopo do laboratório
            ou qualquer assunto sensível que exija atendimento humano.
- "outro": se não se encaixar em nada disso.

Categoria:
- "solo": tudo que envolva análise de solo, textura, física, química, carbono, macro/micronutrientes no solo.
- "vegetal": folhas, tecido vegetal, planta.
- "ambiental": água, efluentes, resíduos, análises ambientais.
- "semente": análises de semente, vigor, germinação, pureza.
- "desconhecida": se não der para inferir.

Mensagem do cliente:
%q`, text)

	raw := c.llm.Complete(ctx, intentSystemPrompt, user, intentFallbackJSON)

	var parsed struct {
		Intencao  string `json:"intencao"`
		Categoria string `json:"categoria"`
	}
	if err := json.Unmarshal([]byte(extractJSON(raw)), &parsed); err != nil {
		c.logger.Warn("intent classification unparseable", "raw", raw, "error", err)
		return entities.IntentOther, ""
	}
	return entities.ParseIntent(parsed.Intencao), entities.ParseCategory(parsed.Categoria)
}

// extractJSON cuts the substring between the first '{' and the last '}'.
// Models occasionally wrap the object in prose despite the instructions.
func extractJSON(s string) string {
	start := strings.IndexByte(s, '{')
	end := strings.LastIndexByte(s, '}')
	if start == -1 || end == -1 || end <= start {
		return s
	}
	return s[start : end+1]
}
