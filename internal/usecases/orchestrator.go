package usecases

import (
	"context"
	"fmt"
	"log/slog"
	"regexp"
	"strconv"
	"strings"

	"github.com/ibralab/anaterra/internal/entities"
	"github.com/ibralab/anaterra/internal/interfaces"
)

// Stores the orchestrator depends on. Defined here, on the consumer
// side, so tests can swap in-memory fakes.

type SessionStore interface {
	Upsert(ctx context.Context, key string, channel entities.Channel, customer string) error
	Find(ctx context.Context, key string) (*entities.Session, error)
	SetCPF(ctx context.Context, key, cpf string) error
}

type CartStore interface {
	AddItem(ctx context.Context, sessionKey string, analysisID int64, name string, unitPrice float64, quantity int) error
	ListBySession(ctx context.Context, sessionKey string) ([]entities.CartLine, error)
	Clear(ctx context.Context, sessionKey string) error
	RemoveByAnalysis(ctx context.Context, sessionKey string, analysisID int64) (int64, error)
}

type EscalationStore interface {
	Open(ctx context.Context, t entities.EscalationTicket) error
}

type ChatLog interface {
	Append(ctx context.Context, sessionKey, cpf string, channel entities.Channel, role entities.ChatRole, message string) error
}

// Escalation reason codes. Backend triage labels, never shown to the
// customer.
const (
	reasonIntentHuman   = "classificador_intencao_humano"
	reasonQuoteNoMatch  = "analise_nao_encontrada_fluxo_orcamento"
	reasonEmptyCatalog  = "lista_analises_vazia"
	reasonQANoBase      = "duvida_analise_sem_base"
	reasonQALowMatch    = "duvida_analise_baixa_similaridade"
	reasonQuantityLimit = "quantidade_amostras_maior_1000 (%d)"
)

// Fixed customer-facing replies.
const (
	replyNotUnderstood = "Não consegui entender a mensagem 😅. Pode repetir com outras palavras?"

	replyUnavailable = "Estou com uma instabilidade por aqui 😅. Pode tentar de novo em instantes?"

	replyAskCPF = "Antes de continuar, preciso do seu CPF para identificar seu cadastro. " +
		"Pode me enviar apenas os números, por favor? 🙂"

	replyCPFConfirmed = "Perfeito, já registrei seu CPF aqui! 😊\nComo posso te ajudar agora?"

	cpfRequestSuffix = "Antes da gente continuar, pode me informar **seu CPF** (só os números)? " +
		"Assim consigo identificar seu cadastro por aqui. 🙂"

	replyCartCleared = "Zerei o seu orçamento por aqui 👍. Se quiser, me manda de novo o que precisa analisar que a gente remonta."

	replyCartEmptySummary = "Por enquanto o seu orçamento está vazio 🌱. Me diz o que você quer analisar que eu te ajudo a montar."

	replyCartEmptyClose = "Seu orçamento ainda está vazio 🌱. Me conta quais análises você precisa pra eu montar tudo direitinho."

	replyAskWhichToRemove = "Claro! Me diga qual análise você quer remover do orçamento 😊"

	replyQuoteHowCanIHelp = "Posso te ajudar com valores, incluir análises ou explicar qualquer exame 🌱\nComo posso te ajudar agora?"

	replyEscalation = `Te entendo, esse tipo de situação é melhor a gente ver com calma. 💬
Vou pedir para um atendente aqui do laboratório entrar em contato com você, combinado?

Se puder, me confirma:
- Seu nome completo;
- Cidade/UF;
- Melhor telefone ou WhatsApp para contato.

Assim o pessoal já te retorna direitinho. 🙂`
)

var greetings = []string{"oi", "olá", "ola", "bom dia", "boa tarde", "boa noite", "e aí", "eai"}

var digitRun = regexp.MustCompile(`\d+`)

// Orchestrator is the conversation engine: one inbound message in, one
// reply out, plus whatever state mutation the turn requires.
type Orchestrator struct {
	sessions    SessionStore
	cart        CartStore
	escalations EscalationStore
	chatLog     ChatLog

	llm     interfaces.LanguageModel
	intents *IntentClassifier
	actions *ActionClassifier
	matcher *CatalogMatcher

	// Top-result distance above which a catalog question is escalated
	// instead of answered.
	qaMaxDistance float64

	// Route duvida_geral/outro to the model instead of a human.
	generalChat bool

	logger *slog.Logger
}

// OrchestratorDeps bundles the constructor arguments.
type OrchestratorDeps struct {
	Sessions    SessionStore
	Cart        CartStore
	Escalations EscalationStore
	ChatLog     ChatLog

	LLM     interfaces.LanguageModel
	Intents *IntentClassifier
	Actions *ActionClassifier
	Matcher *CatalogMatcher

	QAMaxDistance float64
	GeneralChat   bool

	Logger *slog.Logger
}

func NewOrchestrator(d OrchestratorDeps) *Orchestrator {
	return &Orchestrator{
		sessions:      d.Sessions,
		cart:          d.Cart,
		escalations:   d.Escalations,
		chatLog:       d.ChatLog,
		llm:           d.LLM,
		intents:       d.Intents,
		actions:       d.Actions,
		matcher:       d.Matcher,
		qaMaxDistance: d.QAMaxDistance,
		generalChat:   d.GeneralChat,
		logger:        d.Logger,
	}
}

// ProcessMessage handles one inbound message and always returns a
// customer-readable reply, never an error. Decision order is fixed:
// blank guard, session ensure, inbound log, greeting, CPF gate, then
// the classified pipeline.
func (o *Orchestrator) ProcessMessage(ctx context.Context, channel entities.Channel, rawSessionID, text string) string {
	t := strings.TrimSpace(text)
	if t == "" {
		return replyNotUnderstood
	}

	key := entities.SessionKey(channel, rawSessionID)

	// Web sessions stay anonymous until a cookie/uuid resolves them.
	customer := ""
	if channel == entities.ChannelWhatsApp || channel == entities.ChannelEmail {
		customer = rawSessionID
	}
	if err := o.sessions.Upsert(ctx, key, channel, customer); err != nil {
		o.logger.Error("session upsert failed", "session", key, "error", err)
		return replyUnavailable
	}

	cpf := ""
	if s, err := o.sessions.Find(ctx, key); err != nil {
		o.logger.Error("session lookup failed", "session", key, "error", err)
		return replyUnavailable
	} else if s != nil {
		cpf = s.CPF
	}

	o.logTurn(ctx, key, cpf, channel, entities.RoleUser, t)

	lower := strings.ToLower(t)

	// Greetings win over everything, including the CPF gate: a "bom dia"
	// from a fresh session gets a welcome first, the CPF request rides
	// along as a suffix.
	if isGreeting(lower) {
		reply := o.greet(ctx, channel)
		if cpf == "" {
			reply += "\n\n" + cpfRequestSuffix
		}
		o.logTurn(ctx, key, cpf, channel, entities.RoleBot, reply)
		return reply
	}

	if cpf == "" {
		reply := o.captureCPF(ctx, key, t, &cpf)
		o.logTurn(ctx, key, cpf, channel, entities.RoleBot, reply)
		return reply
	}

	intent, category := o.intents.Classify(ctx, t)
	o.logger.Debug("intent classified", "session", key, "intent", intent, "category", category)

	var reply string
	switch intent {
	case entities.IntentList:
		reply = o.listCatalog(ctx, key, cpf, channel, category)
	case entities.IntentQuestion:
		reply = o.answerQuestion(ctx, key, cpf, channel, t)
	case entities.IntentHuman:
		reply = o.escalate(ctx, key, cpf, channel, t, reasonIntentHuman)
	case entities.IntentGeneral, entities.IntentOther:
		if o.generalChat {
			reply = o.generalReply(ctx, t)
		} else {
			reply = o.escalate(ctx, key, cpf, channel, t, reasonIntentHuman)
		}
	default:
		// orcamento_analise and anything unforeseen land in the quote flow.
		reply = o.runQuote(ctx, key, cpf, channel, lower, t)
	}

	o.logTurn(ctx, key, cpf, channel, entities.RoleBot, reply)
	return reply
}

func (o *Orchestrator) greet(ctx context.Context, channel entities.Channel) string {
	var draft string
	if channel == entities.ChannelEmail {
		draft = "Olá! 😊\n" +
			"Sou a Ana Terra, assistente do laboratório de análises agrícolas.\n" +
			"Me diga quais análises você deseja orçar ou o tipo de amostra (solo, folha, água, semente)."
	} else {
		draft = "Oi! Tudo certo por aí? 😊🌾\n" +
			"Sou a Ana Terra, posso te ajudar com orçamento de análises de solo, folha, semente ou água.\n" +
			"Como posso te ajudar hoje?"
	}
	prompt := "Você é Ana Terra. Reescreva a mensagem abaixo de forma acolhedora e natural.\n" + draft
	return o.llm.Reply(ctx, prompt, draft)
}

// captureCPF runs only while the session has no CPF. On a successful
// write it updates *cpf so the outbound log entry carries the new value.
func (o *Orchestrator) captureCPF(ctx context.Context, key, text string, cpf *string) string {
	found := extractCPF(text)
	if found == "" {
		return replyAskCPF
	}
	if err := o.sessions.SetCPF(ctx, key, found); err != nil {
		o.logger.Error("cpf write failed", "session", key, "error", err)
		return replyUnavailable
	}
	*cpf = found
	return replyCPFConfirmed
}

// runQuote is the quote/cart state machine. Keyword branches are checked
// on the lower-cased text in fixed priority order; only then does the
// message go to semantic matching.
func (o *Orchestrator) runQuote(ctx context.Context, key, cpf string, channel entities.Channel, lower, raw string) string {
	switch {
	case containsAny(lower, "limpar", "zerar", "cancelar orçamento"):
		if err := o.cart.Clear(ctx, key); err != nil {
			o.logger.Error("cart clear failed", "session", key, "error", err)
			return replyUnavailable
		}
		return replyCartCleared

	case containsAny(lower, "resumo", "carrinho", "ver orçamento"):
		lines, err := o.cart.ListBySession(ctx, key)
		if err != nil {
			o.logger.Error("cart read failed", "session", key, "error", err)
			return replyUnavailable
		}
		total := entities.CartTotal(lines)
		if total == 0 {
			return replyCartEmptySummary
		}
		draft := fmt.Sprintf("Até agora seu orçamento está assim:\n\n%s\nTotal parcial: R$ %.2f",
			renderCartLines(lines), total)
		prompt := "Você é Ana Terra.\nExplique o orçamento abaixo de forma curta, simpática e acolhedora.\n\n" + draft
		return o.llm.Reply(ctx, prompt, draft)

	case containsAny(lower, "fechar", "finalizar", "concluir"):
		return o.closeQuote(ctx, key)
	}

	match, err := o.matcher.BestMatch(ctx, raw)
	if err != nil {
		o.logger.Warn("catalog match failed", "session", key, "error", err)
		match = nil
	}
	if match == nil {
		return o.escalate(ctx, key, cpf, channel, raw, reasonQuoteNoMatch)
	}

	quantity := extractQuantity(lower)
	if quantity > 1000 {
		return o.escalate(ctx, key, cpf, channel, raw, fmt.Sprintf(reasonQuantityLimit, quantity))
	}

	action := o.actions.Classify(ctx, raw, match.Name)
	o.logger.Debug("quote action classified", "session", key, "action", action, "analysis", match.Name)

	switch action {
	case entities.ActionPriceOnly:
		total := match.Price * float64(quantity)
		return fmt.Sprintf("A análise %s custa R$ %.2f por amostra.\n\n"+
			"Para %d amostra(s), o valor seria R$ %.2f.\n\n"+
			"Se quiser, posso incluir no seu orçamento — é só me pedir. 🙂",
			match.Name, match.Price, quantity, total)

	case entities.ActionAdd:
		if err := o.cart.AddItem(ctx, key, match.ID, match.Name, match.Price, quantity); err != nil {
			o.logger.Error("cart add failed", "session", key, "error", err)
			return replyUnavailable
		}
		lines, err := o.cart.ListBySession(ctx, key)
		if err != nil {
			o.logger.Error("cart read failed", "session", key, "error", err)
			return replyUnavailable
		}
		return fmt.Sprintf("Prontinho, incluí esta análise no seu orçamento:\n\n"+
			"• %s\n  Quantidade: %d\n  Preço unitário: R$ %.2f\n\n"+
			"Resumo atual:\n%s\nTotal parcial: R$ %.2f\n\n"+
			"Se quiser, podemos adicionar mais análises ou já partir para o fechamento. 💚",
			match.Name, quantity, match.Price, renderCartLines(lines), entities.CartTotal(lines))

	case entities.ActionRemove:
		removed, err := o.cart.RemoveByAnalysis(ctx, key, match.ID)
		if err != nil {
			o.logger.Error("cart remove failed", "session", key, "error", err)
			return replyUnavailable
		}
		if removed == 0 {
			return replyAskWhichToRemove
		}
		lines, err := o.cart.ListBySession(ctx, key)
		if err != nil {
			o.logger.Error("cart read failed", "session", key, "error", err)
			return replyUnavailable
		}
		if len(lines) == 0 {
			return fmt.Sprintf("Prontinho, removi %s do seu orçamento. Ele ficou vazio por enquanto 🌱", match.Name)
		}
		return fmt.Sprintf("Prontinho, removi %s do seu orçamento.\n\n"+
			"Resumo atual:\n%s\nTotal parcial: R$ %.2f",
			match.Name, renderCartLines(lines), entities.CartTotal(lines))

	case entities.ActionFinalize:
		return o.closeQuote(ctx, key)

	default:
		return replyQuoteHowCanIHelp
	}
}

// closeQuote composes the closing message. The cart is intentionally
// left intact so the customer can still adjust it while the order is
// being registered.
func (o *Orchestrator) closeQuote(ctx context.Context, key string) string {
	lines, err := o.cart.ListBySession(ctx, key)
	if err != nil {
		o.logger.Error("cart read failed", "session", key, "error", err)
		return replyUnavailable
	}
	total := entities.CartTotal(lines)
	if total == 0 {
		return replyCartEmptyClose
	}
	draft := fmt.Sprintf("Fechando seu orçamento:\n\n%s\nTotal final: R$ %.2f\n\n"+
		"Agora só preciso dos seus dados (nome, CPF/CNPJ, cidade/UF)\n"+
		"para finalizar o cadastro e combinar o envio das amostras. 💚",
		renderCartLines(lines), total)
	prompt := "Você é Ana Terra.\nGere uma resposta curta explicando que o orçamento foi finalizado.\n\n" + draft
	return o.llm.Reply(ctx, prompt, draft)
}

func (o *Orchestrator) listCatalog(ctx context.Context, key, cpf string, channel entities.Channel, category entities.Category) string {
	term := searchPhrase(category)

	items, err := o.matcher.ListSemantic(ctx, term, 40)
	if err != nil {
		o.logger.Warn("catalog listing search failed", "session", key, "error", err)
		items = nil
	}
	if len(items) == 0 {
		msg := fmt.Sprintf("Cliente pediu uma lista de análises (categoria=%s), mas não encontrei resultados na base.", category)
		return o.escalate(ctx, key, cpf, channel, msg, reasonEmptyCatalog)
	}

	if len(items) > 20 {
		items = items[:20]
	}
	var b strings.Builder
	for i, a := range items {
		if i > 0 {
			b.WriteByte('\n')
		}
		fmt.Fprintf(&b, "• %s (%s) – R$ %.2f por %s", a.Name, a.Lab, a.Price, a.Unit)
	}

	return fmt.Sprintf("Claro! Aqui estão algumas análises relacionadas a **%s**:\n\n%s\n\n"+
		"Se quiser, posso detalhar alguma delas ou já montar o orçamento certinho pra você 🌱",
		term, b.String())
}

func (o *Orchestrator) answerQuestion(ctx context.Context, key, cpf string, channel entities.Channel, question string) string {
	items, err := o.matcher.TopRanked(ctx, question, 3)
	if err != nil {
		o.logger.Warn("question search failed", "session", key, "error", err)
		items = nil
	}
	if len(items) == 0 {
		msg := fmt.Sprintf("Dúvida sobre análise que não consegui ligar a nenhum item cadastrado:\n%q", question)
		return o.escalate(ctx, key, cpf, channel, msg, reasonQANoBase)
	}

	// Retrieved but distant still counts as "no base": answering from a
	// weak match risks describing the wrong analysis.
	if items[0].Distance > o.qaMaxDistance {
		msg := fmt.Sprintf("Dúvida sobre análise com baixa similaridade na base (distância=%.4f):\n%q", items[0].Distance, question)
		return o.escalate(ctx, key, cpf, channel, msg, reasonQALowMatch)
	}

	var b strings.Builder
	for i, a := range items {
		if i > 0 {
			b.WriteString("\n\n")
		}
		fmt.Fprintf(&b, "[%s - %s]\nDescrição: %s", a.Name, a.Lab, a.Description)
	}
	grounding := b.String()

	prompt := fmt.Sprintf(`Você é **Ana Terra**, técnica de laboratório agrícola.
O cliente fez uma pergunta sobre análises laboratoriais.
Use APENAS as informações abaixo para explicar de forma simples e prática,
sem inventar análises novas nem resultados:

CONTEXTO:
%s

Pergunta do cliente:
%q

Responda em tom informal, acolhedor e objetivo,
explicando pra que serve a(s) análise(s), quando é indicada e como ajuda na tomada de decisão.`, grounding, question)

	fallback := "As análises abaixo podem ter relação com a sua dúvida:\n\n" + grounding
	return o.llm.Reply(ctx, prompt, fallback)
}

func (o *Orchestrator) generalReply(ctx context.Context, text string) string {
	prompt := fmt.Sprintf(`O cliente enviou a mensagem abaixo.
Não é exatamente um pedido de orçamento e pode envolver dúvidas gerais sobre agricultura, solo, manejo ou análises.
Responda como **Ana Terra**, de forma simpática, objetiva e útil.

Mensagem:
%q`, text)
	fallback := "Vou tentar te ajudar, mas se eu não conseguir, posso pedir para um atendente humano entrar em contato, combinado? 🙂"
	return o.llm.Reply(ctx, prompt, fallback)
}

// escalate opens a ticket and returns the fixed handoff reply. Ticket
// storage failures never reach the customer; the reply is the same
// either way.
func (o *Orchestrator) escalate(ctx context.Context, key, cpf string, channel entities.Channel, lastMessage, reason string) string {
	err := o.escalations.Open(ctx, entities.EscalationTicket{
		SessionKey:  key,
		CPF:         cpf,
		Channel:     channel,
		Reason:      reason,
		LastMessage: lastMessage,
	})
	if err != nil {
		o.logger.Error("escalation ticket not persisted", "session", key, "reason", reason, "error", err)
	} else {
		o.logger.Info("conversation escalated", "session", key, "reason", reason)
	}
	return replyEscalation
}

// logTurn appends one audit entry. Log failures are swallowed; losing an
// audit row must not break the conversation.
func (o *Orchestrator) logTurn(ctx context.Context, key, cpf string, channel entities.Channel, role entities.ChatRole, message string) {
	if err := o.chatLog.Append(ctx, key, cpf, channel, role, message); err != nil {
		o.logger.Warn("chat log append failed", "session", key, "role", role, "error", err)
	}
}

func isGreeting(lower string) bool {
	for _, g := range greetings {
		if strings.HasPrefix(lower, g) {
			return true
		}
	}
	return false
}

func containsAny(s string, subs ...string) bool {
	for _, sub := range subs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}

// extractCPF strips non-digits and accepts the result only when exactly
// 11 digits remain. No checksum validation.
func extractCPF(text string) string {
	var b strings.Builder
	for _, r := range text {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	if b.Len() != 11 {
		return ""
	}
	return b.String()
}

// extractQuantity takes the first run of digits anywhere in the text,
// defaulting to 1 when there is none or the run does not parse.
func extractQuantity(lower string) int {
	run := digitRun.FindString(lower)
	if run == "" {
		return 1
	}
	q, err := strconv.Atoi(run)
	if err != nil || q <= 0 {
		return 1
	}
	return q
}

func renderCartLines(lines []entities.CartLine) string {
	var b strings.Builder
	for i, l := range lines {
		if i > 0 {
			b.WriteByte('\n')
		}
		fmt.Fprintf(&b, "• %s — %d × R$ %.2f = R$ %.2f", l.Name, l.Quantity, l.UnitPrice, l.Subtotal())
	}
	return b.String()
}

func searchPhrase(category entities.Category) string {
	switch category {
	case entities.CategorySoil:
		return "análises de solo"
	case entities.CategoryPlant:
		return "análises foliares"
	case entities.CategoryEnvironment:
		return "análises de água"
	case entities.CategorySeed:
		return "análises de semente"
	}
	return "análises laboratoriais"
}
