package usecases

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ibralab/anaterra/internal/entities"
	"github.com/ibralab/anaterra/internal/log"
)

// scriptedLLM answers the two classifier prompts with canned JSON and
// returns the fallback draft for natural replies.
type scriptedLLM struct {
	intentJSON string
	actionJSON string
}

func (s *scriptedLLM) Reply(_ context.Context, _, fallback string) string {
	return fallback
}

func (s *scriptedLLM) Complete(_ context.Context, _, user, fallback string) string {
	if strings.Contains(user, "classificador de AÇÃO") {
		if s.actionJSON == "" {
			return fallback
		}
		return s.actionJSON
	}
	if s.intentJSON == "" {
		return fallback
	}
	return s.intentJSON
}

type fixedEmbedder struct{}

func (fixedEmbedder) Embed(context.Context, string) ([]float32, error) {
	return []float32{0.1, 0.2, 0.3}, nil
}

type fakeSearcher struct {
	items []entities.ScoredItem
}

func (f *fakeSearcher) Search(_ context.Context, _ []float32, limit int) ([]entities.ScoredItem, error) {
	if len(f.items) > limit {
		return f.items[:limit], nil
	}
	return f.items, nil
}

type memSessions struct {
	m map[string]*entities.Session
}

func newMemSessions() *memSessions {
	return &memSessions{m: map[string]*entities.Session{}}
}

func (s *memSessions) Upsert(_ context.Context, key string, channel entities.Channel, customer string) error {
	if existing, ok := s.m[key]; ok {
		if existing.Customer == "" {
			existing.Customer = customer
		}
		existing.UpdatedAt = time.Now()
		return nil
	}
	now := time.Now()
	s.m[key] = &entities.Session{Key: key, Channel: channel, Customer: customer, CreatedAt: now, UpdatedAt: now}
	return nil
}

func (s *memSessions) Find(_ context.Context, key string) (*entities.Session, error) {
	sess, ok := s.m[key]
	if !ok {
		return nil, nil
	}
	cp := *sess
	return &cp, nil
}

func (s *memSessions) SetCPF(_ context.Context, key, cpf string) error {
	if sess, ok := s.m[key]; ok && sess.CPF == "" {
		sess.CPF = cpf
	}
	return nil
}

type memCart struct {
	lines  []entities.CartLine
	nextID int64
}

func (c *memCart) AddItem(_ context.Context, sessionKey string, analysisID int64, name string, unitPrice float64, quantity int) error {
	c.nextID++
	c.lines = append(c.lines, entities.CartLine{
		ID: c.nextID, SessionKey: sessionKey, AnalysisID: analysisID,
		Name: name, UnitPrice: unitPrice, Quantity: quantity, CreatedAt: time.Now(),
	})
	return nil
}

func (c *memCart) ListBySession(_ context.Context, sessionKey string) ([]entities.CartLine, error) {
	var out []entities.CartLine
	for _, l := range c.lines {
		if l.SessionKey == sessionKey {
			out = append(out, l)
		}
	}
	return out, nil
}

func (c *memCart) Clear(_ context.Context, sessionKey string) error {
	var kept []entities.CartLine
	for _, l := range c.lines {
		if l.SessionKey != sessionKey {
			kept = append(kept, l)
		}
	}
	c.lines = kept
	return nil
}

func (c *memCart) RemoveByAnalysis(_ context.Context, sessionKey string, analysisID int64) (int64, error) {
	var kept []entities.CartLine
	var removed int64
	for _, l := range c.lines {
		if l.SessionKey == sessionKey && l.AnalysisID == analysisID {
			removed++
			continue
		}
		kept = append(kept, l)
	}
	c.lines = kept
	return removed, nil
}

type memEscalations struct {
	tickets []entities.EscalationTicket
}

func (e *memEscalations) Open(_ context.Context, t entities.EscalationTicket) error {
	e.tickets = append(e.tickets, t)
	return nil
}

type memChatLog struct {
	entries []entities.ChatLogEntry
}

func (l *memChatLog) Append(_ context.Context, sessionKey, cpf string, channel entities.Channel, role entities.ChatRole, message string) error {
	l.entries = append(l.entries, entities.ChatLogEntry{
		SessionKey: sessionKey, CPF: cpf, Channel: channel, Role: role, Message: message,
	})
	return nil
}

type fixture struct {
	orch        *Orchestrator
	llm         *scriptedLLM
	searcher    *fakeSearcher
	sessions    *memSessions
	cart        *memCart
	escalations *memEscalations
	chatLog     *memChatLog
}

func newFixture() *fixture {
	llm := &scriptedLLM{}
	searcher := &fakeSearcher{}
	sessions := newMemSessions()
	cart := &memCart{}
	escalations := &memEscalations{}
	chatLog := &memChatLog{}
	logger := log.NewNop()

	matcher := NewCatalogMatcher(fixedEmbedder{}, searcher, 0.98, logger)
	orch := NewOrchestrator(OrchestratorDeps{
		Sessions:      sessions,
		Cart:          cart,
		Escalations:   escalations,
		ChatLog:       chatLog,
		LLM:           llm,
		Intents:       NewIntentClassifier(llm, logger),
		Actions:       NewActionClassifier(llm, logger),
		Matcher:       matcher,
		QAMaxDistance: 0.8,
		Logger:        logger,
	})
	return &fixture{
		orch: orch, llm: llm, searcher: searcher,
		sessions: sessions, cart: cart, escalations: escalations, chatLog: chatLog,
	}
}

// registerCPF pushes a session past the CPF gate.
func (f *fixture) registerCPF(t *testing.T, channel entities.Channel, rawID, cpf string) {
	t.Helper()
	reply := f.orch.ProcessMessage(context.Background(), channel, rawID, cpf)
	require.Equal(t, replyCPFConfirmed, reply)
}

func soilItem(price float64, distance float64) entities.ScoredItem {
	return entities.ScoredItem{
		CatalogItem: entities.CatalogItem{
			ID: 7, Name: "Análise de Solo Completa", Description: "Macro e micronutrientes",
			Price: price, Unit: "amostra", Type: "solo", Lab: "IBRA",
		},
		Distance: distance,
	}
}

func TestProcessMessageBlankInput(t *testing.T) {
	t.Parallel()
	f := newFixture()

	reply := f.orch.ProcessMessage(context.Background(), entities.ChannelWeb, "abc", "   \n\t ")

	assert.Equal(t, replyNotUnderstood, reply)
	assert.Empty(t, f.chatLog.entries, "blank input must not be logged")
	assert.Empty(t, f.sessions.m, "blank input must not create a session")
}

func TestProcessMessageGreeting(t *testing.T) {
	t.Parallel()

	t.Run("fresh web session gets greeting plus cpf request", func(t *testing.T) {
		t.Parallel()
		f := newFixture()

		reply := f.orch.ProcessMessage(context.Background(), entities.ChannelWeb, "u1", "Oi")

		assert.Contains(t, reply, "Ana Terra")
		assert.Contains(t, reply, "seu CPF")
		sess, err := f.sessions.Find(context.Background(), "web:u1")
		require.NoError(t, err)
		require.NotNil(t, sess)
		assert.Empty(t, sess.CPF, "greeting must not capture a cpf")
	})

	t.Run("greeting beats the cpf gate", func(t *testing.T) {
		t.Parallel()
		f := newFixture()

		reply := f.orch.ProcessMessage(context.Background(), entities.ChannelWeb, "u1", "bom dia, tudo bem?")

		assert.NotEqual(t, replyAskCPF, reply)
		assert.Contains(t, reply, "seu CPF")
	})

	t.Run("email channel uses its own draft", func(t *testing.T) {
		t.Parallel()
		f := newFixture()

		reply := f.orch.ProcessMessage(context.Background(), entities.ChannelEmail, "ana@farm.br", "olá")

		assert.Contains(t, reply, "Olá!")
	})

	t.Run("no cpf suffix once cpf is known", func(t *testing.T) {
		t.Parallel()
		f := newFixture()
		f.orch.ProcessMessage(context.Background(), entities.ChannelWeb, "u1", "primeira mensagem")
		f.registerCPF(t, entities.ChannelWeb, "u1", "12345678901")

		reply := f.orch.ProcessMessage(context.Background(), entities.ChannelWeb, "u1", "oi de novo")

		assert.NotContains(t, reply, "seu CPF")
	})
}

func TestProcessMessageCPFGate(t *testing.T) {
	t.Parallel()

	t.Run("eleven digits are captured", func(t *testing.T) {
		t.Parallel()
		f := newFixture()

		reply := f.orch.ProcessMessage(context.Background(), entities.ChannelWeb, "u1", "12345678901")

		assert.Equal(t, replyCPFConfirmed, reply)
		sess, _ := f.sessions.Find(context.Background(), "web:u1")
		assert.Equal(t, "12345678901", sess.CPF)
	})

	t.Run("formatting is stripped", func(t *testing.T) {
		t.Parallel()
		f := newFixture()

		reply := f.orch.ProcessMessage(context.Background(), entities.ChannelWeb, "u1", "meu cpf é 123.456.789-01")

		assert.Equal(t, replyCPFConfirmed, reply)
		sess, _ := f.sessions.Find(context.Background(), "web:u1")
		assert.Equal(t, "12345678901", sess.CPF)
	})

	t.Run("wrong digit count re-prompts", func(t *testing.T) {
		t.Parallel()
		f := newFixture()

		reply := f.orch.ProcessMessage(context.Background(), entities.ChannelWeb, "u1", "1234")

		assert.Equal(t, replyAskCPF, reply)
		sess, _ := f.sessions.Find(context.Background(), "web:u1")
		assert.Empty(t, sess.CPF)
	})

	t.Run("cpf is immutable once set", func(t *testing.T) {
		t.Parallel()
		f := newFixture()
		f.llm.intentJSON = `{"intencao":"orcamento_analise","categoria":"solo"}`
		f.searcher.items = []entities.ScoredItem{soilItem(50, 0.1)}
		f.llm.actionJSON = `{"acao":"SO_PRECO"}`
		f.registerCPF(t, entities.ChannelWeb, "u1", "12345678901")

		f.orch.ProcessMessage(context.Background(), entities.ChannelWeb, "u1", "98765432100")

		sess, _ := f.sessions.Find(context.Background(), "web:u1")
		assert.Equal(t, "12345678901", sess.CPF, "a second 11-digit message must not overwrite the cpf")
	})
}

func TestProcessMessageEscalatesHumanIntents(t *testing.T) {
	t.Parallel()

	for _, intent := range []string{"humano", "duvida_geral", "outro"} {
		t.Run(intent, func(t *testing.T) {
			t.Parallel()
			f := newFixture()
			f.llm.intentJSON = `{"intencao":"` + intent + `","categoria":"desconhecida"}`
			f.registerCPF(t, entities.ChannelWeb, "u1", "12345678901")

			reply := f.orch.ProcessMessage(context.Background(), entities.ChannelWeb, "u1", "problema com meu laudo")

			assert.Equal(t, replyEscalation, reply)
			require.Len(t, f.escalations.tickets, 1)
			ticket := f.escalations.tickets[0]
			assert.Equal(t, "classificador_intencao_humano", ticket.Reason)
			assert.Equal(t, "web:u1", ticket.SessionKey)
			assert.Equal(t, "12345678901", ticket.CPF)
			assert.Equal(t, "problema com meu laudo", ticket.LastMessage)
		})
	}
}

func TestProcessMessageGeneralChatFlag(t *testing.T) {
	t.Parallel()
	f := newFixture()
	f.orch.generalChat = true
	f.llm.intentJSON = `{"intencao":"duvida_geral","categoria":"desconhecida"}`
	f.registerCPF(t, entities.ChannelWeb, "u1", "12345678901")

	reply := f.orch.ProcessMessage(context.Background(), entities.ChannelWeb, "u1", "vai chover essa semana?")

	assert.NotEqual(t, replyEscalation, reply)
	assert.Empty(t, f.escalations.tickets)
}

func TestQuoteFlow(t *testing.T) {
	t.Parallel()

	quoteFixture := func(t *testing.T) *fixture {
		t.Helper()
		f := newFixture()
		f.llm.intentJSON = `{"intencao":"orcamento_analise","categoria":"solo"}`
		f.searcher.items = []entities.ScoredItem{soilItem(50, 0.1)}
		f.registerCPF(t, entities.ChannelWeb, "u1", "12345678901")
		return f
	}

	t.Run("adicionar appends a line and shows the new total", func(t *testing.T) {
		t.Parallel()
		f := quoteFixture(t)
		f.llm.actionJSON = `{"acao":"ADICIONAR"}`

		reply := f.orch.ProcessMessage(context.Background(), entities.ChannelWeb, "u1",
			"quero orçar análise de solo, 5 amostras")

		require.Len(t, f.cart.lines, 1)
		line := f.cart.lines[0]
		assert.Equal(t, 5, line.Quantity)
		assert.Equal(t, 50.0, line.UnitPrice)
		assert.Equal(t, int64(7), line.AnalysisID)
		assert.Contains(t, reply, "R$ 250.00")
	})

	t.Run("so_preco quotes without touching the cart", func(t *testing.T) {
		t.Parallel()
		f := quoteFixture(t)
		f.llm.actionJSON = `{"acao":"SO_PRECO"}`

		reply := f.orch.ProcessMessage(context.Background(), entities.ChannelWeb, "u1",
			"quanto custa análise de solo")

		assert.Empty(t, f.cart.lines)
		assert.Contains(t, reply, "R$ 50.00")
	})

	t.Run("price snapshot survives catalog price changes", func(t *testing.T) {
		t.Parallel()
		f := quoteFixture(t)
		f.llm.actionJSON = `{"acao":"ADICIONAR"}`
		f.orch.ProcessMessage(context.Background(), entities.ChannelWeb, "u1", "adiciona 2 análises de solo")

		f.searcher.items = []entities.ScoredItem{soilItem(80, 0.1)}
		reply := f.orch.ProcessMessage(context.Background(), entities.ChannelWeb, "u1", "resumo")

		assert.Contains(t, reply, "R$ 100.00", "existing lines keep the price captured at add time")
	})

	t.Run("no match inside threshold escalates", func(t *testing.T) {
		t.Parallel()
		f := quoteFixture(t)
		f.searcher.items = []entities.ScoredItem{soilItem(50, 1.5)}

		reply := f.orch.ProcessMessage(context.Background(), entities.ChannelWeb, "u1",
			"quero orçar análise de mel de abelha")

		assert.Equal(t, replyEscalation, reply)
		require.Len(t, f.escalations.tickets, 1)
		assert.Equal(t, "analise_nao_encontrada_fluxo_orcamento", f.escalations.tickets[0].Reason)
		assert.Empty(t, f.cart.lines)
	})

	t.Run("over a thousand samples escalates regardless of action", func(t *testing.T) {
		t.Parallel()
		f := quoteFixture(t)
		f.llm.actionJSON = `{"acao":"ADICIONAR"}`

		reply := f.orch.ProcessMessage(context.Background(), entities.ChannelWeb, "u1",
			"quero 1500 análises de solo")

		assert.Equal(t, replyEscalation, reply)
		require.Len(t, f.escalations.tickets, 1)
		assert.Equal(t, "quantidade_amostras_maior_1000 (1500)", f.escalations.tickets[0].Reason)
		assert.Empty(t, f.cart.lines)
	})

	t.Run("remover deletes the matched item's lines", func(t *testing.T) {
		t.Parallel()
		f := quoteFixture(t)
		f.llm.actionJSON = `{"acao":"ADICIONAR"}`
		f.orch.ProcessMessage(context.Background(), entities.ChannelWeb, "u1", "adiciona 2 análises de solo")
		require.Len(t, f.cart.lines, 1)

		f.llm.actionJSON = `{"acao":"REMOVER"}`
		reply := f.orch.ProcessMessage(context.Background(), entities.ChannelWeb, "u1", "tira a análise de solo")

		assert.Empty(t, f.cart.lines)
		assert.Contains(t, reply, "removi")
	})

	t.Run("remover with nothing to remove asks which one", func(t *testing.T) {
		t.Parallel()
		f := quoteFixture(t)
		f.llm.actionJSON = `{"acao":"REMOVER"}`

		reply := f.orch.ProcessMessage(context.Background(), entities.ChannelWeb, "u1", "remove a análise de solo")

		assert.Equal(t, replyAskWhichToRemove, reply)
	})

	t.Run("limpar clears the cart before any catalog lookup", func(t *testing.T) {
		t.Parallel()
		f := quoteFixture(t)
		f.llm.actionJSON = `{"acao":"ADICIONAR"}`
		f.orch.ProcessMessage(context.Background(), entities.ChannelWeb, "u1", "adiciona 2 análises de solo")

		reply := f.orch.ProcessMessage(context.Background(), entities.ChannelWeb, "u1", "pode limpar tudo")

		assert.Equal(t, replyCartCleared, reply)
		assert.Empty(t, f.cart.lines)
	})

	t.Run("resumo with empty cart", func(t *testing.T) {
		t.Parallel()
		f := quoteFixture(t)

		reply := f.orch.ProcessMessage(context.Background(), entities.ChannelWeb, "u1", "me mostra o resumo")

		assert.Equal(t, replyCartEmptySummary, reply)
	})

	t.Run("fechar with empty cart", func(t *testing.T) {
		t.Parallel()
		f := quoteFixture(t)

		reply := f.orch.ProcessMessage(context.Background(), entities.ChannelWeb, "u1", "quero fechar o orçamento")

		assert.Equal(t, replyCartEmptyClose, reply)
	})

	t.Run("fechar keeps the cart intact", func(t *testing.T) {
		t.Parallel()
		f := quoteFixture(t)
		f.llm.actionJSON = `{"acao":"ADICIONAR"}`
		f.orch.ProcessMessage(context.Background(), entities.ChannelWeb, "u1", "adiciona 3 análises de solo")

		reply := f.orch.ProcessMessage(context.Background(), entities.ChannelWeb, "u1", "pode fechar")

		assert.Contains(t, reply, "Total final: R$ 150.00")
		assert.Len(t, f.cart.lines, 1, "closing must not clear the cart")
	})
}

func TestCatalogListing(t *testing.T) {
	t.Parallel()

	t.Run("renders matches as a bulleted list", func(t *testing.T) {
		t.Parallel()
		f := newFixture()
		f.llm.intentJSON = `{"intencao":"listar_analises","categoria":"solo"}`
		f.searcher.items = []entities.ScoredItem{
			soilItem(50, 0.2),
			{CatalogItem: entities.CatalogItem{ID: 8, Name: "Textura do Solo", Price: 30, Unit: "amostra", Lab: "IBRA"}, Distance: 0.3},
		}
		f.registerCPF(t, entities.ChannelWeb, "u1", "12345678901")

		reply := f.orch.ProcessMessage(context.Background(), entities.ChannelWeb, "u1", "quais análises de solo vocês fazem?")

		assert.Contains(t, reply, "análises de solo")
		assert.Contains(t, reply, "• Análise de Solo Completa (IBRA) – R$ 50.00 por amostra")
		assert.Contains(t, reply, "• Textura do Solo (IBRA) – R$ 30.00 por amostra")
	})

	t.Run("empty catalog escalates", func(t *testing.T) {
		t.Parallel()
		f := newFixture()
		f.llm.intentJSON = `{"intencao":"listar_analises","categoria":"semente"}`
		f.registerCPF(t, entities.ChannelWeb, "u1", "12345678901")

		reply := f.orch.ProcessMessage(context.Background(), entities.ChannelWeb, "u1", "lista de análises de semente")

		assert.Equal(t, replyEscalation, reply)
		require.Len(t, f.escalations.tickets, 1)
		assert.Equal(t, "lista_analises_vazia", f.escalations.tickets[0].Reason)
	})
}

func TestCatalogQuestion(t *testing.T) {
	t.Parallel()

	t.Run("confident match answers from the retrieved items", func(t *testing.T) {
		t.Parallel()
		f := newFixture()
		f.llm.intentJSON = `{"intencao":"duvida_analise","categoria":"solo"}`
		f.searcher.items = []entities.ScoredItem{soilItem(50, 0.4)}
		f.registerCPF(t, entities.ChannelWeb, "u1", "12345678901")

		reply := f.orch.ProcessMessage(context.Background(), entities.ChannelWeb, "u1", "pra que serve a análise de solo completa?")

		assert.Contains(t, reply, "Análise de Solo Completa")
		assert.Contains(t, reply, "Macro e micronutrientes")
		assert.Empty(t, f.escalations.tickets)
	})

	t.Run("weak top match escalates", func(t *testing.T) {
		t.Parallel()
		f := newFixture()
		f.llm.intentJSON = `{"intencao":"duvida_analise","categoria":"desconhecida"}`
		f.searcher.items = []entities.ScoredItem{soilItem(50, 0.9)}
		f.registerCPF(t, entities.ChannelWeb, "u1", "12345678901")

		reply := f.orch.ProcessMessage(context.Background(), entities.ChannelWeb, "u1", "o que é cromatografia gasosa?")

		assert.Equal(t, replyEscalation, reply)
		require.Len(t, f.escalations.tickets, 1)
		assert.Equal(t, "duvida_analise_baixa_similaridade", f.escalations.tickets[0].Reason)
	})

	t.Run("no results escalates", func(t *testing.T) {
		t.Parallel()
		f := newFixture()
		f.llm.intentJSON = `{"intencao":"duvida_analise","categoria":"desconhecida"}`
		f.registerCPF(t, entities.ChannelWeb, "u1", "12345678901")

		reply := f.orch.ProcessMessage(context.Background(), entities.ChannelWeb, "u1", "dúvida qualquer")

		assert.Equal(t, replyEscalation, reply)
		require.Len(t, f.escalations.tickets, 1)
		assert.Equal(t, "duvida_analise_sem_base", f.escalations.tickets[0].Reason)
	})
}

func TestChatLogRoles(t *testing.T) {
	t.Parallel()
	f := newFixture()

	f.orch.ProcessMessage(context.Background(), entities.ChannelWeb, "u1", "Oi")

	require.Len(t, f.chatLog.entries, 2)
	assert.Equal(t, entities.RoleUser, f.chatLog.entries[0].Role)
	assert.Equal(t, "Oi", f.chatLog.entries[0].Message)
	assert.Equal(t, entities.RoleBot, f.chatLog.entries[1].Role)
}

func TestChatLogCarriesPostMutationCPF(t *testing.T) {
	t.Parallel()
	f := newFixture()
	f.orch.ProcessMessage(context.Background(), entities.ChannelWeb, "u1", "primeira")

	f.orch.ProcessMessage(context.Background(), entities.ChannelWeb, "u1", "12345678901")

	require.Len(t, f.chatLog.entries, 4)
	assert.Empty(t, f.chatLog.entries[2].CPF, "inbound entry logged before the cpf was known")
	assert.Equal(t, "12345678901", f.chatLog.entries[3].CPF, "outbound entry carries the freshly captured cpf")
}

func TestExtractQuantity(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name string
		text string
		want int
	}{
		{"no digits defaults to one", "quero análise de solo", 1},
		{"single number", "quero 5 amostras", 5},
		{"first run wins", "quero 3 análises de solo, código 12", 3},
		{"zero defaults to one", "quero 0 amostras", 1},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tc.want, extractQuantity(tc.text))
		})
	}
}

func TestExtractCPF(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name string
		text string
		want string
	}{
		{"bare digits", "12345678901", "12345678901"},
		{"formatted", "123.456.789-01", "12345678901"},
		{"embedded in prose", "meu cpf é 12345678901, pode anotar", "12345678901"},
		{"too short", "123456", ""},
		{"too long", "123456789012", ""},
		{"no digits", "não tenho", ""},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tc.want, extractCPF(tc.text))
		})
	}
}

func TestIsGreeting(t *testing.T) {
	t.Parallel()

	assert.True(t, isGreeting("oi"))
	assert.True(t, isGreeting("olá, tudo bem?"))
	assert.True(t, isGreeting("bom dia!"))
	assert.True(t, isGreeting("eai"))
	assert.False(t, isGreeting("quero um orçamento"))
	assert.False(t, isGreeting("preciso de análise de solo"))
}
