package entities

// Intent is what the customer wants from the bot, as decided by the
// intent classifier. The string values are part of the model prompt
// contract and must not be renamed.
type Intent string

const (
	IntentQuote    Intent = "orcamento_analise"
	IntentList     Intent = "listar_analises"
	IntentQuestion Intent = "duvida_analise"
	IntentGeneral  Intent = "duvida_geral"
	IntentHuman    Intent = "humano"
	IntentOther    Intent = "outro"
)

// ParseIntent maps classifier output onto the closed enum. Anything the
// model invents collapses to IntentOther.
func ParseIntent(s string) Intent {
	switch Intent(s) {
	case IntentQuote, IntentList, IntentQuestion, IntentGeneral, IntentHuman, IntentOther:
		return Intent(s)
	}
	return IntentOther
}

// Category is the sample matrix the customer is asking about. Empty
// means the classifier could not tell.
type Category string

const (
	CategorySoil        Category = "solo"
	CategoryPlant       Category = "vegetal"
	CategoryEnvironment Category = "ambiental"
	CategorySeed        Category = "semente"
)

// ParseCategory maps classifier output onto the closed enum. The model's
// "desconhecida" marker and anything unexpected normalize to empty.
func ParseCategory(s string) Category {
	switch Category(s) {
	case CategorySoil, CategoryPlant, CategoryEnvironment, CategorySeed:
		return Category(s)
	}
	return ""
}

// Action is what the customer wants done with a specific catalog item
// inside the quote flow.
type Action string

const (
	ActionPriceOnly Action = "SO_PRECO"
	ActionAdd       Action = "ADICIONAR"
	ActionRemove    Action = "REMOVER"
	ActionFinalize  Action = "FINALIZAR"
	ActionOther     Action = "OUTRO"
)

// ParseAction maps classifier output onto the closed enum, defaulting to
// ActionOther.
func ParseAction(s string) Action {
	switch Action(s) {
	case ActionPriceOnly, ActionAdd, ActionRemove, ActionFinalize, ActionOther:
		return Action(s)
	}
	return ActionOther
}
