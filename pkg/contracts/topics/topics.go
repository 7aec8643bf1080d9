package topics

const (
	// Intenções
	BetIntentCreated  = "bet_intent_created"
	BetIntentRejected = "bet_intent_rejected"

	// Liquidação
	BetSettled = "bet_settled"
)

