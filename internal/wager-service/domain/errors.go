package domain

import "errors"

var (
	ErrInvalidAmount      = errors.New("invalid amount")
	ErrInvalidWallet      = errors.New("invalid wallet address")
	ErrInvalidSignature   = errors.New("invalid signature")
	ErrUnknownParticipant = errors.New("unknown participant")
	ErrUnknownIntent      = errors.New("unknown intent")
	ErrExpired            = errors.New("intent expired")
	ErrIntentRejected     = errors.New("intent rejected")
	ErrIntentClosed       = errors.New("intent already confirmed with another signature")

	ErrNotFound          = errors.New("transaction not found")
	ErrAmountMismatch    = errors.New("amount mismatch")
	ErrRecipientMismatch = errors.New("recipient mismatch")
	ErrPayerMismatch     = errors.New("payer mismatch")
	ErrTransferFailed    = errors.New("transaction failed on chain")
	ErrVerifierTimeout   = errors.New("verifier timeout")

	// ErrDuplicateSignature não é fatal: o chamador recebe a aposta já registrada
	ErrDuplicateSignature = errors.New("duplicate signature")
	ErrSignatureReused    = errors.New("signature already settled for another intent")
	ErrStoreUnavailable   = errors.New("store unavailable")

	// capacidade de assinatura da carteira
	ErrUserRejected      = errors.New("user rejected")
	ErrInsufficientFunds = errors.New("insufficient funds")
)

var kinds = []struct {
	err  error
	kind string
}{
	{ErrInvalidAmount, "INVALID_AMOUNT"},
	{ErrInvalidWallet, "INVALID_WALLET"},
	{ErrInvalidSignature, "INVALID_SIGNATURE"},
	{ErrUnknownParticipant, "UNKNOWN_PARTICIPANT"},
	{ErrUnknownIntent, "UNKNOWN_INTENT"},
	{ErrExpired, "EXPIRED"},
	{ErrIntentRejected, "INTENT_REJECTED"},
	{ErrIntentClosed, "INTENT_CLOSED"},
	{ErrNotFound, "NOT_FOUND"},
	{ErrAmountMismatch, "AMOUNT_MISMATCH"},
	{ErrRecipientMismatch, "RECIPIENT_MISMATCH"},
	{ErrPayerMismatch, "PAYER_MISMATCH"},
	{ErrTransferFailed, "TRANSFER_FAILED"},
	{ErrVerifierTimeout, "VERIFIER_TIMEOUT"},
	{ErrDuplicateSignature, "DUPLICATE_SIGNATURE"},
	{ErrSignatureReused, "SIGNATURE_REUSED"},
	{ErrStoreUnavailable, "STORE_UNAVAILABLE"},
	{ErrUserRejected, "USER_REJECTED"},
	{ErrInsufficientFunds, "INSUFFICIENT_FUNDS"},
}

// Kind retorna o código estável do erro (usado em respostas HTTP, motivos e labels de métricas)
func Kind(err error) string {
	if err == nil {
		return ""
	}
	for _, k := range kinds {
		if errors.Is(err, k.err) {
			return k.kind
		}
	}
	return "INTERNAL"
}

// Rejecting indica se o erro de verificação encerra a intenção como REJECTED.
// Timeout e falhas de infraestrutura não rejeitam: o chamador pode tentar de novo.
func Rejecting(err error) bool {
	return errors.Is(err, ErrNotFound) ||
		errors.Is(err, ErrAmountMismatch) ||
		errors.Is(err, ErrRecipientMismatch) ||
		errors.Is(err, ErrPayerMismatch) ||
		errors.Is(err, ErrTransferFailed)
}
