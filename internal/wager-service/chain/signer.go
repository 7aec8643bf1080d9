package chain

import (
	"context"
	"fmt"
	"strings"

	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/programs/system"
	"github.com/gagliardetto/solana-go/rpc"

	"github.com/radieske/contest-wager-ledger/internal/wager-service/domain"
)

// taxa base por assinatura; reservada na checagem de saldo
const baseFeeLamports = 5000

// KeypairSigner assina e envia transferências com um keypair do solana-keygen
type KeypairSigner struct {
	rpc *rpc.Client
	key solana.PrivateKey

	// Approve pede a confirmação do usuário antes de assinar; nil aprova tudo
	Approve func(to string, lamports uint64) bool
}

func NewKeypairSigner(endpoint, keypairPath string) (*KeypairSigner, error) {
	key, err := solana.PrivateKeyFromSolanaKeygenFile(keypairPath)
	if err != nil {
		return nil, fmt.Errorf("load keypair: %w", err)
	}
	return &KeypairSigner{rpc: rpc.New(endpoint), key: key}, nil
}

func (s *KeypairSigner) Address() string { return s.key.PublicKey().String() }

func (s *KeypairSigner) SendTransfer(ctx context.Context, to string, lamports uint64) (string, error) {
	recipient, err := solana.PublicKeyFromBase58(to)
	if err != nil {
		return "", fmt.Errorf("%w: %v", domain.ErrInvalidWallet, err)
	}
	if s.Approve != nil && !s.Approve(to, lamports) {
		return "", domain.ErrUserRejected
	}
	from := s.key.PublicKey()

	bal, err := s.rpc.GetBalance(ctx, from, rpc.CommitmentConfirmed)
	if err != nil {
		return "", fmt.Errorf("get balance: %w", err)
	}
	if bal.Value < lamports+baseFeeLamports {
		return "", fmt.Errorf("%w: have %d, need %d", domain.ErrInsufficientFunds, bal.Value, lamports+baseFeeLamports)
	}

	recent, err := s.rpc.GetLatestBlockhash(ctx, rpc.CommitmentFinalized)
	if err != nil {
		return "", fmt.Errorf("latest blockhash: %w", err)
	}

	tx, err := solana.NewTransaction(
		[]solana.Instruction{system.NewTransferInstruction(lamports, from, recipient).Build()},
		recent.Value.Blockhash,
		solana.TransactionPayer(from),
	)
	if err != nil {
		return "", fmt.Errorf("build transaction: %w", err)
	}

	if _, err := tx.Sign(func(k solana.PublicKey) *solana.PrivateKey {
		if k.Equals(from) {
			return &s.key
		}
		return nil
	}); err != nil {
		return "", fmt.Errorf("sign transaction: %w", err)
	}

	sig, err := s.rpc.SendTransactionWithOpts(ctx, tx, rpc.TransactionOpts{
		PreflightCommitment: rpc.CommitmentConfirmed,
	})
	if err != nil {
		if strings.Contains(strings.ToLower(err.Error()), "insufficient") {
			return "", fmt.Errorf("%w: %v", domain.ErrInsufficientFunds, err)
		}
		return "", fmt.Errorf("send transaction: %w", err)
	}
	return sig.String(), nil
}
