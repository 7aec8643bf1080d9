package chain

import (
	"context"
	"errors"
	"fmt"

	bin "github.com/gagliardetto/binary"
	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"

	"github.com/radieske/contest-wager-ledger/internal/wager-service/domain"
)

// instrução Transfer do System Program
const systemTransferType = 2

// Solana consulta transações e saldos via JSON-RPC
type Solana struct {
	rpc        *rpc.Client
	commitment rpc.CommitmentType
}

func NewSolana(endpoint string) *Solana {
	return &Solana{rpc: rpc.New(endpoint), commitment: rpc.CommitmentConfirmed}
}

// GetTransfer busca a transação confirmada e extrai a primeira transferência nativa
func (s *Solana) GetTransfer(ctx context.Context, signature string) (domain.Transfer, error) {
	sig, err := solana.SignatureFromBase58(signature)
	if err != nil {
		return domain.Transfer{}, fmt.Errorf("%w: %v", domain.ErrInvalidSignature, err)
	}

	version := uint64(0)
	res, err := s.rpc.GetTransaction(ctx, sig, &rpc.GetTransactionOpts{
		Encoding:                       solana.EncodingBase64,
		Commitment:                     s.commitment,
		MaxSupportedTransactionVersion: &version,
	})
	if errors.Is(err, rpc.ErrNotFound) {
		return domain.Transfer{}, domain.ErrNotFound
	}
	if err != nil {
		return domain.Transfer{}, fmt.Errorf("get transaction: %w", err)
	}
	if res == nil || res.Transaction == nil {
		return domain.Transfer{}, domain.ErrNotFound
	}

	tx, err := res.Transaction.GetTransaction()
	if err != nil {
		return domain.Transfer{}, fmt.Errorf("decode transaction: %w", err)
	}

	out := decodeSystemTransfer(tx)
	out.Signature = signature
	out.Slot = res.Slot
	if res.BlockTime != nil {
		out.BlockTime = res.BlockTime.Time().UTC()
	}
	out.Failed = res.Meta != nil && res.Meta.Err != nil
	return out, nil
}

// decodeSystemTransfer retorna a primeira instrução SystemProgram.Transfer.
// Sem transferência, devolve apenas o fee payer e recipient vazio.
func decodeSystemTransfer(tx *solana.Transaction) domain.Transfer {
	var out domain.Transfer
	keys := tx.Message.AccountKeys
	if len(keys) > 0 {
		out.Payer = keys[0].String()
	}

	for _, instr := range tx.Message.Instructions {
		if int(instr.ProgramIDIndex) >= len(keys) || keys[instr.ProgramIDIndex] != solana.SystemProgramID {
			continue
		}
		if len(instr.Data) < 12 || len(instr.Accounts) < 2 {
			continue
		}

		dec := bin.NewBorshDecoder(instr.Data)
		var kind uint32
		if err := dec.Decode(&kind); err != nil || kind != systemTransferType {
			continue
		}
		var lamports uint64
		if err := dec.Decode(&lamports); err != nil {
			continue
		}

		from, to := instr.Accounts[0], instr.Accounts[1]
		if int(from) >= len(keys) || int(to) >= len(keys) {
			continue
		}
		out.Payer = keys[from].String()
		out.Recipient = keys[to].String()
		out.Lamports = lamports
		return out
	}
	return out
}

func (s *Solana) Balance(ctx context.Context, address string) (uint64, error) {
	pk, err := solana.PublicKeyFromBase58(address)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", domain.ErrInvalidWallet, err)
	}
	res, err := s.rpc.GetBalance(ctx, pk, s.commitment)
	if err != nil {
		return 0, fmt.Errorf("get balance: %w", err)
	}
	return res.Value, nil
}

// Ping é usado pelo /healthz
func (s *Solana) Ping(ctx context.Context) error {
	_, err := s.rpc.GetHealth(ctx)
	return err
}
