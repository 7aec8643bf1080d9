package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/radieske/contest-wager-ledger/internal/shared/config"
	"github.com/radieske/contest-wager-ledger/internal/wager-service/chain"
	"github.com/radieske/contest-wager-ledger/internal/wager-service/client"
)

// SignerFactory cria a carteira usada pelo comando bet
type SignerFactory func(rpcURL, keypairPath string, approve func(to string, lamports uint64) bool) (chain.Signer, error)

// RootOptions guarda as flags globais
type RootOptions struct {
	APIURL  string
	RPCURL  string
	Keypair string
	Format  string // "text" | "json"

	NewSigner SignerFactory
}

var ValidFormats = []string{"text", "json"}

// NewRootCommand monta o CLI do simulador de carteira.
// signer nil usa o keypair do solana-keygen contra a RPC configurada.
func NewRootCommand(cfg config.Config, signer SignerFactory) *cobra.Command {
	if signer == nil {
		signer = keypairSigner
	}
	opts := &RootOptions{NewSigner: signer}

	cmd := &cobra.Command{
		Use:   "wallet-simulator",
		Short: "Simula a carteira do apostador contra o wager-service",
		Long: `Cria intenções de aposta, paga a plataforma com um keypair do solana-keygen
e envia a assinatura para liquidação. Também lista participantes e o histórico da carteira.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			for _, f := range ValidFormats {
				if f == opts.Format {
					return nil
				}
			}
			return fmt.Errorf("invalid format %q: must be one of %v", opts.Format, ValidFormats)
		},
	}

	cmd.PersistentFlags().StringVar(&opts.APIURL, "api", cfg.WagerURL, "URL do wager-service")
	cmd.PersistentFlags().StringVar(&opts.RPCURL, "rpc", cfg.SolanaRPCURL, "endpoint JSON-RPC da Solana")
	cmd.PersistentFlags().StringVar(&opts.Keypair, "keypair", defaultKeypair(), "arquivo de keypair do solana-keygen")
	cmd.PersistentFlags().StringVar(&opts.Format, "format", "text", "formato de saída (text|json)")

	cmd.AddCommand(NewParticipantsCommand(opts))
	cmd.AddCommand(NewAccountCommand(opts))
	cmd.AddCommand(NewBetCommand(opts, cfg.PlatformAddress))

	return cmd
}

func keypairSigner(rpcURL, keypairPath string, approve func(string, uint64) bool) (chain.Signer, error) {
	s, err := chain.NewKeypairSigner(rpcURL, keypairPath)
	if err != nil {
		return nil, err
	}
	s.Approve = approve
	return s, nil
}

func defaultKeypair() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".config", "solana", "id.json")
}

func (o *RootOptions) client() *client.Client { return client.New(o.APIURL) }

// print escreve v como JSON ou com a função de texto
func (o *RootOptions) print(w io.Writer, v any, text func(io.Writer)) error {
	if o.Format == "json" {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	}
	text(w)
	return nil
}
