package cli

import (
	"bufio"
	"fmt"
	"io"
	"strings"

	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"

	"github.com/radieske/contest-wager-ledger/internal/wager-service/domain"
)

type betOptions struct {
	participant int
	amount      string
	platform    string
	yes         bool
}

func NewBetCommand(rootOpts *RootOptions, platform string) *cobra.Command {
	opts := &betOptions{platform: platform}

	cmd := &cobra.Command{
		Use:   "bet",
		Short: "Aposta em um participante pagando a plataforma on-chain",
		Long: `Cria a intenção no wager-service, assina e envia a transferência com o keypair
e submete a assinatura para verificação. Pede confirmação antes de assinar, a menos que --yes.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runBet(cmd, rootOpts, opts)
		},
	}

	cmd.Flags().IntVar(&opts.participant, "participant", 0, "id do participante")
	cmd.Flags().StringVar(&opts.amount, "amount", "", "valor em SOL, ex: 1.5")
	cmd.Flags().StringVar(&opts.platform, "platform", platform, "endereço da plataforma (destinatário)")
	cmd.Flags().BoolVarP(&opts.yes, "yes", "y", false, "assina sem pedir confirmação")
	_ = cmd.MarkFlagRequired("participant")
	_ = cmd.MarkFlagRequired("amount")

	return cmd
}

func runBet(cmd *cobra.Command, rootOpts *RootOptions, opts *betOptions) error {
	amount, err := decimal.NewFromString(opts.amount)
	if err != nil {
		return fmt.Errorf("%w: %q", domain.ErrInvalidAmount, opts.amount)
	}
	if opts.platform == "" {
		return fmt.Errorf("platform address required (--platform or PLATFORM_ADDRESS)")
	}

	var approve func(string, uint64) bool
	if !opts.yes {
		approve = prompt(cmd.InOrStdin(), cmd.ErrOrStderr())
	}
	signer, err := rootOpts.NewSigner(rootOpts.RPCURL, rootOpts.Keypair, approve)
	if err != nil {
		return err
	}

	placed, res, err := rootOpts.client().Bet(cmd.Context(), signer, opts.platform, opts.participant, amount)
	if err != nil {
		if placed.IntentID != "" {
			fmt.Fprintf(cmd.ErrOrStderr(), "intent %s not settled\n", placed.IntentID)
		}
		return err
	}

	out := map[string]any{"intent": placed, "result": res}
	return rootOpts.print(cmd.OutOrStdout(), out, func(w io.Writer) {
		fmt.Fprintf(w, "intent:  %s\n", placed.IntentID)
		fmt.Fprintf(w, "status:  %s\n", res.Status)
		if res.Reason != "" {
			fmt.Fprintf(w, "reason:  %s\n", res.Reason)
		}
		if res.Bet != nil {
			fmt.Fprintf(w, "bet:     %s (%s SOL on participant %d)\n", res.Bet.ID, res.Bet.Amount, res.Bet.ParticipantID)
			fmt.Fprintf(w, "tx:      %s\n", res.Bet.Signature)
		}
	})
}

// prompt pergunta no terminal antes de assinar, como a carteira do navegador faria
func prompt(in io.Reader, out io.Writer) func(to string, lamports uint64) bool {
	r := bufio.NewReader(in)
	return func(to string, lamports uint64) bool {
		fmt.Fprintf(out, "Send %s SOL to %s? [y/N] ", domain.FormatSOL(lamports), to)
		line, _ := r.ReadString('\n')
		switch strings.ToLower(strings.TrimSpace(line)) {
		case "y", "yes":
			return true
		}
		return false
	}
}
