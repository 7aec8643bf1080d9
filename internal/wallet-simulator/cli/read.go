package cli

import (
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

func NewParticipantsCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "participants",
		Short: "Lista os participantes do contest",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ps, err := rootOpts.client().Participants(cmd.Context())
			if err != nil {
				return err
			}
			return rootOpts.print(cmd.OutOrStdout(), ps, func(w io.Writer) {
				tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
				fmt.Fprintln(tw, "ID\tNAME")
				for _, p := range ps {
					fmt.Fprintf(tw, "%d\t%s\n", p.ID, p.Name)
				}
				_ = tw.Flush()
			})
		},
	}
}

func NewAccountCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "account [wallet-address]",
		Short: "Mostra o saldo e o histórico de apostas da carteira",
		Long:  "Sem argumento, usa o endereço do keypair configurado em --keypair.",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			wallet := ""
			if len(args) == 1 {
				wallet = args[0]
			} else {
				s, err := rootOpts.NewSigner(rootOpts.RPCURL, rootOpts.Keypair, nil)
				if err != nil {
					return err
				}
				wallet = s.Address()
			}

			acc, err := rootOpts.client().Account(cmd.Context(), wallet)
			if err != nil {
				return err
			}
			return rootOpts.print(cmd.OutOrStdout(), acc, func(w io.Writer) {
				fmt.Fprintf(w, "wallet:  %s\n", acc.WalletAddress)
				fmt.Fprintf(w, "balance: %s SOL\n", acc.Balance)
				if len(acc.Bets) == 0 {
					fmt.Fprintln(w, "no bets")
					return
				}
				tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
				fmt.Fprintln(tw, "CONFIRMED AT\tPARTICIPANT\tAMOUNT\tSIGNATURE")
				for _, b := range acc.Bets {
					fmt.Fprintf(tw, "%s\t%d\t%s\t%s\n", b.ConfirmedAt.Format("2006-01-02 15:04:05"), b.ParticipantID, b.Amount, b.Signature)
				}
				_ = tw.Flush()
			})
		},
	}
}
