package cmd

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/waves-enterprise/voting-encrypt/pkg/wire"
)

func newEncryptCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "encrypt [vote...]",
		Short: "Encrypt a bulletin and print its wire form",
		Long: `Encrypt one ballot per argument under the params document and print the
encrypted bulletin with its proofs as JSON. Votes are normally 0 or 1; other
integers are encrypted with a placeholder proof. Put negative votes after --.`,
		Example: `  votecrypt encrypt --params params.json 1 0 0
  votecrypt encrypt --params params.json -- 1 -1`,
		RunE: func(cmd *cobra.Command, args []string) error {
			bits := make([]int, len(args))
			for i, arg := range args {
				v, err := strconv.Atoi(arg)
				if err != nil {
					return fmt.Errorf("vote %d: %q is not an integer", i, arg)
				}
				bits[i] = v
			}

			enc, err := a.encryptor()
			if err != nil {
				return err
			}

			bulletin, err := enc.EncryptConcurrent(cmd.Context(), bits, a.cfg.Workers)
			if err != nil {
				return err
			}

			data, err := wire.MarshalBulletin(bulletin)
			if err != nil {
				return err
			}

			a.logger.Debug().Int("ballots", len(bits)).Msg("bulletin encrypted")
			fmt.Fprintln(cmd.OutOrStdout(), string(data))
			return nil
		},
	}

	cmd.Flags().String("params", "params.json", "election params document")
	cmd.Flags().Int("workers", 0, "parallel encryption workers (0 = GOMAXPROCS)")

	return cmd
}
