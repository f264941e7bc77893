package cmd

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/waves-enterprise/voting-encrypt/pkg/ballot"
	"github.com/waves-enterprise/voting-encrypt/pkg/crypto/curve"
	"github.com/waves-enterprise/voting-encrypt/pkg/crypto/sampler"
	"github.com/waves-enterprise/voting-encrypt/pkg/wire"
)

func newParamsCmd(a *app) *cobra.Command {
	var (
		hashLength uint
		out        string
	)

	cmd := &cobra.Command{
		Use:   "params",
		Short: "Generate a demo params document",
		Long: `Generate a params document on the curve's generator with a fresh random
main key. The secret key is discarded, so bulletins encrypted under it can
never be decrypted; use it for testing only.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if hashLength == 0 {
				return fmt.Errorf("hash-length must be positive")
			}

			crv, err := curve.FromName(a.cfg.Curve)
			if err != nil {
				return err
			}

			sk, err := sampler.New(nil).DrawSecretScalar()
			if err != nil {
				return err
			}

			doc := wire.EncodeParams(ballot.Config{
				Q:          crv.Order(),
				HashLength: hashLength,
				MainKey:    crv.ScalarMult(crv.Generator(), sk),
				BasePoint:  crv.Generator(),
			})

			data, err := json.MarshalIndent(doc, "", "  ")
			if err != nil {
				return err
			}
			data = append(data, '\n')

			if out == "" || out == "-" {
				_, err := cmd.OutOrStdout().Write(data)
				return err
			}

			if err := os.MkdirAll(filepath.Dir(out), 0o755); err != nil {
				return err
			}
			if err := os.WriteFile(out, data, 0o644); err != nil {
				return err
			}
			a.logger.Info().Str("file", out).Uint("hash_length", hashLength).Msg("params written")
			return nil
		},
	}

	cmd.Flags().UintVar(&hashLength, "hash-length", 256, "challenge modulus is 2^hash-length")
	cmd.Flags().StringVarP(&out, "out", "o", "", "output file (default stdout)")

	return cmd
}
