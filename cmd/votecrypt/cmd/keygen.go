package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/waves-enterprise/voting-encrypt/pkg/receipt"
)

func newKeygenCmd(a *app) *cobra.Command {
	var (
		keyID string
		force bool
	)

	cmd := &cobra.Command{
		Use:   "keygen",
		Short: "Generate the receipt signing key",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if !force {
				if _, err := os.Stat(a.cfg.KeyFile); err == nil {
					return fmt.Errorf("%s already exists (use --force to replace it)", a.cfg.KeyFile)
				}
			}

			if err := receipt.GenerateKeyPairFiles(keyID, a.cfg.Issuer, a.cfg.KeyFile, a.cfg.KeyConfigFile); err != nil {
				return err
			}

			a.logger.Info().
				Str("kid", keyID).
				Str("key", a.cfg.KeyFile).
				Str("key_config", a.cfg.KeyConfigFile).
				Msg("generated receipt signing key")
			fmt.Fprintf(cmd.OutOrStdout(), "%s\n%s\n", a.cfg.KeyFile, a.cfg.KeyConfigFile)
			return nil
		},
	}

	cmd.Flags().String("key", "keys/receipt-signing.pem", "receipt signing key file")
	cmd.Flags().String("key-config", "keys/receipt-config.json", "receipt key config file")
	cmd.Flags().String("issuer", "https://votecrypt.example", "receipt issuer")
	cmd.Flags().StringVar(&keyID, "kid", "receipt-key-1", "key ID published in the JWKS")
	cmd.Flags().BoolVar(&force, "force", false, "overwrite an existing key")

	return cmd
}
