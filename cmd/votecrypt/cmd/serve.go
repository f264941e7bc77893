package cmd

import (
	"errors"
	"io/fs"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/waves-enterprise/voting-encrypt/pkg/receipt"
	"github.com/waves-enterprise/voting-encrypt/pkg/server"
	"github.com/waves-enterprise/voting-encrypt/pkg/storage"
)

func newServeCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the bulletin HTTP service",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg := a.cfg
			logger := a.logger

			enc, err := a.encryptor()
			if err != nil {
				return err
			}
			logger.Info().
				Str("curve", enc.Curve().Name()).
				Uint("hash_length", enc.Config().HashLength).
				Str("params", cfg.ParamsFile).
				Msg("loaded election params")

			// Initialize storage (in-memory)
			store := storage.NewMemoryStore(time.Minute)
			defer store.Close()

			if _, err := os.Stat(cfg.KeyFile); errors.Is(err, fs.ErrNotExist) {
				logger.Warn().Str("key", cfg.KeyFile).Msg("receipt key does not exist, generating a new one")
				if err := receipt.GenerateKeyPairFiles("receipt-key-1", cfg.Issuer, cfg.KeyFile, cfg.KeyConfigFile); err != nil {
					return err
				}
			}

			signer, err := receipt.NewES256SignerFromFile(cfg.KeyFile, cfg.KeyConfigFile)
			if err != nil {
				return err
			}
			logger.Info().Str("alg", signer.Algorithm()).Str("issuer", signer.Issuer()).Msg("loaded receipt signer")

			handlers := server.NewHandlers(enc, store, signer, server.Config{
				Audience:    cfg.Audience,
				ReceiptTTL:  cfg.ReceiptTTL,
				BulletinTTL: cfg.BulletinTTL,
				MaxBallots:  cfg.MaxBallots,
				Workers:     cfg.Workers,
			}, logger)

			verifier := receipt.NewVerifier(signer.JWKS(), signer.Issuer())
			router := server.NewRouter(cmd.Context(), handlers, verifier, server.RouterConfig{
				RateLimit: cfg.RateLimit,
				Logger:    logger,
			})

			logger.Info().Int("rate_limit", cfg.RateLimit).Int("max_ballots", cfg.MaxBallots).Msg("starting votecrypt service")
			return server.Serve(cmd.Context(), cfg.Addr, router, logger)
		},
	}

	f := cmd.Flags()
	f.String("addr", ":8080", "listen address")
	f.String("curve", "secp256k1", "curve name")
	f.String("params", "params.json", "election params document")
	f.String("key", "keys/receipt-signing.pem", "receipt signing key file")
	f.String("key-config", "keys/receipt-config.json", "receipt key config file")
	f.String("issuer", "https://votecrypt.example", "receipt issuer")
	f.String("audience", "votecrypt-bulletins", "receipt audience")
	f.Duration("receipt-ttl", 24*time.Hour, "receipt lifetime")
	f.Duration("bulletin-ttl", 24*time.Hour, "how long bulletins are stored")
	f.Int("rate-limit", 120, "max requests per minute per client")
	f.Int("workers", 0, "encryption workers per request (0 = GOMAXPROCS)")
	f.Int("max-ballots", 1024, "largest bulletin accepted")

	return cmd
}
