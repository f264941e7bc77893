// Package cmd implements the votecrypt command tree.
package cmd

import (
	"fmt"
	"os"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/waves-enterprise/voting-encrypt/pkg/ballot"
	"github.com/waves-enterprise/voting-encrypt/pkg/config"
	"github.com/waves-enterprise/voting-encrypt/pkg/crypto/curve"
	"github.com/waves-enterprise/voting-encrypt/pkg/logging"
	"github.com/waves-enterprise/voting-encrypt/pkg/wire"
)

// app is the state shared by all subcommands once the root pre-run has
// loaded settings.
type app struct {
	cfg    *config.Config
	logger zerolog.Logger
}

// NewRootCmd creates the votecrypt root command. It is called once in main.
func NewRootCmd() *cobra.Command {
	a := &app{logger: zerolog.Nop()}

	rootCmd := &cobra.Command{
		Use:           "votecrypt",
		Short:         "ElGamal ballot encryption with 0/1 range proofs",
		SilenceErrors: true,
		SilenceUsage:  true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			// set the default command outputs
			cmd.SetOut(cmd.OutOrStdout())
			cmd.SetErr(cmd.ErrOrStderr())

			path, err := cmd.Flags().GetString("config")
			if err != nil {
				return err
			}
			cfg, err := config.Load(path, cmd.Flags())
			if err != nil {
				return err
			}

			logger, err := logging.New(cfg.Log.Level, cfg.Log.Format, cmd.ErrOrStderr())
			if err != nil {
				return err
			}

			a.cfg = cfg
			a.logger = logger.With().Str("cmd", cmd.Name()).Logger()
			return nil
		},
	}

	rootCmd.PersistentFlags().String("config", "", "config file (yaml, json or toml)")
	rootCmd.PersistentFlags().String("log-level", "info", "log level (debug|info|warn|error)")
	rootCmd.PersistentFlags().String("log-format", "json", "log format (json|console)")

	rootCmd.AddCommand(
		newEncryptCmd(a),
		newVerifyCmd(a),
		newServeCmd(a),
		newKeygenCmd(a),
		newParamsCmd(a),
	)

	return rootCmd
}

// encryptor builds the ballot encryptor from the configured params document.
func (a *app) encryptor() (*ballot.Encryptor, error) {
	crv, err := curve.FromName(a.cfg.Curve)
	if err != nil {
		return nil, err
	}

	f, err := os.Open(a.cfg.ParamsFile)
	if err != nil {
		return nil, fmt.Errorf("failed to open params: %w", err)
	}
	defer f.Close()

	doc, err := wire.DecodeParams(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", a.cfg.ParamsFile, err)
	}
	cfg, err := doc.Config(crv)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", a.cfg.ParamsFile, err)
	}

	return ballot.NewEncryptor(crv, cfg, ballot.WithLogger(a.logger))
}
