package cmd

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/waves-enterprise/voting-encrypt/pkg/ballot"
	"github.com/waves-enterprise/voting-encrypt/pkg/wire"
)

// ErrVerificationFailed is returned when a bulletin decodes but its proofs do
// not hold.
var ErrVerificationFailed = errors.New("bulletin verification failed")

type verifyReport struct {
	Ballots   int    `json:"ballots"`
	Aggregate string `json:"aggregate"`
	Valid     bool   `json:"valid"`
	Error     string `json:"error,omitempty"`
}

func newVerifyCmd(a *app) *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "verify [file|-]",
		Short: "Check the proofs of an encrypted bulletin",
		Long: `Read a wire bulletin from a file, or stdin when the argument is "-" or
missing, and check every ballot proof and the aggregate proof against the
params document. Exits non-zero when the bulletin does not verify.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var in io.Reader = cmd.InOrStdin()
			if len(args) == 1 && args[0] != "-" {
				f, err := os.Open(args[0])
				if err != nil {
					return err
				}
				defer f.Close()
				in = f
			}

			data, err := io.ReadAll(in)
			if err != nil {
				return fmt.Errorf("failed to read bulletin: %w", err)
			}

			enc, err := a.encryptor()
			if err != nil {
				return err
			}

			bulletin, err := wire.UnmarshalBulletin(enc.Curve(), data)
			if err != nil {
				return err
			}

			report := verifyReport{Ballots: len(bulletin.Proofs), Aggregate: "valid"}
			verr := enc.VerifyBulletin(bulletin)
			switch {
			case verr == nil:
				report.Valid = true
			case errors.Is(verr, ballot.ErrDegenerateAggregate):
				report.Aggregate = "placeholder"
			case errors.Is(verr, ballot.ErrInvalidAggregate):
				report.Aggregate = "invalid"
			default:
				report.Aggregate = "unchecked"
			}
			if verr != nil {
				report.Error = verr.Error()
			}

			out := cmd.OutOrStdout()
			if asJSON {
				if err := json.NewEncoder(out).Encode(report); err != nil {
					return err
				}
			} else {
				fmt.Fprintf(out, "ballots:   %d\n", report.Ballots)
				fmt.Fprintf(out, "aggregate: %s\n", report.Aggregate)
				fmt.Fprintf(out, "valid:     %t\n", report.Valid)
			}

			if verr != nil {
				return fmt.Errorf("%w: %v", ErrVerificationFailed, verr)
			}
			return nil
		},
	}

	cmd.Flags().String("params", "params.json", "election params document")
	cmd.Flags().BoolVar(&asJSON, "json", false, "print the report as JSON")

	return cmd
}
