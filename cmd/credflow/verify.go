package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/petrijr/credflow/internal/app"
	"github.com/petrijr/credflow/internal/credential"
)

func newVerifyCmd(root *rootOptions) *cobra.Command {
	opts := credential.VerifyOptions{}
	cmd := &cobra.Command{
		Use:   "verify [credential|-]",
		Short: "Verify a JWT or JSON credential and print the report",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			raw, err := readCredential(cmd, args)
			if err != nil {
				return err
			}
			cfg, err := root.load()
			if err != nil {
				return err
			}
			v := app.NewVerifier(cfg, cfg.Logger(cmd.ErrOrStderr()))

			report, verr := v.Verify(commandContext(cmd), raw, opts)
			if report != nil {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				if err := enc.Encode(report); err != nil {
					return err
				}
			}
			if verr != nil {
				return verr
			}
			if !report.IsValid {
				return errInvalidCredential
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&opts.CheckSignature, "signature", true, "check the issuer signature")
	cmd.Flags().BoolVar(&opts.CheckExpiry, "expiry", true, "check validity dates")
	cmd.Flags().BoolVar(&opts.CheckRevocation, "revocation", true, "check the status list entry")
	return cmd
}

var errInvalidCredential = errors.New("credential is not valid")

func readCredential(cmd *cobra.Command, args []string) (string, error) {
	if len(args) == 1 && args[0] != "-" {
		return args[0], nil
	}
	b, err := io.ReadAll(cmd.InOrStdin())
	if err != nil {
		return "", err
	}
	raw := strings.TrimSpace(string(b))
	if raw == "" {
		return "", fmt.Errorf("no credential given")
	}
	return raw, nil
}
