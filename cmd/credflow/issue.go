package main

import (
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/petrijr/credflow/internal/credential"
	"github.com/petrijr/credflow/internal/keystore"
)

func newIssueCmd(root *rootOptions) *cobra.Command {
	var (
		issuer     string
		subject    string
		key        string
		tenant     string
		claims     map[string]string
		validFrom  string
		validUntil string
	)
	cmd := &cobra.Command{
		Use:   "issue",
		Short: "Sign a credential and print it as a compact JWT",
		RunE: func(cmd *cobra.Command, args []string) error {
			var priv []byte
			if key != "" {
				b, err := keystore.DecodeKey(key)
				if err != nil {
					return err
				}
				priv = b
			} else {
				cfg, err := root.load()
				if err != nil {
					return err
				}
				keys, closeKeys, err := openKeyStore(cfg)
				if err != nil {
					return err
				}
				defer closeKeys()
				b, err := keys.GetPrivateKey(commandContext(cmd), tenant, issuer)
				if errors.Is(err, keystore.ErrKeyNotFound) {
					return fmt.Errorf("no key stored for issuer %s in tenant %q; pass --key", issuer, tenant)
				}
				if err != nil {
					return err
				}
				priv = b
			}

			req := credential.IssueRequest{
				SubjectDID: subject,
				IssuerDID:  issuer,
				Claims:     claims,
				PrivateKey: priv,
			}
			var err error
			if req.ValidFrom, err = parseTimeFlag("valid-from", validFrom); err != nil {
				return err
			}
			if req.ValidUntil, err = parseTimeFlag("valid-until", validUntil); err != nil {
				return err
			}

			jwt, err := credential.Issue(req)
			if err != nil {
				return err
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), jwt)
			return err
		},
	}
	cmd.Flags().StringVar(&issuer, "issuer", "", "issuer DID")
	cmd.Flags().StringVar(&subject, "subject", "", "subject DID")
	cmd.Flags().StringVar(&key, "key", "", "issuer private key, base64 or hex (default: look up in the key store)")
	cmd.Flags().StringVar(&tenant, "tenant", "", "tenant whose key store entry signs")
	cmd.Flags().StringToStringVar(&claims, "claim", nil, "credential claim as name=value (repeatable)")
	cmd.Flags().StringVar(&validFrom, "valid-from", "", "start of validity as RFC3339 (default: now)")
	cmd.Flags().StringVar(&validUntil, "valid-until", "", "expiry as RFC3339")
	_ = cmd.MarkFlagRequired("issuer")
	_ = cmd.MarkFlagRequired("subject")
	return cmd
}

func parseTimeFlag(name, value string) (*time.Time, error) {
	if value == "" {
		return nil, nil
	}
	t, err := time.Parse(time.RFC3339, value)
	if err != nil {
		return nil, fmt.Errorf("--%s: %w", name, err)
	}
	return &t, nil
}
