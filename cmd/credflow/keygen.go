package main

import (
	"encoding/json"

	"github.com/decred/dcrd/dcrec/secp256k1/v4"
	"github.com/spf13/cobra"

	"github.com/petrijr/credflow/internal/did"
	"github.com/petrijr/credflow/internal/keystore"
)

type keygenResult struct {
	DID        string `json:"did"`
	PrivateKey string `json:"privateKey"`
	Stored     bool   `json:"stored"`
}

func newKeygenCmd(root *rootOptions) *cobra.Command {
	var (
		tenant string
		store  bool
	)
	cmd := &cobra.Command{
		Use:   "keygen",
		Short: "Generate a secp256k1 issuing key and its long-form DID",
		RunE: func(cmd *cobra.Command, args []string) error {
			priv, err := secp256k1.GeneratePrivateKey()
			if err != nil {
				return err
			}
			raw := priv.Serialize()
			res := keygenResult{
				DID:        did.NewLongFormDID(priv.PubKey()),
				PrivateKey: keystore.EncodeKey(raw),
			}

			if store {
				cfg, err := root.load()
				if err != nil {
					return err
				}
				keys, closeKeys, err := openKeyStore(cfg)
				if err != nil {
					return err
				}
				defer closeKeys()
				if err := keys.PutPrivateKey(commandContext(cmd), tenant, res.DID, raw); err != nil {
					return err
				}
				res.Stored = true
			}

			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(res)
		},
	}
	cmd.Flags().StringVar(&tenant, "tenant", "", "tenant the key belongs to when stored")
	cmd.Flags().BoolVar(&store, "store", false, "save the key in the configured key store")
	return cmd
}
