package main

import (
	"github.com/spf13/cobra"

	"github.com/petrijr/credflow/internal/config"
)

type rootOptions struct {
	configPath string
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}
	root := &cobra.Command{
		Use:           "credflow",
		Short:         "Verifiable credential issuance and verification workflows",
		SilenceUsage:  true,
		SilenceErrors: false,
	}
	root.PersistentFlags().StringVarP(&opts.configPath, "config", "c", "", "path to credflow.yaml (default: ./credflow.yaml or /etc/credflow/credflow.yaml)")

	root.AddCommand(
		newServeCmd(opts),
		newKeygenCmd(opts),
		newIssueCmd(opts),
		newVerifyCmd(opts),
	)
	return root
}

func (o *rootOptions) load() (*config.Config, error) {
	return config.Load(o.configPath)
}
