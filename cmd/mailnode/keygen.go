package main

import (
	"fmt"

	"github.com/edup2p/mailbox/types/key"
	"github.com/spf13/cobra"
)

var keygenCmd = &cobra.Command{
	Use:   "keygen",
	Short: "Generate a new node key",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		priv := key.NewNode()

		privText, err := priv.MarshalText()
		if err != nil {
			return err
		}
		pubText, err := priv.Public().MarshalText()
		if err != nil {
			return err
		}

		_, err = fmt.Fprintf(cmd.OutOrStdout(), "private_key: %s\npublic key:  %s\n", privText, pubText)
		return err
	},
}
