package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/gabellehq/gabelle/internal/auth"
)

var keygenAdmin bool

var keygenCmd = &cobra.Command{
	Use:   "keygen",
	Short: "Generate a service key, or an admin key with --admin",
	RunE:  runKeygen,
}

func init() {
	keygenCmd.Flags().BoolVar(&keygenAdmin, "admin", false, "generate an admin key and its bcrypt hash")
	rootCmd.AddCommand(keygenCmd)
}

func runKeygen(cmd *cobra.Command, args []string) error {
	if keygenAdmin {
		_, plaintext, err := auth.GenerateServiceKey()
		if err != nil {
			return err
		}
		hash, err := auth.HashAdminKey(plaintext)
		if err != nil {
			return err
		}
		fmt.Printf("Admin key (shown once, store it safely):\n  %s\n\n", plaintext)
		fmt.Printf("Set the hash in the environment:\n  GABELLE_ADMIN_KEY_HASH='%s'\n", hash)
		return nil
	}

	key, plaintext, err := auth.GenerateServiceKey()
	if err != nil {
		return err
	}
	fmt.Printf("Service key (shown once, store it safely):\n  %s\n\n", plaintext)
	fmt.Printf("Add the hash to config under auth.service_key_hashes:\n  %s\n", key.Hash)
	return nil
}
