package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/solatis/scorekeeper/internal/core/auth"
	"github.com/solatis/scorekeeper/internal/core/config"
	"github.com/solatis/scorekeeper/internal/core/db"
)

var keysCmd = &cobra.Command{
	Use:   "keys",
	Short: "Manage API keys for the gRPC service",
}

var keysCreateCmd = &cobra.Command{
	Use:   "create",
	Short: "Issue a new API key for a client",
	Long: `Create issues a key signed with one of the HMAC secrets from SK_HMAC_SECRET or
SK_HMAC_SECRET_N. Only the key hash is stored; the key is printed once.`,
	Args: cobra.NoArgs,
	RunE: runKeysCreate,
}

var keysRevokeCmd = &cobra.Command{
	Use:   "revoke <api_key_id>",
	Short: "Revoke an API key",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		database, queries, err := openStore()
		if err != nil {
			return err
		}
		defer database.Close()

		if err := db.RevokeAPIKey(cmd.Context(), queries, args[0]); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "revoked %s\n", args[0])
		return nil
	},
}

func init() {
	rootCmd.AddCommand(keysCmd)
	keysCmd.AddCommand(keysCreateCmd, keysRevokeCmd)
	keysCreateCmd.Flags().String("client-id", "", "client the key is issued to")
	keysCreateCmd.Flags().String("secret-id", "", "HMAC secret to sign with (required when several are configured)")
	keysCreateCmd.MarkFlagRequired("client-id")
}

func runKeysCreate(cmd *cobra.Command, args []string) error {
	clientID, _ := cmd.Flags().GetString("client-id")
	secretID, _ := cmd.Flags().GetString("secret-id")

	secrets, err := config.HMACSecrets()
	if err != nil {
		return fmt.Errorf("failed to load HMAC secrets: %w", err)
	}
	secretID, err = pickSecret(secrets, secretID)
	if err != nil {
		return err
	}

	key, hash, err := auth.GenerateAPIKey(secretID, secrets[secretID])
	if err != nil {
		return err
	}

	database, queries, err := openStore()
	if err != nil {
		return err
	}
	defer database.Close()

	id, err := db.CreateAPIKey(cmd.Context(), queries, clientID, secretID, hash)
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "api_key_id: %s\napi_key:    %s\n", id, key)
	return nil
}

func pickSecret(secrets map[string][]byte, secretID string) (string, error) {
	switch {
	case len(secrets) == 0:
		return "", fmt.Errorf("no HMAC secrets configured (set SK_HMAC_SECRET environment variable)")
	case secretID != "":
		if _, ok := secrets[secretID]; !ok {
			return "", fmt.Errorf("secret id %q is not configured", secretID)
		}
		return secretID, nil
	case len(secrets) > 1:
		return "", fmt.Errorf("%d HMAC secrets configured, choose one with --secret-id", len(secrets))
	}
	for id := range secrets {
		return id, nil
	}
	return "", nil
}
