package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/cerberusgate/cerberusgate/internal/domain/auth"
)

var hashKeyCmd = &cobra.Command{
	Use:   "hash-key [agent-token]",
	Short: "Generate an Argon2id hash for an agent credential",
	Long: `Generate an Argon2id hash of an agent bearer token for offline seeding of
the governance database.

Credential issuance itself happens out of band (operators insert rows into
the agent_credentials table directly, or via their own tooling); this command
only produces the token_hash value that belongs in that row. The output is a
self-describing PHC-format string (Argon2id, OWASP minimum parameters) that
CredentialResolver recognises on lookup.

Example:
  cerberusgate hash-key "my-secret-agent-token"
  # Output: $argon2id$v=19$m=47104,t=1,p=1$<salt>$<hash>

Security note: the token will appear in shell history. Consider clearing
history after use or passing it via an environment variable:
  cerberusgate hash-key "$AGENT_TOKEN"`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		hash, err := auth.HashKeyArgon2id(args[0])
		if err != nil {
			return fmt.Errorf("failed to hash agent token: %w", err)
		}
		fmt.Fprintln(os.Stdout, hash)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(hashKeyCmd)
}
