package cmd

import (
	"fmt"

	"github.com/FluffyKebab/mothra/crypto"
	"github.com/spf13/cobra"
)

var idDataDir string

var idCmd = &cobra.Command{
	Use:   "id",
	Short: "Print the peer id stored in a data directory",
	Long: `Print the peer id of the key stored in the data directory. A key is
generated and saved when the directory has none.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		key, generated, err := crypto.LoadOrGenerateKey(idDataDir)
		if err != nil {
			return err
		}
		if generated {
			fmt.Fprintf(cmd.ErrOrStderr(), "generated new key in %s\n", idDataDir)
		}
		fmt.Fprintln(cmd.OutOrStdout(), crypto.IDFromPublicKey(&key.PublicKey).String())
		return nil
	},
}

func init() {
	rootCmd.AddCommand(idCmd)
	idCmd.Flags().StringVar(&idDataDir, "datadir", ".", "The location of the data directory to use")
}
