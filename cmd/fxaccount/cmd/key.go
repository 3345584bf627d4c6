package cmd

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/jmcleod/fxaccount/internal/util"
	"github.com/jmcleod/fxaccount/storage"
	"github.com/jmcleod/fxaccount/storage/file"
)

var keyForce bool

var keyCmd = &cobra.Command{
	Use:   "key",
	Short: "Manage the wrapping key that seals stored documents",
}

var keyGenerateCmd = &cobra.Command{
	Use:   "generate <file>",
	Short: "Write a new random wrapping key for wrapping_key_file",
	Long: `Writes a hex encoded AES-256 key readable only by the current user.
Existing documents stay sealed with the old key, so generate the key
before the first login.`,
	Args: cobra.ExactArgs(1),
	RunE: runKeyGenerate,
}

func init() {
	rootCmd.AddCommand(keyCmd)
	keyCmd.AddCommand(keyGenerateCmd)
	keyGenerateCmd.Flags().BoolVar(&keyForce, "force", false, "Overwrite an existing key file")
}

func runKeyGenerate(cmd *cobra.Command, args []string) error {
	b := file.New(args[0])
	if !keyForce {
		if _, err := b.Load(); !errors.Is(err, storage.ErrNotFound) {
			return fmt.Errorf("%s already exists; use --force to overwrite", args[0])
		}
	}

	k, err := util.NewAESKey()
	if err != nil {
		return err
	}
	defer util.WipeBytes(k)
	if err := b.Save([]byte(util.HexEncode(k) + "\n")); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Wrote wrapping key to %s\n", args[0])
	return nil
}
