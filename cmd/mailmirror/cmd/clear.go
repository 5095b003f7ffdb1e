package cmd

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
)

var clearForce bool

var clearCmd = &cobra.Command{
	Use:   "clear <source>",
	Short: "Remove all local data for a source",
	Long: `Remove every stored message and the sync state for a source, returning it
to the never-synced state. Extracted contacts are kept.

The deletion is atomic: it either completes fully or leaves the replica
untouched. The remote mailbox is never modified.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		source := args[0]

		s, err := openStore()
		if err != nil {
			return err
		}
		defer s.Close()

		state, err := s.GetSyncState(source)
		if err != nil {
			return fmt.Errorf("get sync state: %w", err)
		}
		if state == nil {
			fmt.Printf("%s has no local data.\n", source)
			return nil
		}

		if !clearForce {
			fmt.Printf("Delete %d locally stored items for %s? [y/N] ", state.TotalItems, source)
			line, _ := bufio.NewReader(os.Stdin).ReadString('\n')
			if answer := strings.ToLower(strings.TrimSpace(line)); answer != "y" && answer != "yes" {
				fmt.Println("Aborted.")
				return nil
			}
		}

		if err := s.ClearSource(source); err != nil {
			return fmt.Errorf("clear %s: %w", source, err)
		}
		fmt.Printf("Cleared local data for %s.\n", source)
		return nil
	},
}

func init() {
	clearCmd.Flags().BoolVarP(&clearForce, "force", "f", false, "skip confirmation prompt")
	rootCmd.AddCommand(clearCmd)
}
