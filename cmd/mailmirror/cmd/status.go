package cmd

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

var statusCmd = &cobra.Command{
	Use:   "status [source]",
	Short: "Show sync status",
	Long: `Show the sync status of one source, or of every known source plus
database statistics when no source is given.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := openStore()
		if err != nil {
			return err
		}
		defer s.Close()

		if len(args) == 1 {
			state, err := s.GetSyncState(args[0])
			if err != nil {
				return fmt.Errorf("get sync state: %w", err)
			}
			if state == nil {
				fmt.Printf("%s: never synced\n", args[0])
				return nil
			}
			fmt.Printf("%s\n", state.Source)
			fmt.Printf("  Items:      %d\n", state.TotalItems)
			fmt.Printf("  Last sync:  %s\n", state.LastSyncAt.Local().Format(time.RFC1123))
			if state.BackfillCursor != "" {
				fmt.Printf("  Backfill:   incomplete (run 'sync-more %s')\n", state.Source)
			} else {
				fmt.Printf("  Backfill:   complete\n")
			}
			return nil
		}

		states, err := s.ListSources()
		if err != nil {
			return fmt.Errorf("list sources: %w", err)
		}
		if len(states) == 0 {
			fmt.Println("No sources synced yet.")
			return nil
		}
		for _, st := range states {
			marker := ""
			if st.BackfillCursor != "" {
				marker = " (backfill incomplete)"
			}
			fmt.Printf("%-40s %8d items%s\n", st.Source, st.TotalItems, marker)
		}

		stats, err := s.GetStats()
		if err != nil {
			return fmt.Errorf("get stats: %w", err)
		}
		fmt.Println()
		fmt.Printf("Database: %s\n", cfg.DatabasePath())
		fmt.Printf("  Items:    %d\n", stats.ItemCount)
		fmt.Printf("  Contacts: %d\n", stats.ContactCount)
		fmt.Printf("  Sources:  %d\n", stats.SourceCount)
		fmt.Printf("  Size:     %.2f MB\n", float64(stats.DatabaseSize)/(1024*1024))
		return nil
	},
}

func init() {
	rootCmd.AddCommand(statusCmd)
}
