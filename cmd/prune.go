package cmd

import (
	"fmt"

	"github.com/andreyvit/revdb"
	"github.com/spf13/cobra"
)

var pruneMaxDepth int

var pruneCmd = &cobra.Command{
	Use:   "prune <doc-id>",
	Short: "drop revisions more than --max-depth steps from their farthest leaf",
	Args:  cobra.ExactArgs(1),
	RunE:  runPrune,
}

func init() {
	pruneCmd.Flags().IntVar(&pruneMaxDepth, "max-depth", 20, "maximum depth to keep")
}

func runPrune(cmd *cobra.Command, args []string) error {
	store, err := revdb.Open(dbPath, revdb.Options{})
	if err != nil {
		return fmt.Errorf("opening %s: %w", dbPath, err)
	}
	defer store.Close()

	pruned, err := store.Prune([]byte(args[0]), pruneMaxDepth)
	if err != nil {
		return err
	}
	fmt.Printf("pruned %d revision(s)\n", pruned)
	return nil
}
