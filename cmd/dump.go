package cmd

import (
	"fmt"

	"github.com/andreyvit/revdb"
	"github.com/spf13/cobra"
)

var dumpCmd = &cobra.Command{
	Use:   "dump",
	Short: "print every document's revision tree",
	RunE:  runDump,
}

func runDump(cmd *cobra.Command, args []string) error {
	store, err := revdb.Open(dbPath, revdb.Options{})
	if err != nil {
		return fmt.Errorf("opening %s: %w", dbPath, err)
	}
	defer store.Close()

	fmt.Print(store.Dump(revdb.DumpAll))
	return nil
}
