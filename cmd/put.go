package cmd

import (
	"fmt"

	"github.com/andreyvit/revdb"
	"github.com/spf13/cobra"
)

var (
	putParentRevID string
	putDeleted     bool
	putBody        string
)

var putCmd = &cobra.Command{
	Use:   "put <doc-id> <rev-id>",
	Short: "insert a revision into a document's tree",
	Args:  cobra.ExactArgs(2),
	RunE:  runPut,
}

func init() {
	putCmd.Flags().StringVar(&putParentRevID, "parent", "", "parent revision id (omit for a root revision)")
	putCmd.Flags().BoolVar(&putDeleted, "deleted", false, "insert as a deletion tombstone")
	putCmd.Flags().StringVar(&putBody, "body", "", "revision body, stored verbatim")
}

func runPut(cmd *cobra.Command, args []string) error {
	docID, revID := args[0], args[1]

	store, err := revdb.Open(dbPath, revdb.Options{})
	if err != nil {
		return fmt.Errorf("opening %s: %w", dbPath, err)
	}
	defer store.Close()

	var parent []byte
	if putParentRevID != "" {
		parent = []byte(putParentRevID)
	}

	chg, err := store.PutRevision([]byte(docID), []byte(revID), parent, revdb.PutOptions{
		Body:    []byte(putBody),
		Deleted: putDeleted,
	})
	if err != nil {
		return err
	}
	fmt.Printf("status %d: %s %s@%s\n", chg.Status(), chg.Op(), chg.DocID(), chg.RevID())
	return nil
}
