package main

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

var searchSources []string

func init() {
	rootCmd.AddCommand(searchCmd)

	searchCmd.Flags().StringArrayVar(&searchSources, "source", nil,
		"Source to unlock and search (can be repeated; defaults to all sources)")
}

// searchCmd unlocks the requested sources, runs a query against the rebuilt
// index and prints the matching entry locations.
var searchCmd = &cobra.Command{
	Use:   "search [query]",
	Short: "Searches entry titles and non-secret values across sources",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		query := args[0]

		refs := searchSources
		if len(refs) == 0 {
			for _, snap := range registry.Sources() {
				refs = append(refs, snap.ID)
			}
		}
		if len(refs) == 0 {
			fmt.Println("No sources registered")
			return nil
		}

		var unlocked []string
		defer func() {
			for _, id := range unlocked {
				registry.Lock(id)
			}
		}()

		for _, ref := range refs {
			snap, err := resolveSource(ref)
			if err != nil {
				return err
			}
			password, err := promptPassword(fmt.Sprintf("Enter master password for '%s'", snap.Name))
			if err != nil {
				return err
			}
			if err := registry.Unlock(snap.ID, password); err != nil {
				return fmt.Errorf("failed to unlock source '%s': %w", snap.Name, err)
			}
			unlocked = append(unlocked, snap.ID)
		}

		results := index.Lookup(query)
		if len(results) == 0 {
			fmt.Println("No matches")
			return nil
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "SOURCE\tENTRY\tENTRY ID")
		for _, r := range results {
			fmt.Fprintf(w, "%s\t%s\t%s\n", r.SourceName, r.EntryTitle, r.EntryID)
		}
		return w.Flush()
	},
}
