package main

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/forest6511/sourcectl/pkg/otp"
)

func init() {
	rootCmd.AddCommand(codesCmd)
}

// codesCmd unlocks a source and lists its one-time-code descriptors. Secrets
// never leave the cache; only issuer, label and location are shown.
var codesCmd = &cobra.Command{
	Use:   "codes [source]",
	Short: "Lists the one-time codes of a source",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		snap, err := resolveSource(args[0])
		if err != nil {
			return err
		}

		password, err := promptPassword("Enter master password")
		if err != nil {
			return err
		}
		if err := registry.Unlock(snap.ID, password); err != nil {
			return fmt.Errorf("failed to unlock source: %w", err)
		}
		defer registry.Lock(snap.ID)

		codes, _ := registry.Codes().CodesFor(snap.ID)
		if len(codes) == 0 {
			fmt.Println("No one-time codes in this source")
			return nil
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "ENTRY\tISSUER\tTYPE")
		for _, code := range codes {
			enrollment, err := otp.Parse(code.CodeURI)
			if err != nil {
				// Cache entries are validated at recompute, so this should
				// not happen; show the entry anyway
				fmt.Fprintf(w, "%s\t?\t?\n", code.EntryTitle)
				continue
			}
			fmt.Fprintf(w, "%s\t%s\t%s\n", code.EntryTitle, enrollment.Issuer, enrollment.Type)
		}
		return w.Flush()
	},
}
