package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/forest6511/sourcectl/pkg/vault"
)

func init() {
	rootCmd.AddCommand(unlockCmd)
	rootCmd.AddCommand(lockCmd)
	rootCmd.AddCommand(verifyCmd)
}

// unlockCmd unlocks a source for the current process and reports what became
// available. First unlock of a source added with --new also validates the
// master password's strength before creating the archive.
var unlockCmd = &cobra.Command{
	Use:   "unlock [source]",
	Short: "Unlocks a source and reports its one-time codes",
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

		if snap.NeedsInit {
			result := vault.ValidateMasterPassword(password)
			if !result.Valid {
				return fmt.Errorf("password validation failed: %s", result.Warnings[0])
			}
			for _, warning := range result.Warnings {
				fmt.Printf("Warning: %s\n", warning)
			}
		}

		if err := registry.Unlock(snap.ID, password); err != nil {
			return fmt.Errorf("failed to unlock source: %w", err)
		}

		codes, _ := registry.Codes().CodesFor(snap.ID)
		fmt.Printf("Source '%s' unlocked, %d one-time code(s) available\n", snap.Name, len(codes))
		return nil
	},
}

// lockCmd locks an unlocked source.
var lockCmd = &cobra.Command{
	Use:   "lock [source]",
	Short: "Locks a source and clears its derived caches",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		snap, err := resolveSource(args[0])
		if err != nil {
			return err
		}
		if err := registry.Lock(snap.ID); err != nil {
			return fmt.Errorf("failed to lock source: %w", err)
		}
		fmt.Printf("Source '%s' locked\n", snap.Name)
		return nil
	},
}

// verifyCmd checks a master password without changing the source's state.
var verifyCmd = &cobra.Command{
	Use:   "verify [source]",
	Short: "Verifies a source's master password without unlocking it",
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

		ok, err := registry.VerifyPassword(snap.ID, password)
		if err != nil {
			return fmt.Errorf("failed to verify password: %w", err)
		}
		if !ok {
			return fmt.Errorf("password does not match")
		}
		fmt.Println("Password verified")
		return nil
	},
}
