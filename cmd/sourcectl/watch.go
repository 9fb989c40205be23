package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/forest6511/sourcectl/internal/watchfs"
)

func init() {
	rootCmd.AddCommand(watchCmd)
}

// watchCmd unlocks the named sources and keeps them synchronized with
// external changes to their archive files until interrupted.
var watchCmd = &cobra.Command{
	Use:   "watch [source]...",
	Short: "Unlocks sources and follows external changes to their archives",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		watcher, err := watchfs.New(watchfs.Config{
			OnUpdate: func(sourceID string) {
				registry.NotifyExternalUpdate(sourceID)
				fmt.Println("Source updated, caches refreshed")
			},
		})
		if err != nil {
			return err
		}
		defer watcher.Close()

		var unlocked []string
		defer func() {
			for _, id := range unlocked {
				watcher.Unwatch(id)
				registry.Lock(id)
			}
		}()

		for _, ref := range args {
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

			dir, err := registry.ArchiveDir(snap.ID)
			if err != nil {
				return err
			}
			if err := watcher.Watch(snap.ID, dir); err != nil {
				return err
			}
		}

		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
		go func() {
			<-sigChan
			cancel()
		}()

		fmt.Printf("Watching %d source(s), press Ctrl+C to stop\n", len(unlocked))
		return watcher.Run(ctx)
	},
}
