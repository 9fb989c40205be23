package main

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/forest6511/sourcectl/pkg/deeplink"
	"github.com/forest6511/sourcectl/pkg/otp"
	"github.com/forest6511/sourcectl/pkg/vault"
)

var (
	openInitial      bool
	openAttachSource string
	openAttachEntry  string
)

func init() {
	rootCmd.AddCommand(openCmd)

	openCmd.Flags().BoolVar(&openInitial, "initial", false,
		"Treat the URI as the process launch URI instead of a live delivery")
	openCmd.Flags().StringVar(&openAttachSource, "attach-source", "",
		"Source to attach a received enrollment to")
	openCmd.Flags().StringVar(&openAttachEntry, "attach-entry", "",
		"Entry title to attach a received enrollment to")
}

// stderrNotifier prints router outcomes the way the rest of the CLI reports
// non-fatal conditions.
type stderrNotifier struct{}

func (stderrNotifier) Notify(msg string) { fmt.Println(msg) }
func (stderrNotifier) Warn(msg string)   { fmt.Fprintf(os.Stderr, "warning: %s\n", msg) }

// openCmd feeds a URI through the deep-link router. Enrollment URIs land in
// the pending inbox; with --attach-source and --attach-entry the pending item
// is claimed and written into the target entry right away.
var openCmd = &cobra.Command{
	Use:   "open [uri]",
	Short: "Delivers a deep-link URI to the router",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		uri := args[0]

		inbox := deeplink.NewInbox()
		router := deeplink.NewRouter(inbox, stderrNotifier{}, auditLog)
		waiter := deeplink.NewTokenWaiter()
		router.RegisterPath("auth/dropbox", func(params map[string]string) {
			if token := params["access_token"]; token != "" {
				waiter.Deliver(token)
			}
		})

		if openInitial {
			router.HandleInitial(uri)
		} else {
			router.Handle(uri)
		}

		if strings.HasPrefix(strings.ToLower(uri), deeplink.CallbackScheme+"://") {
			ctx, cancel := context.WithTimeout(cmd.Context(), time.Second)
			defer cancel()
			if token, err := waiter.Wait(ctx); err == nil && token != "" {
				fmt.Println("Auth callback received, token accepted")
			}
		}

		pending := inbox.List()
		if len(pending) == 0 {
			return nil
		}

		if openAttachSource == "" || openAttachEntry == "" {
			for _, item := range pending {
				enrollment, err := otp.Parse(item.URI)
				if err != nil {
					fmt.Printf("Pending: %s (unparsed)\n", item.ID)
					continue
				}
				fmt.Printf("Pending: %s (%s)\n", item.ID, enrollment.Title())
			}
			fmt.Println("Use --attach-source and --attach-entry to attach")
			return nil
		}

		return attachPending(inbox, pending[0].ID)
	},
}

// attachPending claims a pending enrollment and writes it into the named
// entry of an unlocked source.
func attachPending(inbox *deeplink.Inbox, pendingID string) error {
	snap, err := resolveSource(openAttachSource)
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

	uri, ok := inbox.Claim(pendingID)
	if !ok {
		return fmt.Errorf("pending item %s already claimed", pendingID)
	}
	if _, err := otp.Parse(uri); err != nil {
		return fmt.Errorf("pending enrollment is not usable: %w", err)
	}

	err = registry.EditContent(snap.ID, func(root *vault.Group) error {
		entry := root.FindEntryByTitle(openAttachEntry)
		if entry == nil {
			return fmt.Errorf("no entry titled %q in source '%s'", openAttachEntry, snap.Name)
		}
		entry.SetProperty("otp", uri, vault.KindOneTimeCode)
		return nil
	})
	if err != nil {
		return err
	}

	fmt.Printf("Enrollment attached to '%s'\n", openAttachEntry)
	return nil
}
