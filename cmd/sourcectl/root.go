package main

import (
	"crypto/rand"
	"fmt"
	"os"
	"path/filepath"
	"syscall"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/forest6511/sourcectl/internal/storage"
	"github.com/forest6511/sourcectl/pkg/audit"
	"github.com/forest6511/sourcectl/pkg/search"
	"github.com/forest6511/sourcectl/pkg/sources"
)

var (
	dataDir  string
	store    *storage.Store
	index    *search.Index
	auditLog *audit.Logger
	registry *sources.Registry
)

var rootCmd = &cobra.Command{
	Use:   "sourcectl",
	Short: "sourcectl coordinates multiple encrypted vault sources",
	Long: `A coordinator for multiple independently lockable vault sources.

Sources are added once and rehydrated on every run; unlocking a source makes
its one-time codes and search index available for the lifetime of the process.`,
	// PersistentPreRunE wires the registry before any subcommand runs.
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		home, err := os.UserHomeDir()
		if err != nil {
			return fmt.Errorf("failed to get user home directory: %w", err)
		}
		dataDir = filepath.Join(home, ".sourcectl")
		if err := os.MkdirAll(dataDir, 0700); err != nil {
			return fmt.Errorf("failed to create data directory: %w", err)
		}

		store, err = storage.Open(dataDir)
		if err != nil {
			return fmt.Errorf("failed to open source metadata store: %w", err)
		}

		auditLog = audit.NewLogger(filepath.Join(dataDir, "audit"))
		if key, err := loadAuditKey(dataDir); err != nil {
			fmt.Fprintf(os.Stderr, "warning: audit logging disabled: %v\n", err)
			auditLog = nil
		} else if err := auditLog.SetHMACKey(key); err != nil {
			fmt.Fprintf(os.Stderr, "warning: audit logging disabled: %v\n", err)
			auditLog = nil
		}

		index = search.NewIndex()
		registry, err = sources.NewRegistry(sources.Options{
			Store:  store,
			Search: index,
			Audit:  auditLog,
		})
		if err != nil {
			return err
		}
		return registry.Rehydrate()
	},
}

var addInitRemote bool

func init() {
	rootCmd.AddCommand(addCmd)
	rootCmd.AddCommand(removeCmd)
	rootCmd.AddCommand(listCmd)
	rootCmd.AddCommand(renameCmd)

	addCmd.Flags().BoolVar(&addInitRemote, "new", true,
		"Create the backing archive on first unlock instead of expecting an existing one")
}

// addCmd registers a new file-backed source.
var addCmd = &cobra.Command{
	Use:   "add [name] [archive-dir]",
	Short: "Registers a vault source backed by a local archive directory",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		name, dir := args[0], args[1]

		abs, err := filepath.Abs(dir)
		if err != nil {
			return fmt.Errorf("invalid archive directory: %w", err)
		}
		blob, err := sources.EncodeCredentials(sources.Credentials{Path: abs})
		if err != nil {
			return err
		}

		id, err := registry.AddSource(sources.Descriptor{
			Name:             name,
			Type:             "file",
			Credentials:      blob,
			InitialiseRemote: addInitRemote,
		})
		if err != nil {
			return fmt.Errorf("failed to add source: %w", err)
		}

		fmt.Printf("Source '%s' added (%s)\n", name, id)
		return nil
	},
}

// removeCmd removes a source from the registry. The archive files on disk
// are left untouched.
var removeCmd = &cobra.Command{
	Use:   "remove [source]",
	Short: "Removes a source from the registry (archive files are kept)",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		snap, err := resolveSource(args[0])
		if err != nil {
			return err
		}
		if err := registry.RemoveSource(snap.ID); err != nil {
			return fmt.Errorf("failed to remove source: %w", err)
		}
		fmt.Printf("Source '%s' removed\n", snap.Name)
		return nil
	},
}

// listCmd prints the registered sources.
var listCmd = &cobra.Command{
	Use:   "list",
	Short: "Lists all registered sources",
	RunE: func(cmd *cobra.Command, args []string) error {
		snaps := registry.Sources()
		if len(snaps) == 0 {
			fmt.Println("No sources registered")
			return nil
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "ID\tNAME\tTYPE\tSTATUS")
		for _, snap := range snaps {
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", snap.ID, snap.Name, snap.Type, snap.Status)
		}
		return w.Flush()
	},
}

// renameCmd changes a source's display name.
var renameCmd = &cobra.Command{
	Use:   "rename [source] [new-name]",
	Short: "Renames a source",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		snap, err := resolveSource(args[0])
		if err != nil {
			return err
		}
		if err := registry.Rename(snap.ID, args[1]); err != nil {
			return fmt.Errorf("failed to rename source: %w", err)
		}
		fmt.Printf("Source '%s' renamed to '%s'\n", snap.Name, args[1])
		return nil
	},
}

// resolveSource accepts either a source ID or a display name. A name that
// matches more than one source is rejected.
func resolveSource(ref string) (sources.Snapshot, error) {
	if snap, err := registry.SourceForID(ref); err == nil {
		return snap, nil
	}

	var matches []sources.Snapshot
	for _, snap := range registry.Sources() {
		if snap.Name == ref {
			matches = append(matches, snap)
		}
	}
	switch len(matches) {
	case 0:
		return sources.Snapshot{}, fmt.Errorf("no source named or identified by %q", ref)
	case 1:
		return matches[0], nil
	default:
		return sources.Snapshot{}, fmt.Errorf("name %q matches %d sources, use the ID instead", ref, len(matches))
	}
}

// promptPassword reads a password without echo.
func promptPassword(label string) (string, error) {
	fmt.Printf("%s: ", label)
	password, err := term.ReadPassword(int(syscall.Stdin))
	fmt.Println()
	if err != nil {
		return "", fmt.Errorf("failed to read password: %w", err)
	}
	return string(password), nil
}

// loadAuditKey loads the audit HMAC key material, creating it on first use.
func loadAuditKey(dir string) ([]byte, error) {
	keyPath := filepath.Join(dir, "audit.key")
	key, err := os.ReadFile(keyPath)
	if err == nil {
		return key, nil
	}
	if !os.IsNotExist(err) {
		return nil, err
	}

	key = make([]byte, 32)
	if _, err := rand.Read(key); err != nil {
		return nil, fmt.Errorf("failed to generate audit key: %w", err)
	}
	if err := os.WriteFile(keyPath, key, 0600); err != nil {
		return nil, fmt.Errorf("failed to store audit key: %w", err)
	}
	return key, nil
}
