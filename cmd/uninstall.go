package cmd

import (
	"errors"
	"fmt"
	"os"

	"github.com/jfmyers9/cadence/internal/config"
	"github.com/jfmyers9/cadence/internal/daemon"
	"github.com/spf13/cobra"
)

var uninstallPurge bool

// uninstallCmd represents the uninstall command
var uninstallCmd = &cobra.Command{
	Use:   "uninstall",
	Short: "Uninstall cadence daemon from launchd",
	Long: `Stop the cadence launch agent and remove it from ~/Library/LaunchAgents/.

With --purge the state directory (snapshot, journal and logs) is removed
too. Configuration is always kept.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		// Get plist path
		plistPath, err := daemon.GetPlistPath()
		if err != nil {
			return fmt.Errorf("failed to get plist path: %w", err)
		}

		// Check if plist exists
		if _, err := os.Stat(plistPath); errors.Is(err, os.ErrNotExist) {
			fmt.Println("Daemon is not installed (plist not found)")
		} else {
			// Unload the daemon
			fmt.Println("Stopping daemon...")
			if err := unloadDaemon(); err != nil {
				fmt.Printf("Warning: failed to unload daemon: %v\n", err)
			} else {
				fmt.Println("✓ Daemon stopped")
			}

			// Remove plist file
			if err := os.Remove(plistPath); err != nil {
				return fmt.Errorf("failed to remove plist file: %w", err)
			}
			fmt.Printf("✓ Removed plist from %s\n", plistPath)
		}

		// Remove snapshot, journal and logs
		if uninstallPurge {
			cfg, err := config.Load()
			if err != nil {
				return fmt.Errorf("failed to load configuration: %w", err)
			}
			if err := os.RemoveAll(cfg.StateDir); err != nil {
				return fmt.Errorf("failed to remove state directory: %w", err)
			}
			fmt.Printf("✓ Removed state from %s\n", cfg.StateDir)
		}

		fmt.Println("\nTo reinstall, run:")
		fmt.Println("  cadence install")

		return nil
	},
}

func init() {
	rootCmd.AddCommand(uninstallCmd)

	uninstallCmd.Flags().BoolVar(&uninstallPurge, "purge", false, "Also remove the state directory")
}
