package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/jfmyers9/cadence/internal/playback"
	"github.com/spf13/cobra"
)

// requestTimeout bounds how long the consent dialog may stay open
const requestTimeout = 2 * time.Minute

// permissionCmd represents the permission command group
var permissionCmd = &cobra.Command{
	Use:   "permission",
	Short: "Inspect or request the macOS Automation permission",
	Long: `Inspect or request permission to control Spotify.

macOS asks once whether cadence may send Apple events to Spotify. Until
that is allowed no playback state can be read. If the request was denied
it has to be re-enabled in System Settings > Privacy & Security >
Automation.

Exit codes:
  0 - Permission granted
  3 - Permission denied or restricted`,
}

var permissionStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the current permission status",
	RunE: func(cmd *cobra.Command, args []string) error {
		b, err := loadBackend("", false)
		if err != nil {
			return err
		}
		defer b.Close()

		ctx, cancel := context.WithTimeout(context.Background(), b.cfg.CallTimeout+time.Second)
		defer cancel()

		status, err := b.orch.CheckPermission(ctx)
		if err != nil {
			return fmt.Errorf("failed to check permission: %w", err)
		}

		fmt.Println(status)
		return permissionExit(status)
	},
}

var permissionRequestCmd = &cobra.Command{
	Use:   "request",
	Short: "Ask macOS for permission to control Spotify",
	Long: `Ask macOS for permission to control Spotify.

Spotify is launched in the background first if it is not running, since
macOS only shows the dialog for a running target.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		b, err := loadBackend("", false)
		if err != nil {
			return err
		}
		defer b.Close()

		ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
		defer cancel()

		granted, err := b.orch.RequestPermission(ctx)
		if err != nil {
			return fmt.Errorf("failed to request permission: %w", err)
		}

		if !granted {
			fmt.Println("✗ Permission denied")
			fmt.Println("\nEnable cadence under Privacy & Security > Automation, or run:")
			fmt.Println("  cadence permission settings")
			return permissionExit(playback.PermissionDenied)
		}

		fmt.Println("✓ Permission granted")
		return nil
	},
}

var permissionSettingsCmd = &cobra.Command{
	Use:   "settings",
	Short: "Open the Automation pane in System Settings",
	RunE: func(cmd *cobra.Command, args []string) error {
		b, err := loadBackend("", false)
		if err != nil {
			return err
		}
		defer b.Close()

		if b.coordinator == nil {
			fmt.Printf("The %s backend does not need automation permission\n", b.cfg.Backend)
			return nil
		}

		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		return b.coordinator.OpenSettings(ctx)
	},
}

func init() {
	rootCmd.AddCommand(permissionCmd)
	permissionCmd.AddCommand(permissionStatusCmd)
	permissionCmd.AddCommand(permissionRequestCmd)
	permissionCmd.AddCommand(permissionSettingsCmd)
}

// permissionExit turns a refusal into the permission exit code
func permissionExit(status playback.PermissionStatus) error {
	switch status {
	case playback.PermissionDenied, playback.PermissionRestricted:
		return &exitError{code: exitPermission, err: fmt.Errorf("automation permission %s", status)}
	}
	return nil
}
