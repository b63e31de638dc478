package cmd

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/jfmyers9/cadence/internal/config"
	"github.com/jfmyers9/cadence/internal/daemon"
	"github.com/spf13/cobra"
)

// installCmd represents the install command
var installCmd = &cobra.Command{
	Use:   "install",
	Short: "Install cadence daemon as a launchd agent",
	Long: `Install cadence daemon as a launchd agent that runs automatically on login.

This command will:
  - Generate a launchd plist file for the cadence daemon
  - Install it to ~/Library/LaunchAgents/
  - Load the agent with launchctl
  - Start the daemon automatically

The agent runs in your login session so macOS can show the Automation
permission prompt the first time it talks to Spotify.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		// Load configuration for the state directory
		cfg, err := config.Load()
		if err != nil {
			return fmt.Errorf("failed to load configuration: %w", err)
		}

		// Get the path to the current executable
		binaryPath, err := os.Executable()
		if err != nil {
			return fmt.Errorf("failed to get executable path: %w", err)
		}

		// Resolve symlinks to get the actual binary path
		binaryPath, err = filepath.EvalSymlinks(binaryPath)
		if err != nil {
			return fmt.Errorf("failed to resolve executable path: %w", err)
		}

		// Create state directory if it doesn't exist
		if err := os.MkdirAll(cfg.StateDir, 0755); err != nil {
			return fmt.Errorf("failed to create state directory: %w", err)
		}

		// Get home directory for working directory
		home, err := os.UserHomeDir()
		if err != nil {
			return fmt.Errorf("failed to get home directory: %w", err)
		}

		// Generate plist
		plistContent, err := daemon.GeneratePlist(daemon.PlistConfig{
			BinaryPath:       binaryPath,
			LogFile:          cfg.LogPath(),
			StderrFile:       filepath.Join(cfg.StateDir, "cadence.stderr.log"),
			WorkingDirectory: home,
		})
		if err != nil {
			return fmt.Errorf("failed to generate plist: %w", err)
		}

		// Get plist path
		plistPath, err := daemon.GetPlistPath()
		if err != nil {
			return fmt.Errorf("failed to get plist path: %w", err)
		}

		// Create LaunchAgents directory if it doesn't exist
		if err := os.MkdirAll(filepath.Dir(plistPath), 0755); err != nil {
			return fmt.Errorf("failed to create LaunchAgents directory: %w", err)
		}

		// Check if plist already exists
		if _, err := os.Stat(plistPath); err == nil {
			fmt.Println("Daemon is already installed. Uninstalling first...")
			// Try to unload the existing daemon
			if err := unloadDaemon(); err != nil {
				fmt.Printf("Warning: failed to unload existing daemon: %v\n", err)
			}
		}

		// Write plist file
		if err := os.WriteFile(plistPath, []byte(plistContent), 0644); err != nil {
			return fmt.Errorf("failed to write plist file: %w", err)
		}

		fmt.Printf("✓ Installed plist to %s\n", plistPath)

		// Load the daemon with launchctl
		if err := loadDaemon(plistPath); err != nil {
			return fmt.Errorf("failed to load daemon: %w", err)
		}

		fmt.Println("✓ Daemon loaded and started successfully")
		fmt.Printf("✓ Logs will be written to %s\n", cfg.LogPath())
		fmt.Println("\nThe cadence daemon is now running and will start automatically on login.")
		fmt.Println("If macOS asks whether cadence may control Spotify, choose OK.")
		fmt.Println("\nYou can check the daemon status with:")
		fmt.Println("  cadence doctor")
		fmt.Println("\nTo uninstall, run:")
		fmt.Println("  cadence uninstall")

		return nil
	},
}

func init() {
	rootCmd.AddCommand(installCmd)
}

// guiDomain returns the launchctl domain of the current user's session
func guiDomain() (string, error) {
	// Get current user ID for launchctl
	out, err := exec.Command("id", "-u").Output()
	if err != nil {
		return "", fmt.Errorf("failed to get user ID: %w", err)
	}
	return "gui/" + strings.TrimSpace(string(out)), nil
}

// loadDaemon loads the daemon using launchctl
func loadDaemon(plistPath string) error {
	domain, err := guiDomain()
	if err != nil {
		return err
	}

	// Use launchctl bootstrap to load the agent
	output, err := exec.Command("launchctl", "bootstrap", domain, plistPath).CombinedOutput()
	if err != nil {
		if msg := strings.TrimSpace(string(output)); msg != "" {
			return fmt.Errorf("launchctl bootstrap failed: %s", msg)
		}
		return fmt.Errorf("failed to run launchctl bootstrap: %w", err)
	}

	return nil
}

// unloadDaemon unloads the daemon using launchctl. A service that is not
// loaded only produces a warning.
func unloadDaemon() error {
	domain, err := guiDomain()
	if err != nil {
		return err
	}

	// Use launchctl bootout to unload the agent
	output, err := exec.Command("launchctl", "bootout", domain+"/"+daemon.Label).CombinedOutput()
	if err != nil {
		// Bootout may fail if not loaded, which is OK
		if msg := strings.TrimSpace(string(output)); msg != "" {
			fmt.Printf("Warning: %s\n", msg)
		}
	}

	return nil
}
