package cmd

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/jmylchreest/summarize/internal/config"
	"github.com/jmylchreest/summarize/internal/platform"
)

var serviceCmd = &cobra.Command{
	Use:   "service [launchd|systemd|schtasks]",
	Short: "Print a service definition for running the daemon at login",
	Long: `service renders a platform service definition that starts "summarize
serve" at login: a launchd plist on macOS, a systemd user unit on Linux, or
a schtasks invocation on Windows. The output is printed, not installed;
write it to the appropriate location yourself.`,
	Args:      cobra.ExactArgs(1),
	ValidArgs: []string{"launchd", "systemd", "schtasks"},
	RunE:      runService,
}

func init() {
	rootCmd.AddCommand(serviceCmd)
}

func runService(_ *cobra.Command, args []string) error {
	execPath, err := os.Executable()
	if err != nil {
		return fmt.Errorf("resolving executable path: %w", err)
	}
	dataDir, err := config.BaseDir()
	if err != nil {
		return err
	}

	spec := platform.NewServiceSpec(execPath, dataDir, os.Environ())
	if err := spec.Validate(); err != nil {
		return err
	}

	switch args[0] {
	case "launchd":
		fmt.Print(spec.LaunchdPlist())
	case "systemd":
		fmt.Print(spec.SystemdUnit())
	case "schtasks":
		fmt.Println("schtasks " + strings.Join(spec.SchtasksArgs(), " "))
	default:
		return fmt.Errorf("unknown service kind %q (launchd, systemd, schtasks)", args[0])
	}
	return nil
}
