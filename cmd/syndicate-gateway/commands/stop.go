package commands

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"
)

var stopPidFile string

var stopCmd = &cobra.Command{
	Use:   "stop",
	Short: "Stop a background gateway process",
	Long: `Send SIGTERM to the gateway process recorded in the PID file, then wait
briefly for it to exit before reporting whether it stopped.`,
	RunE: runStop,
}

func init() {
	stopCmd.Flags().StringVar(&stopPidFile, "pid-file", "", "path to PID file (default: $XDG_STATE_HOME/syndicate-gateway/syndicate-gateway.pid)")
}

func runStop(cmd *cobra.Command, args []string) error {
	pidPath := stopPidFile
	if pidPath == "" {
		pidPath = GetDefaultPidFile()
	}

	pidData, err := os.ReadFile(pidPath)
	if err != nil {
		return fmt.Errorf("no PID file at %s (is the gateway running in daemon mode?)", pidPath)
	}

	pid, err := strconv.Atoi(strings.TrimSpace(string(pidData)))
	if err != nil {
		return fmt.Errorf("PID file %s is malformed: %w", pidPath, err)
	}

	process, err := os.FindProcess(pid)
	if err != nil {
		return fmt.Errorf("failed to find process %d: %w", pid, err)
	}

	if err := process.Signal(syscall.SIGTERM); err != nil {
		_ = os.Remove(pidPath)
		return fmt.Errorf("process %d is not running (removed stale PID file)", pid)
	}

	fmt.Printf("Sent SIGTERM to syndicate-gateway (PID %d)\n", pid)

	for i := 0; i < 50; i++ {
		time.Sleep(100 * time.Millisecond)
		if err := process.Signal(syscall.Signal(0)); err != nil {
			fmt.Println("Gateway stopped")
			_ = os.Remove(pidPath)
			return nil
		}
	}

	fmt.Println("Gateway did not exit within 5s; it may still be shutting down")
	return nil
}
