package commands

import (
	"fmt"
	"os"
	"strconv"
	"syscall"
	"time"

	"github.com/spf13/cobra"
)

var stopPidFile string

var stopCmd = &cobra.Command{
	Use:   "stop",
	Short: "Stop a running background server",
	RunE:  runStop,
}

func init() {
	stopCmd.Flags().StringVar(&stopPidFile, "pid-file", "", "Path to PID file (default: $XDG_STATE_HOME/hyperspace/hyperspaceserver.pid)")
}

func runStop(cmd *cobra.Command, args []string) error {
	path := stopPidFile
	if path == "" {
		path = GetDefaultPidFile()
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("server does not appear to be running (no PID file at %s)", path)
	}
	pid, err := strconv.Atoi(string(data))
	if err != nil {
		return fmt.Errorf("corrupt PID file %s: %w", path, err)
	}

	process, err := os.FindProcess(pid)
	if err != nil {
		return fmt.Errorf("process %d not found: %w", pid, err)
	}
	if err := process.Signal(syscall.SIGTERM); err != nil {
		_ = os.Remove(path)
		return fmt.Errorf("server (PID %d) is not running; removed stale PID file", pid)
	}

	fmt.Printf("Sent SIGTERM to hyperspaceserver (PID %d)\n", pid)

	for i := 0; i < 50; i++ {
		if err := process.Signal(syscall.Signal(0)); err != nil {
			fmt.Println("Server stopped")
			return nil
		}
		time.Sleep(100 * time.Millisecond)
	}

	fmt.Println("Server did not stop within 5s; it may still be shutting down")
	return nil
}
