package main

import (
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/go-hepunion/hepunion"
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "hepunionfs",
	Short: "mounts a two-branch union filesystem (a read-write directory over a read-only one)",
	RunE:  rootCmdRunE,
	Args:  cobra.NoArgs,
}

type rootCmdFlags struct {
	ROPath     string
	RWPath     string
	Branches   []string
	MountPoint string
	AllowOther bool
	Debug      bool
}

var rootFlags = &rootCmdFlags{}

func main() {
	initLogging()

	rootCmd.Flags().StringVarP(&rootFlags.ROPath, "ro", "r", "", "read-only branch directory (with --rw; mutually exclusive with --branch)")
	rootCmd.Flags().StringVarP(&rootFlags.RWPath, "rw", "w", "", "read-write branch directory (with --ro; mutually exclusive with --branch)")
	rootCmd.Flags().StringArrayVar(&rootFlags.Branches, "branch", nil, `a branch_spec "path", "path:ro", or "path:rw"; repeat exactly twice instead of --ro/--rw`)
	rootCmd.Flags().StringVarP(&rootFlags.MountPoint, "mountpoint", "m", "", "directory to mount the union onto")
	rootCmd.Flags().BoolVar(&rootFlags.AllowOther, "allow-other", false, "allow other users to access the mount")
	rootCmd.Flags().BoolVar(&rootFlags.Debug, "debug", false, "enable go-fuse request/response tracing")

	if err := rootCmd.MarkFlagRequired("mountpoint"); err != nil {
		slog.Error("failed to mark flag required", "flag", "mountpoint", "error", err)
		os.Exit(1)
	}

	if err := rootCmd.Execute(); err != nil {
		slog.Error("failed to execute", "error", err)
		os.Exit(1)
	}
}

func rootCmdRunE(cmd *cobra.Command, args []string) error {
	h, err := hepunion.New()
	if err != nil {
		return fmt.Errorf("constructing hepunion: %w", err)
	}

	opts := []hepunion.MountOption{
		hepunion.MountWithMountPoint(rootFlags.MountPoint),
		hepunion.MountWithAllowOther(rootFlags.AllowOther),
		hepunion.MountWithDebug(rootFlags.Debug),
	}
	switch {
	case len(rootFlags.Branches) != 0 && (rootFlags.ROPath != "" || rootFlags.RWPath != ""):
		return fmt.Errorf("--branch cannot be combined with --ro/--rw")
	case len(rootFlags.Branches) == 2:
		opts = append(opts, hepunion.MountWithBranches(rootFlags.Branches[0], rootFlags.Branches[1]))
	case len(rootFlags.Branches) != 0:
		return fmt.Errorf("--branch must be given exactly twice, got %d", len(rootFlags.Branches))
	case rootFlags.ROPath != "" && rootFlags.RWPath != "":
		opts = append(opts, hepunion.MountWithROPath(rootFlags.ROPath), hepunion.MountWithRWPath(rootFlags.RWPath))
	default:
		return fmt.Errorf("either --ro and --rw, or exactly two --branch flags, are required")
	}

	m, err := h.Mount(opts...)
	if err != nil {
		return fmt.Errorf("mount failed: %w", err)
	}

	slog.Info("mounted", "id", m.ID(), "mountpoint", m.MountPoint())

	sigtermHandler := func() chan os.Signal {
		c := make(chan os.Signal, 1)
		signal.Notify(c, os.Interrupt, syscall.SIGTERM)
		return c
	}
	go func() {
		for {
			<-sigtermHandler()
			if err := m.Unmount(); err == nil {
				break
			}
			slog.Error("unmount failed", "error", err)
		}
	}()

	m.Wait()
	return nil
}

// initLogging configures the global slog logger based on an
// environment variable, matching the teacher's own initLogging.
func initLogging() {
	logLevel := slog.LevelError

	switch strings.ToLower(os.Getenv("HEPUNION_LOG_LEVEL")) {
	case "info":
		logLevel = slog.LevelInfo
	case "debug":
		logLevel = slog.LevelDebug
	}

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: logLevel}))
	slog.SetDefault(logger)
}
