package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/ben-moore/lokad-cloud/pkg/config"
	"github.com/ben-moore/lokad-cloud/pkg/host"
	"github.com/ben-moore/lokad-cloud/pkg/logging"
	"github.com/ben-moore/lokad-cloud/pkg/supervisor"
)

// boundaryCmd is the child-process entry point: the supervisor spawns
// this command inside every process boundary. The restart decision
// travels back through the exit code.
var boundaryCmd = &cobra.Command{
	Use:    "boundary",
	Hidden: true,
	RunE:   runBoundary,
}

func init() {
	rootCmd.AddCommand(boundaryCmd)
}

func runBoundary(cmd *cobra.Command, args []string) error {
	settings, err := config.Load(cfgFile)
	if err != nil {
		return err
	}

	log := logging.NewLogger(logging.ParseLevel(settings.LogLevel), settings.LogJSON).
		WithField("worker", settings.WorkerName).
		WithField("boundary", os.Getpid())

	h := host.New(log, host.DefaultBuild(nil))

	// SIGTERM from the supervisor means "stop the hosted run"; the
	// host's bounded wait keeps shutdown inside the platform's grace
	// period.
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGTERM, syscall.SIGINT)
	go func() {
		<-sigChan
		h.Stop()
	}()

	if h.Run(context.Background(), settings) {
		os.Exit(supervisor.ExitRestartRequested)
	}
	return nil
}
