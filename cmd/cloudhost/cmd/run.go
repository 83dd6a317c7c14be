package cmd

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/ben-moore/lokad-cloud/pkg/api"
	"github.com/ben-moore/lokad-cloud/pkg/config"
	"github.com/ben-moore/lokad-cloud/pkg/host"
	"github.com/ben-moore/lokad-cloud/pkg/logging"
	"github.com/ben-moore/lokad-cloud/pkg/models"
	"github.com/ben-moore/lokad-cloud/pkg/retry"
	"github.com/ben-moore/lokad-cloud/pkg/shutdown"
	"github.com/ben-moore/lokad-cloud/pkg/store"
	"github.com/ben-moore/lokad-cloud/pkg/supervisor"
)

var inProcess bool

// runCmd represents the run command
var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the worker node",
	Long: `Run the worker node: supervise isolation boundaries hosting the
processing loop, recreating them per policy until shutdown.`,
	RunE: runNode,
}

func init() {
	runCmd.Flags().BoolVar(&inProcess, "in-process", false, "host the processing loop in this process instead of a child process (development mode)")
	rootCmd.AddCommand(runCmd)
}

// boundaryFactory returns the supervisor's boundary factory. A non-nil
// host means in-process mode; otherwise every boundary execs this
// binary's hidden boundary command.
func boundaryFactory(h *host.Host, log *logging.Logger) supervisor.Factory {
	return func(s config.Settings) (supervisor.Boundary, error) {
		if h != nil {
			return supervisor.NewInProcBoundary(h, s), nil
		}
		exe, err := os.Executable()
		if err != nil {
			return nil, fmt.Errorf("locate binary: %w", err)
		}
		boundaryArgs := []string{"boundary"}
		if cfgFile != "" {
			boundaryArgs = append(boundaryArgs, "--config", cfgFile)
		}
		return supervisor.NewProcessBoundary(exe, boundaryArgs, log), nil
	}
}

func runNode(cmd *cobra.Command, args []string) error {
	settings, err := config.Load(cfgFile)
	if err != nil {
		return err
	}

	log := logging.NewLogger(logging.ParseLevel(settings.LogLevel), settings.LogJSON).
		WithField("worker", settings.WorkerName)

	hw := models.DetectHardware()
	log.Info("starting worker node", map[string]interface{}{
		"cell":        settings.CellName,
		"solution":    settings.SolutionName,
		"cpu_threads": hw.CPUThreads,
		"storage":     settings.StorageDriver,
	})

	// The node host runs in-process only when asked; the default is a
	// child process so a crashing loop cannot take the supervisor down.
	// The host is built here, before anything else can observe it.
	var h *host.Host
	if inProcess {
		h = host.New(log, host.DefaultBuild(nil))
	}

	sup := supervisor.New(settings, log, boundaryFactory(h, log))

	sm := shutdown.New(30*time.Second, log)
	sm.Notify()
	go func() {
		<-sm.Done()
		sup.Stop()
	}()

	// Operational surface: health, status, task states, metrics. It
	// keeps its own store connection, independent of any run's graph.
	apiStore, err := store.Open(settings.StorageDriver, settings.StorageDSN)
	if err != nil {
		return fmt.Errorf("open store for status API: %w", err)
	}
	startedAt := time.Now()
	server := api.NewServer(settings.ListenAddr, apiStore, func() api.NodeStatus {
		st := api.NodeStatus{
			Identity:  settings.Identity(),
			Hardware:  hw,
			UptimeSec: int64(time.Since(startedAt).Seconds()),
		}
		if h != nil {
			st.ActiveRunID = h.ActiveRunID()
		}
		return st
	}, log)
	server.Start()
	sm.Register(server.Shutdown)
	sm.Register(func(ctx context.Context) error { return apiStore.Close() })

	// Boundary recreation policy: immediate after a planned restart or a
	// clean exit, backing off after faults.
	backoffCfg := retry.DefaultConfig()
	backoff := backoffCfg.InitialBackoff
	for {
		restart, err := sup.Run(context.Background())
		switch {
		case err != nil:
			log.Error("boundary run failed", map[string]interface{}{
				"error":   err.Error(),
				"backoff": backoff.String(),
			})
			select {
			case <-sm.Done():
			case <-time.After(backoff):
			}
			backoff = backoffCfg.Next(backoff)
		case restart:
			log.Info("restart requested, recreating boundary")
			backoff = backoffCfg.InitialBackoff
		default:
			// Non-restart exits (faulted runs included: the host absorbs
			// them) are recycled after a pause so a persistent fault
			// cannot spin the boundary.
			select {
			case <-sm.Done():
			case <-time.After(backoff):
			}
			backoff = backoffCfg.Next(backoff)
		}

		select {
		case <-sm.Done():
			sm.Shutdown()
			return nil
		default:
		}
	}
}
