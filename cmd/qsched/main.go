package main

import (
	"context"
	"encoding/hex"
	"fmt"
	"net"
	"net/http"
	_ "net/http/pprof" // profiling endpoints, enabled via --enable-pprof
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/quillhpc/qsched/internal/audit"
	"github.com/quillhpc/qsched/internal/cycle"
	"github.com/quillhpc/qsched/internal/events"
	"github.com/quillhpc/qsched/internal/fairshare"
	"github.com/quillhpc/qsched/internal/ifl"
	"github.com/quillhpc/qsched/internal/policy"
	"github.com/quillhpc/qsched/internal/resource"
	"github.com/quillhpc/qsched/internal/statusapi"
	"github.com/quillhpc/qsched/internal/store"
	"github.com/quillhpc/qsched/internal/wire"
	"github.com/quillhpc/qsched/internal/workerpool"
	"github.com/quillhpc/qsched/pkg/config"
	"github.com/quillhpc/qsched/pkg/log"
	"github.com/quillhpc/qsched/pkg/metrics"
)

var (
	// Version information (set via ldflags during build)
	Version   = "dev"
	Commit    = "unknown"
	BuildTime = "unknown"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "qsched",
	Short: "qsched - an HPC batch workload scheduler core",
	Long: `qsched drives a PBS-style scheduling cycle against a resource
management server: it stats the server over the wire IFL protocol,
materializes a local universe, confirms reservations, walks the sorted
job list through next_job/is_ok_to_run, and preempts or backfills as
needed before freeing the universe at cycle end.`,
	Version: Version,
}

func init() {
	rootCmd.SetVersionTemplate(fmt.Sprintf(
		"qsched version %s\nCommit: %s\nBuilt: %s\n",
		Version, Commit, BuildTime,
	))

	rootCmd.PersistentFlags().String("log-level", "info", "Log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().Bool("log-json", false, "Output logs in JSON format")
	rootCmd.PersistentFlags().String("config", "qsched.yaml", "Path to the qsched YAML config document")
	rootCmd.PersistentFlags().Int("nthreads", 0, "Worker pool size for bounded duplicated work (0 or 1 = no pool, work runs inline)")

	cobra.OnInitialize(initLogging)

	rootCmd.AddCommand(runCmd)
}

func initLogging() {
	logLevel, _ := rootCmd.PersistentFlags().GetString("log-level")
	logJSON, _ := rootCmd.PersistentFlags().GetBool("log-json")

	log.Init(log.Config{
		Level:      log.Level(logLevel),
		JSONOutput: logJSON,
	})
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the scheduling cycle loop against a resource-management server",
	Long: `Connects to the configured server over the IFL wire protocol and
runs scheduling cycles on sched_cycle_length, until interrupted.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfgPath, _ := cmd.Flags().GetString("config")
		cfg, err := config.Load(cfgPath)
		if err != nil {
			return fmt.Errorf("loading config: %v", err)
		}
		if n, _ := cmd.Flags().GetInt("nthreads"); n > 0 {
			cfg.NThreads = n
		}

		reg := resource.StandardRegistry()
		pol := policy.New()

		client, conn, err := dialServer(cfg.Server)
		if err != nil {
			return fmt.Errorf("connecting to server: %v", err)
		}
		defer conn.Close()

		pool := workerpool.New(cfg.NThreads)
		d := cycle.New(pool, client, pol, reg, log.Logger, cycle.Limits{
			CycleLength:        cfg.CycleLength,
			MaxJobsToCheck:     cfg.MaxJobsToCheck,
			MaxPreemptAttempts: cfg.MaxPreemptAttempts,
		})

		broker := events.NewBroker()
		if cfg.Events.RedisEnabled {
			broker = broker.WithRedis(
				events.NewRedisClient(cfg.Events.RedisAddr, cfg.Events.RedisPassword, cfg.Events.RedisDB),
				cfg.Events.RedisChannel,
			)
		}
		broker.Start()
		defer broker.Stop()
		d.Broker = broker

		st, err := store.Open(cfg.StoreDataDir)
		if err != nil {
			return fmt.Errorf("opening estimate store: %v", err)
		}
		defer st.Close()
		d.Store = st

		if cfg.Audit.Enabled {
			sink, err := audit.Open(cfg.Audit.DSN, log.Logger)
			if err != nil {
				log.Logger.Warn().Err(err).Msg("audit sink unavailable, continuing without it")
			} else {
				defer sink.Close()
				d.Audit = sink
			}
		}

		metrics.SetVersion(Version)
		metrics.RegisterComponent("server_conn", true, "connected")
		collector := metrics.NewCollector(d)
		collector.Start()
		defer collector.Stop()

		serveAddr := cfg.Status.ListenAddr
		pprofEnabled, _ := cmd.Flags().GetBool("enable-pprof")
		if cfg.Status.Enabled || pprofEnabled {
			mux := http.NewServeMux()
			if cfg.Status.Enabled {
				status := statusapi.New(d, broker, log.Logger)
				mux.Handle("/", status.Handler())
			}
			mux.Handle("/metrics", metrics.Handler())
			mux.Handle("/health", metrics.HealthHandler())
			mux.Handle("/ready", metrics.ReadyHandler())
			mux.Handle("/live", metrics.LivenessHandler())
			if pprofEnabled {
				mux.Handle("/debug/pprof/", http.DefaultServeMux)
			}
			go func() {
				if err := http.ListenAndServe(serveAddr, mux); err != nil {
					log.Logger.Error().Err(err).Msg("status/metrics server error")
				}
			}()
			log.Logger.Info().Str("addr", serveAddr).Msg("status/metrics endpoint listening")
		}

		fairshareRoot := fairshare.NewRoot("root", 1)

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		source := cycle.NewIFLSource(client, reg)

		log.Logger.Info().Dur("cycle_length", cfg.CycleLength).Msg("qsched starting cycle loop")
		runCycle(ctx, d, source, fairshareRoot)

		ticker := time.NewTicker(cfg.CycleLength)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				log.Logger.Info().Msg("shutting down")
				return nil
			case <-ticker.C:
				runCycle(ctx, d, source, fairshareRoot)
			}
		}
	},
}

func init() {
	runCmd.Flags().Bool("enable-pprof", false, "Enable pprof profiling endpoints on the status/metrics listener")
}

// runCycle runs and logs exactly one scheduling cycle, never propagating a
// cycle failure into the run loop: a failed stat-server round trip should
// be retried next tick, not bring the process down.
func runCycle(ctx context.Context, d *cycle.Driver, source cycle.StatSource, fairshareRoot *fairshare.Node) {
	report, err := d.Run(ctx, source, fairshareRoot, time.Now())
	if err != nil {
		log.Logger.Error().Err(err).Msg("cycle failed")
		return
	}
	log.Logger.Info().
		Str("cycle_id", report.CycleID).
		Int("jobs_checked", report.JobsChecked).
		Int("jobs_run", report.JobsRun).
		Int("jobs_can_not_run", report.JobsCanNotRun).
		Int("jobs_preempted", report.JobsPreempted).
		Int("jobs_backfilled", report.JobsBackfilled).
		Int("reservations_confirmed", report.ReservationsConfirmed).
		Int("reservations_failed", report.ReservationsFailed).
		Dur("duration", report.Duration).
		Msg("cycle complete")
	for _, w := range report.Warnings {
		log.Logger.Warn().Str("object", w.Object).Msg(w.Reason)
	}
}

// dialServer opens the TCP connection to the resource-management server
// and runs the wire-level handshake (spec §4.A), returning an ifl.Client
// ready for stat/run/sig/preempt/confirm calls.
func dialServer(cfg config.ServerConfig) (*ifl.Client, net.Conn, error) {
	addr := fmt.Sprintf("%s:%d", cfg.Address, cfg.Port)
	conn, err := net.Dial("tcp", addr)
	if err != nil {
		return nil, nil, fmt.Errorf("dial %s: %v", addr, err)
	}

	authMethod, err := resolveMethod(cfg.AuthMethod, cfg.SecretboxKeyHex)
	if err != nil {
		conn.Close()
		return nil, nil, err
	}
	encMethod, err := resolveMethod(cfg.EncryptMethod, cfg.SecretboxKeyHex)
	if err != nil {
		conn.Close()
		return nil, nil, err
	}

	ch := wire.NewChannel(conn, authMethod, encMethod)
	if err := ch.ClientHandshake(wire.ConnService, cfg.Address); err != nil {
		conn.Close()
		return nil, nil, fmt.Errorf("handshake: %v", err)
	}

	return ifl.NewClient(ch, cfg.User, log.Logger), conn, nil
}

// resolveMethod maps a config-named wire method to its implementation.
// An empty name disables the role (spec §4.A allows cleartext for either
// handshake), matching the teacher's pattern of deferring the concrete
// cryptographic choice to config rather than hardcoding one scheme.
func resolveMethod(name, keyHex string) (wire.Method, error) {
	switch name {
	case "", "none", "cleartext":
		return wire.CleartextMethod{}, nil
	case "secretbox":
		raw, err := hex.DecodeString(keyHex)
		if err != nil || len(raw) != 32 {
			return nil, fmt.Errorf("secretbox_key_hex must decode to exactly 32 bytes")
		}
		var key [32]byte
		copy(key[:], raw)
		return wire.NewSecretboxMethod(key), nil
	default:
		return nil, fmt.Errorf("unknown wire method %q", name)
	}
}
