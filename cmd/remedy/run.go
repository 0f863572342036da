package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/fatih/color"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"github.com/havenops/remedy/internal/anomaly"
	"github.com/havenops/remedy/internal/errstream"
	"github.com/havenops/remedy/internal/healing"
	"github.com/havenops/remedy/internal/learning"
	"github.com/havenops/remedy/internal/metrics"
	"github.com/havenops/remedy/internal/recovery"
	"github.com/havenops/remedy/internal/rootcause"
	"github.com/havenops/remedy/internal/storage"
	"github.com/havenops/remedy/internal/sysmetrics"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the self-healing daemon",
	Long: `Start the healing loop: monitor system metrics and the error
stream, detect anomalies, predict failures, and drive recovery. Runs
until interrupted.

The daemon also serves /metrics (Prometheus), /status and /trigger on
the configured listen address.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runDaemon()
	},
}

func init() {
	rootCmd.AddCommand(runCmd)
}

func runDaemon() error {
	ctx := context.Background()

	store, err := storage.New(&storage.Config{Path: cfg.Database})
	if err != nil {
		return fmt.Errorf("failed to open storage: %w", err)
	}
	defer store.Close()
	fmt.Printf("Using database: %s\n", cfg.Database)

	stream := errstream.NewStream(&errstream.Config{BufferSize: cfg.ErrorBufferSize}, store)

	engine := anomaly.NewEngine(
		anomaly.NewStatisticalDetector(0),
		anomaly.NewThresholdDetector(nil),
		anomaly.NewCorrelationDetector(),
		anomaly.NewPatternDetector(),
	)
	predictor := anomaly.NewPredictor()

	patterns := recovery.NewPatternStore(store)
	if stored, perr := store.GetRecoveryPatterns(ctx); perr == nil {
		patterns.Load(stored)
		fmt.Printf("Loaded %d recovery patterns\n", len(stored))
	}

	mgrCfg := &recovery.ManagerConfig{
		Patterns:   patterns,
		Escalation: &logEscalation{},
		FixSink:    store,
	}
	if cfg.WorkspaceRoot != "" {
		ws := recovery.NewFSWorkspace(cfg.WorkspaceRoot)
		ws.CheckCommand = cfg.WorkspaceCheck
		mgrCfg.Workspace = ws
	}
	manager, err := recovery.NewManager(mgrCfg)
	if err != nil {
		return fmt.Errorf("failed to create recovery manager: %w", err)
	}

	analyzer := rootcause.NewAnalyzer(&rootcause.Config{Patterns: patterns})

	learner := learning.NewLearner(&learning.Config{ProcessEvery: cfg.LearningBatchSize}, store)

	var executor recovery.TaskExecutor = recovery.NoopExecutor{}
	if cfg.RecoveryCommand != "" {
		executor = recovery.NewCommandExecutor(cfg.RecoveryCommand, cfg.RecoveryArgs...)
		fmt.Printf("Recovery hook: %s\n", cfg.RecoveryCommand)
	}

	if err := metrics.Register(prometheus.DefaultRegisterer); err != nil {
		return fmt.Errorf("failed to register metrics: %w", err)
	}

	cfg.Healing.MaxRecoveryAttempts = cfg.MaxRecoveryAttempts
	cfg.Healing.EscalateAfter = cfg.EscalateAfter
	cfg.Healing.SelfModificationAllowed = cfg.SelfModificationAllowed

	orch, err := healing.NewOrchestrator(&healing.Deps{
		Metrics:  sysmetrics.NewCollector(),
		Stream:   stream,
		Engine:   engine,
		Predict:  predictor,
		Recovery: manager,
		Analyzer: analyzer,
		Learner:  learner,
		Executor: executor,
		Store:    store,
		Config:   &cfg.Healing,
	})
	if err != nil {
		return fmt.Errorf("failed to create orchestrator: %w", err)
	}

	if err := orch.Start(ctx); err != nil {
		return fmt.Errorf("failed to start healing loop: %w", err)
	}

	httpSrv := serveHTTP(cfg.ListenAddr, orch, stream)

	green := color.New(color.FgGreen).SprintFunc()
	fmt.Printf("%s Press Ctrl+C to stop.\n", green("Remedy running."))

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	<-sigCh
	fmt.Println("\nShutting down...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		fmt.Fprintf(os.Stderr, "HTTP shutdown error: %v\n", err)
	}
	if err := orch.Stop(shutdownCtx); err != nil {
		fmt.Fprintf(os.Stderr, "Shutdown error: %v\n", err)
	}
	fmt.Println("Stopped.")
	return nil
}

// serveHTTP exposes Prometheus metrics plus a small JSON operational
// surface on the configured address.
func serveHTTP(addr string, orch *healing.Orchestrator, stream *errstream.Stream) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())

	mux.HandleFunc("/status", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, orch.GetHealingStatus())
	})
	mux.HandleFunc("/stats", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, orch.GetHealingStatistics())
	})
	mux.HandleFunc("/trigger", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "POST required", http.StatusMethodNotAllowed)
			return
		}
		var body map[string]interface{}
		_ = json.NewDecoder(r.Body).Decode(&body)
		id := orch.TriggerManualIntervention(body)
		writeJSON(w, map[string]string{"intervention_id": id})
	})
	mux.HandleFunc("/report", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "POST required", http.StatusMethodNotAllowed)
			return
		}
		var body struct {
			Message   string                 `json:"message"`
			Stack     string                 `json:"stack,omitempty"`
			Context   map[string]interface{} `json:"context,omitempty"`
			ProcessID string                 `json:"process_id,omitempty"`
			AgentID   string                 `json:"agent_id,omitempty"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.Message == "" {
			http.Error(w, "message is required", http.StatusBadRequest)
			return
		}
		event, err := stream.RecordMessage(r.Context(), body.Message, body.Stack, body.Context, body.ProcessID, body.AgentID)
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		writeJSON(w, event)
	})

	srv := &http.Server{Addr: addr, Handler: mux}
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			fmt.Fprintf(os.Stderr, "HTTP server error: %v\n", err)
		}
	}()
	fmt.Printf("Serving metrics and status on %s\n", addr)
	return srv
}

func writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		fmt.Fprintf(os.Stderr, "failed to encode response: %v\n", err)
	}
}

// logEscalation surfaces escalations to the operator log. It never
// resolves them itself.
type logEscalation struct{}

func (logEscalation) Escalate(ctx context.Context, req *recovery.EscalationRequest) (bool, error) {
	red := color.New(color.FgRed, color.Bold).SprintFunc()
	if req.Event != nil {
		fmt.Printf("%s [%s] %s: %s (tried %d strategies)\n",
			red("ESCALATION"), req.Urgency, req.Event.Type, req.Event.Message, len(req.AttemptedStrategies))
	} else {
		fmt.Printf("%s [%s] goal %q\n", red("ESCALATION"), req.Urgency, req.Goal)
	}
	return false, nil
}
