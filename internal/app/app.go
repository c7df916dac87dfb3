package app

import (
	"encoding/json"
	"fmt"
	"log"
	"os"
	"time"

	"kbengine/internal/config"
	"kbengine/internal/httpx"
	"kbengine/internal/knowledge"
	"kbengine/internal/storage/sqlite"
	"kbengine/internal/telemetry"

	"github.com/spf13/cobra"
)

// runtime is built once per invocation by the root command and shared by
// every subcommand.
type runtime struct {
	cfg      config.Config
	store    *sqlite.Store
	recorder *telemetry.Recorder
	engine   *knowledge.Engine
	now      func() time.Time
}

func Main() {
	root, rt := newRootCmd()
	err := root.Execute()
	if closeErr := rt.close(); closeErr != nil {
		log.Printf("kbengine: closing store: %v", closeErr)
	}
	if err != nil {
		log.Printf("kbengine: %v", err)
		os.Exit(1)
	}
}

// newRootCmd returns the command tree and the runtime it opens; the caller
// closes the runtime after Execute.
func newRootCmd() (*cobra.Command, *runtime) {
	rt := &runtime{now: time.Now}
	root := &cobra.Command{
		Use:           "kbengine",
		Short:         "Knowledge retrieval and feedback learning engine",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return rt.open()
		},
	}

	root.AddCommand(
		newAddCmd(rt),
		newRetrieveCmd(rt),
		newFeedbackCmd(rt),
		newPatternsCmd(rt),
		newSummarizeCmd(rt),
		newDeactivateCmd(rt),
		newExamCmd(rt),
		newInterpretCmd(rt),
		newValidateCmd(rt),
		newInsightsCmd(rt),
		newMetricsCmd(rt),
	)
	return root, rt
}

func (rt *runtime) open() error {
	cfg, err := config.LoadConfig()
	if err != nil {
		return err
	}
	appliedHTTPTimeout := httpx.ConfigureExternalHTTPClient(cfg.ExternalHTTPTimeoutSeconds)
	log.Printf(
		"Config loaded. DB=%s LLMProvider=%s ContextExamples=%d ContextMaxChars=%d PatternWindow=%d PatternThreshold=%d SlackConfigured=%t ExternalHTTPTimeout=%s",
		cfg.DBPath,
		cfg.LLMProvider,
		cfg.ContextExampleCount,
		cfg.ContextMaxChars,
		cfg.PatternWindowDays,
		cfg.Threshold(),
		cfg.SlackConfigured(),
		appliedHTTPTimeout,
	)

	store, err := sqlite.InitDB(cfg.DBPath)
	if err != nil {
		return fmt.Errorf("init database: %w", err)
	}
	store.SetClock(rt.now)
	rt.cfg = cfg
	rt.store = store
	rt.recorder = telemetry.NewRecorder(store)
	rt.engine = knowledge.NewEngine(store, rt.recorder, knowledge.WithClock(rt.now))
	return nil
}

func (rt *runtime) close() error {
	if rt.store == nil {
		return nil
	}
	err := rt.store.Close()
	rt.store = nil
	return err
}

func writeJSON(cmd *cobra.Command, v any) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
