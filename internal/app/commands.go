package app

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"kbengine/internal/adapters"
	"kbengine/internal/assessment"
	"kbengine/internal/domain"
	"kbengine/internal/insights"
	"kbengine/internal/integrations/llm"
	slackpub "kbengine/internal/integrations/slack"
	"kbengine/internal/knowledge"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

func newAddCmd(rt *runtime) *cobra.Command {
	var p knowledge.AddParams
	var meta map[string]string
	cmd := &cobra.Command{
		Use:   "add",
		Short: "Store a validated input/output pair",
		Long: `Store a validated example. Adding the same pair again bumps its usage count.

Examples:
  kbengine add --module letters --category referral --input "..." --output "..."`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			p.Metadata = meta
			id, err := rt.engine.Library.Add(cmd.Context(), p)
			if err != nil {
				return err
			}
			return writeJSON(cmd, map[string]int64{"id": id})
		},
	}
	cmd.Flags().StringVar(&p.Module, "module", "", "Owning module")
	cmd.Flags().StringVar(&p.Category, "category", "", "Category label")
	cmd.Flags().StringVar(&p.ScenarioType, "scenario", "", "Scenario type")
	cmd.Flags().StringVar(&p.Specialty, "specialty", "", "Specialty (empty matches every specialty)")
	cmd.Flags().StringVar(&p.Input, "input", "", "Anonymized input text")
	cmd.Flags().StringVar(&p.Output, "output", "", "Validated output text")
	cmd.Flags().StringVar(&p.CreatedBy, "created-by", "", "Submitter identifier")
	cmd.Flags().StringToStringVar(&meta, "meta", nil, "Metadata key=value pairs")
	return cmd
}

func newRetrieveCmd(rt *runtime) *cobra.Command {
	var q domain.ExampleQuery
	var dryRun, asContext bool
	cmd := &cobra.Command{
		Use:   "retrieve",
		Short: "Fetch the best examples for a module",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if !cmd.Flags().Changed("limit") {
				q.Limit = rt.cfg.ContextExampleCount
			}
			var examples []domain.Example
			var err error
			if dryRun {
				examples, err = rt.engine.Retriever.Candidates(cmd.Context(), q)
			} else {
				examples, err = rt.engine.Retriever.Retrieve(cmd.Context(), q)
			}
			if err != nil {
				return err
			}
			if asContext {
				_, err := fmt.Fprintln(cmd.OutOrStdout(), knowledge.BuildContextBlock(examples, rt.cfg.ContextMaxChars))
				return err
			}
			return writeJSON(cmd, examples)
		},
	}
	cmd.Flags().StringVar(&q.Module, "module", "", "Module to search")
	cmd.Flags().StringVar(&q.Category, "category", "", "Category filter")
	cmd.Flags().StringVar(&q.Specialty, "specialty", "", "Specialty filter")
	cmd.Flags().IntVar(&q.Limit, "limit", 0, "Maximum examples (default context_example_count)")
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "Do not record usage")
	cmd.Flags().BoolVar(&asContext, "context", false, "Print a prompt context block instead of JSON")
	return cmd
}

func newFeedbackCmd(rt *runtime) *cobra.Command {
	var p knowledge.RecordParams
	var verdict string
	var meta map[string]string
	cmd := &cobra.Command{
		Use:   "feedback",
		Short: "Record a validation verdict on an AI suggestion",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			isCorrect, err := parseVerdict(verdict)
			if err != nil {
				return err
			}
			p.IsCorrect = isCorrect
			p.Metadata = meta
			id, err := rt.engine.Feedback.Record(cmd.Context(), p)
			if err != nil {
				return err
			}
			return writeJSON(cmd, map[string]int64{"id": id})
		},
	}
	cmd.Flags().StringVar(&p.Module, "module", "", "Owning module")
	cmd.Flags().StringVar(&p.AISuggestion, "suggestion", "", "The AI suggestion being judged")
	cmd.Flags().StringVar(&p.UserCorrection, "correction", "", "Reviewer's corrected text")
	cmd.Flags().StringVar(&verdict, "verdict", "unknown", "correct, incorrect or unknown")
	cmd.Flags().StringVar(&p.FeedbackType, "type", "", "Feedback type (default validation)")
	cmd.Flags().StringVar(&p.ImprovementNotes, "notes", "", "Improvement notes")
	cmd.Flags().StringVar(&p.SessionID, "session", "", "Caller session id")
	cmd.Flags().StringVar(&p.UserRole, "role", "", "Reviewer role")
	cmd.Flags().StringToStringVar(&meta, "meta", nil, "Metadata key=value pairs")
	return cmd
}

func parseVerdict(s string) (*bool, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "unknown":
		return nil, nil
	case "correct", "true", "yes":
		return domain.BoolPtr(true), nil
	case "incorrect", "false", "no":
		return domain.BoolPtr(false), nil
	default:
		return nil, &domain.ValidationError{Field: "verdict", Reason: fmt.Sprintf("unknown value %q", s)}
	}
}

func newPatternsCmd(rt *runtime) *cobra.Command {
	var module string
	var window, threshold, recent int
	var snapshot bool
	cmd := &cobra.Command{
		Use:   "patterns",
		Short: "Show corrections that keep recurring",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if recent > 0 {
				stored, err := rt.store.RecentPatterns(cmd.Context(), module, recent)
				if err != nil {
					return err
				}
				return writeJSON(cmd, stored)
			}
			if !cmd.Flags().Changed("window") {
				window = rt.cfg.PatternWindowDays
			}
			if !cmd.Flags().Changed("threshold") {
				threshold = rt.cfg.Threshold()
			}
			patterns, err := rt.engine.Patterns.DetectPatterns(cmd.Context(), module, window, threshold)
			if err != nil {
				return err
			}
			if snapshot && len(patterns) > 0 {
				if err := rt.engine.Patterns.Snapshot(cmd.Context(), patterns); err != nil {
					return err
				}
			}
			return writeJSON(cmd, patterns)
		},
	}
	cmd.Flags().StringVar(&module, "module", "", "Module to mine")
	cmd.Flags().IntVar(&window, "window", 0, "Trailing window in days (default pattern_window_days)")
	cmd.Flags().IntVar(&threshold, "threshold", 0, "Report groups seen more than this many times (default pattern_threshold)")
	cmd.Flags().BoolVar(&snapshot, "snapshot", false, "Persist the detected patterns")
	cmd.Flags().IntVar(&recent, "recent", 0, "Print the N most recent stored snapshots instead of mining")
	return cmd
}

func newSummarizeCmd(rt *runtime) *cobra.Command {
	var module string
	var window int
	cmd := &cobra.Command{
		Use:   "summarize",
		Short: "Roll up metric samples by module and metric",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if !cmd.Flags().Changed("window") {
				window = rt.cfg.AnalyticsWindowDays
			}
			summary, err := rt.engine.Analytics.Summarize(cmd.Context(), module, window)
			if err != nil {
				return err
			}
			return writeJSON(cmd, summary)
		},
	}
	cmd.Flags().StringVar(&module, "module", "", "Module filter (empty for all)")
	cmd.Flags().IntVar(&window, "window", 0, "Trailing window in days (default analytics_window_days)")
	return cmd
}

func newDeactivateCmd(rt *runtime) *cobra.Command {
	return &cobra.Command{
		Use:   "deactivate <example-id>",
		Short: "Retire an example from retrieval",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := strconv.ParseInt(args[0], 10, 64)
			if err != nil {
				return &domain.ValidationError{Field: "example-id", Reason: "must be an integer"}
			}
			if err := rt.engine.Library.Deactivate(cmd.Context(), id); err != nil {
				return err
			}
			return writeJSON(cmd, map[string]any{"id": id, "active": false})
		},
	}
}

func newExamCmd(rt *runtime) *cobra.Command {
	var bankPath, historyPath string
	var count int
	var seed int64
	cmd := &cobra.Command{
		Use:   "exam",
		Short: "Draw an exam from a question bank",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			bank, err := assessment.LoadBank(bankPath)
			if err != nil {
				return err
			}
			var history *assessment.History
			if historyPath != "" {
				history, err = loadHistory(historyPath)
				if err != nil {
					return err
				}
			}
			if !cmd.Flags().Changed("seed") {
				seed = rt.now().UnixNano()
			}
			builder, err := adapters.NewExamBuilder(bank, rt.cfg.AssessmentQuotas, assessment.NewSelector(seed), rt.recorder)
			if err != nil {
				return err
			}
			exam, err := builder.Build(cmd.Context(), count, history)
			if err != nil {
				return err
			}
			return writeJSON(cmd, exam)
		},
	}
	cmd.Flags().StringVar(&bankPath, "bank", "", "Question bank YAML file")
	cmd.Flags().StringVar(&historyPath, "history", "", "Student history YAML file (topic_accuracy map)")
	cmd.Flags().IntVar(&count, "count", 20, "Number of questions")
	cmd.Flags().Int64Var(&seed, "seed", 0, "Random seed for a reproducible exam")
	_ = cmd.MarkFlagRequired("bank")
	return cmd
}

func loadHistory(path string) (*assessment.History, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading history: %w", err)
	}
	var h assessment.History
	if err := yaml.Unmarshal(data, &h); err != nil {
		return nil, fmt.Errorf("parsing history: %w", err)
	}
	return &h, nil
}

func newInterpretCmd(rt *runtime) *cobra.Command {
	var module, systemPrompt string
	var req adapters.Request
	cmd := &cobra.Command{
		Use:   "interpret",
		Short: "Generate a suggestion with retrieved examples as context",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			generator, err := llm.NewGenerator(rt.cfg)
			if err != nil {
				return err
			}
			it := adapters.NewInterpreter(module, systemPrompt, rt.engine, generator, rt.recorder)
			it.ExampleCount = rt.cfg.ContextExampleCount
			it.MaxChars = rt.cfg.ContextMaxChars
			suggestion, err := it.Suggest(cmd.Context(), req)
			if err != nil {
				return err
			}
			return writeJSON(cmd, suggestion)
		},
	}
	cmd.Flags().StringVar(&module, "module", "interpretation", "Module the suggestion belongs to")
	cmd.Flags().StringVar(&systemPrompt, "system", "You help clinicians interpret anonymized case notes. Follow the style of the validated examples.", "System prompt")
	cmd.Flags().StringVar(&req.Category, "category", "", "Category filter for context")
	cmd.Flags().StringVar(&req.Specialty, "specialty", "", "Specialty filter for context")
	cmd.Flags().StringVar(&req.Input, "input", "", "Anonymized input text")
	cmd.Flags().StringVar(&req.Instructions, "instructions", "", "Extra instructions for this request")
	cmd.Flags().StringVar(&req.SessionID, "session", "", "Session id (generated when empty)")
	return cmd
}

func newValidateCmd(rt *runtime) *cobra.Command {
	var module, verdict string
	var v adapters.Verdict
	var meta map[string]string
	cmd := &cobra.Command{
		Use:   "validate",
		Short: "Judge a suggestion and keep the validated pair as an example",
		Long: `Record a reviewer verdict, then store the validated pair: the suggestion when
it was correct, the correction when it was not. An unknown verdict only records
feedback.

Examples:
  kbengine validate --module interview --input "..." --suggestion "..." --verdict incorrect --correction "..."`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			isCorrect, err := parseVerdict(verdict)
			if err != nil {
				return err
			}
			v.IsCorrect = isCorrect
			v.Metadata = meta
			it := adapters.NewInterpreter(module, "", rt.engine, nil, rt.recorder)
			result, err := it.Validate(cmd.Context(), v)
			if err != nil {
				return err
			}
			return writeJSON(cmd, result)
		},
	}
	cmd.Flags().StringVar(&module, "module", "interpretation", "Module the suggestion belongs to")
	cmd.Flags().StringVar(&v.Category, "category", "", "Category label for the stored example")
	cmd.Flags().StringVar(&v.ScenarioType, "scenario", "", "Scenario type")
	cmd.Flags().StringVar(&v.Specialty, "specialty", "", "Specialty (empty matches every specialty)")
	cmd.Flags().StringVar(&v.Input, "input", "", "Anonymized input the suggestion answered")
	cmd.Flags().StringVar(&v.AISuggestion, "suggestion", "", "The AI suggestion being judged")
	cmd.Flags().StringVar(&v.UserCorrection, "correction", "", "Reviewer's corrected text")
	cmd.Flags().StringVar(&verdict, "verdict", "unknown", "correct, incorrect or unknown")
	cmd.Flags().StringVar(&v.Notes, "notes", "", "Improvement notes")
	cmd.Flags().StringVar(&v.SessionID, "session", "", "Session id from interpret")
	cmd.Flags().StringVar(&v.UserRole, "role", "", "Reviewer role")
	cmd.Flags().StringToStringVar(&meta, "meta", nil, "Metadata key=value pairs")
	return cmd
}

func newInsightsCmd(rt *runtime) *cobra.Command {
	var modules []string
	var window, recent int
	var publish bool
	cmd := &cobra.Command{
		Use:   "insights",
		Short: "Generate and store insights, optionally posting the digest to Slack",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if recent > 0 {
				module := ""
				if len(modules) == 1 {
					module = modules[0]
				}
				stored, err := rt.store.RecentInsights(cmd.Context(), module, recent)
				if err != nil {
					return err
				}
				return writeJSON(cmd, stored)
			}
			if !cmd.Flags().Changed("window") {
				window = rt.cfg.AnalyticsWindowDays
			}
			gen := insights.NewGenerator(rt.engine, rt.store, rt.cfg.Threshold(), rt.now)
			report, err := gen.Generate(cmd.Context(), modules, window)
			if err != nil {
				return err
			}
			if publish {
				if !rt.cfg.SlackConfigured() {
					return fmt.Errorf("--publish needs slack_bot_token and insights_channel_id")
				}
				pub := slackpub.NewPublisher(rt.cfg.SlackBotToken, rt.cfg.InsightsChannelID)
				title := fmt.Sprintf("Knowledge engine insights %s", rt.now().Format(time.DateOnly))
				if _, err := pub.Publish(cmd.Context(), title, report.Digest); err != nil {
					return err
				}
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), report.Digest)
			return err
		},
	}
	cmd.Flags().StringSliceVar(&modules, "module", nil, "Modules to cover (default every module with samples)")
	cmd.Flags().IntVar(&window, "window", 0, "Trailing window in days (default analytics_window_days)")
	cmd.Flags().BoolVar(&publish, "publish", false, "Post the digest to the insights channel")
	cmd.Flags().IntVar(&recent, "recent", 0, "Print the N most recent stored insights instead of generating")
	return cmd
}
