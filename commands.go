package main

import (
	"errors"
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/rovo/nbstats/internal/config"
	"github.com/rovo/nbstats/internal/logging"
	"github.com/rovo/nbstats/svm"
	"github.com/rovo/nbstats/training"
)

// cli holds what the root command resolves before any subcommand runs.
type cli struct {
	configPath string
	cfg        *config.Config
	logger     *zap.Logger
}

var (
	execute  = func() error { return newRootCmd().Execute() }
	logFatal = func(v ...interface{}) { zap.S().Fatal(v...) }
)

func main() {
	if err := execute(); err != nil {
		logFatal(err)
	}
}

func newRootCmd() *cobra.Command {
	state := &cli{}

	rootCmd := &cobra.Command{
		Use:           "nbstats",
		Short:         "Naive Bayes training statistics",
		Long:          "Collects per-category feature and sample counts for naive Bayes classifiers and serves them over HTTP.",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return state.setup()
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			if state.logger != nil {
				_ = state.logger.Sync()
			}
		},
	}
	rootCmd.PersistentFlags().StringVar(&state.configPath, "config", "", "path to a YAML config file")

	rootCmd.AddCommand(newServeCmd(state))
	rootCmd.AddCommand(newTrainCmd(state))
	rootCmd.AddCommand(newInspectCmd(state))
	rootCmd.AddCommand(newSVMTypeCmd())
	return rootCmd
}

func (s *cli) setup() error {
	cfg, err := config.Load(s.configPath)
	if err != nil {
		return err
	}
	logger, err := logging.New(cfg.Log.Level, cfg.Log.Format)
	if err != nil {
		return err
	}
	zap.ReplaceGlobals(logger)

	s.cfg = cfg
	s.logger = logger
	return nil
}

func newServeCmd(state *cli) *cobra.Command {
	var port int
	var authToken string

	serveCmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		Long:  "Serves training statistics over HTTP until SIGINT or SIGTERM, then saves the model if configured.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if cmd.Flags().Changed("port") {
				state.cfg.Server.Port = port
			}
			if cmd.Flags().Changed("auth-token") {
				state.cfg.Server.AuthToken = authToken
			}
			if err := state.cfg.Validate(); err != nil {
				return err
			}
			return runServe(state.cfg, state.logger)
		},
	}
	serveCmd.Flags().IntVar(&port, "port", 8000, "port the HTTP server listens on")
	serveCmd.Flags().StringVar(&authToken, "auth-token", "", "require this bearer token on non-health endpoints")
	return serveCmd
}

func newTrainCmd(state *cli) *cobra.Command {
	var category string
	var perLine bool

	trainCmd := &cobra.Command{
		Use:   "train --category NAME FILE...",
		Short: "Train a category from text files",
		Long:  "Adds each file (or each non-empty line with --lines) as one sample of the category and saves the model.",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if !categoryPathPattern.MatchString(category) {
				return fmt.Errorf("invalid category %q", category)
			}

			samples, err := readSamples(category, args, perLine)
			if err != nil {
				return err
			}

			api, err := NewStatsAPI(state.cfg, state.logger)
			if err != nil {
				return err
			}
			defer api.Close()
			api.loadModelIfPresent()

			trained, err := api.trainer.TrainBatch(cmd.Context(), samples)
			if err != nil {
				return err
			}
			if err := api.store.SaveData(state.cfg.Model.Dir, state.cfg.Model.Name); err != nil {
				return err
			}

			fmt.Fprintf(cmd.OutOrStdout(), "trained %d samples into %s\n", trained, category)
			return nil
		},
	}
	trainCmd.Flags().StringVar(&category, "category", "", "category the samples belong to")
	trainCmd.Flags().BoolVar(&perLine, "lines", false, "treat every non-empty line as a separate sample")
	_ = trainCmd.MarkFlagRequired("category")
	return trainCmd
}

func readSamples(category string, paths []string, perLine bool) ([]training.Sample[string], error) {
	var samples []training.Sample[string]
	for _, path := range paths {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, err
		}
		if !perLine {
			samples = append(samples, training.Sample[string]{Category: category, Text: string(data)})
			continue
		}
		for _, line := range strings.Split(string(data), "\n") {
			if strings.TrimSpace(line) == "" {
				continue
			}
			samples = append(samples, training.Sample[string]{Category: category, Text: line})
		}
	}
	return samples, nil
}

func newInspectCmd(state *cli) *cobra.Command {
	var feature, category string

	inspectCmd := &cobra.Command{
		Use:   "inspect",
		Short: "Print statistics from the saved model",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			api, err := NewStatsAPI(state.cfg, state.logger)
			if err != nil {
				return err
			}
			defer api.Close()

			path := state.cfg.Model.Path()
			if !api.store.LoadData(path) {
				return fmt.Errorf("could not load training data from %s", path)
			}

			out := cmd.OutOrStdout()
			store := api.store
			if feature != "" {
				normalized, ok := api.tokenizer.Normalize(feature)
				if !ok {
					return fmt.Errorf("feature %q must be a single word", feature)
				}
				feature = normalized
			}
			switch {
			case feature != "" && category != "":
				fmt.Fprintf(out, "%s in %s: %d\n", feature, category, store.FeatureCount(feature, category))
			case feature != "":
				fmt.Fprintf(out, "%s: %d\n", feature, store.TotalFeatureCount(feature))
			case category != "":
				fmt.Fprintf(out, "%s: %d samples\n", category, store.NumberOfSamplesForCategory(category))
			default:
				names := store.Categories()
				sort.Strings(names)
				fmt.Fprintf(out, "categories: %d\n", store.NumberOfCategories())
				fmt.Fprintf(out, "samples: %d\n", store.TotalNumberOfSamples())
				fmt.Fprintf(out, "distinct features: %d\n", store.TotalNumberOfFeatures())
				for _, name := range names {
					fmt.Fprintf(out, "  %s: %d samples\n", name, store.NumberOfSamplesForCategory(name))
				}
			}
			return nil
		},
	}
	inspectCmd.Flags().StringVar(&feature, "feature", "", "report the occurrences of this feature")
	inspectCmd.Flags().StringVar(&category, "category", "", "restrict the report to this category")
	return inspectCmd
}

func newSVMTypeCmd() *cobra.Command {
	var all bool

	svmTypeCmd := &cobra.Command{
		Use:   "svm-type [VALUE]",
		Short: "Resolve an SVM type name or ordinal",
		Long:  "Prints the canonical name and ordinal. Unknown values resolve to c_svc. With --all every known type is listed.",
		Args:  cobra.RangeArgs(0, 1),
		// Config is irrelevant here.
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error { return nil },
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			switch {
			case all && len(args) == 0:
				for _, t := range svm.All() {
					fmt.Fprintf(out, "%s %d\n", t, t.Ordinal())
				}
			case !all && len(args) == 1:
				t := svm.Parse(args[0])
				fmt.Fprintf(out, "%s %d\n", t, t.Ordinal())
			default:
				return errors.New("pass either one VALUE or --all")
			}
			return nil
		},
	}
	svmTypeCmd.Flags().BoolVar(&all, "all", false, "list every SVM type")
	return svmTypeCmd
}
