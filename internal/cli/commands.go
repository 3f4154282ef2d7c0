package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/dyike/IndexGo/config"
	"github.com/dyike/IndexGo/internal/cache"
	"github.com/dyike/IndexGo/internal/export"
)

// Version is overridden at build time with -ldflags.
var Version = "v1.0.0"

// options holds the global flags and the config they resolve to.
type options struct {
	configPath string
	debug      bool
	logLevel   string

	cfg *config.Config
}

// loadConfig reads the config file when one was given, otherwise the
// defaults with environment overrides.
func (o *options) loadConfig() error {
	var (
		cfg *config.Config
		err error
	)
	if o.configPath != "" {
		cfg, err = config.Load(o.configPath)
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
	} else {
		cfg = config.DefaultConfig()
		if err := cfg.Validate(); err != nil {
			return fmt.Errorf("invalid config: %w", err)
		}
	}

	if o.logLevel != "" {
		cfg.LogLevel = o.logLevel
	}
	if o.debug {
		cfg.Debug = true
		cfg.LogLevel = "debug"
	}
	o.cfg = cfg
	return nil
}

// NewRootCmd creates the root command
func NewRootCmd() *cobra.Command {
	opts := &options{}

	rootCmd := &cobra.Command{
		Use:   "indexgo",
		Short: "IndexGo - ETF consensus direct indexing",
		Long: `IndexGo merges the top holdings of a set of index and thematic ETFs into one
stock portfolio, weighted by each fund's asset size, and turns it into a
purchase plan for a cash budget.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if err := opts.loadConfig(); err != nil {
				return err
			}
			// Ensure directories exist
			if err := opts.cfg.EnsureDirectories(); err != nil {
				return fmt.Errorf("failed to create directories: %w", err)
			}
			return nil
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			// Default behavior: start interactive mode
			return NewInteractiveSession(opts).Start(cmd.Context())
		},
	}

	rootCmd.AddCommand(newCompositionCmd(opts))
	rootCmd.AddCommand(newPlanCmd(opts))
	rootCmd.AddCommand(newFundsCmd(opts))
	rootCmd.AddCommand(newPricesCmd(opts))
	rootCmd.AddCommand(newValuationsCmd(opts))
	rootCmd.AddCommand(newNormalizeCmd(opts))
	rootCmd.AddCommand(newConfigCmd(opts))
	rootCmd.AddCommand(newResultsCmd(opts))
	rootCmd.AddCommand(newSnapshotCmd(opts))
	rootCmd.AddCommand(newVersionCmd())

	// Global flags
	rootCmd.PersistentFlags().StringVar(&opts.configPath, "config", "", "Configuration file path")
	rootCmd.PersistentFlags().BoolVar(&opts.debug, "debug", false, "Enable debug logging")
	rootCmd.PersistentFlags().StringVar(&opts.logLevel, "log-level", "", "Log level (debug, info, warn, error)")

	return rootCmd
}

// withApp builds the app for one command and closes it afterwards.
func withApp(cmd *cobra.Command, opts *options, fn func(context.Context, *app) error) error {
	a, err := newApp(opts.cfg, cmd.ErrOrStderr())
	if err != nil {
		return err
	}
	defer a.Close()

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	return fn(ctx, a)
}

func newCompositionCmd(opts *options) *cobra.Command {
	var (
		exportPath string
		asJSON     bool
	)
	cmd := &cobra.Command{
		Use:   "composition",
		Short: "Show the consolidated portfolio",
		Long: `Resolve every fund's asset size, merge their top holdings into one weighted
portfolio and show each holding's weight, allocated capital and market cap.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, opts, func(ctx context.Context, a *app) error {
				c := a.engine.Composition(ctx)
				out := cmd.OutOrStdout()

				if asJSON {
					return writeJSON(cmd, c)
				}
				DisplayComposition(out, c, a.cfg.IndexFunds)

				if exportPath != "" {
					path, err := a.exports.SaveComposition(c, exportTarget(exportPath))
					if err != nil {
						return err
					}
					DisplaySuccess(out, "Composition saved to "+path)
				}
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&exportPath, "export", "", "Write the composition as CSV (\"auto\" for a timestamped file in the results directory)")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print JSON instead of a table")
	return cmd
}

func newPlanCmd(opts *options) *cobra.Command {
	var (
		cash       float64
		fractional bool
		exportPath string
		asJSON     bool
	)
	cmd := &cobra.Command{
		Use:   "plan",
		Short: "Build a purchase plan for a cash budget",
		Long: `Allocate the cash across the consolidated portfolio and compute the shares to
buy for every holding at its latest price.
Example: indexgo plan --cash 10000 --fractional`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if !cmd.Flags().Changed("cash") {
				cash = opts.cfg.DefaultCash
			}
			if !cmd.Flags().Changed("fractional") {
				fractional = opts.cfg.Fractional
			}
			if cash <= 0 {
				return fmt.Errorf("cash must be positive, got %v", cash)
			}

			return withApp(cmd, opts, func(ctx context.Context, a *app) error {
				run := a.engine.Plan(ctx, cash, fractional)
				out := cmd.OutOrStdout()

				if asJSON {
					return writeJSON(cmd, run.Plan)
				}
				DisplayPlan(out, run)

				if exportPath != "" && len(run.Plan.Buy) > 0 {
					path, err := a.exports.SaveOrderSheet(run.Plan, exportTarget(exportPath))
					if err != nil {
						return err
					}
					DisplaySuccess(out, "Order sheet saved to "+path)
				}
				return nil
			})
		},
	}
	cmd.Flags().Float64Var(&cash, "cash", 0, "Cash to invest in USD (config default_cash if not set)")
	cmd.Flags().BoolVar(&fractional, "fractional", false, "Buy fractional shares (config fractional if not set)")
	cmd.Flags().StringVar(&exportPath, "export", "", "Write the order sheet as CSV (\"auto\" for a timestamped file in the results directory)")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print JSON instead of a table")
	return cmd
}

func newFundsCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "funds",
		Short: "List the funds by theme with their sizes and top holdings",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, opts, func(ctx context.Context, a *app) error {
				DisplayFunds(cmd.OutOrStdout(), a.engine.FundDetails(ctx))
				return nil
			})
		},
	}
}

func newPricesCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "prices SYMBOL...",
		Short: "Resolve the latest prices of symbols or company names",
		Example: `  indexgo prices AAPL BRK.B
  indexgo prices "Taiwan Semiconductor"`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, opts, func(ctx context.Context, a *app) error {
				DisplayPrices(cmd.OutOrStdout(), args, a.market.Prices(ctx, args))
				return nil
			})
		},
	}
}

func newValuationsCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "valuations SYMBOL...",
		Short: "Resolve USD market caps (or fund assets) of symbols",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, opts, func(ctx context.Context, a *app) error {
				DisplayValuations(cmd.OutOrStdout(), args, a.resolver.Records(ctx, args))
				return nil
			})
		},
	}
}

func newNormalizeCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "normalize TOKEN...",
		Short: "Show the provider symbol for each identifier",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := loadCorpus(opts.cfg)
			if err != nil {
				return err
			}
			n := newNormalizer(c)
			for _, token := range args {
				fmt.Fprintf(cmd.OutOrStdout(), "%-30s → %s\n", token, n.Normalize(token))
			}
			return nil
		},
	}
}

// newVersionCmd creates the version command
func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "IndexGo %s\n", Version)
			fmt.Fprintln(cmd.OutOrStdout(), "ETF consensus direct indexing")
		},
	}
}

// newConfigCmd creates the config command
func newConfigCmd(opts *options) *cobra.Command {
	configCmd := &cobra.Command{
		Use:   "config",
		Short: "Configuration management",
		Long:  "Show and validate IndexGo configuration settings",
	}

	configCmd.AddCommand(&cobra.Command{
		Use:   "show",
		Short: "Show current configuration",
		Run: func(cmd *cobra.Command, args []string) {
			showConfig(cmd, opts.cfg)
		},
	})

	configCmd.AddCommand(&cobra.Command{
		Use:   "validate",
		Short: "Validate configuration and input files",
		RunE: func(cmd *cobra.Command, args []string) error {
			return validateConfig(cmd, opts.cfg)
		},
	})

	configCmd.AddCommand(&cobra.Command{
		Use:   "set KEY VALUE",
		Short: "Change one setting in the config file",
		Example: `  indexgo config set provider static
  indexgo config set index_funds '["VOO","QQQ","VTI"]'
  indexgo config set price_ttl 10m`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := opts.configPath
			if path == "" {
				path = config.FileName
			}
			mgr, err := config.NewManager(config.WithConfigPath(path))
			if err != nil {
				return err
			}
			if err := mgr.Set(args[0], args[1]); err != nil {
				return err
			}
			DisplaySuccess(cmd.OutOrStdout(), fmt.Sprintf("Set %s in %s", args[0], mgr.Path()))
			return nil
		},
	})

	return configCmd
}

func newResultsCmd(opts *options) *cobra.Command {
	resultsCmd := &cobra.Command{
		Use:   "results",
		Short: "Manage exported CSV files",
	}

	var maxAge time.Duration
	cleanCmd := &cobra.Command{
		Use:   "clean",
		Short: "Delete old exported CSV files and expired cache entries",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			removed, err := export.NewManager(opts.cfg.ResultsDir).CleanOld(maxAge)
			if err != nil {
				return fmt.Errorf("clean results: %w", err)
			}
			out := cmd.OutOrStdout()
			DisplaySuccess(out, fmt.Sprintf("Removed %d files from %s", removed, opts.cfg.ResultsDir))

			store, err := cache.Open(opts.cfg)
			if err != nil {
				return fmt.Errorf("open cache: %w", err)
			}
			defer store.Close()
			if p, ok := store.(cache.Purger); ok {
				ctx := cmd.Context()
				if ctx == nil {
					ctx = context.Background()
				}
				purged, err := p.Purge(ctx)
				if err != nil {
					return fmt.Errorf("purge cache: %w", err)
				}
				DisplaySuccess(out, fmt.Sprintf("Purged %d expired cache entries", purged))
			}
			return nil
		},
	}
	cleanCmd.Flags().DurationVar(&maxAge, "older-than", 30*24*time.Hour, "Minimum age of the files to delete")
	resultsCmd.AddCommand(cleanCmd)

	return resultsCmd
}

// exportTarget maps the "auto" flag value to a timestamped file name.
func exportTarget(flag string) string {
	if strings.EqualFold(flag, "auto") {
		return ""
	}
	return flag
}

func writeJSON(cmd *cobra.Command, v interface{}) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// showConfig displays the current configuration
func showConfig(cmd *cobra.Command, cfg *config.Config) {
	w := cmd.OutOrStdout()
	fmt.Fprintln(w, titleStyle.Render("📋 Current IndexGo Configuration"))
	fmt.Fprintf(w, "Project Directory:    %s\n", cfg.ProjectDir)
	fmt.Fprintf(w, "Results Directory:    %s\n", cfg.ResultsDir)
	fmt.Fprintf(w, "Data Directory:       %s\n", cfg.DataDir)
	fmt.Fprintf(w, "Cache Directory:      %s\n", cfg.DataCacheDir)
	fmt.Fprintln(w)
	fmt.Fprintf(w, "Provider:             %s\n", cfg.Provider)
	fmt.Fprintf(w, "Fallback Providers:   %s\n", strings.Join(cfg.FallbackProviders, ", "))
	fmt.Fprintf(w, "Max Workers:          %d\n", cfg.MaxWorkers)
	fmt.Fprintf(w, "Request Timeout:      %s\n", cfg.RequestTimeout)
	fmt.Fprintf(w, "Overrides File:       %s\n", cfg.OverridesFile)
	fmt.Fprintln(w)
	fmt.Fprintf(w, "Cache Enabled:        %t\n", cfg.CacheEnabled)
	fmt.Fprintf(w, "Cache Backend:        %s\n", cfg.CacheBackend)
	fmt.Fprintf(w, "Price TTL:            %s\n", cfg.PriceTTL)
	fmt.Fprintf(w, "Valuation TTL:        %s\n", cfg.ValuationTTL)
	fmt.Fprintln(w)
	fmt.Fprintf(w, "Index Funds:          %s\n", strings.Join(cfg.IndexFunds, ", "))
	fmt.Fprintf(w, "Index / Theme Limit:  %d / %d\n", cfg.IndexLimit, cfg.ThemeLimit)
	fmt.Fprintf(w, "US Market Total:      %s\n", compact(cfg.USMarketTotal))
	fmt.Fprintf(w, "Default Cash:         %s\n", usd(cfg.DefaultCash))
	fmt.Fprintf(w, "Fractional Shares:    %t\n", cfg.Fractional)
	fmt.Fprintf(w, "Log Level:            %s\n", cfg.LogLevel)
	fmt.Fprintln(w)

	fmt.Fprintln(w, headerStyle.Render("🔌 API Configuration:"))
	if cfg.FinnhubAPIKey != "" {
		fmt.Fprintln(w, "Finnhub API:          ✅ Configured")
	} else {
		fmt.Fprintln(w, "Finnhub API:          ❌ Not configured")
	}
	if cfg.LongportAppKey != "" && cfg.LongportAccessToken != "" {
		fmt.Fprintln(w, "Longport API:         ✅ Configured")
	} else {
		fmt.Fprintln(w, "Longport API:         ❌ Not configured")
	}
}

// validateConfig validates the configuration and the input files
func validateConfig(cmd *cobra.Command, cfg *config.Config) error {
	w := cmd.OutOrStdout()
	fmt.Fprintln(w, "🔍 Validating IndexGo Configuration...")

	fmt.Fprint(w, "⚙️  Checking configuration values... ")
	if err := cfg.Validate(); err != nil {
		fmt.Fprintln(w, "❌")
		return err
	}
	fmt.Fprintln(w, "✅")

	fmt.Fprint(w, "📁 Checking input files... ")
	c, err := loadCorpus(cfg)
	if err != nil {
		fmt.Fprintln(w, "❌")
		return err
	}
	fmt.Fprintln(w, "✅")

	warnings := []string{}
	if len(c.Funds()) == 0 {
		warnings = append(warnings, fmt.Sprintf("no fund metadata in %s", cfg.DataDir))
	}
	for _, fund := range c.Funds() {
		if _, ok := c.Compositions[fund]; !ok {
			warnings = append(warnings, fmt.Sprintf("fund %s has no composition", fund))
		}
	}
	for _, p := range append([]string{cfg.Provider}, cfg.FallbackProviders...) {
		switch strings.ToLower(p) {
		case "finnhub":
			if cfg.FinnhubAPIKey == "" {
				warnings = append(warnings, "Finnhub API key not configured")
			}
		case "longport":
			if cfg.LongportAppKey == "" || cfg.LongportAccessToken == "" {
				warnings = append(warnings, "Longport credentials not configured")
			}
		}
	}

	fmt.Fprintf(w, "📦 %d funds, %d holdings, %d names, %d pool stocks\n",
		len(c.Funds()), len(c.Holdings()), len(c.Mapping), len(c.StockPool))

	fmt.Fprintln(w)
	if len(warnings) == 0 {
		DisplaySuccess(w, "Configuration validation completed successfully!")
		return nil
	}
	for _, warning := range warnings {
		DisplayWarning(w, warning)
	}
	fmt.Fprintf(w, "Configuration validation completed with %d warnings.\n", len(warnings))
	return nil
}
