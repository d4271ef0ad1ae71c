// Package main implements the repoaudit command-line tool for validating
// the integrity of published APT repositories.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/BurntSushi/toml"
	"github.com/ProtonMail/gopenpgp/v3/crypto"
	"github.com/cockroachdb/errors"
	"github.com/spf13/cobra"

	"github.com/repoaudit/repoaudit/internal/audit"
)

var (
	// Build information - can be set via build flags
	version   = "dev"
	commit    = "unknown"
	buildDate = "unknown"

	// Command-line flags
	configPath string
	logLevel   string
)

var rootCmd = &cobra.Command{
	Use:   "repoaudit",
	Short: "Validate the integrity of APT package repositories",
	Long: `repoaudit checks that a published APT repository is internally consistent:
distribution metadata matches its declared checksums, Release files are
correctly signed, and every advertised package file matches its digests.`,
}

var checkCmd = &cobra.Command{
	Use:   "check [repo-url]...",
	Short: "Audit one or more APT repositories",
	Long: `Audits one or more APT repositories and prints a report of all findings.
Repository URLs come from the command line, from a "repos" list in the
configuration file, or both.

Usage:
  # Audit a repository, discovering its distributions
  repoaudit check https://example.com/debian

  # Audit specific distributions only
  repoaudit check https://example.com/debian --dists bookworm,trixie

  # Verify Release signatures against a public keyring
  repoaudit check https://example.com/debian --keyring /path/to/key.asc

  # Skip TLS certificate verification
  repoaudit check https://self-signed.example.com/debian --insecure

The exit code is non-zero if the report contains any findings.`,
	Args: cobra.ArbitraryArgs,
	Run:  runCheck,
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Long:  "Print version information including build details",
	Run: func(_ *cobra.Command, _ []string) {
		fmt.Printf("repoaudit %s\n", version)
		fmt.Printf("commit: %s\n", commit)
		fmt.Printf("built: %s\n", buildDate)
	},
}

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate the configuration file",
	Long:  `Validate the configuration file and report any issues.`,
	Run:   runValidate,
}

func init() {
	rootCmd.AddCommand(checkCmd)
	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(validateCmd)

	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "configuration file path")
	rootCmd.PersistentFlags().StringVarP(&logLevel, "log-level", "l", "", "override log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().Bool("verbose-errors", false, "show detailed error information including stack traces")

	checkCmd.Flags().StringSlice("dists", nil, "distributions to check instead of discovering them")
	checkCmd.Flags().String("keyring", "", "armored public keyring for Release signature verification")
	checkCmd.Flags().Bool("insecure", false, "skip TLS certificate verification")
	checkCmd.Flags().BoolP("quiet", "q", false, "suppress progress output")
	checkCmd.Flags().Bool("json", false, "print the error report as JSON")
}

// formatError returns a human-friendly error message, optionally with stack trace
func formatError(err error, verbose bool) string {
	if verbose {
		return fmt.Sprintf("%+v", err)
	}

	flattened := errors.FlattenDetails(err)
	if flattened != "" {
		return flattened
	}

	return err.Error()
}

// loadConfig reads the optional TOML configuration and applies the log
// settings.  A missing --config flag means defaults.
func loadConfig() (*audit.Config, error) {
	config := audit.NewConfig()

	if configPath != "" {
		meta, err := toml.DecodeFile(configPath, config)
		if err != nil {
			if os.IsNotExist(err) {
				return nil, errors.New("configuration file not found: " + configPath)
			}
			return nil, errors.Wrap(err, "failed to decode config file")
		}
		if undecoded := meta.Undecoded(); len(undecoded) > 0 {
			keys := make([]string, len(undecoded))
			for i, k := range undecoded {
				keys[i] = k.String()
			}
			return nil, errors.Newf("configuration contains unknown keys: %s", strings.Join(keys, ", "))
		}
	}

	if err := config.Log.Apply(); err != nil {
		return nil, err
	}
	if logLevel != "" {
		config.Log.Level = logLevel
		if err := config.Log.Apply(); err != nil {
			return nil, err
		}
	}

	return config, nil
}

func loadKeyring(path string) (*crypto.Key, error) {
	armored, err := os.ReadFile(path) // #nosec G304 - path comes from the user's own flag
	if err != nil {
		return nil, errors.Wrap(err, "failed to read keyring")
	}
	key, err := crypto.NewKeyFromArmored(string(armored))
	if err != nil {
		return nil, errors.Wrap(err, "failed to parse keyring")
	}
	return key, nil
}

func runCheck(cmd *cobra.Command, args []string) {
	verboseErrors, _ := cmd.Flags().GetBool("verbose-errors")

	config, err := loadConfig()
	if err != nil {
		slog.Error("failed to load configuration", "error", formatError(err, verboseErrors))
		os.Exit(1)
	}

	insecure, _ := cmd.Flags().GetBool("insecure")
	if insecure {
		config.TLS.InsecureSkipVerify = true
	}
	if err := config.Check(); err != nil {
		slog.Error("invalid configuration", "error", formatError(err, verboseErrors))
		os.Exit(1)
	}

	quiet, _ := cmd.Flags().GetBool("quiet")
	jsonOut, _ := cmd.Flags().GetBool("json")
	dists, _ := cmd.Flags().GetStringSlice("dists")
	keyringPath, _ := cmd.Flags().GetString("keyring")

	var keyring *crypto.Key
	if keyringPath != "" {
		keyring, err = loadKeyring(keyringPath)
		if err != nil {
			slog.Error("failed to load keyring", "error", formatError(err, verboseErrors))
			os.Exit(1)
		}
	}

	repos := make([]*url.URL, 0, len(args))
	for _, arg := range args {
		repoURL, err := url.Parse(arg)
		if err != nil || (repoURL.Scheme != "http" && repoURL.Scheme != "https") {
			slog.Error("invalid repository URL", "url", arg)
			os.Exit(1)
		}
		repos = append(repos, repoURL)
	}
	repos = append(repos, config.RepoURLs()...)
	if len(repos) == 0 {
		slog.Error("no repositories given on the command line or in the configuration file")
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	report, err := audit.Check(ctx, config, repos, dists, keyring, quiet)
	if err != nil {
		slog.Error("audit aborted", "error", formatError(err, verboseErrors))
		printReport(report, jsonOut)
		os.Exit(1)
	}

	printReport(report, jsonOut)

	if report.HasFindings() {
		slog.Error("audit finished with findings", "count", report.FindingCount())
		os.Exit(1)
	}
	slog.Info("audit finished with no findings")
}

func printReport(report *audit.Report, jsonOut bool) {
	if jsonOut {
		out, err := json.MarshalIndent(report, "", "  ")
		if err != nil {
			slog.Error("failed to marshal report", "error", err)
			return
		}
		fmt.Println(string(out))
		return
	}

	for _, repoURL := range report.URLs() {
		fmt.Printf("%s:\n", repoURL)
		for _, dist := range report.Dists(repoURL) {
			findings := report.Findings(repoURL, dist)
			label := dist
			if dist == audit.RepoLevel {
				label = "(repository)"
			}
			if len(findings) == 0 {
				fmt.Printf("  %s: OK\n", label)
				continue
			}
			fmt.Printf("  %s:\n", label)
			for _, finding := range findings {
				fmt.Printf("    - %s\n", finding)
			}
		}
	}
}

func runValidate(cmd *cobra.Command, _ []string) {
	verboseErrors, _ := cmd.Flags().GetBool("verbose-errors")

	if configPath == "" {
		slog.Error("validate requires --config")
		os.Exit(1)
	}

	config, err := loadConfig()
	if err != nil {
		slog.Error("configuration is not valid", "error", formatError(err, verboseErrors))
		os.Exit(1)
	}

	if err := config.Check(); err != nil {
		slog.Error("configuration is not valid", "error", formatError(err, verboseErrors))
		os.Exit(1)
	}

	slog.Info("the toml configuration file passes validation checks")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
