package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Inspect configuration",
}

var configPathCmd = &cobra.Command{
	Use:   "path",
	Short: "Print the config file path",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		_, path, err := loadConfig()
		if err != nil {
			return err
		}
		cmd.Println(path)
		return nil
	},
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the effective configuration",
	Long: `Prints the configuration after defaults, the config file, .env and the
environment have been applied. The client secret is masked.`,
	Args: cobra.NoArgs,
	RunE: runConfigShow,
}

func init() {
	configCmd.AddCommand(configPathCmd)
	configCmd.AddCommand(configShowCmd)
	rootCmd.AddCommand(configCmd)
}

func runConfigShow(cmd *cobra.Command, _ []string) error {
	cfg, path, err := loadConfig()
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	writeFields(out, "Configuration "+path, []field{
		{"Client ID", cfg.API.ClientID},
		{"Client secret", maskSecret(cfg.API.ClientSecret)},
		{"Identity URL", cfg.API.IdentityURL},
		{"API base URL", cfg.API.BaseURL},
		{"API prefix", cfg.API.PathPrefix},
		{"Detail source", cfg.API.DetailSource.String()},
		{"HTTP timeout", cfg.API.Timeout.String()},
		{"Rate limit", fmt.Sprintf("%d per %s", cfg.RateLimit.Requests, cfg.RateLimit.Interval)},
		{"Max retries", fmt.Sprint(cfg.RateLimit.MaxRetries)},
		{"Initial backoff", cfg.RateLimit.InitialBackoff.String()},
		{"Max retry-after", cfg.RateLimit.MaxRetryAfter.String()},
		{"Page size", fmt.Sprint(cfg.Sync.PageSize)},
		{"Detail workers", fmt.Sprint(cfg.Sync.DetailConcurrency)},
		{"Batch size", fmt.Sprint(cfg.Sync.BatchSize)},
		{"Repeat window", fmt.Sprint(cfg.Sync.RepeatWindowOnContinuation)},
		{"Advance on failure", fmt.Sprint(cfg.Sync.AdvanceOnPartialFailure)},
		{"Sync interval", cfg.Sync.Interval.String()},
		{"Database", cfg.Storage.DBPath},
	})

	if err := cfg.Validate(); err != nil {
		fmt.Fprintln(out, styles.Warning.Render(err.Error()))
	}
	return nil
}

func maskSecret(s string) string {
	switch {
	case s == "":
		return styles.Muted.Render("(unset)")
	case len(s) <= 4:
		return "****"
	default:
		return s[:2] + "****" + s[len(s)-2:]
	}
}
