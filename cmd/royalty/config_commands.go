package main

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"royalties/internal/config"
)

func newConfigCommand(ctx *commandContext) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Inspect or scaffold the configuration file",
	}
	cmd.AddCommand(newConfigValidateCommand(ctx), newConfigInitCommand())
	return cmd
}

func newConfigInitCommand() *cobra.Command {
	var targetPath string
	var overwrite bool

	cmd := &cobra.Command{
		Use:         "init",
		Short:       "Write a commented sample configuration",
		Annotations: map[string]string{"skipConfigLoad": "true"},
		RunE: func(cmd *cobra.Command, args []string) error {
			target, err := configTarget(targetPath)
			if err != nil {
				return err
			}
			if !overwrite {
				_, statErr := os.Stat(target)
				switch {
				case statErr == nil:
					return fmt.Errorf("%s already exists; pass --overwrite to replace it", target)
				case !errors.Is(statErr, fs.ErrNotExist):
					return fmt.Errorf("inspect %s: %w", target, statErr)
				}
			}
			if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
				return fmt.Errorf("create config directory: %w", err)
			}
			if err := config.CreateSample(target); err != nil {
				return fmt.Errorf("write sample config: %w", err)
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Wrote sample configuration to %s\n", target)
			fmt.Fprintln(out, "Next: royalty catalog import <works.json> --tenant <id>, then royalty upload <statement>.")
			return nil
		},
	}
	cmd.Flags().StringVarP(&targetPath, "path", "p", "", "Destination for the configuration file")
	cmd.Flags().BoolVar(&overwrite, "overwrite", false, "Replace an existing file")
	return cmd
}

func configTarget(flag string) (string, error) {
	flag = strings.TrimSpace(flag)
	if flag == "" {
		path, err := config.DefaultConfigPath()
		if err != nil {
			return "", fmt.Errorf("determine default config path: %w", err)
		}
		return path, nil
	}
	path, err := config.ExpandPath(flag)
	if err != nil {
		return "", fmt.Errorf("resolve config path: %w", err)
	}
	return path, nil
}

type configReport struct {
	Path     string            `json:"path"`
	Exists   bool              `json:"exists"`
	Valid    bool              `json:"valid"`
	Settings map[string]string `json:"settings"`
}

func newConfigValidateCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:         "validate",
		Short:       "Load the configuration and show the effective matching setup",
		Annotations: map[string]string{"skipConfigLoad": "true"},
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, path, exists, err := config.Load(strings.TrimSpace(*ctx.configFlag))
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			if err := cfg.EnsureDirectories(); err != nil {
				return fmt.Errorf("ensure directories: %w", err)
			}
			keys, settings := effectiveSettings(cfg)
			if ctx.jsonOutput() {
				return writeJSON(cmd, configReport{Path: path, Exists: exists, Valid: true, Settings: settings})
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Config path: %s\n", path)
			if !exists {
				fmt.Fprintln(out, "No file found; built-in defaults apply")
			}
			rows := make([][]string, 0, len(keys))
			for _, key := range keys {
				rows = append(rows, []string{key, settings[key]})
			}
			fmt.Fprintln(out, renderTable([]string{"Setting", "Value"}, rows))
			fmt.Fprintln(out, "Configuration valid")
			return nil
		},
	}
}

// effectiveSettings lists the values that change matching outcomes, in
// display order. Credentials are reported as set or unset only.
func effectiveSettings(cfg *config.Config) ([]string, map[string]string) {
	f := func(v float64) string { return strconv.FormatFloat(v, 'f', -1, 64) }
	semantic := "off"
	if cfg.Matching.SemanticEnabled && cfg.Embeddings.Provider != "" {
		semantic = cfg.Embeddings.Provider
	}
	rerank := "off"
	if cfg.Matching.RerankEnabled {
		rerank = cfg.GetLLM().Model + " (api key " + presence(cfg.GetLLM().APIKey) + ")"
	}
	redis := "off"
	if cfg.Redis.Addr != "" {
		redis = cfg.Redis.Addr
	}
	ntfy := "off"
	if cfg.Notifications.NtfyTopic != "" {
		ntfy = "on"
	}

	pairs := [][2]string{
		{"data_dir", cfg.Paths.DataDir},
		{"inbox_dir", orDash(cfg.Paths.InboxDir)},
		{"auto_match_threshold", f(cfg.Matching.AutoMatchThreshold)},
		{"review_threshold", f(cfg.Matching.ReviewThreshold)},
		{"minimum_threshold", f(cfg.Matching.MinimumThreshold)},
		{"semantic", semantic},
		{"rerank", rerank},
		{"share_tolerance", f(cfg.Distribution.ShareTolerance)},
		{"currency", cfg.Distribution.Currency},
		{"redis", redis},
		{"notifications", ntfy},
	}
	keys := make([]string, len(pairs))
	values := make(map[string]string, len(pairs))
	for i, p := range pairs {
		keys[i] = p[0]
		values[p[0]] = p[1]
	}
	return keys, values
}

func presence(secret string) string {
	if strings.TrimSpace(secret) == "" {
		return "unset"
	}
	return "set"
}

func orDash(value string) string {
	if value == "" {
		return "-"
	}
	return value
}
