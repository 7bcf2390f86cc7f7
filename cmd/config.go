package cmd

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/Quidge/modemcheck/internal/config"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "View or create configuration",
	Long: `View or create the modemcheck configuration.

Subcommands:
  show   Print the merged configuration
  path   Print the configuration file locations
  init   Write the global configuration template`,
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the merged configuration",
	Long: `Print the configuration a run would use, after merging defaults, the
global file and the project file. All paths are absolute.`,
	Args: cobra.NoArgs,
	RunE: runConfigShow,
}

var configPathCmd = &cobra.Command{
	Use:   "path",
	Short: "Print the configuration file locations",
	Args:  cobra.NoArgs,
	RunE:  runConfigPath,
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Write the global configuration template",
	Args:  cobra.NoArgs,
	RunE:  runConfigInit,
}

func init() {
	rootCmd.AddCommand(configCmd)
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configPathCmd)
	configCmd.AddCommand(configInitCmd)

	configInitCmd.Flags().Bool("force", false, "overwrite existing file")
}

// shownConfig is the YAML view of a merged configuration.
type shownConfig struct {
	ProjectDir string                  `yaml:"project_dir"`
	WorkDir    string                  `yaml:"work_dir"`
	Rzsz       string                  `yaml:"rzsz"`
	Link       config.LinkConfig       `yaml:"link"`
	Serial     config.SerialConfig     `yaml:"serial"`
	Timing     config.TimingConfig     `yaml:"timing"`
	Comparator config.ComparatorConfig `yaml:"comparator"`
	History    shownHistory            `yaml:"history"`
	ResultsDir string                  `yaml:"results_dir"`
	Logs       config.LogFiles         `yaml:"logs"`
	Env        []string                `yaml:"env,omitempty"`
	Matrix     string                  `yaml:"matrix,omitempty"`
	Scenarios  []config.ScenarioEntry  `yaml:"scenarios,omitempty"`
}

type shownHistory struct {
	Enabled bool   `yaml:"enabled"`
	Path    string `yaml:"path,omitempty"`
}

func runConfigShow(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(config.FlagOverrides{})
	if err != nil {
		return err
	}

	shown := shownConfig{
		ProjectDir: cfg.ProjectDir,
		WorkDir:    cfg.WorkDir,
		Rzsz:       cfg.Rzsz,
		Link:       cfg.Link,
		Serial:     cfg.Serial,
		Timing:     cfg.Timing,
		Comparator: cfg.Comparator,
		History:    shownHistory{Enabled: cfg.HistoryEnabled, Path: cfg.HistoryPath},
		ResultsDir: cfg.ResultsDir,
		Logs:       cfg.Logs,
		Matrix:     cfg.Matrix,
		Scenarios:  cfg.Scenarios,
	}
	// Values may come from files holding secrets.
	for name := range cfg.Env {
		shown.Env = append(shown.Env, name)
	}
	sort.Strings(shown.Env)
	if len(cfg.Scenarios) > 0 {
		shown.Matrix = ""
	}

	enc := yaml.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent(2)
	if err := enc.Encode(shown); err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}
	return enc.Close()
}

func runConfigPath(cmd *cobra.Command, args []string) error {
	out := cmd.OutOrStdout()

	globalPath, err := config.GlobalConfigPath()
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "global:  %s%s\n", globalPath, missing(globalPath))

	start := workDir
	if start == "" {
		if start, err = os.Getwd(); err != nil {
			return fmt.Errorf("failed to get current directory: %w", err)
		}
	}
	projectPath, err := config.FindProjectConfig(start)
	if err != nil {
		return err
	}
	if projectPath == "" {
		projectPath = filepath.Join(start, config.ProjectConfigFilename)
	}
	fmt.Fprintf(out, "project: %s%s\n", projectPath, missing(projectPath))
	return nil
}

func missing(path string) string {
	if _, err := os.Stat(path); err != nil {
		return " (not found, defaults apply)"
	}
	return ""
}

func runConfigInit(cmd *cobra.Command, args []string) error {
	force, _ := cmd.Flags().GetBool("force")

	path, err := config.GlobalConfigPath()
	if err != nil {
		return err
	}
	if !force {
		if _, err := os.Stat(path); err == nil {
			return fmt.Errorf("%s already exists (use --force to overwrite)", path)
		}
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	if err := os.WriteFile(path, []byte(config.GlobalConfigTemplate), 0644); err != nil {
		return fmt.Errorf("failed to write %s: %w", path, err)
	}

	fmt.Fprintf(cmd.OutOrStdout(), "Created %s\n", path)
	return nil
}
