package main

import (
	"fmt"
	"os"

	toml "github.com/pelletier/go-toml/v2"
	"github.com/spf13/cobra"

	"isg/internal/config"
	"isg/internal/paths"
)

var configInitForce bool

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage isg configuration",
	Long:  "View and manage isg configuration stored in .isg/config.toml",
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Write the default configuration",
	Args:  cobra.NoArgs,
	Run:   runConfigInit,
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show the effective configuration",
	Long: `Display the configuration after defaults and ISG_* environment overrides
are applied.

Examples:
  isg config show
  isg config show --format=yaml`,
	Args: cobra.NoArgs,
	Run:  runConfigShow,
}

var configCheckCmd = &cobra.Command{
	Use:   "check",
	Short: "Validate the configuration file",
	Long: `Validate .isg/config.toml and report keys that isg does not recognize.
Exits non-zero when the file is invalid or has unknown keys.`,
	Args: cobra.NoArgs,
	Run:  runConfigCheck,
}

func init() {
	configInitCmd.Flags().BoolVar(&configInitForce, "force", false, "Overwrite an existing config file")

	configCmd.AddCommand(configInitCmd)
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configCheckCmd)
	rootCmd.AddCommand(configCmd)
}

// ConfigShowResponse is the response format for config show
type ConfigShowResponse struct {
	ConfigPath   string         `json:"configPath" yaml:"configPath"`
	UsedDefaults bool           `json:"usedDefaults" yaml:"usedDefaults"`
	Config       *config.Config `json:"config" yaml:"config"`
}

// ConfigCheckResponse is the response format for config check
type ConfigCheckResponse struct {
	ConfigPath  string   `json:"configPath" yaml:"configPath"`
	Valid       bool     `json:"valid" yaml:"valid"`
	Error       string   `json:"error,omitempty" yaml:"error,omitempty"`
	UnknownKeys []string `json:"unknownKeys,omitempty" yaml:"unknownKeys,omitempty"`
}

func runConfigInit(cmd *cobra.Command, args []string) {
	repoRoot, err := resolveRepoRoot(repoFlag)
	if err != nil {
		exitWithError(err)
	}
	path := paths.ConfigPath(repoRoot)
	if _, err := os.Stat(path); err == nil && !configInitForce {
		exitWithError(invalidArgument("%s already exists (use --force to overwrite)", path))
	}
	if err := config.DefaultConfig().Save(repoRoot); err != nil {
		exitWithError(err)
	}
	fmt.Printf("Wrote %s\n", path)
}

func runConfigShow(cmd *cobra.Command, args []string) {
	s := mustSession()
	defer s.close()

	path := paths.ConfigPath(s.repoRoot)
	_, statErr := os.Stat(path)
	resp := &ConfigShowResponse{
		ConfigPath:   path,
		UsedDefaults: os.IsNotExist(statErr),
		Config:       s.config,
	}
	if OutputFormat(formatFlag) != FormatHuman {
		printResponse(resp)
		return
	}

	data, err := toml.Marshal(s.config)
	if err != nil {
		exitWithError(fmt.Errorf("failed to marshal config: %w", err))
	}
	source := path
	if resp.UsedDefaults {
		source = "defaults (no " + path + ")"
	}
	fmt.Printf("# isg configuration from %s\n", source)
	fmt.Print(string(data))
}

func runConfigCheck(cmd *cobra.Command, args []string) {
	repoRoot, err := resolveRepoRoot(repoFlag)
	if err != nil {
		exitWithError(err)
	}
	path := paths.ConfigPath(repoRoot)
	resp := &ConfigCheckResponse{ConfigPath: path, Valid: true}

	if _, err := os.Stat(path); os.IsNotExist(err) {
		exitWithError(invalidArgument("%s does not exist (run 'isg config init')", path))
	}

	unknown, err := config.CheckUnknownKeys(path)
	if err != nil {
		resp.Valid = false
		resp.Error = err.Error()
	}
	resp.UnknownKeys = unknown
	if resp.Valid {
		cfg, err := config.LoadConfig(repoRoot)
		if err == nil {
			err = cfg.Validate()
		}
		if err != nil {
			resp.Valid = false
			resp.Error = err.Error()
		}
	}

	if OutputFormat(formatFlag) == FormatHuman {
		printConfigCheckHuman(resp)
	} else {
		printResponse(resp)
	}
	if !resp.Valid || len(resp.UnknownKeys) > 0 {
		os.Exit(1)
	}
}

func printConfigCheckHuman(resp *ConfigCheckResponse) {
	fmt.Println(resp.ConfigPath)
	if resp.Error != "" {
		fmt.Printf("  ✗ %s\n", resp.Error)
	}
	for _, k := range resp.UnknownKeys {
		fmt.Printf("  ✗ unknown key %q\n", k)
	}
	if resp.Valid && len(resp.UnknownKeys) == 0 {
		fmt.Println("  ✓ valid")
	}
}
