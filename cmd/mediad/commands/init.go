package commands

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/rexpump/mediad/pkg/config"
)

var initForce bool

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Write a commented sample configuration file",
	Long: `Write a commented sample mediad configuration file.

By default the file is written to ./mediad.yaml. Use --config to choose a
different path and --force to overwrite an existing file.

Examples:
  # Write ./mediad.yaml
  mediad init

  # Write to a custom location
  mediad init --config /etc/mediad/config.yaml`,
	RunE: runInit,
}

func init() {
	initCmd.Flags().BoolVar(&initForce, "force", false, "Overwrite an existing config file")
}

func runInit(cmd *cobra.Command, args []string) error {
	path := GetConfigFile()
	if path == "" {
		path = defaultConfigFile
	}

	if _, err := os.Stat(path); err == nil && !initForce {
		return fmt.Errorf("config file %s already exists (use --force to overwrite)", path)
	}

	if err := os.WriteFile(path, []byte(config.SampleYAML), 0o644); err != nil {
		return fmt.Errorf("writing config file: %w", err)
	}

	fmt.Printf("Configuration file created at: %s\n", path)
	fmt.Println("\nNext steps:")
	fmt.Println("  1. Edit the configuration file to customize your setup")
	fmt.Printf("  2. Start the server with: mediad start --config %s\n", path)
	return nil
}
