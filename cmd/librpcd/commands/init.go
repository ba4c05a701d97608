package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/twoporeguys/go-librpc/internal/rpcconfig"
)

var initForce bool

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialize a sample configuration file",
	Long: `Initialize a sample librpcd configuration file.

By default, the configuration file is created at
$XDG_CONFIG_HOME/librpc/librpcd.yaml. Use --config to specify a custom path.`,
	RunE: runInit,
}

func init() {
	initCmd.Flags().BoolVar(&initForce, "force", false, "Force overwrite existing config file")
}

func runInit(cmd *cobra.Command, args []string) error {
	configFile := GetConfigFile()

	var configPath string
	var err error
	if configFile != "" {
		configPath = configFile
		err = rpcconfig.InitConfigToPath(configFile, initForce)
	} else {
		configPath, err = rpcconfig.InitConfig(initForce)
	}
	if err != nil {
		return fmt.Errorf("failed to initialize config: %w", err)
	}

	fmt.Fprintf(cmd.OutOrStdout(), "Configuration file created at: %s\n", configPath)
	fmt.Fprintln(cmd.OutOrStdout(), "\nNext steps:")
	fmt.Fprintln(cmd.OutOrStdout(), "  1. Edit the configuration file to set the transports to bind")
	fmt.Fprintln(cmd.OutOrStdout(), "  2. Start the server with: librpcd start")
	return nil
}
