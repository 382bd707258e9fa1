package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/oy3o/wire/config"
	"github.com/oy3o/wire/log"
)

const Version = "1.0.0"

var (
	v = config.New()

	rootCmd = &cobra.Command{
		Use:   "wirectl",
		Short: "chunked transfer tooling",
		Long: fmt.Sprintf(`wirectl (v%s)

Splits files into checksummed transfer frames and reassembles them. Settings
come from flags, WIRE_<FLAG> environment variables (e.g. WIRE_CHUNK_SIZE),
.env files and an optional config file.`, Version),
		SilenceUsage: true,
	}

	versionCmd = &cobra.Command{
		Use:   "version",
		Short: "Print the version number of wirectl",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "wirectl v%s\n", Version)
		},
	}
)

func init() {
	rootCmd.AddCommand(splitCmd, joinCmd, versionCmd)

	flags := rootCmd.PersistentFlags()
	flags.String("config", "", "config file (yaml, json or toml)")
	flags.Int(config.KeyChunkSize, 0, "payload bytes per frame")
	flags.Duration(config.KeyTransferTimeout, 0, "how long a transfer may take")
	flags.Duration(config.KeySessionTimeout, 0, "how long a receiving session may stay idle")
	flags.String(config.KeySpoolDir, "", "reassemble into temporary files under this directory")
	flags.Bool(config.KeyCompression, false, "compress frame payloads")
	flags.Int(config.KeySendRetries, 0, "attempts per frame and destination")
	flags.String(config.KeyLogLevel, "", "debug, info, warn, error or off")
}

// load binds the command flags and reads the settings. Flags left unset
// fall back to the environment, the config file and the defaults.
func load(cmd *cobra.Command) (config.Config, log.Logger, error) {
	if err := v.BindPFlags(cmd.Flags()); err != nil {
		return config.Config{}, nil, err
	}
	file, _ := cmd.Flags().GetString("config")
	c, err := config.Load(v, file)
	if err != nil {
		return c, nil, err
	}
	return c, c.Logger(os.Stderr), nil
}
