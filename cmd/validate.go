package cmd

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"firestige.xyz/tanakai/internal/config"
	"firestige.xyz/tanakai/internal/sink"
)

var validateDump bool

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate a configuration file",
	Long: `Load and validate a configuration file without capturing.

Sink options are checked by building the sink, so a bad collector URL or an
unknown option key is reported here.

Examples:
  tanakai validate -c config.yml
  tanakai validate -c config.yml --dump`,
	Run: func(cmd *cobra.Command, args []string) {
		if err := runValidate(configFile, validateDump, os.Stdout); err != nil {
			fmt.Fprintf(os.Stderr, "INVALID: %v\n", err)
			os.Exit(1)
		}
	},
}

func init() {
	validateCmd.Flags().BoolVar(&validateDump, "dump", false, "print the effective configuration")
}

func runValidate(path string, dump bool, out io.Writer) error {
	cfg, err := config.Load(path)
	if err != nil {
		return err
	}
	snk, err := sink.New(cfg.Sink)
	if err != nil {
		return err
	}
	snk.Close()

	fmt.Fprintf(out, "VALID: capture %s on port %d, %s sink\n", cfg.Capture.Driver, cfg.Capture.Port, cfg.Sink.Type)
	if dump {
		data, err := cfg.Dump()
		if err != nil {
			return err
		}
		out.Write(data)
	}
	return nil
}
