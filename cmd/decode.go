package cmd

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"firestige.xyz/tanakai/internal/config"
	"firestige.xyz/tanakai/internal/pipeline"
	"firestige.xyz/tanakai/internal/sink"
	"firestige.xyz/tanakai/internal/source"
)

var decodeFormat string

var decodeCmd = &cobra.Command{
	Use:   "decode <file.pcap>",
	Short: "Decode Photon events from a pcap file",
	Long: `Replay a pcap capture through the Photon decoder and print one event per line.

Examples:
  tanakai decode session.pcap
  tanakai decode session.pcap --format text`,
	Args: cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		cfg, err := loadConfig()
		if err != nil {
			exitWithError("failed to load config", err)
		}
		snk, err := sink.NewConsoleSinkTo(sink.ConsoleOptions{Format: decodeFormat}, os.Stdout)
		if err != nil {
			exitWithError("invalid output format", err)
		}
		if err := runDecode(context.Background(), cfg, args[0], snk, os.Stderr); err != nil {
			exitWithError("decode failed", err)
		}
	},
}

func init() {
	decodeCmd.Flags().StringVar(&decodeFormat, "format", "json", "output format: json or text")
}

// runDecode replays the pcap file at path into snk and writes a one-line
// summary. It takes ownership of snk and closes it on every path.
func runDecode(ctx context.Context, cfg *config.GlobalConfig, path string, snk sink.Sink, summary io.Writer) error {
	capCfg := cfg.Capture
	capCfg.Driver = source.DriverFile
	capCfg.File = path

	src, err := source.Open(capCfg)
	if err != nil {
		snk.Close()
		return err
	}

	p := pipeline.New(cfg.Pipeline, cfg.Photon, src, snk, pipeline.WithPorts(capCfg.Port),
		pipeline.WithSourceName(source.DriverFile))
	if err := p.Run(ctx); err != nil {
		return err
	}

	st := p.Stats()
	fmt.Fprintf(summary, "%d packets, %d photon commands, %d events, %d non-photon, %d decode errors\n",
		st.PacketsReceived, st.Commands, st.Events, st.NonPhoton, st.DecodeErrors)
	return nil
}
