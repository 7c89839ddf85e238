package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"firestige.xyz/tanakai/internal/config"
	"firestige.xyz/tanakai/internal/log"
	"firestige.xyz/tanakai/internal/metrics"
	"firestige.xyz/tanakai/internal/pipeline"
	"firestige.xyz/tanakai/internal/sink"
	"firestige.xyz/tanakai/internal/source"
)

const statsInterval = 30 * time.Second

var captureCmd = &cobra.Command{
	Use:   "capture",
	Short: "Capture live Photon traffic and forward events",
	Long: `Capture Photon traffic from a network interface and forward decoded events
to the configured sink until interrupted.

Examples:
  tanakai capture                                   # default interface, http sink on localhost:8080
  tanakai capture -i eth0 --api-url http://collector:8080
  tanakai capture -c /etc/tanakai/config.yml -q`,
	Run: func(cmd *cobra.Command, args []string) {
		cfg, err := loadConfig()
		if err != nil {
			exitWithError("failed to load config", err)
		}
		applyCaptureFlags(cfg, captureInterface, captureAPIURL)

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		if err := runCapture(ctx, cfg); err != nil {
			exitWithError("capture failed", err)
		}
	},
}

var (
	captureInterface string
	captureAPIURL    string
)

func init() {
	captureCmd.Flags().StringVarP(&captureInterface, "interface", "i", "",
		"network interface (default: first non-loopback device)")
	captureCmd.Flags().StringVar(&captureAPIURL, "api-url", "",
		"collector base URL; selects the http sink")
}

// applyCaptureFlags overrides the loaded config with command line values.
func applyCaptureFlags(cfg *config.GlobalConfig, iface, apiURL string) {
	if iface != "" {
		cfg.Capture.Interface = iface
	}
	if apiURL != "" {
		cfg.Sink.Type = sink.TypeHTTP
		cfg.Sink.Options = map[string]any{"url": apiURL}
	}
}

// runCapture wires source, pipeline and sink and blocks until ctx is done or
// the source ends. Only failures to build the components are returned.
func runCapture(ctx context.Context, cfg *config.GlobalConfig) error {
	if err := log.Init(cfg.Log); err != nil {
		return fmt.Errorf("failed to init logger: %w", err)
	}
	logger := log.GetLogger().WithField("component", "capture")

	if cfg.Metrics.Enabled {
		srv := metrics.NewServer(cfg.Metrics.Listen, cfg.Metrics.Path)
		if err := srv.Start(ctx); err != nil {
			return err
		}
		defer func() {
			if err := srv.Stop(context.Background()); err != nil {
				logger.WithError(err).Warn("metrics server stop failed")
			}
		}()
	}

	src, err := source.Open(cfg.Capture)
	if err != nil {
		return err
	}
	snk, err := sink.New(cfg.Sink)
	if err != nil {
		src.Close()
		return fmt.Errorf("failed to create sink: %w", err)
	}

	p := pipeline.New(cfg.Pipeline, cfg.Photon, src, snk, pipeline.WithPorts(cfg.Capture.Port),
		pipeline.WithSourceName(cfg.Capture.Driver))

	logger.WithFields(map[string]interface{}{
		"driver": cfg.Capture.Driver,
		"iface":  cfg.Capture.Interface,
		"filter": cfg.Capture.BPFFilter,
		"sink":   cfg.Sink.Type,
	}).Info("capture starting")

	done := make(chan struct{})
	go reportStats(p, done, logger)
	err = p.Run(ctx)
	close(done)
	return err
}

func reportStats(p *pipeline.Pipeline, done <-chan struct{}, logger log.Logger) {
	ticker := time.NewTicker(statsInterval)
	defer ticker.Stop()
	for {
		select {
		case <-done:
			return
		case <-ticker.C:
			st := p.Stats()
			logger.WithFields(map[string]interface{}{
				"packets":        st.PacketsReceived,
				"events":         st.Events,
				"sent":           st.EventsSent,
				"sink_errors":    st.SinkErrors,
				"fragments_lost": st.FragmentSetsEvicted,
			}).Info("capture stats")
		}
	}
}
