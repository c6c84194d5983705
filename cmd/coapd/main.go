// Command coapd runs a standalone CoAP endpoint: it binds a single UDP
// socket, serves a couple of demonstration resources plus any resources
// declared in an optional YAML manifest, and answers .well-known/core
// discovery requests.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"github.com/malbeclabs/coapd/internal/coap"
	"github.com/malbeclabs/coapd/internal/resource"
	"github.com/malbeclabs/coapd/internal/transport"
)

var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

var (
	listenAddr      string
	metricsAddr     string
	verbose         bool
	maxRetransmit   int
	responseTimeout time.Duration
	wellKnownURI    string
	configPath      string
)

var rootCmd = &cobra.Command{
	Use:   "coapd",
	Short: "A CoAP endpoint engine",
	Long:  `coapd serves CoAP requests over a single UDP socket, implementing the message-layer reliability and request routing described by the CoAP specification.`,
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the CoAP endpoint",
	RunE:  runServe,
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Show version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("coapd %s (commit: %s, built: %s)\n", version, commit, date)
	},
}

func init() {
	serveCmd.Flags().StringVar(&listenAddr, "listen-addr", ":5683", "UDP address to listen on")
	serveCmd.Flags().StringVar(&metricsAddr, "metrics-addr", ":9090", "address to serve Prometheus metrics on")
	serveCmd.Flags().BoolVar(&verbose, "verbose", false, "enable debug logging")
	serveCmd.Flags().IntVar(&maxRetransmit, "max-retransmit", coap.DefaultMaxRetransmit, "maximum confirmable retransmissions")
	serveCmd.Flags().DurationVar(&responseTimeout, "response-timeout", coap.DefaultResponseTimeout, "base ACK timeout before the first retransmission")
	serveCmd.Flags().StringVar(&wellKnownURI, "well-known-uri", coap.DefaultWellKnownURI, "path served for CoRE discovery")
	serveCmd.Flags().StringVar(&configPath, "config", "", "path to a YAML resource manifest to load in addition to the built-in demo resources")

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(versionCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func runServe(cmd *cobra.Command, args []string) error {
	log := newLogger(verbose)

	reg := prometheus.NewRegistry()
	metrics := coap.NewMetrics(reg)

	conn, err := transport.Listen(listenAddr)
	if err != nil {
		return fmt.Errorf("listen: %w", err)
	}
	log.Info("coapd: listening", "address", conn.LocalAddr().String())

	registry := resource.NewRegistry()
	registerDemoResources(registry)

	if configPath != "" {
		data, err := os.ReadFile(configPath)
		if err != nil {
			return fmt.Errorf("read config: %w", err)
		}
		manifest, err := resource.ParseManifest(data)
		if err != nil {
			return fmt.Errorf("parse config: %w", err)
		}
		registry.LoadManifest(manifest)
		log.Info("coapd: loaded resource manifest", "path", configPath, "resources", len(manifest.Resources))
	}

	ctx, err := coap.NewContext(&coap.EndpointConfig{
		Logger:          log,
		Socket:          conn,
		Resources:       registry,
		LinkFormat:      registry,
		MaxRetransmit:   maxRetransmit,
		ResponseTimeout: responseTimeout,
		WellKnownURI:    wellKnownURI,
		Metrics:         metrics,
		OnResponse: func(c *coap.Context, remote coap.PeerAddress, sent, received *coap.PDU, tid coap.TransactionID) {
			log.Debug("coapd: response received", "remote", remote.String(), "tid", tid, "code", received.Code)
		},
	})
	if err != nil {
		return fmt.Errorf("new context: %w", err)
	}

	metricsServer := &http.Server{Addr: metricsAddr, Handler: metricsHandler(reg)}
	go func() {
		log.Info("coapd: metrics listening", "address", metricsAddr)
		if err := metricsServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("coapd: metrics server failed", "error", err)
		}
	}()

	runCtx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	errCh := make(chan error, 1)
	go func() { errCh <- ctx.Serve(runCtx) }()

	select {
	case <-runCtx.Done():
		log.Info("coapd: shutting down")
	case err := <-errCh:
		if err != nil {
			log.Error("coapd: serve failed", "error", err)
		}
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	_ = metricsServer.Shutdown(shutdownCtx)
	return ctx.Close()
}

func metricsHandler(reg *prometheus.Registry) http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	return mux
}
