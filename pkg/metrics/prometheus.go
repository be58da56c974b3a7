package metrics

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/dbehnke/wlink-terminal/pkg/logger"
)

// PrometheusConfig holds Prometheus server configuration
type PrometheusConfig struct {
	Enabled bool
	Host    string
	Port    int
	Path    string
}

// PrometheusHandler handles Prometheus metrics HTTP requests
type PrometheusHandler struct {
	collector *Collector
}

// NewPrometheusHandler creates a new Prometheus handler
func NewPrometheusHandler(collector *Collector) *PrometheusHandler {
	return &PrometheusHandler{
		collector: collector,
	}
}

func writeMetric(b *strings.Builder, name, kind, help string) {
	fmt.Fprintf(b, "# HELP %s %s\n", name, help)
	fmt.Fprintf(b, "# TYPE %s %s\n", name, kind)
}

func boolValue(v bool) int {
	if v {
		return 1
	}
	return 0
}

// ServeHTTP handles HTTP requests for metrics
func (h *PrometheusHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; version=0.0.4")

	var output strings.Builder
	c := h.collector

	// Event metrics
	writeMetric(&output, "wlink_events_total", "counter", "Session events by kind")
	events := c.copyOf(func() map[string]uint64 { return c.events })
	for _, k := range sortedKeys(events) {
		fmt.Fprintf(&output, "wlink_events_total{kind=%q} %d\n", k, events[k])
	}

	// Call metrics
	writeMetric(&output, "wlink_calls_total", "counter", "Finished voice calls by direction")
	calls := c.copyOf(func() map[string]uint64 { return c.calls })
	for _, k := range sortedKeys(calls) {
		fmt.Fprintf(&output, "wlink_calls_total{direction=%q} %d\n", k, calls[k])
	}

	writeMetric(&output, "wlink_call_seconds_total", "counter", "Voice call airtime by direction")
	c.mu.RLock()
	for _, k := range sortedKeys(c.callSeconds) {
		fmt.Fprintf(&output, "wlink_call_seconds_total{direction=%q} %.3f\n", k, c.callSeconds[k])
	}
	c.mu.RUnlock()

	writeMetric(&output, "wlink_faults_total", "counter", "Local faults by code")
	faults := c.GetFaults()
	for _, k := range sortedKeys(faults) {
		fmt.Fprintf(&output, "wlink_faults_total{code=%q} %d\n", k, faults[k])
	}

	writeMetric(&output, "wlink_call_active", "gauge", "Whether a voice call is in progress")
	fmt.Fprintf(&output, "wlink_call_active %d\n", boolValue(c.CallActive()))

	snap, ok := c.Sample()
	if !ok {
		_, _ = w.Write([]byte(output.String()))
		return
	}

	// State gauges
	writeMetric(&output, "wlink_state", "gauge", "Session state flags")
	st := snap.State
	flags := []struct {
		name string
		on   bool
	}{
		{"powered_on", st.PoweredOn},
		{"registered", st.Registered},
		{"affiliated", st.Affiliated},
		{"voice_granted", st.VoiceGranted},
		{"transmitting", st.Transmitting},
		{"receiving", st.Receiving},
		{"scan_enabled", st.ScanEnabled},
		{"scan_active", st.ScanActive},
		{"in_range", st.InRange},
		{"site_trunking", st.SiteTrunking},
		{"inhibited", st.Inhibited},
	}
	for _, f := range flags {
		fmt.Fprintf(&output, "wlink_state{flag=%q} %d\n", f.name, boolValue(f.on))
	}

	writeMetric(&output, "wlink_connected", "gauge", "Whether the master link is open")
	fmt.Fprintf(&output, "wlink_connected %d\n", boolValue(snap.Connected))

	writeMetric(&output, "wlink_rssi", "gauge", "Signal strength bars")
	fmt.Fprintf(&output, "wlink_rssi %d\n", snap.RSSI)

	writeMetric(&output, "wlink_battery", "gauge", "Battery level")
	fmt.Fprintf(&output, "wlink_battery %d\n", snap.Battery)

	writeMetric(&output, "wlink_volume", "gauge", "Playback volume")
	fmt.Fprintf(&output, "wlink_volume %.2f\n", snap.Volume)

	// Traffic metrics
	stats := snap.Stats
	counters := []struct {
		name, help string
		val        uint64
	}{
		{"wlink_frames_sent_total", "Outbound audio frames", stats.FramesSent},
		{"wlink_frames_received_total", "Inbound audio frames played", stats.FramesReceived},
		{"wlink_samples_dropped_total", "Capture samples dropped by the framer", stats.SamplesDropped},
		{"wlink_connects_total", "Master link opens", stats.Connects},
		{"wlink_disconnects_total", "Master link losses", stats.Disconnects},
		{"wlink_pages_total", "Two-tone pages detected", stats.Pages},
		{"wlink_call_alerts_total", "Call alerts received", stats.CallAlerts},
		{"wlink_emergencies_total", "Emergency alarms seen", stats.Emergencies},
		{"wlink_rejects_total", "Requests rejected locally or by the master", stats.Rejects},
		{"wlink_forced_releases_total", "Calls released by the audio watchdog", stats.ForcedReleases},
		{"wlink_stale_grants_total", "Grants handed back after the confirm window", stats.StaleGrants},
		{"wlink_dropped_messages_total", "Inbound messages ignored", stats.DroppedMessages},
	}
	for _, m := range counters {
		writeMetric(&output, m.name, "counter", m.help)
		fmt.Fprintf(&output, "%s %d\n", m.name, m.val)
	}

	writeMetric(&output, "wlink_messages_in_total", "counter", "Inbound messages by type")
	for _, k := range sortedKeys(stats.MessagesIn) {
		fmt.Fprintf(&output, "wlink_messages_in_total{type=%q} %d\n", k, stats.MessagesIn[k])
	}
	writeMetric(&output, "wlink_messages_out_total", "counter", "Outbound messages by type")
	for _, k := range sortedKeys(stats.MessagesOut) {
		fmt.Fprintf(&output, "wlink_messages_out_total{type=%q} %d\n", k, stats.MessagesOut[k])
	}

	_, _ = w.Write([]byte(output.String()))
}

// PrometheusServer is an HTTP server for Prometheus metrics
type PrometheusServer struct {
	config    PrometheusConfig
	collector *Collector
	log       *logger.Logger
	server    *http.Server
	addr      chan net.Addr
}

// NewPrometheusServer creates a new Prometheus metrics server
func NewPrometheusServer(config PrometheusConfig, collector *Collector, log *logger.Logger) *PrometheusServer {
	if log == nil {
		log = logger.Nop()
	}
	if config.Path == "" {
		config.Path = "/metrics"
	}

	return &PrometheusServer{
		config:    config,
		collector: collector,
		log:       log.WithComponent("metrics"),
		addr:      make(chan net.Addr, 1),
	}
}

// Addr blocks until the server is listening and returns its address
func (s *PrometheusServer) Addr(ctx context.Context) (net.Addr, error) {
	select {
	case a := <-s.addr:
		s.addr <- a
		return a, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Start runs the metrics server until ctx is cancelled
func (s *PrometheusServer) Start(ctx context.Context) error {
	if !s.config.Enabled {
		s.log.Info("Prometheus metrics server disabled")
		return nil
	}

	handler := NewPrometheusHandler(s.collector)
	mux := http.NewServeMux()
	mux.Handle(s.config.Path, handler)

	addr := net.JoinHostPort(s.config.Host, fmt.Sprint(s.config.Port))
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", addr, err)
	}
	s.addr <- listener.Addr()

	s.server = &http.Server{
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	s.log.Info("Starting Prometheus metrics server",
		logger.String("addr", listener.Addr().String()),
		logger.String("path", s.config.Path))

	errChan := make(chan error, 1)
	go func() {
		if err := s.server.Serve(listener); err != nil && err != http.ErrServerClosed {
			errChan <- err
		}
	}()

	select {
	case <-ctx.Done():
		s.log.Info("Shutting down Prometheus metrics server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := s.server.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("metrics server shutdown error: %w", err)
		}
		return ctx.Err()
	case err := <-errChan:
		return err
	}
}
