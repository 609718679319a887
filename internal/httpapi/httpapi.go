// Package httpapi implements the HTTP front-end of spec §4.7: four
// endpoints for ingest, query, stats, and aggregator discovery, routed
// with gorilla/mux and wrapped in gorilla/handlers access logging the way
// the teacher's server.go composes its router.
package httpapi

import (
	"bufio"
	"bytes"
	"encoding/json"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/handlers"
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/jakinnaird/stsdb/internal/downsample"
	"github.com/jakinnaird/stsdb/internal/metric"
	"github.com/jakinnaird/stsdb/internal/query"
	"github.com/jakinnaird/stsdb/internal/stats"
	"github.com/jakinnaird/stsdb/internal/store"
	"github.com/jakinnaird/stsdb/pkg/log"
)

// nowFn is the wall-clock source for the query window; overridable in
// tests.
var nowFn = func() int64 { return time.Now().Unix() }

// Server wires the router and owns no state of its own beyond its
// collaborators; Start/Stop manage the underlying http.Server (spec
// §4.9's Proc capability set).
type Server struct {
	bindAddr string
	port     string
	ds       *store.Datastore
	st       *stats.Statistics

	httpServer *http.Server
}

func New(bindAddr, port string, ds *store.Datastore, st *stats.Statistics) *Server {
	return &Server{bindAddr: bindAddr, port: port, ds: ds, st: st}
}

func (s *Server) router() http.Handler {
	r := mux.NewRouter()
	r.HandleFunc("/api/aggregators", s.handleAggregators).Methods(http.MethodGet, http.MethodPost)
	r.HandleFunc("/api/put", s.handlePut).Methods(http.MethodPost)
	r.HandleFunc("/api/query", s.handleQuery).Methods(http.MethodGet)
	r.HandleFunc("/api/stats", s.handleStats).Methods(http.MethodGet)
	r.Handle("/metrics", promhttp.Handler()).Methods(http.MethodGet)
	return handlers.CombinedLoggingHandler(logWriter{}, r)
}

// logWriter adapts pkg/log into io.Writer for gorilla/handlers' access
// log, matching server.go's CombinedLoggingHandler wiring.
type logWriter struct{}

func (logWriter) Write(p []byte) (int, error) {
	log.Infof("%s", strings.TrimRight(string(p), "\n"))
	return len(p), nil
}

// Start binds the listener and begins serving in the background. An
// empty/"0" port disables the HTTP front-end entirely (spec §6).
func (s *Server) Start() error {
	if s.port == "" || s.port == "0" {
		log.Infof("http: disabled (port=%q)", s.port)
		return nil
	}

	s.httpServer = &http.Server{
		Addr:    s.bindAddr + ":" + s.port,
		Handler: s.router(),
	}

	ln, err := net.Listen("tcp", s.httpServer.Addr)
	if err != nil {
		return err
	}
	go func() {
		if err := s.httpServer.Serve(ln); err != nil && err != http.ErrServerClosed {
			log.Errorf("http: serve: %v", err)
		}
	}()
	log.Infof("http: listening on %s", s.httpServer.Addr)
	return nil
}

// Process is a no-op: net/http's own engine dispatches handlers on its
// own threadpool (spec §5), so the worker loop has nothing to pump.
func (s *Server) Process() {}

// Stop closes the HTTP server at once, including any active connections.
func (s *Server) Stop() {
	if s.httpServer == nil {
		return
	}
	s.httpServer.Close()
}

func (s *Server) handleAggregators(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/text")
	w.Write([]byte(`["avg","min","max","sum"]`))
}

func (s *Server) handlePut(w http.ResponseWriter, r *http.Request) {
	body, err := readBody(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	count := 0
	scanner := bufio.NewScanner(bytes.NewReader(body))
	for scanner.Scan() {
		line := filterLine(scanner.Text())
		if strings.TrimSpace(line) == "" {
			continue
		}
		m := metric.Parse(line)
		if ok, msg := m.Valid(); !ok {
			http.Error(w, msg, http.StatusBadRequest)
			return
		}
		s.ds.QueueMetric(m)
		count++
	}
	w.WriteHeader(http.StatusOK)
}

// filterLine applies the same byte filter as the telnet server (spec
// §4.7: "strip control/quoting per the same character filter as
// telnet").
func filterLine(line string) string {
	var b strings.Builder
	for i := 0; i < len(line); i++ {
		c := line[i]
		if c == '\'' {
			continue
		}
		if (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') || (c >= '0' && c <= '9') || c == ' ' || (c >= 33 && c <= 126) {
			b.WriteByte(c)
		}
	}
	return b.String()
}

func readBody(r *http.Request) ([]byte, error) {
	defer r.Body.Close()
	buf := new(bytes.Buffer)
	if _, err := buf.ReadFrom(r.Body); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

type dpsResult struct {
	Metric string             `json:"metric"`
	Dps    map[string]float64 `json:"dps"`
}

func (s *Server) handleQuery(w http.ResponseWriter, r *http.Request) {
	values := r.URL.Query()

	now := nowFn()
	startTime := now - parseRelTime(values.Get("start"))
	endTime := now
	if end := values.Get("end"); end != "" {
		endTime = now - parseRelTime(end)
	}

	queries := values["m"]
	if len(queries) == 0 {
		http.Error(w, "missing m= query parameter", http.StatusBadRequest)
		return
	}

	results := make([]dpsResult, 0, len(queries))
	for _, qtext := range queries {
		q, err := query.Parse(qtext)
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}

		rs, ok := s.ds.PrepareQuery(q)
		if !ok {
			http.Error(w, "unknown metric: "+q.Metric, http.StatusInternalServerError)
			return
		}

		var rows []downsample.Point
		if !rs.Execute(startTime, endTime, &rows) {
			rs.Close()
			http.Error(w, "query execution failed for "+q.Metric, http.StatusInternalServerError)
			return
		}
		rs.Close()

		ds := downsample.New(q.Downsampler)
		rows = ds.Decimate(rows)

		dps := make(map[string]float64, len(rows))
		for _, p := range rows {
			dps[strconv.FormatUint(p.Timestamp, 10)] = p.Value
		}
		results = append(results, dpsResult{Metric: q.Metric, Dps: dps})
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(results)
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	var snap stats.Snapshot
	s.st.GetStats(&snap, false)

	w.Header().Set("Content-Type", "text/text")
	w.Header().Set("Refresh", "5")
	w.Write([]byte(
		"Puts/second: " + strconv.FormatFloat(snap.PutsPerSecond, 'f', 2, 64) + "\n" +
			"Writes/second: " + strconv.FormatFloat(snap.WritesPerSecond, 'f', 2, 64) + "\n" +
			"Queue backlog: " + strconv.FormatInt(snap.QueueBacklog, 10) + "\n",
	))
}

// parseRelTime implements spec §4.7's relative-time grammar: a leading
// unsigned integer, then an optional suffix that must contain "-ago" to
// take effect; the suffix's first character selects the unit multiplier.
func parseRelTime(s string) int64 {
	if s == "" {
		return 0
	}

	i := 0
	for i < len(s) && s[i] >= '0' && s[i] <= '9' {
		i++
	}
	if i == 0 {
		return 0
	}
	n, err := strconv.ParseInt(s[:i], 10, 64)
	if err != nil {
		return 0
	}

	suffix := s[i:]
	if suffix == "" {
		return n
	}
	if !strings.Contains(suffix, "-ago") {
		return 0
	}

	switch suffix[0] {
	case 'm':
		return n * 60
	case 'h':
		return n * 3600
	case 'd':
		return n * 86400
	default:
		return n
	}
}
