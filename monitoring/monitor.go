// Package monitoring turns a running simulation into an HTTP server that
// reports its progress and lets a user pause and resume it.
package monitoring

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net"
	"net/http"
	httppprof "net/http/pprof"
	"os"
	"runtime/pprof"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/google/pprof/profile"
	"github.com/gorilla/mux"
	"github.com/pkg/browser"
	"github.com/shirou/gopsutil/process"
	"github.com/syifan/goseth"

	"github.com/sarchlab/wifictl/control"
	"github.com/sarchlab/wifictl/logging"
	"github.com/sarchlab/wifictl/monitoring/web"
	"github.com/sarchlab/wifictl/sim"
)

// A LoopInspector reports the state of a control loop.
type LoopInspector interface {
	Name() string
	Status() control.Status
}

// Monitor can turn a simulation into a server and allows external monitoring
// controlling of the simulation.
type Monitor struct {
	engine      sim.Engine
	loops       []LoopInspector
	metrics     *Metrics
	portNumber  int
	openBrowser bool
	logger      logging.Logger

	profileDuration time.Duration

	progressBarsLock sync.Mutex
	progressBars     []*ProgressBar

	server *http.Server
}

// NewMonitor creates a new Monitor
func NewMonitor() *Monitor {
	return &Monitor{
		logger:          logging.Noop(),
		profileDuration: time.Second,
	}
}

// WithPortNumber sets the port number of the monitor.
func (m *Monitor) WithPortNumber(portNumber int) *Monitor {
	if portNumber != 0 && portNumber < 1000 {
		fmt.Fprintf(os.Stderr,
			"Port number %d is assigned to the monitoring server, "+
				"which is not allowed. Using a random port instead.\n", portNumber)
		portNumber = 0
	}

	m.portNumber = portNumber

	return m
}

// WithBrowser opens the monitoring page in a browser once the server runs.
func (m *Monitor) WithBrowser(open bool) *Monitor {
	m.openBrowser = open
	return m
}

// WithLogger sets the logger.
func (m *Monitor) WithLogger(logger logging.Logger) *Monitor {
	m.logger = logger
	return m
}

// RegisterEngine registers the engine that is used in the simulation.
func (m *Monitor) RegisterEngine(e sim.Engine) {
	m.engine = e
}

// RegisterLoop registers a control loop to be inspected.
func (m *Monitor) RegisterLoop(l LoopInspector) {
	m.loops = append(m.loops, l)
}

// RegisterMetrics exposes metrics under /metrics.
func (m *Monitor) RegisterMetrics(metrics *Metrics) {
	m.metrics = metrics
}

// CreateProgressBar creates a new progress bar.
func (m *Monitor) CreateProgressBar(name string, total uint64) *ProgressBar {
	bar := &ProgressBar{
		ID:        sim.GetIDGenerator().Generate(),
		Name:      name,
		StartTime: time.Now(),
		Total:     total,
	}

	m.progressBarsLock.Lock()
	defer m.progressBarsLock.Unlock()

	m.progressBars = append(m.progressBars, bar)

	return bar
}

// CompleteProgressBar removes a bar to be shown on the webpage.
func (m *Monitor) CompleteProgressBar(pb *ProgressBar) {
	m.progressBarsLock.Lock()
	defer m.progressBarsLock.Unlock()

	newBars := make([]*ProgressBar, 0, len(m.progressBars))
	for _, b := range m.progressBars {
		if b != pb {
			newBars = append(newBars, b)
		}
	}

	m.progressBars = newBars
}

// Router returns the HTTP routes of the monitor.
func (m *Monitor) Router() *mux.Router {
	r := mux.NewRouter()

	r.HandleFunc("/api/pause", m.pauseEngine)
	r.HandleFunc("/api/continue", m.continueEngine)
	r.HandleFunc("/api/now", m.now)
	r.HandleFunc("/api/progress", m.listProgressBars)
	r.HandleFunc("/api/loops", m.listLoops)
	r.HandleFunc("/api/loop/{name}", m.loopDetails)
	r.HandleFunc("/api/resource", m.listResources)
	r.HandleFunc("/api/profile", m.collectProfile)

	if m.metrics != nil {
		r.Handle("/metrics", m.metrics.Handler())
	}

	r.HandleFunc("/debug/pprof/", httppprof.Index)
	r.HandleFunc("/debug/pprof/cmdline", httppprof.Cmdline)
	r.HandleFunc("/debug/pprof/profile", httppprof.Profile)
	r.HandleFunc("/debug/pprof/symbol", httppprof.Symbol)
	r.HandleFunc("/debug/pprof/trace", httppprof.Trace)
	r.PathPrefix("/debug/pprof/").HandlerFunc(httppprof.Index)

	r.PathPrefix("/").Handler(http.FileServer(web.GetAssets()))

	return r
}

// StartServer starts the monitor as a web server and returns its URL.
func (m *Monitor) StartServer() (string, error) {
	listener, err := net.Listen("tcp", "localhost:"+strconv.Itoa(m.portNumber))
	if err != nil {
		return "", fmt.Errorf("start monitor: %w", err)
	}

	url := fmt.Sprintf("http://localhost:%d",
		listener.Addr().(*net.TCPAddr).Port)
	fmt.Fprintf(os.Stderr, "Monitoring simulation with %s\n", url)

	m.server = &http.Server{
		Handler:           m.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		err := m.server.Serve(listener)
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			m.logger.Error(context.Background(), "monitor stopped",
				logging.Err(err))
		}
	}()

	if m.openBrowser {
		if err := browser.OpenURL(url); err != nil {
			m.logger.Warn(context.Background(), "cannot open browser",
				logging.String("url", url), logging.Err(err))
		}
	}

	return url, nil
}

// Shutdown stops the server started by StartServer.
func (m *Monitor) Shutdown(ctx context.Context) error {
	if m.server == nil {
		return nil
	}

	return m.server.Shutdown(ctx)
}

func (m *Monitor) pauseEngine(w http.ResponseWriter, _ *http.Request) {
	if !m.engineOr503(w) {
		return
	}

	m.engine.Pause()
	w.WriteHeader(http.StatusOK)
}

func (m *Monitor) continueEngine(w http.ResponseWriter, _ *http.Request) {
	if !m.engineOr503(w) {
		return
	}

	m.engine.Continue()
	w.WriteHeader(http.StatusOK)
}

func (m *Monitor) now(w http.ResponseWriter, _ *http.Request) {
	if !m.engineOr503(w) {
		return
	}

	now := m.engine.CurrentTime()
	fmt.Fprintf(w, "{\"now\":%.10f}", float64(now))
}

func (m *Monitor) engineOr503(w http.ResponseWriter) bool {
	if m.engine != nil {
		return true
	}

	http.Error(w, "no engine registered", http.StatusServiceUnavailable)

	return false
}

func (m *Monitor) listLoops(w http.ResponseWriter, _ *http.Request) {
	names := make([]string, 0, len(m.loops))
	for _, l := range m.loops {
		names = append(names, l.Name())
	}
	sort.Strings(names)

	writeJSON(w, names)
}

func (m *Monitor) loopDetails(w http.ResponseWriter, r *http.Request) {
	name := mux.Vars(r)["name"]

	var loop LoopInspector
	for _, l := range m.loops {
		if l.Name() == name {
			loop = l
		}
	}

	if loop == nil {
		http.Error(w, "Loop not found", http.StatusNotFound)
		return
	}

	status := loop.Status()

	serializer := goseth.NewSerializer()
	serializer.SetRoot(&status)
	serializer.SetMaxDepth(1)
	err := serializer.Serialize(w)

	dieOnErr(err)
}

func (m *Monitor) listProgressBars(w http.ResponseWriter, _ *http.Request) {
	m.progressBarsLock.Lock()
	bars := make([]progressRsp, 0, len(m.progressBars))
	for _, b := range m.progressBars {
		bars = append(bars, b.snapshot())
	}
	m.progressBarsLock.Unlock()

	writeJSON(w, bars)
}

type resourceRsp struct {
	CPUPercent float64 `json:"cpu_percent"`
	MemorySize uint64  `json:"memory_size"`
}

func (m *Monitor) listResources(w http.ResponseWriter, _ *http.Request) {
	proc, err := process.NewProcess(int32(os.Getpid()))
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	cpuPercent, err := proc.CPUPercent()
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	memoryInfo, err := proc.MemoryInfo()
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	writeJSON(w, resourceRsp{
		CPUPercent: cpuPercent,
		MemorySize: memoryInfo.RSS,
	})
}

func (m *Monitor) collectProfile(w http.ResponseWriter, _ *http.Request) {
	buf := bytes.NewBuffer(nil)

	if err := pprof.StartCPUProfile(buf); err != nil {
		http.Error(w, err.Error(), http.StatusConflict)
		return
	}

	time.Sleep(m.profileDuration)

	pprof.StopCPUProfile()

	prof, err := profile.ParseData(buf.Bytes())
	dieOnErr(err)

	writeJSON(w, prof)
}

func writeJSON(w http.ResponseWriter, v any) {
	data, err := json.Marshal(v)
	dieOnErr(err)

	w.Header().Set("Content-Type", "application/json")
	_, err = w.Write(data)
	dieOnErr(err)
}

func dieOnErr(err error) {
	if err != nil {
		log.Panic(err)
	}
}
