package service

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/mosaicnetworks/iterum/src/engine"
	"github.com/mosaicnetworks/iterum/src/metrics"
	"github.com/mosaicnetworks/iterum/src/net"
	"github.com/sirupsen/logrus"
)

// Node is the read-only view of an iteration engine served over HTTP.
type Node interface {
	Name() string
	State() engine.State
	StopReason() engine.StopReason
	IterationCount() uint64
	RunTime() time.Duration
	CurrentSolution() []float64
	FullState() []float64
	Neighbors() map[string]net.Message
}

// Solution is the body of GET /solution.
type Solution struct {
	Node      string    `json:"node"`
	Iteration uint64    `json:"iteration"`
	Partition []float64 `json:"partition"`
	FullState []float64 `json:"full_state"`
}

// Service ...
type Service struct {
	sync.RWMutex

	bindAddress string
	name        string
	node        Node
	metrics     *metrics.Metrics
	router      chi.Router
	server      *http.Server
	shutdown    bool
	logger      *logrus.Entry
}

// NewService ...
func NewService(bindAddress string, name string, m *metrics.Metrics, logger *logrus.Entry) *Service {
	service := Service{
		bindAddress: bindAddress,
		name:        name,
		metrics:     m,
		logger:      logger,
	}

	service.registerHandlers()

	return &service
}

// SetNode attaches the engine once it is built. Until then the service only
// reports that the node is constructing.
func (s *Service) SetNode(n Node) {
	s.Lock()
	defer s.Unlock()
	s.node = n
}

func (s *Service) registerHandlers() {
	s.logger.Debug("Registering iterum API handlers")

	r := chi.NewRouter()
	r.Use(cors)
	r.Get("/stats", s.GetStats)
	r.Get("/solution", s.GetSolution)
	r.Get("/neighbors", s.GetNeighbors)
	if s.metrics != nil {
		r.Method(http.MethodGet, "/metrics", s.metrics.Handler())
	}
	s.router = r
}

func cors(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		next.ServeHTTP(w, r)
	})
}

// Handler returns the API router.
func (s *Service) Handler() http.Handler {
	return s.router
}

// Serve calls ListenAndServe. This is a blocking call which returns once
// Shutdown is called.
func (s *Service) Serve() {
	s.logger.WithField("bind_address", s.bindAddress).Debug("Serving iterum API")

	s.Lock()
	if s.shutdown {
		s.Unlock()
		return
	}
	s.server = &http.Server{Addr: s.bindAddress, Handler: s.router}
	server := s.server
	s.Unlock()

	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		s.logger.Error(err)
	}
}

// Shutdown stops the server started by Serve.
func (s *Service) Shutdown(ctx context.Context) error {
	s.Lock()
	s.shutdown = true
	server := s.server
	s.Unlock()
	if server == nil {
		return nil
	}
	return server.Shutdown(ctx)
}

func (s *Service) getNode() Node {
	s.RLock()
	defer s.RUnlock()
	return s.node
}

// GetStats ...
func (s *Service) GetStats(w http.ResponseWriter, r *http.Request) {
	stats := map[string]string{
		"node":  s.name,
		"state": engine.Constructing.String(),
	}

	if n := s.getNode(); n != nil {
		stats["state"] = n.State().String()
		stats["stop_reason"] = n.StopReason().String()
		stats["iterations"] = strconv.FormatUint(n.IterationCount(), 10)
		stats["run_time"] = n.RunTime().String()
	}

	writeJSON(w, stats)
}

// GetSolution ...
func (s *Service) GetSolution(w http.ResponseWriter, r *http.Request) {
	n := s.getNode()
	if n == nil {
		http.Error(w, "engine not built yet", http.StatusServiceUnavailable)
		return
	}

	writeJSON(w, Solution{
		Node:      n.Name(),
		Iteration: n.IterationCount(),
		Partition: n.CurrentSolution(),
		FullState: n.FullState(),
	})
}

// GetNeighbors ...
func (s *Service) GetNeighbors(w http.ResponseWriter, r *http.Request) {
	n := s.getNode()
	if n == nil {
		http.Error(w, "engine not built yet", http.StatusServiceUnavailable)
		return
	}

	res := make(map[string][]float64)
	for tag, m := range n.Neighbors() {
		res[tag] = m
	}
	writeJSON(w, res)
}

func writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(v)
}
