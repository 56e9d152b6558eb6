// Command test-server stands in for the social network's nginx front end.
// It answers the /wrk2-api endpoints from memory so socialload can be
// tried without a DeathStarBench deployment:
//
//	go run ./scripts/test-server -addr :8080 -error-rate 0.01
//	BASE_URL=http://localhost:8080 socialload run --profile quick
package main

import (
	"flag"
	"fmt"
	"math/rand/v2"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/wesleyorama2/socialload/internal/workload"
)

type server struct {
	errorRate float64
	latency   time.Duration

	mu    sync.Mutex
	users map[int64]string
	posts int64
}

func newServer(errorRate float64, latency time.Duration) *server {
	return &server{
		errorRate: errorRate,
		latency:   latency,
		users:     make(map[int64]string),
	}
}

func (s *server) routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(s.inject)

	r.Post(workload.PathRegister, s.register)
	r.Post(workload.PathFollow, s.follow)
	r.Post(workload.PathUnfollow, s.follow)
	r.Post(workload.PathCompose, s.compose)
	r.Get(workload.PathHomeTimeline, s.timeline)
	r.Get(workload.PathUserTimeline, s.timeline)
	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprint(w, "healthy")
	})
	return r
}

// inject adds the configured latency and random 500s.
func (s *server) inject(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.latency > 0 {
			time.Sleep(s.latency)
		}
		if s.errorRate > 0 && rand.Float64() < s.errorRate {
			http.Error(w, "injected failure", http.StatusInternalServerError)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *server) register(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	id, err := strconv.ParseInt(r.PostForm.Get("user_id"), 10, 64)
	username := r.PostForm.Get("username")
	if err != nil || username == "" {
		http.Error(w, "user_id and username are required", http.StatusBadRequest)
		return
	}

	s.mu.Lock()
	_, exists := s.users[id]
	if !exists {
		s.users[id] = username
	}
	s.mu.Unlock()

	if exists {
		http.Error(w, fmt.Sprintf("User %s already existed", username), http.StatusBadRequest)
		return
	}
	fmt.Fprintf(w, "Success! User %s is registered", username)
}

func (s *server) follow(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if r.PostForm.Get("user_id") == "" || r.PostForm.Get("followee_id") == "" {
		http.Error(w, "user_id and followee_id are required", http.StatusBadRequest)
		return
	}
	fmt.Fprint(w, "Success!")
}

func (s *server) compose(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	for _, field := range []string{"username", "user_id", "text", "media_ids", "media_types", "post_type"} {
		if _, ok := r.PostForm[field]; !ok {
			http.Error(w, "missing "+field, http.StatusBadRequest)
			return
		}
	}

	s.mu.Lock()
	s.posts++
	s.mu.Unlock()
	fmt.Fprint(w, "Successfully upload post")
}

func (s *server) timeline(w http.ResponseWriter, r *http.Request) {
	if r.URL.Query().Get("user_id") == "" {
		http.Error(w, "user_id is required", http.StatusBadRequest)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	fmt.Fprint(w, "[]")
}

func main() {
	addr := flag.String("addr", ":8080", "listen address")
	errorRate := flag.Float64("error-rate", 0, "fraction of requests answered with 500")
	latency := flag.Duration("latency", 0, "delay added to every response")
	flag.Parse()

	logger, err := zap.NewDevelopment()
	if err != nil {
		panic(err)
	}
	defer func() { _ = logger.Sync() }()

	srv := &http.Server{
		Addr:              *addr,
		Handler:           newServer(*errorRate, *latency).routes(),
		ReadTimeout:       5 * time.Second,
		WriteTimeout:      5 * time.Second,
		IdleTimeout:       120 * time.Second,
		ReadHeaderTimeout: 2 * time.Second,
	}

	logger.Info("starting social network stub",
		zap.String("addr", *addr),
		zap.Float64("errorRate", *errorRate),
		zap.Duration("latency", *latency),
	)
	if err := srv.ListenAndServe(); err != nil {
		logger.Fatal("server stopped", zap.Error(err))
	}
}
