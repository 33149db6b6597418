// Package webapi provides a web API spam detection service.
package webapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/didip/tollbooth/v8"
	"github.com/go-pkgz/lgr"
	"github.com/go-pkgz/rest"
	"github.com/go-pkgz/routegroup"

	"github.com/spamd/spamd/app/storage"
	"github.com/spamd/spamd/lib/checks"
	"github.com/spamd/spamd/lib/spamcheck"
)

//go:generate moq --out mocks/detector.go --pkg mocks --with-resets --skip-ensure . Detector
//go:generate moq --out mocks/check_lister.go --pkg mocks --with-resets --skip-ensure . CheckLister
//go:generate moq --out mocks/verdict_store.go --pkg mocks --with-resets --skip-ensure . VerdictStore

// Server is a web API server.
type Server struct {
	Config
}

// Config defines server parameters
type Config struct {
	Version        string        // version to show in /ping
	ListenAddr     string        // listen address
	Detector       Detector      // spam detector
	Checks         CheckLister   // registered checks
	Verdicts       VerdictStore  // optional verdicts storage
	SpamLogger     SpamLogger    // optional spam logger
	Metrics        http.Handler  // optional metrics handler, for /metrics
	AuthPasswd     string        // basic auth password for user "spamd"
	RequestTimeout time.Duration // max duration of a single check request, no limit if 0
	RateLimit      float64       // max requests per second from a single client, 50 if 0
	Dbg            bool          // debug mode
}

// Detector runs requested checks and aggregates results
type Detector interface {
	Check(ctx context.Context, req spamcheck.Request) (spamcheck.Response, error)
}

// CheckLister lists registered checks
type CheckLister interface {
	List() []checks.Check
}

// VerdictStore keeps verdicts
type VerdictStore interface {
	Write(ctx context.Context, entry storage.Verdict) (storage.Verdict, error)
	Read(ctx context.Context, limit int) ([]storage.Verdict, error)
}

// SpamLogger records spam verdicts
type SpamLogger interface {
	Save(req spamcheck.Request, resp spamcheck.Response)
}

// SpamLoggerFunc is a function adapter for SpamLogger
type SpamLoggerFunc func(req spamcheck.Request, resp spamcheck.Response)

// Save calls the function
func (f SpamLoggerFunc) Save(req spamcheck.Request, resp spamcheck.Response) { f(req, resp) }

const (
	authUser           = "spamd"
	defaultVerdictsNum = 100
)

// NewServer creates a new web API server.
func NewServer(config Config) *Server {
	return &Server{Config: config}
}

// Run starts server and accepts requests checking for spam messages.
func (s *Server) Run(ctx context.Context) error {
	if s.AuthPasswd != "" {
		log.Printf("[INFO] basic auth enabled for webapi server")
	} else {
		log.Printf("[WARN] basic auth disabled, access to webapi is not protected")
	}

	srv := &http.Server{Addr: s.ListenAddr, Handler: s.router(), ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout: s.writeTimeout(), IdleTimeout: 30 * time.Second}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Printf("[WARN] failed to shutdown webapi server: %v", err)
		} else {
			log.Printf("[INFO] webapi server stopped")
		}
	}()

	log.Printf("[INFO] start webapi server on %s", s.ListenAddr)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("failed to run server: %w", err)
	}
	return nil
}

func (s *Server) router() http.Handler {
	rateLimit := s.RateLimit
	if rateLimit <= 0 {
		rateLimit = 50
	}

	router := routegroup.New(http.NewServeMux())
	router.Use(rest.Recoverer(lgr.Default()))
	router.Use(rest.Throttle(1000))
	router.Use(rest.AppInfo("spamd", "spamd", s.Version), rest.Ping)
	router.Use(tollbooth.HTTPMiddleware(tollbooth.NewLimiter(rateLimit, nil)))
	router.Use(rest.SizeLimit(1024 * 1024)) // 1M max request size

	router.HandleFunc("GET /health", s.healthHandler)
	if s.Metrics != nil {
		router.Handle("GET /metrics", s.Metrics)
	}

	router.Mount("/api").Route(func(api *routegroup.Bundle) {
		if s.AuthPasswd != "" {
			api.Use(rest.BasicAuthWithUserPasswd(authUser, s.AuthPasswd))
		}
		api.HandleFunc("POST /check", s.checkHandler)      // check a message for spam
		api.HandleFunc("GET /checks", s.listChecksHandler) // list registered checks
		api.HandleFunc("GET /verdicts", s.verdictsHandler) // last stored verdicts
	})
	return router
}

// writeTimeout allows the slowest check to complete and the response to be written
func (s *Server) writeTimeout() time.Duration {
	if s.RequestTimeout > 0 {
		return s.RequestTimeout + 5*time.Second
	}
	return 60 * time.Second
}

// healthHandler handles GET /health request
func (s *Server) healthHandler(w http.ResponseWriter, _ *http.Request) {
	rest.RenderJSON(w, rest.JSON{"status": "ok"})
}

// checkHandler handles POST /api/check request.
// It gets the message text, recipients and the list of checks, returns the aggregated verdict.
func (s *Server) checkHandler(w http.ResponseWriter, r *http.Request) {
	req := spamcheck.Request{}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		w.WriteHeader(http.StatusBadRequest)
		rest.RenderJSON(w, rest.JSON{"error": "can't decode request", "details": err.Error()})
		log.Printf("[WARN] can't decode request: %v", err)
		return
	}

	ctx := r.Context()
	if s.RequestTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.RequestTimeout)
		defer cancel()
	}

	resp, err := s.Detector.Check(ctx, req)
	if err != nil {
		w.WriteHeader(http.StatusInternalServerError)
		rest.RenderJSON(w, rest.JSON{"error": "can't check message", "details": err.Error()})
		log.Printf("[WARN] can't check message: %v", err)
		return
	}
	if resp.Results == nil {
		resp.Results = []spamcheck.Result{}
	}

	if resp.IsSpam && s.SpamLogger != nil {
		s.SpamLogger.Save(req, resp)
	}
	if s.Verdicts != nil {
		// the verdict is stored even if the client has gone already
		if _, err := s.Verdicts.Write(context.WithoutCancel(r.Context()), storage.NewVerdict(req, resp)); err != nil {
			log.Printf("[WARN] can't store verdict: %v", err)
		}
	}
	rest.RenderJSON(w, resp)
}

// listChecksHandler handles GET /api/checks request, returns names and kinds of registered checks
func (s *Server) listChecksHandler(w http.ResponseWriter, _ *http.Request) {
	type checkInfo struct {
		Name string `json:"name"`
		Kind string `json:"kind"`
	}
	res := []checkInfo{}
	if s.Checks != nil {
		for _, c := range s.Checks.List() {
			res = append(res, checkInfo{Name: c.Name, Kind: c.Kind.String()})
		}
	}
	rest.RenderJSON(w, res)
}

// verdictsHandler handles GET /api/verdicts?limit=N request, returns the last stored verdicts
func (s *Server) verdictsHandler(w http.ResponseWriter, r *http.Request) {
	if s.Verdicts == nil {
		w.WriteHeader(http.StatusNotFound)
		rest.RenderJSON(w, rest.JSON{"error": "verdicts storage is not enabled"})
		return
	}

	limit := defaultVerdictsNum
	if v := r.URL.Query().Get("limit"); v != "" {
		l, err := strconv.Atoi(v)
		if err != nil || l < 0 {
			w.WriteHeader(http.StatusBadRequest)
			rest.RenderJSON(w, rest.JSON{"error": "invalid limit", "details": v})
			return
		}
		limit = l
	}

	res, err := s.Verdicts.Read(r.Context(), limit)
	if err != nil {
		w.WriteHeader(http.StatusInternalServerError)
		rest.RenderJSON(w, rest.JSON{"error": "can't get verdicts", "details": err.Error()})
		return
	}
	rest.RenderJSON(w, res)
}
