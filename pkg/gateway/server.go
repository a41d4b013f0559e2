// Package gateway exposes the five AI capabilities over HTTP: validation,
// upstream invocation, response shaping, streaming relay and error
// normalization all live behind a single request pipeline.
package gateway

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net/http"
	"sync/atomic"
	"time"

	log "github.com/charmbracelet/log"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"golang.org/x/crypto/acme/autocert"

	"github.com/lkarlslund/aigateway/pkg/capability"
	"github.com/lkarlslund/aigateway/pkg/config"
	"github.com/lkarlslund/aigateway/pkg/upstream"
)

// UpstreamClient is the capability surface of the model provider. One method
// per capability operation; *upstream.Client is the production
// implementation.
type UpstreamClient interface {
	AppendMessageAndStreamRun(ctx context.Context, threadID, content, assistantID string) (upstream.TokenStream, error)
	CompleteChat(ctx context.Context, req upstream.CompletionRequest) (string, error)
	GenerateImage(ctx context.Context, prompt, size, quality string) ([]upstream.GeneratedImage, error)
	SynthesizeSpeech(ctx context.Context, text, voice, model string, speed float64) ([]byte, error)
}

type Server struct {
	upstream       UpstreamClient
	httpServer     *http.Server
	tlsConfig      config.TLSConfig
	activeRequests atomic.Int64
	draining       atomic.Bool
}

func NewServer(cfg *config.GatewayConfig, client UpstreamClient) *Server {
	s := &Server{
		upstream:  client,
		tlsConfig: cfg.TLS,
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(s.requestLifecycleMiddleware)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	r.Post("/threads/{threadId}/messages", s.capabilityHandler(capability.KindChatThread))
	r.Post("/summarize", s.capabilityHandler(capability.KindSummarize))
	r.Post("/images", s.capabilityHandler(capability.KindImageGenerate))
	r.Post("/image-interpreter", s.capabilityHandler(capability.KindImageInterpret))
	r.Post("/voice", s.capabilityHandler(capability.KindSpeechSynthesize))

	s.httpServer = &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       60 * time.Second,
		// WriteTimeout stays 0: chat streams live as long as the run does.
		WriteTimeout: 0,
		IdleTimeout:  120 * time.Second,
	}

	return s
}

func (s *Server) Handler() http.Handler { return s.httpServer.Handler }

func (s *Server) Run(ctx context.Context) error {
	errCh := make(chan error, 2)

	if s.tlsConfig.Enabled {
		mgr := &autocert.Manager{
			Cache:      autocert.DirCache(s.tlsConfig.CacheDir),
			Prompt:     autocert.AcceptTOS,
			HostPolicy: autocert.HostWhitelist(s.tlsConfig.Domain),
			Email:      s.tlsConfig.Email,
		}

		httpsSrv := &http.Server{
			Addr:              s.tlsConfig.ListenAddr,
			Handler:           s.httpServer.Handler,
			TLSConfig:         &tls.Config{GetCertificate: mgr.GetCertificate, MinVersion: tls.VersionTLS12},
			ReadHeaderTimeout: s.httpServer.ReadHeaderTimeout,
			ReadTimeout:       s.httpServer.ReadTimeout,
			WriteTimeout:      s.httpServer.WriteTimeout,
			IdleTimeout:       s.httpServer.IdleTimeout,
		}

		httpChallenge := &http.Server{
			Addr:              ":80",
			Handler:           mgr.HTTPHandler(http.HandlerFunc(redirectHTTPS)),
			ReadHeaderTimeout: 10 * time.Second,
		}

		go func() {
			log.Info("http challenge/redirect listening", "addr", ":80")
			if err := httpChallenge.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				errCh <- fmt.Errorf("http challenge server: %w", err)
			}
		}()

		go func() {
			log.Info("https listening", "addr", httpsSrv.Addr, "domain", s.tlsConfig.Domain)
			if err := httpsSrv.ListenAndServeTLS("", ""); err != nil && !errors.Is(err, http.ErrServerClosed) {
				errCh <- fmt.Errorf("https server: %w", err)
			}
		}()

		<-ctx.Done()
		s.draining.Store(true)
		s.waitForIdle()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = httpChallenge.Shutdown(shutdownCtx)
		_ = httpsSrv.Shutdown(shutdownCtx)
		return firstErr(errCh)
	}

	go func() {
		log.Info("gateway listening", "addr", s.httpServer.Addr)
		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("gateway server: %w", err)
		}
	}()

	<-ctx.Done()
	s.draining.Store(true)
	s.waitForIdle()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_ = s.httpServer.Shutdown(shutdownCtx)
	return firstErr(errCh)
}

func redirectHTTPS(w http.ResponseWriter, r *http.Request) {
	http.Redirect(w, r, "https://"+r.Host+r.RequestURI, http.StatusMovedPermanently)
}

func (s *Server) requestLifecycleMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		isCapabilityReq := r.Method == http.MethodPost
		if isCapabilityReq && s.draining.Load() {
			w.Header().Set("Retry-After", "3")
			http.Error(w, "server shutting down", http.StatusServiceUnavailable)
			return
		}
		if isCapabilityReq {
			s.activeRequests.Add(1)
			defer s.activeRequests.Add(-1)
		}
		next.ServeHTTP(w, r)
	})
}

// waitForIdle polls until no capability request is in flight. It is only
// called once the shutdown context is already cancelled, so the ticker is
// the sole pacing source.
func (s *Server) waitForIdle() {
	t := time.NewTicker(100 * time.Millisecond)
	defer t.Stop()
	lastLog := time.Time{}
	for {
		active := s.activeRequests.Load()
		if active <= 0 {
			log.Info("shutdown: gateway idle")
			return
		}
		if lastLog.IsZero() || time.Since(lastLog) >= time.Second {
			log.Info("shutdown: waiting for active requests", "active", active)
			lastLog = time.Now()
		}
		<-t.C
	}
}

func firstErr(ch <-chan error) error {
	select {
	case err := <-ch:
		return err
	default:
		return nil
	}
}
