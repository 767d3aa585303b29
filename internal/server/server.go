// Package server exposes the scan pipeline over HTTP. Every request runs an
// independent pipeline; nothing is shared between requests.
package server

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"reflect"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/render"
	"github.com/go-playground/validator/v10"

	"github.com/KaramelBytes/declinescan/internal/analysis"
	"github.com/KaramelBytes/declinescan/internal/columns"
	"github.com/KaramelBytes/declinescan/internal/config"
	"github.com/KaramelBytes/declinescan/internal/table"
)

// MaxBodyBytes caps the pasted text accepted per request.
const MaxBodyBytes = 4 << 20

// Server serves the scan API.
type Server struct {
	cfg      *config.Global
	logger   *slog.Logger
	validate *validator.Validate
}

// New creates a server for the given configuration.
func New(cfg *config.Global, logger *slog.Logger) *Server {
	v := validator.New()
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "" || name == "-" {
			return f.Name
		}
		return name
	})
	return &Server{
		cfg:      cfg,
		logger:   logger.With(slog.String("component", "server")),
		validate: v,
	}
}

// ScanRequest is the JSON body of POST /api/scan.
type ScanRequest struct {
	Text string `json:"text" validate:"required"`
	// Markets holds display labels or canonical codes; nil uses the
	// configured selection and an empty list disables the filter.
	Markets       []string `json:"markets" validate:"dive,required"`
	Delimiter     string   `json:"delimiter"`
	ShareTemplate string   `json:"share_template"`
}

// ErrorResponse is the body of every non-2xx response.
type ErrorResponse struct {
	Status int    `json:"status"`
	Error  string `json:"error"`
}

// MarketsResponse is the body of GET /api/markets.
type MarketsResponse struct {
	Markets  []config.Market `json:"markets"`
	Selected []string        `json:"selected"`
}

// Routes returns the HTTP handler.
func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(s.requestLogger)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		render.JSON(w, r, map[string]string{"status": "ok"})
	})
	r.Route("/api", func(r chi.Router) {
		r.Use(render.SetContentType(render.ContentTypeJSON))
		r.Get("/markets", s.handleMarkets)
		r.Post("/scan", s.handleScan)
	})
	return r
}

func (s *Server) handleMarkets(w http.ResponseWriter, r *http.Request) {
	render.JSON(w, r, MarketsResponse{Markets: s.cfg.Markets, Selected: s.cfg.SelectedMarkets})
}

func (s *Server) handleScan(w http.ResponseWriter, r *http.Request) {
	reqID := middleware.GetReqID(r.Context())
	r.Body = http.MaxBytesReader(w, r.Body, MaxBodyBytes)

	req, err := decodeScanRequest(r)
	if err != nil {
		s.fail(w, r, http.StatusBadRequest, err)
		return
	}
	if err := s.validateRequest(req); err != nil {
		s.fail(w, r, http.StatusBadRequest, err)
		return
	}
	delim, err := table.ParseDelimiter(req.Delimiter)
	if err != nil {
		s.fail(w, r, http.StatusBadRequest, err)
		return
	}
	topt := s.cfg.TableOptions()
	topt.Delimiter = delim

	opt := analysis.Options{Rules: s.cfg.Rules()}
	if req.Markets == nil {
		opt.SelectedMarkets = s.cfg.MarketCodes(s.cfg.SelectedMarkets)
	} else {
		opt.SelectedMarkets = s.cfg.MarketCodes(req.Markets)
	}

	res, err := analysis.ScanText(r.Context(), req.Text, topt, opt)
	if err != nil {
		switch {
		case table.IsParseError(err), errors.Is(err, columns.ErrUnresolvedNameColumn):
			s.fail(w, r, http.StatusUnprocessableEntity, err)
		case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
			s.logger.InfoContext(r.Context(), "scan canceled", slog.String("request_id", reqID))
		default:
			s.fail(w, r, http.StatusInternalServerError, err)
		}
		return
	}
	view, err := res.View(req.ShareTemplate)
	if err != nil {
		s.fail(w, r, http.StatusBadRequest, err)
		return
	}
	if err := res.Err(); err != nil {
		s.logger.WarnContext(r.Context(), "scan incomplete",
			slog.String("request_id", reqID),
			slog.String("run_id", res.RunID),
			slog.String("error", err.Error()),
		)
	}
	s.logger.InfoContext(r.Context(), "scan completed",
		slog.String("request_id", reqID),
		slog.String("run_id", res.RunID),
		slog.String("status", string(res.Status)),
		slog.Int("rows", res.Rows),
		slog.Int("declines", len(res.Ranked)),
	)
	render.JSON(w, r, view)
}

func decodeScanRequest(r *http.Request) (ScanRequest, error) {
	var req ScanRequest
	if render.GetRequestContentType(r) == render.ContentTypePlainText {
		b, err := io.ReadAll(r.Body)
		if err != nil {
			return req, fmt.Errorf("read body: %w", err)
		}
		req.Text = string(b)
		req.Delimiter = r.URL.Query().Get("delimiter")
		if m, ok := r.URL.Query()["market"]; ok {
			req.Markets = nonEmpty(m)
		}
		return req, nil
	}
	if err := render.DecodeJSON(r.Body, &req); err != nil {
		return req, fmt.Errorf("decode request: %w", err)
	}
	return req, nil
}

func (s *Server) validateRequest(req ScanRequest) error {
	err := s.validate.Struct(req)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err
	}
	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		field := fe.Namespace()
		if _, rest, ok := strings.Cut(field, "."); ok {
			field = rest
		}
		switch fe.Tag() {
		case "required":
			msgs = append(msgs, fmt.Sprintf("%s is required", field))
		default:
			msgs = append(msgs, fmt.Sprintf("%s failed %s validation", field, fe.Tag()))
		}
	}
	return fmt.Errorf("invalid request: %s", strings.Join(msgs, "; "))
}

func nonEmpty(in []string) []string {
	out := make([]string, 0, len(in))
	for _, s := range in {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}

func (s *Server) fail(w http.ResponseWriter, r *http.Request, status int, err error) {
	level := slog.LevelWarn
	if status >= http.StatusInternalServerError {
		level = slog.LevelError
	}
	s.logger.Log(r.Context(), level, "scan request failed",
		slog.String("request_id", middleware.GetReqID(r.Context())),
		slog.Int("status", status),
		slog.String("error", err.Error()),
	)
	render.Status(r, status)
	render.JSON(w, r, ErrorResponse{Status: status, Error: err.Error()})
}

func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		s.logger.DebugContext(r.Context(), "http request",
			slog.String("request_id", middleware.GetReqID(r.Context())),
			slog.String("method", r.Method),
			slog.String("path", r.URL.Path),
			slog.Int("status", ww.Status()),
			slog.Duration("duration", time.Since(start)),
		)
	})
}

// ListenAndServe serves on addr until ctx is canceled, then shuts down.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("listening", slog.String("addr", addr))
		errCh <- srv.ListenAndServe()
	}()
	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}
