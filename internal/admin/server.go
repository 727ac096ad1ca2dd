// Package admin serves the operator HTTP surface: health, metrics, node
// status, and named REST operations against a chosen node.
package admin

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/danmuck/edgelink/internal/auth"
	"github.com/danmuck/edgelink/internal/driver"
	"github.com/danmuck/edgelink/internal/node"
	"github.com/danmuck/edgelink/internal/observability"
	"github.com/danmuck/edgelink/internal/plugins"
	"github.com/danmuck/edgelink/internal/protocol"
	"github.com/danmuck/edgelink/internal/rest"
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"
)

// Nodes is the view of the node manager the admin surface needs.
type Nodes interface {
	Get(name string) (driver.Driver, bool)
	List() []node.Status
}

type Config struct {
	Addr        string
	CorsOrigins []string
	// Auth guards the /nodes routes; nil leaves them open.
	Auth auth.Validator
}

type Server struct {
	Addr     string
	Appeared time.Time

	auth    auth.Validator
	nodes   Nodes
	table   *rest.Table
	sources *plugins.Registry
	router  *gin.Engine
	httpSrv *http.Server
}

func New(cfg Config, nodes Nodes, table *rest.Table, sources *plugins.Registry) *Server {
	observability.RegisterMetrics()
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(observability.RequestLogger(log.Logger))
	r.Use(observability.RequestMetricsMiddleware())
	r.Use(cors.New(cors.Config{
		AllowOrigins: normalizeOrigins(cfg.CorsOrigins),
		AllowMethods: []string{"GET", "POST"},
		AllowHeaders: []string{"Origin", "Content-Type", "Authorization"},
		MaxAge:       12 * time.Hour,
	}))
	_ = r.SetTrustedProxies([]string{"127.0.0.1", "::1"})

	if table == nil {
		table = rest.NewTable()
	}
	s := &Server{
		Addr:     cfg.Addr,
		Appeared: time.Now(),
		auth:     cfg.Auth,
		nodes:    nodes,
		table:    table,
		sources:  sources,
		router:   r,
	}
	s.RegisterRoutes()
	return s
}

func (s *Server) HTTPRouter() *gin.Engine {
	return s.router
}

func (s *Server) RegisterRoutes() {
	r := s.router
	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":  "ok",
			"uptime":  time.Since(s.Appeared).String(),
			"service": "edgelink",
			"version": driver.Version,
		})
	})

	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	group := r.Group("/nodes")
	if s.auth != nil {
		group.Use(requireToken(s.auth))
	}

	group.GET("", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"nodes": s.nodes.List()})
	})

	group.GET("/:node/ops", func(c *gin.Context) {
		if _, err := s.driver(c.Param("node")); err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"node": c.Param("node"), "ops": s.table.Ops()})
	})

	group.POST("/:node/ops/:op", func(c *gin.Context) {
		d, err := s.driver(c.Param("node"))
		if err != nil {
			writeError(c, err)
			return
		}
		args, err := bindArgs(c)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		op := rest.Op(c.Param("op"))
		out, err := s.table.Invoke(c.Request.Context(), d, op, args)
		if err != nil {
			log.Error().
				Str("node", d.Name()).
				Str("op", string(op)).
				Err(err).
				Msg("node operation failed")
			writeError(c, err)
			return
		}
		if out == nil {
			c.Status(http.StatusNoContent)
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ok", "result": out})
	})

	group.GET("/:node/search", func(c *gin.Context) {
		d, err := s.driver(c.Param("node"))
		if err != nil {
			writeError(c, err)
			return
		}
		query := strings.TrimSpace(c.Query("q"))
		if query == "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": "missing q"})
			return
		}
		res, err := s.search(c.Request.Context(), d, query, strings.TrimSpace(c.Query("engine")))
		if err != nil {
			writeError(c, err)
			return
		}
		if res == nil {
			c.Status(http.StatusNoContent)
			return
		}
		c.JSON(http.StatusOK, res)
	})
}

// search resolves engine through the source plugins; a bare query without
// an engine goes straight to the node with the default prefix.
func (s *Server) search(ctx context.Context, d driver.Driver, query, engine string) (*protocol.LoadResult, error) {
	if engine == "" || s.sources == nil {
		return rest.Search(ctx, d, query, engine)
	}
	return s.sources.Search(ctx, query, plugins.SearchOptions{Engine: engine, Driver: d})
}

func (s *Server) driver(name string) (driver.Driver, error) {
	d, ok := s.nodes.Get(name)
	if !ok {
		return nil, fmt.Errorf("%w: %s", node.ErrUnknownNode, name)
	}
	return d, nil
}

// Serve blocks until Shutdown or a listener error.
func (s *Server) Serve() error {
	s.httpSrv = &http.Server{
		Addr:              s.Addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	err := s.httpSrv.ListenAndServe()
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

func (s *Server) Shutdown(ctx context.Context) error {
	if s.httpSrv == nil {
		return nil
	}
	return s.httpSrv.Shutdown(ctx)
}

// bindArgs merges query parameters with an optional flat JSON object body;
// body values win.
func bindArgs(c *gin.Context) (rest.Args, error) {
	args := rest.Args{}
	for k, v := range c.Request.URL.Query() {
		if len(v) > 0 {
			args[k] = v[0]
		}
	}
	if c.Request.ContentLength == 0 {
		return args, nil
	}
	var body map[string]any
	dec := json.NewDecoder(c.Request.Body)
	dec.UseNumber()
	if err := dec.Decode(&body); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("invalid body: %w", err)
	}
	for k, v := range body {
		switch val := v.(type) {
		case string:
			args[k] = val
		case json.Number:
			args[k] = val.String()
		case bool:
			args[k] = strconv.FormatBool(val)
		case []any:
			parts := make([]string, 0, len(val))
			for _, p := range val {
				parts = append(parts, fmt.Sprint(p))
			}
			args[k] = strings.Join(parts, ",")
		case nil:
		default:
			return nil, fmt.Errorf("invalid body: %s must be a scalar", k)
		}
	}
	return args, nil
}

func requireToken(v auth.Validator) gin.HandlerFunc {
	return func(c *gin.Context) {
		if err := auth.Check(v, c.GetHeader("Authorization")); err != nil {
			c.Header("WWW-Authenticate", "Bearer")
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": err.Error()})
			return
		}
		c.Next()
	}
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, protocol.ErrSessionNotReady):
		return http.StatusConflict
	case errors.Is(err, node.ErrUnknownNode), errors.Is(err, rest.ErrUnknownOp):
		return http.StatusNotFound
	case errors.Is(err, rest.ErrMissingArg), errors.Is(err, rest.ErrInvalidArg), errors.Is(err, plugins.ErrNoSource):
		return http.StatusBadRequest
	case errors.Is(err, protocol.ErrTransport), errors.Is(err, protocol.ErrMalformedPayload):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func writeError(c *gin.Context, err error) {
	c.JSON(statusFor(err), gin.H{"error": err.Error()})
}

func normalizeOrigins(origins []string) []string {
	if len(origins) == 0 {
		return []string{"http://localhost:3000"}
	}
	return origins
}
