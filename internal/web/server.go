package web

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/dmorgan81/fluxui/internal/feed"
	"github.com/dmorgan81/fluxui/internal/handler"
	"github.com/dmorgan81/fluxui/internal/log"
	"github.com/dmorgan81/fluxui/internal/metrics"
	"github.com/dmorgan81/fluxui/internal/page"
	"github.com/dmorgan81/fluxui/internal/prompt"
	"github.com/dmorgan81/fluxui/internal/request"
	"github.com/dmorgan81/fluxui/internal/result"
	"github.com/gin-gonic/gin"
	"github.com/samber/do"
)

type Server struct {
	Addr string

	handler    *handler.Handler
	results    *result.Handler
	templator  *page.Templator
	randomizer *prompt.Randomizer
	feed       *feed.Generator
	metrics    *metrics.Recorder
	logger     *slog.Logger

	srv *http.Server
}

func NewServer(i *do.Injector) (*Server, error) {
	return &Server{
		Addr:       do.MustInvokeNamed[string](i, "addr"),
		handler:    do.MustInvoke[*handler.Handler](i),
		results:    do.MustInvoke[*result.Handler](i),
		templator:  do.MustInvoke[*page.Templator](i),
		randomizer: do.MustInvoke[*prompt.Randomizer](i),
		feed:       do.MustInvoke[*feed.Generator](i),
		metrics:    do.MustInvoke[*metrics.Recorder](i),
		logger:     do.MustInvoke[*slog.Logger](i),
	}, nil
}

func (s *Server) Router() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), s.logRequests)

	r.GET("/", s.index)
	r.POST("/generate", s.generate)
	r.GET("/prompt/random", s.randomPrompt)
	r.GET("/images/:name", s.image)
	r.GET("/download/:name", s.download)
	r.GET("/feed.rss", s.rss)
	r.GET("/metrics", gin.WrapH(s.metrics.Handler()))
	r.GET("/healthz", func(c *gin.Context) { c.String(http.StatusOK, "ok") })
	return r
}

// Run serves until ctx is done.
func (s *Server) Run(ctx context.Context) error {
	s.srv = &http.Server{
		Addr:              s.Addr,
		Handler:           s.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("serving ui", "addr", s.Addr)
		errCh <- s.srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		return s.Shutdown()
	}
}

// Shutdown lets in-flight requests, including a running generation, finish.
func (s *Server) Shutdown() error {
	if s.srv == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Minute)
	defer cancel()
	if err := s.srv.Shutdown(ctx); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) logRequests(c *gin.Context) {
	start := time.Now()
	c.Request = c.Request.WithContext(log.NewContext(c.Request.Context(), s.logger))
	c.Next()
	s.logger.Debug("request",
		"method", c.Request.Method,
		"path", c.Request.URL.Path,
		"status", c.Writer.Status(),
		"latency", time.Since(start),
	)
}

func (s *Server) render(c *gin.Context, params page.Params) {
	html, err := s.templator.Template(c.Request.Context(), params)
	if err != nil {
		_ = c.AbortWithError(http.StatusInternalServerError, err)
		return
	}
	c.Data(http.StatusOK, gin.MIMEHTML+"; charset=utf-8", html)
}

func (s *Server) index(c *gin.Context) {
	s.render(c, page.Params{})
}

func (s *Server) generate(c *gin.Context) {
	input := request.Input{
		Model:      c.PostForm("model"),
		Quantize:   c.PostForm("quantize"),
		Steps:      c.PostForm("steps"),
		Guidance:   c.PostForm("guidance"),
		Seed:       c.PostForm("seed"),
		Resolution: c.PostForm("resolution"),
		Prompt:     c.PostForm("prompt"),
	}
	var out handler.Outcome
	if c.ContentType() == gin.MIMEJSON {
		if err := c.ShouldBindJSON(&input); err != nil {
			out = s.handler.Reject(c.Request.Context(), err)
		}
	}
	if out.Error == "" {
		out = s.handler.Generate(c.Request.Context(), input)
	}

	switch c.NegotiateFormat(gin.MIMEHTML, gin.MIMEJSON) {
	case gin.MIMEJSON:
		c.JSON(http.StatusOK, out)
	default:
		s.render(c, page.Params{Form: input, Outcome: &out})
	}
}

func (s *Server) randomPrompt(c *gin.Context) {
	suggestion, err := s.randomizer.Randomize(c.Request.Context())
	if errors.Is(err, prompt.ErrNoPrompts) {
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, suggestion)
}

func (s *Server) image(c *gin.Context) {
	d, err := s.results.Open(c.Param("name"))
	if err != nil {
		c.Status(http.StatusNotFound)
		return
	}
	c.Data(http.StatusOK, d.ContentType, d.Data)
}

func (s *Server) download(c *gin.Context) {
	d, err := s.results.Open(c.Param("name"))
	if err != nil {
		c.Status(http.StatusNotFound)
		return
	}
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", d.Name))
	c.Data(http.StatusOK, d.ContentType, d.Data)
}

func (s *Server) rss(c *gin.Context) {
	scheme := "http"
	if c.Request.TLS != nil {
		scheme = "https"
	}
	data, err := s.feed.Generate(c.Request.Context(), scheme+"://"+c.Request.Host)
	if err != nil {
		_ = c.AbortWithError(http.StatusInternalServerError, err)
		return
	}
	c.Data(http.StatusOK, "application/rss+xml; charset=utf-8", data)
}
