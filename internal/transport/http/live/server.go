package livehttp

import (
	"context"
	"errors"
	"net/http"
	"time"

	"spotpilot/internal/logger"

	"github.com/gin-gonic/gin"
)

// HTTPObserver 记录请求计数。
type HTTPObserver interface {
	ObserveHTTP(method, path string, status int)
}

// Server 提供状态查询接口与指标抓取端点。
type Server struct {
	addr   string
	router *gin.Engine
}

// ServerConfig 中为空的依赖对应的路由不会注册。
type ServerConfig struct {
	Addr     string
	Status   StatusSource
	Registry RegistrySource
	Journal  JournalSource
	// Metrics 为抓取处理器，非空时挂载在 /metrics。
	Metrics  http.Handler
	Observer HTTPObserver
	Symbols  func() []string
	// Marks 为持仓估值提供标记价。
	Marks func() map[string]float64
}

func NewServer(cfg ServerConfig) (*Server, error) {
	if cfg.Addr == "" {
		return nil, errors.New("http server requires an address")
	}
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery(), requestLogger(cfg.Observer))

	router.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	if cfg.Metrics != nil {
		router.GET("/metrics", gin.WrapH(cfg.Metrics))
	}
	if cfg.Status != nil || cfg.Registry != nil || cfg.Journal != nil {
		NewRouter(cfg).Register(router.Group("/api"))
	}
	return &Server{addr: cfg.Addr, router: router}, nil
}

// Handler 暴露路由，测试中配合 httptest 使用。
func (s *Server) Handler() http.Handler {
	return s.router
}

// requestLogger 记录每个请求并计数；路由模板作为 path 标签，避免高基数。
func requestLogger(obs HTTPObserver) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		path := c.FullPath()
		if path == "" {
			path = "unmatched"
		}
		status := c.Writer.Status()
		if obs != nil {
			obs.ObserveHTTP(c.Request.Method, path, status)
		}
		logger.Debugf("HTTP %s %s status=%d ip=%s dur=%s", c.Request.Method, c.Request.URL.Path, status, c.ClientIP(), time.Since(start))
	}
}

func (s *Server) Addr() string {
	if s == nil {
		return ""
	}
	return s.addr
}

// Start 启动 HTTP 服务，直到 ctx 取消或出现错误。
func (s *Server) Start(ctx context.Context) error {
	if s == nil {
		return nil
	}
	srv := &http.Server{Addr: s.addr, Handler: s.router, ReadHeaderTimeout: 5 * time.Second}
	errCh := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()
	logger.Infof("http: listening on %s", s.addr)

	select {
	case <-ctx.Done():
		shCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shCtx)
		return nil
	case err := <-errCh:
		return err
	}
}
