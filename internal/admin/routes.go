// Package admin exposes a Registry over HTTP for inspection and manual
// invalidation.
package admin

import (
	"context"
	"errors"
	"io"
	"net/http"
	"slices"
	"unicode/utf8"

	"github.com/gin-gonic/gin"

	"github.com/unkn0wn-root/twotier"
	pr "github.com/unkn0wn-root/twotier/provider"
)

// MaxBodyBytes bounds PUT bodies.
const MaxBodyBytes = 8 << 20

type Server struct {
	reg      *twotier.Registry
	resolver *twotier.Resolver
	log      twotier.Logger
}

func New(reg *twotier.Registry, log twotier.Logger) *Server {
	if log == nil {
		log = twotier.NopLogger{}
	}
	return &Server{reg: reg, resolver: twotier.NewResolver(reg), log: log}
}

// Routes builds the gin engine.
func (s *Server) Routes() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())

	r.GET("/health", s.health)

	caches := r.Group("/caches")
	{
		caches.GET("", s.listCaches)
		caches.DELETE("/:name", s.clearCache)
		caches.GET("/:name/entries/:key", s.getEntry)
		caches.PUT("/:name/entries/:key", s.putEntry)
		caches.DELETE("/:name/entries/:key", s.evictEntry)
	}
	return r
}

func (s *Server) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":     "ok",
		"machine_id": s.reg.MachineID(),
	})
}

func (s *Server) listCaches(c *gin.Context) {
	names, err := s.reg.Names(c.Request.Context())
	if err != nil {
		s.fail(c, http.StatusInternalServerError, err)
		return
	}
	if names == nil {
		names = []string{}
	}
	c.JSON(http.StatusOK, gin.H{"caches": names})
}

// cache resolves the :name parameter, answering the request on failure.
// Only PUT may name a cache the shared tier does not list yet.
func (s *Server) cache(c *gin.Context, op string) (twotier.Cache, bool) {
	name := c.Param("name")
	if c.Request.Method != http.MethodPut {
		known, err := s.known(c.Request.Context(), name)
		if err != nil {
			s.fail(c, http.StatusInternalServerError, err)
			return nil, false
		}
		if !known {
			s.fail(c, http.StatusNotFound, &twotier.ResolveError{Name: name, Op: op, Err: pr.ErrUnknownCache})
			return nil, false
		}
	}
	caches, err := s.resolver.Resolve(twotier.Operation{Name: op, Caches: []string{name}})
	if err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, pr.ErrUnknownCache) {
			status = http.StatusNotFound
		}
		s.fail(c, status, err)
		return nil, false
	}
	return caches[0], true
}

func (s *Server) known(ctx context.Context, name string) (bool, error) {
	names, err := s.reg.Names(ctx)
	if err != nil {
		return false, err
	}
	return slices.Contains(names, name), nil
}

func (s *Server) getEntry(c *gin.Context) {
	tc, ok := s.cache(c, "admin get")
	if !ok {
		return
	}
	ctx := c.Request.Context()
	key := c.Param("key")

	st, err := tc.Status(ctx, key)
	if err != nil {
		s.fail(c, http.StatusInternalServerError, err)
		return
	}
	v, found, err := tc.Get(ctx, key)
	if err != nil {
		s.fail(c, http.StatusInternalServerError, err)
		return
	}
	body := gin.H{
		"cache":  tc.Name(),
		"key":    key,
		"status": st.String(),
		"found":  found,
	}
	if !found {
		c.JSON(http.StatusNotFound, body)
		return
	}
	if utf8.Valid(v) {
		body["value"] = string(v)
	} else {
		body["value_base64"] = v // encoding/json writes []byte as base64
	}
	c.JSON(http.StatusOK, body)
}

func (s *Server) putEntry(c *gin.Context) {
	tc, ok := s.cache(c, "admin put")
	if !ok {
		return
	}
	body, err := io.ReadAll(http.MaxBytesReader(c.Writer, c.Request.Body, MaxBodyBytes))
	if err != nil {
		s.fail(c, http.StatusRequestEntityTooLarge, err)
		return
	}
	if err := tc.Put(c.Request.Context(), c.Param("key"), body); err != nil {
		s.fail(c, http.StatusInternalServerError, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (s *Server) evictEntry(c *gin.Context) {
	tc, ok := s.cache(c, "admin evict")
	if !ok {
		return
	}
	if err := tc.Evict(c.Request.Context(), c.Param("key")); err != nil {
		s.fail(c, http.StatusInternalServerError, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (s *Server) clearCache(c *gin.Context) {
	tc, ok := s.cache(c, "admin clear")
	if !ok {
		return
	}
	if err := tc.Clear(c.Request.Context()); err != nil {
		s.fail(c, http.StatusInternalServerError, err)
		return
	}
	s.log.Info("cache cleared over admin API", twotier.Fields{"cache": tc.Name()})
	c.Status(http.StatusNoContent)
}

func (s *Server) fail(c *gin.Context, status int, err error) {
	if status >= http.StatusInternalServerError {
		s.log.Error("admin request failed",
			twotier.Fields{"path": c.FullPath(), "err": err})
	}
	c.AbortWithStatusJSON(status, gin.H{"error": err.Error()})
}
