// Package admin serves the HTTP side of the server: health checks, stats, and
// JSON access to the store for inspection and export/import.
package admin

import (
	"errors"
	"net/http"
	"time"

	ginzap "github.com/gin-contrib/zap"
	"github.com/gin-gonic/gin"
	"github.com/tidwall/gjson"
	"go.uber.org/zap"

	"github.com/luma/respkv/storage"
)

// Stats reports live server counters. transport.TCP implements it.
type Stats interface {
	ActiveConns() int
}

type Options struct {
	Store storage.Store

	// Stats is optional, connections are reported as 0 without it
	Stats Stats

	Log *zap.Logger

	// Debug puts gin into debug mode
	Debug bool
}

func NewRouter(options Options) *gin.Engine {
	log := options.Log
	if log == nil {
		log = zap.NewNop()
	}

	gin.DisableConsoleColor()
	if options.Debug {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()

	// Logs all requests, like a combined access and error log, with RFC3339
	// UTC timestamps.
	r.Use(ginzap.GinzapWithConfig(log, &ginzap.Config{
		TimeFormat: time.RFC3339,
		UTC:        true,
		SkipPaths:  []string{"/ping"},
	}))

	// Logs all panic to error log
	//   - stack means whether output the stack info.
	r.Use(ginzap.RecoveryWithZap(log, true))

	h := &handlers{store: options.Store, stats: options.Stats}

	r.GET("/ping", h.ping)
	r.GET("/stats", h.getStats)

	r.GET("/keys", h.backup)
	r.PUT("/keys", h.restore)
	r.GET("/keys/:key", h.getKey)
	r.PUT("/keys/:key", h.putKey)
	r.DELETE("/keys/:key", h.deleteKey)

	return r
}

type handlers struct {
	store storage.Store
	stats Stats
}

func (h *handlers) ping(c *gin.Context) {
	c.String(http.StatusOK, "pong")
}

func (h *handlers) getStats(c *gin.Context) {
	conns := 0
	if h.stats != nil {
		conns = h.stats.ActiveConns()
	}

	c.JSON(http.StatusOK, gin.H{
		"keys":        h.store.Len(),
		"connections": conns,
	})
}

func (h *handlers) backup(c *gin.Context) {
	data, err := h.store.Backup()
	if err != nil {
		abortWithError(c, err)
		return
	}

	c.Data(http.StatusOK, gin.MIMEJSON, data)
}

func (h *handlers) restore(c *gin.Context) {
	body, err := c.GetRawData()
	if err != nil {
		abortWithError(c, err)
		return
	}

	if err := h.store.Restore(body); err != nil {
		abortWithError(c, err)
		return
	}

	c.Status(http.StatusNoContent)
}

func (h *handlers) getKey(c *gin.Context) {
	value, ok, err := h.store.Get(c.Request.Context(), c.Param("key"))
	if err != nil {
		abortWithError(c, err)
		return
	}

	if !ok {
		c.AbortWithStatusJSON(http.StatusNotFound, gin.H{"error": "key not found"})
		return
	}

	data, err := storage.MarshalFrame(value)
	if err != nil {
		abortWithError(c, err)
		return
	}

	c.Data(http.StatusOK, gin.MIMEJSON, data)
}

// putKey accepts the JSON form produced by getKey, or a bare JSON string
// which is stored as a bulk string.
func (h *handlers) putKey(c *gin.Context) {
	body, err := c.GetRawData()
	if err != nil {
		abortWithError(c, err)
		return
	}

	if !gjson.ValidBytes(body) {
		abortWithError(c, storage.ErrInvalidSnapshot)
		return
	}

	value, err := storage.UnmarshalFrame(gjson.ParseBytes(body))
	if err != nil {
		abortWithError(c, err)
		return
	}

	if err := h.store.Set(c.Request.Context(), c.Param("key"), value); err != nil {
		abortWithError(c, err)
		return
	}

	c.Status(http.StatusNoContent)
}

func (h *handlers) deleteKey(c *gin.Context) {
	n, err := h.store.Delete(c.Request.Context(), c.Param("key"))
	if err != nil {
		abortWithError(c, err)
		return
	}

	if n == 0 {
		c.AbortWithStatusJSON(http.StatusNotFound, gin.H{"error": "key not found"})
		return
	}

	c.Status(http.StatusNoContent)
}

func abortWithError(c *gin.Context, err error) {
	status := http.StatusInternalServerError

	switch {
	case errors.Is(err, storage.ErrInvalidSnapshot):
		status = http.StatusBadRequest
	case errors.Is(err, storage.ErrClosed):
		status = http.StatusServiceUnavailable
	}

	c.AbortWithStatusJSON(status, gin.H{"error": err.Error()})
}
