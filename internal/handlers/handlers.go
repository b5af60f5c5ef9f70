// Package handlers implements HTTP request handlers for the addon API.
package handlers

import (
	"encoding/base64"
	"encoding/json"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/amaumene/godebrid/internal/config"
	"github.com/amaumene/godebrid/internal/constants"
	"github.com/amaumene/godebrid/internal/services"
	"github.com/amaumene/godebrid/pkg/ratelimiter"
)

// Handler handles HTTP requests for the addon.
type Handler struct {
	services     *services.Container
	config       *config.Config
	playbackRate *ratelimiter.TokenBucket
}

// New creates a Handler with the provided services and configuration.
func New(services *services.Container, cfg *config.Config) *Handler {
	return &Handler{
		services:     services,
		config:       cfg,
		playbackRate: ratelimiter.NewTokenBucket(constants.PlaybackRateBurst, constants.PlaybackRateLimit),
	}
}

// RegisterRoutes registers all HTTP routes.
func (h *Handler) RegisterRoutes(r *gin.Engine) {
	r.GET("/", h.handleHome)

	// Manifest routes
	r.GET("/manifest.json", h.handleManifest)
	r.GET("/:configuration/manifest.json", h.handleManifest)

	// Stream list routes - handle both with and without .json in the handler
	r.GET("/:configuration/stream/:type/:id", h.handleStreamWrapper)

	// Availability and playback
	r.GET("/:configuration/availability", h.handleAvailability)
	r.GET("/:configuration/playback/:hash/:fileIndex", h.handlePlayback)
}

func (h *Handler) handleHome(c *gin.Context) {
	c.String(200, "Welcome to GoDebrid! Add /manifest.json to install the addon.")
}

func (h *Handler) handleStreamWrapper(c *gin.Context) {
	stripJSONExtension(c, "id")
	h.handleStream(c)
}

// requestConfig layers the base64 user configuration from the path over the
// process config.
func (h *Handler) requestConfig(c *gin.Context) *config.Config {
	var userConfig map[string]interface{}
	if data, err := base64.StdEncoding.DecodeString(c.Param("configuration")); err == nil {
		json.Unmarshal(data, &userConfig)
	}
	return config.CreateFromUserData(userConfig, h.config)
}

func stripJSONExtension(c *gin.Context, param string) {
	for i, p := range c.Params {
		if p.Key == param {
			c.Params[i].Value = strings.TrimSuffix(p.Value, ".json")
		}
	}
}
