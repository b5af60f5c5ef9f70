package handlers

import (
	"errors"
	"net/http"
	"regexp"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	apperrors "github.com/amaumene/godebrid/internal/errors"
	"github.com/amaumene/godebrid/internal/models"
	"github.com/amaumene/godebrid/internal/scheduler"
	"github.com/amaumene/godebrid/internal/services"
)

var infoHashRegex = regexp.MustCompile(`^[0-9a-fA-F]{40}$`)

// handlePlayback turns a torrent descriptor into a redirect to a direct URL,
// or a pending answer the player retries.
func (h *Handler) handlePlayback(c *gin.Context) {
	if !h.playbackRate.TakeToken() {
		c.JSON(http.StatusTooManyRequests, gin.H{"error": "too many requests"})
		return
	}

	cfg := h.requestConfig(c)
	if cfg.APIKey == "" {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "missing API key"})
		return
	}

	hash := strings.ToLower(c.Param("hash"))
	if !infoHashRegex.MatchString(hash) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid info hash"})
		return
	}

	fileIndex := -1
	if raw := c.Param("fileIndex"); raw != "" && raw != "none" {
		idx, err := strconv.Atoi(raw)
		if err != nil || idx < 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid file index"})
			return
		}
		fileIndex = idx
	}

	provider := h.services.Provider.Name()
	if url, ok := h.services.Responses.GetResolvedURL(provider, hash, fileIndex); ok {
		c.Header("X-Cache", "HIT")
		c.Redirect(http.StatusFound, url)
		return
	}

	hint := c.Query("hint")
	if hint == "" {
		// Opportunistic: the availability cache may already know which file
		// group is instantly available.
		if groups, ok := h.services.Availability.GetCached([]string{hash})[hash]; ok {
			hint = services.HintFor(groups, fileIndex+1)
		}
	}

	h.services.Logger.Infof("[PlaybackHandler] resolve request - hash: %s, file: %d, client: %s", hash, fileIndex, c.ClientIP())

	task, err := h.services.Scheduler.Submit(func() (interface{}, error) {
		return h.services.Resolver.Resolve(services.ResolveRequest{
			InfoHash:         hash,
			FileIndex:        fileIndex,
			APIKey:           cfg.APIKey,
			CachedFileIDHint: hint,
		})
	})
	if err != nil {
		if errors.Is(err, scheduler.ErrQueueFull) {
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": "resolver busy, retry shortly"})
			return
		}
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "resolver unavailable"})
		return
	}

	result, err := task.Wait()
	if err != nil {
		h.writeResolveError(c, err)
		return
	}

	resolution := result.(*models.Resolution)
	if resolution.URL != "" {
		h.services.Responses.PutResolvedURL(provider, hash, fileIndex, resolution.URL)
		c.Redirect(http.StatusFound, resolution.URL)
		return
	}

	c.JSON(http.StatusAccepted, resolution)
}

func (h *Handler) writeResolveError(c *gin.Context, err error) {
	switch {
	case apperrors.IsType(err, apperrors.ErrorTypeAuthentication):
		c.JSON(http.StatusUnauthorized, gin.H{"error": "provider rejected API key"})
	case apperrors.IsType(err, apperrors.ErrorTypeAccessDenied):
		c.JSON(http.StatusForbidden, gin.H{"error": "provider denied access"})
	default:
		h.services.Logger.Errorf("[PlaybackHandler] resolve failed: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "resolve failed"})
	}
}
