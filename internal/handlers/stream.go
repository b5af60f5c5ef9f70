package handlers

import (
	"fmt"
	"net/http"
	"regexp"
	"strconv"
	"strings"

	"github.com/cehbz/torrentname"
	"github.com/gin-gonic/gin"

	"github.com/amaumene/godebrid/internal/catalog"
	"github.com/amaumene/godebrid/internal/models"
	"github.com/amaumene/godebrid/internal/services"
)

var (
	imdbIDRegex  = regexp.MustCompile(`^tt\d+$`)
	episodeRegex = regexp.MustCompile(`^(tt\d+|kitsu:\d+):(\d+)(?::(\d+))?$`)
)

func (h *Handler) handleStream(c *gin.Context) {
	cfg := h.requestConfig(c)
	contentType := c.Param("type")
	id := c.Param("id")

	if cfg.APIKey == "" {
		c.JSON(http.StatusOK, models.StreamResponse{Streams: []models.Stream{}})
		return
	}

	baseID, season, episode := parseStreamID(id)
	if baseID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid id format"})
		return
	}

	key := fmt.Sprintf("%s:%s:%s", c.Param("configuration"), contentType, id)
	result, err := h.services.Responses.WrapList(key, func() ([]models.Stream, error) {
		return h.buildStreamList(c, cfg.APIKey, contentType, baseID, season, episode)
	})
	if err != nil {
		h.services.Logger.Errorf("[StreamHandler] failed to build streams for %s: %v", id, err)
		c.JSON(http.StatusOK, models.StreamResponse{Streams: []models.Stream{}})
		return
	}

	if result.Hit {
		c.Header("X-Cache", "HIT")
		c.Header("X-Cache-Age", strconv.Itoa(int(result.Age.Seconds())))
	} else {
		c.Header("X-Cache", "MISS")
	}
	c.JSON(http.StatusOK, models.StreamResponse{Streams: result.Streams})
}

// buildStreamList runs the ranked-candidate lookup and tags every candidate
// with its availability, building one playable entry each.
func (h *Handler) buildStreamList(c *gin.Context, apiKey, contentType, baseID string, season, episode int) ([]models.Stream, error) {
	candidates, err := h.services.Catalog.Candidates(contentType, baseID, season, episode)
	if err != nil {
		return nil, fmt.Errorf("candidate lookup failed: %w", err)
	}
	if len(candidates) == 0 {
		return []models.Stream{}, nil
	}

	hashes := make([]string, len(candidates))
	for i, cand := range candidates {
		hashes[i] = cand.InfoHash
	}

	availability, err := h.services.Availability.Refresh(hashes, apiKey)
	if err != nil {
		// Authentication is the only hard failure; availability is a hint
		// for everything else.
		return nil, err
	}

	streams := make([]models.Stream, 0, len(candidates))
	for _, cand := range candidates {
		hash := strings.ToLower(cand.InfoHash)
		groups := availability[hash]
		streams = append(streams, h.buildStream(c, cand, groups))
	}
	return streams, nil
}

func (h *Handler) buildStream(c *gin.Context, cand catalog.Candidate, groups [][]int) models.Stream {
	name := "[GoDebrid]"
	if len(groups) > 0 {
		name = "[GoDebrid+] instant"
	}

	title := cand.Title
	if parsed := torrentname.Parse(cand.Title); parsed != nil {
		var parts []string
		if parsed.Resolution != "" {
			parts = append(parts, parsed.Resolution)
		}
		if parsed.Source != "" {
			parts = append(parts, parsed.Source)
		}
		if len(parts) > 0 {
			title = fmt.Sprintf("%s\n%s · %d seeders", cand.Title, strings.Join(parts, " "), cand.Seeders)
		}
	}

	url := fmt.Sprintf("%s/%s/playback/%s/%d",
		requestOrigin(c), c.Param("configuration"), cand.InfoHash, cand.FileIndex)
	if hint := services.HintFor(groups, cand.FileIndex+1); hint != "" {
		url += "?hint=" + hint
	}

	return models.Stream{Name: name, Title: title, URL: url}
}

// handleAvailability reports which of the given hashes are cached on the
// provider, with the resolve URL template for each.
func (h *Handler) handleAvailability(c *gin.Context) {
	cfg := h.requestConfig(c)
	if cfg.APIKey == "" {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "missing API key"})
		return
	}

	raw := strings.TrimSpace(c.Query("hashes"))
	if raw == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "missing hashes"})
		return
	}
	hashes := strings.Split(raw, ",")

	availability, err := h.services.Availability.Refresh(hashes, cfg.APIKey)
	if err != nil {
		h.services.Logger.Errorf("[StreamHandler] availability check failed: %v", err)
		c.JSON(http.StatusUnauthorized, gin.H{"error": "provider rejected API key"})
		return
	}

	template := fmt.Sprintf("%s/%s/playback/{infoHash}/{fileIndex}", requestOrigin(c), c.Param("configuration"))
	result := make(map[string]models.AvailabilityStatus, len(hashes))
	for _, hash := range hashes {
		hash = strings.ToLower(strings.TrimSpace(hash))
		if _, ok := availability[hash]; ok {
			result[hash] = models.AvailabilityStatus{Cached: true, ResolveURLTemplate: template}
		} else {
			result[hash] = models.AvailabilityStatus{Cached: false}
		}
	}
	c.JSON(http.StatusOK, result)
}

// parseStreamID splits a Stremio content id into its base id and optional
// season/episode. Returns an empty base id when the format is unknown.
func parseStreamID(id string) (string, int, int) {
	if imdbIDRegex.MatchString(id) {
		return id, 0, 0
	}
	if m := episodeRegex.FindStringSubmatch(id); m != nil {
		season, _ := strconv.Atoi(m[2])
		episode := 0
		if m[3] != "" {
			episode, _ = strconv.Atoi(m[3])
		}
		// kitsu ids carry only an episode: shift when no third segment.
		if strings.HasPrefix(m[1], "kitsu:") && m[3] == "" {
			return m[1], 0, season
		}
		return m[1], season, episode
	}
	return "", 0, 0
}

func requestOrigin(c *gin.Context) string {
	scheme := "http"
	if c.Request.TLS != nil || c.GetHeader("X-Forwarded-Proto") == "https" {
		scheme = "https"
	}
	return fmt.Sprintf("%s://%s", scheme, c.Request.Host)
}
