package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/amaumene/godebrid/internal/constants"
	"github.com/amaumene/godebrid/internal/models"
)

func (h *Handler) handleManifest(c *gin.Context) {
	manifest := models.Manifest{
		ID:          constants.AddonID,
		Version:     constants.AddonVersion,
		Name:        constants.AddonName,
		Description: constants.AddonDescription,
		Types:       []string{"movie", "series"},
		Resources:   []string{"stream"},
		Catalogs:    []models.Catalog{},
		IDPrefixes:  []string{"tt", "kitsu"},
		BehaviorHints: models.BehaviorHints{
			Configurable: true,
		},
	}
	c.JSON(http.StatusOK, manifest)
}
