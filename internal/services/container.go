// Package services implements the debrid resolution and caching engine and
// its dependency injection container.
package services

import (
	"github.com/amaumene/godebrid/internal/catalog"
	"github.com/amaumene/godebrid/internal/scheduler"
	"github.com/amaumene/godebrid/internal/store"
	"github.com/amaumene/godebrid/pkg/debrid"
	"github.com/amaumene/godebrid/pkg/logger"
)

// Container holds all application services. Every member is constructed once
// at process start and passed by reference into request handling.
type Container struct {
	Provider     debrid.Provider
	Store        store.Store
	Catalog      catalog.Repository
	Resolver     *Resolver
	Availability *Availability
	Responses    *ResponseCache
	Scheduler    *scheduler.Scheduler
	Logger       logger.Logger
}
