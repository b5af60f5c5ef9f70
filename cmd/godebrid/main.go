package main

import (
	"log"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"

	"github.com/amaumene/godebrid/internal/middleware"
)

func main() {
	// Optional .env for local runs; environment always wins.
	godotenv.Load()

	a, err := newApp()
	if err != nil {
		log.Fatalf("startup failed: %v", err)
	}
	defer a.shutdown()

	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(middleware.Logger(a.log))
	r.Use(middleware.CORS())
	r.Use(middleware.Gzip())

	a.handler.RegisterRoutes(r)

	a.log.Infof("[App] starting HTTP server on port %s", a.cfg.Port)
	log.Fatal(http.ListenAndServe(":"+a.cfg.Port, r))
}
