package main

import (
	"context"
	"testing"
	"time"

	"github.com/bassista/go_chatwall/internal/config"
	"github.com/gin-gonic/gin"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func TestCreateGraceHttpServer(t *testing.T) {
	cfg := config.ServerConfig{
		ReadTimeout:     time.Second,
		WriteTimeout:    time.Second,
		IdleTimeout:     time.Second,
		ShutDownTimeout: time.Second,
	}
	srv := createGraceHttpServer(context.Background(), "test-server", cfg, gin.New())
	if srv == nil {
		t.Fatal("expected a server")
	}
}
