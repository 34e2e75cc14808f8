// Copyright 2025 The ChapaUY Authors
// SPDX-License-Identifier: Apache-2.0

// Package server exposes the matcher over HTTP for the upload front end.
package server

import (
	"bytes"
	"context"
	"errors"
	"log"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/jcodagnone/koppel/linkage"
)

// maxDatasetBytes bounds an uploaded dataset.
const maxDatasetBytes = 32 << 20

type Server struct {
	matcher *linkage.Matcher
}

func NewServer(matcher *linkage.Matcher) *Server {
	return &Server{matcher: matcher}
}

// Router returns the engine with every route registered.
func (s *Server) Router() *gin.Engine {
	r := gin.Default()
	s.register(r)

	return r
}

func (s *Server) register(r *gin.Engine) {
	r.GET("/api/v1/health", s.health)
	r.POST("/api/v1/match", s.match)
}

func (s *Server) Run(addr string) error {
	return s.Router().Run(addr)
}

func (s *Server) health(ctx *gin.Context) {
	ctx.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (s *Server) match(ctx *gin.Context) {
	body := http.MaxBytesReader(ctx.Writer, ctx.Request.Body, maxDatasetBytes)

	var buf bytes.Buffer
	if _, err := buf.ReadFrom(body); err != nil {
		status := http.StatusBadRequest

		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			status = http.StatusRequestEntityTooLarge
		}

		ctx.JSON(status, gin.H{"error": err.Error()})

		return
	}

	entities, err := linkage.ParseDataset(&buf)
	if err != nil {
		ctx.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})

		return
	}

	log.Printf("Match request with %d entities", len(entities))

	// a client going away does not abort resolutions already started
	report := s.matcher.RunReport(context.WithoutCancel(ctx.Request.Context()), entities)

	ctx.Header("X-Run-ID", report.RunID)
	ctx.JSON(http.StatusOK, report)
}
