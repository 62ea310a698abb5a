// Copyright (C) 2022 NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package admin implements the HTTP introspection surface: a small
// gorilla/mux router carrying /healthz and /stats, wrapped with the
// same gorilla/handlers middleware stack (compression, panic recovery,
// CORS, access logging) cc-backend's cmd/cc-backend/main.go wraps its
// own router with.
package admin

import (
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/handlers"
	"github.com/gorilla/mux"

	"github.com/rfs-go/rfs-go/internal/store"
	"github.com/rfs-go/rfs-go/log"
)

// NewHandler builds the admin HTTP handler bound to st.
func NewHandler(st *store.Store) http.Handler {
	r := mux.NewRouter()

	r.HandleFunc("/healthz", func(w http.ResponseWriter, req *http.Request) {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		w.Write([]byte("OK"))
	}).Methods(http.MethodGet)

	r.HandleFunc("/stats", func(w http.ResponseWriter, req *http.Request) {
		w.Header().Set("Content-Type", "application/json; charset=utf-8")
		json.NewEncoder(w).Encode(map[string]interface{}{
			"dbsize": st.DBSize(),
		})
	}).Methods(http.MethodGet)

	r.Use(handlers.CompressHandler)
	r.Use(handlers.RecoveryHandler(handlers.PrintRecoveryStack(true)))
	r.Use(handlers.CORS(
		handlers.AllowedHeaders([]string{"Content-Type"}),
		handlers.AllowedMethods([]string{"GET"}),
		handlers.AllowedOrigins([]string{"*"})))

	return handlers.CustomLoggingHandler(io.Discard, r, func(_ io.Writer, params handlers.LogFormatterParams) {
		if strings.HasPrefix(params.Request.RequestURI, "/healthz") {
			return
		}
		log.Debugf("%s %s (%d, %dms)",
			params.Request.Method, params.URL.RequestURI(),
			params.StatusCode, time.Since(params.TimeStamp).Milliseconds())
	})
}
