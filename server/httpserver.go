// Copyright 2023 The FeatDB Authors.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or
// implied. See the License for the specific language governing
// permissions and limitations under the License.

package server

import (
	"context"
	"net/http"
	"time"

	"github.com/cubefs/cubefs/blobstore/common/profile"
	"github.com/cubefs/cubefs/blobstore/common/rpc"
	"github.com/cubefs/cubefs/blobstore/util/log"
	"github.com/google/uuid"

	"github.com/featdb/featdb/metrics"
	"github.com/featdb/featdb/proto"
)

const (
	defaultShutdownTimeoutS      = 10
	defaultReadRequestTimeoutS   = 30
	defaultWriteResponseTimeoutS = 30
)

type HttpServer struct {
	httpServer *http.Server

	*Server
}

func NewHttpServer(server *Server) *HttpServer {
	return &HttpServer{Server: server}
}

func (h *HttpServer) Serve(addr string) {
	ph := profile.NewProfileHandler(addr)
	httpServer := &http.Server{
		Addr:         addr,
		Handler:      rpc.MiddlewareHandlerWith(h.newHandler(), &reqidHandler{}, &metricsHandler{}, ph),
		ReadTimeout:  defaultReadRequestTimeoutS * time.Second,
		WriteTimeout: defaultWriteResponseTimeoutS * time.Second,
	}
	go func() {
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal("http server exits:", err)
		}
	}()
	h.httpServer = httpServer

	log.Info("http server is running at:", addr)
}

func (h *HttpServer) Stop() {
	ctx, cancel := context.WithTimeout(context.Background(), defaultShutdownTimeoutS*time.Second)
	defer cancel()

	h.httpServer.Shutdown(ctx)
}

// Handler exposes the routed handler with middleware, for in-process serving.
func (h *HttpServer) Handler() http.Handler {
	return rpc.MiddlewareHandlerWith(h.newHandler(), &reqidHandler{}, &metricsHandler{})
}

func (h *HttpServer) newHandler() *rpc.Router {
	r := rpc.New()
	r.Handle(http.MethodPost, "/v1/get-online-features", h.GetOnlineFeaturesHTTP, rpc.OptArgsBody())
	r.Handle(http.MethodPost, "/v1/push", h.PushHTTP, rpc.OptArgsBody())
	r.Handle(http.MethodGet, "/stats", h.StatsHTTP)
	r.Handle(http.MethodGet, "/metrics", func(c *rpc.Context) {
		metrics.Handler().ServeHTTP(c.Writer, c.Request)
	})
	return r
}

func (h *HttpServer) GetOnlineFeaturesHTTP(c *rpc.Context) {
	args := new(proto.GetOnlineFeaturesRequest)
	if err := c.ParseArgs(args); err != nil {
		c.RespondError(err)
		return
	}

	principal := h.resolver.Resolve(c.Request)
	resp, err := h.GetOnlineFeatures(c.Request.Context(), principal, args)
	if err != nil {
		c.RespondError(err)
		return
	}
	c.RespondJSON(resp)
}

func (h *HttpServer) PushHTTP(c *rpc.Context) {
	args := new(proto.PushRequest)
	if err := c.ParseArgs(args); err != nil {
		c.RespondError(err)
		return
	}

	principal := h.resolver.Resolve(c.Request)
	resp, err := h.Push(c.Request.Context(), principal, args)
	if err != nil {
		c.RespondError(err)
		return
	}
	c.RespondJSON(resp)
}

func (h *HttpServer) StatsHTTP(c *rpc.Context) {
	stats, err := h.Stats(c.Request.Context())
	if err != nil {
		c.RespondError(err)
		return
	}
	c.RespondJSON(stats)
}

// reqidHandler assigns a request id when the caller sent none, so every
// request is traceable end to end.
type reqidHandler struct{}

func (*reqidHandler) Handler(w http.ResponseWriter, req *http.Request, f func(http.ResponseWriter, *http.Request)) {
	rid := req.Header.Get(proto.ReqIdKey)
	if rid == "" {
		rid = uuid.NewString()
		req.Header.Set(proto.ReqIdKey, rid)
	}
	w.Header().Set(proto.ReqIdKey, rid)
	f(w, req)
}

// metricsHandler observes request latency and status per api path.
type metricsHandler struct{}

func (*metricsHandler) Handler(w http.ResponseWriter, req *http.Request, f func(http.ResponseWriter, *http.Request)) {
	start := time.Now()
	sw := &statusWriter{ResponseWriter: w, status: http.StatusOK}
	f(sw, req)
	metrics.ObserveRequest(req.URL.Path, sw.status, time.Since(start))
}

type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(status int) {
	w.status = status
	w.ResponseWriter.WriteHeader(status)
}
