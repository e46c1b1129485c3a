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

// Package client is the remote proxy of the feature service: the same
// operations as an in-process server, forwarded over the wire. Server-coded
// errors come back with identical code and message, transport failures
// surface as StoreUnavailable, so callers cannot tell local from remote
// except by latency.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/cubefs/cubefs/blobstore/common/rpc"
	"github.com/google/uuid"

	apierrors "github.com/featdb/featdb/errors"
	"github.com/featdb/featdb/proto"
	"github.com/featdb/featdb/store"
)

type Config struct {
	Address string `json:"address"`
	// Token is attached as a bearer credential when non-empty.
	Token string `json:"token"`

	Transport rpc.Config `json:"transport"`
}

type Client struct {
	cfg  Config
	http rpc.Client
}

func NewClient(cfg *Config) *Client {
	return &Client{
		cfg:  *cfg,
		http: rpc.NewClient(&cfg.Transport),
	}
}

func (c *Client) GetOnlineFeatures(ctx context.Context, req *proto.GetOnlineFeaturesRequest) (*proto.GetOnlineFeaturesResponse, error) {
	resp := new(proto.GetOnlineFeaturesResponse)
	if err := c.post(ctx, "/v1/get-online-features", req, resp); err != nil {
		return nil, err
	}
	return resp, nil
}

func (c *Client) Push(ctx context.Context, req *proto.PushRequest) (*proto.PushResponse, error) {
	resp := new(proto.PushResponse)
	if err := c.post(ctx, "/v1/push", req, resp); err != nil {
		return nil, err
	}
	return resp, nil
}

func (c *Client) Stats(ctx context.Context) (store.Stats, error) {
	stats := store.Stats{}
	req, err := c.newRequest(ctx, http.MethodGet, "/stats", nil)
	if err != nil {
		return stats, apierrors.NewStoreUnavailable(err)
	}
	return stats, c.translate(c.http.DoWith(ctx, req, &stats))
}

func (c *Client) Close() {
	c.http.Close()
}

func (c *Client) post(ctx context.Context, path string, args, ret interface{}) error {
	body, err := json.Marshal(args)
	if err != nil {
		return apierrors.NewInvalidArgument("marshal request: %v", err)
	}
	req, err := c.newRequest(ctx, http.MethodPost, path, body)
	if err != nil {
		return apierrors.NewStoreUnavailable(err)
	}
	req.Header.Set("Content-Type", rpc.MIMEJSON)
	return c.translate(c.http.DoWith(ctx, req, ret))
}

func (c *Client) newRequest(ctx context.Context, method, path string, body []byte) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.cfg.Address+path, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set(proto.ReqIdKey, uuid.NewString())
	if c.cfg.Token != "" {
		req.Header.Set("Authorization", "Bearer "+c.cfg.Token)
	}
	return req, nil
}

// translate keeps server-coded errors as they arrived and turns anything
// transport-level into StoreUnavailable.
func (c *Client) translate(err error) error {
	if err == nil {
		return nil
	}
	var he rpc.HTTPError
	if errors.As(err, &he) {
		return apierrors.NewCoded(he.StatusCode(), he.ErrorCode(), err.Error())
	}
	return apierrors.NewStoreUnavailable(err)
}
