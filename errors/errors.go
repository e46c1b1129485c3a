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

package errors

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/cubefs/cubefs/blobstore/common/rpc"
)

// Error codes travel on the wire next to the message so the client proxy can
// rebuild the same error kind a direct in-process call would return.
const (
	CodeInvalidEntityValue      = "InvalidEntityValue"
	CodeInvalidFeatureReference = "InvalidFeatureReference"
	CodeFeatureViewNotFound     = "FeatureViewNotFound"
	CodeEntityNotFound          = "EntityNotFound"
	CodePushSourceNotFound      = "PushSourceNotFound"
	CodePermissionDenied        = "PermissionDenied"
	CodeStoreUnavailable        = "StoreUnavailable"
	CodeInvalidArgument         = "InvalidArgument"
	CodeTooManyRequests         = "TooManyRequests"
)

var ErrUnknownPolicyKind = errors.New("unknown policy kind")

func NewInvalidEntityValue(format string, args ...interface{}) *rpc.Error {
	return rpc.NewError(http.StatusBadRequest, CodeInvalidEntityValue, fmt.Errorf(format, args...))
}

func NewInvalidFeatureReference(ref string) *rpc.Error {
	return rpc.NewError(http.StatusBadRequest, CodeInvalidFeatureReference,
		fmt.Errorf("invalid feature reference %q, expect \"featureview:feature\"", ref))
}

func NewFeatureViewNotFound(name string) *rpc.Error {
	return rpc.NewError(http.StatusNotFound, CodeFeatureViewNotFound,
		fmt.Errorf("Feature view %s does not exist", name))
}

func NewEntityNotFound(name string) *rpc.Error {
	return rpc.NewError(http.StatusNotFound, CodeEntityNotFound,
		fmt.Errorf("Entity %s does not exist", name))
}

func NewPushSourceNotFound(name string) *rpc.Error {
	return rpc.NewError(http.StatusNotFound, CodePushSourceNotFound,
		fmt.Errorf("Push source %s does not exist", name))
}

func NewPermissionDenied(resource, action string) *rpc.Error {
	return rpc.NewError(http.StatusForbidden, CodePermissionDenied,
		fmt.Errorf("permission denied: action %s on resource %s", action, resource))
}

func NewStoreUnavailable(err error) *rpc.Error {
	return rpc.NewError(http.StatusServiceUnavailable, CodeStoreUnavailable,
		fmt.Errorf("online store unavailable: %v", err))
}

func NewTooManyRequests(err error) *rpc.Error {
	return rpc.NewError(http.StatusTooManyRequests, CodeTooManyRequests, err)
}

func NewInvalidArgument(format string, args ...interface{}) *rpc.Error {
	return rpc.NewError(http.StatusBadRequest, CodeInvalidArgument, fmt.Errorf(format, args...))
}

// NewCoded rebuilds a wire error verbatim on the client side.
func NewCoded(status int, code, msg string) *rpc.Error {
	return rpc.NewError(status, code, errors.New(msg))
}

func Code(err error) string {
	var he rpc.HTTPError
	if errors.As(err, &he) {
		return he.ErrorCode()
	}
	return ""
}

func IsCode(err error, code string) bool {
	return err != nil && Code(err) == code
}
