// Copyright 2013 Google Inc. All Rights Reserved.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//      http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package gerrors defines the tagged error taxonomy shared by every GDS
// component, so a caller can switch on Kind without string-matching.
package gerrors

import "strings"

type Kind int

const (
	KindGeneric Kind = iota
	KindPathNotFound
	KindNameCollision
	KindStagingFailure
	KindSyncTimeout
	KindRemoteExecFailure
	KindVerifyMiss
	KindProviderError
	KindSyntaxError
	KindUserCancel
	KindCacheInconsistency
)

func (k Kind) String() string {
	switch k {
	case KindPathNotFound:
		return "PathNotFound"
	case KindNameCollision:
		return "NameCollision"
	case KindStagingFailure:
		return "StagingFailure"
	case KindSyncTimeout:
		return "SyncTimeout"
	case KindRemoteExecFailure:
		return "RemoteExecFailure"
	case KindVerifyMiss:
		return "VerifyMiss"
	case KindProviderError:
		return "ProviderError"
	case KindSyntaxError:
		return "SyntaxError"
	case KindUserCancel:
		return "UserCancel"
	case KindCacheInconsistency:
		return "CacheInconsistency"
	default:
		return "Generic"
	}
}

// Error is the single error type returned by every GDS operation that can
// fail in a classified way. It wraps an optional underlying error and an
// optional human-readable suggestion (e.g. "use --force").
type Error struct {
	kind       Kind
	status     string
	suggestion string
	err        error
}

func (e *Error) Error() string {
	var joins []string
	if e.status != "" {
		joins = append(joins, e.status)
	}
	if e.err != nil {
		joins = append(joins, e.err.Error())
	}
	if e.suggestion != "" {
		joins = append(joins, e.suggestion)
	}
	return strings.Join(joins, " ")
}

func (e *Error) Unwrap() error { return e.err }

func (e *Error) Kind() Kind { return e.kind }

func (e *Error) Suggestion() string { return e.suggestion }

func make(kind Kind, err error) *Error {
	return &Error{kind: kind, err: err}
}

func makeWithStatus(kind Kind, status string, err error) *Error {
	e := make(kind, err)
	e.status = status
	return e
}

// WithSuggestion attaches a short actionable line (§7 "print a short
// actionable line") to an existing classified error.
func (e *Error) WithSuggestion(s string) *Error {
	e.suggestion = s
	return e
}

func Generic(err error) *Error             { return make(KindGeneric, err) }
func PathNotFound(err error) *Error        { return make(KindPathNotFound, err) }
func NameCollision(err error) *Error       { return make(KindNameCollision, err) }
func StagingFailure(err error) *Error      { return make(KindStagingFailure, err) }
func SyncTimeout(err error) *Error         { return make(KindSyncTimeout, err) }
func RemoteExecFailure(err error) *Error   { return make(KindRemoteExecFailure, err) }
func VerifyMiss(err error) *Error          { return make(KindVerifyMiss, err) }
func ProviderError(err error) *Error       { return make(KindProviderError, err) }
func SyntaxError(err error) *Error         { return make(KindSyntaxError, err) }
func UserCancel(err error) *Error          { return make(KindUserCancel, err) }
func CacheInconsistency(err error) *Error  { return make(KindCacheInconsistency, err) }

func WithStatus(kind Kind, status string, err error) *Error {
	return makeWithStatus(kind, status, err)
}

// KindOf reports the Kind of err if it is (or wraps) a *Error, else
// KindGeneric and false.
func KindOf(err error) (Kind, bool) {
	for err != nil {
		if ce, ok := err.(*Error); ok {
			return ce.kind, true
		}
		u, ok := err.(interface{ Unwrap() error })
		if !ok {
			break
		}
		err = u.Unwrap()
	}
	return KindGeneric, false
}

// Is reports whether err is classified as kind.
func Is(err error, kind Kind) bool {
	k, ok := KindOf(err)
	return ok && k == kind
}
