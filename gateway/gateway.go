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

// Package gateway is the sole path to Drive metadata, media and deletion
// (C1). No exceptions cross this boundary: every call returns an error
// describing what went wrong instead of panicking or emitting to Drive's
// own error types directly into the rest of GDS.
package gateway

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	drive "google.golang.org/api/drive/v3"
	"google.golang.org/api/option"

	"github.com/odeke-em/statos"

	"github.com/wukunhuan/gds/config"
	"github.com/wukunhuan/gds/gerrors"
	"github.com/wukunhuan/gds/model"
	"github.com/wukunhuan/gds/weburl"
)

// DriveScope is the OAuth 2.0 scope GDS requests; full Drive access is
// required because the upload orchestrator both reads and writes.
const DriveScope = "https://www.googleapis.com/auth/drive"

// RedirectURL is the OOB redirect used during the (out-of-scope) credential
// setup flow; kept here only so the oauth2.Config shape matches what that
// flow writes into config.Context.
const RedirectURL = "urn:ietf:wg:oauth:2.0:oob"

const fieldsList = "nextPageToken, files(id, name, mimeType, size, modifiedTime, parents)"
const fieldsGet = "id, name, mimeType, size, modifiedTime, parents"

// DriveAPI is the interface the rest of GDS programs against; Gateway is
// its only production implementation. Defined as an interface per §9's
// "layered interfaces" redesign note, so resolver/listing/cache tests can
// substitute a fake.
type DriveAPI interface {
	ListChildren(ctx context.Context, folderId string, max int) ([]*model.ListingEntry, error)
	GetMedia(ctx context.Context, fileId string) (io.ReadCloser, error)
	Delete(ctx context.Context, fileId string) error
	Get(ctx context.Context, fileId string) (*model.ListingEntry, error)
	Parents(ctx context.Context, fileId string) ([]string, error)
}

// Gateway wraps a single *drive.Service the way the teacher's Remote wraps
// *drive.Service in src/remote.go; progressChan mirrors Remote's own
// progress-reporting channel for long downloads.
type Gateway struct {
	client       *http.Client
	service      *drive.Service
	progressChan chan int64
}

// New builds a Gateway from an oauth-capable config.Context, exactly as
// NewRemoteContext builds a Remote from a *config.Context in the teacher.
func New(ctx context.Context, cc *config.Context) (*Gateway, error) {
	client := newOAuthClient(ctx, cc)
	service, err := drive.NewService(ctx, option.WithHTTPClient(client))
	if err != nil {
		return nil, gerrors.ProviderError(fmt.Errorf("gateway: creating drive service: %w", err))
	}
	return &Gateway{
		client:       client,
		service:      service,
		progressChan: make(chan int64),
	}, nil
}

func newAuthConfig(cc *config.Context) *oauth2.Config {
	return &oauth2.Config{
		ClientID:     cc.ClientId,
		ClientSecret: cc.ClientSecret,
		RedirectURL:  RedirectURL,
		Endpoint:     google.Endpoint,
		Scopes:       []string{DriveScope},
	}
}

func newOAuthClient(ctx context.Context, cc *config.Context) *http.Client {
	conf := newAuthConfig(cc)
	token := &oauth2.Token{
		RefreshToken: cc.RefreshToken,
		Expiry:       time.Now().Add(time.Hour),
	}
	return conf.Client(ctx, token)
}

func classify(mimeType string) model.Kind {
	switch mimeType {
	case model.DriveFolderMimeType:
		return model.KindFolder
	case "application/vnd.google-apps.document":
		return model.KindDoc
	case "application/vnd.google-apps.spreadsheet":
		return model.KindSheet
	case "application/vnd.google-apps.presentation":
		return model.KindSlide
	case "application/vnd.google.colaboratory":
		return model.KindNotebook
	default:
		return model.KindFile
	}
}

func toEntry(f *drive.File) *model.ListingEntry {
	entry := &model.ListingEntry{
		Name:     f.Name,
		Id:       f.Id,
		Kind:     classify(f.MimeType),
		MimeType: f.MimeType,
		Size:     f.Size,
	}
	if f.ModifiedTime != "" {
		if t, err := time.Parse(time.RFC3339, f.ModifiedTime); err == nil {
			entry.ModifiedTime = t
		}
	}
	entry.WebUrl = weburl.Of(entry.Kind, entry.Id)
	return entry
}

// ListChildren lists a folder's immediate children (§4.2 "list_children").
// max<=0 requests the provider's full unpaginated listing.
func (g *Gateway) ListChildren(ctx context.Context, folderId string, max int) ([]*model.ListingEntry, error) {
	q := fmt.Sprintf("'%s' in parents and trashed = false", folderId)
	call := g.service.Files.List().Q(q).Fields(drive.Field(fieldsList)).Context(ctx)
	if max > 0 {
		call = call.PageSize(int64(max))
	} else {
		call = call.PageSize(1000)
	}

	var entries []*model.ListingEntry
	pageToken := ""
	for {
		if pageToken != "" {
			call = call.PageToken(pageToken)
		}
		res, err := call.Do()
		if err != nil {
			return nil, gerrors.ProviderError(fmt.Errorf("gateway: list %q: %w", folderId, err))
		}
		for _, f := range res.Files {
			entries = append(entries, toEntry(f))
		}
		pageToken = res.NextPageToken
		if pageToken == "" || (max > 0 && len(entries) >= max) {
			break
		}
	}
	if max > 0 && len(entries) > max {
		entries = entries[:max]
	}
	return entries, nil
}

// GetMedia downloads a file's content (§4.2 "get_media"). The returned
// reader is wrapped with statos so callers can observe download progress,
// using NewReadCloser (not NewReader) since it must satisfy io.ReadCloser.
func (g *Gateway) GetMedia(ctx context.Context, fileId string) (io.ReadCloser, error) {
	resp, err := g.service.Files.Get(fileId).Context(ctx).Download()
	if err != nil {
		return nil, gerrors.ProviderError(fmt.Errorf("gateway: get_media %q: %w", fileId, err))
	}
	return statos.NewReadCloser(resp.Body), nil
}

// Delete removes a file by id (§4.2 "delete").
func (g *Gateway) Delete(ctx context.Context, fileId string) error {
	if err := g.service.Files.Delete(fileId).Context(ctx).Do(); err != nil {
		return gerrors.ProviderError(fmt.Errorf("gateway: delete %q: %w", fileId, err))
	}
	return nil
}

// Get fetches metadata for a single file (§4.2 "get").
func (g *Gateway) Get(ctx context.Context, fileId string) (*model.ListingEntry, error) {
	f, err := g.service.Files.Get(fileId).Fields(drive.Field(fieldsGet)).Context(ctx).Do()
	if err != nil {
		return nil, gerrors.ProviderError(fmt.Errorf("gateway: get %q: %w", fileId, err))
	}
	return toEntry(f), nil
}

// Parents returns a file's parent folder ids, used by the Path Resolver to
// implement `..` (§4.1: "ask the Drive API Gateway for the current node's
// parents and pick the first").
func (g *Gateway) Parents(ctx context.Context, fileId string) ([]string, error) {
	f, err := g.service.Files.Get(fileId).Fields("parents").Context(ctx).Do()
	if err != nil {
		return nil, gerrors.ProviderError(fmt.Errorf("gateway: parents %q: %w", fileId, err))
	}
	return f.Parents, nil
}

var _ DriveAPI = (*Gateway)(nil)
