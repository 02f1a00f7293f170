package source

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
	"unicode/utf16"
	"unicode/utf8"

	"github.com/goccy/go-json"
	"golang.org/x/oauth2"

	"github.com/trunov/assethub/internal/config"
	"github.com/trunov/assethub/internal/entities"
)

const (
	defaultDropboxAPI     = "https://api.dropboxapi.com"
	defaultDropboxContent = "https://content.dropboxapi.com"
)

// Dropbox talks to the Dropbox v2 HTTP API with either a long lived access
// token or a refresh token exchanged for short lived ones.
type Dropbox struct {
	apiBase     string
	contentBase string
	client      *http.Client
	tokens      oauth2.TokenSource
}

type apiError struct {
	Endpoint string
	Status   int
	Summary  string
}

func (e *apiError) Error() string {
	return fmt.Sprintf("dropbox: %s: status %d: %s", e.Endpoint, e.Status, e.Summary)
}

func (e *apiError) notFound() bool {
	return e.Status == http.StatusConflict && strings.Contains(e.Summary, "not_found")
}

func NewDropbox(cfg *config.SourceConfig, client *http.Client) *Dropbox {
	if client == nil {
		// redirects (shared links, storage nodes) are followed by the default policy
		client = &http.Client{}
	}
	d := &Dropbox{
		apiBase:     strings.TrimRight(cfg.APIBaseURL, "/"),
		contentBase: strings.TrimRight(cfg.ContentBaseURL, "/"),
	}
	if d.apiBase == "" {
		d.apiBase = defaultDropboxAPI
	}
	if d.contentBase == "" {
		d.contentBase = defaultDropboxContent
	}

	// token refreshes go through the same base client
	ctx := context.WithValue(context.Background(), oauth2.HTTPClient, client)
	switch {
	case cfg.RefreshToken != "":
		conf := &oauth2.Config{
			ClientID:     cfg.AppKey,
			ClientSecret: cfg.AppSecret,
			Endpoint: oauth2.Endpoint{
				TokenURL:  d.apiBase + "/oauth2/token",
				AuthStyle: oauth2.AuthStyleInHeader,
			},
		}
		d.tokens = oauth2.ReuseTokenSourceWithExpiry(nil,
			conf.TokenSource(ctx, &oauth2.Token{RefreshToken: cfg.RefreshToken}), time.Minute)
	case cfg.AccessToken != "":
		d.tokens = oauth2.StaticTokenSource(&oauth2.Token{AccessToken: cfg.AccessToken})
	default:
		d.tokens = missingToken{}
	}

	d.client = oauth2.NewClient(ctx, d.tokens)
	d.client.Timeout = client.Timeout
	d.client.CheckRedirect = client.CheckRedirect
	return d
}

type missingToken struct{}

func (missingToken) Token() (*oauth2.Token, error) {
	return nil, errors.New("dropbox: no access token configured")
}

type listFolderRequest struct {
	Path           string `json:"path"`
	Recursive      bool   `json:"recursive"`
	IncludeDeleted bool   `json:"include_deleted"`
}

type listFolderContinueRequest struct {
	Cursor string `json:"cursor"`
}

type listFolderResponse struct {
	Entries []dropboxEntry `json:"entries"`
	Cursor  string         `json:"cursor"`
	HasMore bool           `json:"has_more"`
}

type dropboxEntry struct {
	Tag            string    `json:".tag"`
	Name           string    `json:"name"`
	PathLower      string    `json:"path_lower"`
	PathDisplay    string    `json:"path_display"`
	ContentHash    string    `json:"content_hash"`
	ServerModified time.Time `json:"server_modified"`
	Size           int64     `json:"size"`
}

type pathArg struct {
	Path string `json:"path"`
}

// List returns the image files directly inside folder, following pagination.
func (d *Dropbox) List(ctx context.Context, folder string) ([]entities.SourceFile, error) {
	if folder == "/" {
		// the API addresses the root as ""
		folder = ""
	}

	var page listFolderResponse
	if err := d.rpc(ctx, "files/list_folder", listFolderRequest{Path: folder}, &page); err != nil {
		return nil, err
	}

	var out []entities.SourceFile
	for {
		for _, e := range page.Entries {
			if e.Tag != "file" || !IsImage(e.Name) {
				continue
			}
			p := e.PathDisplay
			if p == "" {
				p = e.PathLower
			}
			out = append(out, entities.SourceFile{
				Path:        p,
				Name:        e.Name,
				Size:        e.Size,
				ContentHash: e.ContentHash,
				ModifiedAt:  e.ServerModified,
			})
		}
		if !page.HasMore {
			return out, nil
		}

		cursor := page.Cursor
		page = listFolderResponse{}
		if err := d.rpc(ctx, "files/list_folder/continue", listFolderContinueRequest{Cursor: cursor}, &page); err != nil {
			return nil, err
		}
	}
}

// Fetch streams the file content. The caller closes the reader.
func (d *Dropbox) Fetch(ctx context.Context, p string) (io.ReadCloser, error) {
	arg, err := headerJSON(pathArg{Path: p})
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, d.contentBase+"/2/files/download", nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Dropbox-API-Arg", arg)

	resp, err := d.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("dropbox: files/download: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		defer resp.Body.Close()
		apiErr := readAPIError("files/download", resp)
		if apiErr.notFound() {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, apiErr.Error())
		}
		return nil, apiErr
	}
	return resp.Body, nil
}

// Delete removes the file. A file that is already gone counts as deleted.
func (d *Dropbox) Delete(ctx context.Context, p string) error {
	err := d.rpc(ctx, "files/delete_v2", pathArg{Path: p}, nil)
	var apiErr *apiError
	if errors.As(err, &apiErr) && apiErr.notFound() {
		return nil
	}
	return err
}

func (d *Dropbox) rpc(ctx context.Context, endpoint string, in any, out any) error {
	body, err := json.Marshal(in)
	if err != nil {
		return fmt.Errorf("dropbox: %s: encode request: %w", endpoint, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, d.apiBase+"/2/"+endpoint, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := d.client.Do(req)
	if err != nil {
		return fmt.Errorf("dropbox: %s: %w", endpoint, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return readAPIError(endpoint, resp)
	}
	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("dropbox: %s: decode response: %w", endpoint, err)
	}
	return nil
}

func readAPIError(endpoint string, resp *http.Response) *apiError {
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	summary := strings.TrimSpace(string(raw))

	var payload struct {
		ErrorSummary string `json:"error_summary"`
	}
	if json.Unmarshal(raw, &payload) == nil && payload.ErrorSummary != "" {
		summary = payload.ErrorSummary
	}
	return &apiError{Endpoint: endpoint, Status: resp.StatusCode, Summary: summary}
}

// headerJSON encodes v for the Dropbox-API-Arg header, which must be ASCII.
func headerJSON(v any) (string, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return "", err
	}
	var b strings.Builder
	for _, r := range string(raw) {
		if r < utf8.RuneSelf {
			b.WriteRune(r)
			continue
		}
		if r > 0xFFFF {
			r1, r2 := utf16.EncodeRune(r)
			fmt.Fprintf(&b, `\u%04x\u%04x`, r1, r2)
			continue
		}
		fmt.Fprintf(&b, `\u%04x`, r)
	}
	return b.String(), nil
}
