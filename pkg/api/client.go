package api

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"strings"

	"github.com/cockroachdb/errors"

	"github.com/housecat-inc/qtex/pkg/bundle"
	"github.com/housecat-inc/qtex/pkg/version"
)

const DefaultURL = "https://latex.taptapp.xyz"

type Client struct {
	HTTP *http.Client
	URL  string
}

func NewClient(url string) *Client {
	if url == "" {
		url = DefaultURL
	}
	return &Client{HTTP: http.DefaultClient, URL: strings.TrimRight(url, "/")}
}

// Compile uploads the bundle and returns the PDF. A non-2xx reply fails with
// the response body as the error message.
func (c *Client) Compile(ctx context.Context, files []bundle.File) (CompileOut, error) {
	res, err := c.post(ctx, "/compile", files)
	if err != nil {
		return CompileOut{}, err
	}
	defer res.Body.Close()

	if res.StatusCode < 200 || res.StatusCode > 299 {
		return CompileOut{}, remoteError("compile", res)
	}

	pdf, err := io.ReadAll(res.Body)
	if err != nil {
		return CompileOut{}, errors.Wrap(err, "read pdf")
	}
	return CompileOut{
		CompileTime:   headerOr(res, "x-compile-time-ms", "?"),
		FilesReceived: headerOr(res, "x-files-received", ""),
		PDF:           pdf,
	}, nil
}

func (c *Client) Validate(ctx context.Context, files []bundle.File) (ValidateOut, error) {
	res, err := c.post(ctx, "/validate", files)
	if err != nil {
		return ValidateOut{}, err
	}
	defer res.Body.Close()

	if res.StatusCode < 200 || res.StatusCode > 299 {
		return ValidateOut{}, remoteError("validate", res)
	}

	var out ValidateOut
	if err := json.NewDecoder(res.Body).Decode(&out); err != nil {
		return ValidateOut{}, errors.Wrap(err, "decode")
	}
	return out, nil
}

func (c *Client) post(ctx context.Context, path string, files []bundle.File) (*http.Response, error) {
	body, contentType, err := encode(files)
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.URL+path, body)
	if err != nil {
		return nil, errors.Wrap(err, "request")
	}
	req.Header.Set("Content-Type", contentType)
	req.Header.Set("User-Agent", version.UserAgent())

	res, err := c.HTTP.Do(req)
	if err != nil {
		return nil, errors.Wrap(err, "post")
	}
	return res, nil
}

func encode(files []bundle.File) (io.Reader, string, error) {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	for _, f := range files {
		part, err := w.CreateFormFile("files", f.Name)
		if err != nil {
			return nil, "", errors.Wrapf(err, "form file %s", f.Name)
		}
		if _, err := part.Write(f.Data); err != nil {
			return nil, "", errors.Wrapf(err, "write %s", f.Name)
		}
	}
	if err := w.Close(); err != nil {
		return nil, "", errors.Wrap(err, "close form")
	}
	return &buf, w.FormDataContentType(), nil
}

func remoteError(op string, res *http.Response) error {
	body, _ := io.ReadAll(res.Body)
	msg := string(body)
	if strings.TrimSpace(msg) == "" {
		return errors.Newf("%s failed: %s", op, res.Status)
	}
	return errors.WithDetailf(errors.New(msg), "%s: %s", op, res.Status)
}

func headerOr(res *http.Response, key, fallback string) string {
	if v := res.Header.Get(key); v != "" {
		return v
	}
	return fallback
}
