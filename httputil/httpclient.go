// Package httputil is a small client for JSON over HTTP services rooted at
// a base URL, such as Elasticsearch.
package httputil

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/jasonish/evecore/log"
	"github.com/pkg/errors"
)

const (
	defaultTimeout = 5 * time.Minute
	maxRedirects   = 10
)

type HttpClient struct {
	baseUrl  string
	username string
	password string
	client   *http.Client

	// Set when the server redirects, writes are sent here instead of
	// following the redirect each time.
	lock            sync.Mutex
	redirectBaseUrl string
}

func NewHttpClient() *HttpClient {
	c := &HttpClient{
		client: &http.Client{Timeout: defaultTimeout},
	}
	c.client.CheckRedirect = c.checkRedirect
	return c
}

func (c *HttpClient) SetBaseUrl(baseUrl string) {
	c.baseUrl = strings.TrimSuffix(baseUrl, "/")
}

func (c *HttpClient) DisableCertCheck(disable bool) {
	c.client.Transport = &http.Transport{
		Proxy:           http.ProxyFromEnvironment,
		TLSClientConfig: &tls.Config{InsecureSkipVerify: disable},
	}
}

// SetUsernamePassword sets basic authentication credentials, either as
// a single "username:password" argument or as two arguments.
func (c *HttpClient) SetUsernamePassword(credentials ...string) error {
	if len(credentials) == 1 {
		credentials = strings.SplitN(credentials[0], ":", 2)
	}
	if len(credentials) != 2 {
		return errors.New("credentials must be username:password")
	}
	c.username, c.password = credentials[0], credentials[1]
	return nil
}

func (c *HttpClient) checkRedirect(request *http.Request, via []*http.Request) error {
	if len(via) >= maxRedirects {
		return errors.Errorf("stopped after %d redirects", maxRedirects)
	}
	if location, err := request.Response.Location(); err == nil {
		log.Info("Updating redirect base URL to %s", location)
		c.lock.Lock()
		c.redirectBaseUrl = location.String()
		c.lock.Unlock()
	}
	return nil
}

func (c *HttpClient) urlFor(method string, path string) string {
	base := c.baseUrl
	if method == http.MethodPost || method == http.MethodPut {
		c.lock.Lock()
		if c.redirectBaseUrl != "" {
			base = c.redirectBaseUrl
		}
		c.lock.Unlock()
	}
	return base + "/" + strings.TrimPrefix(path, "/")
}

// Request sends a request to path relative to the base URL. The caller
// must close the response body.
func (c *HttpClient) Request(ctx context.Context, method string, path string,
	contentType string, body io.Reader) (*http.Response, error) {
	request, err := http.NewRequestWithContext(ctx, method, c.urlFor(method, path), body)
	if err != nil {
		return nil, errors.WithStack(err)
	}
	if contentType != "" {
		request.Header.Set("Content-Type", contentType)
	}
	if c.username != "" || c.password != "" {
		request.SetBasicAuth(c.username, c.password)
	}
	response, err := c.client.Do(request)
	if err != nil {
		return nil, errors.Wrapf(err, "%s %s", method, request.URL.Path)
	}
	return response, nil
}

// RequestJson sends body encoded as JSON.
func (c *HttpClient) RequestJson(ctx context.Context, method string, path string,
	body interface{}) (*http.Response, error) {
	buf, err := json.Marshal(body)
	if err != nil {
		return nil, errors.Wrap(err, "failed to encode request")
	}
	return c.Request(ctx, method, path, "application/json", bytes.NewReader(buf))
}

func (c *HttpClient) Head(ctx context.Context, path string) (*http.Response, error) {
	return c.Request(ctx, http.MethodHead, path, "", nil)
}

func (c *HttpClient) Get(ctx context.Context, path string) (*http.Response, error) {
	return c.Request(ctx, http.MethodGet, path, "", nil)
}

func (c *HttpClient) PostBytes(ctx context.Context, path string, contentType string,
	body []byte) (*http.Response, error) {
	return c.Request(ctx, http.MethodPost, path, contentType, bytes.NewReader(body))
}

// DiscardResponse reads and closes the response body so the connection
// can be reused.
func (c *HttpClient) DiscardResponse(response *http.Response) {
	io.Copy(io.Discard, response.Body)
	response.Body.Close()
}

// DecodeResponse decodes a JSON response body into value, closing the
// body. Numbers are decoded as json.Number.
func DecodeResponse(response *http.Response, value interface{}) error {
	defer response.Body.Close()
	decoder := json.NewDecoder(response.Body)
	decoder.UseNumber()
	return errors.Wrap(decoder.Decode(value), "failed to decode response")
}
