package lib

import (
	"context"
	"crypto/tls"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"path"
	"time"

	"github.com/gravitational/trace"
	"github.com/julienschmidt/httprouter"
	log "github.com/sirupsen/logrus"
)

// HTTPConfig stores the listening socket settings of the callback server.
type HTTPConfig struct {
	Listen     string `toml:"listen"`
	KeyFile    string `toml:"https-key-file"`
	CertFile   string `toml:"https-cert-file"`
	Hostname   string `toml:"host"`
	RawBaseURL string `toml:"base-url"`

	Insecure bool
}

// HTTP is a tiny wrapper around standard net/http.
// It starts either an insecure server or a secure one with TLS, depending on
// the settings, and shuts the server down when the context is cancelled.
type HTTP struct {
	HTTPConfig
	baseURL *url.URL
	*httprouter.Router
	server http.Server
}

// BaseURL builds a base url depending on either "base-url" or "host" setting.
func (conf *HTTPConfig) BaseURL() (*url.URL, error) {
	if raw := conf.RawBaseURL; raw != "" {
		return url.Parse(raw)
	} else if host := conf.Hostname; host != "" {
		var scheme string
		if conf.Insecure {
			scheme = "http"
		} else {
			scheme = "https"
		}
		return &url.URL{
			Scheme: scheme,
			Host:   host,
		}, nil
	}
	return &url.URL{}, nil
}

// Check validates consistency of the settings.
func (conf *HTTPConfig) Check() error {
	if _, err := conf.BaseURL(); err != nil {
		return trace.Wrap(err)
	}
	if conf.KeyFile != "" && conf.CertFile == "" {
		return trace.BadParameter("https-cert-file is required when https-key-file is specified")
	}
	if conf.CertFile != "" && conf.KeyFile == "" {
		return trace.BadParameter("https-key-file is required when https-cert-file is specified")
	}
	if !conf.Insecure && conf.CertFile == "" {
		return trace.BadParameter("https-cert-file and https-key-file are required unless running with insecure-no-tls")
	}
	return nil
}

// NewHTTP creates a new HTTP wrapper.
func NewHTTP(config HTTPConfig) (*HTTP, error) {
	baseURL, err := config.BaseURL()
	if err != nil {
		return nil, trace.Wrap(err)
	}
	router := httprouter.New()

	var tlsConfig *tls.Config
	if !config.Insecure {
		tlsConfig = &tls.Config{}
	}

	return &HTTP{
		config,
		baseURL,
		router,
		http.Server{Addr: config.Listen, Handler: router, TLSConfig: tlsConfig},
	}, nil
}

// ListenAndServe runs a http(s) server on a provided port.
func (h *HTTP) ListenAndServe(ctx context.Context) error {
	defer log.Debug("HTTP server terminated")

	h.server.BaseContext = func(_ net.Listener) context.Context {
		return ctx
	}
	go func() {
		<-ctx.Done()
		h.server.Close()
	}()

	var err error
	if h.Insecure {
		log.Debugf("Starting insecure HTTP server on %s", h.Listen)
		err = h.server.ListenAndServe()
	} else {
		log.Debugf("Starting secure HTTPS server on %s", h.Listen)
		err = h.server.ListenAndServeTLS(h.CertFile, h.KeyFile)
	}
	if err == http.ErrServerClosed {
		return nil
	}
	return trace.Wrap(err)
}

// Shutdown stops the server gracefully.
func (h *HTTP) Shutdown(ctx context.Context) error {
	return h.server.Shutdown(ctx)
}

// ShutdownWithTimeout stops the server gracefully within a duration.
func (h *HTTP) ShutdownWithTimeout(ctx context.Context, duration time.Duration) error {
	ctx, cancel := context.WithTimeout(ctx, duration)
	defer cancel()

	return h.Shutdown(ctx)
}

// Close forcefully closes the server.
func (h *HTTP) Close() {
	h.server.Close()
}

// BaseURL returns an url on which the server is accessible externally.
func (h *HTTP) PublicURL() *url.URL {
	url := *h.baseURL
	return &url
}

// BuildURLPath joins and escapes the given path segments.
func BuildURLPath(args ...interface{}) string {
	var pathArgs []string
	for _, a := range args {
		var str string
		switch v := a.(type) {
		case string:
			str = v
		default:
			str = fmt.Sprint(v)
		}
		pathArgs = append(pathArgs, url.PathEscape(str))
	}
	return path.Join(pathArgs...)
}

// NewURL builds an external url for a specific path and query parameters.
func (h *HTTP) NewURL(subpath string, values url.Values) *url.URL {
	url := h.PublicURL()
	url.Path = path.Join(url.Path, subpath)

	if values != nil {
		url.RawQuery = values.Encode()
	}

	return url
}
