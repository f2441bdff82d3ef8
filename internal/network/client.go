package network

import (
	"context"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/Noooste/azuretls-client"
	"golang.org/x/net/proxy"
)

// ClientFactory creates outbound HTTP clients sharing one proxy and dial
// timeout configuration.
type ClientFactory struct {
	proxyURL       string
	connectTimeout time.Duration
	testHTTPClient *http.Client // For testing only
}

// NewClientFactory creates a factory. An empty proxyURL means direct
// connections; socks5:// and http(s):// proxies are supported.
func NewClientFactory(proxyURL string, connectTimeout time.Duration) *ClientFactory {
	return &ClientFactory{
		proxyURL:       strings.TrimSpace(proxyURL),
		connectTimeout: connectTimeout,
	}
}

// NewClientFactoryForTest creates a client factory that uses the given http.Client for testing.
func NewClientFactoryForTest(client *http.Client) *ClientFactory {
	return &ClientFactory{testHTTPClient: client}
}

// NewHTTPClient creates a standard http.Client bounded by timeout.
func (f *ClientFactory) NewHTTPClient(timeout time.Duration) *http.Client {
	if f.testHTTPClient != nil {
		return f.testHTTPClient
	}
	return &http.Client{
		Timeout:   timeout,
		Transport: f.NewHTTPTransport(),
	}
}

// NewAzureSession creates an azuretls.Session with a Chrome TLS fingerprint.
// The caller must Close it.
func (f *ClientFactory) NewAzureSession(timeout time.Duration) *azuretls.Session {
	session := azuretls.NewSession()
	session.Browser = azuretls.Chrome
	session.SetTimeout(timeout)

	if f.proxyURL != "" {
		_ = session.SetProxy(f.proxyURL)
	}

	return session
}

// ProxyURL returns the configured proxy, or "" for direct connections.
func (f *ClientFactory) ProxyURL() string {
	return f.proxyURL
}

// NewHTTPTransport creates an http.Transport with the dial timeout and proxy
// applied.
func (f *ClientFactory) NewHTTPTransport() *http.Transport {
	dialer := &net.Dialer{Timeout: f.connectTimeout, KeepAlive: 30 * time.Second}
	transport := &http.Transport{
		DialContext:           dialer.DialContext,
		TLSHandshakeTimeout:   f.connectTimeout,
		MaxIdleConnsPerHost:   4,
		IdleConnTimeout:       90 * time.Second,
		ExpectContinueTimeout: time.Second,
	}
	if f.proxyURL == "" {
		return transport
	}

	parsed, err := url.Parse(f.proxyURL)
	if err != nil {
		return transport
	}

	// SOCKS proxies go through golang.org/x/net/proxy; HTTP(S) proxies use
	// the standard Proxy hook.
	if strings.HasPrefix(parsed.Scheme, "socks") {
		var auth *proxy.Auth
		if parsed.User != nil {
			auth = &proxy.Auth{User: parsed.User.Username()}
			if password, ok := parsed.User.Password(); ok {
				auth.Password = password
			}
		}

		socks, err := proxy.SOCKS5("tcp", parsed.Host, auth, dialer)
		if err != nil {
			return transport
		}
		if ctxDialer, ok := socks.(proxy.ContextDialer); ok {
			transport.DialContext = ctxDialer.DialContext
		} else {
			transport.DialContext = func(_ context.Context, network, addr string) (net.Conn, error) {
				return socks.Dial(network, addr)
			}
		}
		return transport
	}

	transport.Proxy = http.ProxyURL(parsed)
	return transport
}
