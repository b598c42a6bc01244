package httpclient

import (
	"fmt"
	"net"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/postflow-ai/postflow/internal/pkg/circuitbreaker"
)

type Config struct {
	MaxIdleConns        int
	MaxIdleConnsPerHost int
	MaxConnsPerHost     int
	IdleConnTimeout     time.Duration
	TLSHandshakeTimeout time.Duration
	ResponseTimeout     time.Duration
	KeepAlive           time.Duration
	Breaker             circuitbreaker.Config
}

func DefaultConfig() Config {
	return Config{
		MaxIdleConns:        100,
		MaxIdleConnsPerHost: 10,
		MaxConnsPerHost:     100,
		IdleConnTimeout:     90 * time.Second,
		TLSHandshakeTimeout: 10 * time.Second,
		ResponseTimeout:     30 * time.Second,
		KeepAlive:           30 * time.Second,
		Breaker: circuitbreaker.Config{
			MaxRequests:      3,
			Interval:         60 * time.Second,
			Timeout:          30 * time.Second,
			FailureThreshold: 5,
			SuccessThreshold: 2,
		},
	}
}

// PooledClient keeps one transport per egress proxy and one circuit
// breaker per destination host. 5xx responses and transport errors count
// as breaker failures.
type PooledClient struct {
	config   Config
	breakers *circuitbreaker.Manager

	mu      sync.Mutex
	clients map[string]*http.Client
}

func NewPooledClient(config Config) *PooledClient {
	return &PooledClient{
		config:   config,
		breakers: circuitbreaker.NewManager(config.Breaker),
		clients:  make(map[string]*http.Client),
	}
}

// client returns the shared client for proxyURL ("" means direct).
func (p *PooledClient) client(proxyURL string) (*http.Client, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if c, ok := p.clients[proxyURL]; ok {
		return c, nil
	}

	proxy := http.ProxyFromEnvironment
	if proxyURL != "" {
		u, err := url.Parse(proxyURL)
		if err != nil {
			return nil, fmt.Errorf("invalid proxy url: %w", err)
		}
		proxy = http.ProxyURL(u)
	}

	transport := &http.Transport{
		Proxy: proxy,
		DialContext: (&net.Dialer{
			Timeout:   30 * time.Second,
			KeepAlive: p.config.KeepAlive,
		}).DialContext,
		MaxIdleConns:        p.config.MaxIdleConns,
		MaxIdleConnsPerHost: p.config.MaxIdleConnsPerHost,
		MaxConnsPerHost:     p.config.MaxConnsPerHost,
		IdleConnTimeout:     p.config.IdleConnTimeout,
		TLSHandshakeTimeout: p.config.TLSHandshakeTimeout,
		ForceAttemptHTTP2:   true,
	}

	c := &http.Client{
		Transport: transport,
		Timeout:   p.config.ResponseTimeout,
	}
	p.clients[proxyURL] = c
	return c, nil
}

// DoVia sends req through the given proxy.
func (p *PooledClient) DoVia(req *http.Request, proxyURL string) (*http.Response, error) {
	c, err := p.client(proxyURL)
	if err != nil {
		return nil, err
	}

	done, err := p.breakers.Get(req.URL.Host).Allow()
	if err != nil {
		return nil, err
	}

	resp, err := c.Do(req)
	done(err == nil && resp.StatusCode < http.StatusInternalServerError)
	return resp, err
}

func (p *PooledClient) CircuitStates() map[string]circuitbreaker.State {
	return p.breakers.States()
}

func (p *PooledClient) CloseIdleConnections() {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, c := range p.clients {
		c.CloseIdleConnections()
	}
}
