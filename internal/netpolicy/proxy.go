package netpolicy

import (
	"fmt"
	"net/http"
	"strings"
	"sync"

	"github.com/elazarl/goproxy"

	"sandboxctl/internal/logging"
)

// EgressProxy is the in-process forward proxy sandbox containers route
// through. Bound to a sandbox's internal network gateway IP, it is the
// only path out of that network: HandleConnect and every plain-HTTP
// request are evaluated against an Allowlist, default deny.
type EgressProxy struct {
	proxy     *goproxy.ProxyHttpServer
	allowlist Allowlist
	logger    *logging.ComponentLogger

	mu     sync.Mutex
	server *http.Server
}

// NewEgressProxy builds a forward proxy enforcing allowlist.
func NewEgressProxy(allowlist Allowlist, logger *logging.ComponentLogger) *EgressProxy {
	p := &EgressProxy{
		proxy:     goproxy.NewProxyHttpServer(),
		allowlist: allowlist,
		logger:    logger,
	}
	p.setupPolicy()
	return p
}

// setupPolicy wires the allowlist check into both the CONNECT path
// (HTTPS) and the plain-request path (HTTP), rejecting anything that
// does not match before any bytes reach the destination.
func (p *EgressProxy) setupPolicy() {
	p.proxy.OnRequest().HandleConnect(goproxy.FuncHttpsHandler(func(host string, ctx *goproxy.ProxyCtx) (*goproxy.ConnectAction, string) {
		allowed := p.allowlist.Allows(stripPort(host))
		p.logDecision("CONNECT", host, allowed)
		if allowed {
			return goproxy.OkConnect, host
		}
		return goproxy.RejectConnect, host
	}))

	p.proxy.OnRequest().DoFunc(func(req *http.Request, ctx *goproxy.ProxyCtx) (*http.Request, *http.Response) {
		host := stripPort(req.Host)
		if p.allowlist.Allows(host) {
			p.logDecision("HTTP", req.Host, true)
			return req, nil
		}
		p.logDecision("HTTP", req.Host, false)
		return req, goproxy.NewResponse(req, goproxy.ContentTypeText, http.StatusForbidden,
			fmt.Sprintf("sandboxctl: egress to %s denied by allowlist\n", host))
	})
}

func (p *EgressProxy) logDecision(kind, host string, allowed bool) {
	if p.logger == nil {
		return
	}
	if allowed {
		p.logger.Infof("%s %s: allowed", kind, host)
	} else {
		p.logger.Warnf("%s %s: denied (not in allowlist)", kind, host)
	}
}

// ListenAndServe binds the proxy to addr (typically the sandbox network's
// gateway IP, port 3128) and serves until Close is called.
func (p *EgressProxy) ListenAndServe(addr string) error {
	p.mu.Lock()
	p.server = &http.Server{Addr: addr, Handler: p.proxy}
	server := p.server
	p.mu.Unlock()

	err := server.ListenAndServe()
	if err == http.ErrServerClosed {
		return nil
	}
	return err
}

// Close shuts the proxy server down.
func (p *EgressProxy) Close() error {
	p.mu.Lock()
	server := p.server
	p.mu.Unlock()
	if server == nil {
		return nil
	}
	return server.Close()
}

func stripPort(hostport string) string {
	if idx := strings.LastIndex(hostport, ":"); idx != -1 {
		return hostport[:idx]
	}
	return hostport
}
