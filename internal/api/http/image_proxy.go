package apihttp

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/netip"
	"net/url"
	"slices"
	"strings"
	"syscall"
	"time"

	"pricescout/searchservice/internal/providers/common"
)

const (
	maxProxiedImageBytes = int64(10 << 20)
	imageSniffBytes      = 512
	maxImageRedirects    = 5
)

// Hostnames of sibling containers in the compose setup.
var blockedProxyHosts = []string{"localhost", "redis", "pricescout", "otel-collector", "jaeger", "prometheus"}

var blockedProxySuffixes = []string{".local", ".localhost", ".internal"}

var errBlockedHost = errors.New("blocked url host")

// imageProxyError maps a failed proxy step onto the API error envelope.
type imageProxyError struct {
	status  int
	code    string
	message string
}

func (e *imageProxyError) Error() string { return e.message }

func badImageRequest(message string) *imageProxyError {
	return &imageProxyError{status: http.StatusBadRequest, code: "invalid_request", message: message}
}

func badImageUpstream(message string) *imageProxyError {
	return &imageProxyError{status: http.StatusBadGateway, code: "upstream_error", message: message}
}

// handleImageProxy relays offer thumbnails so the browser never talks to
// storefront CDNs directly.
func (s *Server) handleImageProxy(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/api/image" {
		http.NotFound(w, r)
		return
	}
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	target, perr := parseImageTarget(r.Context(), r.URL.Query().Get("url"))
	if perr == nil {
		perr = s.relayImage(r.Context(), w, target)
	}
	if perr != nil {
		writeError(w, perr.status, perr.code, perr.message)
	}
}

func parseImageTarget(ctx context.Context, raw string) (*url.URL, *imageProxyError) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, badImageRequest("missing url")
	}
	target, err := url.Parse(raw)
	if err != nil {
		return nil, badImageRequest("invalid url")
	}
	if err := checkImageURL(ctx, target); err != nil {
		return nil, badImageRequest(err.Error())
	}
	return target, nil
}

// relayImage streams the upstream body once the first bytes look like an
// image. Nothing is written to w when an error is returned.
func (s *Server) relayImage(ctx context.Context, w http.ResponseWriter, target *url.URL) *imageProxyError {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target.String(), nil)
	if err != nil {
		return badImageRequest("invalid url")
	}
	req.Header.Set("User-Agent", common.DefaultUserAgent)
	req.Header.Set("Accept", "image/avif,image/webp,image/*;q=0.8")
	// Storefront CDNs reject hotlinked thumbnails without a same-site referer.
	req.Header.Set("Referer", (&url.URL{Scheme: target.Scheme, Host: target.Host, Path: "/"}).String())

	resp, err := s.imageClient.Do(req)
	if err != nil {
		return badImageUpstream("failed to fetch image")
	}
	defer resp.Body.Close()

	if resp.StatusCode/100 != 2 {
		return badImageUpstream(fmt.Sprintf("upstream returned HTTP %d", resp.StatusCode))
	}
	if resp.ContentLength > maxProxiedImageBytes {
		return &imageProxyError{status: http.StatusRequestEntityTooLarge, code: "invalid_request", message: "image too large"}
	}

	body := io.LimitReader(resp.Body, maxProxiedImageBytes)
	sniff := make([]byte, imageSniffBytes)
	n, err := io.ReadFull(body, sniff)
	if err != nil && !errors.Is(err, io.ErrUnexpectedEOF) && !errors.Is(err, io.EOF) {
		return badImageUpstream("failed to read image")
	}
	sniff = sniff[:n]

	contentType := imageContentType(resp.Header.Get("Content-Type"), sniff)
	if contentType == "" {
		return badImageUpstream("not an image")
	}

	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Cache-Control", "public, max-age=3600")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(sniff)
	_, _ = io.Copy(w, body)
	return nil
}

// imageContentType returns the declared type, or the sniffed one when the
// upstream sent none, and "" when the payload is not an image.
func imageContentType(declared string, sniff []byte) string {
	contentType := strings.TrimSpace(declared)
	if contentType == "" {
		contentType = http.DetectContentType(sniff)
	}
	if !strings.HasPrefix(strings.ToLower(contentType), "image/") {
		return ""
	}
	return contentType
}

func newImageProxyClient() *http.Client {
	dialer := &net.Dialer{
		Timeout:   8 * time.Second,
		KeepAlive: 30 * time.Second,
		// Re-check the resolved address at connect time so a DNS answer that
		// changes after validation cannot reach an internal host.
		Control: func(_, address string, _ syscall.RawConn) error {
			addrPort, err := netip.ParseAddrPort(address)
			if err != nil {
				return err
			}
			if isBlockedAddr(addrPort.Addr()) {
				return errBlockedHost
			}
			return nil
		},
	}
	transport := http.DefaultTransport.(*http.Transport).Clone()
	transport.Proxy = nil
	transport.DialContext = dialer.DialContext

	return &http.Client{
		Timeout:   12 * time.Second,
		Transport: transport,
		CheckRedirect: func(req *http.Request, via []*http.Request) error {
			if len(via) >= maxImageRedirects {
				return fmt.Errorf("stopped after %d redirects", maxImageRedirects)
			}
			return checkImageURL(req.Context(), req.URL)
		},
	}
}

// checkImageURL accepts public http(s) targets only.
func checkImageURL(ctx context.Context, u *url.URL) error {
	if u == nil {
		return errors.New("invalid url")
	}
	switch strings.ToLower(u.Scheme) {
	case "http", "https":
	default:
		return errors.New("unsupported url scheme")
	}
	host := strings.ToLower(strings.TrimSpace(u.Hostname()))
	if host == "" {
		return errors.New("invalid url host")
	}
	if slices.Contains(blockedProxyHosts, host) {
		return errBlockedHost
	}
	for _, suffix := range blockedProxySuffixes {
		if strings.HasSuffix(host, suffix) {
			return errBlockedHost
		}
	}

	if addr, err := netip.ParseAddr(host); err == nil {
		if isBlockedAddr(addr) {
			return errBlockedHost
		}
		return nil
	}

	lookupCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	addrs, err := net.DefaultResolver.LookupNetIP(lookupCtx, "ip", host)
	if err != nil || len(addrs) == 0 {
		return errors.New("failed to resolve url host")
	}
	if slices.ContainsFunc(addrs, isBlockedAddr) {
		return errBlockedHost
	}
	return nil
}

func isBlockedAddr(addr netip.Addr) bool {
	addr = addr.Unmap()
	return !addr.IsValid() ||
		addr.IsLoopback() ||
		addr.IsPrivate() ||
		addr.IsLinkLocalUnicast() ||
		addr.IsLinkLocalMulticast() ||
		addr.IsMulticast() ||
		addr.IsUnspecified()
}
