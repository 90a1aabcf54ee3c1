package mcpserver

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"mime"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/starford/hiertree/internal/checksum"
	"github.com/starford/hiertree/internal/parser"
	"github.com/starford/hiertree/internal/tree"
)

const (
	maxDocumentSize = 4 << 20
	maxRedirects    = 3
	fetchTimeout    = 20 * time.Second
)

var documentTypes = map[string]bool{
	"application/json":   true,
	"application/yaml":   true,
	"application/x-yaml": true,
	"text/yaml":          true,
	"text/x-yaml":        true,
	"text/plain":         true,
}

func (s *Server) importTree(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	data, err := readDocument(ctx, req.GetString("content", ""), req.GetString("url", ""))
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	nodes, err := parser.Parse(data)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	if req.GetBool("dry_run", false) {
		if err := tree.Validate(nodes); err != nil {
			return toolError(err), nil
		}
		return mcp.NewToolResultText(fmt.Sprintf("valid: %d node(s), checksum %s", len(nodes), checksum.Tree(nodes))), nil
	}

	cs, err := s.svc.Save(ctx, nodes, "")
	if err != nil {
		return toolError(err), nil
	}
	return mcp.NewToolResultText(fmt.Sprintf("imported %d node(s), checksum %s", len(nodes), cs)), nil
}

// readDocument returns the inline content, or the body behind a data URI
// or http(s) URL. Exactly one source must be given.
func readDocument(ctx context.Context, content, rawURL string) ([]byte, error) {
	switch {
	case content != "" && rawURL != "":
		return nil, errors.New("pass either content or url, not both")
	case content != "":
		if len(content) > maxDocumentSize {
			return nil, fmt.Errorf("document exceeds %d bytes", maxDocumentSize)
		}
		return []byte(content), nil
	case strings.HasPrefix(rawURL, "data:"):
		return decodeDataURI(rawURL)
	case rawURL != "":
		return fetchDocument(ctx, rawURL)
	default:
		return nil, errors.New("content or url is required")
	}
}

// decodeDataURI accepts base64 data URIs carrying a JSON or YAML document.
func decodeDataURI(uri string) ([]byte, error) {
	meta, payload, ok := strings.Cut(strings.TrimPrefix(uri, "data:"), ",")
	if !ok {
		return nil, errors.New("data URI has no payload")
	}
	meta, isBase64 := strings.CutSuffix(meta, ";base64")
	if !isBase64 {
		return nil, errors.New("data URI must be base64 encoded")
	}
	if err := checkMediaType(meta); err != nil {
		return nil, err
	}
	if base64.StdEncoding.DecodedLen(len(payload)) > maxDocumentSize+3 {
		return nil, fmt.Errorf("document exceeds %d bytes", maxDocumentSize)
	}

	data, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		if data, err = base64.RawStdEncoding.DecodeString(payload); err != nil {
			return nil, fmt.Errorf("decode data URI: %w", err)
		}
	}
	return data, nil
}

func checkMediaType(v string) error {
	if v == "" {
		return nil
	}
	mt, _, err := mime.ParseMediaType(v)
	if err != nil {
		return fmt.Errorf("media type %q: %w", v, err)
	}
	if !documentTypes[mt] {
		return fmt.Errorf("unsupported media type %s", mt)
	}
	return nil
}

// fetchDocument downloads a document, refusing internal hosts on the first
// request and on every redirect.
func fetchDocument(ctx context.Context, rawURL string) ([]byte, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("parse url: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("unsupported scheme %q", u.Scheme)
	}
	if err := checkBlockedHost(ctx, u.Hostname()); err != nil {
		return nil, err
	}

	client := &http.Client{
		Timeout: fetchTimeout,
		CheckRedirect: func(req *http.Request, via []*http.Request) error {
			if len(via) > maxRedirects {
				return fmt.Errorf("stopped after %d redirects", maxRedirects)
			}
			return checkBlockedHost(req.Context(), req.URL.Hostname())
		},
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json, application/yaml;q=0.9, text/plain;q=0.5")

	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch %s: %w", u.Redacted(), err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fetch %s: HTTP %d", u.Redacted(), resp.StatusCode)
	}
	if ct := resp.Header.Get("Content-Type"); ct != "" {
		if err := checkMediaType(ct); err != nil {
			return nil, err
		}
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxDocumentSize+1))
	if err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}
	if len(data) > maxDocumentSize {
		return nil, fmt.Errorf("document exceeds %d bytes", maxDocumentSize)
	}
	return data, nil
}

// checkBlockedHost rejects loopback, private, link-local and unspecified
// addresses, including every address a name resolves to.
func checkBlockedHost(ctx context.Context, host string) error {
	if host == "" {
		return errors.New("url has no host")
	}
	if strings.EqualFold(host, "localhost") || strings.EqualFold(host, "metadata.google.internal") {
		return fmt.Errorf("blocked host %s", host)
	}

	ips := []net.IP{net.ParseIP(host)}
	if ips[0] == nil {
		addrs, err := net.DefaultResolver.LookupIPAddr(ctx, host)
		if err != nil {
			// Resolution failures surface from the request itself.
			return nil
		}
		ips = ips[:0]
		for _, a := range addrs {
			ips = append(ips, a.IP)
		}
	}

	for _, ip := range ips {
		if ip.IsLoopback() || ip.IsPrivate() || ip.IsLinkLocalUnicast() ||
			ip.IsLinkLocalMulticast() || ip.IsUnspecified() {
			return fmt.Errorf("blocked host %s (%s)", host, ip)
		}
	}
	return nil
}
