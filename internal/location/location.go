package location

import (
	"fmt"
	"net"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"

	"subflow/internal/api"
)

// Kind distinguishes workflows on the local filesystem from workflows that
// have to be downloaded first.
type Kind int

const (
	KindLocal Kind = iota
	KindRemote
)

func (k Kind) String() string {
	switch k {
	case KindLocal:
		return "local"
	case KindRemote:
		return "remote"
	default:
		return "unknown"
	}
}

// SchemeWorkflow references a workflow relative to the calling workflow's
// directory, e.g. workflow://../shared/normalize.
const SchemeWorkflow = "workflow"

// Location is the canonical identifier of a physical workflow. Two inputs
// that denote the same directory produce equal Locations.
type Location struct {
	Kind Kind
	// Path is the cleaned absolute directory for local workflows.
	Path string
	// URL is the normalized download URL for remote workflows.
	URL string
}

// Key returns the registry cache key.
func (l Location) Key() string {
	if l.Kind == KindRemote {
		return l.URL
	}
	return (&url.URL{Scheme: "file", Path: filepath.ToSlash(l.Path)}).String()
}

// String implements fmt.Stringer.
func (l Location) String() string {
	return l.Key()
}

// IsZero reports whether l is the zero Location.
func (l Location) IsZero() bool {
	return l.Path == "" && l.URL == ""
}

// Resolver turns user supplied workflow references into Locations.
type Resolver struct {
	// workingDir anchors relative paths when no caller directory is known.
	workingDir string
}

// NewResolver creates a resolver. Relative references without a calling
// workflow are resolved against workingDir, or the process working
// directory if workingDir is empty.
func NewResolver(workingDir string) *Resolver {
	return &Resolver{workingDir: workingDir}
}

// Resolve canonicalizes input. callerDir is the directory of the calling
// workflow and may be empty when there is none.
func (r *Resolver) Resolve(input, callerDir string) (Location, error) {
	trimmed := strings.TrimSpace(input)
	if trimmed == "" {
		return Location{}, api.NewResolutionError(input, "empty workflow reference", nil)
	}

	scheme, rest, hasScheme := splitScheme(trimmed)
	if !hasScheme {
		return r.resolveLocal(input, trimmed, callerDir)
	}

	switch scheme {
	case "file":
		u, err := url.Parse(trimmed)
		if err != nil {
			return Location{}, api.NewResolutionError(input, "malformed file URI", err)
		}
		if u.Host != "" && u.Host != "localhost" {
			return Location{}, api.NewResolutionError(input, "file URI must not name a host", nil)
		}
		if u.Path == "" {
			return Location{}, api.NewResolutionError(input, "file URI has no path", nil)
		}
		return r.resolveLocal(input, filepath.FromSlash(u.Path), "")

	case SchemeWorkflow:
		if callerDir == "" {
			return Location{}, api.NewResolutionError(input, "workflow-relative reference used without a calling workflow", nil)
		}
		rel := strings.TrimPrefix(rest, "//")
		if rel == "" {
			rel = "."
		}
		if strings.HasPrefix(rel, "/") {
			return Location{}, api.NewResolutionError(input, "workflow-relative reference must be relative", nil)
		}
		return r.resolveLocal(input, filepath.Join(callerDir, filepath.FromSlash(rel)), "")

	case "http", "https":
		return resolveRemote(input, trimmed)

	default:
		return Location{}, api.NewResolutionError(input, fmt.Sprintf("unsupported scheme %q", scheme), nil)
	}
}

func (r *Resolver) resolveLocal(input, p, callerDir string) (Location, error) {
	if !filepath.IsAbs(p) {
		base := callerDir
		if base == "" {
			base = r.workingDir
		}
		if base == "" {
			wd, err := os.Getwd()
			if err != nil {
				return Location{}, api.NewResolutionError(input, "cannot determine working directory", err)
			}
			base = wd
		}
		p = filepath.Join(base, p)
	}

	p = filepath.Clean(p)

	// Symlinked aliases of the same directory must share one cache entry.
	// Non-existent paths are kept as-is; the loader reports them.
	if evaluated, err := filepath.EvalSymlinks(p); err == nil {
		p = evaluated
	}

	return Location{Kind: KindLocal, Path: p}, nil
}

func resolveRemote(input, raw string) (Location, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return Location{}, api.NewResolutionError(input, "malformed URL", err)
	}
	if u.Host == "" {
		return Location{}, api.NewResolutionError(input, "URL has no host", nil)
	}

	scheme := strings.ToLower(u.Scheme)
	host := strings.ToLower(u.Hostname())
	port := u.Port()
	if (scheme == "http" && port == "80") || (scheme == "https" && port == "443") {
		port = ""
	}
	if port != "" {
		host = net.JoinHostPort(host, port)
	}

	cleanPath := u.EscapedPath()
	if cleanPath == "" {
		cleanPath = "/"
	} else {
		cleanPath = path.Clean(cleanPath)
	}

	normalized := url.URL{
		Scheme:   scheme,
		User:     u.User,
		Host:     host,
		RawQuery: u.RawQuery,
	}
	if p, err := url.PathUnescape(cleanPath); err == nil {
		normalized.Path = p
		normalized.RawPath = cleanPath
	} else {
		normalized.Path = cleanPath
	}

	return Location{Kind: KindRemote, URL: normalized.String()}, nil
}

// splitScheme returns the URI scheme of s, if it has one. Windows drive
// letters ("C:\...") are not treated as schemes.
func splitScheme(s string) (scheme, rest string, ok bool) {
	i := strings.Index(s, ":")
	if i <= 1 {
		return "", s, false
	}
	candidate := s[:i]
	for j, c := range candidate {
		switch {
		case c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z':
		case j > 0 && (c >= '0' && c <= '9' || c == '+' || c == '-' || c == '.'):
		default:
			return "", s, false
		}
	}
	return strings.ToLower(candidate), s[i+1:], true
}
