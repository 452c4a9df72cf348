package devserver

import (
	"net/http"
	"os"
	"path"
	"path/filepath"
	"strings"
)

// root is a directory mounted under a URL prefix.
type root struct {
	prefix string
	dir    string
}

// assetHandler looks a request up in the bundle output first, then in
// each content base, falling back to the history index for page
// navigations.
type assetHandler struct {
	roots    []root
	fallback string
}

func newAssetHandler(bundle *BundleConfig) *assetHandler {
	h := &assetHandler{fallback: bundle.DevServer.FallbackIndex()}
	h.roots = append(h.roots, root{prefix: bundle.Output.PublicPath, dir: bundle.Output.Path})
	for _, dir := range bundle.DevServer.ContentBase {
		h.roots = append(h.roots, root{prefix: "/", dir: dir})
	}
	return h
}

func (h *assetHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	urlPath := path.Clean("/" + r.URL.Path)

	if file, ok := h.lookup(urlPath); ok {
		http.ServeFile(w, r, file)
		return
	}

	if h.fallback != "" && acceptsHTML(r) && !strings.Contains(path.Base(urlPath), ".") {
		if file, ok := h.lookup(h.fallback); ok {
			http.ServeFile(w, r, file)
			return
		}
	}

	http.NotFound(w, r)
}

// lookup returns the first regular file matching urlPath. Directories
// resolve to their index.html.
func (h *assetHandler) lookup(urlPath string) (string, bool) {
	for _, rt := range h.roots {
		rel, ok := trimPrefix(urlPath, rt.prefix)
		if !ok {
			continue
		}
		candidate := filepath.Join(rt.dir, filepath.FromSlash(rel))
		info, err := os.Stat(candidate)
		if err != nil {
			continue
		}
		if info.IsDir() {
			candidate = filepath.Join(candidate, DefaultIndex)
			if info, err = os.Stat(candidate); err != nil || info.IsDir() {
				continue
			}
		}
		return candidate, true
	}
	return "", false
}

func trimPrefix(urlPath, prefix string) (string, bool) {
	if prefix == "/" {
		return urlPath, true
	}
	if urlPath+"/" == prefix {
		return "/", true
	}
	if !strings.HasPrefix(urlPath, prefix) {
		return "", false
	}
	return "/" + strings.TrimPrefix(urlPath, prefix), true
}

// acceptsHTML mirrors connect-history-api-fallback: only requests that
// ask for HTML are rewritten.
func acceptsHTML(r *http.Request) bool {
	accept := r.Header.Get("Accept")
	return strings.Contains(accept, "text/html") || strings.Contains(accept, "*/*")
}
