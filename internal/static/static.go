package static

import (
	"net/http"
	"os"
	"path/filepath"
	"strings"
)

var contentTypes = map[string]string{
	".html": "text/html",
	".css":  "text/css",
	".js":   "application/javascript",
	".json": "application/json",
}

// ContentType maps a file name to the type it is served with.
func ContentType(name string) string {
	if ct, ok := contentTypes[strings.ToLower(filepath.Ext(name))]; ok {
		return ct
	}
	return "text/plain"
}

// Handler serves the front-end files from Root. Failures are bare status
// codes; there is no JSON envelope here.
type Handler struct {
	Root  string
	Index string
}

func New(root, index string) *Handler {
	if root == "" {
		root = "."
	}
	if index == "" {
		index = "index.html"
	}
	return &Handler{Root: root, Index: index}
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	name := r.URL.Path
	if name == "" || name == "/" {
		name = h.Index
	} else {
		name = strings.TrimPrefix(name, "/")
	}
	if strings.Contains(name, "..") || strings.HasPrefix(name, "/") || filepath.IsAbs(name) {
		fail(w, http.StatusForbidden)
		return
	}

	f, err := os.Open(filepath.Join(h.Root, filepath.FromSlash(name)))
	if err != nil {
		if os.IsNotExist(err) {
			fail(w, http.StatusNotFound)
		} else {
			fail(w, http.StatusInternalServerError)
		}
		return
	}
	defer f.Close()

	fi, err := f.Stat()
	if err != nil {
		fail(w, http.StatusInternalServerError)
		return
	}
	if fi.IsDir() {
		fail(w, http.StatusNotFound)
		return
	}

	w.Header().Set("Content-Type", ContentType(name))
	w.Header().Set("Access-Control-Allow-Origin", "*")
	http.ServeContent(w, r, name, fi.ModTime(), f)
}

func fail(w http.ResponseWriter, code int) {
	http.Error(w, http.StatusText(code), code)
}
