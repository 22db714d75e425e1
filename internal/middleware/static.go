package middleware

import (
	"net/http"
	"os"
	"path/filepath"
)

const placeholderSVG = `<svg xmlns="http://www.w3.org/2000/svg" viewBox="0 0 200 200"><rect width="200" height="200" fill="#f0f0f0"/><path d="M60 50h80v100H60z" fill="none" stroke="#999" stroke-width="6"/><path d="M75 120l20-25 15 18 12-14 23 21z" fill="#999"/><text x="100" y="180" text-anchor="middle" font-family="Arial" font-size="14" fill="#666">NO PREVIEW</text></svg>`

// StaticFileServer serves resource thumbnails from dir, falling back to a
// placeholder image for missing files.
func StaticFileServer(dir string) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path := filepath.Join(dir, filepath.Clean(r.URL.Path))

		if _, err := os.Stat(path); err == nil {
			w.Header().Set("Cache-Control", "public, max-age=2592000")
			http.ServeFile(w, r, path)
			return
		}

		w.Header().Set("Content-Type", "image/svg+xml")
		w.Header().Set("Cache-Control", "public, max-age=86400")
		w.Write([]byte(placeholderSVG))
	})
}
