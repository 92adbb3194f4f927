package assets

import (
	"bytes"
	"log"
	"net/http"
	"time"

	"github.com/louisbranch/assetpipe/internal/bundle"
	apperrors "github.com/louisbranch/assetpipe/internal/platform/errors"
)

// noSourcesBody is the only detail a caller sees when a manifest resolves to
// nothing; source paths and decode diagnostics stay in the server log.
const noSourcesBody = "something is wrong"

const yearSeconds = 31536000

type handlers struct {
	builder *bundle.Builder
}

func (h handlers) handleBundle(w http.ResponseWriter, r *http.Request) {
	token, version, err := bundle.ParseName(r.PathValue("name"))
	if err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	// Cache headers depend only on the version suffix, not on hit/miss:
	// a URL carrying the current version is immutable by construction.
	if version == h.builder.Version() {
		w.Header().Set("Cache-Control", "public, max-age=31536000")
		w.Header().Set("Expires", time.Now().Add(yearSeconds*time.Second).UTC().Format(http.TimeFormat))
	} else {
		w.Header().Set("Cache-Control", "no-cache, no-store, must-revalidate")
		w.Header().Set("Pragma", "no-cache")
		w.Header().Set("Expires", "0")
	}

	res, err := h.builder.Build(r.Context(), token, version)
	if err != nil {
		log.Printf("bundle build failed: %v", err)
		switch apperrors.KindOf(err) {
		case apperrors.KindNoSources:
			w.Header().Set("Content-Type", "text/plain; charset=utf-8")
			_, _ = w.Write([]byte(noSourcesBody))
		default:
			http.Error(w, "bundle build failed", apperrors.HTTPStatus(err))
		}
		return
	}

	w.Header().Set("Content-Type", "text/javascript; charset=utf-8")
	if res.Content != nil {
		http.ServeContent(w, r, res.Name, res.ModTime, bytes.NewReader(res.Content))
		return
	}
	http.ServeFile(w, r, res.Path)
}

func (handlers) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	_, _ = w.Write([]byte("ok"))
}
