// Package scripttag collects script registrations for one request/response
// cycle and renders them as <script> tags.
package scripttag

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/url"
	"strings"

	"github.com/a-h/templ"

	"github.com/louisbranch/assetpipe/internal/bundle/manifest"
)

// Options control tag rendering.
type Options struct {
	// Route is the URL prefix of the bundle endpoint.
	Route string
	// Version is the current build generation embedded in bundle URLs.
	Version string
	// SourcePrefix is the URL prefix raw files are served from in debug mode.
	SourcePrefix string
	// IgnoreDuplicates makes Add idempotent for repeated names.
	IgnoreDuplicates bool
	// Async appends the async attribute to rendered tags.
	Async bool
}

// Registry accumulates an ordered script list for a single page render. It
// is created empty per cycle, consumed once when tags are rendered, and then
// discarded; it is not safe for concurrent use and does not need to be.
type Registry struct {
	opts  Options
	codec manifest.Codec
	names []string
	seen  map[string]struct{}
}

// NewRegistry returns an empty registry for one request cycle.
func NewRegistry(opts Options, codec manifest.Codec) *Registry {
	return &Registry{opts: opts, codec: codec, seen: make(map[string]struct{})}
}

// Add registers a script name. Registration order is concatenation order.
func (r *Registry) Add(name string) {
	name = strings.TrimSpace(name)
	if name == "" {
		return
	}
	if r.opts.IgnoreDuplicates {
		if _, ok := r.seen[name]; ok {
			return
		}
	}
	r.seen[name] = struct{}{}
	r.names = append(r.names, name)
}

// Names returns the registered names in order.
func (r *Registry) Names() []string {
	return append([]string(nil), r.names...)
}

// Tags returns a component rendering the registered scripts: one tag per
// file in debug mode, or a single merged-bundle tag otherwise.
func (r *Registry) Tags(debug bool) templ.Component {
	return templ.ComponentFunc(func(_ context.Context, w io.Writer) error {
		if len(r.names) == 0 {
			return nil
		}
		if debug {
			for _, name := range r.names {
				src := strings.TrimSuffix(r.opts.SourcePrefix, "/") + "/" + name
				if err := r.writeTag(w, src); err != nil {
					return err
				}
			}
			return nil
		}
		token, err := r.codec.Encode(r.names)
		if err != nil {
			return fmt.Errorf("encode manifest: %w", err)
		}
		src := strings.TrimSuffix(r.opts.Route, "/") + "/" + url.PathEscape(token) + "-" + r.opts.Version + ".js"
		return r.writeTag(w, src)
	})
}

// RenderTags renders Tags to a string for non-templ template engines.
func (r *Registry) RenderTags(debug bool) (string, error) {
	var buf bytes.Buffer
	if err := r.Tags(debug).Render(context.Background(), &buf); err != nil {
		return "", err
	}
	return buf.String(), nil
}

func (r *Registry) writeTag(w io.Writer, src string) error {
	async := ""
	if r.opts.Async {
		async = " async"
	}
	_, err := fmt.Fprintf(w, "<script src=\"%s\"%s></script>", templ.EscapeString(src), async)
	return err
}
