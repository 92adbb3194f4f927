// Package bundle builds merged, minified script artifacts on demand and
// caches them on disk.
package bundle

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/tdewolff/minify/v2"
	"github.com/tdewolff/minify/v2/js"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"github.com/louisbranch/assetpipe/internal/bundle/manifest"
	apperrors "github.com/louisbranch/assetpipe/internal/platform/errors"
)

const jsMediaType = "application/javascript"

// Config defines the inputs for a Builder.
type Config struct {
	// SourceRoot is the directory registrable script files live under.
	SourceRoot string
	// OutputDir receives built artifacts.
	OutputDir string
	// Version is the current build generation. Requests carrying any other
	// version suffix are answered from tmp.-prefixed artifacts.
	Version string
	// CacheEnabled skips the on-disk cache check entirely when false.
	CacheEnabled bool
}

// Result describes a served or freshly built artifact.
type Result struct {
	// Path is the artifact location on disk.
	Path string
	// Name is the artifact file name inside the output directory.
	Name string
	// ModTime is the newest source modification time, which the artifact
	// file also carries.
	ModTime time.Time
	// Content holds the minified bytes for a fresh build; it is nil on a
	// cache hit, where the artifact streams from disk.
	Content []byte
	// CacheHit reports whether the artifact was served without rebuilding.
	CacheHit bool
	// Canonical reports whether the requested version matched Config.Version.
	Canonical bool
}

// Builder resolves manifest tokens to merged, minified artifacts.
//
// Builds are idempotent and land via atomic rename, so concurrent builds of
// the same token are safe without locking: the last writer wins and no reader
// ever observes a partial file. Stale and tmp. artifacts are never pruned.
type Builder struct {
	cfg      Config
	codec    manifest.Codec
	minifier *minify.M
	tracer   trace.Tracer
}

// NewBuilder wires a Builder with a JS minifier that keeps identifier names.
// Mangling stays off because scripts in one bundle may rely on globals that
// another file in the same bundle defines.
func NewBuilder(cfg Config, codec manifest.Codec) (*Builder, error) {
	if codec == nil {
		return nil, fmt.Errorf("bundle builder requires a codec")
	}
	if strings.TrimSpace(cfg.SourceRoot) == "" {
		return nil, fmt.Errorf("bundle builder requires a source root")
	}
	if strings.TrimSpace(cfg.OutputDir) == "" {
		return nil, fmt.Errorf("bundle builder requires an output dir")
	}

	m := minify.New()
	m.Add(jsMediaType, &js.Minifier{KeepVarNames: true})

	return &Builder{
		cfg:      cfg,
		codec:    codec,
		minifier: m,
		tracer:   otel.Tracer("assetpipe/bundle"),
	}, nil
}

// Version returns the configured build generation.
func (b *Builder) Version() string {
	return b.cfg.Version
}

// Build serves the artifact for a token, building it first when the cache
// has no copy or caching is disabled.
func (b *Builder) Build(ctx context.Context, token, requestVersion string) (Result, error) {
	canonical := requestVersion == b.cfg.Version
	name := artifactName(b.cfg.Version, token, canonical)
	path := filepath.Join(b.cfg.OutputDir, name)

	ctx, span := b.tracer.Start(ctx, "bundle.build", trace.WithAttributes(
		attribute.String("bundle.artifact", name),
		attribute.Bool("bundle.canonical", canonical),
	))
	defer span.End()

	if b.cfg.CacheEnabled {
		if info, err := os.Stat(path); err == nil && info.Mode().IsRegular() {
			span.SetAttributes(attribute.Bool("bundle.cache_hit", true))
			return Result{Path: path, Name: name, ModTime: info.ModTime(), CacheHit: true, Canonical: canonical}, nil
		}
	}
	span.SetAttributes(attribute.Bool("bundle.cache_hit", false))

	names := b.codec.Decode(token)
	if len(names) == 0 {
		return Result{}, apperrors.E(apperrors.KindNoSources, "manifest resolved to no files")
	}
	span.SetAttributes(attribute.Int("bundle.manifest_files", len(names)))

	infos, err := b.statSources(ctx, names)
	if err != nil {
		return Result{}, err
	}

	sources, newestMod, newestAccess, err := b.readSources(names, infos)
	if err != nil {
		return Result{}, err
	}
	span.SetAttributes(attribute.Int("bundle.built_files", len(sources)))

	minified, err := b.minifier.Bytes(jsMediaType, joinSources(sources))
	if err != nil {
		return Result{}, apperrors.Wrap(apperrors.KindBuildFailed, "minify bundle", err)
	}

	if err := b.persist(path, minified, newestAccess, newestMod); err != nil {
		return Result{}, err
	}

	return Result{Path: path, Name: name, ModTime: newestMod, Content: minified, Canonical: canonical}, nil
}

// statSources stats every manifest entry concurrently and joins before
// returning. A missing or irregular file leaves a nil slot; partial
// manifests still build.
func (b *Builder) statSources(ctx context.Context, names []string) ([]fs.FileInfo, error) {
	infos := make([]fs.FileInfo, len(names))
	g, _ := errgroup.WithContext(ctx)
	for i, name := range names {
		g.Go(func() error {
			path, ok := b.sourcePath(name)
			if !ok {
				return nil
			}
			info, err := os.Stat(path)
			if err != nil || !info.Mode().IsRegular() {
				return nil
			}
			infos[i] = info
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, apperrors.Wrap(apperrors.KindBuildFailed, "stat sources", err)
	}
	return infos, nil
}

// readSources reads the surviving files in manifest order and tracks the
// newest modification time with its paired access time. The artifact carries
// those timestamps so downstream HTTP caches see true source freshness
// instead of build wall-clock time.
func (b *Builder) readSources(names []string, infos []fs.FileInfo) (contents [][]byte, newestMod, newestAccess time.Time, err error) {
	for i, info := range infos {
		if info == nil {
			continue
		}
		path, ok := b.sourcePath(names[i])
		if !ok {
			continue
		}
		data, readErr := os.ReadFile(path)
		if readErr != nil {
			continue
		}
		contents = append(contents, data)
		if info.ModTime().After(newestMod) {
			newestMod = info.ModTime()
			newestAccess = accessTime(info)
		}
	}
	if len(contents) == 0 {
		return nil, time.Time{}, time.Time{}, apperrors.E(apperrors.KindNoSources, "no buildable files in manifest")
	}
	return contents, newestMod, newestAccess, nil
}

// sourcePath resolves a relative manifest entry under the source root.
// Entries that escape the root are treated like missing files.
func (b *Builder) sourcePath(name string) (string, bool) {
	cleaned := filepath.Clean(filepath.FromSlash(strings.TrimSpace(name)))
	if cleaned == "." || cleaned == ".." || strings.HasPrefix(cleaned, ".."+string(filepath.Separator)) || filepath.IsAbs(cleaned) {
		return "", false
	}
	return filepath.Join(b.cfg.SourceRoot, cleaned), true
}

// persist writes the artifact next to its final path, stamps the source
// timestamps, then renames into place so concurrent readers never observe a
// partial file.
func (b *Builder) persist(path string, content []byte, atime, mtime time.Time) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return apperrors.Wrap(apperrors.KindBuildFailed, "create output dir", err)
	}
	tmp, err := os.CreateTemp(filepath.Dir(path), filepath.Base(path)+".*")
	if err != nil {
		return apperrors.Wrap(apperrors.KindBuildFailed, "create artifact", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(content); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return apperrors.Wrap(apperrors.KindBuildFailed, "write artifact", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return apperrors.Wrap(apperrors.KindBuildFailed, "close artifact", err)
	}
	if err := os.Chtimes(tmpName, atime, mtime); err != nil {
		os.Remove(tmpName)
		return apperrors.Wrap(apperrors.KindBuildFailed, "stamp artifact times", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return apperrors.Wrap(apperrors.KindBuildFailed, "publish artifact", err)
	}
	return nil
}

// joinSources concatenates file contents in manifest order, terminating each
// with a newline so a file missing its final semicolon cannot swallow the
// next one.
func joinSources(sources [][]byte) []byte {
	var joined []byte
	for _, src := range sources {
		joined = append(joined, src...)
		if len(src) > 0 && src[len(src)-1] != '\n' {
			joined = append(joined, '\n')
		}
	}
	return joined
}
