// Package extract decodes source archives into ordered source units.
package extract

import (
	"archive/zip"
	"bytes"
	"errors"
	"fmt"
	"io"
	"path"
	"strings"

	"docforge/internal/domain/pipeline"
	"docforge/internal/httpclient"
	"docforge/internal/logging"

	ignore "github.com/sabhiram/go-gitignore"
)

// Config controls which archive entries become source units.
type Config struct {
	// Extensions is the recognized file-extension predicate, e.g. [".java"].
	Extensions []string `mapstructure:"extensions" yaml:"extensions"`
	// Ignore holds gitignore-style patterns for entries that are never units.
	Ignore []string `mapstructure:"ignore" yaml:"ignore"`
	// MaxFileBytes rejects entries larger than this many bytes (0 = unlimited).
	// A rejected entry is kept as a unit so its record is reported as failed.
	MaxFileBytes int64 `mapstructure:"max_file_bytes" yaml:"max_file_bytes"`
	// MaxFiles rejects archives with more eligible units than this (0 = unlimited).
	MaxFiles int `mapstructure:"max_files" yaml:"max_files"`
	// FallbackCharset decodes entries that are not valid UTF-8.
	FallbackCharset string `mapstructure:"fallback_charset" yaml:"fallback_charset"`
}

// DefaultConfig returns the extraction defaults for Java codebases.
func DefaultConfig() Config {
	return Config{
		Extensions:      []string{".java"},
		Ignore:          []string{"__MACOSX/", ".git/", "target/", "build/"},
		MaxFileBytes:    1 << 20,
		MaxFiles:        500,
		FallbackCharset: "windows-1252",
	}
}

// Extractor turns archive bytes into source units in archive directory order.
type Extractor struct {
	config     Config
	extensions map[string]struct{}
	ignore     *ignore.GitIgnore
	decoder    *decoder
	logger     logging.Logger
}

// New validates config and builds an Extractor.
func New(config Config, logger logging.Logger) (*Extractor, error) {
	if len(config.Extensions) == 0 {
		return nil, errors.New("extract: at least one source extension is required")
	}
	extensions := make(map[string]struct{}, len(config.Extensions))
	for _, ext := range config.Extensions {
		ext = strings.ToLower(strings.TrimSpace(ext))
		if ext == "" {
			continue
		}
		if !strings.HasPrefix(ext, ".") {
			ext = "." + ext
		}
		extensions[ext] = struct{}{}
	}

	dec, err := newDecoder(config.FallbackCharset)
	if err != nil {
		return nil, err
	}

	return &Extractor{
		config:     config,
		extensions: extensions,
		ignore:     ignore.CompileIgnoreLines(config.Ignore...),
		decoder:    dec,
		logger:     logging.OrNop(logger),
	}, nil
}

// Extract decodes archive and returns its eligible source units. The order is
// the archive's central directory order and is canonical for the whole run.
func (e *Extractor) Extract(archive []byte) ([]pipeline.SourceUnit, error) {
	reader, err := zip.NewReader(bytes.NewReader(archive), int64(len(archive)))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", pipeline.ErrCorruptArchive, err)
	}

	units := make([]pipeline.SourceUnit, 0, len(reader.File))
	seen := make(map[string]struct{}, len(reader.File))

	for _, file := range reader.File {
		name := normalizeName(file.Name)
		if name == "" || file.FileInfo().IsDir() || strings.HasSuffix(file.Name, "/") {
			continue
		}
		if e.ignore.MatchesPath(name) {
			e.logger.Debug("Skipping ignored entry %s", name)
			continue
		}
		if !e.eligible(name) {
			continue
		}
		if _, dup := seen[name]; dup {
			return nil, fmt.Errorf("%w: duplicate entry %q", pipeline.ErrCorruptArchive, name)
		}
		if e.config.MaxFiles > 0 && len(units) >= e.config.MaxFiles {
			return nil, fmt.Errorf("%w: more than %d source units", pipeline.ErrCorruptArchive, e.config.MaxFiles)
		}
		if e.config.MaxFileBytes > 0 && file.UncompressedSize64 > uint64(e.config.MaxFileBytes) {
			e.logger.Warn("Rejecting %s: %d bytes exceeds limit of %d", name, file.UncompressedSize64, e.config.MaxFileBytes)
			seen[name] = struct{}{}
			units = append(units, pipeline.SourceUnit{
				Name:     name,
				Rejected: fmt.Errorf("%w: %d bytes, limit %d", pipeline.ErrUnitTooLarge, file.UncompressedSize64, e.config.MaxFileBytes),
			})
			continue
		}

		content, err := e.read(file)
		if err != nil {
			return nil, fmt.Errorf("%w: %s: %v", pipeline.ErrCorruptArchive, name, err)
		}

		seen[name] = struct{}{}
		units = append(units, pipeline.SourceUnit{Name: name, Content: content})
	}

	if len(units) == 0 {
		return nil, pipeline.ErrEmptyArchive
	}
	e.logger.Info("Extracted %d source units from %d archive entries", len(units), len(reader.File))
	return units, nil
}

func (e *Extractor) eligible(name string) bool {
	_, ok := e.extensions[strings.ToLower(path.Ext(name))]
	return ok
}

func (e *Extractor) read(file *zip.File) (string, error) {
	rc, err := file.Open()
	if err != nil {
		return "", err
	}
	defer func() { _ = rc.Close() }()

	var raw []byte
	if e.config.MaxFileBytes > 0 {
		raw, err = httpclient.ReadAllWithLimit(rc, e.config.MaxFileBytes)
	} else {
		raw, err = io.ReadAll(rc)
	}
	if err != nil {
		return "", err
	}
	return e.decoder.decode(raw)
}

func normalizeName(name string) string {
	name = strings.ReplaceAll(name, "\\", "/")
	name = strings.TrimLeft(name, "/")
	if name == "" {
		return ""
	}
	cleaned := path.Clean(name)
	if cleaned == "." {
		return ""
	}
	return cleaned
}
