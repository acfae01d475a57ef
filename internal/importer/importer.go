// Package importer reads ledger export and provider settlement feeds
// into raw entries for normalization. Parsers only map columns; all
// value validation happens in the normalizer.
package importer

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/daybook-dev/daybook/internal/normalize"
)

// Parser converts one feed file into raw entries.
type Parser interface {
	Parse(r io.Reader) ([]normalize.RawEntry, error)
	Format() string
}

// Registry holds named parsers.
type Registry struct {
	parsers map[string]Parser
}

// FileInfo describes a feed file in the import directory.
type FileInfo struct {
	Name string
	Path string
	Size int64
}

// NewRegistry creates an empty parser registry.
func NewRegistry() *Registry {
	return &Registry{parsers: make(map[string]Parser)}
}

// Register adds a parser. Panics on duplicate format.
func (r *Registry) Register(p Parser) {
	key := strings.ToLower(p.Format())
	if _, ok := r.parsers[key]; ok {
		panic("duplicate parser format: " + key)
	}
	r.parsers[key] = p
}

// Get returns the parser for format, or nil.
func (r *Registry) Get(format string) Parser {
	return r.parsers[strings.ToLower(format)]
}

// DefaultRegistry returns a registry with all built-in parsers.
func DefaultRegistry() *Registry {
	r := NewRegistry()
	r.Register(&LedgerExportParser{})
	r.Register(&SettlementParser{})
	return r
}

// LoadLedgerFeed parses a ledger export file.
func LoadLedgerFeed(path string, reg *Registry) ([]normalize.RawEntry, error) {
	return loadFeed(path, "ledger-export", reg, nil)
}

// LoadProviderFeed parses a provider settlement file, stamping every
// entry with the provider code.
func LoadProviderFeed(path, providerCode, format string, reg *Registry) ([]normalize.RawEntry, error) {
	return loadFeed(path, format, reg, func(e *normalize.RawEntry) {
		e.Source = providerCode
		e.Provider = providerCode
	})
}

func loadFeed(path, format string, reg *Registry, stamp func(*normalize.RawEntry)) ([]normalize.RawEntry, error) {
	p := reg.Get(format)
	if p == nil {
		return nil, fmt.Errorf("no parser registered for format %q", format)
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening feed %s: %w", path, err)
	}
	defer f.Close()

	entries, err := p.Parse(f)
	if err != nil {
		return nil, fmt.Errorf("parsing feed %s: %w", path, err)
	}
	if stamp != nil {
		for i := range entries {
			stamp(&entries[i])
		}
	}
	return entries, nil
}

// importDir is the subdirectory feeds are dropped into.
const importDir = "import"

// processedDir is where ingested feeds are moved.
const processedDir = "import/processed"

// Scan returns CSV feed files in <dataDir>/import/.
func Scan(dataDir string) ([]FileInfo, error) {
	dir := filepath.Join(dataDir, importDir)
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("reading import dir: %w", err)
	}

	var files []FileInfo
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		if !strings.HasSuffix(strings.ToLower(e.Name()), ".csv") {
			continue
		}
		info, err := e.Info()
		if err != nil {
			return nil, fmt.Errorf("stat %s: %w", e.Name(), err)
		}
		files = append(files, FileInfo{
			Name: e.Name(),
			Path: filepath.Join(dir, e.Name()),
			Size: info.Size(),
		})
	}
	return files, nil
}

// MarkProcessed moves a feed from import/ to import/processed/.
func MarkProcessed(dataDir, fileName string) error {
	src := filepath.Join(dataDir, importDir, fileName)
	dstDir := filepath.Join(dataDir, processedDir)

	if err := os.MkdirAll(dstDir, 0o755); err != nil {
		return fmt.Errorf("creating processed dir: %w", err)
	}

	dst := filepath.Join(dstDir, fileName)
	if err := os.Rename(src, dst); err != nil {
		return fmt.Errorf("moving %s to processed: %w", fileName, err)
	}
	return nil
}
