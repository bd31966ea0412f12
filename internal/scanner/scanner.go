// Package scanner provides rule document discovery for security rule
// corpora.
//
// The scanner traverses configured document roots to find Markdown files,
// extracts document metadata (title, inclusion references, content hash)
// with the same literal line scan the loader uses, and registers results
// with the document registry, which broadcasts change events. Batch scans
// run on a persistent worker pool with a synchronous fast path for small
// corpora.
package scanner

import (
	"fmt"
	"hash/crc32"
	"io"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"sync"

	"github.com/kariedo/claude-code-security-rules/internal/loader"
	"github.com/kariedo/claude-code-security-rules/internal/registry"
	"github.com/kariedo/claude-code-security-rules/internal/types"
)

// ScanJob represents a scanning job for the worker pool containing the
// file path to scan and a result channel for asynchronous communication.
type ScanJob struct {
	// filePath is the absolute path to the Markdown file to be scanned
	filePath string
	// result channel receives the scan result or error asynchronously
	result chan<- ScanResult
}

// ScanResult represents the result of a scanning operation, containing
// either success status or error information for a specific file.
type ScanResult struct {
	// filePath is the path that was scanned
	filePath string
	// err contains any error that occurred during scanning, nil on success
	err error
}

// WorkerPool manages persistent scanning workers so batch scans do not pay
// goroutine creation overhead per file.
type WorkerPool struct {
	// jobQueue buffers scanning jobs for worker distribution
	jobQueue chan ScanJob
	// workers holds references to all active worker goroutines
	workers []*ScanWorker
	// workerCount defines the number of concurrent workers (typically NumCPU)
	workerCount int
	// scanner is the shared document scanner instance
	scanner *DocumentScanner
	// stop signals all workers to terminate gracefully
	stop chan struct{}
	// stopped tracks pool shutdown state
	stopped bool
	// mu protects concurrent access to pool state
	mu sync.RWMutex
}

// ScanWorker is a persistent worker goroutine that processes scanning jobs
// from the shared job queue.
type ScanWorker struct {
	// id uniquely identifies this worker for debugging
	id int
	// jobQueue receives scanning jobs from the worker pool
	jobQueue <-chan ScanJob
	// scanner provides the document parsing functionality
	scanner *DocumentScanner
	// stop signals this worker to terminate gracefully
	stop chan struct{}
}

// DocumentScanner discovers rule documents and registers them.
//
// The scanner provides:
// - Recursive directory traversal with exclude patterns
// - Metadata extraction via the loader's literal marker scan
// - Concurrent processing via worker pool
// - Integration with the document registry for event broadcasting
// - File change detection using CRC32 hashing
type DocumentScanner struct {
	// registry receives discovered documents and broadcasts change events
	registry *registry.DocumentRegistry
	// baseDir confines scanning and anchors reference resolution
	baseDir string
	// excludePatterns name files and directories the walk skips
	excludePatterns []string
	// workerPool manages concurrent scanning operations
	workerPool *WorkerPool
}

// NewDocumentScanner creates a scanner rooted at baseDir. Exclude patterns
// are matched with filepath.Match against file names and individual path
// segments, so both `*_draft.md` and `node_modules` work.
func NewDocumentScanner(reg *registry.DocumentRegistry, baseDir string, excludePatterns ...string) *DocumentScanner {
	if abs, err := filepath.Abs(baseDir); err == nil {
		baseDir = abs
	}

	scanner := &DocumentScanner{
		registry:        reg,
		baseDir:         baseDir,
		excludePatterns: excludePatterns,
	}

	workerCount := runtime.NumCPU()
	if workerCount > 8 {
		workerCount = 8
	}

	scanner.workerPool = NewWorkerPool(workerCount, scanner)
	return scanner
}

// NewWorkerPool creates a new worker pool for scanning operations.
func NewWorkerPool(workerCount int, scanner *DocumentScanner) *WorkerPool {
	pool := &WorkerPool{
		jobQueue:    make(chan ScanJob, workerCount*2),
		workerCount: workerCount,
		scanner:     scanner,
		stop:        make(chan struct{}),
	}

	pool.workers = make([]*ScanWorker, workerCount)
	for i := 0; i < workerCount; i++ {
		worker := &ScanWorker{
			id:       i,
			jobQueue: pool.jobQueue,
			scanner:  scanner,
			stop:     make(chan struct{}),
		}
		pool.workers[i] = worker
		go worker.start()
	}

	return pool
}

// start begins the worker's processing loop.
func (w *ScanWorker) start() {
	for {
		select {
		case job, ok := <-w.jobQueue:
			if !ok {
				return
			}
			err := w.scanner.scanFileInternal(job.filePath)
			job.result <- ScanResult{
				filePath: job.filePath,
				err:      err,
			}
		case <-w.stop:
			return
		}
	}
}

// Stop gracefully shuts down the worker pool.
func (p *WorkerPool) Stop() {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.stopped {
		return
	}

	p.stopped = true
	close(p.stop)

	for _, worker := range p.workers {
		close(worker.stop)
	}

	close(p.jobQueue)
}

// GetRegistry returns the document registry.
func (s *DocumentScanner) GetRegistry() *registry.DocumentRegistry {
	return s.registry
}

// BaseDir returns the directory scanning is confined to.
func (s *DocumentScanner) BaseDir() string {
	return s.baseDir
}

// Close gracefully shuts down the scanner and its worker pool.
func (s *DocumentScanner) Close() error {
	if s.workerPool != nil {
		s.workerPool.Stop()
	}
	return nil
}

// ScanDirectory scans a directory tree for Markdown documents using the
// worker pool. Relative paths resolve against the base directory.
func (s *DocumentScanner) ScanDirectory(dir string) error {
	cleanDir, err := s.resolveScanPath(dir)
	if err != nil {
		return fmt.Errorf("invalid directory path: %w", err)
	}

	var files []string
	err = filepath.WalkDir(cleanDir, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}

		if d.IsDir() {
			if path != cleanDir && s.excluded(path, d.Name()) {
				return filepath.SkipDir
			}
			return nil
		}

		if !strings.HasSuffix(path, ".md") || s.excluded(path, d.Name()) {
			return nil
		}

		files = append(files, path)
		return nil
	})
	if err != nil {
		return err
	}

	return s.processBatchWithWorkerPool(files)
}

// processBatchWithWorkerPool distributes files across the persistent
// worker pool, falling back to synchronous processing when the queue is
// full or the batch is too small to be worth the coordination.
func (s *DocumentScanner) processBatchWithWorkerPool(files []string) error {
	if len(files) == 0 {
		return nil
	}

	if len(files) <= 5 {
		return s.processBatchSynchronous(files)
	}

	resultChan := make(chan ScanResult, len(files))

	for _, file := range files {
		job := ScanJob{
			filePath: file,
			result:   resultChan,
		}

		select {
		case s.workerPool.jobQueue <- job:
		default:
			err := s.scanFileInternal(file)
			resultChan <- ScanResult{filePath: file, err: err}
		}
	}

	var errs []error
	for i := 0; i < len(files); i++ {
		result := <-resultChan
		if result.err != nil {
			errs = append(errs, fmt.Errorf("scanning %s: %w", result.filePath, result.err))
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("scan completed with %d errors: %v", len(errs), errs[0])
	}

	return nil
}

// processBatchSynchronous processes small batches without the pool.
func (s *DocumentScanner) processBatchSynchronous(files []string) error {
	var errs []error

	for _, file := range files {
		if err := s.scanFileInternal(file); err != nil {
			errs = append(errs, fmt.Errorf("scanning %s: %w", file, err))
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("scan completed with %d errors: %v", len(errs), errs[0])
	}

	return nil
}

// ScanFile scans a single Markdown document.
func (s *DocumentScanner) ScanFile(path string) error {
	return s.scanFileInternal(path)
}

// scanFileInternal reads one document and registers its metadata.
func (s *DocumentScanner) scanFileInternal(path string) error {
	cleanPath, err := s.resolveScanPath(path)
	if err != nil {
		return fmt.Errorf("invalid path: %w", err)
	}

	file, err := os.Open(cleanPath)
	if err != nil {
		return fmt.Errorf("opening file %s: %w", cleanPath, err)
	}
	defer file.Close()

	info, err := file.Stat()
	if err != nil {
		return fmt.Errorf("getting file info for %s: %w", cleanPath, err)
	}

	content, err := io.ReadAll(file)
	if err != nil {
		return fmt.Errorf("reading file %s: %w", cleanPath, err)
	}

	text := string(content)
	doc := &types.RuleDocument{
		Path:           s.displayPath(cleanPath),
		NormalizedPath: cleanPath,
		Title:          loader.ExtractTitle(text),
		Content:        text,
		References:     s.resolveMarkers(text),
		LastMod:        info.ModTime(),
		Hash:           fmt.Sprintf("%08x", crc32.ChecksumIEEE(content)),
	}

	s.registry.Register(doc)
	return nil
}

// resolveMarkers resolves inclusion markers against the base directory.
// Markers that cannot resolve (absolute or escaping paths) are dropped
// here; reference correctness is the loader's concern, discovery is ours.
func (s *DocumentScanner) resolveMarkers(content string) []types.Reference {
	markers := loader.ParseReferences(content)
	if len(markers) == 0 {
		return nil
	}

	refs := make([]types.Reference, 0, len(markers))
	for _, m := range markers {
		resolved, err := loader.ResolveReference(s.baseDir, m.Raw)
		if err != nil {
			continue
		}
		refs = append(refs, types.Reference{
			Raw:            m.Raw,
			NormalizedPath: resolved,
			Line:           m.Line,
		})
	}
	return refs
}

// resolveScanPath resolves a scan path against the base directory and
// rejects paths that escape it.
func (s *DocumentScanner) resolveScanPath(path string) (string, error) {
	if !filepath.IsAbs(path) {
		path = filepath.Join(s.baseDir, path)
	}

	abs, err := filepath.Abs(filepath.Clean(path))
	if err != nil {
		return "", fmt.Errorf("getting absolute path: %w", err)
	}

	rel, err := filepath.Rel(s.baseDir, abs)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("path %s is outside the document base directory", path)
	}

	return abs, nil
}

// excluded reports whether a path is filtered out by the exclude patterns.
func (s *DocumentScanner) excluded(path, name string) bool {
	for _, pattern := range s.excludePatterns {
		if matched, _ := filepath.Match(pattern, name); matched {
			return true
		}
		for _, segment := range strings.Split(filepath.ToSlash(path), "/") {
			if matched, _ := filepath.Match(pattern, segment); matched {
				return true
			}
		}
	}
	return false
}

// displayPath renders an absolute path relative to the base directory
// with forward slashes.
func (s *DocumentScanner) displayPath(abs string) string {
	rel, err := filepath.Rel(s.baseDir, abs)
	if err != nil {
		return filepath.ToSlash(abs)
	}
	return filepath.ToSlash(rel)
}
