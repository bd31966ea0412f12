// Package server implements the preview server for a rule corpus: rendered
// document pages, the expanded ruleset, JSON endpoints for tooling, and live
// reload over WebSockets driven by the file watcher.
//
// The server never serves a partially expanded ruleset. A reload that fails
// keeps the last good ruleset and marks it stale until a later reload
// succeeds; connected browsers are told what broke.
package server

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os/exec"
	"path/filepath"
	"runtime"
	"strings"
	"sync"
	"time"

	"github.com/coder/websocket"

	"github.com/kariedo/claude-code-security-rules/internal/config"
	"github.com/kariedo/claude-code-security-rules/internal/loader"
	"github.com/kariedo/claude-code-security-rules/internal/logging"
	"github.com/kariedo/claude-code-security-rules/internal/registry"
	"github.com/kariedo/claude-code-security-rules/internal/scanner"
	"github.com/kariedo/claude-code-security-rules/internal/types"
	"github.com/kariedo/claude-code-security-rules/internal/watcher"
)

// PreviewServer serves a rule corpus over HTTP with live reload.
type PreviewServer struct {
	config      *config.Config
	logger      logging.Logger
	httpServer  *http.Server
	serverMutex sync.RWMutex

	registry *registry.DocumentRegistry
	scanner  *scanner.DocumentScanner
	watcher  *watcher.FileWatcher
	loader   *loader.Loader

	// Ruleset state swaps atomically under rulesetMutex. ruleset stays nil
	// until the first successful load; stale means the files on disk have
	// drifted from what is being served.
	rulesetMutex sync.RWMutex
	ruleset      *types.RuleSet
	stale        bool
	lastLoadErr  error

	clients      map[*websocket.Conn]*Client
	clientsMutex sync.RWMutex
	broadcast    chan []byte
	register     chan *Client
	unregister   chan *websocket.Conn

	shutdownOnce sync.Once
}

// UpdateMessage is the JSON payload pushed to connected browsers.
type UpdateMessage struct {
	Type      string    `json:"type"`
	Target    string    `json:"target,omitempty"`
	Content   string    `json:"content,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// New creates a preview server from configuration. A nil logger falls back to
// the default text logger.
func New(cfg *config.Config, logger logging.Logger) (*PreviewServer, error) {
	if cfg == nil {
		return nil, fmt.Errorf("configuration is required")
	}
	if logger == nil {
		logger = logging.NewLogger(nil)
	}
	logger = logger.WithComponent("server")

	reg := registry.NewDocumentRegistry()
	docScanner := scanner.NewDocumentScanner(reg, cfg.ResolvedBaseDir(), cfg.Docs.ExcludePatterns...)

	debounce := time.Duration(cfg.Watch.DebounceMs) * time.Millisecond
	fileWatcher, err := watcher.NewFileWatcher(debounce, logger)
	if err != nil {
		return nil, fmt.Errorf("creating file watcher: %w", err)
	}

	return &PreviewServer{
		config:     cfg,
		logger:     logger,
		registry:   reg,
		scanner:    docScanner,
		watcher:    fileWatcher,
		loader:     loader.New(cfg.ResolvedBaseDir()),
		clients:    make(map[*websocket.Conn]*Client),
		broadcast:  make(chan []byte, 64),
		register:   make(chan *Client),
		unregister: make(chan *websocket.Conn),
	}, nil
}

// Registry exposes the document registry backing this server.
func (s *PreviewServer) Registry() *registry.DocumentRegistry {
	return s.registry
}

// Start scans the corpus, loads the ruleset, and serves HTTP until the
// listener fails or Shutdown is called.
func (s *PreviewServer) Start(ctx context.Context) error {
	s.setupWatcher(ctx)
	s.initialScan(ctx)
	s.reloadRuleset(ctx)

	go s.runWebSocketHub(ctx)

	addr := s.config.Address()
	s.serverMutex.Lock()
	s.httpServer = &http.Server{
		Addr:              addr,
		Handler:           s.routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	server := s.httpServer
	s.serverMutex.Unlock()

	s.logger.Info(ctx, "preview server listening",
		"address", addr,
		"documents", s.registry.Count())

	if s.config.Server.Open && !s.config.Server.NoOpen {
		go s.openBrowser(ctx, fmt.Sprintf("http://%s", addr))
	}

	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("server error: %w", err)
	}
	return nil
}

// routes builds the full handler chain: route table wrapped in CORS,
// security header, and request logging middleware.
func (s *PreviewServer) routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/", s.handleIndex)
	mux.HandleFunc("/ruleset", s.handleRuleset)
	mux.HandleFunc("/ruleset.md", s.handleRulesetRaw)
	mux.HandleFunc("/doc/", s.handleDoc)
	mux.HandleFunc("/api/documents", s.handleAPIDocuments)
	mux.HandleFunc("/api/ruleset", s.handleAPIRuleset)
	mux.HandleFunc("/health", s.handleHealth)
	mux.HandleFunc("/ws", s.handleWebSocket)
	return s.addMiddleware(mux)
}

func (s *PreviewServer) setupWatcher(ctx context.Context) {
	s.watcher.AddFilter(watcher.MarkdownFilter)
	s.watcher.AddFilter(watcher.NoGitFilter)
	s.watcher.AddFilter(watcher.NoNodeModulesFilter)
	s.watcher.AddFilter(watcher.NoHiddenFilter)
	if len(s.config.Docs.ExcludePatterns) > 0 {
		s.watcher.AddFilter(watcher.ExcludeFilter(s.config.Docs.ExcludePatterns...))
	}
	s.watcher.AddHandler(s.handleFileChange(ctx))

	for _, path := range s.watchPaths() {
		if err := s.watcher.AddRecursive(path); err != nil {
			s.logger.Warn(ctx, err, "failed to watch path", "path", path)
		}
	}
	if err := s.watcher.Start(ctx); err != nil {
		s.logger.Warn(ctx, err, "failed to start file watcher")
	}
}

// watchPaths resolves the configured watch paths against the corpus base
// directory, falling back to the scan paths when none are set.
func (s *PreviewServer) watchPaths() []string {
	paths := s.config.Watch.Paths
	if len(paths) == 0 {
		paths = s.config.Docs.ScanPaths
	}
	base := s.config.ResolvedBaseDir()
	resolved := make([]string, 0, len(paths))
	for _, p := range paths {
		if !filepath.IsAbs(p) {
			p = filepath.Join(base, p)
		}
		resolved = append(resolved, p)
	}
	return resolved
}

func (s *PreviewServer) initialScan(ctx context.Context) {
	for _, path := range s.config.Docs.ScanPaths {
		if err := s.scanner.ScanDirectory(path); err != nil {
			s.logger.Warn(ctx, err, "scan failed", "path", path)
		}
	}
	s.logger.Info(ctx, "initial scan complete", "documents", s.registry.Count())
}

// handleFileChange returns the watcher callback: rescan what changed, then
// rebuild the ruleset from the root. Event paths are normalized against the
// scanner's base directory because registry keys are absolute.
func (s *PreviewServer) handleFileChange(ctx context.Context) watcher.ChangeHandler {
	return func(events []watcher.ChangeEvent) error {
		graph := registry.NewIncludeGraph(s.registry)
		for _, event := range events {
			path := event.Path
			if !filepath.IsAbs(path) {
				path = filepath.Join(s.scanner.BaseDir(), path)
			}

			s.logger.Debug(ctx, "document changed",
				"path", event.Path,
				"event", event.Type.String())
			if deps := graph.Dependents(path); len(deps) > 0 {
				s.logger.Debug(ctx, "change invalidates including documents",
					"path", event.Path,
					"dependents", len(deps))
			}

			if event.Type == watcher.EventTypeDeleted {
				s.registry.Remove(path)
				continue
			}
			if err := s.scanner.ScanFile(path); err != nil {
				s.logger.Warn(ctx, err, "rescan failed", "path", event.Path)
			}
		}
		s.reloadRuleset(ctx)
		return nil
	}
}

// rootPath resolves the configured root document against the configured base
// directory. A relative root without an explicit base directory stays
// relative to the working directory.
func (s *PreviewServer) rootPath() string {
	root := s.config.Root
	if !filepath.IsAbs(root) && s.config.Docs.BaseDir != "" {
		root = filepath.Join(s.config.Docs.BaseDir, root)
	}
	return root
}

// reloadRuleset loads the corpus from the configured root and swaps the
// result in atomically. A failed load keeps the last good ruleset, marks it
// stale, and reports the failure to connected browsers.
func (s *PreviewServer) reloadRuleset(ctx context.Context) {
	rs, err := s.loader.Load(ctx, s.rootPath())

	s.rulesetMutex.Lock()
	if err != nil {
		s.stale = s.ruleset != nil
		s.lastLoadErr = err
		s.rulesetMutex.Unlock()

		s.logger.Error(ctx, err, "ruleset load failed", "root", s.config.Root)
		s.broadcastMessage(UpdateMessage{
			Type:      "load_error",
			Content:   err.Error(),
			Timestamp: time.Now(),
		})
		return
	}
	s.ruleset = rs
	s.stale = false
	s.lastLoadErr = nil
	s.rulesetMutex.Unlock()

	s.logger.Info(ctx, "ruleset loaded",
		"root", s.config.Root,
		"documents", len(rs.Documents))
	s.broadcastMessage(UpdateMessage{
		Type:      "ruleset_updated",
		Target:    rs.Root,
		Timestamp: time.Now(),
	})
}

// rulesetSnapshot returns the current ruleset state under the read lock.
func (s *PreviewServer) rulesetSnapshot() (*types.RuleSet, bool, error) {
	s.rulesetMutex.RLock()
	defer s.rulesetMutex.RUnlock()
	return s.ruleset, s.stale, s.lastLoadErr
}

func (s *PreviewServer) broadcastMessage(msg UpdateMessage) {
	jsonData, err := json.Marshal(msg)
	if err != nil {
		jsonData = []byte(`{"type":"ruleset_updated"}`)
	}
	select {
	case s.broadcast <- jsonData:
	default:
		// nobody draining, drop the update
	}
}

func (s *PreviewServer) openBrowser(ctx context.Context, url string) {
	// give the listener a moment to come up
	time.Sleep(100 * time.Millisecond)

	if !strings.HasPrefix(url, "http://") && !strings.HasPrefix(url, "https://") {
		return
	}

	var err error
	switch runtime.GOOS {
	case "linux":
		err = exec.Command("xdg-open", url).Start()
	case "windows":
		err = exec.Command("rundll32", "url.dll,FileProtocolHandler", url).Start()
	case "darwin":
		err = exec.Command("open", url).Start()
	default:
		err = fmt.Errorf("unsupported platform: %s", runtime.GOOS)
	}
	if err != nil {
		s.logger.Warn(ctx, err, "failed to open browser", "url", url)
	}
}

// Shutdown stops the watcher, disconnects preview clients, and shuts the
// HTTP server down gracefully. Safe to call more than once.
func (s *PreviewServer) Shutdown(ctx context.Context) error {
	var shutdownErr error

	s.shutdownOnce.Do(func() {
		s.logger.Info(ctx, "shutting down preview server")

		if err := s.watcher.Stop(); err != nil {
			s.logger.Warn(ctx, err, "stopping watcher")
		}
		if err := s.scanner.Close(); err != nil {
			s.logger.Warn(ctx, err, "closing scanner")
		}

		s.clientsMutex.Lock()
		for conn, client := range s.clients {
			close(client.send)
			_ = conn.Close(websocket.StatusNormalClosure, "server shutting down")
		}
		s.clients = make(map[*websocket.Conn]*Client)
		s.clientsMutex.Unlock()

		s.serverMutex.RLock()
		server := s.httpServer
		s.serverMutex.RUnlock()
		if server != nil {
			shutdownErr = server.Shutdown(ctx)
		}
	})

	return shutdownErr
}
