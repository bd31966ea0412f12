package watcher

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEventTypeString(t *testing.T) {
	testCases := []struct {
		eventType EventType
		expected  string
	}{
		{EventTypeCreated, "created"},
		{EventTypeModified, "modified"},
		{EventTypeDeleted, "deleted"},
		{EventTypeRenamed, "renamed"},
		{EventType(99), "unknown"},
	}

	for _, tc := range testCases {
		t.Run(tc.expected, func(t *testing.T) {
			assert.Equal(t, tc.expected, tc.eventType.String())
		})
	}
}

func TestNewFileWatcher(t *testing.T) {
	watcher, err := NewFileWatcher(100*time.Millisecond, nil)
	require.NoError(t, err)
	defer watcher.Stop()

	assert.NotNil(t, watcher.watcher)
	assert.NotNil(t, watcher.debouncer)
	assert.NotNil(t, watcher.logger)
	assert.Empty(t, watcher.filters)
	assert.Empty(t, watcher.handlers)
}

func TestFileWatcherAddFilter(t *testing.T) {
	watcher, err := NewFileWatcher(100*time.Millisecond, nil)
	require.NoError(t, err)
	defer watcher.Stop()

	watcher.AddFilter(MarkdownFilter)
	assert.Len(t, watcher.filters, 1)

	watcher.AddFilter(NoDraftFilter)
	assert.Len(t, watcher.filters, 2)
}

func TestFileWatcherAddHandler(t *testing.T) {
	watcher, err := NewFileWatcher(100*time.Millisecond, nil)
	require.NoError(t, err)
	defer watcher.Stop()

	handlerCalled := false
	handler := func(events []ChangeEvent) error {
		handlerCalled = true
		return nil
	}

	watcher.AddHandler(handler)
	assert.Len(t, watcher.handlers, 1)

	watcher.mutex.RLock()
	for _, h := range watcher.handlers {
		h([]ChangeEvent{{Type: EventTypeCreated, Path: "rules/injection.md"}})
	}
	watcher.mutex.RUnlock()

	assert.True(t, handlerCalled)
}

func TestFileWatcherAddPath(t *testing.T) {
	watcher, err := NewFileWatcher(100*time.Millisecond, nil)
	require.NoError(t, err)
	defer watcher.Stop()

	tempDir := t.TempDir()

	err = watcher.AddPath(tempDir)
	assert.NoError(t, err)

	err = watcher.AddPath("/non/existent/path")
	assert.Error(t, err)
}

func TestFileWatcherStartStop(t *testing.T) {
	watcher, err := NewFileWatcher(50*time.Millisecond, nil)
	require.NoError(t, err)
	defer watcher.Stop()

	tempDir := t.TempDir()

	err = watcher.AddPath(tempDir)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var eventReceived bool
	var eventMutex sync.Mutex

	watcher.AddHandler(func(events []ChangeEvent) error {
		eventMutex.Lock()
		eventReceived = true
		eventMutex.Unlock()
		return nil
	})

	err = watcher.Start(ctx)
	require.NoError(t, err)

	// Give watcher time to start
	time.Sleep(100 * time.Millisecond)

	testFile := filepath.Join(tempDir, "injection.md")
	err = os.WriteFile(testFile, []byte("# SQL Injection\n"), 0644)
	require.NoError(t, err)

	// Wait for debouncing and event processing
	time.Sleep(200 * time.Millisecond)

	eventMutex.Lock()
	received := eventReceived
	eventMutex.Unlock()

	assert.True(t, received)

	cancel()
	err = watcher.Stop()
	assert.NoError(t, err)
}

func TestFileWatcherFiltersEvents(t *testing.T) {
	watcher, err := NewFileWatcher(50*time.Millisecond, nil)
	require.NoError(t, err)
	defer watcher.Stop()

	tempDir := t.TempDir()

	err = watcher.AddPath(tempDir)
	require.NoError(t, err)

	watcher.AddFilter(MarkdownFilter)

	var seen []string
	var eventMutex sync.Mutex

	watcher.AddHandler(func(events []ChangeEvent) error {
		eventMutex.Lock()
		for _, ev := range events {
			seen = append(seen, filepath.Base(ev.Path))
		}
		eventMutex.Unlock()
		return nil
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	err = watcher.Start(ctx)
	require.NoError(t, err)
	time.Sleep(100 * time.Millisecond)

	require.NoError(t, os.WriteFile(filepath.Join(tempDir, "notes.txt"), []byte("ignored"), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(tempDir, "secrets.md"), []byte("# Secrets\n"), 0644))

	time.Sleep(200 * time.Millisecond)

	eventMutex.Lock()
	defer eventMutex.Unlock()
	assert.Contains(t, seen, "secrets.md")
	assert.NotContains(t, seen, "notes.txt")
}

func TestFileWatcherHandlerErrorKeepsWatching(t *testing.T) {
	watcher, err := NewFileWatcher(50*time.Millisecond, nil)
	require.NoError(t, err)
	defer watcher.Stop()

	tempDir := t.TempDir()

	err = watcher.AddPath(tempDir)
	require.NoError(t, err)

	var batches int
	var eventMutex sync.Mutex

	watcher.AddHandler(func(events []ChangeEvent) error {
		return fmt.Errorf("reload failed")
	})
	watcher.AddHandler(func(events []ChangeEvent) error {
		eventMutex.Lock()
		batches++
		eventMutex.Unlock()
		return nil
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	err = watcher.Start(ctx)
	require.NoError(t, err)
	time.Sleep(100 * time.Millisecond)

	require.NoError(t, os.WriteFile(filepath.Join(tempDir, "first.md"), []byte("# First\n"), 0644))
	time.Sleep(200 * time.Millisecond)
	require.NoError(t, os.WriteFile(filepath.Join(tempDir, "second.md"), []byte("# Second\n"), 0644))
	time.Sleep(200 * time.Millisecond)

	eventMutex.Lock()
	finalBatches := batches
	eventMutex.Unlock()

	// The failing handler must not stop later batches from being delivered
	assert.GreaterOrEqual(t, finalBatches, 2)
}

func TestMarkdownFilter(t *testing.T) {
	testCases := []struct {
		path     string
		expected bool
	}{
		{"security-rules.md", true},
		{"rules/injection.md", true},
		{"main.go", false},
		{"notes.txt", false},
		{"README", false},
	}

	for _, tc := range testCases {
		t.Run(tc.path, func(t *testing.T) {
			result := MarkdownFilter(tc.path)
			assert.Equal(t, tc.expected, result)
		})
	}
}

func TestNoDraftFilter(t *testing.T) {
	testCases := []struct {
		path     string
		expected bool
	}{
		{"security-rules.md", true},
		{"rules/injection.md", true},
		{"rules/injection_draft.md", false},
		{"todo_draft.md", false},
		{"draft.md", true},
	}

	for _, tc := range testCases {
		t.Run(tc.path, func(t *testing.T) {
			result := NoDraftFilter(tc.path)
			assert.Equal(t, tc.expected, result)
		})
	}
}

func TestNoNodeModulesFilter(t *testing.T) {
	testCases := []struct {
		path     string
		expected bool
	}{
		{"rules/injection.md", true},
		{"node_modules/pkg/readme.md", false},
		{"docs/node_modules/readme.md", false},
		{"security-rules.md", true},
	}

	for _, tc := range testCases {
		t.Run(tc.path, func(t *testing.T) {
			result := NoNodeModulesFilter(tc.path)
			assert.Equal(t, tc.expected, result)
		})
	}
}

func TestNoGitFilter(t *testing.T) {
	testCases := []struct {
		path     string
		expected bool
	}{
		{"rules/injection.md", true},
		{".git/config", false},
		{"docs/.git/hooks.md", false},
		{"security-rules.md", true},
	}

	for _, tc := range testCases {
		t.Run(tc.path, func(t *testing.T) {
			result := NoGitFilter(tc.path)
			assert.Equal(t, tc.expected, result)
		})
	}
}

func TestNoHiddenFilter(t *testing.T) {
	testCases := []struct {
		path     string
		expected bool
	}{
		{"rules/injection.md", true},
		{"rules/.injection.md.swp", false},
		{".secrules.yml", false},
		{"security-rules.md", true},
	}

	for _, tc := range testCases {
		t.Run(tc.path, func(t *testing.T) {
			result := NoHiddenFilter(tc.path)
			assert.Equal(t, tc.expected, result)
		})
	}
}

func TestExcludeFilter(t *testing.T) {
	filter := ExcludeFilter("*_draft.md", "node_modules", ".git")

	testCases := []struct {
		path     string
		expected bool
	}{
		{"rules/injection.md", true},
		{"rules/injection_draft.md", false},
		{"node_modules/pkg/readme.md", false},
		{".git/config", false},
		{"security-rules.md", true},
	}

	for _, tc := range testCases {
		t.Run(tc.path, func(t *testing.T) {
			result := filter(tc.path)
			assert.Equal(t, tc.expected, result)
		})
	}
}

func TestDebouncer(t *testing.T) {
	debouncer := &Debouncer{
		delay:   50 * time.Millisecond,
		events:  make(chan ChangeEvent, 100),
		output:  make(chan []ChangeEvent, 10),
		pending: make([]ChangeEvent, 0),
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go debouncer.start(ctx)

	var receivedEvents [][]ChangeEvent
	var eventMutex sync.Mutex

	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case events := <-debouncer.output:
				eventMutex.Lock()
				receivedEvents = append(receivedEvents, events)
				eventMutex.Unlock()
			}
		}
	}()

	// Rapid events for the same path must collapse into one entry
	debouncer.events <- ChangeEvent{Path: "rules/b.md", Type: EventTypeCreated}
	debouncer.events <- ChangeEvent{Path: "rules/a.md", Type: EventTypeCreated}
	debouncer.events <- ChangeEvent{Path: "rules/a.md", Type: EventTypeModified}

	time.Sleep(150 * time.Millisecond)

	eventMutex.Lock()
	finalEvents := receivedEvents
	eventMutex.Unlock()

	require.Len(t, finalEvents, 1)
	batch := finalEvents[0]
	require.Len(t, batch, 2)
	assert.Equal(t, "rules/a.md", batch[0].Path)
	assert.Equal(t, EventTypeModified, batch[0].Type)
	assert.Equal(t, "rules/b.md", batch[1].Path)
}

func TestChangeEvent(t *testing.T) {
	now := time.Now()
	event := ChangeEvent{
		Type:    EventTypeModified,
		Path:    "/corpus/rules/injection.md",
		ModTime: now,
		Size:    1024,
	}

	assert.Equal(t, EventTypeModified, event.Type)
	assert.Equal(t, "/corpus/rules/injection.md", event.Path)
	assert.Equal(t, now, event.ModTime)
	assert.Equal(t, int64(1024), event.Size)
}

func TestFileWatcherValidation(t *testing.T) {
	watcher, err := NewFileWatcher(100*time.Millisecond, nil)
	require.NoError(t, err)
	defer watcher.Stop()

	err = watcher.AddPath("../../../etc")
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "path")

	err = watcher.AddRecursive("../../../etc")
	assert.Error(t, err)
}

func TestFileWatcherConcurrency(t *testing.T) {
	watcher, err := NewFileWatcher(50*time.Millisecond, nil)
	require.NoError(t, err)
	defer watcher.Stop()

	tempDir := t.TempDir()

	err = watcher.AddPath(tempDir)
	require.NoError(t, err)

	var wg sync.WaitGroup
	var eventCount int
	var eventMutex sync.Mutex

	watcher.AddHandler(func(events []ChangeEvent) error {
		eventMutex.Lock()
		eventCount += len(events)
		eventMutex.Unlock()
		return nil
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	err = watcher.Start(ctx)
	require.NoError(t, err)
	time.Sleep(50 * time.Millisecond)

	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			testFile := filepath.Join(tempDir, fmt.Sprintf("rule%d.md", i))
			err := os.WriteFile(testFile, []byte("# Rule\n"), 0644)
			assert.NoError(t, err)
		}(i)
	}

	wg.Wait()

	time.Sleep(200 * time.Millisecond)

	eventMutex.Lock()
	finalCount := eventCount
	eventMutex.Unlock()

	// Debouncing dedupes by path, so at most one event per file
	assert.Greater(t, finalCount, 0)
	assert.LessOrEqual(t, finalCount, 10)
}

func TestFileWatcherDoubleStop(t *testing.T) {
	watcher, err := NewFileWatcher(100*time.Millisecond, nil)
	require.NoError(t, err)

	err = watcher.Stop()
	assert.NoError(t, err)
	err = watcher.Stop()
	assert.NoError(t, err)
}

func TestAddRecursive(t *testing.T) {
	watcher, err := NewFileWatcher(50*time.Millisecond, nil)
	require.NoError(t, err)
	defer watcher.Stop()

	tempDir := t.TempDir()
	subDir := filepath.Join(tempDir, "rules")
	require.NoError(t, os.MkdirAll(subDir, 0755))

	err = watcher.AddRecursive(tempDir)
	assert.NoError(t, err)

	var eventReceived bool
	var eventMutex sync.Mutex

	watcher.AddHandler(func(events []ChangeEvent) error {
		eventMutex.Lock()
		eventReceived = true
		eventMutex.Unlock()
		return nil
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	err = watcher.Start(ctx)
	require.NoError(t, err)
	time.Sleep(100 * time.Millisecond)

	// A write inside the subdirectory must be picked up
	require.NoError(t, os.WriteFile(filepath.Join(subDir, "nested.md"), []byte("# Nested\n"), 0644))
	time.Sleep(200 * time.Millisecond)

	eventMutex.Lock()
	received := eventReceived
	eventMutex.Unlock()

	assert.True(t, received)
}
