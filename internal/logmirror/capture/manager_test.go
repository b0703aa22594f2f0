package capture_test

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"logmirror/internal/logmirror/capture"
	"logmirror/internal/logmirror/gateway"
	"logmirror/internal/logmirror/journal"
)

// fakeGateway hands out one pre-registered stream per container name.
type fakeGateway struct {
	streams map[string]func(ctx context.Context) io.ReadCloser
}

func (g *fakeGateway) Ping(context.Context) error { return nil }

func (g *fakeGateway) Running(context.Context) ([]gateway.Container, error) {
	return nil, nil
}

func (g *fakeGateway) OpenLogStream(ctx context.Context, ctr gateway.Container) (io.ReadCloser, error) {
	open, ok := g.streams[ctr.Name]
	if !ok {
		return nil, errors.New("no such container")
	}
	return open(ctx), nil
}

// pipeStream returns a stream open-func fed by the returned writer. The
// stream honours context cancellation the way an engine stream does: a
// cancelled context ends the read side.
func pipeStream() (func(ctx context.Context) io.ReadCloser, *io.PipeWriter) {
	pr, pw := io.Pipe()
	open := func(ctx context.Context) io.ReadCloser {
		go func() {
			<-ctx.Done()
			pw.CloseWithError(io.EOF)
		}()
		return pr
	}
	return open, pw
}

// stuckStream blocks every Read until Close (or forever when closable is
// false), simulating an unresponsive engine stream.
type stuckStream struct {
	closable bool
	closed   chan struct{}
}

func newStuckStream(closable bool) *stuckStream {
	return &stuckStream{closable: closable, closed: make(chan struct{})}
}

func (s *stuckStream) Read(p []byte) (int, error) {
	if s.closable {
		<-s.closed
		return 0, io.EOF
	}
	select {} // never returns
}

func (s *stuckStream) Close() error {
	select {
	case <-s.closed:
	default:
		close(s.closed)
	}
	return nil
}

func newManager(t *testing.T, gw gateway.Gateway, stopTimeout time.Duration) (*capture.Manager, string) {
	t.Helper()
	dir := t.TempDir()
	j, err := journal.Open(filepath.Join(dir, "daemon.log"))
	if err != nil {
		t.Fatalf("open journal: %v", err)
	}
	t.Cleanup(func() { j.Close() })
	return capture.NewManager(gw, j, stopTimeout), dir
}

func waitForContent(t *testing.T, path, want string) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		data, err := os.ReadFile(path)
		if err == nil && string(data) == want {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	data, _ := os.ReadFile(path)
	t.Fatalf("log file never reached expected content; want %q, have %q", want, data)
}

func TestStartAndStop_StreamsToFile(t *testing.T) {
	open, pw := pipeStream()
	gw := &fakeGateway{streams: map[string]func(context.Context) io.ReadCloser{"web": open}}
	m, dir := newManager(t, gw, time.Second)

	logPath := filepath.Join(dir, "web", "web.log")
	h, err := m.Start(context.Background(), gateway.Container{Name: "web"}, logPath)
	if err != nil {
		t.Fatalf("Start: %v", err)
	}

	go func() {
		pw.Write([]byte("hello\n"))
		pw.Write([]byte("world\n"))
	}()
	waitForContent(t, logPath, "hello\nworld\n")

	if !h.Alive() {
		t.Error("expected task to be alive before Stop")
	}
	if err := m.Stop(h); err != nil {
		t.Fatalf("Stop: %v", err)
	}
	if h.Alive() {
		t.Error("expected task to be dead after Stop")
	}

	// No further writes land after Stop returns.
	data, err := os.ReadFile(logPath)
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != "hello\nworld\n" {
		t.Errorf("unexpected content after stop: %q", data)
	}
}

func TestStart_AppendsToExistingFile(t *testing.T) {
	open, pw := pipeStream()
	gw := &fakeGateway{streams: map[string]func(context.Context) io.ReadCloser{"web": open}}
	m, dir := newManager(t, gw, time.Second)

	logPath := filepath.Join(dir, "web", "web.log")
	if err := os.MkdirAll(filepath.Dir(logPath), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(logPath, []byte("old\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	h, err := m.Start(context.Background(), gateway.Container{Name: "web"}, logPath)
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	pw.Write([]byte("new\n"))
	waitForContent(t, logPath, "old\nnew\n")
	m.Stop(h)
}

func TestStart_UnknownContainerFails(t *testing.T) {
	gw := &fakeGateway{streams: map[string]func(context.Context) io.ReadCloser{}}
	m, dir := newManager(t, gw, time.Second)

	_, err := m.Start(context.Background(), gateway.Container{Name: "ghost"}, filepath.Join(dir, "ghost", "ghost.log"))
	if err == nil {
		t.Fatal("expected error for unknown container")
	}
}

func TestStop_ForceClosesUnresponsiveStream(t *testing.T) {
	s := newStuckStream(true)
	gw := &fakeGateway{streams: map[string]func(context.Context) io.ReadCloser{
		"web": func(context.Context) io.ReadCloser { return s },
	}}
	m, dir := newManager(t, gw, 50*time.Millisecond)

	h, err := m.Start(context.Background(), gateway.Container{Name: "web"}, filepath.Join(dir, "web", "web.log"))
	if err != nil {
		t.Fatalf("Start: %v", err)
	}

	// Graceful cancel does nothing for this stream; Stop must fall back to
	// force-closing it and still return cleanly.
	if err := m.Stop(h); err != nil {
		t.Fatalf("Stop after force-close: %v", err)
	}
	if h.Alive() {
		t.Error("expected task to be dead after forced stop")
	}
}

func TestStop_AbandonsFullyStuckTask(t *testing.T) {
	s := newStuckStream(false)
	gw := &fakeGateway{streams: map[string]func(context.Context) io.ReadCloser{
		"web": func(context.Context) io.ReadCloser { return s },
	}}
	m, dir := newManager(t, gw, 50*time.Millisecond)

	h, err := m.Start(context.Background(), gateway.Container{Name: "web"}, filepath.Join(dir, "web", "web.log"))
	if err != nil {
		t.Fatalf("Start: %v", err)
	}

	err = m.Stop(h)
	if !errors.Is(err, capture.ErrStopTimeout) {
		t.Fatalf("expected ErrStopTimeout, got %v", err)
	}
}

func TestTaskExitsWhenStreamEnds(t *testing.T) {
	open, pw := pipeStream()
	gw := &fakeGateway{streams: map[string]func(context.Context) io.ReadCloser{"web": open}}
	m, dir := newManager(t, gw, time.Second)

	h, err := m.Start(context.Background(), gateway.Container{Name: "web"}, filepath.Join(dir, "web", "web.log"))
	if err != nil {
		t.Fatalf("Start: %v", err)
	}

	pw.Write([]byte("bye\n"))
	pw.Close() // engine ended the stream (container removed)

	deadline := time.Now().Add(2 * time.Second)
	for h.Alive() && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	if h.Alive() {
		t.Fatal("expected task to exit on its own when the stream ends")
	}
	if err := m.Stop(h); err != nil {
		t.Errorf("Stop of already-exited task: %v", err)
	}
}

func TestHandle_SessionIDsAreUnique(t *testing.T) {
	openA, pwA := pipeStream()
	openB, pwB := pipeStream()
	gw := &fakeGateway{streams: map[string]func(context.Context) io.ReadCloser{
		"a": openA, "b": openB,
	}}
	m, dir := newManager(t, gw, time.Second)

	ha, err := m.Start(context.Background(), gateway.Container{Name: "a"}, filepath.Join(dir, "a", "a.log"))
	if err != nil {
		t.Fatal(err)
	}
	hb, err := m.Start(context.Background(), gateway.Container{Name: "b"}, filepath.Join(dir, "b", "b.log"))
	if err != nil {
		t.Fatal(err)
	}
	if ha.SessionID == hb.SessionID || ha.SessionID == "" {
		t.Errorf("expected distinct non-empty session IDs, got %q and %q", ha.SessionID, hb.SessionID)
	}
	pwA.Close()
	pwB.Close()
	m.Stop(ha)
	m.Stop(hb)

	if !strings.HasPrefix(ha.LogPath(), dir) {
		t.Errorf("unexpected log path %q", ha.LogPath())
	}
}
