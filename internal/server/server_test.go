package server

import (
	"bufio"
	"encoding/json"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cxindex/internal/frontend"
	"cxindex/internal/protocol"
)

func newTestServer(t *testing.T, fe frontend.FrontEnd) *Server {
	t.Helper()
	s := NewServer(Options{
		ListenTCP:   "127.0.0.1:0",
		DataDir:     t.TempDir(),
		FrontEnd:    fe,
		ThreadCount: 2,
	})
	go func() {
		_ = s.Run()
	}()

	deadline := time.Now().Add(2 * time.Second)
	for s.Addr() == "" && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	require.NotEmpty(t, s.Addr())
	t.Cleanup(func() { _ = s.Shutdown() })
	return s
}

func dial(t *testing.T, addr string) net.Conn {
	t.Helper()
	conn, err := net.Dial("tcp", addr)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func readResponses(t *testing.T, conn net.Conn) []string {
	t.Helper()
	r := bufio.NewReader(conn)
	var out []string
	for {
		env, err := protocol.ReadEnvelope(r)
		require.NoError(t, err)
		if env == nil {
			return out
		}
		require.Equal(t, protocol.KindResponse, env.Kind)
		var resp protocol.ResponseMessage
		require.NoError(t, json.Unmarshal(env.Payload, &resp))
		out = append(out, string(resp.Bytes))
	}
}

func TestProjectMessageCreatesProjectAndIndexesTrackedFiles(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(root, "a.c"), []byte("int foo(void) { return 0; }"), 0o644))

	fe := frontend.NewTextScanFrontEnd(map[string]string{
		filepath.Join(root, "a.c"): "int foo(void) { return 0; }",
	})
	s := newTestServer(t, fe)
	conn := dial(t, s.Addr())

	require.NoError(t, protocol.WriteProject(conn, protocol.ProjectMessage{
		Type: protocol.ProjectMakefile,
		Path: root,
	}))
	resps := readResponses(t, conn)
	require.Len(t, resps, 1)

	resolved, err := filepath.EvalSymlinks(root)
	if err != nil {
		resolved = root
	}
	assert.Equal(t, filepath.Clean(resolved), resps[0])

	assert.Eventually(t, func() bool {
		return len(s.sortedProjectRoots()) == 1
	}, time.Second, 10*time.Millisecond)
}

func TestStatusQueryReportsProjectCount(t *testing.T) {
	s := newTestServer(t, frontend.NewTextScanFrontEnd(nil))
	conn := dial(t, s.Addr())

	require.NoError(t, protocol.WriteQuery(conn, protocol.QueryMessage{Type: protocol.QueryStatus}))
	resps := readResponses(t, conn)
	require.Len(t, resps, 1)
	assert.Contains(t, resps[0], "0 project(s)")
}

func TestDumpFileQueryStopsAfterClientDisconnects(t *testing.T) {
	root := t.TempDir()
	var src strings.Builder
	contents := make(map[string]string)
	aPath := filepath.Join(root, "a.c")
	for i := 0; i < 200; i++ {
		fmt.Fprintf(&src, "void f%d(void) {}\n", i)
	}
	contents[aPath] = src.String()

	fe := frontend.NewTextScanFrontEnd(contents)
	s := newTestServer(t, fe)

	require.NoError(t, os.WriteFile(aPath, []byte(contents[aPath]), 0o644))
	conn := dial(t, s.Addr())
	require.NoError(t, protocol.WriteProject(conn, protocol.ProjectMessage{Type: protocol.ProjectMakefile, Path: root}))
	readResponses(t, conn)

	resolved, err := filepath.EvalSymlinks(root)
	if err != nil {
		resolved = root
	}
	resolvedA := filepath.Join(resolved, "a.c")

	assert.Eventually(t, func() bool {
		c := dial(t, s.Addr())
		require.NoError(t, protocol.WriteQuery(c, protocol.QueryMessage{
			Type:     protocol.QueryIsIndexed,
			Location: &protocol.RawLocation{Path: resolvedA},
		}))
		resps := readResponses(t, c)
		return len(resps) == 1 && resps[0] == "true"
	}, 2*time.Second, 20*time.Millisecond)

	dumpConn := dial(t, s.Addr())
	require.NoError(t, protocol.WriteQuery(dumpConn, protocol.QueryMessage{
		Type:  protocol.QueryDumpFile,
		Query: resolvedA,
	}))
	// Read exactly one chunk, then disconnect mid-stream: dumpFileQuery
	// still has up to 199 more Symbol records to visit.
	r := bufio.NewReader(dumpConn)
	_, err = protocol.ReadEnvelope(r)
	require.NoError(t, err)
	require.NoError(t, dumpConn.Close())

	// A fresh connection must still get a prompt reply: the aborted dump
	// must not be holding the server, a lock, or a goroutine hostage.
	statusConn := dial(t, s.Addr())
	require.NoError(t, protocol.WriteQuery(statusConn, protocol.QueryMessage{Type: protocol.QueryStatus}))
	type result struct {
		resps []string
		err   error
	}
	done := make(chan result, 1)
	go func() {
		sr := bufio.NewReader(statusConn)
		var out []string
		for {
			env, err := protocol.ReadEnvelope(sr)
			if err != nil {
				done <- result{out, err}
				return
			}
			if env == nil {
				done <- result{out, nil}
				return
			}
			var resp protocol.ResponseMessage
			if err := json.Unmarshal(env.Payload, &resp); err != nil {
				done <- result{out, err}
				return
			}
			out = append(out, string(resp.Bytes))
		}
	}()
	select {
	case res := <-done:
		require.NoError(t, res.err)
		require.Len(t, res.resps, 1)
	case <-time.After(2 * time.Second):
		t.Fatal("status query did not return promptly after a dump-file client disconnected mid-stream")
	}
}

func TestIsIndexedQueryReflectsIndexingProgress(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(root, "a.c"), []byte("int foo(void) { return 0; }"), 0o644))

	fe := frontend.NewTextScanFrontEnd(map[string]string{
		filepath.Join(root, "a.c"): "int foo(void) { return 0; }",
	})
	s := newTestServer(t, fe)
	conn := dial(t, s.Addr())

	require.NoError(t, protocol.WriteProject(conn, protocol.ProjectMessage{Type: protocol.ProjectMakefile, Path: root}))
	readResponses(t, conn)

	resolved, err := filepath.EvalSymlinks(root)
	if err != nil {
		resolved = root
	}
	aPath := filepath.Join(resolved, "a.c")

	assert.Eventually(t, func() bool {
		conn2 := dial(t, s.Addr())
		require.NoError(t, protocol.WriteQuery(conn2, protocol.QueryMessage{
			Type:     protocol.QueryIsIndexed,
			Location: &protocol.RawLocation{Path: aPath},
		}))
		resps := readResponses(t, conn2)
		return len(resps) == 1 && resps[0] == "true"
	}, 2*time.Second, 20*time.Millisecond)
}
