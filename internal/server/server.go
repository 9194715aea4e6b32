// Package server multiplexes client connections over a local socket: it
// owns the set of Projects, routes index submissions and queries to the
// right one by longest-source-root-prefix match, and tracks in-flight
// query jobs by job id. A streaming query stops at the first chunk
// write that fails, which is how a client disconnect ends it; the
// connection's context is cancelled only after the query has returned
// and the read loop sees the close. The listener prefers a
// Unix domain socket, falling back to TCP for non-Unix development, and
// speaks internal/protocol's length-prefixed envelopes.
package server

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/google/uuid"

	"cxindex/internal/config"
	"cxindex/internal/cxerrors"
	"cxindex/internal/frontend"
	"cxindex/internal/indexerjob"
	"cxindex/internal/location"
	"cxindex/internal/logging"
	"cxindex/internal/project"
	"cxindex/internal/protocol"
	"cxindex/internal/store"
	"cxindex/internal/symbol"
	"cxindex/internal/version"
)

// Options configures a Server's dual-listener setup.
type Options struct {
	// ListenUnix is the Unix domain socket path to bind. Preferred when
	// non-empty.
	ListenUnix string
	// ListenTCP is the fallback TCP address (host:port) used when
	// ListenUnix is empty or cannot be bound, e.g. on platforms without
	// Unix sockets.
	ListenTCP string

	// DataDir holds one subdirectory per project
	// (DataDir/projects/<encoded-path>).
	DataDir string

	FrontEnd    frontend.FrontEnd
	Logger      *logging.Logger
	ThreadCount int

	IncludeGlobs []string
	ExcludeGlobs []string
}

// Server is the daemon's connection multiplexer and project registry.
type Server struct {
	opts Options

	mu       sync.RWMutex
	projects map[string]*project.Project // keyed by ResolvedSrcRoot
	current  string                      // ResolvedSrcRoot of the most recently touched project

	listener  net.Listener
	closeOnce sync.Once
	closed    chan struct{}

	pendingMu sync.Mutex
	pending   map[string]context.CancelFunc // job_id -> cancel, for query jobs in flight
}

// NewServer builds a Server with an empty project set. LoadConfig can be
// used afterward to populate it from an on-disk config.File.
func NewServer(opts Options) *Server {
	if opts.Logger == nil {
		opts.Logger = logging.New(nil, 256)
	}
	return &Server{
		opts:     opts,
		projects: make(map[string]*project.Project),
		closed:   make(chan struct{}),
		pending:  make(map[string]context.CancelFunc),
	}
}

// LoadConfig opens every project named in cfg (its Makefiles/GRTags/
// SmartProjects groups).
func (s *Server) LoadConfig(cfg *config.File) error {
	for _, entry := range cfg.Projects() {
		kind := protocol.ProjectMakefile
		switch entry.Kind {
		case config.KindGRTags:
			kind = protocol.ProjectGRTags
		case config.KindSmart:
			kind = protocol.ProjectSmart
		}
		var extra []string
		if entry.Entry != nil {
			extra = entry.Entry.ExtraFlags
		}
		path := entry.Name
		if entry.Entry != nil && entry.Entry.Path != "" {
			path = entry.Entry.Path
		}
		if _, err := s.openProject(protocol.ProjectMessage{Type: kind, Path: path, ExtraFlags: extra}); err != nil {
			return fmt.Errorf("server: loading project %q: %w", path, err)
		}
	}
	return nil
}

// Run listens and accepts connections until Close is called.
func (s *Server) Run() error {
	ln, err := s.listen()
	if err != nil {
		return err
	}

	s.mu.Lock()
	s.listener = ln
	s.mu.Unlock()

	for {
		conn, err := ln.Accept()
		if err != nil {
			if s.isClosed() {
				return nil
			}
			return err
		}
		go s.handleConn(conn)
	}
}

func (s *Server) listen() (net.Listener, error) {
	if s.opts.ListenUnix != "" {
		_ = os.Remove(s.opts.ListenUnix)
		if err := os.MkdirAll(filepath.Dir(s.opts.ListenUnix), 0o755); err != nil {
			return nil, cxerrors.NewFatal("bind "+s.opts.ListenUnix, err)
		}
		ln, err := net.Listen("unix", s.opts.ListenUnix)
		if err == nil {
			return ln, nil
		}
		if s.opts.ListenTCP == "" {
			return nil, cxerrors.NewFatal("bind "+s.opts.ListenUnix, err)
		}
		s.opts.Logger.Warnf("server: unix listen %s failed (%v), falling back to tcp %s", s.opts.ListenUnix, err, s.opts.ListenTCP)
	}
	ln, err := net.Listen("tcp", s.opts.ListenTCP)
	if err != nil {
		return nil, cxerrors.NewFatal("bind "+s.opts.ListenTCP, err)
	}
	return ln, nil
}

// Addr returns the active listener's address, or "" before Run or after
// Close.
func (s *Server) Addr() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

// Close stops accepting new connections. It does not unload projects;
// callers that want a clean exit should call Shutdown instead.
func (s *Server) Close() error {
	s.closeOnce.Do(func() { close(s.closed) })

	s.mu.Lock()
	ln := s.listener
	s.listener = nil
	s.mu.Unlock()

	if ln == nil {
		return nil
	}
	return ln.Close()
}

// Shutdown closes the listener and unloads every project, flushing and
// persisting their final state before returning.
func (s *Server) Shutdown() error {
	_ = s.Close()

	s.mu.Lock()
	projects := make([]*project.Project, 0, len(s.projects))
	for _, p := range s.projects {
		projects = append(projects, p)
	}
	s.projects = make(map[string]*project.Project)
	s.current = ""
	s.mu.Unlock()

	var firstErr error
	for _, p := range projects {
		if err := p.Unload(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

func (s *Server) isClosed() bool {
	select {
	case <-s.closed:
		return true
	default:
		return false
	}
}

func (s *Server) handleConn(conn net.Conn) {
	defer conn.Close()

	connCtx, cancel := context.WithCancel(context.Background())
	defer cancel()

	for {
		env, err := protocol.ReadEnvelope(conn)
		if err != nil {
			if !errors.Is(err, io.EOF) {
				s.opts.Logger.Debugf("server: connection read error: %v", err)
			}
			cancel()
			return
		}
		if env == nil {
			continue
		}

		switch env.Kind {
		case protocol.KindProject:
			s.handleProjectMessage(conn, env)
		case protocol.KindQuery:
			s.handleQueryMessage(connCtx, conn, env)
		case protocol.KindCreateOutput:
			s.handleCreateOutput(conn, env)
		default:
			s.opts.Logger.Warnf("server: unexpected envelope kind %q", env.Kind)
		}
	}
}

func (s *Server) handleProjectMessage(conn net.Conn, env *protocol.Envelope) {
	msg, err := protocol.DecodeProject(env)
	if err != nil {
		_ = protocol.WriteResponse(conn, protocol.ResponseMessage{Bytes: []byte(err.Error())})
		_ = protocol.WriteTerminator(conn)
		return
	}

	p, err := s.openProject(msg)
	if err != nil {
		_ = protocol.WriteResponse(conn, protocol.ResponseMessage{Bytes: []byte(err.Error())})
		_ = protocol.WriteTerminator(conn)
		return
	}
	_ = protocol.WriteResponse(conn, protocol.ResponseMessage{Bytes: []byte(p.ResolvedSrcRoot())})
	_ = protocol.WriteTerminator(conn)
}

// openProject looks up or creates the Project msg.Path names. Args
// become the default compile arguments used for every tracked source
// file; ExtraFlags are appended to whatever the build system itself
// supplies (a makefile reader outside this daemon's scope).
func (s *Server) openProject(msg protocol.ProjectMessage) (*project.Project, error) {
	resolved, err := filepath.Abs(msg.Path)
	if err != nil {
		return nil, err
	}
	resolved = filepath.Clean(resolved)

	s.mu.Lock()
	if existing, ok := s.projects[resolved]; ok {
		s.current = resolved
		s.mu.Unlock()
		return existing, nil
	}
	s.mu.Unlock()

	dataDir := filepath.Join(s.opts.DataDir, "projects", encodeProjectPath(resolved))
	p, err := project.New(project.Config{
		SrcRoot:            msg.Path,
		DataDir:            dataDir,
		FrontEnd:           s.opts.FrontEnd,
		Logger:             s.opts.Logger,
		IndexerEnabled:     true,
		FileManagerEnabled: true,
		WatchEnabled:       true,
		ThreadCount:        s.opts.ThreadCount,
		IncludeGlobs:       s.opts.IncludeGlobs,
		ExcludeGlobs:       s.opts.ExcludeGlobs,
	})
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	s.projects[p.ResolvedSrcRoot()] = p
	s.current = p.ResolvedSrcRoot()
	s.mu.Unlock()

	submitTrackedFiles(p, msg.Args, msg.ExtraFlags)
	return p, nil
}

func submitTrackedFiles(p *project.Project, args, extraFlags []string) {
	ix := p.Indexer()
	fm := p.FileManager()
	if ix == nil || fm == nil {
		return
	}
	compileArgs := append(append([]string{}, args...), extraFlags...)

	ix.BeginMakefile()
	for _, rel := range fm.Files() {
		ix.Index(filepath.Join(p.ResolvedSrcRoot(), rel), compileArgs, indexerjob.Makefile)
	}
	ix.EndMakefile()
}

// encodeProjectPath turns an absolute path into a filesystem-safe
// directory name under dataDir/projects/.
func encodeProjectPath(path string) string {
	replacer := strings.NewReplacer(string(filepath.Separator), "_", ":", "_")
	return replacer.Replace(strings.TrimPrefix(path, string(filepath.Separator)))
}

// projectForLocation implements update_project_for_location: the Project
// whose ResolvedSrcRoot is the longest prefix of path.
func (s *Server) projectForLocation(path string) *project.Project {
	abs, err := filepath.Abs(path)
	if err != nil {
		abs = path
	}
	abs = filepath.Clean(abs)

	s.mu.RLock()
	defer s.mu.RUnlock()

	var best *project.Project
	bestLen := -1
	for root, p := range s.projects {
		if !strings.HasPrefix(abs, root) {
			continue
		}
		if len(root) > bestLen {
			best = p
			bestLen = len(root)
		}
	}
	if best != nil {
		return best
	}
	if s.current != "" {
		return s.projects[s.current]
	}
	return nil
}

func (s *Server) handleCreateOutput(conn net.Conn, env *protocol.Envelope) {
	msg, err := protocol.DecodeCreateOutput(env)
	if err != nil {
		return
	}
	level := logging.LevelInfo
	switch msg.Level {
	case "error":
		level = logging.LevelError
	case "warn":
		level = logging.LevelWarn
	case "debug":
		level = logging.LevelDebug
	}

	sink := &connSink{conn: conn}
	s.opts.Logger.Subscribe(sink, level)
}

// connSink adapts a net.Conn into a logging.Sink that streams
// ResponseMessage chunks for every accepted log entry.
type connSink struct {
	mu   sync.Mutex
	conn net.Conn
}

func (c *connSink) Accept(e logging.Entry) {
	c.mu.Lock()
	defer c.mu.Unlock()
	_ = protocol.WriteResponse(c.conn, protocol.ResponseMessage{Bytes: []byte(e.Message)})
}

func (s *Server) handleQueryMessage(ctx context.Context, conn net.Conn, env *protocol.Envelope) {
	msg, err := protocol.DecodeQuery(env)
	if err != nil {
		_ = protocol.WriteResponse(conn, protocol.ResponseMessage{Bytes: []byte(cxerrors.NewProtocolError(err.Error()).Error())})
		_ = protocol.WriteTerminator(conn)
		return
	}

	jobID := uuid.NewString()
	jobCtx, cancel := context.WithCancel(ctx)
	s.pendingMu.Lock()
	s.pending[jobID] = cancel
	s.pendingMu.Unlock()
	defer func() {
		s.pendingMu.Lock()
		delete(s.pending, jobID)
		s.pendingMu.Unlock()
		cancel()
	}()

	w := &chunkWriter{ctx: jobCtx, conn: conn}
	s.dispatchQuery(jobCtx, msg, w)
	_ = protocol.WriteTerminator(conn)
}

// chunkWriter streams ResponseMessage chunks to a connection, checking
// ctx before every write and reporting false once ctx is cancelled or a
// write fails: the same cooperative-cancellation idiom IndexerJob uses,
// applied here to a query job's output stream. A client disconnect
// surfaces as a failed write; ctx is not cancelled by the disconnect
// while the query is still running.
type chunkWriter struct {
	ctx  context.Context
	conn net.Conn
}

func (w *chunkWriter) write(s string) bool {
	select {
	case <-w.ctx.Done():
		return false
	default:
	}
	if err := protocol.WriteResponse(w.conn, protocol.ResponseMessage{Bytes: []byte(s)}); err != nil {
		return false
	}
	return true
}

func (s *Server) dispatchQuery(ctx context.Context, msg protocol.QueryMessage, w *chunkWriter) {
	switch msg.Type {
	case protocol.QueryStatus:
		s.mu.RLock()
		n := len(s.projects)
		s.mu.RUnlock()
		w.write(fmt.Sprintf("cxindexd %s, %d project(s)", version.String(), n))

	case protocol.QueryShutdown:
		w.write("shutting down")
		go func() { _ = s.Shutdown() }()

	case protocol.QueryReloadProjects, protocol.QueryClearProjects:
		w.write("unsupported outside the daemon's config-driven startup path")

	case protocol.QueryDeleteProject, protocol.QueryUnloadProject:
		s.unloadProjectQuery(msg, w)

	case protocol.QueryIsIndexed:
		s.isIndexedQuery(msg, w)

	case protocol.QueryHasFileManager:
		p := s.resolveProject(msg)
		w.write(fmt.Sprintf("%v", p != nil && p.FileManager() != nil))

	case protocol.QueryReindex:
		s.reindexQuery(msg, w)

	case protocol.QueryFindFile:
		s.findFileQuery(msg, w)

	case protocol.QueryListSymbols, protocol.QueryFindSymbols:
		s.symbolNameQuery(msg, w)

	case protocol.QueryCursorInfo, protocol.QueryFollowLocation, protocol.QueryReferencesLocation:
		s.locationQuery(msg, w)

	case protocol.QueryReferencesName:
		s.referencesNameQuery(msg, w)

	case protocol.QueryDumpFile:
		s.dumpFileQuery(ctx, msg, w)

	case protocol.QueryPreprocessFile, protocol.QueryFixIts, protocol.QueryErrors:
		w.write("unsupported: no C/C++ front-end diagnostics are wired in")

	default:
		w.write(fmt.Sprintf("unknown query type %q", msg.Type))
	}
}

func (s *Server) resolveProject(msg protocol.QueryMessage) *project.Project {
	if msg.Location != nil && msg.Location.Path != "" {
		return s.projectForLocation(msg.Location.Path)
	}
	if msg.Query != "" {
		return s.projectForLocation(msg.Query)
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.current == "" {
		return nil
	}
	return s.projects[s.current]
}

func (s *Server) unloadProjectQuery(msg protocol.QueryMessage, w *chunkWriter) {
	p := s.resolveProject(msg)
	if p == nil {
		w.write("no matching project")
		return
	}
	s.mu.Lock()
	delete(s.projects, p.ResolvedSrcRoot())
	if s.current == p.ResolvedSrcRoot() {
		s.current = ""
	}
	s.mu.Unlock()

	if err := p.Unload(); err != nil {
		w.write(err.Error())
		return
	}
	w.write("unloaded " + p.ResolvedSrcRoot())
}

func (s *Server) isIndexedQuery(msg protocol.QueryMessage, w *chunkWriter) {
	p := s.resolveProject(msg)
	if p == nil || msg.Location == nil {
		w.write("false")
		return
	}
	id := p.Interner().InsertFile(filepath.Clean(msg.Location.Path))
	w.write(fmt.Sprintf("%v", p.IsIndexed(id)))
}

func (s *Server) reindexQuery(msg protocol.QueryMessage, w *chunkWriter) {
	p := s.resolveProject(msg)
	if p == nil || p.Indexer() == nil {
		w.write("no matching project")
		return
	}
	isRegex := hasFlag(msg.Flags, "regex")
	count, err := p.Indexer().Reindex(msg.Query, isRegex)
	if err != nil {
		w.write(err.Error())
		return
	}
	w.write(fmt.Sprintf("%d", count))
}

func (s *Server) findFileQuery(msg protocol.QueryMessage, w *chunkWriter) {
	p := s.resolveProject(msg)
	if p == nil || p.FileManager() == nil {
		return
	}
	for _, rel := range p.FileManager().Files() {
		if strings.Contains(rel, msg.Query) {
			w.write(rel)
		}
	}
}

func (s *Server) symbolNameQuery(msg protocol.QueryMessage, w *chunkWriter) {
	p := s.resolveProject(msg)
	if p == nil {
		return
	}
	names := symbol.NameVariants(msg.Query)
	seen := make(map[location.Location]struct{})
	_ = p.Store().View(func(tx *store.Tx) error {
		for _, name := range names {
			locs, err := tx.GetSymbolName(name)
			if err != nil {
				return err
			}
			for _, loc := range locs.Sorted() {
				if _, ok := seen[loc]; ok {
					continue
				}
				seen[loc] = struct{}{}
				w.write(formatLocation(p, loc))
			}
		}
		return nil
	})
}

func (s *Server) locationQuery(msg protocol.QueryMessage, w *chunkWriter) {
	p := s.resolveProject(msg)
	if p == nil || msg.Location == nil {
		return
	}
	id := p.Interner().FileID(filepath.Clean(msg.Location.Path))
	if id == location.InvalidFileID {
		return
	}
	loc := location.Pack(id, msg.Location.Offset)

	_ = p.Store().View(func(tx *store.Tx) error {
		ci, err := tx.GetSymbol(loc)
		if err != nil || ci.IsEmpty() {
			return nil
		}
		switch msg.Type {
		case protocol.QueryFollowLocation:
			if !ci.Target.IsNull() {
				w.write(formatLocation(p, ci.Target))
			}
		case protocol.QueryReferencesLocation:
			for _, ref := range ci.References.Sorted() {
				w.write(formatLocation(p, ref))
			}
		case protocol.QueryCursorInfo:
			w.write(fmt.Sprintf("%s %s %s", ci.Kind, ci.Name, ci.USR))
		}
		return nil
	})
}

func (s *Server) referencesNameQuery(msg protocol.QueryMessage, w *chunkWriter) {
	p := s.resolveProject(msg)
	if p == nil {
		return
	}
	_ = p.Store().View(func(tx *store.Tx) error {
		locs, err := tx.GetSymbolName(msg.Query)
		if err != nil {
			return err
		}
		for _, declLoc := range locs.Sorted() {
			ci, err := tx.GetSymbol(declLoc)
			if err != nil || ci.IsEmpty() {
				continue
			}
			for _, ref := range ci.References.Sorted() {
				w.write(formatLocation(p, ref))
			}
		}
		return nil
	})
}

// dumpFileQuery streams every Symbol record belonging to msg.Query's
// file, one chunk per record. The stream stops when ctx is cancelled or
// a chunk write fails; a client disconnect is noticed through the failed
// write.
func (s *Server) dumpFileQuery(ctx context.Context, msg protocol.QueryMessage, w *chunkWriter) {
	p := s.resolveProject(msg)
	if p == nil {
		return
	}
	id := p.Interner().FileID(filepath.Clean(msg.Query))
	if id == location.InvalidFileID {
		return
	}

	err := p.Store().View(func(tx *store.Tx) error {
		return tx.ForEach(store.TableSymbol, func(key, _ []byte) error {
			select {
			case <-ctx.Done():
				return cxerrors.NewCancelledJob(msg.Query)
			default:
			}
			loc, err := location.ParsePaddedKey(key)
			if err != nil || loc.FileID() != id {
				return nil
			}
			ci, err := tx.GetSymbol(loc)
			if err != nil || ci.IsEmpty() {
				return nil
			}
			if !w.write(fmt.Sprintf("%s %s %s", formatLocation(p, loc), ci.Kind, ci.Name)) {
				return cxerrors.NewCancelledJob(msg.Query)
			}
			return nil
		})
	})
	var cancelled *cxerrors.CancelledJob
	if errors.As(err, &cancelled) {
		s.opts.Logger.Infof("server: %v", cancelled)
	}
}

func formatLocation(p *project.Project, loc location.Location) string {
	id := loc.FileID()
	if id == location.InvalidFileID || int(id) > p.Interner().Len() {
		return fmt.Sprintf("<invalid>:%d", loc.Offset())
	}
	return fmt.Sprintf("%s:%d", p.Interner().Path(id), loc.Offset())
}

func hasFlag(flags []string, name string) bool {
	for _, f := range flags {
		if f == name {
			return true
		}
	}
	return false
}

// sortedProjectRoots is used by tests to assert on registration order
// without depending on Go's randomized map iteration.
func (s *Server) sortedProjectRoots() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]string, 0, len(s.projects))
	for root := range s.projects {
		out = append(out, root)
	}
	sort.Strings(out)
	return out
}
