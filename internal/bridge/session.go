package bridge

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"sync"

	"github.com/yuefengz/workflow-use/internal/browser"
)

// maxLine bounds a single response line. Agent histories can carry large
// extracted page content.
const maxLine = 4 * 1024 * 1024

// conn is a synchronous request/response pipe to a backend process.
// One request is in flight at a time.
type conn struct {
	mu      sync.Mutex
	stdin   io.Writer
	scanner *bufio.Scanner
	broken  bool
}

func newConn(stdin io.Writer, stdout io.Reader) *conn {
	sc := bufio.NewScanner(stdout)
	sc.Buffer(make([]byte, 0, 64*1024), maxLine)
	return &conn{stdin: stdin, scanner: sc}
}

// call writes one request line and reads one response line. A context
// cancellation mid-read leaves the pipe out of sync, so the conn is
// marked broken and refuses further calls; the owner is expected to
// tear the process down.
func (c *conn) call(ctx context.Context, req *Request) (*Response, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.broken {
		return nil, fmt.Errorf("bridge connection is broken")
	}

	data, err := Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("encoding %s request: %w", req.Type, err)
	}
	if _, err := c.stdin.Write(append(data, '\n')); err != nil {
		c.broken = true
		return nil, fmt.Errorf("writing %s request: %w", req.Type, err)
	}

	type read struct {
		resp *Response
		err  error
	}
	ch := make(chan read, 1)
	go func() {
		if !c.scanner.Scan() {
			err := c.scanner.Err()
			if err == nil {
				err = io.EOF
			}
			ch <- read{nil, fmt.Errorf("bridge closed: %w", err)}
			return
		}
		resp, err := ParseResponse(c.scanner.Bytes())
		ch <- read{resp, err}
	}()

	select {
	case <-ctx.Done():
		c.broken = true
		return nil, ctx.Err()
	case r := <-ch:
		if r.err != nil {
			c.broken = true
			return nil, r.err
		}
		return r.resp, nil
	}
}

// respErr converts an error response into a Go error. A no_match code
// maps onto browser.ErrNoMatch so callers can treat it as a lookup miss
// rather than a backend fault.
func respErr(resp *Response) error {
	if resp.Type != MsgError {
		return nil
	}
	if resp.Code == ErrCodeNoMatch {
		if resp.Message != "" {
			return fmt.Errorf("%s: %w", resp.Message, browser.ErrNoMatch)
		}
		return browser.ErrNoMatch
	}
	return errors.New(resp.Message)
}

// Driver launches a browser backend process per session. The command is
// run through `sh -c`, so it may carry its own arguments.
type Driver struct {
	command string
	logger  *slog.Logger
}

// NewDriver creates a driver for the given backend command.
func NewDriver(command string, logger *slog.Logger) *Driver {
	if logger == nil {
		logger = slog.Default()
	}
	return &Driver{command: command, logger: logger}
}

// Open starts the backend process and returns a session speaking the
// bridge protocol over its stdin/stdout. The backend's stderr passes
// through to ours.
func (d *Driver) Open(ctx context.Context) (browser.Session, error) {
	if d.command == "" {
		return nil, fmt.Errorf("no browser bridge command configured")
	}

	cmd := exec.Command("sh", "-c", d.command)
	cmd.Stderr = os.Stderr
	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("browser bridge stdin: %w", err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("browser bridge stdout: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("starting browser bridge %q: %w", d.command, err)
	}
	d.logger.Debug("browser bridge started", "command", d.command, "pid", cmd.Process.Pid)

	return &Session{
		conn:   newConn(stdin, stdout),
		stdin:  stdin,
		cmd:    cmd,
		logger: d.logger,
	}, nil
}

// Session drives one backend process.
type Session struct {
	conn   *conn
	stdin  io.Closer
	cmd    *exec.Cmd
	logger *slog.Logger

	handleMu sync.Mutex
	handle   string

	closeOnce sync.Once
	closeErr  error
}

var _ browser.Session = (*Session)(nil)

func (s *Session) Navigate(ctx context.Context, url string) error {
	resp, err := s.conn.call(ctx, &Request{Type: MsgNavigate, URL: url})
	if err != nil {
		return err
	}
	return respErr(resp)
}

func (s *Session) Resolve(ctx context.Context, loc browser.Locator) (browser.Element, browser.Strategy, error) {
	resp, err := s.conn.call(ctx, &Request{
		Type: MsgResolve,
		Locator: &LocatorPayload{
			CSSSelector: loc.CSSSelector,
			XPath:       loc.XPath,
			ElementTag:  loc.ElementTag,
			ElementText: loc.ElementText,
			TimeoutMS:   loc.Timeout.Milliseconds(),
		},
	})
	if err != nil {
		return nil, "", err
	}
	if err := respErr(resp); err != nil {
		return nil, "", err
	}
	if resp.Type != MsgElement || resp.ID == "" {
		return nil, "", fmt.Errorf("bridge resolve returned %q without an element id", resp.Type)
	}
	return &element{conn: s.conn, id: resp.ID, tag: resp.Tag}, browser.Strategy(resp.Strategy), nil
}

func (s *Session) Scroll(ctx context.Context, dx, dy int) error {
	resp, err := s.conn.call(ctx, &Request{Type: MsgScroll, ScrollX: dx, ScrollY: dy})
	if err != nil {
		return err
	}
	return respErr(resp)
}

func (s *Session) URL(ctx context.Context) (string, error) {
	resp, err := s.conn.call(ctx, &Request{Type: MsgURL})
	if err != nil {
		return "", err
	}
	if err := respErr(resp); err != nil {
		return "", err
	}
	return resp.URL, nil
}

// Handle returns the backend's attach handle for this session, such as a
// DevTools endpoint, fetched once and cached. Agent backends use it to
// drive the same browser the deterministic steps ran against.
func (s *Session) Handle(ctx context.Context) (string, error) {
	s.handleMu.Lock()
	defer s.handleMu.Unlock()
	if s.handle != "" {
		return s.handle, nil
	}

	resp, err := s.conn.call(ctx, &Request{Type: MsgHandle})
	if err != nil {
		return "", err
	}
	if err := respErr(resp); err != nil {
		return "", err
	}
	if resp.Value == "" {
		return "", fmt.Errorf("browser bridge returned an empty session handle")
	}
	s.handle = resp.Value
	return s.handle, nil
}

// Close asks the backend to shut down, closes its stdin and waits for
// the process to exit. A backend that ignores both the close request
// and the pipe closing is killed when the context expires.
func (s *Session) Close(ctx context.Context) error {
	s.closeOnce.Do(func() {
		if resp, err := s.conn.call(ctx, &Request{Type: MsgClose}); err == nil {
			s.closeErr = respErr(resp)
		}
		if s.stdin != nil {
			s.stdin.Close()
		}
		if s.cmd == nil {
			return
		}

		done := make(chan error, 1)
		go func() { done <- s.cmd.Wait() }()
		select {
		case err := <-done:
			if err != nil && s.closeErr == nil {
				s.closeErr = fmt.Errorf("browser bridge exited: %w", err)
			}
		case <-ctx.Done():
			s.logger.Warn("browser bridge ignored shutdown, killing", "pid", s.cmd.Process.Pid)
			s.cmd.Process.Kill()
			<-done
			if s.closeErr == nil {
				s.closeErr = fmt.Errorf("browser bridge killed: %w", ctx.Err())
			}
		}
	})
	return s.closeErr
}

// element is a handle to a backend-side element, addressed by the id
// the backend assigned at resolve time.
type element struct {
	conn *conn
	id   string
	tag  string
}

var _ browser.Element = (*element)(nil)

func (e *element) TagName() string {
	return e.tag
}

func (e *element) Click(ctx context.Context, opts browser.ClickOptions) error {
	resp, err := e.conn.call(ctx, &Request{Type: MsgClick, Element: e.id, Force: opts.Force})
	if err != nil {
		return err
	}
	return respErr(resp)
}

func (e *element) Fill(ctx context.Context, value string) error {
	resp, err := e.conn.call(ctx, &Request{Type: MsgFill, Element: e.id, Value: value})
	if err != nil {
		return err
	}
	return respErr(resp)
}

func (e *element) SelectLabel(ctx context.Context, label string) (string, error) {
	resp, err := e.conn.call(ctx, &Request{Type: MsgSelect, Element: e.id, Label: label})
	if err != nil {
		return "", err
	}
	if err := respErr(resp); err != nil {
		return "", err
	}
	return resp.Value, nil
}

func (e *element) Press(ctx context.Context, key string) error {
	resp, err := e.conn.call(ctx, &Request{Type: MsgPress, Element: e.id, Key: key})
	if err != nil {
		return err
	}
	return respErr(resp)
}
