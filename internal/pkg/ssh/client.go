package ssh

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"golang.org/x/crypto/ssh"
	"golang.org/x/crypto/ssh/knownhosts"
)

type State int

const (
	StateDisconnected State = iota
	StateConnecting
	StateAuthenticating
	StateReady
	StateExecuting
	StateClosed
	StateErrored
)

func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateAuthenticating:
		return "authenticating"
	case StateReady:
		return "ready"
	case StateExecuting:
		return "executing"
	case StateClosed:
		return "closed"
	case StateErrored:
		return "errored"
	default:
		return "State(" + strconv.Itoa(int(s)) + ")"
	}
}

const (
	defaultConnectTimeout = 30 * time.Second
	defaultAuthTimeout    = 20 * time.Second
)

var ErrNoPassword = errors.New("keyboard-interactive challenge received but no password is configured")

type SSHConfig struct {
	Host           string
	Port           int
	Username       string
	Password       string
	PrivateKeyPath string
	Insecure       bool
	KnownHostsPath string
	ConnectTimeout time.Duration
	// AuthTimeout bounds the handshake and every authentication round,
	// keyboard-interactive included.
	AuthTimeout time.Duration
}

// Client owns exactly one SSH connection for one invocation. It never reconnects.
type Client struct {
	config SSHConfig

	mu    sync.Mutex
	state State
	conn  *ssh.Client
}

func NewClient(config SSHConfig) *Client {
	if config.ConnectTimeout <= 0 {
		config.ConnectTimeout = defaultConnectTimeout
	}
	if config.AuthTimeout <= 0 {
		config.AuthTimeout = defaultAuthTimeout
	}
	return &Client{config: config}
}

func (c *Client) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

func (c *Client) Addr() string {
	return net.JoinHostPort(c.config.Host, strconv.Itoa(c.config.Port))
}

func (c *Client) setState(s State) {
	c.mu.Lock()
	if c.state != StateErrored && c.state != StateClosed {
		c.state = s
	}
	c.mu.Unlock()
}

func (c *Client) fail() {
	c.mu.Lock()
	if c.state != StateClosed {
		c.state = StateErrored
	}
	c.mu.Unlock()
}

func (c *Client) Connect(ctx context.Context) error {
	c.mu.Lock()
	if c.state != StateDisconnected {
		state := c.state
		c.mu.Unlock()
		return fmt.Errorf("connect: client is %s", state)
	}
	c.state = StateConnecting
	c.mu.Unlock()

	auth, err := c.authMethods()
	if err != nil {
		c.fail()
		return err
	}
	hostKeyCallback, err := c.hostKeyCallback()
	if err != nil {
		c.fail()
		return err
	}

	addr := c.Addr()
	dialCtx, cancel := context.WithTimeout(ctx, c.config.ConnectTimeout)
	defer cancel()
	var dialer net.Dialer
	netConn, err := dialer.DialContext(dialCtx, "tcp", addr)
	if err != nil {
		c.fail()
		return fmt.Errorf("dial %s: %w", addr, err)
	}

	c.setState(StateAuthenticating)
	_ = netConn.SetDeadline(time.Now().Add(c.config.AuthTimeout))
	stop := context.AfterFunc(ctx, func() { _ = netConn.Close() })
	defer stop()

	clientConfig := &ssh.ClientConfig{
		User:            c.config.Username,
		Auth:            auth,
		HostKeyCallback: hostKeyCallback,
	}
	sshConn, chans, reqs, err := ssh.NewClientConn(netConn, addr, clientConfig)
	if err != nil {
		_ = netConn.Close()
		c.fail()
		return fmt.Errorf("handshake with %s: %w", addr, err)
	}
	_ = netConn.SetDeadline(time.Time{})

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state != StateAuthenticating {
		_ = sshConn.Close()
		return fmt.Errorf("connect: client is %s", c.state)
	}
	c.conn = ssh.NewClient(sshConn, chans, reqs)
	c.state = StateReady
	return nil
}

func (c *Client) authMethods() ([]ssh.AuthMethod, error) {
	var methods []ssh.AuthMethod
	if c.config.PrivateKeyPath != "" {
		signer, err := c.loadSigner(c.config.PrivateKeyPath)
		if err != nil {
			return nil, err
		}
		methods = append(methods, ssh.PublicKeys(signer))
	} else if c.config.Password != "" {
		methods = append(methods, ssh.Password(c.config.Password))
	}
	methods = append(methods, ssh.KeyboardInteractive(c.answerChallenge))
	return methods, nil
}

// answerChallenge replies to every prompt with the configured password. With no
// password it refuses at once so the handshake cannot stall on a prompt.
func (c *Client) answerChallenge(name, instruction string, questions []string, echos []bool) ([]string, error) {
	if len(questions) == 0 {
		return nil, nil
	}
	if c.config.Password == "" {
		return nil, ErrNoPassword
	}
	answers := make([]string, len(questions))
	for i := range answers {
		answers[i] = c.config.Password
	}
	return answers, nil
}

func (c *Client) loadSigner(path string) (ssh.Signer, error) {
	path, err := expandHome(path)
	if err != nil {
		return nil, err
	}
	key, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read private key: %w", err)
	}
	signer, err := ssh.ParsePrivateKey(key)
	var missing *ssh.PassphraseMissingError
	if errors.As(err, &missing) && c.config.Password != "" {
		signer, err = ssh.ParsePrivateKeyWithPassphrase(key, []byte(c.config.Password))
	}
	if err != nil {
		return nil, fmt.Errorf("parse private key %s: %w", path, err)
	}
	return signer, nil
}

func (c *Client) hostKeyCallback() (ssh.HostKeyCallback, error) {
	if c.config.Insecure {
		return ssh.InsecureIgnoreHostKey(), nil
	}
	path := c.config.KnownHostsPath
	if path == "" {
		path = "~/.ssh/known_hosts"
	}
	path, err := expandHome(path)
	if err != nil {
		return nil, err
	}
	callback, err := knownhosts.New(path)
	if err != nil {
		return nil, fmt.Errorf("load known hosts %s (set options.insecure to skip host key verification): %w", path, err)
	}
	return callback, nil
}

// Exec starts command on a new channel of the connection. Only one command may
// run at a time; the next Exec is accepted once the returned stream's Wait has
// returned.
func (c *Client) Exec(command string) (*Stream, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state != StateReady {
		return nil, fmt.Errorf("exec: client is %s", c.state)
	}

	session, err := c.conn.NewSession()
	if err != nil {
		c.state = StateErrored
		return nil, fmt.Errorf("open session: %w", err)
	}

	pr, pw := io.Pipe()
	session.Stdout = pw
	session.Stderr = pw
	if err := session.Start(command); err != nil {
		_ = session.Close()
		_ = pw.Close()
		c.state = StateErrored
		return nil, fmt.Errorf("start command: %w", err)
	}
	c.state = StateExecuting

	done := make(chan execResult, 1)
	go func() {
		code, err := exitStatus(session.Wait())
		_ = pw.Close()
		done <- execResult{code: code, err: err}
	}()

	return NewStream(pr, func() (int, error) {
		res := <-done
		_ = session.Close()
		if res.err != nil {
			c.fail()
		} else {
			c.setState(StateReady)
		}
		return res.code, res.err
	}), nil
}

type execResult struct {
	code int
	err  error
}

func exitStatus(err error) (int, error) {
	if err == nil {
		return 0, nil
	}
	var exitErr *ssh.ExitError
	if errors.As(err, &exitErr) {
		return exitErr.ExitStatus(), nil
	}
	return -1, fmt.Errorf("wait for command: %w", err)
}

// Close releases the connection. It is safe to call more than once and from any
// state; an errored client stays errored.
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state == StateClosed {
		return nil
	}
	var err error
	if c.conn != nil {
		err = c.conn.Close()
		c.conn = nil
	}
	if c.state != StateErrored {
		c.state = StateClosed
	}
	if errors.Is(err, net.ErrClosed) {
		err = nil
	}
	return err
}

func expandHome(path string) (string, error) {
	if path != "~" && !strings.HasPrefix(path, "~/") {
		return path, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("resolve %s: %w", path, err)
	}
	return filepath.Join(home, strings.TrimPrefix(path, "~")), nil
}
