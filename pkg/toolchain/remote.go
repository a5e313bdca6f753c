package toolchain

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/pkg/sftp"
	"github.com/rs/zerolog"
	"golang.org/x/crypto/ssh"

	"github.com/fwmatrix/fwmatrix/pkg/config"
)

// RemoteInvoker runs the check command on a build host over SSH. The
// toolchain writes its JSON diagnostics to a file on the remote side,
// which is fetched back over SFTP after each run.
type RemoteInvoker struct {
	cfg     config.RemoteConfig
	command string
	args    []string
	guard   *CacheGuard
	logger  zerolog.Logger

	connMu sync.Mutex
	client *ssh.Client
}

// NewRemoteInvoker creates a remote invoker. The connection is
// established lazily on first check.
func NewRemoteInvoker(logger zerolog.Logger, cfg config.RemoteConfig, command string, args []string) *RemoteInvoker {
	return &RemoteInvoker{
		cfg:     cfg,
		command: command,
		args:    args,
		guard:   NewCacheGuard(),
		logger:  logger.With().Str("component", "remote-invoker").Str("host", cfg.Host).Logger(),
	}
}

// Check implements Invoker.
func (r *RemoteInvoker) Check(ctx context.Context, inv Invocation) (*Outcome, error) {
	unlock := r.guard.Lock(inv.CacheKey())
	defer unlock()

	if inv.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, inv.Timeout)
		defer cancel()
	}

	client, err := r.connect(ctx)
	if err != nil {
		return nil, err
	}

	session, err := client.NewSession()
	if err != nil {
		return nil, fmt.Errorf("failed to create session: %w", err)
	}
	defer session.Close()

	var stderr bytes.Buffer
	session.Stderr = &stderr

	remoteCmd := r.remoteCommand(inv)
	r.logger.Debug().
		Str("config", inv.Config.ID()).
		Str("command", remoteCmd).
		Msg("invoking remote toolchain")

	started := time.Now()

	done := make(chan error, 1)
	go func() {
		done <- session.Run(remoteCmd)
	}()

	var runErr error
	select {
	case <-ctx.Done():
		_ = session.Signal(ssh.SIGTERM)
		time.Sleep(100 * time.Millisecond)
		_ = session.Signal(ssh.SIGKILL)
		return nil, fmt.Errorf("remote invocation for %s: %w", inv.Config.ID(), ctx.Err())
	case runErr = <-done:
	}

	outcome := &Outcome{
		Stderr:    stderr.String(),
		StartedAt: started,
		Duration:  time.Since(started),
	}

	if runErr != nil {
		var exitErr *ssh.ExitError
		if errors.As(runErr, &exitErr) {
			outcome.ExitCode = exitErr.ExitStatus()
		} else {
			return nil, fmt.Errorf("remote execution failed: %w", runErr)
		}
	}

	raw, err := r.fetchDiagnostics(client)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch diagnostics: %w", err)
	}
	outcome.RawOutput = raw
	outcome.Findings = ParseDiagnostics(raw)

	r.logger.Debug().
		Str("config", inv.Config.ID()).
		Int("exit_code", outcome.ExitCode).
		Int("findings", len(outcome.Findings)).
		Dur("duration", outcome.Duration).
		Msg("remote toolchain completed")
	return outcome, nil
}

// remoteCommand builds the shell command run on the build host. Stdout
// goes to the diagnostics file; stderr flows back over the session.
func (r *RemoteInvoker) remoteCommand(inv Invocation) string {
	args := BuildArgs(r.args, inv)
	quoted := make([]string, 0, len(args)+1)
	quoted = append(quoted, shellQuote(r.command))
	for _, arg := range args {
		quoted = append(quoted, shellQuote(arg))
	}

	return fmt.Sprintf("cd %s && %s > %s",
		shellQuote(r.cfg.WorkDir),
		strings.Join(quoted, " "),
		shellQuote(r.cfg.DiagnosticsPath))
}

// fetchDiagnostics reads the diagnostics file over SFTP.
func (r *RemoteInvoker) fetchDiagnostics(client *ssh.Client) (string, error) {
	sftpClient, err := sftp.NewClient(client)
	if err != nil {
		return "", fmt.Errorf("failed to open sftp client: %w", err)
	}
	defer sftpClient.Close()

	f, err := sftpClient.Open(r.cfg.DiagnosticsPath)
	if err != nil {
		return "", fmt.Errorf("failed to open %s: %w", r.cfg.DiagnosticsPath, err)
	}
	defer f.Close()

	data, err := io.ReadAll(f)
	if err != nil {
		return "", fmt.Errorf("failed to read diagnostics: %w", err)
	}
	return string(data), nil
}

// connect establishes (or reuses) the SSH connection.
func (r *RemoteInvoker) connect(ctx context.Context) (*ssh.Client, error) {
	r.connMu.Lock()
	defer r.connMu.Unlock()

	if r.client != nil {
		// Verify the connection is still alive before reusing it.
		if _, _, err := r.client.SendRequest("keepalive@openssh.com", true, nil); err == nil {
			return r.client, nil
		}
		r.logger.Warn().Msg("existing connection is dead, reconnecting")
		_ = r.client.Close()
		r.client = nil
	}

	key, err := os.ReadFile(r.cfg.KeyFile)
	if err != nil {
		return nil, fmt.Errorf("failed to read key file: %w", err)
	}
	signer, err := ssh.ParsePrivateKey(key)
	if err != nil {
		return nil, fmt.Errorf("failed to parse private key: %w", err)
	}

	port := r.cfg.Port
	if port == 0 {
		port = 22
	}
	clientConfig := &ssh.ClientConfig{
		User:            r.cfg.User,
		Auth:            []ssh.AuthMethod{ssh.PublicKeys(signer)},
		HostKeyCallback: ssh.InsecureIgnoreHostKey(), //nolint:gosec // build hosts are ephemeral CI machines
		Timeout:         30 * time.Second,
	}

	address := fmt.Sprintf("%s:%d", r.cfg.Host, port)

	connCh := make(chan *ssh.Client, 1)
	errCh := make(chan error, 1)
	go func() {
		client, err := ssh.Dial("tcp", address, clientConfig)
		if err != nil {
			errCh <- err
			return
		}
		connCh <- client
	}()

	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("connect to %s: %w", address, ctx.Err())
	case err := <-errCh:
		return nil, fmt.Errorf("connect to %s: %w", address, err)
	case client := <-connCh:
		r.client = client
		r.logger.Info().Str("address", address).Msg("SSH connection established")
		return client, nil
	}
}

// Close tears down the SSH connection.
func (r *RemoteInvoker) Close() error {
	r.connMu.Lock()
	defer r.connMu.Unlock()

	if r.client == nil {
		return nil
	}
	err := r.client.Close()
	r.client = nil
	return err
}

// shellQuote single-quotes a string for POSIX sh.
func shellQuote(s string) string {
	return "'" + strings.ReplaceAll(s, "'", `'\''`) + "'"
}
