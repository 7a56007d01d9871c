// Package sshctl stops and starts the Odoo service on a remote host over
// SSH, so restores and drops do not race a running server.
package sshctl

import (
	"context"
	"fmt"
	"net"
	"os"
	"time"

	"github.com/fgeck/odoodb/internal/models"
	"github.com/rs/zerolog"
	"golang.org/x/crypto/ssh"
)

// Service defines the interface for Odoo service control.
type Service interface {
	Stop(ctx context.Context, cfg models.ServiceControlConfig) error
	Start(ctx context.Context, cfg models.ServiceControlConfig) error
}

// SSHClient wraps ssh.Client for mocking.
type SSHClient interface {
	NewSession() (SSHSession, error)
	Close() error
}

// SSHSession wraps ssh.Session for mocking.
type SSHSession interface {
	CombinedOutput(cmd string) ([]byte, error)
	Close() error
}

// ClientFactory creates SSH clients.
type ClientFactory interface {
	NewClient(network, addr string, config *ssh.ClientConfig) (SSHClient, error)
}

// DefaultClientFactory is the default SSH client factory.
type DefaultClientFactory struct{}

// NewClient creates a new SSH client.
func (f *DefaultClientFactory) NewClient(network, addr string, config *ssh.ClientConfig) (SSHClient, error) {
	client, err := ssh.Dial(network, addr, config)
	if err != nil {
		return nil, err
	}
	return &defaultSSHClient{client: client}, nil
}

type defaultSSHClient struct {
	client *ssh.Client
}

func (c *defaultSSHClient) NewSession() (SSHSession, error) {
	session, err := c.client.NewSession()
	if err != nil {
		return nil, err
	}
	return &defaultSSHSession{session: session}, nil
}

func (c *defaultSSHClient) Close() error {
	return c.client.Close()
}

type defaultSSHSession struct {
	session *ssh.Session
}

func (s *defaultSSHSession) CombinedOutput(cmd string) ([]byte, error) {
	return s.session.CombinedOutput(cmd)
}

func (s *defaultSSHSession) Close() error {
	return s.session.Close()
}

// Impl implements the sshctl Service interface.
type Impl struct {
	clientFactory ClientFactory
	logger        zerolog.Logger
}

// New creates a new service control service.
func New(logger zerolog.Logger) *Impl {
	return &Impl{
		clientFactory: &DefaultClientFactory{},
		logger:        logger,
	}
}

// NewWithClientFactory creates a service with a custom client factory (for testing).
func NewWithClientFactory(logger zerolog.Logger, factory ClientFactory) *Impl {
	return &Impl{
		clientFactory: factory,
		logger:        logger,
	}
}

// Stop stops the configured Odoo systemd unit.
func (s *Impl) Stop(ctx context.Context, cfg models.ServiceControlConfig) error {
	return s.run(ctx, cfg, fmt.Sprintf("sudo systemctl stop %s", cfg.Unit))
}

// Start starts the configured Odoo systemd unit.
func (s *Impl) Start(ctx context.Context, cfg models.ServiceControlConfig) error {
	return s.run(ctx, cfg, fmt.Sprintf("sudo systemctl start %s", cfg.Unit))
}

func (s *Impl) buildConfig(cfg models.ServiceControlConfig) (*ssh.ClientConfig, error) {
	key := cfg.PrivateKey
	if len(key) == 0 {
		if cfg.KeyPath == "" {
			return nil, fmt.Errorf("no private key provided")
		}
		var err error
		key, err = os.ReadFile(cfg.KeyPath) //nolint:gosec // key path comes from the operator's config
		if err != nil {
			return nil, fmt.Errorf("failed to read private key from %s: %w", cfg.KeyPath, err)
		}
	}

	signer, err := ssh.ParsePrivateKey(key)
	if err != nil {
		return nil, fmt.Errorf("failed to parse private key: %w", err)
	}

	return &ssh.ClientConfig{
		User: cfg.Username,
		Auth: []ssh.AuthMethod{
			ssh.PublicKeys(signer),
		},
		HostKeyCallback: ssh.InsecureIgnoreHostKey(), //nolint:gosec // self-hosted deployment, host managed by the operator
		Timeout:         30 * time.Second,
	}, nil
}

func (s *Impl) run(ctx context.Context, cfg models.ServiceControlConfig, cmd string) error {
	s.logger.Info().
		Str("host", cfg.Host).
		Int("port", cfg.Port).
		Str("user", cfg.Username).
		Str("command", cmd).
		Msg("running remote service command")

	sshConfig, err := s.buildConfig(cfg)
	if err != nil {
		return err
	}

	addr := net.JoinHostPort(cfg.Host, fmt.Sprintf("%d", cfg.Port))

	clientChan := make(chan struct {
		client SSHClient
		err    error
	}, 1)

	go func() {
		client, err := s.clientFactory.NewClient("tcp", addr, sshConfig)
		clientChan <- struct {
			client SSHClient
			err    error
		}{client, err}
	}()

	var client SSHClient
	select {
	case <-ctx.Done():
		return ctx.Err()
	case res := <-clientChan:
		if res.err != nil {
			return fmt.Errorf("failed to connect: %w", res.err)
		}
		client = res.client
	}
	defer func() { _ = client.Close() }()

	session, err := client.NewSession()
	if err != nil {
		return fmt.Errorf("failed to create session: %w", err)
	}
	defer func() { _ = session.Close() }()

	output, err := session.CombinedOutput(cmd)
	if err != nil {
		return fmt.Errorf("remote command failed: %w: %s", err, output)
	}

	s.logger.Debug().Str("output", string(output)).Msg("remote service command completed")
	return nil
}
