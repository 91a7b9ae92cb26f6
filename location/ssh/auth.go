package ssh

import (
	"fmt"
	"io"
	"net"
	"os"
	"path/filepath"

	gossh "golang.org/x/crypto/ssh"
	"golang.org/x/crypto/ssh/agent"
	"golang.org/x/crypto/ssh/knownhosts"
)

// AuthProvider builds client configurations for native SSH connections from
// a private key (file or bytes) or a running SSH agent.
type AuthProvider struct {
	// PrivateKeyPath is the path to the SSH private key file.
	PrivateKeyPath string

	// PrivateKey contains the SSH private key as bytes.
	PrivateKey []byte

	// Passphrase for encrypted private keys.
	Passphrase string

	// UseSSHAgent authenticates with the agent listening on SSH_AUTH_SOCK.
	UseSSHAgent bool

	// KnownHostsFile verifies host keys. Defaults to ~/.ssh/known_hosts when
	// HostKeyCallback is not set.
	KnownHostsFile string

	// HostKeyCallback for host key verification, overriding KnownHostsFile.
	HostKeyCallback gossh.HostKeyCallback
}

// NewKeyFileAuth creates a provider using a private key file.
func NewKeyFileAuth(keyPath, passphrase string) *AuthProvider {
	return &AuthProvider{
		PrivateKeyPath: keyPath,
		Passphrase:     passphrase,
	}
}

// NewKeyBytesAuth creates a provider using private key bytes.
func NewKeyBytesAuth(keyBytes []byte, passphrase string) *AuthProvider {
	return &AuthProvider{
		PrivateKey: keyBytes,
		Passphrase: passphrase,
	}
}

// NewAgentAuth creates a provider that uses the SSH agent.
func NewAgentAuth() *AuthProvider {
	return &AuthProvider{
		UseSSHAgent: true,
	}
}

// WithKnownHosts sets the known_hosts file used to verify host keys.
func (p *AuthProvider) WithKnownHosts(path string) *AuthProvider {
	p.KnownHostsFile = path
	return p
}

// WithHostKeyCallback sets the host key verification callback.
func (p *AuthProvider) WithHostKeyCallback(callback gossh.HostKeyCallback) *AuthProvider {
	p.HostKeyCallback = callback
	return p
}

// ClientConfig returns the configuration for user. The returned closer
// releases the agent connection, if one was opened, and must be called once
// the SSH connection is closed.
func (p *AuthProvider) ClientConfig(user string) (*gossh.ClientConfig, io.Closer, error) {
	hostKeyCallback, err := p.hostKeyCallback()
	if err != nil {
		return nil, nil, err
	}

	var (
		method gossh.AuthMethod
		closer io.Closer = nopCloser{}
	)
	switch {
	case p.UseSSHAgent:
		conn, err := dialAgent()
		if err != nil {
			return nil, nil, err
		}
		method = gossh.PublicKeysCallback(agent.NewClient(conn).Signers)
		closer = conn
	case p.PrivateKeyPath != "":
		keyBytes, err := os.ReadFile(p.PrivateKeyPath)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to read SSH private key %s: %w", p.PrivateKeyPath, err)
		}
		if method, err = p.keyMethod(keyBytes); err != nil {
			return nil, nil, fmt.Errorf("failed to load SSH key from file: %w", err)
		}
	case len(p.PrivateKey) > 0:
		if method, err = p.keyMethod(p.PrivateKey); err != nil {
			return nil, nil, fmt.Errorf("failed to load SSH key from bytes: %w", err)
		}
	default:
		return nil, nil, fmt.Errorf("no SSH credentials configured")
	}

	return &gossh.ClientConfig{
		User:            user,
		Auth:            []gossh.AuthMethod{method},
		HostKeyCallback: hostKeyCallback,
	}, closer, nil
}

func (p *AuthProvider) keyMethod(keyBytes []byte) (gossh.AuthMethod, error) {
	var (
		signer gossh.Signer
		err    error
	)
	if p.Passphrase != "" {
		signer, err = gossh.ParsePrivateKeyWithPassphrase(keyBytes, []byte(p.Passphrase))
	} else {
		signer, err = gossh.ParsePrivateKey(keyBytes)
	}
	if err != nil {
		return nil, err
	}
	return gossh.PublicKeys(signer), nil
}

func (p *AuthProvider) hostKeyCallback() (gossh.HostKeyCallback, error) {
	if p.HostKeyCallback != nil {
		return p.HostKeyCallback, nil
	}
	path := p.KnownHostsFile
	if path == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("failed to locate known_hosts: %w", err)
		}
		path = filepath.Join(home, ".ssh", "known_hosts")
	}
	callback, err := knownhosts.New(path)
	if err != nil {
		return nil, fmt.Errorf("failed to load known_hosts %s: %w", path, err)
	}
	return callback, nil
}

func dialAgent() (net.Conn, error) {
	socket := os.Getenv("SSH_AUTH_SOCK")
	if socket == "" {
		return nil, fmt.Errorf("SSH agent requested but SSH_AUTH_SOCK is not set")
	}
	conn, err := net.Dial("unix", socket)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to SSH agent: %w", err)
	}
	return conn, nil
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }
