package workermanager

import (
	"crypto/ed25519"
	"crypto/rand"
	"encoding/pem"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strings"
	"time"

	"golang.org/x/crypto/ssh"
)

// sshKeyPaths returns the private/public key file paths for a worker,
// named "<short-hostname>-<ssh-user>.{id,pub}" under etc/ssh_keys per §6.
func sshKeyPaths(baseDir, hostname, sshUser string) (priv, pub string) {
	short := hostname
	if idx := strings.IndexByte(hostname, '.'); idx >= 0 {
		short = hostname[:idx]
	}
	name := fmt.Sprintf("%s-%s", short, sshUser)
	dir := filepath.Join(baseDir, "etc", "ssh_keys")
	return filepath.Join(dir, name+".id"), filepath.Join(dir, name+".pub")
}

// generateKeyPair writes a fresh ED25519 keypair to the worker's key
// paths, creating the containing directory if needed.
func generateKeyPair(baseDir, hostname, sshUser string) (privPath, pubPath string, err error) {
	privPath, pubPath = sshKeyPaths(baseDir, hostname, sshUser)
	if err := os.MkdirAll(filepath.Dir(privPath), 0o700); err != nil {
		return "", "", fmt.Errorf("create ssh_keys dir: %w", err)
	}

	pubKey, privKey, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return "", "", fmt.Errorf("generate ed25519 key: %w", err)
	}

	signer, err := ssh.NewSignerFromKey(privKey)
	if err != nil {
		return "", "", fmt.Errorf("wrap signer: %w", err)
	}

	pemBlock, err := ssh.MarshalPrivateKey(privKey, "")
	if err != nil {
		return "", "", fmt.Errorf("marshal private key: %w", err)
	}
	if err := os.WriteFile(privPath, pem.EncodeToMemory(pemBlock), 0o600); err != nil {
		return "", "", fmt.Errorf("write private key: %w", err)
	}

	authorizedLine := ssh.MarshalAuthorizedKey(signer.PublicKey())
	_ = pubKey
	if err := os.WriteFile(pubPath, authorizedLine, 0o644); err != nil {
		return "", "", fmt.Errorf("write public key: %w", err)
	}

	return privPath, pubPath, nil
}

// dialPassword opens a password-authenticated SSH session used only for
// the one-time bootstrap step of appending our generated public key to the
// remote host's authorized_keys.
func dialPassword(host string, port int, user, password string, timeout time.Duration) (*ssh.Client, error) {
	cfg := &ssh.ClientConfig{
		User:            user,
		Auth:            []ssh.AuthMethod{ssh.Password(password)},
		HostKeyCallback: ssh.InsecureIgnoreHostKey(),
		Timeout:         timeout,
	}
	return ssh.Dial("tcp", net.JoinHostPort(host, portString(port)), cfg)
}

// dialKey opens a key-authenticated SSH session for steady-state
// provisioning and lifecycle operations.
func dialKey(host string, port int, user, privateKeyPath string, timeout time.Duration) (*ssh.Client, error) {
	keyBytes, err := os.ReadFile(privateKeyPath)
	if err != nil {
		return nil, fmt.Errorf("read private key: %w", err)
	}
	signer, err := ssh.ParsePrivateKey(keyBytes)
	if err != nil {
		return nil, fmt.Errorf("parse private key: %w", err)
	}
	cfg := &ssh.ClientConfig{
		User:            user,
		Auth:            []ssh.AuthMethod{ssh.PublicKeys(signer)},
		HostKeyCallback: ssh.InsecureIgnoreHostKey(),
		Timeout:         timeout,
	}
	return ssh.Dial("tcp", net.JoinHostPort(host, portString(port)), cfg)
}

func portString(p int) string {
	return fmt.Sprintf("%d", p)
}

// runRemote executes a single command over an established SSH connection
// and returns combined output.
func runRemote(client *ssh.Client, command string) (string, error) {
	session, err := client.NewSession()
	if err != nil {
		return "", fmt.Errorf("open session: %w", err)
	}
	defer session.Close()

	out, err := session.CombinedOutput(command)
	if err != nil {
		return string(out), fmt.Errorf("remote command failed: %w: %s", err, out)
	}
	return string(out), nil
}

// appendAuthorizedKey appends pubKeyLine to ~/.ssh/authorized_keys on the
// remote host, creating the directory if absent. This is the one step
// that must run under password auth, since the key we're installing
// doesn't exist remotely yet.
func appendAuthorizedKey(client *ssh.Client, pubKeyLine string) error {
	cmd := fmt.Sprintf(
		"mkdir -p ~/.ssh && chmod 700 ~/.ssh && echo %q >> ~/.ssh/authorized_keys && chmod 600 ~/.ssh/authorized_keys",
		strings.TrimSpace(pubKeyLine)+" dispatch-generated",
	)
	_, err := runRemote(client, cmd)
	return err
}

// uploadFile streams localPath's contents into remotePath over an SSH
// session's stdin, avoiding a dependency on a separate SFTP client for
// what is otherwise a single-binary copy.
func uploadFile(client *ssh.Client, localPath, remotePath string) error {
	data, err := os.ReadFile(localPath)
	if err != nil {
		return fmt.Errorf("read local distributable: %w", err)
	}

	session, err := client.NewSession()
	if err != nil {
		return fmt.Errorf("open session: %w", err)
	}
	defer session.Close()

	stdin, err := session.StdinPipe()
	if err != nil {
		return fmt.Errorf("stdin pipe: %w", err)
	}

	if err := session.Start(fmt.Sprintf("cat > %s", remotePath)); err != nil {
		return fmt.Errorf("start remote cat: %w", err)
	}

	if _, err := stdin.Write(data); err != nil {
		return fmt.Errorf("write distributable: %w", err)
	}
	_ = stdin.Close()

	return session.Wait()
}

// bootstrapRemoteTree creates the worker's directory tree on the remote
// host, matching the layout documented in §6 (bin, etc, lib, logs/workers).
func bootstrapRemoteTree(client *ssh.Client, appName string) error {
	cmd := fmt.Sprintf("mkdir -p ~/%s/bin ~/%s/etc ~/%s/lib ~/%s/logs/workers", appName, appName, appName, appName)
	_, err := runRemote(client, cmd)
	return err
}
