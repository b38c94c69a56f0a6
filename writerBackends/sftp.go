package writerbackends

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"net"
	"path"
	"time"

	"docshift/logger"

	"github.com/pkg/sftp"
	"golang.org/x/crypto/ssh"
)

const sftpDialTimeout = 10 * time.Second

// sftpTarget is the parsed form of an sftp accessInfo map
type sftpTarget struct {
	addr       string
	user       string
	remotePath string
	auth       []ssh.AuthMethod
	hostKey    ssh.HostKeyCallback
}

// UploadToSFTPWithCreds writes reader to remotePath on an SFTP server.
// Required keys: host, user, remotePath and one of password or privateKey
// (PEM, raw or base64). Optional: port (22) and hostKey, an authorized_keys
// line that pins the server key.
func UploadToSFTPWithCreds(ctx context.Context, accessInfo map[string]string, reader io.Reader) (string, error) {
	target, err := parseSFTPTarget(accessInfo)
	if err != nil {
		return "", err
	}

	client, closeAll, err := dialSFTP(ctx, target)
	if err != nil {
		return "", err
	}
	defer closeAll()

	if dir := path.Dir(target.remotePath); dir != "." && dir != "/" {
		if err := client.MkdirAll(dir); err != nil {
			return "", fmt.Errorf("ensure remote dir %s: %w", dir, err)
		}
	}

	f, err := client.Create(target.remotePath)
	if err != nil {
		return "", fmt.Errorf("create remote file %s: %w", target.remotePath, err)
	}
	n, err := io.Copy(f, reader)
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return "", fmt.Errorf("write remote file %s: %w", target.remotePath, err)
	}

	logger.Debugf("sftp: wrote %d bytes to %s:%s", n, target.addr, target.remotePath)
	return fmt.Sprintf("sftp://%s%s", target.addr, target.remotePath), nil
}

func parseSFTPTarget(accessInfo map[string]string) (*sftpTarget, error) {
	host, user, remotePath := accessInfo["host"], accessInfo["user"], accessInfo["remotePath"]
	if host == "" || user == "" || remotePath == "" {
		return nil, fmt.Errorf("missing required accessInfo keys: host, user, remotePath")
	}
	port := accessInfo["port"]
	if port == "" {
		port = "22"
	}

	auth, err := sftpAuth(accessInfo["password"], accessInfo["privateKey"])
	if err != nil {
		return nil, err
	}
	hostKey, err := sftpHostKey(accessInfo["hostKey"])
	if err != nil {
		return nil, err
	}

	return &sftpTarget{
		addr:       net.JoinHostPort(host, port),
		user:       user,
		remotePath: path.Clean("/" + remotePath),
		auth:       auth,
		hostKey:    hostKey,
	}, nil
}

// sftpAuth prefers key auth over a password
func sftpAuth(password, privateKey string) ([]ssh.AuthMethod, error) {
	switch {
	case privateKey != "":
		pem, err := base64.StdEncoding.DecodeString(privateKey)
		if err != nil {
			pem = []byte(privateKey)
		}
		signer, err := ssh.ParsePrivateKey(pem)
		if err != nil {
			return nil, fmt.Errorf("parse private key: %w", err)
		}
		return []ssh.AuthMethod{ssh.PublicKeys(signer)}, nil
	case password != "":
		return []ssh.AuthMethod{ssh.Password(password)}, nil
	default:
		return nil, errors.New("no auth method provided; set password or privateKey")
	}
}

// sftpHostKey pins the server key when one is configured
func sftpHostKey(line string) (ssh.HostKeyCallback, error) {
	if line == "" {
		return ssh.InsecureIgnoreHostKey(), nil
	}
	pub, _, _, _, err := ssh.ParseAuthorizedKey([]byte(line))
	if err != nil {
		return nil, fmt.Errorf("parse host key: %w", err)
	}
	return ssh.FixedHostKey(pub), nil
}

// dialSFTP opens the TCP connection under ctx, then the SSH and SFTP
// sessions on top of it. closeAll tears down both sessions.
func dialSFTP(ctx context.Context, t *sftpTarget) (*sftp.Client, func(), error) {
	d := net.Dialer{Timeout: sftpDialTimeout}
	conn, err := d.DialContext(ctx, "tcp", t.addr)
	if err != nil {
		return nil, nil, fmt.Errorf("dial tcp %s: %w", t.addr, err)
	}

	sshConn, chans, reqs, err := ssh.NewClientConn(conn, t.addr, &ssh.ClientConfig{
		User:            t.user,
		Auth:            t.auth,
		HostKeyCallback: t.hostKey,
		Timeout:         sftpDialTimeout,
	})
	if err != nil {
		conn.Close()
		return nil, nil, fmt.Errorf("ssh handshake with %s: %w", t.addr, err)
	}
	sshClient := ssh.NewClient(sshConn, chans, reqs)

	client, err := sftp.NewClient(sshClient)
	if err != nil {
		sshClient.Close()
		return nil, nil, fmt.Errorf("start sftp session: %w", err)
	}
	return client, func() {
		client.Close()
		sshClient.Close()
	}, nil
}
