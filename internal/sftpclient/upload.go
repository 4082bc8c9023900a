// Package sftpclient uploads exported catalogs to an SFTP drop directory.
package sftpclient

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"path"
	"strconv"
	"time"

	"github.com/pkg/sftp"
	"golang.org/x/crypto/ssh"
	"golang.org/x/crypto/ssh/knownhosts"

	"course-kb/internal/config"
)

const dialTimeout = 20 * time.Second

var ErrMissingCredentials = errors.New("sftp: missing SFTP_HOST / SFTP_USER / SFTP_PASS")

// UploadFile copies localPath to <cfg.Dir>/<remoteName> and returns the
// remote path.
func UploadFile(ctx context.Context, cfg config.SFTP, localPath, remoteName string) (string, error) {
	if cfg.Host == "" || cfg.User == "" || cfg.Pass == "" {
		return "", ErrMissingCredentials
	}
	if cfg.Port <= 0 {
		cfg.Port = 22
	}

	cb, err := hostKeyCallback(cfg)
	if err != nil {
		return "", err
	}

	sshCfg := &ssh.ClientConfig{
		User:            cfg.User,
		Auth:            []ssh.AuthMethod{ssh.Password(cfg.Pass)},
		HostKeyCallback: cb,
		Timeout:         dialTimeout,
	}

	sshClient, err := dial(ctx, net.JoinHostPort(cfg.Host, strconv.Itoa(cfg.Port)), sshCfg)
	if err != nil {
		return "", err
	}
	defer sshClient.Close()

	sftpCli, err := sftp.NewClient(sshClient)
	if err != nil {
		return "", fmt.Errorf("sftp: new client: %w", err)
	}
	defer sftpCli.Close()

	return upload(sftpCli, cfg.Dir, localPath, remoteName)
}

// dial honours ctx for both the TCP connect and the SSH handshake.
func dial(ctx context.Context, addr string, sshCfg *ssh.ClientConfig) (*ssh.Client, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("sftp: dial canceled: %w", err)
	}

	d := net.Dialer{Timeout: sshCfg.Timeout}
	conn, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("sftp: dial error: %w", err)
	}

	stop := context.AfterFunc(ctx, func() { conn.Close() })
	defer stop()

	c, chans, reqs, err := ssh.NewClientConn(conn, addr, sshCfg)
	if err != nil {
		conn.Close()
		if ctx.Err() != nil {
			return nil, fmt.Errorf("sftp: dial canceled: %w", ctx.Err())
		}
		return nil, fmt.Errorf("sftp: handshake: %w", err)
	}
	return ssh.NewClient(c, chans, reqs), nil
}

// hostKeyCallback verifies against cfg.KnownHosts unless host key checking
// is explicitly disabled.
func hostKeyCallback(cfg config.SFTP) (ssh.HostKeyCallback, error) {
	if cfg.InsecureIgnoreHostKey {
		return ssh.InsecureIgnoreHostKey(), nil
	}
	if cfg.KnownHosts == "" {
		return nil, errors.New("sftp: SFTP_KNOWN_HOSTS is required when host key checking is enabled")
	}
	cb, err := knownhosts.New(cfg.KnownHosts)
	if err != nil {
		return nil, fmt.Errorf("sftp: known_hosts: %w", err)
	}
	return cb, nil
}

func upload(cli *sftp.Client, dir, localPath, remoteName string) (string, error) {
	if dir == "" {
		dir = "/"
	}
	if err := cli.MkdirAll(dir); err != nil {
		return "", fmt.Errorf("sftp: mkdir %s: %w", dir, err)
	}

	src, err := os.Open(localPath)
	if err != nil {
		return "", fmt.Errorf("sftp: open local file: %w", err)
	}
	defer src.Close()

	remotePath := path.Join(dir, remoteName)
	dst, err := cli.Create(remotePath)
	if err != nil {
		return "", fmt.Errorf("sftp: create remote file: %w", err)
	}

	if _, err := io.Copy(dst, src); err != nil {
		dst.Close()
		return "", fmt.Errorf("sftp: upload copy: %w", err)
	}
	if err := dst.Close(); err != nil {
		return "", fmt.Errorf("sftp: close remote file: %w", err)
	}
	return remotePath, nil
}
