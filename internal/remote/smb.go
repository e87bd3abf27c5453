package remote

import (
	"context"
	"fmt"
	"io"
	"net"
	"path"
	"sort"
	"strings"
	"time"

	"github.com/hirochachacha/go-smb2"

	"github.com/tendant/detect-archive-pipeline/pkg/pipeline"
)

// SMBConfig identifies a folder on an SMB share
type SMBConfig struct {
	Addr     string // host:port, port defaults to 445
	Share    string // e.g. siba
	Dir      string // folder inside the share, e.g. pothole
	User     string
	Password string
	Domain   string
}

// SMBSource lists and deletes images on an SMB share
type SMBSource struct {
	cfg     SMBConfig
	conn    net.Conn
	session *smb2.Session
	share   *smb2.Share
}

var _ Source = (*SMBSource)(nil)

// DialSMB establishes the session and mounts the share. Failure here is fatal
// for the controller: no cycle can run without the share.
func DialSMB(ctx context.Context, cfg SMBConfig) (*SMBSource, error) {
	addr := cfg.Addr
	if _, _, err := net.SplitHostPort(addr); err != nil {
		addr = net.JoinHostPort(addr, "445")
	}

	dialer := net.Dialer{Timeout: 10 * time.Second}
	conn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("%w: dial %s: %v", pipeline.ErrSessionFailure, addr, err)
	}

	d := &smb2.Dialer{
		Initiator: &smb2.NTLMInitiator{
			User:     cfg.User,
			Password: cfg.Password,
			Domain:   cfg.Domain,
		},
	}
	session, err := d.DialContext(ctx, conn)
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("%w: session: %v", pipeline.ErrSessionFailure, err)
	}

	share, err := session.Mount(cfg.Share)
	if err != nil {
		session.Logoff()
		conn.Close()
		return nil, fmt.Errorf("%w: mount %s: %v", pipeline.ErrSessionFailure, cfg.Share, err)
	}

	return &SMBSource{cfg: cfg, conn: conn, session: session, share: share}, nil
}

// List returns image files in the configured folder
func (s *SMBSource) List(ctx context.Context) ([]pipeline.RemoteImage, error) {
	infos, err := s.share.WithContext(ctx).ReadDir(s.cfg.Dir)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", pipeline.ErrSourceUnavailable, err)
	}

	var images []pipeline.RemoteImage
	for _, info := range infos {
		if info.IsDir() || !pipeline.IsImage(info.Name()) {
			continue
		}
		images = append(images, pipeline.RemoteImage{
			Name:       info.Name(),
			RemotePath: s.uncPath(info.Name()),
		})
	}
	sort.Slice(images, func(i, j int) bool { return images[i].Name < images[j].Name })

	return images, nil
}

// Open opens the named file on the share
func (s *SMBSource) Open(ctx context.Context, name string) (io.ReadCloser, error) {
	f, err := s.share.WithContext(ctx).Open(path.Join(s.cfg.Dir, name))
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", name, err)
	}
	return f, nil
}

// Delete removes the named file from the share
func (s *SMBSource) Delete(ctx context.Context, name string) error {
	if err := s.share.WithContext(ctx).Remove(path.Join(s.cfg.Dir, name)); err != nil {
		return fmt.Errorf("%w: %v", pipeline.ErrDeleteFailure, err)
	}
	return nil
}

// Close unmounts the share and logs off
func (s *SMBSource) Close() error {
	s.share.Umount()
	s.session.Logoff()
	return s.conn.Close()
}

func (s *SMBSource) uncPath(name string) string {
	host, _, err := net.SplitHostPort(s.cfg.Addr)
	if err != nil {
		host = s.cfg.Addr
	}
	parts := []string{`\\` + host, s.cfg.Share}
	if s.cfg.Dir != "" {
		parts = append(parts, strings.ReplaceAll(s.cfg.Dir, "/", `\`))
	}
	return strings.Join(append(parts, name), `\`)
}
