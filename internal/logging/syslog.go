// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

package logging

import (
	"fmt"
	"io"
	"net"
	"time"

	relerrors "github.com/deltachat/notifiers-relay/internal/errors"
)

// SyslogConfig controls forwarding of log records to a remote syslog
// collector over UDP or TCP.
type SyslogConfig struct {
	Enabled  bool
	Host     string
	Port     int
	Protocol string // udp or tcp
	Tag      string
	Facility int
}

// DefaultSyslogConfig returns syslog forwarding disabled, with Port,
// Protocol and Tag set to the defaults NewSyslogWriter applies when those
// fields are left zero, and Facility 1 (NewSyslogWriter leaves a zero
// Facility at 0).
func DefaultSyslogConfig() SyslogConfig {
	return SyslogConfig{
		Enabled:  false,
		Port:     514,
		Protocol: "udp",
		Tag:      "notifiers-relay",
		Facility: 1,
	}
}

// syslogWriter forwards each Write as an RFC3164 syslog message.
type syslogWriter struct {
	conn     net.Conn
	tag      string
	facility int
}

// NewSyslogWriter dials the configured syslog collector and returns an
// io.Writer that forwards every write as a syslog message. Host is
// required; Port, Protocol, and Tag default when left zero.
func NewSyslogWriter(cfg SyslogConfig) (io.Writer, error) {
	if cfg.Host == "" {
		return nil, relerrors.New(relerrors.KindValidation, "syslog host is required")
	}
	if cfg.Port == 0 {
		cfg.Port = 514
	}
	if cfg.Protocol == "" {
		cfg.Protocol = "udp"
	}
	if cfg.Tag == "" {
		cfg.Tag = "notifiers-relay"
	}

	addr := fmt.Sprintf("%s:%d", cfg.Host, cfg.Port)
	conn, err := net.Dial(cfg.Protocol, addr)
	if err != nil {
		return nil, relerrors.Wrap(err, relerrors.KindUnavailable, "dial syslog collector")
	}

	return &syslogWriter{conn: conn, tag: cfg.Tag, facility: cfg.Facility}, nil
}

// Write implements io.Writer, wrapping p as the message text of a single
// RFC3164 frame at severity "info" (6).
func (w *syslogWriter) Write(p []byte) (int, error) {
	priority := w.facility*8 + 6
	msg := fmt.Sprintf("<%d>%s %s: %s", priority, time.Now().Format(time.Stamp), w.tag, p)
	if _, err := w.conn.Write([]byte(msg)); err != nil {
		return 0, err
	}
	return len(p), nil
}
