package upstream

import (
	"encoding/base64"
	"fmt"
	"net"
	"time"
)

const connectTimeout = 10 * time.Second

const defaultUserAgent = "NTRIP Client/1.0"

// Link is a live TCP session to a caster, tagged with the mount-point it
// serves. It is owned exclusively by one rover session.
type Link struct {
	Conn       net.Conn
	MountPoint string
}

// Close destroys the link. Safe to call more than once.
func (l *Link) Close() error {
	if l == nil || l.Conn == nil {
		return nil
	}
	return l.Conn.Close()
}

// Dial opens a TCP connection to host:port, issues the NTRIP GET request for
// mount and returns the live Link. The caster's response is not parsed; it
// is left on the wire for the caller to forward opaquely.
func Dial(host string, port int, mount, user, pass, userAgent string) (*Link, error) {
	if host == "" || port <= 0 || mount == "" {
		return nil, &Error{Kind: KindConfig, Message: "host, port and mount are required"}
	}
	if userAgent == "" {
		userAgent = defaultUserAgent
	}

	addr := fmt.Sprintf("%s:%d", host, port)
	conn, err := net.DialTimeout("tcp", addr, connectTimeout)
	if err != nil {
		if netErr, ok := err.(net.Error); ok && netErr.Timeout() {
			return nil, &Error{Kind: KindTimeout, Message: "connect timed out after 10s", Cause: err}
		}
		return nil, &Error{Kind: KindTransport, Message: "connect failed", Cause: err}
	}

	request := buildRequest(host, port, mount, user, pass, userAgent)
	if _, err := conn.Write([]byte(request)); err != nil {
		conn.Close()
		return nil, &Error{Kind: KindTransport, Message: "writing request failed", Cause: err}
	}

	return &Link{Conn: conn, MountPoint: mount}, nil
}

func buildRequest(host string, port int, mount, user, pass, userAgent string) string {
	auth := base64.StdEncoding.EncodeToString([]byte(user + ":" + pass))

	lines := []string{
		fmt.Sprintf("GET /%s HTTP/1.1", mount),
		fmt.Sprintf("Host: %s:%d", host, port),
		"Ntrip-Version: Ntrip/2.0",
		fmt.Sprintf("User-Agent: %s", userAgent),
		"Connection: keep-alive",
		fmt.Sprintf("Authorization: Basic %s", auth),
		"",
	}
	return joinCRLF(lines)
}

func joinCRLF(lines []string) string {
	out := ""
	for _, l := range lines {
		out += l + "\r\n"
	}
	return out
}
