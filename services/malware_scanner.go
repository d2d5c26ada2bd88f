package services

import (
	"bytes"
	"context"
	"encoding/binary"
	"fmt"
	"net"
	"strings"
	"time"

	"document-archive-platform/internal/logger"
	"document-archive-platform/utils"
)

// eicarSignature is the standard antivirus test string, always rejected.
const eicarSignature = `X5O!P%@AP[4\PZX54(P^)7CC)7}$EICAR-STANDARD-ANTIVIRUS-TEST-FILE!$H+H*`

// MalwareScanner checks uploads before any other handling. A clamd
// daemon is used when configured; when the daemon is missing or fails
// the scan passes, intake availability wins over scan coverage.
type MalwareScanner struct {
	enabled    bool
	clamdAddr  string
	timeout    time.Duration
	signatures [][]byte
}

// NewMalwareScanner builds a scanner. clamdAddr may be empty, extra
// signatures are matched byte-wise in addition to the daemon verdict.
func NewMalwareScanner(enabled bool, clamdAddr string, extraSignatures []string) *MalwareScanner {
	sigs := [][]byte{[]byte(eicarSignature)}
	for _, s := range extraSignatures {
		if s = strings.TrimSpace(s); s != "" {
			sigs = append(sigs, []byte(s))
		}
	}
	return &MalwareScanner{
		enabled:    enabled,
		clamdAddr:  clamdAddr,
		timeout:    30 * time.Second,
		signatures: sigs,
	}
}

// Scan returns a security_rejected error when the payload matches a known
// signature. Scanner unavailability is logged and treated as a pass.
func (m *MalwareScanner) Scan(ctx context.Context, filename string, data []byte) error {
	if !m.enabled {
		return nil
	}

	for _, sig := range m.signatures {
		if bytes.Contains(data, sig) {
			logger.Logger.Warn("upload matched malware signature", "filename", filename)
			return utils.NewError(utils.KindSecurityRejected, "file rejected by malware scan")
		}
	}

	if m.clamdAddr == "" {
		return nil
	}
	verdict, err := m.scanClamd(ctx, data)
	if err != nil {
		logger.Logger.Warn("malware scanner unavailable, allowing upload", "error", err)
		return nil
	}
	if verdict != "" {
		logger.Logger.Warn("clamd rejected upload", "filename", filename, "verdict", verdict)
		return utils.NewError(utils.KindSecurityRejected, "file rejected by malware scan")
	}
	return nil
}

// scanClamd streams the payload over the clamd INSTREAM protocol and
// returns the verdict name, empty for clean files.
func (m *MalwareScanner) scanClamd(ctx context.Context, data []byte) (string, error) {
	dialer := net.Dialer{Timeout: m.timeout}
	conn, err := dialer.DialContext(ctx, "tcp", m.clamdAddr)
	if err != nil {
		return "", fmt.Errorf("dial clamd: %w", err)
	}
	defer conn.Close()
	_ = conn.SetDeadline(time.Now().Add(m.timeout))

	if _, err := conn.Write([]byte("zINSTREAM\x00")); err != nil {
		return "", fmt.Errorf("clamd handshake: %w", err)
	}

	chunkSize := 64 * 1024
	sizeBuf := make([]byte, 4)
	for off := 0; off < len(data); off += chunkSize {
		end := off + chunkSize
		if end > len(data) {
			end = len(data)
		}
		binary.BigEndian.PutUint32(sizeBuf, uint32(end-off))
		if _, err := conn.Write(sizeBuf); err != nil {
			return "", fmt.Errorf("clamd stream: %w", err)
		}
		if _, err := conn.Write(data[off:end]); err != nil {
			return "", fmt.Errorf("clamd stream: %w", err)
		}
	}
	// Zero-length chunk terminates the stream.
	binary.BigEndian.PutUint32(sizeBuf, 0)
	if _, err := conn.Write(sizeBuf); err != nil {
		return "", fmt.Errorf("clamd terminate: %w", err)
	}

	reply := make([]byte, 512)
	n, err := conn.Read(reply)
	if err != nil {
		return "", fmt.Errorf("clamd reply: %w", err)
	}
	response := strings.TrimRight(string(reply[:n]), "\x00\n")

	if strings.HasSuffix(response, "OK") {
		return "", nil
	}
	if strings.Contains(response, "FOUND") {
		return response, nil
	}
	return "", fmt.Errorf("unexpected clamd reply: %s", response)
}
