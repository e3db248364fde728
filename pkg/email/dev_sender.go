package email

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"sync/atomic"
	"time"
)

// DevSender writes messages to disk instead of delivering them.
// Each message becomes one JSON file holding the envelope and both bodies.
type DevSender struct {
	dir string
	seq atomic.Uint64
	now func() time.Time
}

// NewDevSender creates a DevSender writing into dir. The directory is created on first send.
func NewDevSender(dir string) *DevSender {
	if dir == "" {
		dir = os.TempDir()
	}
	return &DevSender{dir: dir, now: time.Now}
}

type devMessage struct {
	SentAt time.Time `json:"sent_at"`
	SendEmailParams
}

// SendEmail implements EmailSender.
func (d *DevSender) SendEmail(_ context.Context, params SendEmailParams) error {
	if err := params.Validate(); err != nil {
		return err
	}
	if err := os.MkdirAll(d.dir, 0o755); err != nil {
		return fmt.Errorf("%w: create output dir: %v", ErrFailedToSendEmail, err)
	}

	now := d.now()
	identifier := params.Tag
	if identifier == "" {
		identifier = params.Subject
	}
	name := fmt.Sprintf("%s_%03d_%s.json", now.Format("20060102_150405"), d.seq.Add(1)%1000, sanitizeFilename(identifier))

	data, err := json.MarshalIndent(devMessage{SentAt: now.UTC(), SendEmailParams: params}, "", "  ")
	if err != nil {
		return fmt.Errorf("%w: encode message: %v", ErrFailedToSendEmail, err)
	}
	if err := os.WriteFile(filepath.Join(d.dir, name), data, 0o644); err != nil {
		return fmt.Errorf("%w: write message: %v", ErrFailedToSendEmail, err)
	}
	return nil
}

var unsafeFilenameChars = regexp.MustCompile(`[^a-z0-9\-_.]`)

func sanitizeFilename(s string) string {
	s = strings.ToLower(strings.ReplaceAll(strings.TrimSpace(s), " ", "_"))
	s = unsafeFilenameChars.ReplaceAllString(s, "")
	if len(s) > 64 {
		s = s[:64]
	}
	if s == "" {
		s = "email"
	}
	return s
}
