// Package debuglog provides an append-only, encrypted diagnostic log.
//
// Each entry is written as one line: base64(nonce || XChaCha20-Poly1305
// ciphertext) of "<unix millis> <message>". Appends are queued and written
// by a background goroutine so callers never block on disk I/O.
package debuglog

import (
	"bufio"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"time"

	"golang.org/x/crypto/chacha20poly1305"
)

// KeySize is the required key length in bytes.
const KeySize = chacha20poly1305.KeySize

// Config controls the sink.
type Config struct {
	Path      string
	Key       []byte
	QueueSize int
}

// Sink is an asynchronous encrypted log writer.
type Sink struct {
	aead   cipher.AEAD
	file   *os.File
	queue  chan string
	logger *slog.Logger
	now    func() time.Time

	mu     sync.RWMutex
	closed bool
	wg     sync.WaitGroup
}

// Open creates the log file (appending if it exists) and starts the writer.
func Open(cfg Config, logger *slog.Logger) (*Sink, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 1000
	}

	aead, err := chacha20poly1305.NewX(cfg.Key)
	if err != nil {
		return nil, fmt.Errorf("init debug log cipher: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(cfg.Path), 0o755); err != nil {
		return nil, fmt.Errorf("create debug log directory: %w", err)
	}
	f, err := os.OpenFile(cfg.Path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o600)
	if err != nil {
		return nil, fmt.Errorf("open debug log: %w", err)
	}

	s := &Sink{
		aead:   aead,
		file:   f,
		queue:  make(chan string, cfg.QueueSize),
		logger: logger,
		now:    time.Now,
	}
	s.wg.Add(1)
	go s.run()
	return s, nil
}

// AppendEncrypted queues a timestamped entry. It never blocks and never
// fails; when the queue is full the oldest pending entry is dropped.
func (s *Sink) AppendEncrypted(message string) {
	entry := strconv.FormatInt(s.now().UnixMilli(), 10) + " " + message

	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		s.logger.Warn("debug log closed, dropping entry")
		return
	}

	select {
	case s.queue <- entry:
		return
	default:
	}

	select {
	case <-s.queue:
		s.logger.Warn("debug log queue full, dropped oldest entry", "queue_len", len(s.queue))
	default:
	}
	select {
	case s.queue <- entry:
	default:
		s.logger.Warn("debug log queue full, dropped entry")
	}
}

func (s *Sink) run() {
	defer s.wg.Done()
	w := bufio.NewWriter(s.file)
	for entry := range s.queue {
		line, err := s.seal(entry)
		if err != nil {
			s.logger.Error("failed to encrypt debug log entry", "error", err)
			continue
		}
		if _, err := w.WriteString(line + "\n"); err != nil {
			s.logger.Error("failed to write debug log entry", "error", err)
			continue
		}
		if len(s.queue) == 0 {
			if err := w.Flush(); err != nil {
				s.logger.Error("failed to flush debug log", "error", err)
			}
		}
	}
	if err := w.Flush(); err != nil {
		s.logger.Error("failed to flush debug log", "error", err)
	}
}

func (s *Sink) seal(entry string) (string, error) {
	nonce := make([]byte, s.aead.NonceSize(), s.aead.NonceSize()+len(entry)+s.aead.Overhead())
	if _, err := rand.Read(nonce); err != nil {
		return "", fmt.Errorf("generate nonce: %w", err)
	}
	sealed := s.aead.Seal(nonce, nonce, []byte(entry), nil)
	return base64.StdEncoding.EncodeToString(sealed), nil
}

// Close writes every queued entry and closes the file.
func (s *Sink) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	close(s.queue)
	s.mu.Unlock()

	s.wg.Wait()
	if err := s.file.Close(); err != nil {
		return fmt.Errorf("close debug log: %w", err)
	}
	return nil
}

// ReadAll decrypts every entry in a debug log file.
func ReadAll(path string, key []byte) ([]string, error) {
	aead, err := chacha20poly1305.NewX(key)
	if err != nil {
		return nil, fmt.Errorf("init debug log cipher: %w", err)
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open debug log: %w", err)
	}
	defer func() { _ = f.Close() }()

	var entries []string
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		raw, err := base64.StdEncoding.DecodeString(scanner.Text())
		if err != nil {
			return nil, fmt.Errorf("decode debug log line %d: %w", len(entries)+1, err)
		}
		if len(raw) < aead.NonceSize() {
			return nil, fmt.Errorf("debug log line %d too short", len(entries)+1)
		}
		plain, err := aead.Open(nil, raw[:aead.NonceSize()], raw[aead.NonceSize():], nil)
		if err != nil {
			return nil, fmt.Errorf("decrypt debug log line %d: %w", len(entries)+1, err)
		}
		entries = append(entries, string(plain))
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read debug log: %w", err)
	}
	return entries, nil
}

// ParseKey decodes a hex-encoded key.
func ParseKey(s string) ([]byte, error) {
	key, err := hex.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("decode debug log key: %w", err)
	}
	if len(key) != KeySize {
		return nil, fmt.Errorf("debug log key must be %d bytes, got %d", KeySize, len(key))
	}
	return key, nil
}

// GenerateKey returns a random key.
func GenerateKey() ([]byte, error) {
	key := make([]byte, KeySize)
	if _, err := rand.Read(key); err != nil {
		return nil, fmt.Errorf("generate debug log key: %w", err)
	}
	return key, nil
}
