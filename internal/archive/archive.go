// Package archive keeps a record of finished interviews. Records are stored
// as append-only JSON lines in a local file, one line per ended interview.
package archive

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/MrWong99/mockinterview/internal/interview"
)

// Turn is one transcript entry of a [Record].
type Turn struct {
	Speaker string `json:"speaker"`
	Content string `json:"content"`
	Status  string `json:"status"`
}

// Record is a single ended interview written to the file store.
type Record struct {
	Timestamp   time.Time `json:"timestamp"`
	InterviewID string    `json:"interview_id"`
	Topic       string    `json:"topic"`
	Outcome     string    `json:"outcome"`
	Turns       []Turn    `json:"turns"`
}

// NewRecord converts the final view of an interview into a Record.
func NewRecord(v interview.View, at time.Time) Record {
	turns := make([]Turn, len(v.Turns))
	for i, t := range v.Turns {
		turns[i] = Turn{
			Speaker: t.Speaker.String(),
			Content: t.Content,
			Status:  t.Status.String(),
		}
	}
	return Record{
		Timestamp:   at.UTC(),
		InterviewID: v.ID,
		Topic:       v.Topic,
		Outcome:     v.Outcome.String(),
		Turns:       turns,
	}
}

// FileStore persists records as JSON lines in a local file.
// Safe for concurrent use.
type FileStore struct {
	mu   sync.Mutex
	path string
	now  func() time.Time
}

// NewFileStore creates a FileStore that writes to the given path.
// The file is created on the first write.
func NewFileStore(path string) *FileStore {
	return &FileStore{path: path, now: time.Now}
}

// Path returns the file the store appends to.
func (fs *FileStore) Path() string { return fs.path }

// Save appends the final view of an interview to the file.
func (fs *FileStore) Save(v interview.View) error {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	data, err := json.Marshal(NewRecord(v, fs.now()))
	if err != nil {
		return fmt.Errorf("archive: marshal: %w", err)
	}
	data = append(data, '\n')

	f, err := os.OpenFile(fs.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("archive: open file: %w", err)
	}
	defer f.Close()

	if _, err := f.Write(data); err != nil {
		return fmt.Errorf("archive: write: %w", err)
	}
	return nil
}

// OnEnd returns a hook for [interview.WithOnEnd] that saves each ended
// interview and logs failures instead of returning them.
func (fs *FileStore) OnEnd(log *slog.Logger) func(interview.View) {
	return func(v interview.View) {
		if err := fs.Save(v); err != nil {
			log.Warn("failed to archive interview", "interview_id", v.ID, "err", err)
			return
		}
		log.Debug("interview archived", "interview_id", v.ID, "path", fs.path)
	}
}

// Records reads every record stored so far. A missing file yields no records.
func (fs *FileStore) Records() ([]Record, error) {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	f, err := os.Open(fs.path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("archive: open file: %w", err)
	}
	defer f.Close()
	return Decode(f)
}

// Decode reads JSON-line records from r.
func Decode(r io.Reader) ([]Record, error) {
	var out []Record
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	for line := 1; sc.Scan(); line++ {
		if len(sc.Bytes()) == 0 {
			continue
		}
		var rec Record
		if err := json.Unmarshal(sc.Bytes(), &rec); err != nil {
			return out, fmt.Errorf("archive: line %d: %w", line, err)
		}
		out = append(out, rec)
	}
	if err := sc.Err(); err != nil {
		return out, fmt.Errorf("archive: read: %w", err)
	}
	return out, nil
}
