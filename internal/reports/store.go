package reports

import (
	"bytes"
	"encoding/json"
	"log"
	"os"
	"path/filepath"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/peterbourgon/diskv/v3"
	"github.com/pkg/errors"
)

// DefaultWindow is how long a report stays active after its timestamp.
const DefaultWindow = 24 * time.Hour

const tempDirName = ".firemap-tmp"

// Store persists reports in a single JSON document. All reads and
// read-modify-write cycles are serialized through mu; other processes
// writing the same file are not coordinated.
type Store struct {
	mu     sync.Mutex
	disk   *diskv.Diskv
	key    string
	path   string
	logger *log.Logger
	now    func() time.Time
	window time.Duration
}

type Option func(*Store)

// WithClock overrides the clock used to stamp reports without a timestamp.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// WithWindow overrides the freshness window used by ListActive.
func WithWindow(d time.Duration) Option {
	return func(s *Store) {
		if d > 0 {
			s.window = d
		}
	}
}

// NewStore opens the document at path. The file itself is not touched
// until the first Init, Load or Append.
func NewStore(path string, logger *log.Logger, opts ...Option) (*Store, error) {
	if logger == nil {
		logger = log.Default()
	}
	dir, key := filepath.Split(filepath.Clean(path))
	if key == "" || key == "." || key == string(filepath.Separator) {
		return nil, errors.Errorf("invalid data file path %q", path)
	}
	if dir == "" {
		dir = "."
	}
	s := &Store{
		key:    key,
		path:   filepath.Join(dir, key),
		logger: logger,
		now:    time.Now,
		window: DefaultWindow,
		disk: diskv.New(diskv.Options{
			BasePath: dir,
			// one flat file: the key is the file name
			Transform:    func(string) []string { return []string{} },
			TempDir:      filepath.Join(dir, tempDirName),
			CacheSizeMax: 0,
			PathPerm:     0755,
			FilePerm:     0644,
		}),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Path is the location of the document on disk.
func (s *Store) Path() string { return s.path }

// Init writes an empty document if none exists yet and reports whether it did.
func (s *Store) Init() (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.disk.Has(s.key) {
		return false, nil
	}
	if err := s.store(&Document{Entries: []json.RawMessage{}}); err != nil {
		return false, err
	}
	return true, nil
}

// Load reads the whole document. A missing file yields an empty document.
func (s *Store) Load() (*Document, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.load()
}

// Append decodes body as a single JSON object, stamps it if it has no
// timestamp and adds it to the end of the document.
func (s *Store) Append(body []byte) (Report, error) {
	report, err := decodeReport(body)
	if err != nil {
		return Report{}, err
	}
	if _, ok := report.Get(timestampKey); !ok {
		stamp, err := json.Marshal(FormatTimestamp(s.now()))
		if err != nil {
			return Report{}, errors.Wrap(err, "encode timestamp")
		}
		report.Set(timestampKey, stamp)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	doc, err := s.load()
	if err != nil {
		return Report{}, err
	}
	if err := doc.Add(report); err != nil {
		return Report{}, err
	}
	if err := s.store(doc); err != nil {
		return Report{}, err
	}
	s.logger.Printf("report stored (%d total)", len(doc.Entries))
	return report, nil
}

// ListActive returns, in insertion order, the reports whose timestamp is
// less than the window behind now. Timestamps are compared as wall-clock
// readings with offsets discarded, so future-dated reports count as active.
// Entries that are not objects, and reports with a missing or unparseable
// timestamp, are skipped.
func (s *Store) ListActive(now time.Time) ([]Report, error) {
	doc, err := s.Load()
	if err != nil {
		return nil, err
	}
	ref := WallClock(now)
	all := doc.Reports()
	active := make([]Report, 0, len(all))
	for _, r := range all {
		t, ok := r.Time()
		if !ok {
			continue
		}
		if ref.Sub(t) < s.window {
			active = append(active, r)
		}
	}
	return active, nil
}

func (s *Store) load() (*Document, error) {
	b, err := s.disk.Read(s.key)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return &Document{Entries: []json.RawMessage{}}, nil
		}
		return nil, &StorageError{Op: "read", Path: s.path, Err: err}
	}
	var doc Document
	if err := json.Unmarshal(b, &doc); err != nil {
		return nil, &StorageError{Op: "decode", Path: s.path, Err: err}
	}
	return &doc, nil
}

// store replaces the document through a synced temp file and rename.
func (s *Store) store(doc *Document) error {
	b, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return &StorageError{Op: "encode", Path: s.path, Err: err}
	}
	if err := s.disk.WriteStream(s.key, bytes.NewReader(b), true); err != nil {
		return &StorageError{Op: "write", Path: s.path, Err: err}
	}
	return nil
}

func decodeReport(body []byte) (Report, error) {
	if !utf8.Valid(body) {
		return Report{}, errors.WithMessage(ErrInvalidPayload, "payload is not valid UTF-8")
	}
	var r Report
	if err := json.Unmarshal(body, &r); err != nil {
		return Report{}, errors.WithMessage(ErrInvalidPayload, err.Error())
	}
	// a bare null leaves r untouched
	if r.fields == nil {
		return Report{}, errors.WithMessage(ErrInvalidPayload, "payload is null")
	}
	return r, nil
}
