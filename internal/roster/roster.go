package roster

import (
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"
	"sync"
)

// Student is one roster row. The ID is the unique, stable key used for
// matching; Name and Class are display metadata.
type Student struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Class string `json:"class"`
}

// Store loads and persists the student roster from a CSV file and keeps a
// JSON mirror next to the attendance data for the web view. Reads fail soft:
// a broken CSV falls back to the last successfully loaded set.
type Store struct {
	csvPath  string
	jsonPath string

	mu     sync.Mutex
	cached []Student
	loaded bool
}

// seed is written on first run so subsequent loads are stable.
var seed = []Student{
	{ID: "student_378", Name: "Somsri Meejai", Class: "10301203"},
	{ID: "student_002", Name: "Asanee Piewdee", Class: "10301203"},
	{ID: "student_402", Name: "Jaidee Meemai", Class: "10301203"},
}

// NewStore creates a roster store. dataDir receives the students.json mirror.
func NewStore(csvPath, dataDir string) *Store {
	return &Store{
		csvPath:  csvPath,
		jsonPath: filepath.Join(dataDir, "students.json"),
	}
}

// Load reads the roster from CSV, seeding the file on first run. On read
// error it returns the previously cached set when available, else an empty
// roster. It never fails the process; the error is informational.
func (s *Store) Load() ([]Student, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := os.Stat(s.csvPath); errors.Is(err, os.ErrNotExist) {
		if werr := s.writeCSV(seed); werr != nil {
			log.Printf("roster: cannot create seed file: %v", werr)
			return s.fallback(werr)
		}
		log.Printf("roster: created seed file %s with %d students", s.csvPath, len(seed))
		s.cached = cloneStudents(seed)
		s.loaded = true
		s.writeMirror(s.cached)
		return cloneStudents(s.cached), nil
	}

	students, err := s.readCSV()
	if err != nil {
		log.Printf("roster: load failed: %v", err)
		return s.fallback(err)
	}
	s.cached = students
	s.loaded = true
	s.writeMirror(students)
	return cloneStudents(students), nil
}

// IDs returns just the identifier set for matching, loading on first use.
func (s *Store) IDs() []string {
	s.mu.Lock()
	loaded := s.loaded
	s.mu.Unlock()
	if !loaded {
		_, _ = s.Load()
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	ids := make([]string, 0, len(s.cached))
	for _, st := range s.cached {
		ids = append(ids, st.ID)
	}
	return ids
}

// Add appends a student and rewrites the CSV and JSON mirror. The ID is
// normalized with the student_ prefix.
func (s *Store) Add(st Student) error {
	st.ID = NormalizeID(st.ID)
	if st.ID == "student_" || st.Name == "" || st.Class == "" {
		return errors.New("id, name and class are required")
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.cached {
		if existing.ID == st.ID {
			return fmt.Errorf("student %s already exists", st.ID)
		}
	}
	next := append(cloneStudents(s.cached), st)
	if err := s.writeCSV(next); err != nil {
		return err
	}
	s.cached = next
	s.loaded = true
	s.writeMirror(next)
	return nil
}

// Remove deletes a student by ID and rewrites the CSV and JSON mirror.
func (s *Store) Remove(id string) error {
	id = NormalizeID(id)

	s.mu.Lock()
	defer s.mu.Unlock()
	next := make([]Student, 0, len(s.cached))
	found := false
	for _, st := range s.cached {
		if st.ID == id {
			found = true
			continue
		}
		next = append(next, st)
	}
	if !found {
		return fmt.Errorf("student %s not found", id)
	}
	if err := s.writeCSV(next); err != nil {
		return err
	}
	s.cached = next
	s.writeMirror(next)
	return nil
}

// SyncMirror rewrites the students.json mirror from the current CSV.
func (s *Store) SyncMirror() error {
	students, err := s.Load()
	if err != nil {
		return err
	}
	log.Printf("roster: mirror synced, %d students", len(students))
	return nil
}

// NormalizeID ensures the student_ prefix on raw IDs entered by operators.
func NormalizeID(id string) string {
	id = strings.TrimSpace(id)
	if !strings.HasPrefix(id, "student_") {
		id = "student_" + id
	}
	return id
}

func (s *Store) fallback(err error) ([]Student, error) {
	if s.loaded {
		return cloneStudents(s.cached), err
	}
	// Fall back to the JSON mirror written by a previous run, if any.
	if data, rerr := os.ReadFile(s.jsonPath); rerr == nil {
		var students []Student
		if jerr := json.Unmarshal(data, &students); jerr == nil {
			s.cached = students
			s.loaded = true
			log.Printf("roster: recovered %d students from mirror", len(students))
			return cloneStudents(students), err
		}
	}
	return nil, err
}

func (s *Store) readCSV() ([]Student, error) {
	f, err := os.Open(s.csvPath)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	r := csv.NewReader(f)
	rows, err := r.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", s.csvPath, err)
	}
	if len(rows) == 0 {
		return nil, fmt.Errorf("%s: missing header row", s.csvPath)
	}

	students := make([]Student, 0, len(rows)-1)
	for i, row := range rows[1:] {
		if len(row) < 3 {
			return nil, fmt.Errorf("%s: row %d has %d columns, want 3", s.csvPath, i+2, len(row))
		}
		st := Student{ID: strings.TrimSpace(row[0]), Name: row[1], Class: row[2]}
		if st.ID == "" {
			return nil, fmt.Errorf("%s: row %d has empty id", s.csvPath, i+2)
		}
		students = append(students, st)
	}
	return students, nil
}

func (s *Store) writeCSV(students []Student) error {
	tmp, err := os.CreateTemp(filepath.Dir(s.csvPath), ".students-*.csv")
	if err != nil {
		return err
	}
	w := csv.NewWriter(tmp)
	_ = w.Write([]string{"id", "name", "class"})
	for _, st := range students {
		_ = w.Write([]string{st.ID, st.Name, st.Class})
	}
	w.Flush()
	if err := w.Error(); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return err
	}
	return os.Rename(tmp.Name(), s.csvPath)
}

// writeMirror refreshes students.json; failures are logged, the CSV remains
// the source of truth.
func (s *Store) writeMirror(students []Student) {
	if err := os.MkdirAll(filepath.Dir(s.jsonPath), 0o755); err != nil {
		log.Printf("roster: mirror dir: %v", err)
		return
	}
	data, err := json.MarshalIndent(students, "", "    ")
	if err != nil {
		log.Printf("roster: mirror marshal: %v", err)
		return
	}
	if err := os.WriteFile(s.jsonPath, data, 0o644); err != nil {
		log.Printf("roster: mirror write: %v", err)
	}
}

func cloneStudents(in []Student) []Student {
	out := make([]Student, len(in))
	copy(out, in)
	return out
}
