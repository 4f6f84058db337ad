package roster

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
)

func newTestStore(t *testing.T) (*Store, string) {
	t.Helper()
	dir := t.TempDir()
	return NewStore(filepath.Join(dir, "students.csv"), dir), dir
}

func TestLoad_SeedsOnFirstRun(t *testing.T) {
	store, dir := newTestStore(t)

	students, err := store.Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(students) != 3 {
		t.Fatalf("seed roster has %d students, want 3", len(students))
	}

	// Seed must be stable on a second load.
	again, err := store.Load()
	if err != nil {
		t.Fatalf("second Load: %v", err)
	}
	if len(again) != len(students) || again[0].ID != students[0].ID {
		t.Errorf("second load differs from seed: %v vs %v", again, students)
	}

	// The JSON mirror is written alongside.
	data, err := os.ReadFile(filepath.Join(dir, "students.json"))
	if err != nil {
		t.Fatalf("mirror missing: %v", err)
	}
	var mirrored []Student
	if err := json.Unmarshal(data, &mirrored); err != nil {
		t.Fatalf("mirror not valid JSON: %v", err)
	}
	if len(mirrored) != 3 {
		t.Errorf("mirror has %d students, want 3", len(mirrored))
	}
}

func TestLoad_ReadsExistingCSV(t *testing.T) {
	store, dir := newTestStore(t)
	csv := "id,name,class\nstudent_900,Tester One,10301203\nstudent_901,Tester Two,10301203\n"
	if err := os.WriteFile(filepath.Join(dir, "students.csv"), []byte(csv), 0o644); err != nil {
		t.Fatal(err)
	}

	students, err := store.Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(students) != 2 {
		t.Fatalf("loaded %d students, want 2", len(students))
	}
	if students[0].ID != "student_900" || students[0].Name != "Tester One" {
		t.Errorf("unexpected first row: %+v", students[0])
	}

	ids := store.IDs()
	if len(ids) != 2 || ids[1] != "student_901" {
		t.Errorf("IDs() = %v", ids)
	}
}

func TestLoad_MalformedRowFailsSoftToCache(t *testing.T) {
	store, dir := newTestStore(t)
	good := "id,name,class\nstudent_900,Tester One,10301203\n"
	path := filepath.Join(dir, "students.csv")
	if err := os.WriteFile(path, []byte(good), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := store.Load(); err != nil {
		t.Fatalf("initial load: %v", err)
	}

	// Break the file: a row with too few columns.
	if err := os.WriteFile(path, []byte("id,name,class\nstudent_901\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	students, err := store.Load()
	if err == nil {
		t.Error("expected an error for the malformed CSV")
	}
	if len(students) != 1 || students[0].ID != "student_900" {
		t.Errorf("expected cached roster, got %v", students)
	}
}

func TestLoad_RecoversFromMirror(t *testing.T) {
	dir := t.TempDir()
	mirror := []Student{{ID: "student_777", Name: "Mirror Only", Class: "10301203"}}
	data, _ := json.Marshal(mirror)
	if err := os.WriteFile(filepath.Join(dir, "students.json"), data, 0o644); err != nil {
		t.Fatal(err)
	}
	// CSV exists but is unparseable; a fresh store has no in-memory cache.
	csvPath := filepath.Join(dir, "students.csv")
	if err := os.WriteFile(csvPath, []byte("id,name,class\n\"unclosed\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	store := NewStore(csvPath, dir)
	students, err := store.Load()
	if err == nil {
		t.Error("expected an error for the broken CSV")
	}
	if len(students) != 1 || students[0].ID != "student_777" {
		t.Errorf("expected mirror fallback, got %v", students)
	}
}

func TestAddRemove(t *testing.T) {
	store, _ := newTestStore(t)
	if _, err := store.Load(); err != nil {
		t.Fatal(err)
	}

	if err := store.Add(Student{ID: "900", Name: "New Student", Class: "10301203"}); err != nil {
		t.Fatalf("Add: %v", err)
	}
	ids := store.IDs()
	if ids[len(ids)-1] != "student_900" {
		t.Errorf("Add did not normalize the id: %v", ids)
	}

	if err := store.Add(Student{ID: "student_900", Name: "Dup", Class: "10301203"}); err == nil {
		t.Error("duplicate Add should fail")
	}

	if err := store.Remove("900"); err != nil {
		t.Fatalf("Remove: %v", err)
	}
	for _, id := range store.IDs() {
		if id == "student_900" {
			t.Error("Remove left the student in the roster")
		}
	}

	if err := store.Remove("student_900"); err == nil {
		t.Error("removing a missing student should fail")
	}

	// Mutations survive a fresh store reading the same CSV.
	if err := store.Add(Student{ID: "901", Name: "Persisted", Class: "10301203"}); err != nil {
		t.Fatal(err)
	}
	fresh := NewStore(store.csvPath, filepath.Dir(store.jsonPath))
	students, err := fresh.Load()
	if err != nil {
		t.Fatalf("fresh load: %v", err)
	}
	found := false
	for _, st := range students {
		if st.ID == "student_901" {
			found = true
		}
	}
	if !found {
		t.Errorf("added student not persisted: %v", students)
	}
}

func TestNormalizeID(t *testing.T) {
	tests := []struct{ in, want string }{
		{"378", "student_378"},
		{"student_378", "student_378"},
		{" 378 ", "student_378"},
	}
	for _, tt := range tests {
		if got := NormalizeID(tt.in); got != tt.want {
			t.Errorf("NormalizeID(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
