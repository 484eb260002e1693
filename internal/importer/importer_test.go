package importer

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/xuri/excelize/v2"

	"github.com/hyperjump/shopassist/internal/models"
)

type memStore struct {
	byKey map[string]*models.Place
	err   error
}

func newMemStore() *memStore {
	return &memStore{byKey: make(map[string]*models.Place)}
}

func (m *memStore) UpsertPlace(ctx context.Context, p *models.Place) (bool, error) {
	if m.err != nil {
		return false, m.err
	}
	key := p.Name + "|" + p.Address
	_, exists := m.byKey[key]
	cp := *p
	m.byKey[key] = &cp
	return !exists, nil
}

func TestImportBytes_TSVWithHeader(t *testing.T) {
	content := "id\tname\taddress\tphone\tlongitude\tlatitude\n" +
		"1\tSunny Bakery\t1 Main St\t555-0100\t-122.0841\t37.4221\n" +
		"2\tNight Market\t2 Side St\t555-0101\t-121.8863\t37.3382\n" +
		"3\tBroken\t3 Nowhere\t\tnot-a-number\t37.0\n"
	store := newMemStore()
	res, err := New(store, nil).ImportBytes(context.Background(), []byte(content), ".tsv")
	if err != nil {
		t.Fatal(err)
	}
	if res.Rows != 3 || res.Created != 2 || res.Skipped != 1 {
		t.Errorf("unexpected result %+v", res)
	}
	p := store.byKey["Sunny Bakery|1 Main St"]
	if p == nil {
		t.Fatal("Sunny Bakery not imported")
	}
	if p.ID != 1 || p.Location.Latitude != 37.4221 || p.Location.Longitude != -122.0841 {
		t.Errorf("got %+v", p)
	}
}

func TestImportBytes_CSVWithoutHeader(t *testing.T) {
	content := "Corner Shop,\"5 Elm St, Suite 2\",40.7128,-74.0060\n" +
		",no name,1,1\n" +
		"Far Away,1 Pole Rd,95,0\n"
	store := newMemStore()
	imp := New(store, nil)

	res, err := imp.ImportBytes(context.Background(), []byte(content), ".CSV")
	if err != nil {
		t.Fatal(err)
	}
	if res.Created != 1 || res.Skipped != 2 {
		t.Errorf("unexpected result %+v", res)
	}
	if _, ok := store.byKey["Corner Shop|5 Elm St, Suite 2"]; !ok {
		t.Error("quoted address not preserved")
	}

	res, err = imp.ImportBytes(context.Background(), []byte(content), ".csv")
	if err != nil {
		t.Fatal(err)
	}
	if res.Created != 0 || res.Updated != 1 || res.Imported() != 1 {
		t.Errorf("re-import should update: %+v", res)
	}
}

func TestImportBytes_Excel(t *testing.T) {
	f := excelize.NewFile()
	defer f.Close()
	f.SetSheetRow("Sheet1", "A1", &[]interface{}{"Latitude", "Longitude", "Name", "Address"})
	f.SetSheetRow("Sheet1", "A2", &[]interface{}{"37.4221", "-122.0841", "Sheet Store", "9 Oak"})
	if _, err := f.NewSheet("Second"); err != nil {
		t.Fatal(err)
	}
	f.SetSheetRow("Second", "A1", &[]interface{}{"Other Store", "10 Oak", "1.5", "2.5"})
	var buf bytes.Buffer
	if _, err := f.WriteTo(&buf); err != nil {
		t.Fatalf("WriteTo: %v", err)
	}

	store := newMemStore()
	res, err := New(store, nil).ImportBytes(context.Background(), buf.Bytes(), ".xlsx")
	if err != nil {
		t.Fatal(err)
	}
	if res.Created != 2 {
		t.Fatalf("expected 2 places, got %+v", res)
	}
	if p := store.byKey["Other Store|10 Oak"]; p == nil || p.Location.Latitude != 1.5 {
		t.Errorf("second sheet not read with default layout: %+v", p)
	}
}

func TestImportBytes_Errors(t *testing.T) {
	imp := New(newMemStore(), nil)
	if _, err := imp.ImportBytes(context.Background(), []byte("x"), ".pdf"); !errors.Is(err, ErrUnsupported) {
		t.Errorf("expected ErrUnsupported, got %v", err)
	}

	failing := &memStore{err: errors.New("database is locked")}
	if _, err := New(failing, nil).ImportBytes(context.Background(), []byte("A,B,1,1\n"), ".csv"); err == nil {
		t.Error("store failure should abort the import")
	}
}

func TestImportPath(t *testing.T) {
	dir := t.TempDir()
	sub := filepath.Join(dir, "nested")
	if err := os.Mkdir(sub, 0755); err != nil {
		t.Fatal(err)
	}
	files := map[string]string{
		filepath.Join(dir, "a.csv"):     "A,1 St,1,1\n",
		filepath.Join(dir, "notes.txt"): "ignored",
		filepath.Join(sub, "b.tsv"):     "B\t2 St\t2\t2\n",
	}
	for path, content := range files {
		if err := os.WriteFile(path, []byte(content), 0600); err != nil {
			t.Fatal(err)
		}
	}

	results, err := New(newMemStore(), nil).ImportPath(context.Background(), dir, false)
	if err != nil {
		t.Fatal(err)
	}
	if len(results) != 1 {
		t.Errorf("non-recursive: expected 1 file, got %d", len(results))
	}

	results, err = New(newMemStore(), nil).ImportPath(context.Background(), dir, true)
	if err != nil {
		t.Fatal(err)
	}
	if len(results) != 2 {
		t.Errorf("recursive: expected 2 files, got %d", len(results))
	}

	if !Supported("x.XLSX") || Supported("x.pdf") {
		t.Error("Supported mismatch")
	}
}
