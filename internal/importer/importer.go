// Package importer loads places from tabular files into storage.
//
// Supported formats are tab-separated (.tsv), comma-separated (.csv), and Excel
// workbooks (.xlsx). A header row naming the columns is recognised in any order;
// files without one are read as name, address, latitude, longitude.
package importer

import (
	"bytes"
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/xuri/excelize/v2"
	"go.uber.org/zap"

	"github.com/hyperjump/shopassist/internal/geo"
	"github.com/hyperjump/shopassist/internal/models"
	"github.com/hyperjump/shopassist/internal/validate"
)

// ErrUnsupported is returned for file extensions the importer cannot read.
var ErrUnsupported = errors.New("unsupported file type")

// Store is the subset of storage the importer writes to.
type Store interface {
	UpsertPlace(ctx context.Context, p *models.Place) (created bool, err error)
}

// Result summarises one imported file.
type Result struct {
	File    string `json:"file"`
	Rows    int    `json:"rows"`
	Created int    `json:"created"`
	Updated int    `json:"updated"`
	Skipped int    `json:"skipped"`
}

// Imported returns the number of places written.
func (r Result) Imported() int {
	return r.Created + r.Updated
}

// Importer parses place sheets and upserts them by name and address.
type Importer struct {
	store  Store
	logger *zap.Logger
}

// New returns an Importer writing to store.
func New(store Store, logger *zap.Logger) *Importer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Importer{store: store, logger: logger}
}

// Supported reports whether path has an extension the importer reads.
func Supported(path string) bool {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".csv", ".tsv", ".xlsx":
		return true
	}
	return false
}

// ImportFile reads the file at path and upserts every valid row.
func (i *Importer) ImportFile(ctx context.Context, path string) (Result, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return Result{File: path}, fmt.Errorf("read file: %w", err)
	}
	res, err := i.ImportBytes(ctx, content, filepath.Ext(path))
	res.File = path
	if err != nil {
		return res, fmt.Errorf("import %s: %w", path, err)
	}
	i.logger.Info("places imported",
		zap.String("file", path),
		zap.Int("rows", res.Rows),
		zap.Int("created", res.Created),
		zap.Int("updated", res.Updated),
		zap.Int("skipped", res.Skipped))
	return res, nil
}

// ImportBytes parses content according to ext (with leading dot) and upserts every valid row.
func (i *Importer) ImportBytes(ctx context.Context, content []byte, ext string) (Result, error) {
	rows, err := readRows(content, strings.ToLower(ext))
	if err != nil {
		return Result{}, err
	}
	return i.importRows(ctx, rows)
}

func readRows(content []byte, ext string) ([][]string, error) {
	switch ext {
	case ".tsv":
		return readDelimited(bytes.NewReader(content), '\t')
	case ".csv":
		return readDelimited(bytes.NewReader(content), ',')
	case ".xlsx":
		return readExcel(content)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupported, ext)
	}
}

func readDelimited(r io.Reader, comma rune) ([][]string, error) {
	reader := csv.NewReader(r)
	reader.Comma = comma
	reader.FieldsPerRecord = -1
	reader.LazyQuotes = true
	reader.TrimLeadingSpace = comma != '\t'
	records, err := reader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("parse rows: %w", err)
	}
	return records, nil
}

func readExcel(content []byte) ([][]string, error) {
	f, err := excelize.OpenReader(bytes.NewReader(content))
	if err != nil {
		return nil, fmt.Errorf("open Excel: %w", err)
	}
	defer f.Close()

	var all [][]string
	for _, sheet := range f.GetSheetList() {
		rows, err := f.GetRows(sheet)
		if err != nil {
			return nil, fmt.Errorf("get rows for sheet %q: %w", sheet, err)
		}
		// Each sheet may carry its own header; keep sheets apart with an empty row.
		if len(all) > 0 {
			all = append(all, nil)
		}
		all = append(all, rows...)
	}
	return all, nil
}

func (i *Importer) importRows(ctx context.Context, rows [][]string) (Result, error) {
	var res Result
	layout := defaultLayout
	expectHeader := true
	for n, row := range rows {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		if blank(row) {
			layout = defaultLayout
			expectHeader = true
			continue
		}
		if expectHeader {
			expectHeader = false
			if l, ok := parseHeader(row); ok {
				layout = l
				continue
			}
		}

		res.Rows++
		p, err := layout.place(row)
		if err != nil {
			res.Skipped++
			i.logger.Warn("skipping row", zap.Int("row", n+1), zap.Error(err))
			continue
		}
		created, err := i.store.UpsertPlace(ctx, p)
		if err != nil {
			return res, fmt.Errorf("row %d: %w", n+1, err)
		}
		if created {
			res.Created++
		} else {
			res.Updated++
		}
	}
	return res, nil
}

// layout maps column roles to indexes; -1 marks an absent column.
type layout struct {
	id, name, address, latitude, longitude int
}

var defaultLayout = layout{id: -1, name: 0, address: 1, latitude: 2, longitude: 3}

func parseHeader(row []string) (layout, bool) {
	l := layout{id: -1, name: -1, address: -1, latitude: -1, longitude: -1}
	for idx, cell := range row {
		switch strings.ToLower(strings.TrimSpace(cell)) {
		case "id", "placeid", "place_id":
			l.id = idx
		case "name":
			l.name = idx
		case "address":
			l.address = idx
		case "latitude", "lat":
			l.latitude = idx
		case "longitude", "lon", "lng":
			l.longitude = idx
		}
	}
	if l.name < 0 || l.latitude < 0 || l.longitude < 0 {
		return layout{}, false
	}
	return l, true
}

func (l layout) place(row []string) (*models.Place, error) {
	cell := func(idx int) string {
		if idx < 0 || idx >= len(row) {
			return ""
		}
		return strings.TrimSpace(row[idx])
	}
	loc, err := geo.ParsePoint(cell(l.latitude), cell(l.longitude))
	if err != nil {
		return nil, err
	}
	p := &models.Place{
		Name:     cell(l.name),
		Address:  cell(l.address),
		Location: loc,
	}
	if raw := cell(l.id); raw != "" {
		id, err := strconv.ParseInt(raw, 10, 64)
		if err != nil || id <= 0 {
			return nil, fmt.Errorf("invalid id %q", raw)
		}
		p.ID = id
	}
	if err := validate.Struct(p); err != nil {
		return nil, err
	}
	return p, nil
}

func blank(row []string) bool {
	for _, c := range row {
		if strings.TrimSpace(c) != "" {
			return false
		}
	}
	return true
}

// ImportPath imports path, or every supported file below it when path is a directory.
// Nested directories are only visited when recursive is set.
func (i *Importer) ImportPath(ctx context.Context, path string, recursive bool) ([]Result, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, err
	}
	if !info.IsDir() {
		res, err := i.ImportFile(ctx, path)
		return []Result{res}, err
	}

	var results []Result
	err = filepath.WalkDir(path, func(p string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if p != path && !recursive {
				return filepath.SkipDir
			}
			return nil
		}
		if !Supported(p) {
			return nil
		}
		res, err := i.ImportFile(ctx, p)
		if err != nil {
			return err
		}
		results = append(results, res)
		return nil
	})
	return results, err
}
