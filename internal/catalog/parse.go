package catalog

import (
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"path"
	"strings"

	"github.com/xuri/excelize/v2"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// Product is the commercial metadata attached to a tile image.
type Product struct {
	Basename string `json:"basename"`
	Title    string `json:"title"`
	Slug     string `json:"slug"`
	Sizes    string `json:"sizes"`
	Category string `json:"category"`
}

// Column aliases, matched against lower-cased, trimmed header cells in this order.
var (
	imagesAliases   = []string{"images"}
	titleAliases    = []string{"product title", "producttitle", "title"}
	slugAliases     = []string{"slug name", "slugname", "slug"}
	sizesAliases    = []string{"sizes", "size", "size(s)"}
	categoryAliases = []string{"category", "categories"}
)

// NormalizeName maps an image name or key to its lookup key: the lower-cased basename.
func NormalizeName(name string) string {
	name = strings.TrimSpace(strings.ReplaceAll(name, "\\", "/"))
	base := path.Base(name)
	if base == "." || base == "/" {
		return ""
	}
	return cases.Lower(language.Und).String(base)
}

// ParseTable decodes a spreadsheet blob into rows, header first. Names ending
// in .csv are read as CSV; everything else as an xlsx workbook, preferring
// sheet and falling back to the first sheet.
func ParseTable(name string, data []byte, sheet string) ([][]string, error) {
	if strings.EqualFold(path.Ext(name), ".csv") {
		r := csv.NewReader(bytes.NewReader(data))
		r.FieldsPerRecord = -1
		r.LazyQuotes = true
		rows, err := r.ReadAll()
		if err != nil {
			return nil, fmt.Errorf("cannot parse csv %s: %w", name, err)
		}
		return rows, nil
	}

	f, err := excelize.OpenReader(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("cannot open workbook %s: %w", name, err)
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, errors.New("workbook has no sheets")
	}
	target := sheets[0]
	for _, s := range sheets {
		if sheet != "" && s == sheet {
			target = s
			break
		}
	}
	rows, err := f.GetRows(target)
	if err != nil {
		return nil, fmt.Errorf("cannot read sheet %q: %w", target, err)
	}
	return rows, nil
}

// Stats counts what BuildMapping did with the rows.
type Stats struct {
	Rows    int
	Skipped int
	Aliases int
	// NoImagesColumn is set when the header has no images column.
	NoImagesColumn bool
}

type columns struct {
	images, title, slug, sizes, category int
}

func findColumns(header []string) (columns, bool) {
	byName := make(map[string]int, len(header))
	lower := cases.Lower(language.Und)
	for i, h := range header {
		byName[lower.String(strings.TrimSpace(h))] = i
	}
	pick := func(aliases []string) int {
		for _, a := range aliases {
			if i, ok := byName[a]; ok {
				return i
			}
		}
		return -1
	}
	c := columns{
		images:   pick(imagesAliases),
		title:    pick(titleAliases),
		slug:     pick(slugAliases),
		sizes:    pick(sizesAliases),
		category: pick(categoryAliases),
	}
	return c, c.images >= 0
}

// BuildMapping turns rows (header first) into the reverse mapping from a
// normalised image basename to its product. A row naming several images,
// comma separated, registers the product under each of them; a later row
// wins over an earlier one. Without an images column the mapping is empty.
func BuildMapping(rows [][]string) (map[string]Product, Stats) {
	out := map[string]Product{}
	var st Stats
	if len(rows) == 0 {
		return out, st
	}
	cols, ok := findColumns(rows[0])
	if !ok {
		st.NoImagesColumn = true
		return out, st
	}

	cell := func(row []string, i int) string {
		if i < 0 || i >= len(row) {
			return ""
		}
		return strings.TrimSpace(row[i])
	}
	for _, row := range rows[1:] {
		st.Rows++
		images := cell(row, cols.images)
		if images == "" {
			st.Skipped++
			continue
		}
		p := Product{
			Title:    cell(row, cols.title),
			Slug:     cell(row, cols.slug),
			Sizes:    cell(row, cols.sizes),
			Category: cell(row, cols.category),
		}
		for _, part := range strings.Split(images, ",") {
			key := NormalizeName(part)
			if key == "" {
				continue
			}
			cp := p
			cp.Basename = key
			out[key] = cp
			st.Aliases++
		}
	}
	return out, st
}
