package loader

import (
	"encoding/csv"
	"io"
	"os"
	"strings"

	"github.com/juju/errors"
	log "github.com/sirupsen/logrus"

	"github.com/lightartw/textanalyze/types"
)

const columns = 5

var headerKeywords = []string{"id", "编号", "title", "标题", "url", "链接", "date", "日期"}

// NewsItem is one input row: id, title, date, category, url.
type NewsItem struct {
	ID       string `json:"id"`
	Title    string `json:"title"`
	Date     string `json:"date"`
	Category string `json:"category"`
	URL      string `json:"url"`
}

// ToData builds the initial pipeline context of the item.
func (n *NewsItem) ToData() types.Data {
	return types.Data{
		"id":       n.ID,
		"title":    n.Title,
		"date":     n.Date,
		"category": n.Category,
		"url":      n.URL,
	}
}

func Load(path string) ([]*NewsItem, error) {
	f, err := os.Open(path)
	if os.IsNotExist(err) {
		return nil, errors.NotFoundf("input file %s", path)
	}
	if err != nil {
		return nil, errors.Annotatef(err, "failed to open %s", path)
	}
	defer f.Close()

	items, err := Parse(f)
	if err != nil {
		return nil, errors.Annotatef(err, "failed to load %s", path)
	}
	return items, nil
}

/**
 * Parse reads the five positional columns. The first row is dropped as a
 * header only when its url column is not a link and the row mentions one of
 * the usual header words. Rows whose url does not start with http are
 * skipped with a warning.
 */
func Parse(r io.Reader) ([]*NewsItem, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	reader.LazyQuotes = true
	reader.TrimLeadingSpace = true

	rows, err := reader.ReadAll()
	if err != nil {
		return nil, errors.Annotatef(err, "bad csv")
	}
	rows = dropBlank(rows)
	if len(rows) == 0 {
		return []*NewsItem{}, nil
	}
	if width := len(rows[0]); width < columns {
		return nil, errors.NotValidf("csv with %d columns, expected %d", width, columns)
	}

	if isHeader(rows[0]) {
		log.Infof("skipping header row %v", rows[0])
		rows = rows[1:]
	}

	items := make([]*NewsItem, 0, len(rows))
	for i, row := range rows {
		if len(row) < columns {
			log.Warnf("skipping row %d: %d columns", i+1, len(row))
			continue
		}
		url := strings.TrimSpace(row[4])
		if !strings.HasPrefix(url, "http") {
			log.Warnf("skipping row %d: invalid url %.20q", i+1, url)
			continue
		}
		items = append(items, &NewsItem{
			ID:       strings.TrimSpace(row[0]),
			Title:    strings.TrimSpace(row[1]),
			Date:     strings.TrimSpace(row[2]),
			Category: strings.TrimSpace(row[3]),
			URL:      url,
		})
	}
	log.Infof("loaded %d news items", len(items))
	return items, nil
}

func isHeader(row []string) bool {
	if strings.HasPrefix(strings.TrimSpace(row[4]), "http") {
		return false
	}
	joined := strings.ToLower(strings.Join(row, " "))
	for _, keyword := range headerKeywords {
		if strings.Contains(joined, keyword) {
			return true
		}
	}
	return false
}

func dropBlank(rows [][]string) [][]string {
	kept := rows[:0]
	for _, row := range rows {
		if strings.TrimSpace(strings.Join(row, "")) != "" {
			kept = append(kept, row)
		}
	}
	return kept
}
