package panel

import (
	"bufio"
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"
)

// EventsCSVHeader is the first line of an events export.
var EventsCSVHeader = []string{"id", "time", "event", "version", "visitor", "params", "path", "payload"}

// ErrBadExport is returned when a downloaded export is not well-formed CSV
// or an events export does not start with the expected header.
var ErrBadExport = errors.New("unexpected CSV export format")

// ExportFileName names an export of events between from and to.
func ExportFileName(from, to time.Time) string {
	return fmt.Sprintf("events_%s_%s.csv", from.UTC().Format("20060102"), to.UTC().Format("20060102"))
}

// ExportEvents downloads the events between from and to into dir and returns
// the written file and its number of data rows.
func (c *Client) ExportEvents(ctx context.Context, from, to time.Time, dir string) (string, int, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", 0, fmt.Errorf("failed to create export directory: %w", err)
	}
	dst := filepath.Join(dir, ExportFileName(from, to))
	rows, err := c.downloadCSV(ctx, EventsCSVPath(from, to), dst, checkEventsHeader)
	if err != nil {
		return "", 0, err
	}
	return dst, rows, nil
}

// DownloadCSV saves the CSV payload served at endpoint to filename and
// returns its number of data rows. The file only appears once the download
// completed and parsed.
func (c *Client) DownloadCSV(ctx context.Context, endpoint, filename string) (int, error) {
	return c.downloadCSV(ctx, endpoint, filename, nil)
}

func (c *Client) downloadCSV(ctx context.Context, endpoint, filename string, check func(header []string) error) (int, error) {
	tmp, err := os.CreateTemp(filepath.Dir(filename), ".download-*.csv")
	if err != nil {
		return 0, err
	}
	defer os.Remove(tmp.Name())

	w := bufio.NewWriter(tmp)
	if _, err := c.Download(ctx, endpoint, w); err != nil {
		tmp.Close()
		return 0, err
	}
	if err := w.Flush(); err != nil {
		tmp.Close()
		return 0, err
	}
	if err := tmp.Close(); err != nil {
		return 0, err
	}
	rows, err := countRecords(tmp.Name(), check)
	if err != nil {
		return 0, err
	}
	if err := os.Rename(tmp.Name(), filename); err != nil {
		return 0, err
	}
	return rows, nil
}

// countRecords parses the CSV file at path and returns the number of
// records after the header. Quoted cells may span lines.
func countRecords(path string, check func(header []string) error) (int, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, err
	}
	defer f.Close()

	r := csv.NewReader(bufio.NewReader(f))
	r.FieldsPerRecord = -1
	r.ReuseRecord = true
	header, err := r.Read()
	if errors.Is(err, io.EOF) {
		header, err = nil, nil
	}
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrBadExport, err)
	}
	if check != nil {
		if err := check(header); err != nil {
			return 0, err
		}
	}
	if header == nil {
		return 0, nil
	}

	rows := 0
	for {
		_, err := r.Read()
		if errors.Is(err, io.EOF) {
			return rows, nil
		}
		if err != nil {
			return 0, fmt.Errorf("%w: %v", ErrBadExport, err)
		}
		rows++
	}
}

func checkEventsHeader(header []string) error {
	if len(header) != len(EventsCSVHeader) {
		return fmt.Errorf("%w: %d columns", ErrBadExport, len(header))
	}
	for i := range header {
		if header[i] != EventsCSVHeader[i] {
			return fmt.Errorf("%w: column %d is %q", ErrBadExport, i, header[i])
		}
	}
	return nil
}
