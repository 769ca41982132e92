package notes

import (
	"context"
	"database/sql"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"datavault/codec"
)

type storedRow struct {
	id      int64
	title   string
	content sql.NullString
}

// UpgradeLegacy rewrites every field still held in legacy plain text into
// the encrypted form and returns the number of rows changed. Encrypted
// fields and updated_at are left as they are. A row edited concurrently is
// skipped rather than overwritten.
func (r *Repository) UpgradeLegacy(ctx context.Context) (int, error) {
	key, err := r.key()
	if err != nil {
		return 0, err
	}

	rows, err := r.db.QueryContext(ctx, "SELECT id, title, content FROM notes ORDER BY id")
	if err != nil {
		return 0, fmt.Errorf("query notes: %w", err)
	}
	var pending []storedRow
	for rows.Next() {
		var row storedRow
		if err := rows.Scan(&row.id, &row.title, &row.content); err != nil {
			rows.Close()
			return 0, fmt.Errorf("scan note: %w", err)
		}
		if codec.Classify(row.title) == codec.LegacyPlaintext ||
			!row.content.Valid || codec.Classify(row.content.String) == codec.LegacyPlaintext {
			pending = append(pending, row)
		}
	}
	err = rows.Err()
	rows.Close()
	if err != nil {
		return 0, fmt.Errorf("query notes: %w", err)
	}

	upgraded := 0
	for _, row := range pending {
		title := row.title
		if codec.Classify(title) == codec.LegacyPlaintext {
			if title, err = r.codec.Encode(title, key); err != nil {
				return upgraded, fmt.Errorf("encrypt title of note %d: %w", row.id, err)
			}
		}
		content := row.content.String
		if !row.content.Valid || codec.Classify(content) == codec.LegacyPlaintext {
			if content, err = r.codec.Encode(content, key); err != nil {
				return upgraded, fmt.Errorf("encrypt content of note %d: %w", row.id, err)
			}
		}

		result, err := r.db.ExecContext(ctx,
			"UPDATE notes SET title = ?, content = ? WHERE id = ? AND title = ? AND content IS ?",
			title, content, row.id, row.title, row.content)
		if err != nil {
			return upgraded, fmt.Errorf("upgrade note %d: %w", row.id, err)
		}
		if n, _ := result.RowsAffected(); n > 0 {
			upgraded++
		}
	}

	if upgraded > 0 {
		r.logger.Info("upgraded legacy notes", "count", upgraded)
	}
	return upgraded, nil
}

var exportHeader = []string{"id", "title", "content", "created_at", "updated_at"}

// Export writes every note, decoded, as CSV with a header row.
func (r *Repository) Export(ctx context.Context, w io.Writer) error {
	notes, err := r.List(ctx)
	if err != nil {
		return err
	}

	writer := csv.NewWriter(w)
	if err := writer.Write(exportHeader); err != nil {
		return err
	}
	for _, n := range notes {
		record := []string{
			strconv.FormatInt(n.ID, 10),
			n.Title,
			n.Content,
			strconv.FormatInt(n.CreatedAt, 10),
			strconv.FormatInt(n.UpdatedAt, 10),
		}
		if err := writer.Write(record); err != nil {
			return err
		}
	}
	writer.Flush()
	return writer.Error()
}

// ErrInvalidCSV is returned by Import when the input has no usable header.
var ErrInvalidCSV = errors.New("empty or invalid CSV")

// Import creates one note per CSV row and returns how many were created.
// Columns are located by the header names "title" and "content"; without
// those names the first two columns are used. Malformed rows and rows with
// an empty title are skipped; any other read error aborts the import.
func (r *Repository) Import(ctx context.Context, in io.Reader) (int, error) {
	reader := csv.NewReader(in)
	reader.FieldsPerRecord = -1

	header, err := reader.Read()
	if err != nil {
		return 0, ErrInvalidCSV
	}
	titleCol, contentCol := 0, 1
	for i, name := range header {
		switch strings.ToLower(strings.TrimSpace(name)) {
		case "title":
			titleCol = i
		case "content":
			contentCol = i
		}
	}

	created := 0
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			var parseErr *csv.ParseError
			if errors.As(err, &parseErr) {
				continue
			}
			return created, fmt.Errorf("read csv: %w", err)
		}
		if titleCol >= len(record) || strings.TrimSpace(record[titleCol]) == "" {
			continue
		}
		content := ""
		if contentCol < len(record) {
			content = record[contentCol]
		}

		if _, err := r.Create(ctx, record[titleCol], content); err != nil {
			return created, err
		}
		created++
	}
	return created, nil
}
