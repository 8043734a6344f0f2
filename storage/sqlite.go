package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"github.com/Uranury/thermohygrometer/sensors"
)

// TimestampLayout is how cycle timestamps are written, in local time.
const TimestampLayout = "2006/01/02 15:04:05"

const table = "sensor_data"

var (
	ErrLabel = errors.New("storage: label is not a valid column prefix")
	ErrWrite = errors.New("storage: write failed")
)

var labelPattern = regexp.MustCompile(`^[A-Za-z][A-Za-z0-9_]*$`)

// SQLite keeps an append-only sensor_data table with a <label>_temp and
// <label>_humid column pair per configured sensor.
type SQLite struct {
	db     *sql.DB
	labels []string
	insert *sql.Stmt
}

// Measurement is a stored value pair. A nil *Measurement means the sensor had
// no valid reading in that cycle.
type Measurement struct {
	Temperature float64 `json:"temperature"`
	Humidity    float64 `json:"humidity"`
}

type Row struct {
	ID        int64                   `json:"id"`
	Timestamp string                  `json:"timestamp"`
	Values    map[string]*Measurement `json:"values"`
}

// OpenSQLite opens or creates the database at path and makes sure a column
// pair exists for every label.
func OpenSQLite(ctx context.Context, path string, labels []string) (*SQLite, error) {
	for _, l := range labels {
		if !labelPattern.MatchString(l) {
			return nil, fmt.Errorf("%w: %q", ErrLabel, l)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	// One writer; the file lives on an SD card.
	db.SetMaxOpenConns(1)

	s := &SQLite{db: db, labels: labels}
	if err := s.migrate(ctx); err != nil {
		db.Close()
		return nil, err
	}

	cols := []string{"timestamp"}
	for _, l := range labels {
		cols = append(cols, column(l, "temp"), column(l, "humid"))
	}
	query := fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)",
		table, strings.Join(cols, ", "), strings.TrimSuffix(strings.Repeat("?, ", len(cols)), ", "))
	s.insert, err = db.PrepareContext(ctx, query)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("prepare insert: %w", err)
	}
	return s, nil
}

func column(label, field string) string {
	return strings.ToLower(label) + "_" + field
}

func (s *SQLite) migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `CREATE TABLE IF NOT EXISTS `+table+` (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		timestamp TEXT
	)`)
	if err != nil {
		return fmt.Errorf("create table: %w", err)
	}

	rows, err := s.db.QueryContext(ctx, `SELECT name FROM pragma_table_info('`+table+`')`)
	if err != nil {
		return fmt.Errorf("table info: %w", err)
	}
	existing := map[string]bool{}
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			rows.Close()
			return fmt.Errorf("table info: %w", err)
		}
		existing[name] = true
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return fmt.Errorf("table info: %w", err)
	}

	for _, l := range s.labels {
		for _, c := range []string{column(l, "temp"), column(l, "humid")} {
			if existing[c] {
				continue
			}
			if _, err := s.db.ExecContext(ctx, `ALTER TABLE `+table+` ADD COLUMN `+c+` REAL`); err != nil {
				return fmt.Errorf("add column %s: %w", c, err)
			}
		}
	}
	return nil
}

// Append writes one row for the cycle stamped ts.
func (s *SQLite) Append(ctx context.Context, ts time.Time, readings []sensors.Reading) error {
	byLabel := make(map[string]sensors.Reading, len(readings))
	for _, r := range readings {
		byLabel[r.Label] = r
	}

	args := []any{ts.Local().Format(TimestampLayout)}
	for _, l := range s.labels {
		r, ok := byLabel[l]
		if !ok || !r.Valid {
			args = append(args, nil, nil)
			continue
		}
		temp, _ := r.Temperature()
		hum, _ := r.Humidity()
		args = append(args, temp, hum)
	}

	if _, err := s.insert.ExecContext(ctx, args...); err != nil {
		return fmt.Errorf("%w: sqlite: %v", ErrWrite, err)
	}
	return nil
}

// Latest returns up to n rows, newest first.
func (s *SQLite) Latest(ctx context.Context, n int) ([]Row, error) {
	cols := []string{"id", "timestamp"}
	for _, l := range s.labels {
		cols = append(cols, column(l, "temp"), column(l, "humid"))
	}
	rows, err := s.db.QueryContext(ctx,
		fmt.Sprintf("SELECT %s FROM %s ORDER BY id DESC LIMIT ?", strings.Join(cols, ", "), table), n)
	if err != nil {
		return nil, fmt.Errorf("query latest: %w", err)
	}
	defer rows.Close()

	var out []Row
	for rows.Next() {
		var (
			row  Row
			ts   sql.NullString
			vals = make([]sql.NullFloat64, 2*len(s.labels))
			dest = []any{&row.ID, &ts}
		)
		for i := range vals {
			dest = append(dest, &vals[i])
		}
		if err := rows.Scan(dest...); err != nil {
			return nil, fmt.Errorf("scan: %w", err)
		}
		row.Timestamp = ts.String
		row.Values = make(map[string]*Measurement, len(s.labels))
		for i, l := range s.labels {
			t, h := vals[2*i], vals[2*i+1]
			if t.Valid && h.Valid {
				row.Values[l] = &Measurement{Temperature: t.Float64, Humidity: h.Float64}
			} else {
				row.Values[l] = nil
			}
		}
		out = append(out, row)
	}
	return out, rows.Err()
}

func (s *SQLite) Close() error {
	if s.insert != nil {
		s.insert.Close()
	}
	return s.db.Close()
}
