// Package ipf reads and writes iMOD IPF point files with the columns
// x, y, rate and id_name.
package ipf

import (
	"bufio"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	coreerrors "github.com/davidahmann/gwdeck/core/errors"
	"github.com/davidahmann/gwdeck/core/fsx"
	"github.com/davidahmann/gwdeck/core/model"
)

// Columns is the fixed column order of written point files.
var Columns = []string{"x", "y", "rate", "id_name"}

var ErrMalformed = errors.New("malformed IPF file")

// Write stores the x, y, rate and id_name columns of points at path.
func Write(path string, points *model.Table) error {
	err := fsx.WriteAtomic(path, 0o600, func(w io.Writer) error {
		if _, err := fmt.Fprintf(w, "%d\n%d\n", points.Rows(), len(Columns)); err != nil {
			return err
		}
		for _, column := range Columns {
			if _, err := fmt.Fprintln(w, column); err != nil {
				return err
			}
		}
		if _, err := io.WriteString(w, "0,TXT\n"); err != nil {
			return err
		}
		rows := csv.NewWriter(w)
		for i := 0; i < points.Rows(); i++ {
			record := []string{
				formatNumber(points.X[i]),
				formatNumber(points.Y[i]),
				formatNumber(points.Rate[i]),
				points.IDName[i],
			}
			if err := rows.Write(record); err != nil {
				return err
			}
		}
		rows.Flush()
		return rows.Error()
	})
	if err != nil {
		return coreerrors.Wrap(fmt.Errorf("write ipf %s: %w", path, err), coreerrors.CategoryIOFailure, "ipf_write_failed", "check that the deck directory is writable", true)
	}
	return nil
}

// Read decodes the point file at path. Extra columns are ignored; x, y, rate
// and id_name must be present.
func Read(path string) (*model.Table, error) {
	file, err := os.Open(path) // #nosec G304 -- path is chosen by the caller.
	if err != nil {
		return nil, coreerrors.Wrap(fmt.Errorf("open ipf: %w", err), coreerrors.CategoryIOFailure, "ipf_read_failed", "", false)
	}
	defer func() {
		_ = file.Close()
	}()
	points, err := decode(bufio.NewReader(file))
	if err != nil {
		return nil, coreerrors.Invalid(fmt.Errorf("%s: %w", path, err), "ipf_malformed", "")
	}
	return points, nil
}

func decode(r *bufio.Reader) (*model.Table, error) {
	nrow, err := readCount(r, "row count")
	if err != nil {
		return nil, err
	}
	ncol, err := readCount(r, "column count")
	if err != nil {
		return nil, err
	}
	index := make(map[string]int, ncol)
	for i := 0; i < ncol; i++ {
		name, err := readLine(r)
		if err != nil {
			return nil, fmt.Errorf("%w: column %d: %v", ErrMalformed, i+1, err)
		}
		// Column lines may carry a nodata value after the name.
		name = strings.ToLower(strings.TrimSpace(strings.SplitN(name, ",", 2)[0]))
		index[name] = i
	}
	for _, column := range Columns {
		if _, ok := index[column]; !ok {
			return nil, fmt.Errorf("%w: missing column %q", ErrMalformed, column)
		}
	}
	if _, err := readLine(r); err != nil {
		return nil, fmt.Errorf("%w: missing associated file line", ErrMalformed)
	}

	rows := csv.NewReader(r)
	rows.FieldsPerRecord = ncol
	rows.TrimLeadingSpace = true
	points := &model.Table{
		X:      make([]float64, 0, nrow),
		Y:      make([]float64, 0, nrow),
		Rate:   make([]float64, 0, nrow),
		IDName: make([]string, 0, nrow),
	}
	for i := 0; i < nrow; i++ {
		record, err := rows.Read()
		if err != nil {
			return nil, fmt.Errorf("%w: row %d: %v", ErrMalformed, i+1, err)
		}
		values := make([]float64, 3)
		for j, column := range Columns[:3] {
			value, err := strconv.ParseFloat(strings.TrimSpace(record[index[column]]), 64)
			if err != nil {
				return nil, fmt.Errorf("%w: row %d %s: %v", ErrMalformed, i+1, column, err)
			}
			values[j] = value
		}
		points.X = append(points.X, values[0])
		points.Y = append(points.Y, values[1])
		points.Rate = append(points.Rate, values[2])
		points.IDName = append(points.IDName, record[index["id_name"]])
	}
	return points, nil
}

func readCount(r *bufio.Reader, what string) (int, error) {
	line, err := readLine(r)
	if err != nil {
		return 0, fmt.Errorf("%w: %s: %v", ErrMalformed, what, err)
	}
	count, err := strconv.Atoi(strings.TrimSpace(line))
	if err != nil || count < 0 {
		return 0, fmt.Errorf("%w: %s %q", ErrMalformed, what, line)
	}
	return count, nil
}

func readLine(r *bufio.Reader) (string, error) {
	line, err := r.ReadString('\n')
	if err != nil && (err != io.EOF || line == "") {
		return "", err
	}
	return strings.TrimRight(line, "\r\n"), nil
}

func formatNumber(value float64) string {
	return strconv.FormatFloat(value, 'g', -1, 64)
}
