// Package idf reads and writes iMOD IDF rasters: a little-endian header
// followed by row-major float32 cell values, top row first.
package idf

import (
	"bufio"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
	"os"

	coreerrors "github.com/davidahmann/gwdeck/core/errors"
	"github.com/davidahmann/gwdeck/core/fsx"
	"github.com/davidahmann/gwdeck/core/model"
)

const (
	recordMarker = 1271
	// NoData is written for missing cells.
	NoData = -9999.0
)

var (
	ErrBadMarker      = errors.New("not an IDF file")
	ErrNonEquidistant = errors.New("non-equidistant IDF files are not supported")
	ErrShape          = errors.New("raster values do not match its shape")
)

// Raster is one IDF grid. Values are row-major from the top row down and use
// NaN for missing cells.
type Raster struct {
	NCol   int
	NRow   int
	XMin   float64
	XMax   float64
	YMin   float64
	YMax   float64
	DX     float64
	DY     float64
	NoData float64
	Values []float64
}

// Header is the raster metadata without its values.
type Header struct {
	NCol   int
	NRow   int
	XMin   float64
	XMax   float64
	YMin   float64
	YMax   float64
	DMin   float64
	DMax   float64
	NoData float64
	DX     float64
	DY     float64
}

type diskHeader struct {
	Marker int32
	NCol   int32
	NRow   int32
	XMin   float32
	XMax   float32
	YMin   float32
	YMax   float32
	DMin   float32
	DMax   float32
	NoData float32
	IEQ    byte
	ITB    byte
	_      [2]byte
	DX     float32
	DY     float32
}

// FromGrid builds a raster from one y by x plane of an array. Planes stored
// with ascending y are flipped so the first row is the northernmost.
func FromGrid(ref model.Reference, nrow, ncol int, plane []float64) Raster {
	values := make([]float64, len(plane))
	if ref.DY > 0 {
		for row := 0; row < nrow; row++ {
			copy(values[row*ncol:(row+1)*ncol], plane[(nrow-1-row)*ncol:(nrow-row)*ncol])
		}
	} else {
		copy(values, plane)
	}
	return Raster{
		NCol:   ncol,
		NRow:   nrow,
		XMin:   ref.XMin,
		XMax:   ref.XMax,
		YMin:   ref.YMin,
		YMax:   ref.YMax,
		DX:     math.Abs(ref.DX),
		DY:     math.Abs(ref.DY),
		NoData: NoData,
		Values: values,
	}
}

// Write stores r at path atomically.
func Write(path string, r Raster) error {
	if len(r.Values) != r.NRow*r.NCol {
		return coreerrors.Wrap(
			fmt.Errorf("%w: %d values for %dx%d", ErrShape, len(r.Values), r.NRow, r.NCol),
			coreerrors.CategoryInternalFailure, "idf_shape", "", false,
		)
	}
	dmin, dmax := dataRange(r.Values)
	header := diskHeader{
		Marker: recordMarker,
		NCol:   int32(r.NCol),
		NRow:   int32(r.NRow),
		XMin:   float32(r.XMin),
		XMax:   float32(r.XMax),
		YMin:   float32(r.YMin),
		YMax:   float32(r.YMax),
		DMin:   float32(dmin),
		DMax:   float32(dmax),
		NoData: float32(r.NoData),
		DX:     float32(r.DX),
		DY:     float32(r.DY),
	}
	cells := make([]float32, len(r.Values))
	for i, value := range r.Values {
		if math.IsNaN(value) {
			cells[i] = float32(r.NoData)
			continue
		}
		cells[i] = float32(value)
	}

	err := fsx.WriteAtomic(path, 0o600, func(w io.Writer) error {
		if err := binary.Write(w, binary.LittleEndian, header); err != nil {
			return err
		}
		return binary.Write(w, binary.LittleEndian, cells)
	})
	if err != nil {
		return coreerrors.Wrap(fmt.Errorf("write idf %s: %w", path, err), coreerrors.CategoryIOFailure, "idf_write_failed", "check that the deck directory is writable", true)
	}
	return nil
}

// ReadHeader decodes only the header of the IDF at path.
func ReadHeader(path string) (Header, error) {
	file, err := os.Open(path) // #nosec G304 -- path is chosen by the caller.
	if err != nil {
		return Header{}, coreerrors.Wrap(fmt.Errorf("open idf: %w", err), coreerrors.CategoryIOFailure, "idf_read_failed", "", false)
	}
	defer func() {
		_ = file.Close()
	}()
	header, err := readHeader(bufio.NewReader(file), path)
	if err != nil {
		return Header{}, err
	}
	return header.public(), nil
}

// Read decodes the IDF at path.
func Read(path string) (Raster, error) {
	file, err := os.Open(path) // #nosec G304 -- path is chosen by the caller.
	if err != nil {
		return Raster{}, coreerrors.Wrap(fmt.Errorf("open idf: %w", err), coreerrors.CategoryIOFailure, "idf_read_failed", "", false)
	}
	defer func() {
		_ = file.Close()
	}()
	reader := bufio.NewReader(file)
	header, err := readHeader(reader, path)
	if err != nil {
		return Raster{}, err
	}

	cells := make([]float32, int(header.NRow)*int(header.NCol))
	if err := binary.Read(reader, binary.LittleEndian, cells); err != nil {
		return Raster{}, coreerrors.Wrap(fmt.Errorf("read idf values %s: %w", path, err), coreerrors.CategoryIOFailure, "idf_read_failed", "", false)
	}
	values := make([]float64, len(cells))
	for i, cell := range cells {
		if cell == header.NoData {
			values[i] = math.NaN()
			continue
		}
		values[i] = float64(cell)
	}
	return Raster{
		NCol:   int(header.NCol),
		NRow:   int(header.NRow),
		XMin:   float64(header.XMin),
		XMax:   float64(header.XMax),
		YMin:   float64(header.YMin),
		YMax:   float64(header.YMax),
		DX:     float64(header.DX),
		DY:     float64(header.DY),
		NoData: float64(header.NoData),
		Values: values,
	}, nil
}

func readHeader(r io.Reader, path string) (diskHeader, error) {
	var header diskHeader
	if err := binary.Read(r, binary.LittleEndian, &header); err != nil {
		return diskHeader{}, coreerrors.Wrap(fmt.Errorf("read idf header %s: %w", path, err), coreerrors.CategoryIOFailure, "idf_read_failed", "", false)
	}
	if header.Marker != recordMarker {
		return diskHeader{}, coreerrors.Invalid(fmt.Errorf("%w: %s has marker %d", ErrBadMarker, path, header.Marker), "idf_bad_marker", "")
	}
	if header.IEQ != 0 {
		return diskHeader{}, coreerrors.Invalid(fmt.Errorf("%w: %s", ErrNonEquidistant, path), "idf_non_equidistant", "")
	}
	return header, nil
}

func (h diskHeader) public() Header {
	return Header{
		NCol:   int(h.NCol),
		NRow:   int(h.NRow),
		XMin:   float64(h.XMin),
		XMax:   float64(h.XMax),
		YMin:   float64(h.YMin),
		YMax:   float64(h.YMax),
		DMin:   float64(h.DMin),
		DMax:   float64(h.DMax),
		NoData: float64(h.NoData),
		DX:     float64(h.DX),
		DY:     float64(h.DY),
	}
}

func dataRange(values []float64) (float64, float64) {
	lo, hi := math.Inf(1), math.Inf(-1)
	for _, value := range values {
		if math.IsNaN(value) {
			continue
		}
		lo = math.Min(lo, value)
		hi = math.Max(hi, value)
	}
	if math.IsInf(lo, 1) {
		return NoData, NoData
	}
	return lo, hi
}
