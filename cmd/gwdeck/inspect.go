package main

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/davidahmann/gwdeck/core/idf"
	"github.com/davidahmann/gwdeck/core/ipf"
	"github.com/davidahmann/gwdeck/core/pathcodec"
	"github.com/spf13/cobra"
)

type rasterInfo struct {
	NCol   int     `json:"ncol"`
	NRow   int     `json:"nrow"`
	XMin   float64 `json:"xmin"`
	XMax   float64 `json:"xmax"`
	YMin   float64 `json:"ymin"`
	YMax   float64 `json:"ymax"`
	DX     float64 `json:"dx"`
	DY     float64 `json:"dy"`
	DMin   float64 `json:"dmin"`
	DMax   float64 `json:"dmax"`
	NoData float64 `json:"nodata"`
}

type pointsInfo struct {
	Rows int `json:"rows"`
}

type inspectOutput struct {
	OK        bool        `json:"ok"`
	Error     string      `json:"error,omitempty"`
	Path      string      `json:"path,omitempty"`
	Name      string      `json:"name,omitempty"`
	Extension string      `json:"extension,omitempty"`
	Time      string      `json:"time,omitempty"`
	Layer     *int        `json:"layer,omitempty"`
	Raster    *rasterInfo `json:"raster,omitempty"`
	Points    *pointsInfo `json:"points,omitempty"`
}

func (a *app) inspectCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "inspect <file>",
		Short: "Decode a deck file name and print its IDF or IPF header",
		Args:  cobra.ExactArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			output, err := inspectFile(args[0])
			if err != nil {
				a.fail(err, exitInvalidInput)
				return nil
			}
			a.emit(output, exitOK, func(w io.Writer) {
				writeInspectText(w, output)
			})
			return nil
		},
	}
}

func inspectFile(path string) (inspectOutput, error) {
	parts, err := pathcodec.Decompose(path)
	if err != nil {
		return inspectOutput{}, err
	}
	output := inspectOutput{
		OK:        true,
		Path:      path,
		Name:      parts.Name,
		Extension: parts.Extension,
		Layer:     parts.Layer,
	}
	if parts.Time != nil {
		output.Time = parts.Time.UTC().Format(time.RFC3339)
	}
	switch strings.ToLower(parts.Extension) {
	case pathcodec.ExtRaster:
		header, err := idf.ReadHeader(path)
		if err != nil {
			return inspectOutput{}, err
		}
		output.Raster = &rasterInfo{
			NCol: header.NCol, NRow: header.NRow,
			XMin: header.XMin, XMax: header.XMax,
			YMin: header.YMin, YMax: header.YMax,
			DX: header.DX, DY: header.DY,
			DMin: header.DMin, DMax: header.DMax,
			NoData: header.NoData,
		}
	case pathcodec.ExtPoints:
		table, err := ipf.Read(path)
		if err != nil {
			return inspectOutput{}, err
		}
		output.Points = &pointsInfo{Rows: table.Rows()}
	}
	return output, nil
}

func writeInspectText(w io.Writer, output inspectOutput) {
	_, _ = fmt.Fprintf(w, "name: %s\n", output.Name)
	if output.Time != "" {
		_, _ = fmt.Fprintf(w, "time: %s\n", output.Time)
	}
	if output.Layer != nil {
		_, _ = fmt.Fprintf(w, "layer: %d\n", *output.Layer)
	}
	if raster := output.Raster; raster != nil {
		_, _ = fmt.Fprintf(w, "grid: %d cols x %d rows, cell %gx%g\n", raster.NCol, raster.NRow, raster.DX, raster.DY)
		_, _ = fmt.Fprintf(w, "extent: x %g..%g, y %g..%g\n", raster.XMin, raster.XMax, raster.YMin, raster.YMax)
		_, _ = fmt.Fprintf(w, "values: %g..%g, nodata %g\n", raster.DMin, raster.DMax, raster.NoData)
	}
	if output.Points != nil {
		_, _ = fmt.Fprintf(w, "points: %d rows\n", output.Points.Rows)
	}
}
