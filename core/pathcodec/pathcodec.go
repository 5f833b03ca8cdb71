// Package pathcodec maps between a structured file identity and the iMOD
// file-name convention name[_YYYYMMDDHHMMSS][_l<layer>]<extension>.
package pathcodec

import (
	"errors"
	"fmt"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/davidahmann/gwdeck/core/calendar"
	coreerrors "github.com/davidahmann/gwdeck/core/errors"
)

const (
	ExtRaster = ".idf"
	ExtPoints = ".ipf"
)

var ErrEmptyName = errors.New("file name has an empty name segment")

var layerToken = regexp.MustCompile(`(?i)^l(\d+)$`)

var currentDir = "." + string(filepath.Separator)

// Parts is the structured identity of one deck file. Time and Layer are nil
// when the file name carries no such token.
type Parts struct {
	Extension string
	Directory string
	Name      string
	Time      *time.Time
	Layer     *int
}

// WithTime returns a copy of p carrying t.
func (p Parts) WithTime(t time.Time) Parts {
	p.Time = &t
	return p
}

// WithLayer returns a copy of p carrying layer.
func (p Parts) WithLayer(layer int) Parts {
	p.Layer = &layer
	return p
}

// Decompose parses path following the naming convention. The time token is
// the first segment after the name that parses as YYYYMMDDHHMMSS or
// YYYYMMDD; the layer token is only ever the final segment.
func Decompose(path string) (Parts, error) {
	extension := filepath.Ext(path)
	base := filepath.Base(path)
	stem := strings.TrimSuffix(base, extension)
	directory := filepath.Dir(path)
	if directory == "." && !strings.HasPrefix(path, currentDir) {
		directory = ""
	}

	segments := strings.Split(stem, "_")
	if segments[0] == "" {
		return Parts{}, coreerrors.Invalid(
			fmt.Errorf("%w: %q", ErrEmptyName, path),
			"empty_name",
			"file names must start with a package name",
		)
	}
	parts := Parts{
		Extension: extension,
		Directory: directory,
		Name:      segments[0],
	}

	for _, segment := range segments[1:] {
		if parsed, ok := calendar.ParseCompact(segment); ok {
			parts.Time = &parsed
			break
		}
	}

	if len(segments) > 1 {
		if match := layerToken.FindStringSubmatch(segments[len(segments)-1]); match != nil {
			layer, err := strconv.Atoi(match[1])
			if err == nil {
				parts.Layer = &layer
			}
		}
	}
	return parts, nil
}

// Compose builds the file name for parts and joins it to parts.Directory when
// one is set. It never touches the filesystem.
func Compose(parts Parts) string {
	var name strings.Builder
	name.WriteString(parts.Name)
	if parts.Time != nil {
		name.WriteByte('_')
		name.WriteString(parts.Time.UTC().Format(calendar.Layout))
	}
	if parts.Layer != nil {
		name.WriteString("_l")
		name.WriteString(strconv.Itoa(*parts.Layer))
	}
	name.WriteString(parts.Extension)
	switch parts.Directory {
	case "":
		return name.String()
	case ".":
		// filepath.Join would drop the directory and Decompose could not
		// tell the two apart.
		return currentDir + name.String()
	}
	return filepath.Join(parts.Directory, name.String())
}

// ComposeIn is Compose with an explicit calendar mode applied to the time token.
func ComposeIn(mode calendar.Mode, parts Parts) string {
	if parts.Time != nil {
		normalized := calendar.Normalize(mode, *parts.Time)
		parts.Time = &normalized
	}
	return Compose(parts)
}
