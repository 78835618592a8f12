package imgutil

import (
	"fmt"
	"image"
	"io"
	"strconv"
	"strings"

	"github.com/go-gota/gota/dataframe"
	"github.com/go-gota/gota/series"
)

// EncodeRLE run-length encodes the non-zero pixels of mask as
// "start length start length ...". Pixels are numbered from 1 in
// column-major order (down each column, then across).
func EncodeRLE(mask *image.Gray) string {
	b := mask.Bounds()
	var runs []string
	start, length := 0, 0
	pos := 0
	for x := b.Min.X; x < b.Max.X; x++ {
		for y := b.Min.Y; y < b.Max.Y; y++ {
			pos++
			if mask.GrayAt(x, y).Y != 0 {
				if length == 0 {
					start = pos
				}
				length++
				continue
			}
			if length > 0 {
				runs = append(runs, strconv.Itoa(start), strconv.Itoa(length))
				length = 0
			}
		}
	}
	if length > 0 {
		runs = append(runs, strconv.Itoa(start), strconv.Itoa(length))
	}

	return strings.Join(runs, " ")
}

// DecodeRLE converts an EncodeRLE string back to a width x height mask with
// 255 for encoded pixels.
func DecodeRLE(rle string, width, height int) (*image.Gray, error) {
	fields := strings.Fields(rle)
	if len(fields)%2 != 0 {
		return nil, fmt.Errorf("imgutil: rle has odd number of values (%d)", len(fields))
	}

	mask := image.NewGray(image.Rect(0, 0, width, height))
	total := width * height
	for i := 0; i < len(fields); i += 2 {
		start, err := strconv.Atoi(fields[i])
		if err != nil {
			return nil, fmt.Errorf("imgutil: rle start %q: %w", fields[i], err)
		}
		length, err := strconv.Atoi(fields[i+1])
		if err != nil {
			return nil, fmt.Errorf("imgutil: rle length %q: %w", fields[i+1], err)
		}
		if start < 1 || length < 0 || start-1+length > total {
			return nil, fmt.Errorf("imgutil: rle run %d+%d outside %dx%d mask", start, length, width, height)
		}

		for p := start - 1; p < start-1+length; p++ {
			mask.Pix[mask.PixOffset(p/height, p%height)] = 255
		}
	}

	return mask, nil
}

// WriteRLE writes id => rle as a CSV file with "id,encoding" columns.
func WriteRLE(w io.Writer, ids, encodings []string) error {
	if len(ids) != len(encodings) {
		return fmt.Errorf("imgutil: %d ids for %d encodings", len(ids), len(encodings))
	}
	df := dataframe.New(
		series.New(ids, series.String, "id"),
		series.New(encodings, series.String, "encoding"),
	)
	return df.WriteCSV(w)
}

// ReadRLE reads a CSV file written by WriteRLE and returns id => rle.
func ReadRLE(r io.Reader) (map[string]string, error) {
	df := dataframe.ReadCSV(r, dataframe.HasHeader(true), dataframe.DetectTypes(false))
	if df.Err != nil {
		return nil, df.Err
	}

	ids := df.Col("id")
	encodings := df.Col("encoding")
	if ids.Err != nil {
		return nil, ids.Err
	}
	if encodings.Err != nil {
		return nil, encodings.Err
	}

	values := encodings.Records()
	rles := make(map[string]string, ids.Len())
	for i, id := range ids.Records() {
		rles[id] = values[i]
	}
	return rles, nil
}
