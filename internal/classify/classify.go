// Package classify matches colour samples against trained litmus datasets.
//
// A dataset is a CSV file of "ph,red,green,blue" rows recorded during
// training. Classification finds the row whose RGB vector forms the
// smallest angle with the measured channel vector; hue is what identifies a
// litmus colour, so magnitude (overall brightness) is deliberately ignored.
package classify

import (
	"encoding/csv"
	"errors"
	"fmt"
	"os"
	"strconv"

	"github.com/chewxy/math32"

	"github.com/sweeney/ph-sensor/internal/sensor"
)

// ErrNoMatch reports a sample outside the trained dataset's range.
var ErrNoMatch = errors.New("classify: no match in dataset")

// Entry is one trained reference row.
type Entry struct {
	PH string
	V  [3]float32 // red, green, blue
}

// Dataset is an immutable set of trained reference entries.
type Dataset struct {
	entries []Entry
}

// LoadDataset reads a "ph,red,green,blue" CSV file.
func LoadDataset(path string) (*Dataset, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open dataset: %w", err)
	}
	defer f.Close()

	rows, err := csv.NewReader(f).ReadAll()
	if err != nil {
		return nil, fmt.Errorf("read dataset %s: %w", path, err)
	}

	var entries []Entry
	for i, row := range rows {
		if len(row) < 4 {
			return nil, fmt.Errorf("dataset %s row %d: expected 4 fields, got %d", path, i+1, len(row))
		}
		e := Entry{PH: row[0]}
		for j := 0; j < 3; j++ {
			v, err := strconv.ParseFloat(row[j+1], 32)
			if err != nil {
				return nil, fmt.Errorf("dataset %s row %d: %w", path, i+1, err)
			}
			e.V[j] = float32(v)
		}
		entries = append(entries, e)
	}
	if len(entries) == 0 {
		return nil, fmt.Errorf("dataset %s: no entries", path)
	}

	return &Dataset{entries: entries}, nil
}

// Len returns the number of trained entries.
func (d *Dataset) Len() int { return len(d.entries) }

// Match returns the entry whose vector forms the smallest angle with v,
// along with that angle in radians.
func (d *Dataset) Match(v [3]float32) (string, float32, error) {
	sLen := vecLen(v)
	if sLen == 0 {
		return "", 0, ErrNoMatch
	}

	best := ""
	minAngle := float32(math32.Pi)
	for _, e := range d.entries {
		eLen := vecLen(e.V)
		if eLen == 0 {
			continue
		}
		cos := dot(e.V, v) / (eLen * sLen)
		// Guard acos against rounding outside [-1, 1].
		if cos > 1 {
			cos = 1
		} else if cos < -1 {
			cos = -1
		}
		angle := math32.Acos(cos)
		if angle < minAngle {
			minAngle = angle
			best = e.PH
		}
	}
	if best == "" {
		return "", 0, ErrNoMatch
	}
	return best, minAngle, nil
}

func dot(a, b [3]float32) float32 {
	return a[0]*b[0] + a[1]*b[1] + a[2]*b[2]
}

func vecLen(v [3]float32) float32 {
	return math32.Sqrt(v[0]*v[0] + v[1]*v[1] + v[2]*v[2])
}

// Classifier matches samples against the dataset selected by scale.
type Classifier struct {
	datasets map[sensor.Scale]*Dataset

	// MaxAngle is the largest acceptable match angle in radians; a best
	// match beyond it classifies as no-match.
	MaxAngle float32
}

// DefaultMaxAngle is the widest angle still considered a litmus colour.
const DefaultMaxAngle = 0.35

// New loads the narrow and wide datasets.
func New(narrowPath, widePath string) (*Classifier, error) {
	narrow, err := LoadDataset(narrowPath)
	if err != nil {
		return nil, fmt.Errorf("narrow scale: %w", err)
	}
	wide, err := LoadDataset(widePath)
	if err != nil {
		return nil, fmt.Errorf("wide scale: %w", err)
	}
	return &Classifier{
		datasets: map[sensor.Scale]*Dataset{
			sensor.ScaleNarrow: narrow,
			sensor.ScaleWide:   wide,
		},
		MaxAngle: DefaultMaxAngle,
	}, nil
}

// Classify maps a colour sample to a pH value using the dataset for scale.
func (c *Classifier) Classify(sample sensor.Sample, scale sensor.Scale) (string, error) {
	d, ok := c.datasets[scale]
	if !ok {
		return "", fmt.Errorf("classify: unknown scale %q", scale)
	}
	if sample.AllZero() {
		return "", fmt.Errorf("classify: empty sample: %w", ErrNoMatch)
	}

	v := [3]float32{
		float32(sample.Hertz(sensor.ChannelRed)),
		float32(sample.Hertz(sensor.ChannelGreen)),
		float32(sample.Hertz(sensor.ChannelBlue)),
	}
	ph, angle, err := d.Match(v)
	if err != nil {
		return "", err
	}
	if angle > c.MaxAngle {
		return "", fmt.Errorf("classify: best match %s at %.3f rad: %w", ph, angle, ErrNoMatch)
	}
	return ph, nil
}
