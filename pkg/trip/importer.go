package trip

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
)

// Column headers of the trip log.
const (
	HeaderDateTime       = "Date and Time (YYYY/MM/DD HH:MM:SS)"
	HeaderOdometer       = "Odometer (Km)"
	HeaderDistance       = "Trip Distance (Km)"
	HeaderTemperature    = "Reported Vehicle Temperature At Departure (C)"
	HeaderEngineTime     = "Reported Engine Running Time (Minutes)"
	HeaderFuelEfficiency = "Reported Fuel Efficiency of Trip (L/100Km)"

	// TimeLayout is the layout of the date column.
	TimeLayout = "2006-01-02 15:04:05"
)

// ErrMissingHeader is returned when the log lacks a required column.
var ErrMissingHeader = errors.New("trip: missing header")

type headerMap struct {
	dateTime, odometer, distance, temperature, engineTime, fuelEfficiency int
}

func mapHeaders(headers []string) (headerMap, error) {
	index := make(map[string]int, len(headers))
	for i, h := range headers {
		index[strings.TrimSpace(strings.TrimPrefix(h, "\ufeff"))] = i
	}
	find := func(name string) (int, error) {
		i, ok := index[name]
		if !ok {
			return 0, fmt.Errorf("%w: %q", ErrMissingHeader, name)
		}
		return i, nil
	}

	var m headerMap
	var err error
	for _, col := range []struct {
		dst  *int
		name string
	}{
		{&m.dateTime, HeaderDateTime},
		{&m.odometer, HeaderOdometer},
		{&m.distance, HeaderDistance},
		{&m.temperature, HeaderTemperature},
		{&m.engineTime, HeaderEngineTime},
		{&m.fuelEfficiency, HeaderFuelEfficiency},
	} {
		if *col.dst, err = find(col.name); err != nil {
			return headerMap{}, err
		}
	}
	return m, nil
}

// Parse reads a trip log. Rows with missing or malformed values are skipped.
func Parse(r io.Reader) ([]Trip, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1

	headers, err := cr.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("%w: empty file", ErrMissingHeader)
		}
		return nil, fmt.Errorf("read header: %w", err)
	}
	m, err := mapHeaders(headers)
	if err != nil {
		return nil, err
	}

	var trips []Trip
	for {
		row, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read row: %w", err)
		}
		t, ok := parseRow(row, m)
		if !ok {
			continue
		}
		trips = append(trips, t)
	}
	return trips, nil
}

func parseRow(row []string, m headerMap) (Trip, bool) {
	field := func(i int) (string, bool) {
		if i >= len(row) {
			return "", false
		}
		s := strings.TrimSpace(row[i])
		return s, s != ""
	}
	number := func(i int) (float64, bool) {
		s, ok := field(i)
		if !ok {
			return 0, false
		}
		v, err := strconv.ParseFloat(s, 64)
		return v, err == nil
	}

	var t Trip
	s, ok := field(m.dateTime)
	if !ok {
		return Trip{}, false
	}
	when, err := time.Parse(TimeLayout, s)
	if err != nil {
		return Trip{}, false
	}
	t.Time = when

	for _, col := range []struct {
		dst *float64
		idx int
	}{
		{&t.OdometerKm, m.odometer},
		{&t.DistanceKm, m.distance},
		{&t.TemperatureC, m.temperature},
		{&t.EngineMinutes, m.engineTime},
		{&t.FuelEfficiencyLPer100Km, m.fuelEfficiency},
	} {
		if *col.dst, ok = number(col.idx); !ok {
			return Trip{}, false
		}
	}
	if t.FuelEfficiencyLPer100Km <= 0 {
		return Trip{}, false
	}
	return t, true
}

type cached struct {
	modTime time.Time
	trips   []Trip
}

// Importer loads trip logs, re-reading a file only when its modification time
// changes.
type Importer struct {
	mu    sync.Mutex
	cache *lru.Cache[string, cached]
	reads int
}

// NewImporter creates an importer remembering up to size files.
func NewImporter(size int) (*Importer, error) {
	if size <= 0 {
		size = 1
	}
	c, err := lru.New[string, cached](size)
	if err != nil {
		return nil, err
	}
	return &Importer{cache: c}, nil
}

// Load returns the trips of the log at path. The returned slice is shared
// with the cache and must not be modified.
func (im *Importer) Load(path string) ([]Trip, error) {
	fi, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("stat trip log: %w", err)
	}
	if fi.IsDir() {
		return nil, fmt.Errorf("trip log %s is a directory", path)
	}

	im.mu.Lock()
	defer im.mu.Unlock()

	if c, ok := im.cache.Get(path); ok && c.modTime.Equal(fi.ModTime()) {
		return c.trips, nil
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open trip log: %w", err)
	}
	defer f.Close()

	trips, err := Parse(f)
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	im.reads++
	im.cache.Add(path, cached{modTime: fi.ModTime(), trips: trips})
	return trips, nil
}

// Reads reports how many times a file was actually parsed.
func (im *Importer) Reads() int {
	im.mu.Lock()
	defer im.mu.Unlock()
	return im.reads
}
