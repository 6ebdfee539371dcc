// Package geo resolves addresses to location and network-operator data from
// sorted CSV range files, using a byte-offset binary search.
//
// Two data source layouts are supported:
//
//	geolite  city-ipv{4,6}.csv   start,end,location_id
//	         locations.csv       location_id,country_code,country_name,region,city
//	         asn-ipv{4,6}.csv    start,end,asn,org
//
//	dbip     dbip-city-ipv{4,6}.csv  start,end,continent,country_code,region,city
//	         dbip-asn-ipv{4,6}.csv   start,end,asn,org
//	         countries.csv           country_code,country_name
//
// Range files are sorted ascending by start and side tables by key. Range
// bounds are IP literals, or decimal integers in IPv4 files.
package geo

import (
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"net/netip"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
)

// ErrUnavailable is wrapped by errors for data files that cannot be opened.
var ErrUnavailable = errors.New("geo data unavailable")

// Variant names a data source layout.
type Variant string

// Data source layouts.
const (
	GeoLite Variant = "geolite"
	DBIP    Variant = "dbip"
)

// City is the location of an address.
type City struct {
	CountryCode string
	CountryName string
	Region      string
	City        string
}

// ASN is the network operator of an address.
type ASN struct {
	Number uint32
	Org    string
}

// DB looks addresses up in one variant's files. Files are opened on first
// use and kept open until Close.
type DB struct {
	variant Variant
	dir     string

	mu    sync.Mutex
	files map[string]*os.File
}

// Open returns a DB over the files of variant in dir.
func Open(variant Variant, dir string) (*DB, error) {
	switch variant {
	case GeoLite, DBIP:
	default:
		return nil, fmt.Errorf("unknown geo variant %q", variant)
	}
	if st, err := os.Stat(dir); err != nil || !st.IsDir() {
		return nil, fmt.Errorf("%w: %s is not a directory", ErrUnavailable, dir)
	}
	return &DB{variant: variant, dir: dir, files: make(map[string]*os.File)}, nil
}

// Variant returns the layout in use.
func (db *DB) Variant() Variant { return db.variant }

// Close closes every open file.
func (db *DB) Close() error {
	db.mu.Lock()
	defer db.mu.Unlock()
	var errs []error
	for name, f := range db.files {
		errs = append(errs, f.Close())
		delete(db.files, name)
	}
	return errors.Join(errs...)
}

func (db *DB) search(name string, cmp func(line []byte) (int, bool)) ([]byte, bool, error) {
	f, err := db.open(name)
	if err != nil {
		return nil, false, err
	}
	st, err := f.Stat()
	if err != nil {
		return nil, false, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	line, ok, err := Search(f, st.Size(), cmp)
	if err != nil {
		// A read failure mid-search is treated like a corrupt file.
		return nil, false, nil
	}
	return line, ok, nil
}

func (db *DB) open(name string) (*os.File, error) {
	db.mu.Lock()
	defer db.mu.Unlock()
	if f, ok := db.files[name]; ok {
		return f, nil
	}
	f, err := os.Open(filepath.Join(db.dir, name))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	db.files[name] = f
	return f, nil
}

func family(ip netip.Addr) string {
	if ip.Unmap().Is4() {
		return "ipv4"
	}
	return "ipv6"
}

// City returns the location of ip.
func (db *DB) City(ip netip.Addr) (City, bool, error) {
	ip = ip.Unmap()
	switch db.variant {
	case DBIP:
		f, ok, err := db.rangeRow("dbip-city-"+family(ip)+".csv", ip, 6)
		if err != nil || !ok {
			return City{}, false, err
		}
		c := City{CountryCode: f[3], Region: f[4], City: f[5]}
		if name, ok, err := db.keyRow("countries.csv", c.CountryCode, false); err == nil && ok && len(name) >= 2 {
			c.CountryName = name[1]
		}
		return c, true, nil

	default:
		f, ok, err := db.rangeRow("city-"+family(ip)+".csv", ip, 3)
		if err != nil || !ok {
			return City{}, false, err
		}
		loc, ok, err := db.keyRow("locations.csv", f[2], true)
		if err != nil || !ok || len(loc) < 5 {
			return City{}, false, err
		}
		return City{CountryCode: loc[1], CountryName: loc[2], Region: loc[3], City: loc[4]}, true, nil
	}
}

// ASN returns the network operator of ip.
func (db *DB) ASN(ip netip.Addr) (ASN, bool, error) {
	ip = ip.Unmap()
	name := "asn-" + family(ip) + ".csv"
	if db.variant == DBIP {
		name = "dbip-" + name
	}
	f, ok, err := db.rangeRow(name, ip, 4)
	if err != nil || !ok {
		return ASN{}, false, err
	}
	n, err := strconv.ParseUint(strings.TrimPrefix(strings.ToUpper(f[2]), "AS"), 10, 32)
	if err != nil {
		return ASN{}, false, nil
	}
	return ASN{Number: uint32(n), Org: f[3]}, true, nil
}

// rangeRow finds the row of a range file whose [start, end] holds ip.
func (db *DB) rangeRow(name string, ip netip.Addr, minFields int) ([]string, bool, error) {
	target := ip.As16()
	var row []string
	line, ok, err := db.search(name, func(line []byte) (int, bool) {
		f, err := parseCSV(line)
		if err != nil || len(f) < minFields {
			return 0, false
		}
		start, ok1 := parseBound(f[0])
		end, ok2 := parseBound(f[1])
		if !ok1 || !ok2 {
			return 0, false
		}
		s, e := start.As16(), end.As16()
		switch {
		case bytes.Compare(target[:], s[:]) < 0:
			return -1, true
		case bytes.Compare(target[:], e[:]) > 0:
			return 1, true
		}
		row = f
		return 0, true
	})
	if err != nil || !ok || line == nil {
		return nil, false, err
	}
	return row, true, nil
}

// keyRow finds the row of a side table whose first field equals key.
// Numeric tables compare keys as integers.
func (db *DB) keyRow(name, key string, numeric bool) ([]string, bool, error) {
	var want uint64
	if numeric {
		var err error
		if want, err = strconv.ParseUint(key, 10, 64); err != nil {
			return nil, false, nil
		}
	}
	var row []string
	_, ok, err := db.search(name, func(line []byte) (int, bool) {
		f, err := parseCSV(line)
		if err != nil || len(f) == 0 {
			return 0, false
		}
		var c int
		if numeric {
			got, err := strconv.ParseUint(f[0], 10, 64)
			if err != nil {
				return 0, false
			}
			switch {
			case want < got:
				c = -1
			case want > got:
				c = 1
			}
		} else {
			if f[0] != strings.ToUpper(f[0]) {
				// header row
				return 0, false
			}
			c = strings.Compare(key, f[0])
		}
		if c == 0 {
			row = f
		}
		return c, true
	})
	if err != nil || !ok {
		return nil, false, err
	}
	return row, true, nil
}

func parseCSV(line []byte) ([]string, error) {
	r := csv.NewReader(bytes.NewReader(line))
	r.FieldsPerRecord = -1
	r.LazyQuotes = true
	return r.Read()
}

func parseBound(s string) (netip.Addr, bool) {
	if ip, err := netip.ParseAddr(s); err == nil {
		return ip.Unmap(), true
	}
	n, err := strconv.ParseUint(s, 10, 32)
	if err != nil {
		return netip.Addr{}, false
	}
	return netip.AddrFrom4([4]byte{byte(n >> 24), byte(n >> 16), byte(n >> 8), byte(n)}), true
}
