package stream

import (
	"bufio"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
)

// maxLineSize bounds a single input line.
const maxLineSize = 1 << 20

// ReadLines calls fn with every non-blank line of r, trimmed of surrounding
// whitespace. It stops at the first error returned by fn.
func ReadLines(r io.Reader, fn func(line string) error) error {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), maxLineSize)

	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" {
			continue
		}
		if err := fn(line); err != nil {
			return err
		}
	}
	return sc.Err()
}

// TrafficRecord is one packet of a traffic log.
type TrafficRecord struct {
	Timestamp int64
	SrcIP     uint32
	DstIP     uint32
	Bytes     uint32
}

// TrafficStats summarizes a ReadTraffic pass.
type TrafficStats struct {
	Records int
	Skipped int
}

// ReadTraffic parses a CSV traffic log with the columns
//
//	timestamp,src_ip,dst_ip,bytes
//
// and calls fn for every well-formed record. An optional header line is
// recognized by its first column. Lines with the wrong number of fields, an
// unparsable number or an invalid address are skipped and counted in
// TrafficStats.Skipped. Processing stops at the first error returned by fn or
// by the underlying reader.
func ReadTraffic(r io.Reader, fn func(TrafficRecord) error) (TrafficStats, error) {
	var stats TrafficStats

	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.ReuseRecord = true
	cr.TrimLeadingSpace = true

	first := true
	for {
		fields, err := cr.Read()
		if errors.Is(err, io.EOF) {
			return stats, nil
		}
		if err != nil {
			var perr *csv.ParseError
			if errors.As(err, &perr) {
				stats.Skipped++
				continue
			}
			return stats, fmt.Errorf("read traffic: %w", err)
		}

		if first {
			first = false
			if len(fields) > 0 && strings.EqualFold(fields[0], "timestamp") {
				continue
			}
		}

		rec, ok := parseTraffic(fields)
		if !ok {
			stats.Skipped++
			continue
		}

		stats.Records++
		if err := fn(rec); err != nil {
			return stats, err
		}
	}
}

func parseTraffic(fields []string) (TrafficRecord, bool) {
	if len(fields) != 4 {
		return TrafficRecord{}, false
	}

	ts, err := strconv.ParseInt(fields[0], 10, 64)
	if err != nil {
		return TrafficRecord{}, false
	}
	src, err := ParseIPv4(fields[1])
	if err != nil {
		return TrafficRecord{}, false
	}
	dst, err := ParseIPv4(fields[2])
	if err != nil {
		return TrafficRecord{}, false
	}
	n, err := strconv.ParseUint(strings.TrimSpace(fields[3]), 10, 32)
	if err != nil {
		return TrafficRecord{}, false
	}

	return TrafficRecord{Timestamp: ts, SrcIP: src, DstIP: dst, Bytes: uint32(n)}, true
}
