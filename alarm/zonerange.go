package alarm

import (
	"fmt"
	"strconv"
	"strings"

	"golang.org/x/exp/slices"
)

// MaxZone is the highest zone id any supported panel has.
const MaxZone = 64

// ParseZoneRange parses expressions like "1-8,17-20" into the ascending,
// deduplicated set of zone ids. Reversed ranges ("20-17") are accepted.
func ParseZoneRange(expr string) ([]int, error) {
	var zones []int
	for _, part := range strings.Split(expr, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		from, to, isRange := strings.Cut(part, "-")
		start, err := zoneID(from)
		if err != nil {
			return nil, err
		}
		end := start
		if isRange {
			if end, err = zoneID(to); err != nil {
				return nil, err
			}
		}
		if start > end {
			start, end = end, start
		}
		for z := start; z <= end; z++ {
			zones = append(zones, z)
		}
	}
	if len(zones) == 0 {
		return nil, &ConfigError{Field: "zone range", Err: fmt.Errorf("no zones in %q", expr)}
	}
	slices.Sort(zones)
	return slices.Compact(zones), nil
}

// ZoneSet resolves the configured zones: the range expression when given,
// zones 1..count otherwise.
func ZoneSet(expr string, count int) ([]int, error) {
	if strings.TrimSpace(expr) != "" {
		return ParseZoneRange(expr)
	}
	if count < 1 || count > MaxZone {
		return nil, &ConfigError{Field: "zone count", Err: fmt.Errorf("must be between 1 and %d, got %d", MaxZone, count)}
	}
	zones := make([]int, count)
	for i := range zones {
		zones[i] = i + 1
	}
	return zones, nil
}

func zoneID(s string) (int, error) {
	n, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil || n < 1 {
		return 0, &ConfigError{Field: "zone range", Err: fmt.Errorf("invalid zone %q", s)}
	}
	if n > MaxZone {
		return 0, &ConfigError{Field: "zone range", Err: fmt.Errorf("zone %d is above %d", n, MaxZone)}
	}
	return n, nil
}
