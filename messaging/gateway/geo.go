package gateway

import (
	"encoding/json"
	"math"

	"github.com/mmcloughlin/geohash"
	"github.com/sasha-s/go-deadlock"
	"golang.org/x/exp/slices"
	"meshnostr/engine/library"
)

// RelayDirectoryEntry locates one relay in the packaged coordinate file.
type RelayDirectoryEntry struct {
	URL string  `json:"url"`
	Lat float64 `json:"lat"`
	Lon float64 `json:"lon"`
}

// LoadDirectory parses the packaged relay coordinate file, a JSON array of
// {url, lat, lon} objects.
func LoadDirectory(data []byte) ([]RelayDirectoryEntry, error) {
	var entries []RelayDirectoryEntry
	if err := json.Unmarshal(data, &entries); err != nil {
		return nil, err
	}
	return entries, nil
}

// ClosestRelays returns the n relay URLs nearest to the geohash center,
// sorted ascending by great-circle distance. An empty directory or n=0
// returns an empty list; callers fall back to their default relay set.
func ClosestRelays(directory []RelayDirectoryEntry, gh library.Geohash, n int) []string {
	if n <= 0 || len(directory) == 0 {
		return []string{}
	}
	lat, lon := geohash.DecodeCenter(gh)
	type scored struct {
		url      string
		distance float64
	}
	scoredEntries := make([]scored, 0, len(directory))
	for _, entry := range directory {
		scoredEntries = append(scoredEntries, scored{
			url:      entry.URL,
			distance: haversineKm(lat, lon, entry.Lat, entry.Lon),
		})
	}
	slices.SortFunc(scoredEntries, func(a, b scored) bool { return a.distance < b.distance })
	if n > len(scoredEntries) {
		n = len(scoredEntries)
	}
	urls := make([]string, 0, n)
	for _, s := range scoredEntries[:n] {
		urls = append(urls, s.url)
	}
	return urls
}

const earthRadiusKm = 6371.0

func haversineKm(lat1, lon1, lat2, lon2 float64) float64 {
	dLat := toRadians(lat2 - lat1)
	dLon := toRadians(lon2 - lon1)
	a := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(toRadians(lat1))*math.Cos(toRadians(lat2))*
			math.Sin(dLon/2)*math.Sin(dLon/2)
	return earthRadiusKm * 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))
}

func toRadians(deg float64) float64 {
	return deg * math.Pi / 180
}

// RelaySelector answers "which relays for this geohash" for the session,
// caching per geohash and falling back to the default relay list when the
// directory is unavailable.
type RelaySelector struct {
	mu        deadlock.Mutex
	directory []RelayDirectoryEntry
	defaults  []string
	count     int
	cache     map[library.Geohash][]string
}

func NewRelaySelector(directory []RelayDirectoryEntry, defaults []string, count int) *RelaySelector {
	if count <= 0 {
		count = 3
	}
	return &RelaySelector{
		directory: directory,
		defaults:  defaults,
		count:     count,
		cache:     make(map[library.Geohash][]string),
	}
}

// RelaysFor returns the selection for a geohash, cached for the session.
func (s *RelaySelector) RelaysFor(gh library.Geohash) []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if cached, ok := s.cache[gh]; ok {
		return slices.Clone(cached)
	}
	selected := ClosestRelays(s.directory, gh, s.count)
	if len(selected) == 0 {
		selected = slices.Clone(s.defaults)
	}
	s.cache[gh] = selected
	return slices.Clone(selected)
}
