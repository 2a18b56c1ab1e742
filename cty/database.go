// Package cty loads the CTY country-prefix plist and resolves callsigns to
// continent, zone and country metadata so spots can be enriched before they
// are filtered and archived.
package cty

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync/atomic"

	lru "github.com/hashicorp/golang-lru/v2"
	"howett.net/plist"

	"dxlistener/spot"
)

// Entity is one plist entry: an exact callsign or a prefix.
type Entity struct {
	Country       string  `plist:"Country"`
	Prefix        string  `plist:"Prefix"`
	ADIF          int     `plist:"ADIF"`
	CQZone        int     `plist:"CQZone"`
	ITUZone       int     `plist:"ITUZone"`
	Continent     string  `plist:"Continent"`
	Latitude      float64 `plist:"Latitude"`
	Longitude     float64 `plist:"Longitude"`
	GMTOffset     float64 `plist:"GMTOffset"`
	ExactCallsign bool    `plist:"ExactCallsign"`
}

// Metadata converts the entity into the form carried on a spot.
func (e Entity) Metadata() spot.CallMetadata {
	grid, _ := gridSquare(e.Latitude, e.Longitude)
	return spot.CallMetadata{
		Continent: e.Continent,
		Country:   e.Country,
		CQZone:    e.CQZone,
		ITUZone:   e.ITUZone,
		ADIF:      e.ADIF,
		Grid:      grid,
	}
}

// DefaultCacheSize bounds the memoized lookups, hits and misses alike.
const DefaultCacheSize = 50000

// Database answers longest-prefix lookups over the CTY entries.
type Database struct {
	entries map[string]Entity
	trie    prefixTrie
	cache   *lru.Cache[string, lookupResult]

	lookups   atomic.Uint64
	cacheHits atomic.Uint64
	misses    atomic.Uint64
}

type lookupResult struct {
	entity Entity
	ok     bool
}

// Stats summarizes lookup behavior.
type Stats struct {
	Entries   int
	Lookups   uint64
	CacheHits uint64
	Misses    uint64
}

// Load opens and decodes a cty.plist file.
func Load(path string) (*Database, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open cty plist: %w", err)
	}
	defer f.Close()
	return LoadFromReader(f)
}

// LoadFromReader decodes plist data. Keys are uppercased. Exact-callsign
// entries only match whole calls and stay out of the prefix trie.
func LoadFromReader(r io.ReadSeeker) (*Database, error) {
	var raw map[string]Entity
	if err := plist.NewDecoder(r).Decode(&raw); err != nil {
		return nil, fmt.Errorf("decode plist: %w", err)
	}
	db := &Database{entries: make(map[string]Entity, len(raw))}
	for k, v := range raw {
		key := strings.ToUpper(strings.TrimSpace(k))
		if key == "" {
			continue
		}
		db.entries[key] = v
		if !v.ExactCallsign {
			db.trie.insert(key)
		}
	}
	cache, err := lru.New[string, lookupResult](DefaultCacheSize)
	if err != nil {
		return nil, fmt.Errorf("cty cache: %w", err)
	}
	db.cache = cache
	return db, nil
}

// Len returns the number of plist entries.
func (db *Database) Len() int { return len(db.entries) }

var operatingSuffixes = []string{"/QRP", "/MM", "/AM", "/P", "/M", "/B"}

// lookupKey strips SSIDs, the skimmer marker and operating suffixes that
// never change the entity.
func lookupKey(call string) string {
	call = strings.TrimSuffix(spot.CollapseSSID(spot.NormalizeCallsign(call)), "-#")
	for _, suf := range operatingSuffixes {
		if strings.HasSuffix(call, suf) {
			return strings.TrimSuffix(call, suf)
		}
	}
	return call
}

// Lookup resolves a callsign by exact entry first, then longest prefix.
func (db *Database) Lookup(call string) (Entity, bool) {
	if db == nil {
		return Entity{}, false
	}
	key := lookupKey(call)
	db.lookups.Add(1)
	if res, ok := db.cache.Get(key); ok {
		db.cacheHits.Add(1)
		return res.entity, res.ok
	}
	res := db.resolve(key)
	if !res.ok {
		db.misses.Add(1)
	}
	db.cache.Add(key, res)
	return res.entity, res.ok
}

func (db *Database) resolve(key string) lookupResult {
	if e, ok := db.entries[key]; ok {
		return lookupResult{entity: e, ok: true}
	}
	if match, ok := db.trie.longest(key); ok {
		return lookupResult{entity: db.entries[match], ok: true}
	}
	return lookupResult{}
}

// Enrich fills both metadata blocks of s. Unknown calls leave the block
// untouched.
func (db *Database) Enrich(s *spot.Spot) {
	if db == nil || s == nil {
		return
	}
	if e, ok := db.Lookup(s.DXCall); ok {
		s.DXMetadata = e.Metadata()
	}
	if e, ok := db.Lookup(s.DECall); ok {
		s.DEMetadata = e.Metadata()
	}
}

// Stats returns a snapshot of lookup counters.
func (db *Database) Stats() Stats {
	if db == nil {
		return Stats{}
	}
	return Stats{
		Entries:   len(db.entries),
		Lookups:   db.lookups.Load(),
		CacheHits: db.cacheHits.Load(),
		Misses:    db.misses.Load(),
	}
}
