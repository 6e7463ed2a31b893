package normalization

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"sort"
	"strings"
	"sync"
	"time"
	"unicode"

	"go.uber.org/zap"

	"github.com/tcollier/threatgate/internal/model"
)

const dedupeKeyLen = 16

// dedupeCanonical is the canonical form hashed into a dedupe key. Field
// order is fixed by the struct; encoding/json emits fields in declaration
// order, so the serialization is stable.
type dedupeCanonical struct {
	Title string   `json:"title"`
	CVEs  []string `json:"cves"`
	Date  string   `json:"date"`
}

// DedupeKey derives the stable deduplication key for an advisory: two
// entries with the same key are the same logical threat regardless of
// wording differences or which source carried them. Source identity is
// deliberately left out of the hash so cross-feed duplicates converge
// and their source names can be merged.
func DedupeKey(title string, cves []string, published time.Time) string {
	canonical := dedupeCanonical{
		Title: canonicalTitle(title),
		CVEs:  sortedUpper(cves),
		Date:  published.UTC().Format("2006-01-02"),
	}

	data, _ := json.Marshal(canonical)
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])[:dedupeKeyLen]
}

// canonicalTitle lowercases the title, strips punctuation, and sorts the
// remaining tokens so that reworded variants converge.
func canonicalTitle(title string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(title) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) || unicode.IsSpace(r) {
			b.WriteRune(r)
		} else {
			b.WriteRune(' ')
		}
	}
	tokens := strings.Fields(b.String())
	sort.Strings(tokens)
	return strings.Join(tokens, " ")
}

func sortedUpper(values []string) []string {
	out := make([]string, len(values))
	for i, v := range values {
		out[i] = strings.ToUpper(v)
	}
	sort.Strings(out)
	return out
}

// Deduper resolves dedupe-key collisions across concurrently normalized
// entries. Resolution is serialized under a single lock so near-simultaneous
// duplicates cannot lose updates.
type Deduper struct {
	mu     sync.Mutex
	byKey  map[string]*model.ThreatItem
	logger *zap.Logger
	now    func() time.Time
}

// NewDeduper creates an empty Deduper.
func NewDeduper(logger *zap.Logger) *Deduper {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Deduper{
		byKey:  make(map[string]*model.ThreatItem),
		logger: logger,
		now:    time.Now,
	}
}

// Resolve registers item under its dedupe key. On first sight the item is
// returned unchanged with merged=false. On collision the higher-quality
// item wins, source names merge, and the most recent publish time is kept;
// the surviving item is returned with merged=true.
func (d *Deduper) Resolve(item *model.ThreatItem) (*model.ThreatItem, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()

	existing, ok := d.byKey[item.DedupeKey]
	if !ok {
		d.byKey[item.DedupeKey] = item
		return item, false
	}

	winner, loser := existing, item
	if item.QualityScore > existing.QualityScore {
		winner, loser = item, existing
	}

	winner.SourceNames = mergeNames(winner.SourceNames, loser.SourceNames)
	if loser.PublishedUTC.After(winner.PublishedUTC) {
		winner.PublishedUTC = loser.PublishedUTC
	}
	winner.QualityScore = PartialQuality(winner, d.now().UTC())

	d.byKey[item.DedupeKey] = winner
	d.logger.Debug("duplicate threat item merged",
		zap.String("dedupe_key", item.DedupeKey),
		zap.String("kept_source", winner.SourceName),
		zap.String("merged_source", loser.SourceName),
	)
	return winner, true
}

// Lookup returns the current item for a dedupe key, if any.
func (d *Deduper) Lookup(key string) (*model.ThreatItem, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	item, ok := d.byKey[key]
	return item, ok
}

// Len returns the number of distinct threat items seen so far.
func (d *Deduper) Len() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.byKey)
}

func mergeNames(a, b []string) []string {
	seen := make(map[string]bool, len(a)+len(b))
	var out []string
	for _, name := range append(append([]string{}, a...), b...) {
		if name != "" && !seen[name] {
			seen[name] = true
			out = append(out, name)
		}
	}
	return out
}
