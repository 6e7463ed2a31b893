package enrichment

import (
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/tcollier/threatgate/internal/model"
)

func f64(v float64) *float64 { return &v }
func boolp(v bool) *bool     { return &v }

func itemWithCVE(cves ...string) *model.ThreatItem {
	return &model.ThreatItem{
		ID:    "item-1",
		Title: "Some advisory with enough title",
		CVEs:  cves,
	}
}

func TestMerge_CopiesFacts(t *testing.T) {
	m := NewMerger(nil, zap.NewNop(), time.Second)

	added := time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC)
	item := m.Merge(itemWithCVE("CVE-2024-1111"), map[string]*CVEFacts{
		"CVE-2024-1111": {
			CVSSv3:       f64(9.8),
			EPSS:         f64(0.85),
			KEVListed:    boolp(true),
			KEVDateAdded: &added,
		},
	})

	if item.CVSSv3 == nil || *item.CVSSv3 != 9.8 {
		t.Errorf("expected CVSS 9.8, got %v", item.CVSSv3)
	}
	if item.EPSS == nil || *item.EPSS != 0.85 {
		t.Errorf("expected EPSS 0.85, got %v", item.EPSS)
	}
	if !item.IsKEVListed() {
		t.Error("expected KEV listed")
	}
	if item.KEVDateAdded == nil || !item.KEVDateAdded.Equal(added) {
		t.Errorf("expected KEV date %v, got %v", added, item.KEVDateAdded)
	}
	if item.ExploitStatus == nil || *item.ExploitStatus != model.ExploitITW {
		t.Error("KEV listing should imply in-the-wild exploit status")
	}
}

func TestMerge_MissingFactsStayNil(t *testing.T) {
	m := NewMerger(nil, zap.NewNop(), time.Second)

	item := m.Merge(itemWithCVE("CVE-2024-1111"), map[string]*CVEFacts{})

	if item.CVSSv3 != nil || item.CVSSv4 != nil || item.EPSS != nil || item.KEVListed != nil {
		t.Error("fields without provider data must remain nil, never guessed")
	}
}

func TestMerge_RejectsOutOfRangeValues(t *testing.T) {
	m := NewMerger(nil, zap.NewNop(), time.Second)

	item := m.Merge(itemWithCVE("CVE-2024-1111"), map[string]*CVEFacts{
		"CVE-2024-1111": {
			CVSSv3: f64(11.2), // invalid: > 10
			EPSS:   f64(1.7),  // invalid: > 1
		},
	})

	if item.CVSSv3 != nil {
		t.Errorf("out-of-range CVSS must be treated as null, got %v", *item.CVSSv3)
	}
	if item.EPSS != nil {
		t.Errorf("out-of-range EPSS must be treated as null, got %v", *item.EPSS)
	}
}

func TestMerge_RoundsCVSSToOneDecimal(t *testing.T) {
	m := NewMerger(nil, zap.NewNop(), time.Second)

	item := m.Merge(itemWithCVE("CVE-2024-1111"), map[string]*CVEFacts{
		"CVE-2024-1111": {CVSSv3: f64(7.4499)},
	})

	if item.CVSSv3 == nil || *item.CVSSv3 != 7.4 {
		t.Errorf("expected 7.4, got %v", item.CVSSv3)
	}
}

func TestMerge_MultiCVEKeepsHighestEPSS(t *testing.T) {
	m := NewMerger(nil, zap.NewNop(), time.Second)

	item := m.Merge(itemWithCVE("CVE-2024-1111", "CVE-2024-2222"), map[string]*CVEFacts{
		"CVE-2024-1111": {EPSS: f64(0.12)},
		"CVE-2024-2222": {EPSS: f64(0.64)},
	})

	if item.EPSS == nil || *item.EPSS != 0.64 {
		t.Errorf("expected highest EPSS 0.64, got %v", item.EPSS)
	}
}

func TestMerge_NegativeKEVDoesNotOverridePositive(t *testing.T) {
	m := NewMerger(nil, zap.NewNop(), time.Second)

	item := m.Merge(itemWithCVE("CVE-2024-1111", "CVE-2024-2222"), map[string]*CVEFacts{
		"CVE-2024-1111": {KEVListed: boolp(true)},
		"CVE-2024-2222": {KEVListed: boolp(false)},
	})

	if !item.IsKEVListed() {
		t.Error("a confirmed KEV listing on any CVE must survive the merge")
	}
}
