package normalization

import (
	"strings"

	"github.com/tcollier/threatgate/internal/model"
)

// Grade is an Admiralty rating with the reason it was assigned.
type Grade struct {
	Reliability model.Reliability
	Credibility model.Credibility
	Reason      string
}

// ratingsBySourceType maps declared feed source types to base grades.
// Official CERT and vendor advisories carry confirmed evidence; research
// organizations and vulnerability databases are solid secondary sources;
// news media report at one remove.
var ratingsBySourceType = map[model.SourceType]Grade{
	model.SourceTypeCERT:   {model.ReliabilityA, 2, "official CERT/CSIRT advisory"},
	model.SourceTypeVendor: {model.ReliabilityA, 2, "official vendor security advisory"},
	model.SourceTypeRSS:    {model.ReliabilityC, 3, "security news media"},
	model.SourceTypeCustom: {model.ReliabilityD, 4, "unverified custom source"},
}

// highTrustSources always grade A2 regardless of the channel they arrive on.
var highTrustSources = []string{"CISA", "NCSC", "US-CERT", "Microsoft Security"}

// highTrustDomains upgrade entries whose link points at an authoritative host.
var highTrustDomains = []string{"cisa.gov", "nvd.nist.gov", "msrc.microsoft.com", "cert.gov"}

// gradeSource assigns the initial Admiralty grade from the feed's declared
// source type, with upgrades for recognized high-trust sources and a
// credibility downgrade when an entry carries no supporting text at all.
func gradeSource(feed FeedMetadata, link, summary string) Grade {
	grade, ok := ratingsBySourceType[feed.SourceType]
	if !ok {
		grade = Grade{model.ReliabilityE, 4, "unknown source type"}
	}

	for _, trusted := range highTrustSources {
		if strings.Contains(feed.Name, trusted) {
			return Grade{model.ReliabilityA, 2, "high-trust source: " + feed.Name}
		}
	}
	lowerLink := strings.ToLower(link)
	for _, domain := range highTrustDomains {
		if strings.Contains(lowerLink, domain) {
			return Grade{model.ReliabilityA, 2, "authoritative domain: " + domain}
		}
	}

	// An entry with no summary offers no evidence to judge; credibility
	// drops to the cannot-be-judged band and the item is auto-dropped.
	if strings.TrimSpace(summary) == "" && grade.Credibility >= 4 {
		grade.Credibility = 5
		grade.Reason = "no supporting evidence in entry"
	}

	return grade
}
