package normalization

import (
	"regexp"

	"github.com/tcollier/threatgate/internal/model"
)

// productPatterns match common vendor/product mentions in advisory text.
// Crown-jewel correlation downstream only needs vendor/product pairs, so
// version parsing is deliberately out of scope here.
var productPatterns = []struct {
	vendor  string
	pattern *regexp.Regexp
}{
	{"Microsoft", regexp.MustCompile(`(?i)Microsoft\s+(Exchange|Windows|Office|Azure|Teams|SharePoint)`)},
	{"Cisco", regexp.MustCompile(`(?i)Cisco\s+(ASA|IOS|AnyConnect|Webex)`)},
	{"VMware", regexp.MustCompile(`(?i)VMware\s+(vSphere|ESXi|vCenter|Horizon)`)},
	{"Oracle", regexp.MustCompile(`(?i)Oracle\s+(WebLogic|Database|Java)`)},
	{"Apache", regexp.MustCompile(`(?i)Apache\s+(Struts|Tomcat|HTTP Server|Log4j)`)},
	{"Fortinet", regexp.MustCompile(`(?i)Fortinet\s+(FortiGate|FortiOS|FortiManager)`)},
	{"Ivanti", regexp.MustCompile(`(?i)Ivanti\s+(Connect Secure|Policy Secure|Endpoint Manager)`)},
	{"Citrix", regexp.MustCompile(`(?i)Citrix\s+(NetScaler|ADC|Gateway)`)},
}

// ExtractProducts pulls affected vendor/product pairs out of advisory text.
func ExtractProducts(text string) []model.Product {
	var products []model.Product
	seen := make(map[string]bool)
	for _, p := range productPatterns {
		match := p.pattern.FindStringSubmatch(text)
		if match == nil {
			continue
		}
		key := p.vendor + "/" + match[1]
		if seen[key] {
			continue
		}
		seen[key] = true
		products = append(products, model.Product{Vendor: p.vendor, Product: match[1]})
	}
	return products
}
