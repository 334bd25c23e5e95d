package scraper

import (
	"strings"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"

	"property-scraper/config"
	"property-scraper/models"
	"property-scraper/services"
)

// ExtractSpecs builds the SpecMap of a page by running every strategy in
// order. Each strategy adds the labels it finds; a label already set by an
// earlier strategy, or an earlier row, is kept. Strategies that match no rows
// add nothing.
func ExtractSpecs(page *Page, strategies []config.SpecStrategy) models.SpecMap {
	return extractSpecs(page.Doc.Selection, strategies)
}

// extractSpecs runs the strategies below root only.
func extractSpecs(root *goquery.Selection, strategies []config.SpecStrategy) models.SpecMap {
	specs := make(models.SpecMap)
	for _, st := range strategies {
		for _, row := range strategyRows(root, st) {
			for _, kv := range rowPairs(row, st) {
				addSpec(specs, kv[0], kv[1])
			}
		}
	}
	return specs
}

// strategyRows returns the row elements a strategy reads from.
func strategyRows(root *goquery.Selection, st config.SpecStrategy) []*goquery.Selection {
	var rows []*goquery.Selection
	collect := func(_ int, s *goquery.Selection) { rows = append(rows, s) }

	if st.Anchor == "" {
		root.Find(st.Rows).Each(collect)
		return rows
	}

	// The anchor label sits in a row; its siblings are the other rows.
	tag := st.AnchorTag
	if tag == "" {
		tag = "p"
	}
	seen := make(map[*html.Node]bool)
	root.Find(tag).Each(func(_ int, s *goquery.Selection) {
		if ownText(s) != st.Anchor {
			return
		}
		block := s.Parent().Parent()
		if block.Length() == 0 || seen[block.Get(0)] {
			return
		}
		seen[block.Get(0)] = true
		block.ChildrenFiltered(st.Rows).Each(collect)
	})
	return rows
}

// rowPairs returns the label/value pairs found in one row.
func rowPairs(row *goquery.Selection, st config.SpecStrategy) [][2]string {
	switch st.Kind {
	case config.StrategyPairs:
		label := ownText(row.Find(st.Label).First())
		value := ownText(row.Find(st.Value).First())
		return [][2]string{{label, value}}

	case config.StrategyParts:
		var parts []string
		if st.Parts == "" {
			parts = textNodes(row)
		} else {
			row.ChildrenFiltered(st.Parts).Each(func(_ int, s *goquery.Selection) {
				if t := ownText(s); t != "" {
					parts = append(parts, t)
				}
			})
		}
		if len(parts) != 2 {
			return nil
		}
		if st.Reversed {
			return [][2]string{{parts[1], parts[0]}}
		}
		return [][2]string{{parts[0], parts[1]}}

	case config.StrategyAttr:
		label, _ := row.Attr(st.LabelAttr)
		return [][2]string{{label, services.NormaliseText(row.Text())}}

	case config.StrategyTable:
		var labels, values []string
		row.Find(st.Label).Each(func(_ int, s *goquery.Selection) { labels = append(labels, ownText(s)) })
		row.Find(st.Value).Each(func(_ int, s *goquery.Selection) { values = append(values, ownText(s)) })
		if len(labels) != len(values) {
			return nil
		}
		pairs := make([][2]string, len(labels))
		for i := range labels {
			pairs[i] = [2]string{labels[i], values[i]}
		}
		return pairs
	}
	return nil
}

func addSpec(specs models.SpecMap, label, value string) {
	label = strings.TrimSpace(label)
	value = strings.TrimSpace(value)
	if label == "" || value == "" {
		return
	}
	if _, exists := specs[label]; exists {
		return
	}
	specs[label] = value
}

// lookupSpec returns the value of the first label present in specs. Labels
// must match exactly.
func lookupSpec(specs models.SpecMap, labels []string) (string, bool) {
	for _, l := range labels {
		if v, ok := specs[l]; ok {
			return v, true
		}
	}
	return "", false
}
