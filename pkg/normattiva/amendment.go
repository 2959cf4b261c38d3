package normattiva

import (
	"context"
	"regexp"
	"sort"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/capazme/lexcore/pkg/legalerr"
	"github.com/capazme/lexcore/pkg/model"
	"github.com/capazme/lexcore/pkg/urn"
)

// LLMFallback is the contract C9 needs from the structured-extraction
// service: given the raw text of rows the regex family couldn't parse,
// return one parsed entry per row, in the same order, with nil for any
// entry the service itself failed to extract (spec §4.9: "failures return
// None for that entry, silently dropped"). Implemented by pkg/amendment.
type LLMFallback interface {
	ParseDestinations(ctx context.Context, rows []string) ([]*Destination, error)
}

// Destination is the structured result of parsing an amendment's target,
// whether by regex or by LLMFallback: {articolo, comma, lettera, numero}.
type Destination struct {
	Articolo string
	Comma    string
	Lettera  string
	Numero   string // progressive table row number, when present
}

var longFormDateRe = regexp.MustCompile(`(?i)(\d{1,2})\s+(\p{L}+)\s+(\d{4})`)
var progressiveRe = regexp.MustCompile(`^\s*(\d+)\s*$`)

// kindPatterns maps the four verbal forms spec §4.9 names to their
// AmendmentKind, matched case-insensitively against a row's text.
var kindPatterns = []struct {
	pattern *regexp.Regexp
	kind    model.AmendmentKind
}{
	{regexp.MustCompile(`(?i)la modifica`), model.KindModifica},
	{regexp.MustCompile(`(?i)l['’]abrogazione`), model.KindAbrogazione},
	{regexp.MustCompile(`(?i)l['’]introduzione`), model.KindIntroduzione},
	{regexp.MustCompile(`(?i)la sostituzione`), model.KindSostituzione},
}

// destinationForwardRe matches "dell'art. M[, comma N[, lettera L]]";
// destinationInvertedRe matches the inverted "del comma N[, lettera L]
// dell'art. M".
var destinationForwardRe = regexp.MustCompile(`(?i)art(?:icolo)?\.?\s*(\d+[a-z]*)(?:,?\s*comma\s*(\d+))?(?:,?\s*lettera\s*([a-z]))?`)
var destinationInvertedRe = regexp.MustCompile(`(?i)comma\s*(\d+)(?:,?\s*lettera\s*([a-z]))?\s*dell['’]art(?:icolo)?\.?\s*(\d+[a-z]*)`)

// dispositionRe extracts the modifying act's own article/comma from
// "ha disposto (con l'art. X[, comma Y]) ...", grounded verbatim on
// NEWVERSION/normattiva.py's disp_pattern.
var dispositionRe = regexp.MustCompile(`(?i)\(con l['’]art\.\s*([^)]+)\)`)

// ParseHistoryTable parses the resulting table HTML fetched from the
// button's data-href into AmendmentRecords, per spec §4.6/§4.9.
// llm may be nil — rows the regex family can't parse are then simply
// dropped rather than batched to a fallback.
func ParseHistoryTable(ctx context.Context, tableHTML string, llm LLMFallback) ([]model.AmendmentRecord, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(tableHTML))
	if err != nil {
		return nil, legalerr.ParsingError(tableHTML, "failed to parse amendment history table")
	}

	type rawRow struct {
		text          string
		actType       string
		actNumber     string
		effectiveDate string
		actLabel      string
	}

	var rows []rawRow
	var unparsed []int // indices into rows needing LLM fallback

	var currentActType, currentActNumber, currentDate, currentLabel string

	doc.Find("tr").Each(func(_ int, tr *goquery.Selection) {
		cells := tr.Find("td")
		if cells.Length() == 0 {
			return
		}
		firstCell := strings.TrimSpace(cells.First().Text())
		rowText := strings.TrimSpace(tr.Text())

		if progressiveRe.MatchString(firstCell) {
			// New modifying-act context: extract act type, long-form
			// date, number and the human-readable label from the row text.
			currentActType, currentActNumber, currentDate, currentLabel = parseActContext(rowText)
			return
		}

		rows = append(rows, rawRow{
			text:          rowText,
			actType:       currentActType,
			actNumber:     currentActNumber,
			effectiveDate: currentDate,
			actLabel:      currentLabel,
		})
	})

	records := make([]model.AmendmentRecord, len(rows))
	destinations := make([]*Destination, len(rows))

	for i, row := range rows {
		dest, kind := parseRegex(row.text)
		if dest == nil {
			unparsed = append(unparsed, i)
			continue
		}
		destinations[i] = dest
		records[i].Kind = kind
		records[i].Disposition = parseDisposition(row.text)
	}

	if len(unparsed) > 0 && llm != nil {
		batch := make([]string, len(unparsed))
		for j, idx := range unparsed {
			batch[j] = rows[idx].text
		}
		parsed, err := llm.ParseDestinations(ctx, batch)
		if err == nil && len(parsed) == len(batch) {
			for j, idx := range unparsed {
				destinations[idx] = parsed[j]
			}
		}
	}

	out := make([]model.AmendmentRecord, 0, len(rows))
	for i, row := range rows {
		if destinations[i] == nil {
			continue // row never resolved, even after LLM fallback
		}
		modURN, err := buildModifyingURN(row.actType, row.actNumber, row.effectiveDate)
		if err != nil {
			continue
		}
		disposition := records[i].Disposition
		if disposition == "" {
			disposition = parseDisposition(row.text)
		}
		out = append(out, model.AmendmentRecord{
			ModifyingActURN:   modURN,
			ModifyingActLabel: row.actLabel,
			Disposition:       disposition,
			EffectiveDate:     row.effectiveDate,
			GazetteDate:       row.effectiveDate,
			Kind:              records[i].Kind,
			Article:           destinations[i].Articolo,
			Comma:             destinations[i].Comma,
			Lettera:           destinations[i].Lettera,
		})
	}

	sort.SliceStable(out, func(i, j int) bool {
		return out[i].EffectiveDate < out[j].EffectiveDate
	})

	return out, nil
}

// parseActContext extracts the modifying-act context from a progressive-
// numbered row ("15. LEGGE 15 maggio 1997, n. 127"), stripping the leading
// progressive-number cell first so label/actType are read from the act
// description itself, matching the original's "estremi" composition
// (NEWVERSION/normattiva.py's _extract_act_info).
func parseActContext(rowText string) (actType, actNumber, date, label string) {
	label = strings.TrimSpace(strings.TrimLeft(rowText, "0123456789 \t."))
	m := longFormDateRe.FindString(label)
	date = normalizeLongFormDate(m)
	// act type is whatever free-form label normref.Normalize understands;
	// a cheap heuristic keeps the words before the date.
	if idx := strings.Index(label, m); idx > 0 {
		actType = strings.TrimSpace(label[:idx])
	}
	numRe := regexp.MustCompile(`n\.?\s*(\d+)`)
	if nm := numRe.FindStringSubmatch(label); nm != nil {
		actNumber = nm[1]
	}
	return
}

// parseDisposition extracts the modifying act's own article/comma from
// "ha disposto (con l'art. X[, comma Y]) ...", per spec §3's "disposition"
// field, grounded verbatim on NEWVERSION/normattiva.py's disp_pattern.
func parseDisposition(text string) string {
	m := dispositionRe.FindStringSubmatch(text)
	if m == nil {
		return ""
	}
	return "art. " + strings.TrimSpace(m[1])
}

func normalizeLongFormDate(m string) string {
	sub := longFormDateRe.FindStringSubmatch(m)
	if sub == nil {
		return ""
	}
	day := sub[1]
	if len(day) == 1 {
		day = "0" + day
	}
	monthWord := strings.ToLower(sub[2])
	months := map[string]string{
		"gennaio": "01", "febbraio": "02", "marzo": "03", "aprile": "04",
		"maggio": "05", "giugno": "06", "luglio": "07", "agosto": "08",
		"settembre": "09", "ottobre": "10", "novembre": "11", "dicembre": "12",
	}
	month, ok := months[monthWord]
	if !ok {
		return ""
	}
	return sub[3] + "-" + month + "-" + day
}

func buildModifyingURN(actType, actNumber, date string) (string, error) {
	if actType == "" || actNumber == "" || date == "" {
		return "", legalerr.ParsingError("", "incomplete modifying act context")
	}
	return urn.Build(urn.Reference{ActType: actType, Date: date, ActNumber: actNumber}, nil)
}

// parseRegex applies the kind + destination regex families to one detail
// row's text. Returns (nil, "") if no kind pattern matched.
func parseRegex(text string) (*Destination, model.AmendmentKind) {
	var kind model.AmendmentKind
	matched := false
	for _, kp := range kindPatterns {
		if kp.pattern.MatchString(text) {
			kind = kp.kind
			matched = true
			break
		}
	}
	if !matched {
		return nil, ""
	}

	// Inverted ("comma N[, lettera L] dell'art. M") is tried first: its
	// literal "dell'art" anchor only matches that specific construction,
	// while the forward pattern's bare "art" would otherwise match the
	// same "art. M" substring first and return empty comma/lettera groups.
	if m := destinationInvertedRe.FindStringSubmatch(text); m != nil {
		return &Destination{Articolo: m[3], Comma: m[1], Lettera: m[2]}, kind
	}
	if m := destinationForwardRe.FindStringSubmatch(text); m != nil {
		return &Destination{Articolo: m[1], Comma: m[2], Lettera: m[3]}, kind
	}
	return nil, ""
}

// FilterByArticle keeps only records whose Article matches articleSpec's
// base number; if articleSpec carries a "-bis"-style extension, an exact
// match (base+extension) is required, per spec §4.9.
func FilterByArticle(records []model.AmendmentRecord, articleSpec string) []model.AmendmentRecord {
	parts := strings.SplitN(articleSpec, "-", 2)
	base := strings.TrimSpace(parts[0])
	var ext string
	if len(parts) == 2 {
		ext = strings.TrimSpace(parts[1])
	}

	out := make([]model.AmendmentRecord, 0, len(records))
	for _, r := range records {
		recParts := strings.SplitN(r.Article, "-", 2)
		recBase := strings.TrimSpace(recParts[0])
		if recBase != base {
			continue
		}
		if ext != "" {
			var recExt string
			if len(recParts) == 2 {
				recExt = strings.TrimSpace(recParts[1])
			}
			if recExt != ext {
				continue
			}
		}
		out = append(out, r)
	}
	return out
}
