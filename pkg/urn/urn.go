// Package urn implements C2: composing a CanonicalURN from a normalized
// ActReference, per spec §4.2 and the bit-exact grammar in spec §6.
package urn

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/capazme/lexcore/pkg/legalerr"
	"github.com/capazme/lexcore/pkg/normref"
)

// Reference mirrors spec §3's ActReference. Fields are exactly those the
// caller supplies; normalization happens inside Build.
type Reference struct {
	ActType     string
	Date        string // "YYYY" or "YYYY-MM-DD"; optional for codified works
	ActNumber   string // optional for codes and constitutions
	Article     string // "", "4-6", "1, 2-bis, 3"
	Annex       string // "", "null", "undefined" all coalesce to absent
	Version     string // "", "originale", "vigente"
	VersionDate string // YYYY-MM-DD, only meaningful when Version == "vigente"
}

// DateResolver is C5's contract as seen by the URN builder: given an act
// type, year and number, return the full YYYY-MM-DD enactment date.
// Implemented by pkg/dateresolve.
type DateResolver interface {
	ResolveDate(actType, year, actNumber string) (string, error)
}

var annexStripPattern = regexp.MustCompile(`:(\d+)$`)

// stripDefaultAnnex removes a trailing ":N" from a CODICI_URN stem and
// returns the stem without it plus the stripped value, per spec §4.2 step 3.
func stripDefaultAnnex(stem string) (base string, defaultAnnex string) {
	loc := annexStripPattern.FindStringSubmatchIndex(stem)
	if loc == nil {
		return stem, ""
	}
	return stem[:loc[0]], stem[loc[2]:loc[3]]
}

func isAbsentAnnex(annex string) bool {
	switch strings.ToLower(strings.TrimSpace(annex)) {
	case "", "null", "undefined":
		return true
	}
	return false
}

// Build composes a CanonicalURN from ref, per spec §4.2. resolver may be nil
// only if ref.Date is already a full YYYY-MM-DD date or ref.ActNumber is
// absent — otherwise a year-only date with a number requires date
// completion (step 4) and a nil resolver falls back directly to
// YYYY-01-01, matching the sentinel-failure path spec §8 "Date fallback"
// tests.
func Build(ref Reference, resolver DateResolver) (string, error) {
	if strings.TrimSpace(ref.ActType) == "" {
		return "", legalerr.ValidationError("act_type is required")
	}

	// Step 1: normalize.
	actType := strings.ToLower(strings.TrimSpace(ref.ActType))

	// Treaty tokens are preserved verbatim and map to fixed URLs.
	if url, ok := normref.IsTreaty(actType); ok {
		return url, nil
	}

	// Step 2: EU dispatch uses only the year portion of date.
	if kind, ok := normref.EUKind(actType); ok {
		return buildEU(kind, ref)
	}

	// Step 3: CODICI_URN codified-code aliases.
	if code, ok := normref.CodeAlias(actType); ok {
		base, _ := stripDefaultAnnex(code.Stem)
		return finishFromStem(base, ref)
	}

	// Step 4: ordinary acts. Obtain a YYYY-MM-DD date.
	token := normref.Normalize(actType)
	date, err := resolveDate(token, ref, resolver)
	if err != nil {
		return "", err
	}
	if strings.TrimSpace(ref.ActNumber) == "" {
		return "", legalerr.ValidationError("act_number is required for non-codified acts")
	}
	stem := fmt.Sprintf("%s:%s;%s", token, date, strings.TrimSpace(ref.ActNumber))
	return finishFromStem(stem, ref)
}

// resolveDate implements spec §4.2 step 4's date-completion branch.
func resolveDate(actType string, ref Reference, resolver DateResolver) (string, error) {
	d := strings.TrimSpace(ref.Date)
	if len(d) == 10 { // already YYYY-MM-DD
		return d, nil
	}
	year := d
	if len(year) != 4 {
		return "", legalerr.ValidationError("date must be YYYY or YYYY-MM-DD, got %q", ref.Date)
	}
	if strings.TrimSpace(ref.ActNumber) == "" {
		// No number to disambiguate against; year-only date stands, padded.
		return year + "-01-01", nil
	}
	if resolver == nil {
		return year + "-01-01", nil
	}
	full, err := resolver.ResolveDate(actType, year, ref.ActNumber)
	if err != nil {
		return year + "-01-01", nil
	}
	return full, nil
}

// finishFromStem applies steps 5-7 (annex, article, version suffixes) to an
// already-built "type:date;number" or codified-code stem.
func finishFromStem(stem string, ref Reference) (string, error) {
	var b strings.Builder
	b.WriteString("urn:nir:stato:")
	b.WriteString(stem)

	if !isAbsentAnnex(ref.Annex) {
		b.WriteString(":")
		b.WriteString(strings.TrimSpace(ref.Annex))
	}

	if art := strings.TrimSpace(ref.Article); art != "" {
		suffix, err := articleSuffix(art)
		if err != nil {
			return "", err
		}
		b.WriteString(suffix)
	}

	switch strings.ToLower(strings.TrimSpace(ref.Version)) {
	case "":
		// absent
	case "originale":
		b.WriteString("@originale")
	case "vigente":
		vd := strings.TrimSpace(ref.VersionDate)
		if len(vd) != 10 {
			return "", legalerr.ValidationError("version_date must be YYYY-MM-DD when version=vigente, got %q", ref.VersionDate)
		}
		b.WriteString("!vig=")
		b.WriteString(vd)
	default:
		return "", legalerr.ValidationError("version must be absent, \"originale\" or \"vigente\", got %q", ref.Version)
	}

	return b.String(), nil
}

var articlePrefixPattern = regexp.MustCompile(`(?i)^(articolo|art\.?)\s*`)

// articleSuffix builds "~artBASE[EXT]" per spec §4.2 step 6: split on "-"
// into base/extension, strip "art"/"articolo" prefixes.
func articleSuffix(article string) (string, error) {
	cleaned := articlePrefixPattern.ReplaceAllString(strings.TrimSpace(article), "")
	parts := strings.SplitN(cleaned, "-", 2)
	base := strings.TrimSpace(parts[0])
	if base == "" {
		return "", legalerr.ValidationError("empty article number in %q", article)
	}
	if _, err := strconv.Atoi(base); err != nil {
		return "", legalerr.ValidationError("article base must be numeric, got %q", base)
	}
	if len(parts) == 1 {
		return "~art" + base, nil
	}
	ext := strings.TrimSpace(parts[1])
	return "~art" + base + ext, nil
}

// buildEU implements the EU URL builder spec §4.2 step 2 dispatches to:
// "https://eur-lex.europa.eu/eli/{kind}/{year}/{num}/oj/ita".
func buildEU(kind string, ref Reference) (string, error) {
	year := strings.TrimSpace(ref.Date)
	if len(year) >= 4 {
		year = year[:4]
	}
	if year == "" {
		return "", legalerr.ValidationError("date (year) is required for EU acts")
	}
	num := strings.TrimSpace(ref.ActNumber)
	if num == "" {
		return "", legalerr.ValidationError("act_number is required for EU acts")
	}
	return fmt.Sprintf("https://eur-lex.europa.eu/eli/%s/%s/%s/oj/ita", kind, year, num), nil
}
