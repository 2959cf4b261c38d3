// Package normref implements C1: the act-type normalizer and the ordinal /
// Latin-extension numeral subsystems spec §4.1 names. Normalization never
// fails — an unrecognized input is returned lowercase-trimmed, unchanged.
package normref

import (
	"regexp"
	"strings"
)

// Canonical maps free-form Italian act names to the dotted-lowercase URN
// token spec §4.2 builds URNs from (e.g. "regio decreto" -> "regio.decreto").
// Grounded on NEWVERSION/utils/text.py's NORMATTIVA map and spec §3's example
// "regio.decreto".
var canonical = map[string]string{
	"legge":                 "legge",
	"legge costituzionale":  "legge.costituzionale",
	"decreto legge":         "decreto.legge",
	"decreto-legge":         "decreto.legge",
	"decreto legislativo":   "decreto.legislativo",
	"decreto.legislativo":   "decreto.legislativo",
	"d.lgs":                 "decreto.legislativo",
	"dlgs":                  "decreto.legislativo",
	"regio decreto":         "regio.decreto",
	"r.d.":                  "regio.decreto",
	"decreto del presidente della repubblica": "decreto.del.presidente.della.repubblica",
	"dpr":         "decreto.del.presidente.della.repubblica",
	"d.p.r.":      "decreto.del.presidente.della.repubblica",
	"costituzione": "costituzione",
	"codice civile": "regio.decreto",
	"codice penale": "regio.decreto",
	"codice di procedura civile": "regio.decreto",
	"codice di procedura penale": "decreto.del.presidente.della.repubblica",
	"preleggi":     "regio.decreto",
}

// search maps the same free-form names to the human-readable label used
// when composing the Normattiva search-box query string in C5 (spec §4.5
// step 3: "{search-label(act_type)} {act_number} {year}").
var search = map[string]string{
	"legge":                "Legge",
	"legge costituzionale": "Legge Costituzionale",
	"decreto legge":        "Decreto Legge",
	"decreto-legge":        "Decreto Legge",
	"decreto legislativo":  "Decreto Legislativo",
	"d.lgs":                "Decreto Legislativo",
	"dlgs":                 "Decreto Legislativo",
	"regio decreto":        "Regio Decreto",
	"r.d.":                 "Regio Decreto",
	"decreto del presidente della repubblica": "Decreto del Presidente della Repubblica",
	"dpr":    "Decreto del Presidente della Repubblica",
	"d.p.r.": "Decreto del Presidente della Repubblica",
}

// euKinds maps EU act families to their ELI path segment (spec §4.7 "EU URL
// construction": "/eli/{kind}/{year}/{num}/oj/ita"). Grounded on
// NEWVERSION/eurlex.py's EURLEX map, which also carries fixed treaty URLs.
var euKinds = map[string]string{
	"regolamento ue":  "reg",
	"regolamento(ue)": "reg",
	"reg ue":          "reg",
	"direttiva ue":    "dir",
	"dir ue":          "dir",
	"decisione ue":    "dec",
}

// treatyURLs are the fixed, non-composable EU treaty URLs (spec §3
// "Treaty acts (TUE, TFUE, CDFUE) map to fixed URLs").
var treatyURLs = map[string]string{
	"TUE":   "https://eur-lex.europa.eu/legal-content/IT/TXT/?uri=CELEX:12016M/TXT",
	"TFUE":  "https://eur-lex.europa.eu/legal-content/IT/TXT/?uri=CELEX:12016E/TXT",
	"CDFUE": "https://eur-lex.europa.eu/legal-content/IT/TXT/?uri=CELEX:12012P/TXT",
}

// CodeStem is an entry in the codified-code alias map (C2's CODICI_URN):
// DisplayName is preserved for presentation while Stem is the real
// underlying URN stem (spec §3 invariant: "the display name is preserved
// while the URN uses the underlying real act type").
type CodeStem struct {
	DisplayName  string
	Stem         string // e.g. "regio.decreto:1942-03-16;262:2" (default annex embedded)
	DefaultAnnex string // "" if the code has no default annex (dispositivo by default)
}

// codiciURN maps codified-work aliases straight to a fully-formed URN stem,
// which may already embed a default annex suffix per spec §4.2 step 3.
// Dates/numbers are the real historical values of each code.
var codiciURN = map[string]CodeStem{
	"codice civile": {
		DisplayName:  "Codice Civile",
		Stem:         "regio.decreto:1942-03-16;262:2",
		DefaultAnnex: "2",
	},
	"codice penale": {
		DisplayName:  "Codice Penale",
		Stem:         "regio.decreto:1930-10-19;1398",
		DefaultAnnex: "",
	},
	"codice di procedura civile": {
		DisplayName:  "Codice di Procedura Civile",
		Stem:         "regio.decreto:1940-10-28;1443:2",
		DefaultAnnex: "2",
	},
	"codice di procedura penale": {
		DisplayName:  "Codice di Procedura Penale",
		Stem:         "decreto.del.presidente.della.repubblica:1988-09-22;447",
		DefaultAnnex: "",
	},
	"costituzione": {
		DisplayName:  "Costituzione",
		Stem:         "costituzione",
		DefaultAnnex: "",
	},
	"preleggi": {
		DisplayName:  "Disposizioni sulla Legge in Generale",
		Stem:         "regio.decreto:1942-03-16;262:1",
		DefaultAnnex: "1",
	},
}

var treatyTokens = map[string]bool{"TUE": true, "TFUE": true, "CDFUE": true}

// Normalize returns the canonical URN token for a free-form act type.
// Never fails: an unrecognized input is returned lowercase-trimmed.
func Normalize(actType string) string {
	key := strings.ToLower(strings.TrimSpace(actType))
	if treatyTokens[strings.ToUpper(key)] {
		return strings.ToUpper(key)
	}
	if v, ok := canonical[key]; ok {
		return v
	}
	if v, ok := codiciURN[key]; ok {
		_ = v
		return key // a codified alias with no canonical entry keeps its key; CODICI_URN lookup happens separately
	}
	return key
}

// SearchLabel returns the human search label used to build the Normattiva
// search-box query in C5. Falls back to a titlecased Normalize() result.
func SearchLabel(actType string) string {
	key := strings.ToLower(strings.TrimSpace(actType))
	if v, ok := search[key]; ok {
		return v
	}
	norm := Normalize(actType)
	return strings.Title(strings.ReplaceAll(norm, ".", " "))
}

// EUKind reports whether actType names an EU regulation/directive/decision
// family and, if so, its ELI path segment.
func EUKind(actType string) (kind string, ok bool) {
	key := strings.ToLower(strings.TrimSpace(actType))
	kind, ok = euKinds[key]
	return
}

// IsTreaty reports whether actType (normalized) is one of the fixed EU
// treaty tokens, and if so returns its fixed URL.
func IsTreaty(actType string) (url string, ok bool) {
	key := strings.ToUpper(strings.TrimSpace(actType))
	url, ok = treatyURLs[key]
	return
}

// CodeAlias looks up a codified-work alias (civil code, criminal code, the
// constitution, ...) and returns its stem entry.
func CodeAlias(actType string) (CodeStem, bool) {
	key := strings.ToLower(strings.TrimSpace(actType))
	v, ok := codiciURN[key]
	return v, ok
}

// ordinalsToArabic is the closed mapping from Italian ordinal words to
// 1..50, grounded verbatim on NEWVERSION/utils/ordinals.py's
// ORDINALI_TO_ARABIC table (Libro primo, Titolo secondo, ...).
var ordinalsToArabic = map[string]int{
	"primo": 1, "secondo": 2, "terzo": 3, "quarto": 4, "quinto": 5,
	"sesto": 6, "settimo": 7, "ottavo": 8, "nono": 9, "decimo": 10,
	"undicesimo": 11, "dodicesimo": 12, "tredicesimo": 13, "quattordicesimo": 14,
	"quindicesimo": 15, "sedicesimo": 16, "diciassettesimo": 17, "diciottesimo": 18,
	"diciannovesimo": 19, "ventesimo": 20, "ventunesimo": 21, "ventiduesimo": 22,
	"ventitreesimo": 23, "ventiquattresimo": 24, "venticinquesimo": 25, "ventiseiesimo": 26,
	"ventisettesimo": 27, "ventottesimo": 28, "ventinovesimo": 29, "trentesimo": 30,
	"trentunesimo": 31, "trentaduesimo": 32, "trentatreesimo": 33, "trentaquattresimo": 34,
	"trentacinquesimo": 35, "trentaseiesimo": 36, "trentasettesimo": 37, "trentottesimo": 38,
	"trentanovesimo": 39, "quarantesimo": 40, "quarantunesimo": 41, "quarantaduesimo": 42,
	"quarantatreesimo": 43, "quarantaquattresimo": 44, "quarantacinquesimo": 45,
	"quarantaseiesimo": 46, "quarantasettesimo": 47, "quarantottesimo": 48,
	"quarantanovesimo": 49, "cinquantesimo": 50,
}

// romanValues backs RomanToArabic.
var romanValues = map[byte]int{'I': 1, 'V': 5, 'X': 10, 'L': 50, 'C': 100, 'D': 500, 'M': 1000}

// RomanOrOrdinalPattern places ordinals before the Roman-numeral pattern so
// that e.g. "ventesimo" never partially matches the leading "V" of the
// Roman alternative (spec §4.1 note on regex ordering).
var RomanOrOrdinalPattern = buildPattern()

func buildPattern() *regexp.Regexp {
	words := make([]string, 0, len(ordinalsToArabic))
	for w := range ordinalsToArabic {
		words = append(words, regexp.QuoteMeta(w))
	}
	// Longest-first within the ordinal alternation avoids a short ordinal
	// word shadowing a longer one that shares a prefix.
	for i := 0; i < len(words); i++ {
		for j := i + 1; j < len(words); j++ {
			if len(words[j]) > len(words[i]) {
				words[i], words[j] = words[j], words[i]
			}
		}
	}
	pattern := "(?i)(?:" + strings.Join(words, "|") + "|[IVXLCDM]+)"
	return regexp.MustCompile(pattern)
}

// ToArabic converts an Italian ordinal word or a Roman numeral to an int.
// Returns (0, false) if word is neither.
func ToArabic(word string) (int, bool) {
	lower := strings.ToLower(strings.TrimSpace(word))
	if n, ok := ordinalsToArabic[lower]; ok {
		return n, true
	}
	if n, ok := RomanToArabic(word); ok {
		return n, true
	}
	return 0, false
}

// RomanToArabic converts a Roman numeral to an int. Returns (0, false) if
// roman contains characters outside I V X L C D M.
func RomanToArabic(roman string) (int, bool) {
	upper := strings.ToUpper(strings.TrimSpace(roman))
	if upper == "" {
		return 0, false
	}
	total, prev := 0, 0
	for i := len(upper) - 1; i >= 0; i-- {
		v, ok := romanValues[upper[i]]
		if !ok {
			return 0, false
		}
		if v < prev {
			total -= v
		} else {
			total += v
		}
		prev = v
	}
	return total, true
}

// extensionNumerals is the closed mapping from Latin act-extension suffixes
// to integers 2..49, used when an article number like "2-bis" needs its
// ordinal position (spec §4.1 "Act extension numerals").
var extensionNumerals = map[string]int{
	"bis": 2, "ter": 3, "quater": 4, "quinquies": 5, "sexies": 6,
	"septies": 7, "octies": 8, "novies": 9, "decies": 10,
	"undecies": 11, "duodecies": 12, "terdecies": 13, "quaterdecies": 14,
	"quinquiesdecies": 15, "sexiesdecies": 16, "septiesdecies": 17,
	"duodevicies": 18, "undevicies": 19, "vicies": 20,
	"vicies semel": 21, "vicies bis": 22, "vicies ter": 23, "vicies quater": 24,
	"vicies quinquies": 25, "vicies sexies": 26, "vicies septies": 27,
	"duodetricies": 28, "undetricies": 29, "tricies": 30,
	"tricies semel": 31, "tricies bis": 32, "tricies ter": 33, "tricies quater": 34,
	"tricies quinquies": 35, "tricies sexies": 36, "tricies septies": 37,
	"duodequadragies": 38, "undequadragies": 39, "quadragies": 40,
	"quadragies semel": 41, "quadragies bis": 42, "quadragies ter": 43,
	"quadragies quater": 44, "quadragies quinquies": 45, "quadragies sexies": 46,
	"quadragies septies": 47, "duodequinquagies": 48, "undequinquagies": 49,
}

// ExtensionOrdinal returns the numeric ordinal of a Latin article-extension
// suffix (e.g. "bis" -> 2), or (0, false) if unrecognized.
func ExtensionOrdinal(suffix string) (int, bool) {
	n, ok := extensionNumerals[strings.ToLower(strings.TrimSpace(suffix))]
	return n, ok
}
