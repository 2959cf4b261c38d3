// Package model holds the data types shared across extractors,
// aggregator, and tree — spec §3's DATA MODEL given Go shape.
package model

// Source tags a ResolvedArticleText's origin.
type Source string

const (
	SourceNormattiva Source = "normattiva"
	SourceEURLex     Source = "eurlex"
	SourceBrocardi   Source = "brocardi"
)

// ResolvedArticleText is spec §3's ResolvedArticleText.
type ResolvedArticleText struct {
	Text    string            `json:"text"`
	URN     string            `json:"urn"`
	LinkMap map[string]string `json:"link_map,omitempty"`
	Source  Source            `json:"source"`
}

// TreeEntry is one element of a TreeNode's flat, ordered sequence: either a
// section header (Header non-empty, Number empty) or an article
// record.
type TreeEntry struct {
	Header  string `json:"header,omitempty"`
	Number  string `json:"number,omitempty"`
	Annex   *int   `json:"annex"` // nil == main body (dispositivo)
	URL     string `json:"url,omitempty"`
}

// AnnexMetadata describes one attachment in a tree's metadata record.
type AnnexMetadata struct {
	Label           string   `json:"label"`
	ArticleCount    int      `json:"article_count"`
	ArticleNumbers  []string `json:"article_numbers"`
}

// TreeResult is C10's full output.
type TreeResult struct {
	Entries  []TreeEntry              `json:"entries"`
	Count    int                      `json:"count"`
	Metadata map[string]*AnnexMetadata `json:"metadata,omitempty"`
}

// AmendmentKind is the normalized verbal form C9's regex family recognizes.
type AmendmentKind string

const (
	KindModifica     AmendmentKind = "modifica"
	KindAbrogazione  AmendmentKind = "abrogazione"
	KindIntroduzione AmendmentKind = "introduzione"
	KindSostituzione AmendmentKind = "sostituzione"
)

// AmendmentRecord is one row of an amendment history list, spec §3's data
// model / §4.9/§4.6.
type AmendmentRecord struct {
	ModifyingActURN   string        `json:"modifying_act_urn"`
	ModifyingActLabel string        `json:"modifying_act_label"` // e.g. "LEGGE 15 maggio 1997, n. 127"
	Disposition       string        `json:"disposition,omitempty"` // the modifying act's own art./comma, e.g. "art. 17"
	EffectiveDate     string        `json:"effective_date"`         // YYYY-MM-DD
	GazetteDate       string        `json:"gazette_date,omitempty"`
	Kind              AmendmentKind `json:"kind"`
	Article           string        `json:"article"`
	Comma             string        `json:"comma,omitempty"`
	Lettera           string        `json:"lettera,omitempty"`
	Note              string        `json:"note,omitempty"`
}

// EnrichmentResult is C8's output, spec §4.8 — every field optional since
// not all acts are covered and each sub-section fails independently.
type EnrichmentResult struct {
	Position              string             `json:"position,omitempty"`
	Brocardi               []string           `json:"brocardi,omitempty"`
	Ratio                  string             `json:"ratio,omitempty"`
	Spiegazione             string             `json:"spiegazione,omitempty"`
	Massime                 []Massima          `json:"massime,omitempty"`
	RelazioneCostituzione  string             `json:"relazione_costituzione,omitempty"`
	Relazioni               []Relazione        `json:"relazioni,omitempty"`
	Footnotes               []Footnote         `json:"footnotes,omitempty"`
	RelatedArticles         []RelatedArticle   `json:"related_articles,omitempty"`
	CrossReferences         []CrossReference   `json:"cross_references,omitempty"`
}

// Massima is one parsed judicial maxim record.
type Massima struct {
	Authority string `json:"authority"`
	Number    string `json:"number"`
	Year      string `json:"year"`
	Text      string `json:"text"`
}

// Relazione is one Guardasigilli relazione section (civil code only).
type Relazione struct {
	Title          string   `json:"title"`
	Text           string   `json:"text"`
	CitedArticles  []string `json:"cited_articles,omitempty"`
}

// Footnote is one deduplicated footnote.
type Footnote struct {
	Number int    `json:"number"`
	Text   string `json:"text"`
}

// RelatedArticle is a "precedente"/"successivo" link.
type RelatedArticle struct {
	Number string `json:"number"`
	URL    string `json:"url"`
	Title  string `json:"title"`
}

// CrossReference is an in-text anchor to another article.
type CrossReference struct {
	URL     string `json:"url"`
	ActType string `json:"act_type"`
}

// StreamItem is one ndjson object C11 emits, spec §4.11's "Streaming
// contract". Exactly one of (ArticleText set) or (Error set) is non-zero.
type StreamItem struct {
	ArticleText  string             `json:"article_text,omitempty"`
	NormaData    string             `json:"norma_data"`
	URL          string             `json:"url,omitempty"`
	BrocardiInfo *EnrichmentResult  `json:"brocardi_info,omitempty"`
	Error        string             `json:"error,omitempty"`
}
