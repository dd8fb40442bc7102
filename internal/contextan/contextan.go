// Package contextan extracts document-structure and proximity-marker
// features around a candidate span, for the confidence scorer's
// contextual rules to consume. It is a pure function over (text,
// position): no state, no I/O.
//
// Grounded on the regex-classification and windowed-snippet style of
// internal/guardrail (defaultHarmfulPatterns, extractMatch) and
// internal/auditor/evasion.go in the source repo, generalized from
// harmful-content scanning to document-structure and marker detection.
package contextan

import (
	"regexp"
	"strings"
	"unicode"

	"github.com/vura/sentinel/pkg/piitypes"
)

// MaxWindow bounds the amount of text sampled around a position, per the
// spec's DoS-resistance requirement on context-feature extraction.
const MaxWindow = 2048

// markerRadius is the ±N code-point window searched for proximity
// markers, per spec §4.B.
const markerRadius = 80

// entropyRadius is the ±N code-point window searched for a long hex/
// base64 run or a high-entropy character-set ratio.
const entropyRadius = 40

// repetitionRadius is the ±N code-point window used for the token-
// repetition heuristic.
const repetitionRadius = 60

var (
	jsonLikeRe   = regexp.MustCompile(`[{\[]\s*"[^"]+"\s*:`)
	xmlTagRe     = regexp.MustCompile(`<\s*/?\s*[a-zA-Z][\w:-]*[^>]*>`)
	codeFenceRe  = regexp.MustCompile("```")
	templateRe   = regexp.MustCompile(`\{\{[^{}]*\}\}|\$\{[^{}]*\}|\{[a-zA-Z_][\w.]*\}`)
	logTimestamp = regexp.MustCompile(`\b\d{4}-\d{2}-\d{2}[T ]\d{2}:\d{2}:\d{2}`)
	logLevel     = regexp.MustCompile(`(?i)\b(DEBUG|INFO|WARN|WARNING|ERROR|FATAL|TRACE)\b`)
	markdownHead = regexp.MustCompile(`(?m)^#{1,6}\s+\S`)
	hexOrB64Run  = regexp.MustCompile(`[A-Za-z0-9+/_=-]{32,}`)
	headerRowRe  = regexp.MustCompile(`(?m)^[^,\t;|\n]+[,\t;|][^,\t;|\n]+([,\t;|][^,\t;|\n]+)*$`)
)

type markerCategory struct {
	field MarkerField
	en    []string
	ja    []string
}

// MarkerField names which MarkerFeatures boolean a matched vocabulary term sets.
type MarkerField string

const (
	FieldExample   MarkerField = "example"
	FieldTest      MarkerField = "test"
	FieldSample    MarkerField = "sample"
	FieldDummy     MarkerField = "dummy"
	FieldPlacehold MarkerField = "placeholder"
	FieldDate      MarkerField = "date"
	FieldCurrency  MarkerField = "currency"
	FieldAddress   MarkerField = "address"
	FieldPhone     MarkerField = "phone"
	FieldName      MarkerField = "name"
)

var markerVocab = []markerCategory{
	{FieldExample, []string{"example", "e.g.", "eg:", "for instance"}, []string{"例", "例えば"}},
	{FieldTest, []string{"test", "testing", "unit test"}, []string{"テスト", "試験"}},
	{FieldSample, []string{"sample", "demo", "showcase"}, []string{"サンプル", "見本"}},
	{FieldDummy, []string{"dummy", "fake", "placeholder data"}, []string{"ダミー", "偽"}},
	{FieldPlacehold, []string{"placeholder", "xxx", "<insert", "tbd", "todo"}, []string{"プレースホルダー", "未定"}},
	{FieldDate, []string{"yyyy-mm-dd", "dd/mm/yyyy", "date of birth placeholder"}, []string{"日付プレースホルダー"}},
	{FieldCurrency, []string{"$0.00", "currency placeholder", "amount here"}, []string{"金額プレースホルダー"}},
	{FieldAddress, []string{"123 main st", "address placeholder", "your address"}, []string{"住所プレースホルダー"}},
	{FieldPhone, []string{"555-0100", "phone placeholder", "xxx-xxx-xxxx"}, []string{"電話番号プレースホルダー"}},
	{FieldName, []string{"john doe", "jane doe", "full name here"}, []string{"氏名プレースホルダー", "名前プレースホルダー"}},
}

// Analyze samples up to MaxWindow code points around pos in text and
// classifies document structure and proximity markers.
func Analyze(text string, pos int) piitypes.ContextFeatures {
	runes := []rune(text)
	lo, hi := window(len(runes), pos, MaxWindow/2)
	sample := string(runes[lo:hi])

	structure := analyzeStructure(sample)
	markers := analyzeMarkers(runes, pos)
	lang := detectLanguage(sample)

	return piitypes.ContextFeatures{
		Structure:          structure,
		Markers:            markers,
		Language:           lang,
		HighEntropyNearby:  highEntropyNearby(runes, pos),
		RepetitionDetected: repetitionNearby(runes, pos),
	}
}

func window(total, pos, radius int) (int, int) {
	lo := pos - radius
	hi := pos + radius
	if lo < 0 {
		lo = 0
	}
	if hi > total {
		hi = total
	}
	if lo > hi {
		lo = hi
	}
	return lo, hi
}

func analyzeStructure(sample string) piitypes.StructureFeatures {
	jsonLike := jsonLikeRe.MatchString(sample)
	xmlLike := !jsonLike && isBalancedish(sample)
	csvLike := !jsonLike && !xmlLike && isCSVLike(sample)

	return piitypes.StructureFeatures{
		JSONLike:        jsonLike,
		XMLLike:         xmlLike,
		CSVLike:         csvLike,
		MarkdownLike:    markdownHead.MatchString(sample),
		CodeBlock:       isInCodeFence(sample),
		HeaderRow:       headerRowRe.MatchString(sample),
		TemplateSection: templateRe.MatchString(sample),
		LogLike:         logTimestamp.MatchString(sample) && logLevel.MatchString(sample),
	}
}

func isBalancedish(sample string) bool {
	tags := xmlTagRe.FindAllString(sample, -1)
	if len(tags) < 2 {
		return false
	}
	opens, closes := 0, 0
	for _, t := range tags {
		if strings.HasPrefix(t, "</") {
			closes++
		} else if !strings.HasSuffix(t, "/>") {
			opens++
		}
	}
	if opens == 0 {
		return false
	}
	diff := opens - closes
	if diff < 0 {
		diff = -diff
	}
	return diff <= 1
}

// isCSVLike checks the first up to 5 lines for a single delimiter
// appearing a consistent number of times, per spec §4.B.
func isCSVLike(sample string) bool {
	lines := strings.Split(sample, "\n")
	if len(lines) > 5 {
		lines = lines[:5]
	}
	delims := []rune{',', '\t', ';', '|'}
	for _, d := range delims {
		counts := make([]int, 0, len(lines))
		for _, l := range lines {
			if strings.TrimSpace(l) == "" {
				continue
			}
			counts = append(counts, strings.Count(l, string(d)))
		}
		if len(counts) < 2 {
			continue
		}
		if consistentCounts(counts) {
			return true
		}
	}
	return false
}

func consistentCounts(counts []int) bool {
	if counts[0] == 0 {
		return false
	}
	min, max := counts[0], counts[0]
	for _, c := range counts[1:] {
		if c < min {
			min = c
		}
		if c > max {
			max = c
		}
	}
	return max-min <= 1 && min > 0
}

func isInCodeFence(sample string) bool {
	return strings.Count(sample, "```")%2 == 1
}

// analyzeMarkers searches a ±80 code-point window, with a same-line
// lookup taking priority, for the bilingual marker vocabularies.
func analyzeMarkers(runes []rune, pos int) piitypes.MarkerFeatures {
	lo, hi := window(len(runes), pos, markerRadius)
	lowerWindow := strings.ToLower(string(runes[lo:hi]))

	lineLo, lineHi := lineBounds(runes, pos)
	lineText := strings.ToLower(string(runes[lineLo:lineHi]))

	m := piitypes.MarkerFeatures{DistanceToNearestMarker: -1}
	bestDist := -1
	sawEN, sawJA := false, false

	setField := func(field MarkerField, dist int) {
		switch field {
		case FieldExample:
			m.ExampleNearby = true
		case FieldTest:
			m.TestNearby = true
		case FieldSample:
			m.SampleNearby = true
		case FieldDummy:
			m.DummyNearby = true
		case FieldPlacehold:
			m.PlaceholderNearby = true
		case FieldDate:
			m.DatePlaceholderNearby = true
		case FieldCurrency:
			m.CurrencyPlaceholderNearby = true
		case FieldAddress:
			m.AddressPlaceholderNearby = true
		case FieldPhone:
			m.PhonePlaceholderNearby = true
		case FieldName:
			m.NamePlaceholderNearby = true
		}
		if bestDist == -1 || dist < bestDist {
			bestDist = dist
		}
	}

	for _, cat := range markerVocab {
		for _, term := range cat.en {
			if strings.Contains(lineText, term) {
				setField(cat.field, 0)
				sawEN = true
				continue
			}
			if idx := strings.Index(lowerWindow, term); idx >= 0 {
				setField(cat.field, distanceFromPos(lo, pos, idx, len([]rune(term))))
				sawEN = true
			}
		}
		for _, term := range cat.ja {
			if strings.Contains(lineText, term) {
				setField(cat.field, 0)
				sawJA = true
				continue
			}
			if idx := strings.Index(lowerWindow, term); idx >= 0 {
				setField(cat.field, distanceFromPos(lo, pos, idx, len([]rune(term))))
				sawJA = true
			}
		}
	}

	m.DistanceToNearestMarker = bestDist
	switch {
	case sawEN && sawJA:
		m.MarkerLanguage = piitypes.LangMixed
	case sawJA:
		m.MarkerLanguage = piitypes.LangJA
	case sawEN:
		m.MarkerLanguage = piitypes.LangEN
	default:
		m.MarkerLanguage = piitypes.LangUnknown
	}

	return m
}

// distanceFromPos converts a byte index within the lowered window string
// back into an approximate code-point distance from pos. The window is
// ASCII-dominant for marker vocabulary matches, so byte and code-point
// offsets coincide closely enough for a proximity heuristic.
func distanceFromPos(windowLo, pos, byteIdx, termLen int) int {
	matchStart := windowLo + byteIdx
	d := pos - matchStart
	if d < 0 {
		d = matchStart - pos
	}
	if d < 0 {
		d = 0
	}
	return d
}

func lineBounds(runes []rune, pos int) (int, int) {
	lo := pos
	for lo > 0 && runes[lo-1] != '\n' {
		lo--
	}
	hi := pos
	for hi < len(runes) && runes[hi] != '\n' {
		hi++
	}
	return lo, hi
}

func detectLanguage(sample string) piitypes.MarkerLanguage {
	sawJA, sawASCIILetters := false, false
	for _, r := range sample {
		if isJapanese(r) {
			sawJA = true
		} else if r < 128 && unicode.IsLetter(r) {
			sawASCIILetters = true
		}
	}
	switch {
	case sawJA && sawASCIILetters:
		return piitypes.LangMixed
	case sawJA:
		return piitypes.LangJA
	case sawASCIILetters:
		return piitypes.LangEN
	default:
		return piitypes.LangUnknown
	}
}

func isJapanese(r rune) bool {
	return (r >= 0x3040 && r <= 0x30FF) || // hiragana + katakana
		(r >= 0x4E00 && r <= 0x9FFF) || // CJK unified ideographs
		(r >= 0xFF66 && r <= 0xFF9F) // half-width katakana
}

// highEntropyNearby reports a long hex/base64-looking run within
// entropyRadius, or a character-set ratio above 0.7 in that window.
func highEntropyNearby(runes []rune, pos int) bool {
	lo, hi := window(len(runes), pos, entropyRadius)
	sample := string(runes[lo:hi])
	if hexOrB64Run.MatchString(sample) {
		return true
	}
	return charSetRatio(sample) > 0.7
}

func charSetRatio(s string) float64 {
	trimmed := strings.TrimSpace(s)
	if len(trimmed) < 8 {
		return 0
	}
	seen := make(map[rune]struct{})
	count := 0
	for _, r := range trimmed {
		if unicode.IsSpace(r) {
			continue
		}
		seen[r] = struct{}{}
		count++
	}
	if count == 0 {
		return 0
	}
	return float64(len(seen)) / float64(count)
}

// repetitionNearby reports whether more than 40% of whitespace-delimited
// tokens in a ±60 code-point window are identical.
func repetitionNearby(runes []rune, pos int) bool {
	lo, hi := window(len(runes), pos, repetitionRadius)
	tokens := strings.Fields(string(runes[lo:hi]))
	if len(tokens) < 3 {
		return false
	}
	counts := make(map[string]int, len(tokens))
	for _, t := range tokens {
		counts[strings.ToLower(t)]++
	}
	max := 0
	for _, c := range counts {
		if c > max {
			max = c
		}
	}
	return float64(max)/float64(len(tokens)) > 0.4
}
