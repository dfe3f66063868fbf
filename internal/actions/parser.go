package actions

import (
	"regexp"
	"strings"
	"time"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

var (
	openMarker  = regexp.MustCompile(`(?i)\[(CREAR_TURNO|CANCELAR_TURNO)\]`)
	closeMarker = map[string]*regexp.Regexp{
		"CREAR_TURNO":    regexp.MustCompile(`(?i)\[/CREAR_TURNO\]`),
		"CANCELAR_TURNO": regexp.MustCompile(`(?i)\[/CANCELAR_TURNO\]`),
	}
	blankLines  = regexp.MustCompile(`\n{3,}`)
	validKey    = regexp.MustCompile(`^[A-Z][A-Z0-9_]*$`)
	bulletChars = "-*•· \t"
)

// keyAliases folds the spellings the model tends to drift to onto the
// canonical keys.
var keyAliases = map[string]string{
	"ID":            KeyAppointmentID,
	"TURNO":         KeyAppointmentID,
	"ID_TURNO":      KeyAppointmentID,
	"CORREO":        KeyEmail,
	"MAIL":          KeyEmail,
	"FECHA_Y_HORA":  KeySchedule,
	"FECHA_HORA":    KeySchedule,
	"MOTIVO_CANCEL": KeyReason,
}

// Extractor parses control blocks out of assistant replies.
type Extractor struct {
	loc *time.Location
}

// NewExtractor returns an extractor that interprets HORARIO in loc.
func NewExtractor(loc *time.Location) *Extractor {
	if loc == nil {
		loc = time.UTC
	}
	return &Extractor{loc: loc}
}

// Extract returns the visible text and the typed action found in text.
// Missing required fields or a malformed HORARIO yield NoAction; the block is
// still stripped from the visible text. An opening marker without its closing
// marker hides everything from the marker on.
func (e *Extractor) Extract(text string) Result {
	block, ok := ParseBlock(text)
	if !ok {
		if cut, dangling := cutDangling(text); dangling {
			return Result{Visible: tidy(cut), Action: NoAction{}}
		}
		return Result{Visible: text, Action: NoAction{}}
	}
	return Result{
		Visible: StripBlocks(text),
		Action:  e.toAction(block),
		Block:   &block,
	}
}

func (e *Extractor) toAction(b Block) Action {
	get := func(key string) string { return b.Fields[strings.ToLower(key)] }

	switch b.Kind {
	case KindCreate:
		name, schedule, desc := get(KeyName), get(KeySchedule), get(KeyDescription)
		if name == "" || schedule == "" || desc == "" {
			return NoAction{}
		}
		at, err := time.ParseInLocation(DateTimeLayout, schedule, e.loc)
		if err != nil {
			return NoAction{}
		}
		return CreateAppointment{
			Name:           name,
			Email:          get(KeyEmail),
			ScheduledAt:    at,
			RawScheduledAt: schedule,
			Description:    desc,
		}
	case KindCancel:
		id, reason := get(KeyAppointmentID), get(KeyReason)
		if id == "" || reason == "" {
			return NoAction{}
		}
		return CancelAppointment{AppointmentID: id, Reason: reason}
	}
	return NoAction{}
}

// ParseBlock finds the first complete control block in text and parses its
// body. The second return is false when no complete block exists.
func ParseBlock(text string) (Block, bool) {
	kind, body, _, _, ok := firstBlock(text)
	if !ok {
		return Block{}, false
	}
	return Block{Kind: kind, Fields: parseFields(body)}, true
}

// StripBlocks removes every complete control block from text, then drops
// the tail starting at any opening marker left unclosed.
func StripBlocks(text string) string {
	out := text
	for {
		_, _, start, end, ok := firstBlock(out)
		if !ok {
			break
		}
		out = out[:start] + out[end:]
	}
	out, _ = cutDangling(out)
	return tidy(out)
}

// cutDangling truncates text at its first opening marker. Callers run it
// after complete blocks are gone, so any marker left is unclosed and its
// block runs to the end of the reply.
func cutDangling(text string) (string, bool) {
	loc := openMarker.FindStringIndex(text)
	if loc == nil {
		return text, false
	}
	return text[:loc[0]], true
}

func tidy(text string) string {
	return strings.TrimSpace(blankLines.ReplaceAllString(text, "\n\n"))
}

// firstBlock locates the earliest opening marker that has a matching closing
// marker. start/end delimit the whole block including markers.
func firstBlock(text string) (kind Kind, body string, start, end int, ok bool) {
	offset := 0
	for offset < len(text) {
		loc := openMarker.FindStringSubmatchIndex(text[offset:])
		if loc == nil {
			return "", "", 0, 0, false
		}
		name := strings.ToUpper(text[offset+loc[2] : offset+loc[3]])
		openEnd := offset + loc[1]
		if c := closeMarker[name].FindStringIndex(text[openEnd:]); c != nil {
			return Kind(strings.ToLower(name)), text[openEnd : openEnd+c[0]], offset + loc[0], openEnd + c[1], true
		}
		offset = openEnd
	}
	return "", "", 0, 0, false
}

func parseFields(body string) map[string]string {
	fields := make(map[string]string)
	for _, line := range strings.Split(body, "\n") {
		line = strings.TrimLeft(strings.TrimSpace(line), bulletChars)
		rawKey, value, found := strings.Cut(line, ":")
		if !found {
			continue
		}
		key := NormalizeKey(rawKey)
		if !validKey.MatchString(key) {
			continue
		}
		if alias, ok := keyAliases[key]; ok {
			key = alias
		}
		value = strings.TrimSpace(value)
		if value == "" {
			continue
		}
		lower := strings.ToLower(key)
		if _, dup := fields[lower]; dup {
			continue
		}
		fields[lower] = value
	}
	return fields
}

// NormalizeKey upper-cases, strips accents and joins words with underscores,
// so "Descripción", "DESCRIPCION" and "descripcion" all compare equal.
func NormalizeKey(key string) string {
	folded, _, err := transform.String(transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC), key)
	if err != nil {
		folded = key
	}
	folded = strings.ToUpper(strings.TrimSpace(strings.Trim(folded, "*_ ")))
	return strings.Join(strings.Fields(folded), "_")
}
