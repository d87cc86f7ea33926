package hls

import (
	"bufio"
	"io"
	"net/url"
	"strings"
	"time"

	"github.com/oe-mirrors/streamlink-27/pkg/media"
)

const maxLineLength = 1024 * 1024

type parser struct {
	base *url.URL
	pl   *Playlist

	lineNo int

	// state applied to the next URI line
	streamInf *StreamInfo
	extinf    *extinf
	byteRange *pendingRange
	discont   bool
	pdt       time.Time

	// state applied to all following segments
	key      *media.EncryptionKey
	initMap  *media.Segment
	lastMap  string
	nextPDT  time.Time
	offsets  map[string]int64 // running byte range end per uri
	sequence int64
}

type extinf struct {
	duration float64
	title    string
}

type pendingRange struct {
	length int64
	offset *int64
}

// ParseString parses playlist text, see Parse.
func ParseString(text string, base string) (*Playlist, error) {
	return Parse(strings.NewReader(text), base)
}

// Parse parses a multivariant or media playlist. Relative URIs are resolved
// against base. Unknown tags are ignored and invalid attribute values
// degrade to zero values; only a missing #EXTM3U header or an unreadable
// input fail the parse.
func Parse(r io.Reader, base string) (*Playlist, error) {
	baseURL, err := url.Parse(base)
	if err != nil {
		return nil, &media.MalformedManifestError{URL: base, Reason: "invalid base url", Err: err}
	}

	p := &parser{
		base:    baseURL,
		pl:      &Playlist{URL: base},
		offsets: map[string]int64{},
	}

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), maxLineLength)

	header := false
	for scanner.Scan() {
		p.lineNo++

		line := scanner.Text()
		if p.lineNo == 1 {
			line = strings.TrimPrefix(line, "\ufeff")
		}
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}

		if !header {
			if !strings.HasPrefix(line, "#EXTM3U") {
				return nil, &media.MalformedManifestError{
					URL:     base,
					Line:    p.lineNo,
					Element: truncate(line),
					Reason:  "missing #EXTM3U header",
				}
			}
			header = true
			continue
		}

		if strings.HasPrefix(line, "#") {
			p.parseTag(line)
			continue
		}

		p.parseURI(line)
	}

	if err := scanner.Err(); err != nil {
		return nil, &media.MalformedManifestError{URL: base, Line: p.lineNo + 1, Err: err}
	}

	if !header {
		return nil, &media.MalformedManifestError{URL: base, Reason: "empty playlist"}
	}

	p.pl.IsMaster = len(p.pl.Variants) > 0 || (len(p.pl.Segments) == 0 && (len(p.pl.IFrames) > 0 || len(p.pl.Renditions) > 0))
	p.associateRenditions()

	return p.pl, nil
}

func (p *parser) parseTag(line string) {
	if !strings.HasPrefix(line, "#EXT") {
		// comment
		return
	}

	name, value := line[1:], ""
	if i := strings.IndexByte(line, ':'); i >= 0 {
		name, value = line[1:i], line[i+1:]
	}

	switch name {
	case "EXT-X-VERSION":
		p.pl.Version = parseInt(value)
	case "EXT-X-STREAM-INF":
		info := parseStreamInfo(parseAttributes(value))
		p.streamInf = &info
	case "EXT-X-I-FRAME-STREAM-INF":
		attrs := parseAttributes(value)
		if uri, ok := attrs["URI"]; ok && uri != "" {
			p.pl.IFrames = append(p.pl.IFrames, VariantStream{
				URI:        p.resolve(uri),
				IFrame:     true,
				StreamInfo: parseStreamInfo(attrs),
			})
		}
	case "EXT-X-MEDIA":
		p.pl.Renditions = append(p.pl.Renditions, p.parseRendition(parseAttributes(value)))
	case "EXTINF":
		p.extinf = parseExtinf(value)
	case "EXT-X-BYTERANGE":
		if length, offset, ok := parseByteRange(value); ok {
			p.byteRange = &pendingRange{length: length, offset: offset}
		}
	case "EXT-X-TARGETDURATION":
		p.pl.TargetDuration = parseFloat(value)
	case "EXT-X-MEDIA-SEQUENCE":
		p.pl.MediaSequence = parseInt64(value)
		p.sequence = p.pl.MediaSequence
	case "EXT-X-ENDLIST":
		p.pl.EndList = true
	case "EXT-X-PLAYLIST-TYPE":
		p.pl.PlaylistType = strings.ToUpper(strings.TrimSpace(value))
	case "EXT-X-I-FRAMES-ONLY":
		p.pl.IFramesOnly = true
	case "EXT-X-DISCONTINUITY":
		p.discont = true
	case "EXT-X-PROGRAM-DATE-TIME":
		p.pdt = parseDate(value)
	case "EXT-X-KEY":
		p.key = p.parseKey(parseAttributes(value))
	case "EXT-X-MAP":
		p.parseMap(parseAttributes(value))
	case "EXT-X-DATERANGE":
		p.pl.DateRanges = append(p.pl.DateRanges, parseDateRange(parseAttributes(value)))
	}
}

func (p *parser) parseURI(line string) {
	uri := p.resolve(line)

	// multivariant entry
	if p.streamInf != nil {
		p.pl.Variants = append(p.pl.Variants, VariantStream{
			URI:        uri,
			StreamInfo: *p.streamInf,
		})
		p.streamInf = nil
		return
	}

	segment := media.Segment{
		Sequence:      p.sequence,
		URI:           uri,
		Discontinuity: p.discont,
		Key:           p.key,
	}

	if p.extinf != nil {
		segment.Duration = p.extinf.duration
		segment.Title = p.extinf.title
	}

	if p.byteRange != nil {
		offset := p.offsets[uri]
		if p.byteRange.offset != nil {
			offset = *p.byteRange.offset
		}
		segment.ByteRange = &media.ByteRange{Offset: offset, Length: p.byteRange.length}
		p.offsets[uri] = offset + p.byteRange.length
	}

	switch {
	case !p.pdt.IsZero():
		segment.ProgramDateTime = p.pdt
	case !p.nextPDT.IsZero():
		segment.ProgramDateTime = p.nextPDT
	}
	if !segment.ProgramDateTime.IsZero() {
		p.nextPDT = segment.ProgramDateTime.Add(segment.DurationTime())
	}

	// initialization section precedes the first segment using it
	if p.initMap != nil && p.initMap.URI+rangeKey(p.initMap.ByteRange) != p.lastMap {
		section := *p.initMap
		section.Sequence = p.sequence
		section.Key = p.key
		p.pl.Segments = append(p.pl.Segments, section)
		p.lastMap = p.initMap.URI + rangeKey(p.initMap.ByteRange)
	}

	p.pl.Segments = append(p.pl.Segments, segment)
	p.sequence++

	p.extinf = nil
	p.byteRange = nil
	p.discont = false
	p.pdt = time.Time{}
}

func (p *parser) resolve(ref string) string {
	ref = strings.TrimSpace(ref)
	u, err := url.Parse(ref)
	if err != nil {
		return ref
	}
	return p.base.ResolveReference(u).String()
}

func (p *parser) parseRendition(attrs map[string]string) Rendition {
	r := Rendition{
		Type:       strings.ToUpper(attrs["TYPE"]),
		GroupID:    attrs["GROUP-ID"],
		Language:   attrs["LANGUAGE"],
		Name:       attrs["NAME"],
		Default:    parseBool(attrs["DEFAULT"]),
		AutoSelect: parseBool(attrs["AUTOSELECT"]),
		Forced:     parseBool(attrs["FORCED"]),
	}
	if uri := attrs["URI"]; uri != "" {
		r.URI = p.resolve(uri)
	}
	return r
}

func (p *parser) parseKey(attrs map[string]string) *media.EncryptionKey {
	method := strings.ToUpper(attrs["METHOD"])
	if method == "" || method == media.MethodNone {
		return nil
	}

	key := &media.EncryptionKey{
		Method:    method,
		IV:        parseIV(attrs["IV"]),
		KeyFormat: attrs["KEYFORMAT"],
	}
	if uri := attrs["URI"]; uri != "" {
		key.URI = p.resolve(uri)
	}
	return key
}

func (p *parser) parseMap(attrs map[string]string) {
	uri := attrs["URI"]
	if uri == "" {
		return
	}

	section := &media.Segment{
		URI:  p.resolve(uri),
		Init: true,
	}
	if length, offset, ok := parseByteRange(attrs["BYTERANGE"]); ok {
		br := &media.ByteRange{Length: length}
		if offset != nil {
			br.Offset = *offset
		}
		section.ByteRange = br
	}
	p.initMap = section
}

// associateRenditions attaches renditions of referenced groups to variants.
func (p *parser) associateRenditions() {
	for i := range p.pl.Variants {
		v := &p.pl.Variants[i]
		for _, r := range p.pl.Renditions {
			switch {
			case r.Type == RenditionAudio && v.Audio != "" && r.GroupID == v.Audio,
				r.Type == RenditionVideo && v.Video != "" && r.GroupID == v.Video,
				r.Type == RenditionSubtitles && v.Subtitles != "" && r.GroupID == v.Subtitles:
				v.Media = append(v.Media, r)
			}
		}
	}
}

func parseStreamInfo(attrs map[string]string) StreamInfo {
	return StreamInfo{
		Bandwidth:        parseInt(attrs["BANDWIDTH"]),
		AverageBandwidth: parseInt(attrs["AVERAGE-BANDWIDTH"]),
		ProgramID:        attrs["PROGRAM-ID"],
		Codecs:           parseCodecs(attrs["CODECS"]),
		Resolution:       parseResolution(attrs["RESOLUTION"]),
		FrameRate:        parseFloat(attrs["FRAME-RATE"]),
		Audio:            attrs["AUDIO"],
		Video:            attrs["VIDEO"],
		Subtitles:        attrs["SUBTITLES"],
	}
}

func parseExtinf(value string) *extinf {
	duration, title := value, ""
	if i := strings.IndexByte(value, ','); i >= 0 {
		duration, title = value[:i], strings.TrimSpace(value[i+1:])
	}
	return &extinf{
		duration: parseFloat(duration),
		title:    title,
	}
}

func parseDateRange(attrs map[string]string) media.DateRange {
	return media.DateRange{
		ID:              attrs["ID"],
		Class:           attrs["CLASS"],
		StartDate:       parseDate(attrs["START-DATE"]),
		EndDate:         parseDate(attrs["END-DATE"]),
		Duration:        parseSeconds(attrs["DURATION"]),
		PlannedDuration: parseSeconds(attrs["PLANNED-DURATION"]),
		Attributes:      attrs,
	}
}

func rangeKey(br *media.ByteRange) string {
	if br == nil {
		return ""
	}
	return br.Header()
}

func truncate(s string) string {
	if len(s) > 64 {
		return s[:64] + "..."
	}
	return s
}
