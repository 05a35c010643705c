package extract

import (
	"bufio"
	"bytes"
	"context"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"io"
	"mime"
	"mime/multipart"
	"mime/quotedprintable"
	"net/mail"
	"os"
	"regexp"
	"strconv"
	"strings"
	"time"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
	"golang.org/x/text/encoding/htmlindex"

	"github.com/SakshamDixitSBH/docrag/internal/chunk"
	"github.com/SakshamDixitSBH/docrag/internal/errors"
	"github.com/SakshamDixitSBH/docrag/internal/store"
)

// EmailExtractor reads RFC 5322 messages from .eml files (one message) and
// .mbox files (many).
type EmailExtractor struct{}

// NewEmailExtractor creates an email extractor.
func NewEmailExtractor() *EmailExtractor {
	return &EmailExtractor{}
}

// Supports implements Extractor.
func (e *EmailExtractor) Supports(path string) bool {
	switch ext(path) {
	case ".eml", ".mbox":
		return true
	}
	return false
}

// Extract implements Extractor. In an mbox, messages that fail to parse
// are skipped unless none parse.
func (e *EmailExtractor) Extract(ctx context.Context, path string) ([]chunk.Segment, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.ExtractionError(path, err)
	}
	source := absolute(path)

	if ext(path) != ".mbox" {
		seg, err := parseMessage(bytes.NewReader(data), source)
		if err != nil {
			return nil, errors.ExtractionError(path, err)
		}
		return []chunk.Segment{seg}, nil
	}

	var (
		segs     []chunk.Segment
		firstErr error
	)
	msgs, err := splitMbox(data)
	if err != nil {
		return nil, errors.ExtractionError(path, err)
	}
	for i, raw := range msgs {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		seg, err := parseMessage(bytes.NewReader(raw), source)
		if err != nil {
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		seg.Metadata[store.MetaMessageIndex] = strconv.Itoa(i + 1)
		segs = append(segs, seg)
	}
	if len(segs) == 0 && firstErr != nil {
		return nil, errors.ExtractionError(path, firstErr)
	}
	return segs, nil
}

// splitMbox splits an mboxrd/mboxo file on "From " separator lines and
// unescapes ">From " quoting in bodies.
func splitMbox(data []byte) ([][]byte, error) {
	var (
		msgs    [][]byte
		current bytes.Buffer
		started bool
	)
	flush := func() {
		if started && len(bytes.TrimSpace(current.Bytes())) > 0 {
			msgs = append(msgs, bytes.Clone(current.Bytes()))
		}
		current.Reset()
	}

	scanner := bufio.NewScanner(bytes.NewReader(data))
	scanner.Buffer(make([]byte, 64*1024), 16*1024*1024)
	for scanner.Scan() {
		line := scanner.Bytes()
		if bytes.HasPrefix(line, []byte("From ")) {
			flush()
			started = true
			continue
		}
		if !started {
			// Tolerate files that start without a separator.
			started = true
		}
		if unquoted, ok := bytes.CutPrefix(line, []byte(">")); ok && bytes.HasPrefix(bytes.TrimLeft(unquoted, ">"), []byte("From ")) {
			line = unquoted
		}
		current.Write(line)
		current.WriteByte('\n')
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to split mbox: %w", err)
	}
	flush()
	return msgs, nil
}

var wordDecoder = &mime.WordDecoder{CharsetReader: charsetReader}

func charsetReader(charset string, input io.Reader) (io.Reader, error) {
	enc, err := htmlindex.Get(charset)
	if err != nil {
		return nil, fmt.Errorf("unsupported charset %q: %w", charset, err)
	}
	return enc.NewDecoder().Reader(input), nil
}

// decodeHeader decodes RFC 2047 encoded words, keeping the raw value
// when decoding fails.
func decodeHeader(h mail.Header, key string) string {
	raw := strings.TrimSpace(h.Get(key))
	if decoded, err := wordDecoder.DecodeHeader(raw); err == nil {
		return strings.TrimSpace(decoded)
	}
	return raw
}

// parseMessage reads one message into a segment whose text is the header
// block followed by the body.
func parseMessage(r io.Reader, source string) (chunk.Segment, error) {
	msg, err := mail.ReadMessage(r)
	if err != nil {
		return chunk.Segment{}, fmt.Errorf("failed to parse message: %w", err)
	}

	body, err := messageBody(msg.Header, msg.Body)
	if err != nil {
		return chunk.Segment{}, err
	}

	subject := decodeHeader(msg.Header, "Subject")
	from := decodeHeader(msg.Header, "From")
	to := decodeHeader(msg.Header, "To")
	cc := decodeHeader(msg.Header, "Cc")
	sentAt := strings.TrimSpace(msg.Header.Get("Date"))
	if t, err := msg.Header.Date(); err == nil {
		sentAt = t.UTC().Format(time.RFC3339)
	}
	messageID := strings.TrimSpace(msg.Header.Get("Message-Id"))

	var header []string
	for _, h := range [][2]string{
		{"Subject", subject},
		{"From", from},
		{"To", to},
		{"CC", cc},
		{"Date", sentAt},
	} {
		if h[1] != "" {
			header = append(header, h[0]+": "+h[1])
		}
	}
	text := strings.Join(header, "\n") + "\n\n" + body

	meta := store.Metadata{
		store.MetaSourceKind: string(store.KindEmail),
		store.MetaSource:     source,
		store.MetaMessageID:  messageID,
		store.MetaThreadID:   threadID(msg.Header, subject, messageID),
		store.MetaSubject:    subject,
		store.MetaFrom:       from,
		store.MetaTo:         to,
		store.MetaCC:         cc,
		store.MetaSentAt:     sentAt,
	}
	return chunk.Segment{Text: strings.TrimSpace(text), Metadata: meta}, nil
}

// threadIndexPrefix is the length of the conversation identifier at the
// start of a decoded Outlook Thread-Index.
const threadIndexPrefix = 22

var (
	msgIDPattern   = regexp.MustCompile(`<[^<>]+>`)
	replyPrefixRe  = regexp.MustCompile(`(?i)^\s*((re|fw|fwd|aw|wg)\s*(\[\d+\])?\s*:\s*)+`)
	whitespaceRuns = regexp.MustCompile(`\s+`)
)

// threadID picks a conversation identifier: the Outlook Thread-Index
// prefix, the root of References, In-Reply-To, Thread-Topic, then the
// normalized subject. A message with none of these is its own thread.
func threadID(h mail.Header, subject, messageID string) string {
	if idx := strings.TrimSpace(h.Get("Thread-Index")); idx != "" {
		if raw, err := base64.StdEncoding.DecodeString(idx); err == nil && len(raw) >= threadIndexPrefix {
			return hex.EncodeToString(raw[:threadIndexPrefix])
		}
		return idx
	}
	if root := msgIDPattern.FindString(h.Get("References")); root != "" {
		return root
	}
	if parent := msgIDPattern.FindString(h.Get("In-Reply-To")); parent != "" {
		return parent
	}
	if topic := decodeHeader(h, "Thread-Topic"); topic != "" {
		return NormalizeSubject(topic)
	}
	if s := NormalizeSubject(subject); s != "" {
		return s
	}
	return messageID
}

// NormalizeSubject strips reply and forward prefixes, collapses
// whitespace and lowercases.
func NormalizeSubject(subject string) string {
	s := replyPrefixRe.ReplaceAllString(subject, "")
	s = whitespaceRuns.ReplaceAllString(strings.TrimSpace(s), " ")
	return strings.ToLower(s)
}

// messageBody returns the first text/plain part, else the first
// text/html part with markup stripped.
func messageBody(h mail.Header, body io.Reader) (string, error) {
	mediaType, params := contentType(h.Get("Content-Type"))
	plain, htmlText, err := walkPart(mediaType, params, h.Get("Content-Transfer-Encoding"), body)
	if err != nil {
		return "", err
	}
	if strings.TrimSpace(plain) != "" {
		return strings.TrimSpace(plain), nil
	}
	return StripHTML(htmlText), nil
}

// contentType parses a Content-Type value. Missing or malformed values
// mean text/plain.
func contentType(value string) (string, map[string]string) {
	if strings.TrimSpace(value) == "" {
		return "text/plain", nil
	}
	mediaType, params, err := mime.ParseMediaType(value)
	if err != nil {
		return "text/plain", nil
	}
	return mediaType, params
}

func walkPart(mediaType string, params map[string]string, encoding string, body io.Reader) (plain, htmlText string, err error) {
	switch {
	case strings.HasPrefix(mediaType, "multipart/"):
		mr := multipart.NewReader(body, params["boundary"])
		for {
			part, err := mr.NextRawPart()
			if err == io.EOF {
				return plain, htmlText, nil
			}
			if err != nil {
				return plain, htmlText, fmt.Errorf("failed to read multipart body: %w", err)
			}
			if isAttachment(part.Header.Get("Content-Disposition")) {
				continue
			}
			mt, ps := contentType(part.Header.Get("Content-Type"))
			p, h, err := walkPart(mt, ps, part.Header.Get("Content-Transfer-Encoding"), part)
			if err != nil {
				return plain, htmlText, err
			}
			if htmlText == "" {
				htmlText = h
			}
			if strings.TrimSpace(p) != "" {
				return p, htmlText, nil
			}
		}
	case mediaType == "text/plain":
		text, err := decodeText(body, encoding, params["charset"])
		return text, "", err
	case mediaType == "text/html":
		text, err := decodeText(body, encoding, params["charset"])
		return "", text, err
	case mediaType == "message/rfc822":
		inner, err := mail.ReadMessage(body)
		if err != nil {
			return "", "", nil
		}
		mt, ps := contentType(inner.Header.Get("Content-Type"))
		return walkPart(mt, ps, inner.Header.Get("Content-Transfer-Encoding"), inner.Body)
	}
	return "", "", nil
}

func isAttachment(disposition string) bool {
	d, _, err := mime.ParseMediaType(disposition)
	return err == nil && d == "attachment"
}

// decodeText undoes the transfer encoding and converts the charset to
// UTF-8. Unknown charsets are passed through as is.
func decodeText(r io.Reader, transferEncoding, charset string) (string, error) {
	switch strings.ToLower(strings.TrimSpace(transferEncoding)) {
	case "quoted-printable":
		r = quotedprintable.NewReader(r)
	case "base64":
		r = base64.NewDecoder(base64.StdEncoding, r)
	}
	switch strings.ToLower(strings.TrimSpace(charset)) {
	case "", "utf-8", "utf8", "us-ascii":
	default:
		if decoded, err := charsetReader(charset, r); err == nil {
			r = decoded
		}
	}
	data, err := io.ReadAll(r)
	if err != nil {
		return "", fmt.Errorf("failed to decode body: %w", err)
	}
	return string(data), nil
}

// htmlSkipped are elements whose content is never visible text.
var htmlSkipped = map[atom.Atom]bool{
	atom.Head:     true,
	atom.Title:    true,
	atom.Script:   true,
	atom.Style:    true,
	atom.Noscript: true,
	atom.Template: true,
}

// htmlLineEnds are elements whose end starts a new line.
var htmlLineEnds = map[atom.Atom]bool{
	atom.P: true, atom.Div: true, atom.Li: true, atom.Tr: true,
	atom.H1: true, atom.H2: true, atom.H3: true, atom.H4: true, atom.H5: true, atom.H6: true,
}

var blankLines = regexp.MustCompile(`\n[ \t]*\n(\s*\n)+`)

// StripHTML reduces an HTML body to its visible text. Comments and the
// content of head, script and style elements are dropped; block ends and
// <br> become line breaks.
func StripHTML(s string) string {
	var (
		b    strings.Builder
		skip int
	)
	z := html.NewTokenizer(strings.NewReader(s))
	for {
		switch z.Next() {
		case html.ErrorToken:
			out := strings.ReplaceAll(b.String(), "\u00a0", " ")
			out = blankLines.ReplaceAllString(out, "\n\n")
			return strings.TrimSpace(out)
		case html.TextToken:
			if skip == 0 {
				b.Write(z.Text())
			}
		case html.StartTagToken:
			tok := z.Token()
			switch {
			case htmlSkipped[tok.DataAtom]:
				skip++
			case tok.DataAtom == atom.Br && skip == 0:
				b.WriteByte('\n')
			}
		case html.SelfClosingTagToken:
			if tok := z.Token(); tok.DataAtom == atom.Br && skip == 0 {
				b.WriteByte('\n')
			}
		case html.EndTagToken:
			tok := z.Token()
			switch {
			case htmlSkipped[tok.DataAtom]:
				if skip > 0 {
					skip--
				}
			case htmlLineEnds[tok.DataAtom] && skip == 0:
				b.WriteByte('\n')
			}
		}
	}
}
