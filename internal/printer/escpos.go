package printer

import (
	"bytes"
	"strings"

	"golang.org/x/text/encoding/charmap"

	"agendaprint/internal/compose"
)

const (
	esc = 0x1b
	gs  = 0x1d
)

var (
	cmdInit         = []byte{esc, '@'}
	cmdCodePage437  = []byte{esc, 't', 0}
	cmdBoldOn       = []byte{esc, 'E', 1}
	cmdBoldOff      = []byte{esc, 'E', 0}
	cmdFontB        = []byte{esc, 'M', 1}
	cmdFontA        = []byte{esc, 'M', 0}
	cmdDoubleSize   = []byte{gs, '!', 0x11}
	cmdNormalSize   = []byte{gs, '!', 0x00}
	cmdAlignCenter  = []byte{esc, 'a', 1}
	cmdAlignLeft    = []byte{esc, 'a', 0}
	cmdPartialCut   = []byte{gs, 'V', 66, 0}
)

// Encode renders blocks as ESC/POS bytes. Title lines are centered in
// double size bold, Emphasis is bold and Muted uses the condensed font.
// Rules use their own width, falling back to width.
func Encode(blocks []compose.Block, width int) []byte {
	var buf bytes.Buffer
	buf.Write(cmdInit)
	buf.Write(cmdCodePage437)
	for _, b := range blocks {
		switch b.Kind {
		case compose.KindText:
			writeStyled(&buf, b.Style, b.Text)
		case compose.KindRule:
			buf.WriteString(strings.Repeat("-", b.RuleWidth(width)))
			buf.WriteByte('\n')
		case compose.KindFeed:
			writeFeed(&buf, b.Lines)
		case compose.KindCut:
			buf.Write(cmdPartialCut)
		}
	}
	return buf.Bytes()
}

func writeStyled(buf *bytes.Buffer, style compose.Style, text string) {
	switch style {
	case compose.StyleTitle:
		buf.Write(cmdAlignCenter)
		buf.Write(cmdDoubleSize)
		buf.Write(cmdBoldOn)
		buf.Write(encodeText(text))
		buf.Write(cmdBoldOff)
		buf.Write(cmdNormalSize)
		buf.WriteByte('\n')
		buf.Write(cmdAlignLeft)
		return
	case compose.StyleEmphasis:
		buf.Write(cmdBoldOn)
		buf.Write(encodeText(text))
		buf.Write(cmdBoldOff)
	case compose.StyleMuted:
		buf.Write(cmdFontB)
		buf.Write(encodeText(text))
		buf.Write(cmdFontA)
	default:
		buf.Write(encodeText(text))
	}
	buf.WriteByte('\n')
}

func writeFeed(buf *bytes.Buffer, lines int) {
	for lines > 0 {
		n := lines
		if n > 255 {
			n = 255
		}
		buf.Write([]byte{esc, 'd', byte(n)})
		lines -= n
	}
}

// encodeText maps text to code page 437. Control characters become spaces so
// titles cannot smuggle printer commands; runes outside the code page become
// '?'.
func encodeText(text string) []byte {
	out := make([]byte, 0, len(text))
	for _, r := range text {
		if r < 0x20 || r == 0x7f {
			out = append(out, ' ')
			continue
		}
		if r < 0x80 {
			out = append(out, byte(r))
			continue
		}
		if b, ok := charmap.CodePage437.EncodeRune(r); ok {
			out = append(out, b)
			continue
		}
		out = append(out, '?')
	}
	return out
}
