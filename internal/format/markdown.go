package format

import (
	"regexp"
	"strings"
	"unicode/utf16"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

// ParseResult contains plain text and message entities
type ParseResult struct {
	Text     string
	Entities []tgbotapi.MessageEntity
}

// UTF16Len returns the length of s in UTF-16 code units, the unit Telegram
// uses for entity offsets and lengths.
func UTF16Len(s string) int {
	n := 0
	for _, r := range s {
		if l := utf16.RuneLen(r); l > 0 {
			n += l
		} else {
			n++
		}
	}
	return n
}

var spanRe = regexp.MustCompile("\\*\\*(.+?)\\*\\*|`([^`\n]+)`")

// ParseMarkdown turns **bold** and `code` spans into Telegram message
// entities and strips their markers. Other text passes through unchanged.
func ParseMarkdown(text string) ParseResult {
	var (
		b        strings.Builder
		entities []tgbotapi.MessageEntity
		offset   int
		last     int
	)

	for _, m := range spanRe.FindAllStringSubmatchIndex(text, -1) {
		plain := text[last:m[0]]
		b.WriteString(plain)
		offset += UTF16Len(plain)

		entityType, inner := "bold", ""
		if m[2] != -1 {
			inner = text[m[2]:m[3]]
		} else {
			entityType, inner = "code", text[m[4]:m[5]]
		}
		length := UTF16Len(inner)
		entities = append(entities, tgbotapi.MessageEntity{Type: entityType, Offset: offset, Length: length})

		b.WriteString(inner)
		offset += length
		last = m[1]
	}
	b.WriteString(text[last:])

	return ParseResult{
		Text:     strings.TrimRight(b.String(), " \n"),
		Entities: entities,
	}
}
