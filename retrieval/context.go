package retrieval

import (
	"fmt"
	"path"
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/pkoukk/tiktoken-go"

	"github.com/agrisense/agriquery/common/logger"
	"github.com/agrisense/agriquery/fusion"
)

const contextSeparator = "\n\n---\n\n"

// TokenCounter measures prompt size.
type TokenCounter interface {
	Count(text string) int
}

type tiktokenCounter struct {
	enc *tiktoken.Tiktoken
}

func (t tiktokenCounter) Count(text string) int { return len(t.enc.Encode(text, nil, nil)) }

// approxCounter assumes four bytes per token.
type approxCounter struct{}

func (approxCounter) Count(text string) int { return (len(text) + 3) / 4 }

// NewTokenCounter loads a tiktoken encoding. When the encoding cannot be
// loaded it counts four bytes per token.
func NewTokenCounter(encoding string) TokenCounter {
	if encoding == "" {
		encoding = "cl100k_base"
	}
	enc, err := tiktoken.GetEncoding(encoding)
	if err != nil {
		logger.Warnf("retrieval: tiktoken encoding %s unavailable, approximating token counts: %v", encoding, err)
		return approxCounter{}
	}
	return tiktokenCounter{enc: enc}
}

// buildContext numbers each chunk with its source and stops adding chunks
// once maxTokens would be exceeded. The first chunk is always kept. It
// returns the context and the number of chunks used.
func buildContext(chunks []fusion.Result, counter TokenCounter, maxTokens int) (string, int) {
	var parts []string
	used := 0
	for i, c := range chunks {
		part := fmt.Sprintf("[Nguồn %d] (%s)\n%s", i+1, sourceLabel(c.Source, c.Page), c.Content)
		n := counter.Count(part)
		if i > 0 {
			n += counter.Count(contextSeparator)
		}
		if maxTokens > 0 && i > 0 && used+n > maxTokens {
			logger.Debugf("retrieval: context budget %d reached after %d chunks", maxTokens, i)
			break
		}
		used += n
		parts = append(parts, part)
	}
	return strings.Join(parts, contextSeparator), len(parts)
}

func sourceLabel(source string, page int) string {
	if source == "" {
		source = "Unknown"
	}
	if page > 0 {
		return fmt.Sprintf("%s, trang %d", source, page)
	}
	return source
}

var docExt = regexp.MustCompile(`(?i)\.(txt|pdf|docx?|md)$`)

// PrettySourceName turns a file name into a display title:
// "so_tay-lua.pdf" becomes "So Tay Lua".
func PrettySourceName(name string) string {
	if name == "" || name == "Unknown" {
		return "Tài liệu không xác định"
	}
	name = docExt.ReplaceAllString(path.Base(name), "")
	name = strings.NewReplacer("_", " ", "-", " ").Replace(name)
	words := strings.Fields(name)
	for i, w := range words {
		r, size := utf8.DecodeRuneInString(w)
		words[i] = string(unicode.ToUpper(r)) + strings.ToLower(w[size:])
	}
	return strings.Join(words, " ")
}
