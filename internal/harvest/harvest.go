// Package harvest collects email addresses from plain text, HTML pages and
// RFC 5322 messages. The development server's directory is filled from its
// output.
package harvest

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/jhillyerd/enmime"
	"golang.org/x/net/html"

	"github.com/wesm/mailsaver/internal/validate"
)

// Address is a harvested address. Name is the display name when the source
// carried one.
type Address struct {
	Address string
	Name    string
}

var addrRe = regexp.MustCompile(`[A-Za-z0-9._%+\-]+@[A-Za-z0-9\-]+(?:\.[A-Za-z0-9\-]+)*\.[A-Za-z]{2,}`)

// collector deduplicates addresses, keeping the first occurrence.
type collector struct {
	seen map[string]int
	out  []Address
}

func newCollector() *collector {
	return &collector{seen: make(map[string]int)}
}

func (c *collector) add(addr, name string) {
	norm, err := validate.Email("address", strings.Trim(addr, ".-"))
	if err != nil {
		return
	}
	key := strings.ToLower(norm)
	if i, ok := c.seen[key]; ok {
		if c.out[i].Name == "" {
			c.out[i].Name = name
		}
		return
	}
	c.seen[key] = len(c.out)
	c.out = append(c.out, Address{Address: norm, Name: strings.TrimSpace(name)})
}

func (c *collector) text(s string) {
	for _, m := range addrRe.FindAllString(s, -1) {
		c.add(m, "")
	}
}

// Text returns the addresses found in s.
func Text(s string) []Address {
	c := newCollector()
	c.text(s)
	return c.out
}

// HTML returns the addresses in an HTML document: mailto links first, with
// the link text as the name, then addresses in the visible text.
func HTML(r io.Reader) ([]Address, error) {
	c := newCollector()
	var visible strings.Builder
	var mailto string
	var linkText strings.Builder
	skip := 0

	z := html.NewTokenizer(r)
	for {
		switch z.Next() {
		case html.ErrorToken:
			if err := z.Err(); err != io.EOF {
				return nil, fmt.Errorf("parse html: %w", err)
			}
			c.text(visible.String())
			return c.out, nil
		case html.StartTagToken:
			name, hasAttr := z.TagName()
			switch string(name) {
			case "script", "style", "head":
				skip++
			case "a":
				for hasAttr {
					var key, val []byte
					key, val, hasAttr = z.TagAttr()
					if string(key) == "href" {
						if addr, ok := strings.CutPrefix(strings.TrimSpace(string(val)), "mailto:"); ok {
							addr, _, _ = strings.Cut(addr, "?")
							mailto = addr
							linkText.Reset()
						}
					}
				}
			}
		case html.EndTagToken:
			name, _ := z.TagName()
			switch string(name) {
			case "script", "style", "head":
				if skip > 0 {
					skip--
				}
			case "a":
				if mailto != "" {
					label := strings.TrimSpace(linkText.String())
					if strings.Contains(label, "@") {
						label = ""
					}
					c.add(mailto, label)
					mailto = ""
				}
			}
		case html.TextToken:
			if skip > 0 {
				continue
			}
			t := string(z.Text())
			if mailto != "" {
				linkText.WriteString(t)
			}
			visible.WriteString(t)
			visible.WriteByte(' ')
		}
	}
}

// Message returns the addresses in an RFC 5322 message: the From, Reply-To,
// To and Cc headers with their display names, then the body.
func Message(raw []byte) ([]Address, error) {
	env, err := enmime.ReadEnvelope(bytes.NewReader(raw))
	if err != nil {
		return nil, fmt.Errorf("parse message: %w", err)
	}
	c := newCollector()
	for _, h := range []string{"From", "Reply-To", "To", "Cc"} {
		list, err := env.AddressList(h)
		if err != nil {
			continue
		}
		for _, a := range list {
			c.add(a.Address, a.Name)
		}
	}
	if env.Text != "" {
		c.text(env.Text)
	} else if env.HTML != "" {
		found, err := HTML(strings.NewReader(env.HTML))
		if err == nil {
			for _, a := range found {
				c.add(a.Address, a.Name)
			}
		}
	}
	return c.out, nil
}

// File reads path and harvests it according to its extension: .eml as a
// message, .html and .htm as HTML, anything else as text. Content that is
// not UTF-8 is converted first.
func File(path string) ([]Address, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	switch strings.ToLower(filepath.Ext(path)) {
	case ".eml":
		return Message(data)
	case ".html", ".htm":
		return HTML(bytes.NewReader(toUTF8(data)))
	default:
		return Text(string(toUTF8(data))), nil
	}
}
