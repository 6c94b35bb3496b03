package notifications

import (
	_ "embed"
	"errors"
	"fmt"
	"regexp"
	"slices"

	"golang.org/x/text/language"
	"golang.org/x/text/message"
	"golang.org/x/text/number"
	"gopkg.in/yaml.v3"
)

//go:embed catalog.yaml
var defaultCatalog []byte

// DefaultLanguage is used when the requested language is empty or not
// present in the catalog.
const DefaultLanguage = "en"

// Catalog renders notification texts for one language. Templates use
// %{name} placeholders; numeric parameters are formatted for the language.
type Catalog struct {
	tag      language.Tag
	printer  *message.Printer
	texts    map[string]string
	fallback map[string]string
}

// NewCatalog loads the built-in catalog for lang.
func NewCatalog(lang string) (*Catalog, error) {
	return ParseCatalog(defaultCatalog, lang)
}

// MustCatalog is NewCatalog that panics on error.
func MustCatalog(lang string) *Catalog {
	c, err := NewCatalog(lang)
	if err != nil {
		panic(fmt.Sprintf("notifications: load catalog: %v", err))
	}
	return c
}

// ParseCatalog parses a YAML catalog keyed by language tag and selects the
// best match for lang. Keys missing in the selected language fall back to
// DefaultLanguage.
func ParseCatalog(data []byte, lang string) (*Catalog, error) {
	var raw map[string]map[string]any
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("notifications: parse catalog: %w", err)
	}
	if len(raw) == 0 {
		return nil, errors.New("notifications: empty catalog")
	}

	names := make([]string, 0, len(raw))
	for name := range raw {
		names = append(names, name)
	}
	slices.Sort(names)
	if i := slices.Index(names, DefaultLanguage); i > 0 {
		names[0], names[i] = names[i], names[0]
	}

	tags := make([]language.Tag, 0, len(names))
	for _, name := range names {
		tag, err := language.Parse(name)
		if err != nil {
			return nil, fmt.Errorf("notifications: catalog language %q: %w", name, err)
		}
		tags = append(tags, tag)
	}

	idx := 0
	if requested, err := language.Parse(lang); err == nil {
		_, idx, _ = language.NewMatcher(tags).Match(requested)
	}

	c := &Catalog{
		tag:      tags[idx],
		printer:  message.NewPrinter(tags[idx]),
		texts:    flatten("", raw[names[idx]], map[string]string{}),
		fallback: flatten("", raw[names[0]], map[string]string{}),
	}
	return c, nil
}

func flatten(prefix string, in map[string]any, out map[string]string) map[string]string {
	for k, v := range in {
		key := k
		if prefix != "" {
			key = prefix + "." + k
		}
		switch val := v.(type) {
		case map[string]any:
			flatten(key, val, out)
		case string:
			out[key] = val
		default:
			out[key] = fmt.Sprint(val)
		}
	}
	return out
}

// Language returns the selected language tag.
func (c *Catalog) Language() string {
	return c.tag.String()
}

var placeholder = regexp.MustCompile(`%\{([^}]+)\}`)

// Render fills the template under key. Unknown placeholders are left as is.
func (c *Catalog) Render(key string, params map[string]any) (string, error) {
	tmpl, ok := c.texts[key]
	if !ok {
		tmpl, ok = c.fallback[key]
	}
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrUnknownKey, key)
	}
	return placeholder.ReplaceAllStringFunc(tmpl, func(match string) string {
		val, ok := params[match[2:len(match)-1]]
		if !ok {
			return match
		}
		return c.format(val)
	}), nil
}

func (c *Catalog) text(key string, params map[string]any) string {
	s, err := c.Render(key, params)
	if err != nil {
		return key
	}
	return s
}

func (c *Catalog) format(v any) string {
	switch n := v.(type) {
	case string:
		return n
	case float64, float32, int, int64, int32, uint, uint64, uint32:
		return c.printer.Sprintf("%v", number.Decimal(n, number.MaxFractionDigits(2)))
	default:
		return fmt.Sprint(v)
	}
}

var testPriorities = map[Category]Priority{
	CategoryPlanUpdate:  PriorityHigh,
	CategoryPriceChange: PriorityNormal,
	CategoryUsageAlert:  PriorityHigh,
	CategoryNFTReceived: PriorityNormal,
	CategorySystem:      PriorityNormal,
}

// TestRequest returns the sample notification for cat.
func (c *Catalog) TestRequest(cat Category) (Request, error) {
	if !cat.Valid() {
		return Request{}, fmt.Errorf("%w: category %q", ErrInvalidRequest, cat)
	}
	prefix := "test." + string(cat)
	return Request{
		Title:    c.text(prefix+".title", nil),
		Message:  c.text(prefix+".message", nil),
		Category: cat,
		Priority: testPriorities[cat],
	}, nil
}
