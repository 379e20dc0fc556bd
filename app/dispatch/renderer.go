package dispatch

import (
	"fmt"
	"math"
	"net/url"
	"strconv"
	"strings"
	"unicode"

	"github.com/waveline/waveline/app/services"
	"github.com/waveline/waveline/models"
)

const (
	// DefaultValue fills placeholders whose mapped column is absent from the
	// input row.
	DefaultValue = "N/A"

	// DefaultCurrencyCode is used when the row carries no currency code of
	// its own.
	DefaultCurrencyCode = "BRL"

	// maxParamLength clamps any single rendered text value.
	maxParamLength = 1024
)

// shortenerDomains are URL-shortener hosts that must never be forwarded into
// a button URL; the provider flags them and the link destination is opaque.
var shortenerDomains = map[string]bool{
	"bit.ly":      true,
	"tinyurl.com": true,
	"t.co":        true,
	"goo.gl":      true,
	"is.gd":       true,
	"ow.ly":       true,
	"cutt.ly":     true,
	"rebrand.ly":  true,
	"rb.gy":       true,
	"shorturl.at": true,
}

// RenderComponents builds the ordered provider-ready component list for one
// recipient row from the template's structure and mappings. Placeholders with
// no usable value fall back to DefaultValue; a button whose mapping is marked
// omit-if-empty is dropped wholesale instead.
func RenderComponents(tmpl *models.Template, row models.ItemParams) ([]services.TemplateComponent, error) {
	var components []services.TemplateComponent

	if len(tmpl.Structure.HeaderPlaceholders) > 0 {
		params, err := renderPlaceholders(tmpl, "header", 0, tmpl.Structure.HeaderPlaceholders, row)
		if err != nil {
			return nil, err
		}
		components = append(components, services.TemplateComponent{
			Type:       "header",
			Parameters: params,
		})
	}

	if len(tmpl.Structure.BodyPlaceholders) > 0 {
		params, err := renderPlaceholders(tmpl, "body", 0, tmpl.Structure.BodyPlaceholders, row)
		if err != nil {
			return nil, err
		}
		components = append(components, services.TemplateComponent{
			Type:       "body",
			Parameters: params,
		})
	}

	for _, btn := range tmpl.Structure.Buttons {
		comp, include, err := renderButton(tmpl, btn, row)
		if err != nil {
			return nil, err
		}
		if include {
			components = append(components, comp)
		}
	}

	return components, nil
}

func renderPlaceholders(tmpl *models.Template, component string, button int, placeholders []models.Placeholder, row models.ItemParams) ([]services.TemplateParameter, error) {
	params := make([]services.TemplateParameter, 0, len(placeholders))
	for _, ph := range placeholders {
		mapping := tmpl.Mappings[models.SlotKey(component, button, ph.Index)]
		raw, _ := resolveValue(mapping, row)
		if raw == "" {
			raw = DefaultValue
		}
		param, err := formatParameter(ph.Type, raw, row)
		if err != nil {
			return nil, err
		}
		params = append(params, param)
	}
	return params, nil
}

func renderButton(tmpl *models.Template, btn models.ButtonSpec, row models.ItemParams) (services.TemplateComponent, bool, error) {
	comp := services.TemplateComponent{
		Type:    "button",
		SubType: string(btn.SubType),
		Index:   strconv.Itoa(btn.Index),
	}
	for _, ph := range btn.Placeholders {
		mapping := tmpl.Mappings[models.SlotKey("button", btn.Index, ph.Index)]
		raw, present := resolveValue(mapping, row)
		if !present || raw == "" {
			if mapping.OmitIfEmpty {
				// Drop the whole button rather than send a blank value
				return services.TemplateComponent{}, false, nil
			}
			raw = DefaultValue
		}
		var text string
		if btn.SubType == models.ButtonSubTypeURL {
			text = sanitizeURLValue(raw)
		} else {
			text = sanitizeText(raw)
		}
		comp.Parameters = append(comp.Parameters, services.TemplateParameter{
			Type: "text",
			Text: text,
		})
	}
	return comp, true, nil
}

// resolveValue reads one placeholder value from the input row or the mapping
// literal. The second return reports whether a value was actually present.
func resolveValue(mapping models.Mapping, row models.ItemParams) (string, bool) {
	switch mapping.Source {
	case models.MappingSourceColumn:
		v, ok := row[mapping.Value]
		return strings.TrimSpace(v), ok && strings.TrimSpace(v) != ""
	case models.MappingSourceFixed:
		return mapping.Value, mapping.Value != ""
	default:
		// Unmapped slot: warned about at template save time, defaulted here
		return "", false
	}
}

func formatParameter(phType models.PlaceholderType, raw string, row models.ItemParams) (services.TemplateParameter, error) {
	switch phType {
	case models.PlaceholderTypeText, "":
		return services.TemplateParameter{Type: "text", Text: sanitizeText(raw)}, nil
	case models.PlaceholderTypeCurrency:
		return formatCurrency(raw, row), nil
	case models.PlaceholderTypeDateTime:
		// Opaque fallback string, never parsed or validated
		return services.TemplateParameter{
			Type:     "date_time",
			DateTime: &services.DateTimeParam{FallbackValue: sanitizeText(raw)},
		}, nil
	default:
		return services.TemplateParameter{}, fmt.Errorf("unknown placeholder type %q", phType)
	}
}

// formatCurrency renders a currency placeholder as a minor-unit amount plus
// the original string as human-readable fallback. A value that does not parse
// as a number degrades to a plain text parameter.
func formatCurrency(raw string, row models.ItemParams) services.TemplateParameter {
	code := strings.TrimSpace(row["currency_code"])
	if code == "" {
		code = DefaultCurrencyCode
	}

	cleaned := strings.Map(func(r rune) rune {
		if (r >= '0' && r <= '9') || r == '.' || r == '-' {
			return r
		}
		if r == ',' {
			return '.'
		}
		return -1
	}, raw)

	amount, err := strconv.ParseFloat(cleaned, 64)
	if err != nil {
		return services.TemplateParameter{Type: "text", Text: sanitizeText(raw)}
	}

	return services.TemplateParameter{
		Type: "currency",
		Currency: &services.CurrencyParam{
			FallbackValue: sanitizeText(raw),
			Code:          code,
			Amount1000:    int64(math.Round(amount * 1000)),
		},
	}
}

// sanitizeText collapses runs of spaces and tabs, strips control characters
// except newlines and clamps the result.
func sanitizeText(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	lastSpace := false
	for _, r := range s {
		switch {
		case r == '\n':
			b.WriteRune(r)
			lastSpace = false
		case r == ' ' || r == '\t':
			if !lastSpace {
				b.WriteByte(' ')
			}
			lastSpace = true
		case unicode.IsControl(r):
			// dropped
		default:
			b.WriteRune(r)
			lastSpace = false
		}
	}
	return clamp(strings.TrimSpace(b.String()))
}

// sanitizeURLValue prepares a value destined for a URL button parameter:
// newlines and whitespace have no place in a URL, shortener links are
// replaced with the safe default, and the remainder is percent-encoded.
func sanitizeURLValue(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		if unicode.IsControl(r) || unicode.IsSpace(r) {
			continue
		}
		b.WriteRune(r)
	}
	v := clamp(b.String())
	// The substituted default is display text, not a URL fragment
	if v == DefaultValue || isShortenerLink(v) {
		return DefaultValue
	}
	return url.PathEscape(v)
}

func isShortenerLink(v string) bool {
	host := strings.ToLower(v)
	if u, err := url.Parse(v); err == nil && u.Host != "" {
		host = strings.ToLower(u.Host)
	}
	host = strings.TrimPrefix(host, "www.")
	if shortenerDomains[host] {
		return true
	}
	for domain := range shortenerDomains {
		if strings.HasPrefix(host, domain+"/") {
			return true
		}
	}
	return false
}

func clamp(s string) string {
	if len(s) <= maxParamLength {
		return s
	}
	// Cut on a rune boundary
	cut := maxParamLength
	for cut > 0 && !utf8StartByte(s[cut]) {
		cut--
	}
	return s[:cut]
}

func utf8StartByte(b byte) bool {
	return b&0xC0 != 0x80
}
