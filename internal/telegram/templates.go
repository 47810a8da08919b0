package telegram

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"text/template"

	"go.uber.org/zap"
)

const NewAccountTemplate = "new_account"

var protectedRegion = regexp.MustCompile(
	`(\{\{-?\s*.*?\s*-?\}\}` +
		`|\*[^*\n]+\*` +
		"|`[^`\n]+`" +
		`)`,
)

var staticEscaper = regexp.MustCompile(`([_\[\]()~>#+\-=|{}.!\\])`)

// templateSchema is sample data used to reject overrides that reference
// unknown variables.
var templateSchema = map[string]map[string]interface{}{
	NewAccountTemplate: {
		"DisplayName": "test",
		"Username":    "test",
		"TelegramID":  "test",
		"AccountID":   "test",
		"Premium":     true,
		"Date":        "test",
	},
}

//nolint:lll // template strings are naturally long
var defaults = map[string]string{
	NewAccountTemplate: "*New Account*\n\n*Name:* {{.DisplayName}}\n{{- if .Username}}\n*Username:* @{{.Username}}\n{{- end}}\n*Telegram ID:* `{{.TelegramID}}`\n*Account:* `{{.AccountID}}`\n{{- if .Premium}}\n*Telegram Premium:* yes\n{{- end}}\n\n*Joined:* {{.Date}}",
}

// prepareTemplate escapes MarkdownV2 specials in the static text while
// leaving template actions, *bold* and `code` spans intact.
func prepareTemplate(raw string) string {
	locs := protectedRegion.FindAllStringIndex(raw, -1)
	if len(locs) == 0 {
		return staticEscaper.ReplaceAllString(raw, `\$1`)
	}

	var b bytes.Buffer
	last := 0
	for _, loc := range locs {
		if loc[0] > last {
			b.WriteString(staticEscaper.ReplaceAllString(raw[last:loc[0]], `\$1`))
		}
		b.WriteString(raw[loc[0]:loc[1]])
		last = loc[1]
	}
	if last < len(raw) {
		b.WriteString(staticEscaper.ReplaceAllString(raw[last:], `\$1`))
	}
	return b.String()
}

func parseTemplate(name, raw string) (*template.Template, error) {
	tmpl, err := template.New(name).
		Option("missingkey=error").
		Parse(prepareTemplate(raw))
	if err != nil {
		return nil, err
	}
	if schema, ok := templateSchema[name]; ok {
		var buf bytes.Buffer
		if err := tmpl.Execute(&buf, schema); err != nil {
			return nil, err
		}
	}
	return tmpl, nil
}

// Templates is the set of message templates. Files named <template>.txt in
// the override directory replace the built-in text.
type Templates struct {
	set map[string]*template.Template
}

func LoadTemplates(dir string, logger *zap.Logger) (*Templates, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	t := &Templates{set: make(map[string]*template.Template, len(defaults))}

	for name, fallback := range defaults {
		tmpl, err := parseTemplate(name, fallback)
		if err != nil {
			return nil, fmt.Errorf("built-in template %s: %w", name, err)
		}

		if dir != "" {
			path := filepath.Clean(filepath.Join(dir, name+".txt"))
			if data, readErr := os.ReadFile(path); readErr == nil {
				override, parseErr := parseTemplate(name, string(data))
				if parseErr != nil {
					logger.Warn("Invalid message template, using built-in",
						zap.String("path", path),
						zap.Error(parseErr))
				} else {
					logger.Info("Loaded message template", zap.String("path", path))
					tmpl = override
				}
			}
		}

		t.set[name] = tmpl
	}

	return t, nil
}

// Render executes the named template with every string value escaped for
// MarkdownV2.
func (t *Templates) Render(name string, data map[string]interface{}) (string, error) {
	tmpl, ok := t.set[name]
	if !ok {
		return "", fmt.Errorf("template %s not found", name)
	}

	escaped := make(map[string]interface{}, len(data))
	for k, v := range data {
		if s, ok := v.(string); ok {
			escaped[k] = escapeMarkdownV2(s)
			continue
		}
		escaped[k] = v
	}

	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, escaped); err != nil {
		return "", fmt.Errorf("render %s: %w", name, err)
	}
	return buf.String(), nil
}
