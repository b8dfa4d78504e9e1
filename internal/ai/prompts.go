package ai

import (
	"bytes"
	"embed"
	"fmt"
	"io/fs"
	"os"
	"strings"
	"text/template"
)

// PromptVersion names the embedded prompt set.
const PromptVersion = "v1"

//go:embed prompts
var embeddedPrompts embed.FS

var promptNames = []string{"system.tmpl", "user.tmpl", "verify.tmpl"}

// Prompts is a parsed prompt set. Wording is data: only the JSON
// response contract is enforced in code.
type Prompts struct {
	Version string
	tmpl    *template.Template
}

// LoadPrompts parses the embedded prompt set, or the *.tmpl files in dir
// when dir is not empty.
func LoadPrompts(dir string) (*Prompts, error) {
	var (
		fsys    fs.FS
		version = PromptVersion
		err     error
	)
	if dir == "" {
		fsys, err = fs.Sub(embeddedPrompts, "prompts/"+PromptVersion)
		if err != nil {
			return nil, fmt.Errorf("opening embedded prompts: %w", err)
		}
	} else {
		fsys = os.DirFS(dir)
		version = "dir:" + dir
	}

	t, err := template.New("prompts").
		Funcs(template.FuncMap{"join": strings.Join}).
		Option("missingkey=error").
		ParseFS(fsys, "*.tmpl")
	if err != nil {
		return nil, fmt.Errorf("parsing prompts: %w", err)
	}
	for _, name := range promptNames {
		if t.Lookup(name) == nil {
			return nil, fmt.Errorf("prompt %s missing", name)
		}
	}
	return &Prompts{Version: version, tmpl: t}, nil
}

func (p *Prompts) render(name string, data any) (string, error) {
	var buf bytes.Buffer
	if err := p.tmpl.ExecuteTemplate(&buf, name, data); err != nil {
		return "", fmt.Errorf("rendering %s: %w", name, err)
	}
	return strings.TrimSpace(buf.String()), nil
}

func (p *Prompts) System() (string, error) { return p.render("system.tmpl", nil) }

func (p *Prompts) User(req generationPrompt) (string, error) { return p.render("user.tmpl", req) }

func (p *Prompts) Verify(req VerificationRequest) (string, error) {
	return p.render("verify.tmpl", req)
}
