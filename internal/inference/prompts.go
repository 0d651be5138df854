package inference

import (
	"bytes"
	"os"
	"text/template"

	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"
)

const defaultExistenceTemplate = `Search X for any posts containing the exact phrase "{{.Address}}". Respond with only "true" if any post exists, or "false" if no posts are found. Do not provide any other information.`

const defaultOwnershipTemplate = `Search X for all posts containing the exact phrase "{{.Address}}".

Analyze the context of each post to determine:
1. Who posted it (username/handle)
2. Whether this wallet address belongs to that user (confidence level: high, medium, low, or none)

Confidence level guidelines:
- "High": Clear ownership (user's own post in airdrop thread, wallet sharing, profile bio, explicit ownership statements)
- "Medium": Strong indication (user sharing their wallet for donations, trading, or in context of their activity)
- "Low": Weak indication (user just mentioned or quoted it, minimal context)
- "None": Very weak or no indication of ownership

Return the username and confidence level in this format:
Username: @handle
Confidence: [High|Medium|Low|None]

If multiple posts exist, analyze all of them and provide the highest confidence level with the associated username.`

// PromptSet renders the two stage prompts for an address.
type PromptSet struct {
	existence *template.Template
	ownership *template.Template
}

// promptFile is the YAML shape of a prompt override file.
type promptFile struct {
	Existence string `yaml:"existence"`
	Ownership string `yaml:"ownership"`
}

// DefaultPrompts returns the built-in prompt set.
func DefaultPrompts() *PromptSet {
	ps, err := newPromptSet(defaultExistenceTemplate, defaultOwnershipTemplate)
	if err != nil {
		panic(err) // built-in templates are static
	}
	return ps
}

// LoadPrompts reads a YAML file with optional "existence" and "ownership"
// templates. Missing keys fall back to the built-in prompt. An empty path
// returns the defaults.
func LoadPrompts(path string) (*PromptSet, error) {
	if path == "" {
		return DefaultPrompts(), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "inference: read prompts file %s", path)
	}
	var pf promptFile
	if err := yaml.Unmarshal(data, &pf); err != nil {
		return nil, eris.Wrapf(err, "inference: parse prompts file %s", path)
	}
	if pf.Existence == "" {
		pf.Existence = defaultExistenceTemplate
	}
	if pf.Ownership == "" {
		pf.Ownership = defaultOwnershipTemplate
	}
	return newPromptSet(pf.Existence, pf.Ownership)
}

func newPromptSet(existence, ownership string) (*PromptSet, error) {
	ex, err := template.New("existence").Option("missingkey=error").Parse(existence)
	if err != nil {
		return nil, eris.Wrap(err, "inference: parse existence template")
	}
	own, err := template.New("ownership").Option("missingkey=error").Parse(ownership)
	if err != nil {
		return nil, eris.Wrap(err, "inference: parse ownership template")
	}
	return &PromptSet{existence: ex, ownership: own}, nil
}

// Existence renders the first-stage prompt.
func (p *PromptSet) Existence(address string) (string, error) {
	return render(p.existence, address)
}

// Ownership renders the second-stage prompt.
func (p *PromptSet) Ownership(address string) (string, error) {
	return render(p.ownership, address)
}

func render(t *template.Template, address string) (string, error) {
	var buf bytes.Buffer
	if err := t.Execute(&buf, struct{ Address string }{address}); err != nil {
		return "", eris.Wrapf(err, "inference: render %s prompt", t.Name())
	}
	return buf.String(), nil
}
