package commands

import "strings"

// OptionsFromText splits free text typed after a command name into the
// definition's named options, for surfaces without native option
// fields (Telegram, the local console). A single-option command and a
// command whose later options are all constrained take the whole text
// as the first option; otherwise options are filled one word at a time
// with the remainder going to the last one.
func OptionsFromText(def Definition, text string) map[string]string {
	text = strings.TrimSpace(text)
	if len(def.Options) == 0 || text == "" {
		return nil
	}

	opts := make(map[string]string)
	if len(def.Options) == 1 || freeTextFirst(def) {
		opts[def.Options[0].Name] = text
		return opts
	}

	rest := text
	for i, opt := range def.Options {
		rest = strings.TrimSpace(rest)
		if rest == "" {
			break
		}
		if i == len(def.Options)-1 {
			opts[opt.Name] = rest
			break
		}
		head, tail, _ := strings.Cut(rest, " ")
		opts[opt.Name] = head
		rest = tail
	}
	return opts
}

// freeTextFirst is true when the first option is unconstrained prose
// and every later option is a choice or typed value, as in
// "/imagine a sunset over water". Splitting such text on spaces would
// tear the prose apart.
func freeTextFirst(def Definition) bool {
	first := def.Options[0]
	if !first.Required || first.Type != OptionString || len(first.Choices) > 0 {
		return false
	}
	for _, opt := range def.Options[1:] {
		if opt.Type == OptionString && len(opt.Choices) == 0 {
			return false
		}
	}
	return true
}

// PrimaryOption names the option whose value doubles as the prompt.
func (d Definition) PrimaryOption() string {
	if len(d.Options) == 0 {
		return ""
	}
	return d.Options[0].Name
}
