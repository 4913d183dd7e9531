package prompt

import "strings"

// Section is one named block of prompt text.
type Section struct {
	Name string
	Body string
	// Raw sections render their body without the "[NAME]" header.
	Raw bool
}

// Sections is an ordered list of prompt blocks. The zero value is ready to use.
type Sections struct {
	items []Section
}

// Add appends a headed section. Blank bodies are skipped.
func (s *Sections) Add(name, body string) *Sections {
	return s.add(Section{Name: name, Body: body})
}

// AddRaw appends a section rendered without its header. Blank bodies are skipped.
func (s *Sections) AddRaw(name, body string) *Sections {
	return s.add(Section{Name: name, Body: body, Raw: true})
}

func (s *Sections) add(sec Section) *Sections {
	sec.Body = strings.TrimSpace(sec.Body)
	if sec.Body == "" {
		return s
	}
	s.items = append(s.items, sec)
	return s
}

// Names returns the section names in render order.
func (s *Sections) Names() []string {
	names := make([]string, len(s.items))
	for i, sec := range s.items {
		names[i] = sec.Name
	}
	return names
}

// Len returns the number of non-empty sections.
func (s *Sections) Len() int { return len(s.items) }

// String renders the sections separated by blank lines.
func (s *Sections) String() string {
	var b strings.Builder
	for i, sec := range s.items {
		if i > 0 {
			b.WriteString("\n\n")
		}
		if !sec.Raw {
			b.WriteString("[")
			b.WriteString(sec.Name)
			b.WriteString("]\n")
		}
		b.WriteString(sec.Body)
	}
	return b.String()
}
