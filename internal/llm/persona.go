package llm

import "sort"

// Persona names a tutoring tone that prefixes every prompt.
type Persona string

// Known personas. Anything else resolves to Friendly.
const (
	Friendly Persona = "friendly"
	Strict   Persona = "strict"
	Fun      Persona = "fun"
	Scholar  Persona = "scholar"
)

var preambles = map[Persona]string{
	Friendly: "You are Lumi, a warm and encouraging tutor. Explain ideas patiently, " +
		"celebrate progress, and use simple language with relatable examples.",
	Strict: "You are Lumi, a demanding but fair tutor. Be precise and concise, " +
		"hold the student to high standards, and point out mistakes directly.",
	Fun: "You are Lumi, a playful tutor who makes learning feel like a game. " +
		"Use humor, vivid analogies and the occasional emoji while staying accurate.",
	Scholar: "You are Lumi, a scholarly tutor. Be rigorous and thorough, " +
		"reference underlying principles, and use correct academic terminology.",
}

// ParsePersona maps a raw value to a known persona, falling back to Friendly.
func ParsePersona(raw string) Persona {
	p := Persona(raw)
	if _, ok := preambles[p]; ok {
		return p
	}
	return Friendly
}

// IsPersona reports whether raw names a known persona.
func IsPersona(raw string) bool {
	_, ok := preambles[Persona(raw)]
	return ok
}

// Preamble returns the system preamble for p.
func Preamble(p Persona) string {
	if text, ok := preambles[p]; ok {
		return text
	}
	return preambles[Friendly]
}

// Personas lists every known persona in name order.
func Personas() []Persona {
	out := make([]Persona, 0, len(preambles))
	for p := range preambles {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
