package message

import "strings"

// Persona is the named voice identity used to compose and deliver a message
type Persona struct {
	Name         string `json:"name"`
	Voice        string `json:"voice"`
	Organization string `json:"organization"`
}

// DefaultPersona is used when a recipient has no preference or an unknown one
var DefaultPersona = Persona{Name: "Idera", Voice: "Idera", Organization: "Sabi Health"}

var personas = map[string]Persona{
	"idera":    DefaultPersona,
	"emma":     {Name: "Emma", Voice: "Emma", Organization: "Sabi Health"},
	"zainab":   {Name: "Zainab", Voice: "Zainab", Organization: "Sabi Health"},
	"jude":     {Name: "Jude", Voice: "Jude", Organization: "Sabi Health"},
	"chinenye": {Name: "Chinenye", Voice: "Chinenye", Organization: "Sabi Health"},
}

// LookupPersona returns the named persona, or DefaultPersona when unknown
func LookupPersona(name string) Persona {
	if p, ok := personas[strings.ToLower(strings.TrimSpace(name))]; ok {
		return p
	}
	return DefaultPersona
}

// Personas lists the available personas
func Personas() []Persona {
	out := make([]Persona, 0, len(personas))
	for _, p := range personas {
		out = append(out, p)
	}
	return out
}
