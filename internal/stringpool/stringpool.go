package stringpool

// Pool deduplicates strings so repeated frame names and file paths share
// a single backing allocation.
type Pool struct {
	strings map[string]string
}

func New() *Pool {
	return &Pool{strings: make(map[string]string)}
}

// Intern returns the canonical copy of s.
func (p *Pool) Intern(s string) string {
	if s == "" {
		return s
	}
	if v, ok := p.strings[s]; ok {
		return v
	}
	p.strings[s] = s
	return s
}

// Reset drops every interned string.
func (p *Pool) Reset() {
	p.strings = make(map[string]string)
}
