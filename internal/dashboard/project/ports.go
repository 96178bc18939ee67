package project

import "sync"

// Ports maps project names to dev-server ports.
type Ports struct {
	mu    sync.RWMutex
	table map[string]int
	def   int
}

// NewPorts creates a port table. def is used for unknown projects.
func NewPorts(table map[string]int, def int) *Ports {
	p := &Ports{}
	p.Replace(table, def)
	return p
}

// Lookup returns the port for name.
func (p *Ports) Lookup(name string) int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if port, ok := p.table[name]; ok {
		return port
	}
	return p.def
}

// Replace swaps the whole table.
func (p *Ports) Replace(table map[string]int, def int) {
	cpy := make(map[string]int, len(table))
	for k, v := range table {
		cpy[k] = v
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.table = cpy
	p.def = def
}
