package dataset

import "sync"

// Provider hands out the records behind one external-API dataset. The
// portal's spreadsheet aggregation pipeline sits behind this interface;
// this package only defines the contract and a static implementation.
type Provider interface {
	Records(name string) ([]map[string]any, bool)
}

// Names lists the datasets the external read API exposes, matching the
// sheet names the dashboard consumes.
func Names() []string {
	return []string{"eis", "procurement", "finance", "treasury", "welfare", "dorm"}
}

// StaticProvider serves fixed in-memory records, keyed by dataset name.
type StaticProvider struct {
	mu   sync.RWMutex
	data map[string][]map[string]any
}

var _ Provider = (*StaticProvider)(nil)

func NewStaticProvider(data map[string][]map[string]any) *StaticProvider {
	if data == nil {
		data = make(map[string][]map[string]any)
		for _, n := range Names() {
			data[n] = []map[string]any{}
		}
	}
	return &StaticProvider{data: data}
}

func (p *StaticProvider) Records(name string) ([]map[string]any, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	records, ok := p.data[name]
	return records, ok
}

// Replace swaps the records for one dataset (upload path).
func (p *StaticProvider) Replace(name string, records []map[string]any) {
	p.mu.Lock()
	p.data[name] = records
	p.mu.Unlock()
}
