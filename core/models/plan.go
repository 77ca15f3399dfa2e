package models

// CopyEntry is one external library (or framework root) to embed.
type CopyEntry struct {
	Source    string `json:"source"`    // absolute path outside the bundle
	Name      string `json:"name"`      // basename under Contents/Frameworks
	Framework bool   `json:"framework"` // Source is an X.framework directory
	Embedded  string `json:"embedded"`  // embedded name of the scanned binary
}

// CopyPlan maps each copy source to its embedded name, in discovery order.
type CopyPlan struct {
	entries map[string]*CopyEntry
	order   []string
}

func NewCopyPlan() *CopyPlan {
	return &CopyPlan{entries: make(map[string]*CopyEntry)}
}

// Add records source once. It reports false when source was already planned.
func (cp *CopyPlan) Add(entry CopyEntry) bool {
	if _, exists := cp.entries[entry.Source]; exists {
		return false
	}
	e := entry
	cp.entries[entry.Source] = &e
	cp.order = append(cp.order, entry.Source)
	return true
}

func (cp *CopyPlan) Get(source string) (CopyEntry, bool) {
	e, ok := cp.entries[source]
	if !ok {
		return CopyEntry{}, false
	}
	return *e, true
}

func (cp *CopyPlan) Len() int {
	return len(cp.order)
}

func (cp *CopyPlan) Entries() []CopyEntry {
	out := make([]CopyEntry, 0, len(cp.order))
	for _, src := range cp.order {
		out = append(out, *cp.entries[src])
	}
	return out
}

// Rename replaces one recorded load command string.
type Rename struct {
	Old string `json:"old"`
	New string `json:"new"`
}

// RenameBucket holds everything install_name_tool needs for one binary.
type RenameBucket struct {
	Key      string   `json:"key"`     // job path or embedded name
	Job      bool     `json:"job"`     // root binary rewritten in place
	Path     string   `json:"path"`    // absolute path the binary was scanned from
	SelfID   string   `json:"self_id"` // new LC_ID_DYLIB value
	Renames  []Rename `json:"renames"`
	seenOlds map[string]bool
}

// Add appends old -> new unless old is already mapped in this bucket.
func (b *RenameBucket) Add(oldRef, newRef string) bool {
	if b.seenOlds == nil {
		b.seenOlds = make(map[string]bool)
	}
	if b.seenOlds[oldRef] {
		return false
	}
	b.seenOlds[oldRef] = true
	b.Renames = append(b.Renames, Rename{Old: oldRef, New: newRef})
	return true
}

// ExternalRenames returns the renames that are not the binary's own identity.
func (b *RenameBucket) ExternalRenames() []Rename {
	var out []Rename
	for _, r := range b.Renames {
		if r.New != b.SelfID {
			out = append(out, r)
		}
	}
	return out
}

type RenamePlan struct {
	buckets map[string]*RenameBucket
	order   []string
}

func NewRenamePlan() *RenamePlan {
	return &RenamePlan{buckets: make(map[string]*RenameBucket)}
}

// Bucket returns the bucket for key, creating it from template on first use.
func (rp *RenamePlan) Bucket(key string, template RenameBucket) *RenameBucket {
	if b, ok := rp.buckets[key]; ok {
		return b
	}
	b := template
	b.Key = key
	b.Renames = nil
	b.seenOlds = nil
	rp.buckets[key] = &b
	rp.order = append(rp.order, key)
	return &b
}

func (rp *RenamePlan) Get(key string) (*RenameBucket, bool) {
	b, ok := rp.buckets[key]
	return b, ok
}

func (rp *RenamePlan) Len() int {
	return len(rp.order)
}

func (rp *RenamePlan) Buckets() []*RenameBucket {
	out := make([]*RenameBucket, 0, len(rp.order))
	for _, k := range rp.order {
		out = append(out, rp.buckets[k])
	}
	return out
}

// Plan is the output of the scan phase.
type Plan struct {
	Copies  *CopyPlan
	Renames *RenamePlan
}

func NewPlan() *Plan {
	return &Plan{Copies: NewCopyPlan(), Renames: NewRenamePlan()}
}

// ExternalRenameCount counts renames other than self-identity entries.
func (p *Plan) ExternalRenameCount() int {
	n := 0
	for _, b := range p.Renames.Buckets() {
		n += len(b.ExternalRenames())
	}
	return n
}

// PlanView is the JSON shape of a Plan.
type PlanView struct {
	Copies  []CopyEntry     `json:"copies"`
	Buckets []*RenameBucket `json:"buckets"`
}

func (p *Plan) View() PlanView {
	return PlanView{Copies: p.Copies.Entries(), Buckets: p.Renames.Buckets()}
}
