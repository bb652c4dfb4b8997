package registry

import (
	"sort"
	"sync"

	"github.com/novelcore/kubeclient/pkg/errors"
)

// RuleBase is the in-memory index from resource kinds to the attributes
// needed to build URLs for them. Keys of the attribute maps are fullKinds;
// shortKinds map to the list of fullKinds sharing that name. Discovery
// fills it at construction and the CRD watcher mutates it afterwards, so
// every access goes through the readers-writer lock.
type RuleBase struct {
	mu sync.RWMutex

	kindToFullKinds map[string][]string

	fullKindToKind       map[string]string
	fullKindToPlural     map[string]string
	fullKindToGroup      map[string]string
	fullKindToVersion    map[string]string
	fullKindToNamespaced map[string]bool
	fullKindToAPIPrefix  map[string]string
	fullKindToVerbs      map[string][]string
}

// NewRuleBase creates an empty rule base
func NewRuleBase() *RuleBase {
	return &RuleBase{
		kindToFullKinds:      make(map[string][]string),
		fullKindToKind:       make(map[string]string),
		fullKindToPlural:     make(map[string]string),
		fullKindToGroup:      make(map[string]string),
		fullKindToVersion:    make(map[string]string),
		fullKindToNamespaced: make(map[string]bool),
		fullKindToAPIPrefix:  make(map[string]string),
		fullKindToVerbs:      make(map[string][]string),
	}
}

// PutKind registers or replaces the descriptor of a fullKind and links it
// to its shortKind. Calling it twice with the same arguments is a no-op.
func (r *RuleBase) PutKind(fullKind string, d KindDescriptor) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.fullKindToKind[fullKind] = d.Kind
	r.fullKindToPlural[fullKind] = d.Plural
	r.fullKindToGroup[fullKind] = d.Group
	r.fullKindToVersion[fullKind] = d.Version
	r.fullKindToNamespaced[fullKind] = d.Namespaced
	r.fullKindToAPIPrefix[fullKind] = d.APIPrefix
	r.fullKindToVerbs[fullKind] = append([]string(nil), d.Verbs...)

	for _, fk := range r.kindToFullKinds[d.Kind] {
		if fk == fullKind {
			return
		}
	}
	r.kindToFullKinds[d.Kind] = append(r.kindToFullKinds[d.Kind], fullKind)
}

// RemoveFullKind removes a fullKind from every attribute map and from its
// shortKind list, dropping the shortKind entry when the list empties.
func (r *RuleBase) RemoveFullKind(shortKind, fullKind string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	delete(r.fullKindToKind, fullKind)
	delete(r.fullKindToPlural, fullKind)
	delete(r.fullKindToGroup, fullKind)
	delete(r.fullKindToVersion, fullKind)
	delete(r.fullKindToNamespaced, fullKind)
	delete(r.fullKindToAPIPrefix, fullKind)
	delete(r.fullKindToVerbs, fullKind)

	kept := r.kindToFullKinds[shortKind][:0]
	for _, fk := range r.kindToFullKinds[shortKind] {
		if fk != fullKind {
			kept = append(kept, fk)
		}
	}
	if len(kept) == 0 {
		delete(r.kindToFullKinds, shortKind)
		return
	}
	r.kindToFullKinds[shortKind] = kept
}

// FullKindOf resolves a shortKind to its single fullKind. A shortKind
// served by several groups fails with AMBIGUOUS_KIND carrying the
// candidates; an unknown one fails with UNKNOWN_KIND.
func (r *RuleBase) FullKindOf(shortKind string) (string, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	fullKinds := r.kindToFullKinds[shortKind]
	switch len(fullKinds) {
	case 0:
		return "", errors.UnknownKindError(shortKind)
	case 1:
		return fullKinds[0], nil
	default:
		return "", errors.AmbiguousKindError(shortKind, append([]string(nil), fullKinds...))
	}
}

// Descriptor returns the full descriptor of a fullKind
func (r *RuleBase) Descriptor(fullKind string) (KindDescriptor, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	prefix, ok := r.fullKindToAPIPrefix[fullKind]
	if !ok {
		return KindDescriptor{}, errors.UnknownKindError(fullKind)
	}

	return KindDescriptor{
		Kind:       r.fullKindToKind[fullKind],
		Plural:     r.fullKindToPlural[fullKind],
		Group:      r.fullKindToGroup[fullKind],
		Version:    r.fullKindToVersion[fullKind],
		Namespaced: r.fullKindToNamespaced[fullKind],
		APIPrefix:  prefix,
		Verbs:      append([]string(nil), r.fullKindToVerbs[fullKind]...),
	}, nil
}

// HasFullKind reports whether a fullKind is registered
func (r *RuleBase) HasFullKind(fullKind string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	_, ok := r.fullKindToAPIPrefix[fullKind]
	return ok
}

// Kinds returns the sorted short kinds known to the registry
func (r *RuleBase) Kinds() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	kinds := make([]string, 0, len(r.kindToFullKinds))
	for k := range r.kindToFullKinds {
		kinds = append(kinds, k)
	}
	sort.Strings(kinds)
	return kinds
}

// FullKinds returns the sorted fullKinds known to the registry
func (r *RuleBase) FullKinds() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	fullKinds := make([]string, 0, len(r.fullKindToKind))
	for fk := range r.fullKindToKind {
		fullKinds = append(fullKinds, fk)
	}
	sort.Strings(fullKinds)
	return fullKinds
}

// Descriptors returns a consistent snapshot of every registered descriptor,
// keyed by fullKind.
func (r *RuleBase) Descriptors() map[string]KindDescriptor {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make(map[string]KindDescriptor, len(r.fullKindToKind))
	for fk := range r.fullKindToKind {
		out[fk] = KindDescriptor{
			Kind:       r.fullKindToKind[fk],
			Plural:     r.fullKindToPlural[fk],
			Group:      r.fullKindToGroup[fk],
			Version:    r.fullKindToVersion[fk],
			Namespaced: r.fullKindToNamespaced[fk],
			APIPrefix:  r.fullKindToAPIPrefix[fk],
			Verbs:      append([]string(nil), r.fullKindToVerbs[fk]...),
		}
	}
	return out
}
