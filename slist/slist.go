// Package slist implements the singly-linked list of owned name strings
// used to build directory listings (spec §4.7). fs.Readdir collects the
// names into this list and converts it to a []string with ToSlice; the
// adapter receives the slice, not the list.
package slist

// List is a node in a singly-linked list of strings. A nil *List is the
// empty list.
type List struct {
	Name string
	Next *List
}

// Cons prepends name to rest, returning the new head. The order of the
// resulting list is the reverse of insertion order; callers that hand
// listings back to an adapter don't depend on order (spec §4.7).
func Cons(name string, rest *List) *List {
	return &List{Name: name, Next: rest}
}

// ToSlice collects every name in the list, head first, into a slice.
func (l *List) ToSlice() []string {
	var names []string
	for node := l; node != nil; node = node.Next {
		names = append(names, node.Name)
	}
	return names
}

// Free drops the list so it can be garbage-collected. The original C
// implementation this is modeled on called its equivalent free function on
// the tail after walking the list to its end, which meant it always freed
// nil and leaked every live node (spec §9 flags this as a bug); Free
// releases the head so the whole chain is actually reclaimed.
func Free(l *List) {
	for node := l; node != nil; {
		next := node.Next
		node.Next = nil
		node = next
	}
}
