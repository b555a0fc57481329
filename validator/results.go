package validator

import (
	"sort"
)

// Pair is a (parent, child) guid pair.
type Pair struct {
	Parent string `json:"parent"`
	Child  string `json:"child"`
}

// Results is the report of one validation run. Every slice is sorted and
// free of duplicates.
type Results struct {
	// ClientMissing holds guids live on the server but absent on the client.
	ClientMissing []string `json:"clientMissing,omitempty"`
	// ServerMissing holds guids live on the client but absent on the server.
	ServerMissing []string `json:"serverMissing,omitempty"`
	// ServerDeleted holds guids live on the client but tombstoned on the server.
	ServerDeleted []string `json:"serverDeleted,omitempty"`

	Orphans               []Pair              `json:"orphans,omitempty"`
	ParentChildMismatches []Pair              `json:"parentChildMismatches,omitempty"`
	MultipleParents       map[string][]string `json:"multipleParents,omitempty"`
	MissingChildren       []Pair              `json:"missingChildren,omitempty"`
	DeletedChildren       []Pair              `json:"deletedChildren,omitempty"`

	// Duplicates holds guids that occur more than once on the server.
	Duplicates []string `json:"duplicates,omitempty"`
	// ClientDuplicates holds guids that occur more than once on the client.
	ClientDuplicates []string `json:"clientDuplicates,omitempty"`
	// Cycles holds guids whose parent chain loops back on itself.
	Cycles []string `json:"cycles,omitempty"`
	// DeletedParents pairs a live child with its tombstoned parent.
	DeletedParents []Pair `json:"deletedParents,omitempty"`
	// ParentNotFolder pairs a child with a live parent that is not a folder.
	ParentNotFolder []Pair `json:"parentNotFolder,omitempty"`
	// ChildrenOnNonFolder holds non-folder records carrying a children list.
	ChildrenOnNonFolder []string `json:"childrenOnNonFolder,omitempty"`
	// DuplicateChildren pairs a folder with a child it lists more than once.
	DuplicateChildren []Pair `json:"duplicateChildren,omitempty"`
	// Differences maps guids live on both sides to the payload fields that differ.
	Differences map[string][]string `json:"differences,omitempty"`
}

// ProblemCount is one line of a Results summary.
type ProblemCount struct {
	Name  string `json:"name"`
	Count int    `json:"count"`
}

// Summary counts each non-empty problem set, in a fixed order.
func (r *Results) Summary() []ProblemCount {
	all := []ProblemCount{
		{"clientMissing", len(r.ClientMissing)},
		{"serverMissing", len(r.ServerMissing)},
		{"serverDeleted", len(r.ServerDeleted)},
		{"orphans", len(r.Orphans)},
		{"parentChildMismatches", len(r.ParentChildMismatches)},
		{"multipleParents", len(r.MultipleParents)},
		{"missingChildren", len(r.MissingChildren)},
		{"deletedChildren", len(r.DeletedChildren)},
		{"duplicates", len(r.Duplicates)},
		{"clientDuplicates", len(r.ClientDuplicates)},
		{"cycles", len(r.Cycles)},
		{"deletedParents", len(r.DeletedParents)},
		{"parentNotFolder", len(r.ParentNotFolder)},
		{"childrenOnNonFolder", len(r.ChildrenOnNonFolder)},
		{"duplicateChildren", len(r.DuplicateChildren)},
		{"differences", len(r.Differences)},
	}
	out := make([]ProblemCount, 0, len(all))
	for _, pc := range all {
		if pc.Count > 0 {
			out = append(out, pc)
		}
	}
	return out
}

// AnyProblemsExist reports whether any problem set is non-empty.
func (r *Results) AnyProblemsExist() bool {
	return len(r.Summary()) > 0
}

type guidSet map[string]struct{}

func (s guidSet) add(guid string) { s[guid] = struct{}{} }

func (s guidSet) sorted() []string {
	if len(s) == 0 {
		return nil
	}
	out := make([]string, 0, len(s))
	for guid := range s {
		out = append(out, guid)
	}
	sort.Strings(out)
	return out
}

type pairSet map[Pair]struct{}

func (s pairSet) add(parent, child string) { s[Pair{Parent: parent, Child: child}] = struct{}{} }

func (s pairSet) sorted() []Pair {
	if len(s) == 0 {
		return nil
	}
	out := make([]Pair, 0, len(s))
	for p := range s {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Parent != out[j].Parent {
			return out[i].Parent < out[j].Parent
		}
		return out[i].Child < out[j].Child
	})
	return out
}
