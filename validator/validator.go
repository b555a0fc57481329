package validator

import (
	"sort"

	"github.com/opd-ai/cryptosync/record"
	"github.com/sirupsen/logrus"
)

// RootGUID is the implicit root of the bookmark tree.
const RootGUID = "places"

// replica is one side's records indexed by guid. The first occurrence of a
// duplicated guid wins.
type replica struct {
	order      []string
	live       map[string]*record.BookmarkRecord
	tombstones map[string]*record.BookmarkRecord
	duplicates guidSet
}

func indexReplica(records []*record.BookmarkRecord) *replica {
	r := &replica{
		live:       make(map[string]*record.BookmarkRecord, len(records)),
		tombstones: make(map[string]*record.BookmarkRecord),
		duplicates: guidSet{},
	}
	for _, rec := range records {
		if rec == nil {
			continue
		}
		guid := rec.GUID()
		if r.has(guid) {
			r.duplicates.add(guid)
			continue
		}
		r.order = append(r.order, guid)
		if rec.IsDeleted() {
			r.tombstones[guid] = rec
		} else {
			r.live[guid] = rec
		}
	}
	return r
}

func (r *replica) has(guid string) bool {
	_, live := r.live[guid]
	_, dead := r.tombstones[guid]
	return live || dead
}

// Validate compares the client's records with the server's. Structural
// checks run against the server replica.
func Validate(client, server []*record.BookmarkRecord) *Results {
	c := indexReplica(client)
	s := indexReplica(server)

	res := &Results{}
	inspectStructure(s, res)
	inspectChildren(s, res)
	compareReplicas(c, s, res)
	res.ClientDuplicates = c.duplicates.sorted()

	logResults("Validate", len(client), len(server), res)
	return res
}

// ValidateServer runs the single-replica structural checks: orphans,
// parent/child mismatches, multiple parents and the anomalies that need
// only one side (duplicates, cycles, misplaced children).
func ValidateServer(server []*record.BookmarkRecord) *Results {
	s := indexReplica(server)
	res := &Results{}
	inspectStructure(s, res)

	logResults("ValidateServer", 0, len(server), res)
	return res
}

// inspectStructure fills the checks that look at one replica's tree shape.
func inspectStructure(r *replica, res *Results) {
	orphans := pairSet{}
	mismatches := pairSet{}
	deletedParents := pairSet{}
	parentNotFolder := pairSet{}
	childrenOnNonFolder := guidSet{}
	duplicateChildren := pairSet{}
	parents := make(map[string][]string)

	listed := pairSet{}
	for _, guid := range r.order {
		if folder, ok := r.live[guid]; ok {
			for _, child := range folder.Children {
				listed.add(guid, child)
			}
		}
	}
	isListed := func(parent, child string) bool {
		_, ok := listed[Pair{Parent: parent, Child: child}]
		return ok
	}

	// Child side: does each live record's declared parent own it?
	for _, guid := range r.order {
		rec, ok := r.live[guid]
		if !ok || guid == RootGUID {
			continue
		}
		parentID := rec.ParentID
		if parentID == RootGUID {
			if _, ok := r.live[RootGUID]; ok && !isListed(RootGUID, guid) {
				mismatches.add(parentID, guid)
			}
			continue
		}

		parent, live := r.live[parentID]
		switch {
		case !live:
			orphans.add(parentID, guid)
			if _, dead := r.tombstones[parentID]; dead {
				deletedParents.add(parentID, guid)
			}
		case !parent.IsFolder():
			orphans.add(parentID, guid)
			parentNotFolder.add(parentID, guid)
		case !isListed(parentID, guid):
			mismatches.add(parentID, guid)
		}
	}

	// Parent side: does each listed child point back at its folder?
	for _, guid := range r.order {
		folder, ok := r.live[guid]
		if !ok || len(folder.Children) == 0 {
			continue
		}
		if !folder.IsFolder() {
			childrenOnNonFolder.add(guid)
		}

		seen := make(map[string]bool, len(folder.Children))
		for _, child := range folder.Children {
			if seen[child] {
				duplicateChildren.add(guid, child)
				continue
			}
			seen[child] = true
			parents[child] = append(parents[child], guid)

			if rec, ok := r.live[child]; ok && rec.ParentID != guid {
				mismatches.add(guid, child)
			}
		}
	}

	multiple := make(map[string][]string)
	for child, ps := range parents {
		if len(ps) > 1 {
			sorted := append([]string(nil), ps...)
			sort.Strings(sorted)
			multiple[child] = sorted
		}
	}

	res.Orphans = orphans.sorted()
	res.ParentChildMismatches = mismatches.sorted()
	if len(multiple) > 0 {
		res.MultipleParents = multiple
	}
	res.Duplicates = r.duplicates.sorted()
	res.Cycles = findCycles(r)
	res.DeletedParents = deletedParents.sorted()
	res.ParentNotFolder = parentNotFolder.sorted()
	res.ChildrenOnNonFolder = childrenOnNonFolder.sorted()
	res.DuplicateChildren = duplicateChildren.sorted()
}

// inspectChildren reports children entries that reference records the
// replica does not hold live.
func inspectChildren(r *replica, res *Results) {
	missing := pairSet{}
	deleted := pairSet{}
	for _, guid := range r.order {
		folder, ok := r.live[guid]
		if !ok {
			continue
		}
		for _, child := range folder.Children {
			if _, live := r.live[child]; live {
				continue
			}
			if _, dead := r.tombstones[child]; dead {
				deleted.add(guid, child)
			} else {
				missing.add(guid, child)
			}
		}
	}
	res.MissingChildren = missing.sorted()
	res.DeletedChildren = deleted.sorted()
}

// findCycles walks each parent chain once, marking nodes as it goes.
func findCycles(r *replica) []string {
	const (
		unvisited = iota
		walking
		finished
	)
	state := make(map[string]int, len(r.live))
	cycles := guidSet{}

	for _, start := range r.order {
		if _, ok := r.live[start]; !ok || state[start] != unvisited {
			continue
		}
		var path []string
		cur := start
		for {
			rec, ok := r.live[cur]
			if !ok || state[cur] == finished {
				break
			}
			if state[cur] == walking {
				for i := len(path) - 1; i >= 0; i-- {
					cycles.add(path[i])
					if path[i] == cur {
						break
					}
				}
				break
			}
			state[cur] = walking
			path = append(path, cur)
			cur = rec.ParentID
		}
		for _, guid := range path {
			state[guid] = finished
		}
	}
	return cycles.sorted()
}

// compareReplicas fills the checks that need both sides.
func compareReplicas(client, server *replica, res *Results) {
	clientMissing := guidSet{}
	serverMissing := guidSet{}
	serverDeleted := guidSet{}
	differences := make(map[string][]string)

	for _, guid := range server.order {
		if _, live := server.live[guid]; live && !client.has(guid) {
			clientMissing.add(guid)
		}
	}

	for _, guid := range client.order {
		c, live := client.live[guid]
		if !live {
			continue
		}
		if s, ok := server.live[guid]; ok {
			if fields := diffFields(c, s); len(fields) > 0 {
				differences[guid] = fields
			}
			continue
		}
		if _, dead := server.tombstones[guid]; dead {
			serverDeleted.add(guid)
		} else {
			serverMissing.add(guid)
		}
	}

	res.ClientMissing = clientMissing.sorted()
	res.ServerMissing = serverMissing.sorted()
	res.ServerDeleted = serverDeleted.sorted()
	if len(differences) > 0 {
		res.Differences = differences
	}
}

// diffFields names the payload fields that differ, using their wire names.
func diffFields(a, b *record.BookmarkRecord) []string {
	var fields []string
	check := func(name string, differ bool) {
		if differ {
			fields = append(fields, name)
		}
	}
	check("bmkUri", a.BookmarkURI != b.BookmarkURI)
	check("children", !equalStrings(a.Children, b.Children))
	check("description", a.Description != b.Description)
	check("keyword", a.Keyword != b.Keyword)
	check("loadInSidebar", a.LoadInSidebar != b.LoadInSidebar)
	check("parentid", a.ParentID != b.ParentID)
	check("pos", a.Pos != b.Pos)
	check("tags", !equalStrings(a.Tags, b.Tags))
	check("title", a.Title != b.Title)
	check("type", a.Type != b.Type)
	return fields
}

func equalStrings(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func logResults(function string, clientCount, serverCount int, res *Results) {
	entry := logrus.WithFields(logrus.Fields{
		"function":     function,
		"client_count": clientCount,
		"server_count": serverCount,
	})
	for _, pc := range res.Summary() {
		entry = entry.WithField(pc.Name, pc.Count)
	}
	entry.Debug("Validation complete")
}
