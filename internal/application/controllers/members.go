package controllers

import (
	"lodge/internal/application/collection"
	"lodge/internal/application/listutil"
	"lodge/internal/application/projections"
	"lodge/internal/domain/member"
)

// MemberFilters permits filtering members by grade and status.
var MemberFilters = listutil.FilterSpec{Keys: []listutil.FilterKey{
	categorical("grade", member.Grades),
	categorical("status", member.Statuses),
}}

// Members is the member list: search, filters, paging and CRUD.
type Members struct {
	*collection.Controller[member.Member, member.Input]
	stats projections.Memo[uint64, projections.MemberStats]
}

// NewMembers creates the member list controller.
// PRE: remote is non-nil
// POST: Returns an idle controller; call Refresh to load the first page
func NewMembers(remote collection.Remote[member.Member, member.Input], opts Options) *Members {
	opts = opts.withDefaults()
	store := collection.NewStore(ResourceMembers, remote, listutil.NewQuery(MemberFilters, opts.PageSize))
	return &Members{Controller: collection.NewController(store, opts.SearchDelay)}
}

// Stats returns grade and status breakdowns of the held page.
// POST: The same pointer is returned until the held records are replaced
func (m *Members) Stats() *projections.MemberStats {
	snap := m.Store().Snapshot()
	return m.stats.Get(snap.RecordsVersion, func() projections.MemberStats {
		return projections.QueryMemberStats(snap.Records)
	})
}
