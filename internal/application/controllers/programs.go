package controllers

import (
	"lodge/internal/application/collection"
	"lodge/internal/application/listutil"
	"lodge/internal/application/projections"
	"lodge/internal/domain/program"
)

// ProgramFilters permits filtering programs by type and status.
var ProgramFilters = listutil.FilterSpec{Keys: []listutil.FilterKey{
	categorical("type", program.ValidTypes),
	categorical("status", program.ValidStatuses),
}}

// Programs is the program (meeting and event) list.
type Programs struct {
	*collection.Controller[program.Program, program.Input]
	stats projections.Memo[uint64, projections.ProgramStats]
}

// NewPrograms creates the program list controller.
func NewPrograms(remote collection.Remote[program.Program, program.Input], opts Options) *Programs {
	opts = opts.withDefaults()
	store := collection.NewStore(ResourcePrograms, remote, listutil.NewQuery(ProgramFilters, opts.PageSize))
	return &Programs{Controller: collection.NewController(store, opts.SearchDelay)}
}

// Stats returns type and status breakdowns of the held page.
func (p *Programs) Stats() *projections.ProgramStats {
	snap := p.Store().Snapshot()
	return p.stats.Get(snap.RecordsVersion, func() projections.ProgramStats {
		return projections.QueryProgramStats(snap.Records)
	})
}
