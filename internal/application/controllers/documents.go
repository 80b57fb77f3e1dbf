package controllers

import (
	"lodge/internal/application/collection"
	"lodge/internal/application/listutil"
	"lodge/internal/application/projections"
	"lodge/internal/domain/document"
	"lodge/internal/domain/member"
)

// DocumentFilters permits filtering documents by category and the minimum
// grade allowed to read them.
var DocumentFilters = listutil.FilterSpec{Keys: []listutil.FilterKey{
	categorical("category", document.Categories),
	categorical("grade", member.Grades),
}}

// Documents is the document library list.
type Documents struct {
	*collection.Controller[document.Document, document.Input]
	stats projections.Memo[uint64, projections.DocumentStats]
}

// NewDocuments creates the document list controller.
func NewDocuments(remote collection.Remote[document.Document, document.Input], opts Options) *Documents {
	opts = opts.withDefaults()
	store := collection.NewStore(ResourceDocuments, remote, listutil.NewQuery(DocumentFilters, opts.PageSize))
	return &Documents{Controller: collection.NewController(store, opts.SearchDelay)}
}

// Stats returns the category breakdown of the held page.
func (d *Documents) Stats() *projections.DocumentStats {
	snap := d.Store().Snapshot()
	return d.stats.Get(snap.RecordsVersion, func() projections.DocumentStats {
		return projections.QueryDocumentStats(snap.Records)
	})
}
