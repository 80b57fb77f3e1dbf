// Package controllers binds the generic collection controller to the
// members, documents and programs resources.
package controllers

import (
	"time"

	"lodge/internal/application/listutil"
)

// Resource names as they appear in API paths.
const (
	ResourceMembers   = "members"
	ResourceDocuments = "documents"
	ResourcePrograms  = "programs"
)

// DefaultSearchDelay is the quiet period before typed search text is fetched.
const DefaultSearchDelay = 300 * time.Millisecond

// Options tunes a list controller. Zero values select the defaults.
type Options struct {
	PageSize    int
	SearchDelay time.Duration
}

func (o Options) withDefaults() Options {
	if o.PageSize <= 0 {
		o.PageSize = listutil.DefaultPerPage
	}
	if o.SearchDelay <= 0 {
		o.SearchDelay = DefaultSearchDelay
	}
	return o
}

// categorical builds a filter that defaults to listutil.All.
func categorical(name string, values []string) listutil.FilterKey {
	allowed := make([]string, 0, len(values)+1)
	allowed = append(allowed, listutil.All)
	allowed = append(allowed, values...)
	return listutil.FilterKey{Name: name, Default: listutil.All, Values: allowed}
}
