package remote

import (
	"context"
	"net/http"
	"net/url"

	"lodge/internal/application/collection"
	"lodge/internal/application/listutil"
	"lodge/internal/domain/failure"
	"lodge/internal/domain/member"
)

type dataEnvelope[T any] struct {
	Data T `json:"data"`
}

type pagination struct {
	Page       int `json:"page"`
	Limit      int `json:"limit"`
	Total      int `json:"total"`
	TotalPages int `json:"totalPages"`
}

type listEnvelope[T any] struct {
	Data       []T        `json:"data"`
	Pagination pagination `json:"pagination"`
}

type deleteEnvelope struct {
	Success *bool `json:"success"`
}

// Resource is the list + CRUD surface of one API collection, e.g. "members".
type Resource[T collection.Entity, P any] struct {
	client *Client
	name   string
}

// Ensure Resource implements collection.Remote.
var _ collection.Remote[member.Member, member.Input] = (*Resource[member.Member, member.Input])(nil)

// NewResource binds a collection name to the client.
// PRE: name is a bare path segment such as "members"
func NewResource[T collection.Entity, P any](client *Client, name string) *Resource[T, P] {
	return &Resource[T, P]{client: client, name: name}
}

// List reads one page: GET /{resource}?search=&page=&limit=&<filters>.
func (r *Resource[T, P]) List(ctx context.Context, q listutil.Query) (collection.Page[T], error) {
	var env listEnvelope[T]
	err := r.client.do(ctx, call{
		op:     "GET /" + r.name,
		method: http.MethodGet,
		path:   r.name,
		query:  q.Values(),
	}, &env)
	if err != nil {
		return collection.Page[T]{}, err
	}
	records := env.Data
	if records == nil {
		records = []T{}
	}
	return collection.Page[T]{
		Records:    records,
		Page:       env.Pagination.Page,
		PageSize:   env.Pagination.Limit,
		Total:      env.Pagination.Total,
		TotalPages: env.Pagination.TotalPages,
	}, nil
}

// Get reads one record: GET /{resource}/{id}.
func (r *Resource[T, P]) Get(ctx context.Context, id string) (T, error) {
	var env dataEnvelope[T]
	err := r.client.do(ctx, call{
		op:     "GET /" + r.name + "/{id}",
		method: http.MethodGet,
		path:   r.name + "/" + url.PathEscape(id),
	}, &env)
	return env.Data, err
}

// Create writes a new record: POST /{resource}.
func (r *Resource[T, P]) Create(ctx context.Context, payload P) (T, error) {
	var env dataEnvelope[T]
	err := r.client.do(ctx, call{
		op:     "POST /" + r.name,
		method: http.MethodPost,
		path:   r.name,
		body:   payload,
	}, &env)
	return env.Data, err
}

// Update replaces a record: PUT /{resource}/{id}.
func (r *Resource[T, P]) Update(ctx context.Context, id string, payload P) (T, error) {
	var env dataEnvelope[T]
	err := r.client.do(ctx, call{
		op:     "PUT /" + r.name + "/{id}",
		method: http.MethodPut,
		path:   r.name + "/" + url.PathEscape(id),
		body:   payload,
	}, &env)
	return env.Data, err
}

// Delete removes a record: DELETE /{resource}/{id}.
// POST: {"success": false} is reported as a failure
func (r *Resource[T, P]) Delete(ctx context.Context, id string) error {
	var env deleteEnvelope
	err := r.client.do(ctx, call{
		op:     "DELETE /" + r.name + "/{id}",
		method: http.MethodDelete,
		path:   r.name + "/" + url.PathEscape(id),
	}, &env)
	if err != nil {
		return err
	}
	if env.Success != nil && !*env.Success {
		return &failure.Error{Kind: failure.KindUnknown, Status: http.StatusOK, Message: "server did not confirm delete of " + id}
	}
	return nil
}
