package remote

import (
	"context"
	"net/http"
	"net/url"

	"lodge/internal/domain/attendance"
)

// AttendanceAPI is the attendance sub-resource of programs.
type AttendanceAPI struct {
	client *Client
}

// NewAttendanceAPI binds the attendance endpoints to the client.
func NewAttendanceAPI(client *Client) *AttendanceAPI {
	return &AttendanceAPI{client: client}
}

// ListAttendance reads a program's roster: GET /programs/{id}/attendance.
// POST: Returns a non-nil slice on success
func (a *AttendanceAPI) ListAttendance(ctx context.Context, programID string) ([]attendance.Record, error) {
	var env dataEnvelope[[]attendance.Record]
	err := a.client.do(ctx, call{
		op:     "GET /programs/{id}/attendance",
		method: http.MethodGet,
		path:   "programs/" + url.PathEscape(programID) + "/attendance",
	}, &env)
	if err != nil {
		return nil, err
	}
	if env.Data == nil {
		return []attendance.Record{}, nil
	}
	return env.Data, nil
}

// RecordAttendance writes one member's status: POST /programs/{id}/attendance.
// POST: Returns the server's canonical record
func (a *AttendanceAPI) RecordAttendance(ctx context.Context, programID string, cmd attendance.Command) (attendance.Record, error) {
	var env dataEnvelope[attendance.Record]
	err := a.client.do(ctx, call{
		op:     "POST /programs/{id}/attendance",
		method: http.MethodPost,
		path:   "programs/" + url.PathEscape(programID) + "/attendance",
		body:   cmd,
	}, &env)
	return env.Data, err
}
