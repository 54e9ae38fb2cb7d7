package meeting

import (
	"context"
	"errors"
	"sync"

	"github.com/vocaris/vocaris/backend"
)

var errTransport = errors.New("connection refused")

type statusReply struct {
	status backend.MeetingStatus
	err    error
}

type fakeBackend struct {
	mu sync.Mutex

	start    backend.StartResponse
	startErr error
	endErr   error
	ends     int

	statuses   []statusReply
	statusHits int
	// statusGate blocks Status until closed when set.
	statusGate chan struct{}

	results     map[backend.Mode][]backend.Results
	resultsErr  error
	transcripts []backend.TranscriptQuery
}

func (f *fakeBackend) StartMeeting(ctx context.Context, request backend.StartRequest) (backend.StartResponse, error) {
	if f.startErr != nil {
		return backend.StartResponse{}, f.startErr
	}
	response := f.start
	if response.MeetingURL == "" {
		response.MeetingURL = request.MeetingURL
	}
	return response, nil
}

func (f *fakeBackend) EndMeeting(ctx context.Context, botID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.ends++
	return f.endErr
}

func (f *fakeBackend) Status(ctx context.Context, botID string) (backend.MeetingStatus, error) {
	if f.statusGate != nil {
		select {
		case <-f.statusGate:
		case <-ctx.Done():
			return backend.MeetingStatus{}, ctx.Err()
		}
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.statusHits >= len(f.statuses) {
		return backend.MeetingStatus{BotID: botID, IsActive: true}, nil
	}
	reply := f.statuses[f.statusHits]
	f.statusHits++
	return reply.status, reply.err
}

func (f *fakeBackend) Transcripts(ctx context.Context, query backend.TranscriptQuery) (backend.Results, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.transcripts = append(f.transcripts, query)
	if f.resultsErr != nil {
		return backend.Results{}, f.resultsErr
	}
	queue := f.results[query.Mode]
	if len(queue) == 0 {
		return backend.Results{Shape: backend.ShapeEmpty, IsEmpty: true}, nil
	}
	next := queue[0]
	if len(queue) > 1 {
		f.results[query.Mode] = queue[1:]
	}
	return next, nil
}

func (f *fakeBackend) transcriptCalls() []backend.TranscriptQuery {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]backend.TranscriptQuery(nil), f.transcripts...)
}

func inactive() statusReply {
	return statusReply{status: backend.MeetingStatus{BotID: "b1"}}
}

func active() statusReply {
	return statusReply{status: backend.MeetingStatus{BotID: "b1", IsActive: true}}
}

func transportFailure() statusReply {
	return statusReply{err: errTransport}
}
