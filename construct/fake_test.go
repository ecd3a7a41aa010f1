package construct

import (
	"context"
	"fmt"
)

type engineCall struct {
	Op   string
	ID   string
	Spec any
}

// recordingEngine records every primitive it receives. Ops listed in fail
// return the mapped error.
type recordingEngine struct {
	calls []engineCall
	fail  map[string]error
}

func newRecordingEngine() *recordingEngine {
	return &recordingEngine{fail: map[string]error{}}
}

func (e *recordingEngine) record(op, id string, spec any) error {
	e.calls = append(e.calls, engineCall{Op: op, ID: id, Spec: spec})
	return e.fail[op]
}

func (e *recordingEngine) ops() []string {
	out := make([]string, len(e.calls))
	for i, c := range e.calls {
		out[i] = c.Op
	}
	return out
}

func (e *recordingEngine) find(op string) (engineCall, bool) {
	for _, c := range e.calls {
		if c.Op == op {
			return c, true
		}
	}
	return engineCall{}, false
}

func (e *recordingEngine) CreateBucket(_ context.Context, id string, spec BucketSpec) (BucketRef, error) {
	if err := e.record("CreateBucket", id, spec); err != nil {
		return BucketRef{}, err
	}
	return BucketRef{ID: id, Name: "bucket-" + id}, nil
}

func (e *recordingEngine) CreateTable(_ context.Context, id string, spec TableSpec) (TableRef, error) {
	if err := e.record("CreateTable", id, spec); err != nil {
		return TableRef{}, err
	}
	name := spec.Name
	if name == "" {
		name = "generated-" + id
	}
	return TableRef{ID: id, Name: name, Arn: "arn:" + name}, nil
}

func (e *recordingEngine) CreateComputeHandler(_ context.Context, id string, spec HandlerSpec) (HandlerRef, error) {
	if err := e.record("CreateComputeHandler", id, spec); err != nil {
		return HandlerRef{}, err
	}
	return HandlerRef{ID: id, Arn: "arn:" + id}, nil
}

type grantCall struct {
	Handler HandlerRef
	Table   TableRef
	Mode    GrantMode
}

func (e *recordingEngine) Grant(_ context.Context, handler HandlerRef, table TableRef, mode GrantMode) error {
	return e.record("Grant", handler.ID, grantCall{Handler: handler, Table: table, Mode: mode})
}

type subscribeCall struct {
	Bucket  BucketRef
	Handler HandlerRef
}

func (e *recordingEngine) SubscribeOnCreate(_ context.Context, bucket BucketRef, handler HandlerRef) error {
	return e.record("SubscribeOnCreate", bucket.ID, subscribeCall{Bucket: bucket, Handler: handler})
}

type apiCall struct {
	Handler HandlerRef
	Cors    *CorsConfig
}

func (e *recordingEngine) CreateApiFront(_ context.Context, id string, handler HandlerRef, cors *CorsConfig) (ApiRef, error) {
	if err := e.record("CreateApiFront", id, apiCall{Handler: handler, Cors: cors}); err != nil {
		return ApiRef{}, err
	}
	return ApiRef{ID: id, URL: "https://" + id}, nil
}

// stubPackager returns the code path unchanged, or err when set.
type stubPackager struct {
	calls int
	err   error
}

func (p *stubPackager) Package(_ context.Context, spec CodeSpec, _ Runtime) (CodeRef, error) {
	p.calls++
	if p.err != nil {
		return CodeRef{}, p.err
	}
	return CodeRef{Path: spec.Path, Bundled: spec.Bundling != nil}, nil
}

var errRejected = fmt.Errorf("rejected by engine")
