package api

import (
	"context"
	"net/http"
)

// Resource is a catalogue entry bound to the client that dispatches it.
type Resource struct {
	client   *Client
	endpoint *Endpoint
}

// CallOption adjusts a single call.
type CallOption func(*Request)

// WithFile attaches a multipart file payload. Not allowed on GET.
func WithFile(f *File) CallOption {
	return func(r *Request) {
		r.File = f
	}
}

// WithProgress registers an upload progress callback.
func WithProgress(fn ProgressFunc) CallOption {
	return func(r *Request) {
		r.Progress = fn
	}
}

// Name returns the resource's logical name.
func (r *Resource) Name() string {
	return r.endpoint.Name()
}

// Endpoint returns the parsed templates behind the resource.
func (r *Resource) Endpoint() *Endpoint {
	return r.endpoint
}

// URL resolves the URL verb would be sent to, without the query string.
func (r *Resource) URL(verb string, args *Args) (string, error) {
	v, err := NormalizeVerb(verb)
	if err != nil {
		return "", err
	}
	return r.endpoint.Resolve(r.client.Config().APIURL, v, args)
}

// Call dispatches verb with args.
func (r *Resource) Call(ctx context.Context, verb string, args *Args, opts ...CallOption) (*Response, error) {
	return r.client.Execute(ctx, r.request(verb, args, opts))
}

// Go is the asynchronous form of Call.
func (r *Resource) Go(ctx context.Context, verb string, args *Args, opts ...CallOption) (<-chan Result, error) {
	return r.client.Go(ctx, r.request(verb, args, opts))
}

// Get dispatches a GET; args become the query string.
func (r *Resource) Get(ctx context.Context, args *Args) (*Response, error) {
	return r.Call(ctx, http.MethodGet, args)
}

// Post dispatches a POST with args as a form body.
func (r *Resource) Post(ctx context.Context, args *Args, opts ...CallOption) (*Response, error) {
	return r.Call(ctx, http.MethodPost, args, opts...)
}

// Put dispatches a PUT with args as a form body.
func (r *Resource) Put(ctx context.Context, args *Args, opts ...CallOption) (*Response, error) {
	return r.Call(ctx, http.MethodPut, args, opts...)
}

// Delete dispatches a DELETE with args as a form body.
func (r *Resource) Delete(ctx context.Context, args *Args, opts ...CallOption) (*Response, error) {
	return r.Call(ctx, http.MethodDelete, args, opts...)
}

func (r *Resource) request(verb string, args *Args, opts []CallOption) Request {
	req := Request{Verb: verb, Endpoint: r.endpoint, Args: args}
	for _, opt := range opts {
		opt(&req)
	}
	return req
}
