package llm

import (
	"context"
	"errors"
	"sync"

	llmclient "insightpipe/internal/llmClient"
)

// ErrScriptExhausted is returned by FakeClient once every scripted reply
// has been consumed.
var ErrScriptExhausted = errors.New("fake LLM: script exhausted")

// FakeReply is one scripted oracle answer (or failure).
type FakeReply struct {
	Text string
	Err  error
}

// FakeClient replays scripted replies in order, for offline/testing use.
// When Reply is set it overrides the script and computes each answer from
// the request.
type FakeClient struct {
	Reply func(req llmclient.Request) (string, error)

	mu     sync.Mutex
	script []FakeReply
	calls  []llmclient.Request
}

func NewFakeClient(script ...FakeReply) *FakeClient {
	return &FakeClient{script: script}
}

func (f *FakeClient) Name() string { return "FakeLLM" }
func (f *FakeClient) Close() error { return nil }

// Enqueue appends replies to the script.
func (f *FakeClient) Enqueue(replies ...FakeReply) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.script = append(f.script, replies...)
}

// Calls returns every request seen so far.
func (f *FakeClient) Calls() []llmclient.Request {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]llmclient.Request, len(f.calls))
	copy(out, f.calls)
	return out
}

// CallCount returns how many requests reached the fake.
func (f *FakeClient) CallCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

func (f *FakeClient) Complete(_ context.Context, req llmclient.Request) (string, error) {
	f.mu.Lock()
	f.calls = append(f.calls, req)
	reply := f.Reply
	var next FakeReply
	havNext := false
	if reply == nil {
		if len(f.script) > 0 {
			next = f.script[0]
			f.script = f.script[1:]
			havNext = true
		}
	}
	f.mu.Unlock()

	if reply != nil {
		return reply(req)
	}
	if !havNext {
		return "", ErrScriptExhausted
	}
	return next.Text, next.Err
}
