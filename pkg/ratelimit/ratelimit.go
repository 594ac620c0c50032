// Package ratelimit sequences requests per client IP. Every IP has its own
// goroutine, so requests from one client run one at a time and heavy ones
// (QR rendering) observe a cooldown, while other clients are unaffected.
package ratelimit

import (
	"context"
	"errors"
	"net"
	"net/http"
	"strconv"
	"time"
)

// Kind distinguishes cheap requests from heavy ones.
type Kind int

const (
	// General requests only queue behind the same client's other requests.
	General Kind = iota
	// Heavy requests additionally wait out the cooldown after the previous
	// heavy request of the same client.
	Heavy
)

// ErrBusy means the client already has too many requests queued.
var ErrBusy = errors.New("ratelimit: too many queued requests")

// QueueDepth bounds the per-IP backlog.
const QueueDepth = 16

// IdleTimeout is how long an IP worker lingers without requests.
const IdleTimeout = time.Minute

// Limiter coordinates per-IP workers without mutexes. A nil *Limiter lets
// every request through.
type Limiter struct {
	heavyCooldown time.Duration
	requests      chan keyedRequest
	retire        chan retireRequest
	now           func() time.Time
	idle          time.Duration
}

type keyedRequest struct {
	ip  string
	req ipRequest
}

type ipRequest struct {
	ctx      context.Context
	kind     Kind
	arrived  time.Time
	response chan acquireResponse
}

type acquireResponse struct {
	release      chan struct{}
	waitDuration time.Duration
	err          error
}

// retireRequest is sent by an idle worker. The loop answers true when the
// worker may exit, false when a request slipped in meanwhile.
type retireRequest struct {
	ip    string
	reply chan bool
}

// Permit is an acquired slot. Release it when the handler is done.
type Permit struct {
	release chan struct{}
	// Waited is the time spent queued and cooling down.
	Waited time.Duration
}

// Release lets the next queued request of the same IP proceed. Safe to call
// more than once and on a nil permit.
func (p *Permit) Release() {
	if p == nil || p.release == nil {
		return
	}
	close(p.release)
	p.release = nil
}

// New starts the coordination goroutine.
func New(heavyCooldown time.Duration) *Limiter {
	l := &Limiter{
		heavyCooldown: heavyCooldown,
		requests:      make(chan keyedRequest),
		retire:        make(chan retireRequest),
		now:           time.Now,
		idle:          IdleTimeout,
	}
	go l.loop()
	return l
}

// Acquire reserves a slot for ip. It blocks until the slot is free, the
// context ends, or the IP's queue is full (ErrBusy).
func (l *Limiter) Acquire(ctx context.Context, ip string, kind Kind) (*Permit, error) {
	if l == nil {
		return nil, nil
	}

	respCh := make(chan acquireResponse, 1)
	req := ipRequest{
		ctx:      ctx,
		kind:     kind,
		arrived:  l.now(),
		response: respCh,
	}

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case l.requests <- keyedRequest{ip: ip, req: req}:
	}

	select {
	case <-ctx.Done():
		// The worker may still hand us a slot; give it back.
		go func() {
			if resp := <-respCh; resp.release != nil {
				close(resp.release)
			}
		}()
		return nil, ctx.Err()
	case resp := <-respCh:
		if resp.err != nil {
			return nil, resp.err
		}
		return &Permit{release: resp.release, Waited: resp.waitDuration}, nil
	}
}

func (l *Limiter) loop() {
	workers := make(map[string]chan ipRequest)

	for {
		select {
		case keyed := <-l.requests:
			ch, ok := workers[keyed.ip]
			if !ok {
				ch = make(chan ipRequest, QueueDepth)
				workers[keyed.ip] = ch
				go l.runIPWorker(keyed.ip, ch)
			}
			select {
			case ch <- keyed.req:
			default:
				keyed.req.response <- acquireResponse{err: ErrBusy}
			}

		case r := <-l.retire:
			ch := workers[r.ip]
			if len(ch) > 0 {
				r.reply <- false
				continue
			}
			delete(workers, r.ip)
			r.reply <- true
		}
	}
}

func (l *Limiter) runIPWorker(ip string, requests <-chan ipRequest) {
	var lastHeavyFinish time.Time
	idle := time.NewTimer(l.idle)
	defer idle.Stop()

	for {
		var req ipRequest
		select {
		case req = <-requests:
		case <-idle.C:
			reply := make(chan bool, 1)
			l.retire <- retireRequest{ip: ip, reply: reply}
			if <-reply {
				return
			}
			idle.Reset(l.idle)
			continue
		}

		if req.ctx.Err() != nil {
			req.response <- acquireResponse{err: req.ctx.Err()}
			continue
		}

		if req.kind == Heavy && !lastHeavyFinish.IsZero() {
			readyAt := lastHeavyFinish.Add(l.heavyCooldown)
			if wait := readyAt.Sub(l.now()); wait > 0 {
				timer := time.NewTimer(wait)
				select {
				case <-req.ctx.Done():
					timer.Stop()
					req.response <- acquireResponse{err: req.ctx.Err()}
					continue
				case <-timer.C:
				}
			}
		}

		waited := l.now().Sub(req.arrived)
		if waited < 0 {
			waited = 0
		}
		release := make(chan struct{})
		req.response <- acquireResponse{release: release, waitDuration: waited}
		<-release

		if req.kind == Heavy {
			lastHeavyFinish = l.now()
		}
		if !idle.Stop() {
			select {
			case <-idle.C:
			default:
			}
		}
		idle.Reset(l.idle)
	}
}

// Middleware wraps next so each request holds a permit of the given kind.
// Queue overflow answers 429.
func (l *Limiter) Middleware(kind Kind, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		permit, err := l.Acquire(r.Context(), ClientIP(r), kind)
		switch {
		case errors.Is(err, ErrBusy):
			w.Header().Set("Retry-After", strconv.Itoa(int(l.heavyCooldown/time.Second)+1))
			http.Error(w, "Too Many Requests", http.StatusTooManyRequests)
			return
		case err != nil:
			// Client went away while queued.
			return
		}
		defer permit.Release()
		next.ServeHTTP(w, r)
	})
}

// ClientIP is the host part of RemoteAddr.
func ClientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
