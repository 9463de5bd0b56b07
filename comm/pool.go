package comm

import (
	"io"
	"sync"
	"time"
)

// Pool is a communication pool which holds one or more connections to a
// device that will be closed if they are not in use, and re-opened as needed.
// It is concurrent safe.  Pools must be created with NewPool.
//
// A pool of size one serializes access to an instrument that can only hold
// one conversation at a time.
type Pool struct {
	// can assume chan and timer are created by NewPool in all methods.
	maxSize int                     // maximum number of connections, == cap(conns)
	onLease int                     // number of connections given out, <= cap(conns)
	timeout time.Duration           // time after len(conns) == maxSize to free all connections
	conns   chan io.ReadWriteCloser // the circular buffer of connections
	timer   *time.Timer             // timer used to destroy connections after all are returned
	maker   CreationFunc

	reclaiming bool // whether startReclaim's goroutine is running
	mu         *sync.Mutex
}

// NewPool creates a new Pool holding up to maxSize connections, which are
// freed after timeout of disuse and lazily recreated with maker.
func NewPool(maxSize int, timeout time.Duration, maker CreationFunc) *Pool {
	p := &Pool{
		maxSize: maxSize,
		timeout: timeout,
		conns:   make(chan io.ReadWriteCloser, maxSize),
		timer:   time.NewTimer(timeout),
		maker:   maker,
		mu:      &sync.Mutex{},
	}
	p.timer.Stop() // nothing to close initially
	return p
}

// Get retrieves a connection from the pool, blocking until one is available
// if all are in use.  It is guaranteed that there is no contention for the
// ReadWriter.
//
// When done with the connection, return it with Put, or discard it with
// Destroy if it has become no good (e.g., all calls error).
// ReturnWithError does the right thing in a deferred closure.
//
// If the error from Get is not nil, the connection must not be returned
// to the pool.
func (p *Pool) Get() (io.ReadWriter, error) {
	p.mu.Lock()
	p.timer.Stop()
	// short circuit: if a connection is available, immediately return it
	select {
	case ret := <-p.conns:
		p.onLease++
		p.mu.Unlock()
		return ret, nil
	default:
	}
	// if they're all given out, wait for one to come back.  The wait must
	// not hold the lock, Put takes it to return the connection.
	if p.onLease == p.maxSize {
		p.mu.Unlock()
		ret := <-p.conns
		p.mu.Lock()
		p.onLease++
		p.mu.Unlock()
		return ret, nil
	}
	// no connection available and they aren't all out; make one.
	// only increment the lease count if we are giving out something
	// other than garbage
	c, err := p.maker()
	if err == nil {
		p.onLease++
	}
	p.mu.Unlock()
	return c, err
}

// Put restores a connection to the pool.  It may be reused, or will be
// automatically freed after all connections are returned and the timeout
// has elapsed.  Junk connections (ones that always error) should be
// Destroy()'d and not returned with Put.
func (p *Pool) Put(rw io.ReadWriter) {
	rwc := (rw).(io.ReadWriteCloser)
	p.mu.Lock()
	// never blocks, the pool owns at most maxSize == cap(conns) connections
	p.conns <- rwc
	p.onLease--
	if len(p.conns) == p.maxSize {
		p.startReclaim()
	}
	p.mu.Unlock()
}

// Destroy immediately frees a connection from the pool.  This should be used
// instead of Put if the connection has gone bad.
func (p *Pool) Destroy(rw io.ReadWriter) {
	rwc := (rw).(io.ReadWriteCloser)
	rwc.Close()
	p.mu.Lock()
	p.onLease--
	p.mu.Unlock()
}

// ReturnWithError Puts the connection back if err is nil, otherwise Destroys
// it.  It is intended for use in a defer alongside a named error value.
func (p *Pool) ReturnWithError(rw io.ReadWriter, err error) {
	if rw == nil {
		return
	}
	if err == nil {
		p.Put(rw)
	} else {
		p.Destroy(rw)
	}
}

// Size returns the number of connections in the pool, or given out from it.
func (p *Pool) Size() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.conns) + p.onLease
}

// Active returns the number of connections owned by the pool that are
// currently given out.
func (p *Pool) Active() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.onLease
}

// startReclaim spawns another goroutine which will be used to close all
// connections in the pool once the idle timer fires.  Callers must hold p.mu.
func (p *Pool) startReclaim() {
	if !p.reclaiming {
		p.reclaiming = true
		p.timer.Reset(p.timeout)
		go func() {
			defer func() {
				p.mu.Lock()
				p.reclaiming = false
				p.mu.Unlock()
			}()
			<-p.timer.C
			for {
				select {
				case closer := <-p.conns:
					closer.Close()
				default:
					return
				}
			}
		}()
	}
}
