package comm_test

import (
	"bytes"
	"errors"
	"io"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/alexkolodchuk/maxigauge/comm"
)

func tcpEchoServer(t *testing.T) string {
	ln, err := net.Listen("tcp", "localhost:0")
	if err != nil {
		t.Fatal("could not listen, test aborted")
	}
	t.Cleanup(func() { ln.Close() })
	go func() {
		for {
			conn, err := ln.Accept()
			if err != nil {
				return
			}
			go func() { io.Copy(conn, conn) }()
		}
	}()
	return ln.Addr().String()
}

func TestPoolGivesOutToCapacity(t *testing.T) {
	addr := tcpEchoServer(t)
	maker := func() (io.ReadWriteCloser, error) {
		return net.Dial("tcp", addr)
	}
	pool := comm.NewPool(3, time.Second, maker)
	for i := 0; i < 3; i++ {
		conn, err := pool.Get()
		if err != nil {
			t.Fatal("could not get connection:", err)
		}
		if conn == nil {
			t.Fatal("got nil connection without error")
		}
	}
	if pool.Active() != 3 {
		t.Errorf("expected 3 active connections, got %d", pool.Active())
	}
}

func TestPoolReusesReleasedConnections(t *testing.T) {
	addr := tcpEchoServer(t)
	made := 0
	maker := func() (io.ReadWriteCloser, error) {
		made++
		return net.Dial("tcp", addr)
	}
	pool := comm.NewPool(1, time.Minute, maker)
	for i := 0; i < 5; i++ {
		conn, err := pool.Get()
		if err != nil {
			t.Fatal("could not get connection:", err)
		}
		pool.Put(conn)
	}
	if made != 1 {
		t.Errorf("expected a single connection to be made and reused, got %d", made)
	}
}

func TestPoolMaintainsSize(t *testing.T) {
	addr := tcpEchoServer(t)
	maker := func() (io.ReadWriteCloser, error) {
		return net.Dial("tcp", addr)
	}
	pool := comm.NewPool(2, time.Second, maker)
	held := []io.ReadWriter{}
	for i := 0; i < 2; i++ {
		rw, err := pool.Get()
		if err != nil {
			t.Fatal("could not get connection:", err)
		}
		held = append(held, rw)
	}
	newConn := make(chan io.ReadWriter, 1)
	// now that they are all taken out, try to get a new one
	go func() {
		rw, _ := pool.Get()
		newConn <- rw
	}()
	select {
	case <-newConn:
		t.Fatal("failed to prevent pool overflow")
	case <-time.After(250 * time.Millisecond):
	}
	pool.Put(held[0])
	select {
	case <-newConn:
	case <-time.After(time.Second):
		t.Fatal("returned connection was not handed to the waiter")
	}
}

func TestReturnWithErrorDestroysBadConnections(t *testing.T) {
	addr := tcpEchoServer(t)
	made := 0
	maker := func() (io.ReadWriteCloser, error) {
		made++
		return net.Dial("tcp", addr)
	}
	pool := comm.NewPool(1, time.Minute, maker)
	conn, err := pool.Get()
	if err != nil {
		t.Fatal("could not get connection:", err)
	}
	pool.ReturnWithError(conn, io.ErrUnexpectedEOF)
	conn, err = pool.Get()
	if err != nil {
		t.Fatal("could not get connection:", err)
	}
	pool.ReturnWithError(conn, nil)
	if made != 2 {
		t.Errorf("expected destroyed connection to be remade, made %d", made)
	}
}

func TestPoolConcurrentGetPut(t *testing.T) {
	addr := tcpEchoServer(t)
	maker := func() (io.ReadWriteCloser, error) {
		return net.Dial("tcp", addr)
	}
	pool := comm.NewPool(2, time.Minute, maker)
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 25; j++ {
				conn, err := pool.Get()
				if err != nil {
					t.Error("could not get connection:", err)
					return
				}
				pool.ReturnWithError(conn, nil)
			}
		}()
	}
	wg.Wait()
	if pool.Active() != 0 {
		t.Errorf("expected no active leases after all returns, got %d", pool.Active())
	}
	if pool.Size() > 2 {
		t.Errorf("expected at most 2 pooled connections, got %d", pool.Size())
	}
}

func TestTimeoutWrapperEnforcesReadDeadline(t *testing.T) {
	client, server := net.Pipe()
	defer client.Close()
	defer server.Close()
	wrap, err := comm.NewTimeout(client, 50*time.Millisecond)
	if err != nil {
		t.Fatal(err)
	}
	buf := make([]byte, 1)
	_, err = wrap.Read(buf)
	if err == nil {
		t.Fatal("expected a timeout error reading from an idle pipe")
	}
}

func TestTimeoutWrapperRejectsDeadlinelessConnections(t *testing.T) {
	var buf bytes.Buffer
	_, err := comm.NewTimeout(&buf, time.Second)
	if !errors.Is(err, comm.ErrTimeoutUnsupported) {
		t.Fatalf("expected ErrTimeoutUnsupported, got %v", err)
	}
}
