package portalloc

import (
	"net"
	"strconv"
	"testing"
)

func TestAllocateReturnsBindablePort(t *testing.T) {
	a := New("127.0.0.1", 20000)
	port, err := a.Allocate()
	if err != nil {
		t.Fatalf("Allocate returned error: %v", err)
	}

	ln, err := net.Listen("tcp", net.JoinHostPort("127.0.0.1", strconv.Itoa(port)))
	if err != nil {
		t.Fatalf("allocated port %d was not actually bindable: %v", port, err)
	}
	_ = ln.Close()
}

func TestAllocateNeverRepeatsWhilePortHeld(t *testing.T) {
	a := New("127.0.0.1", 20100)

	port1, err := a.Allocate()
	if err != nil {
		t.Fatalf("first Allocate: %v", err)
	}
	ln, err := net.Listen("tcp", net.JoinHostPort("127.0.0.1", strconv.Itoa(port1)))
	if err != nil {
		t.Fatalf("could not hold port1: %v", err)
	}
	defer ln.Close()

	port2, err := a.Allocate()
	if err != nil {
		t.Fatalf("second Allocate: %v", err)
	}
	if port2 == port1 {
		t.Fatalf("Allocate returned the same port twice while it was still held: %d", port1)
	}
}

func TestAllocateExhaustion(t *testing.T) {
	a := New("127.0.0.1", 20200)
	a.giveUp = 0
	if _, err := a.Allocate(); err == nil {
		t.Fatal("expected ErrPortExhausted when giveUp is 0, got nil")
	}
}
