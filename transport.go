package qsn

import (
	"context"
	"fmt"
)

/*
Transport is the point-to-point classical channel between parties. Both calls
block until the peer reaches the matching call; there are no timeouts and no
retries. The context only lets the embedding process shut the round down.
*/
type Transport interface {
	Send(ctx context.Context, from, to int, msg Message) error
	Recv(ctx context.Context, at, from int) (Message, error)
}

/*
Mesh is an in-memory Transport built from one unbuffered channel per ordered
pair of parties, so every Send is a rendezvous with the matching Recv.
*/
type Mesh struct {
	n     int
	links [][]chan Message
}

// NewMesh wires every ordered pair of the n parties.
func NewMesh(n int) *Mesh {
	links := make([][]chan Message, n)
	for from := range links {
		links[from] = make([]chan Message, n)
		for to := range links[from] {
			if from != to {
				links[from][to] = make(chan Message)
			}
		}
	}
	return &Mesh{n: n, links: links}
}

func (m *Mesh) link(from, to int) (chan Message, error) {
	if from < 0 || from >= m.n || to < 0 || to >= m.n || from == to {
		return nil, fmt.Errorf("no link %d -> %d in mesh of %d", from, to, m.n)
	}
	return m.links[from][to], nil
}

// Send delivers msg from one party to another.
func (m *Mesh) Send(ctx context.Context, from, to int, msg Message) error {
	ch, err := m.link(from, to)
	if err != nil {
		return err
	}
	select {
	case ch <- msg:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("send %s %d -> %d: %w", msg.Kind, from, to, ctx.Err())
	}
}

// Recv waits for the next message from a peer.
func (m *Mesh) Recv(ctx context.Context, at, from int) (Message, error) {
	ch, err := m.link(from, at)
	if err != nil {
		return Message{}, err
	}
	select {
	case msg := <-ch:
		return msg, nil
	case <-ctx.Done():
		return Message{}, fmt.Errorf("recv at %d from %d: %w", at, from, ctx.Err())
	}
}
