// Package clock fornece o relógio do sistema e um relógio controlável para testes.
package clock

import (
	"sync"
	"time"
)

// System usa time.Now
type System struct{}

// Now retorna o horário atual
func (System) Now() time.Time { return time.Now() }

// Fake é um relógio manual, seguro para uso concorrente
type Fake struct {
	mu  sync.Mutex
	now time.Time
}

// NewFake cria um relógio parado em start
func NewFake(start time.Time) *Fake {
	return &Fake{now: start}
}

// Now retorna o horário atual do relógio
func (f *Fake) Now() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.now
}

// Advance avança o relógio em d
func (f *Fake) Advance(d time.Duration) {
	f.mu.Lock()
	f.now = f.now.Add(d)
	f.mu.Unlock()
}

// Set posiciona o relógio em t
func (f *Fake) Set(t time.Time) {
	f.mu.Lock()
	f.now = t
	f.mu.Unlock()
}
